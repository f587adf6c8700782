// Package ingest is the NotificationQueue (C4): a typed wrapper over the
// generic pkg/queue engine carrying model.MessageEvent payloads. Workers
// drained from this queue fetch+parse the message via the ProviderClient
// and hand off to the AIProcessingQueue (pkg/analysis).
package ingest

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/m-mizutani/goerr/v2"

	"github.com/projectloop/mailgrouper/pkg/domain/interfaces"
	"github.com/projectloop/mailgrouper/pkg/domain/model"
	"github.com/projectloop/mailgrouper/pkg/queue"
)

// Forwarder hands a fetched message on to the AIProcessingQueue. Kept as an
// interface (rather than importing pkg/analysis directly) to avoid a
// queue-package import cycle; pkg/analysis.Queue satisfies it.
type Forwarder interface {
	EnqueueExtract(ctx context.Context, userID model.UserID, msg *model.Message, priority int) error
}

// Queue is the C4 typed wrapper.
type Queue struct {
	eng *queue.Engine
}

// New builds the ingest queue. provider fetches+parses the raw message;
// forward hands the parsed message to C6.
func New(repo interfaces.QueueRepository, cfg queue.Config, provider interfaces.ProviderClient, forward Forwarder) *Queue {
	cfg.Queue = model.QueueNotification
	q := &Queue{}
	q.eng = queue.New(repo, cfg, func(ctx context.Context, item *model.QueueItem) error {
		return q.handle(ctx, item, provider, forward)
	})
	return q
}

// Enqueue implements spec §4.4's enqueue(event, priority); idempotency key
// is (user, message_id, history_cursor) per spec.
func (q *Queue) Enqueue(ctx context.Context, ev *model.MessageEvent, priority int) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return goerr.Wrap(err, "marshal message event")
	}
	dedupKey := fmt.Sprintf("%s|%s|%s", ev.UserID, ev.MessageID, ev.HistoryCursor)
	_, err = q.eng.Enqueue(ctx, ev.UserID, payload, priority, dedupKey)
	return err
}

// Run drives the worker loop; Stop releases it.
func (q *Queue) Run(ctx context.Context) { q.eng.Run(ctx) }
func (q *Queue) Stop()                   { q.eng.Stop() }

func (q *Queue) Stats(ctx context.Context) (interfaces.QueueStats, error) {
	return q.eng.Stats(ctx)
}

// ProcessOnce drains one batch synchronously, see queue.Engine.ProcessOnce.
func (q *Queue) ProcessOnce(ctx context.Context) { q.eng.ProcessOnce(ctx) }

func (q *Queue) handle(ctx context.Context, item *model.QueueItem, provider interfaces.ProviderClient, forward Forwarder) error {
	var ev model.MessageEvent
	if err := json.Unmarshal(item.Payload, &ev); err != nil {
		return goerr.Wrap(interfaces.ErrInvalidInput, "malformed message event payload", goerr.V("item_id", item.ID))
	}

	msg, err := provider.FetchMessage(ctx, ev.UserID, ev.MessageID, true)
	if err != nil {
		return goerr.Wrap(err, "fetch message", goerr.V("message_id", ev.MessageID))
	}

	if err := forward.EnqueueExtract(ctx, ev.UserID, msg, item.Priority); err != nil {
		return goerr.Wrap(err, "forward to analysis queue")
	}
	return nil
}

// DeliveryAttemptExceeded reports whether ev should be dead-lettered
// regardless of queue-level max_attempts, per spec §4.3's own delivery
// attempt counter on push/poll-sourced events.
func DeliveryAttemptExceeded(ev *model.MessageEvent, max int) bool {
	return max > 0 && ev.DeliveryAttempt >= max
}
