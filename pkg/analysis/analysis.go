// Package analysis is the AIProcessingQueue (C6): a typed wrapper over the
// generic pkg/queue engine carrying model.ProcessingTask payloads. Drained
// tasks call C5 (extraction) and C7 (resolution); the resulting UI events
// are handed to an EventSink (pkg/notify implements one).
package analysis

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/projectloop/mailgrouper/pkg/domain/interfaces"
	"github.com/projectloop/mailgrouper/pkg/domain/model"
	"github.com/projectloop/mailgrouper/pkg/domain/types"
	"github.com/projectloop/mailgrouper/pkg/queue"
	"github.com/projectloop/mailgrouper/pkg/resolver"
	"github.com/projectloop/mailgrouper/pkg/utils/logging"
)

// EventSink fans resolver UI events out (Slack, websocket); pkg/notify
// implements it. A nil sink is a valid no-op.
type EventSink interface {
	Publish(ctx context.Context, ev model.UIEvent) error
}

// Config tunes C6's own behavior, distinct from the generic queue.Config
// the embedded engine takes.
type Config struct {
	// ScanPageSize bounds how many message ids a single
	// retroactive_scan_slice task lists from the provider before
	// chaining the next slice (spec §4.6's retroactive_scan_slice kind).
	ScanPageSize int
	// ScanPriority is the priority retroactive-scan-derived extract work
	// runs at — always lower (numerically higher) than live traffic so a
	// backfill never starves newly arriving mail.
	ScanPriority int
}

func (c Config) withDefaults() Config {
	if c.ScanPageSize == 0 {
		c.ScanPageSize = 50
	}
	if c.ScanPriority == 0 {
		c.ScanPriority = 8
	}
	return c
}

// Queue is the C6 typed wrapper.
type Queue struct {
	eng         *queue.Engine
	cache       *messageCache
	provider    interfaces.ProviderClient
	attachments interfaces.AttachmentRepository
	blobs       interfaces.BlobStore
	cfg         Config
}

// NewCache builds the message cache shared between this queue (which
// records messages as they're resolved) and the resolver.Resolver
// constructed with it as a SimilaritySampler (signal 6).
func NewCache(capacity int) resolver.SimilaritySampler {
	return newMessageCache(capacity)
}

// New builds the analysis queue. res is the already-constructed resolver
// (sharing the cache returned by NewCache, if similarity sampling is
// wanted); sink may be nil. provider drives retroactive_scan_slice tasks'
// own list+fetch step (C10 only ever supplies the range/cursor, never the
// message itself, since a scan slice may cover many messages). attachments
// and blobs may both be nil, in which case attachment records are simply
// never persisted (e.g. in tests, or a deployment with no blob store
// configured).
func New(repo interfaces.QueueRepository, projects interfaces.ProjectRepository, extractor interfaces.EntityExtractor, res *resolver.Resolver, cache resolver.SimilaritySampler, provider interfaces.ProviderClient, cfg queue.Config, acfg Config, sink EventSink, attachments interfaces.AttachmentRepository, blobs interfaces.BlobStore) *Queue {
	cfg.Queue = model.QueueAIProcessing
	q := &Queue{provider: provider, attachments: attachments, blobs: blobs, cfg: acfg.withDefaults()}
	mc, _ := cache.(*messageCache)
	q.cache = mc
	q.eng = queue.New(repo, cfg, func(ctx context.Context, item *model.QueueItem) error {
		return q.handle(ctx, item, projects, extractor, res, sink)
	})
	return q
}

// EnqueueExtract implements pkg/ingest.Forwarder: enqueues a TaskExtract
// task for one fetched message. The message is JSON-encoded into the task
// payload since the queue itself never holds a live *model.Message beyond
// this single hop.
func (q *Queue) EnqueueExtract(ctx context.Context, userID model.UserID, msg *model.Message, priority int) error {
	task := model.ProcessingTask{Kind: types.TaskExtract, UserID: userID, MessageID: msg.ID, ThreadID: msg.ThreadID}
	return q.enqueue(ctx, userID, task, priority, "extract:"+string(msg.ID), msg)
}

// EnqueueGroupBatch enqueues a TaskGroupBatch task for a set of messages a
// single WatchCoordinator tick delivered together.
func (q *Queue) EnqueueGroupBatch(ctx context.Context, userID model.UserID, messageIDs []model.MessageID, priority int) error {
	task := model.ProcessingTask{Kind: types.TaskGroupBatch, UserID: userID, BatchMessageIDs: messageIDs}
	return q.enqueue(ctx, userID, task, priority, "", nil)
}

// EnqueueRetroactiveScanSlice enqueues one slice of a retroactive scan
// (C10): task carries the date range and, for every slice after the
// first, the provider page token to resume from in CursorStart. The
// handler itself lists and fetches messages for the slice — no message
// rides along, unlike EnqueueExtract — and chains the next slice when the
// provider reports more pages.
func (q *Queue) EnqueueRetroactiveScanSlice(ctx context.Context, userID model.UserID, task model.ProcessingTask, priority int) error {
	task.Kind = types.TaskRetroactiveScanSlice
	task.UserID = userID
	return q.enqueue(ctx, userID, task, priority, "", nil)
}

func (q *Queue) enqueue(ctx context.Context, userID model.UserID, task model.ProcessingTask, priority int, dedupKey string, msg *model.Message) error {
	wire := wireTask{Task: task, Message: msg}
	payload, err := json.Marshal(wire)
	if err != nil {
		return goerr.Wrap(err, "marshal processing task")
	}
	_, err = q.eng.Enqueue(ctx, userID, payload, priority, dedupKey)
	return err
}

// wireTask bundles the durable ProcessingTask with the message it was
// created from, since fetching+parsing a message is C2's job, not C6's —
// the message rides along for the single hop between C4 and C6.
type wireTask struct {
	Task    model.ProcessingTask
	Message *model.Message `json:"Message,omitempty"`
}

func (q *Queue) Run(ctx context.Context) { q.eng.Run(ctx) }
func (q *Queue) Stop()                   { q.eng.Stop() }

func (q *Queue) Stats(ctx context.Context) (interfaces.QueueStats, error) {
	return q.eng.Stats(ctx)
}

// ProcessOnce drains one batch synchronously, see queue.Engine.ProcessOnce.
func (q *Queue) ProcessOnce(ctx context.Context) { q.eng.ProcessOnce(ctx) }

func (q *Queue) handle(ctx context.Context, item *model.QueueItem, projects interfaces.ProjectRepository, extractor interfaces.EntityExtractor, res *resolver.Resolver, sink EventSink) error {
	var wire wireTask
	if err := json.Unmarshal(item.Payload, &wire); err != nil {
		return goerr.Wrap(interfaces.ErrInvalidInput, "malformed processing task payload", goerr.V("item_id", item.ID))
	}

	switch wire.Task.Kind {
	case types.TaskExtract:
		if wire.Message == nil {
			return goerr.Wrap(interfaces.ErrInvalidInput, "extract task missing message")
		}
		return q.extractAndResolve(ctx, wire.Task.UserID, wire.Message, projects, extractor, res, sink)
	case types.TaskRetroactiveScanSlice:
		return q.handleRetroactiveScanSlice(ctx, wire.Task, projects, extractor, res, sink)
	case types.TaskGroupBatch:
		// Group-batch tasks are acknowledged without any processing: no
		// message in BatchMessageIDs is extracted or resolved here (C5
		// has no cross-message batch endpoint).
		return nil
	default:
		return goerr.Wrap(interfaces.ErrInvalidInput, "unknown processing task kind", goerr.V("kind", wire.Task.Kind))
	}
}

// handleRetroactiveScanSlice lists one page of messages in task's date
// range starting at task.CursorStart, extracts+resolves each, and
// re-enqueues the next slice if the provider reports more pages (spec
// §4.6, SPEC_FULL §11 incremental_processing.py checkpointing).
func (q *Queue) handleRetroactiveScanSlice(ctx context.Context, task model.ProcessingTask, projects interfaces.ProjectRepository, extractor interfaces.EntityExtractor, res *resolver.Resolver, sink EventSink) error {
	if q.provider == nil {
		return goerr.Wrap(interfaces.ErrInvalidInput, "retroactive scan slice requires a provider")
	}

	page, err := q.provider.ListMessages(ctx, task.UserID, interfaces.ListQuery{
		Q:         dateRangeQuery(task.RangeStart, task.RangeEnd),
		PageSize:  q.cfg.ScanPageSize,
		PageToken: task.CursorStart,
	})
	if err != nil {
		return goerr.Wrap(err, "list messages for retroactive scan", goerr.V("user_id", task.UserID))
	}

	for _, id := range page.MessageIDs {
		msg, err := q.provider.FetchMessage(ctx, task.UserID, id, true)
		if err != nil {
			logging.From(ctx).Error("retroactive scan fetch failed, skipping message", "error", err.Error(), "message_id", id)
			continue
		}
		if err := q.extractAndResolve(ctx, task.UserID, msg, projects, extractor, res, sink); err != nil {
			logging.From(ctx).Error("retroactive scan extract failed, skipping message", "error", err.Error(), "message_id", id)
		}
	}

	if page.NextPageToken == "" {
		return nil
	}
	next := task
	next.CursorStart = page.NextPageToken
	return q.EnqueueRetroactiveScanSlice(ctx, task.UserID, next, q.cfg.ScanPriority)
}

// dateRangeQuery renders RangeStart/RangeEnd as Gmail search operators;
// a zero bound is omitted so an open-ended scan is expressible.
func dateRangeQuery(start, end time.Time) string {
	var parts []string
	if !start.IsZero() {
		parts = append(parts, "after:"+start.Format("2006/01/02"))
	}
	if !end.IsZero() {
		parts = append(parts, "before:"+end.Format("2006/01/02"))
	}
	return strings.Join(parts, " ")
}

func (q *Queue) extractAndResolve(ctx context.Context, userID model.UserID, msg *model.Message, projects interfaces.ProjectRepository, extractor interfaces.EntityExtractor, res *resolver.Resolver, sink EventSink) error {
	hints := interfaces.ExtractionHints{}
	if active, err := projects.ListActive(ctx, userID); err == nil {
		for _, p := range active {
			hints.ExistingProjectNames = append(hints.ExistingProjectNames, p.Name)
		}
	}

	entities, err := extractor.Extract(ctx, msg, hints)
	if err != nil {
		return goerr.Wrap(err, "extract entities", goerr.V("message_id", msg.ID))
	}

	result, err := res.Resolve(ctx, userID, msg, entities)
	if err != nil {
		return goerr.Wrap(err, "resolve project", goerr.V("message_id", msg.ID))
	}

	if q.cache != nil && result.ProjectID != "" {
		q.cache.Record(userID, result.ProjectID, msg)
	}

	if len(msg.Attachments) > 0 {
		q.processAttachments(ctx, userID, msg, result.ProjectID)
	}

	if sink != nil {
		for _, ev := range result.Events {
			if err := sink.Publish(ctx, ev); err != nil {
				return goerr.Wrap(err, "publish ui event")
			}
		}
	}
	return nil
}
