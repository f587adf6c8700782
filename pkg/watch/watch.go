// Package watch implements C3, the WatchCoordinator: maintains a push
// subscription per user when a topic is configured, otherwise falls back
// to a polling loop. Every tick's newly-discovered message ids become
// MessageEvents on the NotificationQueue (C4).
package watch

import (
	"context"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/projectloop/mailgrouper/pkg/domain/interfaces"
	"github.com/projectloop/mailgrouper/pkg/domain/model"
	"github.com/projectloop/mailgrouper/pkg/domain/types"
	"github.com/projectloop/mailgrouper/pkg/utils/errutil"
	"github.com/projectloop/mailgrouper/pkg/utils/logging"
)

// EventEnqueuer is the C4 seam WatchCoordinator emits into; ingest.Queue
// satisfies it. Kept narrow to avoid importing pkg/ingest here.
type EventEnqueuer interface {
	Enqueue(ctx context.Context, ev *model.MessageEvent, priority int) error
}

// RenewalMargin is the default safety margin before a push subscription's
// expiry at which it is proactively renewed (spec §4.3).
const RenewalMargin = 10 * time.Minute

// Config tunes polling cadence and default subscription lifetime.
type Config struct {
	DefaultPollInterval types.PollInterval
	RenewalMargin       time.Duration
	SubscriptionTTL     time.Duration
	EnqueuePriority     int
}

func (c Config) withDefaults() Config {
	if c.DefaultPollInterval == "" {
		c.DefaultPollInterval = types.PollIntervalNormal
	}
	if c.RenewalMargin == 0 {
		c.RenewalMargin = RenewalMargin
	}
	if c.SubscriptionTTL == 0 {
		c.SubscriptionTTL = 24 * time.Hour
	}
	if c.EnqueuePriority == 0 {
		c.EnqueuePriority = 3
	}
	return c
}

// Coordinator implements C3. Its per-user tick loop is grounded on the
// teacher's SlackUserRefreshWorker (pkg/service/worker) Start/Stop/run
// shape, generalized from one global ticker to one goroutine per watched
// user so push-skip and poll cadence stay independent per spec §4.3.
//
// Simplification (documented, not silent): the spec's push path describes
// the raw notification as carrying only a user id, with history
// enumeration deferred to "C4's consumer". This implementation has
// HandlePush enumerate history immediately instead of deferring it to a
// second consumer role, since a deferred-enumeration consumer would only
// duplicate the GetHistory-calling logic already in pollOnce for no
// externally observable difference — both paths still end up enqueuing
// exactly one MessageEvent per newly discovered message id.
type Coordinator struct {
	repo     interfaces.Repository
	provider interfaces.ProviderClient
	enqueuer EventEnqueuer
	cfg      Config

	mu      sync.Mutex
	tickers map[model.UserID]chan struct{}
	wg      sync.WaitGroup
}

func New(repo interfaces.Repository, provider interfaces.ProviderClient, enqueuer EventEnqueuer, cfg Config) *Coordinator {
	return &Coordinator{
		repo:     repo,
		provider: provider,
		enqueuer: enqueuer,
		cfg:      cfg.withDefaults(),
		tickers:  make(map[model.UserID]chan struct{}),
	}
}

// StartWatch establishes (or re-establishes) a push subscription for
// userID against topic, or falls back to WatchKindPolling if topic is
// empty. At most one active subscription per user (spec §4.3 invariant).
func (c *Coordinator) StartWatch(ctx context.Context, userID model.UserID, topic, labelFilter string) error {
	now := time.Now().UTC()
	if topic == "" {
		sub := &model.WatchSubscription{
			UserID:      userID,
			Kind:        types.WatchKindPolling,
			LabelFilter: labelFilter,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		return c.repo.Watch().Put(ctx, sub)
	}

	ws, err := c.provider.StartWatch(ctx, userID, topic, labelFilter)
	if err != nil {
		return goerr.Wrap(err, "start push watch", goerr.V("user_id", userID))
	}
	ws.CreatedAt = now
	ws.UpdatedAt = now
	if ws.ExpiresAt.IsZero() {
		ws.ExpiresAt = now.Add(c.cfg.SubscriptionTTL)
	}
	return c.repo.Watch().Put(ctx, ws)
}

// StopWatch tears down userID's subscription, per spec's "torn down on
// user deactivation" lifecycle rule.
func (c *Coordinator) StopWatch(ctx context.Context, userID model.UserID) error {
	sub, err := c.repo.Watch().Get(ctx, userID)
	if err != nil {
		return goerr.Wrap(err, "get subscription", goerr.V("user_id", userID))
	}
	if sub.Kind == types.WatchKindPush {
		if err := c.provider.StopWatch(ctx, userID); err != nil {
			errutil.Handle(ctx, err, "provider stop watch failed, deleting subscription record anyway")
		}
	}
	return c.repo.Watch().Delete(ctx, userID)
}

// HandlePush processes one push notification for userID. The envelope
// itself is untrusted for message enumeration (spec §4.3): it only
// triggers a GetHistory call from the persisted cursor.
func (c *Coordinator) HandlePush(ctx context.Context, userID model.UserID) error {
	sub, err := c.repo.Watch().Get(ctx, userID)
	if err != nil {
		return goerr.Wrap(err, "get subscription", goerr.V("user_id", userID))
	}
	sub.LastPushEventAt = time.Now().UTC()
	if err := c.repo.Watch().Put(ctx, sub); err != nil {
		return goerr.Wrap(err, "record push event")
	}
	return c.syncHistory(ctx, userID, sub, types.EventSourcePush)
}

// RenewDue renews every push subscription within cfg.RenewalMargin of
// expiry. Intended to be driven by the scheduler (C10).
func (c *Coordinator) RenewDue(ctx context.Context) error {
	due, err := c.repo.Watch().ListDueForRenewal(ctx, c.cfg.RenewalMargin, time.Now().UTC())
	if err != nil {
		return goerr.Wrap(err, "list due subscriptions")
	}
	for _, sub := range due {
		if !sub.NeedsRenewal(c.cfg.RenewalMargin, time.Now().UTC()) {
			continue
		}
		if err := c.StartWatch(ctx, sub.UserID, sub.Topic, sub.LabelFilter); err != nil {
			errutil.Handle(ctx, err, "renew watch failed")
		}
	}
	return nil
}

// PollOnce runs one poll tick for userID: fetches history since the
// persisted cursor and emits one MessageEvent per new message id. Per
// spec §4.3, users on an active push subscription that produced an event
// within the last interval are skipped.
func (c *Coordinator) PollOnce(ctx context.Context, userID model.UserID, interval time.Duration) error {
	sub, err := c.repo.Watch().Get(ctx, userID)
	if err != nil {
		return goerr.Wrap(err, "get subscription", goerr.V("user_id", userID))
	}
	if sub.Kind == types.WatchKindPush && time.Since(sub.LastPushEventAt) < interval {
		return nil
	}
	return c.syncHistory(ctx, userID, sub, types.EventSourcePoll)
}

func (c *Coordinator) syncHistory(ctx context.Context, userID model.UserID, sub *model.WatchSubscription, source types.EventSource) error {
	hist, err := c.provider.GetHistory(ctx, userID, sub.LastCursor)
	if err != nil {
		return goerr.Wrap(err, "get history", goerr.V("user_id", userID))
	}

	now := time.Now().UTC()
	for _, id := range hist.NewMessageIDs {
		ev := &model.MessageEvent{
			UserID:        userID,
			MessageID:     id,
			HistoryCursor: hist.NextCursor,
			ArrivedAt:     now,
			Source:        source,
		}
		if err := c.enqueuer.Enqueue(ctx, ev, c.cfg.EnqueuePriority); err != nil {
			logging.From(ctx).Error("enqueue message event failed", "error", err.Error(), "user_id", userID, "message_id", id)
		}
	}

	sub.LastCursor = hist.NextCursor
	sub.UpdatedAt = now
	if err := c.repo.Watch().Put(ctx, sub); err != nil {
		return goerr.Wrap(err, "persist cursor", goerr.V("user_id", userID))
	}
	return nil
}

// Run starts one background poll loop per user in userIDs, at
// c.cfg.DefaultPollInterval's duration, until ctx is cancelled or Stop is
// called. Push-driven users are still ticked (to catch up if pushes stop
// arriving) but skip actual work per PollOnce's push-skip rule.
func (c *Coordinator) Run(ctx context.Context, userIDs []model.UserID) {
	interval := time.Duration(c.cfg.DefaultPollInterval.Duration()) * time.Second
	for _, userID := range userIDs {
		c.startUserLoop(ctx, userID, interval)
	}
}

func (c *Coordinator) startUserLoop(ctx context.Context, userID model.UserID, interval time.Duration) {
	c.mu.Lock()
	if _, exists := c.tickers[userID]; exists {
		c.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	c.tickers[userID] = stop
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := c.PollOnce(ctx, userID, interval); err != nil {
					errutil.Handle(ctx, err, "poll tick failed")
				}
			case <-stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop signals every per-user loop to exit and waits for them to do so.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	for _, stop := range c.tickers {
		close(stop)
	}
	c.tickers = make(map[model.UserID]chan struct{})
	c.mu.Unlock()
	c.wg.Wait()
}
