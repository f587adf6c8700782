// Package queue implements the generic durable work-queue engine shared by
// the NotificationQueue (C4) and AIProcessingQueue (C6): enqueue, leased
// reservation, complete/fail with backoff, dead-lettering and peek_stats,
// all over the interfaces.QueueRepository contract so any backend (memory,
// postgres, sqlite, firestore) drives the same worker loop. The loop shape
// follows the teacher's ticker-worker idiom in
// pkg/service/worker/slack_user_refresh.go, generalized from a single
// scheduled refresh to a reserve-process-complete cycle with concurrency.
package queue

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/projectloop/mailgrouper/pkg/domain/interfaces"
	"github.com/projectloop/mailgrouper/pkg/domain/model"
	"github.com/projectloop/mailgrouper/pkg/utils/errutil"
	"github.com/projectloop/mailgrouper/pkg/utils/logging"
)

// Handler processes one leased QueueItem. A returned error is classified
// via errutil.Kind to decide retry vs dead-letter.
type Handler func(ctx context.Context, item *model.QueueItem) error

// Config tunes one Engine's worker loop. Zero values fall back to spec
// defaults in New.
type Config struct {
	Queue        model.QueueName
	Owner        string // lease owner id, e.g. hostname:pid
	Concurrency  int
	BatchSize    int
	Lease        time.Duration
	PollInterval time.Duration
	BackoffBase  time.Duration
	BackoffMax   time.Duration
	MaxAttempts  int
}

func (c Config) withDefaults() Config {
	if c.Concurrency == 0 {
		c.Concurrency = 4
	}
	if c.BatchSize == 0 {
		c.BatchSize = c.Concurrency
	}
	if c.Lease == 0 {
		c.Lease = 2 * time.Minute
	}
	if c.PollInterval == 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.BackoffBase == 0 {
		c.BackoffBase = 5 * time.Second
	}
	if c.BackoffMax == 0 {
		c.BackoffMax = 30 * time.Minute
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 5
	}
	return c
}

// Engine drains one QueueRepository queue with a bounded worker pool.
type Engine struct {
	repo    interfaces.QueueRepository
	cfg     Config
	handler Handler

	stopCh chan struct{}
	doneCh chan struct{}
}

// New builds an Engine. handler is invoked once per reserved item; Engine
// calls Complete/Fail on the repository based on its return value.
func New(repo interfaces.QueueRepository, cfg Config, handler Handler) *Engine {
	cfg = cfg.withDefaults()
	return &Engine{
		repo:    repo,
		cfg:     cfg,
		handler: handler,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Enqueue is a thin pass-through that stamps Queue from the engine's
// config, so callers (pkg/ingest, pkg/analysis) don't repeat it.
func (e *Engine) Enqueue(ctx context.Context, userID model.UserID, payload []byte, priority int, dedupKey string) (*model.QueueItem, error) {
	item := &model.QueueItem{
		Queue:       e.cfg.Queue,
		UserID:      userID,
		Priority:    priority,
		Payload:     payload,
		DedupKey:    dedupKey,
		MaxAttempts: e.cfg.MaxAttempts,
	}
	out, err := e.repo.Enqueue(ctx, item)
	if err != nil {
		return nil, goerr.Wrap(err, "enqueue failed", goerr.V("queue", e.cfg.Queue))
	}
	return out, nil
}

// Stats reports current queue depth by status.
func (e *Engine) Stats(ctx context.Context) (interfaces.QueueStats, error) {
	return e.repo.PeekStats(ctx, e.cfg.Queue)
}

// Run drives the reserve/process/complete loop until ctx is cancelled or
// Stop is called. It blocks; callers run it in its own goroutine.
func (e *Engine) Run(ctx context.Context) {
	defer close(e.doneCh)

	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.drainOnce(ctx)
		case <-e.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop signals Run to return and waits for it to do so.
func (e *Engine) Stop() {
	close(e.stopCh)
	<-e.doneCh
}

// ProcessOnce reserves and processes a single batch synchronously, for the
// operational "process now" endpoint (spec §6's POST /queue/process)
// rather than waiting out the poll interval. Safe to call concurrently
// with a running Run loop — Reserve's lease semantics prevent double
// delivery either way.
func (e *Engine) ProcessOnce(ctx context.Context) {
	e.drainOnce(ctx)
}

func (e *Engine) drainOnce(ctx context.Context) {
	items, err := e.repo.Reserve(ctx, e.cfg.Queue, e.cfg.Owner, e.cfg.BatchSize, e.cfg.Lease)
	if err != nil {
		errutil.Handle(ctx, goerr.Wrap(err, "reserve failed", goerr.V("queue", e.cfg.Queue)), "queue reserve")
		return
	}
	if len(items) == 0 {
		return
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, e.cfg.Concurrency)
	for _, item := range items {
		item := item
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			e.process(ctx, item)
		}()
	}
	wg.Wait()
}

func (e *Engine) process(ctx context.Context, item *model.QueueItem) {
	logger := logging.From(ctx).With("queue", item.Queue, "item_id", item.ID, "user_id", item.UserID)

	err := func() (handlerErr error) {
		defer func() {
			if r := recover(); r != nil {
				handlerErr = goerr.New("queue handler panicked", goerr.V("recover", r))
			}
		}()
		return e.handler(ctx, item)
	}()

	if err == nil {
		if cErr := e.repo.Complete(ctx, item.ID); cErr != nil {
			errutil.Handle(ctx, goerr.Wrap(cErr, "complete failed"), "queue complete")
		}
		return
	}

	kind := errutil.Kind(err)
	retryable := kind.Retryable()
	delay := backoff(item.Attempts, e.cfg.BackoffBase, e.cfg.BackoffMax)
	logger.Warn("queue item failed", "error", err.Error(), "kind", kind, "retryable", retryable, "attempts", item.Attempts)

	if fErr := e.repo.Fail(ctx, item.ID, err.Error(), retryable, time.Now().Add(delay), item.MaxAttempts); fErr != nil {
		errutil.Handle(ctx, goerr.Wrap(fErr, "fail failed"), "queue fail")
	}
}

// backoff computes an exponential delay with full jitter, capped at max.
func backoff(attempts int, base, max time.Duration) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	d := base << uint(attempts-1)
	if d <= 0 || d > max {
		d = max
	}
	return time.Duration(rand.Int63n(int64(d) + 1))
}
