package queue_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/projectloop/mailgrouper/pkg/domain/interfaces"
	"github.com/projectloop/mailgrouper/pkg/domain/model"
	"github.com/projectloop/mailgrouper/pkg/repository/memory"
	"github.com/projectloop/mailgrouper/pkg/queue"
)

const userID = model.UserID("u1")

func TestEngineProcessesEnqueuedItem(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()

	var processed int32
	eng := queue.New(repo.Queue(), queue.Config{
		Queue:        model.QueueNotification,
		Owner:        "test-worker",
		PollInterval: 10 * time.Millisecond,
		Lease:        time.Second,
	}, func(ctx context.Context, item *model.QueueItem) error {
		atomic.AddInt32(&processed, 1)
		return nil
	})

	_, err := eng.Enqueue(ctx, userID, []byte("payload"), 1, "dedup-1")
	gt.NoError(t, err).Required()

	runCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	go eng.Run(runCtx)
	<-runCtx.Done()

	gt.Value(t, atomic.LoadInt32(&processed)).Equal(int32(1))

	stats, err := eng.Stats(ctx)
	gt.NoError(t, err).Required()
	gt.Value(t, stats.Completed).Equal(1)
}

func TestEngineDeadLettersAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()

	eng := queue.New(repo.Queue(), queue.Config{
		Queue:        model.QueueAIProcessing,
		Owner:        "test-worker",
		PollInterval: 5 * time.Millisecond,
		Lease:        50 * time.Millisecond,
		BackoffBase:  1 * time.Millisecond,
		BackoffMax:   2 * time.Millisecond,
		MaxAttempts:  2,
	}, func(ctx context.Context, item *model.QueueItem) error {
		return interfaces.ErrInvalidInput // non-retryable kind
	})

	_, err := eng.Enqueue(ctx, userID, []byte("bad"), 1, "dedup-2")
	gt.NoError(t, err).Required()

	runCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	go eng.Run(runCtx)
	<-runCtx.Done()

	stats, err := eng.Stats(ctx)
	gt.NoError(t, err).Required()
	gt.Value(t, stats.Dead).Equal(1)
}

func TestEngineEnqueueIsIdempotentOnDedupKey(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	eng := queue.New(repo.Queue(), queue.Config{Queue: model.QueueNotification}, func(ctx context.Context, item *model.QueueItem) error {
		return nil
	})

	first, err := eng.Enqueue(ctx, userID, []byte("a"), 5, "same-key")
	gt.NoError(t, err).Required()
	second, err := eng.Enqueue(ctx, userID, []byte("a"), 1, "same-key")
	gt.NoError(t, err).Required()

	gt.Value(t, second.ID).Equal(first.ID)

	stats, err := eng.Stats(ctx)
	gt.NoError(t, err).Required()
	gt.Value(t, stats.Pending).Equal(1)
}
