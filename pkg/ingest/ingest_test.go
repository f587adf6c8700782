package ingest_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/projectloop/mailgrouper/pkg/domain/interfaces"
	"github.com/projectloop/mailgrouper/pkg/domain/model"
	"github.com/projectloop/mailgrouper/pkg/ingest"
	"github.com/projectloop/mailgrouper/pkg/queue"
	"github.com/projectloop/mailgrouper/pkg/repository/memory"
)

const userID = model.UserID("u1")

// fakeProvider satisfies interfaces.ProviderClient with only FetchMessage
// implemented; ingest only ever calls that one method.
type fakeProvider struct {
	interfaces.ProviderClient
	msg *model.Message
	err error
}

func (f *fakeProvider) FetchMessage(ctx context.Context, userID model.UserID, id model.MessageID, includeBody bool) (*model.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.msg, nil
}

type fakeForwarder struct {
	calls int32
}

func (f *fakeForwarder) EnqueueExtract(ctx context.Context, userID model.UserID, msg *model.Message, priority int) error {
	atomic.AddInt32(&f.calls, 1)
	return nil
}

func TestIngestQueueFetchesAndForwards(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	provider := &fakeProvider{msg: &model.Message{ID: "m1", ThreadID: "t1"}}
	forwarder := &fakeForwarder{}

	q := ingest.New(repo.Queue(), queue.Config{PollInterval: 5 * time.Millisecond, Lease: time.Second}, provider, forwarder)

	gt.NoError(t, q.Enqueue(ctx, &model.MessageEvent{
		UserID:        userID,
		MessageID:     "m1",
		ThreadID:      "t1",
		HistoryCursor: "c1",
		ArrivedAt:     time.Now(),
	}, 3)).Required()

	runCtx, cancel := context.WithTimeout(ctx, 150*time.Millisecond)
	defer cancel()
	go q.Run(runCtx)
	<-runCtx.Done()

	gt.Value(t, atomic.LoadInt32(&forwarder.calls)).Equal(int32(1))

	stats, err := q.Stats(ctx)
	gt.NoError(t, err).Required()
	gt.Value(t, stats.Completed).Equal(1)
}

func TestIngestEnqueueDedupsOnCursor(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	provider := &fakeProvider{msg: &model.Message{ID: "m2"}}
	forwarder := &fakeForwarder{}
	q := ingest.New(repo.Queue(), queue.Config{}, provider, forwarder)

	ev := &model.MessageEvent{UserID: userID, MessageID: "m2", HistoryCursor: "c9"}
	gt.NoError(t, q.Enqueue(ctx, ev, 5)).Required()
	gt.NoError(t, q.Enqueue(ctx, ev, 1)).Required()

	stats, err := q.Stats(ctx)
	gt.NoError(t, err).Required()
	gt.Value(t, stats.Pending).Equal(1)
}

func TestDeliveryAttemptExceeded(t *testing.T) {
	ev := &model.MessageEvent{DeliveryAttempt: 5}
	gt.Bool(t, ingest.DeliveryAttemptExceeded(ev, 5)).True()
	gt.Bool(t, ingest.DeliveryAttemptExceeded(ev, 6)).False()
	gt.Bool(t, ingest.DeliveryAttemptExceeded(ev, 0)).False()
}
