package watch_test

import (
	"context"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/projectloop/mailgrouper/pkg/domain/interfaces"
	"github.com/projectloop/mailgrouper/pkg/domain/model"
	"github.com/projectloop/mailgrouper/pkg/domain/types"
	"github.com/projectloop/mailgrouper/pkg/repository/memory"
	"github.com/projectloop/mailgrouper/pkg/watch"
)

const userID = model.UserID("u1")

type fakeProvider struct {
	interfaces.ProviderClient
	historyByCursor map[model.HistoryCursor]*interfaces.HistoryResult
}

func (f *fakeProvider) GetHistory(ctx context.Context, userID model.UserID, since model.HistoryCursor) (*interfaces.HistoryResult, error) {
	if r, ok := f.historyByCursor[since]; ok {
		return r, nil
	}
	return &interfaces.HistoryResult{NextCursor: since}, nil
}

func (f *fakeProvider) StartWatch(ctx context.Context, userID model.UserID, topic, labelFilter string) (*model.WatchSubscription, error) {
	return &model.WatchSubscription{UserID: userID, Kind: types.WatchKindPush, Topic: topic}, nil
}

func (f *fakeProvider) StopWatch(ctx context.Context, userID model.UserID) error { return nil }

type recordingEnqueuer struct {
	events []*model.MessageEvent
}

func (r *recordingEnqueuer) Enqueue(ctx context.Context, ev *model.MessageEvent, priority int) error {
	r.events = append(r.events, ev)
	return nil
}

func TestStartWatchPollingFallback(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	c := watch.New(repo, &fakeProvider{}, &recordingEnqueuer{}, watch.Config{})

	gt.NoError(t, c.StartWatch(ctx, userID, "", "")).Required()

	sub, err := repo.Watch().Get(ctx, userID)
	gt.NoError(t, err).Required()
	gt.Value(t, sub.Kind).Equal(types.WatchKindPolling)
}

func TestPollOnceEmitsOneEventPerNewMessage(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	provider := &fakeProvider{historyByCursor: map[model.HistoryCursor]*interfaces.HistoryResult{
		"": {NewMessageIDs: []model.MessageID{"m1", "m2"}, NextCursor: "c1"},
	}}
	enq := &recordingEnqueuer{}
	c := watch.New(repo, provider, enq, watch.Config{})

	gt.NoError(t, repo.Watch().Put(ctx, &model.WatchSubscription{UserID: userID, Kind: types.WatchKindPolling})).Required()

	gt.NoError(t, c.PollOnce(ctx, userID, time.Minute)).Required()
	gt.Array(t, enq.events).Length(2)

	sub, err := repo.Watch().Get(ctx, userID)
	gt.NoError(t, err).Required()
	gt.Value(t, sub.LastCursor).Equal(model.HistoryCursor("c1"))
}

func TestPollOnceSkipsRecentPushUser(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	provider := &fakeProvider{historyByCursor: map[model.HistoryCursor]*interfaces.HistoryResult{
		"": {NewMessageIDs: []model.MessageID{"m1"}, NextCursor: "c1"},
	}}
	enq := &recordingEnqueuer{}
	c := watch.New(repo, provider, enq, watch.Config{})

	gt.NoError(t, repo.Watch().Put(ctx, &model.WatchSubscription{
		UserID:          userID,
		Kind:            types.WatchKindPush,
		LastPushEventAt: time.Now(),
	})).Required()

	gt.NoError(t, c.PollOnce(ctx, userID, time.Hour)).Required()
	gt.Array(t, enq.events).Length(0)
}

func TestHandlePushSyncsHistory(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	provider := &fakeProvider{historyByCursor: map[model.HistoryCursor]*interfaces.HistoryResult{
		"": {NewMessageIDs: []model.MessageID{"m9"}, NextCursor: "c9"},
	}}
	enq := &recordingEnqueuer{}
	c := watch.New(repo, provider, enq, watch.Config{})

	gt.NoError(t, repo.Watch().Put(ctx, &model.WatchSubscription{UserID: userID, Kind: types.WatchKindPush})).Required()
	gt.NoError(t, c.HandlePush(ctx, userID)).Required()

	gt.Array(t, enq.events).Length(1)
	gt.Value(t, enq.events[0].Source).Equal(types.EventSourcePush)
}
