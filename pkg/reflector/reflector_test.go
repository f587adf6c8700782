package reflector_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/projectloop/mailgrouper/pkg/domain/interfaces"
	"github.com/projectloop/mailgrouper/pkg/domain/model"
	"github.com/projectloop/mailgrouper/pkg/queue"
	"github.com/projectloop/mailgrouper/pkg/reflector"
	"github.com/projectloop/mailgrouper/pkg/repository/memory"
)

const userID = model.UserID("u1")

// fakeProvider satisfies interfaces.ProviderClient with only the label
// operations reflector calls implemented.
type fakeProvider struct {
	interfaces.ProviderClient

	mu sync.Mutex

	labels      []interfaces.Label
	createCalls int
	applyCalls  []string   // message ids ModifyMessage was called with, add-side
	removeCalls []string   // message ids ModifyMessage was called with, remove-side
	batchCalls  [][]model.MessageID
	modifyErr   error
}

func (f *fakeProvider) ListLabels(ctx context.Context, userID model.UserID) ([]interfaces.Label, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]interfaces.Label(nil), f.labels...), nil
}

func (f *fakeProvider) CreateLabel(ctx context.Context, userID model.UserID, name string) (interfaces.Label, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	l := interfaces.Label{ID: "generated-" + name, Name: name}
	f.labels = append(f.labels, l)
	return l, nil
}

func (f *fakeProvider) ModifyMessage(ctx context.Context, userID model.UserID, id model.MessageID, add, remove []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.modifyErr != nil {
		return f.modifyErr
	}
	if len(add) > 0 {
		f.applyCalls = append(f.applyCalls, string(id))
	}
	if len(remove) > 0 {
		f.removeCalls = append(f.removeCalls, string(id))
	}
	return nil
}

func (f *fakeProvider) BatchModify(ctx context.Context, userID model.UserID, ids []model.MessageID, add, remove []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := append([]model.MessageID(nil), ids...)
	f.batchCalls = append(f.batchCalls, cp)
	return nil
}

func TestEnsureLabelFindsExistingCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	provider := &fakeProvider{labels: []interfaces.Label{{ID: "L1", Name: "Project: Foo"}}}
	r := reflector.New(repo.Queue(), queue.Config{}, provider, repo.Project(), repo.Mapping(), reflector.Config{})

	id, err := r.EnsureLabel(ctx, userID, "project: foo")
	gt.NoError(t, err).Required()
	gt.Value(t, id).Equal("L1")
	gt.Value(t, provider.createCalls).Equal(0)
}

func TestEnsureLabelCreatesWhenMissingAndCaches(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	provider := &fakeProvider{}
	r := reflector.New(repo.Queue(), queue.Config{}, provider, repo.Project(), repo.Mapping(), reflector.Config{})

	id1, err := r.EnsureLabel(ctx, userID, "Project: Bar")
	gt.NoError(t, err).Required()
	gt.Value(t, provider.createCalls).Equal(1)

	id2, err := r.EnsureLabel(ctx, userID, "Project: Bar")
	gt.NoError(t, err).Required()
	gt.Value(t, id2).Equal(id1)
	gt.Value(t, provider.createCalls).Equal(1)
}

func TestRemoveRefusesSystemLabel(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	provider := &fakeProvider{}
	r := reflector.New(repo.Queue(), queue.Config{}, provider, repo.Project(), repo.Mapping(), reflector.Config{})

	err := r.Remove(ctx, userID, "m1", "INBOX")
	gt.Error(t, err)
	gt.Value(t, len(provider.removeCalls)).Equal(0)
}

func TestApplyThreadBatchesAtBatchMax(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	provider := &fakeProvider{}
	r := reflector.New(repo.Queue(), queue.Config{}, provider, repo.Project(), repo.Mapping(), reflector.Config{BatchMax: 2})

	for _, id := range []model.MessageID{"m1", "m2", "m3"} {
		gt.NoError(t, repo.Mapping().Put(ctx, userID, &model.EmailProjectMapping{
			UserID: userID, MessageID: id, ThreadID: "t1", Active: true,
		})).Required()
	}

	gt.NoError(t, r.ApplyThread(ctx, userID, "t1", "L1")).Required()
	gt.Array(t, provider.batchCalls).Length(2)
	gt.Value(t, len(provider.batchCalls[0])).Equal(2)
	gt.Value(t, len(provider.batchCalls[1])).Equal(1)
}

func TestReflectionQueueAppliesLabelAndClearsPending(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	provider := &fakeProvider{}
	r := reflector.New(repo.Queue(), queue.Config{PollInterval: 5 * time.Millisecond, Lease: time.Second}, provider, repo.Project(), repo.Mapping(), reflector.Config{})

	_, err := repo.Project().Create(ctx, userID, &model.Project{ID: "p1", UserID: userID, Name: "12 Baker St"})
	gt.NoError(t, err).Required()
	gt.NoError(t, repo.Mapping().Put(ctx, userID, &model.EmailProjectMapping{
		UserID: userID, MessageID: "m1", ProjectID: "p1", Active: true, ReflectionPending: true,
	})).Required()

	payload, err := json.Marshal(model.ReflectionTask{MessageID: "m1", ProjectID: "p1"})
	gt.NoError(t, err).Required()
	_, err = repo.Queue().Enqueue(ctx, &model.QueueItem{Queue: model.QueueReflection, UserID: userID, Payload: payload})
	gt.NoError(t, err).Required()

	runCtx, cancel := context.WithTimeout(ctx, 150*time.Millisecond)
	defer cancel()
	go r.Run(runCtx)
	<-runCtx.Done()

	gt.Array(t, provider.applyCalls).Length(1)
	gt.Value(t, provider.applyCalls[0]).Equal("m1")

	m, err := repo.Mapping().GetActive(ctx, userID, "m1")
	gt.NoError(t, err).Required()
	gt.Bool(t, m.ReflectionPending).False()
}

func TestHandleFlagsPendingOnFinalAttemptFailure(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	provider := &fakeProvider{modifyErr: errors.New("boom")}
	r := reflector.New(repo.Queue(), queue.Config{PollInterval: 5 * time.Millisecond, Lease: time.Second}, provider, repo.Project(), repo.Mapping(), reflector.Config{})

	_, err := repo.Project().Create(ctx, userID, &model.Project{ID: "p1", UserID: userID, Name: "12 Baker St"})
	gt.NoError(t, err).Required()
	gt.NoError(t, repo.Mapping().Put(ctx, userID, &model.EmailProjectMapping{
		UserID: userID, MessageID: "m1", ProjectID: "p1", Active: true,
	})).Required()

	payload, err := json.Marshal(model.ReflectionTask{MessageID: "m1", ProjectID: "p1"})
	gt.NoError(t, err).Required()
	_, err = repo.Queue().Enqueue(ctx, &model.QueueItem{
		Queue: model.QueueReflection, UserID: userID, Payload: payload, MaxAttempts: 1,
	})
	gt.NoError(t, err).Required()

	runCtx, cancel := context.WithTimeout(ctx, 150*time.Millisecond)
	defer cancel()
	go r.Run(runCtx)
	<-runCtx.Done()

	m, err := repo.Mapping().GetActive(ctx, userID, "m1")
	gt.NoError(t, err).Required()
	gt.Bool(t, m.ReflectionPending).True()

	stats, err := r.Stats(ctx)
	gt.NoError(t, err).Required()
	gt.Value(t, stats.Dead).Equal(1)
}

func TestReconcileReEnqueuesPendingMappings(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	provider := &fakeProvider{}
	r := reflector.New(repo.Queue(), queue.Config{}, provider, repo.Project(), repo.Mapping(), reflector.Config{})

	for _, id := range []model.MessageID{"m1", "m2"} {
		gt.NoError(t, repo.Mapping().Put(ctx, userID, &model.EmailProjectMapping{
			UserID: userID, MessageID: id, ProjectID: "p1", Active: true, ReflectionPending: true,
		})).Required()
	}

	n, err := r.Reconcile(ctx, userID)
	gt.NoError(t, err).Required()
	gt.Value(t, n).Equal(2)

	stats, err := r.Stats(ctx)
	gt.NoError(t, err).Required()
	gt.Value(t, stats.Pending).Equal(2)
}
