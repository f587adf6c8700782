package scheduler_test

import (
	"context"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/projectloop/mailgrouper/pkg/domain/model"
	"github.com/projectloop/mailgrouper/pkg/repository/memory"
	"github.com/projectloop/mailgrouper/pkg/scheduler"
)

type fakeWatch struct {
	renewed chan struct{}
	ran     chan []model.UserID
}

func (f *fakeWatch) RenewDue(ctx context.Context) error {
	select {
	case f.renewed <- struct{}{}:
	default:
	}
	return nil
}

func (f *fakeWatch) Run(ctx context.Context, userIDs []model.UserID) {
	cp := append([]model.UserID(nil), userIDs...)
	select {
	case f.ran <- cp:
	default:
	}
}

type fakeReflect struct {
	done chan model.UserID
}

func (f *fakeReflect) Reconcile(ctx context.Context, userID model.UserID) (int, error) {
	f.done <- userID
	return 0, nil
}

type fakeLearn struct {
	done chan model.UserID
}

func (f *fakeLearn) Learn(ctx context.Context, userID model.UserID) (int, error) {
	f.done <- userID
	return 0, nil
}

type fakeScan struct {
	done chan model.ProcessingTask
}

func (f *fakeScan) EnqueueRetroactiveScanSlice(ctx context.Context, userID model.UserID, task model.ProcessingTask, priority int) error {
	f.done <- task
	return nil
}

type noopReflect struct{}

func (noopReflect) Reconcile(ctx context.Context, userID model.UserID) (int, error) { return 0, nil }

type noopLearn struct{}

func (noopLearn) Learn(ctx context.Context, userID model.UserID) (int, error) { return 0, nil }

type noopScan struct{}

func (noopScan) EnqueueRetroactiveScanSlice(ctx context.Context, userID model.UserID, task model.ProcessingTask, priority int) error {
	return nil
}

const longInterval = time.Hour

func recvUserIDs(t *testing.T, ch chan []model.UserID) []model.UserID {
	t.Helper()
	select {
	case ids := <-ch:
		return ids
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for watch.Run")
		return nil
	}
}

func TestSchedulerRenewLoopRegistersOnlyActiveUsers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo := memory.New()
	_, err := repo.User().Create(ctx, &model.User{ID: "u1", Active: true})
	gt.NoError(t, err).Required()
	_, err = repo.User().Create(ctx, &model.User{ID: "u2", Active: true})
	gt.NoError(t, err).Required()
	_, err = repo.User().Create(ctx, &model.User{ID: "u3", Active: false})
	gt.NoError(t, err).Required()

	watch := &fakeWatch{renewed: make(chan struct{}, 5), ran: make(chan []model.UserID, 5)}
	s := scheduler.New(repo.User(), repo.ScanConfig(), watch, noopReflect{}, noopLearn{}, noopScan{}, scheduler.Config{
		RenewInterval: 20 * time.Millisecond,
		ReflectInterval: longInterval, LearnInterval: longInterval, RetroInterval: longInterval,
		Jitter: time.Millisecond,
	})

	s.Start(ctx)
	defer s.Stop()

	select {
	case <-watch.renewed:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for RenewDue")
	}

	ids := recvUserIDs(t, watch.ran)
	gt.Array(t, ids).Length(2)
}

func TestSchedulerReflectAndLearnTickEveryActiveUser(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo := memory.New()
	_, err := repo.User().Create(ctx, &model.User{ID: "u1", Active: true})
	gt.NoError(t, err).Required()
	_, err = repo.User().Create(ctx, &model.User{ID: "u2", Active: true})
	gt.NoError(t, err).Required()

	reflect := &fakeReflect{done: make(chan model.UserID, 20)}
	learn := &fakeLearn{done: make(chan model.UserID, 20)}
	s := scheduler.New(repo.User(), repo.ScanConfig(), &fakeWatch{renewed: make(chan struct{}, 1), ran: make(chan []model.UserID, 1)}, reflect, learn, noopScan{}, scheduler.Config{
		RenewInterval: longInterval, RetroInterval: longInterval,
		ReflectInterval: 20 * time.Millisecond, LearnInterval: 20 * time.Millisecond,
		Jitter: time.Millisecond,
	})

	s.Start(ctx)
	defer s.Stop()

	seenReflect := map[model.UserID]bool{}
	for len(seenReflect) < 2 {
		select {
		case id := <-reflect.done:
			seenReflect[id] = true
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for reflect reconcile calls")
		}
	}

	seenLearn := map[model.UserID]bool{}
	for len(seenLearn) < 2 {
		select {
		case id := <-learn.done:
			seenLearn[id] = true
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for learn calls")
		}
	}

	gt.Bool(t, seenReflect["u1"]).True()
	gt.Bool(t, seenReflect["u2"]).True()
	gt.Bool(t, seenLearn["u1"]).True()
	gt.Bool(t, seenLearn["u2"]).True()
}

func TestSchedulerRetroScanSlicesUntilComplete(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo := memory.New()
	_, err := repo.User().Create(ctx, &model.User{ID: "u1", Active: true})
	gt.NoError(t, err).Required()

	scan := &fakeScan{done: make(chan model.ProcessingTask, 10)}
	s := scheduler.New(repo.User(), repo.ScanConfig(), &fakeWatch{renewed: make(chan struct{}, 1), ran: make(chan []model.UserID, 1)}, noopReflect{}, noopLearn{}, scan, scheduler.Config{
		RenewInterval: longInterval, ReflectInterval: longInterval, LearnInterval: longInterval,
		RetroInterval:      20 * time.Millisecond,
		RetroScanSliceDays: 7,
		Jitter:             time.Millisecond,
	})

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 10)
	gt.NoError(t, s.RequestRetroactiveScan(ctx, "u1", start, end)).Required()

	s.Start(ctx)
	defer s.Stop()

	var task1, task2 model.ProcessingTask
	select {
	case task1 = <-scan.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for first retro slice")
	}
	select {
	case task2 = <-scan.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for second retro slice")
	}

	gt.Value(t, task1.RangeStart).Equal(start)
	gt.Value(t, task1.RangeEnd).Equal(start.AddDate(0, 0, 7))
	gt.Value(t, task2.RangeStart).Equal(start.AddDate(0, 0, 7))
	gt.Value(t, task2.RangeEnd).Equal(end)

	cfg, err := repo.ScanConfig().Get(ctx, "u1")
	gt.NoError(t, err).Required()
	gt.Bool(t, cfg.RetroScanPending()).False()
}

func TestRequestRetroactiveScanRejectsBackwardsRange(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	s := scheduler.New(repo.User(), repo.ScanConfig(), &fakeWatch{renewed: make(chan struct{}, 1), ran: make(chan []model.UserID, 1)}, noopReflect{}, noopLearn{}, noopScan{}, scheduler.Config{})

	now := time.Now()
	err := s.RequestRetroactiveScan(ctx, "u1", now, now.Add(-time.Hour))
	gt.Error(t, err)
}
