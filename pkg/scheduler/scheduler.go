// Package scheduler implements C10: a set of independent jittered tick
// loops driving every other periodic job in the system — watch renewal and
// re-registration (C3), reflection reconciliation (C8), correction
// learning (C9), and retroactive-scan slice issuance (C6). Each loop's
// Start/Stop/run shape is grounded on the teacher's
// pkg/service/worker.SlackUserRefreshWorker, generalized from one refresh
// job to several sharing a lifecycle, each with its own interval.
package scheduler

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/m-mizutani/goerr/v2"

	"github.com/projectloop/mailgrouper/pkg/domain/interfaces"
	"github.com/projectloop/mailgrouper/pkg/domain/model"
	"github.com/projectloop/mailgrouper/pkg/utils/errutil"
	"github.com/projectloop/mailgrouper/pkg/utils/logging"
)

// WatchDriver is the C3 seam the scheduler drives: subscription renewal
// and (re-)registering active users' poll loops. watch.Coordinator
// satisfies it.
type WatchDriver interface {
	RenewDue(ctx context.Context) error
	Run(ctx context.Context, userIDs []model.UserID)
}

// ReflectDriver is the C8 seam: retrying reflection-pending mappings.
// reflector.Reflector satisfies it.
type ReflectDriver interface {
	Reconcile(ctx context.Context, userID model.UserID) (int, error)
}

// LearnDriver is the C9 seam: turning accumulated corrections into
// LearningPatterns. correction.Store satisfies it.
type LearnDriver interface {
	Learn(ctx context.Context, userID model.UserID) (int, error)
}

// ScanEnqueuer is the C6 seam a retroactive scan slice is handed to.
// analysis.Queue satisfies it.
type ScanEnqueuer interface {
	EnqueueRetroactiveScanSlice(ctx context.Context, userID model.UserID, task model.ProcessingTask, priority int) error
}

// Config tunes every tick interval plus the retroactive-scan slicing
// width. Zero values fall back to spec defaults. Each tick's actual delay
// is jittered by up to Jitter so many users' work doesn't line up on the
// same instant.
type Config struct {
	RenewInterval      time.Duration
	ReflectInterval    time.Duration
	LearnInterval      time.Duration
	RetroInterval      time.Duration
	RetroScanSliceDays int
	ScanPriority       int
	Jitter             time.Duration
}

func (c Config) withDefaults() Config {
	if c.RenewInterval == 0 {
		c.RenewInterval = 15 * time.Minute
	}
	if c.ReflectInterval == 0 {
		c.ReflectInterval = 5 * time.Minute
	}
	if c.LearnInterval == 0 {
		c.LearnInterval = 10 * time.Minute
	}
	if c.RetroInterval == 0 {
		c.RetroInterval = time.Minute
	}
	if c.RetroScanSliceDays == 0 {
		c.RetroScanSliceDays = 7 // RETRO_SCAN_SLICE_DAYS default
	}
	if c.ScanPriority == 0 {
		c.ScanPriority = 8
	}
	if c.Jitter == 0 {
		c.Jitter = 10 * time.Second
	}
	return c
}

func (c Config) jittered(base time.Duration) time.Duration {
	if c.Jitter <= 0 {
		return base
	}
	return base + time.Duration(rand.Int63n(int64(c.Jitter)))
}

// Scheduler is the C10 service. Every per-user unit of work runs behind a
// singleflight key so a slow run for one user never overlaps with the
// next tick's attempt at the same user's same job (spec §4.10).
type Scheduler struct {
	users      interfaces.UserRepository
	scanConfig interfaces.ScanConfigRepository
	watch      WatchDriver
	reflect    ReflectDriver
	learn      LearnDriver
	scan       ScanEnqueuer
	cfg        Config

	sf singleflight.Group

	stopCh chan struct{}
	doneCh chan struct{}
	wg     sync.WaitGroup
}

func New(users interfaces.UserRepository, scanConfig interfaces.ScanConfigRepository, watch WatchDriver, reflect ReflectDriver, learn LearnDriver, scan ScanEnqueuer, cfg Config) *Scheduler {
	return &Scheduler{
		users:      users,
		scanConfig: scanConfig,
		watch:      watch,
		reflect:    reflect,
		learn:      learn,
		scan:       scan,
		cfg:        cfg.withDefaults(),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// RequestRetroactiveScan records a pending retroactive scan for userID
// covering [start, end), per the `POST /scan/retroactive` contract (spec
// §6). The retro tick loop advances the cursor RetroScanSliceDays at a
// time until it reaches end.
func (s *Scheduler) RequestRetroactiveScan(ctx context.Context, userID model.UserID, start, end time.Time) error {
	if !start.Before(end) {
		return goerr.Wrap(interfaces.ErrInvalidInput, "scan start must precede end", goerr.V("start", start), goerr.V("end", end))
	}
	cfg, err := s.scanConfig.Get(ctx, userID)
	if err != nil {
		return goerr.Wrap(err, "load scan config", goerr.V("user_id", userID))
	}
	cfg.UserID = userID
	cfg.RetroScanCursor = start
	cfg.RetroScanUntil = end
	return s.scanConfig.Put(ctx, cfg)
}

// Start launches every tick loop in its own goroutine. Each does an
// immediate first run before waiting on its ticker, matching the
// teacher's worker shape.
func (s *Scheduler) Start(ctx context.Context) {
	s.loop(ctx, s.cfg.RenewInterval, s.runRenew)
	s.loop(ctx, s.cfg.ReflectInterval, s.runReflect)
	s.loop(ctx, s.cfg.LearnInterval, s.runLearn)
	s.loop(ctx, s.cfg.RetroInterval, s.runRetro)
}

// Stop signals every loop to exit and waits for them to do so.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, interval time.Duration, tick func(ctx context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		tick(ctx)
		timer := time.NewTimer(s.cfg.jittered(interval))
		defer timer.Stop()
		for {
			select {
			case <-timer.C:
				tick(ctx)
				timer.Reset(s.cfg.jittered(interval))
			case <-s.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (s *Scheduler) activeUserIDs(ctx context.Context) ([]model.UserID, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "list users")
	}
	ids := make([]model.UserID, 0, len(users))
	for _, u := range users {
		if u.Active && !u.AuthExpired {
			ids = append(ids, u.ID)
		}
	}
	return ids, nil
}

func (s *Scheduler) runRenew(ctx context.Context) {
	if err := s.watch.RenewDue(ctx); err != nil {
		errutil.Handle(ctx, err, "renew due watches failed")
	}
	ids, err := s.activeUserIDs(ctx)
	if err != nil {
		errutil.Handle(ctx, err, "list active users for watch registration failed")
		return
	}
	s.watch.Run(ctx, ids)
}

func (s *Scheduler) runReflect(ctx context.Context) {
	s.forEachActiveUser(ctx, "reflect", func(ctx context.Context, userID model.UserID) {
		if _, err := s.reflect.Reconcile(ctx, userID); err != nil {
			errutil.Handle(ctx, err, "reflection reconcile failed")
		}
	})
}

func (s *Scheduler) runLearn(ctx context.Context) {
	s.forEachActiveUser(ctx, "learn", func(ctx context.Context, userID model.UserID) {
		if _, err := s.learn.Learn(ctx, userID); err != nil {
			errutil.Handle(ctx, err, "correction learning pass failed")
		}
	})
}

func (s *Scheduler) runRetro(ctx context.Context) {
	s.forEachActiveUser(ctx, "retro", func(ctx context.Context, userID model.UserID) {
		if err := s.advanceRetroScan(ctx, userID); err != nil {
			errutil.Handle(ctx, err, "retroactive scan slice issuance failed")
		}
	})
}

// forEachActiveUser dispatches job(userID) for every active user, one
// goroutine each, coalesced through singleflight on "job:userID" so a run
// still in flight from a prior tick absorbs this tick's attempt instead of
// running concurrently with it.
func (s *Scheduler) forEachActiveUser(ctx context.Context, job string, fn func(ctx context.Context, userID model.UserID)) {
	ids, err := s.activeUserIDs(ctx)
	if err != nil {
		errutil.Handle(ctx, err, "list active users failed")
		return
	}
	for _, userID := range ids {
		userID := userID
		key := job + ":" + string(userID)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			_, _, _ = s.sf.Do(key, func() (interface{}, error) {
				fn(ctx, userID)
				return nil, nil
			})
		}()
	}
}

// advanceRetroScan issues at most one RetroScanSliceDays-wide slice for
// userID if a scan is pending, then persists the advanced cursor.
func (s *Scheduler) advanceRetroScan(ctx context.Context, userID model.UserID) error {
	cfg, err := s.scanConfig.Get(ctx, userID)
	if err != nil {
		return goerr.Wrap(err, "load scan config", goerr.V("user_id", userID))
	}
	if !cfg.RetroScanPending() {
		return nil
	}

	sliceEnd := cfg.RetroScanCursor.AddDate(0, 0, s.cfg.RetroScanSliceDays)
	if sliceEnd.After(cfg.RetroScanUntil) {
		sliceEnd = cfg.RetroScanUntil
	}

	task := model.ProcessingTask{
		UserID:     userID,
		RangeStart: cfg.RetroScanCursor,
		RangeEnd:   sliceEnd,
	}
	if err := s.scan.EnqueueRetroactiveScanSlice(ctx, userID, task, s.cfg.ScanPriority); err != nil {
		return goerr.Wrap(err, "enqueue retroactive scan slice", goerr.V("user_id", userID))
	}

	cfg.RetroScanCursor = sliceEnd
	if err := s.scanConfig.Put(ctx, cfg); err != nil {
		return goerr.Wrap(err, "persist scan cursor", goerr.V("user_id", userID))
	}
	if !cfg.RetroScanPending() {
		logging.From(ctx).Info("retroactive scan complete", "user_id", userID, "through", sliceEnd)
	}
	return nil
}
