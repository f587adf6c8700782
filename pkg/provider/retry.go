package provider

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"google.golang.org/api/googleapi"
)

// backoff computes exponential delay with full jitter for transient retry
// attempts, the same shape pkg/queue uses for failed-item retries — this
// package can't import that one (it would create a domain-inverted
// dependency from provider back into the queue engine), so the arithmetic
// is duplicated rather than shared.
func backoff(attempt int, base, max time.Duration) time.Duration {
	d := base << uint(attempt-1)
	if d <= 0 || d > max {
		d = max
	}
	return time.Duration(rand.Int63n(int64(d) + 1))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// googleErr extracts the underlying *googleapi.Error, if any. Network
// failures, DNS errors and context deadlines never satisfy this and are
// treated as transient by isTransient below.
func googleErr(err error) *googleapi.Error {
	var ge *googleapi.Error
	if errors.As(err, &ge) {
		return ge
	}
	return nil
}

func isUnauthorized(err error) bool {
	ge := googleErr(err)
	return ge != nil && ge.Code == 401
}

func isRateLimited(err error) bool {
	ge := googleErr(err)
	return ge != nil && ge.Code == 429
}

// quotaReasons are the googleapi error reasons spec §4.2 treats as
// "403 quota_exceeded", fatal for the user until a cooldown elapses,
// distinct from a plain 403 (e.g. permission denied on a single call).
var quotaReasons = map[string]bool{
	"quotaExceeded":     true,
	"dailyLimitExceeded": true,
}

func isQuotaExceeded(err error) bool {
	ge := googleErr(err)
	if ge == nil || ge.Code != 403 {
		return false
	}
	for _, item := range ge.Errors {
		if quotaReasons[item.Reason] {
			return true
		}
	}
	return false
}

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	ge := googleErr(err)
	if ge == nil {
		// No structured status: network error, timeout, DNS failure.
		return true
	}
	return ge.Code >= 500
}
