package ratelimit_test

import (
	"context"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/projectloop/mailgrouper/pkg/domain/interfaces"
	"github.com/projectloop/mailgrouper/pkg/domain/model"
	"github.com/projectloop/mailgrouper/pkg/ratelimit"
)

func TestAcquireWithinBurst(t *testing.T) {
	l := ratelimit.New(ratelimit.Config{ReadRPS: 5, ReadBurst: 5})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		d := l.Acquire(ctx, model.UserID("u1"), interfaces.RateKindRead)
		gt.Bool(t, d.OK).True()
	}

	d := l.Acquire(ctx, model.UserID("u1"), interfaces.RateKindRead)
	gt.Bool(t, d.OK).False()
	gt.Number(t, d.RetryAfterMS).Greater(int64(0))
}

func TestAcquirePerUserIndependence(t *testing.T) {
	l := ratelimit.New(ratelimit.Config{ReadRPS: 1, ReadBurst: 1})
	ctx := context.Background()

	gt.Bool(t, l.Acquire(ctx, model.UserID("u1"), interfaces.RateKindRead).OK).True()
	gt.Bool(t, l.Acquire(ctx, model.UserID("u1"), interfaces.RateKindRead).OK).False()
	gt.Bool(t, l.Acquire(ctx, model.UserID("u2"), interfaces.RateKindRead).OK).True()
}

func TestAcquireReadWriteBucketsIndependent(t *testing.T) {
	l := ratelimit.New(ratelimit.Config{ReadRPS: 1, ReadBurst: 1, WriteRPS: 1, WriteBurst: 1})
	ctx := context.Background()

	gt.Bool(t, l.Acquire(ctx, model.UserID("u1"), interfaces.RateKindRead).OK).True()
	gt.Bool(t, l.Acquire(ctx, model.UserID("u1"), interfaces.RateKindWrite).OK).True()
}

func TestAcquireDailyCeiling(t *testing.T) {
	l := ratelimit.New(ratelimit.Config{ReadRPS: 1000, ReadBurst: 1000, DailyCeiling: 2})
	ctx := context.Background()

	gt.Bool(t, l.Acquire(ctx, model.UserID("u1"), interfaces.RateKindRead).OK).True()
	gt.Bool(t, l.Acquire(ctx, model.UserID("u1"), interfaces.RateKindRead).OK).True()
	gt.Bool(t, l.Acquire(ctx, model.UserID("u2"), interfaces.RateKindRead).OK).False()
}
