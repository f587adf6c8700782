package memory

import (
	"context"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/projectloop/mailgrouper/pkg/domain/interfaces"
	"github.com/projectloop/mailgrouper/pkg/domain/model"
)

type watchRepository struct {
	mu    sync.RWMutex
	byUser map[model.UserID]*model.WatchSubscription
}

func newWatchRepository() *watchRepository {
	return &watchRepository{byUser: make(map[model.UserID]*model.WatchSubscription)}
}

func (r *watchRepository) Put(ctx context.Context, w *model.WatchSubscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *w
	now := time.Now().UTC()
	if existing, exists := r.byUser[w.UserID]; exists {
		cp.CreatedAt = existing.CreatedAt
	} else {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	r.byUser[w.UserID] = &cp
	return nil
}

func (r *watchRepository) Get(ctx context.Context, userID model.UserID) (*model.WatchSubscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	w, exists := r.byUser[userID]
	if !exists {
		return nil, goerr.Wrap(interfaces.ErrNotFound, "watch not found", goerr.V("userID", userID))
	}
	cp := *w
	return &cp, nil
}

func (r *watchRepository) ListDueForRenewal(ctx context.Context, margin time.Duration, now time.Time) ([]*model.WatchSubscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*model.WatchSubscription
	for _, w := range r.byUser {
		if w.NeedsRenewal(margin, now) {
			cp := *w
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *watchRepository) Delete(ctx context.Context, userID model.UserID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byUser[userID]; !exists {
		return goerr.Wrap(interfaces.ErrNotFound, "watch not found", goerr.V("userID", userID))
	}
	delete(r.byUser, userID)
	return nil
}
