package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/projectloop/mailgrouper/pkg/domain/interfaces"
	"github.com/projectloop/mailgrouper/pkg/domain/model"
	"github.com/projectloop/mailgrouper/pkg/domain/types"
)

type dedupKey struct {
	queue  model.QueueName
	userID model.UserID
	key    string
}

type queueRepository struct {
	mu    sync.Mutex
	items map[model.QueueItemID]*model.QueueItem
	dedup map[dedupKey]model.QueueItemID
}

func newQueueRepository() *queueRepository {
	return &queueRepository{
		items: make(map[model.QueueItemID]*model.QueueItem),
		dedup: make(map[dedupKey]model.QueueItemID),
	}
}

func copyQueueItem(it *model.QueueItem) *model.QueueItem {
	cp := *it
	cp.Payload = append([]byte(nil), it.Payload...)
	return &cp
}

// enqueueLocked assumes mu is already held (used by ResolveAndPersist's
// buffered apply).
func (r *queueRepository) enqueueLocked(item *model.QueueItem) *model.QueueItem {
	now := time.Now().UTC()
	if item.DedupKey != "" {
		dk := dedupKey{queue: item.Queue, userID: item.UserID, key: item.DedupKey}
		if existingID, exists := r.dedup[dk]; exists {
			existing := r.items[existingID]
			if item.Priority > existing.Priority {
				existing.Priority = item.Priority
			}
			existing.UpdatedAt = now
			return copyQueueItem(existing)
		}
	}

	cp := copyQueueItem(item)
	if cp.ID == "" {
		cp.ID = model.QueueItemID(uuid.NewString())
	}
	if cp.Status == "" {
		cp.Status = types.QueueStatusPending
	}
	if cp.MaxAttempts == 0 {
		cp.MaxAttempts = 5
	}
	cp.CreatedAt = now
	cp.UpdatedAt = now
	r.items[cp.ID] = cp
	if item.DedupKey != "" {
		r.dedup[dedupKey{queue: item.Queue, userID: item.UserID, key: item.DedupKey}] = cp.ID
	}
	return copyQueueItem(cp)
}

func (r *queueRepository) Enqueue(ctx context.Context, item *model.QueueItem) (*model.QueueItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enqueueLocked(item), nil
}

func (r *queueRepository) Reserve(ctx context.Context, queue model.QueueName, owner string, n int, lease time.Duration) ([]*model.QueueItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	var candidates []*model.QueueItem
	for _, it := range r.items {
		if it.Queue != queue {
			continue
		}
		switch it.Status {
		case types.QueueStatusPending:
			if it.NextVisibleAt.After(now) {
				continue
			}
			candidates = append(candidates, it)
		case types.QueueStatusProcessing:
			if it.LeaseExpiresAt.Before(now) {
				candidates = append(candidates, it)
			}
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority < candidates[j].Priority
		}
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})

	if n > len(candidates) {
		n = len(candidates)
	}

	out := make([]*model.QueueItem, 0, n)
	for _, it := range candidates[:n] {
		it.Status = types.QueueStatusProcessing
		it.LeaseOwner = owner
		it.LeaseExpiresAt = now.Add(lease)
		it.Attempts++
		it.UpdatedAt = now
		out = append(out, copyQueueItem(it))
	}
	return out, nil
}

func (r *queueRepository) Complete(ctx context.Context, id model.QueueItemID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	it, exists := r.items[id]
	if !exists {
		return goerr.Wrap(interfaces.ErrNotFound, "queue item not found", goerr.V("id", id))
	}
	it.Status = types.QueueStatusCompleted
	it.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *queueRepository) Fail(ctx context.Context, id model.QueueItemID, errSummary string, retryable bool, nextVisibleAt time.Time, maxAttempts int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	it, exists := r.items[id]
	if !exists {
		return goerr.Wrap(interfaces.ErrNotFound, "queue item not found", goerr.V("id", id))
	}
	now := time.Now().UTC()
	it.ErrorSummary = errSummary
	it.UpdatedAt = now

	if !retryable || (maxAttempts > 0 && it.Attempts >= maxAttempts) {
		it.Status = types.QueueStatusDead
		return nil
	}
	it.Status = types.QueueStatusPending
	it.NextVisibleAt = nextVisibleAt
	return nil
}

func (r *queueRepository) PeekStats(ctx context.Context, queue model.QueueName) (interfaces.QueueStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var stats interfaces.QueueStats
	for _, it := range r.items {
		if it.Queue != queue {
			continue
		}
		switch it.Status {
		case types.QueueStatusPending:
			stats.Pending++
		case types.QueueStatusProcessing:
			stats.Processing++
		case types.QueueStatusCompleted:
			stats.Completed++
		case types.QueueStatusFailed:
			stats.Failed++
		case types.QueueStatusDead:
			stats.Dead++
		}
	}
	return stats, nil
}

func (r *queueRepository) ListDead(ctx context.Context, queue model.QueueName, limit int) ([]*model.QueueItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*model.QueueItem
	for _, it := range r.items {
		if it.Queue != queue || it.Status != types.QueueStatusDead {
			continue
		}
		out = append(out, copyQueueItem(it))
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}
