package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/projectloop/mailgrouper/pkg/domain/interfaces"
	"github.com/projectloop/mailgrouper/pkg/domain/model"
	"github.com/projectloop/mailgrouper/pkg/domain/types"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type queueRepository struct {
	client *firestore.Client
	prefix string
}

func (r *queueRepository) collection() string {
	if r.prefix != "" {
		return r.prefix + "_queue_items"
	}
	return "queue_items"
}

// Enqueue looks up an existing item by (queue, user, dedupKey) and bumps its
// priority rather than duplicating it (spec §4.4).
func (r *queueRepository) Enqueue(ctx context.Context, item *model.QueueItem) (*model.QueueItem, error) {
	if item.DedupKey != "" {
		iter := r.client.Collection(r.collection()).
			Where("Queue", "==", item.Queue).
			Where("UserID", "==", item.UserID).
			Where("DedupKey", "==", item.DedupKey).
			Limit(1).Documents(ctx)
		doc, err := iter.Next()
		iter.Stop()
		if err == nil {
			var existing model.QueueItem
			if err := doc.DataTo(&existing); err != nil {
				return nil, goerr.Wrap(err, "failed to decode existing queue item")
			}
			if item.Priority > existing.Priority {
				if _, err := doc.Ref.Update(ctx, []firestore.Update{
					{Path: "Priority", Value: item.Priority},
					{Path: "UpdatedAt", Value: time.Now().UTC()},
				}); err != nil {
					return nil, goerr.Wrap(err, "failed to bump priority")
				}
				existing.Priority = item.Priority
			}
			return &existing, nil
		} else if err != iterator.Done {
			return nil, goerr.Wrap(err, "failed to look up dedup key")
		}
	}

	now := time.Now().UTC()
	if item.ID == "" {
		item.ID = model.QueueItemID(uuid.NewString())
	}
	if item.Status == "" {
		item.Status = types.QueueStatusPending
	}
	if item.MaxAttempts == 0 {
		item.MaxAttempts = 5
	}
	item.CreatedAt = now
	item.UpdatedAt = now
	_, err := r.client.Collection(r.collection()).Doc(string(item.ID)).Create(ctx, item)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to enqueue item", goerr.V("id", item.ID))
	}
	return item, nil
}

func (r *queueRepository) Reserve(ctx context.Context, queue model.QueueName, owner string, n int, lease time.Duration) ([]*model.QueueItem, error) {
	iter := r.client.Collection(r.collection()).
		Where("Queue", "==", queue).
		Where("Status", "==", types.QueueStatusPending).
		OrderBy("Priority", firestore.Asc).
		OrderBy("CreatedAt", firestore.Asc).
		Limit(n).
		Documents(ctx)
	defer iter.Stop()

	now := time.Now().UTC()
	var out []*model.QueueItem
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to scan pending items")
		}
		var it model.QueueItem
		if err := doc.DataTo(&it); err != nil {
			return nil, goerr.Wrap(err, "failed to decode queue item")
		}
		if it.NextVisibleAt.After(now) {
			continue
		}
		it.Status = types.QueueStatusProcessing
		it.LeaseOwner = owner
		it.LeaseExpiresAt = now.Add(lease)
		it.Attempts++
		it.UpdatedAt = now
		if _, err := doc.Ref.Set(ctx, &it); err != nil {
			return nil, goerr.Wrap(err, "failed to lease queue item", goerr.V("id", it.ID))
		}
		out = append(out, &it)
	}
	return out, nil
}

func (r *queueRepository) Complete(ctx context.Context, id model.QueueItemID) error {
	_, err := r.client.Collection(r.collection()).Doc(string(id)).Update(ctx, []firestore.Update{
		{Path: "Status", Value: types.QueueStatusCompleted},
		{Path: "UpdatedAt", Value: time.Now().UTC()},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return goerr.Wrap(interfaces.ErrNotFound, "queue item not found", goerr.V("id", id))
		}
		return goerr.Wrap(err, "failed to complete queue item", goerr.V("id", id))
	}
	return nil
}

func (r *queueRepository) Fail(ctx context.Context, id model.QueueItemID, errSummary string, retryable bool, nextVisibleAt time.Time, maxAttempts int) error {
	ref := r.client.Collection(r.collection()).Doc(string(id))
	doc, err := ref.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return goerr.Wrap(interfaces.ErrNotFound, "queue item not found", goerr.V("id", id))
		}
		return goerr.Wrap(err, "failed to get queue item", goerr.V("id", id))
	}
	var it model.QueueItem
	if err := doc.DataTo(&it); err != nil {
		return goerr.Wrap(err, "failed to decode queue item", goerr.V("id", id))
	}

	updates := []firestore.Update{
		{Path: "ErrorSummary", Value: errSummary},
		{Path: "UpdatedAt", Value: time.Now().UTC()},
	}
	if !retryable || (maxAttempts > 0 && it.Attempts >= maxAttempts) {
		updates = append(updates, firestore.Update{Path: "Status", Value: types.QueueStatusDead})
	} else {
		updates = append(updates,
			firestore.Update{Path: "Status", Value: types.QueueStatusPending},
			firestore.Update{Path: "NextVisibleAt", Value: nextVisibleAt},
		)
	}
	if _, err := ref.Update(ctx, updates); err != nil {
		return goerr.Wrap(err, "failed to fail queue item", goerr.V("id", id))
	}
	return nil
}

func (r *queueRepository) PeekStats(ctx context.Context, queue model.QueueName) (interfaces.QueueStats, error) {
	var stats interfaces.QueueStats
	for _, s := range []types.QueueStatus{
		types.QueueStatusPending, types.QueueStatusProcessing,
		types.QueueStatusCompleted, types.QueueStatusFailed, types.QueueStatusDead,
	} {
		iter := r.client.Collection(r.collection()).
			Where("Queue", "==", queue).Where("Status", "==", s).Documents(ctx)
		count := 0
		for {
			_, err := iter.Next()
			if err == iterator.Done {
				break
			}
			if err != nil {
				iter.Stop()
				return stats, goerr.Wrap(err, "failed to count queue items")
			}
			count++
		}
		iter.Stop()
		switch s {
		case types.QueueStatusPending:
			stats.Pending = count
		case types.QueueStatusProcessing:
			stats.Processing = count
		case types.QueueStatusCompleted:
			stats.Completed = count
		case types.QueueStatusFailed:
			stats.Failed = count
		case types.QueueStatusDead:
			stats.Dead = count
		}
	}
	return stats, nil
}

func (r *queueRepository) ListDead(ctx context.Context, queue model.QueueName, limit int) ([]*model.QueueItem, error) {
	q := r.client.Collection(r.collection()).
		Where("Queue", "==", queue).
		Where("Status", "==", types.QueueStatusDead)
	if limit > 0 {
		q = q.Limit(limit)
	}
	iter := q.Documents(ctx)
	defer iter.Stop()

	var out []*model.QueueItem
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to list dead items")
		}
		var it model.QueueItem
		if err := doc.DataTo(&it); err != nil {
			return nil, goerr.Wrap(err, "failed to decode queue item")
		}
		out = append(out, &it)
	}
	return out, nil
}
