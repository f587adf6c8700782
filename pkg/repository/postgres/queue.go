package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/m-mizutani/goerr/v2"
	"github.com/projectloop/mailgrouper/pkg/domain/interfaces"
	"github.com/projectloop/mailgrouper/pkg/domain/model"
	"github.com/projectloop/mailgrouper/pkg/domain/types"
)

type queueRepository struct {
	pool *pgxpool.Pool
}

func (r *queueRepository) Enqueue(ctx context.Context, item *model.QueueItem) (*model.QueueItem, error) {
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
	data, err := json.Marshal(item)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal queue item")
	}

	if item.DedupKey != "" {
		var existingData []byte
		err := r.pool.QueryRow(ctx, `
			SELECT data FROM queue_items WHERE queue = $1 AND user_id = $2 AND dedup_key = $3`,
			item.Queue, item.UserID, item.DedupKey).Scan(&existingData)
		if err == nil {
			var existing model.QueueItem
			if err := json.Unmarshal(existingData, &existing); err != nil {
				return nil, goerr.Wrap(err, "failed to decode existing queue item")
			}
			if item.Priority > existing.Priority {
				if _, err := r.pool.Exec(ctx, `UPDATE queue_items SET priority = $2 WHERE id = $1`, existing.ID, item.Priority); err != nil {
					return nil, goerr.Wrap(err, "failed to bump priority")
				}
				existing.Priority = item.Priority
			}
			return &existing, nil
		} else if err != pgx.ErrNoRows {
			return nil, goerr.Wrap(err, "failed to look up dedup key")
		}
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO queue_items (id, queue, user_id, dedup_key, status, priority, next_visible_at, created_at, data)
		VALUES ($1, $2, $3, $4, $5, $6, now(), $7, $8)`,
		item.ID, item.Queue, item.UserID, item.DedupKey, string(item.Status), item.Priority, item.CreatedAt, data)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to enqueue item", goerr.V("id", item.ID))
	}
	return item, nil
}

func (r *queueRepository) Reserve(ctx context.Context, queue model.QueueName, owner string, n int, lease time.Duration) ([]*model.QueueItem, error) {
	now := time.Now().UTC()
	rows, err := r.pool.Query(ctx, `
		SELECT id, data FROM queue_items
		WHERE queue = $1 AND status = $2 AND next_visible_at <= now()
		ORDER BY priority ASC, created_at ASC
		LIMIT $3
		FOR UPDATE SKIP LOCKED`,
		queue, string(types.QueueStatusPending), n)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to scan pending items")
	}

	type candidate struct {
		id   model.QueueItemID
		item model.QueueItem
	}
	var candidates []candidate
	for rows.Next() {
		var id string
		var data []byte
		if err := rows.Scan(&id, &data); err != nil {
			rows.Close()
			return nil, goerr.Wrap(err, "failed to scan queue item")
		}
		var it model.QueueItem
		if err := json.Unmarshal(data, &it); err != nil {
			rows.Close()
			return nil, goerr.Wrap(err, "failed to decode queue item")
		}
		candidates = append(candidates, candidate{id: model.QueueItemID(id), item: it})
	}
	rows.Close()

	out := make([]*model.QueueItem, 0, len(candidates))
	for _, c := range candidates {
		it := c.item
		it.Status = types.QueueStatusProcessing
		it.LeaseOwner = owner
		it.LeaseExpiresAt = now.Add(lease)
		it.Attempts++
		it.UpdatedAt = now
		data, err := json.Marshal(&it)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to marshal leased item")
		}
		_, err = r.pool.Exec(ctx, `
			UPDATE queue_items SET status = $2, priority = priority, data = $3, lease_expires_at = $4
			WHERE id = $1`, c.id, string(it.Status), data, it.LeaseExpiresAt)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to lease queue item", goerr.V("id", c.id))
		}
		out = append(out, &it)
	}
	return out, nil
}

func (r *queueRepository) Complete(ctx context.Context, id model.QueueItemID) error {
	tag, err := r.pool.Exec(ctx, `UPDATE queue_items SET status = $2 WHERE id = $1`, id, string(types.QueueStatusCompleted))
	if err != nil {
		return goerr.Wrap(err, "failed to complete queue item", goerr.V("id", id))
	}
	if tag.RowsAffected() == 0 {
		return goerr.Wrap(interfaces.ErrNotFound, "queue item not found", goerr.V("id", id))
	}
	return nil
}

func (r *queueRepository) Fail(ctx context.Context, id model.QueueItemID, errSummary string, retryable bool, nextVisibleAt time.Time, maxAttempts int) error {
	var data []byte
	err := r.pool.QueryRow(ctx, `SELECT data FROM queue_items WHERE id = $1`, id).Scan(&data)
	if err == pgx.ErrNoRows {
		return goerr.Wrap(interfaces.ErrNotFound, "queue item not found", goerr.V("id", id))
	}
	if err != nil {
		return goerr.Wrap(err, "failed to get queue item", goerr.V("id", id))
	}
	var it model.QueueItem
	if err := json.Unmarshal(data, &it); err != nil {
		return goerr.Wrap(err, "failed to decode queue item")
	}

	status := types.QueueStatusPending
	if !retryable || (maxAttempts > 0 && it.Attempts >= maxAttempts) {
		status = types.QueueStatusDead
	}
	it.Status = status
	it.ErrorSummary = errSummary
	it.NextVisibleAt = nextVisibleAt
	newData, err := json.Marshal(&it)
	if err != nil {
		return goerr.Wrap(err, "failed to marshal failed item")
	}
	_, err = r.pool.Exec(ctx, `UPDATE queue_items SET status = $2, next_visible_at = $3, data = $4 WHERE id = $1`,
		id, string(status), nextVisibleAt, newData)
	if err != nil {
		return goerr.Wrap(err, "failed to fail queue item", goerr.V("id", id))
	}
	return nil
}

func (r *queueRepository) PeekStats(ctx context.Context, queue model.QueueName) (interfaces.QueueStats, error) {
	var stats interfaces.QueueStats
	rows, err := r.pool.Query(ctx, `SELECT status, count(*) FROM queue_items WHERE queue = $1 GROUP BY status`, queue)
	if err != nil {
		return stats, goerr.Wrap(err, "failed to peek stats")
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return stats, goerr.Wrap(err, "failed to scan stats row")
		}
		switch types.QueueStatus(status) {
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
	return stats, rows.Err()
}

func (r *queueRepository) ListDead(ctx context.Context, queue model.QueueName, limit int) ([]*model.QueueItem, error) {
	query := `SELECT data FROM queue_items WHERE queue = $1 AND status = $2`
	var rows pgx.Rows
	var err error
	if limit > 0 {
		rows, err = r.pool.Query(ctx, query+` LIMIT $3`, queue, string(types.QueueStatusDead), limit)
	} else {
		rows, err = r.pool.Query(ctx, query, queue, string(types.QueueStatusDead))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list dead items")
	}
	defer rows.Close()

	var out []*model.QueueItem
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, goerr.Wrap(err, "failed to scan queue item")
		}
		var it model.QueueItem
		if err := json.Unmarshal(data, &it); err != nil {
			return nil, goerr.Wrap(err, "failed to decode queue item")
		}
		out = append(out, &it)
	}
	return out, rows.Err()
}
