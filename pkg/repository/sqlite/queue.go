package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/projectloop/mailgrouper/pkg/domain/interfaces"
	"github.com/projectloop/mailgrouper/pkg/domain/model"
	"github.com/projectloop/mailgrouper/pkg/domain/types"
)

type queueRepository struct {
	s *Sqlite
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

	if item.DedupKey != "" {
		var existingData string
		err := r.s.db.GetContext(ctx, &existingData, `
			SELECT data FROM queue_items WHERE queue = ? AND user_id = ? AND dedup_key = ?`,
			item.Queue, item.UserID, item.DedupKey)
		if err == nil {
			var existing model.QueueItem
			if err := json.Unmarshal([]byte(existingData), &existing); err != nil {
				return nil, goerr.Wrap(err, "failed to decode existing queue item")
			}
			if item.Priority > existing.Priority {
				if _, err := r.s.db.ExecContext(ctx, `UPDATE queue_items SET priority = ? WHERE id = ?`, item.Priority, existing.ID); err != nil {
					return nil, goerr.Wrap(err, "failed to bump priority")
				}
				existing.Priority = item.Priority
			}
			return &existing, nil
		} else if err != sql.ErrNoRows {
			return nil, goerr.Wrap(err, "failed to look up dedup key")
		}
	}

	data, err := json.Marshal(item)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal queue item")
	}
	_, err = r.s.db.ExecContext(ctx, `
		INSERT INTO queue_items (id, queue, user_id, dedup_key, status, priority, next_visible_at, created_at, data)
		VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, ?, ?)`,
		item.ID, item.Queue, item.UserID, item.DedupKey, string(item.Status), item.Priority, item.CreatedAt, string(data))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to enqueue item", goerr.V("id", item.ID))
	}
	return item, nil
}

// Reserve runs inside a transaction under the write-serialization lock
// already enforced by the single-open-connection pool, substituting for
// the FOR UPDATE SKIP LOCKED idiom that sqlite has no equivalent of.
func (r *queueRepository) Reserve(ctx context.Context, queue model.QueueName, owner string, n int, lease time.Duration) ([]*model.QueueItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := time.Now().UTC()
	tx, err := r.s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to begin reserve transaction")
	}
	defer tx.Rollback()

	type row struct {
		ID   string `db:"id"`
		Data string `db:"data"`
	}
	var rows []row
	err = tx.SelectContext(ctx, &rows, `
		SELECT id, data FROM queue_items
		WHERE queue = ? AND status = ? AND next_visible_at <= ?
		ORDER BY priority ASC, created_at ASC
		LIMIT ?`, queue, string(types.QueueStatusPending), now, n)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to scan pending items")
	}

	out := make([]*model.QueueItem, 0, len(rows))
	for _, rw := range rows {
		var it model.QueueItem
		if err := json.Unmarshal([]byte(rw.Data), &it); err != nil {
			return nil, goerr.Wrap(err, "failed to decode queue item")
		}
		it.Status = types.QueueStatusProcessing
		it.LeaseOwner = owner
		it.LeaseExpiresAt = now.Add(lease)
		it.Attempts++
		it.UpdatedAt = now
		data, err := json.Marshal(&it)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to marshal leased item")
		}
		_, err = tx.ExecContext(ctx, `UPDATE queue_items SET status = ?, data = ?, lease_expires_at = ? WHERE id = ?`,
			string(it.Status), string(data), it.LeaseExpiresAt, rw.ID)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to lease queue item", goerr.V("id", rw.ID))
		}
		out = append(out, &it)
	}

	if err := tx.Commit(); err != nil {
		return nil, goerr.Wrap(err, "failed to commit reserve transaction")
	}
	return out, nil
}

func (r *queueRepository) Complete(ctx context.Context, id model.QueueItemID) error {
	res, err := r.s.db.ExecContext(ctx, `UPDATE queue_items SET status = ? WHERE id = ?`, string(types.QueueStatusCompleted), id)
	if err != nil {
		return goerr.Wrap(err, "failed to complete queue item", goerr.V("id", id))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return goerr.Wrap(interfaces.ErrNotFound, "queue item not found", goerr.V("id", id))
	}
	return nil
}

func (r *queueRepository) Fail(ctx context.Context, id model.QueueItemID, errSummary string, retryable bool, nextVisibleAt time.Time, maxAttempts int) error {
	var data string
	err := r.s.db.GetContext(ctx, &data, `SELECT data FROM queue_items WHERE id = ?`, id)
	if err == sql.ErrNoRows {
		return goerr.Wrap(interfaces.ErrNotFound, "queue item not found", goerr.V("id", id))
	}
	if err != nil {
		return goerr.Wrap(err, "failed to get queue item", goerr.V("id", id))
	}
	var it model.QueueItem
	if err := json.Unmarshal([]byte(data), &it); err != nil {
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
	_, err = r.s.db.ExecContext(ctx, `UPDATE queue_items SET status = ?, next_visible_at = ?, data = ? WHERE id = ?`,
		string(status), nextVisibleAt, string(newData), id)
	if err != nil {
		return goerr.Wrap(err, "failed to fail queue item", goerr.V("id", id))
	}
	return nil
}

func (r *queueRepository) PeekStats(ctx context.Context, queue model.QueueName) (interfaces.QueueStats, error) {
	var stats interfaces.QueueStats
	type row struct {
		Status string `db:"status"`
		Count  int    `db:"count"`
	}
	var rows []row
	err := r.s.db.SelectContext(ctx, &rows, `SELECT status, count(*) as count FROM queue_items WHERE queue = ? GROUP BY status`, queue)
	if err != nil {
		return stats, goerr.Wrap(err, "failed to peek stats")
	}
	for _, rw := range rows {
		switch types.QueueStatus(rw.Status) {
		case types.QueueStatusPending:
			stats.Pending = rw.Count
		case types.QueueStatusProcessing:
			stats.Processing = rw.Count
		case types.QueueStatusCompleted:
			stats.Completed = rw.Count
		case types.QueueStatusFailed:
			stats.Failed = rw.Count
		case types.QueueStatusDead:
			stats.Dead = rw.Count
		}
	}
	return stats, nil
}

func (r *queueRepository) ListDead(ctx context.Context, queue model.QueueName, limit int) ([]*model.QueueItem, error) {
	query := `SELECT data FROM queue_items WHERE queue = ? AND status = ?`
	var rows []string
	var err error
	if limit > 0 {
		err = r.s.db.SelectContext(ctx, &rows, query+` LIMIT ?`, queue, string(types.QueueStatusDead), limit)
	} else {
		err = r.s.db.SelectContext(ctx, &rows, query, queue, string(types.QueueStatusDead))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list dead items")
	}
	out := make([]*model.QueueItem, 0, len(rows))
	for _, raw := range rows {
		var it model.QueueItem
		if err := json.Unmarshal([]byte(raw), &it); err != nil {
			return nil, goerr.Wrap(err, "failed to decode queue item")
		}
		out = append(out, &it)
	}
	return out, nil
}

var _ interfaces.QueueRepository = &queueRepository{}
