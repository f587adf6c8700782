package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/m-mizutani/goerr/v2"
	"github.com/projectloop/mailgrouper/pkg/domain/interfaces"
	"github.com/projectloop/mailgrouper/pkg/domain/model"
)

type watchRepository struct {
	pool *pgxpool.Pool
}

func (r *watchRepository) Put(ctx context.Context, w *model.WatchSubscription) error {
	now := time.Now().UTC()
	if w.CreatedAt.IsZero() {
		w.CreatedAt = now
	}
	w.UpdatedAt = now
	data, err := json.Marshal(w)
	if err != nil {
		return goerr.Wrap(err, "failed to marshal watch")
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO watches (user_id, data) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET data = $2`, w.UserID, data)
	if err != nil {
		return goerr.Wrap(err, "failed to put watch", goerr.V("userID", w.UserID))
	}
	return nil
}

func (r *watchRepository) Get(ctx context.Context, userID model.UserID) (*model.WatchSubscription, error) {
	var data []byte
	err := r.pool.QueryRow(ctx, `SELECT data FROM watches WHERE user_id = $1`, userID).Scan(&data)
	if err == pgx.ErrNoRows {
		return nil, goerr.Wrap(interfaces.ErrNotFound, "watch not found", goerr.V("userID", userID))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get watch", goerr.V("userID", userID))
	}
	var w model.WatchSubscription
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, goerr.Wrap(err, "failed to decode watch")
	}
	return &w, nil
}

func (r *watchRepository) ListDueForRenewal(ctx context.Context, margin time.Duration, now time.Time) ([]*model.WatchSubscription, error) {
	rows, err := r.pool.Query(ctx, `SELECT data FROM watches`)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list watches")
	}
	defer rows.Close()

	var out []*model.WatchSubscription
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, goerr.Wrap(err, "failed to scan watch")
		}
		var w model.WatchSubscription
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, goerr.Wrap(err, "failed to decode watch")
		}
		if w.NeedsRenewal(margin, now) {
			out = append(out, &w)
		}
	}
	return out, rows.Err()
}

func (r *watchRepository) Delete(ctx context.Context, userID model.UserID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM watches WHERE user_id = $1`, userID)
	if err != nil {
		return goerr.Wrap(err, "failed to delete watch", goerr.V("userID", userID))
	}
	if tag.RowsAffected() == 0 {
		return goerr.Wrap(interfaces.ErrNotFound, "watch not found", goerr.V("userID", userID))
	}
	return nil
}
