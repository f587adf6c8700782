package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/m-mizutani/goerr/v2"
	"github.com/projectloop/mailgrouper/pkg/domain/model"
)

type scanConfigRepository struct {
	pool *pgxpool.Pool
}

func (r *scanConfigRepository) Get(ctx context.Context, userID model.UserID) (*model.ScanConfig, error) {
	var data []byte
	err := r.pool.QueryRow(ctx, `SELECT data FROM scan_configs WHERE user_id = $1`, userID).Scan(&data)
	if err == pgx.ErrNoRows {
		return &model.ScanConfig{UserID: userID, MaxLookbackDays: 7, UpdatedAt: time.Now().UTC()}, nil
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get scan config", goerr.V("userID", userID))
	}
	var c model.ScanConfig
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, goerr.Wrap(err, "failed to decode scan config")
	}
	return &c, nil
}

func (r *scanConfigRepository) Put(ctx context.Context, c *model.ScanConfig) error {
	c.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(c)
	if err != nil {
		return goerr.Wrap(err, "failed to marshal scan config")
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO scan_configs (user_id, data) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET data = $2`, c.UserID, data)
	if err != nil {
		return goerr.Wrap(err, "failed to put scan config", goerr.V("userID", c.UserID))
	}
	return nil
}
