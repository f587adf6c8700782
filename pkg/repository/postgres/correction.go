package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/m-mizutani/goerr/v2"
	"github.com/projectloop/mailgrouper/pkg/domain/model"
)

type correctionRepository struct {
	pool *pgxpool.Pool
}

func (r *correctionRepository) Append(ctx context.Context, c *model.Correction) error {
	if c.ID == "" {
		c.ID = model.CorrectionID(uuid.NewString())
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(c)
	if err != nil {
		return goerr.Wrap(err, "failed to marshal correction")
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO corrections (id, user_id, project_id, processed, created_at, data)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.UserID, c.ProjectID, c.Processed, c.CreatedAt, data)
	if err != nil {
		return goerr.Wrap(err, "failed to append correction", goerr.V("id", c.ID))
	}
	return nil
}

func (r *correctionRepository) ListUnprocessed(ctx context.Context, userID model.UserID, limit int) ([]*model.Correction, error) {
	query := `SELECT data FROM corrections WHERE user_id = $1 AND NOT processed ORDER BY created_at ASC`
	var rows pgx.Rows
	var err error
	if limit > 0 {
		rows, err = r.pool.Query(ctx, query+` LIMIT $2`, userID, limit)
	} else {
		rows, err = r.pool.Query(ctx, query, userID)
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list unprocessed corrections")
	}
	defer rows.Close()
	return scanCorrections(rows)
}

func (r *correctionRepository) MarkProcessed(ctx context.Context, userID model.UserID, id model.CorrectionID) error {
	_, err := r.pool.Exec(ctx, `UPDATE corrections SET processed = true WHERE id = $1`, id)
	if err != nil {
		return goerr.Wrap(err, "failed to mark correction processed", goerr.V("id", id))
	}
	return nil
}

func (r *correctionRepository) ListByProject(ctx context.Context, userID model.UserID, projectID model.ProjectID) ([]*model.Correction, error) {
	rows, err := r.pool.Query(ctx, `SELECT data FROM corrections WHERE user_id = $1 AND project_id = $2`, userID, projectID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list corrections by project")
	}
	defer rows.Close()
	return scanCorrections(rows)
}

func scanCorrections(rows pgx.Rows) ([]*model.Correction, error) {
	var out []*model.Correction
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, goerr.Wrap(err, "failed to scan correction")
		}
		var c model.Correction
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, goerr.Wrap(err, "failed to decode correction")
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}
