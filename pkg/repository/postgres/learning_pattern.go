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
)

type learningPatternRepository struct {
	pool *pgxpool.Pool
}

func (r *learningPatternRepository) Put(ctx context.Context, p *model.LearningPattern) error {
	now := time.Now().UTC()
	if p.ID == "" {
		p.ID = model.LearningPatternID(uuid.NewString())
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	data, err := json.Marshal(p)
	if err != nil {
		return goerr.Wrap(err, "failed to marshal learning pattern")
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO learning_patterns (id, user_id, active, data)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET active = $3, data = $4`,
		p.ID, p.UserID, p.Active, data)
	if err != nil {
		return goerr.Wrap(err, "failed to put learning pattern", goerr.V("id", p.ID))
	}
	return nil
}

func (r *learningPatternRepository) ListActive(ctx context.Context, userID model.UserID) ([]*model.LearningPattern, error) {
	rows, err := r.pool.Query(ctx, `SELECT data FROM learning_patterns WHERE user_id = $1 AND active`, userID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list learning patterns")
	}
	defer rows.Close()

	var out []*model.LearningPattern
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, goerr.Wrap(err, "failed to scan learning pattern")
		}
		var p model.LearningPattern
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, goerr.Wrap(err, "failed to decode learning pattern")
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

func (r *learningPatternRepository) get(ctx context.Context, id model.LearningPatternID) (*model.LearningPattern, error) {
	var data []byte
	err := r.pool.QueryRow(ctx, `SELECT data FROM learning_patterns WHERE id = $1`, id).Scan(&data)
	if err == pgx.ErrNoRows {
		return nil, goerr.Wrap(interfaces.ErrNotFound, "learning pattern not found", goerr.V("id", id))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get learning pattern", goerr.V("id", id))
	}
	var p model.LearningPattern
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, goerr.Wrap(err, "failed to decode learning pattern")
	}
	return &p, nil
}

func (r *learningPatternRepository) IncrementUsage(ctx context.Context, userID model.UserID, id model.LearningPatternID) error {
	p, err := r.get(ctx, id)
	if err != nil {
		return err
	}
	p.UsageCount++
	return r.Put(ctx, p)
}

func (r *learningPatternRepository) Deactivate(ctx context.Context, userID model.UserID, id model.LearningPatternID) error {
	p, err := r.get(ctx, id)
	if err != nil {
		return err
	}
	p.Active = false
	return r.Put(ctx, p)
}
