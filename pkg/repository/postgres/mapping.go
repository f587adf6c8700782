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

type mappingRepository struct {
	pool *pgxpool.Pool
}

func (r *mappingRepository) Put(ctx context.Context, userID model.UserID, m *model.EmailProjectMapping) error {
	m.UserID = userID
	m.UpdatedAt = time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = m.UpdatedAt
	}
	data, err := json.Marshal(m)
	if err != nil {
		return goerr.Wrap(err, "failed to marshal mapping")
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO mappings (user_id, message_id, thread_id, project_id, active, data)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, message_id) DO UPDATE
		SET thread_id = $3, project_id = $4, active = $5, data = $6`,
		userID, m.MessageID, m.ThreadID, m.ProjectID, m.Active, data)
	if err != nil {
		return goerr.Wrap(err, "failed to put mapping", goerr.V("messageID", m.MessageID))
	}
	return nil
}

func (r *mappingRepository) GetActive(ctx context.Context, userID model.UserID, messageID model.MessageID) (*model.EmailProjectMapping, error) {
	var data []byte
	err := r.pool.QueryRow(ctx, `SELECT data FROM mappings WHERE user_id = $1 AND message_id = $2 AND active`,
		userID, messageID).Scan(&data)
	if err == pgx.ErrNoRows {
		return nil, goerr.Wrap(interfaces.ErrNotFound, "active mapping not found", goerr.V("messageID", messageID))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get mapping", goerr.V("messageID", messageID))
	}
	var m model.EmailProjectMapping
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, goerr.Wrap(err, "failed to decode mapping")
	}
	return &m, nil
}

func (r *mappingRepository) ListByProject(ctx context.Context, userID model.UserID, projectID model.ProjectID) ([]*model.EmailProjectMapping, error) {
	rows, err := r.pool.Query(ctx, `SELECT data FROM mappings WHERE user_id = $1 AND project_id = $2`, userID, projectID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list mappings by project")
	}
	defer rows.Close()
	return scanMappings(rows)
}

func (r *mappingRepository) ListByThread(ctx context.Context, userID model.UserID, threadID model.ThreadID) ([]*model.EmailProjectMapping, error) {
	rows, err := r.pool.Query(ctx, `SELECT data FROM mappings WHERE user_id = $1 AND thread_id = $2`, userID, threadID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list mappings by thread")
	}
	defer rows.Close()
	return scanMappings(rows)
}

func (r *mappingRepository) ListReflectionPending(ctx context.Context, userID model.UserID) ([]*model.EmailProjectMapping, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT data FROM mappings
		WHERE user_id = $1 AND active AND (data->>'ReflectionPending')::boolean`, userID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list reflection-pending mappings")
	}
	defer rows.Close()
	return scanMappings(rows)
}

func (r *mappingRepository) Deactivate(ctx context.Context, userID model.UserID, messageID model.MessageID) error {
	tag, err := r.pool.Exec(ctx, `UPDATE mappings SET active = false WHERE user_id = $1 AND message_id = $2`, userID, messageID)
	if err != nil {
		return goerr.Wrap(err, "failed to deactivate mapping", goerr.V("messageID", messageID))
	}
	if tag.RowsAffected() == 0 {
		return goerr.Wrap(interfaces.ErrNotFound, "mapping not found", goerr.V("messageID", messageID))
	}
	return nil
}

func (r *mappingRepository) Repoint(ctx context.Context, userID model.UserID, messageIDs []model.MessageID, newProject model.ProjectID) error {
	for _, id := range messageIDs {
		_, err := r.pool.Exec(ctx, `
			UPDATE mappings SET project_id = $3, data = jsonb_set(data, '{ProjectID}', to_jsonb($3::text))
			WHERE user_id = $1 AND message_id = $2 AND active`,
			userID, id, newProject)
		if err != nil {
			return goerr.Wrap(err, "failed to repoint mapping", goerr.V("messageID", id))
		}
	}
	return nil
}

func scanMappings(rows pgx.Rows) ([]*model.EmailProjectMapping, error) {
	var out []*model.EmailProjectMapping
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, goerr.Wrap(err, "failed to scan mapping")
		}
		var m model.EmailProjectMapping
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, goerr.Wrap(err, "failed to decode mapping")
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}
