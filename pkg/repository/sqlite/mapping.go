package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/projectloop/mailgrouper/pkg/domain/interfaces"
	"github.com/projectloop/mailgrouper/pkg/domain/model"
)

type mappingRepository struct {
	s *Sqlite
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
	_, err = r.s.db.ExecContext(ctx, `
		INSERT INTO mappings (user_id, message_id, thread_id, project_id, active, data)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, message_id) DO UPDATE
		SET thread_id = excluded.thread_id, project_id = excluded.project_id, active = excluded.active, data = excluded.data`,
		userID, m.MessageID, m.ThreadID, m.ProjectID, m.Active, string(data))
	if err != nil {
		return goerr.Wrap(err, "failed to put mapping", goerr.V("messageID", m.MessageID))
	}
	return nil
}

func (r *mappingRepository) GetActive(ctx context.Context, userID model.UserID, messageID model.MessageID) (*model.EmailProjectMapping, error) {
	var data string
	err := r.s.db.GetContext(ctx, &data, `SELECT data FROM mappings WHERE user_id = ? AND message_id = ? AND active = 1`,
		userID, messageID)
	if err == sql.ErrNoRows {
		return nil, goerr.Wrap(interfaces.ErrNotFound, "active mapping not found", goerr.V("messageID", messageID))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get mapping", goerr.V("messageID", messageID))
	}
	var m model.EmailProjectMapping
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		return nil, goerr.Wrap(err, "failed to decode mapping")
	}
	return &m, nil
}

func (r *mappingRepository) ListByProject(ctx context.Context, userID model.UserID, projectID model.ProjectID) ([]*model.EmailProjectMapping, error) {
	var rows []string
	err := r.s.db.SelectContext(ctx, &rows, `SELECT data FROM mappings WHERE user_id = ? AND project_id = ?`, userID, projectID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list mappings by project")
	}
	return decodeMappings(rows)
}

func (r *mappingRepository) ListByThread(ctx context.Context, userID model.UserID, threadID model.ThreadID) ([]*model.EmailProjectMapping, error) {
	var rows []string
	err := r.s.db.SelectContext(ctx, &rows, `SELECT data FROM mappings WHERE user_id = ? AND thread_id = ?`, userID, threadID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list mappings by thread")
	}
	return decodeMappings(rows)
}

func (r *mappingRepository) ListReflectionPending(ctx context.Context, userID model.UserID) ([]*model.EmailProjectMapping, error) {
	var rows []string
	err := r.s.db.SelectContext(ctx, &rows, `
		SELECT data FROM mappings
		WHERE user_id = ? AND active = 1 AND json_extract(data, '$.ReflectionPending') = 1`, userID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list reflection-pending mappings")
	}
	return decodeMappings(rows)
}

func (r *mappingRepository) Deactivate(ctx context.Context, userID model.UserID, messageID model.MessageID) error {
	res, err := r.s.db.ExecContext(ctx, `UPDATE mappings SET active = 0 WHERE user_id = ? AND message_id = ?`, userID, messageID)
	if err != nil {
		return goerr.Wrap(err, "failed to deactivate mapping", goerr.V("messageID", messageID))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return goerr.Wrap(interfaces.ErrNotFound, "mapping not found", goerr.V("messageID", messageID))
	}
	return nil
}

func (r *mappingRepository) Repoint(ctx context.Context, userID model.UserID, messageIDs []model.MessageID, newProject model.ProjectID) error {
	for _, id := range messageIDs {
		m, err := r.GetActive(ctx, userID, id)
		if err != nil {
			continue
		}
		m.ProjectID = newProject
		if err := r.Put(ctx, userID, m); err != nil {
			return err
		}
	}
	return nil
}

func decodeMappings(rows []string) ([]*model.EmailProjectMapping, error) {
	out := make([]*model.EmailProjectMapping, 0, len(rows))
	for _, raw := range rows {
		var m model.EmailProjectMapping
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			return nil, goerr.Wrap(err, "failed to decode mapping")
		}
		out = append(out, &m)
	}
	return out, nil
}
