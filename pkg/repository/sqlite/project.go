package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/projectloop/mailgrouper/pkg/domain/interfaces"
	"github.com/projectloop/mailgrouper/pkg/domain/model"
	"github.com/projectloop/mailgrouper/pkg/domain/types"
)

type projectRepository struct {
	s *Sqlite
}

func (r *projectRepository) Create(ctx context.Context, userID model.UserID, p *model.Project) (*model.Project, error) {
	p.UserID = userID
	if p.ID == "" {
		p.ID = model.ProjectID(uuid.NewString())
	}
	if p.Status == "" {
		p.Status = types.ProjectStatusActive
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal project")
	}
	_, err = r.s.db.ExecContext(ctx, `INSERT INTO projects (user_id, id, status, data) VALUES (?, ?, ?, ?)`,
		userID, p.ID, string(p.Status), string(data))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create project", goerr.V("projectID", p.ID))
	}
	return p, nil
}

func (r *projectRepository) Get(ctx context.Context, userID model.UserID, id model.ProjectID) (*model.Project, error) {
	var data string
	err := r.s.db.GetContext(ctx, &data, `SELECT data FROM projects WHERE user_id = ? AND id = ?`, userID, id)
	if err == sql.ErrNoRows {
		return nil, goerr.Wrap(interfaces.ErrNotFound, "project not found", goerr.V("projectID", id))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get project", goerr.V("projectID", id))
	}
	var p model.Project
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, goerr.Wrap(err, "failed to decode project")
	}
	return &p, nil
}

func (r *projectRepository) Update(ctx context.Context, userID model.UserID, p *model.Project) (*model.Project, error) {
	p.UserID = userID
	data, err := json.Marshal(p)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal project")
	}
	res, err := r.s.db.ExecContext(ctx, `UPDATE projects SET status = ?, data = ? WHERE user_id = ? AND id = ?`,
		string(p.Status), string(data), userID, p.ID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to update project", goerr.V("projectID", p.ID))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, goerr.Wrap(interfaces.ErrNotFound, "project not found", goerr.V("projectID", p.ID))
	}
	return p, nil
}

func (r *projectRepository) Delete(ctx context.Context, userID model.UserID, id model.ProjectID) error {
	res, err := r.s.db.ExecContext(ctx, `DELETE FROM projects WHERE user_id = ? AND id = ?`, userID, id)
	if err != nil {
		return goerr.Wrap(err, "failed to delete project", goerr.V("projectID", id))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return goerr.Wrap(interfaces.ErrNotFound, "project not found", goerr.V("projectID", id))
	}
	return nil
}

func (r *projectRepository) List(ctx context.Context, userID model.UserID, status string) ([]*model.Project, error) {
	var rows []string
	var err error
	if status != "" {
		err = r.s.db.SelectContext(ctx, &rows, `SELECT data FROM projects WHERE user_id = ? AND status = ?`, userID, status)
	} else {
		err = r.s.db.SelectContext(ctx, &rows, `SELECT data FROM projects WHERE user_id = ?`, userID)
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list projects")
	}
	return decodeProjects(rows)
}

func (r *projectRepository) ListActive(ctx context.Context, userID model.UserID) ([]*model.Project, error) {
	var rows []string
	err := r.s.db.SelectContext(ctx, &rows, `SELECT data FROM projects WHERE user_id = ? AND status <> ?`,
		userID, string(types.ProjectStatusArchived))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list active projects")
	}
	return decodeProjects(rows)
}

func decodeProjects(rows []string) ([]*model.Project, error) {
	out := make([]*model.Project, 0, len(rows))
	for _, raw := range rows {
		var p model.Project
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, goerr.Wrap(err, "failed to decode project")
		}
		out = append(out, &p)
	}
	return out, nil
}
