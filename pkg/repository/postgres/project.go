package postgres

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/m-mizutani/goerr/v2"
	"github.com/projectloop/mailgrouper/pkg/domain/interfaces"
	"github.com/projectloop/mailgrouper/pkg/domain/model"
	"github.com/projectloop/mailgrouper/pkg/domain/types"
)

type projectRepository struct {
	pool *pgxpool.Pool
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
	_, err = r.pool.Exec(ctx, `INSERT INTO projects (user_id, id, status, data) VALUES ($1, $2, $3, $4)`,
		userID, p.ID, string(p.Status), data)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create project", goerr.V("projectID", p.ID))
	}
	return p, nil
}

func (r *projectRepository) Get(ctx context.Context, userID model.UserID, id model.ProjectID) (*model.Project, error) {
	var data []byte
	err := r.pool.QueryRow(ctx, `SELECT data FROM projects WHERE user_id = $1 AND id = $2`, userID, id).Scan(&data)
	if err == pgx.ErrNoRows {
		return nil, goerr.Wrap(interfaces.ErrNotFound, "project not found", goerr.V("projectID", id))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get project", goerr.V("projectID", id))
	}
	var p model.Project
	if err := json.Unmarshal(data, &p); err != nil {
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
	tag, err := r.pool.Exec(ctx, `UPDATE projects SET status = $3, data = $4 WHERE user_id = $1 AND id = $2`,
		userID, p.ID, string(p.Status), data)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to update project", goerr.V("projectID", p.ID))
	}
	if tag.RowsAffected() == 0 {
		return nil, goerr.Wrap(interfaces.ErrNotFound, "project not found", goerr.V("projectID", p.ID))
	}
	return p, nil
}

func (r *projectRepository) Delete(ctx context.Context, userID model.UserID, id model.ProjectID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM projects WHERE user_id = $1 AND id = $2`, userID, id)
	if err != nil {
		return goerr.Wrap(err, "failed to delete project", goerr.V("projectID", id))
	}
	if tag.RowsAffected() == 0 {
		return goerr.Wrap(interfaces.ErrNotFound, "project not found", goerr.V("projectID", id))
	}
	return nil
}

func (r *projectRepository) List(ctx context.Context, userID model.UserID, status string) ([]*model.Project, error) {
	var rows pgx.Rows
	var err error
	if status != "" {
		rows, err = r.pool.Query(ctx, `SELECT data FROM projects WHERE user_id = $1 AND status = $2`, userID, status)
	} else {
		rows, err = r.pool.Query(ctx, `SELECT data FROM projects WHERE user_id = $1`, userID)
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list projects")
	}
	defer rows.Close()
	return scanProjects(rows)
}

func (r *projectRepository) ListActive(ctx context.Context, userID model.UserID) ([]*model.Project, error) {
	rows, err := r.pool.Query(ctx, `SELECT data FROM projects WHERE user_id = $1 AND status <> $2`,
		userID, string(types.ProjectStatusArchived))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list active projects")
	}
	defer rows.Close()
	return scanProjects(rows)
}

func scanProjects(rows pgx.Rows) ([]*model.Project, error) {
	var out []*model.Project
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, goerr.Wrap(err, "failed to scan project")
		}
		var p model.Project
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, goerr.Wrap(err, "failed to decode project")
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}
