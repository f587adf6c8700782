package postgres

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/m-mizutani/goerr/v2"
	"github.com/projectloop/mailgrouper/pkg/domain/model"
)

type auditRepository struct {
	pool *pgxpool.Pool
}

func (r *auditRepository) Append(ctx context.Context, e *model.AuditEvent) error {
	data, err := json.Marshal(e)
	if err != nil {
		return goerr.Wrap(err, "failed to marshal audit event")
	}
	_, err = r.pool.Exec(ctx, `INSERT INTO audit_events (id, user_id, at, data) VALUES ($1, $2, $3, $4)`,
		uuid.NewString(), e.UserID, e.At, data)
	if err != nil {
		return goerr.Wrap(err, "failed to append audit event")
	}
	return nil
}

func (r *auditRepository) ListByUser(ctx context.Context, userID model.UserID, limit int) ([]*model.AuditEvent, error) {
	query := `SELECT data FROM audit_events WHERE user_id = $1 ORDER BY at DESC`
	var rows pgx.Rows
	var err error
	if limit > 0 {
		rows, err = r.pool.Query(ctx, query+` LIMIT $2`, userID, limit)
	} else {
		rows, err = r.pool.Query(ctx, query, userID)
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list audit events")
	}
	defer rows.Close()

	var out []*model.AuditEvent
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, goerr.Wrap(err, "failed to scan audit event")
		}
		var e model.AuditEvent
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, goerr.Wrap(err, "failed to decode audit event")
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
