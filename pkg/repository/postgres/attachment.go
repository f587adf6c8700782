package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/m-mizutani/goerr/v2"
	"github.com/projectloop/mailgrouper/pkg/domain/model"
)

type attachmentRepository struct {
	pool *pgxpool.Pool
}

func (r *attachmentRepository) Put(ctx context.Context, a *model.Attachment) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(a)
	if err != nil {
		return goerr.Wrap(err, "failed to marshal attachment")
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO attachments (user_id, message_id, attachment_id, data)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, message_id, attachment_id) DO UPDATE SET data = $4`,
		a.UserID, a.MessageID, a.AttachmentID, data)
	if err != nil {
		return goerr.Wrap(err, "failed to put attachment", goerr.V("attachmentID", a.AttachmentID))
	}
	return nil
}

func (r *attachmentRepository) ListByMessage(ctx context.Context, userID model.UserID, messageID model.MessageID) ([]*model.Attachment, error) {
	rows, err := r.pool.Query(ctx, `SELECT data FROM attachments WHERE user_id = $1 AND message_id = $2`, userID, messageID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list attachments")
	}
	defer rows.Close()

	var out []*model.Attachment
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, goerr.Wrap(err, "failed to scan attachment")
		}
		var a model.Attachment
		if err := json.Unmarshal(data, &a); err != nil {
			return nil, goerr.Wrap(err, "failed to decode attachment")
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

func (r *attachmentRepository) ReassignProject(ctx context.Context, userID model.UserID, messageID model.MessageID, projectID model.ProjectID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE attachments SET data = jsonb_set(data, '{ProjectID}', to_jsonb($3::text))
		WHERE user_id = $1 AND message_id = $2`,
		userID, messageID, projectID)
	if err != nil {
		return goerr.Wrap(err, "failed to reassign attachments", goerr.V("messageID", messageID))
	}
	return nil
}
