package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/m-mizutani/goerr/v2"
	"github.com/projectloop/mailgrouper/pkg/domain/model"
)

type postgresResolveTx struct {
	tx pgx.Tx
}

func (t *postgresResolveTx) PutMapping(ctx context.Context, m *model.EmailProjectMapping) error {
	now := time.Now().UTC()
	m.UpdatedAt = now
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	data, err := json.Marshal(m)
	if err != nil {
		return goerr.Wrap(err, "failed to marshal mapping")
	}
	_, err = t.tx.Exec(ctx, `
		INSERT INTO mappings (user_id, message_id, thread_id, project_id, active, data)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, message_id) DO UPDATE
		SET thread_id = $3, project_id = $4, active = $5, data = $6`,
		m.UserID, m.MessageID, m.ThreadID, m.ProjectID, m.Active, data)
	if err != nil {
		return goerr.Wrap(err, "failed to upsert mapping", goerr.V("messageID", m.MessageID))
	}
	return nil
}

func (t *postgresResolveTx) PutProject(ctx context.Context, p *model.Project) error {
	p.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(p)
	if err != nil {
		return goerr.Wrap(err, "failed to marshal project")
	}
	_, err = t.tx.Exec(ctx, `
		INSERT INTO projects (user_id, id, status, data)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, id) DO UPDATE
		SET status = $3, data = $4`,
		p.UserID, p.ID, string(p.Status), data)
	if err != nil {
		return goerr.Wrap(err, "failed to upsert project", goerr.V("projectID", p.ID))
	}
	return nil
}

func (t *postgresResolveTx) EnqueueReflection(ctx context.Context, userID model.UserID, messageID model.MessageID, projectID model.ProjectID) error {
	now := time.Now().UTC()
	payload, err := json.Marshal(model.ReflectionTask{MessageID: messageID, ProjectID: projectID})
	if err != nil {
		return goerr.Wrap(err, "marshal reflection task")
	}
	item := &model.QueueItem{
		ID:        model.QueueItemID(uuid.NewString()),
		Queue:     model.QueueReflection,
		UserID:    userID,
		DedupKey:  "reflect:" + string(messageID),
		Payload:   payload,
		CreatedAt: now,
		UpdatedAt: now,
	}
	data, err := json.Marshal(item)
	if err != nil {
		return goerr.Wrap(err, "failed to marshal queue item")
	}
	_, err = t.tx.Exec(ctx, `
		INSERT INTO queue_items (id, queue, user_id, dedup_key, status, priority, next_visible_at, created_at, data)
		VALUES ($1, $2, $3, $4, 'pending', 5, now(), $5, $6)
		ON CONFLICT (queue, user_id, dedup_key) WHERE dedup_key <> '' DO NOTHING`,
		item.ID, item.Queue, item.UserID, item.DedupKey, now, data)
	if err != nil {
		return goerr.Wrap(err, "failed to enqueue reflection", goerr.V("messageID", messageID))
	}
	return nil
}
