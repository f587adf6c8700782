package sqlite

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/m-mizutani/goerr/v2"
	"github.com/projectloop/mailgrouper/pkg/domain/model"
)

type sqliteResolveTx struct {
	tx *sqlx.Tx
}

func (t *sqliteResolveTx) PutMapping(ctx context.Context, m *model.EmailProjectMapping) error {
	now := time.Now().UTC()
	m.UpdatedAt = now
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	data, err := json.Marshal(m)
	if err != nil {
		return goerr.Wrap(err, "failed to marshal mapping")
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO mappings (user_id, message_id, thread_id, project_id, active, data)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, message_id) DO UPDATE
		SET thread_id = excluded.thread_id, project_id = excluded.project_id, active = excluded.active, data = excluded.data`,
		m.UserID, m.MessageID, m.ThreadID, m.ProjectID, m.Active, string(data))
	if err != nil {
		return goerr.Wrap(err, "failed to upsert mapping", goerr.V("messageID", m.MessageID))
	}
	return nil
}

func (t *sqliteResolveTx) PutProject(ctx context.Context, p *model.Project) error {
	p.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(p)
	if err != nil {
		return goerr.Wrap(err, "failed to marshal project")
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO projects (user_id, id, status, data)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, id) DO UPDATE SET status = excluded.status, data = excluded.data`,
		p.UserID, p.ID, string(p.Status), string(data))
	if err != nil {
		return goerr.Wrap(err, "failed to upsert project", goerr.V("projectID", p.ID))
	}
	return nil
}

func (t *sqliteResolveTx) EnqueueReflection(ctx context.Context, userID model.UserID, messageID model.MessageID, projectID model.ProjectID) error {
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
	_, err = t.tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO queue_items (id, queue, user_id, dedup_key, status, priority, next_visible_at, created_at, data)
		VALUES (?, ?, ?, ?, 'pending', 5, CURRENT_TIMESTAMP, ?, ?)`,
		item.ID, item.Queue, item.UserID, item.DedupKey, now, string(data))
	if err != nil {
		return goerr.Wrap(err, "failed to enqueue reflection", goerr.V("messageID", messageID))
	}
	return nil
}
