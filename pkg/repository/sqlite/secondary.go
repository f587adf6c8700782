package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/projectloop/mailgrouper/pkg/domain/interfaces"
	"github.com/projectloop/mailgrouper/pkg/domain/model"
)

// attachmentRepository, correctionRepository, learningPatternRepository,
// watchRepository, scanConfigRepository and auditRepository are grouped in
// one file: each is a thin JSON-document CRUD surface over a single table,
// with none of the query complexity that justifies mapping/project/queue
// having their own files.

type attachmentRepository struct{ s *Sqlite }

func (r *attachmentRepository) Put(ctx context.Context, a *model.Attachment) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(a)
	if err != nil {
		return goerr.Wrap(err, "failed to marshal attachment")
	}
	_, err = r.s.db.ExecContext(ctx, `
		INSERT INTO attachments (user_id, message_id, attachment_id, data) VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, message_id, attachment_id) DO UPDATE SET data = excluded.data`,
		a.UserID, a.MessageID, a.AttachmentID, string(data))
	if err != nil {
		return goerr.Wrap(err, "failed to put attachment", goerr.V("attachmentID", a.AttachmentID))
	}
	return nil
}

func (r *attachmentRepository) ListByMessage(ctx context.Context, userID model.UserID, messageID model.MessageID) ([]*model.Attachment, error) {
	var rows []string
	err := r.s.db.SelectContext(ctx, &rows, `SELECT data FROM attachments WHERE user_id = ? AND message_id = ?`, userID, messageID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list attachments")
	}
	out := make([]*model.Attachment, 0, len(rows))
	for _, raw := range rows {
		var a model.Attachment
		if err := json.Unmarshal([]byte(raw), &a); err != nil {
			return nil, goerr.Wrap(err, "failed to decode attachment")
		}
		out = append(out, &a)
	}
	return out, nil
}

func (r *attachmentRepository) ReassignProject(ctx context.Context, userID model.UserID, messageID model.MessageID, projectID model.ProjectID) error {
	attachments, err := r.ListByMessage(ctx, userID, messageID)
	if err != nil {
		return err
	}
	for _, a := range attachments {
		a.ProjectID = projectID
		if err := r.Put(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

type correctionRepository struct{ s *Sqlite }

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
	_, err = r.s.db.ExecContext(ctx, `
		INSERT INTO corrections (id, user_id, project_id, processed, created_at, data) VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.ProjectID, c.Processed, c.CreatedAt, string(data))
	if err != nil {
		return goerr.Wrap(err, "failed to append correction", goerr.V("id", c.ID))
	}
	return nil
}

func (r *correctionRepository) ListUnprocessed(ctx context.Context, userID model.UserID, limit int) ([]*model.Correction, error) {
	query := `SELECT data FROM corrections WHERE user_id = ? AND processed = 0 ORDER BY created_at ASC`
	var rows []string
	var err error
	if limit > 0 {
		err = r.s.db.SelectContext(ctx, &rows, query+` LIMIT ?`, userID, limit)
	} else {
		err = r.s.db.SelectContext(ctx, &rows, query, userID)
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list unprocessed corrections")
	}
	return decodeCorrections(rows)
}

func (r *correctionRepository) MarkProcessed(ctx context.Context, userID model.UserID, id model.CorrectionID) error {
	_, err := r.s.db.ExecContext(ctx, `UPDATE corrections SET processed = 1 WHERE id = ?`, id)
	if err != nil {
		return goerr.Wrap(err, "failed to mark correction processed", goerr.V("id", id))
	}
	return nil
}

func (r *correctionRepository) ListByProject(ctx context.Context, userID model.UserID, projectID model.ProjectID) ([]*model.Correction, error) {
	var rows []string
	err := r.s.db.SelectContext(ctx, &rows, `SELECT data FROM corrections WHERE user_id = ? AND project_id = ?`, userID, projectID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list corrections by project")
	}
	return decodeCorrections(rows)
}

func decodeCorrections(rows []string) ([]*model.Correction, error) {
	out := make([]*model.Correction, 0, len(rows))
	for _, raw := range rows {
		var c model.Correction
		if err := json.Unmarshal([]byte(raw), &c); err != nil {
			return nil, goerr.Wrap(err, "failed to decode correction")
		}
		out = append(out, &c)
	}
	return out, nil
}

type learningPatternRepository struct{ s *Sqlite }

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
	_, err = r.s.db.ExecContext(ctx, `
		INSERT INTO learning_patterns (id, user_id, active, data) VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET active = excluded.active, data = excluded.data`,
		p.ID, p.UserID, p.Active, string(data))
	if err != nil {
		return goerr.Wrap(err, "failed to put learning pattern", goerr.V("id", p.ID))
	}
	return nil
}

func (r *learningPatternRepository) ListActive(ctx context.Context, userID model.UserID) ([]*model.LearningPattern, error) {
	var rows []string
	err := r.s.db.SelectContext(ctx, &rows, `SELECT data FROM learning_patterns WHERE user_id = ? AND active = 1`, userID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list learning patterns")
	}
	out := make([]*model.LearningPattern, 0, len(rows))
	for _, raw := range rows {
		var p model.LearningPattern
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, goerr.Wrap(err, "failed to decode learning pattern")
		}
		out = append(out, &p)
	}
	return out, nil
}

func (r *learningPatternRepository) get(ctx context.Context, id model.LearningPatternID) (*model.LearningPattern, error) {
	var data string
	err := r.s.db.GetContext(ctx, &data, `SELECT data FROM learning_patterns WHERE id = ?`, id)
	if err == sql.ErrNoRows {
		return nil, goerr.Wrap(interfaces.ErrNotFound, "learning pattern not found", goerr.V("id", id))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get learning pattern", goerr.V("id", id))
	}
	var p model.LearningPattern
	if err := json.Unmarshal([]byte(data), &p); err != nil {
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

type watchRepository struct{ s *Sqlite }

func (r *watchRepository) Put(ctx context.Context, w *model.WatchSubscription) error {
	now := time.Now().UTC()
	if w.CreatedAt.IsZero() {
		w.CreatedAt = now
	}
	w.UpdatedAt = now
	data, err := json.Marshal(w)
	if err != nil {
		return goerr.Wrap(err, "failed to marshal watch")
	}
	_, err = r.s.db.ExecContext(ctx, `
		INSERT INTO watches (user_id, data) VALUES (?, ?)
		ON CONFLICT (user_id) DO UPDATE SET data = excluded.data`, w.UserID, string(data))
	if err != nil {
		return goerr.Wrap(err, "failed to put watch", goerr.V("userID", w.UserID))
	}
	return nil
}

func (r *watchRepository) Get(ctx context.Context, userID model.UserID) (*model.WatchSubscription, error) {
	var data string
	err := r.s.db.GetContext(ctx, &data, `SELECT data FROM watches WHERE user_id = ?`, userID)
	if err == sql.ErrNoRows {
		return nil, goerr.Wrap(interfaces.ErrNotFound, "watch not found", goerr.V("userID", userID))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get watch", goerr.V("userID", userID))
	}
	var w model.WatchSubscription
	if err := json.Unmarshal([]byte(data), &w); err != nil {
		return nil, goerr.Wrap(err, "failed to decode watch")
	}
	return &w, nil
}

func (r *watchRepository) ListDueForRenewal(ctx context.Context, margin time.Duration, now time.Time) ([]*model.WatchSubscription, error) {
	var rows []string
	if err := r.s.db.SelectContext(ctx, &rows, `SELECT data FROM watches`); err != nil {
		return nil, goerr.Wrap(err, "failed to list watches")
	}
	var out []*model.WatchSubscription
	for _, raw := range rows {
		var w model.WatchSubscription
		if err := json.Unmarshal([]byte(raw), &w); err != nil {
			return nil, goerr.Wrap(err, "failed to decode watch")
		}
		if w.NeedsRenewal(margin, now) {
			out = append(out, &w)
		}
	}
	return out, nil
}

func (r *watchRepository) Delete(ctx context.Context, userID model.UserID) error {
	res, err := r.s.db.ExecContext(ctx, `DELETE FROM watches WHERE user_id = ?`, userID)
	if err != nil {
		return goerr.Wrap(err, "failed to delete watch", goerr.V("userID", userID))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return goerr.Wrap(interfaces.ErrNotFound, "watch not found", goerr.V("userID", userID))
	}
	return nil
}

type scanConfigRepository struct{ s *Sqlite }

func (r *scanConfigRepository) Get(ctx context.Context, userID model.UserID) (*model.ScanConfig, error) {
	var data string
	err := r.s.db.GetContext(ctx, &data, `SELECT data FROM scan_configs WHERE user_id = ?`, userID)
	if err == sql.ErrNoRows {
		return &model.ScanConfig{UserID: userID, MaxLookbackDays: 7, UpdatedAt: time.Now().UTC()}, nil
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get scan config", goerr.V("userID", userID))
	}
	var c model.ScanConfig
	if err := json.Unmarshal([]byte(data), &c); err != nil {
		return nil, goerr.Wrap(err, "failed to decode scan config")
	}
	return &c, nil
}

func (r *scanConfigRepository) Put(ctx context.Context, c *model.ScanConfig) error {
	c.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(c)
	if err != nil {
		return goerr.Wrap(err, "failed to marshal scan config")
	}
	_, err = r.s.db.ExecContext(ctx, `
		INSERT INTO scan_configs (user_id, data) VALUES (?, ?)
		ON CONFLICT (user_id) DO UPDATE SET data = excluded.data`, c.UserID, string(data))
	if err != nil {
		return goerr.Wrap(err, "failed to put scan config", goerr.V("userID", c.UserID))
	}
	return nil
}

type auditRepository struct{ s *Sqlite }

func (r *auditRepository) Append(ctx context.Context, e *model.AuditEvent) error {
	data, err := json.Marshal(e)
	if err != nil {
		return goerr.Wrap(err, "failed to marshal audit event")
	}
	_, err = r.s.db.ExecContext(ctx, `INSERT INTO audit_events (id, user_id, at, data) VALUES (?, ?, ?, ?)`,
		uuid.NewString(), e.UserID, e.At, string(data))
	if err != nil {
		return goerr.Wrap(err, "failed to append audit event")
	}
	return nil
}

func (r *auditRepository) ListByUser(ctx context.Context, userID model.UserID, limit int) ([]*model.AuditEvent, error) {
	query := `SELECT data FROM audit_events WHERE user_id = ? ORDER BY at DESC`
	var rows []string
	var err error
	if limit > 0 {
		err = r.s.db.SelectContext(ctx, &rows, query+` LIMIT ?`, userID, limit)
	} else {
		err = r.s.db.SelectContext(ctx, &rows, query, userID)
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list audit events")
	}
	out := make([]*model.AuditEvent, 0, len(rows))
	for _, raw := range rows {
		var e model.AuditEvent
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, goerr.Wrap(err, "failed to decode audit event")
		}
		out = append(out, &e)
	}
	return out, nil
}

var _ interfaces.AttachmentRepository = &attachmentRepository{}
var _ interfaces.CorrectionRepository = &correctionRepository{}
var _ interfaces.LearningPatternRepository = &learningPatternRepository{}
var _ interfaces.WatchRepository = &watchRepository{}
var _ interfaces.ScanConfigRepository = &scanConfigRepository{}
var _ interfaces.AuditRepository = &auditRepository{}
