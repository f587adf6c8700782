package memory

import (
	"context"
	"sync"
	"time"

	"github.com/projectloop/mailgrouper/pkg/domain/interfaces"
	"github.com/projectloop/mailgrouper/pkg/domain/model"
)

type attachmentKey struct {
	userID       model.UserID
	messageID    model.MessageID
	attachmentID string
}

type attachmentRepository struct {
	mu          sync.RWMutex
	attachments map[attachmentKey]*model.Attachment
}

func newAttachmentRepository() *attachmentRepository {
	return &attachmentRepository{attachments: make(map[attachmentKey]*model.Attachment)}
}

func copyAttachment(a *model.Attachment) *model.Attachment {
	cp := *a
	cp.Indicators.JobNumberLike = append([]string(nil), a.Indicators.JobNumberLike...)
	cp.Indicators.DateLike = append([]string(nil), a.Indicators.DateLike...)
	cp.Indicators.NameLike = append([]string(nil), a.Indicators.NameLike...)
	return &cp
}

func (r *attachmentRepository) Put(ctx context.Context, a *model.Attachment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := copyAttachment(a)
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	r.attachments[attachmentKey{userID: a.UserID, messageID: a.MessageID, attachmentID: a.AttachmentID}] = cp
	return nil
}

func (r *attachmentRepository) ListByMessage(ctx context.Context, userID model.UserID, messageID model.MessageID) ([]*model.Attachment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*model.Attachment
	for k, a := range r.attachments {
		if k.userID == userID && k.messageID == messageID {
			out = append(out, copyAttachment(a))
		}
	}
	return out, nil
}

func (r *attachmentRepository) ReassignProject(ctx context.Context, userID model.UserID, messageID model.MessageID, projectID model.ProjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for k, a := range r.attachments {
		if k.userID == userID && k.messageID == messageID {
			a.ProjectID = projectID
		}
	}
	return nil
}

var _ interfaces.AttachmentRepository = &attachmentRepository{}
