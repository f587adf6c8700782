package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/projectloop/mailgrouper/pkg/domain/interfaces"
	"github.com/projectloop/mailgrouper/pkg/domain/model"
)

type correctionRepository struct {
	mu          sync.RWMutex
	corrections map[model.UserID][]*model.Correction
}

func newCorrectionRepository() *correctionRepository {
	return &correctionRepository{corrections: make(map[model.UserID][]*model.Correction)}
}

func copyCorrection(c *model.Correction) *model.Correction {
	cp := *c
	cp.OriginalResult.MessageIDs = append([]model.MessageID(nil), c.OriginalResult.MessageIDs...)
	cp.OriginalResult.Aliases = append([]string(nil), c.OriginalResult.Aliases...)
	cp.CorrectedResult.MessageIDs = append([]model.MessageID(nil), c.CorrectedResult.MessageIDs...)
	cp.CorrectedResult.Aliases = append([]string(nil), c.CorrectedResult.Aliases...)
	return &cp
}

func (r *correctionRepository) Append(ctx context.Context, c *model.Correction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := copyCorrection(c)
	if cp.ID == "" {
		cp.ID = model.CorrectionID(uuid.NewString())
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	r.corrections[c.UserID] = append(r.corrections[c.UserID], cp)
	return nil
}

func (r *correctionRepository) ListUnprocessed(ctx context.Context, userID model.UserID, limit int) ([]*model.Correction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*model.Correction
	for _, c := range r.corrections[userID] {
		if c.Processed {
			continue
		}
		out = append(out, copyCorrection(c))
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *correctionRepository) MarkProcessed(ctx context.Context, userID model.UserID, id model.CorrectionID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range r.corrections[userID] {
		if c.ID == id {
			c.Processed = true
			return nil
		}
	}
	return goerr.Wrap(interfaces.ErrNotFound, "correction not found", goerr.V("id", id))
}

func (r *correctionRepository) ListByProject(ctx context.Context, userID model.UserID, projectID model.ProjectID) ([]*model.Correction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*model.Correction
	for _, c := range r.corrections[userID] {
		if c.ProjectID == projectID {
			out = append(out, copyCorrection(c))
		}
	}
	return out, nil
}
