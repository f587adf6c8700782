package memory

import (
	"context"
	"sync"

	"github.com/projectloop/mailgrouper/pkg/domain/model"
)

type auditRepository struct {
	mu     sync.RWMutex
	events map[model.UserID][]*model.AuditEvent
}

func newAuditRepository() *auditRepository {
	return &auditRepository{events: make(map[model.UserID][]*model.AuditEvent)}
}

func (r *auditRepository) Append(ctx context.Context, e *model.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *e
	r.events[e.UserID] = append(r.events[e.UserID], &cp)
	return nil
}

func (r *auditRepository) ListByUser(ctx context.Context, userID model.UserID, limit int) ([]*model.AuditEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := r.events[userID]
	start := 0
	if limit > 0 && len(all) > limit {
		start = len(all) - limit
	}
	out := make([]*model.AuditEvent, 0, len(all)-start)
	for _, e := range all[start:] {
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}
