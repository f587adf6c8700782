package memory

import (
	"context"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/projectloop/mailgrouper/pkg/domain/interfaces"
	"github.com/projectloop/mailgrouper/pkg/domain/model"
)

type mappingKey struct {
	userID    model.UserID
	messageID model.MessageID
}

type mappingRepository struct {
	mu       sync.RWMutex
	mappings map[mappingKey]*model.EmailProjectMapping
}

func newMappingRepository() *mappingRepository {
	return &mappingRepository{mappings: make(map[mappingKey]*model.EmailProjectMapping)}
}

func copyMapping(m *model.EmailProjectMapping) *model.EmailProjectMapping {
	cp := *m
	return &cp
}

// putLocked assumes the caller holds mu (used from ResolveAndPersist's
// buffered apply).
func (r *mappingRepository) putLocked(m *model.EmailProjectMapping) {
	key := mappingKey{userID: m.UserID, messageID: m.MessageID}
	cp := copyMapping(m)
	now := time.Now().UTC()
	if existing, exists := r.mappings[key]; exists {
		cp.CreatedAt = existing.CreatedAt
	} else {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	r.mappings[key] = cp
}

func (r *mappingRepository) Put(ctx context.Context, userID model.UserID, m *model.EmailProjectMapping) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m.UserID = userID
	r.putLocked(m)
	return nil
}

func (r *mappingRepository) GetActive(ctx context.Context, userID model.UserID, messageID model.MessageID) (*model.EmailProjectMapping, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, exists := r.mappings[mappingKey{userID: userID, messageID: messageID}]
	if !exists || !m.Active {
		return nil, goerr.Wrap(interfaces.ErrNotFound, "active mapping not found", goerr.V("messageID", messageID))
	}
	return copyMapping(m), nil
}

func (r *mappingRepository) ListByProject(ctx context.Context, userID model.UserID, projectID model.ProjectID) ([]*model.EmailProjectMapping, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*model.EmailProjectMapping
	for k, m := range r.mappings {
		if k.userID == userID && m.ProjectID == projectID {
			out = append(out, copyMapping(m))
		}
	}
	return out, nil
}

func (r *mappingRepository) ListByThread(ctx context.Context, userID model.UserID, threadID model.ThreadID) ([]*model.EmailProjectMapping, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*model.EmailProjectMapping
	for k, m := range r.mappings {
		if k.userID == userID && m.ThreadID == threadID {
			out = append(out, copyMapping(m))
		}
	}
	return out, nil
}

func (r *mappingRepository) Deactivate(ctx context.Context, userID model.UserID, messageID model.MessageID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := mappingKey{userID: userID, messageID: messageID}
	m, exists := r.mappings[key]
	if !exists {
		return goerr.Wrap(interfaces.ErrNotFound, "mapping not found", goerr.V("messageID", messageID))
	}
	m.Active = false
	m.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *mappingRepository) ListReflectionPending(ctx context.Context, userID model.UserID) ([]*model.EmailProjectMapping, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*model.EmailProjectMapping
	for k, m := range r.mappings {
		if k.userID == userID && m.Active && m.ReflectionPending {
			out = append(out, copyMapping(m))
		}
	}
	return out, nil
}

func (r *mappingRepository) Repoint(ctx context.Context, userID model.UserID, messageIDs []model.MessageID, newProject model.ProjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	for _, id := range messageIDs {
		key := mappingKey{userID: userID, messageID: id}
		m, exists := r.mappings[key]
		if !exists || !m.Active {
			continue
		}
		m.ProjectID = newProject
		m.UpdatedAt = now
	}
	return nil
}
