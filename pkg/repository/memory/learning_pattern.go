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

type learningPatternRepository struct {
	mu       sync.RWMutex
	patterns map[model.UserID]map[model.LearningPatternID]*model.LearningPattern
}

func newLearningPatternRepository() *learningPatternRepository {
	return &learningPatternRepository{patterns: make(map[model.UserID]map[model.LearningPatternID]*model.LearningPattern)}
}

func (r *learningPatternRepository) Put(ctx context.Context, p *model.LearningPattern) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.patterns[p.UserID] == nil {
		r.patterns[p.UserID] = make(map[model.LearningPatternID]*model.LearningPattern)
	}
	cp := *p
	now := time.Now().UTC()
	if cp.ID == "" {
		cp.ID = model.LearningPatternID(uuid.NewString())
	}
	if existing, exists := r.patterns[p.UserID][cp.ID]; exists {
		cp.CreatedAt = existing.CreatedAt
	} else {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	r.patterns[p.UserID][cp.ID] = &cp
	return nil
}

func (r *learningPatternRepository) ListActive(ctx context.Context, userID model.UserID) ([]*model.LearningPattern, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*model.LearningPattern
	for _, p := range r.patterns[userID] {
		if p.Active {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *learningPatternRepository) IncrementUsage(ctx context.Context, userID model.UserID, id model.LearningPatternID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, exists := r.patterns[userID][id]
	if !exists {
		return goerr.Wrap(interfaces.ErrNotFound, "learning pattern not found", goerr.V("id", id))
	}
	p.UsageCount++
	p.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *learningPatternRepository) Deactivate(ctx context.Context, userID model.UserID, id model.LearningPatternID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, exists := r.patterns[userID][id]
	if !exists {
		return goerr.Wrap(interfaces.ErrNotFound, "learning pattern not found", goerr.V("id", id))
	}
	p.Active = false
	p.UpdatedAt = time.Now().UTC()
	return nil
}
