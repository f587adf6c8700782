package memory

import (
	"context"
	"sync"
	"time"

	"github.com/projectloop/mailgrouper/pkg/domain/model"
)

type scanConfigRepository struct {
	mu      sync.RWMutex
	configs map[model.UserID]*model.ScanConfig
}

func newScanConfigRepository() *scanConfigRepository {
	return &scanConfigRepository{configs: make(map[model.UserID]*model.ScanConfig)}
}

// defaultScanConfig mirrors the default a new user gets before ever calling
// PUT /scan/config (SPEC_FULL §11).
func defaultScanConfig(userID model.UserID) *model.ScanConfig {
	return &model.ScanConfig{
		UserID:          userID,
		MaxLookbackDays: 7,
		UpdatedAt:       time.Now().UTC(),
	}
}

func (r *scanConfigRepository) Get(ctx context.Context, userID model.UserID) (*model.ScanConfig, error) {
	r.mu.RLock()
	c, exists := r.configs[userID]
	r.mu.RUnlock()
	if !exists {
		return defaultScanConfig(userID), nil
	}
	cp := *c
	cp.IncludedLabels = append([]string(nil), c.IncludedLabels...)
	cp.ExcludedLabels = append([]string(nil), c.ExcludedLabels...)
	return &cp, nil
}

func (r *scanConfigRepository) Put(ctx context.Context, c *model.ScanConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *c
	cp.IncludedLabels = append([]string(nil), c.IncludedLabels...)
	cp.ExcludedLabels = append([]string(nil), c.ExcludedLabels...)
	cp.UpdatedAt = time.Now().UTC()
	r.configs[c.UserID] = &cp
	return nil
}
