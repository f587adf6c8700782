package analysis

import (
	"context"
	"sync"

	"github.com/projectloop/mailgrouper/pkg/domain/model"
)

// messageCache holds the last few messages resolved to each project, keyed
// by (user, project). It exists only because model.Message is explicitly
// non-persisted (spec §3) but the resolver's signal 6 needs *something* to
// sample against; this is the short-lived in-memory store DESIGN.md's C7
// section anticipates: a plain map keyed by (user, project), guarded by a
// single mutex.
type messageCache struct {
	mu    sync.Mutex
	byKey map[string][]*model.Message
	cap   int
}

func newMessageCache(capacity int) *messageCache {
	if capacity <= 0 {
		capacity = 5
	}
	return &messageCache{byKey: make(map[string][]*model.Message), cap: capacity}
}

func cacheKey(userID model.UserID, projectID model.ProjectID) string {
	return string(userID) + "|" + string(projectID)
}

// Record appends msg to the bounded recent-message list for (userID, projectID).
func (c *messageCache) Record(userID model.UserID, projectID model.ProjectID, msg *model.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := cacheKey(userID, projectID)
	list := append(c.byKey[k], msg)
	if len(list) > c.cap {
		list = list[len(list)-c.cap:]
	}
	c.byKey[k] = list
}

// RecentMessages implements pkg/resolver.SimilaritySampler.
func (c *messageCache) RecentMessages(ctx context.Context, userID model.UserID, projectID model.ProjectID, limit int) ([]*model.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	list := c.byKey[cacheKey(userID, projectID)]
	if limit > 0 && len(list) > limit {
		list = list[len(list)-limit:]
	}
	out := make([]*model.Message, len(list))
	copy(out, list)
	return out, nil
}
