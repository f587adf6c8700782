package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/projectloop/mailgrouper/pkg/domain/interfaces"
	"github.com/projectloop/mailgrouper/pkg/domain/model"
	"github.com/projectloop/mailgrouper/pkg/domain/types"
)

type projectKey struct {
	userID model.UserID
	id     model.ProjectID
}

type projectRepository struct {
	mu       sync.RWMutex
	projects map[projectKey]*model.Project
}

func newProjectRepository() *projectRepository {
	return &projectRepository{projects: make(map[projectKey]*model.Project)}
}

func copyProject(p *model.Project) *model.Project {
	cp := *p
	cp.Aliases = append([]string(nil), p.Aliases...)
	cp.JobNumbers = append([]string(nil), p.JobNumbers...)
	return &cp
}

// putLocked writes p as-is, assuming the caller already holds mu (used by
// ResolveAndPersist's buffered apply).
func (r *projectRepository) putLocked(p *model.Project) {
	r.projects[projectKey{userID: p.UserID, id: p.ID}] = copyProject(p)
}

func (r *projectRepository) Create(ctx context.Context, userID model.UserID, p *model.Project) (*model.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	created := copyProject(p)
	created.UserID = userID
	if created.ID == "" {
		created.ID = model.ProjectID(uuid.NewString())
	}
	if created.Status == "" {
		created.Status = types.ProjectStatusActive
	}
	now := time.Now().UTC()
	created.CreatedAt = now
	created.UpdatedAt = now
	r.projects[projectKey{userID: userID, id: created.ID}] = created
	return copyProject(created), nil
}

func (r *projectRepository) Get(ctx context.Context, userID model.UserID, id model.ProjectID) (*model.Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, exists := r.projects[projectKey{userID: userID, id: id}]
	if !exists {
		return nil, goerr.Wrap(interfaces.ErrNotFound, "project not found", goerr.V("projectID", id))
	}
	return copyProject(p), nil
}

func (r *projectRepository) Update(ctx context.Context, userID model.UserID, p *model.Project) (*model.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := projectKey{userID: userID, id: p.ID}
	existing, exists := r.projects[key]
	if !exists {
		return nil, goerr.Wrap(interfaces.ErrNotFound, "project not found", goerr.V("projectID", p.ID))
	}
	updated := copyProject(p)
	updated.UserID = userID
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = time.Now().UTC()
	r.projects[key] = updated
	return copyProject(updated), nil
}

func (r *projectRepository) Delete(ctx context.Context, userID model.UserID, id model.ProjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := projectKey{userID: userID, id: id}
	if _, exists := r.projects[key]; !exists {
		return goerr.Wrap(interfaces.ErrNotFound, "project not found", goerr.V("projectID", id))
	}
	delete(r.projects, key)
	return nil
}

func (r *projectRepository) List(ctx context.Context, userID model.UserID, status string) ([]*model.Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*model.Project
	for k, p := range r.projects {
		if k.userID != userID {
			continue
		}
		if status != "" && string(p.Status) != status {
			continue
		}
		out = append(out, copyProject(p))
	}
	return out, nil
}

func (r *projectRepository) ListActive(ctx context.Context, userID model.UserID) ([]*model.Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*model.Project
	for k, p := range r.projects {
		if k.userID != userID {
			continue
		}
		if p.Status == types.ProjectStatusArchived {
			continue
		}
		out = append(out, copyProject(p))
	}
	return out, nil
}
