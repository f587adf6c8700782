package memory

import (
	"context"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/projectloop/mailgrouper/pkg/domain/interfaces"
	"github.com/projectloop/mailgrouper/pkg/domain/model"
)

type userRepository struct {
	mu    sync.RWMutex
	users map[model.UserID]*model.User
}

func newUserRepository() *userRepository {
	return &userRepository{users: make(map[model.UserID]*model.User)}
}

func copyUser(u *model.User) *model.User {
	cp := *u
	cp.Credentials.AccessTokenEnc = append([]byte(nil), u.Credentials.AccessTokenEnc...)
	cp.Credentials.RefreshTokenEnc = append([]byte(nil), u.Credentials.RefreshTokenEnc...)
	return &cp
}

func (r *userRepository) Create(ctx context.Context, u *model.User) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.users[u.ID]; exists {
		return nil, goerr.Wrap(interfaces.ErrAlreadyExists, "user already exists", goerr.V("userID", u.ID))
	}
	now := time.Now().UTC()
	created := copyUser(u)
	created.CreatedAt = now
	created.UpdatedAt = now
	r.users[created.ID] = created
	return copyUser(created), nil
}

func (r *userRepository) Get(ctx context.Context, id model.UserID) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, exists := r.users[id]
	if !exists {
		return nil, goerr.Wrap(interfaces.ErrNotFound, "user not found", goerr.V("userID", id))
	}
	return copyUser(u), nil
}

func (r *userRepository) Update(ctx context.Context, u *model.User) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, exists := r.users[u.ID]
	if !exists {
		return nil, goerr.Wrap(interfaces.ErrNotFound, "user not found", goerr.V("userID", u.ID))
	}
	updated := copyUser(u)
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = time.Now().UTC()
	r.users[updated.ID] = updated
	return copyUser(updated), nil
}

func (r *userRepository) List(ctx context.Context) ([]*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*model.User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, copyUser(u))
	}
	return out, nil
}

func (r *userRepository) SetActive(ctx context.Context, id model.UserID, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, exists := r.users[id]
	if !exists {
		return goerr.Wrap(interfaces.ErrNotFound, "user not found", goerr.V("userID", id))
	}
	u.Active = active
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *userRepository) SetAuthExpired(ctx context.Context, id model.UserID, expired bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, exists := r.users[id]
	if !exists {
		return goerr.Wrap(interfaces.ErrNotFound, "user not found", goerr.V("userID", id))
	}
	u.AuthExpired = expired
	u.UpdatedAt = time.Now().UTC()
	return nil
}
