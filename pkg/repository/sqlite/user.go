package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/m-mizutani/goerr/v2"
	"github.com/projectloop/mailgrouper/pkg/domain/interfaces"
	"github.com/projectloop/mailgrouper/pkg/domain/model"
)

type userRepository struct {
	s *Sqlite
}

func (r *userRepository) Create(ctx context.Context, u *model.User) (*model.User, error) {
	data, err := json.Marshal(u)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal user")
	}
	_, err = r.s.db.ExecContext(ctx, `INSERT INTO users (id, active, data) VALUES (?, ?, ?)`, u.ID, u.Active, string(data))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create user", goerr.V("userID", u.ID))
	}
	return u, nil
}

func (r *userRepository) Get(ctx context.Context, id model.UserID) (*model.User, error) {
	var data string
	err := r.s.db.GetContext(ctx, &data, `SELECT data FROM users WHERE id = ?`, id)
	if err == sql.ErrNoRows {
		return nil, goerr.Wrap(interfaces.ErrNotFound, "user not found", goerr.V("userID", id))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get user", goerr.V("userID", id))
	}
	var u model.User
	if err := json.Unmarshal([]byte(data), &u); err != nil {
		return nil, goerr.Wrap(err, "failed to decode user")
	}
	return &u, nil
}

func (r *userRepository) Update(ctx context.Context, u *model.User) (*model.User, error) {
	data, err := json.Marshal(u)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal user")
	}
	res, err := r.s.db.ExecContext(ctx, `UPDATE users SET active = ?, data = ? WHERE id = ?`, u.Active, string(data), u.ID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to update user", goerr.V("userID", u.ID))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, goerr.Wrap(interfaces.ErrNotFound, "user not found", goerr.V("userID", u.ID))
	}
	return u, nil
}

func (r *userRepository) List(ctx context.Context) ([]*model.User, error) {
	var rows []string
	if err := r.s.db.SelectContext(ctx, &rows, `SELECT data FROM users`); err != nil {
		return nil, goerr.Wrap(err, "failed to list users")
	}
	out := make([]*model.User, 0, len(rows))
	for _, raw := range rows {
		var u model.User
		if err := json.Unmarshal([]byte(raw), &u); err != nil {
			return nil, goerr.Wrap(err, "failed to decode user")
		}
		out = append(out, &u)
	}
	return out, nil
}

func (r *userRepository) SetActive(ctx context.Context, id model.UserID, active bool) error {
	res, err := r.s.db.ExecContext(ctx, `UPDATE users SET active = ? WHERE id = ?`, active, id)
	if err != nil {
		return goerr.Wrap(err, "failed to set active", goerr.V("userID", id))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return goerr.Wrap(interfaces.ErrNotFound, "user not found", goerr.V("userID", id))
	}
	return nil
}

func (r *userRepository) SetAuthExpired(ctx context.Context, id model.UserID, expired bool) error {
	u, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	u.AuthExpired = expired
	_, err = r.Update(ctx, u)
	return err
}
