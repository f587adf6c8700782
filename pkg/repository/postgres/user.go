package postgres

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/m-mizutani/goerr/v2"
	"github.com/projectloop/mailgrouper/pkg/domain/interfaces"
	"github.com/projectloop/mailgrouper/pkg/domain/model"
)

type userRepository struct {
	pool *pgxpool.Pool
}

func (r *userRepository) Create(ctx context.Context, u *model.User) (*model.User, error) {
	data, err := json.Marshal(u)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal user")
	}
	_, err = r.pool.Exec(ctx, `INSERT INTO users (id, active, data) VALUES ($1, $2, $3)`, u.ID, u.Active, data)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create user", goerr.V("userID", u.ID))
	}
	return u, nil
}

func (r *userRepository) Get(ctx context.Context, id model.UserID) (*model.User, error) {
	var data []byte
	err := r.pool.QueryRow(ctx, `SELECT data FROM users WHERE id = $1`, id).Scan(&data)
	if err == pgx.ErrNoRows {
		return nil, goerr.Wrap(interfaces.ErrNotFound, "user not found", goerr.V("userID", id))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get user", goerr.V("userID", id))
	}
	var u model.User
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, goerr.Wrap(err, "failed to decode user")
	}
	return &u, nil
}

func (r *userRepository) Update(ctx context.Context, u *model.User) (*model.User, error) {
	data, err := json.Marshal(u)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal user")
	}
	tag, err := r.pool.Exec(ctx, `UPDATE users SET active = $2, data = $3 WHERE id = $1`, u.ID, u.Active, data)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to update user", goerr.V("userID", u.ID))
	}
	if tag.RowsAffected() == 0 {
		return nil, goerr.Wrap(interfaces.ErrNotFound, "user not found", goerr.V("userID", u.ID))
	}
	return u, nil
}

func (r *userRepository) List(ctx context.Context) ([]*model.User, error) {
	rows, err := r.pool.Query(ctx, `SELECT data FROM users`)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list users")
	}
	defer rows.Close()

	var out []*model.User
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, goerr.Wrap(err, "failed to scan user")
		}
		var u model.User
		if err := json.Unmarshal(data, &u); err != nil {
			return nil, goerr.Wrap(err, "failed to decode user")
		}
		out = append(out, &u)
	}
	return out, rows.Err()
}

func (r *userRepository) SetActive(ctx context.Context, id model.UserID, active bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return goerr.Wrap(err, "failed to set active", goerr.V("userID", id))
	}
	if tag.RowsAffected() == 0 {
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
