package firestore

import (
	"context"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/projectloop/mailgrouper/pkg/domain/interfaces"
	"github.com/projectloop/mailgrouper/pkg/domain/model"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type userRepository struct {
	client *firestore.Client
	prefix string
}

func (r *userRepository) collection() string {
	if r.prefix != "" {
		return r.prefix + "_users"
	}
	return "users"
}

func (r *userRepository) Create(ctx context.Context, u *model.User) (*model.User, error) {
	_, err := r.client.Collection(r.collection()).Doc(string(u.ID)).Create(ctx, u)
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return nil, goerr.Wrap(interfaces.ErrAlreadyExists, "user already exists", goerr.V("userID", u.ID))
		}
		return nil, goerr.Wrap(err, "failed to create user", goerr.V("userID", u.ID))
	}
	return u, nil
}

func (r *userRepository) Get(ctx context.Context, id model.UserID) (*model.User, error) {
	doc, err := r.client.Collection(r.collection()).Doc(string(id)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(interfaces.ErrNotFound, "user not found", goerr.V("userID", id))
		}
		return nil, goerr.Wrap(err, "failed to get user", goerr.V("userID", id))
	}
	var u model.User
	if err := doc.DataTo(&u); err != nil {
		return nil, goerr.Wrap(err, "failed to decode user", goerr.V("userID", id))
	}
	return &u, nil
}

func (r *userRepository) Update(ctx context.Context, u *model.User) (*model.User, error) {
	_, err := r.client.Collection(r.collection()).Doc(string(u.ID)).Set(ctx, u)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to update user", goerr.V("userID", u.ID))
	}
	return u, nil
}

func (r *userRepository) List(ctx context.Context) ([]*model.User, error) {
	iter := r.client.Collection(r.collection()).Documents(ctx)
	defer iter.Stop()

	var out []*model.User
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to list users")
		}
		var u model.User
		if err := doc.DataTo(&u); err != nil {
			return nil, goerr.Wrap(err, "failed to decode user")
		}
		out = append(out, &u)
	}
	return out, nil
}

func (r *userRepository) SetActive(ctx context.Context, id model.UserID, active bool) error {
	_, err := r.client.Collection(r.collection()).Doc(string(id)).Update(ctx, []firestore.Update{
		{Path: "Active", Value: active},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return goerr.Wrap(interfaces.ErrNotFound, "user not found", goerr.V("userID", id))
		}
		return goerr.Wrap(err, "failed to set active", goerr.V("userID", id))
	}
	return nil
}

func (r *userRepository) SetAuthExpired(ctx context.Context, id model.UserID, expired bool) error {
	_, err := r.client.Collection(r.collection()).Doc(string(id)).Update(ctx, []firestore.Update{
		{Path: "AuthExpired", Value: expired},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return goerr.Wrap(interfaces.ErrNotFound, "user not found", goerr.V("userID", id))
		}
		return goerr.Wrap(err, "failed to set auth expired", goerr.V("userID", id))
	}
	return nil
}
