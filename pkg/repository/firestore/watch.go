package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/projectloop/mailgrouper/pkg/domain/interfaces"
	"github.com/projectloop/mailgrouper/pkg/domain/model"
	"github.com/projectloop/mailgrouper/pkg/domain/types"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type watchRepository struct {
	client *firestore.Client
	prefix string
}

func (r *watchRepository) collection() string {
	if r.prefix != "" {
		return r.prefix + "_watches"
	}
	return "watches"
}

func (r *watchRepository) Put(ctx context.Context, w *model.WatchSubscription) error {
	now := time.Now().UTC()
	if w.CreatedAt.IsZero() {
		w.CreatedAt = now
	}
	w.UpdatedAt = now
	_, err := r.client.Collection(r.collection()).Doc(string(w.UserID)).Set(ctx, w)
	if err != nil {
		return goerr.Wrap(err, "failed to put watch", goerr.V("userID", w.UserID))
	}
	return nil
}

func (r *watchRepository) Get(ctx context.Context, userID model.UserID) (*model.WatchSubscription, error) {
	doc, err := r.client.Collection(r.collection()).Doc(string(userID)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(interfaces.ErrNotFound, "watch not found", goerr.V("userID", userID))
		}
		return nil, goerr.Wrap(err, "failed to get watch", goerr.V("userID", userID))
	}
	var w model.WatchSubscription
	if err := doc.DataTo(&w); err != nil {
		return nil, goerr.Wrap(err, "failed to decode watch", goerr.V("userID", userID))
	}
	return &w, nil
}

func (r *watchRepository) ListDueForRenewal(ctx context.Context, margin time.Duration, now time.Time) ([]*model.WatchSubscription, error) {
	iter := r.client.Collection(r.collection()).
		Where("Kind", "==", string(types.WatchKindPush)).
		Documents(ctx)
	defer iter.Stop()

	var out []*model.WatchSubscription
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to list watches")
		}
		var w model.WatchSubscription
		if err := doc.DataTo(&w); err != nil {
			return nil, goerr.Wrap(err, "failed to decode watch")
		}
		if w.NeedsRenewal(margin, now) {
			out = append(out, &w)
		}
	}
	return out, nil
}

func (r *watchRepository) Delete(ctx context.Context, userID model.UserID) error {
	_, err := r.client.Collection(r.collection()).Doc(string(userID)).Delete(ctx)
	if err != nil {
		return goerr.Wrap(err, "failed to delete watch", goerr.V("userID", userID))
	}
	return nil
}
