package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/projectloop/mailgrouper/pkg/domain/interfaces"
	"github.com/projectloop/mailgrouper/pkg/domain/model"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type learningPatternRepository struct {
	client *firestore.Client
	prefix string
}

func (r *learningPatternRepository) collection() string {
	if r.prefix != "" {
		return r.prefix + "_learning_patterns"
	}
	return "learning_patterns"
}

func (r *learningPatternRepository) Put(ctx context.Context, p *model.LearningPattern) error {
	now := time.Now().UTC()
	if p.ID == "" {
		p.ID = model.LearningPatternID(uuid.NewString())
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	_, err := r.client.Collection(r.collection()).Doc(string(p.ID)).Set(ctx, p)
	if err != nil {
		return goerr.Wrap(err, "failed to put learning pattern", goerr.V("id", p.ID))
	}
	return nil
}

func (r *learningPatternRepository) ListActive(ctx context.Context, userID model.UserID) ([]*model.LearningPattern, error) {
	iter := r.client.Collection(r.collection()).
		Where("UserID", "==", userID).
		Where("Active", "==", true).
		Documents(ctx)
	defer iter.Stop()

	var out []*model.LearningPattern
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to list learning patterns")
		}
		var p model.LearningPattern
		if err := doc.DataTo(&p); err != nil {
			return nil, goerr.Wrap(err, "failed to decode learning pattern")
		}
		out = append(out, &p)
	}
	return out, nil
}

func (r *learningPatternRepository) IncrementUsage(ctx context.Context, userID model.UserID, id model.LearningPatternID) error {
	_, err := r.client.Collection(r.collection()).Doc(string(id)).Update(ctx, []firestore.Update{
		{Path: "UsageCount", Value: firestore.Increment(1)},
		{Path: "UpdatedAt", Value: time.Now().UTC()},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return goerr.Wrap(interfaces.ErrNotFound, "learning pattern not found", goerr.V("id", id))
		}
		return goerr.Wrap(err, "failed to increment usage", goerr.V("id", id))
	}
	return nil
}

func (r *learningPatternRepository) Deactivate(ctx context.Context, userID model.UserID, id model.LearningPatternID) error {
	_, err := r.client.Collection(r.collection()).Doc(string(id)).Update(ctx, []firestore.Update{
		{Path: "Active", Value: false},
		{Path: "UpdatedAt", Value: time.Now().UTC()},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return goerr.Wrap(interfaces.ErrNotFound, "learning pattern not found", goerr.V("id", id))
		}
		return goerr.Wrap(err, "failed to deactivate learning pattern", goerr.V("id", id))
	}
	return nil
}
