package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/projectloop/mailgrouper/pkg/domain/model"
	"google.golang.org/api/iterator"
)

type correctionRepository struct {
	client *firestore.Client
	prefix string
}

func (r *correctionRepository) collection() string {
	if r.prefix != "" {
		return r.prefix + "_corrections"
	}
	return "corrections"
}

func (r *correctionRepository) Append(ctx context.Context, c *model.Correction) error {
	if c.ID == "" {
		c.ID = model.CorrectionID(uuid.NewString())
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := r.client.Collection(r.collection()).Doc(string(c.ID)).Create(ctx, c)
	if err != nil {
		return goerr.Wrap(err, "failed to append correction", goerr.V("id", c.ID))
	}
	return nil
}

func (r *correctionRepository) ListUnprocessed(ctx context.Context, userID model.UserID, limit int) ([]*model.Correction, error) {
	q := r.client.Collection(r.collection()).
		Where("UserID", "==", userID).
		Where("Processed", "==", false).
		OrderBy("CreatedAt", firestore.Asc)
	if limit > 0 {
		q = q.Limit(limit)
	}
	iter := q.Documents(ctx)
	defer iter.Stop()
	return drainCorrections(iter)
}

func (r *correctionRepository) MarkProcessed(ctx context.Context, userID model.UserID, id model.CorrectionID) error {
	_, err := r.client.Collection(r.collection()).Doc(string(id)).Update(ctx, []firestore.Update{
		{Path: "Processed", Value: true},
	})
	if err != nil {
		return goerr.Wrap(err, "failed to mark correction processed", goerr.V("id", id))
	}
	return nil
}

func (r *correctionRepository) ListByProject(ctx context.Context, userID model.UserID, projectID model.ProjectID) ([]*model.Correction, error) {
	iter := r.client.Collection(r.collection()).
		Where("UserID", "==", userID).
		Where("ProjectID", "==", projectID).
		Documents(ctx)
	defer iter.Stop()
	return drainCorrections(iter)
}

func drainCorrections(iter *firestore.DocumentIterator) ([]*model.Correction, error) {
	var out []*model.Correction
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to list corrections")
		}
		var c model.Correction
		if err := doc.DataTo(&c); err != nil {
			return nil, goerr.Wrap(err, "failed to decode correction")
		}
		out = append(out, &c)
	}
	return out, nil
}
