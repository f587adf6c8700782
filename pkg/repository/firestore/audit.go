package firestore

import (
	"context"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/projectloop/mailgrouper/pkg/domain/model"
	"google.golang.org/api/iterator"
)

type auditRepository struct {
	client *firestore.Client
	prefix string
}

func (r *auditRepository) collection() string {
	if r.prefix != "" {
		return r.prefix + "_audit_events"
	}
	return "audit_events"
}

func (r *auditRepository) Append(ctx context.Context, e *model.AuditEvent) error {
	_, err := r.client.Collection(r.collection()).Doc(uuid.NewString()).Create(ctx, e)
	if err != nil {
		return goerr.Wrap(err, "failed to append audit event", goerr.V("userID", e.UserID))
	}
	return nil
}

func (r *auditRepository) ListByUser(ctx context.Context, userID model.UserID, limit int) ([]*model.AuditEvent, error) {
	q := r.client.Collection(r.collection()).
		Where("UserID", "==", userID).
		OrderBy("At", firestore.Desc)
	if limit > 0 {
		q = q.Limit(limit)
	}
	iter := q.Documents(ctx)
	defer iter.Stop()

	var out []*model.AuditEvent
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to list audit events")
		}
		var e model.AuditEvent
		if err := doc.DataTo(&e); err != nil {
			return nil, goerr.Wrap(err, "failed to decode audit event")
		}
		out = append(out, &e)
	}
	return out, nil
}
