package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/projectloop/mailgrouper/pkg/domain/interfaces"
	"github.com/projectloop/mailgrouper/pkg/domain/model"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type mappingRepository struct {
	client *firestore.Client
	prefix string
}

func (r *mappingRepository) collection() string {
	if r.prefix != "" {
		return r.prefix + "_mappings"
	}
	return "mappings"
}

func (r *mappingRepository) docID(userID model.UserID, messageID model.MessageID) string {
	return string(userID) + "_" + string(messageID)
}

func (r *mappingRepository) Put(ctx context.Context, userID model.UserID, m *model.EmailProjectMapping) error {
	m.UserID = userID
	m.UpdatedAt = time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = m.UpdatedAt
	}
	_, err := r.client.Collection(r.collection()).Doc(r.docID(userID, m.MessageID)).Set(ctx, m)
	if err != nil {
		return goerr.Wrap(err, "failed to put mapping", goerr.V("messageID", m.MessageID))
	}
	return nil
}

func (r *mappingRepository) GetActive(ctx context.Context, userID model.UserID, messageID model.MessageID) (*model.EmailProjectMapping, error) {
	doc, err := r.client.Collection(r.collection()).Doc(r.docID(userID, messageID)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(interfaces.ErrNotFound, "mapping not found", goerr.V("messageID", messageID))
		}
		return nil, goerr.Wrap(err, "failed to get mapping", goerr.V("messageID", messageID))
	}
	var m model.EmailProjectMapping
	if err := doc.DataTo(&m); err != nil {
		return nil, goerr.Wrap(err, "failed to decode mapping", goerr.V("messageID", messageID))
	}
	if !m.Active {
		return nil, goerr.Wrap(interfaces.ErrNotFound, "active mapping not found", goerr.V("messageID", messageID))
	}
	return &m, nil
}

func (r *mappingRepository) ListByProject(ctx context.Context, userID model.UserID, projectID model.ProjectID) ([]*model.EmailProjectMapping, error) {
	iter := r.client.Collection(r.collection()).
		Where("UserID", "==", userID).
		Where("ProjectID", "==", projectID).
		Documents(ctx)
	defer iter.Stop()
	return drainMappings(iter)
}

func (r *mappingRepository) ListByThread(ctx context.Context, userID model.UserID, threadID model.ThreadID) ([]*model.EmailProjectMapping, error) {
	iter := r.client.Collection(r.collection()).
		Where("UserID", "==", userID).
		Where("ThreadID", "==", threadID).
		Documents(ctx)
	defer iter.Stop()
	return drainMappings(iter)
}

func (r *mappingRepository) ListReflectionPending(ctx context.Context, userID model.UserID) ([]*model.EmailProjectMapping, error) {
	iter := r.client.Collection(r.collection()).
		Where("UserID", "==", userID).
		Where("Active", "==", true).
		Where("ReflectionPending", "==", true).
		Documents(ctx)
	defer iter.Stop()
	return drainMappings(iter)
}

func (r *mappingRepository) Deactivate(ctx context.Context, userID model.UserID, messageID model.MessageID) error {
	_, err := r.client.Collection(r.collection()).Doc(r.docID(userID, messageID)).Update(ctx, []firestore.Update{
		{Path: "Active", Value: false},
		{Path: "UpdatedAt", Value: time.Now().UTC()},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return goerr.Wrap(interfaces.ErrNotFound, "mapping not found", goerr.V("messageID", messageID))
		}
		return goerr.Wrap(err, "failed to deactivate mapping", goerr.V("messageID", messageID))
	}
	return nil
}

func (r *mappingRepository) Repoint(ctx context.Context, userID model.UserID, messageIDs []model.MessageID, newProject model.ProjectID) error {
	bulk := r.client.BulkWriter(ctx)
	for _, id := range messageIDs {
		ref := r.client.Collection(r.collection()).Doc(r.docID(userID, id))
		if _, err := bulk.Update(ref, []firestore.Update{
			{Path: "ProjectID", Value: newProject},
			{Path: "UpdatedAt", Value: time.Now().UTC()},
		}); err != nil {
			return goerr.Wrap(err, "failed to queue repoint", goerr.V("messageID", id))
		}
	}
	bulk.End()
	return nil
}

func drainMappings(iter *firestore.DocumentIterator) ([]*model.EmailProjectMapping, error) {
	var out []*model.EmailProjectMapping
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to list mappings")
		}
		var m model.EmailProjectMapping
		if err := doc.DataTo(&m); err != nil {
			return nil, goerr.Wrap(err, "failed to decode mapping")
		}
		out = append(out, &m)
	}
	return out, nil
}
