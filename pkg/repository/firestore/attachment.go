package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/projectloop/mailgrouper/pkg/domain/model"
	"google.golang.org/api/iterator"
)

type attachmentRepository struct {
	client *firestore.Client
	prefix string
}

func (r *attachmentRepository) collection() string {
	if r.prefix != "" {
		return r.prefix + "_attachments"
	}
	return "attachments"
}

func (r *attachmentRepository) docID(a *model.Attachment) string {
	return string(a.UserID) + "_" + string(a.MessageID) + "_" + a.AttachmentID
}

func (r *attachmentRepository) Put(ctx context.Context, a *model.Attachment) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := r.client.Collection(r.collection()).Doc(r.docID(a)).Set(ctx, a)
	if err != nil {
		return goerr.Wrap(err, "failed to put attachment", goerr.V("attachmentID", a.AttachmentID))
	}
	return nil
}

func (r *attachmentRepository) ListByMessage(ctx context.Context, userID model.UserID, messageID model.MessageID) ([]*model.Attachment, error) {
	iter := r.client.Collection(r.collection()).
		Where("UserID", "==", userID).
		Where("MessageID", "==", messageID).
		Documents(ctx)
	defer iter.Stop()

	var out []*model.Attachment
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to list attachments")
		}
		var a model.Attachment
		if err := doc.DataTo(&a); err != nil {
			return nil, goerr.Wrap(err, "failed to decode attachment")
		}
		out = append(out, &a)
	}
	return out, nil
}

func (r *attachmentRepository) ReassignProject(ctx context.Context, userID model.UserID, messageID model.MessageID, projectID model.ProjectID) error {
	attachments, err := r.ListByMessage(ctx, userID, messageID)
	if err != nil {
		return err
	}
	bulk := r.client.BulkWriter(ctx)
	for _, a := range attachments {
		ref := r.client.Collection(r.collection()).Doc(r.docID(a))
		if _, err := bulk.Update(ref, []firestore.Update{{Path: "ProjectID", Value: projectID}}); err != nil {
			return goerr.Wrap(err, "failed to queue reassign", goerr.V("attachmentID", a.AttachmentID))
		}
	}
	bulk.End()
	return nil
}
