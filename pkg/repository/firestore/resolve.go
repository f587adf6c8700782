package firestore

import (
	"context"
	"encoding/json"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/projectloop/mailgrouper/pkg/domain/interfaces"
	"github.com/projectloop/mailgrouper/pkg/domain/model"
)

type firestoreResolveTx struct {
	tx         *firestore.Transaction
	f          *Firestore
	mappingRef func(userID model.UserID, messageID model.MessageID) *firestore.DocumentRef
	projectRef func(userID model.UserID, id model.ProjectID) *firestore.DocumentRef
	queueRef   func() *firestore.DocumentRef
}

func (t *firestoreResolveTx) PutMapping(ctx context.Context, m *model.EmailProjectMapping) error {
	ref := t.mappingRef(m.UserID, m.MessageID)
	now := time.Now().UTC()
	m.UpdatedAt = now
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	return t.tx.Set(ref, m)
}

func (t *firestoreResolveTx) PutProject(ctx context.Context, p *model.Project) error {
	ref := t.projectRef(p.UserID, p.ID)
	p.UpdatedAt = time.Now().UTC()
	return t.tx.Set(ref, p)
}

func (t *firestoreResolveTx) EnqueueReflection(ctx context.Context, userID model.UserID, messageID model.MessageID, projectID model.ProjectID) error {
	now := time.Now().UTC()
	payload, err := json.Marshal(model.ReflectionTask{MessageID: messageID, ProjectID: projectID})
	if err != nil {
		return goerr.Wrap(err, "marshal reflection task")
	}
	item := &model.QueueItem{
		ID:        model.QueueItemID(uuid.NewString()),
		Queue:     model.QueueReflection,
		UserID:    userID,
		DedupKey:  "reflect:" + string(messageID),
		Payload:   payload,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return t.tx.Create(t.queueRef(), item)
}

// ResolveAndPersist runs fn inside a single Firestore transaction, giving the
// mapping write, project counter update and reflection enqueue the
// all-or-nothing semantics spec §4.11 requires.
func (f *Firestore) ResolveAndPersist(ctx context.Context, userID model.UserID, fn func(tx interfaces.ResolveTx) error) error {
	err := f.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		rtx := &firestoreResolveTx{
			tx: tx,
			f:  f,
			mappingRef: func(userID model.UserID, messageID model.MessageID) *firestore.DocumentRef {
				return f.client.Collection(f.mapping.collection()).Doc(string(userID) + "_" + string(messageID))
			},
			projectRef: func(userID model.UserID, id model.ProjectID) *firestore.DocumentRef {
				return f.client.Collection(f.project.collection()).Doc(string(userID) + "_" + string(id))
			},
			queueRef: func() *firestore.DocumentRef {
				return f.client.Collection(f.queue.collection()).NewDoc()
			},
		}
		return fn(rtx)
	})
	if err != nil {
		return goerr.Wrap(err, "resolve transaction failed", goerr.V("userID", userID))
	}
	return nil
}
