package firestore

import (
	"context"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/projectloop/mailgrouper/pkg/domain/interfaces"
	"github.com/projectloop/mailgrouper/pkg/domain/model"
	"github.com/projectloop/mailgrouper/pkg/domain/types"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type projectRepository struct {
	client *firestore.Client
	prefix string
}

func (r *projectRepository) collection() string {
	if r.prefix != "" {
		return r.prefix + "_projects"
	}
	return "projects"
}

func (r *projectRepository) docID(userID model.UserID, id model.ProjectID) string {
	return string(userID) + "_" + string(id)
}

func (r *projectRepository) Create(ctx context.Context, userID model.UserID, p *model.Project) (*model.Project, error) {
	p.UserID = userID
	if p.ID == "" {
		p.ID = model.ProjectID(uuid.NewString())
	}
	if p.Status == "" {
		p.Status = types.ProjectStatusActive
	}
	_, err := r.client.Collection(r.collection()).Doc(r.docID(userID, p.ID)).Create(ctx, p)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create project", goerr.V("projectID", p.ID))
	}
	return p, nil
}

func (r *projectRepository) Get(ctx context.Context, userID model.UserID, id model.ProjectID) (*model.Project, error) {
	doc, err := r.client.Collection(r.collection()).Doc(r.docID(userID, id)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(interfaces.ErrNotFound, "project not found", goerr.V("projectID", id))
		}
		return nil, goerr.Wrap(err, "failed to get project", goerr.V("projectID", id))
	}
	var p model.Project
	if err := doc.DataTo(&p); err != nil {
		return nil, goerr.Wrap(err, "failed to decode project", goerr.V("projectID", id))
	}
	return &p, nil
}

func (r *projectRepository) Update(ctx context.Context, userID model.UserID, p *model.Project) (*model.Project, error) {
	p.UserID = userID
	_, err := r.client.Collection(r.collection()).Doc(r.docID(userID, p.ID)).Set(ctx, p)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to update project", goerr.V("projectID", p.ID))
	}
	return p, nil
}

func (r *projectRepository) Delete(ctx context.Context, userID model.UserID, id model.ProjectID) error {
	_, err := r.client.Collection(r.collection()).Doc(r.docID(userID, id)).Delete(ctx)
	if err != nil {
		return goerr.Wrap(err, "failed to delete project", goerr.V("projectID", id))
	}
	return nil
}

func (r *projectRepository) List(ctx context.Context, userID model.UserID, status string) ([]*model.Project, error) {
	q := r.client.Collection(r.collection()).Where("UserID", "==", userID)
	if status != "" {
		q = q.Where("Status", "==", status)
	}
	iter := q.Documents(ctx)
	defer iter.Stop()
	return drainProjects(iter)
}

func (r *projectRepository) ListActive(ctx context.Context, userID model.UserID) ([]*model.Project, error) {
	q := r.client.Collection(r.collection()).
		Where("UserID", "==", userID).
		Where("Status", "!=", string(types.ProjectStatusArchived))
	iter := q.Documents(ctx)
	defer iter.Stop()
	return drainProjects(iter)
}

func drainProjects(iter *firestore.DocumentIterator) ([]*model.Project, error) {
	var out []*model.Project
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to list projects")
		}
		var p model.Project
		if err := doc.DataTo(&p); err != nil {
			return nil, goerr.Wrap(err, "failed to decode project")
		}
		out = append(out, &p)
	}
	return out, nil
}
