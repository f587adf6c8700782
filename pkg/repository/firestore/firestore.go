// Package firestore is the Cloud Firestore Metastore (C11) backend, grounded
// on the teacher's pkg/repository/firestore package: one collection per
// entity, an optional collection prefix for multi-environment deployments,
// RunTransaction for the atomic resolve-and-persist path.
package firestore

import (
	"context"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/projectloop/mailgrouper/pkg/domain/interfaces"
)

type Firestore struct {
	client *firestore.Client

	user            *userRepository
	project         *projectRepository
	mapping         *mappingRepository
	attachment      *attachmentRepository
	correction      *correctionRepository
	learningPattern *learningPatternRepository
	watch           *watchRepository
	scanConfig      *scanConfigRepository
	audit           *auditRepository
	queue           *queueRepository
}

var _ interfaces.Repository = &Firestore{}

type Option func(*Firestore)

// WithCollectionPrefix namespaces every collection, e.g. for a staging
// project sharing a Firestore database with production.
func WithCollectionPrefix(prefix string) Option {
	return func(f *Firestore) {
		f.user.prefix = prefix
		f.project.prefix = prefix
		f.mapping.prefix = prefix
		f.attachment.prefix = prefix
		f.correction.prefix = prefix
		f.learningPattern.prefix = prefix
		f.watch.prefix = prefix
		f.scanConfig.prefix = prefix
		f.audit.prefix = prefix
		f.queue.prefix = prefix
	}
}

func New(ctx context.Context, projectID string, opts ...Option) (*Firestore, error) {
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client", goerr.V("projectID", projectID))
	}

	f := &Firestore{
		client:          client,
		user:            &userRepository{client: client},
		project:         &projectRepository{client: client},
		mapping:         &mappingRepository{client: client},
		attachment:      &attachmentRepository{client: client},
		correction:      &correctionRepository{client: client},
		learningPattern: &learningPatternRepository{client: client},
		watch:           &watchRepository{client: client},
		scanConfig:      &scanConfigRepository{client: client},
		audit:           &auditRepository{client: client},
		queue:           &queueRepository{client: client},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

func (f *Firestore) User() interfaces.UserRepository                       { return f.user }
func (f *Firestore) Project() interfaces.ProjectRepository                 { return f.project }
func (f *Firestore) Mapping() interfaces.MappingRepository                 { return f.mapping }
func (f *Firestore) Attachment() interfaces.AttachmentRepository           { return f.attachment }
func (f *Firestore) Correction() interfaces.CorrectionRepository           { return f.correction }
func (f *Firestore) LearningPattern() interfaces.LearningPatternRepository { return f.learningPattern }
func (f *Firestore) Watch() interfaces.WatchRepository                     { return f.watch }
func (f *Firestore) ScanConfig() interfaces.ScanConfigRepository           { return f.scanConfig }
func (f *Firestore) Audit() interfaces.AuditRepository                     { return f.audit }
func (f *Firestore) Queue() interfaces.QueueRepository                     { return f.queue }

func (f *Firestore) Close() error {
	return f.client.Close()
}
