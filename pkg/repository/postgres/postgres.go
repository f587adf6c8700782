// Package postgres is the jackc/pgx/v5 Metastore (C11) backend for
// deployments that want a relational store without Firestore's GCP
// dependency. Every entity is a JSONB document indexed on the columns the
// repository interfaces actually query by.
package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/m-mizutani/goerr/v2"
	"github.com/projectloop/mailgrouper/pkg/domain/interfaces"
	"github.com/projectloop/mailgrouper/pkg/domain/model"
)

type Postgres struct {
	pool *pgxpool.Pool

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

var _ interfaces.Repository = &Postgres{}

// New connects to dsn and applies the schema. Safe to call against an
// already-migrated database.
func New(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to connect to postgres")
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, goerr.Wrap(err, "failed to apply schema")
	}

	return &Postgres{
		pool:            pool,
		user:            &userRepository{pool: pool},
		project:         &projectRepository{pool: pool},
		mapping:         &mappingRepository{pool: pool},
		attachment:      &attachmentRepository{pool: pool},
		correction:      &correctionRepository{pool: pool},
		learningPattern: &learningPatternRepository{pool: pool},
		watch:           &watchRepository{pool: pool},
		scanConfig:      &scanConfigRepository{pool: pool},
		audit:           &auditRepository{pool: pool},
		queue:           &queueRepository{pool: pool},
	}, nil
}

func (p *Postgres) User() interfaces.UserRepository                       { return p.user }
func (p *Postgres) Project() interfaces.ProjectRepository                 { return p.project }
func (p *Postgres) Mapping() interfaces.MappingRepository                 { return p.mapping }
func (p *Postgres) Attachment() interfaces.AttachmentRepository           { return p.attachment }
func (p *Postgres) Correction() interfaces.CorrectionRepository           { return p.correction }
func (p *Postgres) LearningPattern() interfaces.LearningPatternRepository { return p.learningPattern }
func (p *Postgres) Watch() interfaces.WatchRepository                     { return p.watch }
func (p *Postgres) ScanConfig() interfaces.ScanConfigRepository           { return p.scanConfig }
func (p *Postgres) Audit() interfaces.AuditRepository                     { return p.audit }
func (p *Postgres) Queue() interfaces.QueueRepository                     { return p.queue }

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

// ResolveAndPersist uses a single SQL transaction (pgx.Tx) so the mapping
// upsert, project counter update and reflection enqueue commit atomically
// (spec §4.11).
func (p *Postgres) ResolveAndPersist(ctx context.Context, userID model.UserID, fn func(tx interfaces.ResolveTx) error) error {
	sqlTx, err := p.pool.Begin(ctx)
	if err != nil {
		return goerr.Wrap(err, "failed to begin transaction")
	}
	defer sqlTx.Rollback(ctx) //nolint:errcheck

	rtx := &postgresResolveTx{tx: sqlTx}
	if err := fn(rtx); err != nil {
		return goerr.Wrap(err, "resolve callback failed")
	}
	if err := sqlTx.Commit(ctx); err != nil {
		return goerr.Wrap(err, "failed to commit resolve transaction")
	}
	return nil
}
