// Package sqlite is the jmoiron/sqlx + mattn/go-sqlite3 Metastore (C11)
// backend for single-node deployments that want a durable store without a
// separate database process. Schema and JSON-document layout mirror
// pkg/repository/postgres. The pool is held to one open connection since the
// mattn/go-sqlite3 driver does not itself arbitrate SQLITE_BUSY retries;
// Reserve and ResolveAndPersist also hold mu across their transactions.
package sqlite

import (
	"context"
	"sync"

	"github.com/jmoiron/sqlx"
	"github.com/m-mizutani/goerr/v2"
	"github.com/projectloop/mailgrouper/pkg/domain/interfaces"
	"github.com/projectloop/mailgrouper/pkg/domain/model"

	_ "github.com/mattn/go-sqlite3"
)

type Sqlite struct {
	db *sqlx.DB
	mu sync.Mutex

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

var _ interfaces.Repository = &Sqlite{}

// New opens (creating if absent) the sqlite database at path and applies the
// schema.
func New(path string) (*Sqlite, error) {
	db, err := sqlx.Connect("sqlite3", path+"?_journal=WAL&_fk=true")
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open sqlite database", goerr.V("path", path))
	}
	db.SetMaxOpenConns(1) // mattn/go-sqlite3 serializes writes; one conn avoids SQLITE_BUSY

	s := &Sqlite{db: db}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, goerr.Wrap(err, "failed to apply schema")
	}

	s.user = &userRepository{s: s}
	s.project = &projectRepository{s: s}
	s.mapping = &mappingRepository{s: s}
	s.attachment = &attachmentRepository{s: s}
	s.correction = &correctionRepository{s: s}
	s.learningPattern = &learningPatternRepository{s: s}
	s.watch = &watchRepository{s: s}
	s.scanConfig = &scanConfigRepository{s: s}
	s.audit = &auditRepository{s: s}
	s.queue = &queueRepository{s: s}
	return s, nil
}

func (s *Sqlite) User() interfaces.UserRepository                       { return s.user }
func (s *Sqlite) Project() interfaces.ProjectRepository                 { return s.project }
func (s *Sqlite) Mapping() interfaces.MappingRepository                 { return s.mapping }
func (s *Sqlite) Attachment() interfaces.AttachmentRepository           { return s.attachment }
func (s *Sqlite) Correction() interfaces.CorrectionRepository           { return s.correction }
func (s *Sqlite) LearningPattern() interfaces.LearningPatternRepository { return s.learningPattern }
func (s *Sqlite) Watch() interfaces.WatchRepository                     { return s.watch }
func (s *Sqlite) ScanConfig() interfaces.ScanConfigRepository           { return s.scanConfig }
func (s *Sqlite) Audit() interfaces.AuditRepository                     { return s.audit }
func (s *Sqlite) Queue() interfaces.QueueRepository                     { return s.queue }

func (s *Sqlite) Close() error {
	return s.db.Close()
}

// ResolveAndPersist wraps fn in a single sqlx transaction plus the
// process-wide write mutex, giving the same atomicity guarantee as the
// postgres and firestore backends (spec §4.11).
func (s *Sqlite) ResolveAndPersist(ctx context.Context, userID model.UserID, fn func(tx interfaces.ResolveTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return goerr.Wrap(err, "failed to begin transaction")
	}
	defer sqlTx.Rollback() //nolint:errcheck

	rtx := &sqliteResolveTx{tx: sqlTx}
	if err := fn(rtx); err != nil {
		return goerr.Wrap(err, "resolve callback failed")
	}
	if err := sqlTx.Commit(); err != nil {
		return goerr.Wrap(err, "failed to commit resolve transaction")
	}
	return nil
}
