package interfaces

import (
	"context"
	"io"
	"time"

	"github.com/projectloop/mailgrouper/pkg/domain/model"
)

// Repository is the Metastore (C11) facade. Every method group is
// transactional where the spec demands atomicity (ResolveAndPersist).
type Repository interface {
	User() UserRepository
	Project() ProjectRepository
	Mapping() MappingRepository
	Attachment() AttachmentRepository
	Correction() CorrectionRepository
	LearningPattern() LearningPatternRepository
	Watch() WatchRepository
	ScanConfig() ScanConfigRepository
	Audit() AuditRepository
	Queue() QueueRepository

	// ResolveAndPersist atomically writes a new mapping, updates the
	// target project's counters and (optionally) enqueues a reflection
	// task, per spec §4.7 "side effects" and §4.11's transactional
	// requirement. fn runs inside a single transaction; any error aborts
	// the whole write.
	ResolveAndPersist(ctx context.Context, userID model.UserID, fn func(tx ResolveTx) error) error

	io.Closer
}

// ResolveTx is the transactional handle passed to ResolveAndPersist.
type ResolveTx interface {
	PutMapping(ctx context.Context, m *model.EmailProjectMapping) error
	PutProject(ctx context.Context, p *model.Project) error
	EnqueueReflection(ctx context.Context, userID model.UserID, messageID model.MessageID, projectID model.ProjectID) error
}

// UserRepository is the CRUD surface over User.
type UserRepository interface {
	Create(ctx context.Context, u *model.User) (*model.User, error)
	Get(ctx context.Context, id model.UserID) (*model.User, error)
	Update(ctx context.Context, u *model.User) (*model.User, error)
	List(ctx context.Context) ([]*model.User, error)
	SetActive(ctx context.Context, id model.UserID, active bool) error
	SetAuthExpired(ctx context.Context, id model.UserID, expired bool) error
}

// ProjectRepository is the CRUD surface over Project, plus the lookup
// queries the resolver needs for candidate scanning.
type ProjectRepository interface {
	Create(ctx context.Context, userID model.UserID, p *model.Project) (*model.Project, error)
	Get(ctx context.Context, userID model.UserID, id model.ProjectID) (*model.Project, error)
	Update(ctx context.Context, userID model.UserID, p *model.Project) (*model.Project, error)
	Delete(ctx context.Context, userID model.UserID, id model.ProjectID) error
	// List returns projects for a user, optionally filtered by status.
	List(ctx context.Context, userID model.UserID, status string) ([]*model.Project, error)
	// ListActive returns every non-archived project for a user — the
	// candidate set the resolver scans against (cached per §5).
	ListActive(ctx context.Context, userID model.UserID) ([]*model.Project, error)
}

// MappingRepository is the CRUD surface over EmailProjectMapping.
type MappingRepository interface {
	Put(ctx context.Context, userID model.UserID, m *model.EmailProjectMapping) error
	GetActive(ctx context.Context, userID model.UserID, messageID model.MessageID) (*model.EmailProjectMapping, error)
	ListByProject(ctx context.Context, userID model.UserID, projectID model.ProjectID) ([]*model.EmailProjectMapping, error)
	ListByThread(ctx context.Context, userID model.UserID, threadID model.ThreadID) ([]*model.EmailProjectMapping, error)
	Deactivate(ctx context.Context, userID model.UserID, messageID model.MessageID) error
	// Repoint moves every active mapping for the given messages to
	// newProject (used by merge/split, spec §4.9).
	Repoint(ctx context.Context, userID model.UserID, messageIDs []model.MessageID, newProject model.ProjectID) error
	// ListReflectionPending returns active mappings whose label reflection
	// persistently failed, for C8's reconciliation pass (spec §4.8).
	ListReflectionPending(ctx context.Context, userID model.UserID) ([]*model.EmailProjectMapping, error)
}

// AttachmentRepository is the CRUD surface over Attachment.
type AttachmentRepository interface {
	Put(ctx context.Context, a *model.Attachment) error
	ListByMessage(ctx context.Context, userID model.UserID, messageID model.MessageID) ([]*model.Attachment, error)
	// ReassignProject updates the weak project_id reference for every
	// attachment of a message (spec §3 Attachment lifecycle).
	ReassignProject(ctx context.Context, userID model.UserID, messageID model.MessageID, projectID model.ProjectID) error
}

// CorrectionRepository is the append-only store for Correction (C9).
type CorrectionRepository interface {
	Append(ctx context.Context, c *model.Correction) error
	ListUnprocessed(ctx context.Context, userID model.UserID, limit int) ([]*model.Correction, error)
	MarkProcessed(ctx context.Context, userID model.UserID, id model.CorrectionID) error
	ListByProject(ctx context.Context, userID model.UserID, projectID model.ProjectID) ([]*model.Correction, error)
}

// LearningPatternRepository is the store for derived LearningPatterns.
type LearningPatternRepository interface {
	Put(ctx context.Context, p *model.LearningPattern) error
	ListActive(ctx context.Context, userID model.UserID) ([]*model.LearningPattern, error)
	IncrementUsage(ctx context.Context, userID model.UserID, id model.LearningPatternID) error
	Deactivate(ctx context.Context, userID model.UserID, id model.LearningPatternID) error
}

// WatchRepository stores WatchSubscription.
type WatchRepository interface {
	Put(ctx context.Context, w *model.WatchSubscription) error
	Get(ctx context.Context, userID model.UserID) (*model.WatchSubscription, error)
	ListDueForRenewal(ctx context.Context, margin time.Duration, now time.Time) ([]*model.WatchSubscription, error)
	Delete(ctx context.Context, userID model.UserID) error
}

// ScanConfigRepository stores per-user ScanConfig (SPEC_FULL §11).
type ScanConfigRepository interface {
	Get(ctx context.Context, userID model.UserID) (*model.ScanConfig, error)
	Put(ctx context.Context, c *model.ScanConfig) error
}

// AuditRepository stores raw request AuditEvents (SPEC_FULL §11).
type AuditRepository interface {
	Append(ctx context.Context, e *model.AuditEvent) error
	ListByUser(ctx context.Context, userID model.UserID, limit int) ([]*model.AuditEvent, error)
}

// QueueRepository is the durable backing store behind the generic queue
// engine in pkg/queue — C4 and C6 share this contract (spec §4.4, §4.6).
type QueueRepository interface {
	// Enqueue is idempotent on (user, dedupKey); a re-enqueue raises
	// priority to max(existing, new) per spec §4.4.
	Enqueue(ctx context.Context, item *model.QueueItem) (*model.QueueItem, error)
	// Reserve leases up to n pending/visible items for owner, ordered by
	// priority then created_at within a user.
	Reserve(ctx context.Context, queue model.QueueName, owner string, n int, lease time.Duration) ([]*model.QueueItem, error)
	Complete(ctx context.Context, id model.QueueItemID) error
	Fail(ctx context.Context, id model.QueueItemID, errSummary string, retryable bool, nextVisibleAt time.Time, maxAttempts int) error
	PeekStats(ctx context.Context, queue model.QueueName) (QueueStats, error)
	ListDead(ctx context.Context, queue model.QueueName, limit int) ([]*model.QueueItem, error)
}

// QueueStats summarizes a queue's depth by status (admin/backpressure use).
type QueueStats struct {
	Pending    int
	Processing int
	Completed  int
	Failed     int
	Dead       int
}
