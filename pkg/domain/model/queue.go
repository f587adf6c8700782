package model

import (
	"time"

	"github.com/projectloop/mailgrouper/pkg/domain/types"
)

// QueueItemID is an opaque identifier for a QueueItem, unique within its
// owning queue.
type QueueItemID string

// QueueName distinguishes the NotificationQueue (C4) from the
// AIProcessingQueue (C6) — both share the generic engine in pkg/queue.
type QueueName string

const (
	QueueNotification QueueName = "notification"
	QueueAIProcessing QueueName = "ai_processing"
	// QueueReflection carries ReflectionTask payloads enqueued by
	// ResolveAndPersist (spec §4.7 "side effects") for the LabelReflector
	// (C8) to drain. Kept distinct from QueueNotification so a single
	// worker loop doesn't need to branch on payload shape.
	QueueReflection QueueName = "reflection"
)

// ReflectionTask is the QueueReflection payload: one message's resolved
// project, awaiting a label-apply call to the provider (spec §4.8).
type ReflectionTask struct {
	MessageID MessageID
	ProjectID ProjectID
}

// QueueItem is a durable, leased unit of work. Priority 1 is highest, 10
// lowest (spec §4.4).
type QueueItem struct {
	ID            QueueItemID
	Queue         QueueName
	UserID        UserID
	Priority      int
	Payload       []byte // JSON-encoded MessageEvent or ProcessingTask
	DedupKey      string // enqueue() idempotency key
	Status        types.QueueStatus
	Attempts      int
	MaxAttempts   int
	NextVisibleAt time.Time
	LeaseOwner    string
	LeaseExpiresAt time.Time
	ErrorSummary  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ProcessingTask is the AIProcessingQueue payload shape (spec §4.6).
type ProcessingTask struct {
	Kind          types.ProcessingTaskKind
	UserID        UserID
	MessageID     MessageID `json:"MessageID,omitempty"`
	ThreadID      ThreadID  `json:"ThreadID,omitempty"`
	BatchMessageIDs []MessageID `json:"BatchMessageIDs,omitempty"`

	// Retroactive scan slice fields (SPEC_FULL §11: incremental_processing.py).
	CursorStart string `json:"CursorStart,omitempty"`
	CursorEnd   string `json:"CursorEnd,omitempty"`
	RangeStart  time.Time `json:"RangeStart,omitempty"`
	RangeEnd    time.Time `json:"RangeEnd,omitempty"`
}
