package model

import (
	"time"

	"github.com/projectloop/mailgrouper/pkg/domain/types"
)

// EmailProjectMapping associates a provider message with a project.
// Invariants (spec §3): at most one primary active mapping per
// (user, message_id); at most one active mapping per (user, message_id)
// after split/merge reconciliation.
type EmailProjectMapping struct {
	UserID            UserID
	MessageID         MessageID
	ThreadID          ThreadID
	ProjectID         ProjectID
	Confidence        float64
	AssociationMethod types.AssociationMethod
	Primary           bool
	Active            bool
	NeedsReview       bool
	SplitFromThread   bool // recorded when the resolver split this message off thread consensus
	ReflectionPending bool // label reflection failed persistently; reconciliation pass retries
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Attachment is the durable record of an attachment part. ProjectID is a
// weak reference, resolved when the owning message is resolved.
type Attachment struct {
	MessageID    MessageID
	UserID       UserID
	ProjectID    ProjectID // empty until the message is resolved
	AttachmentID string
	Filename     string
	Mime         string
	Size         int64
	Category     types.AttachmentCategory
	Indicators   AttachmentIndicators
	BlobRef       string // optional blob-store reference (cloud storage object path)
	CreatedAt    time.Time
}

// AttachmentIndicators are project-indicator tokens parsed out of an
// attachment's filename (SPEC_FULL §3 expansion, grounded on
// original_source/backend/app/models/attachment.py).
type AttachmentIndicators struct {
	JobNumberLike []string
	DateLike      []string
	NameLike      []string
}
