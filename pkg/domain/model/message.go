package model

import (
	"time"

	"github.com/projectloop/mailgrouper/pkg/domain/types"
)

// MessageID is the mail provider's opaque message identifier.
type MessageID string

// ThreadID is the mail provider's opaque thread identifier.
type ThreadID string

// HistoryCursor is an opaque provider-supplied token denoting a position in
// the mailbox change stream.
type HistoryCursor string

// MessageEvent is the transient unit of work produced by the
// WatchCoordinator (C3) and consumed by the NotificationQueue (C4).
type MessageEvent struct {
	UserID          UserID
	MessageID       MessageID
	ThreadID        ThreadID
	HistoryCursor   HistoryCursor
	ArrivedAt       time.Time
	Source          types.EventSource
	DeliveryAttempt int
}

// AddressPair is a (display name, mailbox) pair parsed from a header.
type AddressPair struct {
	Name    string
	Address string
}

// Headers holds the subset of message headers the pipeline needs.
type Headers struct {
	From    AddressPair
	To      []AddressPair
	Cc      []AddressPair
	Bcc     []AddressPair
	Subject string
	Date    time.Time
}

// AttachmentDescriptor is the lightweight, persisted view of an attachment
// part found while parsing MIME (see Attachment for the durable record).
type AttachmentDescriptor struct {
	Filename       string
	Mime           string
	Size           int64
	AttachmentID   string // provider-opaque id used to fetch the blob later
}

// Message is the derived, non-authoritative projection of a provider
// message. Bodies are held only for the duration of one processing attempt
// and are not part of the persisted audit trail.
type Message struct {
	ID               MessageID
	ThreadID         ThreadID
	Headers          Headers
	TextBody         string // best-effort plain text (preferred) or html-reduced
	Snippet          string // short excerpt retained for audit after the body is discarded
	Attachments      []AttachmentDescriptor
	LabelIDs         []string
	PartParseErrors  []string // non-fatal per-MIME-part parse failures
}
