package interfaces

import (
	"context"

	"github.com/projectloop/mailgrouper/pkg/domain/model"
)

// ListQuery narrows list_messages (spec §4.2).
type ListQuery struct {
	Q         string
	PageSize  int
	PageToken string
}

// ListResult is one page of list_messages.
type ListResult struct {
	MessageIDs    []model.MessageID
	NextPageToken string
}

// Label is a provider label (e.g. Gmail label).
type Label struct {
	ID   string
	Name string
}

// HistoryResult is one page of get_history (spec §4.3: enumerates new
// message ids since a cursor).
type HistoryResult struct {
	NewMessageIDs []model.MessageID
	NextCursor    model.HistoryCursor
}

// ProviderClient is the typed wrapper over the upstream mail API (C2).
// Every method passes through the RateLimiter (C1) internally and
// classifies failures per spec §4.2/§7 (RateLimited, AuthExpired, etc).
type ProviderClient interface {
	Profile(ctx context.Context, userID model.UserID) (email string, err error)
	ListMessages(ctx context.Context, userID model.UserID, q ListQuery) (*ListResult, error)
	FetchMessage(ctx context.Context, userID model.UserID, id model.MessageID, includeBody bool) (*model.Message, error)
	ListLabels(ctx context.Context, userID model.UserID) ([]Label, error)
	CreateLabel(ctx context.Context, userID model.UserID, name string) (Label, error)
	ModifyMessage(ctx context.Context, userID model.UserID, id model.MessageID, add, remove []string) error
	BatchModify(ctx context.Context, userID model.UserID, ids []model.MessageID, add, remove []string) error
	StartWatch(ctx context.Context, userID model.UserID, topic, labelFilter string) (*model.WatchSubscription, error)
	StopWatch(ctx context.Context, userID model.UserID) error
	GetHistory(ctx context.Context, userID model.UserID, since model.HistoryCursor) (*HistoryResult, error)
	FetchAttachment(ctx context.Context, userID model.UserID, messageID model.MessageID, attachmentID string) ([]byte, error)
}

// BlobStore persists attachment bytes out-of-band from the Metastore,
// backing model.Attachment.BlobRef (spec §3 "optional blob-store
// reference"). pkg/blobstore implements it over Cloud Storage.
type BlobStore interface {
	Put(ctx context.Context, objectPath string, data []byte, contentType string) (string, error)
	Get(ctx context.Context, objectPath string) ([]byte, error)
}

// RateLimiter is C1's contract: acquire never blocks past deadline; refusal
// is a normal result carrying the wait time.
type RateLimiter interface {
	Acquire(ctx context.Context, userID model.UserID, kind RateKind) Decision
}

// RateKind distinguishes the read and write token buckets (spec §4.1).
type RateKind string

const (
	RateKindRead  RateKind = "read"
	RateKindWrite RateKind = "write"
)

// Decision is the outcome of a RateLimiter.Acquire call.
type Decision struct {
	OK            bool
	RetryAfterMS  int64
}
