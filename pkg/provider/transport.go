package provider

import (
	"context"

	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// gmailTransport is the narrow seam between Client and the generated Gmail
// SDK, so tests can substitute a fake without spinning up real HTTP or
// OAuth plumbing (grounded on the teacher's github.Service pattern of
// interposing a small interface between a usecase and a generated/vendor
// client).
type gmailTransport interface {
	Profile(ctx context.Context) (*gmail.Profile, error)
	List(ctx context.Context, q, pageToken string, pageSize int64) (*gmail.ListMessagesResponse, error)
	Get(ctx context.Context, id, format string) (*gmail.Message, error)
	Attachment(ctx context.Context, messageID, attachmentID string) (*gmail.MessagePartBody, error)
	Labels(ctx context.Context) (*gmail.ListLabelsResponse, error)
	CreateLabel(ctx context.Context, name string) (*gmail.Label, error)
	Modify(ctx context.Context, id string, add, remove []string) error
	BatchModify(ctx context.Context, ids []string, add, remove []string) error
	Watch(ctx context.Context, topic, labelFilter string) (*gmail.WatchResponse, error)
	Stop(ctx context.Context) error
	History(ctx context.Context, startHistoryID uint64, pageToken string) (*gmail.ListHistoryResponse, error)
}

// gmailUser wraps one user's authenticated *gmail.Service. The "me" user
// id is Gmail's convention for "the mailbox owning the current token".
type gmailUser struct {
	svc *gmail.Service
}

func newGmailTransport(ctx context.Context, ts oauth2.TokenSource) (gmailTransport, error) {
	svc, err := gmail.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, err
	}
	return &gmailUser{svc: svc}, nil
}

const meUser = "me"

func (g *gmailUser) Profile(ctx context.Context) (*gmail.Profile, error) {
	return g.svc.Users.GetProfile(meUser).Context(ctx).Do()
}

func (g *gmailUser) List(ctx context.Context, q, pageToken string, pageSize int64) (*gmail.ListMessagesResponse, error) {
	call := g.svc.Users.Messages.List(meUser).Context(ctx)
	if q != "" {
		call = call.Q(q)
	}
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	if pageSize > 0 {
		call = call.MaxResults(pageSize)
	}
	return call.Do()
}

func (g *gmailUser) Get(ctx context.Context, id, format string) (*gmail.Message, error) {
	return g.svc.Users.Messages.Get(meUser, id).Format(format).Context(ctx).Do()
}

func (g *gmailUser) Attachment(ctx context.Context, messageID, attachmentID string) (*gmail.MessagePartBody, error) {
	return g.svc.Users.Messages.Attachments.Get(meUser, messageID, attachmentID).Context(ctx).Do()
}

func (g *gmailUser) Labels(ctx context.Context) (*gmail.ListLabelsResponse, error) {
	return g.svc.Users.Labels.List(meUser).Context(ctx).Do()
}

func (g *gmailUser) CreateLabel(ctx context.Context, name string) (*gmail.Label, error) {
	return g.svc.Users.Labels.Create(meUser, &gmail.Label{Name: name}).Context(ctx).Do()
}

func (g *gmailUser) Modify(ctx context.Context, id string, add, remove []string) error {
	_, err := g.svc.Users.Messages.Modify(meUser, id, &gmail.ModifyMessageRequest{
		AddLabelIds:    add,
		RemoveLabelIds: remove,
	}).Context(ctx).Do()
	return err
}

func (g *gmailUser) BatchModify(ctx context.Context, ids []string, add, remove []string) error {
	return g.svc.Users.Messages.BatchModify(meUser, &gmail.BatchModifyMessagesRequest{
		Ids:            ids,
		AddLabelIds:    add,
		RemoveLabelIds: remove,
	}).Context(ctx).Do()
}

func (g *gmailUser) Watch(ctx context.Context, topic, labelFilter string) (*gmail.WatchResponse, error) {
	req := &gmail.WatchRequest{TopicName: topic}
	if labelFilter != "" {
		req.LabelIds = []string{labelFilter}
	}
	return g.svc.Users.Watch(meUser, req).Context(ctx).Do()
}

func (g *gmailUser) Stop(ctx context.Context) error {
	return g.svc.Users.Stop(meUser).Context(ctx).Do()
}

func (g *gmailUser) History(ctx context.Context, startHistoryID uint64, pageToken string) (*gmail.ListHistoryResponse, error) {
	call := g.svc.Users.History.List(meUser).StartHistoryId(startHistoryID).Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	return call.Do()
}
