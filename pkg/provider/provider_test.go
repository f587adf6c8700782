package provider_test

import (
	"context"
	"encoding/base64"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"

	"github.com/projectloop/mailgrouper/pkg/domain/interfaces"
	"github.com/projectloop/mailgrouper/pkg/domain/model"
	"github.com/projectloop/mailgrouper/pkg/provider"
)

const userID = model.UserID("u1")

func b64(s string) string { return base64.URLEncoding.EncodeToString([]byte(s)) }

// fakeTransport implements provider.GmailTransport. Each method delegates
// to an overridable func field; unset fields return zero values.
type fakeTransport struct {
	mu sync.Mutex

	getFn      func(ctx context.Context, id, format string) (*gmail.Message, error)
	listFn     func(ctx context.Context, q, pageToken string, pageSize int64) (*gmail.ListMessagesResponse, error)
	profileFn  func(ctx context.Context) (*gmail.Profile, error)
	historyFn  func(ctx context.Context, startID uint64, pageToken string) (*gmail.ListHistoryResponse, error)
	labelsFn   func(ctx context.Context) (*gmail.ListLabelsResponse, error)
	createFn   func(ctx context.Context, name string) (*gmail.Label, error)
	modifyFn   func(ctx context.Context, id string, add, remove []string) error
	batchFn    func(ctx context.Context, ids []string, add, remove []string) error
	watchFn    func(ctx context.Context, topic, filter string) (*gmail.WatchResponse, error)
	stopFn     func(ctx context.Context) error
	attachFn   func(ctx context.Context, messageID, attachmentID string) (*gmail.MessagePartBody, error)
	callCount  int
}

func (f *fakeTransport) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.callCount
}

func (f *fakeTransport) bump() {
	f.mu.Lock()
	f.callCount++
	f.mu.Unlock()
}

func (f *fakeTransport) Profile(ctx context.Context) (*gmail.Profile, error) {
	f.bump()
	return f.profileFn(ctx)
}
func (f *fakeTransport) List(ctx context.Context, q, pageToken string, pageSize int64) (*gmail.ListMessagesResponse, error) {
	f.bump()
	return f.listFn(ctx, q, pageToken, pageSize)
}
func (f *fakeTransport) Get(ctx context.Context, id, format string) (*gmail.Message, error) {
	f.bump()
	return f.getFn(ctx, id, format)
}
func (f *fakeTransport) Attachment(ctx context.Context, messageID, attachmentID string) (*gmail.MessagePartBody, error) {
	f.bump()
	return f.attachFn(ctx, messageID, attachmentID)
}
func (f *fakeTransport) Labels(ctx context.Context) (*gmail.ListLabelsResponse, error) {
	f.bump()
	return f.labelsFn(ctx)
}
func (f *fakeTransport) CreateLabel(ctx context.Context, name string) (*gmail.Label, error) {
	f.bump()
	return f.createFn(ctx, name)
}
func (f *fakeTransport) Modify(ctx context.Context, id string, add, remove []string) error {
	f.bump()
	return f.modifyFn(ctx, id, add, remove)
}
func (f *fakeTransport) BatchModify(ctx context.Context, ids []string, add, remove []string) error {
	f.bump()
	return f.batchFn(ctx, ids, add, remove)
}
func (f *fakeTransport) Watch(ctx context.Context, topic, filter string) (*gmail.WatchResponse, error) {
	f.bump()
	return f.watchFn(ctx, topic, filter)
}
func (f *fakeTransport) Stop(ctx context.Context) error {
	f.bump()
	return f.stopFn(ctx)
}
func (f *fakeTransport) History(ctx context.Context, startID uint64, pageToken string) (*gmail.ListHistoryResponse, error) {
	f.bump()
	return f.historyFn(ctx, startID, pageToken)
}

type fakeUsers struct {
	mu               sync.Mutex
	users            map[model.UserID]*model.User
	updates          int
	authExpiredSetTo *bool
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{users: map[model.UserID]*model.User{
		userID: {
			ID: userID,
			Credentials: model.Credentials{
				AccessTokenEnc:  []byte("old-access"),
				RefreshTokenEnc: []byte("old-refresh"),
				ExpiresAt:       time.Now().Add(time.Hour),
			},
		},
	}}
}

func (f *fakeUsers) Create(ctx context.Context, u *model.User) (*model.User, error) { return u, nil }
func (f *fakeUsers) Get(ctx context.Context, id model.UserID) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	cp := *u
	return &cp, nil
}
func (f *fakeUsers) Update(ctx context.Context, u *model.User) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates++
	cp := *u
	f.users[u.ID] = &cp
	return &cp, nil
}
func (f *fakeUsers) List(ctx context.Context) ([]*model.User, error) { return nil, nil }
func (f *fakeUsers) SetActive(ctx context.Context, id model.UserID, active bool) error { return nil }
func (f *fakeUsers) SetAuthExpired(ctx context.Context, id model.UserID, expired bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.authExpiredSetTo = &expired
	return nil
}

type allowLimiter struct{}

func (allowLimiter) Acquire(ctx context.Context, userID model.UserID, kind interfaces.RateKind) interfaces.Decision {
	return interfaces.Decision{OK: true}
}

func newTestClient(users *fakeUsers, cfg provider.Config) *provider.Client {
	return provider.New(users, allowLimiter{}, &oauth2.Config{}, nil, cfg)
}

func googleError(code int, reason string) error {
	return &googleapi.Error{Code: code, Errors: []googleapi.ErrorItem{{Reason: reason}}}
}

func TestBuildMessagePrefersPlainTextOverHTML(t *testing.T) {
	gm := &gmail.Message{
		Id:       "m1",
		ThreadId: "t1",
		Snippet:  "hello",
		Payload: &gmail.MessagePart{
			MimeType: "multipart/mixed",
			Headers: []*gmail.MessagePartHeader{
				{Name: "From", Value: "Alice <alice@example.com>"},
				{Name: "Subject", Value: "Hi"},
			},
			Parts: []*gmail.MessagePart{
				{
					MimeType: "multipart/alternative",
					Parts: []*gmail.MessagePart{
						{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: b64("plain body")}},
						{MimeType: "text/html", Body: &gmail.MessagePartBody{Data: b64("<p>html body</p>")}},
					},
				},
				{
					MimeType: "application/pdf",
					Filename: "quote.pdf",
					Body:     &gmail.MessagePartBody{AttachmentId: "att1", Size: 1024},
				},
			},
		},
	}

	msg := provider.BuildMessage(gm, provider.NewHTMLReducer())
	gt.Value(t, msg.TextBody).Equal("plain body")
	gt.Value(t, msg.Headers.From.Address).Equal("alice@example.com")
	gt.Array(t, msg.Attachments).Length(1)
	gt.Value(t, msg.Attachments[0].AttachmentID).Equal("att1")
	gt.Value(t, msg.Attachments[0].Filename).Equal("quote.pdf")
}

func TestBuildMessageReducesHTMLWhenNoPlainText(t *testing.T) {
	gm := &gmail.Message{
		Id: "m2",
		Payload: &gmail.MessagePart{
			MimeType: "text/html",
			Body:     &gmail.MessagePartBody{Data: b64("<div>Quote for <b>12 Baker St</b></div>")},
		},
	}
	msg := provider.BuildMessage(gm, provider.NewHTMLReducer())
	gt.Value(t, msg.TextBody).Equal("Quote for 12 Baker St")
}

func TestFetchMessageUsesInjectedTransport(t *testing.T) {
	ctx := context.Background()
	users := newFakeUsers()
	client := newTestClient(users, provider.Config{})

	tr := &fakeTransport{
		getFn: func(ctx context.Context, id, format string) (*gmail.Message, error) {
			gt.Value(t, format).Equal("full")
			return &gmail.Message{Id: id, Payload: &gmail.MessagePart{
				MimeType: "text/plain",
				Body:     &gmail.MessagePartBody{Data: b64("body")},
			}}, nil
		},
	}
	client.SetTransport(userID, tr)

	msg, err := client.FetchMessage(ctx, userID, "m9", true)
	gt.NoError(t, err).Required()
	gt.Value(t, msg.TextBody).Equal("body")
	gt.Value(t, tr.calls()).Equal(1)
}

func TestCallRefreshesOnceAfter401ThenSucceeds(t *testing.T) {
	ctx := context.Background()
	users := newFakeUsers()
	client := newTestClient(users, provider.Config{})

	first := &fakeTransport{
		getFn: func(ctx context.Context, id, format string) (*gmail.Message, error) {
			return nil, googleError(401, "authError")
		},
	}
	client.SetTransport(userID, first)

	second := &fakeTransport{
		getFn: func(ctx context.Context, id, format string) (*gmail.Message, error) {
			return &gmail.Message{Id: id}, nil
		},
	}
	client.StubTokenSource(func(tok *oauth2.Token) oauth2.TokenSource {
		return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "new-access", Expiry: time.Now().Add(time.Hour)})
	})
	client.StubTransportFactory(func() (provider.GmailTransport, error) { return second, nil })

	_, err := client.FetchMessage(ctx, userID, "m1", false)
	gt.NoError(t, err).Required()
	gt.Value(t, first.calls()).Equal(1)
	gt.Value(t, second.calls()).Equal(1)
	gt.Value(t, users.updates).Equal(1)
}

func TestCallSurfacesAuthExpiredOnSecond401(t *testing.T) {
	ctx := context.Background()
	users := newFakeUsers()
	client := newTestClient(users, provider.Config{})

	unauthorized := func(ctx context.Context, id, format string) (*gmail.Message, error) {
		return nil, googleError(401, "authError")
	}
	client.SetTransport(userID, &fakeTransport{getFn: unauthorized})
	client.StubTokenSource(func(tok *oauth2.Token) oauth2.TokenSource {
		return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "still-bad", Expiry: time.Now().Add(time.Hour)})
	})
	client.StubTransportFactory(func() (provider.GmailTransport, error) {
		return &fakeTransport{getFn: unauthorized}, nil
	})

	_, err := client.FetchMessage(ctx, userID, "m1", false)
	gt.Error(t, err)
	gt.Bool(t, provider.IsUnauthorized(googleError(401, "authError"))).True()
	gt.Value(t, *users.authExpiredSetTo).Equal(true)
}

func TestCallSurfacesQuotaExceededAndCoolsDown(t *testing.T) {
	ctx := context.Background()
	users := newFakeUsers()
	client := newTestClient(users, provider.Config{QuotaCooldown: time.Hour})

	tr := &fakeTransport{
		getFn: func(ctx context.Context, id, format string) (*gmail.Message, error) {
			return nil, googleError(403, "quotaExceeded")
		},
	}
	client.SetTransport(userID, tr)

	_, err := client.FetchMessage(ctx, userID, "m1", false)
	gt.Error(t, err)

	_, err = client.FetchMessage(ctx, userID, "m2", false)
	gt.Error(t, err)
	gt.Value(t, tr.calls()).Equal(1) // second call short-circuited by the cooldown
}

func TestCallRetriesTransientThenSucceeds(t *testing.T) {
	ctx := context.Background()
	users := newFakeUsers()
	client := newTestClient(users, provider.Config{
		MaxAttempts: 3,
		BackoffBase: time.Millisecond,
		BackoffMax:  2 * time.Millisecond,
	})

	attempts := 0
	tr := &fakeTransport{
		getFn: func(ctx context.Context, id, format string) (*gmail.Message, error) {
			attempts++
			if attempts < 2 {
				return nil, context.DeadlineExceeded
			}
			return &gmail.Message{Id: id}, nil
		},
	}
	client.SetTransport(userID, tr)

	_, err := client.FetchMessage(ctx, userID, "m1", false)
	gt.NoError(t, err).Required()
	gt.Value(t, attempts).Equal(2)
}

func TestGetHistoryBootstrapsFromProfileWhenCursorEmpty(t *testing.T) {
	ctx := context.Background()
	users := newFakeUsers()
	client := newTestClient(users, provider.Config{})

	client.SetTransport(userID, &fakeTransport{
		profileFn: func(ctx context.Context) (*gmail.Profile, error) {
			return &gmail.Profile{HistoryId: 42}, nil
		},
	})

	res, err := client.GetHistory(ctx, userID, "")
	gt.NoError(t, err).Required()
	gt.Value(t, res.NextCursor).Equal(model.HistoryCursor("42"))
	gt.Array(t, res.NewMessageIDs).Length(0)
}

func TestGetHistoryPagesAndDedups(t *testing.T) {
	ctx := context.Background()
	users := newFakeUsers()
	client := newTestClient(users, provider.Config{})

	page := 0
	client.SetTransport(userID, &fakeTransport{
		historyFn: func(ctx context.Context, startID uint64, pageToken string) (*gmail.ListHistoryResponse, error) {
			gt.Value(t, startID).Equal(uint64(10))
			page++
			if page == 1 {
				return &gmail.ListHistoryResponse{
					History: []*gmail.History{{
						MessagesAdded: []*gmail.HistoryMessageAdded{
							{Message: &gmail.Message{Id: "m1"}},
							{Message: &gmail.Message{Id: "m2"}},
						},
					}},
					HistoryId:     15,
					NextPageToken: "p2",
				}, nil
			}
			return &gmail.ListHistoryResponse{
				History: []*gmail.History{{
					MessagesAdded: []*gmail.HistoryMessageAdded{
						{Message: &gmail.Message{Id: "m2"}}, // duplicate across pages
						{Message: &gmail.Message{Id: "m3"}},
					},
				}},
				HistoryId: 20,
			}, nil
		},
	})

	res, err := client.GetHistory(ctx, userID, "10")
	gt.NoError(t, err).Required()
	gt.Array(t, res.NewMessageIDs).Length(3)
	gt.Value(t, res.NextCursor).Equal(model.HistoryCursor("20"))
}
