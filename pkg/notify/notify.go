// Package notify implements C12: fan-out of pipeline UIEvents to a Slack
// channel and to any browser-extension clients listening on a websocket
// stream. It implements analysis.EventSink so the resolver/queue packages
// can publish without depending on this package's concrete fan-out
// mechanisms.
//
// Slack formatting is grounded on the teacher's block-building idiom in
// pkg/usecase/action.go (goslack.NewHeaderBlock/NewSectionBlock/
// NewTextBlockObject, posted via PostMessageContext); the websocket hub has
// no equivalent call site anywhere in the pack (nhooyr.io/websocket is a
// declared-but-unused direct dependency in two example repos) and is
// written from the library's own documented API.
package notify

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	goslack "github.com/slack-go/slack"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/m-mizutani/goerr/v2"

	"github.com/projectloop/mailgrouper/pkg/domain/model"
	"github.com/projectloop/mailgrouper/pkg/utils/async"
)

// Config tunes which UIEvent kinds are posted to Slack. The websocket hub,
// when set, always receives every event regardless of this filter — Slack
// is reserved for kinds that warrant pulling a human out of the browser
// extension.
type Config struct {
	SlackChannel string
	SlackKinds   []model.UIEventKind // empty means every kind goes to Slack
}

// Notifier is the C12 EventSink. Either fan-out target may be nil: a
// Notifier built without a Slack token still drives the websocket hub, and
// one built without a hub still posts to Slack.
type Notifier struct {
	slack *goslack.Client
	hub   *Hub
	cfg   Config
}

// New builds a Notifier. slackToken may be empty to disable Slack
// posting entirely; hub may be nil to disable the websocket fan-out.
func New(slackToken string, hub *Hub, cfg Config) *Notifier {
	n := &Notifier{hub: hub, cfg: cfg}
	if slackToken != "" {
		n.slack = goslack.New(slackToken)
	}
	return n
}

// Publish implements analysis.EventSink. The websocket broadcast happens
// inline (Hub.Broadcast never blocks); the Slack post is dispatched
// through async.Dispatch so a slow or down Slack API never stalls the
// resolver pipeline that called Publish, and a failed post only gets
// logged rather than failing the message's queue item.
func (n *Notifier) Publish(ctx context.Context, ev model.UIEvent) error {
	if n.hub != nil {
		n.hub.Broadcast(ev)
	}
	if n.slack == nil || n.cfg.SlackChannel == "" || !n.wantsSlack(ev.Kind) {
		return nil
	}

	blocks := buildBlocks(ev)
	async.Dispatch(ctx, func(ctx context.Context) error {
		if _, _, err := n.slack.PostMessageContext(ctx, n.cfg.SlackChannel,
			goslack.MsgOptionBlocks(blocks...),
			goslack.MsgOptionText(fallbackText(ev), false),
		); err != nil {
			return goerr.Wrap(err, "post slack notification failed",
				goerr.V("kind", ev.Kind), goerr.V("user_id", ev.UserID))
		}
		return nil
	})
	return nil
}

func (n *Notifier) wantsSlack(kind model.UIEventKind) bool {
	if len(n.cfg.SlackKinds) == 0 {
		return true
	}
	for _, k := range n.cfg.SlackKinds {
		if k == kind {
			return true
		}
	}
	return false
}

func kindLabel(kind model.UIEventKind) string {
	switch kind {
	case model.UIEventLowConfidence:
		return "Low-confidence match"
	case model.UIEventMultiProject:
		return "Multiple candidate projects"
	case model.UIEventNewProject:
		return "New project created"
	case model.UIEventAuthExpired:
		return "Mailbox access expired"
	case model.UIEventReflectionPending:
		return "Label reflection pending"
	default:
		return string(kind)
	}
}

func fallbackText(ev model.UIEvent) string {
	if ev.Message != "" {
		return ev.Message
	}
	switch ev.Kind {
	case model.UIEventLowConfidence:
		return fmt.Sprintf("message %s matched with score %.2f", ev.MessageID, ev.Score)
	case model.UIEventMultiProject:
		return fmt.Sprintf("message %s matched %d projects", ev.MessageID, len(ev.ProjectIDs))
	case model.UIEventNewProject:
		return fmt.Sprintf("message %s started a new project", ev.MessageID)
	case model.UIEventAuthExpired:
		return fmt.Sprintf("user %s needs to reconnect their mailbox", ev.UserID)
	case model.UIEventReflectionPending:
		return fmt.Sprintf("message %s is waiting on label reflection", ev.MessageID)
	default:
		return string(ev.Kind)
	}
}

func buildBlocks(ev model.UIEvent) []goslack.Block {
	blocks := []goslack.Block{
		goslack.NewHeaderBlock(
			goslack.NewTextBlockObject(goslack.PlainTextType, kindLabel(ev.Kind), true, false),
		),
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, fallbackText(ev), false, false), nil, nil,
		),
	}

	footer := fmt.Sprintf("user: %s  |  message: %s  |  at: %s", ev.UserID, ev.MessageID, ev.At.Format(time.RFC3339))
	blocks = append(blocks, goslack.NewContextBlock("",
		goslack.NewTextBlockObject(goslack.MarkdownType, footer, false, false),
	))
	return blocks
}

// Hub fans UIEvents out to websocket connections, filtered to the user
// each connection belongs to.
type Hub struct {
	mu   sync.Mutex
	subs map[model.UserID]map[*subscriber]struct{}
}

type subscriber struct {
	ch chan model.UIEvent
}

// NewHub returns an empty Hub ready to accept connections and broadcasts.
func NewHub() *Hub {
	return &Hub{subs: make(map[model.UserID]map[*subscriber]struct{})}
}

// Serve upgrades r to a websocket connection and streams every UIEvent
// published for userID until the client disconnects or ctx is cancelled.
// It's meant to be called directly from an http.Handler in pkg/controller/http.
func (h *Hub) Serve(ctx context.Context, w http.ResponseWriter, r *http.Request, userID model.UserID) error {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return goerr.Wrap(err, "websocket accept failed", goerr.V("user_id", userID))
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	sub := &subscriber{ch: make(chan model.UIEvent, 16)}
	h.subscribe(userID, sub)
	defer h.unsubscribe(userID, sub)

	for {
		select {
		case ev := <-sub.ch:
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := wsjson.Write(writeCtx, conn, ev)
			cancel()
			if err != nil {
				return goerr.Wrap(err, "websocket write failed", goerr.V("user_id", userID))
			}
		case <-ctx.Done():
			return nil
		case <-r.Context().Done():
			return nil
		}
	}
}

// Broadcast delivers ev to every connection subscribed to ev.UserID. A
// subscriber whose buffer is full is skipped rather than blocking the
// publisher — a missed UI event isn't worth stalling the pipeline.
func (h *Hub) Broadcast(ev model.UIEvent) {
	h.mu.Lock()
	targets := make([]*subscriber, 0, len(h.subs[ev.UserID]))
	for sub := range h.subs[ev.UserID] {
		targets = append(targets, sub)
	}
	h.mu.Unlock()

	for _, sub := range targets {
		select {
		case sub.ch <- ev:
		default:
		}
	}
}

func (h *Hub) subscribe(userID model.UserID, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[*subscriber]struct{})
	}
	h.subs[userID][sub] = struct{}{}
}

// unsubscribe removes sub from userID's set. sub.ch is deliberately never
// closed: a concurrent Broadcast may have already copied sub into its
// target list under the lock, and sending on a closed channel panics.
// The unreferenced channel is left to the garbage collector once Serve
// returns.
func (h *Hub) unsubscribe(userID model.UserID, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs[userID], sub)
	if len(h.subs[userID]) == 0 {
		delete(h.subs, userID)
	}
}
