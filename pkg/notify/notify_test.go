package notify

import (
	"strings"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/projectloop/mailgrouper/pkg/domain/model"
)

func TestHubBroadcastDeliversOnlyToMatchingUser(t *testing.T) {
	h := NewHub()

	subA := &subscriber{ch: make(chan model.UIEvent, 1)}
	subB := &subscriber{ch: make(chan model.UIEvent, 1)}
	h.subscribe("userA", subA)
	h.subscribe("userB", subB)

	ev := model.UIEvent{Kind: model.UIEventNewProject, UserID: "userA", At: time.Now()}
	h.Broadcast(ev)

	select {
	case got := <-subA.ch:
		gt.Value(t, got.UserID).Equal(model.UserID("userA"))
	default:
		t.Fatal("expected userA's subscriber to receive the event")
	}

	select {
	case <-subB.ch:
		t.Fatal("userB's subscriber should not receive userA's event")
	default:
	}
}

func TestHubBroadcastDropsWhenSubscriberBufferFull(t *testing.T) {
	h := NewHub()
	sub := &subscriber{ch: make(chan model.UIEvent, 1)}
	h.subscribe("u1", sub)

	h.Broadcast(model.UIEvent{Kind: model.UIEventNewProject, UserID: "u1"})
	h.Broadcast(model.UIEvent{Kind: model.UIEventLowConfidence, UserID: "u1"})

	first := <-sub.ch
	gt.Value(t, first.Kind).Equal(model.UIEventNewProject)

	select {
	case <-sub.ch:
		t.Fatal("second broadcast should have been dropped, not queued")
	default:
	}
}

func TestHubUnsubscribeStopsDelivery(t *testing.T) {
	h := NewHub()
	sub := &subscriber{ch: make(chan model.UIEvent, 1)}
	h.subscribe("u1", sub)
	h.unsubscribe("u1", sub)

	h.Broadcast(model.UIEvent{Kind: model.UIEventNewProject, UserID: "u1"})

	select {
	case <-sub.ch:
		t.Fatal("unsubscribed subscriber should not receive further events")
	default:
	}
}

func TestHubBroadcastAfterUnsubscribeDoesNotPanic(t *testing.T) {
	h := NewHub()
	sub := &subscriber{ch: make(chan model.UIEvent, 1)}
	h.subscribe("u1", sub)

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.Broadcast(model.UIEvent{Kind: model.UIEventNewProject, UserID: "u1"})
	}()
	h.unsubscribe("u1", sub)
	<-done
}

func TestFallbackTextUsesMessageWhenSet(t *testing.T) {
	ev := model.UIEvent{Kind: model.UIEventLowConfidence, Message: "custom text"}
	gt.Value(t, fallbackText(ev)).Equal("custom text")
}

func TestFallbackTextFormatsPerKindWhenMessageEmpty(t *testing.T) {
	ev := model.UIEvent{Kind: model.UIEventNewProject, MessageID: "m1"}
	gt.Value(t, strings.Contains(fallbackText(ev), "m1")).Equal(true)
}

func TestWantsSlackFiltersByConfiguredKinds(t *testing.T) {
	n := New("", nil, Config{SlackKinds: []model.UIEventKind{model.UIEventAuthExpired}})
	gt.Bool(t, n.wantsSlack(model.UIEventAuthExpired)).True()
	gt.Bool(t, n.wantsSlack(model.UIEventNewProject)).False()
}

func TestWantsSlackDefaultsToEveryKind(t *testing.T) {
	n := New("", nil, Config{})
	gt.Bool(t, n.wantsSlack(model.UIEventNewProject)).True()
	gt.Bool(t, n.wantsSlack(model.UIEventLowConfidence)).True()
}

func TestPublishSkipsSlackWithoutTokenOrChannel(t *testing.T) {
	n := New("", nil, Config{SlackChannel: "C1"})
	gt.NoError(t, n.Publish(t.Context(), model.UIEvent{Kind: model.UIEventNewProject, UserID: "u1"})).Required()
}
