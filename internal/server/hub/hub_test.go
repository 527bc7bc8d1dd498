package hub_test

import (
	"testing"

	"github.com/xlzhou/vibechat/internal/model/chat"
	"github.com/xlzhou/vibechat/internal/server/hub"
)

func snap(ids ...string) chat.Snapshot {
	docs := make([]chat.Document, 0, len(ids))
	for _, id := range ids {
		docs = append(docs, chat.Document{ID: id, Fields: []byte(`{}`)})
	}
	return chat.Snapshot{Collection: chat.CollectionMessages, Documents: docs}
}

func TestBroadcastReachesSubscribers(t *testing.T) {
	h := hub.New()
	sub := h.Subscribe("app", chat.CollectionMessages)
	defer h.Unsubscribe("app", chat.CollectionMessages, sub)

	h.Broadcast("app", chat.CollectionMessages, snap("m1"))

	got := <-sub.Snapshots()
	if len(got.Documents) != 1 || got.Documents[0].ID != "m1" {
		t.Fatalf("unexpected snapshot: %v", got)
	}
}

func TestSlowSubscriberGetsLatestSnapshotOnly(t *testing.T) {
	h := hub.New()
	sub := h.Subscribe("app", chat.CollectionMessages)
	defer h.Unsubscribe("app", chat.CollectionMessages, sub)

	// Two broadcasts before the subscriber reads: snapshots are
	// self-contained, so only the newest must be delivered.
	h.Broadcast("app", chat.CollectionMessages, snap("m1"))
	h.Broadcast("app", chat.CollectionMessages, snap("m1", "m2"))

	got := <-sub.Snapshots()
	if len(got.Documents) != 2 {
		t.Fatalf("expected the coalesced latest snapshot, got %v", got)
	}
}

func TestBroadcastIsScopedToCollection(t *testing.T) {
	h := hub.New()
	msgSub := h.Subscribe("app", chat.CollectionMessages)
	typingSub := h.Subscribe("app", chat.CollectionTyping)
	defer h.Unsubscribe("app", chat.CollectionMessages, msgSub)
	defer h.Unsubscribe("app", chat.CollectionTyping, typingSub)

	h.Broadcast("app", chat.CollectionMessages, snap("m1"))

	select {
	case got := <-typingSub.Snapshots():
		t.Fatalf("typing subscriber must not see message snapshots: %v", got)
	default:
	}
	<-msgSub.Snapshots()
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	h := hub.New()
	sub := h.Subscribe("app", chat.CollectionMessages)
	h.Unsubscribe("app", chat.CollectionMessages, sub)
	h.Unsubscribe("app", chat.CollectionMessages, sub) // idempotent

	if _, ok := <-sub.Snapshots(); ok {
		t.Fatal("expected a closed channel after unsubscribe")
	}
}
