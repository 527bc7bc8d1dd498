// Package hub fans full-collection snapshots out to live subscribers.
package hub

import (
	"sync"

	"github.com/xlzhou/vibechat/internal/model/chat"
)

// Subscriber receives the snapshot stream for one collection. Snapshots are
// self-contained, so a slow subscriber is allowed to miss intermediate ones:
// delivery coalesces down to the latest pending snapshot.
type Subscriber struct {
	ch chan chat.Snapshot
}

// Snapshots returns the subscriber's delivery channel. It closes when the
// subscriber is removed from the hub.
func (s *Subscriber) Snapshots() <-chan chat.Snapshot {
	return s.ch
}

// Hub tracks subscribers per app-scoped collection.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[*Subscriber]struct{}
}

// New builds an empty hub.
func New() *Hub {
	return &Hub{subs: make(map[string]map[*Subscriber]struct{})}
}

// Subscribe registers a new subscriber for a collection.
func (h *Hub) Subscribe(app, collection string) *Subscriber {
	sub := &Subscriber{ch: make(chan chat.Snapshot, 1)}

	key := app + "/" + collection
	h.mu.Lock()
	if h.subs[key] == nil {
		h.subs[key] = make(map[*Subscriber]struct{})
	}
	h.subs[key][sub] = struct{}{}
	h.mu.Unlock()

	return sub
}

// Unsubscribe removes a subscriber and closes its channel. Idempotent.
func (h *Hub) Unsubscribe(app, collection string, sub *Subscriber) {
	key := app + "/" + collection
	h.mu.Lock()
	defer h.mu.Unlock()

	if set, ok := h.subs[key]; ok {
		if _, ok := set[sub]; ok {
			delete(set, sub)
			close(sub.ch)
		}
		if len(set) == 0 {
			delete(h.subs, key)
		}
	}
}

// Broadcast delivers a snapshot to every subscriber of the collection,
// replacing any snapshot a subscriber has not consumed yet.
func (h *Hub) Broadcast(app, collection string, snap chat.Snapshot) {
	key := app + "/" + collection
	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.subs[key] {
		select {
		case sub.ch <- snap:
		default:
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- snap:
			default:
			}
		}
	}
}
