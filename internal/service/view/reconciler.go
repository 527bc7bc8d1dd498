package view

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/xlzhou/vibechat/internal/model/chat"
)

// Reconciler owns the materialized message order and typing set. Both are
// mutated only by the goroutine running Run, which merges the two remote
// subscription streams; readers get copies through the accessors.
type Reconciler struct {
	self string

	mu       sync.RWMutex
	messages []chat.Message
	typing   map[string]string
	loading  bool
	banner   string

	changed chan struct{}
}

// NewReconciler prepares a reconciler for the given local identity. The view
// starts in the loading state until the first message snapshot arrives.
func NewReconciler(self string) *Reconciler {
	return &Reconciler{
		self:    self,
		typing:  make(map[string]string),
		loading: true,
		changed: make(chan struct{}, 1),
	}
}

// Run consumes both subscription streams until the context is cancelled or
// both snapshot channels close. A stream error retains the prior
// materialized state; only a fresh snapshot ever replaces it.
func (r *Reconciler) Run(ctx context.Context, messages, typing <-chan chat.Snapshot, errs <-chan error) {
	for messages != nil || typing != nil {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-messages:
			if !ok {
				messages = nil
				continue
			}
			r.applyMessages(snap)
		case snap, ok := <-typing:
			if !ok {
				typing = nil
				continue
			}
			r.applyTyping(snap)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			log.Printf("[reconcile] subscription error: %v", err)
			r.setBanner("Connection interrupted. Showing last known messages.")
		}
	}
}

func (r *Reconciler) applyMessages(snap chat.Snapshot) {
	ordered := OrderedMessages(snap)
	r.mu.Lock()
	r.messages = ordered
	r.loading = false
	r.mu.Unlock()
	r.notify()
}

func (r *Reconciler) applyTyping(snap chat.Snapshot) {
	typing := TypingUsers(snap, r.self, time.Now())
	r.mu.Lock()
	r.typing = typing
	r.mu.Unlock()
	r.notify()
}

// Messages returns a copy of the current display order.
func (r *Reconciler) Messages() []chat.Message {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]chat.Message, len(r.messages))
	copy(out, r.messages)
	return out
}

// Typing returns a copy of the current typing set, identity to nickname.
func (r *Reconciler) Typing() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(r.typing))
	for k, v := range r.typing {
		out[k] = v
	}
	return out
}

// Loading reports whether the first message snapshot is still outstanding.
func (r *Reconciler) Loading() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loading
}

// Banner returns the current transient error banner, empty when healthy.
func (r *Reconciler) Banner() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.banner
}

func (r *Reconciler) setBanner(msg string) {
	r.mu.Lock()
	r.banner = msg
	r.mu.Unlock()
	r.notify()
}

// Changed signals after every applied snapshot or banner update. Signals are
// coalesced; consumers re-read the accessors on each receive.
func (r *Reconciler) Changed() <-chan struct{} {
	return r.changed
}

func (r *Reconciler) notify() {
	select {
	case r.changed <- struct{}{}:
	default:
	}
}
