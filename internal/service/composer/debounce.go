package composer

import (
	"context"
	"log"
	"sync"
	"time"
)

// DebounceDelay is the quiet period after which the trailing typing state is
// published.
const DebounceDelay = 500 * time.Millisecond

// Emitter collapses rapid typing-state changes into one trailing publish.
// Only the most recent value within a burst is published; intermediates are
// discarded, not queued. Publish failures are logged and never retried.
type Emitter struct {
	publish func(context.Context, bool) error
	delay   time.Duration

	mu      sync.Mutex
	pending bool
	timer   *time.Timer
	gen     uint64
	stopped bool
}

// NewEmitter wraps a publish operation with a trailing debounce.
func NewEmitter(publish func(context.Context, bool) error, delay time.Duration) *Emitter {
	return &Emitter{publish: publish, delay: delay}
}

// Trigger records the latest requested value and restarts the quiet-period
// timer. There is no way to force an earlier flush except SetNow.
func (e *Emitter) Trigger(v bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return
	}
	e.pending = v
	if e.timer != nil {
		e.timer.Stop()
	}
	// The generation token invalidates a timer that already fired but has not
	// taken the lock yet; Stop alone cannot catch that window.
	e.gen++
	gen := e.gen
	e.timer = time.AfterFunc(e.delay, func() { e.fire(gen) })
}

// SetNow cancels any pending timer and publishes v immediately. Used when
// composing ends, so presence clears without waiting out the quiet period.
func (e *Emitter) SetNow(v bool) {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.gen++
	e.pending = v
	e.mu.Unlock()

	e.doPublish(v)
}

// Stop tears the emitter down; any pending value is dropped.
func (e *Emitter) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopped = true
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}

func (e *Emitter) fire(gen uint64) {
	e.mu.Lock()
	if e.stopped || gen != e.gen {
		e.mu.Unlock()
		return
	}
	v := e.pending
	e.timer = nil
	e.mu.Unlock()

	e.doPublish(v)
}

func (e *Emitter) doPublish(v bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.publish(ctx, v); err != nil {
		log.Printf("[typing] publish failed: %v", err)
	}
}
