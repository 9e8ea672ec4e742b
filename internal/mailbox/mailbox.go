// Package mailbox implements the single-slot frame handoff between the
// capture producer and the device streaming engine. Latest frame wins: a
// publish over an unconsumed slot replaces the raster and widens the dirty
// region to the union of the pending updates. The producer never blocks on
// the consumer.
package mailbox

import (
	"sync"
	"time"

	"github.com/beamcast/beamcast/internal/raster"
)

// Mailbox is a mutex-guarded single-slot handoff with a wake condition for
// the consumer. Critical sections are O(1) metadata updates; no pixel data
// is copied under the lock.
type Mailbox struct {
	mu      sync.Mutex
	cond    *sync.Cond
	frame   *raster.Raster
	dirty   raster.Rect
	pending bool
	closed  bool

	published uint64
	dropped   uint64
}

// New returns an empty mailbox.
func New() *Mailbox {
	m := &Mailbox{}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Publish places r in the slot, replacing any unconsumed frame. If a frame
// was already pending its dirty region is merged into dirty so the consumer
// still covers every changed pixel, and Publish reports true. Publishing to
// a closed mailbox is a no-op. Never blocks.
func (m *Mailbox) Publish(r *raster.Raster, dirty raster.Rect) (replaced bool) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	if m.pending {
		dirty = m.dirty.Union(dirty)
		m.dropped++
		replaced = true
	}
	m.frame = r
	m.dirty = dirty
	m.pending = true
	m.published++
	m.mu.Unlock()

	m.cond.Signal()
	return replaced
}

// Take atomically removes and returns the slot contents. ok is false when no
// frame is pending. Never blocks.
func (m *Mailbox) Take() (r *raster.Raster, dirty raster.Rect, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.pending {
		return nil, raster.Rect{}, false
	}
	r, dirty = m.frame, m.dirty
	m.frame = nil
	m.pending = false
	return r, dirty, true
}

// Await blocks until a frame is pending, the mailbox is closed, or timeout
// elapses, whichever happens first. It returns true when a frame is pending
// or the mailbox has been closed (the caller must then check both).
func (m *Mailbox) Await(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)

	m.mu.Lock()
	defer m.mu.Unlock()
	for !m.pending && !m.closed {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false
		}
		// sync.Cond has no timed wait; arm a one-shot wakeup instead.
		t := time.AfterFunc(remaining, m.cond.Broadcast)
		m.cond.Wait()
		t.Stop()
	}
	return true
}

// Close marks the mailbox closed and wakes any waiting consumer. Idempotent.
func (m *Mailbox) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.cond.Broadcast()
}

// Closed reports whether Close has been called.
func (m *Mailbox) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Stats returns the publish and overwrite counters.
func (m *Mailbox) Stats() (published, dropped uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.published, m.dropped
}
