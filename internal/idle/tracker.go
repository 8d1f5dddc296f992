// Package idle tracks in-flight work and exposes a completion signal that
// resolves whenever the in-flight count drops to zero.
package idle

import (
	"context"
	"sync"
)

// Tracker counts in-flight operations.
//
// The signal is a one-shot channel that is replaced with a fresh one when the
// count goes from 0 to 1, and closed when it returns to 0. The counter and the
// channel swap share one mutex so an End racing a Begin cannot leave a waiter
// holding a signal that will never close.
type Tracker struct {
	mu       sync.Mutex
	inFlight int
	done     chan struct{}
	resolved bool
}

// NewTracker returns a tracker with nothing in flight. Its signal starts
// unresolved; use ForceIdleIfZero to release waiters if no work ever begins.
func NewTracker() *Tracker {
	return &Tracker{done: make(chan struct{})}
}

// Begin records the start of one operation.
func (t *Tracker) Begin() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.inFlight++
	if t.inFlight == 1 {
		t.done = make(chan struct{})
		t.resolved = false
	}
}

// End records the completion of one operation begun with Begin.
// Calling End without a matching Begin corrupts drain accounting and panics.
func (t *Tracker) End() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.inFlight == 0 {
		panic("idle: End called with no operation in flight")
	}
	t.inFlight--
	if t.inFlight == 0 {
		t.resolveLocked()
	}
}

// Done returns the current completion signal. It does not change state.
func (t *Tracker) Done() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done
}

// Wait blocks until the current signal resolves or ctx ends.
func (t *Tracker) Wait(ctx context.Context) error {
	select {
	case <-t.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ForceIdleIfZero resolves the current signal if nothing is in flight.
func (t *Tracker) ForceIdleIfZero() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.inFlight == 0 {
		t.resolveLocked()
	}
}

// InFlight returns the current count.
func (t *Tracker) InFlight() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inFlight
}

func (t *Tracker) resolveLocked() {
	if !t.resolved {
		close(t.done)
		t.resolved = true
	}
}
