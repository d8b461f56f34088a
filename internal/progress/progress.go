// Package progress counts the initial data loads of a dashboard session and
// signals readiness exactly once.
package progress

import (
	"sync"
)

// Tracker counts completed bootstrap loads. The zero value is not usable;
// use NewTracker.
type Tracker struct {
	mu        sync.Mutex
	completed int
	expected  int
	onReady   func()
	ready     chan struct{}
}

// NewTracker creates a tracker expecting the given number of completions.
// onReady, if not nil, runs once, synchronously, on the completing call.
func NewTracker(expected int, onReady func()) *Tracker {
	if expected < 1 {
		expected = 1
	}
	return &Tracker{
		expected: expected,
		onReady:  onReady,
		ready:    make(chan struct{}),
	}
}

// RecordCompletion counts one completed load. Calls past the expected count
// are no-ops. ready is true only on the call that completed the set.
func (t *Tracker) RecordCompletion() (completed int, ready bool) {
	t.mu.Lock()
	if t.completed >= t.expected {
		completed = t.completed
		t.mu.Unlock()
		return completed, false
	}
	t.completed++
	completed = t.completed
	ready = t.completed == t.expected
	if ready {
		close(t.ready)
	}
	t.mu.Unlock()

	if ready && t.onReady != nil {
		t.onReady()
	}
	return completed, ready
}

// Completed returns the number of recorded completions.
func (t *Tracker) Completed() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.completed
}

// Expected returns the number of completions that make the tracker ready.
func (t *Tracker) Expected() int {
	return t.expected
}

// Ready is closed when the last expected load completes.
func (t *Tracker) Ready() <-chan struct{} {
	return t.ready
}

// IsReady reports whether every expected load has completed.
func (t *Tracker) IsReady() bool {
	select {
	case <-t.ready:
		return true
	default:
		return false
	}
}

// Percent returns the progress bar position. Each completion advances by
// 100/expected rounded down, and the final one snaps to 100.
func (t *Tracker) Percent() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.completed >= t.expected {
		return 100
	}
	return t.completed * (100 / t.expected)
}
