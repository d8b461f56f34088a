package lane

import (
	"sync"
)

// Inbox is an unbounded FIFO mailbox. Send never blocks; it doubles the ring
// capacity once the buffer is 70% full. A single reader waits on Ready and
// drains with DrainTo.
type Inbox[T any] struct {
	mu       sync.Mutex
	buf      []T
	head     int // read position
	tail     int // write position
	count    int
	capacity int
	closed   bool
	ready    chan struct{}

	// Stats
	totalReceived int64
	totalSent     int64
	resizeCount   int
}

// NewInbox creates an inbox with the given initial capacity.
func NewInbox[T any](initialCapacity int) *Inbox[T] {
	if initialCapacity < 1 {
		initialCapacity = 1
	}
	return &Inbox[T]{
		buf:      make([]T, initialCapacity),
		capacity: initialCapacity,
		ready:    make(chan struct{}, 1),
	}
}

// Send appends an item. Returns false if the inbox is closed.
func (b *Inbox[T]) Send(item T) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false
	}

	threshold := (b.capacity * 70) / 100
	if threshold < 1 {
		threshold = 1
	}
	if b.count+1 >= threshold {
		b.grow()
	}

	b.buf[b.tail] = item
	b.tail = (b.tail + 1) % b.capacity
	b.count++
	b.totalReceived++

	b.notify()
	return true
}

// Ready returns a channel that receives a value whenever items may be pending.
// A single notification can cover many sends, so readers must drain fully.
func (b *Inbox[T]) Ready() <-chan struct{} {
	return b.ready
}

// Close stops accepting items. Items already queued remain drainable.
func (b *Inbox[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	b.notify()
}

// Closed reports whether Close has been called.
func (b *Inbox[T]) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Len returns the current number of queued items.
func (b *Inbox[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Stats returns inbox statistics.
func (b *Inbox[T]) Stats() InboxStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return InboxStats{
		Count:         b.count,
		Capacity:      b.capacity,
		TotalReceived: b.totalReceived,
		TotalSent:     b.totalSent,
		ResizeCount:   b.resizeCount,
	}
}

// InboxStats contains inbox statistics.
type InboxStats struct {
	Count         int   `json:"count"`
	Capacity      int   `json:"capacity"`
	TotalReceived int64 `json:"total_received"`
	TotalSent     int64 `json:"total_sent"`
	ResizeCount   int   `json:"resize_count"`
}

// DrainTo removes up to max items (all items if max <= 0) in FIFO order.
func (b *Inbox[T]) DrainTo(max int) []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		return nil
	}

	n := b.count
	if max > 0 && max < n {
		n = max
	}

	result := make([]T, n)
	var zero T
	for i := 0; i < n; i++ {
		result[i] = b.buf[b.head]
		b.buf[b.head] = zero
		b.head = (b.head + 1) % b.capacity
		b.count--
		b.totalSent++
	}

	if b.count > 0 {
		b.notify()
	}
	return result
}

// notify must be called with lock held.
func (b *Inbox[T]) notify() {
	select {
	case b.ready <- struct{}{}:
	default:
	}
}

// grow doubles the ring capacity. Must be called with lock held.
func (b *Inbox[T]) grow() {
	newCapacity := b.capacity * 2
	newBuf := make([]T, newCapacity)

	if b.count > 0 {
		if b.head < b.tail {
			copy(newBuf, b.buf[b.head:b.tail])
		} else {
			n := copy(newBuf, b.buf[b.head:])
			copy(newBuf[n:], b.buf[:b.tail])
		}
	}

	b.buf = newBuf
	b.head = 0
	b.tail = b.count
	b.capacity = newCapacity
	b.resizeCount++
}
