// Package ring provides a bounded, thread-safe buffer that keeps the most
// recent items and drops the oldest on overflow.
package ring

import "sync"

// DefaultCapacity is used when a non-positive capacity is requested.
const DefaultCapacity = 100

// Buffer is a fixed-capacity ring of T. When full, the oldest item is
// overwritten by the next Push.
type Buffer[T any] struct {
	mu       sync.Mutex
	items    []T
	head     int // next write position
	count    int
	capacity int

	dropped int64
}

// New creates a ring buffer with the given capacity.
func New[T any](capacity int) *Buffer[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer[T]{
		items:    make([]T, capacity),
		capacity: capacity,
	}
}

// Push appends an item, evicting the oldest if the buffer is full. It reports
// whether an item was evicted.
func (b *Buffer[T]) Push(item T) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	evicted := false
	if b.count >= b.capacity {
		b.count--
		b.dropped++
		evicted = true
	}

	b.items[b.head] = item
	b.head = (b.head + 1) % b.capacity
	b.count++
	return evicted
}

// Recent returns up to limit items, newest first. A non-positive limit
// returns everything held.
func (b *Buffer[T]) Recent(limit int) []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.count
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]T, n)
	for i := 0; i < n; i++ {
		idx := (b.head - 1 - i + b.capacity) % b.capacity
		out[i] = b.items[idx]
	}
	return out
}

// Update applies fn to every held item in place.
func (b *Buffer[T]) Update(fn func(*T)) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := 0; i < b.count; i++ {
		idx := (b.head - 1 - i + b.capacity) % b.capacity
		fn(&b.items[idx])
	}
}

// Len returns the current number of items in the buffer.
func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Cap returns the configured capacity.
func (b *Buffer[T]) Cap() int {
	return b.capacity
}

// Dropped returns the total number of evicted items.
func (b *Buffer[T]) Dropped() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
