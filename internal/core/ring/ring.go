// Package ring provides a fixed-capacity, oldest-evicted buffer used for the
// focus, error and log histories.
package ring

import "sync"

// Buffer is a thread-safe circular buffer.
type Buffer[T any] struct {
	mu    sync.RWMutex
	items []T
	head  int
	tail  int
	size  int
}

// New creates a buffer holding at most capacity items. A non-positive
// capacity is treated as 1.
func New[T any](capacity int) *Buffer[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Buffer[T]{items: make([]T, capacity)}
}

// Add appends item, evicting the oldest entry when full.
func (b *Buffer[T]) Add(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.items[b.head] = item
	b.head = (b.head + 1) % len(b.items)
	if b.size < len(b.items) {
		b.size++
	} else {
		b.tail = (b.tail + 1) % len(b.items)
	}
}

// All returns the items oldest first.
func (b *Buffer[T]) All() []T {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.size == 0 {
		return nil
	}
	out := make([]T, b.size)
	for i := 0; i < b.size; i++ {
		out[i] = b.items[(b.tail+i)%len(b.items)]
	}
	return out
}

// Update applies fn to every stored item, newest first, until fn returns
// true.
func (b *Buffer[T]) Update(fn func(item *T) bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := b.size - 1; i >= 0; i-- {
		if fn(&b.items[(b.tail+i)%len(b.items)]) {
			return
		}
	}
}

// Len returns the number of stored items.
func (b *Buffer[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// Cap returns the capacity.
func (b *Buffer[T]) Cap() int { return len(b.items) }

// Clear drops every item.
func (b *Buffer[T]) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	var zero T
	for i := range b.items {
		b.items[i] = zero
	}
	b.head, b.tail, b.size = 0, 0, 0
}
