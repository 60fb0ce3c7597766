// Package live provides latest-value streams and the combinators the view
// layer builds on.
//
// Every channel handed out by this package has a single-slot buffer that
// always holds the most recent value: a slow reader may skip intermediate
// values but never misses the final one.
package live

import (
	"context"
	"sync"
)

// Offer puts v into a single-slot channel, replacing any value the reader
// has not consumed yet. The caller must be the only sender on ch.
func Offer[T any](ch chan T, v T) {
	select {
	case ch <- v:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	ch <- v
}

// Feed broadcasts the latest published value to any number of watchers.
type Feed[T any] struct {
	mu       sync.Mutex
	value    T
	hasValue bool
	closed   bool
	done     chan struct{}
	watchers map[chan T]struct{}
}

// NewFeed returns an empty feed. Watchers receive nothing until the first Publish.
func NewFeed[T any]() *Feed[T] {
	return &Feed[T]{
		done:     make(chan struct{}),
		watchers: make(map[chan T]struct{}),
	}
}

// NewFeedWith returns a feed seeded with an initial value.
func NewFeedWith[T any](v T) *Feed[T] {
	f := NewFeed[T]()
	f.value, f.hasValue = v, true
	return f
}

// Publish stores v and delivers it to every watcher.
func (f *Feed[T]) Publish(v T) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.value, f.hasValue = v, true
	for ch := range f.watchers {
		Offer(ch, v)
	}
}

// Update applies fn to the current value and publishes the result atomically.
func (f *Feed[T]) Update(fn func(T) T) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.value, f.hasValue = fn(f.value), true
	for ch := range f.watchers {
		Offer(ch, f.value)
	}
}

// Value returns the latest published value.
func (f *Feed[T]) Value() (T, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value, f.hasValue
}

// Watch returns a channel that immediately carries the current value (if any)
// and then every subsequent one. The channel is closed once ctx is done or the
// feed is closed.
func (f *Feed[T]) Watch(ctx context.Context) <-chan T {
	ch := make(chan T, 1)

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		close(ch)
		return ch
	}
	if f.hasValue {
		ch <- f.value
	}
	f.watchers[ch] = struct{}{}
	f.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-f.done:
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		if _, ok := f.watchers[ch]; ok {
			delete(f.watchers, ch)
			close(ch)
		}
	}()
	return ch
}

// Watchers returns the number of attached watchers.
func (f *Feed[T]) Watchers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.watchers)
}

// Close detaches all watchers and closes their channels. Later publishes are dropped.
func (f *Feed[T]) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	close(f.done)
	for ch := range f.watchers {
		delete(f.watchers, ch)
		close(ch)
	}
}
