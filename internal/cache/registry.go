package cache

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Registry maps derivation keys to shared entries so that every consumer
// asking for the same key shares one computation.
type Registry[K comparable, T any] struct {
	name string
	opts Options

	mu      sync.Mutex
	entries map[K]*Shared[T]
}

// NewRegistry creates an empty registry. Entries inherit opts.
func NewRegistry[K comparable, T any](name string, opts Options) *Registry[K, T] {
	return &Registry[K, T]{
		name:    name,
		opts:    opts.withDefaults(),
		entries: make(map[K]*Shared[T]),
	}
}

// Get returns the entry for key, creating it with source when absent. The
// source of an existing entry is kept.
func (r *Registry[K, T]) Get(key K, source Source[T]) *Shared[T] {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[key]; ok {
		return e
	}
	e := NewShared(fmt.Sprintf("%s/%v", r.name, key), source, r.opts)
	r.entries[key] = e
	return e
}

// Subscribe is Get followed by Subscribe, performed while no pruning can run.
func (r *Registry[K, T]) Subscribe(key K, source Source[T]) *Subscription[T] {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[key]
	if !ok {
		e = NewShared(fmt.Sprintf("%s/%v", r.name, key), source, r.opts)
		r.entries[key] = e
	}
	return e.Subscribe()
}

// Snapshot returns the current value for key. The entry is attached while
// the registry lock is held, so pruning cannot drop it before it is shared.
func (r *Registry[K, T]) Snapshot(ctx context.Context, key K, source Source[T]) (T, error) {
	sub := r.Subscribe(key, source)
	defer sub.Close()
	return sub.first(ctx)
}

// Len returns the number of entries, idle ones included.
func (r *Registry[K, T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// CleanExpired drops idle entries and returns how many were removed.
func (r *Registry[K, T]) CleanExpired() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for k, e := range r.entries {
		if e.idle() {
			delete(r.entries, k)
			removed++
		}
	}
	return removed
}

// Stats returns diagnostics for every entry, sorted by name.
func (r *Registry[K, T]) Stats() []Stats {
	r.mu.Lock()
	entries := make([]*Shared[T], 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.Unlock()

	out := make([]Stats, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Stats())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
