// Package memory provides an in-process record store, used by tests and the
// memory backend.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ledger/internal/core"
	"ledger/internal/live"
)

type Store struct {
	mu      sync.RWMutex
	records map[int64]core.Record
	nextID  int64
	feed    *live.Feed[[]core.Record]
}

func NewStore() *Store {
	s := &Store{
		records: make(map[int64]core.Record),
		nextID:  1,
		feed:    live.NewFeed[[]core.Record](),
	}
	s.feed.Publish(s.snapshotLocked())
	return s
}

func (s *Store) Insert(ctx context.Context, r core.Record) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if r.ID != core.UnassignedID || !r.Valid() {
		return 0, fmt.Errorf("insert record: %w", core.ErrConstraint)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	r.ID = s.nextID
	s.nextID++
	r.Timestamp = core.TruncateMillis(r.Timestamp)
	s.records[r.ID] = r
	s.feed.Publish(s.snapshotLocked())
	return r.ID, nil
}

func (s *Store) Update(ctx context.Context, r core.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !r.Valid() {
		return fmt.Errorf("update record %d: %w", r.ID, core.ErrConstraint)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[r.ID]; !ok {
		return fmt.Errorf("update record %d: %w", r.ID, core.ErrNotFound)
	}
	r.Timestamp = core.TruncateMillis(r.Timestamp)
	s.records[r.ID] = r
	s.feed.Publish(s.snapshotLocked())
	return nil
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return nil
	}
	delete(s.records, id)
	s.feed.Publish(s.snapshotLocked())
	return nil
}

func (s *Store) GetByID(ctx context.Context, id int64) (core.Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return core.Record{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	return r, ok, nil
}

func (s *Store) ListBetween(ctx context.Context, from, to time.Time) ([]core.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Record, 0)
	for _, r := range s.records {
		if core.InRange(r.Timestamp, from, to) {
			out = append(out, r)
		}
	}
	core.SortRecords(out)
	return out, nil
}

func (s *Store) Watch(ctx context.Context) (<-chan []core.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.feed.Watch(ctx), nil
}

func (s *Store) ExistsMatching(ctx context.Context, title string, amount core.Money, category core.Category, since time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.records {
		if r.Title == title && r.Amount == amount && r.Category == category && !r.Timestamp.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

// Refresh re-emits the current set. Nothing outside the process can change
// it, so this only wakes watchers.
func (s *Store) Refresh(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.feed.Publish(s.snapshotLocked())
	return nil
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Close releases all watchers.
func (s *Store) Close() error {
	s.feed.Close()
	return nil
}

// snapshotLocked returns a fresh ordered copy; published slices are never mutated.
func (s *Store) snapshotLocked() []core.Record {
	out := make([]core.Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	core.SortRecords(out)
	return out
}
