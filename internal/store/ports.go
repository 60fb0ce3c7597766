// Package store defines the record store consumed by the view engine.
package store

import (
	"context"
	"time"

	"ledger/internal/core"
)

// RecordStore is the single mutable resource of the ledger. Every mutation
// goes through it; views only observe Watch.
type RecordStore interface {
	// Insert stores r and returns the assigned identifier. r.ID must be
	// core.UnassignedID; invalid records fail with core.ErrConstraint.
	Insert(ctx context.Context, r core.Record) (int64, error)
	// Update replaces the record with r.ID, failing with core.ErrNotFound.
	Update(ctx context.Context, r core.Record) error
	// Delete removes the record with id. Deleting a missing id is a no-op.
	Delete(ctx context.Context, id int64) error
	GetByID(ctx context.Context, id int64) (core.Record, bool, error)
	// ListBetween returns records with from <= timestamp <= to in store order.
	ListBetween(ctx context.Context, from, to time.Time) ([]core.Record, error)
	// Watch emits the full record set in store order right away and again
	// after every successful mutation. The channel is closed when ctx ends.
	Watch(ctx context.Context) (<-chan []core.Record, error)
	// ExistsMatching reports whether a record with the same title, amount and
	// category has a timestamp at or after since.
	ExistsMatching(ctx context.Context, title string, amount core.Money, category core.Category, since time.Time) (bool, error)
}

// Refresher is implemented by stores whose data can change outside this
// process. Refresh re-reads the data and re-emits it to watchers.
type Refresher interface {
	Refresh(ctx context.Context) error
}
