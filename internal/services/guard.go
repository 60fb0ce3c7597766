package services

import (
	"context"
	"fmt"
	"time"

	"ledger/internal/core"
)

// DefaultDuplicateWindow is the trailing window in which an identical
// submission is treated as a duplicate.
const DefaultDuplicateWindow = 2 * time.Minute

// DuplicateChecker is the store query the guard relies on.
type DuplicateChecker interface {
	ExistsMatching(ctx context.Context, title string, amount core.Money, category core.Category, since time.Time) (bool, error)
}

// DuplicateGuard suppresses near-identical submissions. The check and the
// following insert are not atomic: two concurrent submissions can both pass.
type DuplicateGuard struct {
	checker DuplicateChecker
	window  time.Duration
	now     func() time.Time
}

func NewDuplicateGuard(checker DuplicateChecker, window time.Duration) *DuplicateGuard {
	if window <= 0 {
		window = DefaultDuplicateWindow
	}
	return &DuplicateGuard{checker: checker, window: window, now: time.Now}
}

// WithClock replaces the guard's time source.
func (g *DuplicateGuard) WithClock(now func() time.Time) *DuplicateGuard {
	g.now = now
	return g
}

// Window returns the configured window.
func (g *DuplicateGuard) Window() time.Duration {
	return g.window
}

// IsDuplicate reports whether a record with the same title, amount and
// category was stored within the window ending now.
func (g *DuplicateGuard) IsDuplicate(ctx context.Context, r core.Record) (bool, error) {
	since := g.now().Add(-g.window)
	exists, err := g.checker.ExistsMatching(ctx, r.Title, r.Amount, r.Category, since)
	if err != nil {
		return false, fmt.Errorf("duplicate check: %w", err)
	}
	return exists, nil
}
