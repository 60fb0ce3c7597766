// Package storetest holds the behaviour every store.RecordStore must share.
// Store implementations run it from their own tests.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger/internal/core"
	"ledger/internal/store"
)

// Factory returns an empty store. Cleanup is the factory's responsibility.
type Factory func(t *testing.T) store.RecordStore

var base = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func record(title string, cents int64, cat core.Category, ts time.Time) core.Record {
	return core.Record{Title: title, Amount: core.Money{Cents: cents}, Category: cat, Timestamp: ts}
}

func recv(t *testing.T, ch <-chan []core.Record) []core.Record {
	t.Helper()
	select {
	case v, ok := <-ch:
		require.True(t, ok, "watch channel closed")
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for live set")
	}
	return nil
}

// Run exercises the store contract against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("InsertAssignsIDs", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		id1, err := s.Insert(ctx, record("Coffee", 250, core.Food, base))
		require.NoError(t, err)
		id2, err := s.Insert(ctx, record("Taxi", 1800, core.Travel, base))
		require.NoError(t, err)

		assert.NotEqual(t, core.UnassignedID, id1)
		assert.NotEqual(t, id1, id2)

		got, ok, err := s.GetByID(ctx, id1)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "Coffee", got.Title)
		assert.Equal(t, int64(250), got.Amount.Cents)
		assert.True(t, got.Timestamp.Equal(base))
	})

	t.Run("InsertRejectsInvalid", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.Insert(ctx, record("   ", 100, core.Food, base))
		assert.ErrorIs(t, err, core.ErrConstraint)
		_, err = s.Insert(ctx, record("Free", 0, core.Food, base))
		assert.ErrorIs(t, err, core.ErrConstraint)

		withID := record("Preassigned", 100, core.Food, base)
		withID.ID = 99
		_, err = s.Insert(ctx, withID)
		assert.ErrorIs(t, err, core.ErrConstraint)
	})

	t.Run("UpdateAndNotFound", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		id, err := s.Insert(ctx, record("Lunch", 1200, core.Food, base))
		require.NoError(t, err)

		upd := record("Team lunch", 4800, core.Staff, base.Add(time.Hour))
		upd.ID = id
		upd.Notes = "four people"
		require.NoError(t, s.Update(ctx, upd))

		got, ok, err := s.GetByID(ctx, id)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "Team lunch", got.Title)
		assert.Equal(t, core.Staff, got.Category)
		assert.Equal(t, "four people", got.Notes)

		missing := upd
		missing.ID = id + 1000
		assert.ErrorIs(t, s.Update(ctx, missing), core.ErrNotFound)
	})

	t.Run("DeleteIsIdempotent", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		id, err := s.Insert(ctx, record("Ink", 3999, core.Utility, base))
		require.NoError(t, err)
		require.NoError(t, s.Delete(ctx, id))
		require.NoError(t, s.Delete(ctx, id))

		_, ok, err := s.GetByID(ctx, id)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("ListBetweenInclusiveAndOrdered", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		from := base
		to := base.Add(time.Hour)
		_, _ = s.Insert(ctx, record("before", 1, core.Food, from.Add(-time.Millisecond)))
		a, _ := s.Insert(ctx, record("at from", 1, core.Food, from))
		b, _ := s.Insert(ctx, record("at to", 1, core.Food, to))
		c, _ := s.Insert(ctx, record("tie", 1, core.Food, to))
		_, _ = s.Insert(ctx, record("after", 1, core.Food, to.Add(time.Millisecond)))

		got, err := s.ListBetween(ctx, from, to)
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, []int64{c, b, a}, []int64{got[0].ID, got[1].ID, got[2].ID})
	})

	t.Run("WatchEmitsOnEveryMutation", func(t *testing.T) {
		s := newStore(t)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		ch, err := s.Watch(ctx)
		require.NoError(t, err)
		assert.Empty(t, recv(t, ch), "initial set is emitted immediately")

		id, err := s.Insert(ctx, record("Coffee", 250, core.Food, base))
		require.NoError(t, err)
		set := recv(t, ch)
		require.Len(t, set, 1)
		assert.Equal(t, id, set[0].ID)

		_, err = s.Insert(ctx, record("Later", 100, core.Food, base.Add(time.Minute)))
		require.NoError(t, err)
		set = recv(t, ch)
		require.Len(t, set, 2)
		assert.Equal(t, "Later", set[0].Title, "newest first")

		require.NoError(t, s.Delete(ctx, id))
		set = recv(t, ch)
		require.Len(t, set, 1)

		cancel()
		require.Eventually(t, func() bool {
			select {
			case _, ok := <-ch:
				return !ok
			default:
				return false
			}
		}, 2*time.Second, 5*time.Millisecond, "watch channel is released when ctx ends")
	})

	t.Run("ExistsMatching", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		_, err := s.Insert(ctx, record("Coffee", 50, core.Food, base))
		require.NoError(t, err)

		tests := []struct {
			name  string
			title string
			cents int64
			cat   core.Category
			since time.Time
			want  bool
		}{
			{"exact match inside window", "Coffee", 50, core.Food, base.Add(-2 * time.Minute), true},
			{"since equal to timestamp", "Coffee", 50, core.Food, base, true},
			{"since after timestamp", "Coffee", 50, core.Food, base.Add(time.Millisecond), false},
			{"different amount", "Coffee", 51, core.Food, base.Add(-time.Hour), false},
			{"different category", "Coffee", 50, core.Staff, base.Add(-time.Hour), false},
			{"different title", "Tea", 50, core.Food, base.Add(-time.Hour), false},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				got, err := s.ExistsMatching(ctx, tt.title, core.Money{Cents: tt.cents}, tt.cat, tt.since)
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			})
		}
	})
}
