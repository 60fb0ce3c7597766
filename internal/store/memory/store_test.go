package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger/internal/core"
	"ledger/internal/store"
	"ledger/internal/store/storetest"
)

var _ store.RecordStore = (*Store)(nil)
var _ store.Refresher = (*Store)(nil)

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.RecordStore {
		s := NewStore()
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestStore_SnapshotsAreIndependent(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	ch, err := s.Watch(ctx)
	require.NoError(t, err)
	<-ch

	_, err = s.Insert(ctx, core.Record{Title: "A", Amount: core.Money{Cents: 1}, Category: core.Food, Timestamp: time.Now()})
	require.NoError(t, err)
	first := <-ch

	_, err = s.Insert(ctx, core.Record{Title: "B", Amount: core.Money{Cents: 1}, Category: core.Food, Timestamp: time.Now()})
	require.NoError(t, err)
	<-ch

	assert.Len(t, first, 1, "earlier snapshot must not see later inserts")
	assert.Equal(t, 2, s.Len())
}

func TestStore_CanceledContext(t *testing.T) {
	s := NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Insert(ctx, core.Record{Title: "A", Amount: core.Money{Cents: 1}, Category: core.Food})
	assert.ErrorIs(t, err, context.Canceled)
	_, err = s.Watch(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
