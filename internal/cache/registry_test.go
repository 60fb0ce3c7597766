package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_SameKeySharesEntry(t *testing.T) {
	fs := newFeedSource(1)
	r := NewRegistry[string, int]("views", Options{GracePeriod: time.Hour})

	a := r.Get("list", fs.source)
	b := r.Get("list", fs.source)
	assert.Same(t, a, b)
	assert.Equal(t, 1, r.Len())

	c := r.Get("report", fs.source)
	assert.NotSame(t, a, c)
	assert.Equal(t, 2, r.Len())
}

func TestRegistry_SubscribeStartsOnce(t *testing.T) {
	fs := newFeedSource(1)
	r := NewRegistry[string, int]("views", Options{GracePeriod: time.Hour})

	s1 := r.Subscribe("k", fs.source)
	s2 := r.Subscribe("k", fs.source)
	defer s1.Close()
	defer s2.Close()

	assert.Equal(t, 1, next(t, s1))
	assert.Equal(t, 1, next(t, s2))
	assert.Equal(t, int32(1), fs.starts.Load())
}

func TestRegistry_CleanExpiredDropsIdleEntries(t *testing.T) {
	fs := newFeedSource(1)
	r := NewRegistry[string, int]("views", Options{})

	busy := r.Subscribe("busy", fs.source)
	defer busy.Close()
	idle := r.Subscribe("idle", fs.source)
	next(t, idle)
	idle.Close()

	assert.Equal(t, 1, r.CleanExpired())
	assert.Equal(t, 1, r.Len())

	stats := r.Stats()
	require.Len(t, stats, 1)
	assert.Equal(t, "views/busy", stats[0].Name)
	assert.Equal(t, "active", stats[0].State)
}

func TestRegistry_SnapshotKeepsEntryShared(t *testing.T) {
	fs := newFeedSource(7)
	r := NewRegistry[string, int]("views", Options{GracePeriod: time.Hour})

	v, err := r.Snapshot(context.Background(), "k", fs.source)
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.Equal(t, 1, r.Len())

	sub := r.Subscribe("k", fs.source)
	defer sub.Close()
	assert.Equal(t, 7, next(t, sub))
	assert.Equal(t, int32(1), fs.starts.Load())
}

func TestRegistry_SnapshotSurvivesConcurrentCleaning(t *testing.T) {
	fs := newFeedSource(3)
	r := NewRegistry[string, int]("views", Options{})

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			default:
				r.CleanExpired()
			}
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := 0; i < 200; i++ {
		v, err := r.Snapshot(ctx, "k", fs.source)
		require.NoError(t, err)
		require.Equal(t, 3, v)
	}
	close(stop)
	<-done
}

func TestRegistry_SnapshotHonoursContext(t *testing.T) {
	r := NewRegistry[string, int]("views", Options{})
	never := func(ctx context.Context) (<-chan int, error) {
		return make(chan int), nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Snapshot(ctx, "k", never)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestManager_CleanNow(t *testing.T) {
	fs := newFeedSource(1)
	r := NewRegistry[int, int]("n", Options{})
	for i := 0; i < 3; i++ {
		r.Get(i, fs.source)
	}

	m := NewManager()
	m.Register(r)
	assert.Equal(t, 3, m.CleanNow())
	assert.Equal(t, 0, r.Len())

	m.StartCleanup(time.Hour)
	m.Stop()
	m.Stop()
}

func TestManager_StopWithoutStart(t *testing.T) {
	m := NewManager()
	done := make(chan struct{})
	go func() {
		m.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked on a manager that never started")
	}
}
