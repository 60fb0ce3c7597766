package live

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		require.True(t, ok, "channel closed unexpectedly")
		return v
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for value")
	}
	var zero T
	return zero
}

func TestOffer_KeepsLatest(t *testing.T) {
	ch := make(chan int, 1)
	Offer(ch, 1)
	Offer(ch, 2)
	Offer(ch, 3)

	assert.Equal(t, 3, <-ch)
	assert.Len(t, ch, 0)
}

func TestFeed_WatchReceivesCurrentValue(t *testing.T) {
	f := NewFeedWith("seed")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := f.Watch(ctx)
	assert.Equal(t, "seed", receive(t, ch))

	f.Publish("next")
	assert.Equal(t, "next", receive(t, ch))
}

func TestFeed_EmptyFeedWaitsForPublish(t *testing.T) {
	f := NewFeed[int]()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := f.Watch(ctx)
	select {
	case v := <-ch:
		t.Fatalf("unexpected value %d before publish", v)
	case <-time.After(20 * time.Millisecond):
	}

	f.Publish(7)
	assert.Equal(t, 7, receive(t, ch))
}

func TestFeed_CoalescesButKeepsFinalValue(t *testing.T) {
	f := NewFeed[int]()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := f.Watch(ctx)
	for i := 1; i <= 100; i++ {
		f.Publish(i)
	}
	assert.Equal(t, 100, receive(t, ch))
}

func TestFeed_CancelDetachesWatcher(t *testing.T) {
	f := NewFeedWith(1)
	ctx, cancel := context.WithCancel(context.Background())

	ch := f.Watch(ctx)
	receive(t, ch)
	require.Equal(t, 1, f.Watchers())

	cancel()
	require.Eventually(t, func() bool { return f.Watchers() == 0 }, time.Second, 5*time.Millisecond)

	_, ok := <-ch
	assert.False(t, ok, "channel should be closed after cancel")
}

func TestFeed_CloseClosesWatchers(t *testing.T) {
	f := NewFeed[int]()
	ch := f.Watch(context.Background())

	f.Close()
	_, ok := <-ch
	assert.False(t, ok)

	late := f.Watch(context.Background())
	_, ok = <-late
	assert.False(t, ok, "watching a closed feed yields a closed channel")

	f.Publish(1)
	_, has := f.Value()
	assert.False(t, has, "publish after close is dropped")
}

func TestFeed_Update(t *testing.T) {
	f := NewFeedWith(1)
	f.Update(func(v int) int { return v + 41 })
	v, ok := f.Value()
	require.True(t, ok)
	assert.Equal(t, 42, v)
}

func TestMap(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	in := make(chan int)
	out := Map(ctx, in, func(v int) string { return fmt.Sprintf("#%d", v) })

	in <- 5
	assert.Equal(t, "#5", receive(t, out))

	close(in)
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-out:
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func TestCombine2_WaitsForBothInputs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	nums := NewFeed[int]()
	words := NewFeed[string]()
	out := Combine2(ctx, nums.Watch(ctx), words.Watch(ctx), func(n int, w string) string {
		return fmt.Sprintf("%s=%d", w, n)
	})

	nums.Publish(1)
	select {
	case v := <-out:
		t.Fatalf("unexpected early value %q", v)
	case <-time.After(20 * time.Millisecond):
	}

	words.Publish("a")
	assert.Equal(t, "a=1", receive(t, out))

	nums.Publish(2)
	assert.Equal(t, "a=2", receive(t, out))

	words.Publish("b")
	assert.Equal(t, "b=2", receive(t, out))
}

func TestCombine2_BurstDeliversFinalState(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	nums := NewFeedWith(0)
	words := NewFeedWith("x")
	out := Combine2(ctx, nums.Watch(ctx), words.Watch(ctx), func(n int, w string) string {
		return fmt.Sprintf("%s=%d", w, n)
	})

	for i := 1; i <= 50; i++ {
		nums.Publish(i)
	}
	words.Publish("final")

	require.Eventually(t, func() bool {
		select {
		case v := <-out:
			return v == "final=50"
		default:
			return false
		}
	}, time.Second, time.Millisecond)
}
