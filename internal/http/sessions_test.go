package http

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger/internal/services"
	"ledger/internal/store/memory"
)

func newTestRegistry(t *testing.T, ttl time.Duration) (*sessionRegistry, *testClock) {
	t.Helper()
	st := memory.NewStore()
	t.Cleanup(func() { _ = st.Close() })
	views := services.NewViewService(st, services.ViewOptions{Location: time.UTC})
	reg := newSessionRegistry(views.NewSession, ttl)
	clk := &testClock{now: start}
	reg.now = clk.Now
	return reg, clk
}

func TestSessionRegistry_ExpiresIdleSessions(t *testing.T) {
	reg, clk := newTestRegistry(t, time.Minute)

	idle, _ := reg.create()
	busy, _ := reg.create()
	_, release, ok := reg.attach(busy)
	require.True(t, ok)

	clk.Advance(2 * time.Minute)
	assert.Equal(t, 1, reg.CleanExpired(), "only the session without streams expires")
	_, ok = reg.get(idle)
	assert.False(t, ok)

	release()
	release()
	clk.Advance(2 * time.Minute)
	assert.Equal(t, 1, reg.CleanExpired())
	assert.Equal(t, 0, reg.Len())
}

func TestSessionRegistry_GetTouches(t *testing.T) {
	reg, clk := newTestRegistry(t, time.Minute)
	id, _ := reg.create()

	clk.Advance(50 * time.Second)
	_, ok := reg.get(id)
	require.True(t, ok)
	clk.Advance(50 * time.Second)
	assert.Equal(t, 0, reg.CleanExpired())
}
