package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestMemory() (*Memory, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)}
	m := NewMemory()
	m.now = clock.now
	return m, clock
}

func TestMemory_Blacklist(t *testing.T) {
	ctx := context.Background()
	m, clock := newTestMemory()

	require.NoError(t, m.Revoke(ctx, "tok1", clock.t.Add(time.Hour)))
	require.NoError(t, m.Revoke(ctx, "tok2", clock.t.Add(-time.Minute))) // already expired

	revoked, err := m.IsRevoked(ctx, "tok1")
	require.NoError(t, err)
	assert.True(t, revoked)
	revoked, _ = m.IsRevoked(ctx, "tok2")
	assert.False(t, revoked)
	revoked, _ = m.IsRevoked(ctx, "unknown")
	assert.False(t, revoked)

	clock.advance(2 * time.Hour)
	revoked, _ = m.IsRevoked(ctx, "tok1")
	assert.False(t, revoked)

	n, err := m.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Empty(t, m.revoked)
}

func TestMemory_Attempts(t *testing.T) {
	ctx := context.Background()
	m, clock := newTestMemory()
	window := 15 * time.Minute

	for i := 1; i <= 3; i++ {
		n, err := m.Hit(ctx, "alice", window)
		require.NoError(t, err)
		assert.Equal(t, i, n)
	}
	cnt, _ := m.Count(ctx, "alice")
	assert.Equal(t, 3, cnt)
	cnt, _ = m.Count(ctx, "bob")
	assert.Equal(t, 0, cnt)

	// the window is started by the first hit
	clock.advance(10 * time.Minute)
	n, _ := m.Hit(ctx, "alice", window)
	assert.Equal(t, 4, n)
	clock.advance(6 * time.Minute)
	cnt, _ = m.Count(ctx, "alice")
	assert.Equal(t, 0, cnt)
	n, _ = m.Hit(ctx, "alice", window)
	assert.Equal(t, 1, n)

	require.NoError(t, m.Reset(ctx, "alice"))
	cnt, _ = m.Count(ctx, "alice")
	assert.Equal(t, 0, cnt)
}
