package rediscache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.ncnr.nist.gov/dataflow/dataflow/cache"
)

func startMiniredis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	s, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestCache_SetGetRoundTrip(t *testing.T) {
	s := startMiniredis(t)
	c, err := New("redis://" + s.Addr())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k1", []byte("v1")))

	v, err := c.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), v)
}

func TestCache_GetMiss(t *testing.T) {
	s := startMiniredis(t)
	c, err := New("redis://" + s.Addr())
	require.NoError(t, err)

	_, err = c.Get(context.Background(), "missing")
	require.ErrorIs(t, err, cache.ErrMiss)
}

func TestCache_Exists(t *testing.T) {
	s := startMiniredis(t)
	c, err := New("redis://" + s.Addr())
	require.NoError(t, err)
	ctx := context.Background()

	ok, err := c.Exists(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "k1", []byte("v1")))
	ok, err = c.Exists(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestConnect_ReachableServerReturnsRedisBackedCache(t *testing.T) {
	s := startMiniredis(t)
	c, err := Connect("redis://"+s.Addr(), 16)
	require.NoError(t, err)
	_, ok := c.(*Cache)
	assert.True(t, ok)
}

func TestConnect_UnreachableServerFallsBackToLRU(t *testing.T) {
	// Port 1 is reserved and never accepts connections.
	c, err := Connect("redis://127.0.0.1:1", 16)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k1", []byte("v1")))
	v, err := c.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), v)
}
