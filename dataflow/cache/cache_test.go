package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memCache struct {
	data map[string][]byte
}

func newMemCache() *memCache { return &memCache{data: map[string][]byte{}} }

func (m *memCache) Exists(_ context.Context, key string) (bool, error) {
	_, ok := m.data[key]
	return ok, nil
}

func (m *memCache) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := m.data[key]
	if !ok {
		return nil, ErrMiss
	}
	return v, nil
}

func (m *memCache) Set(_ context.Context, key string, value []byte) error {
	m.data[key] = value
	return nil
}

func TestManager_ConfigureThenCacheReturnsConfiguredBacking(t *testing.T) {
	mc := newMemCache()
	m := NewManager(nil)
	require.NoError(t, m.Configure(func() (Cache, error) { return mc, nil }))

	c, err := m.Cache()
	require.NoError(t, err)
	assert.Same(t, mc, c)
}

func TestManager_ConfigureAfterFirstUseFails(t *testing.T) {
	m := NewManager(func() (Cache, error) { return newMemCache(), nil })
	_, err := m.Cache()
	require.NoError(t, err)

	err = m.Configure(func() (Cache, error) { return newMemCache(), nil })
	require.ErrorIs(t, err, ErrAlreadyConfigured)
}

func TestManager_ConfigureTwiceFails(t *testing.T) {
	m := NewManager(nil)
	require.NoError(t, m.Configure(func() (Cache, error) { return newMemCache(), nil }))
	err := m.Configure(func() (Cache, error) { return newMemCache(), nil })
	require.ErrorIs(t, err, ErrAlreadyConfigured)
}

func TestManager_NoBackingConfiguredFails(t *testing.T) {
	m := NewManager(nil)
	_, err := m.Cache()
	require.Error(t, err)
}

func TestManager_CacheIsMemoizedAcrossCalls(t *testing.T) {
	calls := 0
	m := NewManager(func() (Cache, error) {
		calls++
		return newMemCache(), nil
	})
	_, err := m.Cache()
	require.NoError(t, err)
	_, err = m.Cache()
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestManager_GetSetExistsRoundTrip(t *testing.T) {
	m := NewManager(func() (Cache, error) { return newMemCache(), nil })
	c, err := m.Cache()
	require.NoError(t, err)

	ctx := context.Background()
	ok, err := c.Exists(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = c.Get(ctx, "abc")
	require.ErrorIs(t, err, ErrMiss)

	require.NoError(t, c.Set(ctx, "abc", []byte("hello")))

	ok, err = c.Exists(ctx, "abc")
	require.NoError(t, err)
	assert.True(t, ok)

	v, err := c.Get(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), v)
}
