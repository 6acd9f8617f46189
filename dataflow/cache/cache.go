// Package cache defines the keyed byte-store abstraction backing the
// engine's fingerprint-addressed outputs (spec.md §4.6, C6), and a
// process-global, configure-before-first-use Manager selecting between an
// in-process and a remote backing.
package cache

import (
	"context"
	"errors"
	"sync"

	"go.ncnr.nist.gov/dataflow/internal/logging"
)

// ErrMiss is returned by Get when key is not present.
var ErrMiss = errors.New("cache: miss")

// ErrAlreadyConfigured is returned by Configure when the cache has already
// been selected (by Configure or by a prior Get/Set/Exists) once.
var ErrAlreadyConfigured = errors.New("cache: already configured")

// Cache is a keyed byte-store: fingerprints map to the JSON-encoded bundle
// they address.
type Cache interface {
	Exists(ctx context.Context, key string) (bool, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Backing constructs a Cache implementation lazily, so Manager need not
// import every backing package.
type Backing func() (Cache, error)

// Manager holds the process-wide cache selection. Use Default for the
// process-global instance; construct additional Managers only in tests.
type Manager struct {
	mu         sync.Mutex
	backing    Backing
	cache      Cache
	configured bool
}

// NewManager returns an unconfigured Manager defaulting to backing if no
// explicit Configure call is made before first use.
func NewManager(defaultBacking Backing) *Manager {
	return &Manager{backing: defaultBacking}
}

// Configure selects backing as the cache implementation. It must be called
// before the cache is first used (Get/Set/Exists/Cache); calling it again,
// or after first use, returns ErrAlreadyConfigured.
func (m *Manager) Configure(backing Backing) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cache != nil || m.configured {
		return ErrAlreadyConfigured
	}
	m.backing = backing
	m.configured = true
	return nil
}

// Cache returns the configured (or default) backing, constructing it on
// first use.
func (m *Manager) Cache() (Cache, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cache != nil {
		return m.cache, nil
	}
	if m.backing == nil {
		return nil, errors.New("cache: no backing configured")
	}
	c, err := m.backing()
	if err != nil {
		return nil, err
	}
	m.cache = c
	return c, nil
}

// Default is the process-global cache manager. cmd/dataflowd calls
// Default.Configure once at startup based on internal/config.EngineConfig,
// then calls Default.Cache() and hands the result to executor.New.
var Default = NewManager(nil)

// Get fetches a value from the default manager's cache.
func Get(ctx context.Context, key string) ([]byte, error) {
	c, err := Default.Cache()
	if err != nil {
		return nil, err
	}
	v, err := c.Get(ctx, key)
	if err != nil {
		logging.Logger.WithField("key", key).Debug("cache miss")
	}
	return v, err
}

// Set stores a value in the default manager's cache.
func Set(ctx context.Context, key string, value []byte) error {
	c, err := Default.Cache()
	if err != nil {
		return err
	}
	return c.Set(ctx, key, value)
}

// Exists reports whether key is present in the default manager's cache.
func Exists(ctx context.Context, key string) (bool, error) {
	c, err := Default.Cache()
	if err != nil {
		return false, err
	}
	return c.Exists(ctx, key)
}
