// Package lrucache implements dataflow/cache.Cache as an in-process,
// bounded LRU — the default backing, used whenever no remote cache is
// configured (spec.md §4.6).
package lrucache

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"

	"go.ncnr.nist.gov/dataflow/dataflow/cache"
)

// Cache is a fixed-capacity, in-process LRU cache.
type Cache struct {
	lru *lru.Cache[string, []byte]
}

// New constructs a Cache holding at most size entries, evicting the least
// recently used entry once full.
func New(size int) (*Cache, error) {
	l, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, err
	}
	return &Cache{lru: l}, nil
}

// Backing adapts New into a dataflow/cache.Backing for use with
// cache.Manager.Configure.
func Backing(size int) cache.Backing {
	return func() (cache.Cache, error) {
		return New(size)
	}
}

func (c *Cache) Exists(_ context.Context, key string) (bool, error) {
	_, ok := c.lru.Peek(key)
	return ok, nil
}

func (c *Cache) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := c.lru.Get(key)
	if !ok {
		return nil, cache.ErrMiss
	}
	return v, nil
}

func (c *Cache) Set(_ context.Context, key string, value []byte) error {
	c.lru.Add(key, value)
	return nil
}
