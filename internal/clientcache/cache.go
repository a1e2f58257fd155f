// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package clientcache holds process-wide client instances keyed by a
// configuration discriminator such as an industry name. Each instance is
// built lazily on first use and shared by every later caller until Reset.
package clientcache

import (
	"sync"

	"golang.org/x/sync/singleflight"
)

// BuildFunc constructs the value for key.
type BuildFunc[V any] func(key string) (V, error)

// Cache lazily builds and shares one value per key. Reads of built values
// take a read lock only. Concurrent first requests for the same key share a
// single build; a failed build is not cached. Safe for concurrent use.
type Cache[V any] struct {
	build BuildFunc[V]

	mu     sync.RWMutex
	items  map[string]V
	flight singleflight.Group
}

// New returns an empty cache that builds values with build.
func New[V any](build BuildFunc[V]) *Cache[V] {
	return &Cache[V]{build: build, items: make(map[string]V)}
}

// Get returns the value for key, building it if needed.
func (c *Cache[V]) Get(key string) (V, error) {
	if v, ok := c.lookup(key); ok {
		return v, nil
	}

	v, err, _ := c.flight.Do(key, func() (any, error) {
		if v, ok := c.lookup(key); ok {
			return v, nil
		}
		v, err := c.build(key)
		if err != nil {
			return v, err
		}
		c.mu.Lock()
		c.items[key] = v
		c.mu.Unlock()
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return v.(V), nil
}

func (c *Cache[V]) lookup(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.items[key]
	return v, ok
}

// Len returns the number of built values.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Reset drops every built value. Later calls to Get rebuild.
func (c *Cache[V]) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]V)
}
