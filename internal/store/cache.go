// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package store

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// QueryCache is the bounded, TTL-expiring cache in front of
// RepositoryManager.Query, keyed on (repoId, hash(query+cfg)). It
// wraps an LRU for the size bound and a stored timestamp for the TTL
// bound, since golang-lru/v2 itself has no expiry notion.
type QueryCache[V any] struct {
	mu    sync.Mutex
	inner *lru.Cache[string, cacheEntry[V]]
	ttl   time.Duration
	now   func() time.Time
}

type cacheEntry[V any] struct {
	value   V
	storedAt time.Time
}

// NewQueryCache builds a cache holding at most size entries, each valid
// for ttl after being set.
func NewQueryCache[V any](size int, ttl time.Duration) (*QueryCache[V], error) {
	inner, err := lru.New[string, cacheEntry[V]](size)
	if err != nil {
		return nil, err
	}
	return &QueryCache[V]{inner: inner, ttl: ttl, now: time.Now}, nil
}

// Get returns the cached value for key if present and not yet expired.
func (c *QueryCache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.inner.Get(key)
	if !ok {
		var zero V
		return zero, false
	}
	if c.now().Sub(entry.storedAt) > c.ttl {
		c.inner.Remove(key)
		var zero V
		return zero, false
	}
	return entry.value, true
}

// Set stores value under key with the cache's configured TTL, evicting
// the least-recently-used entry if the cache is at capacity.
func (c *QueryCache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inner.Add(key, cacheEntry[V]{value: value, storedAt: c.now()})
}

// Len returns the number of entries currently cached, including any not
// yet lazily expired.
func (c *QueryCache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inner.Len()
}
