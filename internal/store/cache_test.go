// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package store

import (
	"testing"
	"time"
)

func TestQueryCache_HitWithinTTL(t *testing.T) {
	c, err := NewQueryCache[string](10, time.Minute)
	if err != nil {
		t.Fatalf("NewQueryCache failed: %v", err)
	}
	c.Set("k", "v")

	got, ok := c.Get("k")
	if !ok || got != "v" {
		t.Errorf("expected a hit with value v, got ok=%v value=%q", ok, got)
	}
}

func TestQueryCache_ExpiresAfterTTL(t *testing.T) {
	c, err := NewQueryCache[string](10, time.Minute)
	if err != nil {
		t.Fatalf("NewQueryCache failed: %v", err)
	}

	now := time.Now()
	c.now = func() time.Time { return now }
	c.Set("k", "v")

	c.now = func() time.Time { return now.Add(2 * time.Minute) }
	if _, ok := c.Get("k"); ok {
		t.Error("expected the entry to expire after its TTL")
	}
	if c.Len() != 0 {
		t.Errorf("expected the expired entry to be removed on read, got Len=%d", c.Len())
	}
}

func TestQueryCache_LRUEvictionAtCapacity(t *testing.T) {
	c, err := NewQueryCache[int](2, time.Minute)
	if err != nil {
		t.Fatalf("NewQueryCache failed: %v", err)
	}
	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)

	if _, ok := c.Get("a"); ok {
		t.Error("expected the least-recently-used entry to be evicted at capacity")
	}
	if v, ok := c.Get("c"); !ok || v != 3 {
		t.Errorf("expected the newest entry to survive, got ok=%v v=%d", ok, v)
	}
}
