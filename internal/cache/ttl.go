// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
//
// Package cache memoizes expensive reads (configuration, folder
// hierarchy) behind a short TTL, grounded on internal/rules/store.go's
// refreshCache/mu sync.RWMutex-guarded in-memory cache pattern,
// generalized from an eager write-through refresh into a generic
// lazy get-or-compute cache with per-key expiry.
package cache

import (
	"sync"
	"time"
)

// TTL is a keyed cache where each entry expires independently. A
// single mutex guards the whole map, matching the teacher's one-lock-
// per-store granularity rather than per-key locking, since entries are
// cheap to recompute and contention is not expected to be a problem at
// this scale.
type TTL[K comparable, V any] struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[K]entry[V]
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// New constructs a TTL cache where every entry lives for ttl after it
// is computed.
func New[K comparable, V any](ttl time.Duration) *TTL[K, V] {
	return &TTL[K, V]{ttl: ttl, entries: make(map[K]entry[V])}
}

// GetOrCompute returns the cached value for key if it hasn't expired,
// otherwise calls compute, stores the result, and returns it. compute
// runs with the cache lock held, so concurrent callers for the same
// key never race to recompute it (a single-flight effect without a
// separate dependency for it).
func (c *TTL[K, V]) GetOrCompute(key K, compute func() (V, error)) (V, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok && time.Now().Before(e.expiresAt) {
		return e.value, nil
	}

	value, err := compute()
	if err != nil {
		var zero V
		return zero, err
	}

	c.entries[key] = entry[V]{value: value, expiresAt: time.Now().Add(c.ttl)}
	return value, nil
}

// GetOrComputeFallback behaves like GetOrCompute, except that when
// compute fails it falls back to the last successfully computed value
// for key, however stale, rather than propagating the error — the
// "cache fallback" spec.md asks for on slow/failed reads. The bool
// result is false only when compute failed and no prior value exists.
func (c *TTL[K, V]) GetOrComputeFallback(key K, compute func() (V, error)) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok && time.Now().Before(e.expiresAt) {
		return e.value, true
	}

	value, err := compute()
	if err != nil {
		if e, ok := c.entries[key]; ok {
			return e.value, true
		}
		var zero V
		return zero, false
	}

	c.entries[key] = entry[V]{value: value, expiresAt: time.Now().Add(c.ttl)}
	return value, true
}

// Invalidate drops key so the next GetOrCompute recomputes it, used
// whenever an underlying write (a new tag, a config change) makes a
// cached value stale before its TTL would naturally expire it.
func (c *TTL[K, V]) Invalidate(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// InvalidateAll drops every entry.
func (c *TTL[K, V]) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[K]entry[V])
}
