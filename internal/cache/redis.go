// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBacked wraps TTL with an optional Redis second tier, so a value
// survives this process restarting even though the in-memory TTL map
// does not. Reads check the in-memory layer first, then Redis, then
// fall through to compute; writes populate both layers. A nil client
// makes this behave exactly like a bare TTL cache.
type RedisBacked[V any] struct {
	local  *TTL[string, V]
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisBacked constructs a RedisBacked cache. client may be nil
// (Redis is an optional dependency per spec.md's config), in which
// case every call degrades to the in-memory-only TTL behavior.
func NewRedisBacked[V any](client *redis.Client, keyPrefix string, ttl time.Duration) *RedisBacked[V] {
	return &RedisBacked[V]{
		local:  New[string, V](ttl),
		client: client,
		prefix: keyPrefix,
		ttl:    ttl,
	}
}

// GetOrCompute checks memory, then Redis, then computes and populates
// both layers. Redis errors are treated as a miss rather than failing
// the call — the in-memory layer (or a fresh compute) still serves the
// request.
func (c *RedisBacked[V]) GetOrCompute(ctx context.Context, key string, compute func() (V, error)) (V, error) {
	return c.local.GetOrCompute(key, func() (V, error) {
		if c.client != nil {
			if raw, err := c.client.Get(ctx, c.prefix+key).Result(); err == nil {
				var cached V
				if jsonErr := json.Unmarshal([]byte(raw), &cached); jsonErr == nil {
					return cached, nil
				}
			}
		}

		value, err := compute()
		if err != nil {
			var zero V
			return zero, err
		}

		if c.client != nil {
			if encoded, err := json.Marshal(value); err == nil {
				_ = c.client.Set(ctx, c.prefix+key, encoded, c.ttl).Err()
			}
		}
		return value, nil
	})
}

// Invalidate drops key from both layers.
func (c *RedisBacked[V]) Invalidate(ctx context.Context, key string) {
	c.local.Invalidate(key)
	if c.client != nil {
		_ = c.client.Del(ctx, c.prefix+key).Err()
	}
}
