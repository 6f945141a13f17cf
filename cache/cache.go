// Package cache defines the key-value store the aggregation engine leans on
// for search result caching, rate-limit counters, and health state
// durability. The canonical backend is Redis; an in-memory implementation
// exists for tests and single-process deployments.
//
// Cache failures are expected to be survivable: callers degrade to
// miss-behaviour on read errors and drop writes silently.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by Get when the key does not exist.
var ErrMiss = errors.New("cache: key not found")

// Cache is the minimal key-value contract the engine needs.
type Cache interface {
	// Get returns the value stored under key, or ErrMiss.
	Get(ctx context.Context, key string) ([]byte, error)

	// SetWithExpiry stores value under key with the given TTL.
	SetWithExpiry(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Increment atomically increments the integer stored at key,
	// creating it at 1 if absent, and returns the new value.
	Increment(ctx context.Context, key string) (int64, error)

	// Expire sets a TTL on an existing key. A no-op if the key is absent.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// Keys returns all keys matching the given prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)
}
