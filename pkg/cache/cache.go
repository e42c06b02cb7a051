// Package cache provides byte-oriented key/value caches with per-entry TTL.
//
// The statistics provider stores its serialized results through the [Cache]
// interface, so the backend is a deployment choice:
//
//   - [MemoryCache]: bounded in-process LRU, the default for the CLI and a
//     single server
//   - [RedisCache]: shared across processes
//   - [FileCache]: survives restarts of one-shot CLI runs
//   - [NullCache]: disables caching
//
// Backends only store bytes and honour TTLs. Freshness policy (expiration
// window, injected clock) belongs to the caller.
package cache

import (
	"context"
	"strings"
	"time"
)

// Cache stores opaque values by key.
type Cache interface {
	// Get returns the value for key. A missing or expired entry is a miss
	// (ok == false), not an error.
	Get(ctx context.Context, key string) (data []byte, ok bool, err error)

	// Set stores data under key. A non-positive ttl stores without expiry.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}

// StatsKey is the key package statistics are stored under. Package ids are
// case-insensitive, so the id is lowercased.
func StatsKey(pkg string) string {
	return "stats:" + strings.ToLower(strings.TrimSpace(pkg))
}

// KeyType returns the part of key before the first ':' for metrics labels.
func KeyType(key string) string {
	if i := strings.IndexByte(key, ':'); i > 0 {
		return key[:i]
	}
	return "other"
}

// Prefixed returns a Cache that prepends prefix to every key. Deployments
// sharing one Redis use distinct prefixes.
func Prefixed(c Cache, prefix string) Cache {
	if prefix == "" {
		return c
	}
	return &prefixed{inner: c, prefix: prefix}
}

type prefixed struct {
	inner  Cache
	prefix string
}

func (p *prefixed) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return p.inner.Get(ctx, p.prefix+key)
}

func (p *prefixed) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	return p.inner.Set(ctx, p.prefix+key, data, ttl)
}

func (p *prefixed) Delete(ctx context.Context, key string) error {
	return p.inner.Delete(ctx, p.prefix+key)
}

func (p *prefixed) Close() error { return p.inner.Close() }
