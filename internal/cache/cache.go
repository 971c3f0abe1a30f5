// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package cache provides the markup cache used by the injector to avoid
// re-rendering unchanged tracking snippets.
package cache

import (
	"context"
	"time"
)

// Cache is a small byte-value cache. Implementations must be safe for
// concurrent use.
type Cache interface {
	// Get retrieves a value, returning ErrCacheMiss when absent or expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value. A zero ttl uses the implementation default.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a key.
	Delete(ctx context.Context, key string) error

	// Clear removes all entries.
	Clear(ctx context.Context) error

	// Close releases held resources.
	Close() error
}

// Error is a sentinel cache error.
type Error string

func (e Error) Error() string { return string(e) }

const (
	// ErrCacheMiss indicates the key was not found or has expired.
	ErrCacheMiss Error = "cache miss"

	// ErrCacheClosed indicates the cache has been closed.
	ErrCacheClosed Error = "cache closed"
)

// Config selects and tunes the cache backend.
type Config struct {
	// RedisURL switches to the Redis backend when set
	// (e.g. redis://localhost:6379/0).
	RedisURL string

	// Prefix is prepended to all keys on the Redis backend.
	Prefix string

	// DefaultTTL is the expiry used when Set is called with a zero ttl.
	DefaultTTL time.Duration

	// MaxSize caps the number of in-memory entries (0 = unlimited).
	MaxSize int
}

// DefaultConfig returns the defaults used by the injector.
func DefaultConfig() Config {
	return Config{
		Prefix:     "wa:",
		DefaultTTL: 5 * time.Minute,
		MaxSize:    1000,
	}
}

// New creates a cache for the given configuration: Redis when a URL is
// configured, in-memory otherwise.
func New(cfg Config) (Cache, error) {
	if cfg.RedisURL != "" {
		return NewRedis(cfg)
	}
	return NewMemory(cfg), nil
}
