// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package cache

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// Memory is an in-process cache with per-entry expiry.
type Memory struct {
	entries    map[string]memoryEntry
	defaultTTL time.Duration
	maxSize    int
	closed     bool
	mu         sync.RWMutex
}

// NewMemory creates an in-memory cache.
func NewMemory(cfg Config) *Memory {
	ttl := cfg.DefaultTTL
	if ttl <= 0 {
		ttl = DefaultConfig().DefaultTTL
	}
	return &Memory{
		entries:    make(map[string]memoryEntry),
		defaultTTL: ttl,
		maxSize:    cfg.MaxSize,
	}
}

// Get retrieves a value, returning ErrCacheMiss when absent or expired.
func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrCacheClosed
	}
	e, ok := m.entries[key]
	if !ok || time.Now().After(e.expiresAt) {
		return nil, ErrCacheMiss
	}
	return e.value, nil
}

// Set stores a value. When the cache is full, expired entries are evicted
// first; if still full the write is dropped rather than growing unbounded.
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrCacheClosed
	}
	if ttl <= 0 {
		ttl = m.defaultTTL
	}

	if _, exists := m.entries[key]; !exists && m.maxSize > 0 && len(m.entries) >= m.maxSize {
		now := time.Now()
		for k, e := range m.entries {
			if now.After(e.expiresAt) {
				delete(m.entries, k)
			}
		}
		if len(m.entries) >= m.maxSize {
			return nil
		}
	}

	m.entries[key] = memoryEntry{value: value, expiresAt: time.Now().Add(ttl)}
	return nil
}

// Delete removes a key.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrCacheClosed
	}
	delete(m.entries, key)
	return nil
}

// Clear removes all entries.
func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrCacheClosed
	}
	m.entries = make(map[string]memoryEntry)
	return nil
}

// Close marks the cache closed.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.entries = nil
	return nil
}
