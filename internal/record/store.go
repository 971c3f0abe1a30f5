// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package record

import (
	"context"
	"time"
)

// Store is the persistence contract consumed by the injection and
// provisioning code. Implementations must keep iteration order stable:
// GetAll and GetEnabled return records in insertion order so repeated
// renders concatenate markup identically.
type Store interface {
	// Get returns the record with the given id, or nil when absent.
	Get(ctx context.Context, id string) (*Record, error)

	// GetAll returns every stored record in insertion order.
	GetAll(ctx context.Context) ([]*Record, error)

	// GetEnabled returns enabled records only, in insertion order.
	GetEnabled(ctx context.Context) ([]*Record, error)

	// Save inserts the record when its ID is empty, assigning a fresh
	// store-unique id, and updates it in place otherwise. Updates preserve
	// the stored Type regardless of what the caller supplies.
	Save(ctx context.Context, r *Record) (string, error)

	// Delete removes the record. Deleting an absent id is a no-op.
	Delete(ctx context.Context, id string) error

	// Ready reports whether the underlying storage is initialized.
	// Callers treat false as "no records available yet", not an error.
	Ready(ctx context.Context) bool
}

// Locker is an advisory lock keyed by provider kind, used to narrow the
// window where two concurrent auto-provision sweeps both decide "create".
type Locker interface {
	// TryLock acquires the lock for kind, returning false when it is held.
	// Locks older than ttl are treated as abandoned and stolen.
	TryLock(ctx context.Context, kind string, ttl time.Duration) (bool, error)

	// Unlock releases the lock for kind. Releasing an unheld lock is a no-op.
	Unlock(ctx context.Context, kind string) error
}
