// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package record defines the analytics record data model and the store
// used to persist configured provider instances.
package record

// Record describes a single configured web analytics provider instance.
type Record struct {
	// ID is an opaque identifier assigned on first save and never reassigned.
	ID string
	// Type is the provider kind tag (e.g. "matomo", "ganalytics").
	// It is set once at creation and preserved by updates.
	Type string
	// Name is a free-text display label.
	Name string
	// Enabled controls whether the record participates in injection.
	Enabled bool
	// Location names the page section the markup is injected into
	// ("head", "topofbody" or "footer"). Defaults to "head".
	Location string
	// TrackAdmin allows tracking of site administrators.
	TrackAdmin bool
	// TrackOnlyStudents restricts tracking to users holding a student role
	// on a course page. Legacy gating, honored by the guniversal kind only.
	TrackOnlyStudents bool
	// Categories restricts tracking to pages within the listed course
	// categories (direct or ancestor). Legacy gating, empty = no restriction.
	Categories []int64
	// CleanURL switches the tracking payload to a hierarchical page path
	// instead of the raw URL.
	CleanURL bool
	// Settings carries provider-specific configuration.
	Settings Settings
}

// IsEnabled reports whether the record should be evaluated for tracking.
func (r *Record) IsEnabled() bool {
	return r != nil && r.Enabled
}

// InCategory reports whether any of the record's configured categories
// appears in the given ancestor path.
func (r *Record) InCategory(path []int64) bool {
	if len(r.Categories) == 0 {
		return false
	}
	for _, want := range r.Categories {
		for _, got := range path {
			if want == got {
				return true
			}
		}
	}
	return false
}

// Clone returns a deep copy of the record. Stores return clones so callers
// can mutate them without affecting cached state.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	out.Categories = append([]int64(nil), r.Categories...)
	out.Settings = r.Settings.Clone()
	return &out
}
