// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package inject assembles tracking markup for a rendered page and keeps
// repeated injections idempotent.
package inject

import (
	"strings"
	"sync"
)

// StartMarker returns the delimiter opening a record's injected fragment.
func StartMarker(id string) string {
	return "<!-- WEB ANALYTICS " + id + " START -->"
}

// EndMarker returns the delimiter closing a record's injected fragment.
func EndMarker(id string) string {
	return "<!-- WEB ANALYTICS " + id + " END -->"
}

// Wrap bounds markup with the record's delimiter pair so a later render
// can locate and replace it.
func Wrap(id, markup string) string {
	return StartMarker(id) + "\n" + markup + "\n" + EndMarker(id)
}

// PageBuffer collects page fragments by named section ("head",
// "topofbody", "footer"). Injecting the same record twice replaces the
// previous fragment instead of accumulating duplicates.
type PageBuffer struct {
	sections map[string]string
	mu       sync.Mutex
}

// NewPageBuffer creates an empty buffer.
func NewPageBuffer() *PageBuffer {
	return &PageBuffer{sections: make(map[string]string)}
}

// Section returns the accumulated content of a named section.
func (b *PageBuffer) Section(name string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sections[name]
}

// Inject places a record's markup into a section using the
// replace-then-append pattern: any existing delimited block for the
// record is removed before the fresh block is appended.
func (b *PageBuffer) Inject(section, recordID, markup string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	content := stripBlock(b.sections[section], recordID)
	b.sections[section] = content + Wrap(recordID, markup)
}

// stripBlock removes an existing delimited block for the record, if any.
func stripBlock(content, recordID string) string {
	start := StartMarker(recordID)
	end := EndMarker(recordID)

	from := strings.Index(content, start)
	if from < 0 {
		return content
	}
	to := strings.Index(content[from:], end)
	if to < 0 {
		return content
	}
	return content[:from] + content[from+to+len(end):]
}
