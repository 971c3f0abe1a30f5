// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package tool

import (
	"fmt"
	"sort"
	"strings"
)

// ConfigurationError reports an unknown or structurally incomplete provider
// kind. It is surfaced to the admin surface at bind time and never silently
// swallowed there; the render path logs and skips instead.
type ConfigurationError struct {
	Kind   string
	Reason string
}

// Error implements error.
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("analytics kind %q: %s", e.Kind, e.Reason)
}

// ValidationError carries per-field messages for malformed settings
// submitted through the admin surface. Records failing validation are
// never persisted, so the injection path only ever sees valid settings.
type ValidationError struct {
	Fields map[string]string
}

// Error implements error.
func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "invalid settings"
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("invalid settings: ")
	for i, k := range keys {
		if i > 0 {
			b.WriteString("; ")
		}
		fmt.Fprintf(&b, "%s: %s", k, e.Fields[k])
	}
	return b.String()
}

// NewValidationError builds a ValidationError for a single field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: message}}
}

// RemoteAPIError reports a failure talking to a provider's remote API:
// network error, timeout, or a response body that could not be decoded.
// It is always caught at the reconciler boundary and logged, never
// propagated to page rendering.
type RemoteAPIError struct {
	Method string
	Err    error
}

// Error implements error.
func (e *RemoteAPIError) Error() string {
	return fmt.Sprintf("remote API %s: %v", e.Method, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *RemoteAPIError) Unwrap() error { return e.Err }
