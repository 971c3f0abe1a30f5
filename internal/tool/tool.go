// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package tool defines the capability contract for analytics provider
// kinds and the registry that binds a kind to a configured record.
package tool

import (
	"context"

	"github.com/olegiv/webanalytics-go/internal/record"
	"github.com/olegiv/webanalytics-go/internal/track"
)

// Page sections a tool can inject markup into.
const (
	LocationHead      = "head"
	LocationTopOfBody = "topofbody"
	LocationFooter    = "footer"
)

// Tool is a provider kind implementation bound to exactly one record.
// Bindings are constructed fresh per use and never mutated concurrently.
type Tool interface {
	// Record returns the record this binding was constructed for.
	Record() *record.Record

	// ShouldTrack decides whether the current viewer should be tracked.
	// It must be pure: safely callable many times per page render.
	ShouldTrack(v track.Viewer, p *track.Page) bool

	// TrackingCode renders the tracking markup for the page.
	TrackingCode(v track.Viewer, p *track.Page) (string, error)

	// Location names the page section the markup belongs in.
	Location() string
}

// BodyInjector is implemented by tools that additionally write a fragment
// into another page section (e.g. a noscript block right after <body>).
type BodyInjector interface {
	// BodyCode renders the extra fragment and names its target section.
	BodyCode(v track.Viewer, p *track.Page) (section, markup string, err error)
}

// SettingField describes one provider configuration field, used by the
// admin surface to build and validate settings input.
type SettingField struct {
	// ID is the settings key the field maps to.
	ID string `json:"id"`
	// Name is the display label.
	Name string `json:"name"`
	// Type is "text", "password", "url", "checkbox" or "select".
	Type string `json:"type"`
	// Options are the choices for "select" fields.
	Options []string `json:"options,omitempty"`
	// Required marks fields that must be present.
	Required bool `json:"required,omitempty"`
	// Default is the value used when input omits the field.
	Default string `json:"default,omitempty"`
}

// Kind describes an installed provider kind.
type Kind interface {
	// Name returns the kind tag stored in record.Type.
	Name() string

	// FormFields returns the settings schema for the admin surface.
	FormFields() []SettingField

	// BuildSettings validates raw input and converts it to the stored
	// settings mapping. Returns *ValidationError on malformed input.
	BuildSettings(input map[string]string) (record.Settings, error)

	// NewTool constructs a binding for the given record.
	NewTool(r *record.Record) (Tool, error)

	// SupportsAutoProvision reports whether the kind can reconcile a
	// remote site registration.
	SupportsAutoProvision() bool
}

// Provisioner is the auto-provisioning reconciler surface of a kind.
// Kinds that return true from SupportsAutoProvision implement it.
type Provisioner interface {
	// CanAutoProvision reports whether an attempt should run now.
	// It is called on every sweep, so it must stay cheap and must not
	// touch the remote API.
	CanAutoProvision(ctx context.Context) (bool, error)

	// AutoProvision performs one reconciliation attempt. Remote failures
	// are absorbed and recorded in store state, never returned to the
	// render path.
	AutoProvision(ctx context.Context) error
}

// BaseTool provides the default binding behavior: primary-mode tracking
// decision and the record's configured location. Concrete kinds embed it.
type BaseTool struct {
	Rec *record.Record
}

// Record returns the bound record.
func (t *BaseTool) Record() *record.Record { return t.Rec }

// ShouldTrack applies the primary decision mode: admins are tracked only
// when the record opts in, everyone else always.
func (t *BaseTool) ShouldTrack(v track.Viewer, _ *track.Page) bool {
	return track.ShouldTrack(t.Rec, v)
}

// Location returns the record's configured page section.
func (t *BaseTool) Location() string {
	if t.Rec.Location == "" {
		return LocationHead
	}
	return t.Rec.Location
}

// TrackURL builds the clean URL for the page when the record opts in,
// or returns empty.
func (t *BaseTool) TrackURL(p *track.Page, encode, leadingSlash bool) string {
	if !t.Rec.CleanURL {
		return ""
	}
	return track.TrackURL(p, encode, leadingSlash)
}
