// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package guniversal implements the legacy Google Universal Analytics
// (analytics.js) provider kind. It predates the other kinds and keeps
// the historical multi-gate tracking decision.
package guniversal

import (
	"embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/olegiv/webanalytics-go/internal/record"
	"github.com/olegiv/webanalytics-go/internal/tool"
	"github.com/olegiv/webanalytics-go/internal/track"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var trackingTmpl = template.Must(template.ParseFS(templateFS, "templates/tracking.tmpl"))

// KindName is the tag stored in record.Type.
const KindName = "guniversal"

// Kind is the Universal Analytics provider kind.
type Kind struct{}

// New creates the kind.
func New() *Kind { return &Kind{} }

// Name implements tool.Kind.
func (k *Kind) Name() string { return KindName }

// FormFields implements tool.Kind.
func (k *Kind) FormFields() []tool.SettingField {
	return []tool.SettingField{
		{ID: "siteid", Name: "Tracking ID", Type: "text", Required: true},
	}
}

// BuildSettings implements tool.Kind.
func (k *Kind) BuildSettings(input map[string]string) (record.Settings, error) {
	siteID := strings.TrimSpace(input["siteid"])
	if siteID == "" {
		return nil, tool.NewValidationError("siteid", "required")
	}
	return record.Settings{"siteid": siteID}, nil
}

// NewTool implements tool.Kind.
func (k *Kind) NewTool(r *record.Record) (tool.Tool, error) {
	return &Tool{BaseTool: tool.BaseTool{Rec: r}}, nil
}

// SupportsAutoProvision implements tool.Kind.
func (k *Kind) SupportsAutoProvision() bool { return false }

// Tool renders the analytics.js snippet for one record.
type Tool struct {
	tool.BaseTool
}

// ShouldTrack implements tool.Tool using the historical decision mode,
// which this kind alone still honors.
func (t *Tool) ShouldTrack(v track.Viewer, p *track.Page) bool {
	return track.ShouldTrackLegacy(t.Rec, v, p)
}

type trackingData struct {
	AnalyticsID string
	Addition    string
}

// TrackingCode implements tool.Tool.
func (t *Tool) TrackingCode(_ track.Viewer, p *track.Page) (string, error) {
	d := trackingData{
		AnalyticsID: template.JSEscapeString(t.Rec.Settings.String("siteid")),
		Addition:    "'pageview'",
	}
	if page := t.TrackURL(p, false, true); page != "" {
		d.Addition = fmt.Sprintf("'pageview', '%s'", page)
	}

	var b strings.Builder
	if err := trackingTmpl.Execute(&b, d); err != nil {
		return "", err
	}
	return b.String(), nil
}
