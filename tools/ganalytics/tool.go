// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package ganalytics implements the Google Analytics (gtag.js) provider kind.
package ganalytics

import (
	"embed"
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
const KindName = "ganalytics"

// Kind is the Google Analytics provider kind.
type Kind struct{}

// New creates the kind.
func New() *Kind { return &Kind{} }

// Name implements tool.Kind.
func (k *Kind) Name() string { return KindName }

// FormFields implements tool.Kind.
func (k *Kind) FormFields() []tool.SettingField {
	return []tool.SettingField{
		{ID: "siteid", Name: "Measurement ID", Type: "text", Required: true},
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

// Tool renders the gtag.js snippet for one record.
type Tool struct {
	tool.BaseTool
}

type trackingData struct {
	AnalyticsID string
	Page        string
}

// TrackingCode implements tool.Tool. When the record opts into clean
// URLs the hierarchical page path overrides the technical one.
func (t *Tool) TrackingCode(_ track.Viewer, p *track.Page) (string, error) {
	d := trackingData{
		AnalyticsID: template.JSEscapeString(t.Rec.Settings.String("siteid")),
		Page:        t.TrackURL(p, true, true),
	}

	var b strings.Builder
	if err := trackingTmpl.Execute(&b, d); err != nil {
		return "", err
	}
	return b.String(), nil
}
