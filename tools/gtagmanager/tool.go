// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package gtagmanager implements the Google Tag Manager provider kind.
// The container snippet always goes into the head, with a noscript
// iframe fallback injected right after the opening body tag.
package gtagmanager

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

var (
	trackingTmpl = template.Must(template.ParseFS(templateFS, "templates/tracking.tmpl"))
	noscriptTmpl = template.Must(template.ParseFS(templateFS, "templates/noscript.tmpl"))
)

// KindName is the tag stored in record.Type.
const KindName = "gtagmanager"

// Kind is the Google Tag Manager provider kind.
type Kind struct{}

// New creates the kind.
func New() *Kind { return &Kind{} }

// Name implements tool.Kind.
func (k *Kind) Name() string { return KindName }

// FormFields implements tool.Kind.
func (k *Kind) FormFields() []tool.SettingField {
	return []tool.SettingField{
		{ID: "siteid", Name: "Container ID", Type: "text", Required: true},
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

// Tool renders the GTM container snippet for one record.
type Tool struct {
	tool.BaseTool
}

type trackingData struct {
	AnalyticsID string
}

func (t *Tool) data() trackingData {
	return trackingData{
		AnalyticsID: template.JSEscapeString(t.Rec.Settings.String("siteid")),
	}
}

// Location implements tool.Tool. Google documents the container snippet
// as high in the head as possible, so the record's location is ignored.
func (t *Tool) Location() string { return tool.LocationHead }

// TrackingCode implements tool.Tool.
func (t *Tool) TrackingCode(_ track.Viewer, _ *track.Page) (string, error) {
	var b strings.Builder
	if err := trackingTmpl.Execute(&b, t.data()); err != nil {
		return "", err
	}
	return b.String(), nil
}

// BodyCode implements tool.BodyInjector.
func (t *Tool) BodyCode(_ track.Viewer, _ *track.Page) (string, string, error) {
	var b strings.Builder
	if err := noscriptTmpl.Execute(&b, t.data()); err != nil {
		return "", "", err
	}
	return tool.LocationTopOfBody, b.String(), nil
}
