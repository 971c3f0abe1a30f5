// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package matomo implements the Matomo (ex Piwik) provider kind,
// including automatic registration of the tracked site on a configured
// Matomo instance.
package matomo

import (
	"embed"
	"log/slog"
	"strings"
	"text/template"

	"github.com/olegiv/webanalytics-go/internal/record"
	"github.com/olegiv/webanalytics-go/internal/tool"
	"github.com/olegiv/webanalytics-go/internal/track"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var trackingTmpl = template.Must(template.ParseFS(templateFS, "templates/tracking.tmpl"))

// KindName is the tag stored in record.Type for Matomo records.
const KindName = "matomo"

// Config is the site-level configuration the kind needs for
// auto-provisioning. All fields may be empty, which disables it.
type Config struct {
	// SiteURL is the Matomo instance address.
	SiteURL string
	// APIToken authenticates SitesManager calls.
	APIToken string
	// WWWRoot is the public URL of this site.
	WWWRoot string
	// SiteName is used as the remote site name when registering.
	SiteName string
	// DefaultAutoUpdate opts new auto-provisioned records into URL
	// reconciliation.
	DefaultAutoUpdate bool
	// Timezone and Currency are passed through to SitesManager.addSite.
	Timezone string
	Currency string
}

// Kind is the Matomo provider kind. It doubles as the auto-provisioning
// reconciler when the instance configuration is present.
type Kind struct {
	cfg    Config
	store  record.Store
	locker record.Locker
	client *Client
	logger *slog.Logger
}

// New creates the kind. client may be nil when cfg does not enable
// auto-provisioning.
func New(cfg Config, store record.Store, locker record.Locker, client *Client, logger *slog.Logger) *Kind {
	return &Kind{
		cfg:    cfg,
		store:  store,
		locker: locker,
		client: client,
		logger: logger,
	}
}

// Name implements tool.Kind.
func (k *Kind) Name() string { return KindName }

// FormFields implements tool.Kind.
func (k *Kind) FormFields() []tool.SettingField {
	return []tool.SettingField{
		{ID: "siteid", Name: "Site ID", Type: "text"},
		{ID: "siteurl", Name: "Matomo URL (without http(s) and trailing slash)", Type: "text", Required: true},
		{ID: "piwikjsurl", Name: "Alternative matomo.js URL", Type: "text"},
		{ID: "imagetrack", Name: "Image tracking fallback", Type: "checkbox"},
		{ID: "userid", Name: "Track user id", Type: "checkbox", Default: "1"},
		{ID: "usefield", Name: "User id field", Type: "select", Options: []string{"id", "username"}, Default: "id"},
		{ID: "apitoken", Name: "API token", Type: "password"},
	}
}

// BuildSettings implements tool.Kind. Either a site id or an API token
// must be given: without both the instance can neither be addressed nor
// asked for an id.
func (k *Kind) BuildSettings(input map[string]string) (record.Settings, error) {
	fields := map[string]string{}

	siteURL := strings.TrimSpace(input["siteurl"])
	if siteURL == "" {
		fields["siteurl"] = "required"
	} else if msg := checkBareURL(siteURL); msg != "" {
		fields["siteurl"] = msg
	}

	if jsURL := strings.TrimSpace(input["piwikjsurl"]); jsURL != "" {
		if msg := checkBareURL(jsURL); msg != "" {
			fields["piwikjsurl"] = msg
		}
	}

	s := DefaultSettings()
	s.SiteURL = siteURL
	s.PiwikJSURL = strings.TrimSpace(input["piwikjsurl"])
	s.APIToken = strings.TrimSpace(input["apitoken"])
	s.ImageTrack = truthy(input["imagetrack"])
	if v, ok := input["userid"]; ok {
		s.UserID = truthy(v)
	}
	if f, ok := input["usefield"]; ok {
		if f != "id" && f != "username" {
			fields["usefield"] = "must be id or username"
		} else {
			s.UseField = f
		}
	}
	if id := strings.TrimSpace(input["siteid"]); id != "" {
		n := 0
		for _, c := range id {
			if c < '0' || c > '9' {
				n = -1
				break
			}
			n = n*10 + int(c-'0')
		}
		if n <= 0 {
			fields["siteid"] = "must be a positive number"
		} else {
			s.SiteID = n
		}
	}
	if s.SiteID == 0 && s.APIToken == "" {
		fields["siteid"] = "either a site id or an API token is required"
	}

	if len(fields) > 0 {
		return nil, &tool.ValidationError{Fields: fields}
	}
	return s.ToRecord(), nil
}

func checkBareURL(u string) string {
	if strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") {
		return "must not include the protocol"
	}
	if strings.HasSuffix(u, "/") {
		return "must not end with a slash"
	}
	return ""
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

// NewTool implements tool.Kind.
func (k *Kind) NewTool(r *record.Record) (tool.Tool, error) {
	return &Tool{BaseTool: tool.BaseTool{Rec: r}}, nil
}

// SupportsAutoProvision implements tool.Kind.
func (k *Kind) SupportsAutoProvision() bool {
	return k.cfg.SiteURL != "" && k.cfg.APIToken != ""
}

// Tool renders the Matomo tracking snippet for one record.
type Tool struct {
	tool.BaseTool
}

type trackingData struct {
	SiteID     int
	SiteURL    string
	JSURL      string
	DocTitle   string
	UserID     string
	ImageTrack bool
}

// TrackingCode implements tool.Tool.
func (t *Tool) TrackingCode(v track.Viewer, p *track.Page) (string, error) {
	s := SettingsFromRecord(t.Rec.Settings)

	d := trackingData{
		SiteID:     s.SiteID,
		SiteURL:    s.SiteURL,
		JSURL:      s.SiteURL,
		ImageTrack: s.ImageTrack,
	}
	if s.PiwikJSURL != "" {
		d.JSURL = s.PiwikJSURL
	}
	// TrackURL already escapes single quotes when encode is off.
	d.DocTitle = t.TrackURL(p, false, false)
	if s.UserID {
		id := v.UserID
		if s.UseField == "username" {
			id = v.Username
		}
		d.UserID = template.JSEscapeString(id)
	}

	var b strings.Builder
	if err := trackingTmpl.Execute(&b, d); err != nil {
		return "", err
	}
	return b.String(), nil
}
