// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package matomo

import "github.com/olegiv/webanalytics-go/internal/record"

// Settings is the typed view of a Matomo record's settings mapping.
// Conversion to and from the generic mapping happens only here, at the
// store boundary.
type Settings struct {
	// SiteID is the remote numeric site id. 0 means not yet provisioned.
	SiteID int
	// SiteURL is the Matomo instance host, stored without a scheme.
	SiteURL string
	// PiwikJSURL optionally overrides where matomo.js is loaded from.
	PiwikJSURL string
	// ImageTrack adds the noscript image beacon fallback.
	ImageTrack bool
	// UserID enables per-user tracking using the field named by UseField.
	UserID bool
	// UseField selects the viewer field sent as user id: "id" or "username".
	UseField string
	// APIToken is the token_auth used by the SitesManager API.
	APIToken string
	// WWWRoot is the site URL recorded at the last successful
	// reconciliation, used to detect DNS drift.
	WWWRoot string
	// AutoUpdate opts the record into automatic URL reconciliation.
	AutoUpdate bool
	// AutoUpdateURLs is the last-known set of URLs registered remotely.
	AutoUpdateURLs []string
}

// DefaultSettings returns the defaults merged into new records.
func DefaultSettings() Settings {
	return Settings{
		UserID:   true,
		UseField: "id",
	}
}

// SettingsFromRecord reads the typed settings out of the stored mapping.
func SettingsFromRecord(s record.Settings) Settings {
	return Settings{
		SiteID:         s.Int("siteid"),
		SiteURL:        s.String("siteurl"),
		PiwikJSURL:     s.String("piwikjsurl"),
		ImageTrack:     s.Bool("imagetrack"),
		UserID:         s.Bool("userid"),
		UseField:       s.String("usefield"),
		APIToken:       s.String("apitoken"),
		WWWRoot:        s.String("wwwroot"),
		AutoUpdate:     s.Bool("autoupdate"),
		AutoUpdateURLs: s.Strings("autoupdateurls"),
	}
}

// ToRecord converts the typed settings back to the stored mapping.
func (s Settings) ToRecord() record.Settings {
	urls := s.AutoUpdateURLs
	if urls == nil {
		urls = []string{}
	}
	return record.Settings{
		"siteid":         s.SiteID,
		"siteurl":        s.SiteURL,
		"piwikjsurl":     s.PiwikJSURL,
		"imagetrack":     s.ImageTrack,
		"userid":         s.UserID,
		"usefield":       s.UseField,
		"apitoken":       s.APIToken,
		"wwwroot":        s.WWWRoot,
		"autoupdate":     s.AutoUpdate,
		"autoupdateurls": urls,
	}
}

// HasURL reports whether url is already in the auto-update set.
func (s Settings) HasURL(url string) bool {
	for _, u := range s.AutoUpdateURLs {
		if u == url {
			return true
		}
	}
	return false
}
