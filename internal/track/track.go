// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package track holds the per-request viewer and page context plus the
// tracking decision logic shared by all provider kinds.
package track

import (
	"net/url"
	"strings"

	"github.com/olegiv/webanalytics-go/internal/record"
)

// Viewer carries the viewer facts a tracking decision depends on.
type Viewer struct {
	// SiteAdmin marks site administrators, who can be exempted per record.
	SiteAdmin bool
	// Student marks viewers holding a student role on the current course.
	Student bool
	// OnCoursePage marks course and in-course activity pages.
	OnCoursePage bool
	// Background marks non-interactive invocations (jobs, API-only calls).
	Background bool
	// UserID and Username feed optional per-user tracking.
	UserID   string
	Username string
	// UserAgent is the raw request user agent, used for crawler detection.
	UserAgent string
}

// Category is one node of the course category ancestor path.
type Category struct {
	ID   int64
	Name string
}

// Page describes the rendered page for decision gating and clean-URL building.
type Page struct {
	// RawURL is the technical page URL.
	RawURL string
	// CategoryPath is the ordered ancestor path from root to the current
	// category. Empty outside course context.
	CategoryPath []Category
	// CourseName is the course full name, empty outside course context.
	CourseName string
	// ActivityType and ActivityName describe the current activity module.
	ActivityType string
	ActivityName string
	// Editing marks course pages open in editing mode.
	Editing bool
}

// CategoryIDs returns the ancestor path as plain ids.
func (p *Page) CategoryIDs() []int64 {
	if p == nil {
		return nil
	}
	ids := make([]int64, len(p.CategoryPath))
	for i, c := range p.CategoryPath {
		ids[i] = c.ID
	}
	return ids
}

// ShouldTrack is the primary decision mode used by most provider kinds:
// site admins are tracked only when the record opts in, everyone else is
// always tracked.
func ShouldTrack(r *record.Record, v Viewer) bool {
	if !v.SiteAdmin {
		return true
	}
	return r.TrackAdmin
}

// ShouldTrackLegacy is the historical multi-gate mode kept by the
// guniversal kind. Category and student gates combine with the admin gate
// as follows: categories-only requires a category match, students-only
// requires a student on a course page, and when both are configured only
// the category match is required. The student check is still computed in
// that branch, matching the historical behavior rather than fixing it.
func ShouldTrackLegacy(r *record.Record, v Viewer, p *Page) bool {
	adminGate := !v.SiteAdmin || r.TrackAdmin
	inCategory := r.InCategory(p.CategoryIDs())
	isStudent := v.Student && v.OnCoursePage

	hasCategories := len(r.Categories) > 0
	switch {
	case hasCategories && r.TrackOnlyStudents:
		_ = isStudent
		return inCategory && adminGate
	case hasCategories:
		return inCategory && adminGate
	case r.TrackOnlyStudents:
		return isStudent && adminGate
	default:
		return adminGate
	}
}

// TrackURL builds the hierarchical clean URL for the page:
// category path, course name with a view/edit suffix, then activity type
// and name. Segments are percent-encoded when encode is set, otherwise
// single quotes are escaped so the value is safe inside a quoted JS string.
func TrackURL(p *Page, encode, leadingSlash bool) string {
	if p == nil {
		return ""
	}

	var b strings.Builder
	if leadingSlash {
		b.WriteString("/")
	}

	for _, cat := range p.CategoryPath {
		b.WriteString(mightEncode(cat.Name, encode))
		b.WriteString("/")
	}

	hasActivity := p.ActivityName != ""
	if p.CourseName != "" {
		b.WriteString(mightEncode(p.CourseName, encode))
		b.WriteString("/")
		if !hasActivity {
			if p.Editing {
				b.WriteString("edit")
			} else {
				b.WriteString("view")
			}
		}
	}

	if hasActivity {
		b.WriteString(mightEncode(p.ActivityType, encode))
		b.WriteString("/")
		b.WriteString(mightEncode(p.ActivityName, encode))
	}

	return b.String()
}

func mightEncode(input string, encode bool) string {
	if !encode {
		return strings.ReplaceAll(input, "'", `\'`)
	}
	return url.QueryEscape(input)
}
