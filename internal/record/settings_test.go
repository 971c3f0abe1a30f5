// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package record

import "testing"

func TestDecodeSettings(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		key  string
		want string
	}{
		{"object", `{"siteurl":"stats.example.com"}`, "siteurl", "stats.example.com"},
		{"empty input", ``, "siteurl", ""},
		{"empty object", `{}`, "siteurl", ""},
		{"array collapses", `[1,2,3]`, "siteurl", ""},
		{"scalar collapses", `"nope"`, "siteurl", ""},
		{"null collapses", `null`, "siteurl", ""},
		{"garbage collapses", `{{{`, "siteurl", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DecodeSettings([]byte(tt.raw))
			if s == nil {
				t.Fatal("DecodeSettings returned nil map")
			}
			if got := s.String(tt.key); got != tt.want {
				t.Errorf("String(%q) = %q, want %q", tt.key, got, tt.want)
			}
		})
	}
}

func TestSettingsBool(t *testing.T) {
	s := Settings{
		"b":    true,
		"f":    float64(1),
		"i":    1,
		"s1":   "1",
		"st":   "true",
		"s0":   "0",
		"off":  false,
		"junk": map[string]any{},
	}

	for _, key := range []string{"b", "f", "i", "s1", "st"} {
		if !s.Bool(key) {
			t.Errorf("Bool(%q) = false, want true", key)
		}
	}
	for _, key := range []string{"s0", "off", "junk", "absent"} {
		if s.Bool(key) {
			t.Errorf("Bool(%q) = true, want false", key)
		}
	}
}

func TestSettingsInt(t *testing.T) {
	s := Settings{
		"i":   42,
		"i64": int64(7),
		"f":   float64(5),
		"str": "12",
	}
	if got := s.Int("i"); got != 42 {
		t.Errorf("Int(i) = %d", got)
	}
	if got := s.Int("i64"); got != 7 {
		t.Errorf("Int(i64) = %d", got)
	}
	if got := s.Int("f"); got != 5 {
		t.Errorf("Int(f) = %d", got)
	}
	// Strings are not coerced.
	if got := s.Int("str"); got != 0 {
		t.Errorf("Int(str) = %d, want 0", got)
	}
	if got := s.Int("absent"); got != 0 {
		t.Errorf("Int(absent) = %d, want 0", got)
	}
}

func TestSettingsStrings(t *testing.T) {
	s := Settings{
		"native": []string{"a", "b"},
		"json":   []any{"x", "y", 3},
	}
	got := s.Strings("native")
	if len(got) != 2 || got[0] != "a" {
		t.Errorf("Strings(native) = %v", got)
	}
	// Non-string elements from JSON decoding are dropped.
	got = s.Strings("json")
	if len(got) != 2 || got[1] != "y" {
		t.Errorf("Strings(json) = %v", got)
	}
	if s.Strings("absent") != nil {
		t.Error("Strings(absent) != nil")
	}
}

func TestSettingsEncodeRoundTrip(t *testing.T) {
	s := Settings{"siteid": 3, "siteurl": "stats.example.com", "urls": []string{"https://a", "https://b"}}
	decoded := DecodeSettings(s.Encode())

	if decoded.Int("siteid") != 3 {
		t.Errorf("siteid = %d", decoded.Int("siteid"))
	}
	if decoded.String("siteurl") != "stats.example.com" {
		t.Errorf("siteurl = %q", decoded.String("siteurl"))
	}
	urls := decoded.Strings("urls")
	if len(urls) != 2 || urls[1] != "https://b" {
		t.Errorf("urls = %v", urls)
	}
}

func TestSettingsClone(t *testing.T) {
	s := Settings{"urls": []string{"a"}, "siteid": 1}
	c := s.Clone()
	c["siteid"] = 2
	c.Strings("urls")[0] = "changed"

	if s.Int("siteid") != 1 {
		t.Error("Clone shares scalar storage")
	}
	if s.Strings("urls")[0] != "a" {
		t.Error("Clone shares slice storage")
	}
}
