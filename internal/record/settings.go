// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package record

import "encoding/json"

// Settings is the open-ended provider settings mapping stored with a record.
// Provider kinds convert it to and from their typed configuration at the
// store boundary.
type Settings map[string]any

// DecodeSettings parses the stored JSON form of a settings mapping.
// Anything that is not a JSON object collapses to an empty mapping.
func DecodeSettings(raw []byte) Settings {
	if len(raw) == 0 {
		return Settings{}
	}
	var s Settings
	if err := json.Unmarshal(raw, &s); err != nil || s == nil {
		return Settings{}
	}
	return s
}

// Encode serializes the mapping for storage. A nil mapping encodes as an
// empty object.
func (s Settings) Encode() []byte {
	if s == nil {
		s = Settings{}
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return []byte("{}")
	}
	return raw
}

// Clone returns a shallow copy of the mapping (values are scalars or string
// slices, which callers replace rather than mutate).
func (s Settings) Clone() Settings {
	out := make(Settings, len(s))
	for k, v := range s {
		if ss, ok := v.([]string); ok {
			v = append([]string(nil), ss...)
		}
		out[k] = v
	}
	return out
}

// String returns the string value for key, or empty when absent or not a string.
func (s Settings) String(key string) string {
	v, _ := s[key].(string)
	return v
}

// Bool returns the boolean value for key. JSON round-trips and form input may
// store booleans as bool, float64 or "1"/"0" strings.
func (s Settings) Bool(key string) bool {
	switch v := s[key].(type) {
	case bool:
		return v
	case float64:
		return v != 0
	case int:
		return v != 0
	case string:
		return v == "1" || v == "true"
	}
	return false
}

// Int returns the integer value for key, or 0 when absent or not numeric.
func (s Settings) Int(key string) int {
	switch v := s[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	}
	return 0
}

// Strings returns the string-slice value for key. JSON decoding yields
// []any, which is converted element-wise.
func (s Settings) Strings(key string) []string {
	switch v := s[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if str, ok := e.(string); ok {
				out = append(out, str)
			}
		}
		return out
	}
	return nil
}
