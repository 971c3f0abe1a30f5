// Package logging provides a custom slog handler that mirrors WARN and
// ERROR records into the api_error_log table, so remote API failures stay
// inspectable from the admin surface after the fact.
package logging

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
)

// Event levels stored in api_error_log.
const (
	LevelWarning = "warning"
	LevelError   = "error"
)

// ErrorLogHandler is a slog.Handler that wraps another handler and also
// writes WARN level and above to the api_error_log table.
type ErrorLogHandler struct {
	inner slog.Handler
	db    *sql.DB
	level slog.Level
}

// NewErrorLogHandler creates a handler persisting WARN and above.
func NewErrorLogHandler(inner slog.Handler, db *sql.DB) *ErrorLogHandler {
	return &ErrorLogHandler{inner: inner, db: db, level: slog.LevelWarn}
}

// Enabled implements slog.Handler.
func (h *ErrorLogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (h *ErrorLogHandler) Handle(ctx context.Context, r slog.Record) error {
	if err := h.inner.Handle(ctx, r); err != nil {
		return err
	}

	if r.Level >= h.level {
		h.persist(r)
	}
	return nil
}

// WithAttrs implements slog.Handler.
func (h *ErrorLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ErrorLogHandler{inner: h.inner.WithAttrs(attrs), db: h.db, level: h.level}
}

// WithGroup implements slog.Handler.
func (h *ErrorLogHandler) WithGroup(name string) slog.Handler {
	return &ErrorLogHandler{inner: h.inner.WithGroup(name), db: h.db, level: h.level}
}

// persist writes one record to api_error_log. Failures are swallowed:
// logging must never take down the caller.
func (h *ErrorLogHandler) persist(r slog.Record) {
	level := LevelWarning
	if r.Level >= slog.LevelError {
		level = LevelError
	}

	category := ""
	meta := make(map[string]string)
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == "category" {
			category = a.Value.String()
			return true
		}
		meta[a.Key] = a.Value.String()
		return true
	})

	metadata, err := json.Marshal(meta)
	if err != nil {
		metadata = []byte("{}")
	}

	_, _ = h.db.Exec(
		"INSERT INTO api_error_log (level, category, message, metadata, created_at) VALUES (?, ?, ?, ?, ?)",
		level, category, r.Message, string(metadata), r.Time,
	)
}

// ParseLevel maps a config string to a slog.Level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
