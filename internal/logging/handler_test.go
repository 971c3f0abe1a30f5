// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package logging

import (
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/olegiv/webanalytics-go/internal/testutil"
)

func TestHandlerPersistsWarnings(t *testing.T) {
	db, cleanup := testutil.TestDB(t)
	defer cleanup()

	inner := slog.NewTextHandler(io.Discard, nil)
	logger := slog.New(NewErrorLogHandler(inner, db))

	logger.Info("just info", "key", "value")
	logger.Warn("remote API returned error", "category", "matomo", "method", "SitesManager.addSite")
	logger.Error("sweep failed", "error", "boom")

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM api_error_log").Scan(&count); err != nil {
		t.Fatalf("counting rows: %v", err)
	}
	if count != 2 {
		t.Fatalf("api_error_log rows = %d, want 2 (info not persisted)", count)
	}

	var level, category, message, metadata string
	err := db.QueryRow(
		"SELECT level, category, message, metadata FROM api_error_log ORDER BY id LIMIT 1").
		Scan(&level, &category, &message, &metadata)
	if err != nil {
		t.Fatalf("reading row: %v", err)
	}
	if level != LevelWarning {
		t.Errorf("level = %q, want warning", level)
	}
	if category != "matomo" {
		t.Errorf("category = %q, want matomo", category)
	}
	if message != "remote API returned error" {
		t.Errorf("message = %q", message)
	}
	if !strings.Contains(metadata, "SitesManager.addSite") {
		t.Errorf("metadata = %q, want method recorded", metadata)
	}

	err = db.QueryRow(
		"SELECT level FROM api_error_log ORDER BY id DESC LIMIT 1").Scan(&level)
	if err != nil {
		t.Fatalf("reading row: %v", err)
	}
	if level != LevelError {
		t.Errorf("level = %q, want error", level)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
