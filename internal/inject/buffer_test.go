// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package inject

import (
	"strings"
	"testing"
)

func TestWrap(t *testing.T) {
	got := Wrap("r1", "<script></script>")
	want := "<!-- WEB ANALYTICS r1 START -->\n<script></script>\n<!-- WEB ANALYTICS r1 END -->"
	if got != want {
		t.Errorf("Wrap = %q, want %q", got, want)
	}
}

func TestInjectReplacesExistingBlock(t *testing.T) {
	b := NewPageBuffer()

	b.Inject("head", "r1", "<script>v1</script>")
	first := b.Section("head")
	if !strings.Contains(first, "v1") {
		t.Fatalf("missing first markup: %q", first)
	}

	b.Inject("head", "r1", "<script>v2</script>")
	second := b.Section("head")
	if strings.Contains(second, "v1") {
		t.Errorf("stale markup survived re-injection: %q", second)
	}
	if !strings.Contains(second, "v2") {
		t.Errorf("missing fresh markup: %q", second)
	}
	if n := strings.Count(second, StartMarker("r1")); n != 1 {
		t.Errorf("start marker count = %d, want 1", n)
	}
}

func TestInjectIsIdempotent(t *testing.T) {
	b := NewPageBuffer()

	b.Inject("head", "r1", "<script>one</script>")
	want := b.Section("head")

	for i := 0; i < 3; i++ {
		b.Inject("head", "r1", "<script>one</script>")
	}
	if got := b.Section("head"); got != want {
		t.Errorf("repeated Inject changed content:\n%q\nwant\n%q", got, want)
	}
}

func TestInjectKeepsOtherRecords(t *testing.T) {
	b := NewPageBuffer()

	b.Inject("head", "r1", "one")
	b.Inject("head", "r2", "two")
	b.Inject("head", "r1", "one-updated")

	head := b.Section("head")
	if !strings.Contains(head, "two") {
		t.Errorf("other record's block lost: %q", head)
	}
	if !strings.Contains(head, "one-updated") {
		t.Errorf("updated block missing: %q", head)
	}
	// r2 was injected last before the r1 update, so r1's fresh block
	// moves to the end.
	if strings.Index(head, "two") > strings.Index(head, "one-updated") {
		t.Errorf("replaced block did not move to the end: %q", head)
	}
}

func TestInjectSectionsAreIndependent(t *testing.T) {
	b := NewPageBuffer()

	b.Inject("head", "r1", "head-code")
	b.Inject("footer", "r1", "footer-code")

	if got := b.Section("head"); !strings.Contains(got, "head-code") || strings.Contains(got, "footer-code") {
		t.Errorf("head section = %q", got)
	}
	if got := b.Section("footer"); !strings.Contains(got, "footer-code") {
		t.Errorf("footer section = %q", got)
	}
	if got := b.Section("topofbody"); got != "" {
		t.Errorf("untouched section = %q, want empty", got)
	}
}

func TestStripBlockUnbalancedMarkers(t *testing.T) {
	// A start marker without its end marker is left alone rather than
	// eating the rest of the content.
	content := StartMarker("r1") + "\ndangling"
	if got := stripBlock(content, "r1"); got != content {
		t.Errorf("stripBlock = %q, want unchanged", got)
	}
}
