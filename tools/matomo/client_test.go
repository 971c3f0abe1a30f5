// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package matomo

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"testing"

	"github.com/olegiv/webanalytics-go/internal/tool"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeInstance is a scripted Matomo SitesManager endpoint.
type fakeInstance struct {
	t         *testing.T
	responses map[string]string // method -> JSON body
	calls     []url.Values
}

func (f *fakeInstance) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			f.t.Errorf("parsing form: %v", err)
		}
		if got := r.PostForm.Get("module"); got != "API" {
			f.t.Errorf("module = %q, want API", got)
		}
		if got := r.PostForm.Get("format"); got != "JSON" {
			f.t.Errorf("format = %q, want JSON", got)
		}
		f.calls = append(f.calls, r.PostForm)

		method := r.PostForm.Get("method")
		body, ok := f.responses[method]
		if !ok {
			f.t.Errorf("unexpected API method %q", method)
			body = `{"result":"error","message":"unknown method"}`
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}
}

func newFakeInstance(t *testing.T, responses map[string]string) (*fakeInstance, *Client) {
	t.Helper()
	f := &fakeInstance{t: t, responses: responses}
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, "test-token", testLogger())
	return f, c
}

func TestSiteIDFromURL(t *testing.T) {
	f, c := newFakeInstance(t, map[string]string{
		"SitesManager.getSitesIdFromSiteUrl": `[{"idsite":7},{"idsite":9}]`,
	})

	id, err := c.SiteIDFromURL(context.Background(), "https://moodle.example.com")
	if err != nil {
		t.Fatalf("SiteIDFromURL: %v", err)
	}
	if id != 7 {
		t.Errorf("id = %d, want 7", id)
	}

	call := f.calls[0]
	if got := call.Get("token_auth"); got != "test-token" {
		t.Errorf("token_auth = %q", got)
	}
	if got := call.Get("url"); got != "https://moodle.example.com" {
		t.Errorf("url = %q", got)
	}
}

func TestSiteIDFromURLNoMatch(t *testing.T) {
	_, c := newFakeInstance(t, map[string]string{
		"SitesManager.getSitesIdFromSiteUrl": `[]`,
	})

	id, err := c.SiteIDFromURL(context.Background(), "https://moodle.example.com")
	if err != nil {
		t.Fatalf("SiteIDFromURL: %v", err)
	}
	if id != 0 {
		t.Errorf("id = %d, want 0", id)
	}
}

func TestSiteIDFromURLStringID(t *testing.T) {
	// Some instances serialize ids as strings.
	_, c := newFakeInstance(t, map[string]string{
		"SitesManager.getSitesIdFromSiteUrl": `[{"idsite":"12"}]`,
	})

	id, err := c.SiteIDFromURL(context.Background(), "https://moodle.example.com")
	if err != nil {
		t.Fatalf("SiteIDFromURL: %v", err)
	}
	if id != 12 {
		t.Errorf("id = %d, want 12", id)
	}
}

func TestErrorShapedResponseReturnsZero(t *testing.T) {
	_, c := newFakeInstance(t, map[string]string{
		"SitesManager.getSitesIdFromSiteUrl": `{"result":"error","message":"token invalid"}`,
	})

	id, err := c.SiteIDFromURL(context.Background(), "https://moodle.example.com")
	if err != nil {
		t.Fatalf("error-shaped response raised: %v", err)
	}
	if id != 0 {
		t.Errorf("id = %d, want 0", id)
	}
}

func TestURLsFromSiteID(t *testing.T) {
	f, c := newFakeInstance(t, map[string]string{
		"SitesManager.getSiteUrlsFromId": `["https://a.example.com","https://b.example.com"]`,
	})

	urls, err := c.URLsFromSiteID(context.Background(), 7)
	if err != nil {
		t.Fatalf("URLsFromSiteID: %v", err)
	}
	if len(urls) != 2 || urls[1] != "https://b.example.com" {
		t.Errorf("urls = %v", urls)
	}
	if got := f.calls[0].Get("idSite"); got != "7" {
		t.Errorf("idSite = %q", got)
	}
}

func TestAddSite(t *testing.T) {
	f, c := newFakeInstance(t, map[string]string{
		"SitesManager.addSite": `{"value":21}`,
	})

	id, err := c.AddSite(context.Background(), "My Site",
		[]string{"https://a.example.com", "https://b.example.com"}, "UTC", "GBP")
	if err != nil {
		t.Fatalf("AddSite: %v", err)
	}
	if id != 21 {
		t.Errorf("id = %d, want 21", id)
	}

	call := f.calls[0]
	if got := call.Get("siteName"); got != "My Site" {
		t.Errorf("siteName = %q", got)
	}
	if got := call.Get("urls[0]"); got != "https://a.example.com" {
		t.Errorf("urls[0] = %q", got)
	}
	if got := call.Get("urls[1]"); got != "https://b.example.com" {
		t.Errorf("urls[1] = %q", got)
	}
	if got := call.Get("timezone"); got != "UTC" {
		t.Errorf("timezone = %q", got)
	}
	if got := call.Get("currency"); got != "GBP" {
		t.Errorf("currency = %q", got)
	}
}

func TestUpdateSite(t *testing.T) {
	_, c := newFakeInstance(t, map[string]string{
		"SitesManager.updateSite": `{"result":"success","message":"ok"}`,
	})

	ok, err := c.UpdateSite(context.Background(), 7, []string{"https://a.example.com"})
	if err != nil {
		t.Fatalf("UpdateSite: %v", err)
	}
	if !ok {
		t.Error("UpdateSite = false, want true")
	}
}

func TestUpdateSiteRejected(t *testing.T) {
	_, c := newFakeInstance(t, map[string]string{
		"SitesManager.updateSite": `{"result":"error","message":"no access"}`,
	})

	ok, err := c.UpdateSite(context.Background(), 7, []string{"https://a.example.com"})
	if err != nil {
		t.Fatalf("UpdateSite: %v", err)
	}
	if ok {
		t.Error("UpdateSite = true on rejected call")
	}
}

func TestTransportErrorIsRemoteAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, "token", testLogger())
	_, err := c.SiteIDFromURL(context.Background(), "https://moodle.example.com")

	var apiErr *tool.RemoteAPIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want RemoteAPIError", err)
	}
	if apiErr.Method != "SitesManager.getSitesIdFromSiteUrl" {
		t.Errorf("Method = %q", apiErr.Method)
	}
}

func TestAPIURLAddsScheme(t *testing.T) {
	c := NewClient("stats.example.com/", "token", testLogger())
	if got := c.apiURL(); got != "https://stats.example.com/index.php" {
		t.Errorf("apiURL = %q", got)
	}

	c = NewClient("http://stats.example.com", "token", testLogger())
	if got := c.apiURL(); got != "http://stats.example.com/index.php" {
		t.Errorf("apiURL = %q", got)
	}
}
