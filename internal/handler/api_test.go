// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olegiv/webanalytics-go/internal/inject"
	"github.com/olegiv/webanalytics-go/internal/record"
	"github.com/olegiv/webanalytics-go/internal/testutil"
	"github.com/olegiv/webanalytics-go/internal/tool"
	"github.com/olegiv/webanalytics-go/internal/version"
	"github.com/olegiv/webanalytics-go/tools/ganalytics"
	"github.com/olegiv/webanalytics-go/tools/gtagmanager"
	"github.com/olegiv/webanalytics-go/tools/guniversal"
	"github.com/olegiv/webanalytics-go/tools/matomo"
)

const browserUA = "Mozilla/5.0 (X11; Linux x86_64; rv:127.0) Gecko/20100101 Firefox/127.0"

func newTestHandler(t *testing.T) (http.Handler, *record.SQLiteStore) {
	t.Helper()

	store, cleanup := testutil.TestStore(t)
	t.Cleanup(cleanup)

	logger := testutil.TestLoggerSilent()
	registry := tool.NewRegistry(logger)
	require.NoError(t, registry.Register(matomo.New(matomo.Config{}, store, store, nil, logger)))
	require.NoError(t, registry.Register(ganalytics.New()))
	require.NoError(t, registry.Register(gtagmanager.New()))
	require.NoError(t, registry.Register(guniversal.New()))

	injector := inject.New(store, registry, logger)
	h := New(store, registry, injector, nil, &version.Info{Version: "test"}, logger)
	return h.Routes(), store
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v))
	return v
}

func createGARecord(t *testing.T, h http.Handler) RecordResponse {
	t.Helper()

	w := doJSON(t, h, http.MethodPost, "/api/records", CreateRecordRequest{
		Type:     "ganalytics",
		Name:     "Main property",
		Enabled:  true,
		CleanURL: true,
		Settings: map[string]string{"siteid": "G-ABC123"},
	})
	require.Equal(t, http.StatusCreated, w.Code)
	return decodeBody[RecordResponse](t, w)
}

func TestCreateRecord(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := createGARecord(t, h)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "ganalytics", rec.Type)
	assert.Equal(t, "Main property", rec.Name)
	assert.True(t, rec.Enabled)
	assert.Equal(t, tool.LocationHead, rec.Location)
	assert.Equal(t, "G-ABC123", rec.Settings.String("siteid"))

	w := doJSON(t, h, http.MethodGet, "/api/records", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decodeBody[[]RecordResponse](t, w)
	require.Len(t, list, 1)
	assert.Equal(t, rec.ID, list[0].ID)
}

func TestCreateRecordUnknownKind(t *testing.T) {
	h, _ := newTestHandler(t)

	w := doJSON(t, h, http.MethodPost, "/api/records", CreateRecordRequest{
		Type:     "clicktracker",
		Settings: map[string]string{},
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	apiErr := decodeBody[APIError](t, w)
	assert.Equal(t, "validation_error", apiErr.Error.Code)
	assert.Contains(t, apiErr.Error.Details["type"], "clicktracker")
}

func TestCreateRecordInvalidSettings(t *testing.T) {
	h, _ := newTestHandler(t)

	w := doJSON(t, h, http.MethodPost, "/api/records", CreateRecordRequest{
		Type:     "ganalytics",
		Settings: map[string]string{},
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	apiErr := decodeBody[APIError](t, w)
	assert.Equal(t, "validation_error", apiErr.Error.Code)
	assert.Equal(t, "required", apiErr.Error.Details["siteid"])
}

func TestCreateRecordInvalidLocation(t *testing.T) {
	h, _ := newTestHandler(t)

	w := doJSON(t, h, http.MethodPost, "/api/records", CreateRecordRequest{
		Type:     "ganalytics",
		Location: "sidebar",
		Settings: map[string]string{"siteid": "G-ABC123"},
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	apiErr := decodeBody[APIError](t, w)
	assert.Equal(t, "validation_error", apiErr.Error.Code)
	assert.NotEmpty(t, apiErr.Error.Details["location"])
}

func TestGetRecordNotFound(t *testing.T) {
	h, _ := newTestHandler(t)

	w := doJSON(t, h, http.MethodGet, "/api/records/absent", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	apiErr := decodeBody[APIError](t, w)
	assert.Equal(t, "not_found", apiErr.Error.Code)
}

func TestUpdateRecordPartial(t *testing.T) {
	h, _ := newTestHandler(t)
	rec := createGARecord(t, h)

	name := "Renamed"
	enabled := false
	w := doJSON(t, h, http.MethodPut, "/api/records/"+rec.ID, UpdateRecordRequest{
		Name:    &name,
		Enabled: &enabled,
	})
	require.Equal(t, http.StatusOK, w.Code)

	updated := decodeBody[RecordResponse](t, w)
	assert.Equal(t, "Renamed", updated.Name)
	assert.False(t, updated.Enabled)
	// Absent fields keep their stored values.
	assert.Equal(t, "ganalytics", updated.Type)
	assert.True(t, updated.CleanURL)
	assert.Equal(t, tool.LocationHead, updated.Location)
	assert.Equal(t, "G-ABC123", updated.Settings.String("siteid"))
}

func TestUpdateRecordRevalidatesSettings(t *testing.T) {
	h, _ := newTestHandler(t)
	rec := createGARecord(t, h)

	empty := map[string]string{}
	w := doJSON(t, h, http.MethodPut, "/api/records/"+rec.ID, UpdateRecordRequest{
		Settings: &empty,
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	apiErr := decodeBody[APIError](t, w)
	assert.Equal(t, "validation_error", apiErr.Error.Code)
	assert.Equal(t, "required", apiErr.Error.Details["siteid"])

	// The rejected update must not have touched the stored record.
	w = doJSON(t, h, http.MethodGet, "/api/records/"+rec.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	stored := decodeBody[RecordResponse](t, w)
	assert.Equal(t, "G-ABC123", stored.Settings.String("siteid"))
}

func TestDeleteRecord(t *testing.T) {
	h, _ := newTestHandler(t)
	rec := createGARecord(t, h)

	w := doJSON(t, h, http.MethodDelete, "/api/records/"+rec.ID, nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(t, h, http.MethodGet, "/api/records/"+rec.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, h, http.MethodDelete, "/api/records/"+rec.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListKinds(t *testing.T) {
	h, _ := newTestHandler(t)

	w := doJSON(t, h, http.MethodGet, "/api/kinds", nil)
	require.Equal(t, http.StatusOK, w.Code)

	kinds := decodeBody[[]KindResponse](t, w)
	require.Len(t, kinds, 4)
	assert.Equal(t, "matomo", kinds[0].Name)
	assert.Equal(t, "ganalytics", kinds[1].Name)
	assert.Equal(t, "gtagmanager", kinds[2].Name)
	assert.Equal(t, "guniversal", kinds[3].Name)

	// Matomo without instance configuration cannot auto-provision.
	assert.False(t, kinds[0].AutoProvision)

	require.NotEmpty(t, kinds[1].Fields)
	assert.Equal(t, "siteid", kinds[1].Fields[0].ID)
	assert.True(t, kinds[1].Fields[0].Required)
}

func TestStatus(t *testing.T) {
	h, store := newTestHandler(t)

	w := doJSON(t, h, http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, w.Code)

	status := decodeBody[StatusResponse](t, w)
	assert.True(t, status.Ready)
	assert.Len(t, status.Kinds, 4)
	assert.Empty(t, status.AutoProvisionable)
	assert.Zero(t, status.Records)
	assert.False(t, status.ProvisioningBlocked)
	assert.Equal(t, "test", status.Version)

	createGARecord(t, h)
	_, err := store.Save(context.Background(), &record.Record{
		Type: matomo.KindName,
		Name: matomo.FailedSentinelName,
	})
	require.NoError(t, err)

	w = doJSON(t, h, http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, w.Code)

	status = decodeBody[StatusResponse](t, w)
	assert.Equal(t, 2, status.Records)
	assert.Equal(t, 1, status.EnabledRecords)
	assert.True(t, status.ProvisioningBlocked)
}

func TestProvision(t *testing.T) {
	h, store := newTestHandler(t)

	// Matomo without instance configuration: the sweep is a no-op.
	w := doJSON(t, h, http.MethodPost, "/api/provision", nil)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeBody[ProvisionResponse](t, w)
	assert.Empty(t, resp.AutoProvisionable)
	assert.False(t, resp.ProvisioningBlocked)

	_, err := store.Save(context.Background(), &record.Record{
		Type: matomo.KindName,
		Name: matomo.FailedSentinelName,
	})
	require.NoError(t, err)

	w = doJSON(t, h, http.MethodPost, "/api/provision", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp = decodeBody[ProvisionResponse](t, w)
	assert.True(t, resp.ProvisioningBlocked)
}

func TestRender(t *testing.T) {
	h, _ := newTestHandler(t)
	createGARecord(t, h)

	var req RenderRequest
	req.Viewer.UserAgent = browserUA
	req.Page.URL = "https://moodle.example.com/course/view.php?id=2"
	req.Page.CourseName = "Intro 101"

	w := doJSON(t, h, http.MethodPost, "/api/render", req)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeBody[RenderResponse](t, w)
	assert.Contains(t, resp.Combined, "G-ABC123")
	assert.Contains(t, resp.Combined, "WEB ANALYTICS")
	assert.Equal(t, resp.Combined, resp.Sections[tool.LocationHead])
	assert.Empty(t, resp.Sections[tool.LocationTopOfBody])
	assert.Empty(t, resp.Sections[tool.LocationFooter])
}

func TestRenderSkipsUntrackedAdmin(t *testing.T) {
	h, _ := newTestHandler(t)
	createGARecord(t, h)

	var req RenderRequest
	req.Viewer.SiteAdmin = true
	req.Viewer.UserAgent = browserUA
	req.Page.URL = "https://moodle.example.com/"

	w := doJSON(t, h, http.MethodPost, "/api/render", req)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeBody[RenderResponse](t, w)
	assert.Empty(t, resp.Combined)
}

func TestRenderInvalidBody(t *testing.T) {
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/render", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)

	apiErr := decodeBody[APIError](t, w)
	assert.Equal(t, "invalid_request", apiErr.Error.Code)
}
