// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package handler provides the REST API for managing analytics records
// and rendering tracking markup.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/olegiv/webanalytics-go/internal/record"
	"github.com/olegiv/webanalytics-go/internal/tool"
)

// APIError represents a JSON error response for the API.
type APIError struct {
	Error struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Details map[string]string `json:"details,omitempty"`
	} `json:"error"`
}

// WriteAPIError writes a JSON error response.
func WriteAPIError(w http.ResponseWriter, statusCode int, code, message string, details map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	apiErr := APIError{}
	apiErr.Error.Code = code
	apiErr.Error.Message = message
	apiErr.Error.Details = details

	_ = json.NewEncoder(w).Encode(apiErr)
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}

// RecordResponse represents an analytics record in API responses.
type RecordResponse struct {
	ID                string          `json:"id"`
	Type              string          `json:"type"`
	Name              string          `json:"name"`
	Enabled           bool            `json:"enabled"`
	Location          string          `json:"location"`
	TrackAdmin        bool            `json:"trackadmin"`
	TrackOnlyStudents bool            `json:"track_only_students"`
	Categories        []int64         `json:"categories,omitempty"`
	CleanURL          bool            `json:"cleanurl"`
	Settings          record.Settings `json:"settings"`
}

func recordToResponse(r *record.Record) RecordResponse {
	loc := r.Location
	if loc == "" {
		loc = tool.LocationHead
	}
	return RecordResponse{
		ID:                r.ID,
		Type:              r.Type,
		Name:              r.Name,
		Enabled:           r.Enabled,
		Location:          loc,
		TrackAdmin:        r.TrackAdmin,
		TrackOnlyStudents: r.TrackOnlyStudents,
		Categories:        r.Categories,
		CleanURL:          r.CleanURL,
		Settings:          r.Settings,
	}
}

// CreateRecordRequest represents the request body for creating a record.
// Settings arrive as raw form-style strings and go through the kind's
// validation before anything is persisted.
type CreateRecordRequest struct {
	Type              string            `json:"type"`
	Name              string            `json:"name"`
	Enabled           bool              `json:"enabled"`
	Location          string            `json:"location,omitempty"`
	TrackAdmin        bool              `json:"trackadmin"`
	TrackOnlyStudents bool              `json:"track_only_students"`
	Categories        []int64           `json:"categories,omitempty"`
	CleanURL          bool              `json:"cleanurl"`
	Settings          map[string]string `json:"settings"`
}

// UpdateRecordRequest represents the request body for updating a record.
// Absent fields keep their stored value. The record type cannot change.
type UpdateRecordRequest struct {
	Name              *string            `json:"name,omitempty"`
	Enabled           *bool              `json:"enabled,omitempty"`
	Location          *string            `json:"location,omitempty"`
	TrackAdmin        *bool              `json:"trackadmin,omitempty"`
	TrackOnlyStudents *bool              `json:"track_only_students,omitempty"`
	Categories        *[]int64           `json:"categories,omitempty"`
	CleanURL          *bool              `json:"cleanurl,omitempty"`
	Settings          *map[string]string `json:"settings,omitempty"`
}

func validLocation(loc string) bool {
	switch loc {
	case "", tool.LocationHead, tool.LocationTopOfBody, tool.LocationFooter:
		return true
	}
	return false
}

// ListRecords handles GET /api/records.
func (h *Handler) ListRecords(w http.ResponseWriter, r *http.Request) {
	records, err := h.store.GetAll(r.Context())
	if err != nil {
		h.logger.Error("listing analytics records", "error", err)
		WriteAPIError(w, http.StatusInternalServerError, "internal_error", "Failed to list records", nil)
		return
	}

	out := make([]RecordResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, recordToResponse(rec))
	}
	writeJSON(w, http.StatusOK, out)
}

// GetRecord handles GET /api/records/{id}.
func (h *Handler) GetRecord(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.lookupRecord(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, recordToResponse(rec))
}

// CreateRecord handles POST /api/records.
func (h *Handler) CreateRecord(w http.ResponseWriter, r *http.Request) {
	var req CreateRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body", nil)
		return
	}

	kind, ok := h.registry.Get(req.Type)
	if !ok {
		WriteAPIError(w, http.StatusBadRequest, "validation_error", "Unknown provider kind",
			map[string]string{"type": "unknown kind: " + req.Type})
		return
	}
	if !validLocation(req.Location) {
		WriteAPIError(w, http.StatusBadRequest, "validation_error", "Invalid location",
			map[string]string{"location": "must be head, topofbody or footer"})
		return
	}

	settings, err := kind.BuildSettings(req.Settings)
	if err != nil {
		h.writeSettingsError(w, err)
		return
	}

	rec := &record.Record{
		Type:              req.Type,
		Name:              req.Name,
		Enabled:           req.Enabled,
		Location:          req.Location,
		TrackAdmin:        req.TrackAdmin,
		TrackOnlyStudents: req.TrackOnlyStudents,
		Categories:        req.Categories,
		CleanURL:          req.CleanURL,
		Settings:          settings,
	}
	id, err := h.store.Save(r.Context(), rec)
	if err != nil {
		h.logger.Error("creating analytics record", "error", err)
		WriteAPIError(w, http.StatusInternalServerError, "internal_error", "Failed to save record", nil)
		return
	}
	rec.ID = id

	h.invalidateCache(r.Context())
	writeJSON(w, http.StatusCreated, recordToResponse(rec))
}

// UpdateRecord handles PUT /api/records/{id}.
func (h *Handler) UpdateRecord(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.lookupRecord(w, r)
	if !ok {
		return
	}

	var req UpdateRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body", nil)
		return
	}

	if req.Name != nil {
		rec.Name = *req.Name
	}
	if req.Enabled != nil {
		rec.Enabled = *req.Enabled
	}
	if req.Location != nil {
		if !validLocation(*req.Location) {
			WriteAPIError(w, http.StatusBadRequest, "validation_error", "Invalid location",
				map[string]string{"location": "must be head, topofbody or footer"})
			return
		}
		rec.Location = *req.Location
	}
	if req.TrackAdmin != nil {
		rec.TrackAdmin = *req.TrackAdmin
	}
	if req.TrackOnlyStudents != nil {
		rec.TrackOnlyStudents = *req.TrackOnlyStudents
	}
	if req.Categories != nil {
		rec.Categories = *req.Categories
	}
	if req.CleanURL != nil {
		rec.CleanURL = *req.CleanURL
	}
	if req.Settings != nil {
		kind, ok := h.registry.Get(rec.Type)
		if !ok {
			WriteAPIError(w, http.StatusConflict, "kind_not_installed", "Provider kind is no longer installed", nil)
			return
		}
		settings, err := kind.BuildSettings(*req.Settings)
		if err != nil {
			h.writeSettingsError(w, err)
			return
		}
		rec.Settings = settings
	}

	if _, err := h.store.Save(r.Context(), rec); err != nil {
		h.logger.Error("updating analytics record", "record", rec.ID, "error", err)
		WriteAPIError(w, http.StatusInternalServerError, "internal_error", "Failed to save record", nil)
		return
	}

	h.invalidateCache(r.Context())
	writeJSON(w, http.StatusOK, recordToResponse(rec))
}

// DeleteRecord handles DELETE /api/records/{id}.
func (h *Handler) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.lookupRecord(w, r)
	if !ok {
		return
	}
	if err := h.store.Delete(r.Context(), rec.ID); err != nil {
		h.logger.Error("deleting analytics record", "record", rec.ID, "error", err)
		WriteAPIError(w, http.StatusInternalServerError, "internal_error", "Failed to delete record", nil)
		return
	}
	h.invalidateCache(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) lookupRecord(w http.ResponseWriter, r *http.Request) (*record.Record, bool) {
	id := chi.URLParam(r, "id")
	rec, err := h.store.Get(r.Context(), id)
	if err != nil {
		h.logger.Error("loading analytics record", "record", id, "error", err)
		WriteAPIError(w, http.StatusInternalServerError, "internal_error", "Failed to load record", nil)
		return nil, false
	}
	if rec == nil {
		WriteAPIError(w, http.StatusNotFound, "not_found", "Record not found", nil)
		return nil, false
	}
	return rec, true
}

func (h *Handler) writeSettingsError(w http.ResponseWriter, err error) {
	var verr *tool.ValidationError
	if errors.As(err, &verr) {
		WriteAPIError(w, http.StatusBadRequest, "validation_error", "Invalid settings", verr.Fields)
		return
	}
	h.logger.Error("building record settings", "error", err)
	WriteAPIError(w, http.StatusInternalServerError, "internal_error", "Failed to build settings", nil)
}
