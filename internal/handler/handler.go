// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/olegiv/webanalytics-go/internal/cache"
	"github.com/olegiv/webanalytics-go/internal/inject"
	"github.com/olegiv/webanalytics-go/internal/record"
	"github.com/olegiv/webanalytics-go/internal/tool"
	"github.com/olegiv/webanalytics-go/internal/track"
	"github.com/olegiv/webanalytics-go/internal/version"
	"github.com/olegiv/webanalytics-go/tools/matomo"
)

// Handler bundles the dependencies the API routes need.
type Handler struct {
	store    record.Store
	registry *tool.Registry
	injector *inject.Injector
	cache    cache.Cache
	version  *version.Info
	logger   *slog.Logger
}

// New creates the handler. cache may be nil.
func New(store record.Store, registry *tool.Registry, injector *inject.Injector, c cache.Cache, v *version.Info, logger *slog.Logger) *Handler {
	return &Handler{
		store:    store,
		registry: registry,
		injector: injector,
		cache:    c,
		version:  v,
		logger:   logger,
	}
}

// Routes builds the API router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", h.Status)
		r.Get("/kinds", h.ListKinds)
		r.Post("/render", h.Render)
		r.Post("/provision", h.Provision)

		r.Route("/records", func(r chi.Router) {
			r.Get("/", h.ListRecords)
			r.Post("/", h.CreateRecord)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetRecord)
				r.Put("/", h.UpdateRecord)
				r.Delete("/", h.DeleteRecord)
			})
		})
	})

	return r
}

// invalidateCache drops cached markup after any record mutation.
func (h *Handler) invalidateCache(ctx context.Context) {
	if h.cache == nil {
		return
	}
	if err := h.cache.Clear(ctx); err != nil {
		h.logger.Warn("clearing markup cache", "error", err)
	}
}

// KindResponse describes an installed provider kind.
type KindResponse struct {
	Name          string              `json:"name"`
	AutoProvision bool                `json:"auto_provision"`
	Fields        []tool.SettingField `json:"fields"`
}

// ListKinds handles GET /api/kinds.
func (h *Handler) ListKinds(w http.ResponseWriter, r *http.Request) {
	names := h.registry.Kinds()
	out := make([]KindResponse, 0, len(names))
	for _, name := range names {
		k, ok := h.registry.Get(name)
		if !ok {
			continue
		}
		out = append(out, KindResponse{
			Name:          k.Name(),
			AutoProvision: k.SupportsAutoProvision(),
			Fields:        k.FormFields(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// StatusResponse reports service health and provisioning state.
type StatusResponse struct {
	Ready               bool     `json:"ready"`
	Kinds               []string `json:"kinds"`
	AutoProvisionable   []string `json:"auto_provisionable"`
	Records             int      `json:"records"`
	EnabledRecords      int      `json:"enabled_records"`
	ProvisioningBlocked bool     `json:"provisioning_blocked"`
	Version             string   `json:"version,omitempty"`
	GitCommit           string   `json:"git_commit,omitempty"`
}

// Status handles GET /api/status. ProvisioningBlocked reports a failed
// auto-provision sentinel, which an operator has to clear by hand.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	resp := StatusResponse{
		Ready:             h.store.Ready(ctx),
		Kinds:             h.registry.Kinds(),
		AutoProvisionable: h.registry.ListAutoProvisionable(),
	}
	if h.version != nil {
		resp.Version = h.version.Version
		resp.GitCommit = h.version.GitCommit
	}

	records, err := h.store.GetAll(ctx)
	if err != nil {
		h.logger.Error("loading records for status", "error", err)
		WriteAPIError(w, http.StatusInternalServerError, "internal_error", "Failed to load records", nil)
		return
	}
	resp.Records = len(records)
	for _, rec := range records {
		if rec.Enabled {
			resp.EnabledRecords++
		}
		if rec.Type == matomo.KindName && rec.Name == matomo.FailedSentinelName {
			resp.ProvisioningBlocked = true
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// ProvisionResponse reports the provisioning state after an on-demand sweep.
type ProvisionResponse struct {
	AutoProvisionable   []string `json:"auto_provisionable"`
	ProvisioningBlocked bool     `json:"provisioning_blocked"`
}

// Provision handles POST /api/provision: an admin-triggered reconciliation
// sweep, same pass the scheduler runs. Individual reconciler failures are
// logged, not surfaced; the response reflects the state afterwards.
func (h *Handler) Provision(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	h.injector.Sweep(ctx)

	resp := ProvisionResponse{
		AutoProvisionable: h.registry.ListAutoProvisionable(),
	}
	records, err := h.store.GetAll(ctx)
	if err != nil {
		h.logger.Error("loading records after provision sweep", "error", err)
		WriteAPIError(w, http.StatusInternalServerError, "internal_error", "Failed to load records", nil)
		return
	}
	for _, rec := range records {
		if rec.Type == matomo.KindName && rec.Name == matomo.FailedSentinelName {
			resp.ProvisioningBlocked = true
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// RenderRequest carries the viewer and page context for one page render.
type RenderRequest struct {
	Viewer struct {
		SiteAdmin    bool   `json:"siteadmin"`
		Student      bool   `json:"student"`
		OnCoursePage bool   `json:"on_course_page"`
		Background   bool   `json:"background"`
		UserID       string `json:"userid"`
		Username     string `json:"username"`
		UserAgent    string `json:"useragent"`
	} `json:"viewer"`
	Page struct {
		URL          string `json:"url"`
		CategoryPath []struct {
			ID   int64  `json:"id"`
			Name string `json:"name"`
		} `json:"category_path,omitempty"`
		CourseName   string `json:"course_name,omitempty"`
		ActivityType string `json:"activity_type,omitempty"`
		ActivityName string `json:"activity_name,omitempty"`
		Editing      bool   `json:"editing"`
	} `json:"page"`
}

// RenderResponse carries the assembled markup per page section.
type RenderResponse struct {
	Combined string            `json:"combined"`
	Sections map[string]string `json:"sections"`
}

// Render handles POST /api/render: the embedding front end posts the
// viewer and page context and gets back the markup for each section.
func (h *Handler) Render(w http.ResponseWriter, r *http.Request) {
	var req RenderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body", nil)
		return
	}

	v := track.Viewer{
		SiteAdmin:    req.Viewer.SiteAdmin,
		Student:      req.Viewer.Student,
		OnCoursePage: req.Viewer.OnCoursePage,
		Background:   req.Viewer.Background,
		UserID:       req.Viewer.UserID,
		Username:     req.Viewer.Username,
		UserAgent:    req.Viewer.UserAgent,
	}
	if v.UserAgent == "" {
		v.UserAgent = r.UserAgent()
	}

	p := &track.Page{
		RawURL:       req.Page.URL,
		CourseName:   req.Page.CourseName,
		ActivityType: req.Page.ActivityType,
		ActivityName: req.Page.ActivityName,
		Editing:      req.Page.Editing,
	}
	for _, c := range req.Page.CategoryPath {
		p.CategoryPath = append(p.CategoryPath, track.Category{ID: c.ID, Name: c.Name})
	}

	buf := inject.NewPageBuffer()
	combined := h.injector.Render(r.Context(), buf, v, p)

	resp := RenderResponse{
		Combined: combined,
		Sections: map[string]string{
			tool.LocationHead:      buf.Section(tool.LocationHead),
			tool.LocationTopOfBody: buf.Section(tool.LocationTopOfBody),
			tool.LocationFooter:    buf.Section(tool.LocationFooter),
		},
	}
	writeJSON(w, http.StatusOK, resp)
}
