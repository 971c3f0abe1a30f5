// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package inject

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strings"
	"time"

	"github.com/mileusna/useragent"

	"github.com/olegiv/webanalytics-go/internal/cache"
	"github.com/olegiv/webanalytics-go/internal/record"
	"github.com/olegiv/webanalytics-go/internal/tool"
	"github.com/olegiv/webanalytics-go/internal/track"
)

// Injector is the per-request orchestrator: it walks enabled records,
// binds each to its provider kind, applies the tracking decision and
// collects the resulting markup. Page rendering must never fail because
// of it, so every failure degrades to "no markup" and is only logged.
type Injector struct {
	store     record.Store
	registry  *tool.Registry
	cache     cache.Cache
	logger    *slog.Logger
	cacheTTL  time.Duration
	trackBots bool
}

// Option configures an Injector.
type Option func(*Injector)

// WithCache caches rendered snippets keyed by record state, skipping
// template execution for unchanged records.
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(i *Injector) {
		i.cache = c
		i.cacheTTL = ttl
	}
}

// TrackBots disables the crawler guard. Tests use it to render with
// synthetic user agents.
func TrackBots() Option {
	return func(i *Injector) { i.trackBots = true }
}

// New creates an Injector.
func New(store record.Store, registry *tool.Registry, logger *slog.Logger, opts ...Option) *Injector {
	i := &Injector{
		store:    store,
		registry: registry,
		logger:   logger,
		cacheTTL: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Render computes the tracking markup for one page render. Fragments are
// written into the page buffer per record location and the concatenation
// of all delimited fragments is returned in store order, so repeated
// calls with unchanged records produce byte-identical output.
//
// After the markup is assembled an auto-provisioning sweep runs as a
// best-effort side effect; its failures never affect the returned markup.
func (i *Injector) Render(ctx context.Context, buf *PageBuffer, v track.Viewer, p *track.Page) string {
	if !i.trackBots && nonInteractive(v) {
		return ""
	}

	if !i.store.Ready(ctx) {
		i.logger.Debug("record store not ready, skipping injection")
		return ""
	}

	records, err := i.store.GetEnabled(ctx)
	if err != nil {
		i.logger.Error("loading enabled analytics records", "error", err)
		return ""
	}

	var out strings.Builder
	for _, rec := range records {
		fragment, ok := i.renderRecord(ctx, buf, rec, v, p)
		if !ok {
			continue
		}
		out.WriteString(fragment)
	}

	i.Sweep(ctx)

	return out.String()
}

// renderRecord binds one record and renders its markup. The returned
// fragment is already delimiter-wrapped.
func (i *Injector) renderRecord(ctx context.Context, buf *PageBuffer, rec *record.Record, v track.Viewer, p *track.Page) (fragment string, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			i.logger.Error("analytics tool panicked during render", "record", rec.ID, "kind", rec.Type, "panic", r)
			fragment, ok = "", false
		}
	}()

	t, err := i.registry.Bind(rec.Type, rec)
	if err != nil {
		i.logger.Warn("skipping analytics record", "record", rec.ID, "error", err)
		return "", false
	}

	if !t.ShouldTrack(v, p) {
		return "", false
	}

	markup, err := i.trackingCode(ctx, t, rec, v, p)
	if err != nil {
		i.logger.Error("rendering tracking code", "record", rec.ID, "kind", rec.Type, "error", err)
		return "", false
	}

	buf.Inject(t.Location(), rec.ID, markup)

	if bi, isBody := t.(tool.BodyInjector); isBody {
		section, body, err := bi.BodyCode(v, p)
		if err != nil {
			i.logger.Error("rendering body tracking code", "record", rec.ID, "kind", rec.Type, "error", err)
		} else if body != "" {
			buf.Inject(section, rec.ID, body)
		}
	}

	return Wrap(rec.ID, markup), true
}

// trackingCode renders a record's snippet, consulting the cache first.
func (i *Injector) trackingCode(ctx context.Context, t tool.Tool, rec *record.Record, v track.Viewer, p *track.Page) (string, error) {
	if i.cache == nil {
		return t.TrackingCode(v, p)
	}

	key := cacheKey(rec, v, p)
	if cached, err := i.cache.Get(ctx, key); err == nil {
		return string(cached), nil
	}

	markup, err := t.TrackingCode(v, p)
	if err != nil {
		return "", err
	}
	if err := i.cache.Set(ctx, key, []byte(markup), i.cacheTTL); err != nil {
		i.logger.Debug("caching tracking code failed", "record", rec.ID, "error", err)
	}
	return markup, nil
}

// Sweep runs one auto-provisioning pass over all reconcilers. Each
// reconciler decides cheaply whether an attempt is due. It runs after
// every page render and on a schedule, so quiet sites reconcile too.
func (i *Injector) Sweep(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			i.logger.Error("auto-provision sweep panicked", "panic", r)
		}
	}()

	for _, p := range i.registry.Provisioners() {
		due, err := p.CanAutoProvision(ctx)
		if err != nil {
			i.logger.Warn("auto-provision readiness check failed", "error", err)
			continue
		}
		if !due {
			continue
		}
		if err := p.AutoProvision(ctx); err != nil {
			i.logger.Error("auto-provision attempt failed", "error", err)
		}
	}
}

// nonInteractive reports background invocations and crawler traffic.
// Analytics snippets are pointless for both.
func nonInteractive(v track.Viewer) bool {
	if v.Background {
		return true
	}
	if v.UserAgent == "" {
		return false
	}
	return useragent.Parse(v.UserAgent).Bot
}

// cacheKey fingerprints everything a record's snippet depends on.
func cacheKey(rec *record.Record, v track.Viewer, p *track.Page) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(rec.ID))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write(rec.Settings.Encode())
	_, _ = h.Write([]byte{0})
	fmt.Fprintf(h, "%t|%s|%s|%s", rec.CleanURL, rec.Location, v.UserID, v.Username)
	if rec.CleanURL {
		_, _ = h.Write([]byte{0})
		_, _ = h.Write([]byte(track.TrackURL(p, false, false)))
	}
	return fmt.Sprintf("markup:%s:%x", rec.ID, h.Sum64())
}
