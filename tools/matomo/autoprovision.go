// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package matomo

import (
	"context"
	"strings"
	"time"

	"github.com/olegiv/webanalytics-go/internal/record"
)

// Names given to records the reconciler creates. The failed sentinel is
// a disabled record that permanently stops further attempts, so one bad
// rollout does not retry on every page view forever.
const (
	ProvisionedName    = "auto-provisioned"
	FailedSentinelName = "auto-provisioned:FAILED"
)

const lockTTL = 10 * time.Minute

type action int

const (
	actionNone action = iota
	actionCreate
	actionUpdate
)

// CanAutoProvision implements tool.Provisioner. It only reads local
// store state, never the remote API.
func (k *Kind) CanAutoProvision(ctx context.Context) (bool, error) {
	if !k.SupportsAutoProvision() {
		return false, nil
	}
	act, _, err := k.determineAction(ctx)
	if err != nil {
		return false, err
	}
	return act != actionNone, nil
}

// determineAction decides what one reconciliation attempt should do:
// create a record when no Matomo record exists, update when one opted
// into auto-update and no longer tracks the current site URL, nothing
// otherwise. A failed sentinel blocks everything.
func (k *Kind) determineAction(ctx context.Context) (action, *record.Record, error) {
	records, err := k.store.GetAll(ctx)
	if err != nil {
		return actionNone, nil, err
	}

	var exists bool
	for _, r := range records {
		if r.Type != KindName {
			continue
		}
		if r.Name == FailedSentinelName {
			return actionNone, nil, nil
		}
		exists = true
	}
	for _, r := range records {
		if r.Type != KindName {
			continue
		}
		s := SettingsFromRecord(r.Settings)
		if r.Enabled && s.AutoUpdate && !s.HasURL(k.cfg.WWWRoot) {
			return actionUpdate, r, nil
		}
	}
	if exists {
		return actionNone, nil, nil
	}
	return actionCreate, nil, nil
}

// AutoProvision implements tool.Provisioner. It runs one reconciliation
// attempt under the advisory lock; losing the lock race is not an error.
func (k *Kind) AutoProvision(ctx context.Context) error {
	ok, err := k.locker.TryLock(ctx, KindName, lockTTL)
	if err != nil {
		return err
	}
	if !ok {
		k.logger.Debug("auto-provision lock held, skipping", "kind", KindName)
		return nil
	}
	defer func() {
		if err := k.locker.Unlock(context.WithoutCancel(ctx), KindName); err != nil {
			k.logger.Warn("auto-provision unlock failed", "category", "matomo", "error", err)
		}
	}()

	// Re-check under the lock: a concurrent sweep may have acted already.
	act, rec, err := k.determineAction(ctx)
	if err != nil {
		return err
	}
	switch act {
	case actionCreate:
		return k.provisionCreate(ctx)
	case actionUpdate:
		return k.provisionUpdate(ctx, rec)
	}
	return nil
}

// provisionCreate registers the site on the remote instance, adopting a
// site that already tracks the current URL when one exists, and stores
// the resulting record. A rejected registration leaves the failed
// sentinel behind.
func (k *Kind) provisionCreate(ctx context.Context) error {
	siteID, err := k.client.SiteIDFromURL(ctx, k.cfg.WWWRoot)
	if err != nil {
		k.logger.Warn("auto-provision lookup failed", "category", "matomo", "error", err)
		return k.saveFailedSentinel(ctx)
	}

	urls := []string{k.cfg.WWWRoot}
	if siteID > 0 {
		k.logger.Info("adopting existing Matomo site", "siteid", siteID)
		remote, err := k.client.URLsFromSiteID(ctx, siteID)
		if err != nil {
			k.logger.Warn("auto-provision URL fetch failed", "category", "matomo", "error", err)
			return k.saveFailedSentinel(ctx)
		}
		if len(remote) > 0 {
			urls = mergeURLs(remote, k.cfg.WWWRoot)
		}
	} else {
		siteID, err = k.client.AddSite(ctx, k.cfg.SiteName, urls, k.cfg.Timezone, k.cfg.Currency)
		if err != nil {
			k.logger.Warn("auto-provision registration failed", "category", "matomo", "error", err)
			return k.saveFailedSentinel(ctx)
		}
	}
	if siteID == 0 {
		k.logger.Warn("Matomo instance rejected site registration", "category", "matomo")
		return k.saveFailedSentinel(ctx)
	}

	s := DefaultSettings()
	s.SiteID = siteID
	s.SiteURL = formatSiteURL(k.cfg.SiteURL)
	s.APIToken = k.cfg.APIToken
	s.WWWRoot = k.cfg.WWWRoot
	s.AutoUpdate = k.cfg.DefaultAutoUpdate
	s.AutoUpdateURLs = urls

	rec := &record.Record{
		Type:     KindName,
		Name:     ProvisionedName,
		Enabled:  true,
		Settings: s.ToRecord(),
	}
	id, err := k.store.Save(ctx, rec)
	if err != nil {
		return err
	}
	k.logger.Info("auto-provisioned Matomo record", "record", id, "siteid", siteID)
	return nil
}

// provisionUpdate reconciles URLs in both directions: the remote site
// learns the current site URL, the record learns every URL the remote
// site tracks. A record bound to a different instance, or whose remote
// site no longer tracks any of its recorded URLs, is not ours anymore;
// updating is switched off instead of touching someone else's site.
// Any remote failure switches updating off the same way rather than
// re-contacting a broken instance on every sweep.
func (k *Kind) provisionUpdate(ctx context.Context, rec *record.Record) error {
	s := SettingsFromRecord(rec.Settings)
	if s.SiteID == 0 {
		return k.disableUpdating(ctx, rec, "record has no site id")
	}
	if s.SiteURL != formatSiteURL(k.cfg.SiteURL) {
		return k.disableUpdating(ctx, rec, "record is bound to a different instance")
	}

	remote, err := k.client.URLsFromSiteID(ctx, s.SiteID)
	if err != nil {
		k.logger.Warn("auto-provision URL fetch failed", "category", "matomo", "error", err)
		return k.disableUpdating(ctx, rec, "instance unreachable while fetching URLs")
	}
	if !k.ownsSite(s, remote) {
		return k.disableUpdating(ctx, rec, "remote site tracks none of the recorded URLs")
	}

	merged := mergeURLs(remote, s.AutoUpdateURLs...)
	merged = mergeURLs(merged, k.cfg.WWWRoot)

	// When the remote site already tracks the current URL only the
	// record needs syncing, not the instance.
	if !containsURL(remote, k.cfg.WWWRoot) {
		ok, err := k.client.UpdateSite(ctx, s.SiteID, merged)
		if err != nil {
			k.logger.Warn("auto-provision update failed", "category", "matomo", "error", err)
			return k.disableUpdating(ctx, rec, "instance unreachable while updating URLs")
		}
		if !ok {
			return k.disableUpdating(ctx, rec, "instance rejected the URL update")
		}
	}

	s.AutoUpdateURLs = merged
	s.WWWRoot = k.cfg.WWWRoot
	rec.Settings = s.ToRecord()
	if _, err := k.store.Save(ctx, rec); err != nil {
		return err
	}
	k.logger.Info("reconciled Matomo site URLs", "record", rec.ID, "siteid", s.SiteID, "urls", len(merged))
	return nil
}

// ownsSite checks that the remote site still tracks at least one URL
// this record registered.
func (k *Kind) ownsSite(s Settings, remote []string) bool {
	if len(s.AutoUpdateURLs) == 0 {
		// Nothing recorded yet, adopt whatever is there.
		return true
	}
	for _, u := range remote {
		if s.HasURL(u) {
			return true
		}
	}
	return false
}

func (k *Kind) disableUpdating(ctx context.Context, rec *record.Record, reason string) error {
	k.logger.Warn("disabling Matomo auto-update", "category", "matomo", "record", rec.ID, "reason", reason)
	s := SettingsFromRecord(rec.Settings)
	s.AutoUpdate = false
	s.AutoUpdateURLs = nil
	rec.Settings = s.ToRecord()
	_, err := k.store.Save(ctx, rec)
	return err
}

func (k *Kind) saveFailedSentinel(ctx context.Context) error {
	rec := &record.Record{
		Type:    KindName,
		Name:    FailedSentinelName,
		Enabled: false,
		Settings: record.Settings{
			"siteurl": formatSiteURL(k.cfg.SiteURL),
		},
	}
	_, err := k.store.Save(ctx, rec)
	return err
}

func containsURL(urls []string, u string) bool {
	for _, x := range urls {
		if x == u {
			return true
		}
	}
	return false
}

// mergeURLs appends extra URLs not already present, preserving order.
func mergeURLs(urls []string, extra ...string) []string {
	out := make([]string, 0, len(urls)+len(extra))
	seen := make(map[string]struct{}, len(urls)+len(extra))
	for _, u := range urls {
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	for _, u := range extra {
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

// formatSiteURL normalizes an instance address for storage: scheme
// stripped, trailing slash removed.
func formatSiteURL(u string) string {
	u = strings.TrimPrefix(u, "https://")
	u = strings.TrimPrefix(u, "http://")
	return strings.TrimRight(u, "/")
}
