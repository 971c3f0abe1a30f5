// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package tool

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/olegiv/webanalytics-go/internal/record"
)

// Registry manages the installed provider kinds.
type Registry struct {
	kinds  map[string]Kind
	order  []string // registration order
	logger *slog.Logger
	mu     sync.RWMutex
}

// NewRegistry creates an empty kind registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		kinds:  make(map[string]Kind),
		logger: logger,
	}
}

// Register adds a provider kind. Registration order is preserved for
// stable enumeration.
func (r *Registry) Register(k Kind) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := k.Name()
	if name == "" {
		return &ConfigurationError{Kind: name, Reason: "kind has no name"}
	}
	if _, exists := r.kinds[name]; exists {
		return fmt.Errorf("analytics kind %q already registered", name)
	}

	r.kinds[name] = k
	r.order = append(r.order, name)
	r.logger.Info("analytics kind registered", "kind", name, "auto_provision", k.SupportsAutoProvision())

	return nil
}

// Get returns a registered kind by name.
func (r *Registry) Get(name string) (Kind, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	k, ok := r.kinds[name]
	return k, ok
}

// Kinds returns the registered kind names in registration order.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]string(nil), r.order...)
}

// Bind constructs a Tool for the (kind, record) pair. Unknown kinds and
// structurally incomplete implementations fail with ConfigurationError.
func (r *Registry) Bind(kindName string, rec *record.Record) (Tool, error) {
	r.mu.RLock()
	k, ok := r.kinds[kindName]
	r.mu.RUnlock()

	if !ok {
		return nil, &ConfigurationError{Kind: kindName, Reason: "kind is not registered"}
	}

	t, err := k.NewTool(rec)
	if err != nil {
		return nil, &ConfigurationError{Kind: kindName, Reason: err.Error()}
	}
	if t == nil {
		return nil, &ConfigurationError{Kind: kindName, Reason: "kind constructed no tool"}
	}

	return t, nil
}

// ListAutoProvisionable returns the names of kinds that declare
// auto-provision support.
func (r *Registry) ListAutoProvisionable() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var names []string
	for _, name := range r.order {
		if r.kinds[name].SupportsAutoProvision() {
			names = append(names, name)
		}
	}
	return names
}

// Provisioners returns the reconcilers of all auto-provisionable kinds.
// A kind that declares support but lacks the Provisioner surface is
// skipped with a warning: it is structurally incomplete.
func (r *Registry) Provisioners() []Provisioner {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Provisioner
	for _, name := range r.order {
		k := r.kinds[name]
		if !k.SupportsAutoProvision() {
			continue
		}
		p, ok := k.(Provisioner)
		if !ok {
			r.logger.Warn("analytics kind declares auto provision but implements no reconciler", "kind", name)
			continue
		}
		out = append(out, p)
	}
	return out
}

// Count returns the number of registered kinds.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.kinds)
}
