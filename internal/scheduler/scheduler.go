// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package scheduler runs the periodic auto-provisioning sweep so that
// sites with no page traffic still reconcile their remote registration.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweeper is the provisioning surface the scheduler drives.
type Sweeper interface {
	Sweep(ctx context.Context)
}

// Scheduler runs the sweep on a cron schedule.
type Scheduler struct {
	sweeper Sweeper
	cron    *cron.Cron
	spec    string
	timeout time.Duration
	logger  *slog.Logger
}

// New creates a scheduler with the given cron spec (standard 5-field).
func New(sweeper Sweeper, spec string, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		sweeper: sweeper,
		cron:    cron.New(),
		spec:    spec,
		timeout: 5 * time.Minute,
		logger:  logger,
	}
}

// Start registers the sweep job and starts the cron loop.
func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc(s.spec, s.runSweep)
	if err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("scheduler started", "schedule", s.spec, "jobs", len(s.cron.Entries()))
	return nil
}

// Stop gracefully stops the scheduler, waiting for a running sweep.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	s.sweeper.Sweep(ctx)
	s.logger.Debug("auto-provision sweep completed", "duration", time.Since(start))
}
