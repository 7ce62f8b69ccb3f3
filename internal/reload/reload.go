// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of carbond.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package reload periodically reparses the three schema files and swaps
// them in atomically, so a bad edit never takes effect and never takes
// down an already-running daemon (spec §4.6, §5's "Schemas reference").
// Grounded on the teacher's internal/taskManager gocron-job convention of
// a scheduled task that swallows its own errors into a log line
// (retentionService.go, updateDurationService.go) rather than propagating
// them to a caller that has nowhere to send them.
package reload

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/carbond/carbond/internal/config"
	"github.com/carbond/carbond/pkg/log"
	"github.com/go-co-op/gocron/v2"
)

// Watcher holds the current SchemaSet behind an atomic pointer and
// refreshes it on a fixed interval. Readers call Current(); a reload that
// fails to parse leaves the previous, already-validated SchemaSet in
// place.
type Watcher struct {
	cfg     *config.Config
	current atomic.Pointer[config.SchemaSet]

	scheduler gocron.Scheduler
	job       gocron.Job
	interval  time.Duration
}

// New builds a Watcher seeded with an already-loaded SchemaSet. cfg
// supplies the file paths to reparse and the reload interval.
func New(cfg *config.Config, initial *config.SchemaSet) *Watcher {
	w := &Watcher{cfg: cfg, interval: time.Duration(cfg.ReloadIntervalSeconds) * time.Second}
	w.current.Store(initial)
	return w
}

// Current returns the most recently and successfully loaded SchemaSet.
func (w *Watcher) Current() *config.SchemaSet {
	return w.current.Load()
}

// Start schedules the periodic reparse. Calling Start twice is an error.
func (w *Watcher) Start() error {
	if w.scheduler != nil {
		return errors.New("reload: watcher already started")
	}
	s, err := gocron.NewScheduler()
	if err != nil {
		return err
	}
	w.scheduler = s

	job, err := s.NewJob(gocron.DurationJob(w.interval), gocron.NewTask(w.reload))
	if err != nil {
		return err
	}
	w.job = job

	s.Start()
	log.Infof("reload: watching schemas every %s", w.interval)
	return nil
}

// Shutdown stops the scheduler. Safe to call even if Start was never
// called.
func (w *Watcher) Shutdown(ctx context.Context) error {
	if w.scheduler == nil {
		return nil
	}
	done := make(chan error, 1)
	go func() { done <- w.scheduler.Shutdown() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reload forces an immediate reparse, bypassing the schedule. Used by the
// admin API's /admin/reload endpoint (spec §4.6, SPEC_FULL §11).
func (w *Watcher) Reload() error {
	return w.reload()
}

func (w *Watcher) reload() error {
	next, err := config.LoadSchemaSet(w.cfg)
	if err != nil {
		log.Warnf("reload: keeping previous schemas, parse failed: %s", err.Error())
		return err
	}
	next.LoadedAt = time.Now()
	w.current.Store(next)
	log.Infof("reload: schemas refreshed (%d storage, %d aggregation, %d relay rules)",
		len(next.Storage), len(next.Aggregation), len(next.Relay))
	return nil
}
