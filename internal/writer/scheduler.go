// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of carbond.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package writer implements the WriteScheduler (spec §4.5): the long-lived
// worker that drains the cache, enforces rate limits, provisions new
// database files on first sight of a metric, and commits datapoint
// batches. Grounded on original_source/lib/carbon/writer.py's
// writeCycle/writeForever loop, restructured as the cooperative,
// context-cancellable worker the teacher's long-running services use
// (internal/taskManager's gocron tasks check a context/interval between
// iterations rather than spinning unconditionally).
package writer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/carbond/carbond/internal/cache"
	"github.com/carbond/carbond/internal/config"
	"github.com/carbond/carbond/internal/instrumentation"
	"github.com/carbond/carbond/internal/metric"
	"github.com/carbond/carbond/internal/ratelimit"
	"github.com/carbond/carbond/internal/rrdb"
	"github.com/carbond/carbond/internal/schemaconf"
	"github.com/carbond/carbond/pkg/log"
)

// Database is the persistence capability the scheduler drives (spec §6).
// *rrdb.DB satisfies it; tests substitute a fake.
type Database interface {
	Exists(name metric.Name) bool
	Create(name metric.Name, archives []rrdb.ArchiveSpec, xFilesFactor float64, method metric.AggregationMethod) error
	UpdateMany(name metric.Name, points []metric.Datapoint) error
}

// SchemaSource supplies the current, atomically-swapped schema set (spec
// §4.6). *reload.Watcher satisfies it.
type SchemaSource interface {
	Current() *config.SchemaSet
}

// IdleInterval is the default sleep between drain attempts when the cache
// is empty (spec §4.5's "default 100 ms").
const IdleInterval = 100 * time.Millisecond

// Scheduler is the WriteScheduler. One Scheduler corresponds to one writer
// worker (spec §5: "N writer workers... a hash-shard of name -> worker").
type Scheduler struct {
	cache    *cache.Cache
	db       Database
	schemas  SchemaSource
	instr    *instrumentation.Instrumentation
	update   *ratelimit.TokenBucket
	create   *ratelimit.TokenBucket
	logUpdates bool
	idle     time.Duration

	shutdownRate float64

	admission slidingWindowCounter

	stopped chan struct{}
	done    chan struct{}
}

// New constructs a Scheduler. cfg supplies rate limits and LOG_UPDATES;
// caller owns starting Run in its own goroutine.
func New(c *cache.Cache, db Database, schemas SchemaSource, instr *instrumentation.Instrumentation, cfg *config.Config) *Scheduler {
	idle := IdleInterval
	return &Scheduler{
		cache:        c,
		db:           db,
		schemas:      schemas,
		instr:        instr,
		update:       ratelimit.New(cfg.MaxUpdatesPerSecond, cfg.MaxUpdatesPerSecond),
		create:       ratelimit.New(cfg.MaxCreatesPerMinute, cfg.MaxCreatesPerMinute/60),
		logUpdates:   cfg.LogUpdates,
		idle:         idle,
		shutdownRate: cfg.MaxUpdatesPerSecondOnShutdown,
		admission:    newSlidingWindowCounter(time.Minute, cfg.MaxCreatesPerMinute),
		stopped:      make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// Run executes the main loop until ctx is cancelled or Shutdown is called.
// Intended to be run in its own goroutine.
func (s *Scheduler) Run(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopped:
			s.drainRemaining(ctx)
			return
		default:
		}

		name, points, ok := s.cache.DrainMetric()
		if !ok {
			select {
			case <-time.After(s.idle):
			case <-ctx.Done():
				return
			case <-s.stopped:
				s.drainRemaining(ctx)
				return
			}
			continue
		}
		s.commit(ctx, name, points)
	}
}

// drainRemaining empties whatever is left in the cache under the shutdown
// rate limit, with no idle sleep between iterations (spec §5's "drains the
// cache under the shutdown rate limit and then exits").
func (s *Scheduler) drainRemaining(ctx context.Context) {
	for {
		name, points, ok := s.cache.DrainMetric()
		if !ok {
			return
		}
		s.commit(ctx, name, points)
	}
}

// Shutdown bumps the update bucket to MAX_UPDATES_PER_SECOND_ON_SHUTDOWN
// (spec §4.5's shutdown hook) and signals Run to drain and exit. It
// returns once Run has finished, or ctx is done first.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.update.SetRate(s.shutdownRate, s.shutdownRate)
	close(s.stopped)
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// commit runs steps 2-4 of spec §4.5 for one drained (metric, datapoints)
// pair.
func (s *Scheduler) commit(ctx context.Context, name metric.Name, points []metric.Datapoint) {
	s.instr.CacheSize.Set(float64(s.cache.Size()))
	if err := s.update.WaitFor(ctx, 1); err != nil {
		s.instr.WriteRatelimitExceeded.Inc()
		return
	}

	if !s.db.Exists(name) {
		if !s.admit(name) {
			s.instr.DroppedCreates.Inc()
			return
		}
		if !s.create.Drain(1) {
			s.instr.CreateRatelimitExceeded.Inc()
			return
		}
		if err := s.createFile(name); err != nil {
			log.Errorf("writer: create %q: %s", string(name), err.Error())
			s.instr.MetricCreateErrors.Inc()
			return
		}
	}

	start := time.Now()
	if err := s.db.UpdateMany(name, points); err != nil {
		log.Errorf("writer: update %q: %s", string(name), err.Error())
		s.instr.WriteErrors.Inc()
		return
	}
	s.instr.ObserveWrite(len(points), time.Since(start))
	if s.logUpdates {
		log.Infof("writer: committed %d points for %q", len(points), string(name))
	}
}

// admit applies the soft create-admission sliding window (spec §4.5): more
// than MAX_CREATES_PER_MINUTE new-metric encounters within the trailing
// minute are dropped before ever touching the create bucket or database.
func (s *Scheduler) admit(name metric.Name) bool {
	return s.admission.Allow(time.Now())
}

func (s *Scheduler) createFile(name metric.Name) error {
	schemas := s.schemas.Current()

	archives, ok := matchStorage(schemas.Storage, name)
	if !ok {
		return fmt.Errorf("no storage schema matches %q", string(name))
	}
	xff, method, ok := matchAggregation(schemas.Aggregation, name)
	if !ok {
		return fmt.Errorf("no aggregation schema matches %q", string(name))
	}

	return s.db.Create(name, archives, xff, method)
}

func matchStorage(rules []schemaconf.StorageRule, name metric.Name) ([]rrdb.ArchiveSpec, bool) {
	for _, r := range rules {
		if r.Pattern.MatchString(string(name)) {
			return r.Archives, true
		}
	}
	return nil, false
}

func matchAggregation(rules []schemaconf.AggregationRule, name metric.Name) (float64, metric.AggregationMethod, bool) {
	for _, r := range rules {
		if r.Pattern.MatchString(string(name)) {
			return r.XFilesFactor, r.Method, true
		}
	}
	return 0, "", false
}

// slidingWindowCounter counts admitted events within a trailing duration
// window, rejecting once the limit is reached. Separate from
// ratelimit.TokenBucket (which governs the create bucket itself) per spec
// §4.5: "additionally enforces a fast fail-closed path independent of the
// bucket."
type slidingWindowCounter struct {
	mu       sync.Mutex
	window   time.Duration
	limit    float64
	events   []time.Time
}

func newSlidingWindowCounter(window time.Duration, limit float64) slidingWindowCounter {
	return slidingWindowCounter{window: window, limit: limit}
}

func (c *slidingWindowCounter) Allow(now time.Time) bool {
	if c.limit <= 0 {
		return true
	}
	if c.limit != c.limit { // NaN guard, unreachable in practice
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := now.Add(-c.window)
	kept := c.events[:0]
	for _, t := range c.events {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	c.events = kept

	if float64(len(c.events)) >= c.limit && !isInfLimit(c.limit) {
		return false
	}
	c.events = append(c.events, now)
	return true
}

func isInfLimit(limit float64) bool {
	return limit > 1e18
}
