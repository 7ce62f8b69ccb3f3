// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of carbond.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package instrumentation is the named-counter / gauge / periodic
// self-report sink every other component publishes into (spec §2's
// Instrumentation row, exercised throughout §4).
//
// Grounded on original_source/carbon/aggregator/buffers.py's
// instrumentation.configure_stats/increment/append calls (one counter per
// name used here) and on the teacher's MemoryUsageTracker periodic
// cclog.Infof self-report in pkg/metricstore/metricstore.go. Unlike the
// teacher, which uses prometheus/client_golang only as a PromQL query
// client, this package uses it in its more common exporter role via
// promauto (spec_full §11).
package instrumentation

import (
	"context"
	"time"

	"github.com/carbond/carbond/pkg/log"
	"github.com/go-co-op/gocron/v2"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Instrumentation holds every counter, gauge, and histogram the core
// publishes to, plus a periodic self-report task.
type Instrumentation struct {
	WriteRatelimitExceeded  prometheus.Counter
	CreateRatelimitExceeded prometheus.Counter
	MetricCreateErrors      prometheus.Counter
	WriteErrors             prometheus.Counter
	DroppedCreates          prometheus.Counter
	DatapointsWritten       prometheus.Counter
	WriteOperations         prometheus.Counter
	WriteMicroseconds       prometheus.Histogram
	DatapointsPerWrite      prometheus.Histogram
	ComputeValueMicroseconds prometheus.Histogram

	CacheSize prometheus.Gauge

	scheduler gocron.Scheduler
	interval  time.Duration
}

// New constructs an Instrumentation registering every metric against reg.
// Pass prometheus.DefaultRegisterer for the global registry, or a fresh
// *prometheus.Registry in tests to avoid collisions across table-driven
// cases.
func New(reg prometheus.Registerer) *Instrumentation {
	f := promauto.With(reg)
	return &Instrumentation{
		WriteRatelimitExceeded: f.NewCounter(prometheus.CounterOpts{
			Name: "carbond_write_ratelimit_exceeded_total",
			Help: "Number of times the update-rate token bucket denied a write attempt.",
		}),
		CreateRatelimitExceeded: f.NewCounter(prometheus.CounterOpts{
			Name: "carbond_create_ratelimit_exceeded_total",
			Help: "Number of times the create-rate token bucket denied a file creation.",
		}),
		MetricCreateErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "carbond_metric_create_errors_total",
			Help: "Number of database.create calls that returned an error.",
		}),
		WriteErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "carbond_write_errors_total",
			Help: "Number of database.update_many calls that returned an error.",
		}),
		DroppedCreates: f.NewCounter(prometheus.CounterOpts{
			Name: "carbond_dropped_creates_total",
			Help: "Number of new-metric datapoints dropped by cache or soft create admission.",
		}),
		DatapointsWritten: f.NewCounter(prometheus.CounterOpts{
			Name: "carbond_datapoints_written_total",
			Help: "Total datapoints successfully committed to the database.",
		}),
		WriteOperations: f.NewCounter(prometheus.CounterOpts{
			Name: "carbond_write_operations_total",
			Help: "Total successful database.update_many calls.",
		}),
		WriteMicroseconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "carbond_write_microseconds",
			Help:    "Elapsed time of database.update_many calls.",
			Buckets: prometheus.ExponentialBuckets(10, 2, 16),
		}),
		DatapointsPerWrite: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "carbond_datapoints_per_write",
			Help:    "Number of datapoints committed per database.update_many call.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		ComputeValueMicroseconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "carbond_aggregation_compute_value_microseconds",
			Help:    "Elapsed time of one aggregator compute_value tick.",
			Buckets: prometheus.ExponentialBuckets(10, 2, 16),
		}),
		CacheSize: f.NewGauge(prometheus.GaugeOpts{
			Name: "carbond_cache_size",
			Help: "Total pending datapoints across all cache entries.",
		}),
		interval: 60 * time.Second,
	}
}

// ObserveComputeValueMicroseconds records one aggregator tick's duration.
func (i *Instrumentation) ObserveComputeValueMicroseconds(us int64) {
	i.ComputeValueMicroseconds.Observe(float64(us))
}

// ObserveWrite records one successful database.update_many call.
func (i *Instrumentation) ObserveWrite(points int, elapsed time.Duration) {
	i.DatapointsWritten.Add(float64(points))
	i.WriteOperations.Inc()
	i.WriteMicroseconds.Observe(float64(elapsed.Microseconds()))
	i.DatapointsPerWrite.Observe(float64(points))
}

// StartSelfReport schedules a periodic log line reporting the CacheSize
// gauge, mirroring the teacher's MemoryUsageTracker.
func (i *Instrumentation) StartSelfReport(interval time.Duration) error {
	if interval <= 0 {
		interval = i.interval
	}
	sched, err := gocron.NewScheduler()
	if err != nil {
		return err
	}
	if _, err := sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(i.selfReport),
	); err != nil {
		return err
	}
	i.scheduler = sched
	sched.Start()
	return nil
}

func (i *Instrumentation) selfReport() {
	log.Infof("instrumentation: cache_size=%d", int(readGauge(i.CacheSize)))
}

// Shutdown stops the self-report scheduler, if started.
func (i *Instrumentation) Shutdown(ctx context.Context) error {
	if i.scheduler == nil {
		return nil
	}
	return i.scheduler.Shutdown()
}

func readGauge(g prometheus.Gauge) float64 {
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		return 0
	}
	return m.GetGauge().GetValue()
}
