// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of carbond.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package eventbus is the process-wide fan-out for the handful of named
// events the core publishes: metric_received, metric_generated, cache_full,
// cache_space_available, pause_receiving, resume_receiving.
//
// Per spec §9's redesign note, this is a typed publish/subscribe — one
// method and one handler slice per event — not a string-keyed dynamic
// dispatch table. The cache and aggregator each hold a *Bus and publish
// into it; the Bus itself knows nothing about cache or aggregator
// internals (the one-way dependency the spec asks for).
package eventbus

import (
	"sync"

	"github.com/carbond/carbond/internal/metric"
)

// MetricReceivedHandler observes a raw sample as it enters the pipeline.
type MetricReceivedHandler func(name metric.Name, dp metric.Datapoint)

// MetricGeneratedHandler observes an aggregator-emitted datapoint.
type MetricGeneratedHandler func(name metric.Name, dp metric.Datapoint)

// VoidHandler observes a signal event carrying no payload.
type VoidHandler func()

// Bus is a tiny synchronous publish/subscribe. Subscribers for a given
// event are invoked in registration order, on the publisher's goroutine.
type Bus struct {
	mu sync.RWMutex

	metricReceived  []MetricReceivedHandler
	metricGenerated []MetricGeneratedHandler
	cacheFull       []VoidHandler
	cacheSpaceAvail []VoidHandler
	pauseReceiving  []VoidHandler
	resumeReceiving []VoidHandler
}

// New returns an empty event bus.
func New() *Bus {
	return &Bus{}
}

func (b *Bus) OnMetricReceived(h MetricReceivedHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.metricReceived = append(b.metricReceived, h)
}

func (b *Bus) OnMetricGenerated(h MetricGeneratedHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.metricGenerated = append(b.metricGenerated, h)
}

func (b *Bus) OnCacheFull(h VoidHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cacheFull = append(b.cacheFull, h)
}

func (b *Bus) OnCacheSpaceAvailable(h VoidHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cacheSpaceAvail = append(b.cacheSpaceAvail, h)
}

func (b *Bus) OnPauseReceiving(h VoidHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pauseReceiving = append(b.pauseReceiving, h)
}

func (b *Bus) OnResumeReceiving(h VoidHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resumeReceiving = append(b.resumeReceiving, h)
}

func (b *Bus) PublishMetricReceived(name metric.Name, dp metric.Datapoint) {
	b.mu.RLock()
	handlers := b.metricReceived
	b.mu.RUnlock()
	for _, h := range handlers {
		h(name, dp)
	}
}

func (b *Bus) PublishMetricGenerated(name metric.Name, dp metric.Datapoint) {
	b.mu.RLock()
	handlers := b.metricGenerated
	b.mu.RUnlock()
	for _, h := range handlers {
		h(name, dp)
	}
}

func (b *Bus) PublishCacheFull() {
	b.mu.RLock()
	handlers := b.cacheFull
	b.mu.RUnlock()
	for _, h := range handlers {
		h()
	}
}

func (b *Bus) PublishCacheSpaceAvailable() {
	b.mu.RLock()
	handlers := b.cacheSpaceAvail
	b.mu.RUnlock()
	for _, h := range handlers {
		h()
	}
}

func (b *Bus) PublishPauseReceiving() {
	b.mu.RLock()
	handlers := b.pauseReceiving
	b.mu.RUnlock()
	for _, h := range handlers {
		h()
	}
}

func (b *Bus) PublishResumeReceiving() {
	b.mu.RLock()
	handlers := b.resumeReceiving
	b.mu.RUnlock()
	for _, h := range handlers {
		h()
	}
}
