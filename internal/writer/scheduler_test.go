// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of carbond.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package writer

import (
	"context"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/carbond/carbond/internal/cache"
	"github.com/carbond/carbond/internal/config"
	"github.com/carbond/carbond/internal/eventbus"
	"github.com/carbond/carbond/internal/instrumentation"
	"github.com/carbond/carbond/internal/metric"
	"github.com/carbond/carbond/internal/rrdb"
	"github.com/carbond/carbond/internal/schemaconf"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

type fakeDB struct {
	mu      sync.Mutex
	created map[metric.Name]bool
	updated map[metric.Name]int
}

func newFakeDB() *fakeDB {
	return &fakeDB{created: map[metric.Name]bool{}, updated: map[metric.Name]int{}}
}

func (f *fakeDB) Exists(name metric.Name) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created[name]
}

func (f *fakeDB) Create(name metric.Name, archives []rrdb.ArchiveSpec, xff float64, method metric.AggregationMethod) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created[name] = true
	return nil
}

func (f *fakeDB) UpdateMany(name metric.Name, points []metric.Datapoint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updated[name] += len(points)
	return nil
}

func (f *fakeDB) createCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

func fixedSchemas() *config.SchemaSet {
	return &config.SchemaSet{
		Storage: []schemaconf.StorageRule{
			{Name: "default", Pattern: regexp.MustCompile(".*"), Archives: []rrdb.ArchiveSpec{{ResolutionSeconds: 10, RetentionPoints: 100}}},
		},
		Aggregation: []schemaconf.AggregationRule{
			{Name: "default", Pattern: regexp.MustCompile(".*"), XFilesFactor: 0.5, Method: metric.Avg},
		},
	}
}

type staticSchemas struct{ s *config.SchemaSet }

func (s staticSchemas) Current() *config.SchemaSet { return s.s }

func TestScheduler_CreateRateLimiting(t *testing.T) {
	c := cache.New(0, cache.StrategySorted, eventbus.New())
	for _, name := range []string{"a", "b", "c", "d"} {
		c.Store(metric.Name(name), metric.Datapoint{Timestamp: 100, Value: 1})
	}

	db := newFakeDB()
	instr := instrumentation.New(prometheus.NewRegistry())
	cfg := &config.Config{
		MaxCreatesPerMinute:  2,
		MaxUpdatesPerSecond:  1e19, // effectively unlimited for this test
		ReloadIntervalSeconds: 60,
	}
	sched := New(c, db, staticSchemas{fixedSchemas()}, instr, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for !c.Empty() {
		select {
		case <-ctx.Done():
			t.Fatal("timed out draining cache")
		default:
		}
		name, points, ok := c.DrainMetric()
		if !ok {
			continue
		}
		sched.commit(ctx, name, points)
	}

	require.Equal(t, 2, db.createCount())
	require.EqualValues(t, 2, testCounterValue(t, instr.DroppedCreates))
}

func testCounterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}
