// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of carbond.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package aggregator

import (
	"regexp"
	"testing"
	"time"

	"github.com/carbond/carbond/internal/eventbus"
	"github.com/carbond/carbond/internal/metric"
	"github.com/stretchr/testify/require"
)

func fooRules(frequency int64, method metric.AggregationMethod) RuleSet {
	return RuleSet{Rules: []Rule{
		{Pattern: regexp.MustCompile(`^foo$`), Frequency: frequency, Method: method},
	}}
}

// Spec §8 scenario 1: aggregation average over one bin.
func TestManager_AggregationAverageOverOneBin(t *testing.T) {
	bus := eventbus.New()
	var generated []struct {
		name metric.Name
		dp   metric.Datapoint
	}
	bus.OnMetricGenerated(func(name metric.Name, dp metric.Datapoint) {
		generated = append(generated, struct {
			name metric.Name
			dp   metric.Datapoint
		}{name, dp})
	})

	m, err := NewManager(fooRules(10, metric.Avg), bus)
	require.NoError(t, err)

	require.True(t, m.Submit("foo", metric.Datapoint{Timestamp: 100, Value: 1.0}))
	require.True(t, m.Submit("foo", metric.Datapoint{Timestamp: 105, Value: 3.0}))
	require.True(t, m.Submit("foo", metric.Datapoint{Timestamp: 109, Value: 5.0}))

	m.ComputeValueAt("foo", time.Unix(120, 0))

	require.Len(t, generated, 1)
	require.Equal(t, metric.Name("foo"), generated[0].name)
	require.Equal(t, int64(100), generated[0].dp.Timestamp)
	require.Equal(t, 3.0, generated[0].dp.Value)
}

// Spec §8 scenario 6: aging eviction.
func TestManager_AgingEviction(t *testing.T) {
	bus := eventbus.New()
	var generated int
	bus.OnMetricGenerated(func(metric.Name, metric.Datapoint) { generated++ })

	m, err := NewManager(fooRules(10, metric.Sum), bus, WithMaxAggregationIntervals(3))
	require.NoError(t, err)

	require.True(t, m.Submit("foo", metric.Datapoint{Timestamp: 0, Value: 1.0}))

	// now_bin=100, age_threshold=100-3*10=70; bin 0 < 70 -> evicted, no emit.
	m.ComputeValueAt("foo", time.Unix(100, 0))

	require.Equal(t, 0, generated)
}

func TestManager_UnmatchedMetricForwardsUnchanged(t *testing.T) {
	m, err := NewManager(fooRules(10, metric.Sum), eventbus.New())
	require.NoError(t, err)

	handled := m.Submit("bar", metric.Datapoint{Timestamp: 0, Value: 1.0})
	require.False(t, handled)
}

func TestManager_CurrentBinIsSkippedUntilItAges(t *testing.T) {
	bus := eventbus.New()
	var generated int
	bus.OnMetricGenerated(func(metric.Name, metric.Datapoint) { generated++ })

	m, err := NewManager(fooRules(10, metric.Sum), bus)
	require.NoError(t, err)

	require.True(t, m.Submit("foo", metric.Datapoint{Timestamp: 100, Value: 1.0}))

	// now_bin == bin_start == 100: still accumulating, must not emit.
	m.ComputeValueAt("foo", time.Unix(105, 0))
	require.Equal(t, 0, generated)
}

func TestManager_ReductionIsBinPureAcrossPermutations(t *testing.T) {
	for _, method := range []metric.AggregationMethod{metric.Sum, metric.Avg, metric.Min, metric.Max, metric.Count} {
		values := []float64{1.0, 3.0, 5.0}
		reversed := []float64{5.0, 3.0, 1.0}

		v1, err := method.Reduce(values)
		require.NoError(t, err)
		v2, err := method.Reduce(reversed)
		require.NoError(t, err)
		require.Equal(t, v1, v2, "method %s should be permutation-invariant", method)
	}

	// "last" depends on insertion order, not value order.
	last, err := metric.Last.Reduce([]float64{1.0, 3.0, 5.0})
	require.NoError(t, err)
	require.Equal(t, 5.0, last)
}
