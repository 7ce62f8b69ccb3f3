// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of carbond.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cache

import (
	"sync"
	"testing"

	"github.com/carbond/carbond/internal/eventbus"
	"github.com/carbond/carbond/internal/metric"
	"github.com/stretchr/testify/require"
)

func TestCache_StoreThenPopRoundTrips(t *testing.T) {
	c := New(0, StrategyMax, nil)
	dp := metric.Datapoint{Timestamp: 1, Value: 42}
	require.True(t, c.Store("m", dp))

	got, err := c.Pop("m")
	require.NoError(t, err)
	require.Equal(t, []metric.Datapoint{dp}, got)
}

func TestCache_PopMissingReturnsNotFound(t *testing.T) {
	c := New(0, StrategyMax, nil)
	_, err := c.Pop("missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCache_SizeEqualsSumOfEntries(t *testing.T) {
	c := New(0, StrategyMax, nil)
	c.Store("a", metric.Datapoint{Timestamp: 1})
	c.Store("a", metric.Datapoint{Timestamp: 2})
	c.Store("b", metric.Datapoint{Timestamp: 3})
	require.Equal(t, 3, c.Size())

	_, err := c.Pop("a")
	require.NoError(t, err)
	require.Equal(t, 1, c.Size())

	_, err = c.Pop("b")
	require.NoError(t, err)
	require.Equal(t, 0, c.Size())
}

// Spec §8 scenario 3: cache-full backpressure.
func TestCache_CacheFullBackpressure(t *testing.T) {
	bus := eventbus.New()
	var fullFired, spaceFired bool
	bus.OnCacheFull(func() { fullFired = true })
	bus.OnCacheSpaceAvailable(func() { spaceFired = true })

	c := New(10, StrategyMax, bus)
	for i := 0; i < 11; i++ {
		require.True(t, c.Store("x", metric.Datapoint{Timestamp: int64(i)}))
	}
	require.True(t, fullFired)
	require.True(t, c.TooFull())

	// A brand-new metric is dropped while too_full.
	accepted := c.Store("y", metric.Datapoint{Timestamp: 0})
	require.False(t, accepted)
	require.EqualValues(t, 1, c.DroppedCreates())

	// Drain x below the low watermark (0.95 * 10 = 9.5).
	points, err := c.Pop("x")
	require.NoError(t, err)
	require.Len(t, points, 11)
	require.False(t, c.TooFull())
	require.True(t, spaceFired)

	// y is accepted again now that too_full has cleared.
	require.True(t, c.Store("y", metric.Datapoint{Timestamp: 1}))
}

func TestCache_DrainMetric_MaxStrategyPicksLargest(t *testing.T) {
	c := New(0, StrategyMax, nil)
	c.Store("small", metric.Datapoint{Timestamp: 1})
	c.Store("big", metric.Datapoint{Timestamp: 1})
	c.Store("big", metric.Datapoint{Timestamp: 2})
	c.Store("big", metric.Datapoint{Timestamp: 3})

	name, points, ok := c.DrainMetric()
	require.True(t, ok)
	require.Equal(t, metric.Name("big"), name)
	require.Len(t, points, 3)
}

func TestCache_DrainMetric_SortedStrategyCyclesInNameOrder(t *testing.T) {
	c := New(0, StrategySorted, nil)
	c.Store("b", metric.Datapoint{})
	c.Store("a", metric.Datapoint{})
	c.Store("c", metric.Datapoint{})

	first, _, ok := c.DrainMetric()
	require.True(t, ok)
	require.Equal(t, metric.Name("a"), first)

	c.Store("a", metric.Datapoint{})
	second, _, ok := c.DrainMetric()
	require.True(t, ok)
	require.Equal(t, metric.Name("b"), second)
}

func TestCache_DrainMetric_EmptyCacheReturnsNotOK(t *testing.T) {
	c := New(0, StrategyMax, nil)
	_, _, ok := c.DrainMetric()
	require.False(t, ok)
}

func TestCache_ConcurrentStoreAndPop(t *testing.T) {
	c := New(0, StrategyMax, nil)
	const metrics = 20
	const perMetric = 100

	var wg sync.WaitGroup
	for i := 0; i < metrics; i++ {
		name := metric.Name(string(rune('a' + i)))
		wg.Add(1)
		go func(name metric.Name) {
			defer wg.Done()
			for j := 0; j < perMetric; j++ {
				c.Store(name, metric.Datapoint{Timestamp: int64(j)})
			}
		}(name)
	}
	wg.Wait()

	require.Equal(t, metrics*perMetric, c.Size())

	total := 0
	for i := 0; i < metrics; i++ {
		name := metric.Name(string(rune('a' + i)))
		points, err := c.Pop(name)
		require.NoError(t, err)
		total += len(points)
	}
	require.Equal(t, metrics*perMetric, total)
	require.True(t, c.Empty())
}
