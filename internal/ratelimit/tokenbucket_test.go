// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of carbond.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTokenBucket_DrainRespectsCapacity(t *testing.T) {
	b := New(3, 0)
	require.True(t, b.Drain(1))
	require.True(t, b.Drain(1))
	require.True(t, b.Drain(1))
	require.False(t, b.Drain(1))
}

func TestTokenBucket_DrainNeverExceedsCapacityPlusFill(t *testing.T) {
	// Spec §8: "for any interleaving, total successful drain(1) count over a
	// window T never exceeds capacity + T*rate."
	const capacity = 5.0
	const fillRate = 50.0 // tokens/sec
	b := New(capacity, fillRate)

	var successes int64
	var wg sync.WaitGroup
	start := time.Now()
	const window = 100 * time.Millisecond
	deadline := start.Add(window)

	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(deadline) {
				if b.Drain(1) {
					atomic.AddInt64(&successes, 1)
				}
			}
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	maxAllowed := capacity + elapsed.Seconds()*fillRate + 1 // +1 rounding slack
	require.LessOrEqual(t, float64(atomic.LoadInt64(&successes)), maxAllowed)
}

func TestTokenBucket_WaitForBlocksUntilAvailable(t *testing.T) {
	b := New(1, 10) // refills in 100ms
	require.True(t, b.Drain(1))
	require.False(t, b.Drain(1))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	start := time.Now()
	require.NoError(t, b.WaitFor(ctx, 1))
	require.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestTokenBucket_SetRateAffectsInFlightWait(t *testing.T) {
	// Mirrors spec §12.5: shutdown bumps the rate of the existing bucket,
	// not a replacement bucket, so an in-flight WaitFor sees the new rate.
	b := New(1, 0.1) // near-zero fill rate
	require.True(t, b.Drain(1))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- b.WaitFor(ctx, 1)
	}()

	time.Sleep(20 * time.Millisecond)
	b.SetRate(1000, 1000)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("WaitFor did not observe the rate bump in time")
	}
}

func TestTokenBucket_InfiniteCapacityNeverDenies(t *testing.T) {
	b := New(float64(int(^uint(0)>>1)), 1e9)
	for i := 0; i < 1000; i++ {
		require.True(t, b.Drain(1))
	}
}
