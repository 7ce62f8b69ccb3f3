// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of carbond.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package ratelimit provides the generic rate limiter used throughout the
// write path: a capacity-and-fill-rate token bucket wrapping
// golang.org/x/time/rate. A bucket with an infinite rate never blocks and
// never denies, matching the "infinity disables" convention of the
// MAX_CREATES_PER_MINUTE / MAX_UPDATES_PER_SECOND config keys.
package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// burstOf converts a float64 capacity into the int burst rate.Limiter wants,
// treating +Inf (the "disabled" convention for MAX_CREATES_PER_MINUTE /
// MAX_UPDATES_PER_SECOND) as the largest representable burst.
func burstOf(capacity float64) int {
	if math.IsInf(capacity, 1) || capacity > float64(math.MaxInt32) {
		return math.MaxInt32
	}
	return int(capacity)
}

// TokenBucket is a thread-safe leaky bucket: capacity C, fill rate r
// tokens/second. Drain(n) credits the bucket since the last observation,
// then either takes n tokens and returns true, or leaves the level
// unchanged and returns false.
type TokenBucket struct {
	mu  sync.Mutex
	lim *rate.Limiter
}

// New constructs a TokenBucket with the given capacity and fill rate
// (tokens/second). A capacity or rate of rate.Inf disables limiting.
func New(capacity float64, fillRate float64) *TokenBucket {
	return &TokenBucket{
		lim: rate.NewLimiter(rate.Limit(fillRate), burstOf(capacity)),
	}
}

// Drain attempts to take n tokens immediately. It returns true and
// decrements the level if n tokens are available after crediting elapsed
// fill since the last observation; otherwise it returns false without
// mutating the level.
func (b *TokenBucket) Drain(n int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lim.AllowN(time.Now(), n)
}

// waitPollInterval bounds each sleep inside WaitFor, so a SetRate made while
// a caller is waiting takes effect within one interval.
const waitPollInterval = 10 * time.Millisecond

// WaitFor blocks the caller until n tokens are available, retrying Drain
// every waitPollInterval, or until ctx is done. If n exceeds the bucket's
// capacity, WaitFor returns only when ctx is done.
func (b *TokenBucket) WaitFor(ctx context.Context, n int) error {
	for !b.Drain(n) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitPollInterval):
		}
	}
	return nil
}

// SetRate mutates the bucket's fill rate and burst capacity in place. Any
// in-flight WaitFor observes the new rate at its next retry — this is how the
// writer's shutdown drain bumps the update bucket without swapping in a new
// bucket (spec §4.5, §12.5).
func (b *TokenBucket) SetRate(fillRate float64, capacity float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lim.SetLimit(rate.Limit(fillRate))
	b.lim.SetBurst(burstOf(capacity))
}
