// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of carbond.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package router

import "github.com/carbond/carbond/internal/metric"

// AggregatedConsistentHashing wraps a ConsistentHashing ring and, in
// addition to the metric's own direct route, emits routes for each
// rule-derived aggregated metric name (spec §4.4).
type AggregatedConsistentHashing struct {
	*ConsistentHashing
	aggregatedNames func(metric.Name) []metric.Name
}

// NewAggregatedConsistentHashing wraps ring, deriving additional aggregated
// output names for a given input name via aggregatedNames (typically the
// same aggregator.RuleSet used by the BufferManager, so a metric's relay
// destinations include wherever its rolled-up form will land too).
func NewAggregatedConsistentHashing(ring *ConsistentHashing, aggregatedNames func(metric.Name) []metric.Name) *AggregatedConsistentHashing {
	return &AggregatedConsistentHashing{ConsistentHashing: ring, aggregatedNames: aggregatedNames}
}

// GetDestinations returns the union of the direct route for name and the
// routes for every aggregated name derived from it.
func (a *AggregatedConsistentHashing) GetDestinations(name metric.Name) map[metric.Destination]struct{} {
	out := a.ConsistentHashing.GetDestinations(name)
	if a.aggregatedNames == nil {
		return out
	}
	for _, agg := range a.aggregatedNames(name) {
		for d := range a.ConsistentHashing.GetDestinations(agg) {
			out[d] = struct{}{}
		}
	}
	return out
}
