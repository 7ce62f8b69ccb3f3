// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of carbond.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package metric defines the plain data types shared by every stage of the
// ingestion pipeline: the metric name, a single sample, and a downstream
// destination. Apart from name validation and the AggregationMethod
// reductions, these types carry no behavior; the stages built on top of
// them (cache, aggregator, router, writer) own the rest of the logic.
package metric

import (
	"fmt"
	"unicode/utf8"
)

// MaxNameLength bounds a MetricName at the Ingress boundary. Names longer
// than this are rejected before they ever reach cache or aggregator state.
const MaxNameLength = 512

// Name is a dotted, case-sensitive, UTF-8 metric identifier. It doubles as
// the cache key and as the basis for the on-disk path (component-wise
// mapping to subdirectories, see internal/rrdb).
type Name string

// Validate reports whether n is an acceptable metric name: non-empty, valid
// UTF-8, and no longer than MaxNameLength bytes.
func (n Name) Validate() error {
	if len(n) == 0 {
		return fmt.Errorf("metric name: empty")
	}
	if len(n) > MaxNameLength {
		return fmt.Errorf("metric name %q: exceeds %d bytes", string(n), MaxNameLength)
	}
	if !utf8.ValidString(string(n)) {
		return fmt.Errorf("metric name %q: not valid UTF-8", string(n))
	}
	return nil
}

// Datapoint is a single (timestamp, value) sample. Value may be NaN only if
// the aggregation function in use tolerates it; the cache never stores a
// NaN-valued Datapoint.
type Datapoint struct {
	Timestamp int64
	Value     float64
}

// Destination identifies a downstream relay target. Equality is structural
// on all three fields.
type Destination struct {
	Host     string
	Port     int
	Instance string
}

func (d Destination) String() string {
	return fmt.Sprintf("%s:%d:%s", d.Host, d.Port, d.Instance)
}

// AggregationMethod names a reduction function over the values in one
// IntervalBuffer bin.
type AggregationMethod string

const (
	Sum   AggregationMethod = "sum"
	Avg   AggregationMethod = "avg"
	Min   AggregationMethod = "min"
	Max   AggregationMethod = "max"
	Last  AggregationMethod = "last"
	Count AggregationMethod = "count"
)

// Reduce applies the method to an ordered (arrival-order) slice of values.
// Callers never invoke Reduce on an empty slice; reduction is skipped while
// an IntervalBuffer is inactive.
func (m AggregationMethod) Reduce(values []float64) (float64, error) {
	if len(values) == 0 {
		return 0, fmt.Errorf("aggregation: Reduce called with no values")
	}
	switch m {
	case Sum:
		var s float64
		for _, v := range values {
			s += v
		}
		return s, nil
	case Avg:
		var s float64
		for _, v := range values {
			s += v
		}
		return s / float64(len(values)), nil
	case Min:
		lo := values[0]
		for _, v := range values[1:] {
			if v < lo {
				lo = v
			}
		}
		return lo, nil
	case Max:
		hi := values[0]
		for _, v := range values[1:] {
			if v > hi {
				hi = v
			}
		}
		return hi, nil
	case Last:
		return values[len(values)-1], nil
	case Count:
		return float64(len(values)), nil
	default:
		return 0, fmt.Errorf("aggregation: unknown method %q", string(m))
	}
}
