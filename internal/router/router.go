// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of carbond.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package router implements the three Router variants of spec §4.4:
// RelayRules (ordered regex rules), ConsistentHashing (rendezvous-hash
// ring), and AggregatedConsistentHashing (the latter plus aggregated-name
// fan-out). All three share the Router interface so WriteScheduler-adjacent
// code can be wired to any of them interchangeably.
package router

import "github.com/carbond/carbond/internal/metric"

// Router maps a metric name to the set of destinations it should be
// relayed to.
type Router interface {
	GetDestinations(name metric.Name) map[metric.Destination]struct{}
	AddDestination(d metric.Destination)
	RemoveDestination(d metric.Destination)
}
