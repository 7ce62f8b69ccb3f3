// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of carbond.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package router

import (
	"regexp"
	"sync"

	"github.com/carbond/carbond/internal/metric"
)

// Rule is one relay-rules entry: a regex pattern, its declared destination
// set, and whether it is the catch-all default rule.
//
// Grounded on original_source/lib/carbon/tests/test_routers.py (spec
// §12.4): a default rule is a normal rule carrying a boolean flag,
// evaluated only after every non-default rule has been tried in declared
// order — not a separate fallback list.
type Rule struct {
	Pattern      *regexp.Regexp
	Destinations []metric.Destination
	IsDefault    bool
}

// RelayRules is the ordered-rule Router variant (spec §4.4). GetDestinations
// intersects the matched rule's declared destinations with the router's
// live set — a destination removed with RemoveDestination (and not added
// back) contributes nothing.
type RelayRules struct {
	mu    sync.RWMutex
	rules []Rule
	live  map[metric.Destination]bool
}

// NewRelayRules constructs a RelayRules router from an ordered rule list.
// Every destination named by any rule starts out live; callers adjust
// liveness afterward with AddDestination/RemoveDestination.
func NewRelayRules(rules []Rule) *RelayRules {
	live := make(map[metric.Destination]bool)
	for _, r := range rules {
		for _, d := range r.Destinations {
			live[d] = true
		}
	}
	return &RelayRules{rules: rules, live: live}
}

// GetDestinations returns the live destinations of the first non-default
// rule (in declared order) whose pattern matches name; if none matches, it
// returns those of the first default rule, or nil when there is none.
func (r *RelayRules) GetDestinations(name metric.Name) map[metric.Destination]struct{} {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rule, ok := r.matchLocked(name)
	if !ok {
		return nil
	}

	out := make(map[metric.Destination]struct{}, len(rule.Destinations))
	for _, d := range rule.Destinations {
		if r.live[d] {
			out[d] = struct{}{}
		}
	}
	return out
}

func (r *RelayRules) matchLocked(name metric.Name) (Rule, bool) {
	var defaultRule Rule
	haveDefault := false
	for _, rule := range r.rules {
		if rule.IsDefault {
			if !haveDefault {
				defaultRule = rule
				haveDefault = true
			}
			continue
		}
		if rule.Pattern != nil && rule.Pattern.MatchString(string(name)) {
			return rule, true
		}
	}
	if haveDefault {
		return defaultRule, true
	}
	return Rule{}, false
}

// AddDestination marks d as live, making it eligible for any rule that
// names it.
func (r *RelayRules) AddDestination(d metric.Destination) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.live[d] = true
}

// RemoveDestination marks d as not live; rules naming it stop routing to
// it until it is re-added.
func (r *RelayRules) RemoveDestination(d metric.Destination) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.live, d)
}
