// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of carbond.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package aggregator

import (
	"regexp"
	"strings"

	"github.com/carbond/carbond/internal/metric"
)

// Rule is one aggregation-schema entry: a regex pattern and the reduction
// parameters it assigns to any metric it matches. OutputTemplate may embed
// "{name}" to rename the emitted metric (e.g. "stats.{name}.avg"); an empty
// template emits under the original name.
type Rule struct {
	Pattern        *regexp.Regexp
	Frequency      int64
	Method         metric.AggregationMethod
	OutputTemplate string
}

// OutputName renders the rule's output name for a matched input name.
func (r Rule) OutputName(name metric.Name) metric.Name {
	if r.OutputTemplate == "" {
		return name
	}
	return metric.Name(strings.ReplaceAll(r.OutputTemplate, "{name}", string(name)))
}

// RuleSet is an ordered list of aggregation rules; first match wins.
type RuleSet struct {
	Rules []Rule
}

// Match returns the first rule whose pattern matches name, in declared
// order. ok is false if no rule matches, meaning the sample should be
// forwarded unchanged with no aggregation (spec §4.3 step 2).
func (rs RuleSet) Match(name metric.Name) (Rule, bool) {
	for _, r := range rs.Rules {
		if r.Pattern.MatchString(string(name)) {
			return r, true
		}
	}
	return Rule{}, false
}
