// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of carbond.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package schemaconf

import (
	"strings"
	"testing"

	"github.com/carbond/carbond/internal/metric"
	"github.com/stretchr/testify/require"
)

func TestParseStorageSchemas(t *testing.T) {
	src := `
[carbon]
pattern = ^carbon\.
retentions = 60:90, 300:90

[default]
pattern = .*
retentions = 10:2160
`
	rules, err := ParseStorageSchemas(strings.NewReader(src))
	require.NoError(t, err)
	require.Len(t, rules, 2)
	require.Equal(t, "carbon", rules[0].Name)
	require.Len(t, rules[0].Archives, 2)
	require.EqualValues(t, 60, rules[0].Archives[0].ResolutionSeconds)
	require.True(t, rules[1].Pattern.MatchString("anything"))
}

func TestParseAggregationSchemas(t *testing.T) {
	src := `
[minutely]
pattern = ^stats\.
frequency = 60
xFilesFactor = 0.5
aggregationMethod = avg
`
	rules, err := ParseAggregationSchemas(strings.NewReader(src))
	require.NoError(t, err)
	require.Len(t, rules, 1)
	require.Equal(t, int64(60), rules[0].Frequency)
	require.Equal(t, metric.Avg, rules[0].Method)

	binning := BinningRules(rules)
	require.Len(t, binning.Rules, 1)
}

func TestParseAggregationSchemas_RejectsUnknownMethod(t *testing.T) {
	src := `
[bad]
pattern = .*
xFilesFactor = 0.5
aggregationMethod = bogus
`
	_, err := ParseAggregationSchemas(strings.NewReader(src))
	require.Error(t, err)
}

func TestParseRelayRules_DefaultAndExplicit(t *testing.T) {
	src := `
[foo]
pattern = ^foo
destinations = 127.0.0.1:2004:a

[fallback]
default = true
destinations = 127.0.0.1:2004:a, 127.0.0.1:2004:b
`
	rules, err := ParseRelayRules(strings.NewReader(src))
	require.NoError(t, err)
	require.Len(t, rules, 2)
	require.False(t, rules[0].IsDefault)
	require.True(t, rules[1].IsDefault)
	require.Len(t, rules[1].Destinations, 2)
}

func TestParseSections_RepeatedKeyAcrossSectionsIsLegal(t *testing.T) {
	src := `
[a]
pattern = ^a
destinations = h:1:a

[b]
pattern = ^b
destinations = h:1:b
`
	rules, err := ParseRelayRules(strings.NewReader(src))
	require.NoError(t, err)
	require.Len(t, rules, 2)
}

func TestParseSections_KeyOutsideSectionFails(t *testing.T) {
	_, err := parseSections(strings.NewReader("pattern = ^a\n"))
	require.Error(t, err)
}
