// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of carbond.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package schemaconf parses the three line-oriented, section-per-rule
// schema files named in spec §6: storage schemas, aggregation schemas, and
// relay rules. The format looks INI-like but is not strict INI — the same
// key can legally repeat across different rule sections, which a generic
// INI library would either reject or silently keep only the last of; a
// small hand-rolled scanner avoids that mismatch (DESIGN.md justifies the
// standard-library-only choice for this package).
package schemaconf

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/carbond/carbond/internal/aggregator"
	"github.com/carbond/carbond/internal/metric"
	"github.com/carbond/carbond/internal/router"
	"github.com/carbond/carbond/internal/rrdb"
)

// section is one [name] block's raw key/value pairs, in file order.
type section struct {
	name   string
	fields map[string]string
}

// parseSections scans r into an ordered list of [name] sections. Comment
// lines start with '#' or ';'; blank lines are ignored. A repeated key
// within the same section keeps its last value; the same key repeating
// across different sections is expected and unremarkable.
func parseSections(r io.Reader) ([]section, error) {
	scanner := bufio.NewScanner(r)
	var sections []section
	var cur *section
	lineNo := 0

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			sections = append(sections, section{name: strings.TrimSpace(line[1 : len(line)-1]), fields: map[string]string{}})
			cur = &sections[len(sections)-1]
			continue
		}
		if cur == nil {
			return nil, fmt.Errorf("schemaconf: line %d: key/value outside any [section]", lineNo)
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("schemaconf: line %d: expected 'key = value'", lineNo)
		}
		cur.fields[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return sections, nil
}

// StorageRule is one parsed storage-schemas.conf section.
type StorageRule struct {
	Name     string
	Pattern  *regexp.Regexp
	Archives []rrdb.ArchiveSpec
}

// ParseStorageSchemas parses a storage-schemas.conf-style file: sections
// declaring name, pattern, and a comma-separated retentions list of
// resolution:retention pairs.
func ParseStorageSchemas(r io.Reader) ([]StorageRule, error) {
	sections, err := parseSections(r)
	if err != nil {
		return nil, err
	}
	rules := make([]StorageRule, 0, len(sections))
	for _, s := range sections {
		pat, err := regexp.Compile(s.fields["pattern"])
		if err != nil {
			return nil, fmt.Errorf("schemaconf: section %q: pattern: %w", s.name, err)
		}
		archives, err := parseRetentions(s.fields["retentions"])
		if err != nil {
			return nil, fmt.Errorf("schemaconf: section %q: retentions: %w", s.name, err)
		}
		if len(archives) == 0 {
			return nil, fmt.Errorf("schemaconf: section %q: retentions: at least one archive required", s.name)
		}
		rules = append(rules, StorageRule{Name: s.name, Pattern: pat, Archives: archives})
	}
	return rules, nil
}

func parseRetentions(raw string) ([]rrdb.ArchiveSpec, error) {
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	out := make([]rrdb.ArchiveSpec, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		resStr, retStr, ok := strings.Cut(p, ":")
		if !ok {
			return nil, fmt.Errorf("expected 'resolution:retention', got %q", p)
		}
		res, err := strconv.ParseInt(strings.TrimSpace(resStr), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("resolution %q: %w", resStr, err)
		}
		ret, err := strconv.ParseInt(strings.TrimSpace(retStr), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("retention %q: %w", retStr, err)
		}
		out = append(out, rrdb.ArchiveSpec{ResolutionSeconds: res, RetentionPoints: ret})
	}
	return out, nil
}

// AggregationRule is one parsed aggregation-schemas.conf section. It
// serves two distinct consumers (an intentional extension beyond the
// literal spec §6 text, recorded in DESIGN.md): the writer reads
// XFilesFactor/Method when creating a file (spec §4.5 step 3), and the
// aggregator's BufferManager reads Frequency/Method to bin samples (spec
// §4.3) whenever Frequency is set. A section with no "frequency" key only
// affects storage propagation, not binning.
type AggregationRule struct {
	Name          string
	Pattern       *regexp.Regexp
	Frequency     int64
	XFilesFactor  float64
	Method        metric.AggregationMethod
}

// ParseAggregationSchemas parses an aggregation-schemas.conf-style file.
func ParseAggregationSchemas(r io.Reader) ([]AggregationRule, error) {
	sections, err := parseSections(r)
	if err != nil {
		return nil, err
	}
	rules := make([]AggregationRule, 0, len(sections))
	for _, s := range sections {
		pat, err := regexp.Compile(s.fields["pattern"])
		if err != nil {
			return nil, fmt.Errorf("schemaconf: section %q: pattern: %w", s.name, err)
		}
		xff, err := strconv.ParseFloat(s.fields["xFilesFactor"], 64)
		if err != nil {
			return nil, fmt.Errorf("schemaconf: section %q: xFilesFactor: %w", s.name, err)
		}
		method := metric.AggregationMethod(s.fields["aggregationMethod"])
		if _, err := method.Reduce([]float64{1}); err != nil {
			return nil, fmt.Errorf("schemaconf: section %q: aggregationMethod: %w", s.name, err)
		}
		var freq int64
		if raw, ok := s.fields["frequency"]; ok && raw != "" {
			freq, err = strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("schemaconf: section %q: frequency: %w", s.name, err)
			}
		}
		rules = append(rules, AggregationRule{Name: s.name, Pattern: pat, Frequency: freq, XFilesFactor: xff, Method: method})
	}
	return rules, nil
}

// BinningRules projects the subset of rules that carry a binning frequency
// into an aggregator.RuleSet, in file order (first match wins).
func BinningRules(rules []AggregationRule) aggregator.RuleSet {
	rs := aggregator.RuleSet{}
	for _, r := range rules {
		if r.Frequency == 0 {
			continue
		}
		rs.Rules = append(rs.Rules, aggregator.Rule{
			Pattern:   r.Pattern,
			Frequency: r.Frequency,
			Method:    r.Method,
		})
	}
	return rs
}

// RelayRule is one parsed relay-rules.conf section.
type RelayRule struct {
	Name         string
	Pattern      *regexp.Regexp
	Destinations []metric.Destination
	IsDefault    bool
}

// ParseRelayRules parses a relay-rules.conf-style file: sections declaring
// pattern, a comma-separated destinations list of host:port:instance
// triples, and an optional boolean default flag (spec §6, §12.4).
func ParseRelayRules(r io.Reader) ([]RelayRule, error) {
	sections, err := parseSections(r)
	if err != nil {
		return nil, err
	}
	rules := make([]RelayRule, 0, len(sections))
	for _, s := range sections {
		isDefault := strings.EqualFold(s.fields["default"], "true")

		var pat *regexp.Regexp
		if raw, ok := s.fields["pattern"]; ok && raw != "" {
			pat, err = regexp.Compile(raw)
			if err != nil {
				return nil, fmt.Errorf("schemaconf: section %q: pattern: %w", s.name, err)
			}
		} else if !isDefault {
			return nil, fmt.Errorf("schemaconf: section %q: pattern required for non-default rules", s.name)
		}

		dests, err := parseDestinations(s.fields["destinations"])
		if err != nil {
			return nil, fmt.Errorf("schemaconf: section %q: destinations: %w", s.name, err)
		}
		rules = append(rules, RelayRule{Name: s.name, Pattern: pat, Destinations: dests, IsDefault: isDefault})
	}
	return rules, nil
}

func parseDestinations(raw string) ([]metric.Destination, error) {
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	out := make([]metric.Destination, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		fields := strings.Split(p, ":")
		if len(fields) != 3 {
			return nil, fmt.Errorf("expected 'host:port:instance', got %q", p)
		}
		port, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, fmt.Errorf("port %q: %w", fields[1], err)
		}
		out = append(out, metric.Destination{Host: fields[0], Port: port, Instance: fields[2]})
	}
	return out, nil
}

// ToRouterRules converts parsed relay rules into router.Rule values.
func ToRouterRules(rules []RelayRule) []router.Rule {
	out := make([]router.Rule, 0, len(rules))
	for _, r := range rules {
		out = append(out, router.Rule{Pattern: r.Pattern, Destinations: r.Destinations, IsDefault: r.IsDefault})
	}
	return out
}
