// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of carbond.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package router

import (
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/carbond/carbond/internal/metric"
	rendezvous "github.com/dgryski/go-rendezvous"
)

// virtualNodesPerDestination is the number of ring positions hashed per
// physical destination, smoothing key distribution across destinations of
// otherwise-identical weight.
const virtualNodesPerDestination = 100

// fnv64a is the deterministic-across-restarts hash used to score ring
// positions (spec §4.4: "a 16-bit short hash (implementer choice, but must
// be deterministic across restarts)" — we use a full 64-bit FNV-1a digest,
// truncation would only narrow the score space without changing the
// stability guarantee).
func fnv64a(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}

// ConsistentHashing is the rendezvous-hash-ring Router variant (spec
// §4.4). It returns the first REPLICATION_FACTOR distinct physical
// destinations a metric name ranks highest against, using
// github.com/dgryski/go-rendezvous for the underlying HRW scoring.
type ConsistentHashing struct {
	mu                sync.RWMutex
	replicationFactor int
	labels            []string
	labelDest         map[string]metric.Destination
}

// NewConsistentHashing constructs an empty ring with the given replication
// factor (distinct destinations returned per metric).
func NewConsistentHashing(replicationFactor int) *ConsistentHashing {
	if replicationFactor < 1 {
		replicationFactor = 1
	}
	return &ConsistentHashing{
		replicationFactor: replicationFactor,
		labelDest:         make(map[string]metric.Destination),
	}
}

// GetDestinations returns the first R distinct physical destinations
// encountered walking the ring from hash(metric), per spec §4.4.
func (c *ConsistentHashing) GetDestinations(name metric.Name) map[metric.Destination]struct{} {
	c.mu.RLock()
	remaining := append([]string(nil), c.labels...)
	labelDest := c.labelDest
	r := c.replicationFactor
	c.mu.RUnlock()

	result := make(map[metric.Destination]struct{}, r)
	if len(remaining) == 0 {
		return result
	}

	seen := make(map[metric.Destination]bool, r)
	for len(result) < r && len(remaining) > 0 {
		ring := rendezvous.New(remaining, fnv64a)
		top := ring.Lookup(string(name))
		dest := labelDest[top]

		if !seen[dest] {
			seen[dest] = true
			result[dest] = struct{}{}
		}

		next := remaining[:0]
		for _, l := range remaining {
			if labelDest[l] != dest {
				next = append(next, l)
			}
		}
		remaining = next
	}
	return result
}

// AddDestination adds d's virtual nodes to the ring.
func (c *ConsistentHashing) AddDestination(d metric.Destination) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := 0; i < virtualNodesPerDestination; i++ {
		label := vnodeLabel(d, i)
		if _, exists := c.labelDest[label]; exists {
			continue
		}
		c.labelDest[label] = d
		c.labels = append(c.labels, label)
	}
}

// RemoveDestination removes d's virtual nodes from the ring. Adding d back
// afterward restores the original route set for every metric (spec §8's
// round-trip property).
func (c *ConsistentHashing) RemoveDestination(d metric.Destination) {
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.labels[:0]
	for _, l := range c.labels {
		if c.labelDest[l] == d {
			delete(c.labelDest, l)
			continue
		}
		kept = append(kept, l)
	}
	c.labels = kept
}

func vnodeLabel(d metric.Destination, i int) string {
	return fmt.Sprintf("%s:%d:%s#%d", d.Host, d.Port, d.Instance, i)
}
