// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of carbond.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package natsingest is the optional NATS Ingress adapter (spec §6's
// Ingress capability: "submit(metric, datapoint); implementations adapt
// line protocols and structured-message transports to this call").
//
// Grounded on the teacher's pkg/metricstore.ReceiveNats/DecodeLine: a
// worker-pool of goroutines draining a shared channel of raw subject
// payloads, each decoded as InfluxDB line-protocol. Simplified for this
// module's flat metric.Name (no cluster/host/type selector hierarchy —
// the core has no concept of a selector tree, so only a "cluster" tag is
// folded into the name, as a leading dotted component; every other tag is
// ignored).
package natsingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/carbond/carbond/internal/metric"
	"github.com/carbond/carbond/pkg/log"
	carbondnats "github.com/carbond/carbond/pkg/nats"
	"github.com/influxdata/line-protocol/v2/lineprotocol"
)

// Ingress is the capability this adapter feeds (spec §6).
type Ingress interface {
	Submit(name metric.Name, dp metric.Datapoint) error
}

// Adapter subscribes a NATS subject and decodes each message as line
// protocol, forwarding every sample to an Ingress.
type Adapter struct {
	client  *carbondnats.Client
	ingress Ingress
	subject string
	workers int
}

// New constructs an Adapter. workers <= 1 decodes inline on the NATS
// callback goroutine; workers > 1 fans out across a worker pool, matching
// the teacher's ReceiveNats convention.
func New(client *carbondnats.Client, ingress Ingress, subject string, workers int) *Adapter {
	if workers < 1 {
		workers = 1
	}
	return &Adapter{client: client, ingress: ingress, subject: subject, workers: workers}
}

// Start subscribes to the configured subject and begins decoding. It
// blocks until ctx is cancelled, then waits for any in-flight worker
// goroutines to drain.
func (a *Adapter) Start(ctx context.Context) error {
	if a.workers <= 1 {
		if err := a.client.Subscribe(a.subject, func(_ string, data []byte) {
			if err := decodeLine(data, a.ingress); err != nil {
				log.Errorf("natsingest: decode: %s", err.Error())
			}
		}); err != nil {
			return err
		}
		<-ctx.Done()
		return nil
	}

	var wg sync.WaitGroup
	msgs := make(chan []byte, a.workers*2)
	wg.Add(a.workers)
	for range a.workers {
		go func() {
			defer wg.Done()
			for m := range msgs {
				if err := decodeLine(m, a.ingress); err != nil {
					log.Errorf("natsingest: decode: %s", err.Error())
				}
			}
		}()
	}

	if err := a.client.Subscribe(a.subject, func(_ string, data []byte) {
		select {
		case msgs <- data:
		case <-ctx.Done():
		}
	}); err != nil {
		close(msgs)
		wg.Wait()
		return err
	}

	<-ctx.Done()
	close(msgs)
	wg.Wait()
	return nil
}

// decodeLine decodes one InfluxDB line-protocol message and submits every
// measurement's "value" field to ingress. A "cluster" tag, if present, is
// folded into the metric name as a leading dotted component so a single
// flat metric.Name still carries routing/grouping context.
func decodeLine(data []byte, ingress Ingress) error {
	dec := lineprotocol.NewDecoderWithBytes(data)
	now := time.Now()

	for dec.Next() {
		measurement, err := dec.Measurement()
		if err != nil {
			return err
		}
		name := string(measurement)

		for {
			key, val, err := dec.NextTag()
			if err != nil {
				return err
			}
			if key == nil {
				break
			}
			if string(key) == "cluster" {
				name = string(val) + "." + name
			}
		}

		var value float64
		haveValue := false
		for {
			key, val, err := dec.NextField()
			if err != nil {
				return err
			}
			if key == nil {
				break
			}
			if string(key) != "value" {
				continue
			}
			switch val.Kind() {
			case lineprotocol.Float:
				value = val.FloatV()
			case lineprotocol.Int:
				value = float64(val.IntV())
			case lineprotocol.Uint:
				value = float64(val.UintV())
			default:
				return fmt.Errorf("natsingest: unsupported value kind %s", val.Kind())
			}
			haveValue = true
		}
		if !haveValue {
			continue
		}

		t := now
		if parsed, err := dec.Time(lineprotocol.Second, t); err == nil {
			t = parsed
		} else if parsed, err := dec.Time(lineprotocol.Millisecond, t); err == nil {
			t = parsed
		} else if parsed, err := dec.Time(lineprotocol.Microsecond, t); err == nil {
			t = parsed
		} else if parsed, err := dec.Time(lineprotocol.Nanosecond, t); err == nil {
			t = parsed
		}

		mname := metric.Name(name)
		if err := mname.Validate(); err != nil {
			return fmt.Errorf("natsingest: %w", err)
		}
		if err := ingress.Submit(mname, metric.Datapoint{Timestamp: t.Unix(), Value: value}); err != nil {
			return err
		}
	}
	return nil
}
