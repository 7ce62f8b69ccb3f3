// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of carbond.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command carbond is the ingestion/persistence daemon described by spec
// §§1-9: metrics arrive via Ingress, flow through the cache and optional
// aggregator, and are committed to disk by the WriteScheduler. A Router
// resolves the destinations of each received metric; nothing is forwarded
// to them.
//
// Grounded on the teacher's cmd/cc-backend/main.go: flag parsing ahead of
// config load, an optional github.com/google/gops/agent debug listener,
// and a signal.Notify-driven graceful shutdown that waits for in-flight
// work before exiting.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/carbond/carbond/adapters/natsingest"
	"github.com/carbond/carbond/internal/adminapi"
	"github.com/carbond/carbond/internal/aggregator"
	"github.com/carbond/carbond/internal/cache"
	"github.com/carbond/carbond/internal/coldarchive"
	"github.com/carbond/carbond/internal/config"
	"github.com/carbond/carbond/internal/eventbus"
	"github.com/carbond/carbond/internal/instrumentation"
	"github.com/carbond/carbond/internal/metric"
	"github.com/carbond/carbond/internal/reload"
	"github.com/carbond/carbond/internal/router"
	"github.com/carbond/carbond/internal/rrdb"
	"github.com/carbond/carbond/internal/schemaconf"
	"github.com/carbond/carbond/internal/writer"
	"github.com/carbond/carbond/pkg/log"
	carbondnats "github.com/carbond/carbond/pkg/nats"
	"github.com/google/gops/agent"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	flagConfigFile string
	flagLogLevel   string
)

func init() {
	flag.StringVar(&flagConfigFile, "config", "./config.json", "Path to the daemon configuration file")
	flag.StringVar(&flagLogLevel, "loglevel", "info", "One of debug, info, warn, err, crit")
}

func main() {
	flag.Parse()
	log.SetLogLevel(flagLogLevel)

	cfg, err := config.Load(flagConfigFile)
	if err != nil {
		log.Abortf("config: %s", err.Error())
	}

	if cfg.EnableGops {
		if err := agent.Listen(agent.Options{}); err != nil {
			log.Fatalf("gops/agent.Listen failed: %s", err.Error())
		}
	}

	schemas, err := config.LoadSchemaSet(cfg)
	if err != nil {
		log.Abortf("schemas: %s", err.Error())
	}

	reg := prometheus.DefaultRegisterer
	instr := instrumentation.New(reg)
	if err := instr.StartSelfReport(time.Duration(cfg.SelfReportIntervalSeconds) * time.Second); err != nil {
		log.Fatalf("instrumentation: %s", err.Error())
	}

	bus := eventbus.New()
	c := cache.New(cfg.MaxCacheSize, cfg.CacheWriteStrategy, bus)

	db, err := rrdb.New(cfg.DataDir,
		rrdb.WithSparseCreate(cfg.WhisperSparseCreate),
		rrdb.WithFallocateCreate(cfg.WhisperFallocateCreate),
	)
	if err != nil {
		log.Abortf("rrdb: %s", err.Error())
	}

	binning := schemaconf.BinningRules(schemas.Aggregation)
	aggMgr, err := aggregator.NewManager(binning, bus,
		aggregator.WithMaxAggregationIntervals(cfg.MaxAggregationIntervals),
		aggregator.WithWriteBackFrequency(time.Duration(cfg.AggregationWriteBackFrequency)*time.Second),
		aggregator.WithInstrumentation(instr),
	)
	if err != nil {
		log.Abortf("aggregator: %s", err.Error())
	}
	aggMgr.Start()

	bus.OnMetricGenerated(func(name metric.Name, dp metric.Datapoint) {
		c.Store(name, dp)
	})

	rw := reload.New(cfg, schemas)
	if err := rw.Start(); err != nil {
		log.Abortf("reload: %s", err.Error())
	}

	// Network relay framing is out of scope (SPEC_FULL §1's "out of scope,
	// named only by contract: line-protocol/network framing"); the Router
	// is still exercised on every received sample so its destination
	// mapping is live-tested end to end.
	rt := buildRouter(cfg, schemas)
	bus.OnMetricReceived(func(name metric.Name, _ metric.Datapoint) {
		dests := rt.GetDestinations(name)
		log.Debugf("router: %q -> %d destination(s)", string(name), len(dests))
	})

	sched := writer.New(c, db, rw, instr, cfg)
	ctx, cancel := context.WithCancel(context.Background())
	go sched.Run(ctx)

	admin := adminapi.New(cfg.AdminListenAddress, c, rw)
	go func() {
		if err := admin.ListenAndServe(); err != nil {
			log.Errorf("adminapi: %s", err.Error())
		}
	}()

	var natsAdapter *natsingest.Adapter
	if cfg.Nats != nil {
		natsClient, err := carbondnats.NewClient(&carbondnats.NatsConfig{
			Address:       cfg.Nats.Address,
			Username:      cfg.Nats.Username,
			Password:      cfg.Nats.Password,
			CredsFilePath: cfg.Nats.CredsFilePath,
		})
		if err != nil {
			log.Errorf("nats: %s", err.Error())
		} else {
			natsAdapter = natsingest.New(natsClient, ingressAdapter{cache: c, bus: bus, aggregator: aggMgr}, cfg.Nats.Subject, 1)
			go func() {
				if err := natsAdapter.Start(ctx); err != nil {
					log.Errorf("natsingest: %s", err.Error())
				}
			}()
		}
	}

	if _, err := coldarchive.New(ctx, toColdArchiveConfig(cfg)); err != nil {
		log.Errorf("coldarchive: %s", err.Error())
	}

	log.Infof("carbond: running (data-dir=%s)", cfg.DataDir)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	log.Info("carbond: shutting down")

	var wg sync.WaitGroup
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := sched.Shutdown(shutdownCtx); err != nil {
			log.Errorf("writer shutdown: %s", err.Error())
		}
	}()

	if err := aggMgr.Shutdown(shutdownCtx); err != nil {
		log.Errorf("aggregator shutdown: %s", err.Error())
	}
	if err := rw.Shutdown(shutdownCtx); err != nil {
		log.Errorf("reload shutdown: %s", err.Error())
	}
	if err := admin.Shutdown(shutdownCtx); err != nil {
		log.Errorf("adminapi shutdown: %s", err.Error())
	}
	if err := instr.Shutdown(shutdownCtx); err != nil {
		log.Errorf("instrumentation shutdown: %s", err.Error())
	}

	wg.Wait()
	cancel()
	os.Exit(0)
}

// ingressAdapter satisfies natsingest.Ingress by routing samples through
// the aggregator first (spec §4.1: ingress feeds aggregator.input, not
// the cache directly), falling back to the cache when the aggregator has
// no matching rule.
type ingressAdapter struct {
	cache      *cache.Cache
	bus        *eventbus.Bus
	aggregator *aggregator.Manager
}

func (a ingressAdapter) Submit(name metric.Name, dp metric.Datapoint) error {
	a.bus.PublishMetricReceived(name, dp)
	if a.aggregator.Submit(name, dp) {
		return nil
	}
	a.cache.Store(name, dp)
	return nil
}

func buildRouter(cfg *config.Config, schemas *config.SchemaSet) router.Router {
	switch cfg.Router {
	case "consistent-hashing":
		ring := router.NewConsistentHashing(cfg.ReplicationFactor)
		return ring
	case "aggregated-consistent-hashing":
		ring := router.NewConsistentHashing(cfg.ReplicationFactor)
		binning := schemaconf.BinningRules(schemas.Aggregation)
		return router.NewAggregatedConsistentHashing(ring, func(name metric.Name) []metric.Name {
			rule, ok := binning.Match(name)
			if !ok {
				return nil
			}
			return []metric.Name{rule.OutputName(name)}
		})
	default:
		return router.NewRelayRules(schemaconf.ToRouterRules(schemas.Relay))
	}
}

func toColdArchiveConfig(cfg *config.Config) *coldarchive.Config {
	if cfg.ColdArchive == nil {
		return nil
	}
	return &coldarchive.Config{
		Enabled:  cfg.ColdArchive.Enabled,
		Bucket:   cfg.ColdArchive.Bucket,
		Prefix:   cfg.ColdArchive.Prefix,
		Endpoint: cfg.ColdArchive.Endpoint,
		Region:   cfg.ColdArchive.Region,
	}
}
