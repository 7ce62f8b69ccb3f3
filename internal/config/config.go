// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of carbond.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config is the enumerated configuration of spec §6: one JSON
// document decoded and validated at startup (fatal on error, per spec §7's
// "configuration error at startup"), plus the atomically-swappable schema
// files (storage schemas, aggregation schemas, relay rules) the
// ReloadWatcher refreshes in place (spec §4.6, §5's "Schemas reference").
package config

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/carbond/carbond/internal/cache"
	"github.com/carbond/carbond/internal/schemaconf"
	"github.com/carbond/carbond/pkg/log"
	"github.com/joho/godotenv"
)

// NatsConfig is the optional Ingress-adapter configuration, decoded
// verbatim into pkg/nats.NatsConfig by the caller.
type NatsConfig struct {
	Address       string `json:"address"`
	Username      string `json:"username"`
	Password      string `json:"password"`
	CredsFilePath string `json:"creds-file-path"`
	Subject       string `json:"subject"`
}

// ColdArchiveConfig is the optional S3 cold-archive configuration
// (SPEC_FULL §11): an enabled flag plus the bucket, key prefix, endpoint,
// and region handed to coldarchive.Config.
type ColdArchiveConfig struct {
	Enabled  bool   `json:"enabled"`
	Bucket   string `json:"bucket"`
	Prefix   string `json:"prefix"`
	Endpoint string `json:"endpoint"`
	Region   string `json:"region"`
}

// Config is the fully decoded and validated daemon configuration.
type Config struct {
	DataDir                string `json:"data-dir"`
	StorageSchemasPath     string `json:"storage-schemas-path"`
	AggregationSchemasPath string `json:"aggregation-schemas-path"`
	RelayRulesPath         string `json:"relay-rules-path"`

	MaxCacheSize                   int           `json:"max-cache-size"`
	CacheWriteStrategy             cache.Strategy `json:"cache-write-strategy"`
	MaxCreatesPerMinute            float64       `json:"max-creates-per-minute"`
	MaxUpdatesPerSecond            float64       `json:"max-updates-per-second"`
	MaxUpdatesPerSecondOnShutdown  float64       `json:"max-updates-per-second-on-shutdown"`
	MaxAggregationIntervals        int64         `json:"max-aggregation-intervals"`
	AggregationWriteBackFrequency  int64         `json:"aggregation-write-back-frequency-seconds"`
	WhisperSparseCreate            bool          `json:"whisper-sparse-create"`
	WhisperFallocateCreate         bool          `json:"whisper-fallocate-create"`
	ReplicationFactor              int           `json:"replication-factor"`
	LogUpdates                     bool          `json:"log-updates"`
	ReloadIntervalSeconds          int           `json:"reload-interval-seconds"`
	SelfReportIntervalSeconds      int           `json:"self-report-interval-seconds"`
	AdminListenAddress             string        `json:"admin-listen-address"`
	Router                         string        `json:"router"`

	Nats        *NatsConfig        `json:"nats"`
	ColdArchive *ColdArchiveConfig `json:"cold-archive"`
	EnableGops  bool               `json:"enable-gops"`
}

// defaults mirrors spec §4/§6's stated defaults for anything a config file
// omits.
func defaults() Config {
	return Config{
		MaxCacheSize:                  0, // 0 == unbounded, cache_full disabled
		CacheWriteStrategy:            cache.StrategyMax,
		MaxCreatesPerMinute:           math.Inf(1),
		MaxUpdatesPerSecond:           math.Inf(1),
		MaxUpdatesPerSecondOnShutdown: math.Inf(1),
		MaxAggregationIntervals:       24,
		ReplicationFactor:             1,
		ReloadIntervalSeconds:         60,
		SelfReportIntervalSeconds:     60,
		AdminListenAddress:            ":8080",
		Router:                        "relay-rules",
	}
}

// Load reads .env (if present, for container/systemd deployments — see
// LoadDotEnv), decodes path as JSON into a Config seeded with defaults, and
// validates it against ConfigSchema. Any failure here is fatal (spec §7:
// "configuration error at startup").
func Load(path string) (*Config, error) {
	LoadDotEnv()

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}

	Validate(ConfigSchema, json.RawMessage(raw))

	cfg := defaults()
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("config: decode %q: %w", path, err)
	}
	return &cfg, nil
}

// LoadDotEnv loads a .env file from the working directory if present,
// ahead of flag/config parsing, matching the teacher's cmd/cc-backend
// bootstrap (container/systemd deployments set data-dir, listen addresses,
// and schema file paths this way before the JSON config is even read).
func LoadDotEnv() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warnf("config: .env: %v", err)
	}
}

// SchemaSet bundles the three reloadable schema files behind one
// swappable snapshot (spec §5: "Schemas reference — swapped via an atomic
// pointer; readers see either old or new, never a torn state").
type SchemaSet struct {
	Storage     []schemaconf.StorageRule
	Aggregation []schemaconf.AggregationRule
	Relay       []schemaconf.RelayRule
	LoadedAt    time.Time
}

// LoadSchemaSet parses the three schema files named by cfg. Used both at
// startup and by the ReloadWatcher on every tick.
func LoadSchemaSet(cfg *Config) (*SchemaSet, error) {
	storage, err := parseFile(cfg.StorageSchemasPath, schemaconf.ParseStorageSchemas)
	if err != nil {
		return nil, fmt.Errorf("config: storage schemas: %w", err)
	}
	aggregation, err := parseFile(cfg.AggregationSchemasPath, schemaconf.ParseAggregationSchemas)
	if err != nil {
		return nil, fmt.Errorf("config: aggregation schemas: %w", err)
	}
	var relay []schemaconf.RelayRule
	if cfg.RelayRulesPath != "" {
		relay, err = parseFile(cfg.RelayRulesPath, schemaconf.ParseRelayRules)
		if err != nil {
			return nil, fmt.Errorf("config: relay rules: %w", err)
		}
	}
	return &SchemaSet{Storage: storage, Aggregation: aggregation, Relay: relay}, nil
}

func parseFile[T any](path string, parse func(io.Reader) ([]T, error)) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parse(f)
}
