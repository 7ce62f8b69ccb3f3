// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of carbond.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

// ConfigSchema is the inline JSON Schema validated against the decoded
// Config, matching the teacher's pkg/metricstore/configSchema.go convention
// of an inline schema string next to the struct it describes.
const ConfigSchema = `{
    "type": "object",
    "description": "carbond ingestion/persistence daemon configuration.",
    "properties": {
        "data-dir": {
            "description": "Root directory for on-disk metric files.",
            "type": "string"
        },
        "storage-schemas-path": { "type": "string" },
        "aggregation-schemas-path": { "type": "string" },
        "relay-rules-path": { "type": "string" },
        "max-cache-size": {
            "description": "Soft upper bound on pending datapoints across all metrics.",
            "type": "integer",
            "minimum": 0
        },
        "cache-write-strategy": {
            "type": "string",
            "enum": ["max", "sorted", "naive"]
        },
        "max-creates-per-minute": { "type": "number", "minimum": 0 },
        "max-updates-per-second": { "type": "number", "minimum": 0 },
        "max-updates-per-second-on-shutdown": { "type": "number", "minimum": 0 },
        "max-aggregation-intervals": { "type": "integer", "minimum": 1 },
        "aggregation-write-back-frequency-seconds": { "type": "integer", "minimum": 0 },
        "whisper-sparse-create": { "type": "boolean" },
        "whisper-fallocate-create": { "type": "boolean" },
        "replication-factor": { "type": "integer", "minimum": 1 },
        "log-updates": { "type": "boolean" },
        "reload-interval-seconds": { "type": "integer", "minimum": 1 },
        "self-report-interval-seconds": { "type": "integer", "minimum": 1 },
        "admin-listen-address": { "type": "string" },
        "router": {
            "type": "string",
            "enum": ["relay-rules", "consistent-hashing", "aggregated-consistent-hashing"]
        },
        "nats": { "type": "object" },
        "cold-archive": { "type": "object" },
        "enable-gops": { "type": "boolean" }
    },
    "required": ["data-dir", "storage-schemas-path", "aggregation-schemas-path"]
}`
