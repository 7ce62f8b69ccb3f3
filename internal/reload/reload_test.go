// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of carbond.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package reload

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/carbond/carbond/internal/config"
	"github.com/stretchr/testify/require"
)

func writeSchemaFiles(t *testing.T, storage, aggregation string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	storagePath := filepath.Join(dir, "storage-schemas.conf")
	aggPath := filepath.Join(dir, "aggregation-schemas.conf")
	require.NoError(t, os.WriteFile(storagePath, []byte(storage), 0o644))
	require.NoError(t, os.WriteFile(aggPath, []byte(aggregation), 0o644))
	return &config.Config{
		StorageSchemasPath:     storagePath,
		AggregationSchemasPath: aggPath,
		ReloadIntervalSeconds:  60,
	}
}

const validStorage = "[default]\npattern = .*\nretentions = 10:100\n"
const validAgg = "[default]\npattern = .*\nxFilesFactor = 0.5\naggregationMethod = avg\n"

func TestWatcher_ReloadPicksUpChanges(t *testing.T) {
	cfg := writeSchemaFiles(t, validStorage, validAgg)
	initial, err := config.LoadSchemaSet(cfg)
	require.NoError(t, err)
	w := New(cfg, initial)
	require.Len(t, w.Current().Storage, 1)

	require.NoError(t, os.WriteFile(cfg.StorageSchemasPath,
		[]byte("[a]\npattern = ^a\nretentions = 10:100\n\n[b]\npattern = ^b\nretentions = 10:100\n"), 0o644))

	require.NoError(t, w.Reload())
	require.Len(t, w.Current().Storage, 2)
}

func TestWatcher_KeepsPreviousOnParseFailure(t *testing.T) {
	cfg := writeSchemaFiles(t, validStorage, validAgg)
	initial, err := config.LoadSchemaSet(cfg)
	require.NoError(t, err)
	w := New(cfg, initial)

	require.NoError(t, os.WriteFile(cfg.StorageSchemasPath, []byte("not a valid file\n"), 0o644))

	err = w.Reload()
	require.Error(t, err)
	require.Len(t, w.Current().Storage, 1)
}
