// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of carbond.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package instrumentation

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestInstrumentation_ObserveWriteUpdatesCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	i := New(reg)

	i.ObserveWrite(5, 10*time.Millisecond)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, mfs)

	found := map[string]bool{}
	for _, mf := range mfs {
		found[mf.GetName()] = true
	}
	require.True(t, found["carbond_datapoints_written_total"])
	require.True(t, found["carbond_write_operations_total"])
}

func TestInstrumentation_CacheSizeGaugeReadable(t *testing.T) {
	reg := prometheus.NewRegistry()
	i := New(reg)
	i.CacheSize.Set(42)
	require.Equal(t, float64(42), readGauge(i.CacheSize))
}
