// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of carbond.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package eventbus

import (
	"testing"

	"github.com/carbond/carbond/internal/metric"
	"github.com/stretchr/testify/require"
)

func TestBus_DispatchesInRegistrationOrder(t *testing.T) {
	b := New()
	var order []int
	b.OnCacheFull(func() { order = append(order, 1) })
	b.OnCacheFull(func() { order = append(order, 2) })
	b.OnCacheFull(func() { order = append(order, 3) })

	b.PublishCacheFull()

	require.Equal(t, []int{1, 2, 3}, order)
}

func TestBus_MetricReceivedCarriesPayload(t *testing.T) {
	b := New()
	var gotName metric.Name
	var gotDP metric.Datapoint
	b.OnMetricReceived(func(name metric.Name, dp metric.Datapoint) {
		gotName = name
		gotDP = dp
	})

	b.PublishMetricReceived("foo.bar", metric.Datapoint{Timestamp: 100, Value: 3.0})

	require.Equal(t, metric.Name("foo.bar"), gotName)
	require.Equal(t, metric.Datapoint{Timestamp: 100, Value: 3.0}, gotDP)
}

func TestBus_NoSubscribersIsANoop(t *testing.T) {
	b := New()
	require.NotPanics(t, func() {
		b.PublishCacheSpaceAvailable()
		b.PublishPauseReceiving()
		b.PublishResumeReceiving()
		b.PublishMetricGenerated("x", metric.Datapoint{})
	})
}
