// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of carbond.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package natsingest

import (
	"testing"

	"github.com/carbond/carbond/internal/metric"
	"github.com/stretchr/testify/require"
)

type fakeIngress struct {
	names  []metric.Name
	points []metric.Datapoint
}

func (f *fakeIngress) Submit(name metric.Name, dp metric.Datapoint) error {
	f.names = append(f.names, name)
	f.points = append(f.points, dp)
	return nil
}

func TestDecodeLine_FoldsClusterTagIntoName(t *testing.T) {
	f := &fakeIngress{}
	line := []byte("cpu_load,cluster=alpha value=3.5 1700000000\n")
	require.NoError(t, decodeLine(line, f))
	require.Len(t, f.names, 1)
	require.Equal(t, metric.Name("alpha.cpu_load"), f.names[0])
	require.Equal(t, int64(1700000000), f.points[0].Timestamp)
	require.Equal(t, 3.5, f.points[0].Value)
}

func TestDecodeLine_NoClusterTagKeepsBareName(t *testing.T) {
	f := &fakeIngress{}
	line := []byte("mem_used value=42 1700000000\n")
	require.NoError(t, decodeLine(line, f))
	require.Equal(t, metric.Name("mem_used"), f.names[0])
}

func TestDecodeLine_MultipleLinesInOneMessage(t *testing.T) {
	f := &fakeIngress{}
	line := []byte("a value=1 1700000000\nb value=2 1700000001\n")
	require.NoError(t, decodeLine(line, f))
	require.Len(t, f.names, 2)
}
