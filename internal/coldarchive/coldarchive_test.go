// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of carbond.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package coldarchive

import (
	"context"
	"testing"

	"github.com/carbond/carbond/internal/metric"
	"github.com/stretchr/testify/require"
)

func TestNew_DisabledReturnsNil(t *testing.T) {
	a, err := New(context.Background(), nil)
	require.NoError(t, err)
	require.Nil(t, a)

	a, err = New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)
	require.Nil(t, a)
}

func TestNew_RequiresBucket(t *testing.T) {
	_, err := New(context.Background(), &Config{Enabled: true})
	require.Error(t, err)
}

func TestKey_WithAndWithoutPrefix(t *testing.T) {
	a := &Archive{bucket: "b"}
	require.Equal(t, "carbon.foo.bar.rrd", a.key(metric.Name("carbon.foo.bar")))

	a.prefix = "cold"
	require.Equal(t, "cold/carbon.foo.bar.rrd", a.key(metric.Name("carbon.foo.bar")))
}
