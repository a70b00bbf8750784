// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gviegas/qsync/driver"
	"github.com/gviegas/qsync/driver/fake"
)

func TestSlot(t *testing.T) {
	drv := fake.New(nil)
	ws, err := drv.Open()
	require.NoError(t, err)
	defer drv.Close()
	newSync := func() driver.Sync {
		s, err := ws.NewSync()
		require.NoError(t, err)
		return s
	}

	var sl Slot
	_, ok := sl.Get()
	assert.False(t, ok)
	a, b := newSync(), newSync()
	sl.Replace(a)
	s, ok := sl.Get()
	assert.True(t, ok)
	assert.Equal(t, a, s)
	sl.Replace(b)
	assert.Equal(t, 1, drv.Stats().Destroyed, "Replace must destroy the previous occupant")
	assert.Equal(t, b, sl.Take())
	_, ok = sl.Get()
	assert.False(t, ok)
	b.Destroy()
	sl.Clear()
	assert.Equal(t, 0, drv.Stats().Live())
}

func TestSlotsMerge(t *testing.T) {
	drv := fake.New(nil)
	ws, err := drv.Open()
	require.NoError(t, err)
	defer drv.Close()
	newSync := func() driver.Sync {
		s, err := ws.NewSync()
		require.NoError(t, err)
		return s
	}

	var dst, src Slots
	dst[StageGeom].Replace(newSync())
	dst[StageFrag].Replace(newSync())
	src[StageFrag].Replace(newSync())
	src[StageTransfer].Replace(newSync())
	fragSrc, _ := src[StageFrag].Get()
	geomDst, _ := dst[StageGeom].Get()

	dst.Merge(&src)
	assert.Equal(t, StageMask(0), src.Populated())
	assert.Equal(t, StageGeom.Mask()|StageFrag.Mask()|StageTransfer.Mask(), dst.Populated())
	s, _ := dst[StageFrag].Get()
	assert.Equal(t, fragSrc, s)
	s, _ = dst[StageGeom].Get()
	assert.Equal(t, geomDst, s, "empty source slots must not affect the destination")
	assert.Equal(t, 1, drv.Stats().Destroyed)
	assert.Len(t, dst.Syncs(StageFrag.Mask()|StageCompute.Mask()), 1)

	dst.Clear()
	assert.Equal(t, 0, drv.Stats().Live())
}
