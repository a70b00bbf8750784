// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gviegas/qsync/driver/fake"
)

func eventStatus(t *testing.T, e *Event) bool {
	t.Helper()
	ok, err := e.Status()
	require.NoError(t, err)
	return ok
}

func TestEventHost(t *testing.T) {
	d, drv := newTestDevice(t)
	e := d.NewEvent()
	assert.Equal(t, EventUnset, e.State())
	assert.False(t, eventStatus(t, e))
	require.NoError(t, e.Set())
	assert.Equal(t, EventSetByHost, e.State())
	assert.True(t, eventStatus(t, e))
	require.NoError(t, e.Reset())
	assert.Equal(t, EventResetByHost, e.State())
	assert.False(t, eventStatus(t, e))
	e.Destroy()
	checkLeaks(t, d, drv)
}

func TestEventDevice(t *testing.T) {
	d, drv := newTestDevice(t)
	q := d.Queue(0)
	e := d.NewEvent()

	drv.Hold()
	err := submitCmds(q, computeCmd("a"), &EventCmd{Op: &SetEvent{Event: e, WaitFor: StageCompute.Mask()}})
	require.NoError(t, err)
	assert.Equal(t, EventSetByDevice, e.State())
	assert.False(t, eventStatus(t, e), "event set before the work executed")
	drv.Release()
	require.Eventually(t, func() bool { return eventStatus(t, e) }, time.Second, time.Millisecond)

	drv.Hold()
	err = submitCmds(q, &EventCmd{Op: &ResetEvent{Event: e, WaitFor: SyncStages}})
	require.NoError(t, err)
	assert.Equal(t, EventResetByDevice, e.State())
	assert.True(t, eventStatus(t, e), "event reset before the work executed")
	drv.Release()
	require.Eventually(t, func() bool { return !eventStatus(t, e) }, time.Second, time.Millisecond)

	// Host operations drop the device state.
	require.NoError(t, e.Set())
	assert.True(t, eventStatus(t, e))

	require.NoError(t, q.WaitIdle())
	e.Destroy()
	checkLeaks(t, d, drv)
}

func TestEventSetWaitsForCmdBuffer(t *testing.T) {
	d, drv := newTestDevice(t)
	q := d.Queue(0)
	e := d.NewEvent()
	err := submitCmds(q,
		computeCmd("a"),
		transferCmd("b"),
		&EventCmd{Op: &SetEvent{Event: e, WaitFor: StageCompute.Mask()}},
	)
	require.NoError(t, err)
	subs := drv.Submissions()
	a := find(t, subs, fake.EngineCompute, "a")
	b := find(t, subs, fake.EngineTransfer, "b")
	s, ok := e.sync.Get()
	require.True(t, ok)
	assert.True(t, drv.DependsOn(s, a.Signal))
	assert.False(t, drv.DependsOn(s, b.Signal), "only stages in the mask are waited on")

	require.NoError(t, q.WaitIdle())
	e.Destroy()
	checkLeaks(t, d, drv)
}

func TestWaitEvents(t *testing.T) {
	d, drv := newTestDevice(t)
	q := d.Queue(0)
	e1, e2, unset := d.NewEvent(), d.NewEvent(), d.NewEvent()
	err := submitCmds(q,
		computeCmd("a"),
		&EventCmd{Op: &SetEvent{Event: e1, WaitFor: StageCompute.Mask()}},
		transferCmd("b"),
		&EventCmd{Op: &SetEvent{Event: e2, WaitFor: StageTransfer.Mask()}},
		&EventCmd{Op: &WaitEvents{
			Events: []*Event{e1, e2, unset},
			WaitAt: []StageMask{StageGeom.Mask(), StageGeom.Mask() | StageFrag.Mask(), AllStages},
		}},
		graphicsCmd("g", true),
	)
	require.NoError(t, err)

	subs := drv.Submissions()
	a := find(t, subs, fake.EngineCompute, "a")
	b := find(t, subs, fake.EngineTransfer, "b")
	geom := find(t, subs, fake.EngineGeom, "g")
	frag := find(t, subs, fake.EngineFrag, "g")
	assert.True(t, drv.Reaches(geom.Barrier, a.Signal))
	assert.True(t, drv.Reaches(geom.Barrier, b.Signal))
	assert.False(t, drv.Reaches(frag.Barrier, a.Signal), "fragment work does not wait for e1")
	assert.True(t, drv.Reaches(frag.Barrier, b.Signal))
	assert.Equal(t, AllStages, q.barriers.Populated())

	require.NoError(t, q.WaitIdle())
	for _, e := range [...]*Event{e1, e2, unset} {
		e.Destroy()
	}
	checkLeaks(t, d, drv)
}

func TestWaitEventsStageIndependence(t *testing.T) {
	d, drv := newTestDevice(t)
	q := d.Queue(0)
	e := d.NewEvent()
	err := submitCmds(q,
		computeCmd("a"),
		barrierCmd(StageCompute.Mask(), AllStages),
		&EventCmd{Op: &SetEvent{Event: e, WaitFor: StageCompute.Mask()}},
	)
	require.NoError(t, err)
	require.Equal(t, AllStages, q.barriers.Populated())
	var before [NStage]int
	for st := range NStage {
		before[st] = payloadID(&q.barriers[st])
	}

	err = submitCmds(q, &EventCmd{Op: &WaitEvents{
		Events: []*Event{e},
		WaitAt: []StageMask{StageGeom.Mask() | StageCompute.Mask()},
	}})
	require.NoError(t, err)
	for st := range NStage {
		id := payloadID(&q.barriers[st])
		switch st {
		case StageGeom, StageCompute:
			assert.NotEqual(t, before[st], id, "%s barrier must change", st)
			assert.True(t, drv.Reaches(id, before[st]), "%s barrier must keep the previous one", st)
			s, _ := e.sync.Get()
			assert.True(t, drv.Reaches(id, fake.PayloadID(s)), "%s barrier must wait for the event", st)
		default:
			assert.Equal(t, before[st], id, "%s barrier must not change", st)
		}
	}

	require.NoError(t, q.WaitIdle())
	e.Destroy()
	checkLeaks(t, d, drv)
}

func TestWaitEventsMismatch(t *testing.T) {
	d, _ := newTestDevice(t)
	e := d.NewEvent()
	defer e.Destroy()
	assert.Panics(t, func() {
		submitCmds(d.Queue(0), &EventCmd{Op: &WaitEvents{Events: []*Event{e}}})
	})
}
