// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package queue

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gviegas/qsync/driver"
	"github.com/gviegas/qsync/driver/fake"
)

// newTestDevice creates a device with a single queue on
// top of a new fake driver.
// Both are released when the test finishes.
func newTestDevice(t *testing.T) (*Device, *fake.Driver) {
	t.Helper()
	drv := fake.New(&fake.Config{EngineConcurrency: 2})
	ws, err := drv.Open()
	require.NoError(t, err)
	cfg := DefaultConfig()
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	d, err := NewDevice(ws, &cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		d.Destroy()
		drv.Close()
	})
	return d, drv
}

// checkLeaks destroys d and checks that every Sync
// created through drv was destroyed.
func checkLeaks(t *testing.T, d *Device, drv *fake.Driver) {
	t.Helper()
	d.Destroy()
	st := drv.Stats()
	require.Zero(t, st.Live(), "live syncs (created %d, destroyed %d)", st.Created, st.Destroyed)
	require.Zero(t, drv.OpenFiles(), "open sync files")
}

// signaled creates a semaphore whose payload is signaled.
func signaled(t *testing.T, d *Device) *Semaphore {
	t.Helper()
	sem, err := d.NewSemaphore(SemaphoreBinary)
	require.NoError(t, err)
	require.NoError(t, d.Queue(0).Submit([]SubmitInfo{{Signals: []*Semaphore{sem}}}, nil))
	return sem
}

// find returns the first logged submission on engine e
// with the given label.
func find(t *testing.T, subs []fake.Submission, e fake.Engine, label string) fake.Submission {
	t.Helper()
	for _, s := range subs {
		if s.Engine == e && s.Label == label {
			return s
		}
	}
	t.Fatalf("no %s submission labeled %q in %+v", e, label, subs)
	return fake.Submission{}
}

// engines returns the engine of every logged submission.
func engines(subs []fake.Submission) []fake.Engine {
	es := make([]fake.Engine, len(subs))
	for i := range subs {
		es[i] = subs[i].Engine
	}
	return es
}

// submitCmds submits a single command buffer holding cmds.
func submitCmds(q *Queue, cmds ...SubCmd) error {
	cb := &CmdBuffer{Label: "test"}
	cb.Record(cmds...)
	return q.Submit([]SubmitInfo{{CmdBuffers: []*CmdBuffer{cb}}}, nil)
}

func computeCmd(label string) *ComputeCmd {
	return &ComputeCmd{Job: &driver.ComputeJob{Label: label}}
}

func transferCmd(label string) *TransferCmd {
	return &TransferCmd{Job: &driver.TransferJob{Label: label}}
}

func graphicsCmd(label string, frag bool) *GraphicsCmd {
	return &GraphicsCmd{
		Job: &driver.RenderJob{
			CtrlStreamAddr:    0x1000,
			GeometryTerminate: true,
			RunFrag:           frag,
			Label:             label,
		},
		FramebufferLayers: 1,
	}
}

func barrierCmd(waitFor, waitAt StageMask) *EventCmd {
	return &EventCmd{Op: &Barrier{WaitFor: waitFor, WaitAt: waitAt}}
}

// payloadID returns the payload ID of the Sync held by
// sl, or zero.
func payloadID(sl *Slot) int {
	if s, ok := sl.Get(); ok {
		return fake.PayloadID(s)
	}
	return 0
}
