// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package scenario

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gviegas/qsync/driver/fake"
	"github.com/gviegas/qsync/queue"
)

func newDevice(t *testing.T) (*queue.Device, *fake.Driver) {
	t.Helper()
	drv := fake.New(nil)
	ws, err := drv.Open()
	require.NoError(t, err)
	cfg := queue.DefaultConfig()
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	d, err := queue.NewDevice(ws, &cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		d.Destroy()
		drv.Close()
	})
	return d, drv
}

func TestLoad(t *testing.T) {
	s, err := Load("testdata/frame.yaml")
	require.NoError(t, err)
	assert.Equal(t, "frame", s.Name)
	assert.Len(t, s.CmdBuffers, 2)
	assert.Len(t, s.Steps, 5)
	g := s.CmdBuffers[1].Cmds[1].Graphics
	require.NotNil(t, g)
	assert.Equal(t, uint64(0x2000), g.TerminateStream)
	assert.Equal(t, 2, g.Layers)

	_, err = Load("testdata/missing.yaml")
	assert.Error(t, err)
}

func TestParseInvalid(t *testing.T) {
	for _, c := range [...]struct {
		name, doc string
	}{
		{"unknown field", "steps:\n  - wait_idle: 0\nbogus: 1\n"},
		{"empty step", "steps:\n  - {}\n"},
		{"duplicate semaphore", "semaphores: [a, a]\n"},
		{"undeclared fence", "steps:\n  - wait_fence: f\n"},
		{"undeclared event", "cmd_buffers:\n  - name: c\n    cmds:\n      - set_event: {event: e}\n"},
		{"two kinds", "cmd_buffers:\n  - name: c\n    cmds:\n      - {compute: {}, transfer: {}}\n"},
		{"unknown stage", "cmd_buffers:\n  - name: c\n    cmds:\n      - barrier: {wait_for: [vertex]}\n"},
		{"unknown pipeline stage", "semaphores: [s]\nsteps:\n  - submit:\n      batches:\n        - waits: [{semaphore: s, stages: [vertex]}]\n"},
		{"undeclared cmd buffer", "steps:\n  - submit:\n      batches:\n        - cmd_buffers: [c]\n"},
		{"missing terminate stream", "cmd_buffers:\n  - name: c\n    cmds:\n      - graphics: {frag: true, layers: 2}\n"},
	} {
		if _, err := Parse([]byte(c.doc)); err == nil {
			t.Fatalf("Parse (%s):\nhave nil\nwant error", c.name)
		}
	}
}

func TestRun(t *testing.T) {
	s, err := Load("testdata/frame.yaml")
	require.NoError(t, err)
	d, drv := newDevice(t)

	var evs []Event
	require.NoError(t, s.Run(d, func(ev Event) { evs = append(evs, ev) }))
	require.Len(t, evs, len(s.Steps))
	for i, ev := range evs {
		assert.Equal(t, i, ev.Step)
		assert.NoError(t, ev.Err)
	}
	assert.Equal(t, "uploaded = true", evs[3].Detail)

	// Split graphics runs geometry twice.
	assert.Equal(t, 2, drv.Count(fake.EngineGeom))
	assert.Equal(t, 1, drv.Count(fake.EngineFrag))
	assert.Equal(t, 2, drv.Count(fake.EngineTransfer))

	// Run destroys what it creates.
	d.Destroy()
	assert.Zero(t, drv.Stats().Live())
}

func TestRunFailure(t *testing.T) {
	s, err := Parse([]byte(`
cmd_buffers:
  - name: c
    cmds:
      - compute: {label: a}
steps:
  - submit:
      batches:
        - cmd_buffers: [c]
  - submit:
      queue: 1
      batches:
        - cmd_buffers: [c]
  - wait_idle: 0
`))
	require.NoError(t, err)
	d, drv := newDevice(t)

	var evs []Event
	err = s.Run(d, func(ev Event) { evs = append(evs, ev) })
	require.Error(t, err)
	require.Len(t, evs, 2)
	assert.NoError(t, evs[0].Err)
	assert.Error(t, evs[1].Err)
	assert.Equal(t, 1, drv.Count(fake.EngineCompute))
}
