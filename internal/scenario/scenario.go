// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package scenario decodes submission scenarios from
// YAML and runs them against a queue.Device.
package scenario

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/gviegas/qsync/driver"
	"github.com/gviegas/qsync/queue"
)

// Scenario is a decoded scenario file.
type Scenario struct {
	Name       string      `yaml:"name"`
	Semaphores []string    `yaml:"semaphores"`
	Events     []string    `yaml:"events"`
	Fences     []string    `yaml:"fences"`
	CmdBuffers []CmdBuffer `yaml:"cmd_buffers"`
	Steps      []Step      `yaml:"steps"`
}

// CmdBuffer describes a command buffer.
type CmdBuffer struct {
	Name string `yaml:"name"`
	Cmds []Cmd  `yaml:"cmds"`
}

// Cmd describes a sub-command.
// Exactly one field must be set.
type Cmd struct {
	Graphics       *Graphics    `yaml:"graphics"`
	Compute        *Job         `yaml:"compute"`
	Transfer       *Transfer    `yaml:"transfer"`
	OcclusionQuery *Job         `yaml:"occlusion_query"`
	SetEvent       *EventOp     `yaml:"set_event"`
	ResetEvent     *EventOp     `yaml:"reset_event"`
	WaitEvents     []EventWait  `yaml:"wait_events"`
	Barrier        *BarrierDesc `yaml:"barrier"`
}

// Job describes a job that has nothing but a label.
type Job struct {
	Label string `yaml:"label"`
}

// Graphics describes a graphics sub-command.
type Graphics struct {
	Label           string `yaml:"label"`
	CtrlStream      uint64 `yaml:"ctrl_stream"`
	Terminate       *bool  `yaml:"terminate"`
	Frag            bool   `yaml:"frag"`
	Layers          int    `yaml:"layers"`
	TerminateStream uint64 `yaml:"terminate_stream"`
	OcclusionQuery  bool   `yaml:"occlusion_query"`
}

// Transfer describes a transfer sub-command.
type Transfer struct {
	Label             string `yaml:"label"`
	SerializeWithFrag bool   `yaml:"serialize_with_frag"`
}

// EventOp describes a set or reset event sub-command.
type EventOp struct {
	Event   string   `yaml:"event"`
	WaitFor []string `yaml:"wait_for"`
}

// EventWait describes one event of a wait events
// sub-command.
type EventWait struct {
	Event  string   `yaml:"event"`
	WaitAt []string `yaml:"wait_at"`
}

// BarrierDesc describes a barrier sub-command.
type BarrierDesc struct {
	WaitFor      []string `yaml:"wait_for"`
	WaitAt       []string `yaml:"wait_at"`
	InRenderPass bool     `yaml:"in_render_pass"`
}

// Step is a single scenario step.
// Exactly one field must be set.
type Step struct {
	Submit    *Submit `yaml:"submit"`
	WaitIdle  *int    `yaml:"wait_idle"`
	WaitFence string  `yaml:"wait_fence"`
	SetEvent  string  `yaml:"set_event"`
	Reset     string  `yaml:"reset_event"`
	Status    string  `yaml:"event_status"`
}

// Submit describes a queue submission.
type Submit struct {
	Queue   int     `yaml:"queue"`
	Fence   string  `yaml:"fence"`
	Batches []Batch `yaml:"batches"`
}

// Batch describes one queue.SubmitInfo.
type Batch struct {
	Waits      []Wait   `yaml:"waits"`
	CmdBuffers []string `yaml:"cmd_buffers"`
	Signals    []string `yaml:"signals"`
}

// Wait describes a semaphore wait.
// A semaphore named "dummy" is created on demand with a
// dummy temporary payload.
type Wait struct {
	Semaphore string   `yaml:"semaphore"`
	Stages    []string `yaml:"stages"`
}

// Parse decodes a scenario and checks that every name it
// references is declared.
func Parse(b []byte) (*Scenario, error) {
	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, errors.Wrap(err, "scenario: decoding")
	}
	if err := s.check(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Load reads and decodes the scenario file at path.
func Load(path string) (*Scenario, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "scenario: reading")
	}
	return Parse(b)
}

// check validates references and sub-command shapes.
func (s *Scenario) check() error {
	names := func(kind string, list []string) (map[string]bool, error) {
		m := make(map[string]bool, len(list))
		for _, n := range list {
			if m[n] {
				return nil, errors.Errorf("scenario: duplicate %s %q", kind, n)
			}
			m[n] = true
		}
		return m, nil
	}
	sems, err := names("semaphore", s.Semaphores)
	if err != nil {
		return err
	}
	sems[dummyName] = true
	events, err := names("event", s.Events)
	if err != nil {
		return err
	}
	fences, err := names("fence", s.Fences)
	if err != nil {
		return err
	}
	cbs := make(map[string]bool)
	for i, cb := range s.CmdBuffers {
		if cbs[cb.Name] {
			return errors.Errorf("scenario: duplicate command buffer %q", cb.Name)
		}
		cbs[cb.Name] = true
		for j, c := range cb.Cmds {
			if err := c.check(events); err != nil {
				return errors.Wrapf(err, "scenario: command buffer %d, command %d", i, j)
			}
		}
	}
	ref := func(kind string, m map[string]bool, n string) error {
		if !m[n] {
			return errors.Errorf("scenario: undeclared %s %q", kind, n)
		}
		return nil
	}
	for i, st := range s.Steps {
		var err error
		switch {
		case st.Submit != nil:
			if st.Submit.Fence != "" {
				err = ref("fence", fences, st.Submit.Fence)
			}
			for _, b := range st.Submit.Batches {
				for _, w := range b.Waits {
					if err == nil {
						err = ref("semaphore", sems, w.Semaphore)
					}
					if err == nil {
						_, err = pipelineStages(w.Stages)
					}
				}
				for _, n := range b.CmdBuffers {
					if err == nil {
						err = ref("command buffer", cbs, n)
					}
				}
				for _, n := range b.Signals {
					if err == nil {
						err = ref("semaphore", sems, n)
					}
				}
			}
		case st.WaitIdle != nil:
		case st.WaitFence != "":
			err = ref("fence", fences, st.WaitFence)
		case st.SetEvent != "":
			err = ref("event", events, st.SetEvent)
		case st.Reset != "":
			err = ref("event", events, st.Reset)
		case st.Status != "":
			err = ref("event", events, st.Status)
		default:
			err = errors.New("scenario: empty step")
		}
		if err != nil {
			return errors.Wrapf(err, "step %d", i)
		}
	}
	return nil
}

func (c *Cmd) check(events map[string]bool) error {
	n := 0
	for _, set := range [...]bool{
		c.Graphics != nil,
		c.Compute != nil,
		c.Transfer != nil,
		c.OcclusionQuery != nil,
		c.SetEvent != nil,
		c.ResetEvent != nil,
		c.WaitEvents != nil,
		c.Barrier != nil,
	} {
		if set {
			n++
		}
	}
	if n != 1 {
		return errors.Errorf("scenario: command must have exactly one kind (has %d)", n)
	}
	var masks [][]string
	switch {
	case c.SetEvent != nil:
		masks = append(masks, c.SetEvent.WaitFor)
		if !events[c.SetEvent.Event] {
			return errors.Errorf("scenario: undeclared event %q", c.SetEvent.Event)
		}
	case c.ResetEvent != nil:
		masks = append(masks, c.ResetEvent.WaitFor)
		if !events[c.ResetEvent.Event] {
			return errors.Errorf("scenario: undeclared event %q", c.ResetEvent.Event)
		}
	case c.WaitEvents != nil:
		for _, w := range c.WaitEvents {
			masks = append(masks, w.WaitAt)
			if !events[w.Event] {
				return errors.Errorf("scenario: undeclared event %q", w.Event)
			}
		}
	case c.Barrier != nil:
		masks = append(masks, c.Barrier.WaitFor, c.Barrier.WaitAt)
	case c.Graphics != nil:
		if c.Graphics.Frag && c.Graphics.Layers > 1 && c.Graphics.TerminateStream == 0 {
			return errors.New("scenario: layered graphics command needs terminate_stream")
		}
	}
	for _, m := range masks {
		if _, err := stageMask(m); err != nil {
			return err
		}
	}
	return nil
}

const dummyName = "dummy"

// stageMask converts stage names to a queue.StageMask.
// "all" names every stage.
func stageMask(names []string) (m queue.StageMask, err error) {
	for _, n := range names {
		if n == "all" {
			m |= queue.AllStages
			continue
		}
		st, ok := queue.ParseStage(n)
		if !ok {
			return 0, errors.Errorf("scenario: unknown stage %q", n)
		}
		m |= st.Mask()
	}
	return
}

var pipelineNames = map[string]queue.PipelineStage{
	"top_of_pipe":             queue.PipeTopOfPipe,
	"draw_indirect":           queue.PipeDrawIndirect,
	"vertex_input":            queue.PipeVertexInput,
	"vertex_shader":           queue.PipeVertexShader,
	"tess_control_shader":     queue.PipeTessControlShader,
	"tess_evaluation_shader":  queue.PipeTessEvaluationShader,
	"geometry_shader":         queue.PipeGeometryShader,
	"fragment_shader":         queue.PipeFragmentShader,
	"early_fragment_tests":    queue.PipeEarlyFragmentTests,
	"late_fragment_tests":     queue.PipeLateFragmentTests,
	"color_attachment_output": queue.PipeColorAttachmentOutput,
	"compute_shader":          queue.PipeComputeShader,
	"transfer":                queue.PipeTransfer,
	"bottom_of_pipe":          queue.PipeBottomOfPipe,
	"host":                    queue.PipeHost,
	"all_graphics":            queue.PipeAllGraphics,
	"all_commands":            queue.PipeAllCommands,
}

// pipelineStages converts API pipeline stage names to a
// queue.PipelineStage.
func pipelineStages(names []string) (f queue.PipelineStage, err error) {
	for _, n := range names {
		x, ok := pipelineNames[n]
		if !ok {
			return 0, errors.Errorf("scenario: unknown pipeline stage %q", n)
		}
		f |= x
	}
	return
}

// Event is reported for every step that Run executes.
type Event struct {
	Step    int
	Kind    string
	Detail  string
	Elapsed time.Duration
	Err     error
}

// String implements fmt.Stringer.
func (e Event) String() string {
	s := fmt.Sprintf("step %d: %s", e.Step, e.Kind)
	if e.Detail != "" {
		s += " " + e.Detail
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

// objects holds the objects created for a run.
type objects struct {
	sems   map[string]*queue.Semaphore
	events map[string]*queue.Event
	fences map[string]*queue.Fence
	cbs    map[string]*queue.CmdBuffer
}

func (o *objects) destroy() {
	for _, s := range o.sems {
		s.Destroy()
	}
	for _, e := range o.events {
		e.Destroy()
	}
	for _, f := range o.fences {
		f.Destroy()
	}
}

// Run executes the scenario on d.
// report, if not nil, is called after every step.
// Run stops at the first step that fails. Every object
// it created is destroyed before it returns, after
// waiting for every queue of d to become idle.
func (s *Scenario) Run(d *queue.Device, report func(Event)) (err error) {
	if report == nil {
		report = func(Event) {}
	}
	o := objects{
		sems:   make(map[string]*queue.Semaphore),
		events: make(map[string]*queue.Event),
		fences: make(map[string]*queue.Fence),
		cbs:    make(map[string]*queue.CmdBuffer),
	}
	defer func() {
		for i := range d.Queues() {
			if e := d.Queue(i).WaitIdle(); e != nil && err == nil {
				err = e
			}
		}
		o.destroy()
	}()
	for _, n := range s.Semaphores {
		if o.sems[n], err = d.NewSemaphore(queue.SemaphoreBinary); err != nil {
			return
		}
	}
	for _, n := range s.Fences {
		if o.fences[n], err = d.NewFence(); err != nil {
			return
		}
	}
	for _, n := range s.Events {
		o.events[n] = d.NewEvent()
	}
	for _, cb := range s.CmdBuffers {
		o.cbs[cb.Name] = o.cmdBuffer(&cb)
	}

	for i := range s.Steps {
		start := time.Now()
		ev := o.run(d, &s.Steps[i])
		ev.Step = i
		ev.Elapsed = time.Since(start)
		report(ev)
		if ev.Err != nil {
			return ev.Err
		}
	}
	return nil
}

// cmdBuffer builds a queue.CmdBuffer.
// desc must have been checked.
func (o *objects) cmdBuffer(desc *CmdBuffer) *queue.CmdBuffer {
	cb := &queue.CmdBuffer{Label: desc.Name}
	mask := func(names []string) queue.StageMask {
		m, _ := stageMask(names)
		return m
	}
	for _, c := range desc.Cmds {
		switch {
		case c.Graphics != nil:
			g := c.Graphics
			term := true
			if g.Terminate != nil {
				term = *g.Terminate
			}
			cb.Record(&queue.GraphicsCmd{
				Job: &driver.RenderJob{
					CtrlStreamAddr:    driver.DevAddr(g.CtrlStream),
					GeometryTerminate: term,
					RunFrag:           g.Frag,
					Label:             g.Label,
				},
				FramebufferLayers:   max(g.Layers, 1),
				TerminateCtrlStream: driver.DevAddr(g.TerminateStream),
				HasOcclusionQuery:   g.OcclusionQuery,
			})
		case c.Compute != nil:
			cb.Record(&queue.ComputeCmd{Job: &driver.ComputeJob{Label: c.Compute.Label}})
		case c.Transfer != nil:
			cb.Record(&queue.TransferCmd{
				Job:               &driver.TransferJob{Label: c.Transfer.Label},
				SerializeWithFrag: c.Transfer.SerializeWithFrag,
			})
		case c.OcclusionQuery != nil:
			cb.Record(&queue.OcclusionQueryCmd{Job: &driver.ComputeJob{Label: c.OcclusionQuery.Label}})
		case c.SetEvent != nil:
			cb.Record(&queue.EventCmd{Op: &queue.SetEvent{
				Event:   o.events[c.SetEvent.Event],
				WaitFor: mask(c.SetEvent.WaitFor),
			}})
		case c.ResetEvent != nil:
			cb.Record(&queue.EventCmd{Op: &queue.ResetEvent{
				Event:   o.events[c.ResetEvent.Event],
				WaitFor: mask(c.ResetEvent.WaitFor),
			}})
		case c.WaitEvents != nil:
			op := &queue.WaitEvents{}
			for _, w := range c.WaitEvents {
				op.Events = append(op.Events, o.events[w.Event])
				op.WaitAt = append(op.WaitAt, mask(w.WaitAt))
			}
			cb.Record(&queue.EventCmd{Op: op})
		case c.Barrier != nil:
			cb.Record(&queue.EventCmd{Op: &queue.Barrier{
				WaitFor:      mask(c.Barrier.WaitFor),
				WaitAt:       mask(c.Barrier.WaitAt),
				InRenderPass: c.Barrier.InRenderPass,
			}})
		}
	}
	return cb
}

// semaphore returns the semaphore named n.
// The dummy semaphore is created on first use and gets
// a new temporary payload every time it is returned.
func (o *objects) semaphore(d *queue.Device, n string) (*queue.Semaphore, error) {
	s := o.sems[n]
	if n == dummyName {
		if s == nil {
			var err error
			if s, err = d.NewSemaphore(queue.SemaphoreBinary); err != nil {
				return nil, err
			}
			o.sems[n] = s
		}
		s.ImportDummy()
	}
	return s, nil
}

// run executes a single step.
func (o *objects) run(d *queue.Device, st *Step) (ev Event) {
	switch {
	case st.Submit != nil:
		ev.Kind = "submit"
		ev.Detail = fmt.Sprintf("queue %d, %d batch(es)", st.Submit.Queue, len(st.Submit.Batches))
		if st.Submit.Queue < 0 || st.Submit.Queue >= d.Queues() {
			ev.Err = errors.Errorf("no queue %d", st.Submit.Queue)
			return
		}
		infos := make([]queue.SubmitInfo, len(st.Submit.Batches))
		for i, b := range st.Submit.Batches {
			for _, w := range b.Waits {
				s, err := o.semaphore(d, w.Semaphore)
				if err != nil {
					ev.Err = err
					return
				}
				f, _ := pipelineStages(w.Stages)
				infos[i].Waits = append(infos[i].Waits, queue.SemaphoreWait{Semaphore: s, DstStage: f})
			}
			for _, n := range b.CmdBuffers {
				infos[i].CmdBuffers = append(infos[i].CmdBuffers, o.cbs[n])
			}
			for _, n := range b.Signals {
				s, err := o.semaphore(d, n)
				if err != nil {
					ev.Err = err
					return
				}
				infos[i].Signals = append(infos[i].Signals, s)
			}
		}
		var fence *queue.Fence
		if st.Submit.Fence != "" {
			fence = o.fences[st.Submit.Fence]
		}
		ev.Err = d.Queue(st.Submit.Queue).Submit(infos, fence)
	case st.WaitIdle != nil:
		ev.Kind = "wait idle"
		ev.Detail = fmt.Sprintf("queue %d", *st.WaitIdle)
		if *st.WaitIdle < 0 || *st.WaitIdle >= d.Queues() {
			ev.Err = errors.Errorf("no queue %d", *st.WaitIdle)
			return
		}
		ev.Err = d.Queue(*st.WaitIdle).WaitIdle()
	case st.WaitFence != "":
		ev.Kind = "wait fence"
		ev.Detail = st.WaitFence
		ev.Err = o.fences[st.WaitFence].Wait(driver.Forever)
	case st.SetEvent != "":
		ev.Kind = "set event"
		ev.Detail = st.SetEvent
		ev.Err = o.events[st.SetEvent].Set()
	case st.Reset != "":
		ev.Kind = "reset event"
		ev.Detail = st.Reset
		ev.Err = o.events[st.Reset].Reset()
	case st.Status != "":
		ev.Kind = "event status"
		set, err := o.events[st.Status].Status()
		ev.Detail = fmt.Sprintf("%s = %t", st.Status, set)
		ev.Err = err
	}
	return
}
