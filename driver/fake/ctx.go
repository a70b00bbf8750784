// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package fake

import (
	"context"
	"errors"
	"time"

	"github.com/gviegas/qsync/driver"
)

var errDestroyedCtx = errors.New("fake: context destroyed")

// job is a unit of simulated execution.
type job struct {
	engine  Engine
	label   string
	barrier *fence
	waits   []*fence
	out     *fence
}

// deps returns the payloads that the job depends on.
func (j *job) deps() []*fence {
	deps := make([]*fence, 0, len(j.waits)+1)
	if j.barrier != nil {
		deps = append(deps, j.barrier)
	}
	return append(deps, j.waits...)
}

// collect gathers the payloads of js.
// It fails if a Sync in js has no payload, since the
// kernel rejects input syncobjs that were never
// submitted.
func collect(js *driver.JobSync) (barrier *fence, waits []*fence, err error) {
	if js == nil {
		return
	}
	if js.Barrier != nil {
		if barrier, err = inputPayload(js.Barrier); err != nil {
			return
		}
	}
	waits = make([]*fence, 0, len(js.Waits))
	for _, s := range js.Waits {
		var f *fence
		if f, err = inputPayload(s); err != nil {
			return
		}
		if f != nil {
			waits = append(waits, f)
		}
	}
	return
}

// inputPayload returns the payload of an input Sync.
// Dummy syncs have no payload and never block.
func inputPayload(s driver.Sync) (*fence, error) {
	if s.Type() == driver.SyncDummy {
		return nil, nil
	}
	so, ok := s.(*syncObj)
	if !ok {
		return nil, errForeignSync
	}
	f := so.payload()
	if f == nil {
		return nil, errNoPayload
	}
	return f, nil
}

// submit logs and starts the execution of j.
// If signal is not nil, it receives the output payload.
// extra holds dependencies that the hardware adds
// implicitly (they are not logged).
func (d *Driver) submit(j *job, signal driver.Sync, extra ...*fence) {
	deps := j.deps()
	j.out = d.newFence(append(deps, extra...))
	sub := Submission{
		Engine: j.engine,
		Label:  j.label,
		Signal: j.out.id,
	}
	for _, f := range deps {
		sub.Deps = append(sub.Deps, f.id)
	}
	if j.barrier != nil {
		sub.Barrier = j.barrier.id
	}
	d.mu.Lock()
	d.subs = append(d.subs, sub)
	fault := countdown(&d.fail.fault[j.engine])
	if s, ok := signal.(*syncObj); ok {
		s.attach(j.out)
	}
	gate := d.gate
	slots := d.slots[j.engine]
	latency := time.Duration(d.cfg.Latency)
	d.mu.Unlock()

	go func(f *fence) {
		var err error
		for _, dep := range f.deps {
			<-dep.done
			if err == nil {
				err = dep.err
			}
		}
		<-gate
		if slots != nil {
			slots.Acquire(context.Background(), 1)
			if latency > 0 {
				time.Sleep(latency)
			}
			slots.Release(1)
		}
		if err == nil && fault {
			err = driver.ErrDeviceLost
		}
		f.err = err
		close(f.done)
	}(j.out)
}

// checkSubmit applies injected submission failures.
func (d *Driver) checkSubmit() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if countdown(&d.fail.submit) {
		return driver.ErrNoDeviceMemory
	}
	return nil
}

// NullJob submits a job that does no work.
func (d *Driver) NullJob(waits []driver.Sync, signal driver.Sync) error {
	if err := d.checkSubmit(); err != nil {
		return err
	}
	_, fs, err := collect(&driver.JobSync{Waits: waits})
	if err != nil {
		return err
	}
	d.submit(&job{engine: EngineNull, waits: fs}, signal)
	return nil
}

// renderCtx implements driver.RenderCtx.
// Geometry work on a context executes in submission
// order, as the hardware's geometry ring does.
type renderCtx struct {
	d        *Driver
	prio     driver.Priority
	lastGeom *fence
}

// NewRenderCtx creates a new render context.
func (d *Driver) NewRenderCtx(prio driver.Priority) (driver.RenderCtx, error) {
	return &renderCtx{d: d, prio: prio}, nil
}

// Submit submits a render job.
func (c *renderCtx) Submit(job *driver.RenderJob, geom, frag *driver.JobSync) error {
	if c.d == nil {
		return errDestroyedCtx
	}
	if geom == nil || (frag == nil) == job.RunFrag {
		panic("fake: render job synchronization does not match job")
	}
	if err := c.d.checkSubmit(); err != nil {
		return err
	}
	gb, gw, err := collect(geom)
	if err != nil {
		return err
	}
	fb, fw, err := collect(frag)
	if err != nil {
		return err
	}
	gj := c.newJob(EngineGeom, job, gb, gw)
	var extra []*fence
	if c.lastGeom != nil {
		extra = append(extra, c.lastGeom)
	}
	c.d.submitRender(gj, job, geom.Signal, extra...)
	c.lastGeom = gj.out
	if frag != nil {
		fj := c.newJob(EngineFrag, job, fb, fw)
		c.d.submitRender(fj, job, frag.Signal, gj.out)
	}
	return nil
}

func (c *renderCtx) newJob(e Engine, rj *driver.RenderJob, barrier *fence, waits []*fence) *job {
	return &job{
		engine:  e,
		label:   rj.Label,
		barrier: barrier,
		waits:   waits,
	}
}

// submitRender submits j and records the render job
// state in the log entry.
func (d *Driver) submitRender(j *job, rj *driver.RenderJob, signal driver.Sync, extra ...*fence) {
	d.submit(j, signal, extra...)
	d.mu.Lock()
	sub := &d.subs[len(d.subs)-1]
	sub.CtrlStreamAddr = rj.CtrlStreamAddr
	sub.GeometryTerminate = rj.GeometryTerminate
	sub.RunFrag = rj.RunFrag
	d.mu.Unlock()
}

// Destroy destroys the context.
func (c *renderCtx) Destroy() { *c = renderCtx{} }

// computeCtx implements driver.ComputeCtx.
type computeCtx struct {
	d    *Driver
	prio driver.Priority
}

// NewComputeCtx creates a new compute context.
func (d *Driver) NewComputeCtx(prio driver.Priority) (driver.ComputeCtx, error) {
	return &computeCtx{d: d, prio: prio}, nil
}

// Submit submits a compute job.
func (c *computeCtx) Submit(job *driver.ComputeJob, js *driver.JobSync) error {
	if c.d == nil {
		return errDestroyedCtx
	}
	return c.d.submitSimple(EngineCompute, job.Label, js)
}

// Destroy destroys the context.
func (c *computeCtx) Destroy() { *c = computeCtx{} }

// transferCtx implements driver.TransferCtx.
type transferCtx struct {
	d    *Driver
	prio driver.Priority
}

// NewTransferCtx creates a new transfer context.
func (d *Driver) NewTransferCtx(prio driver.Priority) (driver.TransferCtx, error) {
	return &transferCtx{d: d, prio: prio}, nil
}

// Submit submits a transfer job.
func (c *transferCtx) Submit(job *driver.TransferJob, js *driver.JobSync) error {
	if c.d == nil {
		return errDestroyedCtx
	}
	return c.d.submitSimple(EngineTransfer, job.Label, js)
}

// Destroy destroys the context.
func (c *transferCtx) Destroy() { *c = transferCtx{} }

// submitSimple submits a job that has a single part.
func (d *Driver) submitSimple(e Engine, label string, js *driver.JobSync) error {
	if err := d.checkSubmit(); err != nil {
		return err
	}
	b, w, err := collect(js)
	if err != nil {
		return err
	}
	var signal driver.Sync
	if js != nil {
		signal = js.Signal
	}
	d.submit(&job{engine: e, label: label, barrier: b, waits: w}, signal)
	return nil
}
