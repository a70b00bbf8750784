// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package queue

import (
	"github.com/gviegas/qsync/driver"
)

// waitsFor returns the waits that apply to stage st.
// The st bit is cleared from the flags of every wait
// returned, so a wait only gates the first job of a
// given stage within a submission.
func (p *processor) waitsFor(st Stage) (waits []driver.Sync) {
	bit := st.Mask()
	for i := range p.waits {
		if p.flags[i]&bit != 0 {
			waits = append(waits, p.waits[i])
			p.flags[i] &^= bit
		}
	}
	return
}

// barrierOf returns the pending barrier of stage st,
// or nil if there is none.
func (p *processor) barrierOf(st Stage) driver.Sync {
	s, _ := p.q.barriers[st].Get()
	return s
}

// jobSync creates a fresh completion Sync and returns
// the synchronization of a job that executes on stage st.
func (p *processor) jobSync(st Stage) (*driver.JobSync, error) {
	s, err := p.q.d.ws.NewSync()
	if err != nil {
		return nil, err
	}
	return &driver.JobSync{
		Barrier: p.barrierOf(st),
		Waits:   p.waitsFor(st),
		Signal:  s,
	}, nil
}

// submitSingle submits a job that executes on stage st
// and has a single completion.
func (p *processor) submitSingle(st Stage, submit func(*driver.JobSync) error) error {
	js, err := p.jobSync(st)
	if err != nil {
		return err
	}
	if err := submit(js); err != nil {
		js.Signal.Destroy()
		return err
	}
	p.cmdBuf[st].Replace(js.Signal)
	return nil
}

// submitCompute submits a compute job.
func (p *processor) submitCompute(job *driver.ComputeJob) error {
	return p.submitSingle(StageCompute, func(js *driver.JobSync) error {
		return p.q.compute.Submit(job, js)
	})
}

// submitTransfer submits a transfer job.
func (p *processor) submitTransfer(job *driver.TransferJob) error {
	return p.submitSingle(StageTransfer, func(js *driver.JobSync) error {
		return p.q.transfer.Submit(job, js)
	})
}

// submitOcclusionQuery submits an occlusion query job
// on the query context.
func (p *processor) submitOcclusionQuery(job *driver.ComputeJob) error {
	return p.submitSingle(StageOcclusionQuery, func(js *driver.JobSync) error {
		return p.q.query.Submit(job, js)
	})
}

// submitGraphics submits a graphics job.
// It produces a geometry completion and, if the job has
// fragment work, a fragment completion.
func (p *processor) submitGraphics(c *GraphicsCmd) error {
	if c.RequiresSplit() {
		return p.submitSplit(c)
	}
	geom, err := p.jobSync(StageGeom)
	if err != nil {
		return err
	}
	var frag *driver.JobSync
	if c.Job.RunFrag {
		if frag, err = p.jobSync(StageFrag); err != nil {
			geom.Signal.Destroy()
			return err
		}
	}
	if err := p.q.render.Submit(c.Job, geom, frag); err != nil {
		if frag != nil {
			frag.Signal.Destroy()
		}
		geom.Signal.Destroy()
		return err
	}
	p.cmdBuf[StageGeom].Replace(geom.Signal)
	if frag != nil {
		p.cmdBuf[StageFrag].Replace(frag.Signal)
	}
	return nil
}

// submitSplit submits a graphics job as two jobs.
// The first executes the geometry work without
// terminating the render. The second executes the
// terminate control stream with the fragment work.
// The job's split-control fields are restored on
// every return path.
func (p *processor) submitSplit(c *GraphicsCmd) error {
	if c.TerminateCtrlStream == 0 {
		panic("queue: split graphics command has no terminate control stream")
	}
	job := c.Job
	addr, term, runFrag := job.CtrlStreamAddr, job.GeometryTerminate, job.RunFrag
	defer func() {
		job.CtrlStreamAddr = addr
		job.GeometryTerminate = term
		job.RunFrag = runFrag
	}()
	p.q.d.log.Debug("splitting graphics job", "label", job.Label, "layers", c.FramebufferLayers)

	job.GeometryTerminate = false
	job.RunFrag = false
	geom, err := p.jobSync(StageGeom)
	if err != nil {
		return err
	}
	if err := p.q.render.Submit(job, geom, nil); err != nil {
		geom.Signal.Destroy()
		return err
	}
	p.cmdBuf[StageGeom].Replace(geom.Signal)

	job.GeometryTerminate = term
	job.RunFrag = runFrag
	job.CtrlStreamAddr = c.TerminateCtrlStream
	frag, err := p.jobSync(StageFrag)
	if err != nil {
		return err
	}
	if err := p.q.render.Submit(job, &driver.JobSync{}, frag); err != nil {
		frag.Signal.Destroy()
		return err
	}
	p.cmdBuf[StageFrag].Replace(frag.Signal)
	return nil
}
