// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package queue

import (
	"github.com/pkg/errors"

	"github.com/gviegas/qsync/driver"
)

// processor processes the sub-commands of a single
// command buffer.
// It implements both subCmdVisitor and eventVisitor.
type processor struct {
	q *Queue

	// Semaphore waits of the submission and the stages
	// that each wait still applies to.
	waits []driver.Sync
	flags []StageMask

	// Completions of this command buffer.
	cmdBuf Slots
	// Completions of the submission, up to (but not
	// including) this command buffer.
	submit *Slots
	// Completions of previous submissions in the same
	// Submit call.
	call *Slots
}

func (p *processor) graphics(c *GraphicsCmd) error {
	if c.HasOcclusionQuery {
		// Fragment work must not read query results
		// before they are processed.
		err := p.implicitBarrier(StageOcclusionQuery.Mask(), StageFrag.Mask())
		if err != nil {
			return err
		}
	}
	return p.submitGraphics(c)
}

func (p *processor) compute(c *ComputeCmd) error { return p.submitCompute(c.Job) }

func (p *processor) transfer(c *TransferCmd) error {
	if !c.SerializeWithFrag {
		return p.submitTransfer(c.Job)
	}
	if err := p.implicitBarrier(StageFrag.Mask(), StageTransfer.Mask()); err != nil {
		return err
	}
	if err := p.submitTransfer(c.Job); err != nil {
		return err
	}
	return p.implicitBarrier(StageTransfer.Mask(), StageFrag.Mask())
}

func (p *processor) occlusionQuery(c *OcclusionQueryCmd) error {
	return p.submitOcclusionQuery(c.Job)
}

func (p *processor) event(c *EventCmd) error { return c.Op.acceptEvent(p) }

// implicitBarrier processes a barrier that was not
// recorded by the application.
func (p *processor) implicitBarrier(waitFor, waitAt StageMask) error {
	p.q.d.log.Debug("implicit barrier", "from", waitFor, "to", waitAt)
	return p.barrier(&Barrier{WaitFor: waitFor, WaitAt: waitAt})
}

// processCmdBuffer processes every sub-command of cb in
// recorded order.
// It stops at the first sub-command that fails. Work
// submitted before the failure cannot be undone, so the
// completions of cb are merged into submit regardless.
func (q *Queue) processCmdBuffer(cb *CmdBuffer, waits []driver.Sync, flags []StageMask, submit, call *Slots) error {
	p := processor{
		q:      q,
		waits:  waits,
		flags:  flags,
		submit: submit,
		call:   call,
	}
	defer submit.Merge(&p.cmdBuf)
	for i, c := range cb.SubCmds {
		if err := c.accept(&p); err != nil {
			return errors.Wrapf(err, "command buffer %q: sub-command %d (%s)", cb.Label, i, subCmdName(c))
		}
		q.d.submitCount.Add(1)
	}
	return nil
}

// subCmdName returns the kind of c.
func subCmdName(c SubCmd) string {
	switch c := c.(type) {
	case *GraphicsCmd:
		return "graphics"
	case *ComputeCmd:
		return "compute"
	case *TransferCmd:
		return "transfer"
	case *OcclusionQueryCmd:
		return "occlusion query"
	case *EventCmd:
		switch c.Op.(type) {
		case *SetEvent:
			return "set event"
		case *ResetEvent:
			return "reset event"
		case *WaitEvents:
			return "wait events"
		case *Barrier:
			return "barrier"
		}
	}
	return "unknown"
}
