// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package queue

import (
	"github.com/gviegas/qsync/driver"
)

// SubCmd is the interface that defines a recorded
// sub-command.
// The set of implementations is closed: GraphicsCmd,
// ComputeCmd, TransferCmd, OcclusionQueryCmd and
// EventCmd.
type SubCmd interface {
	accept(v subCmdVisitor) error
}

// subCmdVisitor must be implemented by anything that
// dispatches on sub-command kinds.
type subCmdVisitor interface {
	graphics(c *GraphicsCmd) error
	compute(c *ComputeCmd) error
	transfer(c *TransferCmd) error
	occlusionQuery(c *OcclusionQueryCmd) error
	event(c *EventCmd) error
}

// GraphicsCmd is a geometry/fragment sub-command.
type GraphicsCmd struct {
	// Job is the hardware job.
	// Its split-control fields are modified while the
	// command is submitted and restored afterwards.
	Job *driver.RenderJob
	// FramebufferLayers is the number of layers of the
	// render target.
	FramebufferLayers int
	// TerminateCtrlStream is the address of a control
	// stream that only terminates the render.
	// It must be valid if RequiresSplit returns true.
	TerminateCtrlStream driver.DevAddr
	// HasOcclusionQuery indicates whether the fragment
	// work consumes occlusion query results.
	HasOcclusionQuery bool
}

// RequiresSplit reports whether the command must be
// submitted as two dependent jobs.
// Terminating a render clears the render target cache,
// which drops primitives still in flight when several
// layers share one control stream.
func (c *GraphicsCmd) RequiresSplit() bool {
	return c.Job.RunFrag && c.FramebufferLayers > 1
}

func (c *GraphicsCmd) accept(v subCmdVisitor) error { return v.graphics(c) }

// ComputeCmd is a compute dispatch sub-command.
type ComputeCmd struct {
	Job *driver.ComputeJob
}

func (c *ComputeCmd) accept(v subCmdVisitor) error { return v.compute(c) }

// TransferCmd is a transfer sub-command.
type TransferCmd struct {
	Job *driver.TransferJob
	// SerializeWithFrag causes the transfer to wait for
	// prior fragment work and later fragment work to
	// wait for the transfer.
	SerializeWithFrag bool
}

func (c *TransferCmd) accept(v subCmdVisitor) error { return v.transfer(c) }

// OcclusionQueryCmd is an occlusion query processing
// sub-command.
// It executes on the query context.
type OcclusionQueryCmd struct {
	Job *driver.ComputeJob
}

func (c *OcclusionQueryCmd) accept(v subCmdVisitor) error { return v.occlusionQuery(c) }

// EventCmd is a synchronization sub-command.
type EventCmd struct {
	Op EventOp
}

func (c *EventCmd) accept(v subCmdVisitor) error { return v.event(c) }

// EventOp is the interface that defines the operation
// of an EventCmd.
// The set of implementations is closed: SetEvent,
// ResetEvent, WaitEvents and Barrier.
type EventOp interface {
	acceptEvent(v eventVisitor) error
}

type eventVisitor interface {
	setEvent(op *SetEvent) error
	resetEvent(op *ResetEvent) error
	waitEvents(op *WaitEvents) error
	barrier(op *Barrier) error
}

// SetEvent signals Event once the work recorded so far
// in the command buffer on stages WaitFor completes.
type SetEvent struct {
	Event   *Event
	WaitFor StageMask
}

func (op *SetEvent) acceptEvent(v eventVisitor) error { return v.setEvent(op) }

// ResetEvent unsignals Event once the work recorded so
// far in the command buffer on stages WaitFor completes.
type ResetEvent struct {
	Event   *Event
	WaitFor StageMask
}

func (op *ResetEvent) acceptEvent(v eventVisitor) error { return v.resetEvent(op) }

// WaitEvents causes subsequent work on stages WaitAt[i]
// to wait for Events[i].
// Events and WaitAt must have the same length.
type WaitEvents struct {
	Events []*Event
	WaitAt []StageMask
}

func (op *WaitEvents) acceptEvent(v eventVisitor) error { return v.waitEvents(op) }

// Barrier causes subsequent work on stages WaitAt to
// wait for prior work on stages WaitFor.
// Within a render pass, only work recorded in the same
// command buffer is considered prior work.
type Barrier struct {
	WaitFor      StageMask
	WaitAt       StageMask
	InRenderPass bool
}

func (op *Barrier) acceptEvent(v eventVisitor) error { return v.barrier(op) }

// CmdBuffer is an ordered list of recorded
// sub-commands.
type CmdBuffer struct {
	Label   string
	SubCmds []SubCmd
}

// Record appends sub-commands to the command buffer.
func (cb *CmdBuffer) Record(cmds ...SubCmd) { cb.SubCmds = append(cb.SubCmds, cmds...) }
