// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package driver

import (
	"fmt"
	"math"
	"time"
)

// Winsys is the main interface to an underlying driver
// implementation.
// It creates synchronization objects and hardware contexts,
// and submits null jobs.
// A Winsys is obtained from a call to Driver.Open.
type Winsys interface {
	// Driver returns the Driver that owns the Winsys.
	Driver() Driver

	// NewSync creates a new binary synchronization object.
	// The new Sync has no payload: it only becomes
	// signaled after being used as the signal operation
	// of a submission (or after a payload is moved or
	// imported into it).
	NewSync() (Sync, error)

	// NullJob submits a job that does no work.
	// signal is signaled once every Sync in waits is
	// signaled. It is valid for waits to be empty, in
	// which case signal becomes signaled immediately.
	// waits must not contain nil values.
	NullJob(waits []Sync, signal Sync) error

	// NewRenderCtx creates a new context for geometry and
	// fragment work.
	NewRenderCtx(prio Priority) (RenderCtx, error)

	// NewComputeCtx creates a new context for compute work.
	NewComputeCtx(prio Priority) (ComputeCtx, error)

	// NewTransferCtx creates a new context for transfer work.
	NewTransferCtx(prio Priority) (TransferCtx, error)
}

// Destroyer is the interface that wraps the Destroy method.
// Types that implement this interface may allocate external
// memory that is not managed by GC, so Destroy must be
// called explicitly to ensure such memory is deallocated.
type Destroyer interface {
	Destroy()
}

// SyncType identifies the implementation of a Sync.
type SyncType int

// Sync types.
const (
	// SyncBinary is a regular, kernel-backed Sync.
	SyncBinary SyncType = iota
	// SyncDummy is a Sync that carries no payload.
	// Waiting on it always succeeds immediately.
	SyncDummy
)

// WaitMode selects what a Sync wait operation waits for.
type WaitMode int

// Wait modes.
const (
	// WaitComplete waits until the payload is signaled.
	// If the Sync has no payload yet, it first waits
	// for one to be submitted.
	WaitComplete WaitMode = iota
	// WaitPending only waits until a payload has been
	// submitted, regardless of whether it signaled.
	WaitPending
)

// Forever is a timeout value that never expires.
const Forever time.Duration = math.MaxInt64

// Sync is the interface that defines a synchronization
// object, i.e., an owned handle representing a point of
// hardware-signaled completion.
// A Sync must be destroyed exactly once.
type Sync interface {
	Destroyer

	// Type returns the Sync type.
	Type() SyncType

	// Timeline returns whether the Sync is a timeline.
	Timeline() bool

	// Wait blocks until the condition selected by mode
	// holds or the timeout expires.
	// It returns ErrTimeout if the timeout expired and
	// ErrDeviceLost if the work that was to signal the
	// Sync faulted.
	// A timeout of zero polls the current state.
	Wait(mode WaitMode, timeout time.Duration) error

	// Move transfers the payload of src to the receiver.
	// src is left without a payload.
	Move(src Sync) error

	// Export exports the current payload as a platform
	// handle. The caller must close the handle.
	Export() (SyncFile, error)

	// Import replaces the payload with the one that f
	// refers to. f remains owned by the caller.
	Import(f SyncFile) error
}

// SyncFile is a platform handle referring to a Sync
// payload, suitable for sharing it across objects.
type SyncFile interface {
	Close() error
}

// Priority is the type of a context's scheduling priority.
type Priority int

// Context priorities.
const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
)

// String implements fmt.Stringer.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	}
	return "invalid"
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Priority) UnmarshalText(b []byte) error {
	for x := PriorityLow; x <= PriorityHigh; x++ {
		if x.String() == string(b) {
			*p = x
			return nil
		}
	}
	return fmt.Errorf("driver: invalid priority %q", b)
}

// MarshalText implements encoding.TextMarshaler.
func (p Priority) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// JobSync describes the synchronization of a single
// hardware job.
// The job starts executing only after Barrier (if not
// nil) and every Sync in Waits is signaled. Signal (if
// not nil) is signaled when the job completes.
type JobSync struct {
	Barrier Sync
	Waits   []Sync
	Signal  Sync
}

// DevAddr is a device virtual address.
type DevAddr uint64

// RenderJob is a geometry/fragment job descriptor.
// It is prepared by the command recording layer.
type RenderJob struct {
	// CtrlStreamAddr is the address of the control
	// stream that the geometry work executes.
	CtrlStreamAddr DevAddr
	// GeometryTerminate indicates whether the geometry
	// work terminates the render (clearing the render
	// target cache).
	GeometryTerminate bool
	// RunFrag indicates whether the job has fragment
	// work.
	RunFrag bool
	// Label identifies the job in traces.
	Label string
}

// ComputeJob is a compute job descriptor.
// It is used both for dispatches and for occlusion
// query processing.
type ComputeJob struct {
	Label string
}

// TransferJob is a transfer job descriptor.
type TransferJob struct {
	Label string
}

// RenderCtx is the interface that defines a hardware
// context for geometry and fragment work.
type RenderCtx interface {
	Destroyer

	// Submit submits job for execution.
	// geom describes the synchronization of the geometry
	// part of the job and must not be nil. frag describes
	// the synchronization of the fragment part, and must
	// be nil if and only if job.RunFrag is false.
	Submit(job *RenderJob, geom, frag *JobSync) error
}

// ComputeCtx is the interface that defines a hardware
// context for compute work.
type ComputeCtx interface {
	Destroyer

	// Submit submits job for execution.
	Submit(job *ComputeJob, js *JobSync) error
}

// TransferCtx is the interface that defines a hardware
// context for transfer work.
type TransferCtx interface {
	Destroyer

	// Submit submits job for execution.
	Submit(job *TransferJob, js *JobSync) error
}
