// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package queue

import (
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/gviegas/qsync/driver"
)

// Queue is a device queue.
type Queue struct {
	d     *Device
	index int

	transfer driver.TransferCtx
	compute  driver.ComputeCtx
	query    driver.ComputeCtx
	render   driver.RenderCtx

	// Completions of every Submit call so far.
	completion Slots
	// Pending barriers, one per stage.
	barriers Slots

	lost bool
}

// destroy destroys the queue.
func (q *Queue) destroy() {
	q.barriers.Clear()
	q.completion.Clear()
	q.render.Destroy()
	q.query.Destroy()
	q.compute.Destroy()
	q.transfer.Destroy()
	*q = Queue{}
}

// Index returns the index of the queue in its device.
func (q *Queue) Index() int { return q.index }

// Lost reports whether q observed a device loss.
func (q *Queue) Lost() bool { return q.lost }

// SemaphoreWait describes a semaphore wait operation.
type SemaphoreWait struct {
	Semaphore *Semaphore
	// DstStage is the set of pipeline stages that
	// must wait.
	DstStage PipelineStage
}

// SubmitInfo describes a single submission.
type SubmitInfo struct {
	Waits      []SemaphoreWait
	CmdBuffers []*CmdBuffer
	Signals    []*Semaphore
}

// Submit submits a batch of submissions to the queue.
// If fence is not nil, it is signaled when every
// submission completes.
//
// Submissions are processed in order and processing
// stops at the first failure. Work submitted before the
// failure is not rolled back: the queue keeps track of
// it, so WaitIdle still waits for it.
func (q *Queue) Submit(submits []SubmitInfo, fence *Fence) error {
	if q.lost {
		return driver.ErrDeviceLost
	}
	var call Slots
	defer q.completion.Merge(&call)
	for i := range submits {
		if err := q.submit(&submits[i], &call); err != nil {
			q.d.log.Error("submission failed", "queue", q.index, "submission", i, "err", err)
			return errors.Wrapf(err, "queue %d: submission %d", q.index, i)
		}
	}
	if fence != nil {
		if err := q.signalFence(fence, &call); err != nil {
			q.d.log.Error("fence signal failed", "queue", q.index, "err", err)
			return errors.Wrapf(err, "queue %d: fence", q.index)
		}
	}
	return nil
}

// submit processes a single submission.
// Its completions are merged into call on return.
func (q *Queue) submit(info *SubmitInfo, call *Slots) error {
	waits, flags := activeWaits(info.Waits)
	var sub Slots
	defer call.Merge(&sub)

	if len(info.CmdBuffers) > 0 {
		for _, cb := range info.CmdBuffers {
			if err := q.processCmdBuffer(cb, waits, flags, &sub, call); err != nil {
				return err
			}
		}
	} else if err := q.submitNull(waits, flags, &sub); err != nil {
		return err
	}

	if len(info.Signals) > 0 {
		if err := q.signalSemaphores(info.Signals, &sub); err != nil {
			return errors.Wrap(err, "signal semaphores")
		}
	}
	for _, w := range info.Waits {
		w.Semaphore.dropTemporary()
	}
	return nil
}

// activeWaits resolves semaphore waits to the Syncs
// they wait on and the stages that must wait.
// Semaphores whose active payload is a dummy have
// nothing to wait for and are left out.
func activeWaits(ws []SemaphoreWait) (waits []driver.Sync, flags []StageMask) {
	for _, w := range ws {
		s := w.Semaphore.active()
		if s.Type() == driver.SyncDummy {
			continue
		}
		if w.Semaphore.typ == SemaphoreTimeline || s.Timeline() {
			panic("queue: timeline semaphores are not supported")
		}
		waits = append(waits, s)
		flags = append(flags, DstStageMask(w.DstStage))
	}
	return
}

// submitNull honors the waits of a submission that has
// no command buffers by submitting a null job for every
// stage that has waits.
func (q *Queue) submitNull(waits []driver.Sync, flags []StageMask, sub *Slots) error {
	var completions Slots
	for st := range AllStages.All() {
		var in []driver.Sync
		for i := range waits {
			if flags[i].Has(st) {
				in = append(in, waits[i])
			}
		}
		if len(in) == 0 {
			continue
		}
		s, err := q.fanIn(in)
		if err != nil {
			completions.Clear()
			return err
		}
		q.d.log.Debug("null job", "queue", q.index, "stage", st, "waits", len(in))
		completions[st].Replace(s)
	}
	sub.Merge(&completions)
	return nil
}

// signalSemaphores merges the completions of a
// submission and signals sems with the result.
func (q *Queue) signalSemaphores(sems []*Semaphore, sub *Slots) error {
	s, err := q.fanIn(sub.Syncs(AllStages))
	if err != nil {
		return err
	}
	defer s.Destroy()
	for _, sem := range sems {
		sem.dropTemporary()
	}
	if len(sems) == 1 {
		return sems[0].perm.Move(s)
	}
	f, err := s.Export()
	if err != nil {
		return err
	}
	for _, sem := range sems {
		if err := sem.perm.Import(f); err != nil {
			f.Close()
			return err
		}
	}
	return f.Close()
}

// signalFence merges the completions of a Submit call
// and moves the result into fence.
func (q *Queue) signalFence(fence *Fence, call *Slots) error {
	s, err := q.fanIn(call.Syncs(AllStages))
	if err != nil {
		return err
	}
	defer s.Destroy()
	return fence.sync.Move(s)
}

// WaitIdle blocks until every job submitted to the
// queue completes.
func (q *Queue) WaitIdle() error {
	if q.lost {
		return driver.ErrDeviceLost
	}
	var g errgroup.Group
	for st := range q.completion.Populated().All() {
		s, _ := q.completion[st].Get()
		g.Go(func() error {
			if err := s.Wait(driver.WaitComplete, driver.Forever); err != nil {
				return errors.Wrapf(err, "queue %d: waiting for %s", q.index, st)
			}
			return nil
		})
	}
	err := g.Wait()
	if errors.Is(err, driver.ErrDeviceLost) {
		q.lost = true
		q.d.log.Warn("device lost", "queue", q.index)
		return driver.ErrDeviceLost
	}
	return err
}
