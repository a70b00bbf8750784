// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package queue

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/gviegas/qsync/driver"
)

// EventState is the state of an Event.
type EventState int

// Event states.
const (
	EventUnset EventState = iota
	EventSetByDevice
	EventResetByDevice
	EventSetByHost
	EventResetByHost
)

// String implements fmt.Stringer.
func (s EventState) String() string {
	switch s {
	case EventUnset:
		return "unset"
	case EventSetByDevice:
		return "set by device"
	case EventResetByDevice:
		return "reset by device"
	case EventSetByHost:
		return "set by host"
	case EventResetByHost:
		return "reset by host"
	}
	return fmt.Sprintf("EventState(%d)", int(s))
}

// Event is a synchronization primitive that can be set
// and reset both by the host and by command buffers.
type Event struct {
	d     *Device
	state EventState
	// Signaled when the device-side operation that
	// determined state completes.
	sync Slot
}

// NewEvent creates a new event in the unset state.
func (d *Device) NewEvent() *Event { return &Event{d: d} }

// Destroy destroys the event.
func (e *Event) Destroy() {
	e.sync.Clear()
	*e = Event{}
}

// State returns the last state that was recorded for
// the event.
// Device states take effect only once the device
// executes the respective operation, which Status takes
// into account.
func (e *Event) State() EventState { return e.state }

// Status reports whether the event is set.
func (e *Event) Status() (bool, error) {
	switch e.state {
	case EventSetByHost:
		return true, nil
	case EventUnset, EventResetByHost:
		return false, nil
	}
	s, ok := e.sync.Get()
	if !ok {
		return false, nil
	}
	// The event assumes its new state only after the
	// device signals the sync.
	done := true
	switch err := s.Wait(driver.WaitComplete, 0); {
	case err == driver.ErrTimeout:
		done = false
	case err != nil:
		return false, errors.Wrap(err, "event status")
	}
	if e.state == EventSetByDevice {
		return done, nil
	}
	return !done, nil
}

// Set sets the event from the host.
func (e *Event) Set() error { return e.setFromHost(EventSetByHost) }

// Reset resets the event from the host.
func (e *Event) Reset() error { return e.setFromHost(EventResetByHost) }

// setFromHost waits until the pending device-side
// operation on e (if any) is submitted, drops it and
// sets the event state to state.
func (e *Event) setFromHost(state EventState) error {
	if s, ok := e.sync.Get(); ok {
		if err := s.Wait(driver.WaitPending, driver.Forever); err != nil {
			return errors.Wrapf(err, "event %s", state)
		}
		e.sync.Clear()
	}
	e.state = state
	return nil
}

func (p *processor) setEvent(op *SetEvent) error {
	return p.setOrReset(op.Event, op.WaitFor, EventSetByDevice)
}

func (p *processor) resetEvent(op *ResetEvent) error {
	return p.setOrReset(op.Event, op.WaitFor, EventResetByDevice)
}

// setOrReset replaces the sync of e with one that
// signals when the completions of the command buffer
// on stages waitFor signal.
func (p *processor) setOrReset(e *Event, waitFor StageMask, state EventState) error {
	s, err := p.q.fanIn(p.cmdBuf.Syncs(waitFor & SyncStages))
	if err != nil {
		return err
	}
	e.sync.Replace(s)
	e.state = state
	return nil
}

// waitEvents makes every stage that waits on an event
// depend on the event's sync and on the stage's current
// barrier.
// Only the stages named in op are affected.
func (p *processor) waitEvents(op *WaitEvents) error {
	if len(op.Events) != len(op.WaitAt) {
		panic("queue: WaitEvents.Events and WaitEvents.WaitAt lengths differ")
	}
	var dst StageMask
	for _, m := range op.WaitAt {
		dst |= m
	}

	var completions, barriers Slots
	unwind := func() {
		barriers.Clear()
		completions.Clear()
	}
	for st := range dst.All() {
		var srcs []driver.Sync
		if b := p.barrierOf(st); b != nil {
			srcs = append(srcs, b)
		}
		for i, e := range op.Events {
			if !op.WaitAt[i].Has(st) {
				continue
			}
			if s, ok := e.sync.Get(); ok {
				srcs = append(srcs, s)
			}
		}
		c, err := p.q.fanIn(srcs)
		if err != nil {
			unwind()
			return err
		}
		completions[st].Replace(c)
		// Completion and barrier never share a Sync.
		b, err := p.q.fanIn([]driver.Sync{c})
		if err != nil {
			unwind()
			return err
		}
		barriers[st].Replace(b)
	}
	p.cmdBuf.Merge(&completions)
	p.q.barriers.Merge(&barriers)
	return nil
}

// barrier makes work on stages op.WaitAt depend on the
// most recent work on stages op.WaitFor.
// A new barrier is merged with the pending one, so
// consecutive barriers targeting the same stage all
// apply to the next job on that stage.
func (p *processor) barrier(op *Barrier) error {
	var srcs []driver.Sync
	for st := range op.WaitFor.All() {
		s, ok := p.cmdBuf[st].Get()
		if !ok && !op.InRenderPass {
			for _, ss := range [...]*Slots{p.submit, p.call, &p.q.completion} {
				if s, ok = ss[st].Get(); ok {
					break
				}
			}
		}
		if ok {
			srcs = append(srcs, s)
		}
	}
	if len(srcs) == 0 {
		p.q.d.log.Debug("barrier has no prior work", "from", op.WaitFor, "to", op.WaitAt)
		return nil
	}

	var completions, barriers Slots
	unwind := func() {
		barriers.Clear()
		completions.Clear()
	}
	for st := range op.WaitAt.All() {
		c, err := p.q.fanIn(srcs)
		if err != nil {
			unwind()
			return err
		}
		completions[st].Replace(c)
	}
	for st := range op.WaitAt.All() {
		c, _ := completions[st].Get()
		in := []driver.Sync{c}
		if b := p.barrierOf(st); b != nil {
			in = append(in, b)
		}
		b, err := p.q.fanIn(in)
		if err != nil {
			unwind()
			return err
		}
		barriers[st].Replace(b)
	}
	p.cmdBuf.Merge(&completions)
	p.q.barriers.Merge(&barriers)
	return nil
}
