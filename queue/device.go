// Copyright 2022 Gustavo C. Viegas. All rights reserved.

// Package queue implements queue submission and
// cross-stage synchronization on top of package driver.
//
// A Device owns one or more queues. Command buffers
// submitted to a Queue are decomposed into hardware jobs
// on independent stages (geometry, fragment, compute,
// transfer and occlusion query), and the ordering that
// events, barriers, semaphores and fences require is
// expressed explicitly as dependencies between driver
// Syncs.
//
// Queue state is not protected against concurrent use:
// the caller must serialize operations on a given queue.
package queue

import (
	"log/slog"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/gviegas/qsync/driver"
)

// Device is the owner of a set of queues.
type Device struct {
	ws     driver.Winsys
	log    *slog.Logger
	queues []*Queue

	// Incremented for every sub-command processed
	// successfully, on any queue.
	submitCount atomic.Uint64
}

// NewDevice creates a new device using ws.
// If cfg is nil, DefaultConfig is used.
func NewDevice(ws driver.Winsys, cfg *Config) (*Device, error) {
	if cfg == nil {
		c := DefaultConfig()
		cfg = &c
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	d := &Device{
		ws:     ws,
		log:    cfg.logger(),
		queues: make([]*Queue, 0, cfg.Queues),
	}
	for i := range cfg.Queues {
		q, err := d.newQueue(i, cfg.Priority)
		if err != nil {
			d.Destroy()
			return nil, errors.Wrapf(err, "queue: creating queue %d", i)
		}
		d.queues = append(d.queues, q)
	}
	d.log.Debug("device created", "driver", ws.Driver().Name(), "queues", cfg.Queues, "priority", cfg.Priority)
	return d, nil
}

// Destroy destroys the device and its queues.
// Every Event, Semaphore and Fence created from d must
// have been destroyed already.
func (d *Device) Destroy() {
	for _, q := range d.queues {
		q.destroy()
	}
	d.queues = nil
}

// Queue returns the queue at index i.
func (d *Device) Queue(i int) *Queue { return d.queues[i] }

// Queues returns the number of queues.
func (d *Device) Queues() int { return len(d.queues) }

// SubmitCount returns the number of sub-commands that
// were successfully submitted on any of d's queues.
func (d *Device) SubmitCount() uint64 { return d.submitCount.Load() }

// Logger returns the logger of the device.
func (d *Device) Logger() *slog.Logger { return d.log }

// newQueue creates a new queue whose contexts have the
// given priority.
func (d *Device) newQueue(index int, prio driver.Priority) (q *Queue, err error) {
	q = &Queue{d: d, index: index}
	if q.transfer, err = d.ws.NewTransferCtx(prio); err != nil {
		return nil, err
	}
	if q.compute, err = d.ws.NewComputeCtx(prio); err != nil {
		q.transfer.Destroy()
		return nil, err
	}
	if q.query, err = d.ws.NewComputeCtx(prio); err != nil {
		q.compute.Destroy()
		q.transfer.Destroy()
		return nil, err
	}
	if q.render, err = d.ws.NewRenderCtx(prio); err != nil {
		q.query.Destroy()
		q.compute.Destroy()
		q.transfer.Destroy()
		return nil, err
	}
	return q, nil
}

// fanIn creates a Sync that signals once every Sync in
// srcs signals.
func (q *Queue) fanIn(srcs []driver.Sync) (driver.Sync, error) {
	s, err := q.d.ws.NewSync()
	if err != nil {
		return nil, err
	}
	if err := q.d.ws.NullJob(srcs, s); err != nil {
		s.Destroy()
		return nil, err
	}
	return s, nil
}
