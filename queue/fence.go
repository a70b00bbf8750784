// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package queue

import (
	"time"

	"github.com/pkg/errors"

	"github.com/gviegas/qsync/driver"
)

// Fence synchronizes the host with the completion of a
// Submit call.
type Fence struct {
	d    *Device
	sync driver.Sync
}

// NewFence creates a new, unsignaled fence.
func (d *Device) NewFence() (*Fence, error) {
	s, err := d.ws.NewSync()
	if err != nil {
		return nil, err
	}
	return &Fence{d: d, sync: s}, nil
}

// Destroy destroys the fence.
func (f *Fence) Destroy() {
	if f.sync != nil {
		f.sync.Destroy()
	}
	*f = Fence{}
}

// Wait blocks until the fence is signaled or the
// timeout expires, in which case it returns
// driver.ErrTimeout.
func (f *Fence) Wait(timeout time.Duration) error {
	err := f.sync.Wait(driver.WaitComplete, timeout)
	if errors.Is(err, driver.ErrDeviceLost) {
		f.d.log.Warn("device lost while waiting for fence")
	}
	return err
}

// Status reports whether the fence is signaled.
func (f *Fence) Status() (bool, error) {
	switch err := f.sync.Wait(driver.WaitComplete, 0); err {
	case nil:
		return true, nil
	case driver.ErrTimeout:
		return false, nil
	default:
		return false, errors.Wrap(err, "fence status")
	}
}

// Reset unsignals the fence.
func (f *Fence) Reset() error {
	s, err := f.d.ws.NewSync()
	if err != nil {
		return err
	}
	f.sync.Destroy()
	f.sync = s
	return nil
}

// Sync returns the Sync of the fence.
// Ownership is not transferred.
func (f *Fence) Sync() driver.Sync { return f.sync }
