// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package fake

import (
	"errors"
	"time"

	"github.com/gviegas/qsync/driver"
)

var (
	errNoPayload   = errors.New("fake: sync has no payload")
	errForeignSync = errors.New("fake: sync not created by this driver")
	errBadFile     = errors.New("fake: invalid sync file")
)

// fence is a payload.
// It is signaled when done is closed, at which point
// err is immutable.
type fence struct {
	id   int
	deps []*fence
	done chan struct{}
	err  error
}

// signaled returns a payload that is already signaled.
func (d *Driver) signaled() *fence {
	f := d.newFence(nil)
	close(f.done)
	return f
}

// newFence creates an unsignaled payload.
// d.mu must not be held.
func (d *Driver) newFence(deps []*fence) *fence {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nfence++
	f := &fence{
		id:   d.nfence,
		deps: deps,
		done: make(chan struct{}),
	}
	if d.fences == nil {
		d.fences = make(map[int]*fence)
	}
	d.fences[f.id] = f
	return f
}

// syncObj implements driver.Sync.
type syncObj struct {
	d      *Driver
	handle int

	// attached is closed if and only if f is not nil.
	// Both are protected by d.mu.
	f        *fence
	attached chan struct{}
}

// NewSync creates a new binary synchronization object.
func (d *Driver) NewSync() (driver.Sync, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if countdown(&d.fail.newSync) {
		return nil, driver.ErrNoHostMemory
	}
	d.stats.Created++
	return &syncObj{
		d:        d,
		handle:   d.syncs.Alloc(),
		attached: make(chan struct{}),
	}, nil
}

// Destroy destroys the sync.
// Destroying a sync twice is a bug in the caller and
// causes a panic.
func (s *syncObj) Destroy() {
	d := s.d
	d.mu.Lock()
	defer d.mu.Unlock()
	if s.handle == 0 || !d.syncs.Free(s.handle) {
		panic("fake: sync destroyed twice")
	}
	s.handle = 0
	d.stats.Destroyed++
}

// Type returns driver.SyncBinary.
func (s *syncObj) Type() driver.SyncType { return driver.SyncBinary }

// Timeline returns false.
func (s *syncObj) Timeline() bool { return false }

// attach installs f as the payload of s.
// d.mu must be held.
func (s *syncObj) attach(f *fence) {
	if s.f == nil {
		close(s.attached)
	}
	s.f = f
}

// detach removes the payload of s.
// d.mu must be held.
func (s *syncObj) detach() *fence {
	f := s.f
	if f != nil {
		s.f = nil
		s.attached = make(chan struct{})
	}
	return f
}

// payload returns the payload of s, or nil.
func (s *syncObj) payload() *fence {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	return s.f
}

// payloadOf returns the payload of s if s is a syncObj.
func payloadOf(s driver.Sync) *fence {
	if so, ok := s.(*syncObj); ok {
		return so.payload()
	}
	return nil
}

// await waits for ch to be closed.
// It returns false if the timeout expires first.
func await(ch <-chan struct{}, timeout time.Duration) bool {
	if timeout <= 0 {
		select {
		case <-ch:
			return true
		default:
			return false
		}
	}
	if timeout == driver.Forever {
		<-ch
		return true
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-ch:
		return true
	case <-t.C:
		return false
	}
}

// Wait waits for s.
func (s *syncObj) Wait(mode driver.WaitMode, timeout time.Duration) error {
	start := time.Now()
	s.d.mu.Lock()
	att := s.attached
	s.d.mu.Unlock()
	if !await(att, timeout) {
		return driver.ErrTimeout
	}
	if mode == driver.WaitPending {
		return nil
	}
	f := s.payload()
	if f == nil {
		// Moved out concurrently.
		return driver.ErrTimeout
	}
	if timeout != driver.Forever && timeout > 0 {
		timeout -= time.Since(start)
	}
	if !await(f.done, timeout) {
		return driver.ErrTimeout
	}
	return f.err
}

// Move transfers the payload of src to s.
func (s *syncObj) Move(src driver.Sync) error {
	d := s.d
	switch src := src.(type) {
	case *syncObj:
		if src.d != d {
			return errForeignSync
		}
		d.mu.Lock()
		defer d.mu.Unlock()
		f := src.detach()
		if f == nil {
			return errNoPayload
		}
		s.attach(f)
		return nil
	default:
		if src.Type() != driver.SyncDummy {
			return errForeignSync
		}
		f := d.signaled()
		d.mu.Lock()
		s.attach(f)
		d.mu.Unlock()
		return nil
	}
}

// syncFile implements driver.SyncFile.
type syncFile struct {
	d      *Driver
	handle int
	f      *fence
}

// Export exports the payload of s.
func (s *syncObj) Export() (driver.SyncFile, error) {
	d := s.d
	d.mu.Lock()
	defer d.mu.Unlock()
	if s.f == nil {
		return nil, errNoPayload
	}
	d.stats.Exported++
	return &syncFile{
		d:      d,
		handle: d.files.Alloc(),
		f:      s.f,
	}, nil
}

// Import replaces the payload of s with the one in f.
func (s *syncObj) Import(f driver.SyncFile) error {
	sf, ok := f.(*syncFile)
	if !ok || sf.d != s.d {
		return errBadFile
	}
	d := s.d
	d.mu.Lock()
	defer d.mu.Unlock()
	if sf.handle == 0 {
		return errBadFile
	}
	s.attach(sf.f)
	return nil
}

// Close closes the file.
func (f *syncFile) Close() error {
	d := f.d
	d.mu.Lock()
	defer d.mu.Unlock()
	if f.handle == 0 || !d.files.Free(f.handle) {
		return errBadFile
	}
	f.handle = 0
	return nil
}

// OpenFiles returns the number of exported sync files
// that were not closed yet.
func (d *Driver) OpenFiles() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.files.InUse()
}
