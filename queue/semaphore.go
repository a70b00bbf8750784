// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package queue

import (
	"github.com/gviegas/qsync/driver"
)

// SemaphoreType is the type of a Semaphore.
type SemaphoreType int

// Semaphore types.
const (
	SemaphoreBinary SemaphoreType = iota
	// Timeline semaphores can be created but not used
	// in submissions.
	SemaphoreTimeline
)

// Semaphore synchronizes submissions.
type Semaphore struct {
	typ  SemaphoreType
	perm driver.Sync
	// Temporary payload. It takes precedence over perm
	// and is dropped once waited on.
	temp driver.Sync
}

// NewSemaphore creates a new semaphore.
func (d *Device) NewSemaphore(typ SemaphoreType) (*Semaphore, error) {
	s, err := d.ws.NewSync()
	if err != nil {
		return nil, err
	}
	return &Semaphore{typ: typ, perm: s}, nil
}

// Destroy destroys the semaphore.
func (s *Semaphore) Destroy() {
	s.dropTemporary()
	if s.perm != nil {
		s.perm.Destroy()
	}
	*s = Semaphore{}
}

// Type returns the semaphore type.
func (s *Semaphore) Type() SemaphoreType { return s.typ }

// ImportDummy installs a temporary payload that has
// nothing to wait for.
func (s *Semaphore) ImportDummy() {
	s.dropTemporary()
	s.temp = driver.Dummy()
}

// Sync returns the active Sync of the semaphore.
// Ownership is not transferred.
func (s *Semaphore) Sync() driver.Sync { return s.active() }

// active returns the temporary payload if there is one,
// and the permanent payload otherwise.
func (s *Semaphore) active() driver.Sync {
	if s.temp != nil {
		return s.temp
	}
	return s.perm
}

func (s *Semaphore) dropTemporary() {
	if s.temp != nil {
		s.temp.Destroy()
		s.temp = nil
	}
}
