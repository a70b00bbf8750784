// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package driver

import (
	"errors"
	"time"
)

var errDummy = errors.New("driver: operation not supported by dummy sync")

// dummySync is a Sync that carries no payload.
type dummySync struct{}

// Dummy returns a Sync of type SyncDummy.
// Waiting on it always succeeds and destroying it has
// no effect. It cannot receive a payload.
func Dummy() Sync { return dummySync{} }

func (dummySync) Destroy()                           {}
func (dummySync) Type() SyncType                     { return SyncDummy }
func (dummySync) Timeline() bool                     { return false }
func (dummySync) Wait(WaitMode, time.Duration) error { return nil }
func (dummySync) Move(Sync) error                    { return errDummy }
func (dummySync) Export() (SyncFile, error)          { return nil, errDummy }
func (dummySync) Import(SyncFile) error              { return errDummy }
