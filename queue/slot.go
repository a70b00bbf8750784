// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package queue

import (
	"github.com/gviegas/qsync/driver"
)

// Slot is an optional, owning holder of a driver.Sync.
// The zero value is an empty slot.
type Slot struct {
	s driver.Sync
}

// Get returns the Sync held by the slot, if any.
// Ownership is not transferred.
func (sl *Slot) Get() (driver.Sync, bool) { return sl.s, sl.s != nil }

// Replace destroys the Sync held by the slot, if any,
// and installs s in its place.
// s may be nil, in which case the slot becomes empty.
func (sl *Slot) Replace(s driver.Sync) {
	if sl.s != nil {
		sl.s.Destroy()
	}
	sl.s = s
}

// Take removes the Sync held by the slot and returns it.
// The caller becomes its owner.
func (sl *Slot) Take() driver.Sync {
	s := sl.s
	sl.s = nil
	return s
}

// Clear destroys the Sync held by the slot, if any.
func (sl *Slot) Clear() { sl.Replace(nil) }

// Slots holds one Slot per stage.
type Slots [NStage]Slot

// Merge moves every populated slot of src into the
// respective slot of the receiver, destroying the Sync
// that it replaces.
// Empty slots of src do not affect the receiver.
// src is left empty.
func (ss *Slots) Merge(src *Slots) {
	for i := range src {
		if s := src[i].Take(); s != nil {
			ss[i].Replace(s)
		}
	}
}

// Populated returns the mask of stages whose slots are
// not empty.
func (ss *Slots) Populated() (m StageMask) {
	for i := range ss {
		if ss[i].s != nil {
			m |= Stage(i).Mask()
		}
	}
	return
}

// Syncs returns the Syncs held by slots in m.
// Ownership is not transferred.
func (ss *Slots) Syncs(m StageMask) []driver.Sync {
	syncs := make([]driver.Sync, 0, m.Len())
	for st := range m.All() {
		if s, ok := ss[st].Get(); ok {
			syncs = append(syncs, s)
		}
	}
	return syncs
}

// Clear destroys every Sync held by the slots.
func (ss *Slots) Clear() {
	for i := range ss {
		ss[i].Clear()
	}
}
