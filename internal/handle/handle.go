// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package handle implements a handle allocator backed by
// a growable bit vector. Handles are small positive
// integers, and freed handles are reused lowest-first,
// mirroring how kernel object tables number syncobjs and
// file descriptors.
package handle

import (
	"iter"
	"math/bits"
)

// nbit is the number of handles tracked per word.
const nbit = 64

// Table is a handle allocator.
// The zero value is an empty table ready for use.
// Table is not safe for concurrent use.
type Table struct {
	s   []uint64
	rem int
}

// Len returns the number of handles the table can hold
// without growing.
func (t *Table) Len() int { return len(t.s) * nbit }

// Rem returns the number of free handles that the table
// can hold without growing.
func (t *Table) Rem() int { return t.rem }

// InUse returns the number of allocated handles.
func (t *Table) InUse() int { return t.Len() - t.rem }

// grow appends nplus empty words to the table.
func (t *Table) grow(nplus int) {
	if nplus > 0 {
		t.rem += nplus * nbit
		t.s = append(t.s, make([]uint64, nplus)...)
	}
}

// Alloc allocates the lowest free handle.
// Handles are always greater than zero.
func (t *Table) Alloc() int {
	if t.rem == 0 {
		n := len(t.s)
		if n == 0 {
			n = 1
		}
		t.grow(n)
	}
	for i, x := range t.s {
		if x == ^uint64(0) {
			continue
		}
		b := bits.TrailingZeros64(^x)
		t.s[i] |= 1 << b
		t.rem--
		return i*nbit + b + 1
	}
	panic("handle: corrupted table")
}

// Free releases h so that it can be allocated again.
// It returns false if h was not allocated.
func (t *Table) Free(h int) bool {
	i, b, ok := t.locate(h)
	if !ok || t.s[i]&b == 0 {
		return false
	}
	t.s[i] &^= b
	t.rem++
	return true
}

// Allocated returns whether h is currently allocated.
func (t *Table) Allocated(h int) bool {
	i, b, ok := t.locate(h)
	return ok && t.s[i]&b != 0
}

// locate returns the word index and bit of h.
func (t *Table) locate(h int) (i int, b uint64, ok bool) {
	if h <= 0 || h > t.Len() {
		return
	}
	h--
	return h / nbit, 1 << (h % nbit), true
}

// All returns an iterator over the allocated handles,
// in increasing order.
func (t *Table) All() iter.Seq[int] {
	return func(yield func(int) bool) {
		for i, x := range t.s {
			for x != 0 {
				b := bits.TrailingZeros64(x)
				if !yield(i*nbit + b + 1) {
					return
				}
				x &^= 1 << b
			}
		}
	}
}

// Clear frees every handle.
func (t *Table) Clear() {
	clear(t.s)
	t.rem = t.Len()
}
