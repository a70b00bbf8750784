// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package handle

import (
	"slices"
	"testing"
)

func TestZero(t *testing.T) {
	var tb Table
	if tb.s != nil {
		t.Fatalf("tb.s:\nhave %v\nwant nil", tb.s)
	}
	if n := tb.Len(); n != 0 {
		t.Fatalf("tb.Len:\nhave %d\nwant 0", n)
	}
	if n := tb.Rem(); n != 0 {
		t.Fatalf("tb.Rem:\nhave %d\nwant 0", n)
	}
	if tb.Allocated(1) {
		t.Fatal("tb.Allocated(1):\nhave true\nwant false")
	}
	if tb.Free(1) {
		t.Fatal("tb.Free(1):\nhave true\nwant false")
	}
}

func TestAlloc(t *testing.T) {
	var tb Table
	for i := 1; i <= 200; i++ {
		if h := tb.Alloc(); h != i {
			t.Fatalf("tb.Alloc:\nhave %d\nwant %d", h, i)
		}
	}
	if n := tb.InUse(); n != 200 {
		t.Fatalf("tb.InUse:\nhave %d\nwant 200", n)
	}
	if n := tb.Len(); n != 256 {
		t.Fatalf("tb.Len:\nhave %d\nwant 256", n)
	}
	for _, h := range [...]int{1, 64, 65, 130} {
		if !tb.Allocated(h) {
			t.Fatalf("tb.Allocated(%d):\nhave false\nwant true", h)
		}
	}
	if tb.Allocated(201) {
		t.Fatal("tb.Allocated(201):\nhave true\nwant false")
	}
}

func TestFree(t *testing.T) {
	var tb Table
	for range 130 {
		tb.Alloc()
	}
	for _, h := range [...]int{129, 3, 64, 65} {
		if !tb.Free(h) {
			t.Fatalf("tb.Free(%d):\nhave false\nwant true", h)
		}
		if tb.Free(h) {
			t.Fatalf("tb.Free(%d) (again):\nhave true\nwant false", h)
		}
	}
	// Lowest handles are reused first.
	for _, want := range [...]int{3, 64, 65, 129, 131} {
		if h := tb.Alloc(); h != want {
			t.Fatalf("tb.Alloc:\nhave %d\nwant %d", h, want)
		}
	}
	if tb.Free(0) || tb.Free(-1) || tb.Free(tb.Len()+1) {
		t.Fatal("tb.Free(<out of range>):\nhave true\nwant false")
	}
}

func TestAll(t *testing.T) {
	var tb Table
	for range 70 {
		tb.Alloc()
	}
	for h := 1; h <= 70; h++ {
		if h%3 != 0 {
			tb.Free(h)
		}
	}
	var want []int
	for h := 3; h <= 70; h += 3 {
		want = append(want, h)
	}
	if have := slices.Collect(tb.All()); !slices.Equal(have, want) {
		t.Fatalf("tb.All:\nhave %v\nwant %v", have, want)
	}
	tb.Clear()
	if n := tb.InUse(); n != 0 {
		t.Fatalf("tb.InUse (after Clear):\nhave %d\nwant 0", n)
	}
	if h := tb.Alloc(); h != 1 {
		t.Fatalf("tb.Alloc (after Clear):\nhave %d\nwant 1", h)
	}
}
