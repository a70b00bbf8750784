// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package driver_test

import (
	"testing"
	"time"

	"github.com/gviegas/qsync/driver"
	_ "github.com/gviegas/qsync/driver/fake"
)

func TestDrivers(t *testing.T) {
	drivers := driver.Drivers()
	if len(drivers) == 0 {
		t.Fatal("driver.Drivers: no drivers registered")
	}
	for i := range drivers {
		name := drivers[i].Name()
		for j := range i {
			if name == drivers[j].Name() {
				t.Error("driver.Drivers: Driver.Name is not unique")
			}
		}
	}
	drivers2 := driver.Drivers()
	if len(drivers) != len(drivers2) {
		t.Error("driver.Drivers: length mismatch")
	} else {
		for i := range drivers {
			if drivers[i].Name() != drivers2[i].Name() {
				t.Error("driver.Drivers: Driver.Name mismatch")
			}
		}
	}
}

func TestLookup(t *testing.T) {
	drv := driver.Lookup("fake")
	if drv == nil {
		t.Fatal("driver.Lookup(\"fake\"):\nhave nil\nwant non-nil")
	}
	if name := drv.Name(); name != "fake" {
		t.Fatalf("Driver.Name:\nhave %q\nwant \"fake\"", name)
	}
	if drv := driver.Lookup("none"); drv != nil {
		t.Fatalf("driver.Lookup(\"none\"):\nhave %v\nwant nil", drv)
	}
}

func TestDriverName(t *testing.T) {
	drv := driver.Lookup("fake")
	name := drv.Name()
	if name == "" {
		t.Error("Driver.Name: name is empty")
	}
	drv.Close()
	if drv.Name() != name {
		t.Error("Driver.Name: unexpected name after call to Close")
	}
	if _, err := drv.Open(); err != nil {
		t.Fatal("Failed to re-Open drv - cannot continue")
	}
	if drv.Name() != name {
		t.Error("Driver.Name: unexpected name after call to Open")
	}
	drv.Close()
}

func TestDummy(t *testing.T) {
	s := driver.Dummy()
	if x := s.Type(); x != driver.SyncDummy {
		t.Fatalf("Sync.Type:\nhave %v\nwant SyncDummy", x)
	}
	for _, m := range [...]driver.WaitMode{driver.WaitComplete, driver.WaitPending} {
		if err := s.Wait(m, 0); err != nil {
			t.Fatalf("Sync.Wait(%v, 0):\nhave %v\nwant nil", m, err)
		}
	}
	if err := s.Wait(driver.WaitComplete, time.Second); err != nil {
		t.Fatalf("Sync.Wait:\nhave %v\nwant nil", err)
	}
	if _, err := s.Export(); err == nil {
		t.Fatal("Sync.Export:\nhave nil\nwant error")
	}
	if err := s.Move(driver.Dummy()); err == nil {
		t.Fatal("Sync.Move:\nhave nil\nwant error")
	}
	s.Destroy()
	s.Destroy()
}

func TestPriorityText(t *testing.T) {
	for _, p := range [...]driver.Priority{driver.PriorityLow, driver.PriorityMedium, driver.PriorityHigh} {
		b, err := p.MarshalText()
		if err != nil {
			t.Fatalf("Priority.MarshalText:\nhave %v\nwant nil", err)
		}
		var q driver.Priority
		if err := q.UnmarshalText(b); err != nil || q != p {
			t.Fatalf("Priority.UnmarshalText(%q):\nhave %v, %v\nwant %v, nil", b, q, err, p)
		}
	}
	var q driver.Priority
	if err := q.UnmarshalText([]byte("urgent")); err == nil {
		t.Fatal("Priority.UnmarshalText(\"urgent\"):\nhave nil\nwant error")
	}
}
