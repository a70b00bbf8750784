// Copyright 2022 Gustavo C. Viegas. All rights reserved.

// Package fake implements driver interfaces on top of a
// simulated device.
// Jobs execute asynchronously on goroutines: a job starts
// once every Sync it depends on is signaled, occupies one
// of its engine's execution slots for the configured
// latency, and then signals its outputs.
// The driver records every hardware submission and counts
// Sync creation/destruction, which makes it suitable for
// testing code layered on top of package driver.
package fake

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/gviegas/qsync/driver"
	"github.com/gviegas/qsync/internal/handle"
)

const driverName = "fake"

// Duration is a time.Duration that decodes from text
// (e.g., "250us").
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	x, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(x)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Config configures the simulated device.
type Config struct {
	// Latency is how long a job occupies an engine.
	Latency Duration `toml:"latency"`
	// EngineConcurrency is the number of jobs that
	// each engine executes in parallel.
	EngineConcurrency int `toml:"engine_concurrency"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Latency:           Duration(50 * time.Microsecond),
		EngineConcurrency: 2,
	}
}

// Engine identifies a hardware engine.
type Engine int

// Engines.
const (
	EngineNull Engine = iota
	EngineGeom
	EngineFrag
	EngineCompute
	EngineTransfer
	engineN
)

// String implements fmt.Stringer.
func (e Engine) String() string {
	switch e {
	case EngineNull:
		return "null"
	case EngineGeom:
		return "geom"
	case EngineFrag:
		return "frag"
	case EngineCompute:
		return "compute"
	case EngineTransfer:
		return "transfer"
	}
	return fmt.Sprintf("Engine(%d)", int(e))
}

// Driver implements driver.Driver and driver.Winsys.
type Driver struct {
	cfg Config

	mu     sync.Mutex
	open   bool
	syncs  handle.Table
	files  handle.Table
	nfence int
	fences map[int]*fence
	stats  Stats
	subs   []Submission
	fail   failures
	gate   chan struct{}

	// Execution slots, indexed by Engine.
	// EngineNull has no slots: null jobs complete
	// as soon as their dependencies do.
	slots [engineN]*semaphore.Weighted
}

// Stats contains Sync accounting data.
type Stats struct {
	Created   int
	Destroyed int
	Exported  int
}

// Live returns the number of Syncs that were created
// but not yet destroyed.
func (s Stats) Live() int { return s.Created - s.Destroyed }

// Submission records a hardware submission.
type Submission struct {
	Engine Engine
	Label  string
	// Deps contains the IDs of the payloads that the
	// job waited on, barrier included.
	Deps []int
	// Signal is the ID of the payload that the job
	// produced.
	Signal int
	// Barrier is the ID of the barrier payload, or
	// zero if none.
	Barrier int

	// Render job state at submission time.
	CtrlStreamAddr    driver.DevAddr
	GeometryTerminate bool
	RunFrag           bool
}

func init() {
	driver.Register(&Driver{cfg: DefaultConfig()})
}

// New creates a new, unregistered driver that simulates
// a device with the given configuration.
// A nil cfg means DefaultConfig.
func New(cfg *Config) *Driver {
	d := &Driver{cfg: DefaultConfig()}
	if cfg != nil {
		d.cfg = *cfg
	}
	return d
}

// Open initializes the driver.
func (d *Driver) Open() (driver.Winsys, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.open {
		return d, nil
	}
	n := d.cfg.EngineConcurrency
	if n < 1 {
		n = 1
	}
	for e := EngineGeom; e < engineN; e++ {
		d.slots[e] = semaphore.NewWeighted(int64(n))
	}
	d.gate = make(chan struct{})
	close(d.gate)
	d.open = true
	return d, nil
}

// Name returns the driver name.
func (d *Driver) Name() string { return driverName }

// Close deinitializes the driver.
// Pending jobs still complete.
func (d *Driver) Close() {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return
	}
	d.open = false
	d.syncs.Clear()
	d.files.Clear()
	d.stats = Stats{}
	d.subs = nil
	d.fences = nil
	d.fail = failures{}
	d.slots = [engineN]*semaphore.Weighted{}
}

// Driver returns the receiver (for driver.Winsys conformance).
func (d *Driver) Driver() driver.Driver { return d }

// Stats returns the current Sync accounting data.
func (d *Driver) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// Submissions returns a copy of the submission log.
func (d *Driver) Submissions() []Submission {
	d.mu.Lock()
	defer d.mu.Unlock()
	subs := make([]Submission, len(d.subs))
	copy(subs, d.subs)
	return subs
}

// Count returns the number of logged submissions on e.
func (d *Driver) Count(e Engine) (n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.subs {
		if d.subs[i].Engine == e {
			n++
		}
	}
	return
}

// ResetLog discards the submission log.
func (d *Driver) ResetLog() {
	d.mu.Lock()
	d.subs = d.subs[:0]
	d.mu.Unlock()
}

// Hold prevents jobs from starting execution until
// Release is called.
// Jobs that already started are not affected.
func (d *Driver) Hold() {
	d.mu.Lock()
	defer d.mu.Unlock()
	select {
	case <-d.gate:
		d.gate = make(chan struct{})
	default:
	}
}

// Release allows held jobs to execute.
func (d *Driver) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	select {
	case <-d.gate:
	default:
		close(d.gate)
	}
}

// failures tracks injected failures.
// Counters are decremented on every call of the
// respective kind; the call that brings a counter
// to zero fails.
type failures struct {
	newSync int
	submit  int
	fault   [engineN]int
}

// FailNewSync causes the nth next call to NewSync to fail
// with driver.ErrNoHostMemory.
// n must be greater than zero.
func (d *Driver) FailNewSync(n int) {
	d.mu.Lock()
	d.fail.newSync = n
	d.mu.Unlock()
}

// FailSubmit causes the nth next job submission (of any
// kind, null jobs included) to fail with
// driver.ErrNoDeviceMemory.
// n must be greater than zero.
func (d *Driver) FailSubmit(n int) {
	d.mu.Lock()
	d.fail.submit = n
	d.mu.Unlock()
}

// Fault causes the nth next job executed on e to fault,
// which signals its payload with driver.ErrDeviceLost.
// Faults propagate to every job that depends on it.
func (d *Driver) Fault(e Engine, n int) {
	d.mu.Lock()
	d.fail.fault[e] = n
	d.mu.Unlock()
}

// countdown decrements *n if positive and reports
// whether it reached zero.
// d.mu must be held.
func countdown(n *int) bool {
	if *n <= 0 {
		return false
	}
	*n--
	return *n == 0
}

// DependsOn reports whether the current payload of s
// depends, directly or transitively, on the payload
// identified by id.
// A payload depends on itself.
func (d *Driver) DependsOn(s driver.Sync, id int) bool {
	f := payloadOf(s)
	if f == nil {
		return false
	}
	return reaches(f, id)
}

// Reaches reports whether the payload identified by from
// depends, directly or transitively, on the payload
// identified by to.
func (d *Driver) Reaches(from, to int) bool {
	d.mu.Lock()
	f := d.fences[from]
	d.mu.Unlock()
	if f == nil {
		return false
	}
	return reaches(f, to)
}

func reaches(f *fence, id int) bool {
	seen := make(map[*fence]bool)
	var visit func(*fence) bool
	visit = func(f *fence) bool {
		if f.id == id {
			return true
		}
		if seen[f] {
			return false
		}
		seen[f] = true
		for _, dep := range f.deps {
			if visit(dep) {
				return true
			}
		}
		return false
	}
	return visit(f)
}

// PayloadID returns the ID of the current payload of s,
// or zero if s has no payload.
func PayloadID(s driver.Sync) int {
	if f := payloadOf(s); f != nil {
		return f.id
	}
	return 0
}
