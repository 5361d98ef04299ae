package analysis

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// UnitFunc is the body of an analysis unit. It reads cells (registering the
// unit as a dependent) and writes new values through the engine APIs.
type UnitFunc func(u *Unit) error

// Unit is the smallest piece of work the scheduler re-runs: a module body,
// a function body, a class body.
type Unit struct {
	id      int
	name    string
	project *Project
	module  ModuleID
	version int // module version at creation
	fn      UnitFunc

	queued atomic.Bool
	runs   atomic.Int64
}

// Project returns the project the unit belongs to.
func (u *Unit) Project() *Project { return u.project }

// Name returns the unit's display name.
func (u *Unit) Name() string { return u.name }

// ModuleID returns the owning module, zero for project-level units.
func (u *Unit) ModuleID() ModuleID { return u.module }

// Module returns the owning module record, nil for project-level units or
// when the module has been removed.
func (u *Unit) Module() *ModuleRecord {
	if u.module == 0 {
		return nil
	}
	return u.project.moduleByID(u.module)
}

// Runs returns how many times the unit has executed.
func (u *Unit) Runs() int { return int(u.runs.Load()) }

// Alive reports whether the unit still belongs to the current version of
// its module. Units of a cleared or removed module are stale.
func (u *Unit) Alive() bool {
	if u.module == 0 {
		return true
	}
	m := u.project.moduleByID(u.module)
	return m != nil && m.Version() == u.version
}

func (u *Unit) String() string {
	return fmt.Sprintf("unit#%d(%s)", u.id, u.name)
}

func (u *Unit) run() error {
	u.runs.Add(1)
	if u.fn == nil {
		return nil
	}
	return u.fn(u)
}

// worklist is the FIFO of units waiting to run. A unit is queued at most
// once; it may be queued again as soon as it has been popped.
type worklist struct {
	mu    sync.Mutex
	units []*Unit
}

func newWorklist() *worklist {
	return &worklist{
		units: make([]*Unit, 0, 32),
	}
}

// push adds u unless it is already waiting.
func (w *worklist) push(u *Unit) bool {
	if !u.queued.CompareAndSwap(false, true) {
		return false
	}
	w.mu.Lock()
	w.units = append(w.units, u)
	w.mu.Unlock()
	return true
}

// pop removes and returns the oldest unit.
func (w *worklist) pop() *Unit {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.units) == 0 {
		return nil
	}
	u := w.units[0]
	w.units[0] = nil
	w.units = w.units[1:]
	u.queued.Store(false)
	return u
}

// popAll removes every waiting unit.
func (w *worklist) popAll() []*Unit {
	w.mu.Lock()
	defer w.mu.Unlock()
	units := w.units
	w.units = make([]*Unit, 0, 32)
	for _, u := range units {
		u.queued.Store(false)
	}
	return units
}

// len returns the number of waiting units.
func (w *worklist) len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.units)
}

// drop discards every waiting unit without running it.
func (w *worklist) drop() int {
	return len(w.popAll())
}
