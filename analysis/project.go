package analysis

import (
	"fmt"
	"math"
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Project is the context every analysis runs in: the value arena, the
// module registry, the worklist, limits and logging. Independent projects
// share nothing.
type Project struct {
	opts   Options
	limits Limits
	logger Logger

	arenaMu sync.RWMutex
	values  []*Value
	consts  map[constKey]*Value
	sites   map[allocKey]*Value // allocation-site cache for units without a module

	modMu      sync.RWMutex
	modules    map[string]*ModuleRecord
	byID       map[ModuleID]*ModuleRecord
	nextModule ModuleID
	resolved   *lru.Cache[resolveKey, string]

	queue   *worklist
	unitMu  sync.Mutex
	nextUID int

	statsMu  sync.Mutex
	stats    Stats
	warnings []string
}

// Stats counts engine activity.
type Stats struct {
	Units        int // Units created
	Runs         int // Unit executions
	Enqueued     int // Successful enqueues
	Escalations  int // Merge strength escalations
	Modules      int // Modules currently registered
	Values       int // Values allocated in the arena
	MaxQueueSize int // Largest worklist observed
}

type constKey struct {
	kind Kind
	v    any
}

type nanKey struct{}

// allocKey identifies an allocation: the syntax node and what is allocated
// there (plain objects, arrays, functions or instances of a constructor).
type allocKey struct {
	node  Node
	kind  Kind
	owner ValueID
}

type resolveKey struct {
	from      string
	specifier string
}

// NewProject creates an empty project. Only the first Options value is used.
func NewProject(opts ...Options) (*Project, error) {
	opt := DefaultOptions()
	if len(opts) > 0 {
		opt = opts[0]
	}
	if err := opt.Limits.Validate(); err != nil {
		return nil, fmt.Errorf("invalid limits: %w", err)
	}
	if opt.MaxIterations <= 0 {
		opt.MaxIterations = DefaultOptions().MaxIterations
	}
	if opt.Workers <= 0 {
		opt.Workers = DefaultOptions().Workers
	}
	if opt.ResolveCacheSize <= 0 {
		opt.ResolveCacheSize = DefaultOptions().ResolveCacheSize
	}

	cache, err := lru.New[resolveKey, string](opt.ResolveCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create resolve cache: %w", err)
	}

	p := &Project{
		opts:     opt,
		limits:   opt.Limits,
		logger:   newProjectLogger(opt),
		values:   []*Value{nil, Undefined, Null, Boolean, Number, String},
		consts:   make(map[constKey]*Value),
		sites:    make(map[allocKey]*Value),
		modules:  make(map[string]*ModuleRecord),
		byID:     make(map[ModuleID]*ModuleRecord),
		resolved: cache,
		queue:    newWorklist(),
	}
	return p, nil
}

// Limits returns the project's limits.
func (p *Project) Limits() Limits { return p.limits }

// Options returns the options the project was created with.
func (p *Project) Options() Options { return p.opts }

// Logger returns the project's logger.
func (p *Project) Logger() Logger { return p.logger }

// Stats returns a snapshot of the activity counters.
func (p *Project) Stats() Stats {
	p.statsMu.Lock()
	stats := p.stats
	p.statsMu.Unlock()

	p.modMu.RLock()
	stats.Modules = len(p.modules)
	p.modMu.RUnlock()

	p.arenaMu.RLock()
	stats.Values = len(p.values) - int(firstUserID)
	p.arenaMu.RUnlock()
	return stats
}

// Warnings returns the precision-loss warnings recorded so far.
func (p *Project) Warnings() []string {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	out := make([]string, len(p.warnings))
	copy(out, p.warnings)
	return out
}

func (p *Project) addWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	p.statsMu.Lock()
	p.warnings = append(p.warnings, msg)
	p.statsMu.Unlock()
	p.logger.Warnf("%s", msg)
}

func (p *Project) count(f func(s *Stats)) {
	p.statsMu.Lock()
	f(&p.stats)
	p.statsMu.Unlock()
}

// ----------------------------------------------------------------------------
// Value arena
// ----------------------------------------------------------------------------

// Value resolves a handle. Unknown handles resolve to nil.
func (p *Project) Value(id ValueID) *Value {
	p.arenaMu.RLock()
	defer p.arenaMu.RUnlock()
	if int(id) >= len(p.values) {
		return nil
	}
	return p.values[id]
}

func (p *Project) alloc(v *Value) *Value {
	p.arenaMu.Lock()
	v.id = ValueID(len(p.values))
	p.values = append(p.values, v)
	p.arenaMu.Unlock()
	return v
}

func (p *Project) constant(kind Kind, c any) *Value {
	key := constKey{kind: kind, v: c}
	if f, ok := c.(float64); ok && math.IsNaN(f) {
		// NaN never equals itself as a map key.
		key.v = nanKey{}
	}
	p.arenaMu.RLock()
	v, ok := p.consts[key]
	p.arenaMu.RUnlock()
	if ok {
		return v
	}

	p.arenaMu.Lock()
	defer p.arenaMu.Unlock()
	if v, ok := p.consts[key]; ok {
		return v
	}
	v = &Value{id: ValueID(len(p.values)), kind: kind, konst: c}
	p.values = append(p.values, v)
	p.consts[key] = v
	return v
}

// Int returns the interned integer constant n.
func (p *Project) Int(n int64) *Value { return p.constant(KindNumber, n) }

// Float returns the interned number constant f.
func (p *Project) Float(f float64) *Value { return p.constant(KindNumber, f) }

// Str returns the interned string constant s.
func (p *Project) Str(s string) *Value { return p.constant(KindString, s) }

// Bool returns the interned boolean constant b.
func (p *Project) Bool(b bool) *Value { return p.constant(KindBoolean, b) }

// allocAt returns the value allocated at a syntax node, creating it with
// build on first use. Re-running a unit must find the same values again or
// the fixpoint would never be reached. A nil node always allocates.
func (p *Project) allocAt(u *Unit, key allocKey, build func() *Value) *Value {
	if key.node == nil {
		return p.alloc(build())
	}
	var m *ModuleRecord
	if u != nil {
		m = u.Module()
	}
	if m != nil {
		return m.allocAt(key, func() *Value { return p.alloc(build()) })
	}

	p.arenaMu.RLock()
	v, ok := p.sites[key]
	p.arenaMu.RUnlock()
	if ok {
		return v
	}
	v = p.alloc(build())
	p.arenaMu.Lock()
	defer p.arenaMu.Unlock()
	if existing, ok := p.sites[key]; ok {
		return existing
	}
	p.sites[key] = v
	return v
}

func declaringModule(u *Unit) (ModuleID, int) {
	if u == nil {
		return 0, 0
	}
	if m := u.Module(); m != nil {
		return m.id, m.Version()
	}
	return 0, 0
}

// NewObject returns the plain object allocated at decl.
func (p *Project) NewObject(u *Unit, decl Node) *Value {
	return p.allocAt(u, allocKey{node: decl, kind: KindObject}, func() *Value {
		mod, ver := declaringModule(u)
		v := &Value{kind: KindObject, decl: decl}
		v.object = newExpando(v, mod, ver, p.limits.maxStrength())
		return v
	})
}

// NewArray returns the array allocated at decl.
func (p *Project) NewArray(u *Unit, decl Node) *Value {
	return p.allocAt(u, allocKey{node: decl, kind: KindArray}, func() *Value {
		mod, ver := declaringModule(u)
		v := &Value{kind: KindArray, decl: decl}
		v.object = newExpando(v, mod, ver, p.limits.maxStrength())
		v.array = newArray(v.object)
		return v
	})
}

// NewFunction returns the function declared at decl. The body runs as its
// own unit, scheduled on the first call.
func (p *Project) NewFunction(u *Unit, decl Node, name string, params []string, body UnitFunc) *Value {
	return p.allocAt(u, allocKey{node: decl, kind: KindFunction}, func() *Value {
		mod, ver := declaringModule(u)
		v := &Value{kind: KindFunction, decl: decl, name: name}
		v.object = newExpando(v, mod, ver, p.limits.maxStrength())
		v.fn = newFunction(p, params)

		proto := p.alloc(&Value{kind: KindObject, decl: decl, name: name + ".prototype"})
		proto.object = newExpando(proto, mod, ver, p.limits.maxStrength())
		v.fn.prototype = proto.id

		var owner *ModuleRecord
		if u != nil {
			owner = u.Module()
		}
		v.fn.body = p.NewUnit(name, owner, body)
		return v
	})
}

// NativeFunction creates a function implemented in Go.
func (p *Project) NativeFunction(name string, impl NativeFunc) *Value {
	v := &Value{kind: KindFunction, name: name}
	v.object = newExpando(v, 0, 0, p.limits.maxStrength())
	v.fn = newFunction(p, nil)
	v.fn.native = impl
	return p.alloc(v)
}

// instanceAt returns the instance constructed by ctor at decl.
func (p *Project) instanceAt(u *Unit, decl Node, ctor *Value) *Value {
	return p.allocAt(u, allocKey{node: decl, kind: KindObject, owner: ctor.id}, func() *Value {
		mod, ver := declaringModule(u)
		v := &Value{kind: KindObject, decl: decl, proto: ctor.fn.prototype, name: ctor.name}
		v.object = newExpando(v, mod, ver, p.limits.maxStrength())
		return v
	})
}

// ----------------------------------------------------------------------------
// Units and the worklist
// ----------------------------------------------------------------------------

// NewUnit creates an analysis unit owned by m (nil for project-level work).
// The unit is not scheduled; call Enqueue.
func (p *Project) NewUnit(name string, m *ModuleRecord, fn UnitFunc) *Unit {
	p.unitMu.Lock()
	p.nextUID++
	id := p.nextUID
	p.unitMu.Unlock()

	u := &Unit{id: id, name: name, project: p, fn: fn}
	if m != nil {
		u.module = m.id
		u.version = m.Version()
	}
	p.count(func(s *Stats) { s.Units++ })
	return u
}

// Enqueue schedules u unless it is already waiting or stale.
func (p *Project) Enqueue(u *Unit) bool {
	if u == nil || !u.Alive() {
		return false
	}
	if !p.queue.push(u) {
		return false
	}
	n := p.queue.len()
	p.count(func(s *Stats) {
		s.Enqueued++
		if n > s.MaxQueueSize {
			s.MaxQueueSize = n
		}
	})
	return true
}

// EnqueueDependents schedules every live dependent of c and returns how
// many were newly queued.
func (p *Project) EnqueueDependents(c *Cell) int {
	n := 0
	for _, u := range c.Dependents() {
		if p.Enqueue(u) {
			n++
		}
	}
	return n
}

// Pending returns the number of queued units.
func (p *Project) Pending() int { return p.queue.len() }

// Cancel drops every queued unit and returns how many were dropped.
func (p *Project) Cancel() int { return p.queue.drop() }

// AssignVariable adds vs to a local variable cell, bounded by the
// AssignedTypes limit. Readers of the cell are enqueued on change.
func (p *Project) AssignVariable(u *Unit, c *Cell, name string, vs ValueSet) bool {
	return p.assign(u, c, p.limits.AssignedTypes, vs, "variable "+name)
}

// assign escalates c against limit, writes vs and enqueues the dependents
// on change.
func (p *Project) assign(u *Unit, c *Cell, limit int, vs ValueSet, what string) bool {
	if c.EscalateIfLarger(limit, vs) {
		p.count(func(s *Stats) { s.Escalations++ })
		p.logger.With(map[string]any{
			"slot":     what,
			"strength": c.Strength(),
			"limit":    limit,
			"incoming": summarize(vs, p.opts.Log),
		}).Debugf("Escalated merge strength")
	}
	if !c.Write(u, vs) {
		return false
	}
	if c.Oversized(limit) {
		p.addWarning("%s holds %d values at maximum merge strength (limit %d)", what, c.Types().Len(), limit)
	}
	if n := p.EnqueueDependents(c); n > 0 {
		p.logger.With(map[string]any{
			"slot":       what,
			"dependents": n,
			"values":     summarize(c.Types(), p.opts.Log),
		}).Debugf("Enqueued dependents")
	}
	return true
}

// ----------------------------------------------------------------------------
// Module registry
// ----------------------------------------------------------------------------

// AddModule registers a module, or returns the existing one with that name.
// Importers waiting on the name are re-enqueued.
func (p *Project) AddModule(name string) *ModuleRecord {
	p.modMu.Lock()
	if m, ok := p.modules[name]; ok {
		p.modMu.Unlock()
		return m
	}
	p.nextModule++
	m := newModuleRecord(p, p.nextModule, name)
	p.modules[name] = m
	p.byID[m.id] = m
	waiting := make([]*ModuleRecord, 0)
	for _, other := range p.modules {
		if other != m && len(other.UnresolvedImports()) > 0 {
			waiting = append(waiting, other)
		}
	}
	p.modMu.Unlock()

	p.resolved.Purge()
	p.logger.With(map[string]any{"module": name}).Infof("Added module")

	for _, other := range waiting {
		for _, spec := range other.UnresolvedImports() {
			if target, ok := p.ResolveImport(other, spec); ok && target == m {
				other.resolveImport(spec)
				p.logger.With(map[string]any{
					"module":    other.name,
					"specifier": spec,
				}).Debugf("Resolved pending import")
				p.Enqueue(other.Unit())
			}
		}
	}
	return m
}

// Module returns the module registered under name.
func (p *Project) Module(name string) *ModuleRecord {
	p.modMu.RLock()
	defer p.modMu.RUnlock()
	return p.modules[name]
}

func (p *Project) moduleByID(id ModuleID) *ModuleRecord {
	p.modMu.RLock()
	defer p.modMu.RUnlock()
	return p.byID[id]
}

// Modules returns every registered module ordered by name.
func (p *Project) Modules() []*ModuleRecord {
	p.modMu.RLock()
	mods := make([]*ModuleRecord, 0, len(p.modules))
	for _, m := range p.modules {
		mods = append(mods, m)
	}
	p.modMu.RUnlock()
	sort.Slice(mods, func(i, j int) bool { return mods[i].name < mods[j].name })
	return mods
}

// RemoveModule clears and unregisters a module. Its importers are
// re-enqueued and will record the import as unresolved again.
func (p *Project) RemoveModule(name string) bool {
	m := p.Module(name)
	if m == nil {
		return false
	}
	m.Clear()

	p.modMu.Lock()
	delete(p.modules, name)
	delete(p.byID, m.id)
	p.modMu.Unlock()

	p.resolved.Purge()
	p.logger.With(map[string]any{"module": name}).Infof("Removed module")
	return true
}

// Import resolves specifier from the unit's module. On success the modules
// are linked, u depends on the target's definition token and the target's
// module value is returned; otherwise the import is recorded as unresolved
// and the empty set is returned.
func (p *Project) Import(u *Unit, specifier string) ValueSet {
	from := u.Module()
	if from == nil {
		panic("analysis: import from a unit without a module")
	}
	target, ok := p.ResolveImport(from, specifier)
	if !ok {
		from.AddUnresolvedImport(specifier)
		p.logger.With(map[string]any{
			"module":    from.name,
			"specifier": specifier,
		}).Debugf("Unresolved import")
		return EmptySet()
	}
	from.AddModuleReference(target)
	target.token.Read(u)
	return NewValueSet(target.value)
}
