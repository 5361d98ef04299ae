package analysis

import (
	"fmt"
	"sort"
	"sync"
)

// ModuleState tracks whether a module has been populated since it was
// created or last cleared.
type ModuleState int

const (
	ModuleEmpty ModuleState = iota
	ModulePopulated
)

func (s ModuleState) String() string {
	switch s {
	case ModuleEmpty:
		return "empty"
	case ModulePopulated:
		return "populated"
	default:
		return "unknown"
	}
}

// ModuleRecord is the per-file record: top-level bindings, the definition
// token importers depend on, links to the modules it imports and is
// imported by, and caches that are wiped when the file is re-analysed.
type ModuleRecord struct {
	mu      sync.Mutex
	project *Project
	id      ModuleID
	name    string
	value   *Value
	token   *Cell

	version      int
	state        ModuleState
	unit         *Unit
	scope        map[string]*Cell
	defs         map[string]map[Node]struct{}
	references   map[ModuleID]struct{}
	referencedBy map[ModuleID]struct{}
	unresolved   map[string]struct{}
	nodeScopes   map[Node]*Scope
	sites        map[allocKey]*Value
}

func newModuleRecord(p *Project, id ModuleID, name string) *ModuleRecord {
	m := &ModuleRecord{
		project: p,
		id:      id,
		name:    name,
		token:   NewCell(p.limits.maxStrength()),
	}
	m.value = p.alloc(&Value{kind: KindModule, name: name, module: id})
	m.reset()
	return m
}

func (m *ModuleRecord) reset() {
	m.state = ModuleEmpty
	m.scope = make(map[string]*Cell)
	m.defs = make(map[string]map[Node]struct{})
	m.references = make(map[ModuleID]struct{})
	m.referencedBy = make(map[ModuleID]struct{})
	m.unresolved = make(map[string]struct{})
	m.nodeScopes = make(map[Node]*Scope)
	m.sites = make(map[allocKey]*Value)
}

// ID returns the module's registry handle.
func (m *ModuleRecord) ID() ModuleID { return m.id }

// Name returns the module's path.
func (m *ModuleRecord) Name() string { return m.name }

// Value returns the module value importers receive.
func (m *ModuleRecord) Value() *Value { return m.value }

// Token returns the definition cell. Importers are its dependents.
func (m *ModuleRecord) Token() *Cell { return m.token }

// Version returns how many times the module has been cleared.
func (m *ModuleRecord) Version() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.version
}

// State returns whether the module holds bindings.
func (m *ModuleRecord) State() ModuleState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Unit returns the top-level unit, nil until one is attached.
func (m *ModuleRecord) Unit() *Unit {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.unit
}

// SetUnit attaches the unit that analyses the module body.
func (m *ModuleRecord) SetUnit(u *Unit) {
	if u.module != m.id {
		panic(fmt.Sprintf("analysis: unit %s does not belong to module %s", u, m.name))
	}
	m.mu.Lock()
	m.unit = u
	m.mu.Unlock()
}

func (m *ModuleRecord) String() string {
	return fmt.Sprintf("module#%d(%s)", m.id, m.name)
}

// Variable returns the cell of a top-level binding, creating it on demand.
// Code inside the module reads bindings through it.
func (m *ModuleRecord) Variable(name string) *Cell {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.scope[name]
	if !ok {
		c = NewCell(m.token.maxStrength)
		m.scope[name] = c
	}
	return c
}

// GetMember reads an exported binding, creating it empty when absent. u
// depends on the definition token rather than the binding, so any change
// to the module re-runs it.
func (m *ModuleRecord) GetMember(u *Unit, name string) ValueSet {
	m.token.Read(u)
	return m.Variable(name).Types()
}

// SetMember adds value to a top-level binding. On change the importers and
// the binding's own readers are enqueued.
func (m *ModuleRecord) SetMember(u *Unit, node Node, name string, value ValueSet) bool {
	p := u.Project()
	c := m.Variable(name)
	m.mu.Lock()
	m.state = ModulePopulated
	m.mu.Unlock()

	if !p.assign(u, c, p.Limits().AssignedTypes, value, "binding "+m.name+"."+name) {
		m.recordDef(name, node)
		return false
	}
	m.recordDef(name, node)
	if n := p.EnqueueDependents(m.token); n > 0 {
		p.logger.With(map[string]any{
			"module":    m.name,
			"binding":   name,
			"importers": n,
		}).Debugf("Module definition changed")
	}
	return true
}

// GetAllMembers returns every non-empty binding.
func (m *ModuleRecord) GetAllMembers() map[string]ValueSet {
	m.mu.Lock()
	cells := make(map[string]*Cell, len(m.scope))
	for name, c := range m.scope {
		cells[name] = c
	}
	m.mu.Unlock()

	members := make(map[string]ValueSet, len(cells))
	for name, c := range cells {
		if types := c.Types(); !types.IsEmpty() {
			members[name] = types
		}
	}
	return members
}

// Definitions returns the nodes that assigned the binding, in source order.
func (m *ModuleRecord) Definitions(name string) []Node {
	m.mu.Lock()
	nodes := make([]Node, 0, len(m.defs[name]))
	for n := range m.defs[name] {
		nodes = append(nodes, n)
	}
	m.mu.Unlock()
	sortNodes(nodes)
	return nodes
}

func (m *ModuleRecord) recordDef(name string, node Node) {
	if node == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.defs[name]
	if !ok {
		set = make(map[Node]struct{})
		m.defs[name] = set
	}
	set[node] = struct{}{}
}

// NodeScope returns the scope cached for node, creating it with the given
// parent on first use.
func (m *ModuleRecord) NodeScope(node Node, parent *Scope) *Scope {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.nodeScopes[node]
	if !ok {
		s = NewScope(parent, m.token.maxStrength)
		m.nodeScopes[node] = s
	}
	return s
}

func (m *ModuleRecord) allocAt(key allocKey, build func() *Value) *Value {
	m.mu.Lock()
	v, ok := m.sites[key]
	m.mu.Unlock()
	if ok {
		return v
	}
	v = build()
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.sites[key]; ok {
		return existing
	}
	m.sites[key] = v
	return v
}

// ----------------------------------------------------------------------------
// Module graph
// ----------------------------------------------------------------------------

// lockPair locks both modules in ID order.
func lockPair(a, b *ModuleRecord) func() {
	if a.id > b.id {
		a, b = b, a
	}
	a.mu.Lock()
	b.mu.Lock()
	return func() {
		b.mu.Unlock()
		a.mu.Unlock()
	}
}

// AddModuleReference records that m imports other, updating both sides.
// It reports whether the link is new.
func (m *ModuleRecord) AddModuleReference(other *ModuleRecord) bool {
	if other == nil {
		panic("analysis: nil module reference")
	}
	if other == m {
		return false
	}
	unlock := lockPair(m, other)
	defer unlock()
	if _, ok := m.references[other.id]; ok {
		return false
	}
	m.references[other.id] = struct{}{}
	other.referencedBy[m.id] = struct{}{}
	return true
}

// RemoveModuleReference drops the link from m to other on both sides.
func (m *ModuleRecord) RemoveModuleReference(other *ModuleRecord) bool {
	if other == nil {
		panic("analysis: nil module reference")
	}
	if other == m {
		return false
	}
	unlock := lockPair(m, other)
	defer unlock()
	if _, ok := m.references[other.id]; !ok {
		return false
	}
	delete(m.references, other.id)
	delete(other.referencedBy, m.id)
	return true
}

// References returns the modules m imports, ordered by ID.
func (m *ModuleRecord) References() []ModuleID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sortedIDs(m.references)
}

// ReferencedBy returns the modules importing m, ordered by ID.
func (m *ModuleRecord) ReferencedBy() []ModuleID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sortedIDs(m.referencedBy)
}

func sortedIDs(set map[ModuleID]struct{}) []ModuleID {
	ids := make([]ModuleID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// AddUnresolvedImport records an import that could not be resolved yet.
func (m *ModuleRecord) AddUnresolvedImport(specifier string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unresolved[specifier] = struct{}{}
}

// UnresolvedImports returns the pending import specifiers, sorted.
func (m *ModuleRecord) UnresolvedImports() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	specs := make([]string, 0, len(m.unresolved))
	for s := range m.unresolved {
		specs = append(specs, s)
	}
	sort.Strings(specs)
	return specs
}

func (m *ModuleRecord) resolveImport(specifier string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.unresolved, specifier)
}

// Clear drops everything learned about the module ahead of re-analysis.
// Identity and the importers registered on the token survive; links are
// detached on both sides, units created before the call become stale and
// the importers are enqueued.
func (m *ModuleRecord) Clear() {
	m.mu.Lock()
	refs := m.references
	importers := m.referencedBy
	m.version++
	m.unit = nil
	m.reset()
	version := m.version
	m.mu.Unlock()

	p := m.project
	for id := range refs {
		if other := p.moduleByID(id); other != nil {
			other.mu.Lock()
			delete(other.referencedBy, m.id)
			other.mu.Unlock()
		}
	}
	for id := range importers {
		if other := p.moduleByID(id); other != nil {
			other.mu.Lock()
			delete(other.references, m.id)
			other.mu.Unlock()
		}
	}

	m.token.pruneDependents()
	n := p.EnqueueDependents(m.token)
	p.logger.With(map[string]any{
		"module":    m.name,
		"version":   version,
		"importers": n,
	}).Infof("Cleared module")
}

// Scope is a lexical scope below module level: function bodies and blocks.
type Scope struct {
	mu          sync.Mutex
	parent      *Scope
	vars        map[string]*Cell
	maxStrength int
}

// NewScope creates a scope nested in parent (nil for a root scope).
func NewScope(parent *Scope, maxStrength int) *Scope {
	return &Scope{parent: parent, vars: make(map[string]*Cell), maxStrength: maxStrength}
}

// Parent returns the enclosing scope.
func (s *Scope) Parent() *Scope { return s.parent }

// Define returns the cell of name in this scope, creating it if needed.
func (s *Scope) Define(name string) *Cell {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.vars[name]
	if !ok {
		c = NewCell(s.maxStrength)
		s.vars[name] = c
	}
	return c
}

// Lookup finds name in this scope or an enclosing one.
func (s *Scope) Lookup(name string) (*Cell, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		cur.mu.Lock()
		c, ok := cur.vars[name]
		cur.mu.Unlock()
		if ok {
			return c, true
		}
	}
	return nil, false
}

// Names returns the names defined directly in this scope, sorted.
func (s *Scope) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.vars))
	for n := range s.vars {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
