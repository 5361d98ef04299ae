package analysis

import (
	"sort"
	"sync"
)

// PropertyDescriptor holds the slots of one named property. Values is
// created on first access; Get and Set only once an accessor is defined.
type PropertyDescriptor struct {
	Values *Cell
	Get    *Cell
	Set    *Cell
}

// Expando is the open property bag behind objects, arrays and functions.
type Expando struct {
	mu          sync.Mutex
	owner       *Value
	declModule  ModuleID
	declVersion int
	maxStrength int

	descriptors map[string]*PropertyDescriptor
	keyed       *KeyedMap
	defs        map[string]map[Node]struct{}
	refs        map[string]map[Node]struct{}
}

func newExpando(owner *Value, module ModuleID, version, maxStrength int) *Expando {
	return &Expando{
		owner:       owner,
		declModule:  module,
		declVersion: version,
		maxStrength: maxStrength,
		descriptors: make(map[string]*PropertyDescriptor),
		defs:        make(map[string]map[Node]struct{}),
		refs:        make(map[string]map[Node]struct{}),
	}
}

// Owner returns the value this bag belongs to.
func (e *Expando) Owner() *Value { return e.owner }

// DeclaringModule returns the module that allocated the object.
func (e *Expando) DeclaringModule() ModuleID { return e.declModule }

// IsStale reports whether the declaring module has been cleared since the
// object was allocated.
func (e *Expando) IsStale(p *Project) bool {
	if e.declModule == 0 {
		return false
	}
	m := p.moduleByID(e.declModule)
	return m == nil || m.Version() != e.declVersion
}

// Descriptor returns the descriptor of name, or nil when the property has
// never been touched.
func (e *Expando) Descriptor(name string) *PropertyDescriptor {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.descriptors[name]
}

func (e *Expando) descriptor(name string) *PropertyDescriptor {
	e.mu.Lock()
	defer e.mu.Unlock()
	d, ok := e.descriptors[name]
	if !ok {
		d = &PropertyDescriptor{}
		e.descriptors[name] = d
	}
	if d.Values == nil {
		d.Values = NewCell(e.maxStrength)
	}
	return d
}

func (e *Expando) accessors(name string) (get, set *Cell) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if d, ok := e.descriptors[name]; ok {
		return d.Get, d.Set
	}
	return nil, nil
}

// GetMember returns the values of the named property. u is registered
// whether or not the property exists yet, so a later SetMember re-runs it.
// Missing own properties fall back to the prototype chain and getters are
// invoked with the owner as receiver.
func (e *Expando) GetMember(u *Unit, name string) ValueSet {
	res := e.ownMember(u, name)
	if !res.IsEmpty() {
		return res
	}
	p := u.Project()
	seen := map[ValueID]bool{e.owner.id: true}
	for proto := e.owner.proto; proto != 0 && !seen[proto]; {
		seen[proto] = true
		pv := p.Value(proto)
		if pv == nil || pv.object == nil {
			break
		}
		if res = pv.object.ownMember(u, name); !res.IsEmpty() {
			return res
		}
		proto = pv.proto
	}
	return res
}

func (e *Expando) ownMember(u *Unit, name string) ValueSet {
	d := e.descriptor(name)
	res := d.Values.Read(u)
	get, _ := e.accessors(name)
	if get == nil {
		return res
	}
	p := u.Project()
	this := NewValueSet(e.owner)
	for _, getter := range get.Read(u).Values() {
		if getter.fn != nil {
			res = res.Union(p.invoke(u, getter, this, ArgumentSet{}))
		}
	}
	return res
}

// SetMember adds value to the named property, escalating its merge
// strength when it grows past the instance member limit, and calls any
// setter with the value.
func (e *Expando) SetMember(u *Unit, node Node, name string, value ValueSet) bool {
	p := u.Project()
	d := e.descriptor(name)
	changed := p.assign(u, d.Values, p.Limits().InstanceMembers, value, "property "+name)

	if _, set := e.accessors(name); set != nil {
		this := NewValueSet(e.owner)
		for _, setter := range set.Read(u).Values() {
			if setter.fn != nil {
				args := FromArgs(len(setter.fn.params), p.Limits(), []ValueSet{value})
				p.invoke(u, setter, this, args)
			}
		}
	}
	e.record(e.defs, name, node)
	return changed
}

// DeleteMember records a reference to the property. Removal is never
// modelled: the property keeps every value it ever held.
func (e *Expando) DeleteMember(u *Unit, node Node, name string) {
	e.record(e.refs, name, node)
}

// DefineGetter adds fn to the property's getter slot.
func (e *Expando) DefineGetter(u *Unit, node Node, name string, fn ValueSet) bool {
	return e.defineAccessor(u, node, name, fn, false)
}

// DefineSetter adds fn to the property's setter slot.
func (e *Expando) DefineSetter(u *Unit, node Node, name string, fn ValueSet) bool {
	return e.defineAccessor(u, node, name, fn, true)
}

func (e *Expando) defineAccessor(u *Unit, node Node, name string, fn ValueSet, setter bool) bool {
	d := e.descriptor(name)
	e.mu.Lock()
	slot := &d.Get
	if setter {
		slot = &d.Set
	}
	if *slot == nil {
		*slot = NewCell(e.maxStrength)
	}
	c := *slot
	e.mu.Unlock()

	p := u.Project()
	if !p.assign(u, c, p.Limits().InstanceMembers, fn, "accessor "+name) {
		return false
	}
	// Readers only registered on the value cell if the accessor was new.
	p.EnqueueDependents(d.Values)
	e.record(e.defs, name, node)
	return true
}

// GetIndex reads obj[index]. A constant string index reads the named
// property as well as the keyed entries.
func (e *Expando) GetIndex(u *Unit, index ValueSet) ValueSet {
	res := e.keyedMap().GetValues(u, index)
	if s, ok := index.ConstantString(); ok {
		res = res.Union(e.GetMember(u, s))
	}
	return res
}

// SetIndex writes obj[index] = value. A constant string index updates the
// named property, so obj["x"] and obj.x share a slot.
func (e *Expando) SetIndex(u *Unit, node Node, index, value ValueSet) bool {
	changed := e.keyedMap().AddTypes(u, index, value)
	if s, ok := index.ConstantString(); ok {
		if e.SetMember(u, node, s, value) {
			changed = true
		}
	}
	return changed
}

// Keyed returns the computed-key map, nil when no index was ever used.
func (e *Expando) Keyed() *KeyedMap {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.keyed
}

func (e *Expando) keyedMap() *KeyedMap {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.keyed == nil {
		e.keyed = NewKeyedMap(e.maxStrength)
	}
	return e.keyed
}

// GetAllMembers returns the properties someone still reads: every
// non-empty value cell with at least one live dependent.
func (e *Expando) GetAllMembers() map[string]ValueSet {
	e.mu.Lock()
	cells := make(map[string]*Cell, len(e.descriptors))
	for name, d := range e.descriptors {
		if d.Values != nil {
			cells[name] = d.Values
		}
	}
	e.mu.Unlock()

	members := make(map[string]ValueSet, len(cells))
	for name, c := range cells {
		if !c.HasLiveDependents() {
			continue
		}
		if types := c.Types(); !types.IsEmpty() {
			members[name] = types
		}
	}
	return members
}

// MemberNames returns every property that has been written, sorted.
func (e *Expando) MemberNames() []string {
	e.mu.Lock()
	names := make([]string, 0, len(e.descriptors))
	for name, d := range e.descriptors {
		if d.Values != nil && !d.Values.Types().IsEmpty() {
			names = append(names, name)
		}
	}
	e.mu.Unlock()
	sort.Strings(names)
	return names
}

// Definitions returns the nodes that assigned the property, in source order.
func (e *Expando) Definitions(name string) []Node {
	return e.nodes(e.defs, name)
}

// References returns the nodes that deleted the property, in source order.
func (e *Expando) References(name string) []Node {
	return e.nodes(e.refs, name)
}

func (e *Expando) record(index map[string]map[Node]struct{}, name string, node Node) {
	if node == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	set, ok := index[name]
	if !ok {
		set = make(map[Node]struct{})
		index[name] = set
	}
	set[node] = struct{}{}
}

func (e *Expando) nodes(index map[string]map[Node]struct{}, name string) []Node {
	e.mu.Lock()
	nodes := make([]Node, 0, len(index[name]))
	for n := range index[name] {
		nodes = append(nodes, n)
	}
	e.mu.Unlock()
	sortNodes(nodes)
	return nodes
}

func sortNodes(nodes []Node) {
	sort.Slice(nodes, func(i, j int) bool {
		a, b := nodes[i].Location(), nodes[j].Location()
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Column < b.Column
	})
}
