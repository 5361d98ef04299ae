package analysis

import "sync"

// maxTrackedIndex bounds the constant indices that get a cell of their own.
// Writes beyond it are treated like writes through an unknown index.
const maxTrackedIndex = 1024

// Array is the indexed container behind array values: one cell per
// statically known index plus a cached union of all of them. Readers that
// cannot name an index depend on cell 0, which is notified on every change.
type Array struct {
	mu     sync.Mutex
	object *Expando
	cells  []*Cell
	pushes map[Node]int
	union  *ValueSet
}

func newArray(object *Expando) *Array {
	return &Array{
		object: object,
		pushes: make(map[Node]int),
	}
}

// Len returns the number of index cells.
func (a *Array) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.cells)
}

// Cell returns the cell of index i, nil when it does not exist.
func (a *Array) Cell(i int) *Cell {
	a.mu.Lock()
	defer a.mu.Unlock()
	if i < 0 || i >= len(a.cells) {
		return nil
	}
	return a.cells[i]
}

// GetIndex reads arr[index]. A constant integer within range reads exactly
// that cell; anything else depends on cell 0 and yields the union of all
// indices. Constant string indices read the named property.
func (a *Array) GetIndex(u *Unit, index ValueSet) ValueSet {
	if k, ok := index.ConstantInt(); ok {
		if c := a.Cell(int(k)); c != nil {
			return c.Read(u)
		}
	}
	if s, ok := index.ConstantString(); ok {
		return a.object.GetMember(u, s)
	}
	a.ensureCells(1)[0].Read(u)
	return a.UnionType()
}

// SetIndex writes arr[index] = value. An unknown index writes every cell.
func (a *Array) SetIndex(u *Unit, node Node, index, value ValueSet) bool {
	if k, ok := index.ConstantInt(); ok && k >= 0 && k < maxTrackedIndex {
		values := make([]ValueSet, k+1)
		values[k] = value
		return a.AddTypes(u, node, values)
	}
	if s, ok := index.ConstantString(); ok {
		return a.object.SetMember(u, node, s, value)
	}
	n := a.Len()
	if n == 0 {
		n = 1
	}
	values := make([]ValueSet, n)
	for i := range values {
		values[i] = value
	}
	return a.AddTypes(u, node, values)
}

// Push appends value. Each push site owns one index, so re-running the
// pushing unit does not grow the array.
func (a *Array) Push(u *Unit, node Node, value ValueSet) bool {
	a.mu.Lock()
	i, ok := a.pushes[node]
	if !ok || node == nil {
		i = len(a.cells)
		if i >= maxTrackedIndex {
			i = maxTrackedIndex - 1
		}
		if node != nil {
			a.pushes[node] = i
		}
	}
	a.mu.Unlock()

	values := make([]ValueSet, i+1)
	values[i] = value
	return a.AddTypes(u, node, values)
}

// AddTypes writes values[i] into index i, growing the array as needed.
// Empty entries are skipped. When any cell changes the cached union is
// dropped and the readers of cell 0 are enqueued.
func (a *Array) AddTypes(u *Unit, node Node, values []ValueSet) bool {
	p := u.Project()
	cells := a.ensureCells(len(values))

	changed := false
	for i, vs := range values {
		if vs.IsEmpty() {
			continue
		}
		if p.assign(u, cells[i], p.Limits().IndexTypes, vs, "array index") {
			changed = true
		}
	}
	if !changed {
		return false
	}
	a.mu.Lock()
	a.union = nil
	a.mu.Unlock()
	p.EnqueueDependents(cells[0])
	a.object.record(a.object.defs, "[]", node)
	return true
}

// UnionType returns the union of every index cell.
func (a *Array) UnionType() ValueSet {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.union != nil {
		return *a.union
	}
	res := EmptySet()
	for _, c := range a.cells {
		res = res.Union(c.Types())
	}
	a.union = &res
	return res
}

func (a *Array) ensureCells(n int) []*Cell {
	a.mu.Lock()
	defer a.mu.Unlock()
	for len(a.cells) < n {
		a.cells = append(a.cells, NewCell(a.object.maxStrength))
	}
	out := make([]*Cell, len(a.cells))
	copy(out, a.cells)
	return out
}
