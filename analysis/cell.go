package analysis

import "sync"

// Cell is a dependency-tracked slot: a variable, property, array index,
// parameter or return value. Units that read it are recorded as dependents
// and must be re-run when a write changes it.
type Cell struct {
	mu          sync.Mutex
	types       ValueSet
	strength    int
	maxStrength int
	writer      *Unit
	version     int
	dependents  map[*Unit]struct{}
}

// NewCell creates an empty cell that may escalate up to maxStrength.
func NewCell(maxStrength int) *Cell {
	switch {
	case maxStrength < 0:
		maxStrength = 0
	case maxStrength > MaxMergeStrength:
		maxStrength = MaxMergeStrength
	}
	return &Cell{maxStrength: maxStrength}
}

// Read registers u as a dependent (when non-nil) and returns the current set.
func (c *Cell) Read(u *Unit) ValueSet {
	c.mu.Lock()
	defer c.mu.Unlock()
	if u != nil {
		if c.dependents == nil {
			c.dependents = make(map[*Unit]struct{})
		}
		c.dependents[u] = struct{}{}
	}
	return c.types
}

// Types returns the current set without registering a dependency.
func (c *Cell) Types() ValueSet {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.types
}

// Write unions incoming into the cell and reports whether the stored set
// changed. On true the caller must enqueue the dependents.
func (c *Cell) Write(u *Unit, incoming ValueSet) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	base, reduced := c.types.reduceChanged(c.strength)
	res, added := base.UnionChanged(incoming)
	c.types = res
	if !reduced && !added {
		return false
	}
	c.writer = u
	c.version++
	return true
}

// EscalateIfLarger raises the cell's merge strength by one notch when adding
// incoming would leave more than limit members. Only future unions are
// affected; the stored set is re-merged on the next Write.
func (c *Cell) EscalateIfLarger(limit int, incoming ValueSet) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.strength >= c.maxStrength {
		return false
	}
	trial := c.types.Reduce(c.strength).Union(incoming)
	if trial.Len() <= limit {
		return false
	}
	c.strength++
	return true
}

// Oversized reports whether the cell holds more than limit members while
// already at its maximum strength.
func (c *Cell) Oversized(limit int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.strength >= c.maxStrength && c.types.Len() > limit
}

// Strength returns the current merge strength.
func (c *Cell) Strength() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.strength
}

// Writer returns the unit that last changed the cell and the change count.
func (c *Cell) Writer() (*Unit, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writer, c.version
}

// Dependents returns a snapshot of the registered dependents.
func (c *Cell) Dependents() []*Unit {
	c.mu.Lock()
	defer c.mu.Unlock()
	units := make([]*Unit, 0, len(c.dependents))
	for u := range c.dependents {
		units = append(units, u)
	}
	return units
}

// HasLiveDependents reports whether any dependent still belongs to a
// current module version.
func (c *Cell) HasLiveDependents() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for u := range c.dependents {
		if u.Alive() {
			return true
		}
	}
	return false
}

// pruneDependents drops dependents whose module has been cleared since they
// were created.
func (c *Cell) pruneDependents() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for u := range c.dependents {
		if !u.Alive() {
			delete(c.dependents, u)
		}
	}
}

// adopt registers every dependent of other on c.
func (c *Cell) adopt(other *Cell) {
	deps := other.Dependents()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dependents == nil {
		c.dependents = make(map[*Unit]struct{}, len(deps))
	}
	for _, u := range deps {
		c.dependents[u] = struct{}{}
	}
}
