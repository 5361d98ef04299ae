package analysis

import (
	"sort"
	"strings"
)

// ValueSet is an immutable, duplicate-free collection of abstract values
// together with the merge strength it was built at. The zero value is the
// empty set. Callers must never modify the slice returned by Values.
type ValueSet struct {
	vals     []*Value
	strength int
}

// EmptySet returns the empty set.
func EmptySet() ValueSet {
	return ValueSet{}
}

// NewValueSet builds a set from values at strength 0.
func NewValueSet(vals ...*Value) ValueSet {
	return ValueSet{}.Union(ValueSet{vals: vals})
}

// Len returns the number of members.
func (vs ValueSet) Len() int { return len(vs.vals) }

// IsEmpty reports whether the set has no members.
func (vs ValueSet) IsEmpty() bool { return len(vs.vals) == 0 }

// Strength returns the merge strength the set was built at.
func (vs ValueSet) Strength() int { return vs.strength }

// Values returns the members. The slice is shared; do not modify it.
func (vs ValueSet) Values() []*Value { return vs.vals }

// Single returns the only member of a singleton set.
func (vs ValueSet) Single() (*Value, bool) {
	if len(vs.vals) != 1 {
		return nil, false
	}
	return vs.vals[0], true
}

// Contains reports whether v is a member (by identity).
func (vs ValueSet) Contains(v *Value) bool {
	for _, m := range vs.vals {
		if m == v {
			return true
		}
	}
	return false
}

// Equal reports whether both sets hold the same members, ignoring order
// and strength.
func (vs ValueSet) Equal(other ValueSet) bool {
	if len(vs.vals) != len(other.vals) {
		return false
	}
	for _, v := range vs.vals {
		if !other.Contains(v) {
			return false
		}
	}
	return true
}

// Kinds returns the distinct kinds present, in Kind order.
func (vs ValueSet) Kinds() []Kind {
	var seen [numKinds]bool
	for _, v := range vs.vals {
		seen[v.kind] = true
	}
	kinds := make([]Kind, 0, len(vs.vals))
	for k := Kind(0); k < numKinds; k++ {
		if seen[k] {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

// ConstantInt returns k when the set has exactly one member and that member
// is an integer constant. A union of two constants is "could be either" and
// yields no constant.
func (vs ValueSet) ConstantInt() (int64, bool) {
	v, ok := vs.Single()
	if !ok {
		return 0, false
	}
	k, ok := v.konst.(int64)
	return k, ok
}

// ConstantString returns s when the set has exactly one member and that
// member is a string constant.
func (vs ValueSet) ConstantString() (string, bool) {
	v, ok := vs.Single()
	if !ok {
		return "", false
	}
	s, ok := v.konst.(string)
	return s, ok
}

// Union merges other into vs at vs's strength. Members of other keep
// whatever merging they already went through but take on no strength of
// their own.
func (vs ValueSet) Union(other ValueSet) ValueSet {
	res, _ := vs.UnionChanged(other)
	return res
}

// UnionChanged is Union that also reports whether the result differs from vs.
func (vs ValueSet) UnionChanged(other ValueSet) (ValueSet, bool) {
	if len(other.vals) == 0 {
		return vs, false
	}

	b := newSetBuilder(vs.strength, len(vs.vals)+len(other.vals))
	// Members of vs are already distinct at its strength.
	b.seed(vs.vals)
	changed := false
	for _, v := range other.vals {
		if b.add(v) {
			changed = true
		}
	}
	if len(b.vals) != len(vs.vals) {
		changed = true
	}
	if !changed {
		return vs, false
	}
	return ValueSet{vals: b.vals, strength: vs.strength}, true
}

// Reduce re-merges the set at strength s. A lower s than the set's own
// strength is ignored: merged members are never split again.
func (vs ValueSet) Reduce(s int) ValueSet {
	res, _ := vs.reduceChanged(s)
	return res
}

// reduceChanged is Reduce that also reports whether any members merged.
func (vs ValueSet) reduceChanged(s int) (ValueSet, bool) {
	if s <= vs.strength {
		return vs, false
	}
	b := newSetBuilder(s, len(vs.vals))
	changed := false
	for _, v := range vs.vals {
		if b.add(v) {
			changed = true
		}
	}
	if len(b.vals) != len(vs.vals) {
		changed = true
	}
	return ValueSet{vals: b.vals, strength: s}, changed
}

func (vs ValueSet) String() string {
	if len(vs.vals) == 0 {
		return "{}"
	}
	parts := make([]string, len(vs.vals))
	for i, v := range vs.vals {
		parts[i] = v.String()
	}
	sort.Strings(parts)
	return "{" + strings.Join(parts, ", ") + "}"
}

// setBuilder accumulates distinct members at a fixed strength.
type setBuilder struct {
	strength int
	vals     []*Value
	index    map[mergeKey]int
}

func newSetBuilder(s, capacity int) *setBuilder {
	return &setBuilder{
		strength: s,
		vals:     make([]*Value, 0, capacity),
		index:    make(map[mergeKey]int, capacity),
	}
}

func (b *setBuilder) seed(vals []*Value) {
	for _, v := range vals {
		b.index[v.mergeKey(b.strength)] = len(b.vals)
		b.vals = append(b.vals, v)
	}
}

// add inserts v, reporting whether an existing representative was replaced.
// Appends are detected by the caller through the length.
func (b *setBuilder) add(v *Value) bool {
	if v == nil {
		return false
	}
	k := v.mergeKey(b.strength)
	if i, ok := b.index[k]; ok {
		cur := b.vals[i]
		merged := cur.UnionMergeTypes(v, b.strength)
		if merged != cur {
			b.vals[i] = merged
			// The new representative may itself be keyed differently.
			b.index[merged.mergeKey(b.strength)] = i
			return true
		}
		return false
	}
	b.index[k] = len(b.vals)
	b.vals = append(b.vals, v)
	return false
}
