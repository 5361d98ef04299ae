package analysis

import (
	"fmt"
	"strings"
)

// ArgumentSet is the bound argument vector of one call: a slot per declared
// parameter, then the rest slot and the keyword slot.
type ArgumentSet struct {
	Args []ValueSet
}

// CallSite describes the arguments at a call expression. Spread holds the
// containers expanded with ...xs; Keywords maps argument names to values.
type CallSite struct {
	Args     []ValueSet
	Spread   ValueSet
	Keywords map[string]ValueSet
}

// FromArgs pads args to declared+2 slots. Positional arguments past the
// declared parameters land in the rest slot. Each slot is merged at the
// lowest strength, up to limits.MaxMergeStrength, that keeps it within
// limits.NormalArgumentTypes.
func FromArgs(declared int, limits Limits, args []ValueSet) ArgumentSet {
	if declared < 0 {
		panic(fmt.Sprintf("analysis: negative declared parameter count %d", declared))
	}
	slots := make([]ValueSet, declared+2)
	for i, a := range args {
		if i < declared {
			slots[i] = a
		} else {
			slots[declared] = slots[declared].Union(a)
		}
	}
	return ArgumentSet{Args: bound(slots, limits)}
}

// FromCall binds a call site against params. Spread elements fill every
// parameter not given positionally as well as the rest slot; keywords go
// to the parameter of the same name or, failing that, the keyword slot.
func FromCall(params []string, limits Limits, site CallSite) ArgumentSet {
	declared := len(params)
	slots := FromArgs(declared, limits, site.Args).Args

	if !site.Spread.IsEmpty() {
		elems := spreadElements(site.Spread)
		start := len(site.Args)
		if start > declared {
			start = declared
		}
		for i := start; i <= declared; i++ {
			slots[i] = slots[i].Union(elems)
		}
	}
	for name, vs := range site.Keywords {
		i := declared + 1
		for j, p := range params {
			if p == name {
				i = j
				break
			}
		}
		slots[i] = slots[i].Union(vs)
	}
	return ArgumentSet{Args: bound(slots, limits)}
}

func spreadElements(spread ValueSet) ValueSet {
	res := EmptySet()
	for _, v := range spread.Values() {
		switch {
		case v.array != nil:
			res = res.Union(v.array.UnionType())
		case v.kind == KindString:
			res = res.Union(NewValueSet(String))
		}
	}
	return res
}

func bound(slots []ValueSet, limits Limits) []ValueSet {
	limit, top := limits.NormalArgumentTypes, limits.maxStrength()
	for i, vs := range slots {
		for s := vs.Strength(); vs.Len() > limit && s < top; {
			s++
			vs = vs.Reduce(s)
		}
		slots[i] = vs
	}
	return slots
}

// DeclaredParamCount returns the number of declared parameter slots.
func (a ArgumentSet) DeclaredParamCount() int {
	if len(a.Args) < 2 {
		return 0
	}
	return len(a.Args) - 2
}

// Arg returns slot i, or the empty set when it does not exist.
func (a ArgumentSet) Arg(i int) ValueSet {
	if i < 0 || i >= len(a.Args) {
		return EmptySet()
	}
	return a.Args[i]
}

// CombinationCount returns how many monomorphic calls the set stands for.
// Only declared parameter slots count; empty and single-valued slots
// contribute a factor of one.
func (a ArgumentSet) CombinationCount() int {
	n := 1
	for _, vs := range a.Args[:a.DeclaredParamCount()] {
		if vs.Len() > 1 {
			n *= vs.Len()
		}
	}
	return n
}

// AreCompatible reports whether both sets have the same number of slots.
func (a ArgumentSet) AreCompatible(other ArgumentSet) bool {
	return len(a.Args) == len(other.Args)
}

func (a ArgumentSet) String() string {
	parts := make([]string, len(a.Args))
	for i, vs := range a.Args {
		parts[i] = vs.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
