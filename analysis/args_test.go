package analysis

import (
	"strings"
	"testing"
)

func TestCombinationCount(t *testing.T) {
	p := newTestProject(t)
	a := p.NewObject(nil, nil)
	b, c := p.NewObject(nil, nil), p.NewObject(nil, nil)
	d, e, f := p.NewObject(nil, nil), p.NewObject(nil, nil), p.NewObject(nil, nil)

	as := FromArgs(3, DefaultLimits(), []ValueSet{set(a), set(b, c), set(d, e, f)})
	if got := as.CombinationCount(); got != 6 {
		t.Errorf("Expected 6 combinations, got %d", got)
	}
	if got := as.DeclaredParamCount(); got != 3 {
		t.Errorf("Expected 3 declared parameters, got %d", got)
	}
	if len(as.Args) != 5 {
		t.Errorf("Expected 5 slots, got %d", len(as.Args))
	}
}

func TestFromArgsBoundsSlots(t *testing.T) {
	p := newTestProject(t)
	limits := DefaultLimits()
	limits.NormalArgumentTypes = 2
	as := FromArgs(1, limits, []ValueSet{set(p.Int(1), p.Int(2), p.Int(3))})
	expectSet(t, "slot 0", as.Arg(0), Number)

	extra := FromArgs(1, DefaultLimits(), []ValueSet{set(Null), set(String), set(Boolean)})
	expectSet(t, "rest slot", extra.Arg(1), String, Boolean)
	if !extra.Arg(2).IsEmpty() {
		t.Errorf("Expected an empty keyword slot, got %v", extra.Arg(2))
	}
	if !extra.Arg(9).IsEmpty() {
		t.Error("Expected out-of-range slots to be empty")
	}
}

func TestFromCallSpreadAndKeywords(t *testing.T) {
	p := newTestProject(t)
	arr := p.NewArray(nil, nil)
	u := p.NewUnit("unit", nil, nil)
	arr.Array().AddTypes(u, nil, []ValueSet{set(Number)})

	site := CallSite{
		Args:     []ValueSet{set(String)},
		Spread:   set(arr),
		Keywords: map[string]ValueSet{"c": set(Null), "other": set(Boolean)},
	}
	as := FromCall([]string{"a", "b", "c"}, DefaultLimits(), site)

	expectSet(t, "a", as.Arg(0), String)
	expectSet(t, "b", as.Arg(1), Number)
	expectSet(t, "c", as.Arg(2), Number, Null)
	expectSet(t, "rest", as.Arg(3), Number)
	expectSet(t, "keywords", as.Arg(4), Boolean)
}

func TestAreCompatible(t *testing.T) {
	p := newTestProject(t)
	a := FromArgs(1, DefaultLimits(), []ValueSet{set(p.Int(1))})
	b := FromArgs(1, DefaultLimits(), []ValueSet{set(p.Int(2), String)})
	d := FromArgs(2, DefaultLimits(), []ValueSet{set(p.Int(1))})

	if !a.AreCompatible(b) {
		t.Error("Expected sets with the same slot count to be compatible")
	}
	if a.AreCompatible(d) {
		t.Error("Expected different arities to be incompatible")
	}
	if got := a.String(); got != "({1}, {}, {})" {
		t.Errorf("Unexpected string form: %s", got)
	}
}

func TestCombinationCountIgnoresReservedSlots(t *testing.T) {
	as := FromArgs(1, DefaultLimits(), []ValueSet{set(Null), set(String), set(Boolean)})
	as.Args[2] = set(Number, Null)
	if got := as.CombinationCount(); got != 1 {
		t.Errorf("Expected 1 combination, got %d", got)
	}
	if got := FromArgs(0, DefaultLimits(), nil).CombinationCount(); got != 1 {
		t.Errorf("Expected 1 combination for an empty call, got %d", got)
	}
}

func TestFromArgsRespectsMaxMergeStrength(t *testing.T) {
	p := newTestProject(t)
	a, b := p.NewObject(nil, nil), p.NewObject(nil, nil)

	limits := DefaultLimits()
	limits.NormalArgumentTypes = 1
	limits.MaxMergeStrength = 0
	as := FromArgs(1, limits, []ValueSet{set(a, b)})
	expectSet(t, "slot 0", as.Arg(0), a, b)
	if got := as.Arg(0).Strength(); got != 0 {
		t.Errorf("Expected strength 0, got %d", got)
	}

	limits.MaxMergeStrength = 1
	as = FromArgs(1, limits, []ValueSet{set(p.Int(1), p.Int(2))})
	expectSet(t, "slot 0", as.Arg(0), Number)
}

func TestFromArgsNegativeCount(t *testing.T) {
	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("Expected a panic for a negative parameter count")
		}
		if msg, ok := r.(string); !ok || !strings.HasPrefix(msg, "analysis:") {
			t.Errorf("Expected an analysis: panic, got %v", r)
		}
	}()
	FromArgs(-1, DefaultLimits(), nil)
}
