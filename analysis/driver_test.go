package analysis

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func identityFunction(p *Project, decl Node) *Value {
	var fnv *Value
	fnv = p.NewFunction(nil, decl, "id", []string{"x"}, func(u *Unit) error {
		fn := fnv.Function()
		fn.AddReturn(u, fn.Param(0).Read(u))
		return nil
	})
	return fnv
}

func TestCallFlowsArgumentsToReturn(t *testing.T) {
	p := newTestProject(t)
	id := identityFunction(p, node("f.js", 1))

	var a, b ValueSet
	callerA := p.NewUnit("callerA", nil, func(u *Unit) error {
		a = p.Call(u, set(id), EmptySet(), set(p.Int(1)))
		return nil
	})
	callerB := p.NewUnit("callerB", nil, func(u *Unit) error {
		b = p.Call(u, set(id), EmptySet(), set(String))
		return nil
	})
	p.Enqueue(callerA)
	p.Enqueue(callerB)
	analyze(t, p)

	// Return values are shared across call sites.
	expectSet(t, "id(1)", a, p.Int(1), String)
	expectSet(t, "id(s)", b, p.Int(1), String)
	if id.Function().Body().Runs() == 0 {
		t.Error("Expected the body to run")
	}
}

func TestCallHonoursMaxMergeStrength(t *testing.T) {
	p := newTestProject(t, func(o *Options) {
		o.Limits.MaxMergeStrength = 0
		o.Limits.NormalArgumentTypes = 1
	})
	id := identityFunction(p, node("f.js", 1))
	a, b := p.NewObject(nil, node("f.js", 3)), p.NewObject(nil, node("f.js", 4))
	u := p.NewUnit("caller", nil, func(u *Unit) error {
		p.Call(u, set(id), EmptySet(), set(a, b))
		return nil
	})
	p.Enqueue(u)
	analyze(t, p)

	param := id.Function().Param(0)
	if param.Strength() != 0 {
		t.Errorf("Expected the parameter to stay at strength 0, got %d", param.Strength())
	}
	expectSet(t, "parameter", param.Types(), a, b)
	if len(p.Warnings()) == 0 {
		t.Error("Expected a precision warning for the oversized parameter")
	}
}

func TestReturnTypesEscalate(t *testing.T) {
	p := newTestProject(t, func(o *Options) {
		o.Limits.ReturnTypes = 1
		o.Limits.NormalArgumentTypes = 5
	})
	id := identityFunction(p, node("f.js", 1))
	u := p.NewUnit("caller", nil, func(u *Unit) error {
		p.Call(u, set(id), EmptySet(), set(p.Str("a"), p.Str("b")))
		return nil
	})
	p.Enqueue(u)
	analyze(t, p)

	expectSet(t, "returns", id.Function().Returns().Types(), String)
}

func TestConstructAllocatesPerSite(t *testing.T) {
	p := newTestProject(t)
	var ctor *Value
	ctor = p.NewFunction(nil, node("c.js", 1), "Point", []string{"x"}, func(u *Unit) error {
		fn := ctor.Function()
		p.SetMember(u, nil, fn.This().Read(u), "x", fn.Param(0).Read(u))
		return nil
	})
	proto := p.Value(ctor.Function().Prototype())

	site := node("c.js", 5)
	var inst, x, method ValueSet
	u := p.NewUnit("caller", nil, func(u *Unit) error {
		inst = p.Construct(u, site, set(ctor), set(Number))
		x = p.GetMember(u, inst, "x")
		method = p.GetMember(u, inst, "norm")
		return nil
	})
	w := p.NewUnit("proto", nil, func(u *Unit) error {
		proto.Object().SetMember(u, nil, "norm", set(p.NativeFunction("norm", nil)))
		return nil
	})
	p.Enqueue(u)
	p.Enqueue(w)
	analyze(t, p)

	if inst.Len() != 1 {
		t.Fatalf("Expected one instance, got %v", inst)
	}
	v, _ := inst.Single()
	if v.Proto() != proto.ID() || v.Decl() != Node(site) {
		t.Errorf("Expected instance of Point allocated at the call site, got %v", v)
	}
	expectSet(t, "p.x", x, Number)
	if method.Len() != 1 {
		t.Errorf("Expected the inherited method, got %v", method)
	}
}

func TestNativeFunctionCall(t *testing.T) {
	p := newTestProject(t)
	concat := p.NativeFunction("concat", func(u *Unit, this ValueSet, args ArgumentSet) ValueSet {
		if args.Arg(0).Len() != 2 {
			return EmptySet()
		}
		return set(String)
	})
	var got ValueSet
	u := p.NewUnit("caller", nil, func(u *Unit) error {
		got = p.Call(u, set(concat, Null), EmptySet(), set(p.Str("a"), Number))
		return nil
	})
	p.Enqueue(u)
	analyze(t, p)
	expectSet(t, "concat()", got, String)
}

func TestAnalyzeIterationLimit(t *testing.T) {
	p := newTestProject(t, func(o *Options) { o.MaxIterations = 10 })
	var self *Unit
	self = p.NewUnit("spin", nil, func(u *Unit) error {
		p.Enqueue(self)
		return nil
	})
	p.Enqueue(self)

	err := p.Analyze(context.Background())
	if !errors.Is(err, ErrIterationLimit) {
		t.Fatalf("Expected ErrIterationLimit, got %v", err)
	}

	p.Cancel()
	err = p.AnalyzeParallel(context.Background(), 2)
	if err != nil {
		t.Errorf("Expected an empty worklist to finish, got %v", err)
	}
}

func TestAnalyzeUnitError(t *testing.T) {
	p := newTestProject(t)
	boom := errors.New("boom")
	u := p.NewUnit("broken", nil, func(u *Unit) error { return boom })
	p.Enqueue(u)
	if err := p.Analyze(context.Background()); !errors.Is(err, boom) {
		t.Errorf("Expected the unit error, got %v", err)
	}
}

func TestAnalyzeCancelled(t *testing.T) {
	p := newTestProject(t)
	p.Enqueue(p.NewUnit("idle", nil, nil))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Analyze(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if err := p.AnalyzeParallel(ctx, 2); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled from the parallel driver, got %v", err)
	}
}

// buildChain sets up n modules where module i re-exports module i-1's
// value plus its own constant.
func buildChain(t *testing.T, p *Project, n int) []*ModuleRecord {
	t.Helper()
	mods := make([]*ModuleRecord, n)
	for i := 0; i < n; i++ {
		mods[i] = p.AddModule(fmt.Sprintf("m%d.js", i))
	}
	for i, m := range mods {
		i, m := i, m
		u := p.NewUnit(m.Name(), m, func(u *Unit) error {
			vs := set(p.Int(int64(i)))
			if i > 0 {
				prev := p.Import(u, fmt.Sprintf("./m%d.js", i-1))
				vs = vs.Union(p.GetMember(u, prev, "v"))
			}
			m.SetMember(u, nil, "v", vs)
			return nil
		})
		m.SetUnit(u)
	}
	// Enqueue in reverse so importers run before their imports.
	for i := n - 1; i >= 0; i-- {
		p.Enqueue(mods[i].Unit())
	}
	return mods
}

func TestAnalyzeParallelMatchesSerial(t *testing.T) {
	const n = 6
	serial := newTestProject(t)
	smods := buildChain(t, serial, n)
	analyze(t, serial)

	parallel := newTestProject(t)
	pmods := buildChain(t, parallel, n)
	if err := parallel.AnalyzeParallel(context.Background(), 3); err != nil {
		t.Fatalf("Parallel analysis failed: %v", err)
	}

	for i := 0; i < n; i++ {
		s := smods[i].GetMember(nil, "v").String()
		p := pmods[i].GetMember(nil, "v").String()
		if s != p {
			t.Errorf("module %d: serial %s, parallel %s", i, s, p)
		}
		if got := pmods[i].GetMember(nil, "v").Len(); got != i+1 {
			t.Errorf("module %d: expected %d values, got %d", i, i+1, got)
		}
	}
	if parallel.Pending() != 0 {
		t.Errorf("Expected an empty worklist, got %d", parallel.Pending())
	}
}

func TestAnalyzeLogging(t *testing.T) {
	var buf bytes.Buffer
	p := newTestProject(t, func(o *Options) {
		o.Logger = NewLogger(LevelDebug, &buf)
		o.Limits.InstanceMembers = 1
		o.Limits.MaxMergeStrength = 0
	})
	obj := p.NewObject(nil, nil).Object()
	u := p.NewUnit("writer", nil, func(u *Unit) error {
		obj.SetMember(u, nil, "x", set(Number, String))
		return nil
	})
	p.Enqueue(u)
	analyze(t, p)

	logs := buf.String()
	for _, want := range []string{
		"[INFO]", "Starting analysis", "Analysis completed",
		"[DEBUG]", "Running unit", "unit=writer",
		"[WARN]", "property x holds 2 values",
	} {
		if !strings.Contains(logs, want) {
			t.Errorf("Expected logs to contain %q, got:\n%s", want, logs)
		}
	}
	if len(p.Warnings()) != 1 {
		t.Errorf("Expected one precision warning, got %v", p.Warnings())
	}
	stats := p.Stats()
	if stats.Runs != 1 || stats.Units != 1 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
}

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(ParseLogLevel("warn"), &buf)
	logger.Debugf("hidden")
	logger.Infof("hidden")
	logger.With(map[string]any{"module": "a b"}).Warnf("shown %d", 1)

	logs := buf.String()
	if strings.Contains(logs, "hidden") {
		t.Errorf("Expected debug and info to be filtered, got:\n%s", logs)
	}
	if !strings.Contains(logs, `[WARN]`) || !strings.Contains(logs, `shown 1 module="a b"`) {
		t.Errorf("Unexpected log line:\n%s", logs)
	}
	if ParseLogLevel("bogus") != LevelWarn {
		t.Error("Expected unknown levels to default to warn")
	}
}

func TestDebugLinesSummarizeValues(t *testing.T) {
	var buf bytes.Buffer
	p := newTestProject(t, func(o *Options) {
		o.Logger = NewLogger(LevelDebug, &buf)
		o.Log = LogOptions{MaxMembers: 2, MaxProperties: 1}
		o.Limits.AssignedTypes = 10
	})
	m := p.AddModule("a.js")
	point := p.NewObject(nil, node("a.js", 1))
	u := p.NewUnit("a", m, func(u *Unit) error {
		point.Object().SetMember(u, nil, "x", set(Number))
		point.Object().SetMember(u, nil, "y", set(Number))
		m.SetMember(u, nil, "v", set(p.Int(1), p.Int(2), point))
		return nil
	})
	reader := p.NewUnit("reader", nil, func(u *Unit) error {
		m.Variable("v").Read(u)
		return nil
	})
	p.Enqueue(reader)
	p.Enqueue(u)
	analyze(t, p)

	logs := buf.String()
	if !strings.Contains(logs, `values="{1, 2, +1}"`) {
		t.Errorf("Expected a truncated value summary, got:\n%s", logs)
	}

	got := summarize(set(point), LogOptions{MaxProperties: 1}).String()
	if got != "{object{x, +1}}" {
		t.Errorf("Expected {object{x, +1}}, got %s", got)
	}
	if got := summarize(EmptySet(), LogOptions{}).String(); got != "{}" {
		t.Errorf("Expected {}, got %s", got)
	}
}
