package analysis

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestExpandoReaderSeesLaterWrites(t *testing.T) {
	p := newTestProject(t)
	m := p.AddModule("main.js")
	obj := p.NewObject(nil, node("main.js", 1)).Object()

	var seen ValueSet
	reader := p.NewUnit("reader", m, func(u *Unit) error {
		seen = obj.GetMember(u, "x")
		return nil
	})
	writeNumber := p.NewUnit("write-number", m, func(u *Unit) error {
		obj.SetMember(u, node("main.js", 2), "x", set(Number))
		return nil
	})
	p.Enqueue(reader)
	p.Enqueue(writeNumber)
	analyze(t, p)

	expectSet(t, "x after first write", seen, Number)
	if reader.Runs() != 2 {
		t.Errorf("Expected reader to run twice, got %d", reader.Runs())
	}

	writeString := p.NewUnit("write-string", m, func(u *Unit) error {
		obj.SetMember(u, node("main.js", 3), "x", set(String))
		return nil
	})
	p.Enqueue(writeString)
	analyze(t, p)

	expectSet(t, "x after second write", seen, Number, String)
	if reader.Runs() != 3 {
		t.Errorf("Expected reader to run three times, got %d", reader.Runs())
	}
	if defs := obj.Definitions("x"); len(defs) != 2 || defs[0].Location().Line != 2 {
		t.Errorf("Expected two definitions in source order, got %v", defs)
	}
}

func TestExpandoUnchangedWriteDoesNotRequeue(t *testing.T) {
	p := newTestProject(t)
	obj := p.NewObject(nil, nil).Object()
	reader := p.NewUnit("reader", nil, func(u *Unit) error {
		obj.GetMember(u, "x")
		return nil
	})
	writer := p.NewUnit("writer", nil, func(u *Unit) error {
		obj.SetMember(u, nil, "x", set(Number))
		return nil
	})
	p.Enqueue(writer)
	analyze(t, p)
	p.Enqueue(reader)
	analyze(t, p)

	p.Enqueue(writer)
	analyze(t, p)
	if reader.Runs() != 1 {
		t.Errorf("Expected an unchanged write not to re-run the reader, got %d runs", reader.Runs())
	}
}

func TestExpandoIndexSharesNamedSlot(t *testing.T) {
	p := newTestProject(t)
	obj := p.NewObject(nil, nil).Object()

	var viaName, viaIndex, viaUnknown ValueSet
	u := p.NewUnit("unit", nil, func(u *Unit) error {
		obj.SetIndex(u, nil, set(p.Str("x")), set(Number))
		obj.SetIndex(u, nil, set(p.Str("y")), set(Null))
		viaName = obj.GetMember(u, "x")
		viaIndex = obj.GetIndex(u, set(p.Str("x")))
		viaUnknown = obj.GetIndex(u, set(String))
		return nil
	})
	p.Enqueue(u)
	analyze(t, p)

	expectSet(t, "obj.x", viaName, Number)
	expectSet(t, `obj["x"]`, viaIndex, Number)
	expectSet(t, "obj[unknown]", viaUnknown, Number, Null)
}

func TestExpandoPrototypeChain(t *testing.T) {
	p := newTestProject(t)
	base := p.NewObject(nil, nil)
	child := p.alloc(&Value{kind: KindObject, proto: base.id})
	child.object = newExpando(child, 0, 0, MaxMergeStrength)

	var got ValueSet
	u := p.NewUnit("unit", nil, func(u *Unit) error {
		got = child.object.GetMember(u, "greet")
		return nil
	})
	p.Enqueue(u)
	analyze(t, p)
	if !got.IsEmpty() {
		t.Fatalf("Expected no value before the prototype is written, got %v", got)
	}

	w := p.NewUnit("writer", nil, func(u *Unit) error {
		base.object.SetMember(u, nil, "greet", set(String))
		return nil
	})
	p.Enqueue(w)
	analyze(t, p)
	expectSet(t, "inherited member", got, String)
}

func TestExpandoAccessors(t *testing.T) {
	p := newTestProject(t)
	obj := p.NewObject(nil, nil)

	var setterSaw ValueSet
	getter := p.NativeFunction("get size", func(u *Unit, this ValueSet, args ArgumentSet) ValueSet {
		return set(Number)
	})
	setter := p.NativeFunction("set size", func(u *Unit, this ValueSet, args ArgumentSet) ValueSet {
		setterSaw = setterSaw.Union(args.Arg(0))
		return EmptySet()
	})

	var got ValueSet
	u := p.NewUnit("unit", nil, func(u *Unit) error {
		obj.object.DefineGetter(u, nil, "size", set(getter))
		obj.object.DefineSetter(u, nil, "size", set(setter))
		obj.object.SetMember(u, nil, "size", set(p.Str("big")))
		got = obj.object.GetMember(u, "size")
		return nil
	})
	p.Enqueue(u)
	analyze(t, p)

	expectSet(t, "size", got, p.Str("big"), Number)
	expectSet(t, "setter argument", setterSaw, p.Str("big"))
}

func TestExpandoSetterBindsDeclaredParameters(t *testing.T) {
	p := newTestProject(t)
	obj := p.NewObject(nil, nil)
	setter := p.NewFunction(nil, node("s.js", 1), "set pair", []string{"v", "extra"}, func(u *Unit) error {
		return nil
	})

	u := p.NewUnit("unit", nil, func(u *Unit) error {
		obj.Object().DefineSetter(u, nil, "pair", set(setter))
		obj.Object().SetMember(u, nil, "pair", set(Boolean))
		return nil
	})
	p.Enqueue(u)
	analyze(t, p)

	fn := setter.Function()
	expectSet(t, "v", fn.Param(0).Types(), Boolean)
	if !fn.Param(1).Types().IsEmpty() || !fn.Rest().Types().IsEmpty() || !fn.Keywords().Types().IsEmpty() {
		t.Errorf("Expected only the first parameter to be bound, got extra=%v rest=%v keywords=%v",
			fn.Param(1).Types(), fn.Rest().Types(), fn.Keywords().Types())
	}
	expectSet(t, "receiver", fn.This().Types(), obj)
}

func TestExpandoDeleteOnlyRecordsReference(t *testing.T) {
	p := newTestProject(t)
	obj := p.NewObject(nil, nil).Object()
	del := node("a.js", 9)
	var got ValueSet
	u := p.NewUnit("unit", nil, func(u *Unit) error {
		obj.SetMember(u, nil, "gone", set(Null))
		obj.DeleteMember(u, del, "gone")
		got = obj.GetMember(u, "gone")
		return nil
	})
	p.Enqueue(u)
	analyze(t, p)

	expectSet(t, "deleted member", got, Null)
	if refs := obj.References("gone"); len(refs) != 1 || refs[0] != Node(del) {
		t.Errorf("Expected the delete to be recorded as a reference, got %v", refs)
	}
}

func TestExpandoGetAllMembersSkipsUnreadProperties(t *testing.T) {
	p := newTestProject(t)
	obj := p.NewObject(nil, nil).Object()
	u := p.NewUnit("unit", nil, func(u *Unit) error {
		obj.SetMember(u, nil, "read", set(Number))
		obj.SetMember(u, nil, "unread", set(String))
		obj.GetMember(u, "read")
		return nil
	})
	p.Enqueue(u)
	analyze(t, p)

	got := map[string]string{}
	for name, vs := range obj.GetAllMembers() {
		got[name] = vs.String()
	}
	if diff := cmp.Diff(map[string]string{"read": "{number}"}, got); diff != "" {
		t.Errorf("GetAllMembers mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"read", "unread"}, obj.MemberNames()); diff != "" {
		t.Errorf("MemberNames mismatch (-want +got):\n%s", diff)
	}
}

func TestExpandoInstanceMembersEscalate(t *testing.T) {
	p := newTestProject(t, func(o *Options) { o.Limits.InstanceMembers = 2 })
	obj := p.NewObject(nil, nil).Object()
	u := p.NewUnit("unit", nil, func(u *Unit) error {
		for i := int64(0); i < 5; i++ {
			obj.SetMember(u, nil, "n", set(p.Int(i)))
		}
		return nil
	})
	p.Enqueue(u)
	analyze(t, p)

	d := obj.Descriptor("n")
	if d == nil {
		t.Fatal("Expected a descriptor for n")
	}
	expectSet(t, "n", d.Values.Types(), Number)
	if d.Values.Strength() != 1 {
		t.Errorf("Expected strength 1, got %d", d.Values.Strength())
	}
	if p.Stats().Escalations == 0 {
		t.Error("Expected the escalation to be counted")
	}
}

func TestExpandoStaleAfterModuleClear(t *testing.T) {
	p := newTestProject(t)
	m := p.AddModule("a.js")
	var obj *Value
	u := p.NewUnit("a", m, func(u *Unit) error {
		obj = p.NewObject(u, node("a.js", 1))
		return nil
	})
	p.Enqueue(u)
	analyze(t, p)

	if obj.Object().IsStale(p) {
		t.Fatal("Expected a fresh object not to be stale")
	}
	m.Clear()
	if !obj.Object().IsStale(p) {
		t.Error("Expected the object to be stale once its module is cleared")
	}
}
