package analysis

import (
	"strconv"
	"sync/atomic"
)

// NativeFunc implements a function in Go. It receives the bound receiver
// and arguments and returns the call's result.
type NativeFunc func(u *Unit, this ValueSet, args ArgumentSet) ValueSet

// Function is the payload of function values: parameter, receiver and
// return cells plus the unit that analyses the body.
type Function struct {
	params    []string
	args      []*Cell // declared parameters, rest, keywords
	this      *Cell
	returns   *Cell
	body      *Unit
	native    NativeFunc
	prototype ValueID
	called    atomic.Bool
}

func newFunction(p *Project, params []string) *Function {
	s := p.limits.maxStrength()
	f := &Function{
		params:  params,
		args:    make([]*Cell, len(params)+2),
		this:    NewCell(s),
		returns: NewCell(s),
	}
	for i := range f.args {
		f.args[i] = NewCell(s)
	}
	return f
}

// Params returns the declared parameter names.
func (f *Function) Params() []string { return f.params }

// Param returns the cell of parameter i (the rest and keyword slots follow
// the declared ones), nil when out of range.
func (f *Function) Param(i int) *Cell {
	if i < 0 || i >= len(f.args) {
		return nil
	}
	return f.args[i]
}

// ParamIndex returns the slot of the named parameter, or -1.
func (f *Function) ParamIndex(name string) int {
	for i, p := range f.params {
		if p == name {
			return i
		}
	}
	return -1
}

// Rest returns the slot collecting surplus positional arguments.
func (f *Function) Rest() *Cell { return f.args[len(f.params)] }

// Keywords returns the slot collecting unmatched keyword arguments.
func (f *Function) Keywords() *Cell { return f.args[len(f.params)+1] }

// This returns the receiver cell.
func (f *Function) This() *Cell { return f.this }

// Returns returns the return value cell.
func (f *Function) Returns() *Cell { return f.returns }

// Body returns the unit analysing the body, nil for native functions.
func (f *Function) Body() *Unit { return f.body }

// IsNative reports whether the function is implemented in Go.
func (f *Function) IsNative() bool { return f.native != nil }

// Prototype returns the handle of the object instances inherit from.
func (f *Function) Prototype() ValueID { return f.prototype }

// AddReturn adds vs to the function's return values.
func (f *Function) AddReturn(u *Unit, vs ValueSet) bool {
	p := u.Project()
	return p.assign(u, f.returns, p.Limits().ReturnTypes, vs, "return value")
}

// Call calls every function in callee with positional args and returns the
// union of their results. Non-function values are ignored.
func (p *Project) Call(u *Unit, callee, this ValueSet, args ...ValueSet) ValueSet {
	return p.CallWith(u, callee, this, CallSite{Args: args})
}

// CallWith is Call for call sites with spread or keyword arguments.
func (p *Project) CallWith(u *Unit, callee, this ValueSet, site CallSite) ValueSet {
	res := EmptySet()
	for _, v := range callee.Values() {
		if v.fn == nil {
			continue
		}
		as := FromCall(v.fn.params, p.limits, site)
		if n := as.CombinationCount(); n > 1 {
			p.logger.With(map[string]any{
				"callee":       v.String(),
				"combinations": n,
				"args":         argsSummary{as, p.opts.Log.withDefaults()},
			}).Debugf("Polymorphic call")
		}
		res = res.Union(p.invoke(u, v, this, as))
	}
	return res
}

// Construct runs every constructor in callee against an instance allocated
// at node and returns the instances, plus any objects the constructors
// return explicitly.
func (p *Project) Construct(u *Unit, node Node, callee ValueSet, args ...ValueSet) ValueSet {
	res := EmptySet()
	for _, v := range callee.Values() {
		if v.fn == nil {
			continue
		}
		as := FromArgs(len(v.fn.params), p.limits, args)
		if v.fn.native != nil {
			res = res.Union(v.fn.native(u, EmptySet(), as))
			continue
		}
		inst := p.instanceAt(u, node, v)
		ret := p.invoke(u, v, NewValueSet(inst), as)
		res = res.Union(NewValueSet(inst))
		for _, r := range ret.Values() {
			if !r.kind.IsPrimitive() {
				res = res.Union(NewValueSet(r))
			}
		}
	}
	return res
}

// invoke binds as into fn's cells and returns what the body has produced
// so far. The body runs on its own; new arguments re-run it through the
// parameter cells and u re-runs when the return cell changes.
func (p *Project) invoke(u *Unit, fnv *Value, this ValueSet, as ArgumentSet) ValueSet {
	fn := fnv.fn
	if fn.native != nil {
		return fn.native(u, this, as)
	}
	limit := p.limits.NormalArgumentTypes
	for i, c := range fn.args {
		if vs := as.Arg(i); !vs.IsEmpty() {
			p.assign(u, c, limit, vs, fnv.String()+" argument "+strconv.Itoa(i))
		}
	}
	if !this.IsEmpty() {
		p.assign(u, fn.this, limit, this, fnv.String()+" receiver")
	}
	if fn.called.CompareAndSwap(false, true) {
		p.Enqueue(fn.body)
	}
	return fn.returns.Read(u)
}
