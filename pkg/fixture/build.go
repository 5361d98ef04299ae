package fixture

import (
	"fmt"

	"github.com/speakeasy-api/valueflow/analysis"
)

// site is the syntax node of a statement or of one expression inside it.
// Sites are created once per fixture, so re-running a unit allocates at
// the same nodes.
type site struct {
	loc analysis.Location
}

func (s *site) Location() analysis.Location { return s.loc }

// step executes one compiled statement.
type step func(u *analysis.Unit, f *frame)

// frame resolves names while a module or function body runs. Module
// frames have no function.
type frame struct {
	module *analysis.ModuleRecord
	fn     *analysis.Value
	scope  *analysis.Scope
	locals map[string]bool
	rest   string
	kwargs string
	parent *frame
}

// cell returns the function-level cell bound to name, nil if the name is
// not local to this frame.
func (f *frame) cell(name string) *analysis.Cell {
	fn := f.fn.Function()
	switch {
	case name == "this":
		return fn.This()
	case f.rest != "" && name == f.rest:
		return fn.Rest()
	case f.kwargs != "" && name == f.kwargs:
		return fn.Keywords()
	}
	if i := fn.ParamIndex(name); i >= 0 {
		return fn.Param(i)
	}
	if f.locals[name] {
		return f.scope.Define(name)
	}
	return nil
}

func (f *frame) lookup(u *analysis.Unit, name string) analysis.ValueSet {
	for cur := f; cur != nil; cur = cur.parent {
		if cur.fn == nil {
			return cur.module.Variable(name).Read(u)
		}
		if c := cur.cell(name); c != nil {
			return c.Read(u)
		}
	}
	return analysis.EmptySet()
}

func (f *frame) bind(u *analysis.Unit, node analysis.Node, name string, vs analysis.ValueSet) {
	for cur := f; cur != nil; cur = cur.parent {
		if cur.fn == nil {
			cur.module.SetMember(u, node, name, vs)
			return
		}
		if c := cur.cell(name); c != nil {
			u.Project().AssignVariable(u, c, name, vs)
			return
		}
	}
}

func (f *frame) scopeOrNil() *analysis.Scope {
	if f == nil {
		return nil
	}
	return f.scope
}

// Build registers every module with p and attaches a unit running its
// body. Entry modules, all of them by default, are enqueued. The records
// are returned in fixture order.
func (fx *Fixture) Build(p *analysis.Project) ([]*analysis.ModuleRecord, error) {
	if err := fx.Validate(); err != nil {
		return nil, err
	}
	entry := make(map[string]bool, len(fx.Entry))
	for _, name := range fx.Entry {
		entry[name] = true
	}

	records := make([]*analysis.ModuleRecord, 0, len(fx.Modules))
	for _, mod := range fx.Modules {
		if existing := p.Module(mod.Name); existing != nil && existing.Unit() != nil {
			return nil, fmt.Errorf("module %q is already loaded", mod.Name)
		}
		records = append(records, p.AddModule(mod.Name))
	}
	for i, mod := range fx.Modules {
		u := attach(p, records[i], mod.Body)
		if len(entry) == 0 || entry[mod.Name] {
			p.Enqueue(u)
		}
	}
	return records, nil
}

// Reload replaces the body of a loaded module, the way an editor reports a
// changed file: the module is cleared, a fresh unit is attached and
// enqueued, and importers re-run through the cleared module's token.
func (fx *Fixture) Reload(p *analysis.Project, name string, body []Statement) error {
	mod, ok := fx.Module(name)
	if !ok {
		return fmt.Errorf("unknown module %q", name)
	}
	m := p.Module(name)
	if m == nil {
		return fmt.Errorf("module %q is not loaded", name)
	}
	if err := validateBody(body, false); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	mod.Body = body
	m.Clear()
	p.Enqueue(attach(p, m, body))
	return nil
}

func attach(p *analysis.Project, m *analysis.ModuleRecord, body []Statement) *analysis.Unit {
	c := &compiler{file: m.Name()}
	steps := c.body(body)
	top := &frame{module: m}
	u := p.NewUnit(m.Name(), m, func(u *analysis.Unit) error {
		run(steps, u, top)
		return nil
	})
	m.SetUnit(u)
	return u
}

func run(steps []step, u *analysis.Unit, f *frame) {
	for _, s := range steps {
		s(u, f)
	}
}

type compiler struct {
	file string
}

func (c *compiler) body(stmts []Statement) []step {
	steps := make([]step, 0, len(stmts))
	for i := range stmts {
		steps = append(steps, c.statement(&stmts[i]))
	}
	return steps
}

// hoist returns the names a function body binds, so they resolve to the
// function's own scope before the binding statement runs.
func hoist(stmts []Statement) map[string]bool {
	locals := make(map[string]bool)
	for _, s := range stmts {
		switch s.Op {
		case OpAssign, OpFunction:
			locals[s.Name] = true
		case OpImport:
			locals[s.As] = true
		case OpGetProp, OpGetIndex, OpCall, OpNew:
			if s.To != "" {
				locals[s.To] = true
			}
		}
	}
	return locals
}

// operand pairs a parsed expression with its own allocation site.
type operand struct {
	e    *expr
	node *site
}

func (o operand) eval(u *analysis.Unit, f *frame) analysis.ValueSet {
	return o.e.eval(u, f, o.node)
}

func (c *compiler) statement(s *Statement) step {
	node := &site{loc: analysis.Location{File: c.file, Line: s.Line, Column: 1}}
	col := 1
	operandOf := func(src string) operand {
		col++
		return operand{e: mustParse(src), node: &site{loc: analysis.Location{File: c.file, Line: s.Line, Column: col}}}
	}

	switch s.Op {
	case OpAssign:
		value := operandOf(s.Value)
		return func(u *analysis.Unit, f *frame) {
			f.bind(u, node, s.Name, value.eval(u, f))
		}

	case OpImport:
		return func(u *analysis.Unit, f *frame) {
			f.bind(u, node, s.As, u.Project().Import(u, s.From))
		}

	case OpSetProp:
		target, value := operandOf(s.Target), operandOf(s.Value)
		return func(u *analysis.Unit, f *frame) {
			u.Project().SetMember(u, node, target.eval(u, f), s.Name, value.eval(u, f))
		}

	case OpGetProp:
		target := operandOf(s.Target)
		return func(u *analysis.Unit, f *frame) {
			f.bind(u, node, s.To, u.Project().GetMember(u, target.eval(u, f), s.Name))
		}

	case OpDelProp:
		target := operandOf(s.Target)
		return func(u *analysis.Unit, f *frame) {
			u.Project().DeleteMember(u, node, target.eval(u, f), s.Name)
		}

	case OpSetIndex:
		target, index, value := operandOf(s.Target), operandOf(s.Index), operandOf(s.Value)
		return func(u *analysis.Unit, f *frame) {
			u.Project().SetIndex(u, node, target.eval(u, f), index.eval(u, f), value.eval(u, f))
		}

	case OpGetIndex:
		target, index := operandOf(s.Target), operandOf(s.Index)
		return func(u *analysis.Unit, f *frame) {
			f.bind(u, node, s.To, u.Project().GetIndex(u, target.eval(u, f), index.eval(u, f)))
		}

	case OpPush:
		target, value := operandOf(s.Target), operandOf(s.Value)
		return func(u *analysis.Unit, f *frame) {
			u.Project().Push(u, node, target.eval(u, f), value.eval(u, f))
		}

	case OpCall:
		return c.call(s, node, operandOf)

	case OpNew:
		callee := operandOf(s.Callee)
		args := make([]operand, len(s.Args))
		for i, a := range s.Args {
			args[i] = operandOf(a)
		}
		return func(u *analysis.Unit, f *frame) {
			vals := make([]analysis.ValueSet, len(args))
			for i, a := range args {
				vals[i] = a.eval(u, f)
			}
			res := u.Project().Construct(u, node, callee.eval(u, f), vals...)
			if s.To != "" {
				f.bind(u, node, s.To, res)
			}
		}

	case OpReturn:
		value := operandOf(s.Value)
		return func(u *analysis.Unit, f *frame) {
			f.fn.Function().AddReturn(u, value.eval(u, f))
		}

	case OpFunction:
		return c.function(s, node)

	case OpGetter, OpSetter:
		target, fn := operandOf(s.Target), operandOf(s.Fn)
		setter := s.Op == OpSetter
		return func(u *analysis.Unit, f *frame) {
			fns := fn.eval(u, f)
			for _, v := range target.eval(u, f).Values() {
				obj := v.Object()
				if obj == nil {
					continue
				}
				if setter {
					obj.DefineSetter(u, node, s.Name, fns)
				} else {
					obj.DefineGetter(u, node, s.Name, fns)
				}
			}
		}
	}
	panic(fmt.Sprintf("fixture: unvalidated operation %q", s.Op))
}

func (c *compiler) call(s *Statement, node *site, operandOf func(string) operand) step {
	callee := operandOf(s.Callee)
	var this, spread operand
	if s.This != "" {
		this = operandOf(s.This)
	}
	if s.Spread != "" {
		spread = operandOf(s.Spread)
	}
	args := make([]operand, len(s.Args))
	for i, a := range s.Args {
		args[i] = operandOf(a)
	}
	names := s.keywordNames()
	keywords := make([]operand, len(names))
	for i, k := range names {
		keywords[i] = operandOf(s.Keywords[k])
	}

	return func(u *analysis.Unit, f *frame) {
		cs := analysis.CallSite{
			Args:   make([]analysis.ValueSet, len(args)),
			Spread: spread.eval(u, f),
		}
		for i, a := range args {
			cs.Args[i] = a.eval(u, f)
		}
		if len(names) > 0 {
			cs.Keywords = make(map[string]analysis.ValueSet, len(names))
			for i, k := range names {
				cs.Keywords[k] = keywords[i].eval(u, f)
			}
		}
		res := u.Project().CallWith(u, callee.eval(u, f), this.eval(u, f), cs)
		if s.To != "" {
			f.bind(u, node, s.To, res)
		}
	}
}

func (c *compiler) function(s *Statement, node *site) step {
	body := c.body(s.Body)
	locals := hoist(s.Body)
	params := append([]string(nil), s.Params...)

	return func(u *analysis.Unit, f *frame) {
		var fnv *analysis.Value
		fnv = u.Project().NewFunction(u, node, s.Name, params, func(bu *analysis.Unit) error {
			inner := &frame{
				module: f.module,
				fn:     fnv,
				scope:  f.module.NodeScope(node, f.scopeOrNil()),
				locals: locals,
				rest:   s.Rest,
				kwargs: s.Kwargs,
				parent: f,
			}
			run(body, bu, inner)
			return nil
		})
		f.bind(u, node, s.Name, analysis.NewValueSet(fnv))
	}
}
