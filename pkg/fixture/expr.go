package fixture

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/speakeasy-api/valueflow/analysis"
)

type exprKind int

const (
	exprBuiltin exprKind = iota
	exprInt
	exprFloat
	exprString
	exprBool
	exprObject
	exprArray
	exprVar
)

// expr is a parsed value expression:
//
//	undefined null boolean number string   builtin values
//	int:N num:F str:S true false           constants (bare numbers too)
//	object array                           allocated at the statement
//	$name $name.prop.prop                  variable and member reads
type expr struct {
	kind    exprKind
	builtin *analysis.Value
	i       int64
	f       float64
	s       string
	b       bool
	path    []string
}

func parseExpr(src string) (*expr, error) {
	src = strings.TrimSpace(src)
	switch src {
	case "undefined":
		return &expr{kind: exprBuiltin, builtin: analysis.Undefined}, nil
	case "null":
		return &expr{kind: exprBuiltin, builtin: analysis.Null}, nil
	case "boolean":
		return &expr{kind: exprBuiltin, builtin: analysis.Boolean}, nil
	case "number":
		return &expr{kind: exprBuiltin, builtin: analysis.Number}, nil
	case "string":
		return &expr{kind: exprBuiltin, builtin: analysis.String}, nil
	case "true", "false":
		return &expr{kind: exprBool, b: src == "true"}, nil
	case "object":
		return &expr{kind: exprObject}, nil
	case "array":
		return &expr{kind: exprArray}, nil
	}

	if rest, ok := strings.CutPrefix(src, "$"); ok {
		path := strings.Split(rest, ".")
		for _, p := range path {
			if p == "" {
				return nil, fmt.Errorf("invalid reference %q", src)
			}
		}
		return &expr{kind: exprVar, path: path}, nil
	}
	if rest, ok := strings.CutPrefix(src, "str:"); ok {
		return &expr{kind: exprString, s: rest}, nil
	}
	if rest, ok := strings.CutPrefix(src, "int:"); ok {
		n, err := strconv.ParseInt(rest, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q", rest)
		}
		return &expr{kind: exprInt, i: n}, nil
	}
	if rest, ok := strings.CutPrefix(src, "num:"); ok {
		f, err := strconv.ParseFloat(rest, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", rest)
		}
		return &expr{kind: exprFloat, f: f}, nil
	}
	if n, err := strconv.ParseInt(src, 10, 64); err == nil {
		return &expr{kind: exprInt, i: n}, nil
	}
	if f, err := strconv.ParseFloat(src, 64); err == nil {
		return &expr{kind: exprFloat, f: f}, nil
	}
	return nil, fmt.Errorf("invalid expression %q", src)
}

// mustParse is for expressions Validate has already checked. Empty source
// yields nil.
func mustParse(src string) *expr {
	if src == "" {
		return nil
	}
	e, err := parseExpr(src)
	if err != nil {
		panic(fmt.Sprintf("fixture: unvalidated expression: %v", err))
	}
	return e
}

// eval computes the expression in f. site is the allocation site used by
// object and array literals.
func (e *expr) eval(u *analysis.Unit, f *frame, site analysis.Node) analysis.ValueSet {
	if e == nil {
		return analysis.EmptySet()
	}
	p := u.Project()
	switch e.kind {
	case exprBuiltin:
		return analysis.NewValueSet(e.builtin)
	case exprInt:
		return analysis.NewValueSet(p.Int(e.i))
	case exprFloat:
		return analysis.NewValueSet(p.Float(e.f))
	case exprString:
		return analysis.NewValueSet(p.Str(e.s))
	case exprBool:
		return analysis.NewValueSet(p.Bool(e.b))
	case exprObject:
		return analysis.NewValueSet(p.NewObject(u, site))
	case exprArray:
		return analysis.NewValueSet(p.NewArray(u, site))
	}

	vs := f.lookup(u, e.path[0])
	for _, name := range e.path[1:] {
		vs = p.GetMember(u, vs, name)
	}
	return vs
}
