package analysis

import (
	"fmt"
	"strconv"
)

// Kind classifies abstract values. The set is closed: every lattice
// operation dispatches through a table indexed by Kind.
type Kind uint8

const (
	KindUndefined Kind = iota
	KindNull
	KindBoolean
	KindNumber
	KindString
	KindFunction
	KindObject
	KindArray
	KindModule

	numKinds
)

func (k Kind) String() string {
	switch k {
	case KindUndefined:
		return "undefined"
	case KindNull:
		return "null"
	case KindBoolean:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindFunction:
		return "function"
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	case KindModule:
		return "module"
	default:
		return "invalid"
	}
}

// IsPrimitive reports whether values of this kind carry no identity beyond
// an optional constant payload.
func (k Kind) IsPrimitive() bool {
	return k <= KindString
}

// ValueID is a handle into a project's value arena. Zero means "none".
type ValueID uint32

// ModuleID is a handle into a project's module registry. Zero means "none".
type ModuleID uint32

// Location identifies a position in a source file.
type Location struct {
	File   string
	Line   int
	Column int
}

func (l Location) String() string {
	return l.File + ":" + strconv.Itoa(l.Line) + ":" + strconv.Itoa(l.Column)
}

// Node is a syntax node supplied by the parser. The engine never looks
// inside it; nodes are only used as allocation-site and reference keys, so
// implementations must be comparable (typically a pointer).
type Node interface {
	Location() Location
}

// Value is one abstract runtime shape.
type Value struct {
	id    ValueID
	kind  Kind
	konst any // bool, int64, float64 or string for literal values
	name  string
	decl  Node
	proto ValueID // non-owning, resolved through the arena

	object *Expando
	array  *Array
	fn     *Function
	module ModuleID
}

// ID returns the arena handle of the value.
func (v *Value) ID() ValueID { return v.id }

// Kind returns the value's kind tag.
func (v *Value) Kind() Kind { return v.kind }

// Name returns the declared name of functions and modules.
func (v *Value) Name() string { return v.name }

// Decl returns the allocation site, if any.
func (v *Value) Decl() Node { return v.decl }

// Proto returns the prototype handle (zero when there is none).
func (v *Value) Proto() ValueID { return v.proto }

// Constant returns the literal payload of a constant value.
func (v *Value) Constant() (any, bool) {
	return v.konst, v.konst != nil
}

// Object returns the property bag of object-like values.
func (v *Value) Object() *Expando { return v.object }

// Array returns the indexed container of array values.
func (v *Value) Array() *Array { return v.array }

// Function returns the function payload of function values.
func (v *Value) Function() *Function { return v.fn }

// Module returns the module handle of module values.
func (v *Value) Module() ModuleID { return v.module }

func (v *Value) String() string {
	if v == nil {
		return "<nil>"
	}
	switch v.kind {
	case KindString:
		if s, ok := v.konst.(string); ok {
			return strconv.Quote(s)
		}
	case KindNumber, KindBoolean:
		if v.konst != nil {
			return fmt.Sprint(v.konst)
		}
	case KindFunction:
		if v.name != "" {
			return "function " + v.name
		}
	case KindModule:
		return "module " + v.name
	case KindObject:
		if v.name != "" {
			return v.name
		}
	}
	return v.kind.String()
}

// Builtin representatives of the primitive kinds. Constants collapse into
// these once a slot reaches merge strength 1.
var (
	Undefined = &Value{id: 1, kind: KindUndefined}
	Null      = &Value{id: 2, kind: KindNull}
	Boolean   = &Value{id: 3, kind: KindBoolean}
	Number    = &Value{id: 4, kind: KindNumber}
	String    = &Value{id: 5, kind: KindString}
)

// firstUserID is the first arena handle not taken by the builtins above.
const firstUserID ValueID = 6

func builtinFor(k Kind) *Value {
	switch k {
	case KindUndefined:
		return Undefined
	case KindNull:
		return Null
	case KindBoolean:
		return Boolean
	case KindNumber:
		return Number
	case KindString:
		return String
	}
	return nil
}
