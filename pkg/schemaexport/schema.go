// Package schemaexport renders analysis results as JSON Schemas so editors
// and tooling can consume inferred shapes without knowing the lattice.
package schemaexport

import (
	"sort"
	"strconv"

	"github.com/speakeasy-api/openapi/jsonschema/oas3"
	"github.com/speakeasy-api/openapi/sequencedmap"
	"gopkg.in/yaml.v3"

	"github.com/speakeasy-api/valueflow/analysis"
)

// Options controls schema generation.
type Options struct {
	MaxDepth   int  // Nesting depth before objects are left unconstrained (default: 8)
	AllMembers bool // Include properties nobody reads any more
}

// DefaultOptions returns the options used by the CLI.
func DefaultOptions() Options {
	return Options{MaxDepth: 8}
}

// Exporter converts values of one project into schemas.
type Exporter struct {
	project *analysis.Project
	opts    Options
}

// New creates an exporter. Only the first Options value is used.
func New(p *analysis.Project, opts ...Options) *Exporter {
	opt := DefaultOptions()
	if len(opts) > 0 {
		opt = opts[0]
	}
	if opt.MaxDepth <= 0 {
		opt.MaxDepth = DefaultOptions().MaxDepth
	}
	return &Exporter{project: p, opts: opt}
}

// ValueSet returns the schema of a value set. The empty set yields nil,
// the schema that matches nothing.
func (e *Exporter) ValueSet(vs analysis.ValueSet) *oas3.Schema {
	return e.valueSet(vs, 0, map[analysis.ValueID]bool{})
}

// Module returns an object schema with one property per binding.
func (e *Exporter) Module(m *analysis.ModuleRecord) *oas3.Schema {
	return e.members(m.GetAllMembers(), 0, map[analysis.ValueID]bool{m.Value().ID(): true})
}

func (e *Exporter) valueSet(vs analysis.ValueSet, depth int, seen map[analysis.ValueID]bool) *oas3.Schema {
	var (
		branches []*oas3.Schema
		enums    = map[oas3.SchemaType][]*yaml.Node{}
		widened  = map[oas3.SchemaType]bool{}
		order    []oas3.SchemaType
	)
	addPrimitive := func(t oas3.SchemaType, enum *yaml.Node) {
		if _, ok := enums[t]; !ok && !widened[t] {
			order = append(order, t)
		}
		if enum == nil {
			widened[t] = true
			delete(enums, t)
			return
		}
		if !widened[t] {
			enums[t] = append(enums[t], enum)
		}
	}

	for _, v := range sortedValues(vs) {
		switch v.Kind() {
		case analysis.KindUndefined, analysis.KindNull:
			addPrimitive(oas3.SchemaTypeNull, nil)
		case analysis.KindBoolean, analysis.KindNumber, analysis.KindString:
			t, node := constant(v)
			addPrimitive(t, node)
		default:
			branches = append(branches, e.value(v, depth, seen))
		}
	}

	prims := make([]*oas3.Schema, 0, len(order))
	for _, t := range order {
		s := &oas3.Schema{Type: oas3.NewTypeFromString(t)}
		if !widened[t] {
			s.Enum = enums[t]
		}
		prims = append(prims, s)
	}
	branches = append(prims, branches...)

	switch len(branches) {
	case 0:
		return nil
	case 1:
		return branches[0]
	}
	anyOf := make([]*oas3.JSONSchema[oas3.Referenceable], len(branches))
	for i, b := range branches {
		anyOf[i] = oas3.NewJSONSchemaFromSchema[oas3.Referenceable](b)
	}
	return &oas3.Schema{AnyOf: anyOf}
}

// constant returns the schema type of a primitive value and, for literal
// values, its enum node.
func constant(v *analysis.Value) (oas3.SchemaType, *yaml.Node) {
	c, ok := v.Constant()
	switch v.Kind() {
	case analysis.KindBoolean:
		if !ok {
			return oas3.SchemaTypeBoolean, nil
		}
		return oas3.SchemaTypeBoolean, &yaml.Node{Kind: yaml.ScalarNode, Value: strconv.FormatBool(c.(bool)), Tag: "!!bool"}
	case analysis.KindString:
		if !ok {
			return oas3.SchemaTypeString, nil
		}
		return oas3.SchemaTypeString, &yaml.Node{Kind: yaml.ScalarNode, Value: c.(string), Tag: "!!str"}
	default:
		if !ok {
			return oas3.SchemaTypeNumber, nil
		}
		if n, isInt := c.(int64); isInt {
			return oas3.SchemaTypeInteger, &yaml.Node{Kind: yaml.ScalarNode, Value: strconv.FormatInt(n, 10), Tag: "!!int"}
		}
		return oas3.SchemaTypeNumber, &yaml.Node{Kind: yaml.ScalarNode, Value: strconv.FormatFloat(c.(float64), 'g', -1, 64), Tag: "!!float"}
	}
}

func (e *Exporter) value(v *analysis.Value, depth int, seen map[analysis.ValueID]bool) *oas3.Schema {
	if seen[v.ID()] || depth >= e.opts.MaxDepth {
		return objectType()
	}
	seen[v.ID()] = true
	defer delete(seen, v.ID())

	switch v.Kind() {
	case analysis.KindArray:
		items := e.valueSet(v.Array().UnionType(), depth+1, seen)
		return &oas3.Schema{
			Type:  oas3.NewTypeFromString(oas3.SchemaTypeArray),
			Items: oas3.NewJSONSchemaFromSchema[oas3.Referenceable](items),
		}
	case analysis.KindModule:
		m := e.moduleOf(v)
		if m == nil {
			return objectType()
		}
		return e.members(m.GetAllMembers(), depth+1, seen)
	default:
		// Objects and functions are both property bags.
		return e.members(e.objectMembers(v.Object()), depth+1, seen)
	}
}

func (e *Exporter) moduleOf(v *analysis.Value) *analysis.ModuleRecord {
	for _, m := range e.project.Modules() {
		if m.ID() == v.Module() {
			return m
		}
	}
	return nil
}

func (e *Exporter) objectMembers(obj *analysis.Expando) map[string]analysis.ValueSet {
	if obj == nil {
		return nil
	}
	if !e.opts.AllMembers {
		return obj.GetAllMembers()
	}
	members := make(map[string]analysis.ValueSet)
	for _, name := range obj.MemberNames() {
		members[name] = obj.Descriptor(name).Values.Types()
	}
	return members
}

func (e *Exporter) members(members map[string]analysis.ValueSet, depth int, seen map[analysis.ValueID]bool) *oas3.Schema {
	names := make([]string, 0, len(members))
	for name := range members {
		names = append(names, name)
	}
	sort.Strings(names)

	props := sequencedmap.New[string, *oas3.JSONSchema[oas3.Referenceable]]()
	for _, name := range names {
		props.Set(name, oas3.NewJSONSchemaFromSchema[oas3.Referenceable](e.valueSet(members[name], depth, seen)))
	}
	return &oas3.Schema{
		Type:       oas3.NewTypeFromString(oas3.SchemaTypeObject),
		Properties: props,
	}
}

func objectType() *oas3.Schema {
	return &oas3.Schema{Type: oas3.NewTypeFromString(oas3.SchemaTypeObject)}
}

// sortedValues orders members so output is stable across runs.
func sortedValues(vs analysis.ValueSet) []*analysis.Value {
	vals := append([]*analysis.Value(nil), vs.Values()...)
	sort.SliceStable(vals, func(i, j int) bool {
		if vals[i].Kind() != vals[j].Kind() {
			return vals[i].Kind() < vals[j].Kind()
		}
		return vals[i].String() < vals[j].String()
	})
	return vals
}
