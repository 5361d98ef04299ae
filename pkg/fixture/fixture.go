// Package fixture describes small analysis projects in YAML. A fixture lists
// modules, each with a body of statements over abstract values; Build turns
// every module body into an analysis unit.
//
// A statement is a single-key mapping naming the operation:
//
//	modules:
//	  - name: lib.js
//	    body:
//	      - assign: {name: point, value: object}
//	      - setprop: {target: $point, name: x, value: int:1}
//	      - function:
//	          name: getX
//	          params: [p]
//	          body:
//	            - return: $p.x
//	  - name: main.js
//	    body:
//	      - import: {from: ./lib, as: lib}
//	      - call: {callee: $lib.getX, args: [$lib.point], to: x}
package fixture

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Fixture is a whole project description.
type Fixture struct {
	Name    string   `yaml:"name"`
	Modules []Module `yaml:"modules"`
	// Entry names the modules whose bodies are scheduled by Build. Empty
	// means every module.
	Entry []string `yaml:"entry"`
}

// Module is one source file.
type Module struct {
	Name string      `yaml:"name"`
	Body []Statement `yaml:"body"`
}

// Statement is one operation of a module or function body. Which fields
// apply depends on Op.
type Statement struct {
	Op   string `yaml:"-"`
	Line int    `yaml:"-"`

	Name     string            `yaml:"name"`
	Value    string            `yaml:"value"`
	Target   string            `yaml:"target"`
	Index    string            `yaml:"index"`
	Callee   string            `yaml:"callee"`
	This     string            `yaml:"this"`
	Args     []string          `yaml:"args"`
	Spread   string            `yaml:"spread"`
	Keywords map[string]string `yaml:"keywords"`
	To       string            `yaml:"to"`
	From     string            `yaml:"from"`
	As       string            `yaml:"as"`
	Fn       string            `yaml:"fn"`
	Params   []string          `yaml:"params"`
	Rest     string            `yaml:"rest"`
	Kwargs   string            `yaml:"kwargs"`
	Body     []Statement       `yaml:"body"`
}

// Statement operations.
const (
	OpAssign   = "assign"
	OpImport   = "import"
	OpSetProp  = "setprop"
	OpGetProp  = "getprop"
	OpDelProp  = "delprop"
	OpSetIndex = "setindex"
	OpGetIndex = "getindex"
	OpPush     = "push"
	OpCall     = "call"
	OpNew      = "new"
	OpReturn   = "return"
	OpFunction = "function"
	OpGetter   = "getter"
	OpSetter   = "setter"
)

var validOps = []string{
	OpAssign, OpImport, OpSetProp, OpGetProp, OpDelProp, OpSetIndex, OpGetIndex,
	OpPush, OpCall, OpNew, OpReturn, OpFunction, OpGetter, OpSetter,
}

var statementKeys = map[string]bool{
	"name": true, "value": true, "target": true, "index": true, "callee": true,
	"this": true, "args": true, "spread": true, "keywords": true, "to": true,
	"from": true, "as": true, "fn": true, "params": true, "rest": true,
	"kwargs": true, "body": true,
}

// statementFields mirrors Statement without the custom unmarshaler.
type statementFields Statement

// UnmarshalYAML decodes the single-key form. `return` also accepts a bare
// expression.
func (s *Statement) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode || len(node.Content) != 2 {
		return fmt.Errorf("line %d: a statement must be a mapping with exactly one operation", node.Line)
	}
	key, value := node.Content[0], node.Content[1]

	var fields statementFields
	switch value.Kind {
	case yaml.MappingNode:
		for i := 0; i < len(value.Content); i += 2 {
			if k := value.Content[i]; !statementKeys[k.Value] {
				return fmt.Errorf("line %d: %s: unknown field %q", k.Line, key.Value, k.Value)
			}
		}
		literalNulls(value)
		if err := value.Decode(&fields); err != nil {
			return fmt.Errorf("line %d: %s: %w", node.Line, key.Value, err)
		}
	case yaml.ScalarNode:
		if key.Value != OpReturn {
			return fmt.Errorf("line %d: %s requires a mapping", node.Line, key.Value)
		}
		fields.Value = strings.TrimSpace(value.Value)
	default:
		return fmt.Errorf("line %d: %s requires a mapping", node.Line, key.Value)
	}

	*s = Statement(fields)
	s.Op = key.Value
	s.Line = node.Line
	return nil
}

// literalNulls retags explicit `null` scalars as strings so they decode
// into expression fields instead of leaving them empty.
func literalNulls(n *yaml.Node) {
	if n.Kind == yaml.ScalarNode && n.Tag == "!!null" && n.Value == "null" {
		n.Tag = "!!str"
	}
	for _, c := range n.Content {
		if c.Kind != yaml.MappingNode {
			literalNulls(c)
		}
	}
}

// Load reads and validates a fixture file.
func Load(path string) (*Fixture, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open fixture: %w", err)
	}
	defer f.Close()

	fx, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return fx, nil
}

// Parse decodes and validates a fixture document.
func Parse(r io.Reader) (*Fixture, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("could not read fixture: %w", err)
	}

	var fx Fixture
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fx); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("fixture is empty")
		}
		return nil, fmt.Errorf("could not parse fixture: %w", err)
	}
	if err := fx.Validate(); err != nil {
		return nil, err
	}
	return &fx, nil
}

// Validate checks module names, entry points and every statement's
// required fields and expressions.
func (fx *Fixture) Validate() error {
	if len(fx.Modules) == 0 {
		return fmt.Errorf("fixture has no modules")
	}
	seen := make(map[string]bool, len(fx.Modules))
	for _, m := range fx.Modules {
		if m.Name == "" {
			return fmt.Errorf("module without a name")
		}
		if seen[m.Name] {
			return fmt.Errorf("duplicate module %q", m.Name)
		}
		seen[m.Name] = true
		if err := validateBody(m.Body, false); err != nil {
			return fmt.Errorf("%s: %w", m.Name, err)
		}
	}
	for _, name := range fx.Entry {
		if !seen[name] {
			return fmt.Errorf("entry %q is not a module", name)
		}
	}
	return nil
}

// Module returns the module named name.
func (fx *Fixture) Module(name string) (*Module, bool) {
	for i := range fx.Modules {
		if fx.Modules[i].Name == name {
			return &fx.Modules[i], true
		}
	}
	return nil, false
}

func validateBody(body []Statement, inFunction bool) error {
	for _, s := range body {
		if err := s.validate(inFunction); err != nil {
			return fmt.Errorf("line %d: %s: %w", s.Line, s.Op, err)
		}
	}
	return nil
}

func (s Statement) validate(inFunction bool) error {
	type field struct {
		name, value string
	}
	var required []field
	var exprs []string

	switch s.Op {
	case OpAssign:
		required = []field{{"name", s.Name}, {"value", s.Value}}
		exprs = []string{s.Value}
	case OpImport:
		required = []field{{"from", s.From}, {"as", s.As}}
	case OpSetProp:
		required = []field{{"target", s.Target}, {"name", s.Name}, {"value", s.Value}}
		exprs = []string{s.Target, s.Value}
	case OpGetProp:
		required = []field{{"target", s.Target}, {"name", s.Name}, {"to", s.To}}
		exprs = []string{s.Target}
	case OpDelProp:
		required = []field{{"target", s.Target}, {"name", s.Name}}
		exprs = []string{s.Target}
	case OpSetIndex:
		required = []field{{"target", s.Target}, {"index", s.Index}, {"value", s.Value}}
		exprs = []string{s.Target, s.Index, s.Value}
	case OpGetIndex:
		required = []field{{"target", s.Target}, {"index", s.Index}, {"to", s.To}}
		exprs = []string{s.Target, s.Index}
	case OpPush:
		required = []field{{"target", s.Target}, {"value", s.Value}}
		exprs = []string{s.Target, s.Value}
	case OpCall, OpNew:
		required = []field{{"callee", s.Callee}}
		exprs = append([]string{s.Callee, s.This, s.Spread}, s.Args...)
		for _, k := range s.keywordNames() {
			exprs = append(exprs, s.Keywords[k])
		}
		if s.Op == OpNew && (s.This != "" || s.Spread != "" || len(s.Keywords) > 0) {
			return fmt.Errorf("new only takes positional args")
		}
	case OpReturn:
		if !inFunction {
			return fmt.Errorf("return outside a function")
		}
		required = []field{{"value", s.Value}}
		exprs = []string{s.Value}
	case OpFunction:
		required = []field{{"name", s.Name}}
		if err := validateBody(s.Body, true); err != nil {
			return err
		}
	case OpGetter, OpSetter:
		required = []field{{"target", s.Target}, {"name", s.Name}, {"fn", s.Fn}}
		exprs = []string{s.Target, s.Fn}
	default:
		return fmt.Errorf("unknown operation; valid operations: %s", strings.Join(validOps, ", "))
	}

	for _, f := range required {
		if f.value == "" {
			return fmt.Errorf("missing %s", f.name)
		}
	}
	for _, e := range exprs {
		if e == "" {
			continue
		}
		if _, err := parseExpr(e); err != nil {
			return err
		}
	}
	return nil
}

// keywordNames returns the keyword argument names in a stable order.
func (s Statement) keywordNames() []string {
	names := make([]string, 0, len(s.Keywords))
	for k := range s.Keywords {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
