package fixture

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speakeasy-api/valueflow/analysis"
)

func load(t *testing.T, name string) (*Fixture, *analysis.Project, map[string]*analysis.ModuleRecord) {
	t.Helper()
	fx, err := Load(filepath.Join("testdata", name))
	require.NoError(t, err)

	p, err := analysis.NewProject(analysis.DefaultOptions())
	require.NoError(t, err)
	records, err := fx.Build(p)
	require.NoError(t, err)
	require.NoError(t, p.Analyze(context.Background()))

	byName := make(map[string]*analysis.ModuleRecord, len(records))
	for _, m := range records {
		byName[m.Name()] = m
	}
	return fx, p, byName
}

func member(m *analysis.ModuleRecord, name string) analysis.ValueSet {
	return m.GetAllMembers()[name]
}

func single(t *testing.T, vs analysis.ValueSet) *analysis.Value {
	t.Helper()
	v, ok := vs.Single()
	require.True(t, ok, "expected a single value, got %v", vs)
	return v
}

func TestParseStatements(t *testing.T) {
	doc := `
modules:
  - name: a.js
    body:
      - assign: {name: x, value: null}
      - function:
          name: f
          params: [p]
          body:
            - return: $p
`
	fx, err := Parse(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, fx.Modules, 1)

	body := fx.Modules[0].Body
	require.Len(t, body, 2)
	assert.Equal(t, OpAssign, body[0].Op)
	assert.Equal(t, "null", body[0].Value)
	assert.Equal(t, 5, body[0].Line)
	assert.Equal(t, OpFunction, body[1].Op)
	assert.Equal(t, []string{"p"}, body[1].Params)
	require.Len(t, body[1].Body, 1)
	assert.Equal(t, OpReturn, body[1].Body[0].Op)
	assert.Equal(t, "$p", body[1].Body[0].Value)
	assert.Equal(t, 10, body[1].Body[0].Line)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name   string
		doc    string
		errMsg string
	}{
		{
			name:   "empty",
			doc:    "",
			errMsg: "fixture is empty",
		},
		{
			name:   "no_modules",
			doc:    "name: x\n",
			errMsg: "no modules",
		},
		{
			name:   "unknown_operation",
			doc:    "modules:\n  - name: a.js\n    body:\n      - jump: {to: x}\n",
			errMsg: "unknown operation",
		},
		{
			name:   "missing_field",
			doc:    "modules:\n  - name: a.js\n    body:\n      - setprop: {target: $o, value: 1}\n",
			errMsg: "missing name",
		},
		{
			name:   "unknown_field",
			doc:    "modules:\n  - name: a.js\n    body:\n      - assign: {name: x, valu: 1}\n",
			errMsg: `unknown field "valu"`,
		},
		{
			name:   "return_at_top_level",
			doc:    "modules:\n  - name: a.js\n    body:\n      - return: 1\n",
			errMsg: "return outside a function",
		},
		{
			name:   "bad_expression",
			doc:    "modules:\n  - name: a.js\n    body:\n      - assign: {name: x, value: int:one}\n",
			errMsg: `invalid integer "one"`,
		},
		{
			name:   "bad_reference",
			doc:    "modules:\n  - name: a.js\n    body:\n      - assign: {name: x, value: $a..b}\n",
			errMsg: "invalid reference",
		},
		{
			name:   "duplicate_module",
			doc:    "modules:\n  - name: a.js\n  - name: a.js\n",
			errMsg: `duplicate module "a.js"`,
		},
		{
			name:   "unknown_entry",
			doc:    "entry: [b.js]\nmodules:\n  - name: a.js\n",
			errMsg: `entry "b.js" is not a module`,
		},
		{
			name:   "scalar_statement",
			doc:    "modules:\n  - name: a.js\n    body:\n      - assign: x\n",
			errMsg: "assign requires a mapping",
		},
		{
			name:   "new_with_receiver",
			doc:    "modules:\n  - name: a.js\n    body:\n      - new: {callee: $C, this: $x}\n",
			errMsg: "new only takes positional args",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestErrorsCarryLines(t *testing.T) {
	doc := "modules:\n  - name: a.js\n    body:\n      - assign: {name: x, value: 1}\n      - push: {target: $x}\n"
	_, err := Parse(strings.NewReader(doc))
	require.Error(t, err)
	assert.Equal(t, "a.js: line 5: push: missing value", err.Error())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join("testdata", "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "could not open fixture")
}

func TestImportsAndCalls(t *testing.T) {
	_, p, mods := load(t, "imports.yaml")
	main, lib := mods["main.js"], mods["lib.js"]

	assert.Equal(t, analysis.NewValueSet(p.Int(1)).String(), member(main, "x").String())
	assert.Equal(t, []analysis.ModuleID{lib.ID()}, main.References())
	assert.Equal(t, []analysis.ModuleID{main.ID()}, lib.ReferencedBy())
	assert.Equal(t, []string{"./missing"}, main.UnresolvedImports())
	assert.Equal(t, analysis.ModulePopulated, lib.State())

	getX := single(t, member(lib, "getX"))
	require.NotNil(t, getX.Function())
	assert.Equal(t, "lib.js", getX.Decl().Location().File)
	assert.Equal(t, "{1}", getX.Function().Returns().Types().String())
}

func TestLateModuleResolvesImport(t *testing.T) {
	fx, err := Parse(strings.NewReader(`
modules:
  - name: main.js
    body:
      - import: {from: ./late, as: late}
      - assign: {name: v, value: $late.value}
`))
	require.NoError(t, err)
	p, err := analysis.NewProject(analysis.DefaultOptions())
	require.NoError(t, err)
	mods, err := fx.Build(p)
	require.NoError(t, err)
	require.NoError(t, p.Analyze(context.Background()))
	main := mods[0]
	assert.Equal(t, []string{"./late"}, main.UnresolvedImports())

	late, err := Parse(strings.NewReader(`
modules:
  - name: late.js
    body:
      - assign: {name: value, value: str:here}
`))
	require.NoError(t, err)
	_, err = late.Build(p)
	require.NoError(t, err)
	require.NoError(t, p.Analyze(context.Background()))

	assert.Empty(t, main.UnresolvedImports())
	assert.Equal(t, `{"here"}`, member(main, "v").String())
}

func TestConstructors(t *testing.T) {
	_, p, mods := load(t, "classes.yaml")
	m := mods["shapes.js"]

	a := single(t, member(m, "a"))
	point := single(t, member(m, "Point"))
	assert.Equal(t, analysis.KindObject, a.Kind())
	assert.Equal(t, point.Function().Prototype(), a.Proto())

	assert.Equal(t, analysis.NewValueSet(p.Int(3)).String(), member(m, "ax").String())
	assert.Equal(t, `{"point"}`, a.Object().Descriptor("tag").Values.Types().String())
	// kind lives on the prototype.
	assert.Equal(t, `{"shape"}`, member(m, "kind").String())
	assert.NotContains(t, a.Object().MemberNames(), "kind")
}

func TestContainers(t *testing.T) {
	_, _, mods := load(t, "containers.yaml")
	m := mods["list.js"]

	list := single(t, member(m, "list"))
	assert.Equal(t, 2, list.Array().Len())
	assert.Equal(t, `{"a"}`, member(m, "first").String())
	assert.Equal(t, 2, member(m, "any").Len())

	dict := single(t, member(m, "dict"))
	require.NotNil(t, dict.Object().Keyed())
	assert.Equal(t, "{string}", dict.Object().Keyed().KeyTypes().String())
	assert.Equal(t, "{true}", member(m, "lookup").String())
}

func TestFunctions(t *testing.T) {
	_, _, mods := load(t, "functions.yaml")
	m := mods["calls.js"]

	assert.Equal(t, "{2, 3}", member(m, "rest").String())
	log := single(t, member(m, "log"))
	assert.Equal(t, "{true}", log.Object().Descriptor("opts").Values.Types().String())
	assert.Equal(t, "{10}", member(m, "size").String())
	assert.Equal(t, "{null}", member(m, "nested").String())
}

func TestReload(t *testing.T) {
	fx, p, mods := load(t, "imports.yaml")
	main, lib := mods["main.js"], mods["lib.js"]
	oldPoint := single(t, member(lib, "point"))
	version := lib.Version()

	reparsed, err := Parse(strings.NewReader(`
modules:
  - name: lib.js
    body:
      - assign: {name: point, value: object}
      - setprop: {target: $point, name: x, value: str:changed}
      - function:
          name: getX
          params: [p]
          body:
            - return: $p.x
`))
	require.NoError(t, err)
	require.NoError(t, fx.Reload(p, "lib.js", reparsed.Modules[0].Body))
	require.NoError(t, p.Analyze(context.Background()))

	assert.Equal(t, version+1, lib.Version())
	newPoint := single(t, member(lib, "point"))
	assert.NotEqual(t, oldPoint.ID(), newPoint.ID())
	assert.True(t, member(main, "x").Contains(p.Str("changed")))
	assert.Equal(t, []analysis.ModuleID{lib.ID()}, main.References())

	require.Error(t, fx.Reload(p, "nope.js", nil))
}

func TestBuildTwice(t *testing.T) {
	fx, p, _ := load(t, "classes.yaml")
	_, err := fx.Build(p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already loaded")
}

func TestEntryModules(t *testing.T) {
	fx, err := Parse(strings.NewReader(`
entry: [a.js]
modules:
  - name: a.js
    body:
      - assign: {name: x, value: 1}
  - name: b.js
    body:
      - assign: {name: y, value: 2}
`))
	require.NoError(t, err)
	p, err := analysis.NewProject(analysis.DefaultOptions())
	require.NoError(t, err)
	mods, err := fx.Build(p)
	require.NoError(t, err)
	require.NoError(t, p.Analyze(context.Background()))

	assert.Equal(t, analysis.ModulePopulated, mods[0].State())
	assert.Equal(t, analysis.ModuleEmpty, mods[1].State())
}
