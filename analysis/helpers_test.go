package analysis

import (
	"context"
	"testing"
)

// testNode is a syntax node stand-in. Use pointers so nodes compare by
// identity.
type testNode struct {
	loc Location
}

func (n *testNode) Location() Location { return n.loc }

func node(file string, line int) *testNode {
	return &testNode{loc: Location{File: file, Line: line, Column: 1}}
}

func newTestProject(t *testing.T, mutate ...func(*Options)) *Project {
	t.Helper()
	opts := DefaultOptions()
	for _, f := range mutate {
		f(&opts)
	}
	p, err := NewProject(opts)
	if err != nil {
		t.Fatalf("Failed to create project: %v", err)
	}
	return p
}

func analyze(t *testing.T, p *Project) {
	t.Helper()
	if err := p.Analyze(context.Background()); err != nil {
		t.Fatalf("Analysis failed: %v", err)
	}
}

func set(vals ...*Value) ValueSet {
	return NewValueSet(vals...)
}

func expectSet(t *testing.T, what string, got ValueSet, want ...*Value) {
	t.Helper()
	if !got.Equal(set(want...)) {
		t.Errorf("Expected %s to be %v, got %v", what, set(want...), got)
	}
}
