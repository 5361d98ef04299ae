package playground

import (
	"strings"
	"testing"
)

func TestAnalyzeFixture(t *testing.T) {
	fixtureYAML := `name: demo
modules:
  - name: a.js
    body:
      - assign: {name: n, value: int:1}
      - assign: {name: s, value: string}
`

	result, err := AnalyzeFixture(fixtureYAML, "")
	if err != nil {
		t.Fatalf("AnalyzeFixture failed: %v", err)
	}

	expectedYAML := `openapi: 3.1.0
info:
  title: demo
  version: 1.0.0
components:
  schemas:
    a.js:
      type: object
      properties:
        n:
          type: integer
          enum:
            - 1
        s:
          type: string
`

	if strings.TrimSpace(result.Schema) != strings.TrimSpace(expectedYAML) {
		t.Errorf("Generated document does not match expected.\n\nExpected:\n%s\n\nGot:\n%s", expectedYAML, result.Schema)
	}
	if result.Schemas == 0 {
		t.Errorf("Expected the OpenAPI walker to find schemas")
	}
	if len(result.Warnings) != 0 {
		t.Errorf("Expected no warnings, got %v", result.Warnings)
	}
	if result.Stats.Modules != 1 {
		t.Errorf("Expected 1 module, got %d", result.Stats.Modules)
	}
}

func TestAnalyzeFixtureLowPrecision(t *testing.T) {
	fixtureYAML := `modules:
  - name: m.js
    body:
      - assign: {name: x, value: int:1}
      - assign: {name: x, value: str:a}
      - assign: {name: x, value: true}
`

	result, err := AnalyzeFixture(fixtureYAML, "preset: low\nworkers: 2\n")
	if err != nil {
		t.Fatalf("AnalyzeFixture failed: %v", err)
	}
	if len(result.Warnings) == 0 {
		t.Fatalf("Expected a precision warning")
	}

	msg := FormatWarnings(result.Warnings)
	for _, want := range []string{
		"Analysis lost precision",
		"binding m.js.x still holds 3 values after full merging (limit 1)",
		"How to fix: raise limits.assignedTypes",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("Expected message to contain %q, got:\n%s", want, msg)
		}
	}
	if !strings.Contains(result.Schema, "title: valueflow") {
		t.Errorf("Expected the default title, got:\n%s", result.Schema)
	}
}

func TestAnalyzeFixtureErrors(t *testing.T) {
	tests := []struct {
		name    string
		fixture string
		config  string
		errMsg  string
	}{
		{
			name:    "bad_config",
			fixture: "modules:\n  - name: a.js\n",
			config:  "preset: huge\n",
			errMsg:  "invalid config",
		},
		{
			name:    "bad_fixture",
			fixture: "modules: []\n",
			errMsg:  "invalid fixture",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := AnalyzeFixture(tt.fixture, tt.config)
			if err == nil {
				t.Fatalf("Expected error but got none")
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("Expected error containing %q, got %q", tt.errMsg, err.Error())
			}
		})
	}
}

func TestFormatWarnings(t *testing.T) {
	tests := []struct {
		warning string
		want    string
	}{
		{"property size holds 4 values at maximum merge strength (limit 2)", "limits.instanceMembers"},
		{"array index holds 9 values at maximum merge strength (limit 1)", "limits.indexTypes"},
		{"keyed map keys holds 3 values at maximum merge strength (limit 1)", "limits.dictKeyTypes"},
		{"keyed map entry holds 3 values at maximum merge strength (limit 1)", "limits.dictValueTypes"},
		{"return value holds 3 values at maximum merge strength (limit 1)", "limits.returnTypes"},
		{"function f argument 0 holds 3 values at maximum merge strength (limit 1)", "limits.normalArgumentTypes"},
		{"function f receiver holds 2 values at maximum merge strength (limit 1)", "limits.normalArgumentTypes"},
		{"variable tmp holds 2 values at maximum merge strength (limit 1)", "limits.assignedTypes"},
		{"something unexpected", "- something unexpected"},
	}

	for _, tt := range tests {
		got := FormatWarnings([]string{tt.warning})
		if !strings.Contains(got, tt.want) {
			t.Errorf("FormatWarnings(%q) = %q, expected it to contain %q", tt.warning, got, tt.want)
		}
	}

	if got := FormatWarnings(nil); got != "Analysis kept full precision." {
		t.Errorf("Unexpected message for no warnings: %q", got)
	}
}
