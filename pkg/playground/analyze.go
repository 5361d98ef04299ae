package playground

import (
	"context"
	"fmt"
	"strings"

	"github.com/speakeasy-api/openapi/jsonschema/oas3"
	"github.com/speakeasy-api/openapi/openapi"

	"github.com/speakeasy-api/valueflow/analysis"
	"github.com/speakeasy-api/valueflow/pkg/config"
	"github.com/speakeasy-api/valueflow/pkg/fixture"
	"github.com/speakeasy-api/valueflow/pkg/schemaexport"
)

// Result is everything the playground shows for one fixture.
type Result struct {
	Schema     string         `json:"schema"`
	Schemas    int            `json:"schemas"`
	Warnings   []string       `json:"warnings"`
	Validation []string       `json:"validation"`
	Stats      analysis.Stats `json:"stats"`
}

// AnalyzeFixture loads a fixture, runs it to a fixpoint and renders one
// component schema per module. configYAML may be empty.
func AnalyzeFixture(fixtureYAML, configYAML string) (*Result, error) {
	ctx := context.Background()

	cfg, err := config.Parse(strings.NewReader(configYAML))
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	fx, err := fixture.Parse(strings.NewReader(fixtureYAML))
	if err != nil {
		return nil, fmt.Errorf("invalid fixture: %w", err)
	}

	opts := cfg.Options()
	p, err := analysis.NewProject(opts)
	if err != nil {
		return nil, err
	}
	modules, err := fx.Build(p)
	if err != nil {
		return nil, err
	}
	if cfg.Workers > 1 {
		err = p.AnalyzeParallel(ctx, cfg.Workers)
	} else {
		err = p.Analyze(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("analysis failed: %w", err)
	}

	exporter := schemaexport.New(p)
	named := make([]schemaexport.Named, 0, len(modules))
	for _, m := range modules {
		named = append(named, schemaexport.Named{Name: m.Name(), Schema: exporter.Module(m)})
	}
	title := fx.Name
	if title == "" {
		title = "valueflow"
	}

	var buf strings.Builder
	if err := schemaexport.WriteYAML(&buf, schemaexport.Document(title, named)); err != nil {
		return nil, err
	}

	result := &Result{
		Schema:   buf.String(),
		Warnings: p.Warnings(),
		Stats:    p.Stats(),
	}

	// Round-trip through the OpenAPI parser so consumers see what it
	// thinks of the document.
	doc, validationErrs, err := openapi.Unmarshal(ctx, strings.NewReader(result.Schema))
	if err != nil {
		return nil, fmt.Errorf("failed to parse generated document: %w", err)
	}
	for _, verr := range validationErrs {
		result.Validation = append(result.Validation, fmt.Sprintf("%v", verr))
	}
	result.Schemas = countSchemas(ctx, doc)
	return result, nil
}

func countSchemas(ctx context.Context, doc *openapi.OpenAPI) int {
	n := 0
	for item := range openapi.Walk(ctx, doc) {
		_ = item.Match(openapi.Matcher{
			Schema: func(schema *oas3.JSONSchema[oas3.Referenceable]) error {
				n++
				return nil
			},
		})
	}
	return n
}
