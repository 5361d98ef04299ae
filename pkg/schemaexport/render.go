package schemaexport

import (
	"fmt"
	"io"

	"github.com/speakeasy-api/openapi/jsonschema/oas3"
	"gopkg.in/yaml.v3"
)

// Named pairs a schema with the component name it is published under.
type Named struct {
	Name   string
	Schema *oas3.Schema
}

// Document wraps schemas in a minimal OpenAPI 3.1 document, one component
// schema per entry, in the given order.
func Document(title string, schemas []Named) *yaml.Node {
	components := mapping()
	for _, n := range schemas {
		appendPair(components, n.Name, SchemaNode(n.Schema))
	}
	info := mapping()
	appendPair(info, "title", scalar(title, "!!str"))
	appendPair(info, "version", scalar("1.0.0", "!!str"))

	doc := mapping()
	appendPair(doc, "openapi", scalar("3.1.0", "!!str"))
	appendPair(doc, "info", info)
	comps := mapping()
	appendPair(comps, "schemas", components)
	appendPair(doc, "components", comps)
	return doc
}

// WriteYAML encodes node with two-space indentation.
func WriteYAML(w io.Writer, node *yaml.Node) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(node); err != nil {
		return fmt.Errorf("failed to encode yaml: %w", err)
	}
	return enc.Close()
}

// SchemaNode renders the parts of a schema the exporter produces. A nil
// schema matches nothing and renders as `not: {}`.
func SchemaNode(s *oas3.Schema) *yaml.Node {
	n := mapping()
	if s == nil {
		appendPair(n, "not", mapping())
		return n
	}

	if types := s.GetType(); len(types) == 1 {
		appendPair(n, "type", scalar(string(types[0]), "!!str"))
	} else if len(types) > 1 {
		seq := &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
		for _, t := range types {
			seq.Content = append(seq.Content, scalar(string(t), "!!str"))
		}
		appendPair(n, "type", seq)
	}

	if len(s.Enum) > 0 {
		seq := &yaml.Node{Kind: yaml.SequenceNode}
		for _, e := range s.Enum {
			seq.Content = append(seq.Content, &yaml.Node{Kind: e.Kind, Tag: e.Tag, Value: e.Value})
		}
		appendPair(n, "enum", seq)
	}

	if s.Items != nil {
		appendPair(n, "items", SchemaNode(s.Items.Left))
	}

	if s.Properties != nil {
		props := mapping()
		for name, prop := range s.Properties.All() {
			appendPair(props, name, SchemaNode(prop.GetLeft()))
		}
		if len(props.Content) > 0 {
			appendPair(n, "properties", props)
		}
	}

	if len(s.AnyOf) > 0 {
		seq := &yaml.Node{Kind: yaml.SequenceNode}
		for _, branch := range s.AnyOf {
			seq.Content = append(seq.Content, SchemaNode(branch.GetLeft()))
		}
		appendPair(n, "anyOf", seq)
	}
	return n
}

func mapping() *yaml.Node {
	return &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
}

func scalar(value, tag string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: value}
}

func appendPair(m *yaml.Node, key string, value *yaml.Node) {
	m.Content = append(m.Content, scalar(key, "!!str"), value)
}
