package export

import (
	"fmt"
	"io"
	"strconv"

	"gopkg.in/yaml.v3"
)

// WriteYAML writes a sequence of mappings keeping the column order
func WriteYAML(w io.Writer, records []Record) error {
	doc := &yaml.Node{Kind: yaml.SequenceNode}
	for _, rec := range records {
		doc.Content = append(doc.Content, recordNode(rec))
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode yaml: %w", err)
	}
	return enc.Close()
}

func recordNode(rec Record) *yaml.Node {
	m := &yaml.Node{Kind: yaml.MappingNode}
	for _, c := range Columns() {
		key := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: c}
		m.Content = append(m.Content, key, scalarNode(rec.value(c)))
	}
	return m
}

func scalarNode(v any) *yaml.Node {
	switch t := v.(type) {
	case nil:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
	case bool:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(t)}
	default:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: fmt.Sprint(t)}
	}
}
