package taxonomy

import (
	_ "embed"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/holidaychanneldottv/recipe-tagger/pkg/tagger/internalerr"
)

//go:embed taxonomy.yaml
var defaultYAML []byte

// Default returns the taxonomy shipped with the binary
func Default() (*Taxonomy, error) {
	return Parse(defaultYAML)
}

// Load reads a taxonomy YAML file
func Load(path string) (*Taxonomy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	tax, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return tax, nil
}

// Parse decodes `<type>: {<name>: [keywords]}` documents. The node API is used
// instead of plain maps so that file order survives decoding.
func Parse(data []byte) (*Taxonomy, error) {
	tax := New()

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse taxonomy: %w: %w", internalerr.ErrInvalidConfig, err)
	}
	if len(doc.Content) == 0 {
		return tax, nil
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: taxonomy root must be a mapping: %w", root.Line, internalerr.ErrInvalidConfig)
	}

	for i := 0; i+1 < len(root.Content); i += 2 {
		typeNode, tagsNode := root.Content[i], root.Content[i+1]
		typ, err := ParseTagType(typeNode.Value)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", typeNode.Line, err)
		}
		if tagsNode.Kind == yaml.ScalarNode && tagsNode.Tag == "!!null" {
			continue
		}
		if tagsNode.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("line %d: %s must map tag names to keyword lists: %w", tagsNode.Line, typ, internalerr.ErrInvalidConfig)
		}

		for j := 0; j+1 < len(tagsNode.Content); j += 2 {
			nameNode, kwNode := tagsNode.Content[j], tagsNode.Content[j+1]
			var keywords []string
			if err := kwNode.Decode(&keywords); err != nil {
				return nil, fmt.Errorf("line %d: keywords for %s/%s: %w: %w", kwNode.Line, typ, nameNode.Value, internalerr.ErrInvalidConfig, err)
			}
			if err := tax.Add(typ, nameNode.Value, keywords); err != nil {
				return nil, fmt.Errorf("line %d: %w", nameNode.Line, err)
			}
		}
	}

	return tax, nil
}

// Dump writes the taxonomy back out in the same layout Parse accepts
func (t *Taxonomy) Dump(w io.Writer) error {
	root := &yaml.Node{Kind: yaml.MappingNode}
	groups := make(map[TagType]*yaml.Node)

	for _, e := range t.entries {
		tags, ok := groups[e.Type]
		if !ok {
			tags = &yaml.Node{Kind: yaml.MappingNode}
			groups[e.Type] = tags
			root.Content = append(root.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Value: string(e.Type)},
				tags,
			)
		}
		seq := &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
		for _, kw := range e.Keywords {
			seq.Content = append(seq.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: kw})
		}
		tags.Content = append(tags.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: e.Name},
			seq,
		)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(root); err != nil {
		return err
	}
	return enc.Close()
}
