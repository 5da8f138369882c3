package filesystem

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"gopkg.in/yaml.v3"
)

const mergeKey = "<<"

// nodeToJSON renders a YAML node tree as JSON, keeping mapping key order so
// order-sensitive sections such as headers survive the conversion.
func nodeToJSON(node *yaml.Node) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeNode(&buf, node, 0); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeNode(buf *bytes.Buffer, node *yaml.Node, depth int) error {
	if depth > 256 {
		return fmt.Errorf("document nests too deeply")
	}
	if node == nil {
		buf.WriteString("null")
		return nil
	}

	switch node.Kind {
	case yaml.DocumentNode:
		if len(node.Content) == 0 {
			buf.WriteString("null")
			return nil
		}
		return writeNode(buf, node.Content[0], depth+1)

	case yaml.AliasNode:
		return writeNode(buf, node.Alias, depth+1)

	case yaml.SequenceNode:
		buf.WriteByte('[')
		for i, child := range node.Content {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeNode(buf, child, depth+1); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil

	case yaml.MappingNode:
		pairs, err := mappingPairs(node, depth)
		if err != nil {
			return err
		}
		buf.WriteByte('{')
		for i, p := range pairs {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, _ := json.Marshal(p.key)
			buf.Write(key)
			buf.WriteByte(':')
			if err := writeNode(buf, p.value, depth+1); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil

	case yaml.ScalarNode:
		return writeScalar(buf, node)
	}
	return fmt.Errorf("line %d: unsupported YAML node kind %d", node.Line, node.Kind)
}

type pair struct {
	key   string
	value *yaml.Node
}

// mappingPairs flattens merge keys. Explicit keys win over merged ones.
func mappingPairs(node *yaml.Node, depth int) ([]pair, error) {
	var merged, own []pair
	for i := 0; i+1 < len(node.Content); i += 2 {
		k, v := node.Content[i], node.Content[i+1]
		if k.Kind == yaml.ScalarNode && k.Value == mergeKey && k.ShortTag() == "!!merge" {
			for _, src := range mergeSources(v) {
				if src.Kind != yaml.MappingNode {
					return nil, fmt.Errorf("line %d: merge value is not a mapping", v.Line)
				}
				ps, err := mappingPairs(src, depth+1)
				if err != nil {
					return nil, err
				}
				merged = append(merged, ps...)
			}
			continue
		}
		if k.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("line %d: mapping keys must be scalars", k.Line)
		}
		own = append(own, pair{key: k.Value, value: v})
	}

	seen := make(map[string]bool, len(own))
	for _, p := range own {
		seen[p.key] = true
	}
	out := make([]pair, 0, len(merged)+len(own))
	for _, p := range merged {
		if !seen[p.key] {
			seen[p.key] = true
			out = append(out, p)
		}
	}
	return append(out, own...), nil
}

func mergeSources(v *yaml.Node) []*yaml.Node {
	if v.Kind == yaml.AliasNode {
		v = v.Alias
	}
	if v.Kind == yaml.SequenceNode {
		out := make([]*yaml.Node, 0, len(v.Content))
		for _, c := range v.Content {
			if c.Kind == yaml.AliasNode {
				c = c.Alias
			}
			out = append(out, c)
		}
		return out
	}
	return []*yaml.Node{v}
}

func writeScalar(buf *bytes.Buffer, node *yaml.Node) error {
	switch node.ShortTag() {
	case "!!null":
		buf.WriteString("null")
		return nil
	case "!!bool", "!!int", "!!float":
		var v any
		if err := node.Decode(&v); err != nil {
			return fmt.Errorf("line %d: %w", node.Line, err)
		}
		if f, ok := v.(float64); ok && (math.IsInf(f, 0) || math.IsNaN(f)) {
			return fmt.Errorf("line %d: %q has no JSON representation", node.Line, node.Value)
		}
		out, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("line %d: %w", node.Line, err)
		}
		buf.Write(out)
		return nil
	}
	out, err := json.Marshal(node.Value)
	if err != nil {
		return err
	}
	buf.Write(out)
	return nil
}
