package plugins

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"codeshift/internal/registry"
)

type jsonOptions struct {
	Indent string `option:"indent"`
}

type yamlOptions struct {
	Indent int `option:"indent"`
}

func YAMLToJSON() registry.Descriptor {
	return registry.Descriptor{
		Name:    "yaml-json",
		From:    []string{"yaml"},
		To:      []string{"json"},
		Compile: yamlToJSON,
	}
}

// JSONToYAML keeps the key order of the input document.
func JSONToYAML() registry.Descriptor {
	return registry.Descriptor{
		Name:    "json-yaml",
		From:    []string{"json"},
		To:      []string{"yaml"},
		Compile: jsonToYAML,
	}
}

func yamlToJSON(_ context.Context, in registry.Input) (any, error) {
	o := jsonOptions{Indent: "  "}
	if err := decodeOptions(in.Options, &o); err != nil {
		return nil, err
	}
	var doc any
	if err := yaml.Unmarshal([]byte(in.Code), &doc); err != nil {
		return nil, err
	}
	doc, err := stringKeys(doc)
	if err != nil {
		return nil, err
	}
	out, err := json.MarshalIndent(doc, "", o.Indent)
	if err != nil {
		return nil, err
	}
	return string(out), nil
}

// stringKeys rewrites the map[any]any yaml produces for non-string keys so
// the document can be marshalled as JSON.
func stringKeys(v any) (any, error) {
	switch x := v.(type) {
	case map[string]any:
		for k, e := range x {
			ne, err := stringKeys(e)
			if err != nil {
				return nil, err
			}
			x[k] = ne
		}
		return x, nil
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, e := range x {
			ne, err := stringKeys(e)
			if err != nil {
				return nil, err
			}
			m[fmt.Sprint(k)] = ne
		}
		return m, nil
	case []any:
		for i, e := range x {
			ne, err := stringKeys(e)
			if err != nil {
				return nil, err
			}
			x[i] = ne
		}
		return x, nil
	default:
		return v, nil
	}
}

func jsonToYAML(_ context.Context, in registry.Input) (any, error) {
	o := yamlOptions{Indent: 2}
	if err := decodeOptions(in.Options, &o); err != nil {
		return nil, err
	}
	if !json.Valid([]byte(in.Code)) {
		return nil, fmt.Errorf("input is not valid JSON")
	}
	// JSON is a YAML subset: parsing into a node keeps key order.
	var node yaml.Node
	if err := yaml.Unmarshal([]byte(in.Code), &node); err != nil {
		return nil, err
	}
	blockStyle(&node)

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(o.Indent)
	if err := enc.Encode(&node); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.String(), nil
}

func blockStyle(n *yaml.Node) {
	n.Style &^= yaml.FlowStyle
	if n.Kind == yaml.ScalarNode && n.Tag == "!!str" {
		n.Style &^= yaml.DoubleQuotedStyle
	}
	for _, c := range n.Content {
		blockStyle(c)
	}
}
