// Package manifest declares the shapes of codeshift's YAML documents: the
// plugin catalog and the worker pipeline.
package manifest

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"codeshift/internal/registry"
)

// Catalog declares scripted plugins and extra aliases on top of the builtins.
type Catalog struct {
	SchemaVersion string              `yaml:"schema_version"`
	Aliases       map[string][]string `yaml:"aliases"`
	Plugins       []PluginSpec        `yaml:"plugins"`
}

type PluginSpec struct {
	Name     string         `yaml:"name"`
	From     []string       `yaml:"from"`
	To       []string       `yaml:"to"`
	Runtime  string         `yaml:"runtime"` // only "lua"
	Entry    string         `yaml:"entry"`
	Async    bool           `yaml:"async"`
	Isolated bool           `yaml:"isolated"`
	Requires []ResourceSpec `yaml:"requires"`
}

type ResourceSpec struct {
	Name string       `yaml:"name"`
	URLs ProviderList `yaml:"urls"`
}

func (r ResourceSpec) Resource() registry.Resource {
	return registry.Resource{Name: r.Name, Providers: r.URLs}
}

// ProviderList decodes a provider -> urls mapping in declaration order. A
// single URL may be written as a plain string.
type ProviderList []registry.ProviderURLs

func (p *ProviderList) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: urls must be a mapping of provider to urls", n.Line)
	}
	out := make(ProviderList, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		key, val := n.Content[i], n.Content[i+1]
		entry := registry.ProviderURLs{Provider: key.Value}
		switch val.Kind {
		case yaml.ScalarNode:
			entry.URLs = []string{val.Value}
		case yaml.SequenceNode:
			if err := val.Decode(&entry.URLs); err != nil {
				return err
			}
		default:
			return fmt.Errorf("line %d: provider %q needs a url or a list of urls", val.Line, key.Value)
		}
		out = append(out, entry)
	}
	*p = out
	return nil
}
