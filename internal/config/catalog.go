package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"codeshift/internal/manifest"
	"codeshift/internal/plugins"
	"codeshift/internal/registry"
)

// LoadCatalog parses a plugin catalog and validates schema_version.
func LoadCatalog(path string) (manifest.Catalog, error) {
	var cat manifest.Catalog
	raw, err := os.ReadFile(path)
	if err != nil {
		return cat, err
	}
	if err := yaml.Unmarshal(raw, &cat); err != nil {
		return cat, fmt.Errorf("catalog %s: %w", path, err)
	}
	if cat.SchemaVersion == "" {
		cat.SchemaVersion = SupportedSchema
	}
	if cat.SchemaVersion != SupportedSchema {
		return cat, fmt.Errorf("catalog schema_version %q not supported (want %q)", cat.SchemaVersion, SupportedSchema)
	}
	return cat, nil
}

// BuildRegistry combines the builtin plugins with the catalog's scripted ones.
// Catalog aliases extend the builtin table; a canonical name present in both
// gets the union of synonyms.
func BuildRegistry(cat *manifest.Catalog) (*registry.Registry, error) {
	descs := plugins.Builtin()
	aliases := plugins.Aliases()
	if cat == nil {
		return registry.New(descs, aliases)
	}

	for canon, syns := range cat.Aliases {
		key := strings.ToLower(canon)
		aliases[key] = append(aliases[key], syns...)
	}
	for _, p := range cat.Plugins {
		d, err := scripted(p)
		if err != nil {
			return nil, err
		}
		descs = append(descs, d)
	}
	return registry.New(descs, aliases)
}

func scripted(p manifest.PluginSpec) (registry.Descriptor, error) {
	if rt := strings.ToLower(p.Runtime); rt != "" && rt != "lua" {
		return registry.Descriptor{}, fmt.Errorf("plugin %q: unsupported runtime %q", p.Name, p.Runtime)
	}
	deps := make([]registry.Resource, 0, len(p.Requires))
	for _, r := range p.Requires {
		deps = append(deps, r.Resource())
	}
	return plugins.Scripted(plugins.ScriptSpec{
		Name:         p.Name,
		From:         p.From,
		To:           p.To,
		Entry:        p.Entry,
		Async:        p.Async,
		Isolated:     p.Isolated,
		Dependencies: deps,
	}), nil
}
