// Package plugins holds the builtin transformation plugins and the adapter
// that turns catalog-declared Lua scripts into plugins.
package plugins

import (
	"fmt"

	"github.com/mitchellh/mapstructure"

	"codeshift/internal/registry"
)

// Builtin returns the plugins compiled into codeshift, in registration order.
func Builtin() []registry.Descriptor {
	return []registry.Descriptor{
		TypeScript(),
		TSX(),
		JSX(),
		Minify(),
		Markdown(),
		HCL(),
		YAMLToJSON(),
		JSONToYAML(),
		Test(),
	}
}

// Aliases is the builtin alias table.
func Aliases() registry.AliasTable {
	return registry.AliasTable{
		"js":          {"javascript", "ecmascript", "es", "mjs"},
		"ts":          {"typescript", "mts"},
		"js_minified": {"min.js", "minjs", "minified"},
		"markdown":    {"md", "mdown"},
		"html":        {"htm", "xhtml"},
		"yaml":        {"yml"},
		"hcl":         {"hcl2"},
	}
}

// decodeOptions maps a request's loose options onto a typed struct. Unknown
// keys are rejected so typos surface to the caller.
func decodeOptions(in map[string]any, out any) error {
	if len(in) == 0 {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		TagName:          "option",
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(in); err != nil {
		return fmt.Errorf("options: %w", err)
	}
	return nil
}
