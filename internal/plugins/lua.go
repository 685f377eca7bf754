package plugins

import (
	"context"
	"errors"
	"fmt"

	"codeshift/internal/registry"
	"codeshift/internal/script"
)

// DefaultEntry is the global a scripted plugin calls when none is named.
const DefaultEntry = "compile"

// ScriptSpec declares a plugin implemented by Lua scripts. The scripts are its
// dependencies; compile calls Entry(code, options) in whichever environment
// loaded them, or the entry captured when the plugin was loaded inline.
type ScriptSpec struct {
	Name         string
	From         []string
	To           []string
	Entry        string
	Async        bool
	Isolated     bool
	Dependencies []registry.Resource
}

var ErrNoScriptEnv = errors.New("plugins: no script environment in context")

func Scripted(s ScriptSpec) registry.Descriptor {
	entry := s.Entry
	if entry == "" {
		entry = DefaultEntry
	}
	return registry.Descriptor{
		Name:         s.Name,
		From:         s.From,
		To:           s.To,
		Dependencies: s.Dependencies,
		Async:        s.Async,
		Isolated:     s.Isolated,
		Entry:        entry,
		Compile: func(ctx context.Context, in registry.Input) (any, error) {
			opts := in.Options
			if opts == nil {
				opts = map[string]any{}
			}
			var (
				out any
				err error
			)
			if fn, ok := script.FuncFromContext(ctx); ok {
				out, err = fn.Call(ctx, in.Code, opts)
			} else if env, ok := script.FromContext(ctx); ok {
				out, err = env.Call(ctx, entry, in.Code, opts)
			} else {
				return nil, ErrNoScriptEnv
			}
			if err != nil {
				return nil, fmt.Errorf("%s: %w", s.Name, err)
			}
			return out, nil
		},
	}
}
