package plugins

import (
	"context"
	"fmt"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"codeshift/internal/registry"
)

type esbuildOptions struct {
	Target     string `option:"target"`
	Format     string `option:"format"`
	Minify     bool   `option:"minify"`
	JSXFactory string `option:"jsx_factory"`
	Sourcefile string `option:"sourcefile"`
}

var esTargets = map[string]api.Target{
	"":       api.ES2015,
	"es5":    api.ES5,
	"es2015": api.ES2015,
	"es2016": api.ES2016,
	"es2017": api.ES2017,
	"es2018": api.ES2018,
	"es2019": api.ES2019,
	"es2020": api.ES2020,
	"es2021": api.ES2021,
	"es2022": api.ES2022,
	"esnext": api.ESNext,
}

var esFormats = map[string]api.Format{
	"":     api.FormatDefault,
	"iife": api.FormatIIFE,
	"cjs":  api.FormatCommonJS,
	"esm":  api.FormatESModule,
}

// TypeScript strips types with esbuild. It runs isolated.
func TypeScript() registry.Descriptor {
	return registry.Descriptor{
		Name:     "esbuild-ts",
		From:     []string{"ts"},
		To:       []string{"js"},
		Isolated: true,
		Compile:  esbuildCompile(api.LoaderTS, false),
	}
}

func TSX() registry.Descriptor {
	return registry.Descriptor{
		Name:    "esbuild-tsx",
		From:    []string{"tsx"},
		To:      []string{"js"},
		Compile: esbuildCompile(api.LoaderTSX, false),
	}
}

func JSX() registry.Descriptor {
	return registry.Descriptor{
		Name:    "esbuild-jsx",
		From:    []string{"jsx"},
		To:      []string{"js"},
		Compile: esbuildCompile(api.LoaderJSX, false),
	}
}

// Minify is asynchronous: the orchestrator awaits it on its own goroutine.
func Minify() registry.Descriptor {
	return registry.Descriptor{
		Name:    "esbuild-minify",
		From:    []string{"js"},
		To:      []string{"js_minified"},
		Async:   true,
		Compile: esbuildCompile(api.LoaderJS, true),
	}
}

func esbuildCompile(loader api.Loader, minify bool) registry.CompileFunc {
	return func(_ context.Context, in registry.Input) (any, error) {
		var o esbuildOptions
		if err := decodeOptions(in.Options, &o); err != nil {
			return nil, err
		}
		target, ok := esTargets[strings.ToLower(o.Target)]
		if !ok {
			return nil, fmt.Errorf("options: unknown target %q", o.Target)
		}
		format, ok := esFormats[strings.ToLower(o.Format)]
		if !ok {
			return nil, fmt.Errorf("options: unknown format %q", o.Format)
		}
		compact := minify || o.Minify

		result := api.Transform(in.Code, api.TransformOptions{
			Loader:            loader,
			Target:            target,
			Format:            format,
			JSXFactory:        o.JSXFactory,
			Sourcefile:        o.Sourcefile,
			MinifyWhitespace:  compact,
			MinifyIdentifiers: compact,
			MinifySyntax:      compact,
		})
		if len(result.Errors) > 0 {
			msg := result.Errors[0]
			loc := ""
			if msg.Location != nil {
				loc = fmt.Sprintf(" at line %d, column %d", msg.Location.Line, msg.Location.Column)
			}
			return nil, fmt.Errorf("syntax error%s: %s", loc, msg.Text)
		}
		return string(result.Code), nil
	}
}
