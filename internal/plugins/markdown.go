package plugins

import (
	"bytes"
	"context"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/renderer/html"

	"codeshift/internal/registry"
)

type markdownOptions struct {
	HardWraps bool `option:"hard_wraps"`
	XHTML     bool `option:"xhtml"`
	Unsafe    bool `option:"unsafe"`
	HeadingID bool `option:"heading_ids"`
}

// Markdown renders GitHub flavoured markdown.
func Markdown() registry.Descriptor {
	return registry.Descriptor{
		Name:    "goldmark",
		From:    []string{"markdown"},
		To:      []string{"html"},
		Compile: renderMarkdown,
	}
}

func renderMarkdown(_ context.Context, in registry.Input) (any, error) {
	var o markdownOptions
	if err := decodeOptions(in.Options, &o); err != nil {
		return nil, err
	}
	var rOpts []renderer.Option
	if o.HardWraps {
		rOpts = append(rOpts, html.WithHardWraps())
	}
	if o.XHTML {
		rOpts = append(rOpts, html.WithXHTML())
	}
	if o.Unsafe {
		rOpts = append(rOpts, html.WithUnsafe())
	}
	var pOpts []parser.Option
	if o.HeadingID {
		pOpts = append(pOpts, parser.WithAutoHeadingID())
	}

	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithParserOptions(pOpts...),
		goldmark.WithRendererOptions(rOpts...),
	)
	var buf bytes.Buffer
	if err := md.Convert([]byte(in.Code), &buf); err != nil {
		return nil, err
	}
	return buf.String(), nil
}
