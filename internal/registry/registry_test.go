package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop(context.Context, Input) (any, error) { return nil, nil }

var testAliases = AliasTable{
	"ts":       {"typescript"},
	"js":       {"javascript", "JS"},
	"markdown": {"md"},
}

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := New([]Descriptor{
		{Name: "less", From: []string{"less"}, To: []string{"css"}, Compile: noop},
		{Name: "typescript", From: []string{"ts", "typescript"}, To: []string{"js", "javascript"}, Isolated: true, Compile: noop},
		{Name: "markdown", From: []string{"Markdown"}, To: []string{"html"}, Compile: noop},
	}, testAliases)
	require.NoError(t, err)
	return r
}

func TestNormalize_Idempotent(t *testing.T) {
	r := testRegistry(t)
	for _, name := range []string{"ts", "typescript", "TypeScript", "js", "JavaScript", "md", "markdown", "css", " LESS ", "unknown"} {
		once := r.Normalize(name)
		assert.Equal(t, once, r.Normalize(once), name)
	}
	assert.Equal(t, "ts", r.Normalize("TypeScript"))
	assert.Equal(t, "markdown", r.Normalize("MD"))
}

func TestResolve_AnyAliasReturnsSameDescriptor(t *testing.T) {
	r := testRegistry(t)
	for _, d := range r.Descriptors() {
		for _, from := range d.From {
			for _, to := range d.To {
				for _, fa := range append([]string{from}, r.Aliases(from)...) {
					for _, ta := range append([]string{to}, r.Aliases(to)...) {
						got, err := r.Resolve(fa, ta)
						require.NoError(t, err, "%s -> %s", fa, ta)
						assert.Same(t, d, got)
					}
				}
			}
		}
	}

	a, err := r.Resolve("typescript", "js")
	require.NoError(t, err)
	b, err := r.Resolve("ts", "javascript")
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.True(t, a.Isolated)
}

func TestResolve_NotFound(t *testing.T) {
	r := testRegistry(t)
	_, err := r.Resolve("xml", "yaml")
	var nf *PluginNotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "xml", nf.From)
	assert.Equal(t, "yaml", nf.To)

	_, err = r.Resolve("nonexistent", "format")
	assert.True(t, errors.As(err, &nf))
}

func TestNew_RejectsAmbiguousDescriptors(t *testing.T) {
	_, err := New([]Descriptor{
		{Name: "a", From: []string{"ts"}, To: []string{"js"}, Compile: noop},
		{Name: "b", From: []string{"typescript"}, To: []string{"javascript"}, Compile: noop},
	}, testAliases)
	assert.ErrorIs(t, err, ErrAmbiguousPlugin)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, nil)
	assert.ErrorIs(t, err, ErrEmptyRegistry)

	_, err = New([]Descriptor{{
		Name: "x", From: []string{"a"}, To: []string{"b"}, Compile: noop,
		Dependencies: []Resource{{Name: "lib"}},
	}}, nil)
	assert.ErrorIs(t, err, ErrInvalidResource)

	_, err = New([]Descriptor{{
		Name: "x", From: []string{"a"}, To: []string{"b"}, Compile: noop,
		Dependencies: []Resource{{Name: "lib", Providers: []ProviderURLs{{Provider: "cdnjs"}}}},
	}}, nil)
	assert.ErrorIs(t, err, ErrInvalidResource)

	_, err = New([]Descriptor{{Name: "x", From: []string{"a"}, To: []string{"b"}}}, nil)
	assert.Error(t, err)

	_, err = New([]Descriptor{{Name: "x", From: []string{"a"}, To: []string{"b"}, Compile: noop}},
		AliasTable{"js": {"es"}, "ecma": {"es"}})
	assert.ErrorIs(t, err, ErrInvalidAlias)

	_, err = New([]Descriptor{{Name: "x", From: []string{"a"}, To: []string{"b"}, Compile: noop}},
		AliasTable{"js": {"ts"}, "ts": {"typescript"}})
	assert.ErrorIs(t, err, ErrInvalidAlias)
}

func TestNew_NormalizesNameSets(t *testing.T) {
	r := testRegistry(t)
	d, ok := r.Lookup("typescript")
	require.True(t, ok)
	assert.Equal(t, []string{"ts"}, d.From)
	assert.Equal(t, []string{"js"}, d.To)
	assert.Equal(t, "isolated", d.Mode())

	d, ok = r.Lookup("markdown")
	require.True(t, ok)
	assert.True(t, d.Accepts("markdown", "html"))
	assert.Equal(t, "inline", d.Mode())
}

func TestResource_URLs(t *testing.T) {
	res := Resource{Name: "lib", Providers: []ProviderURLs{
		{Provider: "jsdelivr", URLs: []string{"u1"}},
		{Provider: "cdnjs", URLs: []string{"u2", "u3"}},
	}}
	urls, ok := res.URLs("cdnjs")
	require.True(t, ok)
	assert.Equal(t, []string{"u2", "u3"}, urls)
	_, ok = res.URLs("unpkg")
	assert.False(t, ok)
}
