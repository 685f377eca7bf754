package compiler

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeshift/internal/isolate"
	"codeshift/internal/loader"
	"codeshift/internal/plugins"
	"codeshift/internal/registry"
	"codeshift/internal/script"
	"codeshift/internal/telemetry"
)

var errBadInput = errors.New("bad input")

var scripts = map[string]string{
	"mem://jsdelivr/shout.lua": `function compile(code, options) return string.upper(code) .. "!" end`,
	"mem://cdnjs/helper.lua":   `return { tag = "cdnjs" }`,
	"mem://cdnjs/a.lua":        `function compile(code) return "A:" .. code end`,
	"mem://cdnjs/b.lua":        `function compile(code) return "B:" .. code end`,
}

func memFetcher() script.Fetcher {
	return script.FetcherFunc(func(_ context.Context, url string) ([]byte, error) {
		src, ok := scripts[url]
		if !ok {
			return nil, errors.New("no such script " + url)
		}
		return []byte(src), nil
	})
}

func callEntry(ctx context.Context, in registry.Input) (any, error) {
	env, ok := script.FromContext(ctx)
	if !ok {
		return nil, errors.New("no env")
	}
	return env.Call(ctx, "compile", in.Code)
}

func shoutDeps() []registry.Resource {
	return []registry.Resource{
		{Name: "helper", Providers: []registry.ProviderURLs{
			{Provider: "cdnjs", URLs: []string{"mem://cdnjs/helper.lua"}},
		}},
		{Name: "shout", Providers: []registry.ProviderURLs{
			{Provider: "jsdelivr", URLs: []string{"mem://jsdelivr/shout.lua"}},
		}},
	}
}

func descriptors() []registry.Descriptor {
	return []registry.Descriptor{
		{
			Name: "less", From: []string{"less"}, To: []string{"css"},
			Compile: func(context.Context, registry.Input) (any, error) {
				return map[string]any{"css": "<result>"}, nil
			},
		},
		{
			Name: "typescript", From: []string{"ts", "typescript"}, To: []string{"js", "javascript"}, Isolated: true,
			Compile: func(_ context.Context, in registry.Input) (any, error) {
				return "js:" + in.Code, nil
			},
		},
		{
			Name: "failing", From: []string{"bad"}, To: []string{"out"},
			Compile: func(context.Context, registry.Input) (any, error) { return nil, errBadInput },
		},
		{
			Name: "remote-failing", From: []string{"bad"}, To: []string{"remote"}, Isolated: true,
			Compile: func(context.Context, registry.Input) (any, error) { return nil, errBadInput },
		},
		{
			Name: "slow", From: []string{"slow"}, To: []string{"out"}, Async: true,
			Compile: func(ctx context.Context, in registry.Input) (any, error) {
				if in.Code == "wait" {
					<-ctx.Done()
					return nil, ctx.Err()
				}
				return strings.Repeat(in.Code, 2), nil
			},
		},
		{
			Name: "shout-inline", From: []string{"text"}, To: []string{"shout"},
			Dependencies: shoutDeps(), Compile: callEntry,
		},
		{
			Name: "shout-isolated", From: []string{"text"}, To: []string{"shout-isolated"}, Isolated: true,
			Dependencies: shoutDeps(), Compile: callEntry,
		},
		{
			Name: "broken-deps", From: []string{"text"}, To: []string{"broken"}, Isolated: true,
			Dependencies: []registry.Resource{{Name: "gone", Providers: []registry.ProviderURLs{
				{Provider: "cdnjs", URLs: []string{"mem://cdnjs/gone.lua"}},
			}}},
			Compile: callEntry,
		},
	}
}

type fixture struct {
	c       *Compiler
	notices []loader.FallbackNotice
	metrics *telemetry.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg, err := registry.New(descriptors(), registry.AliasTable{
		"ts": {"typescript"},
		"js": {"javascript"},
	})
	require.NoError(t, err)

	f := &fixture{metrics: telemetry.NewMetrics()}
	sp, err := isolate.NewInProcess(
		isolate.NewWorker(isolate.RegistryBinder(reg), isolate.WithWorkerFetcher(memFetcher())),
		isolate.WithClientMetrics(f.metrics),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sp.Close() })

	main := script.NewEnv("main", script.WithFetcher(memFetcher()))
	t.Cleanup(main.Close)

	f.c = New(reg,
		WithSpawner(sp),
		WithMainEnv(main),
		WithMetrics(f.metrics),
		WithLoader(loader.New(
			loader.WithMetrics(f.metrics),
			loader.WithNoticeHook(func(n loader.FallbackNotice) { f.notices = append(f.notices, n) }),
		)),
	)
	t.Cleanup(func() { _ = f.c.Close() })
	return f
}

func TestCompile_InlineSync(t *testing.T) {
	f := newFixture(t)
	out, err := f.c.Compile(context.Background(), Request{From: "less", To: "css", Code: "a{color:red}"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"css": "<result>"}, out)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Compiles.WithLabelValues("less", "inline", "ok")))
}

func TestCompile_IsolatedAliasesResolveTheSamePlugin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.c.Registry().Resolve("typescript", "js")
	require.NoError(t, err)
	b, err := f.c.Registry().Resolve("ts", "javascript")
	require.NoError(t, err)
	assert.Same(t, a, b)

	out, err := f.c.Compile(ctx, Request{From: "typescript", To: "js", Code: "let x"})
	require.NoError(t, err)
	assert.Equal(t, "js:let x", out)
	out, err = f.c.Compile(ctx, Request{From: "ts", To: "javascript", Code: "let y"})
	require.NoError(t, err)
	assert.Equal(t, "js:let y", out)

	assert.Equal(t, 0.0, testutil.ToFloat64(f.metrics.IsolatedContexts))
}

func TestCompile_UnknownPair(t *testing.T) {
	f := newFixture(t)
	_, err := f.c.Compile(context.Background(), Request{From: "xml", To: "yaml"})
	var nf *registry.PluginNotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, &registry.PluginNotFoundError{From: "xml", To: "yaml"}, nf)
}

func TestCompile_InlineErrorIsNotWrapped(t *testing.T) {
	f := newFixture(t)
	_, err := f.c.Compile(context.Background(), Request{From: "bad", To: "out"})
	assert.Same(t, errBadInput, err)
}

func TestCompile_IsolatedErrorCrossesTheBoundary(t *testing.T) {
	f := newFixture(t)
	_, err := f.c.Compile(context.Background(), Request{From: "bad", To: "remote"})
	var re *isolate.RemoteError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "bad input", re.Message)
}

func TestCompile_AsyncAwaitsOrCancels(t *testing.T) {
	f := newFixture(t)
	out, err := f.c.Compile(context.Background(), Request{From: "slow", To: "out", Code: "ab"})
	require.NoError(t, err)
	assert.Equal(t, "abab", out)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = f.c.Compile(ctx, Request{From: "slow", To: "out", Code: "wait"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCompile_FallbackPerResource(t *testing.T) {
	f := newFixture(t)
	out, err := f.c.Compile(context.Background(), Request{From: "text", To: "shout", Code: "hi", Provider: "cdnjs"})
	require.NoError(t, err)
	assert.Equal(t, "HI!", out)
	assert.Equal(t, []loader.FallbackNotice{{Resource: "shout", Requested: "cdnjs", Chosen: "jsdelivr"}}, f.notices)
}

func TestCompile_IsolatedDependenciesLoadIntoTheContext(t *testing.T) {
	f := newFixture(t)
	out, err := f.c.Compile(context.Background(), Request{From: "text", To: "shout-isolated", Code: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "HI!", out)
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.ScriptLoads.WithLabelValues("isolated", "ok")))
}

func TestLoad_FailureTerminatesContext(t *testing.T) {
	f := newFixture(t)
	d, ok := f.c.Registry().Lookup("broken-deps")
	require.True(t, ok)

	_, err := f.c.Load(context.Background(), d, "")
	var le *loader.DependencyLoadError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, "gone", le.Resource)
	var re *isolate.RemoteError
	assert.True(t, errors.As(err, &re))
	assert.Equal(t, 0.0, testutil.ToFloat64(f.metrics.IsolatedContexts))
}

func TestHandle_SingleUse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, name := range []string{"less", "typescript"} {
		d, ok := f.c.Registry().Lookup(name)
		require.True(t, ok)
		h, err := f.c.Load(ctx, d, "")
		require.NoError(t, err)

		_, err = h.Run(ctx, "x", nil)
		require.NoError(t, err)
		_, err = h.Run(ctx, "x", nil)
		assert.ErrorIs(t, err, ErrHandleSpent, name)
	}

	d, _ := f.c.Registry().Lookup("typescript")
	h, err := f.c.Load(ctx, d, "")
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.IsolatedContexts))
	require.NoError(t, h.Close())
	assert.Equal(t, 0.0, testutil.ToFloat64(f.metrics.IsolatedContexts))
	_, err = h.Run(ctx, "x", nil)
	assert.ErrorIs(t, err, ErrHandleSpent)
}

func TestNew_DefaultsToInProcessContexts(t *testing.T) {
	reg, err := registry.New([]registry.Descriptor{{
		Name: "upper", From: []string{"text"}, To: []string{"upper"}, Isolated: true,
		Compile: func(_ context.Context, in registry.Input) (any, error) { return strings.ToUpper(in.Code), nil },
	}}, nil)
	require.NoError(t, err)

	c := New(reg)
	defer c.Close()
	out, err := c.Compile(context.Background(), Request{From: "text", To: "upper", Code: "abc"})
	require.NoError(t, err)
	assert.Equal(t, "ABC", out)
}

func scriptedPlugin(name, url string) registry.Descriptor {
	return plugins.Scripted(plugins.ScriptSpec{
		Name: name, From: []string{"text"}, To: []string{name},
		Dependencies: []registry.Resource{{Name: name, Providers: []registry.ProviderURLs{
			{Provider: "cdnjs", URLs: []string{url}},
		}}},
	})
}

func TestHandle_InlineScriptedKeepsItsOwnEntry(t *testing.T) {
	reg, err := registry.New([]registry.Descriptor{
		scriptedPlugin("a", "mem://cdnjs/a.lua"),
		scriptedPlugin("b", "mem://cdnjs/b.lua"),
	}, nil)
	require.NoError(t, err)
	main := script.NewEnv("main", script.WithFetcher(memFetcher()))
	defer main.Close()
	c := New(reg, WithMainEnv(main))
	defer c.Close()
	ctx := context.Background()

	da, _ := reg.Lookup("a")
	db, _ := reg.Lookup("b")
	ha, err := c.Load(ctx, da, "")
	require.NoError(t, err)
	hb, err := c.Load(ctx, db, "")
	require.NoError(t, err)

	out, err := ha.Run(ctx, "hi", nil)
	require.NoError(t, err)
	assert.Equal(t, "A:hi", out)
	out, err = hb.Run(ctx, "hi", nil)
	require.NoError(t, err)
	assert.Equal(t, "B:hi", out)
}

func TestLoad_InlineScriptedWithoutEntry(t *testing.T) {
	d := scriptedPlugin("helper", "mem://cdnjs/helper.lua")
	reg, err := registry.New([]registry.Descriptor{d}, nil)
	require.NoError(t, err)
	main := script.NewEnv("main", script.WithFetcher(memFetcher()))
	defer main.Close()
	c := New(reg, WithMainEnv(main))
	defer c.Close()

	rd, _ := reg.Lookup("helper")
	_, err = c.Load(context.Background(), rd, "")
	assert.ErrorIs(t, err, script.ErrNoEntry)
}
