package loader

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeshift/internal/registry"
	"codeshift/internal/script"
	"codeshift/internal/telemetry"
)

type call struct {
	url    string
	method script.Method
}

type recordingTarget struct {
	mu    sync.Mutex
	calls []call
	fail  map[string]error
	block map[string]bool
}

func (r *recordingTarget) LoadScript(ctx context.Context, url string, m script.Method) error {
	r.mu.Lock()
	r.calls = append(r.calls, call{url, m})
	err := r.fail[url]
	block := r.block[url]
	r.mu.Unlock()
	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

func (r *recordingTarget) urls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.calls))
	for _, c := range r.calls {
		out = append(out, c.url)
	}
	return out
}

func res(name string, entries ...registry.ProviderURLs) registry.Resource {
	return registry.Resource{Name: name, Providers: entries}
}

func p(provider string, urls ...string) registry.ProviderURLs {
	return registry.ProviderURLs{Provider: provider, URLs: urls}
}

func TestLoadResources_FallbackIsPerResource(t *testing.T) {
	var notices []FallbackNotice
	m := telemetry.NewMetrics()
	l := New(WithNoticeHook(func(n FallbackNotice) { notices = append(notices, n) }), WithMetrics(m))
	target := &recordingTarget{}

	err := l.LoadResources(context.Background(), []registry.Resource{
		res("first", p("jsdelivr", "u1"), p("cdnjs", "u2")),
		res("second", p("jsdelivr", "u3")),
	}, "cdnjs", target)
	require.NoError(t, err)

	assert.Equal(t, []string{"u2", "u3"}, target.urls())
	assert.Equal(t, []FallbackNotice{{Resource: "second", Requested: "cdnjs", Chosen: "jsdelivr"}}, notices)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Fallbacks.WithLabelValues("second", "cdnjs", "jsdelivr")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ScriptLoads.WithLabelValues("isolated", "ok")))
}

func TestLoadResources_FallbackPicksFirstDeclared(t *testing.T) {
	target := &recordingTarget{}
	err := New().LoadResources(context.Background(), []registry.Resource{
		res("lib", p("unpkg", "z1"), p("jsdelivr", "a1")),
	}, "cdnjs", target)
	require.NoError(t, err)
	assert.Equal(t, []string{"z1"}, target.urls())
}

func TestLoadResources_SequentialOrder(t *testing.T) {
	target := &recordingTarget{}
	err := New().LoadResources(context.Background(), []registry.Resource{
		res("A", p("cdnjs", "A1", "A2")),
		res("B", p("cdnjs", "B1", "B2")),
	}, "cdnjs", target)
	require.NoError(t, err)
	assert.Equal(t, []string{"A1", "A2", "B1", "B2"}, target.urls())
	for _, c := range target.calls {
		assert.Equal(t, script.MethodImport, c.method)
	}
}

func TestLoadResources_StopsAtFirstFailure(t *testing.T) {
	cause := errors.New("404")
	target := &recordingTarget{fail: map[string]error{"A2": cause}}
	err := New(WithMethod(script.MethodFetch)).LoadResources(context.Background(), []registry.Resource{
		res("A", p("cdnjs", "A1", "A2", "A3")),
		res("B", p("cdnjs", "B1")),
	}, "cdnjs", target)

	var le *DependencyLoadError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, "A", le.Resource)
	assert.Equal(t, "cdnjs", le.Provider)
	assert.Equal(t, "A2", le.URL)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, []string{"A1", "A2"}, target.urls())
	assert.Equal(t, script.MethodFetch, target.calls[0].method)
}

func TestLoadResources_Timeout(t *testing.T) {
	target := &recordingTarget{block: map[string]bool{"slow": true}}
	err := New(WithTimeout(20*time.Millisecond)).LoadResources(context.Background(), []registry.Resource{
		res("slow", p("cdnjs", "slow")),
	}, "cdnjs", target)
	require.Error(t, err)
	assert.True(t, IsTimeout(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLoadResources_IntoMainEnv(t *testing.T) {
	env := script.NewEnv("main", script.WithFetcher(script.FetcherFunc(func(_ context.Context, url string) ([]byte, error) {
		return []byte(`return { url = "` + url + `" }`), nil
	})))
	defer env.Close()

	err := New().LoadResources(context.Background(), []registry.Resource{
		res("lib", p("jsdelivr", "mem://lib.lua")),
	}, "", env)
	require.NoError(t, err)
	assert.Equal(t, []string{"mem://lib.lua"}, env.Loaded())
}
