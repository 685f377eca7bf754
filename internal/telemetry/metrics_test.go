package telemetry

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	m := NewMetrics()
	m.ObserveCompile("esbuild-ts", "inline", 10*time.Millisecond, nil)
	m.ObserveCompile("esbuild-ts", "inline", time.Millisecond, errors.New("x"))
	m.ObserveFallback("shout.lua", "cdnjs", "jsdelivr")
	m.ObserveScriptLoad("main", nil)
	m.ContextStarted()
	m.ContextStarted()
	m.ContextStopped()
	m.RequestSent()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Compiles.WithLabelValues("esbuild-ts", "inline", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Compiles.WithLabelValues("esbuild-ts", "inline", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Fallbacks.WithLabelValues("shout.lua", "cdnjs", "jsdelivr")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ScriptLoads.WithLabelValues("main", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IsolatedContexts))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RPCInflight))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveCompile("p", "inline", time.Second, nil)
	m.ObserveFallback("r", "a", "b")
	m.ContextStarted()
	m.RequestDone()
	assert.Nil(t, m.Registry())
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics()
	m.ObserveScriptLoad("isolated", errors.New("boom"))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `codeshift_script_loads_total{outcome="error",target="isolated"} 1`))
}
