package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the dispatcher's collectors on a private registry. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	reg *prometheus.Registry

	Compiles         *prometheus.CounterVec
	CompileDuration  *prometheus.HistogramVec
	ScriptLoads      *prometheus.CounterVec
	Fallbacks        *prometheus.CounterVec
	IsolatedContexts prometheus.Gauge
	RPCInflight      prometheus.Gauge
}

func NewMetrics() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		Compiles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "codeshift_compiles_total",
			Help: "Compile runs by plugin, execution mode and outcome.",
		}, []string{"plugin", "mode", "outcome"}),
		CompileDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "codeshift_compile_duration_seconds",
			Help:    "Time spent in compile, dependency loading excluded.",
			Buckets: prometheus.DefBuckets,
		}, []string{"plugin", "mode"}),
		ScriptLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "codeshift_script_loads_total",
			Help: "Dependency script loads by target environment and outcome.",
		}, []string{"target", "outcome"}),
		Fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "codeshift_provider_fallbacks_total",
			Help: "Resources loaded from a substitute provider.",
		}, []string{"resource", "requested", "chosen"}),
		IsolatedContexts: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "codeshift_isolated_contexts",
			Help: "Isolated execution contexts currently alive.",
		}),
		RPCInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "codeshift_rpc_inflight",
			Help: "Requests awaiting a response from an isolated context.",
		}),
	}
	m.reg.MustRegister(m.Compiles, m.CompileDuration, m.ScriptLoads, m.Fallbacks, m.IsolatedContexts, m.RPCInflight)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

func (m *Metrics) ObserveCompile(plugin, mode string, took time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.Compiles.WithLabelValues(plugin, mode, outcome).Inc()
	m.CompileDuration.WithLabelValues(plugin, mode).Observe(took.Seconds())
}

func (m *Metrics) ObserveScriptLoad(target string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.ScriptLoads.WithLabelValues(target, outcome).Inc()
}

func (m *Metrics) ObserveFallback(resource, requested, chosen string) {
	if m == nil {
		return
	}
	m.Fallbacks.WithLabelValues(resource, requested, chosen).Inc()
}

func (m *Metrics) ContextStarted() {
	if m != nil {
		m.IsolatedContexts.Inc()
	}
}

func (m *Metrics) ContextStopped() {
	if m != nil {
		m.IsolatedContexts.Dec()
	}
}

func (m *Metrics) RequestSent() {
	if m != nil {
		m.RPCInflight.Inc()
	}
}

func (m *Metrics) RequestDone() {
	if m != nil {
		m.RPCInflight.Dec()
	}
}

// Handler serves the private registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Expose serves /metrics on port until ctx is done.
func Expose(ctx context.Context, port int, m *Metrics) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
