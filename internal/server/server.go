// Package server exposes the compiler over a small JSON HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"codeshift/internal/compiler"
	"codeshift/internal/logging"
	"codeshift/internal/registry"
	"codeshift/internal/telemetry"
)

const maxBody = 4 << 20

// Compiler is what the API needs from *compiler.Compiler.
type Compiler interface {
	Compile(ctx context.Context, req compiler.Request) (any, error)
	Registry() *registry.Registry
}

type Server struct {
	c       Compiler
	metrics *telemetry.Metrics
	log     *slog.Logger
	timeout time.Duration
}

type Option func(*Server)

func WithMetrics(m *telemetry.Metrics) Option { return func(s *Server) { s.metrics = m } }

func WithLogger(l *slog.Logger) Option { return func(s *Server) { s.log = l } }

// WithRequestTimeout bounds each compile; zero leaves only the client's
// own cancellation.
func WithRequestTimeout(d time.Duration) Option { return func(s *Server) { s.timeout = d } }

// NewHandler builds the router.
func NewHandler(c Compiler, opts ...Option) http.Handler {
	s := &Server{c: c, log: logging.L()}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}
	r.Route("/v1", func(r chi.Router) {
		r.Post("/compile", s.compile)
		r.Get("/plugins", s.plugins)
		r.Get("/plugins/{name}", s.plugin)
	})
	return r
}

type compileResponse struct {
	Result any                `json:"result,omitempty"`
	Error  string             `json:"error,omitempty"`
	Kind   compiler.ErrorKind `json:"kind,omitempty"`
}

func (s *Server) compile(w http.ResponseWriter, r *http.Request) {
	var req compiler.Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		s.log.Warn("compile: invalid request body", "err", err)
		writeJSON(w, http.StatusBadRequest, compileResponse{Error: "invalid request body: " + err.Error(), Kind: compiler.KindBadRequest})
		return
	}
	if req.From == "" || req.To == "" {
		writeJSON(w, http.StatusBadRequest, compileResponse{Error: "from and to are required", Kind: compiler.KindBadRequest})
		return
	}

	ctx := r.Context()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	res, err := s.c.Compile(ctx, req)
	if err != nil {
		kind := compiler.Classify(err)
		writeJSON(w, statusFor(kind), compileResponse{Error: err.Error(), Kind: kind})
		return
	}
	writeJSON(w, http.StatusOK, compileResponse{Result: res})
}

func statusFor(k compiler.ErrorKind) int {
	switch k {
	case compiler.KindNotFound:
		return http.StatusNotFound
	case compiler.KindDependency:
		return http.StatusBadGateway
	case compiler.KindTimeout:
		return http.StatusGatewayTimeout
	case compiler.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusUnprocessableEntity
	}
}

type pluginView struct {
	Name         string              `json:"name"`
	From         []string            `json:"from"`
	To           []string            `json:"to"`
	Mode         string              `json:"mode"`
	Async        bool                `json:"async"`
	Dependencies []string            `json:"dependencies,omitempty"`
	Aliases      map[string][]string `json:"aliases,omitempty"`
}

func (s *Server) view(d *registry.Descriptor) pluginView {
	v := pluginView{Name: d.Name, From: d.From, To: d.To, Mode: d.Mode(), Async: d.Async}
	for _, dep := range d.Dependencies {
		v.Dependencies = append(v.Dependencies, dep.Name)
	}
	for _, names := range [][]string{d.From, d.To} {
		for _, n := range names {
			if syn := s.c.Registry().Aliases(n); len(syn) > 0 {
				if v.Aliases == nil {
					v.Aliases = map[string][]string{}
				}
				v.Aliases[n] = syn
			}
		}
	}
	return v
}

func (s *Server) plugins(w http.ResponseWriter, _ *http.Request) {
	descs := s.c.Registry().Descriptors()
	out := make([]pluginView, 0, len(descs))
	for _, d := range descs {
		out = append(out, s.view(d))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) plugin(w http.ResponseWriter, r *http.Request) {
	d, ok := s.c.Registry().Lookup(chi.URLParam(r, "name"))
	if !ok {
		writeJSON(w, http.StatusNotFound, compileResponse{Error: "unknown plugin", Kind: compiler.KindNotFound})
		return
	}
	writeJSON(w, http.StatusOK, s.view(d))
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logging.Log(r.Context(), s.log, "http request",
			"method", r.Method, "path", r.URL.Path, "status", ww.Status(),
			"took", time.Since(start), "request_id", middleware.GetReqID(r.Context()))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.L().Error("encode response", "err", err)
	}
}

// ListenAndServe runs h on addr until ctx is done, then shuts down
// gracefully.
func ListenAndServe(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			_ = srv.Close()
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
