// Package engine assembles the compiler and runs its outer surfaces: the
// HTTP API, the stream worker and the isolated-context server.
package engine

import (
	"context"
	"errors"
	"fmt"
	"net"

	"golang.org/x/sync/errgroup"

	pb "codeshift/api/proto/v1"
	"codeshift/internal/compiler"
	"codeshift/internal/isolate"
	"codeshift/internal/logging"
	"codeshift/internal/pipeline"
	"codeshift/internal/registry"
	"codeshift/internal/server"
	"codeshift/internal/telemetry"
	"codeshift/internal/transport"
)

type Engine struct {
	reg      *registry.Registry
	compiler *compiler.Compiler
	metrics  *telemetry.Metrics
	local    *isolate.InProcess
	remote   *isolate.Remote
}

func (e *Engine) Compiler() *compiler.Compiler { return e.compiler }

func (e *Engine) Registry() *registry.Registry { return e.reg }

func (e *Engine) Metrics() *telemetry.Metrics { return e.metrics }

// Serve runs the HTTP API on addr until ctx is done.
func (e *Engine) Serve(ctx context.Context, addr string) error {
	h := server.NewHandler(e.compiler, server.WithMetrics(e.metrics))
	logging.L().Info("http api listening", "addr", addr)
	return server.ListenAndServe(ctx, addr, h)
}

// RunPipeline consumes the pipeline file at path until ctx is done. A
// positive metricsPort also exposes /metrics on its own listener.
func (e *Engine) RunPipeline(ctx context.Context, path string, metricsPort int) error {
	runner, err := pipeline.Compile(path, e.compiler)
	if err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	defer runner.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return runner.Run(gctx) })
	if metricsPort > 0 {
		g.Go(func() error { return telemetry.Expose(gctx, metricsPort, e.metrics) })
	}
	return g.Wait()
}

// ServeIsolate exposes this engine's plugins as isolated contexts for a
// remote host.
func (e *Engine) ServeIsolate(ctx context.Context, addr string) error {
	return ServeContexts(ctx, addr, isolate.NewWorker(isolate.RegistryBinder(e.reg),
		isolate.WithWorkerLogger(logging.L().With("component", "worker"))))
}

// ServeContexts runs svc on addr until ctx is done.
func ServeContexts(ctx context.Context, addr string, svc pb.ExecutionContextServer) error {
	srv, err := transport.StartServer(addr, svc)
	if err != nil {
		return fmt.Errorf("transport: %w", err)
	}
	logging.L().Info("isolated contexts listening", "addr", srv.Addr().String())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve() }()
	select {
	case err := <-errCh:
		if errors.Is(err, net.ErrClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		srv.Stop()
		return nil
	}
}

func (e *Engine) Close() error {
	var errs []error
	errs = append(errs, e.compiler.Close())
	if e.remote != nil {
		errs = append(errs, e.remote.Close())
	}
	errs = append(errs, e.local.Close())
	return errors.Join(errs...)
}
