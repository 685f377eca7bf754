// Package isolate implements the isolated execution context: a worker that
// owns a private script scope and one bound compile function, and the host
// client that drives it over the Exchange stream.
package isolate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	pb "codeshift/api/proto/v1"
	"codeshift/internal/logging"
	"codeshift/internal/registry"
	"codeshift/internal/script"

	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"
)

// PluginHeader is the stream metadata key naming the plugin a context binds.
const PluginHeader = "x-codeshift-plugin"

// Binder returns the compile function a new context instance is bound to.
type Binder func(plugin string) (registry.CompileFunc, error)

// Bind binds every context to fn, whatever plugin the host names.
func Bind(fn registry.CompileFunc) Binder {
	return func(string) (registry.CompileFunc, error) { return fn, nil }
}

// RegistryBinder binds contexts to the registered plugin of that name.
func RegistryBinder(reg *registry.Registry) Binder {
	return func(plugin string) (registry.CompileFunc, error) {
		d, ok := reg.Lookup(plugin)
		if !ok {
			return nil, fmt.Errorf("unknown plugin %q", plugin)
		}
		return d.Compile, nil
	}
}

// Worker serves ExecutionContext. Every Exchange stream is one context
// instance with its own script.Env.
type Worker struct {
	pb.UnimplementedExecutionContextServer

	bind    Binder
	fetcher script.Fetcher
	log     *slog.Logger
}

type WorkerOption func(*Worker)

func WithWorkerFetcher(f script.Fetcher) WorkerOption { return func(w *Worker) { w.fetcher = f } }

func WithWorkerLogger(l *slog.Logger) WorkerOption { return func(w *Worker) { w.log = l } }

func NewWorker(bind Binder, opts ...WorkerOption) *Worker {
	w := &Worker{bind: bind, log: logging.Nop()}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Worker) Exchange(stream pb.ExecutionContext_ExchangeServer) error {
	plugin := pluginFromContext(stream.Context())
	fn, err := w.bind(plugin)
	if err != nil {
		return err
	}

	var envOpts []script.EnvOption
	if w.fetcher != nil {
		envOpts = append(envOpts, script.WithFetcher(w.fetcher))
	}
	env := script.NewEnv("isolate:"+plugin, envOpts...)
	defer env.Close()

	ctx := script.WithEnv(stream.Context(), env)
	log := w.log.With("plugin", plugin)
	log.Debug("context ready")

	for {
		in, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			log.Debug("context terminated by host")
			return nil
		}
		if err != nil {
			return err
		}
		resp := w.handle(ctx, env, fn, in)
		out, err := resp.ToStruct()
		if err != nil {
			out, err = (&pb.Envelope{Type: pb.TypeError, ID: resp.ID, Error: err.Error()}).ToStruct()
			if err != nil {
				return err
			}
		}
		if err := stream.Send(out); err != nil {
			return err
		}
	}
}

func (w *Worker) handle(ctx context.Context, env *script.Env, fn registry.CompileFunc, raw *structpb.Struct) *pb.Envelope {
	msg, err := pb.EnvelopeFromStruct(raw)
	if err != nil {
		return &pb.Envelope{Type: pb.TypeError, Error: err.Error()}
	}
	fail := func(err error) *pb.Envelope {
		w.log.Debug("request failed", "type", msg.Type, "id", msg.ID, "err", err)
		return &pb.Envelope{Type: pb.TypeError, ID: msg.ID, Error: err.Error()}
	}

	switch msg.Type {
	case pb.TypeRun:
		res, err := invoke(ctx, fn, registry.Input{Code: msg.Code, Options: msg.Options})
		if err != nil {
			return fail(err)
		}
		return &pb.Envelope{Type: pb.TypeRun, ID: msg.ID, Result: res}
	case pb.TypeLoadScript:
		method, err := script.ParseMethod(msg.Method)
		if err != nil {
			return fail(err)
		}
		if err := env.LoadScript(ctx, msg.URL, method); err != nil {
			return fail(err)
		}
		return &pb.Envelope{Type: pb.TypeLoaded, ID: msg.ID, URL: msg.URL}
	default:
		return fail(fmt.Errorf("unknown message type %q", msg.Type))
	}
}

func invoke(ctx context.Context, fn registry.CompileFunc, in registry.Input) (res any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("compile panicked: %v", r)
		}
	}()
	return fn(ctx, in)
}

func pluginFromContext(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if v := md.Get(PluginHeader); len(v) > 0 {
		return v[0]
	}
	return ""
}
