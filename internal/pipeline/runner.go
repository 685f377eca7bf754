// Package pipeline runs compile requests read from a source through the
// compiler and hands the outcomes to sinks.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	pb "codeshift/api/proto/v1"
	"codeshift/internal/compiler"
	"codeshift/internal/logging"
	"codeshift/internal/manifest"
	"codeshift/sink"
	"codeshift/source/kafka"
)

// Stage is the compile step. *compiler.Compiler satisfies it.
type Stage interface {
	Compile(ctx context.Context, req compiler.Request) (any, error)
}

// Outcome is the JSON value of every frame a sink receives.
type Outcome struct {
	From   string             `json:"from"`
	To     string             `json:"to"`
	Result any                `json:"result,omitempty"`
	Error  string             `json:"error,omitempty"`
	Kind   compiler.ErrorKind `json:"kind,omitempty"`
}

type Runner struct {
	source   kafka.Adapter
	sinks    []sink.Adapter
	stage    Stage
	defaults manifest.CompileSpec
	log      *slog.Logger

	mu      sync.Mutex
	subs    []func(*pb.Ack)
	ackers  int
	partial map[pb.Checkpoint]int
}

func NewRunner(stage Stage, defaults manifest.CompileSpec) *Runner {
	if defaults.MaxInFlight <= 0 {
		defaults.MaxInFlight = 1
	}
	return &Runner{
		stage:    stage,
		defaults: defaults,
		log:      logging.L().With("component", "pipeline"),
	}
}

func (r *Runner) AddSink(s sink.Adapter)    { r.sinks = append(r.sinks, s) }
func (r *Runner) SetSource(s kafka.Adapter) { r.source = s }

func (r *Runner) SubscribeAck(fn func(*pb.Ack)) {
	r.mu.Lock()
	r.subs = append(r.subs, fn)
	r.mu.Unlock()
}

// BindAck wires an ack-aware sink. With several of them a checkpoint is
// acked once every one has reported it.
func (r *Runner) BindAck(s sink.AckAware) {
	r.mu.Lock()
	r.ackers++
	r.mu.Unlock()
	s.BindAck(r.Ack)
}

// Ack fans a sink's durability signal out to the subscribers.
func (r *Runner) Ack(cp *pb.Checkpoint) {
	if cp == nil {
		return
	}
	ack := &pb.Ack{Checkpoint: cp}

	r.mu.Lock()
	if r.ackers > 1 {
		if r.partial == nil {
			r.partial = map[pb.Checkpoint]int{}
		}
		r.partial[*cp]++
		if r.partial[*cp] < r.ackers {
			r.mu.Unlock()
			return
		}
		delete(r.partial, *cp)
	}
	handlers := append([]func(*pb.Ack){}, r.subs...)
	r.mu.Unlock()

	for _, fn := range handlers {
		fn(ack)
	}
}

// Run consumes the source until ctx is done or the source fails. With
// max_in_flight above one, frames compile concurrently and the first delivery
// failure stops consumption and is returned once the running frames finish.
func (r *Runner) Run(ctx context.Context) error {
	if r.source == nil {
		return errors.New("runner: no source configured")
	}
	defer r.forgetPartial()

	if r.defaults.MaxInFlight <= 1 {
		return ignoreCanceled(r.source.Run(ctx, func(f *pb.Frame) error { return r.pushFrame(ctx, f) }))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.defaults.MaxInFlight)
	srcErr := r.source.Run(gctx, func(f *pb.Frame) error {
		if err := gctx.Err(); err != nil {
			return err
		}
		g.Go(func() error { return r.pushFrame(gctx, f) })
		return nil
	})
	if err := g.Wait(); err != nil {
		r.log.Error("deliver outcome", "err", err)
		return err
	}
	return ignoreCanceled(srcErr)
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// forgetPartial drops checkpoints only some ack-aware sinks reported. Their
// frames are redelivered by the source.
func (r *Runner) forgetPartial() {
	r.mu.Lock()
	r.partial = nil
	r.mu.Unlock()
}

func (r *Runner) Close() error {
	var errs []error
	if r.source != nil {
		errs = append(errs, r.source.Close())
	}
	for _, s := range r.sinks {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}

// pushFrame compiles f and delivers the outcome to every sink.
func (r *Runner) pushFrame(ctx context.Context, f *pb.Frame) error {
	return r.deliver(r.process(ctx, f))
}

func (r *Runner) process(ctx context.Context, f *pb.Frame) *pb.Frame {
	req, err := r.request(f.Value)
	out := Outcome{From: req.From, To: req.To}
	if err != nil {
		out.Error, out.Kind = err.Error(), compiler.KindBadRequest
		return r.outcomeFrame(f, out)
	}

	if r.defaults.TimeoutMS > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(r.defaults.TimeoutMS)*time.Millisecond)
		defer cancel()
	}
	start := time.Now()
	res, err := r.stage.Compile(ctx, req)
	if err != nil {
		out.Error, out.Kind = err.Error(), compiler.Classify(err)
		r.log.Warn("compile failed", "from", req.From, "to", req.To, "kind", out.Kind, "err", err)
	} else {
		out.Result = res
		logging.Log(ctx, r.log, "compiled", "from", req.From, "to", req.To, "took", time.Since(start))
	}
	return r.outcomeFrame(f, out)
}

// request decodes a frame value, filling the pair and provider from the
// pipeline defaults.
func (r *Runner) request(value []byte) (compiler.Request, error) {
	var req compiler.Request
	if err := json.Unmarshal(value, &req); err != nil {
		return req, fmt.Errorf("decode request: %w", err)
	}
	if req.From == "" {
		req.From = r.defaults.From
	}
	if req.To == "" {
		req.To = r.defaults.To
	}
	if req.Provider == "" {
		req.Provider = r.defaults.Provider
	}
	if req.From == "" || req.To == "" {
		return req, errors.New("request names no from/to and the pipeline has no default")
	}
	return req, nil
}

func (r *Runner) outcomeFrame(in *pb.Frame, out Outcome) *pb.Frame {
	v, err := json.Marshal(out)
	if err != nil {
		v, _ = json.Marshal(Outcome{From: out.From, To: out.To, Error: err.Error(), Kind: compiler.KindPlugin})
	}
	return &pb.Frame{Key: in.Key, Value: v, Headers: in.Headers, Ts: time.Now(), Checkpoint: in.Checkpoint}
}

func (r *Runner) deliver(f *pb.Frame) error {
	for _, s := range r.sinks {
		if err := s.Push(f); err != nil {
			r.forget(f.Checkpoint)
			return err
		}
	}
	return nil
}

// forget drops the acks sinks already reported for cp.
func (r *Runner) forget(cp *pb.Checkpoint) {
	if cp == nil {
		return
	}
	r.mu.Lock()
	delete(r.partial, *cp)
	r.mu.Unlock()
}
