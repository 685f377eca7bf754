package compiler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"codeshift/internal/isolate"
	"codeshift/internal/registry"
	"codeshift/internal/script"
)

// ErrHandleSpent is returned by Run on a handle that already ran or was
// closed.
var ErrHandleSpent = errors.New("compiler: handle already used")

// Handle is a loaded plugin, good for exactly one Run.
type Handle struct {
	c      *Compiler
	d      *registry.Descriptor
	client *isolate.Client
	entry  *script.Func
	log    *slog.Logger

	mu    sync.Mutex
	spent bool
}

func (h *Handle) Descriptor() *registry.Descriptor { return h.d }

// Run executes the plugin with {code, options}. Inline plugin errors are
// returned as the plugin produced them.
func (h *Handle) Run(ctx context.Context, code string, options map[string]any) (any, error) {
	h.mu.Lock()
	if h.spent {
		h.mu.Unlock()
		return nil, ErrHandleSpent
	}
	h.spent = true
	h.mu.Unlock()

	start := time.Now()
	var (
		out any
		err error
	)
	switch {
	case h.client != nil:
		out, err = h.client.Run(ctx, code, options)
		if terr := h.client.Terminate(); terr != nil {
			h.log.Debug("terminate context", "err", terr)
		}
	case h.d.Async:
		out, err = h.await(h.inline(ctx), registry.Input{Code: code, Options: options})
	default:
		out, err = h.d.Compile(h.inline(ctx), registry.Input{Code: code, Options: options})
	}
	took := time.Since(start)
	h.c.metrics.ObserveCompile(h.d.Name, h.d.Mode(), took, err)

	if err != nil {
		h.log.ErrorContext(ctx, "compile failed", "err", err, "took", took)
		return nil, err
	}
	h.log.InfoContext(ctx, "compiled", "took", took)
	return out, nil
}

// inline scopes ctx to the main environment and, for scripted plugins, to the
// entry captured at Load.
func (h *Handle) inline(ctx context.Context) context.Context {
	ctx = script.WithEnv(ctx, h.c.main)
	if h.entry != nil {
		ctx = script.WithFunc(ctx, h.entry)
	}
	return ctx
}

func (h *Handle) await(ctx context.Context, in registry.Input) (any, error) {
	type result struct {
		out any
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := h.d.Compile(ctx, in)
		done <- result{out, err}
	}()
	select {
	case r := <-done:
		return r.out, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close invalidates the handle and terminates its context if it never ran.
func (h *Handle) Close() error {
	h.mu.Lock()
	h.spent = true
	h.mu.Unlock()
	if h.client != nil {
		return h.client.Terminate()
	}
	return nil
}
