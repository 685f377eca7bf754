// Package loader retrieves plugin dependencies into a script target, one URL
// at a time, choosing a provider per resource.
package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"codeshift/internal/logging"
	"codeshift/internal/registry"
	"codeshift/internal/script"
	"codeshift/internal/telemetry"
)

const DefaultTimeout = 30 * time.Second

// FallbackNotice reports that Requested was absent from a resource's catalog
// and Chosen was used instead. It is not an error.
type FallbackNotice struct {
	Resource  string
	Requested string
	Chosen    string
}

// DependencyLoadError wraps the cause of a failed script load.
type DependencyLoadError struct {
	Resource string
	Provider string
	URL      string
	Err      error
}

func (e *DependencyLoadError) Error() string {
	return fmt.Sprintf("load %s from %s (%s): %v", e.Resource, e.Provider, e.URL, e.Err)
}

func (e *DependencyLoadError) Unwrap() error { return e.Err }

type Loader struct {
	timeout  time.Duration
	method   script.Method
	log      *slog.Logger
	metrics  *telemetry.Metrics
	onNotice func(FallbackNotice)
}

type Option func(*Loader)

// WithTimeout bounds every single URL load. Zero disables the bound.
func WithTimeout(d time.Duration) Option { return func(l *Loader) { l.timeout = d } }

func WithMethod(m script.Method) Option { return func(l *Loader) { l.method = m } }

func WithLogger(lg *slog.Logger) Option { return func(l *Loader) { l.log = lg } }

func WithMetrics(m *telemetry.Metrics) Option { return func(l *Loader) { l.metrics = m } }

// WithNoticeHook receives every provider fallback.
func WithNoticeHook(fn func(FallbackNotice)) Option { return func(l *Loader) { l.onNotice = fn } }

func New(opts ...Option) *Loader {
	l := &Loader{
		timeout: DefaultTimeout,
		method:  script.MethodImport,
		log:     logging.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// SelectProvider returns the entry of res for provider, or the first declared
// entry when provider is absent. fellBack reports the substitution.
func SelectProvider(res registry.Resource, provider string) (registry.ProviderURLs, bool) {
	for _, p := range res.Providers {
		if p.Provider == provider {
			return p, false
		}
	}
	return res.Providers[0], true
}

// LoadResources loads every URL of every resource into target, strictly in
// order. It stops at the first failure.
func (l *Loader) LoadResources(ctx context.Context, resources []registry.Resource, provider string, target script.Target) error {
	for _, res := range resources {
		if len(res.Providers) == 0 {
			return fmt.Errorf("%w: %q has no providers", registry.ErrInvalidResource, res.Name)
		}
		entry, fellBack := SelectProvider(res, provider)
		if fellBack {
			l.notice(ctx, FallbackNotice{Resource: res.Name, Requested: provider, Chosen: entry.Provider})
		}
		for _, u := range entry.URLs {
			if err := l.loadOne(ctx, target, u); err != nil {
				return &DependencyLoadError{Resource: res.Name, Provider: entry.Provider, URL: u, Err: err}
			}
			l.log.Debug("script loaded", "resource", res.Name, "provider", entry.Provider, "url", u)
		}
	}
	return nil
}

func (l *Loader) loadOne(ctx context.Context, target script.Target, url string) error {
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}
	err := l.await(ctx, func(ctx context.Context) error {
		return target.LoadScript(ctx, url, l.method)
	})
	l.metrics.ObserveScriptLoad(targetLabel(target), err)
	return err
}

// await runs fn and returns when it finishes or ctx ends, whichever is first,
// so a target that ignores its context cannot hang the caller.
func (l *Loader) await(ctx context.Context, fn func(context.Context) error) error {
	done := make(chan error, 1)
	go func() { done <- fn(ctx) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Loader) notice(ctx context.Context, n FallbackNotice) {
	l.log.WarnContext(ctx, "provider not in catalog, falling back",
		"resource", n.Resource, "requested", n.Requested, "chosen", n.Chosen)
	l.metrics.ObserveFallback(n.Resource, n.Requested, n.Chosen)
	if l.onNotice != nil {
		l.onNotice(n)
	}
}

func targetLabel(t script.Target) string {
	if _, ok := t.(*script.Env); ok {
		return "main"
	}
	return "isolated"
}

// IsTimeout reports whether err is a load that ran out of time.
func IsTimeout(err error) bool {
	var le *DependencyLoadError
	return errors.As(err, &le) && errors.Is(le.Err, context.DeadlineExceeded)
}
