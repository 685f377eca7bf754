// Package compiler resolves a (from, to) pair to a plugin, loads the plugin's
// dependencies and runs it, inline or inside an isolated execution context.
package compiler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	pb "codeshift/api/proto/v1"
	"codeshift/internal/isolate"
	"codeshift/internal/loader"
	"codeshift/internal/logging"
	"codeshift/internal/registry"
	"codeshift/internal/script"
	"codeshift/internal/telemetry"
)

const DefaultProvider = "cdnjs"

// Request is one call of the primary entry point.
type Request struct {
	From     string         `json:"from"`
	To       string         `json:"to"`
	Code     string         `json:"code"`
	Options  map[string]any `json:"options,omitempty"`
	Provider string         `json:"provider,omitempty"`
}

type Compiler struct {
	reg      *registry.Registry
	loader   *loader.Loader
	main     *script.Env
	provider string
	log      *slog.Logger
	metrics  *telemetry.Metrics

	spawnMu    sync.Mutex
	spawner    isolate.Spawner
	ownSpawner *isolate.InProcess
	ownMain    bool
}

type Option func(*Compiler)

func WithLoader(l *loader.Loader) Option { return func(c *Compiler) { c.loader = l } }

// WithMainEnv sets the environment inline plugins load their dependencies
// into. The compiler does not close it.
func WithMainEnv(env *script.Env) Option { return func(c *Compiler) { c.main = env } }

// WithSpawner sets where isolated contexts come from. Without one the
// compiler starts an in-process context server on first use.
func WithSpawner(s isolate.Spawner) Option { return func(c *Compiler) { c.spawner = s } }

// WithDefaultProvider is used when a Load or Request names no provider.
func WithDefaultProvider(p string) Option { return func(c *Compiler) { c.provider = p } }

func WithLogger(l *slog.Logger) Option { return func(c *Compiler) { c.log = l } }

func WithMetrics(m *telemetry.Metrics) Option { return func(c *Compiler) { c.metrics = m } }

func New(reg *registry.Registry, opts ...Option) *Compiler {
	c := &Compiler{reg: reg, provider: DefaultProvider, log: logging.Nop()}
	for _, opt := range opts {
		opt(c)
	}
	if c.loader == nil {
		c.loader = loader.New(loader.WithLogger(c.log), loader.WithMetrics(c.metrics))
	}
	if c.main == nil {
		c.main = script.NewEnv("main")
		c.ownMain = true
	}
	if c.provider == "" {
		c.provider = DefaultProvider
	}
	return c
}

func (c *Compiler) Registry() *registry.Registry { return c.reg }

// Compile resolves req's pair, loads the plugin and runs it once.
func (c *Compiler) Compile(ctx context.Context, req Request) (any, error) {
	d, err := c.reg.Resolve(req.From, req.To)
	if err != nil {
		c.log.WarnContext(ctx, "no plugin for pair", "from", req.From, "to", req.To)
		return nil, err
	}
	h, err := c.Load(ctx, d, req.Provider)
	if err != nil {
		return nil, err
	}
	defer h.Close()
	return h.Run(ctx, req.Code, req.Options)
}

// Load brings d's dependencies into the environment it will run in and
// returns a single-use handle. For isolated plugins that environment is a
// fresh context owned by the handle; a failed load terminates it.
func (c *Compiler) Load(ctx context.Context, d *registry.Descriptor, provider string) (*Handle, error) {
	if provider == "" {
		provider = c.provider
	}
	log := c.log.With("plugin", d.Name, "mode", d.Mode())
	logging.Log(ctx, log, "loading plugin", "provider", provider, "dependencies", len(d.Dependencies))

	h := &Handle{c: c, d: d, log: log}
	var target script.Target = c.main
	if d.Isolated {
		sp, err := c.isolation()
		if err != nil {
			return nil, err
		}
		client, err := sp.Spawn(ctx, d)
		if err != nil {
			log.ErrorContext(ctx, "spawn isolated context", "err", err)
			return nil, fmt.Errorf("plugin %s: %w", d.Name, err)
		}
		client.On(pb.TypeLoaded, func(e *pb.Envelope) {
			log.Debug("context loaded script", "url", e.URL, "id", e.ID)
		})
		h.client = client
		target = client
	}

	if err := c.loader.LoadResources(ctx, d.Dependencies, provider, target); err != nil {
		log.ErrorContext(ctx, "dependency load failed", "err", err)
		h.Close()
		return nil, err
	}
	if !d.Isolated && d.Entry != "" {
		fn, err := c.main.Lookup(d.Entry)
		if err != nil {
			log.ErrorContext(ctx, "entry not defined after load", "entry", d.Entry)
			return nil, fmt.Errorf("plugin %s: %w", d.Name, err)
		}
		h.entry = fn
		log.Debug("main environment scripts", "loaded", c.main.Loaded())
	}
	logging.Log(ctx, log, "plugin ready")
	return h, nil
}

func (c *Compiler) isolation() (isolate.Spawner, error) {
	c.spawnMu.Lock()
	defer c.spawnMu.Unlock()
	if c.spawner != nil {
		return c.spawner, nil
	}
	w := isolate.NewWorker(isolate.RegistryBinder(c.reg), isolate.WithWorkerLogger(c.log))
	p, err := isolate.NewInProcess(w, isolate.WithClientLogger(c.log), isolate.WithClientMetrics(c.metrics))
	if err != nil {
		return nil, fmt.Errorf("start isolated contexts: %w", err)
	}
	c.spawner, c.ownSpawner = p, p
	return p, nil
}

// Close releases what the compiler created itself.
func (c *Compiler) Close() error {
	c.spawnMu.Lock()
	defer c.spawnMu.Unlock()
	var err error
	if c.ownSpawner != nil {
		err = c.ownSpawner.Close()
		c.ownSpawner, c.spawner = nil, nil
	}
	if c.ownMain {
		c.main.Close()
	}
	return err
}
