package engine

import (
	"fmt"

	"codeshift/internal/compiler"
	"codeshift/internal/config"
	"codeshift/internal/isolate"
	"codeshift/internal/loader"
	"codeshift/internal/logging"
	"codeshift/internal/registry"
	"codeshift/internal/script"
	"codeshift/internal/telemetry"
)

// Bootstrap builds the registry, loader and compiler described by cfg.
func Bootstrap(cfg config.Config) (*Engine, error) {
	log := logging.L()
	metrics := telemetry.NewMetrics()

	reg, err := buildRegistry(cfg.Catalog)
	if err != nil {
		return nil, err
	}

	method, err := script.ParseMethod(cfg.Loader.Method)
	if err != nil {
		return nil, err
	}
	ld := loader.New(
		loader.WithTimeout(cfg.Loader.Timeout),
		loader.WithMethod(method),
		loader.WithLogger(log.With("component", "loader")),
		loader.WithMetrics(metrics),
	)

	clientOpts := []isolate.ClientOption{
		isolate.WithClientLogger(log.With("component", "isolate")),
		isolate.WithClientMetrics(metrics),
	}
	worker := isolate.NewWorker(isolate.RegistryBinder(reg), isolate.WithWorkerLogger(log.With("component", "worker")))
	local, err := isolate.NewInProcess(worker, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("isolation: %w", err)
	}
	e := &Engine{reg: reg, metrics: metrics, local: local}

	var spawner isolate.Spawner = local
	if len(cfg.Isolation.Remote) > 0 {
		for name := range cfg.Isolation.Remote {
			if _, ok := reg.Lookup(name); !ok {
				_ = local.Close()
				return nil, fmt.Errorf("isolation.remote: unknown plugin %q", name)
			}
		}
		e.remote = isolate.NewRemote(cfg.Isolation.Remote, local, clientOpts...)
		spawner = e.remote
	}

	e.compiler = compiler.New(reg,
		compiler.WithLoader(ld),
		compiler.WithSpawner(spawner),
		compiler.WithDefaultProvider(cfg.DefaultProvider),
		compiler.WithLogger(log.With("component", "compiler")),
		compiler.WithMetrics(metrics),
	)
	log.Info("engine ready", "plugins", len(reg.Descriptors()), "provider", cfg.DefaultProvider,
		"remote_contexts", len(cfg.Isolation.Remote))
	return e, nil
}

func buildRegistry(catalog string) (*registry.Registry, error) {
	if catalog == "" {
		return config.BuildRegistry(nil)
	}
	cat, err := config.LoadCatalog(catalog)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	return config.BuildRegistry(&cat)
}
