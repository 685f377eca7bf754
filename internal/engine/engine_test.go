package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeshift/internal/compiler"
	"codeshift/internal/config"
	"codeshift/internal/isolate"
	"codeshift/internal/plugins"
	"codeshift/internal/registry"
	"codeshift/internal/transport"
)

func defaults(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	return cfg
}

func TestBootstrap_BuiltinsInlineAndIsolated(t *testing.T) {
	e, err := Bootstrap(defaults(t))
	require.NoError(t, err)
	defer e.Close()

	out, err := e.Compiler().Compile(context.Background(), compiler.Request{From: "yml", To: "json", Code: "a: 1\n"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, out.(string))

	out, err = e.Compiler().Compile(context.Background(), compiler.Request{
		From: "test", To: "test2", Code: "hello", Options: map[string]any{"a": 1},
	})
	require.NoError(t, err)
	assert.Equal(t, `CODE: HELLO, options: {"a":1}`, out)
}

func TestBootstrap_CatalogScriptedPlugin(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "shout.lua")
	require.NoError(t, os.WriteFile(script, []byte(`function compile(code, options) return string.upper(code) .. "!" end`), 0o644))
	catalog := filepath.Join(dir, "plugins.yml")
	require.NoError(t, os.WriteFile(catalog, []byte(`schema_version: v1
aliases:
  text: [txt]
plugins:
  - name: shout
    from: [text]
    to: [shout]
    isolated: true
    requires:
      - name: shout.lua
        urls:
          cdnjs: "file://`+script+`"
`), 0o644))

	cfg := defaults(t)
	cfg.Catalog = catalog
	e, err := Bootstrap(cfg)
	require.NoError(t, err)
	defer e.Close()

	out, err := e.Compiler().Compile(context.Background(), compiler.Request{From: "txt", To: "shout", Code: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "HI!", out)
}

func TestBootstrap_RemoteContexts(t *testing.T) {
	reg, err := registry.New([]registry.Descriptor{plugins.Test()}, nil)
	require.NoError(t, err)
	srv, err := transport.StartServer("127.0.0.1:0", isolate.NewWorker(isolate.RegistryBinder(reg)))
	require.NoError(t, err)
	go func() { _ = srv.Serve() }()
	defer srv.Kill()

	cfg := defaults(t)
	cfg.Isolation.Remote = map[string]string{"test": srv.Addr().String()}
	e, err := Bootstrap(cfg)
	require.NoError(t, err)
	defer e.Close()

	out, err := e.Compiler().Compile(context.Background(), compiler.Request{From: "test", To: "test2", Code: "remote", Options: map[string]any{"b": "x"}})
	require.NoError(t, err)
	assert.Equal(t, `CODE: REMOTE, options: {"b":"x"}`, out)

	cfg.Isolation.Remote = map[string]string{"nope": "127.0.0.1:1"}
	_, err = Bootstrap(cfg)
	assert.Error(t, err)
}

func TestServeContexts_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := ServeContexts(ctx, "127.0.0.1:0", isolate.NewWorker(isolate.Bind(plugins.Test().Compile)))
	assert.NoError(t, err)
}
