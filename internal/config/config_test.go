package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeshift/internal/registry"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	require.NoError(t, err)
	assert.Equal(t, "cdnjs", cfg.DefaultProvider)
	assert.Equal(t, 30*time.Second, cfg.Loader.Timeout)
	assert.Equal(t, "import", cfg.Loader.Method)
	assert.Equal(t, ":8080", cfg.HTTP.Listen)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "codeshift.yml", `schema_version: v1
default_provider: jsdelivr
catalog: plugins.yml
loader: { timeout: 5s, method: fetch }
isolation:
  remote: { uppercase: "localhost:50052" }
`)
	t.Setenv("CODESHIFT_LOADER__TIMEOUT", "2s")
	t.Setenv("CODESHIFT_HTTP__LISTEN", ":9999")

	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "jsdelivr", cfg.DefaultProvider)
	assert.Equal(t, filepath.Join(dir, "plugins.yml"), cfg.Catalog)
	assert.Equal(t, 2*time.Second, cfg.Loader.Timeout)
	assert.Equal(t, "fetch", cfg.Loader.Method)
	assert.Equal(t, ":9999", cfg.HTTP.Listen)
	assert.Equal(t, map[string]string{"uppercase": "localhost:50052"}, cfg.Isolation.Remote)
}

func TestLoad_Rejects(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(writeFile(t, dir, "a.yml", "schema_version: v2\n"))
	assert.Error(t, err)
	_, err = Load(writeFile(t, dir, "b.yml", "loader: { method: eval }\n"))
	assert.Error(t, err)
}

const catalogYAML = `schema_version: v1
aliases:
  text: [txt, plain]
plugins:
  - name: shout
    from: [text]
    to: [shout]
    runtime: lua
    isolated: true
    requires:
      - name: shout.lua
        urls:
          unpkg: "https://unpkg.example/shout.lua"
          jsdelivr: ["https://cdn.example/shout.lua", "https://cdn.example/extra.lua"]
          cdnjs: ["https://cdnjs.example/shout.lua"]
`

func TestLoadCatalog_KeepsProviderOrder(t *testing.T) {
	cat, err := LoadCatalog(writeFile(t, t.TempDir(), "plugins.yml", catalogYAML))
	require.NoError(t, err)
	require.Len(t, cat.Plugins, 1)

	res := cat.Plugins[0].Requires[0].Resource()
	assert.Equal(t, []registry.ProviderURLs{
		{Provider: "unpkg", URLs: []string{"https://unpkg.example/shout.lua"}},
		{Provider: "jsdelivr", URLs: []string{"https://cdn.example/shout.lua", "https://cdn.example/extra.lua"}},
		{Provider: "cdnjs", URLs: []string{"https://cdnjs.example/shout.lua"}},
	}, res.Providers)
}

func TestLoadCatalog_Rejects(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadCatalog(writeFile(t, dir, "a.yml", "schema_version: v9\n"))
	assert.Error(t, err)
	_, err = LoadCatalog(writeFile(t, dir, "b.yml", "plugins:\n  - name: x\n    requires:\n      - name: r\n        urls: [a, b]\n"))
	assert.Error(t, err)
}

func TestBuildRegistry(t *testing.T) {
	cat, err := LoadCatalog(writeFile(t, t.TempDir(), "plugins.yml", catalogYAML))
	require.NoError(t, err)

	reg, err := BuildRegistry(&cat)
	require.NoError(t, err)
	d, err := reg.Resolve("TXT", "shout")
	require.NoError(t, err)
	assert.Equal(t, "shout", d.Name)
	assert.True(t, d.Isolated)

	_, err = reg.Resolve("typescript", "js")
	require.NoError(t, err)

	cat.Plugins = append(cat.Plugins, cat.Plugins[0])
	_, err = BuildRegistry(&cat)
	assert.ErrorIs(t, err, registry.ErrAmbiguousPlugin)

	cat.Plugins = cat.Plugins[:1]
	cat.Plugins[0].Runtime = "python"
	_, err = BuildRegistry(&cat)
	assert.Error(t, err)
}
