package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"codeshift/internal/compiler"
	"codeshift/internal/script"
)

const envPrefix = "CODESHIFT_"

type LogCfg struct {
	Level string `koanf:"level"`
	JSON  bool   `koanf:"json"`
}

type LoaderCfg struct {
	Timeout time.Duration `koanf:"timeout"`
	Method  string        `koanf:"method"` // fetch|import
}

type IsolationCfg struct {
	// Remote maps a plugin name to the address of a `codeshift isolate`
	// server. Plugins not listed run in-process.
	Remote map[string]string `koanf:"remote"`
}

type HTTPCfg struct {
	Listen string `koanf:"listen"`
}

type MetricsCfg struct {
	Port int `koanf:"port"`
}

type Config struct {
	SchemaVersion   string       `koanf:"schema_version"`
	DefaultProvider string       `koanf:"default_provider"`
	Catalog         string       `koanf:"catalog"`
	Log             LogCfg       `koanf:"log"`
	Loader          LoaderCfg    `koanf:"loader"`
	Isolation       IsolationCfg `koanf:"isolation"`
	HTTP            HTTPCfg      `koanf:"http"`
	Metrics         MetricsCfg   `koanf:"metrics"`
}

// Load merges YAML at path (optional, may be missing) with environment
// variables such as CODESHIFT_LOADER__TIMEOUT=5s. A relative catalog path
// is resolved against the config file's directory.
func Load(path string) (Config, error) {
	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil &&
			!errors.Is(err, fs.ErrNotExist) {
			return Config{}, err
		}
	}
	if sv := k.String("schema_version"); sv != "" && sv != SupportedSchema {
		return Config{}, fmt.Errorf("config schema_version %q not supported (want %q)", sv, SupportedSchema)
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, err
	}
	if cfg.Catalog != "" && path != "" && !filepath.IsAbs(cfg.Catalog) {
		cfg.Catalog = filepath.Join(filepath.Dir(path), cfg.Catalog)
	}
	applyDefaults(&cfg)
	if _, err := script.ParseMethod(cfg.Loader.Method); err != nil {
		return cfg, fmt.Errorf("loader: %w", err)
	}
	return cfg, nil
}

// envKey turns CODESHIFT_LOADER__TIMEOUT into loader.timeout.
func envKey(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	return strings.ReplaceAll(strings.ToLower(s), "__", ".")
}

func applyDefaults(c *Config) {
	if c.SchemaVersion == "" {
		c.SchemaVersion = SupportedSchema
	}
	if c.DefaultProvider == "" {
		c.DefaultProvider = compiler.DefaultProvider
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Loader.Timeout == 0 {
		c.Loader.Timeout = 30 * time.Second
	}
	if c.Loader.Timeout < 0 {
		c.Loader.Timeout = 0
	}
	if c.Loader.Method == "" {
		c.Loader.Method = string(script.MethodImport)
	}
	if c.HTTP.Listen == "" {
		c.HTTP.Listen = ":8080"
	}
	if c.Metrics.Port == 0 {
		c.Metrics.Port = 9100
	}
}
