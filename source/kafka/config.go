package kafka

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "CODESHIFT_KAFKA__"

type CommitMode string

const (
	CommitAuto CommitMode = "auto" // mark as soon as the frame is emitted
	CommitE2E  CommitMode = "e2e"  // mark once a sink acks the outcome
)

type Config struct {
	Brokers   []string `koanf:"brokers"`
	Topics    []string `koanf:"topics"`
	GroupID   string   `koanf:"group_id"`
	StartFrom string   `koanf:"start_from"` // oldest|newest (default newest)
	Version   string   `koanf:"version"`
	TLSEn     bool     `koanf:"tls_enabled"`
	SASLUser  string   `koanf:"sasl_user"`
	SASLPass  string   `koanf:"sasl_pass"`

	CommitMode CommitMode `koanf:"commit_mode"` // auto|e2e
	// MaxUnacked bounds frames emitted but not yet acked in e2e mode.
	MaxUnacked     int           `koanf:"max_unacked"`
	CommitInterval time.Duration `koanf:"commit_interval"`
}

// LoadConfig merges YAML (if present) with env-vars such as
// CODESHIFT_KAFKA__GROUP_ID=compilers.
func LoadConfig(path string) (Config, error) {
	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil &&
			!errors.Is(err, fs.ErrNotExist) {
			return Config{}, err
		}
	}
	sv := k.String("schema_version")
	if sv != "" && sv != "v1" {
		return Config{}, fmt.Errorf("kafka schema_version %q not supported (want v1)", sv)
	}

	err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	}), nil)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, err
	}
	if err := applyDefaults(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(c *Config) error {
	switch c.CommitMode {
	case "":
		c.CommitMode = CommitAuto
	case CommitAuto, CommitE2E:
	default:
		return fmt.Errorf("kafka: unknown commit_mode %q", c.CommitMode)
	}
	if c.MaxUnacked <= 0 {
		c.MaxUnacked = 1024
	}
	if c.CommitInterval == 0 {
		c.CommitInterval = 5 * time.Second
	}
	if c.StartFrom == "" {
		c.StartFrom = "newest"
	}
	return nil
}
