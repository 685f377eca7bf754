package kafka

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_FileEnvDefaults(t *testing.T) {
	p := filepath.Join(t.TempDir(), "kafka.yml")
	require.NoError(t, os.WriteFile(p, []byte(`schema_version: v1
brokers: [localhost:9092]
topics: [compile-requests]
group_id: compilers
commit_mode: e2e
`), 0o644))
	t.Setenv("CODESHIFT_KAFKA__GROUP_ID", "override")

	cfg, err := LoadConfig(p)
	require.NoError(t, err)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Brokers)
	assert.Equal(t, "override", cfg.GroupID)
	assert.Equal(t, CommitE2E, cfg.CommitMode)
	assert.Equal(t, 1024, cfg.MaxUnacked)
	assert.Equal(t, 5*time.Second, cfg.CommitInterval)
	assert.Equal(t, "newest", cfg.StartFrom)
}

func TestLoadConfig_Rejects(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "a.yml")
	require.NoError(t, os.WriteFile(bad, []byte("schema_version: v3\n"), 0o644))
	_, err := LoadConfig(bad)
	assert.Error(t, err)

	mode := filepath.Join(dir, "b.yml")
	require.NoError(t, os.WriteFile(mode, []byte("commit_mode: sometimes\n"), 0o644))
	_, err = LoadConfig(mode)
	assert.Error(t, err)
}
