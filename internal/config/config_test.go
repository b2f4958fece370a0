package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWithoutConfigFile(t *testing.T) {
	root := t.TempDir()

	cfg, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, root, cfg.Root)
	assert.Equal(t, 4, cfg.Index.Workers)
	assert.Equal(t, "local", cfg.Embedding.Provider)
	assert.Equal(t, filepath.Join(root, ".codeatlas", "index.db"), cfg.DBPath())
}

func TestLoadOverlaysYAML(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, DataDirName)
	require.NoError(t, os.MkdirAll(dir, 0o755))

	yaml := `
log_level: debug
index:
  workers: 2
search:
  cache_ttl: 30s
embedding:
  provider: openai
  model: text-embedding-3-small
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 2, cfg.Index.Workers)
	assert.Equal(t, 30*time.Second, cfg.Search.CacheTTL.Std())
	assert.Equal(t, "openai", cfg.Embedding.Provider)
	// Untouched fields keep their defaults.
	assert.Equal(t, 20, cfg.Search.DefaultLimit)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, DataDirName)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("{not yaml"), 0o644))

	_, err := Load(root)
	assert.Error(t, err)
}

func TestEnsureDirectories(t *testing.T) {
	cfg := Default(t.TempDir())
	require.NoError(t, cfg.EnsureDirectories())

	for _, dir := range []string{cfg.DataDir(), cfg.CacheDir(), filepath.Dir(cfg.VectorPath())} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}
