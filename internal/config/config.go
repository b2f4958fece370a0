// Package config holds the project-local configuration. Everything the
// tool persists lives under <root>/.codeatlas/, and an optional
// config.yaml in that directory overrides the defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/codeatlas/codeatlas/internal/watcher"
)

const DataDirName = ".codeatlas"

type IndexConfig struct {
	Workers         int      `yaml:"workers"`
	MaxFileSize     int64    `yaml:"max_file_size"`
	IncludePatterns []string `yaml:"include_patterns"`
	ExcludePatterns []string `yaml:"exclude_patterns"`
}

type SearchConfig struct {
	DefaultLimit int      `yaml:"default_limit"`
	CacheSize    int      `yaml:"cache_size"`
	CacheTTL     Duration `yaml:"cache_ttl"`
	RRFConstant  float64  `yaml:"rrf_constant"`
}

type EmbeddingConfig struct {
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	CacheSize int    `yaml:"cache_size"`
}

type Config struct {
	Root      string          `yaml:"-"`
	LogLevel  string          `yaml:"log_level"`
	LogFormat string          `yaml:"log_format"`
	Index     IndexConfig     `yaml:"index"`
	Search    SearchConfig    `yaml:"search"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Watcher   watcher.Config  `yaml:"watcher"`
}

// Default returns the configuration used when no config.yaml exists.
func Default(root string) *Config {
	return &Config{
		Root:      root,
		LogLevel:  "info",
		LogFormat: "text",
		Index: IndexConfig{
			Workers:     4,
			MaxFileSize: 10 * 1024 * 1024,
			ExcludePatterns: []string{
				"**/node_modules/**",
				"**/vendor/**",
				"**/dist/**",
				"**/build/**",
				"**/target/**",
				"**/__pycache__/**",
				"**/.venv/**",
			},
		},
		Search: SearchConfig{
			DefaultLimit: 20,
			CacheSize:    256,
			CacheTTL:     Duration(5 * time.Minute),
			RRFConstant:  60,
		},
		Embedding: EmbeddingConfig{
			Provider:  "local",
			CacheSize: 4096,
		},
		Watcher: watcher.DefaultConfig(),
	}
}

// Load returns the defaults for root overlaid with
// <root>/.codeatlas/config.yaml when that file exists.
func Load(root string) (*Config, error) {
	cfg := Default(root)

	data, err := os.ReadFile(filepath.Join(root, DataDirName, "config.yaml"))
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// DataDir is where the index database, vectors, and caches live.
func (c *Config) DataDir() string {
	return filepath.Join(c.Root, DataDirName)
}

// DBPath is the SQLite index database.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir(), "index.db")
}

// VectorPath is the persisted embedding index.
func (c *Config) VectorPath() string {
	return filepath.Join(c.DataDir(), "embeddings", "vectors.bin")
}

// CacheDir holds disposable caches.
func (c *Config) CacheDir() string {
	return filepath.Join(c.DataDir(), "cache")
}

// EnsureDirectories creates the data layout.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{
		c.DataDir(),
		filepath.Dir(c.VectorPath()),
		c.CacheDir(),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}
