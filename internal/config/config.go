// Package config loads and validates codetrawl configuration.
//
// Configuration is resolved in priority order:
//  1. Environment variables (CODETRAWL_*)
//  2. Project config (.codetrawl.yaml in the project root)
//  3. Built-in defaults
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ProjectConfigName is the per-project configuration file name.
const ProjectConfigName = ".codetrawl.yaml"

// Config represents the complete codetrawl configuration.
type Config struct {
	Version  int            `yaml:"version" json:"version"`
	Paths    PathsConfig    `yaml:"paths" json:"paths"`
	Store    StoreConfig    `yaml:"store" json:"store"`
	Embedder EmbedderConfig `yaml:"embedder" json:"embedder"`
	Global   GlobalConfig   `yaml:"global" json:"global"`
	Watch    WatchConfig    `yaml:"watch" json:"watch"`
}

// PathsConfig configures which paths to include and exclude.
type PathsConfig struct {
	Include []string `yaml:"include" json:"include"`
	Exclude []string `yaml:"exclude" json:"exclude"`
}

// StoreConfig configures the content store backend.
type StoreConfig struct {
	// Backend selects the store implementation: "qdrant" or "memory".
	Backend string `yaml:"backend" json:"backend"`

	// URL is the qdrant endpoint, e.g. "http://localhost:6333".
	URL string `yaml:"url" json:"url"`

	// Collection is the collection name. Defaults to "codetrawl-{project}".
	Collection string `yaml:"collection" json:"collection"`
}

// EmbedderConfig configures the embedding provider.
type EmbedderConfig struct {
	// Backend selects the embedder: currently "static" (local, offline).
	Backend string `yaml:"backend" json:"backend"`

	// Model is the model identifier recorded on every content point.
	Model string `yaml:"model" json:"model"`

	// Dimensions is the embedding dimension.
	Dimensions int `yaml:"dimensions" json:"dimensions"`

	// CacheSize is the number of embeddings kept in the LRU cache.
	CacheSize int `yaml:"cache_size" json:"cache_size"`
}

// GlobalConfig configures global-repository lifecycle management.
type GlobalConfig struct {
	// DataDir is the root directory for global registry state and index
	// versions. Defaults to ~/.codetrawl.
	DataDir string `yaml:"data_dir" json:"data_dir"`

	// RegistryBackend selects the registry persistence: "json" or "sqlite".
	RegistryBackend string `yaml:"registry_backend" json:"registry_backend"`

	// RefreshInterval is how often the refresh scheduler polls registered
	// repositories for upstream changes. Enforced floor: 60s.
	RefreshInterval time.Duration `yaml:"refresh_interval" json:"refresh_interval"`

	// CleanupInterval is how often the cleanup manager polls its queue.
	CleanupInterval time.Duration `yaml:"cleanup_interval" json:"cleanup_interval"`
}

// WatchConfig configures filesystem watch mode.
type WatchConfig struct {
	// Debounce is how long to coalesce filesystem events before
	// triggering reconciliation.
	Debounce time.Duration `yaml:"debounce" json:"debounce"`
}

// Limits applied during validation.
const (
	MinRefreshInterval     = 60 * time.Second
	DefaultRefreshInterval = 3600 * time.Second
	DefaultCleanupInterval = 1 * time.Second
	DefaultWatchDebounce   = 500 * time.Millisecond
	DefaultDimensions      = 256
	DefaultCacheSize       = 1000
)

// Default returns the built-in default configuration.
func Default() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			Include: []string{"."},
			Exclude: []string{
				"**/node_modules/**",
				"**/vendor/**",
				"**/.git/**",
				"**/dist/**",
				"**/build/**",
			},
		},
		Store: StoreConfig{
			Backend: "qdrant",
			URL:     "http://localhost:6333",
		},
		Embedder: EmbedderConfig{
			Backend:    "static",
			Model:      "static-256",
			Dimensions: DefaultDimensions,
			CacheSize:  DefaultCacheSize,
		},
		Global: GlobalConfig{
			DataDir:         defaultDataDir(),
			RegistryBackend: "json",
			RefreshInterval: DefaultRefreshInterval,
			CleanupInterval: DefaultCleanupInterval,
		},
		Watch: WatchConfig{
			Debounce: DefaultWatchDebounce,
		},
	}
}

// Load reads the project configuration from rootPath, merging it over the
// defaults and applying environment overrides. A missing config file is not
// an error; the defaults are returned.
func Load(rootPath string) (*Config, error) {
	cfg := Default()

	path := filepath.Join(rootPath, ProjectConfigName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(cfg)
			return cfg, cfg.Validate()
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	applyEnvOverrides(cfg)
	return cfg, cfg.Validate()
}

// Save writes the configuration to the project root.
func (c *Config) Save(rootPath string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	path := filepath.Join(rootPath, ProjectConfigName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config %s: %w", path, err)
	}
	return nil
}

// Validate checks the configuration and normalizes out-of-range values.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "qdrant", "memory":
	case "":
		c.Store.Backend = "qdrant"
	default:
		return fmt.Errorf("unknown store backend %q (use qdrant or memory)", c.Store.Backend)
	}

	switch c.Global.RegistryBackend {
	case "json", "sqlite":
	case "":
		c.Global.RegistryBackend = "json"
	default:
		return fmt.Errorf("unknown registry backend %q (use json or sqlite)", c.Global.RegistryBackend)
	}

	if c.Embedder.Dimensions <= 0 {
		c.Embedder.Dimensions = DefaultDimensions
	}
	if c.Embedder.CacheSize <= 0 {
		c.Embedder.CacheSize = DefaultCacheSize
	}
	if c.Global.RefreshInterval < MinRefreshInterval {
		c.Global.RefreshInterval = MinRefreshInterval
	}
	if c.Global.CleanupInterval <= 0 {
		c.Global.CleanupInterval = DefaultCleanupInterval
	}
	if c.Watch.Debounce <= 0 {
		c.Watch.Debounce = DefaultWatchDebounce
	}
	if c.Global.DataDir == "" {
		c.Global.DataDir = defaultDataDir()
	}

	return nil
}

// applyEnvOverrides applies CODETRAWL_* environment variables.
func applyEnvOverrides(c *Config) {
	if v := os.Getenv("CODETRAWL_STORE_URL"); v != "" {
		c.Store.URL = v
	}
	if v := os.Getenv("CODETRAWL_STORE_BACKEND"); v != "" {
		c.Store.Backend = v
	}
	if v := os.Getenv("CODETRAWL_COLLECTION"); v != "" {
		c.Store.Collection = v
	}
	if v := os.Getenv("CODETRAWL_DATA_DIR"); v != "" {
		c.Global.DataDir = v
	}
	if v := os.Getenv("CODETRAWL_REFRESH_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Global.RefreshInterval = d
		} else if secs, err := strconv.Atoi(v); err == nil {
			c.Global.RefreshInterval = time.Duration(secs) * time.Second
		}
	}
}

// defaultDataDir returns ~/.codetrawl, falling back to the temp directory.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".codetrawl")
	}
	return filepath.Join(home, ".codetrawl")
}
