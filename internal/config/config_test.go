package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 1, cfg.Version)
	assert.Equal(t, "qdrant", cfg.Store.Backend)
	assert.Equal(t, "http://localhost:6333", cfg.Store.URL)
	assert.Equal(t, "static", cfg.Embedder.Backend)
	assert.Equal(t, DefaultDimensions, cfg.Embedder.Dimensions)
	assert.Equal(t, "json", cfg.Global.RegistryBackend)
	assert.Equal(t, DefaultWatchDebounce, cfg.Watch.Debounce)
	assert.Contains(t, cfg.Paths.Exclude, "**/node_modules/**")
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "qdrant", cfg.Store.Backend)
}

func TestLoad_MergesFileOverDefaults(t *testing.T) {
	root := t.TempDir()
	yaml := `
store:
  backend: memory
  collection: my-project
embedder:
  cache_size: 50
watch:
  debounce: 2s
`
	require.NoError(t, os.WriteFile(filepath.Join(root, ProjectConfigName), []byte(yaml), 0o644))

	cfg, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, "my-project", cfg.Store.Collection)
	assert.Equal(t, 50, cfg.Embedder.CacheSize)
	assert.Equal(t, 2*time.Second, cfg.Watch.Debounce)

	// Untouched sections keep their defaults.
	assert.Equal(t, "http://localhost:6333", cfg.Store.URL)
	assert.Equal(t, "static", cfg.Embedder.Backend)
}

func TestLoad_InvalidYAML(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ProjectConfigName), []byte("store: [broken"), 0o644))

	_, err := Load(root)
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CODETRAWL_STORE_URL", "http://qdrant.internal:6334")
	t.Setenv("CODETRAWL_STORE_BACKEND", "memory")
	t.Setenv("CODETRAWL_COLLECTION", "env-collection")
	t.Setenv("CODETRAWL_DATA_DIR", "/srv/codetrawl")
	t.Setenv("CODETRAWL_REFRESH_INTERVAL", "5m")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "http://qdrant.internal:6334", cfg.Store.URL)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, "env-collection", cfg.Store.Collection)
	assert.Equal(t, "/srv/codetrawl", cfg.Global.DataDir)
	assert.Equal(t, 5*time.Minute, cfg.Global.RefreshInterval)
}

func TestLoad_RefreshIntervalAsSeconds(t *testing.T) {
	t.Setenv("CODETRAWL_REFRESH_INTERVAL", "900")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, cfg.Global.RefreshInterval)
}

func TestValidate_Normalization(t *testing.T) {
	cfg := &Config{}
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "qdrant", cfg.Store.Backend)
	assert.Equal(t, "json", cfg.Global.RegistryBackend)
	assert.Equal(t, DefaultDimensions, cfg.Embedder.Dimensions)
	assert.Equal(t, DefaultCacheSize, cfg.Embedder.CacheSize)
	assert.Equal(t, MinRefreshInterval, cfg.Global.RefreshInterval)
	assert.Equal(t, DefaultCleanupInterval, cfg.Global.CleanupInterval)
	assert.Equal(t, DefaultWatchDebounce, cfg.Watch.Debounce)
	assert.NotEmpty(t, cfg.Global.DataDir)
}

func TestValidate_RefreshIntervalFloor(t *testing.T) {
	cfg := Default()
	cfg.Global.RefreshInterval = 5 * time.Second
	require.NoError(t, cfg.Validate())
	assert.Equal(t, MinRefreshInterval, cfg.Global.RefreshInterval)
}

func TestValidate_RejectsUnknownBackends(t *testing.T) {
	cfg := Default()
	cfg.Store.Backend = "postgres"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Global.RegistryBackend = "etcd"
	assert.Error(t, cfg.Validate())
}

func TestSaveLoadRoundtrip(t *testing.T) {
	root := t.TempDir()

	cfg := Default()
	cfg.Store.Backend = "memory"
	cfg.Store.Collection = "roundtrip"
	require.NoError(t, cfg.Save(root))

	loaded, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, "memory", loaded.Store.Backend)
	assert.Equal(t, "roundtrip", loaded.Store.Collection)
}
