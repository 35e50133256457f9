package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	trawlerr "github.com/codetrawl/codetrawl/internal/errors"
)

func TestSQLiteRegistry_CRUD(t *testing.T) {
	reg, err := NewSQLiteRegistry(t.TempDir())
	require.NoError(t, err)
	defer reg.Close()

	entry := testEntry("alpha-global")
	entry.RefreshInterval = 5 * time.Minute
	entry.TemporalOptions = map[string]string{"depth": "shallow"}
	require.NoError(t, reg.Add(entry))

	got, ok, err := reg.Get("alpha-global")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, entry.RepoURL, got.RepoURL)
	assert.Equal(t, entry.IndexPath, got.IndexPath)
	assert.True(t, got.EnableTemporal)
	assert.Equal(t, 5*time.Minute, got.RefreshInterval)
	assert.Equal(t, map[string]string{"depth": "shallow"}, got.TemporalOptions)

	// Add on an existing name is an upsert.
	entry.IndexPath = "/data/indexes/alpha-global/v2"
	require.NoError(t, reg.Add(entry))
	got, _, err = reg.Get("alpha-global")
	require.NoError(t, err)
	assert.Equal(t, "/data/indexes/alpha-global/v2", got.IndexPath)

	require.NoError(t, reg.Add(testEntry("beta-global")))
	entries, err := reg.List()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "alpha-global", entries[0].RepoName)

	at := time.Date(2026, 8, 26, 15, 30, 0, 0, time.UTC)
	require.NoError(t, reg.Touch("beta-global", "/v9", at))
	got, _, err = reg.Get("beta-global")
	require.NoError(t, err)
	assert.Equal(t, "/v9", got.IndexPath)
	assert.True(t, got.LastRefresh.Equal(at))

	require.NoError(t, reg.Remove("alpha-global"))
	_, ok, err = reg.Get("alpha-global")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, reg.Remove("alpha-global"))
}

func TestSQLiteRegistry_RejectsInvalidNames(t *testing.T) {
	reg, err := NewSQLiteRegistry(t.TempDir())
	require.NoError(t, err)
	defer reg.Close()

	err = reg.Add(testEntry("no-suffix"))
	assert.Equal(t, trawlerr.ErrCodeAliasSuffix, trawlerr.GetCode(err))
}

func TestSQLiteRegistry_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	reg, err := NewSQLiteRegistry(dir)
	require.NoError(t, err)
	require.NoError(t, reg.Add(testEntry("alpha-global")))
	require.NoError(t, reg.Close())

	reopened, err := NewSQLiteRegistry(dir)
	require.NoError(t, err)
	defer reopened.Close()

	_, ok, err := reopened.Get("alpha-global")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestOpen_BackendSelection(t *testing.T) {
	dir := t.TempDir()

	reg, err := Open("", dir)
	require.NoError(t, err)
	assert.IsType(t, &FileRegistry{}, reg)
	reg.Close()

	reg, err = Open("json", dir)
	require.NoError(t, err)
	assert.IsType(t, &FileRegistry{}, reg)
	reg.Close()

	reg, err = Open("sqlite", dir)
	require.NoError(t, err)
	assert.IsType(t, &SQLiteRegistry{}, reg)
	reg.Close()

	_, err = Open("postgres", dir)
	assert.Equal(t, trawlerr.ErrCodeConfigInvalid, trawlerr.GetCode(err))
}
