package registry

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	trawlerr "github.com/codetrawl/codetrawl/internal/errors"
)

const sqliteFileName = "registry.db"

const registrySchema = `
CREATE TABLE IF NOT EXISTS repos (
	repo_name        TEXT PRIMARY KEY,
	alias_name       TEXT NOT NULL,
	repo_url         TEXT NOT NULL DEFAULT '',
	index_path       TEXT NOT NULL,
	created_at       TEXT NOT NULL,
	last_refresh     TEXT,
	enable_temporal  INTEGER NOT NULL DEFAULT 0,
	temporal_options TEXT NOT NULL DEFAULT '',
	refresh_interval INTEGER NOT NULL DEFAULT 0
);`

// SQLiteRegistry stores entries in a SQLite database. It exists for
// installations where concurrent tooling reads the registry; SQLite gives
// multi-reader consistency the JSON file cannot.
type SQLiteRegistry struct {
	db *sql.DB
}

// NewSQLiteRegistry opens (or creates) the registry database under dataDir.
func NewSQLiteRegistry(dataDir string) (*SQLiteRegistry, error) {
	path := filepath.Join(dataDir, sqliteFileName)
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, trawlerr.Wrap(err, trawlerr.ErrCodeStoreUnavailable,
			"opening registry database failed").WithDetail("path", path)
	}
	if _, err := db.Exec(registrySchema); err != nil {
		db.Close()
		return nil, trawlerr.Wrap(err, trawlerr.ErrCodeStoreIO,
			"initializing registry schema failed")
	}
	return &SQLiteRegistry{db: db}, nil
}

func (r *SQLiteRegistry) Add(entry Entry) error {
	if err := ValidateRepoName(entry.RepoName); err != nil {
		return err
	}
	if entry.AliasName == "" {
		entry.AliasName = entry.RepoName
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	var lastRefresh any
	if !entry.LastRefresh.IsZero() {
		lastRefresh = entry.LastRefresh.UTC().Format(time.RFC3339Nano)
	}
	var temporalOpts string
	if len(entry.TemporalOptions) > 0 {
		raw, err := json.Marshal(entry.TemporalOptions)
		if err != nil {
			return trawlerr.Wrap(err, trawlerr.ErrCodeRegistrySave,
				"encoding temporal options failed")
		}
		temporalOpts = string(raw)
	}
	_, err := r.db.Exec(`
		INSERT INTO repos (repo_name, alias_name, repo_url, index_path, created_at,
			last_refresh, enable_temporal, temporal_options, refresh_interval)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(repo_name) DO UPDATE SET
			alias_name = excluded.alias_name,
			repo_url = excluded.repo_url,
			index_path = excluded.index_path,
			last_refresh = excluded.last_refresh,
			enable_temporal = excluded.enable_temporal,
			temporal_options = excluded.temporal_options,
			refresh_interval = excluded.refresh_interval`,
		entry.RepoName, entry.AliasName, entry.RepoURL, entry.IndexPath,
		entry.CreatedAt.UTC().Format(time.RFC3339Nano),
		lastRefresh, boolToInt(entry.EnableTemporal), temporalOpts,
		int64(entry.RefreshInterval))
	if err != nil {
		return trawlerr.Wrap(err, trawlerr.ErrCodeRegistrySave, "saving registry entry failed")
	}
	return nil
}

func (r *SQLiteRegistry) Get(repoName string) (Entry, bool, error) {
	row := r.db.QueryRow(`
		SELECT repo_name, alias_name, repo_url, index_path, created_at,
			last_refresh, enable_temporal, temporal_options, refresh_interval
		FROM repos WHERE repo_name = ?`, repoName)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, trawlerr.Wrap(err, trawlerr.ErrCodeStoreIO,
			"reading registry entry failed")
	}
	return e, true, nil
}

func (r *SQLiteRegistry) List() ([]Entry, error) {
	rows, err := r.db.Query(`
		SELECT repo_name, alias_name, repo_url, index_path, created_at,
			last_refresh, enable_temporal, temporal_options, refresh_interval
		FROM repos ORDER BY repo_name`)
	if err != nil {
		return nil, trawlerr.Wrap(err, trawlerr.ErrCodeStoreIO, "listing registry failed")
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, trawlerr.Wrap(err, trawlerr.ErrCodeStoreIO, "decoding registry row failed")
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, trawlerr.Wrap(err, trawlerr.ErrCodeStoreIO, "listing registry failed")
	}
	return entries, nil
}

func (r *SQLiteRegistry) Remove(repoName string) error {
	if _, err := r.db.Exec(`DELETE FROM repos WHERE repo_name = ?`, repoName); err != nil {
		return trawlerr.Wrap(err, trawlerr.ErrCodeRegistrySave, "removing registry entry failed")
	}
	return nil
}

func (r *SQLiteRegistry) Touch(repoName, indexPath string, at time.Time) error {
	res, err := r.db.Exec(`
		UPDATE repos SET index_path = ?, last_refresh = ? WHERE repo_name = ?`,
		indexPath, at.UTC().Format(time.RFC3339Nano), repoName)
	if err != nil {
		return trawlerr.Wrap(err, trawlerr.ErrCodeRegistrySave, "updating registry entry failed")
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return trawlerr.New(trawlerr.ErrCodeInvalidInput,
			fmt.Sprintf("repository %q is not registered", repoName))
	}
	return nil
}

func (r *SQLiteRegistry) Close() error { return r.db.Close() }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (Entry, error) {
	var (
		e            Entry
		createdAt    string
		lastRefresh  sql.NullString
		temporal     int
		temporalOpts string
		refreshNanos int64
	)
	if err := row.Scan(&e.RepoName, &e.AliasName, &e.RepoURL, &e.IndexPath,
		&createdAt, &lastRefresh, &temporal, &temporalOpts, &refreshNanos); err != nil {
		return Entry{}, err
	}
	if temporalOpts != "" {
		if err := json.Unmarshal([]byte(temporalOpts), &e.TemporalOptions); err != nil {
			return Entry{}, err
		}
	}
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		e.CreatedAt = t
	}
	if lastRefresh.Valid {
		if t, err := time.Parse(time.RFC3339Nano, lastRefresh.String); err == nil {
			e.LastRefresh = t
		}
	}
	e.EnableTemporal = temporal != 0
	e.RefreshInterval = time.Duration(refreshNanos)
	return e, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Open returns the registry backend named in configuration.
func Open(backend, dataDir string) (Registry, error) {
	switch backend {
	case "sqlite":
		return NewSQLiteRegistry(dataDir)
	case "", "json":
		return NewFileRegistry(dataDir)
	default:
		return nil, trawlerr.New(trawlerr.ErrCodeConfigInvalid,
			fmt.Sprintf("unknown registry backend %q", backend)).
			WithSuggestion("use \"json\" or \"sqlite\"")
	}
}
