package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	trawlerr "github.com/codetrawl/codetrawl/internal/errors"
)

const registryFileName = "registry.json"

// registryDocument is the on-disk shape. Version gates future migrations.
type registryDocument struct {
	Version int              `json:"version"`
	Repos   map[string]Entry `json:"repos"`
}

// FileRegistry stores entries in a single JSON file. Writes go through a
// temp file, fsync, and rename so a crash never leaves a torn registry.
type FileRegistry struct {
	mu    sync.Mutex
	path  string
	repos map[string]Entry
}

// NewFileRegistry opens (or creates) the registry file under dataDir. A
// corrupt file is logged and treated as empty; the corrupt content is
// preserved under a .corrupt suffix for inspection.
func NewFileRegistry(dataDir string) (*FileRegistry, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, trawlerr.Wrap(err, trawlerr.ErrCodeFilePermission,
			"creating registry directory failed").WithDetail("dir", dataDir)
	}
	r := &FileRegistry{
		path:  filepath.Join(dataDir, registryFileName),
		repos: make(map[string]Entry),
	}
	if err := r.load(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *FileRegistry) load() error {
	data, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return trawlerr.Wrap(err, trawlerr.ErrCodeFilePermission,
			"reading registry failed").WithDetail("path", r.path)
	}

	var doc registryDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		corrupt := r.path + ".corrupt"
		if renameErr := os.Rename(r.path, corrupt); renameErr == nil {
			slog.Warn("registry file corrupt, starting fresh",
				slog.String("path", r.path),
				slog.String("preserved", corrupt),
				slog.String("error", err.Error()))
		} else {
			slog.Warn("registry file corrupt and could not be preserved",
				slog.String("path", r.path),
				slog.String("error", err.Error()))
		}
		return nil
	}
	if doc.Repos != nil {
		r.repos = doc.Repos
	}
	return nil
}

// save writes the registry atomically. Callers must hold r.mu.
func (r *FileRegistry) save() error {
	doc := registryDocument{Version: 1, Repos: r.repos}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return trawlerr.Wrap(err, trawlerr.ErrCodeRegistrySave, "encoding registry failed")
	}

	tmp, err := os.CreateTemp(filepath.Dir(r.path), ".registry-*.tmp")
	if err != nil {
		return trawlerr.Wrap(err, trawlerr.ErrCodeRegistrySave, "creating registry temp file failed")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return trawlerr.Wrap(err, trawlerr.ErrCodeRegistrySave, "writing registry failed")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return trawlerr.Wrap(err, trawlerr.ErrCodeRegistrySave, "syncing registry failed")
	}
	if err := tmp.Close(); err != nil {
		return trawlerr.Wrap(err, trawlerr.ErrCodeRegistrySave, "closing registry temp file failed")
	}
	if err := os.Rename(tmpName, r.path); err != nil {
		return trawlerr.Wrap(err, trawlerr.ErrCodeRegistrySave, "replacing registry failed")
	}
	return nil
}

func (r *FileRegistry) Add(entry Entry) error {
	if err := ValidateRepoName(entry.RepoName); err != nil {
		return err
	}
	if entry.AliasName == "" {
		entry.AliasName = entry.RepoName
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.repos[entry.RepoName] = entry
	return r.save()
}

func (r *FileRegistry) Get(repoName string) (Entry, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.repos[repoName]
	return e, ok, nil
}

func (r *FileRegistry) List() ([]Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := make([]Entry, 0, len(r.repos))
	for _, e := range r.repos {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].RepoName < entries[j].RepoName })
	return entries, nil
}

func (r *FileRegistry) Remove(repoName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.repos[repoName]; !ok {
		return nil
	}
	delete(r.repos, repoName)
	return r.save()
}

func (r *FileRegistry) Touch(repoName, indexPath string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.repos[repoName]
	if !ok {
		return trawlerr.New(trawlerr.ErrCodeInvalidInput,
			fmt.Sprintf("repository %q is not registered", repoName))
	}
	e.IndexPath = indexPath
	e.LastRefresh = at.UTC()
	r.repos[repoName] = e
	return r.save()
}

func (r *FileRegistry) Close() error { return nil }
