package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	trawlerr "github.com/codetrawl/codetrawl/internal/errors"
)

// Alias is the on-disk pointer from a stable name to the current index
// directory. Swap history is kept so a bad refresh can be rolled back by
// hand.
type Alias struct {
	TargetPath   string    `json:"target_path"`
	RepoName     string    `json:"repo_name"`
	CreatedAt    time.Time `json:"created_at"`
	LastRefresh  time.Time `json:"last_refresh,omitempty"`
	PreviousPath string    `json:"previous_path,omitempty"`
	SwappedAt    time.Time `json:"swapped_at,omitempty"`
}

// AliasManager reads and writes alias files under a single directory. All
// mutations take a cross-process file lock and replace the alias file
// atomically, so concurrent refreshers on the same machine cannot interleave
// a read-modify-write.
type AliasManager struct {
	dir string
}

// NewAliasManager creates the alias directory if needed.
func NewAliasManager(dir string) (*AliasManager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, trawlerr.Wrap(err, trawlerr.ErrCodeFilePermission,
			"creating alias directory failed").WithDetail("dir", dir)
	}
	return &AliasManager{dir: dir}, nil
}

func (m *AliasManager) aliasPath(name string) string {
	return filepath.Join(m.dir, name+".alias.json")
}

func (m *AliasManager) lockPath(name string) string {
	return filepath.Join(m.dir, name+".lock")
}

// Create writes a new alias pointing at targetPath. An existing alias for
// the name is replaced.
func (m *AliasManager) Create(name, repoName, targetPath string) error {
	if err := ValidateRepoName(repoName); err != nil {
		return err
	}
	return m.withLock(name, func() error {
		now := time.Now().UTC()
		a := Alias{
			TargetPath: targetPath,
			RepoName:   repoName,
			CreatedAt:  now,
		}
		if existing, err := m.read(name); err == nil {
			a.CreatedAt = existing.CreatedAt
		}
		return m.write(name, a)
	})
}

// Resolve returns the alias for a name.
func (m *AliasManager) Resolve(name string) (Alias, error) {
	return m.read(name)
}

// ResolvePath returns just the current target directory.
func (m *AliasManager) ResolvePath(name string) (string, error) {
	a, err := m.read(name)
	if err != nil {
		return "", err
	}
	return a.TargetPath, nil
}

// Swap atomically repoints the alias from oldPath to newPath. The caller
// must pass the path it believes is current; if another process swapped
// first, the precondition fails and no write happens. The displaced path is
// recorded for rollback and cleanup.
func (m *AliasManager) Swap(name, oldPath, newPath string) error {
	return m.withLock(name, func() error {
		a, err := m.read(name)
		if err != nil {
			return err
		}
		if a.TargetPath != oldPath {
			return trawlerr.New(trawlerr.ErrCodeSwapPrecond,
				"alias target changed since it was read").
				WithDetail("alias", name).
				WithDetail("expected", oldPath).
				WithDetail("actual", a.TargetPath).
				WithSuggestion("re-resolve the alias and retry the swap")
		}
		now := time.Now().UTC()
		a.PreviousPath = a.TargetPath
		a.TargetPath = newPath
		a.SwappedAt = now
		a.LastRefresh = now
		return m.write(name, a)
	})
}

// Remove deletes the alias file. Removing a missing alias is not an error.
func (m *AliasManager) Remove(name string) error {
	return m.withLock(name, func() error {
		err := os.Remove(m.aliasPath(name))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return trawlerr.Wrap(err, trawlerr.ErrCodeAliasWrite,
				"removing alias failed").WithDetail("alias", name)
		}
		os.Remove(m.lockPath(name))
		return nil
	})
}

// List returns the names of all aliases in the directory.
func (m *AliasManager) List() ([]string, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, trawlerr.Wrap(err, trawlerr.ErrCodeFilePermission,
			"reading alias directory failed").WithDetail("dir", m.dir)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		base := e.Name()
		const suffix = ".alias.json"
		if len(base) > len(suffix) && base[len(base)-len(suffix):] == suffix {
			names = append(names, base[:len(base)-len(suffix)])
		}
	}
	return names, nil
}

func (m *AliasManager) withLock(name string, fn func() error) error {
	lock := flock.New(m.lockPath(name))
	if err := lock.Lock(); err != nil {
		return trawlerr.Wrap(err, trawlerr.ErrCodeAliasWrite,
			"acquiring alias lock failed").WithDetail("alias", name)
	}
	defer lock.Unlock()
	return fn()
}

func (m *AliasManager) read(name string) (Alias, error) {
	data, err := os.ReadFile(m.aliasPath(name))
	if errors.Is(err, fs.ErrNotExist) {
		return Alias{}, trawlerr.New(trawlerr.ErrCodeAliasNotFound,
			fmt.Sprintf("alias %q does not exist", name))
	}
	if err != nil {
		return Alias{}, trawlerr.Wrap(err, trawlerr.ErrCodeFilePermission,
			"reading alias failed").WithDetail("alias", name)
	}
	var a Alias
	if err := json.Unmarshal(data, &a); err != nil {
		return Alias{}, trawlerr.Wrap(err, trawlerr.ErrCodeRegistryCorrupt,
			"alias file is corrupt").WithDetail("alias", name)
	}
	return a, nil
}

// write replaces the alias file via temp, fsync, rename.
func (m *AliasManager) write(name string, a Alias) error {
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return trawlerr.Wrap(err, trawlerr.ErrCodeAliasWrite, "encoding alias failed")
	}

	tmp, err := os.CreateTemp(m.dir, "."+name+"-*.tmp")
	if err != nil {
		return trawlerr.Wrap(err, trawlerr.ErrCodeAliasWrite, "creating alias temp file failed")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return trawlerr.Wrap(err, trawlerr.ErrCodeAliasWrite, "writing alias failed")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return trawlerr.Wrap(err, trawlerr.ErrCodeAliasWrite, "syncing alias failed")
	}
	if err := tmp.Close(); err != nil {
		return trawlerr.Wrap(err, trawlerr.ErrCodeAliasWrite, "closing alias temp file failed")
	}
	if err := os.Rename(tmpName, m.aliasPath(name)); err != nil {
		return trawlerr.Wrap(err, trawlerr.ErrCodeAliasWrite, "replacing alias failed")
	}
	return nil
}
