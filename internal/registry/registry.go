// Package registry tracks globally indexed repositories and the alias files
// that point consumers at their current index directories.
package registry

import (
	"strings"
	"time"

	trawlerr "github.com/codetrawl/codetrawl/internal/errors"
)

// GlobalSuffix is the required suffix for global repository names. The
// suffix keeps globally managed indexes from colliding with local per-repo
// names in shared tooling.
const GlobalSuffix = "-global"

// MetaDirName is the reserved name for directory-backed (non-git) content
// sources. It is exempt from the suffix rule.
const MetaDirName = "meta"

// Entry describes one registered repository.
type Entry struct {
	// RepoName is the registered name, ending in "-global" unless it is
	// the reserved meta directory.
	RepoName string `json:"repo_name"`

	// AliasName is the alias file name consumers resolve, usually equal
	// to RepoName.
	AliasName string `json:"alias_name"`

	// RepoURL is the git remote. Empty means a directory-backed source
	// refreshed by rescanning rather than pulling.
	RepoURL string `json:"repo_url,omitempty"`

	// IndexPath is the current index directory the alias points at.
	IndexPath string `json:"index_path"`

	CreatedAt   time.Time `json:"created_at"`
	LastRefresh time.Time `json:"last_refresh,omitempty"`

	// EnableTemporal opts the repo into periodic refresh.
	EnableTemporal bool `json:"enable_temporal"`

	// TemporalOptions carries strategy-specific refresh settings.
	TemporalOptions map[string]string `json:"temporal_options,omitempty"`

	// RefreshInterval overrides the global refresh interval when positive.
	RefreshInterval time.Duration `json:"refresh_interval,omitempty"`
}

// Registry persists entries. Implementations must be safe for concurrent
// use within a process; cross-process coordination is the alias layer's job.
type Registry interface {
	// Add inserts or replaces the entry keyed by RepoName.
	Add(entry Entry) error

	// Get returns the entry for a name.
	Get(repoName string) (Entry, bool, error)

	// List returns all entries sorted by RepoName.
	List() ([]Entry, error)

	// Remove deletes an entry. Removing a missing name is not an error.
	Remove(repoName string) error

	// Touch updates LastRefresh and IndexPath after a refresh cycle.
	Touch(repoName, indexPath string, at time.Time) error

	// Close releases backend resources.
	Close() error
}

// ValidateRepoName enforces the global naming rule: every name must end in
// "-global" (case-insensitive check, exact-case storage), except the
// reserved meta directory name.
func ValidateRepoName(name string) error {
	if name == "" {
		return trawlerr.New(trawlerr.ErrCodeInvalidInput, "repository name is empty")
	}
	if name == MetaDirName {
		return nil
	}
	if !strings.HasSuffix(strings.ToLower(name), GlobalSuffix) {
		return trawlerr.New(trawlerr.ErrCodeAliasSuffix,
			"global repository names must end in \"-global\"").
			WithDetail("name", name).
			WithSuggestion("rename the repository to " + name + GlobalSuffix)
	}
	if strings.EqualFold(name, GlobalSuffix) {
		return trawlerr.New(trawlerr.ErrCodeReservedName,
			"\"-global\" alone is not a valid repository name")
	}
	return nil
}
