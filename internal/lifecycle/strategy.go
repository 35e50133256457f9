package lifecycle

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	trawlerr "github.com/codetrawl/codetrawl/internal/errors"
	"github.com/codetrawl/codetrawl/internal/gittopo"
	"github.com/codetrawl/codetrawl/internal/registry"
)

// UpdateStrategy abstracts how a registered source learns about and applies
// upstream changes. Git-backed repos pull; directory-backed sources rescan.
type UpdateStrategy interface {
	// HasChanges reports whether the source moved since the last refresh.
	HasChanges(ctx context.Context) (bool, error)

	// Update brings the local source up to date.
	Update(ctx context.Context) error

	// SourcePath is the directory whose content gets re-indexed.
	SourcePath() string
}

// StrategyFor picks the strategy for an entry: git pull when a remote URL is
// recorded, content rescan otherwise.
func StrategyFor(entry registry.Entry, sourceDir string) UpdateStrategy {
	if entry.RepoURL == "" {
		return &rescanStrategy{dir: sourceDir}
	}
	return &gitPullStrategy{
		repo: gittopo.NewRepo(sourceDir),
		dir:  sourceDir,
	}
}

// gitPullStrategy fast-forwards a clone and reports changes from the
// upstream tracking branch.
type gitPullStrategy struct {
	repo *gittopo.Repo
	dir  string
}

func (s *gitPullStrategy) HasChanges(ctx context.Context) (bool, error) {
	if err := s.repo.Fetch(ctx); err != nil {
		return false, err
	}
	behind, err := s.repo.BehindUpstream(ctx)
	if err != nil {
		return false, err
	}
	return behind > 0, nil
}

func (s *gitPullStrategy) Update(ctx context.Context) error {
	if err := s.repo.Pull(ctx); err != nil {
		return err
	}
	s.repo.InvalidateCaches()
	return nil
}

func (s *gitPullStrategy) SourcePath() string { return s.dir }

// rescanStrategy detects changes in a plain directory by fingerprinting file
// paths, sizes, and modification times. The fingerprint is kept in a dotfile
// next to the content so restarts do not force a refresh.
type rescanStrategy struct {
	dir string
}

const fingerprintFile = ".codetrawl-fingerprint"

func (s *rescanStrategy) HasChanges(ctx context.Context) (bool, error) {
	current, err := s.fingerprint(ctx)
	if err != nil {
		return false, err
	}
	prev, err := os.ReadFile(filepath.Join(s.dir, fingerprintFile))
	if err != nil {
		// No recorded fingerprint yet; treat as changed.
		return true, nil
	}
	return string(prev) != current, nil
}

func (s *rescanStrategy) Update(ctx context.Context) error {
	current, err := s.fingerprint(ctx)
	if err != nil {
		return err
	}
	path := filepath.Join(s.dir, fingerprintFile)
	if err := os.WriteFile(path, []byte(current), 0o644); err != nil {
		return trawlerr.Wrap(err, trawlerr.ErrCodeFilePermission,
			"recording directory fingerprint failed").WithDetail("path", path)
	}
	return nil
}

func (s *rescanStrategy) SourcePath() string { return s.dir }

func (s *rescanStrategy) fingerprint(ctx context.Context) (string, error) {
	var lines []string
	err := filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		name := d.Name()
		if d.IsDir() {
			if name != "." && len(name) > 1 && name[0] == '.' {
				return filepath.SkipDir
			}
			return nil
		}
		if name == fingerprintFile {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(s.dir, path)
		if err != nil {
			return err
		}
		lines = append(lines, fmt.Sprintf("%s\x00%d\x00%d", rel, info.Size(), info.ModTime().UnixNano()))
		return nil
	})
	if err != nil {
		return "", trawlerr.Wrap(err, trawlerr.ErrCodeFilePermission,
			"fingerprinting directory failed").WithDetail("dir", s.dir)
	}
	sort.Strings(lines)

	h := sha256.New()
	for _, l := range lines {
		io.WriteString(h, l)
		io.WriteString(h, "\n")
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
