// Package scanner walks a project tree and produces the candidate file set
// for indexing, honoring .gitignore patterns and configured excludes.
package scanner

import (
	"bufio"
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// MaxFileSize is the largest file the scanner will offer for indexing.
// Oversized files are skipped to prevent memory exhaustion.
const MaxFileSize int64 = 10 * 1024 * 1024

// FileInfo describes one indexable file.
type FileInfo struct {
	// Path is the repo-relative path using forward slashes.
	Path string
	// AbsPath is the absolute filesystem path.
	AbsPath string
	// Size is the file size in bytes.
	Size int64
	// ModTime is the last modification time.
	ModTime time.Time
	// Language is the detected language identifier.
	Language string
}

// Options controls a scan.
type Options struct {
	// RootDir is the project root (absolute).
	RootDir string
	// RespectGitignore enables .gitignore pattern loading.
	RespectGitignore bool
	// ExcludePatterns are doublestar globs excluded from the scan.
	ExcludePatterns []string
}

// Scanner walks project trees.
type Scanner struct {
	ignore *ignoreMatcher
}

// New creates a Scanner.
func New() *Scanner {
	return &Scanner{}
}

// Scan walks the tree and returns all indexable files sorted by walk order.
func (s *Scanner) Scan(ctx context.Context, opts *Options) ([]*FileInfo, error) {
	matcher := newIgnoreMatcher(opts)

	var files []*FileInfo
	err := filepath.WalkDir(opts.RootDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // skip unreadable entries
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		rel, relErr := filepath.Rel(opts.RootDir, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if rel == "." {
				return nil
			}
			name := d.Name()
			if name == ".git" || strings.HasPrefix(name, ".") && name != "." {
				return filepath.SkipDir
			}
			if matcher.ignored(rel + "/") {
				return filepath.SkipDir
			}
			return nil
		}

		// Symlinks are never followed.
		if d.Type()&fs.ModeSymlink != 0 {
			slog.Debug("skipping symlink", slog.String("path", rel))
			return nil
		}

		if matcher.ignored(rel) {
			return nil
		}

		info, statErr := d.Info()
		if statErr != nil {
			return nil
		}
		if info.Size() > MaxFileSize {
			slog.Warn("skipping oversized file",
				slog.String("path", rel),
				slog.Int64("size", info.Size()),
				slog.Int64("max", MaxFileSize))
			return nil
		}

		lang := DetectLanguage(rel)
		if lang == "" {
			return nil
		}

		files = append(files, &FileInfo{
			Path:     rel,
			AbsPath:  path,
			Size:     info.Size(),
			ModTime:  info.ModTime(),
			Language: lang,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// ignoreMatcher combines .gitignore patterns with configured excludes.
type ignoreMatcher struct {
	patterns []string
}

func newIgnoreMatcher(opts *Options) *ignoreMatcher {
	m := &ignoreMatcher{}
	m.patterns = append(m.patterns, opts.ExcludePatterns...)

	if opts.RespectGitignore {
		m.patterns = append(m.patterns, loadGitignore(opts.RootDir)...)
	}
	return m
}

// ignored reports whether a repo-relative path matches any pattern.
func (m *ignoreMatcher) ignored(rel string) bool {
	for _, pat := range m.patterns {
		if ok, _ := doublestar.Match(pat, rel); ok {
			return true
		}
		// Bare directory patterns ("node_modules/") ignore the subtree.
		if strings.HasSuffix(pat, "/") && strings.HasPrefix(rel, strings.TrimSuffix(pat, "/")+"/") {
			return true
		}
	}
	return false
}

// loadGitignore reads the root .gitignore and converts entries to
// doublestar globs. Nested .gitignore files are intentionally not parsed;
// top-level patterns cover the common cases and git itself remains the
// authority for tracked-file sets.
func loadGitignore(root string) []string {
	f, err := os.Open(filepath.Join(root, ".gitignore"))
	if err != nil {
		return nil
	}
	defer f.Close()

	var patterns []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "!") {
			continue
		}
		line = strings.TrimPrefix(line, "/")
		if strings.HasSuffix(line, "/") {
			patterns = append(patterns, line, line+"**", "**/"+line+"**")
		} else {
			patterns = append(patterns, line, "**/"+line)
		}
	}
	return patterns
}
