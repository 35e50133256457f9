// Package gittopo reads git topology (branches, commits, trees, ancestry)
// by shelling out to the git CLI with explicit timeouts.
//
// A non-zero git exit is always surfaced as an error, never treated as
// silent success. Callers decide per the error-handling policy whether a
// failure is fatal (indexing) or degrades gracefully (query filtering).
package gittopo

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	trawlerr "github.com/codetrawl/codetrawl/internal/errors"
)

// Command timeouts. Fetch and pull hit the network and get a larger budget.
const (
	DefaultCommandTimeout = 30 * time.Second
	NetworkCommandTimeout = 120 * time.Second
)

// Cache sizes for per-commit derived data.
const (
	treeCacheSize     = 64
	ancestryCacheSize = 4096
)

// Topology is the git topology capability consumed by the indexer and the
// query-time branch filter.
type Topology interface {
	// IsRepo reports whether the root is inside a git work tree.
	IsRepo(ctx context.Context) bool

	// CurrentBranch returns the checked-out branch name.
	CurrentBranch(ctx context.Context) (string, error)

	// CurrentCommit returns the HEAD commit hash.
	CurrentCommit(ctx context.Context) (string, error)

	// MergeBase returns the merge base of two refs.
	MergeBase(ctx context.Context, a, b string) (string, error)

	// ChangedFiles returns paths changed between two refs.
	ChangedFiles(ctx context.Context, old, new string) ([]string, error)

	// LsTree returns the set of tracked file paths at a ref.
	LsTree(ctx context.Context, ref string) (map[string]struct{}, error)

	// IsAncestor reports whether ancestor is reachable from descendant.
	IsAncestor(ctx context.Context, ancestor, descendant string) (bool, error)

	// Branches returns all local branch names.
	Branches(ctx context.Context) ([]string, error)
}

// Repo reads topology from a git repository rooted at a directory.
type Repo struct {
	root    string
	timeout time.Duration

	// treeCache caches LsTree sets keyed by resolved commit hash.
	treeCache *lru.Cache[string, map[string]struct{}]

	// ancestryCache caches IsAncestor results keyed by "ancestor..descendant".
	ancestryCache *lru.Cache[string, bool]
}

// NewRepo creates a topology reader for the repository at root.
func NewRepo(root string) *Repo {
	treeCache, _ := lru.New[string, map[string]struct{}](treeCacheSize)
	ancestryCache, _ := lru.New[string, bool](ancestryCacheSize)
	return &Repo{
		root:          root,
		timeout:       DefaultCommandTimeout,
		treeCache:     treeCache,
		ancestryCache: ancestryCache,
	}
}

// Root returns the repository root path.
func (r *Repo) Root() string {
	return r.root
}

// run executes a git command in the repository with a bounded timeout.
func (r *Repo) run(ctx context.Context, timeout time.Duration, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = r.root

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return "", trawlerr.Wrap(ctx.Err(), trawlerr.ErrCodeGitTimeout,
			fmt.Sprintf("git %s timed out after %s", args[0], timeout))
	}
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", trawlerr.Wrap(err, trawlerr.ErrCodeGitCommand,
			fmt.Sprintf("git %s: %s", strings.Join(args, " "), msg))
	}

	return strings.TrimSpace(stdout.String()), nil
}

// IsRepo reports whether the root is inside a git work tree.
func (r *Repo) IsRepo(ctx context.Context) bool {
	out, err := r.run(ctx, r.timeout, "rev-parse", "--is-inside-work-tree")
	return err == nil && out == "true"
}

// CurrentBranch returns the checked-out branch name.
// A detached HEAD returns the literal "HEAD"; callers treat that as no branch.
func (r *Repo) CurrentBranch(ctx context.Context) (string, error) {
	return r.run(ctx, r.timeout, "rev-parse", "--abbrev-ref", "HEAD")
}

// CurrentCommit returns the HEAD commit hash.
func (r *Repo) CurrentCommit(ctx context.Context) (string, error) {
	return r.run(ctx, r.timeout, "rev-parse", "HEAD")
}

// MergeBase returns the merge base of two refs.
func (r *Repo) MergeBase(ctx context.Context, a, b string) (string, error) {
	return r.run(ctx, r.timeout, "merge-base", a, b)
}

// ChangedFiles returns the paths changed between two refs.
func (r *Repo) ChangedFiles(ctx context.Context, old, new string) ([]string, error) {
	out, err := r.run(ctx, r.timeout, "diff", "--name-only", old, new)
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// LsTree returns the set of tracked file paths at a ref.
// Results are cached per resolved commit since trees are immutable.
func (r *Repo) LsTree(ctx context.Context, ref string) (map[string]struct{}, error) {
	commit, err := r.run(ctx, r.timeout, "rev-parse", ref)
	if err != nil {
		return nil, err
	}

	if cached, ok := r.treeCache.Get(commit); ok {
		return cached, nil
	}

	out, err := r.run(ctx, r.timeout, "ls-tree", "-r", "--name-only", commit)
	if err != nil {
		return nil, err
	}

	paths := make(map[string]struct{})
	for _, line := range strings.Split(out, "\n") {
		if line != "" {
			paths[line] = struct{}{}
		}
	}

	r.treeCache.Add(commit, paths)
	return paths, nil
}

// IsAncestor reports whether ancestor is reachable from descendant,
// using a merge-base ancestry check.
func (r *Repo) IsAncestor(ctx context.Context, ancestor, descendant string) (bool, error) {
	key := ancestor + ".." + descendant
	if cached, ok := r.ancestryCache.Get(key); ok {
		return cached, nil
	}

	_, err := r.run(ctx, r.timeout, "merge-base", "--is-ancestor", ancestor, descendant)
	if err != nil {
		// Exit status 1 means "not an ancestor"; other failures propagate.
		var exitErr *exec.ExitError
		if stderrors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			r.ancestryCache.Add(key, false)
			return false, nil
		}
		return false, err
	}

	r.ancestryCache.Add(key, true)
	return true, nil
}

// Branches returns all local branch names.
func (r *Repo) Branches(ctx context.Context) ([]string, error) {
	out, err := r.run(ctx, r.timeout, "for-each-ref", "--format=%(refname:short)", "refs/heads")
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// Fetch updates remote tracking refs. Network timeout applies.
func (r *Repo) Fetch(ctx context.Context) error {
	_, err := r.run(ctx, NetworkCommandTimeout, "fetch", "--quiet")
	return err
}

// Pull fast-forwards the current branch. Network timeout applies.
func (r *Repo) Pull(ctx context.Context) error {
	_, err := r.run(ctx, NetworkCommandTimeout, "pull", "--ff-only", "--quiet")
	return err
}

// BehindUpstream returns how many commits HEAD is behind its upstream.
// Requires a prior Fetch to be meaningful.
func (r *Repo) BehindUpstream(ctx context.Context) (int, error) {
	out, err := r.run(ctx, r.timeout, "rev-list", "--count", "HEAD..@{upstream}")
	if err != nil {
		return 0, err
	}
	n, convErr := strconv.Atoi(out)
	if convErr != nil {
		return 0, trawlerr.Wrap(convErr, trawlerr.ErrCodeGitCommand,
			fmt.Sprintf("unexpected rev-list output %q", out))
	}
	return n, nil
}

// Clone clones a remote into dest. Used when registering a global
// repository whose source does not exist locally yet.
func Clone(ctx context.Context, remote, dest string) error {
	ctx, cancel := context.WithTimeout(ctx, NetworkCommandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", "clone", "--", remote, dest)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return trawlerr.Wrap(ctx.Err(), trawlerr.ErrCodeGitTimeout,
			fmt.Sprintf("git clone timed out after %s", NetworkCommandTimeout))
	}
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return trawlerr.Wrap(err, trawlerr.ErrCodeGitCommand,
			fmt.Sprintf("git clone %s: %s", remote, msg))
	}
	return nil
}

// InvalidateCaches drops cached tree and ancestry data. Called after
// operations that move refs (pull, fetch, checkout).
func (r *Repo) InvalidateCaches() {
	r.treeCache.Purge()
	r.ancestryCache.Purge()
}

// IsBenignUnavailable reports whether an error indicates git metadata is
// temporarily unusable in a way the query path should tolerate by including
// all results (dubious ownership, not a repository).
func IsBenignUnavailable(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "dubious ownership") ||
		strings.Contains(msg, "not a git repository") ||
		strings.Contains(msg, "detected dubious")
}
