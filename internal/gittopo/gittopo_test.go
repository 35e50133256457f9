package gittopo

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	trawlerr "github.com/codetrawl/codetrawl/internal/errors"
)

// initTestRepo builds a real repository with two branches:
//
//	main:    shared.go, main_only.go
//	feature: shared.go, feature_only.go   (branched from the first commit)
func initTestRepo(t *testing.T) (string, *Repo) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	root := t.TempDir()

	git := func(args ...string) {
		t.Helper()
		cmd := exec.Command("git", args...)
		cmd.Dir = root
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@test",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@test",
		)
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, "git %v: %s", args, out)
	}
	write := func(name, content string) {
		t.Helper()
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte(content), 0o644))
	}

	git("init", "-b", "main")
	write("shared.go", "package shared\n")
	git("add", ".")
	git("commit", "-m", "initial")

	git("checkout", "-b", "feature")
	write("feature_only.go", "package feature\n")
	git("add", ".")
	git("commit", "-m", "feature work")

	git("checkout", "main")
	write("main_only.go", "package main\n")
	git("add", ".")
	git("commit", "-m", "main work")

	return root, NewRepo(root)
}

func TestRepo_IsRepo(t *testing.T) {
	_, repo := initTestRepo(t)
	assert.True(t, repo.IsRepo(context.Background()))

	outside := NewRepo(t.TempDir())
	assert.False(t, outside.IsRepo(context.Background()))
}

func TestRepo_CurrentBranchAndCommit(t *testing.T) {
	_, repo := initTestRepo(t)
	ctx := context.Background()

	branch, err := repo.CurrentBranch(ctx)
	require.NoError(t, err)
	assert.Equal(t, "main", branch)

	commit, err := repo.CurrentCommit(ctx)
	require.NoError(t, err)
	assert.Len(t, commit, 40)
}

func TestRepo_Branches(t *testing.T) {
	_, repo := initTestRepo(t)

	branches, err := repo.Branches(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"main", "feature"}, branches)
}

func TestRepo_LsTree(t *testing.T) {
	_, repo := initTestRepo(t)
	ctx := context.Background()

	tracked, err := repo.LsTree(ctx, "HEAD")
	require.NoError(t, err)
	assert.Contains(t, tracked, "shared.go")
	assert.Contains(t, tracked, "main_only.go")
	assert.NotContains(t, tracked, "feature_only.go")

	featureTracked, err := repo.LsTree(ctx, "feature")
	require.NoError(t, err)
	assert.Contains(t, featureTracked, "feature_only.go")
	assert.NotContains(t, featureTracked, "main_only.go")
}

func TestRepo_IsAncestor(t *testing.T) {
	root, repo := initTestRepo(t)
	ctx := context.Background()

	head, err := repo.CurrentCommit(ctx)
	require.NoError(t, err)

	cmd := exec.Command("git", "rev-list", "--max-parents=0", "HEAD")
	cmd.Dir = root
	out, err := cmd.Output()
	require.NoError(t, err)
	rootCommit := string(out[:40])

	ancestor, err := repo.IsAncestor(ctx, rootCommit, head)
	require.NoError(t, err)
	assert.True(t, ancestor)

	// Feature tip is not reachable from main.
	featureTip, err := repo.run(ctx, repo.timeout, "rev-parse", "feature")
	require.NoError(t, err)
	ancestor, err = repo.IsAncestor(ctx, featureTip, head)
	require.NoError(t, err)
	assert.False(t, ancestor)

	// Second lookup hits the ancestry cache.
	again, err := repo.IsAncestor(ctx, rootCommit, head)
	require.NoError(t, err)
	assert.True(t, again)
}

func TestRepo_MergeBaseAndChangedFiles(t *testing.T) {
	_, repo := initTestRepo(t)
	ctx := context.Background()

	base, err := repo.MergeBase(ctx, "main", "feature")
	require.NoError(t, err)
	assert.Len(t, base, 40)

	changed, err := repo.ChangedFiles(ctx, base, "feature")
	require.NoError(t, err)
	assert.Equal(t, []string{"feature_only.go"}, changed)
}

func TestRepo_CommandErrorCarriesStderr(t *testing.T) {
	_, repo := initTestRepo(t)

	_, err := repo.run(context.Background(), repo.timeout, "rev-parse", "no-such-ref")
	require.Error(t, err)
	assert.Equal(t, trawlerr.ErrCodeGitCommand, trawlerr.GetCode(err))
}

func TestIsBenignUnavailable(t *testing.T) {
	assert.True(t, IsBenignUnavailable(errors.New("fatal: detected dubious ownership in repository")))
	assert.True(t, IsBenignUnavailable(errors.New("fatal: not a git repository")))
	assert.False(t, IsBenignUnavailable(errors.New("connection reset")))
	assert.False(t, IsBenignUnavailable(nil))
}

func TestClone(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	src, _ := initTestRepo(t)
	dest := filepath.Join(t.TempDir(), "clone")

	require.NoError(t, Clone(context.Background(), src, dest))

	cloned := NewRepo(dest)
	assert.True(t, cloned.IsRepo(context.Background()))

	err := Clone(context.Background(), filepath.Join(t.TempDir(), "missing"), filepath.Join(t.TempDir(), "x"))
	assert.Equal(t, trawlerr.ErrCodeGitCommand, trawlerr.GetCode(err))
}
