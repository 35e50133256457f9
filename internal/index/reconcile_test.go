package index

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codetrawl/codetrawl/internal/chunk"
	"github.com/codetrawl/codetrawl/internal/embed"
	trawlerr "github.com/codetrawl/codetrawl/internal/errors"
	"github.com/codetrawl/codetrawl/internal/scanner"
	"github.com/codetrawl/codetrawl/internal/store"
)

func TestFileState_String(t *testing.T) {
	assert.Equal(t, "up_to_date", StateUpToDate.String())
	assert.Equal(t, "missing", StateMissing.String())
	assert.Equal(t, "modified", StateModified.String())
	assert.Equal(t, "deleted", StateDeleted.String())
}

func TestWatermarkKey(t *testing.T) {
	assert.Equal(t, "watermark:main", WatermarkKey("main"))
	assert.Equal(t, "watermark:release/2.1", WatermarkKey("release/2.1"))
}

func TestCheckMode(t *testing.T) {
	ctx := context.Background()

	t.Run("first run records the mode", func(t *testing.T) {
		cs := store.NewMemoryStore(embed.StaticDimensions)
		require.NoError(t, CheckMode(ctx, cs, true))

		mode, err := cs.GetState(ctx, StateKeyMode)
		require.NoError(t, err)
		assert.Equal(t, ModeGit, mode)
	})

	t.Run("same mode passes", func(t *testing.T) {
		cs := store.NewMemoryStore(embed.StaticDimensions)
		require.NoError(t, CheckMode(ctx, cs, false))
		require.NoError(t, CheckMode(ctx, cs, false))
	})

	t.Run("mode mismatch is fatal in both directions", func(t *testing.T) {
		cs := store.NewMemoryStore(embed.StaticDimensions)
		require.NoError(t, CheckMode(ctx, cs, true))

		err := CheckMode(ctx, cs, false)
		require.Error(t, err)
		assert.True(t, trawlerr.IsFatal(err))

		cs = store.NewMemoryStore(embed.StaticDimensions)
		require.NoError(t, CheckMode(ctx, cs, false))
		assert.Error(t, CheckMode(ctx, cs, true))
	})
}

func TestClassify_MissingModifiedDeleted(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()
	cs := store.NewMemoryStore(embed.StaticDimensions)
	chunker := chunk.NewLineChunker()
	ix := NewIndexer(cs, embed.NewStaticEmbedder(), chunker)

	bc := &BranchContext{} // plain mode

	writeFile(t, root, "stable.go", "package stable\n")
	writeFile(t, root, "changing.go", "package changing // v1\n")

	files := []*scanner.FileInfo{
		{Path: "stable.go", AbsPath: filepath.Join(root, "stable.go"), Language: "go"},
		{Path: "changing.go", AbsPath: filepath.Join(root, "changing.go"), Language: "go"},
	}
	for _, f := range files {
		_, err := ix.IndexFile(ctx, bc, f)
		require.NoError(t, err)
	}

	// Mutate one file, delete the other's on-disk presence, add a new one.
	writeFile(t, root, "changing.go", "package changing // v2\n")
	writeFile(t, root, "brand_new.go", "package brandnew\n")

	current := []*scanner.FileInfo{
		files[0],
		files[1],
		{Path: "brand_new.go", AbsPath: filepath.Join(root, "brand_new.go"), Language: "go"},
	}

	result, err := Classify(ctx, cs, bc, current, chunker, 0)
	require.NoError(t, err)

	assert.Equal(t, 1, result.UpToDate)
	assert.Equal(t, 1, result.Missing)
	assert.Equal(t, 1, result.Modified)
	assert.Equal(t, 0, result.Deleted)
	assert.Equal(t, 3, result.Total())
	assert.Len(t, result.Work, 2)
}

func TestClassify_IndexedPathGoneFromDisk(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()
	cs := store.NewMemoryStore(embed.StaticDimensions)
	chunker := chunk.NewLineChunker()
	ix := NewIndexer(cs, embed.NewStaticEmbedder(), chunker)

	bc := &BranchContext{
		Branch:       "main",
		Commit:       "c1",
		LiveBranches: map[string]struct{}{"main": {}},
	}

	writeFile(t, root, "gone.go", "package gone\n")
	_, err := ix.IndexFile(ctx, bc, &scanner.FileInfo{
		Path: "gone.go", AbsPath: filepath.Join(root, "gone.go"), Language: "go",
	})
	require.NoError(t, err)

	// The file is no longer in the scan set.
	result, err := Classify(ctx, cs, bc, nil, chunker, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Deleted)
	require.Len(t, result.Work, 1)
	assert.Equal(t, StateDeleted, result.Work[0].State)
	assert.Equal(t, "gone.go", result.Work[0].Path)

	// Hide it, as the runner would, then reclassify: already-hidden paths
	// count as up to date.
	_, err = ix.HideFile(ctx, bc, "gone.go")
	require.NoError(t, err)

	result, err = Classify(ctx, cs, bc, nil, chunker, 0)
	require.NoError(t, err)
	assert.Zero(t, result.Deleted)
	assert.Equal(t, 1, result.UpToDate)
	assert.Empty(t, result.Work)
}

func TestClassify_HiddenContentNeedsReveal(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()
	cs := store.NewMemoryStore(embed.StaticDimensions)
	chunker := chunk.NewLineChunker()
	ix := NewIndexer(cs, embed.NewStaticEmbedder(), chunker)

	main := &BranchContext{Branch: "main", Commit: "c1",
		LiveBranches: map[string]struct{}{"main": {}, "feature": {}}}
	feature := &BranchContext{Branch: "feature", Commit: "c2",
		LiveBranches: main.LiveBranches}

	writeFile(t, root, "a.go", "package a\n")
	file := &scanner.FileInfo{Path: "a.go", AbsPath: filepath.Join(root, "a.go"), Language: "go"}

	_, err := ix.IndexFile(ctx, main, file)
	require.NoError(t, err)

	// Hide it on feature, as a branch switch away would.
	_, err = ix.HideFile(ctx, feature, "a.go")
	require.NoError(t, err)

	result, err := Classify(ctx, cs, feature, []*scanner.FileInfo{file}, chunker, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Modified, "hidden identical content classifies as modified (reveal)")

	result, err = Classify(ctx, cs, main, []*scanner.FileInfo{file}, chunker, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, result.UpToDate, "still visible on the branch it was indexed from")
}

func TestClassify_LimitCapsWorkList(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()
	cs := store.NewMemoryStore(embed.StaticDimensions)
	chunker := chunk.NewLineChunker()

	var files []*scanner.FileInfo
	for _, name := range []string{"a.go", "b.go", "c.go"} {
		writeFile(t, root, name, "package x // "+name+"\n")
		files = append(files, &scanner.FileInfo{Path: name, AbsPath: filepath.Join(root, name), Language: "go"})
	}

	result, err := Classify(ctx, cs, &BranchContext{}, files, chunker, 2)
	require.NoError(t, err)
	assert.Len(t, result.Work, 2)
	assert.Equal(t, 2, result.Missing)
}

func TestClassify_LimitDoesNotMarkPresentFilesDeleted(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()
	cs := store.NewMemoryStore(embed.StaticDimensions)
	chunker := chunk.NewLineChunker()
	ix := NewIndexer(cs, embed.NewStaticEmbedder(), chunker)

	bc := &BranchContext{}
	var files []*scanner.FileInfo
	for _, name := range []string{"a.go", "b.go", "c.go"} {
		writeFile(t, root, name, "package x // "+name+"\n")
		f := &scanner.FileInfo{Path: name, AbsPath: filepath.Join(root, name), Language: "go"}
		files = append(files, f)
		_, err := ix.IndexFile(ctx, bc, f)
		require.NoError(t, err)
	}

	writeFile(t, root, "a.go", "package x // a.go v2\n")

	// A cap on the work list truncates the classify loop early. Files past
	// the cap are still on disk and must not reach the deleted pass.
	result, err := Classify(ctx, cs, bc, files, chunker, 1)
	require.NoError(t, err)
	assert.Zero(t, result.Deleted)
	require.Len(t, result.Work, 1)
	assert.Equal(t, StateModified, result.Work[0].State)
	assert.Equal(t, "a.go", result.Work[0].File.Path)
}

func TestTruncatedFileIsReclassifiedAndHidden(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()
	cs := store.NewMemoryStore(embed.StaticDimensions)
	chunker := chunk.NewLineChunker()
	ix := NewIndexer(cs, embed.NewStaticEmbedder(), chunker)

	bc := &BranchContext{
		Branch:       "main",
		Commit:       "c1",
		LiveBranches: map[string]struct{}{"main": {}},
	}

	writeFile(t, root, "emptied.go", "package emptied\n")
	file := &scanner.FileInfo{Path: "emptied.go", AbsPath: filepath.Join(root, "emptied.go"), Language: "go"}
	_, err := ix.IndexFile(ctx, bc, file)
	require.NoError(t, err)

	writeFile(t, root, "emptied.go", "")

	result, err := Classify(ctx, cs, bc, []*scanner.FileInfo{file}, chunker, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Modified, "emptied content must not pass as up to date")

	stats, err := ix.IndexFile(ctx, bc, file)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Hidden)

	points, err := store.ScrollAll(ctx, cs, store.Filter{Type: store.PointTypeContent, Path: "emptied.go"})
	require.NoError(t, err)
	require.NotEmpty(t, points)
	for _, p := range points {
		assert.False(t, p.VisibleOn("main"))
	}

	// Settled now: the second pass has nothing left to do.
	result, err = Classify(ctx, cs, bc, []*scanner.FileInfo{file}, chunker, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, result.UpToDate)
	assert.Empty(t, result.Work)
}

func TestTruncatedFileIsDeletedWithoutGit(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()
	cs := store.NewMemoryStore(embed.StaticDimensions)
	chunker := chunk.NewLineChunker()
	ix := NewIndexer(cs, embed.NewStaticEmbedder(), chunker)

	bc := &BranchContext{} // plain mode

	writeFile(t, root, "emptied.go", "package emptied\n")
	file := &scanner.FileInfo{Path: "emptied.go", AbsPath: filepath.Join(root, "emptied.go"), Language: "go"}
	_, err := ix.IndexFile(ctx, bc, file)
	require.NoError(t, err)

	writeFile(t, root, "emptied.go", "   \n")

	result, err := Classify(ctx, cs, bc, []*scanner.FileInfo{file}, chunker, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Modified)

	stats, err := ix.IndexFile(ctx, bc, file)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Deleted)

	points, err := store.ScrollAll(ctx, cs, store.Filter{Type: store.PointTypeContent, Path: "emptied.go"})
	require.NoError(t, err)
	assert.Empty(t, points)

	result, err = Classify(ctx, cs, bc, []*scanner.FileInfo{file}, chunker, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, result.UpToDate)
	assert.Empty(t, result.Work)
}

func TestVerifyDeletion_BoundedOnLingeringPoints(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()
	cs := store.NewMemoryStore(embed.StaticDimensions)
	ix := NewIndexer(cs, embed.NewStaticEmbedder(), chunk.NewLineChunker())

	writeFile(t, root, "a.go", "package a\n")
	bc := &BranchContext{}
	_, err := ix.IndexFile(ctx, bc, &scanner.FileInfo{
		Path: "a.go", AbsPath: filepath.Join(root, "a.go"), Language: "go",
	})
	require.NoError(t, err)

	// Points still present: verification must give up after its bounded
	// attempts rather than hang.
	VerifyDeletion(ctx, cs, bc, "a.go")

	// And the clean case returns immediately.
	require.NoError(t, cs.DeletePoints(ctx, keysOf(t, ctx, cs, "a.go")))
	VerifyDeletion(ctx, cs, bc, "a.go")
}

func keysOf(t *testing.T, ctx context.Context, cs store.ContentStore, path string) []string {
	t.Helper()
	points, err := store.ScrollAll(ctx, cs, store.Filter{Type: store.PointTypeContent, Path: path})
	require.NoError(t, err)
	ids := make([]string, len(points))
	for i, p := range points {
		ids[i] = p.ID
	}
	return ids
}
