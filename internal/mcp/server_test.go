package mcp

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codetrawl/codetrawl/internal/embed"
	"github.com/codetrawl/codetrawl/internal/index"
	"github.com/codetrawl/codetrawl/internal/lifecycle"
	"github.com/codetrawl/codetrawl/internal/search"
	"github.com/codetrawl/codetrawl/internal/store"
)

// mainTopo pins the searcher to branch "main" so branch visibility is in
// effect during tool-handler tests.
type mainTopo struct{}

func (mainTopo) IsRepo(ctx context.Context) bool                   { return true }
func (mainTopo) CurrentBranch(ctx context.Context) (string, error) { return "main", nil }
func (mainTopo) CurrentCommit(ctx context.Context) (string, error) { return "head", nil }
func (mainTopo) MergeBase(ctx context.Context, a, b string) (string, error) {
	return "head", nil
}
func (mainTopo) ChangedFiles(ctx context.Context, old, new string) ([]string, error) {
	return nil, nil
}
func (mainTopo) LsTree(ctx context.Context, ref string) (map[string]struct{}, error) {
	return map[string]struct{}{"pkg/auth/login.go": {}}, nil
}
func (mainTopo) IsAncestor(ctx context.Context, ancestor, descendant string) (bool, error) {
	return true, nil
}
func (mainTopo) Branches(ctx context.Context) ([]string, error) {
	return []string{"main"}, nil
}

func newTestServer(t *testing.T) (*Server, store.ContentStore) {
	t.Helper()
	ctx := context.Background()

	cs := store.NewMemoryStore(embed.StaticDimensions)
	emb := embed.NewStaticEmbedder()

	seed := func(path, lang, content string, hidden []string) {
		vec, err := emb.Embed(ctx, content)
		require.NoError(t, err)
		p := &store.ContentPoint{
			ID:             store.PointID(path, 0, fmt.Sprintf("%x", len(content))),
			Type:           store.PointTypeContent,
			Path:           path,
			Language:       lang,
			Content:        content,
			HiddenBranches: hidden,
		}
		require.NoError(t, cs.Upsert(ctx, []*store.ContentPoint{p}, [][]float32{vec}))
	}
	seed("pkg/auth/login.go", "go", "func Login(user, password string) error", nil)
	seed("pkg/auth/old_login.go", "go", "func LegacyLogin(user string)", []string{"main"})

	searcher := search.NewSearcher(cs, emb, mainTopo{})
	srv, err := NewServer(searcher, cs, lifecycle.NewQueryTracker(), t.TempDir())
	require.NoError(t, err)
	return srv, cs
}

func TestNewServer_RequiresSearcher(t *testing.T) {
	_, err := NewServer(nil, nil, nil, "")
	require.Error(t, err)
}

func TestNewServer_DefaultsTracker(t *testing.T) {
	cs := store.NewMemoryStore(embed.StaticDimensions)
	searcher := search.NewSearcher(cs, embed.NewStaticEmbedder(), nil)

	srv, err := NewServer(searcher, cs, nil, t.TempDir())
	require.NoError(t, err)
	assert.NotNil(t, srv.tracker)
}

func TestSearchCodeHandler(t *testing.T) {
	srv, _ := newTestServer(t)
	ctx := context.Background()

	_, out, err := srv.searchCodeHandler(ctx, nil, SearchCodeInput{Query: "user login password"})
	require.NoError(t, err)
	require.NotEmpty(t, out.Results)
	for _, r := range out.Results {
		assert.NotEqual(t, "pkg/auth/old_login.go", r.FilePath)
		assert.Greater(t, r.Score, 0.0)
	}

	_, _, err = srv.searchCodeHandler(ctx, nil, SearchCodeInput{})
	require.Error(t, err)
}

func TestSearchCodeHandler_ReleasesQueryReference(t *testing.T) {
	srv, _ := newTestServer(t)

	_, _, err := srv.searchCodeHandler(context.Background(), nil, SearchCodeInput{Query: "login"})
	require.NoError(t, err)
	assert.Empty(t, srv.tracker.ActivePaths())
}

func TestIndexStatusHandler(t *testing.T) {
	srv, cs := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, cs.SetState(ctx, index.StateKeyMode, "git"))

	_, out, err := srv.indexStatusHandler(ctx, nil, IndexStatusInput{})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), out.PointCount)
	assert.Equal(t, embed.StaticDimensions, out.VectorSize)
	assert.Equal(t, "git", out.IndexMode)
}

func TestIndexStatusHandler_NoStore(t *testing.T) {
	cs := store.NewMemoryStore(embed.StaticDimensions)
	searcher := search.NewSearcher(cs, embed.NewStaticEmbedder(), nil)
	srv, err := NewServer(searcher, nil, nil, t.TempDir())
	require.NoError(t, err)

	_, _, err = srv.indexStatusHandler(context.Background(), nil, IndexStatusInput{})
	require.Error(t, err)
}
