package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/codetrawl/codetrawl/internal/chunk"
	"github.com/codetrawl/codetrawl/internal/config"
	"github.com/codetrawl/codetrawl/internal/embed"
	"github.com/codetrawl/codetrawl/internal/gittopo"
	"github.com/codetrawl/codetrawl/internal/index"
	"github.com/codetrawl/codetrawl/internal/scanner"
	"github.com/codetrawl/codetrawl/internal/store"
)

// env holds everything a command needs to index or search one project.
type env struct {
	root     string
	cfg      *config.Config
	store    store.ContentStore
	embedder embed.Embedder
	chunker  chunk.Chunker
	topo     gittopo.Topology
}

// newEnv resolves the project root and wires store, embedder, and git
// topology from configuration. plain forces git-unaware indexing even inside
// a repository.
func newEnv(rootArg string, plain bool) (*env, error) {
	root := rootArg
	if root == "" {
		root = "."
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving project root: %w", err)
	}
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("project root %s is not a directory", root)
	}

	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}

	cs, err := openStore(cfg, root)
	if err != nil {
		return nil, err
	}

	var emb embed.Embedder = embed.NewStaticEmbedder()
	if cfg.Embedder.CacheSize > 0 {
		emb = embed.NewCachedEmbedder(emb, cfg.Embedder.CacheSize)
	}

	e := &env{
		root:     root,
		cfg:      cfg,
		store:    cs,
		embedder: emb,
		chunker:  chunk.NewLineChunker(),
	}
	if !plain {
		e.topo = gittopo.NewRepo(root)
	}
	return e, nil
}

func (e *env) close() {
	if e.embedder != nil {
		e.embedder.Close()
	}
	if e.store != nil {
		e.store.Close()
	}
}

func (e *env) runner(limit int) *index.Runner {
	return index.NewRunner(index.RunnerConfig{
		Root:            e.root,
		Store:           e.store,
		Embedder:        e.embedder,
		Chunker:         e.chunker,
		Scanner:         scanner.New(),
		Topo:            e.topo,
		ExcludePatterns: e.cfg.Paths.Exclude,
		Limit:           limit,
	})
}

func openStore(cfg *config.Config, root string) (store.ContentStore, error) {
	collection := cfg.Store.Collection
	if collection == "" {
		collection = "codetrawl-" + sanitizeCollectionName(filepath.Base(root))
	}
	switch cfg.Store.Backend {
	case "memory":
		return store.NewMemoryStore(cfg.Embedder.Dimensions), nil
	default:
		return store.NewQdrantStore(cfg.Store.URL, collection, cfg.Embedder.Dimensions)
	}
}

func sanitizeCollectionName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	if b.Len() == 0 {
		return "project"
	}
	return b.String()
}
