package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/codetrawl/codetrawl/internal/chunk"
	"github.com/codetrawl/codetrawl/internal/config"
	"github.com/codetrawl/codetrawl/internal/embed"
	"github.com/codetrawl/codetrawl/internal/gittopo"
	"github.com/codetrawl/codetrawl/internal/index"
	"github.com/codetrawl/codetrawl/internal/lifecycle"
	"github.com/codetrawl/codetrawl/internal/output"
	"github.com/codetrawl/codetrawl/internal/registry"
	"github.com/codetrawl/codetrawl/internal/scanner"
	"github.com/codetrawl/codetrawl/internal/store"
)

func newGlobalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "global",
		Short: "Manage globally indexed repositories",
		Long: `Global repositories are indexed centrally and refreshed on a schedule.
Each refresh builds a new index version and atomically swaps an alias over
to it; old versions are removed only once no query is reading them.

Repository names must end in "-global".`,
	}

	cmd.AddCommand(newGlobalAddCmd())
	cmd.AddCommand(newGlobalListCmd())
	cmd.AddCommand(newGlobalRemoveCmd())
	cmd.AddCommand(newGlobalRefreshCmd())
	cmd.AddCommand(newGlobalDaemonCmd())
	return cmd
}

// globalEnv wires the registry, alias manager, and lifecycle loops from
// the global data directory layout:
//
//	<data>/registry.json|registry.db
//	<data>/aliases/<name>.alias.json
//	<data>/sources/<name>/        checked-out or copied source
//	<data>/indexes/<name>/vNNN/   versioned index manifests
type globalEnv struct {
	cfg     *config.Config
	reg     registry.Registry
	aliases *registry.AliasManager
	cleanup *lifecycle.CleanupManager
	tracker *lifecycle.QueryTracker
}

func newGlobalEnv() (*globalEnv, error) {
	cwd, _ := os.Getwd()
	cfg, err := config.Load(cwd)
	if err != nil {
		return nil, err
	}
	reg, err := registry.Open(cfg.Global.RegistryBackend, cfg.Global.DataDir)
	if err != nil {
		return nil, err
	}
	aliases, err := registry.NewAliasManager(filepath.Join(cfg.Global.DataDir, "aliases"))
	if err != nil {
		reg.Close()
		return nil, err
	}
	tracker := lifecycle.NewQueryTracker()
	return &globalEnv{
		cfg:     cfg,
		reg:     reg,
		aliases: aliases,
		cleanup: lifecycle.NewCleanupManager(tracker, cfg.Global.CleanupInterval),
		tracker: tracker,
	}, nil
}

func (g *globalEnv) close() { g.reg.Close() }

func (g *globalEnv) sourceDir(name string) string {
	return filepath.Join(g.cfg.Global.DataDir, "sources", name)
}

func (g *globalEnv) indexRoot() string {
	return filepath.Join(g.cfg.Global.DataDir, "indexes")
}

func (g *globalEnv) scheduler(build lifecycle.IndexBuilder) (*lifecycle.RefreshScheduler, error) {
	return lifecycle.NewRefreshScheduler(lifecycle.RefreshConfig{
		Registry:   g.reg,
		Aliases:    g.aliases,
		Cleanup:    g.cleanup,
		Build:      build,
		Interval:   g.cfg.Global.RefreshInterval,
		SourceRoot: filepath.Join(g.cfg.Global.DataDir, "sources"),
		IndexRoot:  g.indexRoot(),
	})
}

// indexManifest records where a version's vectors live. The directory is the
// lifecycle unit; the collection holds the actual points.
type indexManifest struct {
	Collection string    `json:"collection"`
	IndexedAt  time.Time `json:"indexed_at"`
}

// buildIndex indexes sourceDir into a collection derived from destDir and
// writes a manifest into destDir.
func (g *globalEnv) buildIndex(ctx context.Context, sourceDir, destDir string) error {
	collection := "codetrawl-" + sanitizeCollectionName(
		filepath.Base(filepath.Dir(destDir))+"-"+filepath.Base(destDir))

	cs, err := openGlobalStore(g.cfg, collection)
	if err != nil {
		return err
	}
	defer cs.Close()

	var emb embed.Embedder = embed.NewStaticEmbedder()
	if g.cfg.Embedder.CacheSize > 0 {
		emb = embed.NewCachedEmbedder(emb, g.cfg.Embedder.CacheSize)
	}
	defer emb.Close()

	var topo gittopo.Topology
	if repo := gittopo.NewRepo(sourceDir); repo.IsRepo(ctx) {
		topo = repo
	}

	runner := index.NewRunner(index.RunnerConfig{
		Root:            sourceDir,
		Store:           cs,
		Embedder:        emb,
		Chunker:         chunk.NewLineChunker(),
		Scanner:         scanner.New(),
		Topo:            topo,
		ExcludePatterns: g.cfg.Paths.Exclude,
	})
	if _, err := runner.Run(ctx); err != nil {
		return err
	}

	manifest := indexManifest{Collection: collection, IndexedAt: time.Now().UTC()}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(destDir, "manifest.json"), data, 0o644)
}

func openGlobalStore(cfg *config.Config, collection string) (store.ContentStore, error) {
	if cfg.Store.Backend == "memory" {
		return store.NewMemoryStore(cfg.Embedder.Dimensions), nil
	}
	return store.NewQdrantStore(cfg.Store.URL, collection, cfg.Embedder.Dimensions)
}

func newGlobalAddCmd() *cobra.Command {
	var (
		url      string
		temporal bool
	)

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Register a repository for global indexing",
		Long: `Add registers a repository under a name ending in "-global", builds its
first index version, and creates the alias. With --url the source is cloned
and refreshed by pulling; without it the source directory is refreshed by
rescanning its content.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			g, err := newGlobalEnv()
			if err != nil {
				return err
			}
			defer g.close()

			out := output.New(cmd.OutOrStdout())
			ctx := cmd.Context()

			sourceDir := g.sourceDir(name)
			if url != "" {
				if _, err := os.Stat(filepath.Join(sourceDir, ".git")); os.IsNotExist(err) {
					out.Statusf("📥", "Cloning %s", url)
					if err := gittopo.Clone(ctx, url, sourceDir); err != nil {
						return err
					}
				}
			} else if _, err := os.Stat(sourceDir); err != nil {
				return fmt.Errorf("source directory %s does not exist; create it or pass --url", sourceDir)
			}

			entry := registry.Entry{
				RepoName:       name,
				AliasName:      name,
				RepoURL:        url,
				EnableTemporal: temporal,
			}

			versionDir := filepath.Join(g.indexRoot(), name,
				"v"+time.Now().UTC().Format("20060102T150405"))
			if err := os.MkdirAll(versionDir, 0o755); err != nil {
				return err
			}
			out.Statusf("🔍", "Building initial index for %s", name)
			if err := g.buildIndex(ctx, sourceDir, versionDir); err != nil {
				os.RemoveAll(versionDir)
				return err
			}

			entry.IndexPath = versionDir
			if err := g.reg.Add(entry); err != nil {
				return err
			}
			if err := g.aliases.Create(name, name, versionDir); err != nil {
				return err
			}

			out.Successf("Registered %s -> %s", name, versionDir)
			return nil
		},
	}

	cmd.Flags().StringVar(&url, "url", "", "Git remote to clone and pull from")
	cmd.Flags().BoolVar(&temporal, "temporal", false, "Refresh this repository on the global schedule")
	return cmd
}

func newGlobalListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered global repositories",
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := newGlobalEnv()
			if err != nil {
				return err
			}
			defer g.close()

			entries, err := g.reg.List()
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No global repositories registered.")
				return nil
			}
			for _, e := range entries {
				refresh := "never"
				if !e.LastRefresh.IsZero() {
					refresh = e.LastRefresh.Format(time.RFC3339)
				}
				mode := "rescan"
				if e.RepoURL != "" {
					mode = "git"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\ttemporal=%v\tlast_refresh=%s\n\t%s\n",
					e.RepoName, mode, e.EnableTemporal, refresh, e.IndexPath)
			}
			return nil
		},
	}
}

func newGlobalRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <name>",
		Short: "Unregister a global repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			g, err := newGlobalEnv()
			if err != nil {
				return err
			}
			defer g.close()

			entry, ok, err := g.reg.Get(name)
			if err != nil {
				return err
			}
			if err := g.reg.Remove(name); err != nil {
				return err
			}
			if err := g.aliases.Remove(name); err != nil {
				return err
			}
			if ok && entry.IndexPath != "" {
				g.cleanup.Schedule(entry.IndexPath)
				g.cleanup.Sweep()
			}
			output.New(cmd.OutOrStdout()).Successf("Removed %s", name)
			return nil
		},
	}
}

func newGlobalRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh [name]",
		Short: "Refresh one or all global repositories now",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := newGlobalEnv()
			if err != nil {
				return err
			}
			defer g.close()

			sched, err := g.scheduler(g.buildIndex)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if len(args) == 1 {
				entry, ok, err := g.reg.Get(args[0])
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("repository %q is not registered", args[0])
				}
				if err := sched.RefreshOne(ctx, entry); err != nil {
					return err
				}
			} else {
				sched.RefreshAll(ctx)
			}
			g.cleanup.Sweep()
			output.New(cmd.OutOrStdout()).Success("Refresh complete")
			return nil
		},
	}
}

func newGlobalDaemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run the refresh and cleanup loops until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := newGlobalEnv()
			if err != nil {
				return err
			}
			defer g.close()

			sched, err := g.scheduler(g.buildIndex)
			if err != nil {
				return err
			}

			g.cleanup.Start()
			defer g.cleanup.Stop()
			sched.Start()
			defer sched.Stop()

			out := output.New(cmd.OutOrStdout())
			out.Statusf("⏳", "Refresh daemon running (interval %s)", g.cfg.Global.RefreshInterval)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			<-ctx.Done()
			out.Status("", "shutting down")
			return nil
		},
	}
}
