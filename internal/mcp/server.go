// Package mcp exposes branch-scoped semantic search to AI clients over the
// Model Context Protocol.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/codetrawl/codetrawl/internal/index"
	"github.com/codetrawl/codetrawl/internal/lifecycle"
	"github.com/codetrawl/codetrawl/internal/search"
	"github.com/codetrawl/codetrawl/internal/store"
	"github.com/codetrawl/codetrawl/pkg/version"
)

// Server bridges MCP clients to the searcher. Every tool call holds a query
// reference for the root path so a concurrent refresh cannot delete the
// index out from under it.
type Server struct {
	mcp      *mcp.Server
	searcher *search.Searcher
	store    store.ContentStore
	tracker  *lifecycle.QueryTracker
	rootPath string
	logger   *slog.Logger
}

// SearchCodeInput defines the input schema for the search_code tool.
type SearchCodeInput struct {
	Query      string `json:"query" jsonschema:"the code search query to execute"`
	Language   string `json:"language,omitempty" jsonschema:"filter by programming language, e.g. go, python"`
	PathPrefix string `json:"path_prefix,omitempty" jsonschema:"restrict results to paths under this prefix"`
	Limit      int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 10"`
}

// SearchCodeOutput defines the output schema for the search_code tool.
type SearchCodeOutput struct {
	Results []SearchResultOutput `json:"results" jsonschema:"list of search results"`
}

// SearchResultOutput is a single hit with its location and score.
type SearchResultOutput struct {
	FilePath  string  `json:"file_path" jsonschema:"file path relative to repository root"`
	Content   string  `json:"content" jsonschema:"matched content snippet"`
	Score     float64 `json:"score" jsonschema:"similarity score between 0 and 1"`
	Language  string  `json:"language,omitempty" jsonschema:"detected language of the file"`
	LineStart int     `json:"line_start" jsonschema:"first line of the snippet"`
	LineEnd   int     `json:"line_end" jsonschema:"last line of the snippet"`
}

// IndexStatusInput defines the input schema for the index_status tool.
type IndexStatusInput struct{}

// IndexStatusOutput defines the output schema for the index_status tool.
type IndexStatusOutput struct {
	Collection string `json:"collection" jsonschema:"vector store collection name"`
	PointCount uint64 `json:"point_count" jsonschema:"number of points in the collection"`
	VectorSize int    `json:"vector_size" jsonschema:"embedding dimensionality"`
	IndexMode  string `json:"index_mode" jsonschema:"git or plain"`
}

// NewServer wires an MCP server over a searcher.
func NewServer(searcher *search.Searcher, cs store.ContentStore, tracker *lifecycle.QueryTracker, rootPath string) (*Server, error) {
	if searcher == nil {
		return nil, errors.New("searcher is required")
	}
	if tracker == nil {
		tracker = lifecycle.NewQueryTracker()
	}

	s := &Server{
		searcher: searcher,
		store:    cs,
		tracker:  tracker,
		rootPath: rootPath,
		logger:   slog.Default(),
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "codetrawl",
			Version: version.Version,
		},
		nil,
	)
	s.registerTools()
	return s, nil
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search_code",
		Description: "Semantic code search scoped to the currently checked-out git branch. Finds code by meaning rather than exact text. Results never include content that only exists on other branches.",
	}, s.searchCodeHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "index_status",
		Description: "Report the state of the code index: collection size, embedding dimensions, and whether the index is git-aware.",
	}, s.indexStatusHandler)

	s.logger.Debug("MCP tools registered", slog.Int("count", 2))
}

func (s *Server) searchCodeHandler(ctx context.Context, req *mcp.CallToolRequest, input SearchCodeInput) (
	*mcp.CallToolResult,
	SearchCodeOutput,
	error,
) {
	if input.Query == "" {
		return nil, SearchCodeOutput{}, fmt.Errorf("query parameter is required")
	}

	var results []search.Result
	err := s.tracker.Track(s.rootPath, func() error {
		var searchErr error
		results, searchErr = s.searcher.Search(ctx, input.Query, search.Options{
			Limit:      input.Limit,
			Language:   input.Language,
			PathPrefix: input.PathPrefix,
		})
		return searchErr
	})
	if err != nil {
		return nil, SearchCodeOutput{}, err
	}

	out := SearchCodeOutput{Results: make([]SearchResultOutput, 0, len(results))}
	for _, r := range results {
		out.Results = append(out.Results, SearchResultOutput{
			FilePath:  r.Path,
			Content:   r.Content,
			Score:     float64(r.Score),
			Language:  r.Language,
			LineStart: r.LineStart,
			LineEnd:   r.LineEnd,
		})
	}
	return nil, out, nil
}

func (s *Server) indexStatusHandler(ctx context.Context, req *mcp.CallToolRequest, input IndexStatusInput) (
	*mcp.CallToolResult,
	IndexStatusOutput,
	error,
) {
	if s.store == nil {
		return nil, IndexStatusOutput{}, fmt.Errorf("no content store configured")
	}
	info, err := s.store.CollectionInfo(ctx)
	if err != nil {
		return nil, IndexStatusOutput{}, err
	}
	mode, err := s.store.GetState(ctx, index.StateKeyMode)
	if err != nil {
		s.logger.Warn("reading index mode failed", slog.String("error", err.Error()))
	}
	return nil, IndexStatusOutput{
		Collection: info.Name,
		PointCount: info.PointCount,
		VectorSize: info.VectorSize,
		IndexMode:  mode,
	}, nil
}

// Serve runs the server over stdio until the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("starting MCP server", slog.String("transport", "stdio"))
	err := s.mcp.Run(ctx, &mcp.StdioTransport{})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("MCP server stopped with error", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("MCP server stopped")
	return nil
}
