// Package mcpserver adapts the engine's search, index, and store
// operations onto the Model Context Protocol.
package mcpserver

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rifflux/rifflux/internal/engine"
	"github.com/rifflux/rifflux/internal/errs"
	"github.com/rifflux/rifflux/internal/index"
	"github.com/rifflux/rifflux/internal/search"
)

// Server bridges MCP clients to a single Engine.
type Server struct {
	mcp    *mcp.Server
	engine *engine.Engine
	logger *slog.Logger
}

// NewServer constructs a Server wrapping eng and registers its tools.
func NewServer(eng *engine.Engine, name, version string) (*Server, error) {
	if eng == nil {
		return nil, errs.New(errs.InvalidInput, "engine is required")
	}

	s := &Server{
		engine: eng,
		logger: slog.Default(),
	}
	s.mcp = mcp.NewServer(&mcp.Implementation{Name: name, Version: version}, nil)
	s.registerTools()
	return s, nil
}

// SearchInput is the input schema for the search tool.
type SearchInput struct {
	Query string `json:"query" jsonschema:"the text to search for"`
	TopK  int    `json:"top_k,omitempty" jsonschema:"maximum number of results, 1-100, default 10"`
	Mode  string `json:"mode,omitempty" jsonschema:"lexical, semantic, or hybrid; default hybrid"`
}

// SearchResultOutput is one assembled search hit.
type SearchResultOutput struct {
	ChunkID      string   `json:"chunk_id"`
	Path         string   `json:"path"`
	HeadingPath  string   `json:"heading_path,omitempty"`
	ChunkIndex   int      `json:"chunk_index"`
	Content      string   `json:"content"`
	BM25         *float64 `json:"bm25,omitempty"`
	Cosine       *float64 `json:"cosine,omitempty"`
	RRF          *float64 `json:"rrf,omitempty"`
	LexicalRank  *int     `json:"lexical_rank,omitempty"`
	SemanticRank *int     `json:"semantic_rank,omitempty"`
}

// SearchOutput is the output schema for the search tool.
type SearchOutput struct {
	Query          string               `json:"query"`
	Mode           string               `json:"mode"`
	Count          int                  `json:"count"`
	EmbeddingModel string               `json:"embedding_model"`
	Results        []SearchResultOutput `json:"results"`
}

// ReindexInput is the input schema for the reindex tool. Precedence:
// non-empty Paths > Path > current working directory.
type ReindexInput struct {
	Path         string   `json:"path,omitempty" jsonschema:"a single location to reindex"`
	Paths        []string `json:"paths,omitempty" jsonschema:"multiple locations to reindex; takes precedence over path"`
	Force        bool     `json:"force,omitempty" jsonschema:"rebuild every file's chunks and embeddings regardless of change detection"`
	PruneMissing *bool    `json:"prune_missing,omitempty" jsonschema:"delete stored files no longer observed on disk; default true"`
}

// ReindexOutput is the output schema for the reindex tool.
type ReindexOutput struct {
	IndexedFiles     int      `json:"indexed_files"`
	SkippedFiles     int      `json:"skipped_files"`
	DeletedFiles     int      `json:"deleted_files"`
	IndexedPaths     []string `json:"indexed_paths,omitempty"`
	EmbeddingModel   string   `json:"embedding_model"`
	EmbeddingBackend string   `json:"embedding_backend"`
	GitFingerprint   string   `json:"git_fingerprint,omitempty"`
}

// GetChunkInput is the input schema for the get_chunk tool.
type GetChunkInput struct {
	ChunkID string `json:"chunk_id" jsonschema:"the opaque chunk_id to fetch"`
}

// GetChunkOutput mirrors a single stored chunk row.
type GetChunkOutput struct {
	ChunkID     string `json:"chunk_id"`
	Path        string `json:"path"`
	ChunkIndex  int    `json:"chunk_index"`
	HeadingPath string `json:"heading_path,omitempty"`
	Content     string `json:"content"`
	TokenCount  int    `json:"token_count"`
}

// GetFileInput is the input schema for the get_file tool.
type GetFileInput struct {
	Path string `json:"path" jsonschema:"the canonical path recorded at index time"`
}

// GetFileOutput mirrors a single stored file row.
type GetFileOutput struct {
	Path      string `json:"path"`
	MTimeNS   int64  `json:"mtime_ns"`
	SizeBytes int64  `json:"size_bytes"`
	SHA256    string `json:"sha256"`
}

// IndexStatusInput is the (empty) input schema for the index_status tool.
type IndexStatusInput struct{}

// IndexStatusOutput reports current index size, embedder identity, and
// watcher state.
type IndexStatusOutput struct {
	FileCount        int               `json:"file_count"`
	ChunkCount       int               `json:"chunk_count"`
	EmbeddingModel   string            `json:"embedding_model"`
	EmbeddingBackend string            `json:"embedding_backend"`
	WatcherState     string            `json:"watcher_state"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

// registerTools registers the five tools the server exposes.
func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search",
		Description: "Search the indexed corpus with lexical, semantic, or fused hybrid ranking.",
	}, s.mcpSearchHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "reindex",
		Description: "Scan one or more locations, rebuild changed files' chunks and embeddings, and optionally prune deleted files.",
	}, s.mcpReindexHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_chunk",
		Description: "Fetch a single stored chunk by its chunk_id.",
	}, s.mcpGetChunkHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_file",
		Description: "Fetch a single tracked file's record by path.",
	}, s.mcpGetFileHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "index_status",
		Description: "Report index size, embedder identity, and file watcher state.",
	}, s.mcpIndexStatusHandler)
}

func (s *Server) mcpSearchHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (
	*mcp.CallToolResult, SearchOutput, error,
) {
	if input.Query == "" {
		return nil, SearchOutput{}, NewInvalidParamsError("query is required")
	}

	opts := search.Options{TopK: input.TopK, Mode: search.Mode(input.Mode)}
	if opts.Mode == "" {
		opts.Mode = search.ModeHybrid
	}

	if err := s.engine.MaybeAutoReindex(ctx); err != nil {
		return nil, SearchOutput{}, MapError(err)
	}

	results, err := s.engine.Search.Search(ctx, input.Query, opts)
	if err != nil {
		return nil, SearchOutput{}, MapError(err)
	}

	out := SearchOutput{
		Query:          input.Query,
		Mode:           string(opts.Mode),
		Count:          len(results),
		EmbeddingModel: s.engine.Embedder.ModelName(),
		Results:        make([]SearchResultOutput, len(results)),
	}
	for i, r := range results {
		out.Results[i] = SearchResultOutput{
			ChunkID:      r.ChunkID,
			Path:         r.Path,
			HeadingPath:  r.HeadingPath,
			ChunkIndex:   r.ChunkIndex,
			Content:      r.Content,
			BM25:         r.ScoreBreakdown.BM25,
			Cosine:       r.ScoreBreakdown.Cosine,
			RRF:          r.ScoreBreakdown.RRF,
			LexicalRank:  r.ScoreBreakdown.LexicalRank,
			SemanticRank: r.ScoreBreakdown.SemanticRank,
		}
	}
	return nil, out, nil
}

func (s *Server) mcpReindexHandler(ctx context.Context, _ *mcp.CallToolRequest, input ReindexInput) (
	*mcp.CallToolResult, ReindexOutput, error,
) {
	paths, err := resolveReindexPaths(input)
	if err != nil {
		return nil, ReindexOutput{}, NewInvalidParamsError(err.Error())
	}

	pruneMissing := true
	if input.PruneMissing != nil {
		pruneMissing = *input.PruneMissing
	}

	result, err := s.engine.Reindex(ctx, paths, index.Options{
		Force:        input.Force,
		PruneMissing: pruneMissing,
	})
	if err != nil {
		return nil, ReindexOutput{}, MapError(err)
	}

	out := ReindexOutput{
		IndexedFiles:     result.IndexedFiles,
		SkippedFiles:     result.SkippedFiles,
		DeletedFiles:     result.DeletedFiles,
		IndexedPaths:     paths,
		EmbeddingModel:   s.engine.Embedder.ModelName(),
		EmbeddingBackend: string(s.engine.Config.EmbeddingBackend),
		GitFingerprint:   result.GitFingerprint,
	}
	return nil, out, nil
}

// resolveReindexPaths applies the reindex tool's path precedence:
// input.Paths, if given, wins over input.Path, which wins over cwd.
func resolveReindexPaths(input ReindexInput) ([]string, error) {
	if len(input.Paths) > 0 {
		return input.Paths, nil
	}
	if input.Path != "" {
		return []string{input.Path}, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolve current directory: %w", err)
	}
	return []string{cwd}, nil
}

func (s *Server) mcpGetChunkHandler(ctx context.Context, _ *mcp.CallToolRequest, input GetChunkInput) (
	*mcp.CallToolResult, GetChunkOutput, error,
) {
	if input.ChunkID == "" {
		return nil, GetChunkOutput{}, NewInvalidParamsError("chunk_id is required")
	}
	c, err := s.engine.Store.GetChunk(ctx, input.ChunkID)
	if err != nil {
		return nil, GetChunkOutput{}, MapError(err)
	}
	return nil, GetChunkOutput{
		ChunkID:     c.ChunkID,
		Path:        c.Path,
		ChunkIndex:  c.ChunkIndex,
		HeadingPath: c.HeadingPath,
		Content:     c.Content,
		TokenCount:  c.TokenCount,
	}, nil
}

func (s *Server) mcpGetFileHandler(ctx context.Context, _ *mcp.CallToolRequest, input GetFileInput) (
	*mcp.CallToolResult, GetFileOutput, error,
) {
	if input.Path == "" {
		return nil, GetFileOutput{}, NewInvalidParamsError("path is required")
	}
	f, err := s.engine.Store.GetFile(ctx, input.Path)
	if err != nil {
		return nil, GetFileOutput{}, MapError(err)
	}
	return nil, GetFileOutput{
		Path:      f.Path,
		MTimeNS:   f.MTimeNS,
		SizeBytes: f.SizeBytes,
		SHA256:    f.SHA256,
	}, nil
}

func (s *Server) mcpIndexStatusHandler(ctx context.Context, _ *mcp.CallToolRequest, _ IndexStatusInput) (
	*mcp.CallToolResult, IndexStatusOutput, error,
) {
	stats, err := s.engine.Store.Stats(ctx)
	if err != nil {
		return nil, IndexStatusOutput{}, MapError(err)
	}
	metadata, err := s.engine.Store.AllMetadata(ctx)
	if err != nil {
		return nil, IndexStatusOutput{}, MapError(err)
	}

	return nil, IndexStatusOutput{
		FileCount:        stats.FileCount,
		ChunkCount:       stats.ChunkCount,
		EmbeddingModel:   s.engine.Embedder.ModelName(),
		EmbeddingBackend: string(s.engine.Config.EmbeddingBackend),
		WatcherState:     string(s.engine.WatcherState()),
		Metadata:         metadata,
	}, nil
}

// Serve runs the MCP server over stdio until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("starting mcp server", slog.String("transport", "stdio"))
	err := s.mcp.Run(ctx, &mcp.StdioTransport{})
	if err != nil && err != context.Canceled {
		s.logger.Error("mcp server stopped with error", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("mcp server stopped")
	return nil
}

// Close releases server resources. The MCP SDK server itself has no
// separate teardown; it stops when ctx passed to Serve is cancelled.
func (s *Server) Close() error {
	return nil
}
