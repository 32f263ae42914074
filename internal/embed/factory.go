package embed

import (
	"context"
	"fmt"
)

// Options configures New.
type Options struct {
	// Backend is one of BackendAuto, BackendONNXLike, BackendHash.
	Backend string
	// Dim is the configured embedding_dim every vector is force-fit to.
	// 0 means "use the backend's native dimension".
	Dim int
	// ONNXLibraryPath is the shared library path for the onnx-like
	// backend. Required when Backend is BackendONNXLike, optional (best
	// effort) when Backend is BackendAuto.
	ONNXLibraryPath string
	// ModelName overrides the model label recorded in index_metadata.
	ModelName string
	// CacheSize configures the query-embedding LRU cache, 0 for default,
	// negative to disable caching entirely.
	CacheSize int
}

// Result carries the constructed embedder plus the resolved model label,
// which may differ from the requested backend when auto fell back.
type Result struct {
	Embedder        Embedder
	ModelLabel      string
	Dim             int
	Downgraded      bool
	DowngradeReason string
}

// New constructs an embedder for the requested backend. BackendAuto tries
// the onnx-like backend first and falls back to the deterministic hash
// backend on any initialization failure, recording the downgrade in
// Result rather than failing the caller outright.
func New(ctx context.Context, opts Options) (*Result, error) {
	switch opts.Backend {
	case "", BackendAuto:
		return newAuto(ctx, opts)
	case BackendONNXLike:
		e, err := NewONNXLikeEmbedder(ONNXLikeConfig{LibraryPath: opts.ONNXLibraryPath, ModelName: opts.ModelName})
		if err != nil {
			return nil, fmt.Errorf("embed: onnx-like backend unavailable: %w", err)
		}
		return finish(e, opts, false, "")
	case BackendHash:
		e := NewHashEmbedder(nativeHashDim(opts))
		return finish(e, opts, false, "")
	default:
		return nil, fmt.Errorf("embed: unknown backend %q", opts.Backend)
	}
}

func newAuto(ctx context.Context, opts Options) (*Result, error) {
	if opts.ONNXLibraryPath != "" {
		if e, err := NewONNXLikeEmbedder(ONNXLikeConfig{LibraryPath: opts.ONNXLibraryPath, ModelName: opts.ModelName}); err == nil {
			if e.Available(ctx) {
				return finish(e, opts, false, "")
			}
			_ = e.Close()
		}
	}

	e := NewHashEmbedder(nativeHashDim(opts))
	return finish(e, opts, true, "onnx-like backend unavailable, fell back to hash embeddings")
}

func nativeHashDim(opts Options) int {
	if opts.Dim > 0 {
		return opts.Dim
	}
	return DefaultHashDimensions
}

func finish(e Embedder, opts Options, downgraded bool, reason string) (*Result, error) {
	dim := opts.Dim
	if dim <= 0 {
		dim = e.Dimensions()
	}

	var final Embedder = withFit(e, opts.Dim)
	if opts.CacheSize >= 0 {
		final = NewCachedEmbedder(final, opts.CacheSize)
	}

	return &Result{
		Embedder:        final,
		ModelLabel:      e.ModelName(),
		Dim:             dim,
		Downgraded:      downgraded,
		DowngradeReason: reason,
	}, nil
}
