package embed

import (
	"context"
	"fmt"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
)

// ONNXLikeConfig configures the dlopen-based backend. The library at
// LibraryPath must export the two symbols documented on onnxFuncs below.
type ONNXLikeConfig struct {
	LibraryPath string
	ModelName   string
}

// onnxFuncs is the C ABI an onnx-like shared library must export:
//
//	int32_t rifflux_embedding_dim(void);
//	int32_t rifflux_embed(const char *text, int32_t text_len, float *out, int32_t out_len);
//
// rifflux_embed writes at most out_len float32s to out and returns the
// number written, or a negative value on failure.
type onnxFuncs struct {
	dim   func() int32
	embed func(text string, textLen int32, out unsafe.Pointer, outLen int32) int32
}

// ONNXLikeEmbedder calls into a locally present shared library through
// purego, with no cgo and no network access. It is the "onnx-like" backend:
// a documented C ABI that a real ONNX Runtime wrapper (or any other native
// embedding library) can be built against.
type ONNXLikeEmbedder struct {
	mu     sync.RWMutex
	closed bool

	handle    uintptr
	funcs     onnxFuncs
	dims      int
	modelName string
}

var _ Embedder = (*ONNXLikeEmbedder)(nil)

// NewONNXLikeEmbedder dlopens cfg.LibraryPath and resolves the required
// symbols. It fails fast rather than silently degrading; callers that want
// fallback behavior should use the auto backend instead.
func NewONNXLikeEmbedder(cfg ONNXLikeConfig) (*ONNXLikeEmbedder, error) {
	if cfg.LibraryPath == "" {
		return nil, fmt.Errorf("embed: onnx-like backend requires a library path")
	}

	handle, err := purego.Dlopen(cfg.LibraryPath, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, fmt.Errorf("embed: dlopen %s: %w", cfg.LibraryPath, err)
	}

	var funcs onnxFuncs
	purego.RegisterLibFunc(&funcs.dim, handle, "rifflux_embedding_dim")
	purego.RegisterLibFunc(&funcs.embed, handle, "rifflux_embed")

	dims := int(funcs.dim())
	if dims <= 0 {
		_ = purego.Dlclose(handle)
		return nil, fmt.Errorf("embed: onnx-like library reported invalid dimension %d", dims)
	}

	modelName := cfg.ModelName
	if modelName == "" {
		modelName = BackendONNXLike
	}

	return &ONNXLikeEmbedder{
		handle:    handle,
		funcs:     funcs,
		dims:      dims,
		modelName: modelName,
	}, nil
}

func (e *ONNXLikeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil, fmt.Errorf("embed: onnx-like embedder is closed")
	}

	out := make([]float32, e.dims)
	n := e.funcs.embed(text, int32(len(text)), unsafe.Pointer(&out[0]), int32(e.dims))
	if n < 0 {
		return nil, fmt.Errorf("embed: native embed call failed (code %d)", n)
	}
	return normalizeVector(out), nil
}

func (e *ONNXLikeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	results := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("embed text %d: %w", i, err)
		}
		results[i] = v
	}
	return results, nil
}

func (e *ONNXLikeEmbedder) Dimensions() int { return e.dims }

func (e *ONNXLikeEmbedder) ModelName() string { return e.modelName }

func (e *ONNXLikeEmbedder) Available(_ context.Context) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.closed
}

func (e *ONNXLikeEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	return purego.Dlclose(e.handle)
}
