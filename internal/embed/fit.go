package embed

import "context"

// fitEmbedder wraps an Embedder and force-fits every vector it returns to
// a fixed dimension, so index time and query time apply the exact same
// truncate/zero-pad rule regardless of what the wrapped backend natively
// emits.
type fitEmbedder struct {
	inner Embedder
	dim   int
	model string
}

var _ Embedder = (*fitEmbedder)(nil)

// withFit wraps e so all of its output vectors are ForceFit to dim. A
// dim <= 0 is a no-op wrap.
func withFit(e Embedder, dim int) Embedder {
	if dim <= 0 {
		return e
	}
	return &fitEmbedder{inner: e, dim: dim, model: e.ModelName()}
}

func (f *fitEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err := f.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	return ForceFit(v, f.dim), nil
}

func (f *fitEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vs, err := f.inner.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	out := make([][]float32, len(vs))
	for i, v := range vs {
		out[i] = ForceFit(v, f.dim)
	}
	return out, nil
}

func (f *fitEmbedder) Dimensions() int { return f.dim }

func (f *fitEmbedder) ModelName() string { return f.model }

func (f *fitEmbedder) Available(ctx context.Context) bool { return f.inner.Available(ctx) }

func (f *fitEmbedder) Close() error { return f.inner.Close() }
