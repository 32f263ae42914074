package embed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingEmbedder struct {
	*HashEmbedder
	calls int
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls++
	return c.HashEmbedder.Embed(ctx, text)
}

func TestCachedEmbedder_Embed_CachesRepeatedText(t *testing.T) {
	inner := &countingEmbedder{HashEmbedder: NewHashEmbedder(0)}
	cached := NewCachedEmbedder(inner, 10)

	v1, err := cached.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	v2, err := cached.Embed(context.Background(), "hello world")
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
	assert.Equal(t, 1, inner.calls, "second call should hit the cache, not the inner embedder")
}

func TestCachedEmbedder_Embed_DistinctTextMisses(t *testing.T) {
	inner := &countingEmbedder{HashEmbedder: NewHashEmbedder(0)}
	cached := NewCachedEmbedder(inner, 10)

	_, err := cached.Embed(context.Background(), "first")
	require.NoError(t, err)
	_, err = cached.Embed(context.Background(), "second")
	require.NoError(t, err)

	assert.Equal(t, 2, inner.calls)
}

func TestCachedEmbedder_EmbedBatch_MixesHitsAndMisses(t *testing.T) {
	inner := NewHashEmbedder(0)
	cached := NewCachedEmbedder(inner, 10)

	_, err := cached.Embed(context.Background(), "warm")
	require.NoError(t, err)

	batch, err := cached.EmbedBatch(context.Background(), []string{"warm", "cold"})
	require.NoError(t, err)
	require.Len(t, batch, 2)

	warm, err := inner.Embed(context.Background(), "warm")
	require.NoError(t, err)
	assert.Equal(t, warm, batch[0])
}

func TestCachedEmbedder_PassesThroughDimensionsAndModelName(t *testing.T) {
	inner := NewHashEmbedder(64)
	cached := NewCachedEmbedder(inner, 10)

	assert.Equal(t, 64, cached.Dimensions())
	assert.Equal(t, BackendHash, cached.ModelName())
}
