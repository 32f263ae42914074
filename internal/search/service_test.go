package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rifflux/rifflux/internal/embed"
	"github.com/rifflux/rifflux/internal/errs"
	"github.com/rifflux/rifflux/internal/store"
)

func newTestService(t *testing.T, withEmbedder bool) *Service {
	t.Helper()
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	var e embed.Embedder
	if withEmbedder {
		h := embed.NewHashEmbedder(0)
		t.Cleanup(func() { _ = h.Close() })
		e = h
	}
	return New(s, e)
}

func seedChunk(t *testing.T, s *store.Store, path, chunkID, content string) {
	t.Helper()
	ctx := context.Background()
	fileID, err := s.UpsertFile(ctx, path, 1, 1, "h-"+path)
	require.NoError(t, err)
	existing, err := s.GetChunksForFile(ctx, path)
	require.NoError(t, err)
	chunks := make([]store.NewChunk, 0, len(existing)+1)
	for i, c := range existing {
		chunks = append(chunks, store.NewChunk{ChunkID: c.ChunkID, ChunkIndex: i, Content: c.Content})
	}
	chunks = append(chunks, store.NewChunk{ChunkID: chunkID, ChunkIndex: len(chunks), Content: content})
	require.NoError(t, s.ReplaceChunks(ctx, fileID, chunks))
}

func TestService_LexicalMode_NoCosineKey(t *testing.T) {
	svc := newTestService(t, false)
	seedChunk(t, svc.Store, "a.md", "c0", "alpha content here")

	results, err := svc.Search(context.Background(), "alpha", Options{Mode: ModeLexical})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.NotNil(t, results[0].ScoreBreakdown.BM25)
	assert.Nil(t, results[0].ScoreBreakdown.Cosine)
	assert.Nil(t, results[0].ScoreBreakdown.RRF)
}

func TestService_SemanticMode_NoEmbedder_ReturnsEmpty(t *testing.T) {
	svc := newTestService(t, false)
	seedChunk(t, svc.Store, "a.md", "c0", "alpha content here")

	results, err := svc.Search(context.Background(), "alpha", Options{Mode: ModeSemantic})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestService_SemanticMode_NoBM25Key(t *testing.T) {
	svc := newTestService(t, true)
	seedChunk(t, svc.Store, "a.md", "c0", "alpha content here")
	vec, err := svc.Embedder.Embed(context.Background(), "alpha content here")
	require.NoError(t, err)
	require.NoError(t, svc.Store.UpsertEmbedding(context.Background(), "c0", svc.Embedder.ModelName(), len(vec), vec))

	results, err := svc.Search(context.Background(), "alpha", Options{Mode: ModeSemantic})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.NotNil(t, results[0].ScoreBreakdown.Cosine)
	assert.Nil(t, results[0].ScoreBreakdown.BM25)
}

func TestService_HybridMode_EveryResultHasRRFAndRanks(t *testing.T) {
	svc := newTestService(t, true)
	seedChunk(t, svc.Store, "a.md", "c0", "alpha content here")
	seedChunk(t, svc.Store, "b.md", "c1", "beta content here")

	results, err := svc.Search(context.Background(), "alpha", Options{Mode: ModeHybrid})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	for _, r := range results {
		assert.NotNil(t, r.ScoreBreakdown.RRF)
		assert.True(t, r.ScoreBreakdown.LexicalRank != nil || r.ScoreBreakdown.SemanticRank != nil)
	}
}

func TestService_HybridWithoutEmbedder_EqualsLexicalWithNullSemanticRank(t *testing.T) {
	svc := newTestService(t, false)
	seedChunk(t, svc.Store, "a.md", "c0", "alpha content here")

	hybrid, err := svc.Search(context.Background(), "alpha", Options{Mode: ModeHybrid})
	require.NoError(t, err)
	lexical, err := svc.Search(context.Background(), "alpha", Options{Mode: ModeLexical})
	require.NoError(t, err)

	require.Len(t, hybrid, len(lexical))
	for i := range hybrid {
		assert.Equal(t, lexical[i].ChunkID, hybrid[i].ChunkID)
		assert.Nil(t, hybrid[i].ScoreBreakdown.SemanticRank)
		assert.NotNil(t, hybrid[i].ScoreBreakdown.LexicalRank)
	}
}

func TestService_TopKBound(t *testing.T) {
	svc := newTestService(t, true)
	for i := 0; i < 20; i++ {
		seedChunk(t, svc.Store, "doc"+string(rune('a'+i))+".md", "c"+string(rune('a'+i)), "shared content term here")
	}

	results, err := svc.Search(context.Background(), "shared", Options{Mode: ModeHybrid, TopK: 5})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(results), 5)
}

func TestService_EmptyCorpus_NoError(t *testing.T) {
	svc := newTestService(t, true)
	results, err := svc.Search(context.Background(), "anything", Options{Mode: ModeHybrid})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestService_EmptyQuery_NoError(t *testing.T) {
	svc := newTestService(t, true)
	seedChunk(t, svc.Store, "a.md", "c0", "alpha content here")

	results, err := svc.Search(context.Background(), "", Options{Mode: ModeLexical})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestService_InvalidMode_RejectedAtBoundary(t *testing.T) {
	svc := newTestService(t, false)
	_, err := svc.Search(context.Background(), "q", Options{Mode: "bogus"})
	assert.Error(t, err)
}

func TestService_TopKOutOfRange_RejectedNotClamped(t *testing.T) {
	svc := newTestService(t, false)

	_, err := svc.Search(context.Background(), "q", Options{TopK: -1})
	require.Error(t, err)
	assert.Equal(t, errs.InvalidInput, errs.Of(err))

	_, err = svc.Search(context.Background(), "q", Options{TopK: MaxTopK + 1})
	require.Error(t, err)
	assert.Equal(t, errs.InvalidInput, errs.Of(err))
}

func TestService_TopKZero_DefaultsRatherThanRejected(t *testing.T) {
	svc := newTestService(t, false)
	seedChunk(t, svc.Store, "a.md", "c0", "alpha content here")

	_, err := svc.Search(context.Background(), "alpha", Options{TopK: 0})
	require.NoError(t, err)
}

func TestService_RRFOrdering_StrictlyDescending(t *testing.T) {
	svc := newTestService(t, true)
	for i := 0; i < 6; i++ {
		seedChunk(t, svc.Store, "doc"+string(rune('a'+i))+".md", "c"+string(rune('a'+i)), "shared keyword appears in every document here")
	}

	results, err := svc.Search(context.Background(), "shared keyword", Options{Mode: ModeHybrid})
	require.NoError(t, err)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, *results[i-1].ScoreBreakdown.RRF, *results[i].ScoreBreakdown.RRF)
	}
}
