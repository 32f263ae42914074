package index

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rifflux/rifflux/internal/embed"
	"github.com/rifflux/rifflux/internal/errs"
	"github.com/rifflux/rifflux/internal/store"
)

func newTestIndexer(t *testing.T) (*Indexer, string) {
	t.Helper()
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	dir := t.TempDir()
	e := embed.NewHashEmbedder(0)
	t.Cleanup(func() { _ = e.Close() })

	return New(s, e), dir
}

func writeFiles(t *testing.T, dir string, contents map[string]string) {
	t.Helper()
	for name, body := range contents {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
}

func TestReindex_IndexesNewFiles(t *testing.T) {
	ix, dir := newTestIndexer(t)
	writeFiles(t, dir, map[string]string{
		"a.md": "# A\n\nAlpha content here.",
		"b.md": "# B\n\nBeta content here.",
	})

	res, err := ix.Reindex(context.Background(), []string{dir}, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.IndexedFiles)
	assert.Equal(t, 0, res.SkippedFiles)
}

func TestReindex_IncrementalSkip_TouchWithoutContentChange(t *testing.T) {
	ix, dir := newTestIndexer(t)
	files := map[string]string{}
	for i := 0; i < 10; i++ {
		files["doc"+string(rune('0'+i))+".md"] = "# Doc\n\nSome content body."
	}
	writeFiles(t, dir, files)

	res, err := ix.Reindex(context.Background(), []string{dir}, Options{})
	require.NoError(t, err)
	require.Equal(t, 10, res.IndexedFiles)

	// Touch mtimes without changing bytes: the hash fast path should skip
	// re-chunking entirely on the second pass.
	now := time.Now().Add(time.Hour)
	for name := range files {
		p := filepath.Join(dir, name)
		require.NoError(t, os.Chtimes(p, now, now))
	}

	res2, err := ix.Reindex(context.Background(), []string{dir}, Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, res2.IndexedFiles)
	assert.Equal(t, 10, res2.SkippedFiles)
}

func TestReindex_PruneMissing_DeletesVanishedFile(t *testing.T) {
	ix, dir := newTestIndexer(t)
	writeFiles(t, dir, map[string]string{
		"keep.md":   "# Keep\n\nKeep this one.",
		"remove.md": "# Remove\n\nThis one goes away.",
	})

	_, err := ix.Reindex(context.Background(), []string{dir}, Options{})
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(dir, "remove.md")))

	res, err := ix.Reindex(context.Background(), []string{dir}, Options{PruneMissing: true})
	require.NoError(t, err)
	assert.Equal(t, 1, res.DeletedFiles)
	assert.Equal(t, 0, res.IndexedFiles)
	assert.Equal(t, 1, res.SkippedFiles)

	abs, err := filepath.Abs(filepath.Join(dir, "remove.md"))
	require.NoError(t, err)
	_, err = ix.Store.GetFile(context.Background(), abs)
	assert.Equal(t, errs.NotFound, errs.Of(err))
}

func TestReindex_IsIdempotent(t *testing.T) {
	ix, dir := newTestIndexer(t)
	writeFiles(t, dir, map[string]string{
		"a.md": "# A\n\nAlpha content here, long enough to chunk on its own.",
	})

	_, err := ix.Reindex(context.Background(), []string{dir}, Options{})
	require.NoError(t, err)

	abs, err := filepath.Abs(filepath.Join(dir, "a.md"))
	require.NoError(t, err)
	before, err := ix.Store.GetChunksForFile(context.Background(), abs)
	require.NoError(t, err)

	res2, err := ix.Reindex(context.Background(), []string{dir}, Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, res2.IndexedFiles)
	assert.Equal(t, 1, res2.SkippedFiles)

	after, err := ix.Store.GetChunksForFile(context.Background(), abs)
	require.NoError(t, err)
	require.Equal(t, len(before), len(after))
	for i := range before {
		assert.Equal(t, before[i].ChunkID, after[i].ChunkID)
		assert.Equal(t, before[i].Content, after[i].Content)
	}
}

func TestReindex_ForceRebuildsUnchangedFile(t *testing.T) {
	ix, dir := newTestIndexer(t)
	writeFiles(t, dir, map[string]string{
		"a.md": "# A\n\nAlpha content here.",
	})

	_, err := ix.Reindex(context.Background(), []string{dir}, Options{})
	require.NoError(t, err)

	res, err := ix.Reindex(context.Background(), []string{dir}, Options{Force: true})
	require.NoError(t, err)
	assert.Equal(t, 1, res.IndexedFiles)
}

func TestReindex_UpdatesEmbeddingMetadata(t *testing.T) {
	ix, dir := newTestIndexer(t)
	writeFiles(t, dir, map[string]string{
		"a.md": "# A\n\nAlpha content here.",
	})

	_, err := ix.Reindex(context.Background(), []string{dir}, Options{})
	require.NoError(t, err)

	model, err := ix.Store.GetMetadata(context.Background(), "embedding_model")
	require.NoError(t, err)
	assert.Equal(t, "hash", model)

	dim, err := ix.Store.GetMetadata(context.Background(), "embedding_dim")
	require.NoError(t, err)
	assert.NotEmpty(t, dim)
}

func TestReindex_MultiLocationDedupesOverlappingRoots(t *testing.T) {
	ix, dir := newTestIndexer(t)
	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))
	writeFiles(t, sub, map[string]string{
		"a.md": "# A\n\nAlpha content here.",
	})

	res, err := ix.Reindex(context.Background(), []string{dir, sub}, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.IndexedFiles)
}
