package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rifflux/rifflux/internal/config"
	"github.com/rifflux/rifflux/internal/index"
	"github.com/rifflux/rifflux/internal/search"
)

func newTestConfig(t *testing.T) *config.Config {
	cfg := config.Default()
	cfg.EmbeddingBackend = config.BackendHash
	cfg.DBPath = filepath.Join(t.TempDir(), "rifflux.db")
	return cfg
}

func TestEngine_OpenAndClose(t *testing.T) {
	// Given: a fresh configuration
	cfg := newTestConfig(t)

	// When: opening the engine
	e, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, e.Store)
	require.NotNil(t, e.Embedder)
	require.NotNil(t, e.Queue)

	// Then: closing releases every resource without error
	require.NoError(t, e.Close(time.Second))
}

func TestEngine_CloseIsIdempotent(t *testing.T) {
	cfg := newTestConfig(t)
	e, err := Open(context.Background(), cfg)
	require.NoError(t, err)

	require.NoError(t, e.Close(time.Second))
	require.NoError(t, e.Close(time.Second))
}

func TestEngine_IndexAndSearchRoundTrip(t *testing.T) {
	// Given: an engine pointed at a directory with one markdown file
	cfg := newTestConfig(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "doc.md"), []byte("# Title\n\nHello world.\n"), 0o644))

	e, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	defer e.Close(time.Second)

	// When: reindexing then searching
	result, err := e.Reindex(context.Background(), []string{dir}, index.Options{})
	_ = result
	require.NoError(t, err)

	results, err := e.Search.Search(context.Background(), "hello", search.Options{})
	require.NoError(t, err)
	assert.NotEmpty(t, results)
}

func TestEngine_ServeWithoutWatcherEnabledIsNoOp(t *testing.T) {
	cfg := newTestConfig(t)
	e, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	defer e.Close(time.Second)

	require.NoError(t, e.Serve(context.Background()))
	assert.Equal(t, "idle", string(e.WatcherState()))
}

func TestEngine_WithForceRebuildLockSerializesAccess(t *testing.T) {
	cfg := newTestConfig(t)
	e, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	defer e.Close(time.Second)

	var ran bool
	err = e.WithForceRebuildLock(func() error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
}

func TestEngine_ReindexHoldsRebuildLock(t *testing.T) {
	// Given: an engine, and the rebuild lock already held by another holder
	cfg := newTestConfig(t)
	e, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	defer e.Close(time.Second)

	locked, err := e.lock.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer e.lock.Unlock()

	// When: Reindex tries to run concurrently
	done := make(chan error, 1)
	go func() {
		_, err := e.Reindex(context.Background(), []string{t.TempDir()}, index.Options{})
		done <- err
	}()

	// Then: it blocks until the lock is released rather than running immediately
	select {
	case <-done:
		t.Fatal("Reindex returned while the rebuild lock was held by someone else")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEngine_MaybeAutoReindexDisabledByDefault(t *testing.T) {
	cfg := newTestConfig(t)
	e, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	defer e.Close(time.Second)

	require.NoError(t, e.MaybeAutoReindex(context.Background()))
	assert.True(t, e.lastAutoReindex.IsZero())
}

func TestEngine_MaybeAutoReindexRunsThenHonorsMinInterval(t *testing.T) {
	// Given: auto-reindex enabled against a directory with one file
	cfg := newTestConfig(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "doc.md"), []byte("# T\n\nHello.\n"), 0o644))
	cfg.AutoReindexOnSearch = true
	cfg.AutoReindexPaths = []string{dir}
	cfg.AutoReindexMinIntervalSeconds = 60

	e, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	defer e.Close(time.Second)

	// When: MaybeAutoReindex runs the first time
	require.NoError(t, e.MaybeAutoReindex(context.Background()))
	firstRun := e.lastAutoReindex
	assert.False(t, firstRun.IsZero())

	results, err := e.Search.Search(context.Background(), "hello", search.Options{})
	require.NoError(t, err)
	assert.NotEmpty(t, results)

	// Then: a second call within the min interval is a no-op
	require.NoError(t, e.MaybeAutoReindex(context.Background()))
	assert.Equal(t, firstRun, e.lastAutoReindex)
}

func TestEngine_IsPathSetQueuedOrRunningMatchesExactSetOnly(t *testing.T) {
	// Given: an engine with a slow job queued under one path set
	cfg := newTestConfig(t)
	e, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	defer e.Close(time.Second)

	release := make(chan struct{})
	_, err = e.Queue.SubmitWithKey(pathSetKey([]string{"a.md", "b.md"}), func(ctx context.Context) (any, error) {
		<-release
		return nil, nil
	})
	require.NoError(t, err)
	defer close(release)

	// Then: the same path set (in any order) is reported as coalescible
	assert.True(t, e.isPathSetQueuedOrRunning([]string{"b.md", "a.md"}))

	// But a disjoint path set is not
	assert.False(t, e.isPathSetQueuedOrRunning([]string{"c.md"}))
}
