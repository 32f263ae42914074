// Package engine assembles the store, embedder, background worker, and
// file watcher into a single aggregate with guaranteed resource release.
package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/rifflux/rifflux/internal/config"
	"github.com/rifflux/rifflux/internal/embed"
	"github.com/rifflux/rifflux/internal/index"
	"github.com/rifflux/rifflux/internal/search"
	"github.com/rifflux/rifflux/internal/store"
	"github.com/rifflux/rifflux/internal/watcher"
	"github.com/rifflux/rifflux/internal/worker"
)

// Engine owns every long-lived resource the CLI and MCP surfaces share:
// the database, the embedder, the background job queue, and the file
// watcher (started only when Serve runs).
type Engine struct {
	Config   *config.Config
	Store    *store.Store
	Embedder embed.Embedder
	Indexer  *index.Indexer
	Search   *search.Service
	Queue    *worker.Queue

	mu              sync.Mutex
	watch           *watcher.Watcher
	lock            *flock.Flock
	closed          bool
	lastAutoReindex time.Time
}

// Open constructs an Engine from cfg: opens the store, builds the
// configured embedder, and starts the background worker. The file
// watcher is constructed but not started; a caller starts it explicitly
// via Serve.
func Open(ctx context.Context, cfg *config.Config) (*Engine, error) {
	s, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("engine: open store: %w", err)
	}

	result, err := embed.New(ctx, embed.Options{
		Backend:   string(cfg.EmbeddingBackend),
		Dim:       cfg.EmbeddingDim,
		ModelName: cfg.EmbeddingModel,
	})
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("engine: build embedder: %w", err)
	}

	ix := index.New(s, result.Embedder)
	svc := search.New(s, result.Embedder)
	queue := worker.New()

	e := &Engine{
		Config:   cfg,
		Store:    s,
		Embedder: result.Embedder,
		Indexer:  ix,
		Search:   svc,
		Queue:    queue,
		lock:     flock.New(lockPath(cfg.DBPath)),
	}

	e.watch = watcher.New(watcher.Options{
		Roots:          cfg.FileWatcherPaths,
		IncludeGlobs:   cfg.IncludeGlobs,
		ExcludeGlobs:   cfg.ExcludeGlobs,
		DebounceWindow: time.Duration(cfg.FileWatcherDebounceMs) * time.Millisecond,
		OnBatch:        e.onWatchBatch,
		ShouldCoalesce: e.isPathSetQueuedOrRunning,
	})

	return e, nil
}

// lockPath derives the cross-invocation coordination lock's path from the
// database path: a sibling dotfile next to the database it guards.
func lockPath(dbPath string) string {
	return filepath.Join(filepath.Dir(dbPath), ".rifflux.lock")
}

// Serve starts the file watcher if the configuration enables it. It is a
// no-op otherwise; transport-level serving lives in cmd/rifflux's serve
// command, which calls this before blocking on the MCP server.
//
// This starts the watcher up front rather than lazily on first query;
// rifflux's serve command runs as a long-lived process anyway, so there's
// no benefit to deferring the fsnotify setup past startup.
func (e *Engine) Serve(ctx context.Context) error {
	if !e.Config.FileWatcher || len(e.Config.FileWatcherPaths) == 0 {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.watch.Start()
}

// Reindex runs a synchronous reindex of paths while holding the
// cross-process rebuild lock, so it never races a concurrently running
// background reindex job (or another synchronous Reindex call, in
// another process) over the same database. Include/exclude globs left
// empty in opts fall back to the configured include_globs/exclude_globs.
func (e *Engine) Reindex(ctx context.Context, paths []string, opts index.Options) (index.Result, error) {
	if len(opts.IncludeGlobs) == 0 {
		opts.IncludeGlobs = e.Config.IncludeGlobs
	}
	if len(opts.ExcludeGlobs) == 0 {
		opts.ExcludeGlobs = e.Config.ExcludeGlobs
	}
	var result index.Result
	err := e.WithForceRebuildLock(func() error {
		var runErr error
		result, runErr = e.Indexer.Reindex(ctx, paths, opts)
		return runErr
	})
	return result, err
}

// MaybeAutoReindex reindexes the configured auto-reindex paths ahead of a
// search, if auto_reindex_on_search is enabled and the minimum interval
// since the last auto-reindex has elapsed. It is a no-op otherwise.
func (e *Engine) MaybeAutoReindex(ctx context.Context) error {
	if !e.Config.AutoReindexOnSearch || len(e.Config.AutoReindexPaths) == 0 {
		return nil
	}

	interval := time.Duration(e.Config.AutoReindexMinIntervalSeconds * float64(time.Second))
	e.mu.Lock()
	if !e.lastAutoReindex.IsZero() && time.Since(e.lastAutoReindex) < interval {
		e.mu.Unlock()
		return nil
	}
	e.lastAutoReindex = time.Now()
	e.mu.Unlock()

	_, err := e.Reindex(ctx, e.Config.AutoReindexPaths, index.Options{PruneMissing: true})
	return err
}

// onWatchBatch submits a reindex job for the batch's paths, tagged with
// their normalized path key so a later, identical batch can coalesce
// against it while it is still queued or running.
func (e *Engine) onWatchBatch(paths []string) {
	_, _ = e.Queue.SubmitWithKey(pathSetKey(paths), func(ctx context.Context) (any, error) {
		return e.Reindex(ctx, paths, index.Options{PruneMissing: true})
	})
}

// isPathSetQueuedOrRunning reports whether a currently queued, running, or
// retry-waiting job was submitted for this exact normalized path set, so
// the watcher can drop a redundant batch rather than pile up duplicate
// reindex work for the same files.
func (e *Engine) isPathSetQueuedOrRunning(paths []string) bool {
	return e.Queue.HasMatchingKey(pathSetKey(paths))
}

// pathSetKey canonicalizes a batch of paths into a stable, order- and
// duplicate-independent key for coalescing comparisons.
func pathSetKey(paths []string) string {
	if len(paths) == 0 {
		return ""
	}
	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)
	sorted = slices.Compact(sorted)
	return strings.Join(sorted, "\x00")
}

// WatcherState reports the file watcher's current lifecycle state, for the
// index_status tool.
func (e *Engine) WatcherState() watcher.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.watch.State()
}

// WithForceRebuildLock runs fn while holding the cross-process rebuild
// lock, so two invocations of a rebuild against the same database never
// race with each other.
func (e *Engine) WithForceRebuildLock(fn func() error) error {
	if err := e.lock.Lock(); err != nil {
		return fmt.Errorf("engine: acquire rebuild lock: %w", err)
	}
	defer e.lock.Unlock()
	return fn()
}

// Close releases every resource Open acquired: it stops the watcher,
// drains the worker queue (bounded by timeout), and checkpoints and
// closes the store. Safe to call once; subsequent calls are no-ops.
func (e *Engine) Close(timeout time.Duration) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	w := e.watch
	e.mu.Unlock()

	if w != nil {
		_ = w.Stop()
	}
	_ = e.Queue.Shutdown(timeout)

	if err := e.Store.Checkpoint(); err != nil {
		_ = e.Store.Close()
		return fmt.Errorf("engine: checkpoint: %w", err)
	}
	return e.Store.Close()
}
