// Package index implements the reindex pipeline: scan, change-detect,
// chunk, embed, and persist.
package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/rifflux/rifflux/internal/chunk"
	"github.com/rifflux/rifflux/internal/embed"
	"github.com/rifflux/rifflux/internal/errs"
	"github.com/rifflux/rifflux/internal/scan"
	"github.com/rifflux/rifflux/internal/store"
)

// Options configures a Reindex call.
type Options struct {
	Force        bool
	PruneMissing bool
	IncludeGlobs []string
	ExcludeGlobs []string
	ChunkOptions chunk.Options
}

// Result reports the outcome counts of a reindex run.
type Result struct {
	IndexedFiles   int
	SkippedFiles   int
	DeletedFiles   int
	GitFingerprint string
}

// Indexer drives the reindex pipeline against a Store using an Embedder to
// produce chunk vectors.
type Indexer struct {
	Store    *store.Store
	Embedder embed.Embedder

	// EmbedFanout bounds concurrent embedder calls within one file's
	// rebuild.
	EmbedFanout int
}

// New constructs an Indexer over s and e.
func New(s *store.Store, e embed.Embedder) *Indexer {
	return &Indexer{Store: s, Embedder: e, EmbedFanout: 4}
}

// Reindex walks every location in paths, applies change detection, rebuilds
// stale files, prunes missing ones (if requested), and updates index
// metadata.
func (ix *Indexer) Reindex(ctx context.Context, paths []string, opts Options) (Result, error) {
	var result Result
	seen := map[string]bool{} // canonical absolute path -> observed this run

	for _, root := range paths {
		fileInfos, err := scan.Walk(root, scan.Options{
			IncludeGlobs: opts.IncludeGlobs,
			ExcludeGlobs: opts.ExcludeGlobs,
		})
		if err != nil {
			return result, errs.Wrap(errs.Internal, "scan "+root, err)
		}

		if fp, ok := scan.GitFingerprint(root); ok && result.GitFingerprint == "" {
			result.GitFingerprint = fp
		}

		for _, fi := range fileInfos {
			canon, err := filepath.Abs(fi.AbsPath)
			if err != nil {
				canon = fi.AbsPath
			}
			if seen[canon] {
				continue // already handled via an earlier, overlapping root
			}
			seen[canon] = true

			indexed, err := ix.reindexOne(ctx, canon, fi, opts)
			if err != nil {
				return result, err
			}
			if indexed {
				result.IndexedFiles++
			} else {
				result.SkippedFiles++
			}
		}
	}

	if opts.PruneMissing {
		deleted, err := ix.prune(ctx, seen)
		if err != nil {
			return result, err
		}
		result.DeletedFiles = deleted
	}

	if err := ix.updateMetadata(ctx, result.GitFingerprint); err != nil {
		return result, err
	}

	return result, nil
}

// reindexOne applies change detection to a single scanned file and, if
// stale, rebuilds its chunks and embeddings. It returns whether the file
// was (re)indexed. canonPath is the file's canonical absolute path, used
// as the store's identity key so that
// overlapping scan roots never double-index the same file; fi.Path (the
// path relative to its scan root) is used only for chunk_id derivation,
// which must stay stable across machines.
func (ix *Indexer) reindexOne(ctx context.Context, canonPath string, fi scan.FileInfo, opts Options) (bool, error) {
	existing, err := ix.Store.GetFile(ctx, canonPath)
	if err != nil && errs.Of(err) != errs.NotFound {
		return false, err
	}

	if existing != nil && !opts.Force {
		if existing.MTimeNS == fi.ModTime && existing.SizeBytes == fi.Size {
			return false, nil // fast path: unchanged, not even hashed
		}
	}

	data, err := os.ReadFile(fi.AbsPath)
	if err != nil {
		return false, errs.Wrap(errs.Internal, "read "+fi.Path, err)
	}
	sum := sha256.Sum256(data)
	hexSum := hex.EncodeToString(sum[:])

	if existing != nil && !opts.Force && existing.SHA256 == hexSum {
		if err := ix.Store.TouchFile(ctx, canonPath, fi.ModTime, fi.Size); err != nil {
			return false, err
		}
		return false, nil
	}

	chunks := chunk.File(fi.Path, data, opts.ChunkOptions)
	newChunks, vectors, err := ix.embedChunks(ctx, chunks)
	if err != nil {
		return false, err
	}

	var embeddings []store.NewEmbedding
	if ix.Embedder != nil {
		model, dim := ix.Embedder.ModelName(), ix.Embedder.Dimensions()
		for i, c := range newChunks {
			if vectors[i] == nil {
				continue // embedder unavailable: chunk is lexical-only
			}
			embeddings = append(embeddings, store.NewEmbedding{ChunkID: c.ChunkID, Model: model, Dim: dim, Vector: vectors[i]})
		}
	}

	if _, err := ix.Store.RebuildFile(ctx, canonPath, fi.ModTime, fi.Size, hexSum, newChunks, embeddings); err != nil {
		return false, err
	}

	return true, nil
}

// embedChunks converts chunker output into store.NewChunk rows and computes
// one embedding per chunk, fanning the embedder calls out across a bounded
// worker pool.
func (ix *Indexer) embedChunks(ctx context.Context, chunks []chunk.Chunk) ([]store.NewChunk, [][]float32, error) {
	newChunks := make([]store.NewChunk, len(chunks))
	vectors := make([][]float32, len(chunks))
	for i, c := range chunks {
		newChunks[i] = store.NewChunk{
			ChunkID:     c.ID,
			ChunkIndex:  c.Index,
			HeadingPath: c.HeadingPath,
			Content:     c.Content,
			TokenCount:  c.TokenCount,
		}
	}

	if ix.Embedder == nil || !ix.Embedder.Available(ctx) {
		return newChunks, vectors, nil
	}

	fanout := ix.EmbedFanout
	if fanout <= 0 {
		fanout = 1
	}
	sem := make(chan struct{}, fanout)
	g, gctx := errgroup.WithContext(ctx)
	var mu sync.Mutex

	for i, c := range chunks {
		i, c := i, c
		g.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()

			v, err := ix.Embedder.Embed(gctx, c.Content)
			if err != nil {
				if errs.Of(err) == errs.EmbedderUnavailable {
					return nil // degrade to lexical-only for this chunk
				}
				return err
			}
			mu.Lock()
			vectors[i] = v
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, errs.Wrap(errs.Internal, "embed chunks", err)
	}
	return newChunks, vectors, nil
}

// prune deletes every stored file whose canonical path was not observed
// during this run's scans.
func (ix *Indexer) prune(ctx context.Context, seen map[string]bool) (int, error) {
	stored, err := ix.Store.AllFilePaths(ctx)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, p := range stored {
		if seen[p] {
			continue
		}
		if err := ix.Store.DeleteFile(ctx, p); err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}

// updateMetadata records the embedder identity and the aggregated
// git_fingerprint.
func (ix *Indexer) updateMetadata(ctx context.Context, gitFingerprint string) error {
	if ix.Embedder != nil {
		if err := ix.Store.SetMetadata(ctx, "embedding_model", ix.Embedder.ModelName()); err != nil {
			return err
		}
		dim := ix.Embedder.Dimensions()
		if err := ix.Store.SetMetadata(ctx, "embedding_dim", strconv.Itoa(dim)); err != nil {
			return err
		}
	}
	if gitFingerprint != "" {
		if err := ix.Store.SetMetadata(ctx, "git_fingerprint", gitFingerprint); err != nil {
			return err
		}
	}
	return nil
}
