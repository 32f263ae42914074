package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rifflux/rifflux/internal/errs"
)

// File is one tracked file record.
type File struct {
	ID        int64
	Path      string
	MTimeNS   int64
	SizeBytes int64
	SHA256    string
}

// UpsertFile inserts or updates the file row for path, returning its id.
func (s *Store) UpsertFile(ctx context.Context, path string, mtimeNS, sizeBytes int64, sha256Hex string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, errs.New(errs.Internal, "store is closed")
	}

	var id int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO files (path, mtime_ns, size_bytes, sha256) VALUES (?, ?, ?, ?)
			ON CONFLICT(path) DO UPDATE SET mtime_ns = excluded.mtime_ns, size_bytes = excluded.size_bytes, sha256 = excluded.sha256
		`, path, mtimeNS, sizeBytes, sha256Hex)
		if err != nil {
			return errs.Wrap(errs.ClassifySQLite(err), "upsert file", err)
		}
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			if lastID, err := res.LastInsertId(); err == nil && lastID > 0 {
				id = lastID
			}
		}
		return tx.QueryRowContext(ctx, `SELECT id FROM files WHERE path = ?`, path).Scan(&id)
	})
	return id, err
}

// TouchFile updates only mtime_ns/size_bytes for an already-hashed file,
// the fast path for a file whose content hash hasn't changed.
func (s *Store) TouchFile(ctx context.Context, path string, mtimeNS, sizeBytes int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errs.New(errs.Internal, "store is closed")
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE files SET mtime_ns = ?, size_bytes = ? WHERE path = ?`, mtimeNS, sizeBytes, path)
		if err != nil {
			return errs.Wrap(errs.ClassifySQLite(err), "touch file", err)
		}
		return nil
	})
}

// NewEmbedding pairs a chunk_id with the vector to store for it, for
// RebuildFile's atomic upsert.
type NewEmbedding struct {
	ChunkID string
	Model   string
	Dim     int
	Vector  []float32
}

// RebuildFile upserts the file row, replaces its chunk set, and upserts
// every given embedding in a single transaction. A caller rebuilding a
// changed file uses this instead of UpsertFile, ReplaceChunks, and
// UpsertEmbedding separately, so a failure partway through never leaves
// the file row pointing at a new sha256 while its chunks are still the
// old (or an incomplete new) set.
func (s *Store) RebuildFile(ctx context.Context, path string, mtimeNS, sizeBytes int64, sha256Hex string, chunks []NewChunk, embeddings []NewEmbedding) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, errs.New(errs.Internal, "store is closed")
	}

	var fileID int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO files (path, mtime_ns, size_bytes, sha256) VALUES (?, ?, ?, ?)
			ON CONFLICT(path) DO UPDATE SET mtime_ns = excluded.mtime_ns, size_bytes = excluded.size_bytes, sha256 = excluded.sha256
		`, path, mtimeNS, sizeBytes, sha256Hex)
		if err != nil {
			return errs.Wrap(errs.ClassifySQLite(err), "upsert file", err)
		}
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			if lastID, err := res.LastInsertId(); err == nil && lastID > 0 {
				fileID = lastID
			}
		}
		if err := tx.QueryRowContext(ctx, `SELECT id FROM files WHERE path = ?`, path).Scan(&fileID); err != nil {
			return errs.Wrap(errs.ClassifySQLite(err), "resolve file id", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE file_id = ?`, fileID); err != nil {
			return errs.Wrap(errs.ClassifySQLite(err), "delete existing chunks", err)
		}

		chunkStmt, err := tx.PrepareContext(ctx, `
			INSERT INTO chunks (chunk_id, file_id, chunk_index, heading_path, content, token_count)
			VALUES (?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return errs.Wrap(errs.ClassifySQLite(err), "prepare chunk insert", err)
		}
		defer chunkStmt.Close()
		for _, c := range chunks {
			if _, err := chunkStmt.ExecContext(ctx, c.ChunkID, fileID, c.ChunkIndex, c.HeadingPath, c.Content, c.TokenCount); err != nil {
				return errs.Wrap(errs.ClassifySQLite(err), "insert chunk "+c.ChunkID, err)
			}
		}

		if len(embeddings) == 0 {
			return nil
		}

		embStmt, err := tx.PrepareContext(ctx, `
			INSERT INTO embeddings (chunk_id, model, dim, vec, updated_at) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(chunk_id) DO UPDATE SET model = excluded.model, dim = excluded.dim, vec = excluded.vec, updated_at = excluded.updated_at
		`)
		if err != nil {
			return errs.Wrap(errs.ClassifySQLite(err), "prepare embedding upsert", err)
		}
		defer embStmt.Close()
		now := time.Now().UTC().Format(time.RFC3339Nano)
		for _, e := range embeddings {
			if _, err := embStmt.ExecContext(ctx, e.ChunkID, e.Model, e.Dim, EncodeVector(e.Vector), now); err != nil {
				return errs.Wrap(errs.ClassifySQLite(err), "upsert embedding "+e.ChunkID, err)
			}
		}
		return nil
	})
	return fileID, err
}

// GetFile returns the file record for path, or a NotFound error.
func (s *Store) GetFile(ctx context.Context, path string) (*File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errs.New(errs.Internal, "store is closed")
	}

	var f File
	err := s.db.QueryRowContext(ctx, `SELECT id, path, mtime_ns, size_bytes, sha256 FROM files WHERE path = ?`, path).
		Scan(&f.ID, &f.Path, &f.MTimeNS, &f.SizeBytes, &f.SHA256)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.New(errs.NotFound, "file not found: "+path)
	}
	if err != nil {
		return nil, errs.Wrap(errs.ClassifySQLite(err), "get file", err)
	}
	return &f, nil
}

// DeleteFile removes the file row for path, cascading to its chunks, FTS
// rows, and embeddings. Returns NotFound if path isn't tracked.
func (s *Store) DeleteFile(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errs.New(errs.Internal, "store is closed")
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM files WHERE path = ?`, path)
		if err != nil {
			return errs.Wrap(errs.ClassifySQLite(err), "delete file", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return errs.Wrap(errs.Internal, "delete file rows affected", err)
		}
		if n == 0 {
			return errs.New(errs.NotFound, "file not found: "+path)
		}
		return nil
	})
}

// AllFilePaths returns every tracked file path, for prune_missing scans.
func (s *Store) AllFilePaths(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errs.New(errs.Internal, "store is closed")
	}

	rows, err := s.db.QueryContext(ctx, `SELECT path FROM files`)
	if err != nil {
		return nil, errs.Wrap(errs.ClassifySQLite(err), "list file paths", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, errs.Wrap(errs.Internal, "scan file path", err)
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}
