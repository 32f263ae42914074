package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/rifflux/rifflux/internal/errs"
)

// Chunk is one persisted chunk row, joined with its owning file's path
// where useful for result assembly.
type Chunk struct {
	ID          int64
	ChunkID     string
	FileID      int64
	Path        string
	ChunkIndex  int
	HeadingPath string
	Content     string
	TokenCount  int
}

// NewChunk is the input shape for ReplaceChunks: everything the chunker
// produces, before a numeric row id is assigned.
type NewChunk struct {
	ChunkID     string
	ChunkIndex  int
	HeadingPath string
	Content     string
	TokenCount  int
}

// ReplaceChunks deletes every existing chunk for fileID and inserts the
// given set: chunks are replaced wholesale on content-hash change, all
// within one transaction so a partial failure never leaves a stale mix
// of old and new chunks.
func (s *Store) ReplaceChunks(ctx context.Context, fileID int64, chunks []NewChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errs.New(errs.Internal, "store is closed")
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE file_id = ?`, fileID); err != nil {
			return errs.Wrap(errs.ClassifySQLite(err), "delete existing chunks", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO chunks (chunk_id, file_id, chunk_index, heading_path, content, token_count)
			VALUES (?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return errs.Wrap(errs.ClassifySQLite(err), "prepare chunk insert", err)
		}
		defer stmt.Close()

		for _, c := range chunks {
			if _, err := stmt.ExecContext(ctx, c.ChunkID, fileID, c.ChunkIndex, c.HeadingPath, c.Content, c.TokenCount); err != nil {
				return errs.Wrap(errs.ClassifySQLite(err), "insert chunk "+c.ChunkID, err)
			}
		}
		return nil
	})
}

// GetChunk fetches a single chunk by its chunk_id, or NotFound.
func (s *Store) GetChunk(ctx context.Context, chunkID string) (*Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errs.New(errs.Internal, "store is closed")
	}

	c, err := scanChunk(s.db.QueryRowContext(ctx, `
		SELECT c.id, c.chunk_id, c.file_id, f.path, c.chunk_index, c.heading_path, c.content, c.token_count
		FROM chunks c JOIN files f ON f.id = c.file_id
		WHERE c.chunk_id = ?
	`, chunkID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.New(errs.NotFound, "chunk not found: "+chunkID)
	}
	if err != nil {
		return nil, errs.Wrap(errs.ClassifySQLite(err), "get chunk", err)
	}
	return c, nil
}

// GetChunksForFile returns every chunk for path, ordered by chunk_index.
func (s *Store) GetChunksForFile(ctx context.Context, path string) ([]Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errs.New(errs.Internal, "store is closed")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.chunk_id, c.file_id, f.path, c.chunk_index, c.heading_path, c.content, c.token_count
		FROM chunks c JOIN files f ON f.id = c.file_id
		WHERE f.path = ?
		ORDER BY c.chunk_index
	`, path)
	if err != nil {
		return nil, errs.Wrap(errs.ClassifySQLite(err), "get chunks for file", err)
	}
	defer rows.Close()

	var out []Chunk
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.ID, &c.ChunkID, &c.FileID, &c.Path, &c.ChunkIndex, &c.HeadingPath, &c.Content, &c.TokenCount); err != nil {
			return nil, errs.Wrap(errs.Internal, "scan chunk", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChunk(row rowScanner) (*Chunk, error) {
	var c Chunk
	if err := row.Scan(&c.ID, &c.ChunkID, &c.FileID, &c.Path, &c.ChunkIndex, &c.HeadingPath, &c.Content, &c.TokenCount); err != nil {
		return nil, err
	}
	return &c, nil
}
