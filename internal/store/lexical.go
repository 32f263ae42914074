package store

import (
	"context"
	"strings"

	"github.com/rifflux/rifflux/internal/errs"
)

// LexicalHit is one FTS5 match, ordered ascending by raw bm25 score (more
// negative is a better match).
type LexicalHit struct {
	Chunk Chunk
	Score float64
}

// SearchLexical runs an FTS5 MATCH query joined back against chunks and
// files, returning up to limit hits ordered by bm25(). An empty or
// whitespace-only query, or one that fails to parse as an FTS5 query
// after sanitization, returns an empty (not error) result.
func (s *Store) SearchLexical(ctx context.Context, query string, limit int) ([]LexicalHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errs.New(errs.Internal, "store is closed")
	}

	sanitized := sanitizeFTSQuery(query)
	if sanitized == "" {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.chunk_id, c.file_id, f.path, c.chunk_index, c.heading_path, c.content, c.token_count,
		       bm25(chunks_fts) AS score
		FROM chunks_fts
		JOIN chunks c ON c.id = chunks_fts.rowid
		JOIN files f ON f.id = c.file_id
		WHERE chunks_fts MATCH ?
		ORDER BY score
		LIMIT ?
	`, sanitized, limit)
	if err != nil {
		// FTS5 raises for a handful of query shapes even after
		// sanitization (e.g. an all-punctuation phrase); degrade to
		// no results rather than propagate a syntax error.
		if strings.Contains(err.Error(), "fts5") {
			return nil, nil
		}
		return nil, errs.Wrap(errs.ClassifySQLite(err), "lexical search", err)
	}
	defer rows.Close()

	var hits []LexicalHit
	for rows.Next() {
		var c Chunk
		var score float64
		if err := rows.Scan(&c.ID, &c.ChunkID, &c.FileID, &c.Path, &c.ChunkIndex, &c.HeadingPath, &c.Content, &c.TokenCount, &score); err != nil {
			return nil, errs.Wrap(errs.Internal, "scan lexical hit", err)
		}
		hits = append(hits, LexicalHit{Chunk: c, Score: score})
	}
	return hits, rows.Err()
}
