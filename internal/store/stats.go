package store

import (
	"context"

	"github.com/rifflux/rifflux/internal/errs"
)

// Stats summarizes the index's current size, for the index_status tool.
type Stats struct {
	FileCount  int
	ChunkCount int
}

// Stats returns the current file and chunk counts.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Stats{}, errs.New(errs.Internal, "store is closed")
	}

	var st Stats
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM files`).Scan(&st.FileCount); err != nil {
		return Stats{}, errs.Wrap(errs.ClassifySQLite(err), "count files", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&st.ChunkCount); err != nil {
		return Stats{}, errs.Wrap(errs.ClassifySQLite(err), "count chunks", err)
	}
	return st, nil
}
