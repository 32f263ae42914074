package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rifflux/rifflux/internal/errs"
)

// SetMetadata upserts a single index_metadata key/value pair.
func (s *Store) SetMetadata(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errs.New(errs.Internal, "store is closed")
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO index_metadata (key, value, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
		`, key, value, time.Now().UTC().Format(time.RFC3339Nano))
		if err != nil {
			return errs.Wrap(errs.ClassifySQLite(err), "set metadata "+key, err)
		}
		return nil
	})
}

// GetMetadata returns the value for key, or NotFound.
func (s *Store) GetMetadata(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return "", errs.New(errs.Internal, "store is closed")
	}

	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM index_metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", errs.New(errs.NotFound, "metadata key not found: "+key)
	}
	if err != nil {
		return "", errs.Wrap(errs.ClassifySQLite(err), "get metadata", err)
	}
	return value, nil
}

// AllMetadata returns every index_metadata row as a map.
func (s *Store) AllMetadata(ctx context.Context) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errs.New(errs.Internal, "store is closed")
	}

	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM index_metadata`)
	if err != nil {
		return nil, errs.Wrap(errs.ClassifySQLite(err), "list metadata", err)
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, errs.Wrap(errs.Internal, "scan metadata", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}
