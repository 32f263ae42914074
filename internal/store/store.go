// Package store implements the durable persistence layer: a single SQLite
// database holding files, chunks, an FTS5 lexical index kept coherent with
// the chunk table via triggers, embeddings, and key/value metadata.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/rifflux/rifflux/internal/errs"
)

// Store owns the single SQLite connection backing the index. All writes
// funnel through it under mu so that per-file rebuilds stay transactional
// and FTS/embedding state never drifts from the chunk table.
type Store struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

// Open creates or opens the database at path (":memory:" for an ephemeral
// store) with WAL journaling and a busy timeout, and ensures the schema
// exists.
func Open(path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("store: create directory %s: %w", dir, err)
			}
		}
		dsn = path + "?_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// A single writer connection avoids SQLITE_BUSY storms under the
	// engine's single-writer-by-convention model.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("store: pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db, path: path}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("store: migrate schema: %w", errs.Wrap(errs.ClassifySQLite(err), "migrate schema", err))
	}
	return nil
}

// Checkpoint forces a WAL checkpoint, folding the write-ahead log back
// into the main database file.
func (s *Store) Checkpoint() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	_, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return err
}

// Close checkpoints and closes the underlying connection. Idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}

// withTx runs fn inside a transaction, committing on success and rolling
// back on any error including panics propagated by fn.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Wrap(errs.ClassifySQLite(err), "begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return errs.Wrap(errs.ClassifySQLite(err), "commit transaction", err)
	}
	return nil
}

// sanitizeFTSQuery escapes characters FTS5's MATCH parser treats as query
// syntax, so free-form search text degrades to a plain phrase match
// instead of raising a syntax error back to the caller.
func sanitizeFTSQuery(q string) string {
	q = strings.TrimSpace(q)
	if q == "" {
		return ""
	}
	q = strings.ReplaceAll(q, `"`, `""`)
	return `"` + q + `"`
}
