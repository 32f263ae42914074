package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"math"
	"time"

	"github.com/rifflux/rifflux/internal/errs"
)

// EncodeVector serializes v as dim little-endian 32-bit floats.
func EncodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// DecodeVector is the inverse of EncodeVector.
func DecodeVector(buf []byte) []float32 {
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v
}

// UpsertEmbedding stores or replaces the embedding for chunkID.
func (s *Store) UpsertEmbedding(ctx context.Context, chunkID, model string, dim int, vec []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errs.New(errs.Internal, "store is closed")
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO embeddings (chunk_id, model, dim, vec, updated_at) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(chunk_id) DO UPDATE SET model = excluded.model, dim = excluded.dim, vec = excluded.vec, updated_at = excluded.updated_at
		`, chunkID, model, dim, EncodeVector(vec), time.Now().UTC().Format(time.RFC3339Nano))
		if err != nil {
			return errs.Wrap(errs.ClassifySQLite(err), "upsert embedding "+chunkID, err)
		}
		return nil
	})
}

// StoredEmbedding pairs a chunk_id with its decoded vector, used for the
// brute-force semantic scan.
type StoredEmbedding struct {
	ChunkID string
	Vector  []float32
}

// AllEmbeddings iterates every stored embedding, for exact cosine scoring.
// The engine deliberately never builds an approximate index over these
// vectors.
func (s *Store) AllEmbeddings(ctx context.Context) ([]StoredEmbedding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errs.New(errs.Internal, "store is closed")
	}

	rows, err := s.db.QueryContext(ctx, `SELECT chunk_id, vec FROM embeddings`)
	if err != nil {
		return nil, errs.Wrap(errs.ClassifySQLite(err), "list embeddings", err)
	}
	defer rows.Close()

	var out []StoredEmbedding
	for rows.Next() {
		var chunkID string
		var raw []byte
		if err := rows.Scan(&chunkID, &raw); err != nil {
			return nil, errs.Wrap(errs.Internal, "scan embedding", err)
		}
		out = append(out, StoredEmbedding{ChunkID: chunkID, Vector: DecodeVector(raw)})
	}
	return out, rows.Err()
}
