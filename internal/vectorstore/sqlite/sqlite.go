// Package sqlite persists indexes in an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"docqa/internal/domain"
	"docqa/internal/vectorstore"
)

var _ vectorstore.Storage = (*Storage)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS indexes (
	document_id TEXT PRIMARY KEY,
	embedder    TEXT NOT NULL,
	dimension   INTEGER NOT NULL,
	built_at    TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS chunks (
	document_id  TEXT NOT NULL REFERENCES indexes(document_id) ON DELETE CASCADE,
	ordinal      INTEGER NOT NULL,
	chunk_id     TEXT NOT NULL,
	text         TEXT NOT NULL,
	start_offset INTEGER NOT NULL,
	end_offset   INTEGER NOT NULL,
	vector       BLOB NOT NULL,
	PRIMARY KEY (document_id, ordinal)
);
`

// Storage keeps every index in a single database file.
type Storage struct {
	db   *sql.DB
	path string
}

// NewStorage opens (or creates) <dataDir>/index.db.
func NewStorage(dataDir string) (*Storage, error) {
	if dataDir == "" {
		dataDir = "vector_db"
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, "index.db")

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	return &Storage{db: db, path: dbPath}, nil
}

// Close closes the database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Storage) Path() string {
	return s.path
}

// Save replaces the stored index for key inside one transaction.
func (s *Storage) Save(ctx context.Context, key string, index *domain.Index) error {
	if err := vectorstore.ValidateKey(key); err != nil {
		return err
	}
	if err := index.Validate(); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, key); err != nil {
		return fmt.Errorf("clearing chunks: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO indexes (document_id, embedder, dimension, built_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(document_id) DO UPDATE SET embedder = excluded.embedder,
			dimension = excluded.dimension, built_at = excluded.built_at
	`, key, index.Embedder, index.Dimension, index.BuiltAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("writing index row: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (document_id, ordinal, chunk_id, text, start_offset, end_offset, vector)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for i, c := range index.Chunks {
		_, err := stmt.ExecContext(ctx, key, c.Ordinal, c.ID, c.Text, c.Start, c.End, encodeVector(index.Vectors[i].Values))
		if err != nil {
			return fmt.Errorf("inserting chunk %d: %w", c.Ordinal, err)
		}
	}
	return tx.Commit()
}

// Load reads the index stored under key.
func (s *Storage) Load(ctx context.Context, key string) (*domain.Index, error) {
	if err := vectorstore.ValidateKey(key); err != nil {
		return nil, err
	}
	idx := &domain.Index{DocumentID: key}
	var builtAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT embedder, dimension, built_at FROM indexes WHERE document_id = ?`, key,
	).Scan(&idx.Embedder, &idx.Dimension, &builtAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrIndexNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("reading index row: %w", err)
	}
	if idx.BuiltAt, err = time.Parse(time.RFC3339Nano, builtAt); err != nil {
		return nil, fmt.Errorf("parsing built_at: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT ordinal, chunk_id, text, start_offset, end_offset, vector
		FROM chunks WHERE document_id = ? ORDER BY ordinal
	`, key)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		c := domain.Chunk{DocumentID: key}
		var blob []byte
		if err := rows.Scan(&c.Ordinal, &c.ID, &c.Text, &c.Start, &c.End, &blob); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		values, err := decodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("chunk %d: %w", c.Ordinal, err)
		}
		idx.Chunks = append(idx.Chunks, c)
		idx.Vectors = append(idx.Vectors, domain.EmbeddingVector{ChunkID: c.ID, Values: values})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := idx.Validate(); err != nil {
		return nil, fmt.Errorf("corrupt index %s: %w", key, err)
	}
	return idx, nil
}

// Delete removes the index stored under key.
func (s *Storage) Delete(ctx context.Context, key string) error {
	if err := vectorstore.ValidateKey(key); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, key); err != nil {
		return fmt.Errorf("deleting chunks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM indexes WHERE document_id = ?`, key); err != nil {
		return fmt.Errorf("deleting index row: %w", err)
	}
	return tx.Commit()
}

// encodeVector stores float64 values little-endian so they round-trip bit for bit.
func encodeVector(v []float64) []byte {
	buf := make([]byte, len(v)*8)
	for i, f := range v {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(f))
	}
	return buf
}

func decodeVector(data []byte) ([]float64, error) {
	if len(data)%8 != 0 {
		return nil, fmt.Errorf("vector blob has %d bytes, not a multiple of 8", len(data))
	}
	out := make([]float64, len(data)/8)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[i*8:]))
	}
	return out, nil
}
