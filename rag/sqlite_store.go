package rag

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"

	"go.uber.org/zap"

	_ "modernc.org/sqlite"
)

// SQLiteVectorStore is a persistent vector store backed by a single SQLite
// file. Embeddings are stored as little-endian float64 blobs and scanned with
// a brute-force cosine similarity pass; rowid order breaks score ties, which
// matches insertion order.
//
// Suitable for single-process deployments with corpora up to a few hundred
// thousand chunks.
type SQLiteVectorStore struct {
	db         *sql.DB
	collection string
	logger     *zap.Logger
}

// SQLiteStoreConfig holds configuration for the SQLite vector store.
type SQLiteStoreConfig struct {
	// Path is the database file path. ":memory:" is accepted for tests.
	Path string
	// Collection namespaces the stored records.
	Collection string
}

// NewSQLiteVectorStore opens (creating if needed) the database and ensures
// the schema exists.
func NewSQLiteVectorStore(cfg SQLiteStoreConfig, logger *zap.Logger) (*SQLiteVectorStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite store: path is required")
	}
	if cfg.Collection == "" {
		cfg.Collection = "default"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: open %s: %w", cfg.Path, err)
	}
	// A single writer during index build, concurrent readers afterwards.
	db.SetMaxOpenConns(1)

	s := &SQLiteVectorStore{
		db:         db,
		collection: cfg.Collection,
		logger:     logger.With(zap.String("component", "vector_store_sqlite")),
	}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteVectorStore) ensureSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS records (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	id         TEXT NOT NULL,
	collection TEXT NOT NULL,
	doc_id     TEXT NOT NULL,
	chunk_idx  INTEGER NOT NULL,
	content    TEXT NOT NULL,
	tokens     INTEGER NOT NULL,
	metadata   TEXT,
	embedding  BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_records_collection ON records(collection);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("sqlite store: ensure schema: %w", err)
	}
	return nil
}

// Add inserts records in order within a single transaction.
func (s *SQLiteVectorStore) Add(ctx context.Context, records []Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite store: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO records (id, collection, doc_id, chunk_idx, content, tokens, metadata, embedding)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("sqlite store: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		if rec.Embedding == nil {
			return fmt.Errorf("record %s has no embedding", rec.ID)
		}
		meta, err := marshalMetadata(rec.Chunk.Metadata)
		if err != nil {
			return fmt.Errorf("sqlite store: marshal metadata for %s: %w", rec.ID, err)
		}
		if _, err := stmt.ExecContext(ctx,
			rec.ID, s.collection, rec.Chunk.DocID, rec.Chunk.Index,
			rec.Chunk.Content, rec.Chunk.TokenCount, meta,
			encodeVector(rec.Embedding),
		); err != nil {
			return fmt.Errorf("sqlite store: insert %s: %w", rec.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite store: commit: %w", err)
	}

	s.logger.Info("records added to vector store",
		zap.Int("count", len(records)),
		zap.String("collection", s.collection))
	return nil
}

// Search scans all records of the collection and ranks them by cosine
// similarity. Rows are read in seq order, so the stable sort keeps ties in
// insertion order.
func (s *SQLiteVectorStore) Search(ctx context.Context, queryEmbedding []float64, topK int, mode string) ([]SearchResult, error) {
	if topK <= 0 {
		return []SearchResult{}, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, doc_id, chunk_idx, content, tokens, metadata, embedding
		 FROM records WHERE collection = ? ORDER BY seq`, s.collection)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: query: %w", err)
	}
	defer rows.Close()

	results := make([]SearchResult, 0)
	for rows.Next() {
		var (
			rec  Record
			meta sql.NullString
			blob []byte
		)
		if err := rows.Scan(&rec.ID, &rec.Chunk.DocID, &rec.Chunk.Index,
			&rec.Chunk.Content, &rec.Chunk.TokenCount, &meta, &blob); err != nil {
			return nil, fmt.Errorf("sqlite store: scan: %w", err)
		}
		rec.Embedding = decodeVector(blob)
		if meta.Valid && meta.String != "" {
			if err := json.Unmarshal([]byte(meta.String), &rec.Chunk.Metadata); err != nil {
				return nil, fmt.Errorf("sqlite store: unmarshal metadata for %s: %w", rec.ID, err)
			}
		}

		score := cosineSimilarity(queryEmbedding, rec.Embedding)
		results = append(results, SearchResult{Record: rec, Score: &score})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite store: iterate: %w", err)
	}

	sortByScore(results)

	if topK > len(results) {
		topK = len(results)
	}
	return results[:topK], nil
}

// Count returns the number of records in the collection.
func (s *SQLiteVectorStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM records WHERE collection = ?`, s.collection).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite store: count: %w", err)
	}
	return n, nil
}

// ClearAll deletes all records of the collection.
func (s *SQLiteVectorStore) ClearAll(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM records WHERE collection = ?`, s.collection); err != nil {
		return fmt.Errorf("sqlite store: clear: %w", err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *SQLiteVectorStore) Close() error {
	return s.db.Close()
}

// encodeVector packs a float64 slice into a little-endian blob.
func encodeVector(vec []float64) []byte {
	buf := make([]byte, 8*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

// decodeVector unpacks a little-endian blob into a float64 slice.
func decodeVector(buf []byte) []float64 {
	vec := make([]float64, len(buf)/8)
	for i := range vec {
		vec[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return vec
}

func marshalMetadata(meta map[string]interface{}) (sql.NullString, error) {
	if meta == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}
