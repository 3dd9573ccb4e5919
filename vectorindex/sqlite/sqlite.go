// Package sqlite implements vectorindex.Index on SQLite using the pure-Go
// modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/poiesic/semdex/vectorindex"
	_ "modernc.org/sqlite"
)

// DefaultCollection is used when no collection is configured.
const DefaultCollection = "semantic_model"

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// Index stores vector records in one table, scoped by collection.
type Index struct {
	db         *sql.DB
	collection string
	logger     *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// Option configures an Index.
type Option func(*Index)

// WithCollection scopes the index to a named collection.
// Default is DefaultCollection.
func WithCollection(name string) Option {
	return func(ix *Index) {
		if name != "" {
			ix.collection = name
		}
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(ix *Index) {
		if logger != nil {
			ix.logger = logger
		}
	}
}

// Open opens or creates the database at path and migrates its schema.
// Use MemoryPath for a throwaway index.
func Open(ctx context.Context, path string, opts ...Option) (*Index, error) {
	if path == "" {
		return nil, errors.New("sqlite vector index: path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening vector index: %w", err)
	}
	// One connection: SQLite serializes writers anyway, and an in-memory
	// database exists per connection.
	db.SetMaxOpenConns(1)

	ix := &Index{
		db:         db,
		collection: DefaultCollection,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(ix)
	}
	ix.logger = ix.logger.With("component", "vectorindex", "collection", ix.collection)

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	ix.logger.Info("vector index opened", "path", path)
	return ix, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("configuring vector index: %w", err)
		}
	}
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS vector_records (
		collection TEXT NOT NULL,
		id TEXT NOT NULL,
		content TEXT NOT NULL,
		vector BLOB NOT NULL,
		dimensions INTEGER NOT NULL,
		metadata TEXT,
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (collection, id)
	);
	CREATE INDEX IF NOT EXISTS idx_vector_records_updated_at ON vector_records(updated_at);`)
	if err != nil {
		return fmt.Errorf("migrating vector index: %w", err)
	}
	return nil
}

// Upsert implements vectorindex.Writer.
func (ix *Index) Upsert(ctx context.Context, r vectorindex.Record) error {
	if err := r.Validate(); err != nil {
		return err
	}
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if ix.closed {
		return vectorindex.ErrClosed
	}

	var metadata []byte
	if len(r.Metadata) > 0 {
		var err error
		if metadata, err = json.Marshal(r.Metadata); err != nil {
			return fmt.Errorf("encoding metadata for %s: %w", r.ID, err)
		}
	}
	_, err := ix.db.ExecContext(ctx, `INSERT INTO vector_records(collection,id,content,vector,dimensions,metadata,updated_at)
		VALUES(?,?,?,?,?,?,?)
		ON CONFLICT(collection,id) DO UPDATE SET
		content=excluded.content,
		vector=excluded.vector,
		dimensions=excluded.dimensions,
		metadata=excluded.metadata,
		updated_at=excluded.updated_at`,
		ix.collection, r.ID, r.Content, encodeVector(r.Vector), len(r.Vector), nullable(metadata), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upserting %s: %w", r.ID, err)
	}
	ix.logger.Debug("upserted vector", "id", r.ID, "dimensions", len(r.Vector))
	return nil
}

// Get implements vectorindex.Index.
func (ix *Index) Get(ctx context.Context, id string) (*vectorindex.Record, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if ix.closed {
		return nil, vectorindex.ErrClosed
	}

	row := ix.db.QueryRowContext(ctx,
		`SELECT content,vector,metadata FROM vector_records WHERE collection = ? AND id = ?`,
		ix.collection, id)
	var (
		content  string
		blob     []byte
		metadata sql.NullString
	)
	if err := row.Scan(&content, &blob, &metadata); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", vectorindex.ErrNotFound, id)
		}
		return nil, err
	}
	vector, err := decodeVector(blob)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", id, err)
	}
	r := &vectorindex.Record{ID: id, Content: content, Vector: vector}
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &r.Metadata); err != nil {
			return nil, fmt.Errorf("decoding metadata for %s: %w", id, err)
		}
	}
	return r, nil
}

// Count implements vectorindex.Index.
func (ix *Index) Count(ctx context.Context) (int, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if ix.closed {
		return 0, vectorindex.ErrClosed
	}
	var n int
	err := ix.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM vector_records WHERE collection = ?`, ix.collection).Scan(&n)
	return n, err
}

// Delete implements vectorindex.Index.
func (ix *Index) Delete(ctx context.Context, id string) error {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if ix.closed {
		return vectorindex.ErrClosed
	}
	_, err := ix.db.ExecContext(ctx,
		`DELETE FROM vector_records WHERE collection = ? AND id = ?`, ix.collection, id)
	return err
}

// Close closes the database. Closing twice is a no-op.
func (ix *Index) Close() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.closed {
		return nil
	}
	ix.closed = true
	return ix.db.Close()
}

func nullable(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}

var _ vectorindex.Index = (*Index)(nil)
