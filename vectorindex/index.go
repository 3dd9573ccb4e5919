// Package vectorindex defines the vector index that holds entity embeddings
// for similarity search. Only the write side and simple inspection are
// needed by semdex; searching belongs to the index itself.
package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned by Get when no record has the id.
	ErrNotFound = errors.New("vector record not found")

	// ErrInvalidRecord is returned by Upsert for records without an id or vector.
	ErrInvalidRecord = errors.New("invalid vector record")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("vector index is closed")
)

// Record is one entity's vector and the text it was generated from.
type Record struct {
	ID       string
	Content  string
	Vector   []float32
	Metadata map[string]string
}

// Validate checks that the record can be stored.
func (r Record) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidRecord)
	}
	if len(r.Vector) == 0 {
		return fmt.Errorf("%w: %s has no vector", ErrInvalidRecord, r.ID)
	}
	return nil
}

// Writer upserts vector records. Implementations must be safe for concurrent use.
type Writer interface {
	// Upsert inserts the record or replaces the one with the same id.
	Upsert(ctx context.Context, record Record) error
}

// Index is a Writer that can also be inspected and closed.
type Index interface {
	Writer

	// Get returns the record with id, or ErrNotFound.
	Get(ctx context.Context, id string) (*Record, error)

	// Count returns the number of records.
	Count(ctx context.Context) (int, error)

	// Delete removes the record with id. Deleting a missing id is not an error.
	Delete(ctx context.Context, id string) error

	Close() error
}
