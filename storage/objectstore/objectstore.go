// Package objectstore persists semantic models in a hierarchical object
// store: a flat key space where "/" separates path segments.
package objectstore

import (
	"context"
	"path"
	"sort"
	"strings"

	"github.com/poiesic/semdex/storage"
)

// StrategyName is the name the factory resolves to this backend.
const StrategyName = "ObjectStore"

// BlobStore is the minimal object-store surface the strategy needs.
// Put must replace an object atomically.
type BlobStore interface {
	// Put stores data under key.
	Put(ctx context.Context, key string, data []byte) error
	// Get returns the object at key, or storage.ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// List returns every key starting with prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}

type settings struct {
	prefix  string
	storage []storage.Option
}

// Option configures the object-store strategy.
type Option func(*settings)

// WithPrefix places every model under prefix within the store.
func WithPrefix(prefix string) Option {
	return func(s *settings) {
		s.prefix = strings.Trim(prefix, "/")
	}
}

// WithStorageOptions passes shared strategy options through.
func WithStorageOptions(opts ...storage.Option) Option {
	return func(s *settings) {
		s.storage = append(s.storage, opts...)
	}
}

// New creates an object-store strategy over blobs.
func New(blobs BlobStore, opts ...Option) storage.Strategy {
	var s settings
	for _, opt := range opts {
		opt(&s)
	}
	return storage.NewTreeStrategy(StrategyName, &tree{blobs: blobs, prefix: s.prefix}, s.storage...)
}

// tree adapts a BlobStore to storage.TreeStore.
type tree struct {
	blobs  BlobStore
	prefix string
}

func (t *tree) key(name string) string {
	name = strings.Trim(strings.ReplaceAll(name, `\`, "/"), "/")
	if t.prefix == "" {
		return path.Clean(name)
	}
	return path.Join(t.prefix, name)
}

func (t *tree) ReadFile(ctx context.Context, name string) ([]byte, error) {
	return t.blobs.Get(ctx, t.key(name))
}

func (t *tree) WriteFile(ctx context.Context, name string, data []byte) error {
	return t.blobs.Put(ctx, t.key(name), data)
}

func (t *tree) Remove(ctx context.Context, name string) error {
	return t.blobs.Delete(ctx, t.key(name))
}

// List emulates a delimiter listing: only keys directly under dir.
func (t *tree) List(ctx context.Context, dir string) ([]string, error) {
	prefix := t.key(dir) + "/"
	keys, err := t.blobs.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, k := range keys {
		rest := strings.TrimPrefix(k, prefix)
		if rest == "" || strings.Contains(rest, "/") {
			continue
		}
		names = append(names, rest)
	}
	sort.Strings(names)
	return names, nil
}
