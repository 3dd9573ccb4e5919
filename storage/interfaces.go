package storage

import (
	"context"

	"github.com/poiesic/semdex/core"
)

// Strategy persists semantic models to one kind of backend.
// Implementations must be thread-safe and support concurrent access.
type Strategy interface {
	// Name is the strategy name the Factory resolves, e.g. "LocalDisk".
	Name() string

	// SaveModel writes every entity and then the manifest, replacing whatever
	// was persisted at path. Entity files no longer in the model are removed
	// after the manifest is written. Existing embeddings are preserved.
	SaveModel(ctx context.Context, model *core.SemanticModel, path string) error

	// LoadModel reads the manifest and eagerly loads every entity.
	// Returns ErrNotFound if no manifest exists at path.
	LoadModel(ctx context.Context, path string) (*core.SemanticModel, error)

	// LoadEntityContent returns the serialized Envelope of one entity.
	// relativePath is as returned by EntityPath. Transient faults are retried
	// with backoff. Returns ErrNotFound if nothing is persisted.
	LoadEntityContent(ctx context.Context, modelPath, relativePath string) ([]byte, error)

	// CheckStoredContentHash returns the content hash recorded with the
	// entity's embedding. A missing, unreadable or corrupt envelope reports
	// false instead of failing.
	CheckStoredContentHash(ctx context.Context, ref core.EntityRef, path string) (string, bool)

	// SaveChanges persists only the entities in changes, rewriting the
	// manifest only when the entity set changed.
	SaveChanges(ctx context.Context, model *core.SemanticModel, path string, changes ChangeSet) error

	// SaveEmbedding atomically replaces the embedding in the entity's
	// envelope with emb. The persisted entity data is kept, so unsaved
	// in-memory edits stay unsaved; entity's data is written only when no
	// envelope exists yet.
	SaveEmbedding(ctx context.Context, path string, entity core.Entity, emb *Embedding) error

	// Close releases backend resources.
	Close() error
}

// ChangeSet is the selective-persistence input to SaveChanges.
type ChangeSet struct {
	Dirty           []core.Entity
	Removed         []core.EntityRef
	ManifestChanged bool
}

// Empty reports whether there is nothing to persist.
func (c ChangeSet) Empty() bool {
	return len(c.Dirty) == 0 && len(c.Removed) == 0 && !c.ManifestChanged
}

// ChangesFrom snapshots a change tracker.
func ChangesFrom(t *core.ChangeTracker) ChangeSet {
	if t == nil {
		return ChangeSet{}
	}
	return ChangeSet{
		Dirty:           t.DirtyEntities(),
		Removed:         t.RemovedEntities(),
		ManifestChanged: t.HasStructuralChanges(),
	}
}

// TreeStore is a hierarchical byte store addressed by slash-separated names.
type TreeStore interface {
	// ReadFile returns the contents of name, or ErrNotFound.
	ReadFile(ctx context.Context, name string) ([]byte, error)

	// WriteFile atomically replaces name with data, creating parents as needed.
	WriteFile(ctx context.Context, name string, data []byte) error

	// Remove deletes name. Removing a missing name is not an error.
	Remove(ctx context.Context, name string) error

	// List returns the base names of the files directly under dir.
	// A missing dir lists as empty.
	List(ctx context.Context, dir string) ([]string, error)
}
