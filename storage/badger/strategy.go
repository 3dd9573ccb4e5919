package badger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/semdex/core"
	"github.com/poiesic/semdex/retry"
	"github.com/poiesic/semdex/storage"
	"github.com/poiesic/semdex/workpool"
)

// StrategyName is the name the factory resolves to this backend.
const StrategyName = "DocumentStore"

// Document types stored in a partition.
const (
	docTypeModel  = "model"
	docTypeEntity = "entity"
)

// modelDocument is the lightweight per-model summary.
type modelDocument struct {
	ID           string
	PartitionKey string
	DocumentType string
	Name         string
	Source       string
	Description  string
	Entities     []entityPointer
	UpdatedAt    time.Time
}

type entityPointer struct {
	Type       core.EntityType
	Schema     string
	Name       string
	DocumentID string
}

// entityDocument holds one entity and its embedding.
type entityDocument struct {
	ID           string
	PartitionKey string
	DocumentType string
	EntityType   core.EntityType
	Schema       string
	Name         string
	Data         json.RawMessage
	Embedding    *storage.Embedding
	UpdatedAt    time.Time
}

// Strategy implements storage.Strategy on BadgerDB. Each model is a partition
// named after the model, holding one summary document and one document per
// entity.
type Strategy struct {
	backend *Backend
	owned   bool
	opts    storage.Options
	logger  *slog.Logger
}

var _ storage.Strategy = (*Strategy)(nil)

// New creates a strategy on an open backend. Closing the strategy does not
// close the backend.
func New(backend *Backend, opts ...storage.Option) *Strategy {
	o := storage.ApplyOptions(opts...)
	return &Strategy{
		backend: backend,
		opts:    o,
		logger:  o.Logger.With("component", "storage", "strategy", StrategyName),
	}
}

// Open opens a backend at path (in memory when inMemory is set) and returns
// a strategy that owns it.
func Open(path string, inMemory bool, opts ...storage.Option) (storage.Strategy, error) {
	backend, err := OpenBackend(path, inMemory)
	if err != nil {
		return nil, err
	}
	s := New(backend, opts...)
	s.owned = true
	return s, nil
}

// Name implements storage.Strategy.
func (s *Strategy) Name() string { return StrategyName }

// Close implements storage.Strategy.
func (s *Strategy) Close() error {
	if s.owned && !s.backend.IsClosed() {
		return s.backend.Close()
	}
	return nil
}

// SaveModel implements storage.Strategy. Every entity document is upserted on
// its own, then the summary, then documents of removed entities are deleted.
func (s *Strategy) SaveModel(ctx context.Context, model *core.SemanticModel, modelPath string) error {
	if err := core.ValidateModel(model); err != nil {
		return err
	}
	entities, err := model.Entities(ctx)
	if err != nil {
		return fmt.Errorf("reading entities of %s: %w", model.Name, err)
	}
	partition := partitionFor(modelPath)

	if err := s.upsertEntities(ctx, partition, entities); err != nil {
		return err
	}
	if err := s.writeSummary(ctx, partition, model, entities); err != nil {
		return err
	}
	if err := s.removeOrphans(ctx, partition, entities); err != nil {
		s.logger.Warn("removing orphaned documents", "partition", partition, "err", err)
	}

	s.logger.Debug("saved model", "model", model.Name, "partition", partition, "entities", len(entities))
	return nil
}

// LoadModel implements storage.Strategy.
func (s *Strategy) LoadModel(ctx context.Context, modelPath string) (*core.SemanticModel, error) {
	partition := partitionFor(modelPath)

	var summary modelDocument
	err := s.read(ctx, makeDocKey(partition, modelDocID), func(val []byte) (err error) {
		summary, err = decodeModelDoc(val)
		return
	})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: no model document in partition %s", storage.ErrNotFound, partition)
		}
		return nil, err
	}

	entities := make([]core.Entity, len(summary.Entities))
	err = s.run(ctx, len(summary.Entities), func(ctx context.Context, i int) error {
		p := summary.Entities[i]
		ref := core.EntityRef{Type: p.Type, Schema: p.Schema, Name: p.Name}
		doc, err := s.readEntity(ctx, partition, ref)
		if errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn("entity listed in summary is missing", "entity", ref, "partition", partition)
			entities[i], err = storage.StubEntity(ref)
			return err
		}
		if err != nil {
			return err
		}
		entity, err := core.NewEntity(ref.Type)
		if err != nil {
			return err
		}
		if err := s.opts.Serializer.Unmarshal(doc.Data, entity); err != nil {
			return fmt.Errorf("decoding %s: %w", ref, err)
		}
		entities[i] = entity
		return nil
	})
	if err != nil {
		return nil, err
	}

	model := core.NewSemanticModel(summary.Name, summary.Source, summary.Description)
	for _, e := range entities {
		if err := model.AddEntity(ctx, e); err != nil {
			return nil, fmt.Errorf("loading %s: %w", partition, err)
		}
	}
	return model, nil
}

// LoadEntityContent implements storage.Strategy. The entity document is
// returned in envelope form so every backend serves the same bytes.
func (s *Strategy) LoadEntityContent(ctx context.Context, modelPath, relativePath string) ([]byte, error) {
	ref, err := storage.ParseEntityPath(relativePath)
	if err != nil {
		return nil, err
	}
	doc, err := s.readEntity(ctx, partitionFor(modelPath), ref)
	if err != nil {
		return nil, err
	}
	return s.opts.Serializer.Marshal(&storage.Envelope{Data: doc.Data, Embedding: doc.Embedding})
}

// CheckStoredContentHash implements storage.Strategy.
func (s *Strategy) CheckStoredContentHash(ctx context.Context, ref core.EntityRef, modelPath string) (string, bool) {
	doc, err := s.readEntity(ctx, partitionFor(modelPath), ref)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn("unreadable entity document, treating as unhashed", "entity", ref, "err", err)
		}
		return "", false
	}
	env := storage.Envelope{Data: doc.Data, Embedding: doc.Embedding}
	return env.ContentHash()
}

// SaveChanges implements storage.Strategy.
func (s *Strategy) SaveChanges(ctx context.Context, model *core.SemanticModel, modelPath string, changes storage.ChangeSet) error {
	if err := core.ValidateModel(model); err != nil {
		return err
	}
	if changes.Empty() {
		return nil
	}
	partition := partitionFor(modelPath)

	if err := s.upsertEntities(ctx, partition, changes.Dirty); err != nil {
		return err
	}
	if changes.ManifestChanged {
		entities, err := model.Entities(ctx)
		if err != nil {
			return fmt.Errorf("reading entities of %s: %w", model.Name, err)
		}
		if err := s.writeSummary(ctx, partition, model, entities); err != nil {
			return err
		}
	}
	if len(changes.Removed) > 0 {
		keys := make([][]byte, 0, len(changes.Removed))
		for _, ref := range changes.Removed {
			keys = append(keys, makeDocKey(partition, entityDocID(partition, ref)))
		}
		if err := s.delete(ctx, keys); err != nil {
			return err
		}
	}
	return nil
}

// SaveEmbedding implements storage.Strategy. The stored entity data is kept;
// entity supplies it only when no document exists yet.
func (s *Strategy) SaveEmbedding(ctx context.Context, modelPath string, entity core.Entity, emb *storage.Embedding) error {
	if err := core.ValidateEntity(entity); err != nil {
		return err
	}
	data, err := s.opts.Serializer.MarshalCompact(entity)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", entity.Ref(), err)
	}
	return s.upsertEntity(ctx, partitionFor(modelPath), entity.Ref(), func(old *entityDocument) (json.RawMessage, *storage.Embedding) {
		if old != nil && len(old.Data) > 0 {
			return old.Data, emb
		}
		return data, emb
	})
}

func (s *Strategy) upsertEntities(ctx context.Context, partition string, entities []core.Entity) error {
	return s.run(ctx, len(entities), func(ctx context.Context, i int) error {
		entity := entities[i]
		data, err := s.opts.Serializer.MarshalCompact(entity)
		if err != nil {
			return fmt.Errorf("encoding %s: %w", entity.Ref(), err)
		}
		return s.upsertEntity(ctx, partition, entity.Ref(), func(old *entityDocument) (json.RawMessage, *storage.Embedding) {
			if old != nil {
				return data, old.Embedding
			}
			return data, nil
		})
	})
}

// docUpdate maps the stored document, nil when absent or unreadable, to the
// data and embedding to store.
type docUpdate func(old *entityDocument) (json.RawMessage, *storage.Embedding)

// upsertEntity writes one entity document in a single transaction.
func (s *Strategy) upsertEntity(ctx context.Context, partition string, ref core.EntityRef, update docUpdate) error {
	id := entityDocID(partition, ref)
	key := makeDocKey(partition, id)

	return retry.Do(ctx, s.opts.Retry, func(ctx context.Context) error {
		return s.backend.WithTx(func(tx *badger.Txn) error {
			var old *entityDocument
			if val, err := get(tx, key); err == nil {
				if doc, err := decodeEntityDoc(val); err == nil {
					old = &doc
				}
			}
			data, emb := update(old)
			doc := entityDocument{
				ID:           id,
				PartitionKey: partition,
				DocumentType: docTypeEntity,
				EntityType:   ref.Type,
				Schema:       ref.Schema,
				Name:         ref.Name,
				Data:         data,
				Embedding:    emb,
				UpdatedAt:    time.Now().UTC(),
			}
			if err := tx.Set(key, encodeEntityDoc(doc)); err != nil {
				return err
			}
			return tx.Commit()
		}, true)
	})
}

func (s *Strategy) writeSummary(ctx context.Context, partition string, model *core.SemanticModel, entities []core.Entity) error {
	doc := modelDocument{
		ID:           modelDocID,
		PartitionKey: partition,
		DocumentType: docTypeModel,
		Name:         model.Name,
		Source:       model.Source,
		Description:  model.Description,
		Entities:     make([]entityPointer, 0, len(entities)),
		UpdatedAt:    time.Now().UTC(),
	}
	for _, e := range entities {
		ref := e.Ref()
		doc.Entities = append(doc.Entities, entityPointer{
			Type:       ref.Type,
			Schema:     ref.Schema,
			Name:       ref.Name,
			DocumentID: entityDocID(partition, ref),
		})
	}
	val := encodeModelDoc(doc)
	key := makeDocKey(partition, modelDocID)
	return retry.Do(ctx, s.opts.Retry, func(ctx context.Context) error {
		return s.backend.WithTx(func(tx *badger.Txn) error {
			if err := tx.Set(key, val); err != nil {
				return err
			}
			return tx.Commit()
		}, true)
	})
}

// removeOrphans deletes entity documents in the partition that entities
// does not name.
func (s *Strategy) removeOrphans(ctx context.Context, partition string, entities []core.Entity) error {
	keep := make(map[string]struct{}, len(entities)+1)
	keep[string(makeDocKey(partition, modelDocID))] = struct{}{}
	for _, e := range entities {
		keep[string(makeDocKey(partition, entityDocID(partition, e.Ref())))] = struct{}{}
	}

	var orphans [][]byte
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		for _, key := range keysWithPrefix(tx, makePartitionPrefix(partition)) {
			if _, ok := keep[string(key)]; !ok {
				orphans = append(orphans, key)
			}
		}
		return nil
	}, false)
	if err != nil {
		return err
	}
	return s.delete(ctx, orphans)
}

func (s *Strategy) delete(ctx context.Context, keys [][]byte) error {
	if len(keys) == 0 {
		return nil
	}
	return retry.Do(ctx, s.opts.Retry, func(ctx context.Context) error {
		return s.backend.WithTx(func(tx *badger.Txn) error {
			for _, key := range keys {
				if err := tx.Delete(key); err != nil {
					return err
				}
			}
			return tx.Commit()
		}, true)
	})
}

func (s *Strategy) readEntity(ctx context.Context, partition string, ref core.EntityRef) (*entityDocument, error) {
	var doc entityDocument
	err := s.read(ctx, makeDocKey(partition, entityDocID(partition, ref)), func(val []byte) (err error) {
		doc, err = decodeEntityDoc(val)
		return
	})
	if err != nil {
		return nil, err
	}
	if len(doc.Data) == 0 || bytes.Equal(doc.Data, []byte("null")) {
		return nil, fmt.Errorf("%w: document for %s has no data", storage.ErrSerialization, ref)
	}
	return &doc, nil
}

// read fetches key with retries and hands its value to decode.
func (s *Strategy) read(ctx context.Context, key []byte, decode func([]byte) error) error {
	val, err := retry.DoWithResult(ctx, s.opts.Retry, func(ctx context.Context) ([]byte, error) {
		var val []byte
		err := s.backend.WithTx(func(tx *badger.Txn) error {
			var err error
			val, err = get(tx, key)
			return err
		}, false)
		return val, err
	})
	if err != nil {
		return err
	}
	return decode(val)
}

func (s *Strategy) run(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	if n == 0 {
		return nil
	}
	pool, err := workpool.New(min(s.opts.Workers, n), workpool.WithLogger(s.opts.Logger))
	if err != nil {
		return err
	}
	defer pool.Release()
	return pool.Run(ctx, n, fn)
}
