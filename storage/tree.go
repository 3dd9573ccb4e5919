package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/poiesic/semdex/core"
	"github.com/poiesic/semdex/retry"
	"github.com/poiesic/semdex/workpool"
)

// TreeStrategy implements Strategy over a TreeStore using the
// manifest-plus-envelopes layout. The file and object backends both use it.
type TreeStrategy struct {
	name   string
	store  TreeStore
	opts   Options
	logger *slog.Logger
}

// NewTreeStrategy creates a strategy named name over store.
func NewTreeStrategy(name string, store TreeStore, opts ...Option) *TreeStrategy {
	o := ApplyOptions(opts...)
	return &TreeStrategy{
		name:   name,
		store:  store,
		opts:   o,
		logger: o.Logger.With("component", "storage", "strategy", name),
	}
}

// Name implements Strategy.
func (s *TreeStrategy) Name() string { return s.name }

// Serializer returns the strategy's serializer.
func (s *TreeStrategy) Serializer() *Serializer { return s.opts.Serializer }

// Close implements Strategy. The tree store holds no resources of its own.
func (s *TreeStrategy) Close() error { return nil }

// SaveModel implements Strategy.
func (s *TreeStrategy) SaveModel(ctx context.Context, model *core.SemanticModel, modelPath string) error {
	if err := core.ValidateModel(model); err != nil {
		return err
	}
	entities, err := model.Entities(ctx)
	if err != nil {
		return fmt.Errorf("reading entities of %s: %w", model.Name, err)
	}

	if err := s.writeEntities(ctx, modelPath, entities); err != nil {
		return err
	}
	manifest := BuildManifest(model, entities)
	if err := s.writeManifest(ctx, modelPath, manifest); err != nil {
		return err
	}
	s.removeOrphans(ctx, modelPath, manifest)

	s.logger.Debug("saved model", "model", model.Name, "path", modelPath, "entities", len(entities))
	return nil
}

// LoadModel implements Strategy.
func (s *TreeStrategy) LoadModel(ctx context.Context, modelPath string) (*core.SemanticModel, error) {
	manifest, err := s.readManifest(ctx, modelPath)
	if err != nil {
		return nil, err
	}

	refs := manifest.Refs()
	entities := make([]core.Entity, len(refs))
	err = s.run(ctx, len(refs), func(ctx context.Context, i int) error {
		mr := refs[i]
		data, err := s.LoadEntityContent(ctx, modelPath, mr.RelativePath)
		if errors.Is(err, ErrNotFound) {
			s.logger.Warn("entity listed in manifest is missing", "entity", mr.Ref, "path", mr.RelativePath)
			entities[i], err = StubEntity(mr.Ref)
			return err
		}
		if err != nil {
			return err
		}
		entity, _, err := DecodeEntity(s.opts.Serializer, mr.Ref.Type, data)
		if err != nil {
			return fmt.Errorf("decoding %s: %w", mr.RelativePath, err)
		}
		entities[i] = entity
		return nil
	})
	if err != nil {
		return nil, err
	}

	model := manifest.NewModel()
	for _, e := range entities {
		if err := model.AddEntity(ctx, e); err != nil {
			return nil, fmt.Errorf("loading %s: %w", modelPath, err)
		}
	}
	return model, nil
}

// LoadEntityContent implements Strategy.
func (s *TreeStrategy) LoadEntityContent(ctx context.Context, modelPath, relativePath string) ([]byte, error) {
	name := JoinPath(modelPath, relativePath)
	return retry.DoWithResult(ctx, s.opts.Retry, func(ctx context.Context) ([]byte, error) {
		return s.store.ReadFile(ctx, name)
	})
}

// CheckStoredContentHash implements Strategy.
func (s *TreeStrategy) CheckStoredContentHash(ctx context.Context, ref core.EntityRef, modelPath string) (string, bool) {
	data, err := s.LoadEntityContent(ctx, modelPath, EntityPath(ref))
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.Warn("unreadable envelope, treating as unhashed", "entity", ref, "err", err)
		}
		return "", false
	}
	env, err := DecodeEnvelope(s.opts.Serializer, data)
	if err != nil {
		s.logger.Warn("corrupt envelope, treating as unhashed", "entity", ref, "err", err)
		return "", false
	}
	return env.ContentHash()
}

// SaveChanges implements Strategy.
func (s *TreeStrategy) SaveChanges(ctx context.Context, model *core.SemanticModel, modelPath string, changes ChangeSet) error {
	if err := core.ValidateModel(model); err != nil {
		return err
	}
	if changes.Empty() {
		return nil
	}

	if err := s.writeEntities(ctx, modelPath, changes.Dirty); err != nil {
		return err
	}
	if changes.ManifestChanged {
		entities, err := model.Entities(ctx)
		if err != nil {
			return fmt.Errorf("reading entities of %s: %w", model.Name, err)
		}
		if err := s.writeManifest(ctx, modelPath, BuildManifest(model, entities)); err != nil {
			return err
		}
	}
	for _, ref := range changes.Removed {
		if err := s.store.Remove(ctx, JoinPath(modelPath, EntityPath(ref))); err != nil {
			return fmt.Errorf("removing %s: %w", ref, err)
		}
	}

	s.logger.Debug("saved changes", "model", model.Name, "path", modelPath,
		"dirty", len(changes.Dirty), "removed", len(changes.Removed), "manifest", changes.ManifestChanged)
	return nil
}

// SaveEmbedding implements Strategy. The persisted entity data is kept;
// entity supplies it only when no readable envelope exists.
func (s *TreeStrategy) SaveEmbedding(ctx context.Context, modelPath string, entity core.Entity, emb *Embedding) error {
	if err := core.ValidateEntity(entity); err != nil {
		return err
	}
	name := JoinPath(modelPath, EntityPath(entity.Ref()))
	var (
		data []byte
		err  error
	)
	if env := s.existingEnvelope(ctx, name); env != nil {
		data, err = s.opts.Serializer.Marshal(&Envelope{Data: env.Data, Embedding: emb})
	} else {
		data, err = EncodeEnvelope(s.opts.Serializer, entity, emb)
	}
	if err != nil {
		return err
	}
	return s.store.WriteFile(ctx, name, data)
}

// writeEntities writes one envelope per entity, keeping any embedding
// already persisted for it.
func (s *TreeStrategy) writeEntities(ctx context.Context, modelPath string, entities []core.Entity) error {
	return s.run(ctx, len(entities), func(ctx context.Context, i int) error {
		e := entities[i]
		name := JoinPath(modelPath, EntityPath(e.Ref()))
		data, err := EncodeEnvelope(s.opts.Serializer, e, s.existingEmbedding(ctx, name))
		if err != nil {
			return err
		}
		if err := s.store.WriteFile(ctx, name, data); err != nil {
			return fmt.Errorf("writing %s: %w", e.Ref(), err)
		}
		return nil
	})
}

func (s *TreeStrategy) existingEmbedding(ctx context.Context, name string) *Embedding {
	if env := s.existingEnvelope(ctx, name); env != nil {
		return env.Embedding
	}
	return nil
}

// existingEnvelope returns the envelope stored at name, or nil when it is
// missing or unreadable.
func (s *TreeStrategy) existingEnvelope(ctx context.Context, name string) *Envelope {
	data, err := s.store.ReadFile(ctx, name)
	if err != nil {
		return nil
	}
	env, err := DecodeEnvelope(s.opts.Serializer, data)
	if err != nil {
		s.logger.Warn("ignoring unreadable envelope", "path", name, "err", err)
		return nil
	}
	return env
}

func (s *TreeStrategy) writeManifest(ctx context.Context, modelPath string, m *Manifest) error {
	data, err := s.opts.Serializer.Marshal(m)
	if err != nil {
		return err
	}
	if err := s.store.WriteFile(ctx, JoinPath(modelPath, ManifestFile), data); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	return nil
}

func (s *TreeStrategy) readManifest(ctx context.Context, modelPath string) (*Manifest, error) {
	name := JoinPath(modelPath, ManifestFile)
	data, err := retry.DoWithResult(ctx, s.opts.Retry, func(ctx context.Context) ([]byte, error) {
		return s.store.ReadFile(ctx, name)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: no manifest at %s", ErrNotFound, modelPath)
		}
		return nil, err
	}
	var m Manifest
	if err := s.opts.Serializer.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("reading manifest at %s: %w", modelPath, err)
	}
	if strings.TrimSpace(m.Name) == "" {
		return nil, fmt.Errorf("%w: manifest at %s has no model name", ErrSerialization, modelPath)
	}
	return &m, nil
}

// removeOrphans deletes entity files the manifest no longer names. Failures
// are logged; the manifest is already authoritative.
func (s *TreeStrategy) removeOrphans(ctx context.Context, modelPath string, m *Manifest) {
	keep := make(map[string]struct{})
	for _, mr := range m.Refs() {
		keep[path.Clean(mr.RelativePath)] = struct{}{}
	}
	for _, t := range core.EntityTypes {
		folder := t.Folder()
		files, err := s.store.List(ctx, JoinPath(modelPath, folder))
		if err != nil {
			s.logger.Warn("listing entities for cleanup", "folder", folder, "err", err)
			continue
		}
		for _, f := range files {
			rel := path.Join(folder, f)
			if _, ok := keep[rel]; ok || !strings.HasSuffix(f, entityExt) {
				continue
			}
			if err := s.store.Remove(ctx, JoinPath(modelPath, rel)); err != nil {
				s.logger.Warn("removing orphaned entity", "path", rel, "err", err)
				continue
			}
			s.logger.Debug("removed orphaned entity", "path", rel)
		}
	}
}

func (s *TreeStrategy) run(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
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
