// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package semdex

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/afero"

	"github.com/poiesic/semdex/ai"
	"github.com/poiesic/semdex/ai/azure"
	"github.com/poiesic/semdex/ai/openai"
	"github.com/poiesic/semdex/config"
	"github.com/poiesic/semdex/core"
	"github.com/poiesic/semdex/repository"
	"github.com/poiesic/semdex/storage"
	"github.com/poiesic/semdex/storage/badger"
	"github.com/poiesic/semdex/storage/localdisk"
	"github.com/poiesic/semdex/storage/objectstore"
	"github.com/poiesic/semdex/vectorindex"
	"github.com/poiesic/semdex/vectorindex/sqlite"
	"github.com/poiesic/semdex/vectors"
)

// Workspace is a project directory with its settings, storage backends,
// repository, embedding provider and vector index wired together.
type Workspace struct {
	projectPath  string
	settings     *config.Settings
	factory      *storage.Factory
	repo         *repository.Repository
	provider     ai.Provider
	ownsProvider bool
	index        *sqlite.Index
	synchronizer *vectors.Synchronizer
	logger       *slog.Logger
}

// WorkspaceOption configures a Workspace.
type WorkspaceOption func(*workspaceOptions)

type workspaceOptions struct {
	settings *config.Settings
	provider ai.Provider
	progress io.Writer
	logger   *slog.Logger
}

// WithSettings uses s instead of reading {project}/settings.json.
func WithSettings(s *config.Settings) WorkspaceOption {
	return func(o *workspaceOptions) {
		o.settings = s
	}
}

// WithProvider uses p for embeddings instead of the configured provider.
// The workspace does not close it.
func WithProvider(p ai.Provider) WorkspaceOption {
	return func(o *workspaceOptions) {
		o.provider = p
	}
}

// WithProgress writes synchronization progress to w.
func WithProgress(w io.Writer) WorkspaceOption {
	return func(o *workspaceOptions) {
		o.progress = w
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) WorkspaceOption {
	return func(o *workspaceOptions) {
		o.logger = logger
	}
}

// Open wires up the workspace rooted at projectPath.
func Open(ctx context.Context, projectPath string, opts ...WorkspaceOption) (*Workspace, error) {
	options := &workspaceOptions{
		progress: io.Discard,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}

	settings := options.settings
	if settings == nil {
		var err error
		settings, err = config.Load(projectPath)
		if err != nil {
			return nil, err
		}
	} else if err := settings.Validate(); err != nil {
		return nil, err
	}

	w := &Workspace{
		projectPath: projectPath,
		settings:    settings,
		logger:      options.logger.With("component", "workspace"),
	}
	if err := w.open(ctx, options); err != nil {
		if cerr := w.Close(); cerr != nil {
			w.logger.Error("error closing partially opened workspace", "err", cerr)
		}
		return nil, err
	}
	w.logger.Info("workspace opened", "project", projectPath,
		"model", settings.SemanticModel.Name, "strategy", settings.SemanticModel.PersistenceStrategy)
	return w, nil
}

func (w *Workspace) open(ctx context.Context, options *workspaceOptions) error {
	s := w.settings
	storageOpts := []storage.Option{
		storage.WithWorkers(s.SemanticModel.MaxConcurrentOperations),
		storage.WithLogger(options.logger),
	}

	factory, err := w.newFactory(storageOpts)
	if err != nil {
		return err
	}
	w.factory = factory

	repoOpts := []repository.Option{
		repository.WithLockTimeout(s.Repository.LockTimeout),
		repository.WithWorkers(s.SemanticModel.MaxConcurrentOperations),
		repository.WithLogger(options.logger),
	}
	if s.Repository.CacheTTL > 0 {
		repoOpts = append(repoOpts, repository.WithCacheTTL(s.Repository.CacheTTL))
	}
	w.repo, err = repository.New(factory, repoOpts...)
	if err != nil {
		return err
	}

	if options.provider != nil {
		w.provider = options.provider
	} else {
		w.provider, err = newProvider(s.AIConfig())
		if err != nil {
			return err
		}
		w.ownsProvider = true
	}

	w.index, err = sqlite.Open(ctx, s.VectorIndexPath(w.projectPath),
		sqlite.WithCollection(s.VectorIndex.Collection),
		sqlite.WithLogger(options.logger),
	)
	if err != nil {
		return err
	}

	strategy, err := factory.Resolve(s.SemanticModel.PersistenceStrategy)
	if err != nil {
		return err
	}
	w.synchronizer, err = vectors.New(strategy, w.provider, w.index,
		vectors.WithConfig(&vectors.Config{
			Workers:        s.Synchronization.Workers,
			MaxRetries:     s.Synchronization.MaxRetries,
			RetryDelay:     s.Synchronization.RetryDelay,
			Normalize:      s.Synchronization.Normalize,
			ReportInterval: s.Synchronization.ReportInterval,
		}),
		vectors.WithModelLock(w.repo),
		vectors.WithProgress(options.progress),
		vectors.WithLogger(options.logger),
	)
	return err
}

// newFactory registers the three storage backends. The document store is
// only opened when it is the configured strategy, since Badger holds a
// directory lock.
func (w *Workspace) newFactory(storageOpts []storage.Option) (*storage.Factory, error) {
	s := w.settings
	factory := storage.NewFactory(s.SemanticModel.PersistenceStrategy)
	factory.Register(localdisk.New(storageOpts...))

	blobs, err := objectstore.NewFsBlobStore(afero.NewOsFs(), s.ObjectStoreRoot(w.projectPath))
	if err != nil {
		return nil, err
	}
	factory.Register(objectstore.New(blobs,
		objectstore.WithPrefix(s.Storage.ObjectStorePrefix),
		objectstore.WithStorageOptions(storageOpts...),
	))

	if strings.EqualFold(s.SemanticModel.PersistenceStrategy, badger.StrategyName) {
		docs, err := badger.Open(s.DocumentStorePath(w.projectPath), s.Storage.DocumentStoreInMemory, storageOpts...)
		if err != nil {
			return nil, fmt.Errorf("opening document store: %w", err)
		}
		factory.Register(docs)
	}

	if _, err := factory.Resolve(""); err != nil {
		return nil, err
	}
	return factory, nil
}

func newProvider(cfg *ai.Config) (ai.Provider, error) {
	cfg.Normalize()
	switch cfg.Provider {
	case ai.ProviderOpenAI:
		return openai.NewProvider(cfg)
	case ai.ProviderAzure:
		return azure.NewProvider(cfg)
	default:
		return nil, fmt.Errorf("%w: unknown embedding provider %q", ai.ErrInvalidConfig, cfg.Provider)
	}
}

// Settings returns the workspace settings.
func (w *Workspace) Settings() *config.Settings {
	return w.settings
}

// ModelPath returns where the workspace's semantic model is persisted.
func (w *Workspace) ModelPath() string {
	return w.settings.ModelPath(w.projectPath)
}

// Repository returns the model repository.
func (w *Workspace) Repository() *repository.Repository {
	return w.repo
}

// Index returns the vector index.
func (w *Workspace) Index() vectorindex.Index {
	return w.index
}

// LoadOptions returns the repository load options from settings.
func (w *Workspace) LoadOptions() repository.LoadOptions {
	r := w.settings.Repository
	return repository.LoadOptions{
		Caching:        r.Caching,
		LazyLoading:    r.LazyLoading,
		ChangeTracking: r.ChangeTracking,
		StrategyName:   w.settings.SemanticModel.PersistenceStrategy,
	}
}

// LoadModel loads the workspace's semantic model with the configured options.
func (w *Workspace) LoadModel(ctx context.Context) (*core.SemanticModel, error) {
	return w.repo.LoadModel(ctx, w.ModelPath(), w.LoadOptions())
}

// SaveModel writes the whole model with the configured strategy.
func (w *Workspace) SaveModel(ctx context.Context, model *core.SemanticModel) error {
	return w.repo.SaveModel(ctx, model, w.ModelPath(), w.settings.SemanticModel.PersistenceStrategy)
}

// SaveChanges writes only the tracked changes of model.
func (w *Workspace) SaveChanges(ctx context.Context, model *core.SemanticModel) error {
	return w.repo.SaveChanges(ctx, model, w.ModelPath(), w.settings.SemanticModel.PersistenceStrategy)
}

// Synchronize brings the model's embeddings up to date and returns how many
// entities were processed.
func (w *Workspace) Synchronize(ctx context.Context, model *core.SemanticModel, opts vectors.Options) (int, error) {
	return w.synchronizer.Synchronize(ctx, model, w.ModelPath(), opts)
}

// SynchronizeDetailed is Synchronize returning the full run result.
func (w *Workspace) SynchronizeDetailed(ctx context.Context, model *core.SemanticModel, opts vectors.Options) (*vectors.Result, error) {
	return w.synchronizer.Run(ctx, model, w.ModelPath(), opts)
}

// Close releases everything the workspace opened.
func (w *Workspace) Close() error {
	var errs []error
	if w.provider != nil && w.ownsProvider {
		if err := w.provider.Close(); err != nil {
			w.logger.Error("error closing AI provider", "err", err)
			errs = append(errs, err)
		}
	}
	if w.index != nil {
		if err := w.index.Close(); err != nil {
			w.logger.Error("error closing vector index", "err", err)
			errs = append(errs, err)
		}
	}
	if w.repo != nil {
		if err := w.repo.Close(); err != nil {
			w.logger.Error("error closing repository", "err", err)
			errs = append(errs, err)
		}
	}
	if w.factory != nil {
		if err := w.factory.Close(); err != nil {
			w.logger.Error("error closing storage", "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// EntityStatus reports whether an entity's stored embedding matches its
// current content.
type EntityStatus struct {
	Ref core.EntityRef
	Key string
	// Embedded is true when a content hash is stored for the entity.
	Embedded bool
	// Current is true when the stored hash matches the entity's content.
	Current bool
}

// EmbeddingStatus checks every entity of model against its stored hash
// without generating anything.
func (w *Workspace) EmbeddingStatus(ctx context.Context, model *core.SemanticModel) ([]EntityStatus, error) {
	strategy, err := w.factory.Resolve(w.settings.SemanticModel.PersistenceStrategy)
	if err != nil {
		return nil, err
	}
	entities, err := model.Entities(ctx)
	if err != nil {
		return nil, err
	}
	statuses := make([]EntityStatus, 0, len(entities))
	for _, e := range entities {
		ref := e.Ref()
		stored, ok := strategy.CheckStoredContentHash(ctx, ref, w.ModelPath())
		statuses = append(statuses, EntityStatus{
			Ref:      ref,
			Key:      vectors.CompositeKey(model.Name, ref),
			Embedded: ok,
			Current:  ok && stored == core.ContentHash(vectors.CanonicalText(e)),
		})
	}
	return statuses, nil
}
