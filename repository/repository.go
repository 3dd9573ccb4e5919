package repository

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/poiesic/semdex/cache"
	"github.com/poiesic/semdex/core"
	"github.com/poiesic/semdex/storage"
	"github.com/poiesic/semdex/workpool"
)

// Defaults for repository settings.
const (
	DefaultCacheTTL    = 30 * time.Minute
	DefaultLockTimeout = 30 * time.Second
)

// LoadOptions selects what LoadModel layers on top of the stored model.
type LoadOptions struct {
	Caching        bool
	LazyLoading    bool
	ChangeTracking bool
	// StrategyName picks the backend; empty selects the factory default.
	StrategyName string
}

// DefaultLoadOptions enables caching only.
func DefaultLoadOptions() LoadOptions {
	return LoadOptions{Caching: true}
}

// Repository loads and saves semantic models through named strategies,
// applying caching, lazy loading and change tracking. Operations on the same
// model path are serialized; different models proceed in parallel.
type Repository struct {
	factory     *storage.Factory
	cache       *cache.ModelCache
	ownsCache   bool
	locks       *keyedLock
	ttl         time.Duration
	lockTimeout time.Duration
	workers     int
	serializer  *storage.Serializer
	debounce    time.Duration
	logger      *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// Option configures a Repository.
type Option func(*Repository) error

// WithCache uses c instead of a private cache. The repository does not close it.
func WithCache(c *cache.ModelCache) Option {
	return func(r *Repository) error {
		if c != nil {
			r.cache = c
		}
		return nil
	}
}

// WithCacheTTL sets how long loaded models stay cached.
// Default is 30 minutes.
func WithCacheTTL(ttl time.Duration) Option {
	return func(r *Repository) error {
		if ttl <= 0 {
			return fmt.Errorf("%w: cache ttl must be positive", storage.ErrConfiguration)
		}
		r.ttl = ttl
		return nil
	}
}

// WithLockTimeout bounds how long an operation waits for its model lock.
// Zero waits for the context alone. Default is 30 seconds.
func WithLockTimeout(d time.Duration) Option {
	return func(r *Repository) error {
		if d < 0 {
			d = 0
		}
		r.lockTimeout = d
		return nil
	}
}

// WithWorkers sets how many models LoadModels loads at once.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithWorkers(n int) Option {
	return func(r *Repository) error {
		if n > 0 {
			r.workers = n
		}
		return nil
	}
}

// WithSerializer sets the serializer lazy loaders decode entities with.
func WithSerializer(s *storage.Serializer) Option {
	return func(r *Repository) error {
		if s != nil {
			r.serializer = s
		}
		return nil
	}
}

// WithWatchDebounce sets how long Watch waits for changes to settle.
// Default is 250ms.
func WithWatchDebounce(d time.Duration) Option {
	return func(r *Repository) error {
		if d > 0 {
			r.debounce = d
		}
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Repository) error {
		if logger == nil {
			logger = slog.Default()
		}
		r.logger = logger
		return nil
	}
}

// New creates a repository over factory.
func New(factory *storage.Factory, opts ...Option) (*Repository, error) {
	if factory == nil {
		return nil, ErrFactoryRequired
	}
	r := &Repository{
		factory:     factory,
		locks:       newKeyedLock(),
		ttl:         DefaultCacheTTL,
		lockTimeout: DefaultLockTimeout,
		workers:     workpool.DefaultSize(),
		serializer:  storage.DefaultSerializer(),
		debounce:    250 * time.Millisecond,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	r.logger = r.logger.With("component", "repository")
	if r.cache == nil {
		r.cache = cache.New(cache.WithLogger(r.logger))
		r.ownsCache = true
	}
	return r, nil
}

// LoadModel returns the model persisted at path.
//
// With caching, a cached model is returned without touching the strategy;
// lazy loading and change tracking are enabled on it if requested and not
// already enabled. Otherwise the strategy loads the model, lazy loading and
// change tracking are applied, and the result is cached.
func (r *Repository) LoadModel(ctx context.Context, path string, opts LoadOptions) (*core.SemanticModel, error) {
	if err := r.checkOpen(); err != nil {
		return nil, err
	}
	strategy, err := r.factory.Resolve(opts.StrategyName)
	if err != nil {
		return nil, err
	}
	key := cache.MakeKey(path, strategy.Name())

	if opts.Caching {
		if model, ok := r.cache.Get(key); ok {
			r.logger.Debug("cache hit", "path", path, "strategy", strategy.Name())
			if err := r.decorate(model, strategy, path, opts); err != nil {
				return nil, err
			}
			return model, nil
		}
	}

	unlock, err := r.locks.Lock(ctx, cache.CanonicalPath(path), r.lockTimeout)
	if err != nil {
		return nil, err
	}
	defer unlock()

	model, err := strategy.LoadModel(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("loading model at %s: %w", path, err)
	}
	if err := r.decorate(model, strategy, path, opts); err != nil {
		return nil, err
	}

	if opts.Caching {
		if err := r.cache.Set(key, model, r.ttl); err != nil {
			r.logger.Warn("could not cache model", "path", path, "err", err)
		}
	}
	r.logger.Debug("loaded model", "model", model.Name, "path", path, "strategy", strategy.Name(),
		"lazy", opts.LazyLoading, "tracking", opts.ChangeTracking)
	return model, nil
}

// decorate enables lazy loading and change tracking as requested. Both are
// no-ops on a model that already has them.
func (r *Repository) decorate(model *core.SemanticModel, strategy storage.Strategy, path string, opts LoadOptions) error {
	if opts.LazyLoading && !model.IsLazyLoadingEnabled() {
		if err := model.EnableLazyLoading(storage.NewEntityLoader(strategy, path, r.serializer)); err != nil {
			return err
		}
	}
	if opts.ChangeTracking && !model.IsChangeTrackingEnabled() {
		if err := model.EnableChangeTracking(nil); err != nil {
			return err
		}
	}
	return nil
}

// LoadModels loads several models in parallel. Results are in paths order.
func (r *Repository) LoadModels(ctx context.Context, paths []string, opts LoadOptions) ([]*core.SemanticModel, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	pool, err := workpool.New(min(r.workers, len(paths)), workpool.WithLogger(r.logger))
	if err != nil {
		return nil, err
	}
	defer pool.Release()

	models := make([]*core.SemanticModel, len(paths))
	err = pool.Run(ctx, len(paths), func(ctx context.Context, i int) error {
		m, err := r.LoadModel(ctx, paths[i], opts)
		if err != nil {
			return err
		}
		models[i] = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return models, nil
}

// SaveModel writes the whole model through the named strategy and drops its
// cache entry.
func (r *Repository) SaveModel(ctx context.Context, model *core.SemanticModel, path, strategyName string) error {
	if err := r.checkOpen(); err != nil {
		return err
	}
	strategy, err := r.factory.Resolve(strategyName)
	if err != nil {
		return err
	}

	unlock, err := r.locks.Lock(ctx, cache.CanonicalPath(path), r.lockTimeout)
	if err != nil {
		return err
	}
	defer unlock()

	if err := strategy.SaveModel(ctx, model, path); err != nil {
		return fmt.Errorf("saving model %s to %s: %w", model.Name, path, err)
	}
	if tracker := model.ChangeTracker(); tracker != nil {
		tracker.AcceptAllChanges()
	}
	r.cache.Remove(cache.MakeKey(path, strategy.Name()))

	r.logger.Info("saved model", "model", model.Name, "path", path, "strategy", strategy.Name())
	return nil
}

// SaveChanges persists only what the model's change tracker recorded, then
// accepts the changes and refreshes the cache entry if there is one.
// Returns ErrChangeTrackingDisabled if the model has no tracker.
func (r *Repository) SaveChanges(ctx context.Context, model *core.SemanticModel, path, strategyName string) error {
	if err := r.checkOpen(); err != nil {
		return err
	}
	tracker := model.ChangeTracker()
	if tracker == nil {
		return ErrChangeTrackingDisabled
	}
	strategy, err := r.factory.Resolve(strategyName)
	if err != nil {
		return err
	}

	unlock, err := r.locks.Lock(ctx, cache.CanonicalPath(path), r.lockTimeout)
	if err != nil {
		return err
	}
	defer unlock()

	changes := storage.ChangesFrom(tracker)
	if changes.Empty() {
		return nil
	}
	if err := strategy.SaveChanges(ctx, model, path, changes); err != nil {
		return fmt.Errorf("saving changes to %s: %w", path, err)
	}
	tracker.AcceptAllChanges()
	r.cache.Refresh(cache.MakeKey(path, strategy.Name()), model, r.ttl)

	r.logger.Info("saved changes", "model", model.Name, "path", path, "strategy", strategy.Name(),
		"dirty", len(changes.Dirty), "removed", len(changes.Removed))
	return nil
}

// WithModelLock runs fn while holding the lock that serializes loads and
// saves of the model at path. fn must not call back into the repository for
// the same path.
func (r *Repository) WithModelLock(ctx context.Context, path string, fn func(context.Context) error) error {
	if err := r.checkOpen(); err != nil {
		return err
	}
	unlock, err := r.locks.Lock(ctx, cache.CanonicalPath(path), r.lockTimeout)
	if err != nil {
		return err
	}
	defer unlock()
	return fn(ctx)
}

// Strategy resolves a strategy by name.
func (r *Repository) Strategy(name string) (storage.Strategy, error) {
	return r.factory.Resolve(name)
}

// InvalidateCache drops the cache entry for path under the named strategy.
func (r *Repository) InvalidateCache(path, strategyName string) error {
	strategy, err := r.factory.Resolve(strategyName)
	if err != nil {
		return err
	}
	r.cache.Remove(cache.MakeKey(path, strategy.Name()))
	return nil
}

// ClearCache drops every cached model.
func (r *Repository) ClearCache() {
	r.cache.Clear()
}

// CacheStats reports cache statistics.
func (r *Repository) CacheStats() cache.Stats {
	return r.cache.Stats()
}

// Close releases the repository's cache. Strategies belong to the factory
// and are not closed.
func (r *Repository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	if r.ownsCache {
		return r.cache.Close()
	}
	return nil
}

func (r *Repository) checkOpen() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return ErrClosed
	}
	return nil
}
