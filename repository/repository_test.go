package repository

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/semdex/cache"
	"github.com/poiesic/semdex/core"
	"github.com/poiesic/semdex/storage"
	"github.com/poiesic/semdex/storage/localdisk"
)

const modelPath = "/models/Northwind"

// countingStrategy counts calls that reach the wrapped strategy.
type countingStrategy struct {
	storage.Strategy
	loads   atomic.Int32
	changes atomic.Int32
}

func (c *countingStrategy) LoadModel(ctx context.Context, path string) (*core.SemanticModel, error) {
	c.loads.Add(1)
	return c.Strategy.LoadModel(ctx, path)
}

func (c *countingStrategy) SaveChanges(ctx context.Context, m *core.SemanticModel, path string, cs storage.ChangeSet) error {
	c.changes.Add(1)
	return c.Strategy.SaveChanges(ctx, m, path, cs)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

type fixture struct {
	repo     *Repository
	strategy *countingStrategy
	fs       afero.Fs
	clock    *fakeClock
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	fsys := afero.NewMemMapFs()
	strategy := &countingStrategy{Strategy: localdisk.NewWithFs(fsys)}
	factory := storage.NewFactory(localdisk.StrategyName)
	factory.Register(strategy)

	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := cache.New(cache.WithClock(clock.Now), cache.WithSweepInterval(0))
	t.Cleanup(func() { _ = c.Close() })

	repo, err := New(factory, append([]Option{WithCache(c)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return &fixture{repo: repo, strategy: strategy, fs: fsys, clock: clock}
}

func northwind(t *testing.T) *core.SemanticModel {
	t.Helper()
	ctx := context.Background()
	m := core.NewSemanticModel("Northwind", "Server=.;Database=Northwind", "")
	require.NoError(t, m.AddTable(ctx, &core.Table{EntityBase: core.EntityBase{Schema: "dbo", Name: "Customers", Description: "Customer master data"}}))
	require.NoError(t, m.AddTable(ctx, &core.Table{EntityBase: core.EntityBase{Schema: "dbo", Name: "Orders"}}))
	require.NoError(t, m.AddView(ctx, &core.View{EntityBase: core.EntityBase{Schema: "dbo", Name: "ActiveCustomers"}}))
	return m
}

func tableNames(t *testing.T, m *core.SemanticModel) []string {
	t.Helper()
	tables, err := m.Tables(context.Background())
	require.NoError(t, err)
	names := make([]string, 0, len(tables))
	for _, tbl := range tables {
		names = append(names, tbl.Schema+"."+tbl.Name)
	}
	return names
}

func TestNew_RequiresFactory(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrFactoryRequired)
}

func TestNew_InvalidTTL(t *testing.T) {
	_, err := New(storage.NewFactory(""), WithCacheTTL(0))
	assert.ErrorIs(t, err, storage.ErrConfiguration)
}

func TestRepository_RoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.repo.SaveModel(ctx, northwind(t), modelPath, ""))

	loaded, err := f.repo.LoadModel(ctx, modelPath, LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, "Northwind", loaded.Name)
	assert.Equal(t, []string{"dbo.Customers", "dbo.Orders"}, tableNames(t, loaded))
}

func TestRepository_UnknownStrategy(t *testing.T) {
	f := newFixture(t)
	_, err := f.repo.LoadModel(context.Background(), modelPath, LoadOptions{StrategyName: "Carrier Pigeon"})
	assert.ErrorIs(t, err, storage.ErrConfiguration)
	assert.Equal(t, int32(0), f.strategy.loads.Load())
}

func TestRepository_LoadMissing(t *testing.T) {
	f := newFixture(t)
	_, err := f.repo.LoadModel(context.Background(), "/models/missing", DefaultLoadOptions())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRepository_CacheShortCircuit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.repo.SaveModel(ctx, northwind(t), modelPath, ""))

	first, err := f.repo.LoadModel(ctx, modelPath, DefaultLoadOptions())
	require.NoError(t, err)
	second, err := f.repo.LoadModel(ctx, modelPath, DefaultLoadOptions())
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, int32(1), f.strategy.loads.Load())

	stats := f.repo.CacheStats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
}

func TestRepository_CachingDisabled(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.repo.SaveModel(ctx, northwind(t), modelPath, ""))

	for range 2 {
		_, err := f.repo.LoadModel(ctx, modelPath, LoadOptions{})
		require.NoError(t, err)
	}
	assert.Equal(t, int32(2), f.strategy.loads.Load())
	assert.Equal(t, uint64(0), f.repo.CacheStats().Total)
}

func TestRepository_CacheExpiry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, WithCacheTTL(time.Second))
	require.NoError(t, f.repo.SaveModel(ctx, northwind(t), modelPath, ""))

	_, err := f.repo.LoadModel(ctx, modelPath, DefaultLoadOptions())
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.strategy.loads.Load())

	f.clock.Advance(2 * time.Second)

	_, err = f.repo.LoadModel(ctx, modelPath, DefaultLoadOptions())
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.strategy.loads.Load())
}

func TestRepository_CacheHitEnablesDecorationsOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.repo.SaveModel(ctx, northwind(t), modelPath, ""))

	plain, err := f.repo.LoadModel(ctx, modelPath, DefaultLoadOptions())
	require.NoError(t, err)
	assert.False(t, plain.IsLazyLoadingEnabled())
	assert.False(t, plain.IsChangeTrackingEnabled())

	opts := LoadOptions{Caching: true, LazyLoading: true, ChangeTracking: true}
	decorated, err := f.repo.LoadModel(ctx, modelPath, opts)
	require.NoError(t, err)
	assert.Same(t, plain, decorated)
	assert.True(t, decorated.IsLazyLoadingEnabled())
	tracker := decorated.ChangeTracker()
	require.NotNil(t, tracker)

	again, err := f.repo.LoadModel(ctx, modelPath, opts)
	require.NoError(t, err)
	assert.Same(t, tracker, again.ChangeTracker())
	assert.Equal(t, int32(1), f.strategy.loads.Load())
}

func TestRepository_LazyMatchesEager(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.repo.SaveModel(ctx, northwind(t), modelPath, ""))

	eager, err := f.repo.LoadModel(ctx, modelPath, LoadOptions{})
	require.NoError(t, err)
	lazy, err := f.repo.LoadModel(ctx, modelPath, LoadOptions{LazyLoading: true})
	require.NoError(t, err)

	assert.True(t, lazy.IsLazyLoadingEnabled())
	assert.Equal(t, tableNames(t, eager), tableNames(t, lazy))

	tables, err := lazy.Tables(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Customer master data", tables[0].Description)
}

func TestRepository_SaveModelInvalidatesCache(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.repo.SaveModel(ctx, northwind(t), modelPath, ""))

	m, err := f.repo.LoadModel(ctx, modelPath, DefaultLoadOptions())
	require.NoError(t, err)
	require.NoError(t, f.repo.SaveModel(ctx, m, modelPath, localdisk.StrategyName))

	_, err = f.repo.LoadModel(ctx, modelPath, DefaultLoadOptions())
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.strategy.loads.Load())
}

func TestRepository_SaveChangesRequiresTracking(t *testing.T) {
	f := newFixture(t)
	err := f.repo.SaveChanges(context.Background(), northwind(t), modelPath, "")
	assert.ErrorIs(t, err, ErrChangeTrackingDisabled)
}

func TestRepository_SaveChangesIsMinimal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.repo.SaveModel(ctx, northwind(t), modelPath, ""))

	ordersPath := modelPath + "/tables/dbo.Orders.json"
	before, err := afero.ReadFile(f.fs, ordersPath)
	require.NoError(t, err)

	m, err := f.repo.LoadModel(ctx, modelPath, LoadOptions{Caching: true, ChangeTracking: true})
	require.NoError(t, err)
	e, ok, err := m.FindEntity(ctx, core.EntityRef{Type: core.EntityTypeTable, Schema: "dbo", Name: "Customers"})
	require.NoError(t, err)
	require.True(t, ok)
	e.Common().Description = "Everyone who ever bought anything"
	m.MarkModified(e)

	require.NoError(t, f.repo.SaveChanges(ctx, m, modelPath, ""))
	assert.False(t, m.ChangeTracker().HasChanges())

	after, err := afero.ReadFile(f.fs, ordersPath)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	customers, err := afero.ReadFile(f.fs, modelPath+"/tables/dbo.Customers.json")
	require.NoError(t, err)
	assert.Contains(t, string(customers), "Everyone who ever bought anything")

	// The cache entry was refreshed, not dropped.
	cached, err := f.repo.LoadModel(ctx, modelPath, DefaultLoadOptions())
	require.NoError(t, err)
	assert.Same(t, m, cached)
	assert.Equal(t, int32(1), f.strategy.loads.Load())
}

func TestRepository_SaveChangesWithoutChanges(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.repo.SaveModel(ctx, northwind(t), modelPath, ""))

	m, err := f.repo.LoadModel(ctx, modelPath, LoadOptions{ChangeTracking: true})
	require.NoError(t, err)
	require.NoError(t, f.repo.SaveChanges(ctx, m, modelPath, ""))
	assert.Equal(t, int32(0), f.strategy.changes.Load())
}

func TestRepository_SaveChangesStructural(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.repo.SaveModel(ctx, northwind(t), modelPath, ""))

	m, err := f.repo.LoadModel(ctx, modelPath, LoadOptions{LazyLoading: true, ChangeTracking: true})
	require.NoError(t, err)
	removed, err := m.RemoveTable(ctx, "dbo", "Orders")
	require.NoError(t, err)
	require.True(t, removed)
	require.NoError(t, m.AddTable(ctx, &core.Table{EntityBase: core.EntityBase{Schema: "sales", Name: "Invoices"}}))

	require.NoError(t, f.repo.SaveChanges(ctx, m, modelPath, ""))

	exists, err := afero.Exists(f.fs, modelPath+"/tables/dbo.Orders.json")
	require.NoError(t, err)
	assert.False(t, exists)

	reloaded, err := f.repo.LoadModel(ctx, modelPath, LoadOptions{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"dbo.Customers", "sales.Invoices"}, tableNames(t, reloaded))
}

func TestRepository_LockTimeout(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, WithLockTimeout(10*time.Millisecond))

	unlock, err := f.repo.locks.Lock(ctx, cache.CanonicalPath(modelPath), 0)
	require.NoError(t, err)
	defer unlock()

	err = f.repo.SaveModel(ctx, northwind(t), modelPath, "")
	assert.ErrorIs(t, err, ErrConcurrency)

	// A different model is unaffected.
	require.NoError(t, f.repo.SaveModel(ctx, northwind(t), "/models/Other", ""))
}

func TestRepository_WithModelLock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, WithLockTimeout(10*time.Millisecond))

	err := f.repo.WithModelLock(ctx, modelPath+"/", func(ctx context.Context) error {
		// The same model under another spelling is locked out.
		err := f.repo.SaveModel(ctx, northwind(t), modelPath, "")
		assert.ErrorIs(t, err, ErrConcurrency)
		return errors.New("inner")
	})
	assert.EqualError(t, err, "inner")

	require.NoError(t, f.repo.SaveModel(ctx, northwind(t), modelPath, ""))
}

func TestRepository_LoadModels(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, WithWorkers(2))
	paths := []string{"/models/a", "/models/b", "/models/c"}
	for _, p := range paths {
		require.NoError(t, f.repo.SaveModel(ctx, northwind(t), p, ""))
	}

	models, err := f.repo.LoadModels(ctx, paths, DefaultLoadOptions())
	require.NoError(t, err)
	require.Len(t, models, 3)
	for _, m := range models {
		assert.Equal(t, "Northwind", m.Name)
	}

	_, err = f.repo.LoadModels(ctx, []string{"/models/a", "/models/missing"}, DefaultLoadOptions())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRepository_InvalidateCache(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.repo.SaveModel(ctx, northwind(t), modelPath, ""))

	_, err := f.repo.LoadModel(ctx, modelPath, DefaultLoadOptions())
	require.NoError(t, err)
	require.NoError(t, f.repo.InvalidateCache(modelPath, ""))

	_, err = f.repo.LoadModel(ctx, modelPath, DefaultLoadOptions())
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.strategy.loads.Load())

	assert.ErrorIs(t, f.repo.InvalidateCache(modelPath, "nope"), storage.ErrUnknownStrategy)
}

func TestRepository_Close(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.repo.Close())
	require.NoError(t, f.repo.Close())

	_, err := f.repo.LoadModel(context.Background(), modelPath, DefaultLoadOptions())
	assert.ErrorIs(t, err, ErrClosed)
}
