package semdex

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/semdex/ai"
	"github.com/poiesic/semdex/ai/mock"
	"github.com/poiesic/semdex/config"
	"github.com/poiesic/semdex/core"
	"github.com/poiesic/semdex/storage"
	"github.com/poiesic/semdex/storage/badger"
	"github.com/poiesic/semdex/storage/objectstore"
	"github.com/poiesic/semdex/vectors"
)

func testSettings(strategy string) *config.Settings {
	s := config.Default()
	s.SemanticModel.Name = "Northwind"
	s.SemanticModel.PersistenceStrategy = strategy
	s.Storage.DocumentStoreInMemory = true
	s.VectorIndex.Path = ":memory:"
	s.Synchronization.Workers = 2
	return s
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

func openWorkspace(t *testing.T, strategy string) (*Workspace, *mock.MockProvider) {
	t.Helper()
	provider := mock.NewMockProviderWithEmbedder(mock.NewMockEmbedder())
	ws, err := Open(context.Background(), t.TempDir(),
		WithSettings(testSettings(strategy)),
		WithProvider(provider),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws, provider
}

func TestWorkspace_SaveLoadSynchronize(t *testing.T) {
	for _, strategy := range []string{"LocalDisk", objectstore.StrategyName, badger.StrategyName} {
		t.Run(strategy, func(t *testing.T) {
			ctx := context.Background()
			ws, provider := openWorkspace(t, strategy)

			require.NoError(t, ws.SaveModel(ctx, northwind(t)))
			model, err := ws.LoadModel(ctx)
			require.NoError(t, err)
			assert.Equal(t, "Northwind", model.Name)

			n, err := ws.Synchronize(ctx, model, vectors.Options{})
			require.NoError(t, err)
			assert.Equal(t, 3, n)
			assert.Equal(t, 3, provider.GetMockEmbedder().CallCount())

			count, err := ws.Index().Count(ctx)
			require.NoError(t, err)
			assert.Equal(t, 3, count)

			n, err = ws.Synchronize(ctx, model, vectors.Options{})
			require.NoError(t, err)
			assert.Zero(t, n)
			assert.Equal(t, 3, provider.GetMockEmbedder().CallCount())
		})
	}
}

func TestWorkspace_SynchronizeDetailedDryRun(t *testing.T) {
	ctx := context.Background()
	ws, provider := openWorkspace(t, "LocalDisk")
	model := northwind(t)
	require.NoError(t, ws.SaveModel(ctx, model))

	result, err := ws.SynchronizeDetailed(ctx, model, vectors.Options{DryRun: true, SkipViews: true})
	require.NoError(t, err)
	assert.Len(t, result.Planned, 2)
	assert.Zero(t, result.Processed)
	assert.Zero(t, provider.GetMockEmbedder().CallCount())
}

func TestWorkspace_SaveChanges(t *testing.T) {
	ctx := context.Background()
	ws, _ := openWorkspace(t, "LocalDisk")
	ws.Settings().Repository.ChangeTracking = true

	require.NoError(t, ws.SaveModel(ctx, northwind(t)))
	model, err := ws.LoadModel(ctx)
	require.NoError(t, err)
	require.True(t, model.IsChangeTrackingEnabled())

	require.NoError(t, model.AddTable(ctx, &core.Table{EntityBase: core.EntityBase{Schema: "dbo", Name: "Shippers"}}))
	require.NoError(t, ws.SaveChanges(ctx, model))

	_, err = os.Stat(filepath.Join(ws.ModelPath(), "tables", "dbo.Shippers.json"))
	assert.NoError(t, err)
}

func TestWorkspace_LoadMissingModel(t *testing.T) {
	ws, _ := openWorkspace(t, "LocalDisk")
	_, err := ws.LoadModel(context.Background())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestOpen_ReadsSettingsFile(t *testing.T) {
	dir := t.TempDir()
	s := testSettings(objectstore.StrategyName)
	s.SemanticModel.Path = "models/northwind"
	require.NoError(t, config.Save(dir, s))

	ws, err := Open(context.Background(), dir, WithProvider(mock.NewMockProvider()))
	require.NoError(t, err)
	defer ws.Close()

	assert.Equal(t, objectstore.StrategyName, ws.Settings().SemanticModel.PersistenceStrategy)
	assert.Equal(t, filepath.Join(dir, "models", "northwind"), ws.ModelPath())
}

func TestOpen_UnknownStrategy(t *testing.T) {
	_, err := Open(context.Background(), t.TempDir(),
		WithSettings(testSettings("Cosmos")),
		WithProvider(mock.NewMockProvider()),
	)
	assert.ErrorIs(t, err, storage.ErrUnknownStrategy)
}

func TestOpen_UnknownProvider(t *testing.T) {
	s := testSettings("LocalDisk")
	s.Embedding.Provider = "bedrock"
	_, err := Open(context.Background(), t.TempDir(), WithSettings(s))
	assert.ErrorIs(t, err, ai.ErrInvalidConfig)
}

func TestOpen_InvalidSettings(t *testing.T) {
	s := testSettings("LocalDisk")
	s.Synchronization.Workers = 0
	_, err := Open(context.Background(), t.TempDir(), WithSettings(s))
	assert.ErrorIs(t, err, storage.ErrConfiguration)
}

func TestWorkspace_ClosesOwnedProviderOnly(t *testing.T) {
	ws, provider := openWorkspace(t, "LocalDisk")
	require.NoError(t, ws.Close())
	assert.False(t, provider.Closed())
}

func TestWorkspace_EmbeddingStatus(t *testing.T) {
	ctx := context.Background()
	ws, _ := openWorkspace(t, "LocalDisk")
	model := northwind(t)
	require.NoError(t, ws.SaveModel(ctx, model))

	statuses, err := ws.EmbeddingStatus(ctx, model)
	require.NoError(t, err)
	require.Len(t, statuses, 3)
	for _, s := range statuses {
		assert.False(t, s.Embedded, s.Ref.String())
	}

	_, err = ws.Synchronize(ctx, model, vectors.Options{ObjectType: "table", SchemaName: "dbo", ObjectName: "Orders"})
	require.NoError(t, err)

	statuses, err = ws.EmbeddingStatus(ctx, model)
	require.NoError(t, err)
	byName := map[string]EntityStatus{}
	for _, s := range statuses {
		byName[s.Ref.Name] = s
	}
	assert.True(t, byName["Orders"].Current)
	assert.Equal(t, "Northwind_table_dbo_Orders", byName["Orders"].Key)
	assert.False(t, byName["Customers"].Embedded)
}

func TestWorkspace_SynchronizeWaitsForModelLock(t *testing.T) {
	ctx := context.Background()
	ws, _ := openWorkspace(t, "LocalDisk")
	model := northwind(t)
	require.NoError(t, ws.SaveModel(ctx, model))

	locked := make(chan struct{})
	release := make(chan struct{})
	held := make(chan error, 1)
	go func() {
		held <- ws.Repository().WithModelLock(ctx, ws.ModelPath(), func(context.Context) error {
			close(locked)
			<-release
			return nil
		})
	}()
	<-locked

	done := make(chan int, 1)
	go func() {
		n, err := ws.Synchronize(ctx, model, vectors.Options{})
		assert.NoError(t, err)
		done <- n
	}()

	select {
	case <-done:
		t.Fatal("synchronize finished while the model lock was held")
	case <-time.After(100 * time.Millisecond):
	}
	statuses, err := ws.EmbeddingStatus(ctx, model)
	require.NoError(t, err)
	for _, s := range statuses {
		assert.False(t, s.Embedded, s.Ref.String())
	}

	close(release)
	require.NoError(t, <-held)
	assert.Equal(t, 3, <-done)
}
