package localdisk

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/poiesic/semdex/core"
	"github.com/poiesic/semdex/storage"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func northwind(t *testing.T) *core.SemanticModel {
	t.Helper()
	ctx := context.Background()
	m := core.NewSemanticModel("Northwind", "Server=.;Database=Northwind", "")
	require.NoError(t, m.AddTable(ctx, &core.Table{EntityBase: core.EntityBase{Schema: "dbo", Name: "Customers"}}))
	require.NoError(t, m.AddTable(ctx, &core.Table{EntityBase: core.EntityBase{Schema: "dbo", Name: "Orders"}}))
	return m
}

func TestLocalDisk_RoundTripOnDisk(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "Northwind")
	s := New()
	assert.Equal(t, StrategyName, s.Name())

	require.NoError(t, s.SaveModel(ctx, northwind(t), dir))

	for _, rel := range []string{"manifest.json", "tables/dbo.Customers.json", "tables/dbo.Orders.json"} {
		_, err := os.Stat(filepath.Join(dir, filepath.FromSlash(rel)))
		assert.NoError(t, err, rel)
	}

	loaded, err := s.LoadModel(ctx, dir)
	require.NoError(t, err)
	tables, err := loaded.Tables(ctx)
	require.NoError(t, err)
	require.Len(t, tables, 2)
	assert.Equal(t, "Customers", tables[0].Name)
	assert.Equal(t, "Orders", tables[1].Name)
}

func TestLocalDisk_NoTempFilesLeft(t *testing.T) {
	ctx := context.Background()
	fsys := afero.NewMemMapFs()
	s := NewWithFs(fsys)
	require.NoError(t, s.SaveModel(ctx, northwind(t), "/models/Northwind"))

	err := afero.Walk(fsys, "/models", func(p string, info os.FileInfo, err error) error {
		require.NoError(t, err)
		assert.NotContains(t, p, ".tmp-")
		return nil
	})
	require.NoError(t, err)
}

func TestLocalDisk_LoadMissing(t *testing.T) {
	s := NewWithFs(afero.NewMemMapFs())
	_, err := s.LoadModel(context.Background(), "/models/missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStore_ReadOnlyFsIsNotTransient(t *testing.T) {
	store := NewStore(afero.NewReadOnlyFs(afero.NewMemMapFs()))
	err := store.WriteFile(context.Background(), "/m/manifest.json", []byte("{}"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, storage.ErrTransientIO)
}

func TestStore_List(t *testing.T) {
	ctx := context.Background()
	store := NewStore(afero.NewMemMapFs())
	require.NoError(t, store.WriteFile(ctx, "/m/tables/dbo.A.json", []byte("{}")))
	require.NoError(t, store.WriteFile(ctx, "/m/tables/dbo.B.json", []byte("{}")))
	require.NoError(t, store.WriteFile(ctx, "/m/tables/nested/x.json", []byte("{}")))

	names, err := store.List(ctx, "/m/tables")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"dbo.A.json", "dbo.B.json"}, names)

	names, err = store.List(ctx, "/m/views")
	require.NoError(t, err)
	assert.Empty(t, names)

	require.NoError(t, store.Remove(ctx, "/m/tables/dbo.A.json"))
	require.NoError(t, store.Remove(ctx, "/m/tables/dbo.A.json"), "removing twice is fine")
}

func TestStore_CanceledWrite(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fsys := afero.NewMemMapFs()
	store := NewStore(fsys)

	err := store.WriteFile(ctx, "/m/manifest.json", []byte("{}"))
	assert.ErrorIs(t, err, context.Canceled)
	exists, _ := afero.Exists(fsys, "/m/manifest.json")
	assert.False(t, exists)
}

func TestLocalDisk_EnvelopeFormat(t *testing.T) {
	ctx := context.Background()
	fsys := afero.NewMemMapFs()
	s := NewWithFs(fsys)
	require.NoError(t, s.SaveModel(ctx, northwind(t), "/m"))

	data, err := afero.ReadFile(fsys, "/m/tables/dbo.Customers.json")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(strings.TrimSpace(string(data)), `{`))
	assert.Contains(t, string(data), `"data"`)
	assert.NotContains(t, string(data), `"embedding"`)
}
