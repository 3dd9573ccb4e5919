package objectstore

import (
	"context"
	"testing"

	"github.com/poiesic/semdex/core"
	"github.com/poiesic/semdex/storage"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBlobs(t *testing.T) *FsBlobStore {
	t.Helper()
	blobs, err := NewFsBlobStore(afero.NewMemMapFs(), "/bucket")
	require.NoError(t, err)
	return blobs
}

func TestObjectStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	blobs := newBlobs(t)
	s := New(blobs, WithPrefix("/semantic-models/"))
	assert.Equal(t, StrategyName, s.Name())

	model := core.NewSemanticModel("Northwind", "", "")
	require.NoError(t, model.AddTable(ctx, &core.Table{EntityBase: core.EntityBase{Schema: "dbo", Name: "Customers"}}))
	require.NoError(t, model.AddView(ctx, &core.View{EntityBase: core.EntityBase{Schema: "dbo", Name: "ActiveCustomers"}}))
	require.NoError(t, s.SaveModel(ctx, model, "Northwind"))

	keys, err := blobs.List(ctx, "")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"semantic-models/Northwind/manifest.json",
		"semantic-models/Northwind/tables/dbo.Customers.json",
		"semantic-models/Northwind/views/dbo.ActiveCustomers.json",
	}, keys)

	loaded, err := s.LoadModel(ctx, "Northwind")
	require.NoError(t, err)
	entities, err := loaded.Entities(ctx)
	require.NoError(t, err)
	assert.Len(t, entities, 2)
}

func TestObjectStore_MissingModel(t *testing.T) {
	s := New(newBlobs(t))
	_, err := s.LoadModel(context.Background(), "Nope")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestTree_ListIsDelimited(t *testing.T) {
	ctx := context.Background()
	blobs := newBlobs(t)
	tr := &tree{blobs: blobs}
	require.NoError(t, blobs.Put(ctx, "m/tables/dbo.A.json", []byte("{}")))
	require.NoError(t, blobs.Put(ctx, "m/tables/archive/dbo.B.json", []byte("{}")))
	require.NoError(t, blobs.Put(ctx, "m/tablesX/dbo.C.json", []byte("{}")))

	names, err := tr.List(ctx, "m/tables")
	require.NoError(t, err)
	assert.Equal(t, []string{"dbo.A.json"}, names)
}

func TestFsBlobStore(t *testing.T) {
	ctx := context.Background()
	blobs := newBlobs(t)

	_, err := blobs.Get(ctx, "a/b")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, blobs.Put(ctx, "a/b", []byte("one")))
	require.NoError(t, blobs.Put(ctx, "a/b", []byte("two")))
	data, err := blobs.Get(ctx, "a/b")
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))

	require.NoError(t, blobs.Delete(ctx, "a/b"))
	require.NoError(t, blobs.Delete(ctx, "a/b"))
	keys, err := blobs.List(ctx, "a/")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestNewFsBlobStore_RequiresRoot(t *testing.T) {
	_, err := NewFsBlobStore(afero.NewMemMapFs(), " ")
	assert.ErrorIs(t, err, storage.ErrConfiguration)
}
