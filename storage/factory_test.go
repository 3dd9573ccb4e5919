package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFactory_Resolve(t *testing.T) {
	f := NewFactory("LocalDisk")
	local := NewTreeStrategy("LocalDisk", newMemTree())
	object := NewTreeStrategy("ObjectStore", newMemTree())
	f.Register(local)
	f.Register(object)

	tests := []struct {
		name string
		want Strategy
	}{
		{"LocalDisk", local},
		{"localdisk", local},
		{"OBJECTSTORE", object},
		{"", local},
		{"  objectstore ", object},
	}
	for _, tt := range tests {
		got, err := f.Resolve(tt.name)
		require.NoError(t, err, tt.name)
		assert.Same(t, tt.want, got, tt.name)
	}

	assert.Equal(t, []string{"LocalDisk", "ObjectStore"}, f.Names())
}

func TestFactory_Unknown(t *testing.T) {
	f := NewFactory("LocalDisk")
	_, err := f.Resolve("Cosmos")
	assert.ErrorIs(t, err, ErrUnknownStrategy)
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = f.Resolve("")
	assert.ErrorIs(t, err, ErrUnknownStrategy, "an unregistered default is unknown too")
}

func TestFactory_Close(t *testing.T) {
	f := NewFactory("LocalDisk")
	f.Register(NewTreeStrategy("LocalDisk", newMemTree()))
	require.NoError(t, f.Close())
	assert.Empty(t, f.Names())
}
