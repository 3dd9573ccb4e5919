package storage

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerializer_RoundTrip(t *testing.T) {
	s := DefaultSerializer()
	in := Manifest{Name: "Northwind", Tables: []ManifestEntry{{Schema: "dbo", Name: "Customers", RelativePath: "tables/dbo.Customers.json"}}}

	data, err := s.Marshal(&in)
	require.NoError(t, err)

	var out Manifest
	require.NoError(t, s.Unmarshal(data, &out))
	assert.Equal(t, in.Name, out.Name)
	assert.Equal(t, in.Tables, out.Tables)
}

func TestSerializer_Limits(t *testing.T) {
	tests := []struct {
		name       string
		serializer *Serializer
		data       string
	}{
		{
			name:       "too large",
			serializer: &Serializer{MaxBytes: 10},
			data:       `{"name":"Northwind"}`,
		},
		{
			name:       "too deep",
			serializer: &Serializer{MaxDepth: 3},
			data:       `{"a":{"b":{"c":{"d":1}}}}`,
		},
		{
			name:       "empty",
			serializer: DefaultSerializer(),
			data:       "   ",
		},
		{
			name:       "malformed",
			serializer: DefaultSerializer(),
			data:       `{"name":`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v map[string]any
			err := tt.serializer.Unmarshal([]byte(tt.data), &v)
			assert.ErrorIs(t, err, ErrSerialization)
		})
	}
}

func TestSerializer_DepthIgnoresBracketsInStrings(t *testing.T) {
	s := &Serializer{MaxDepth: 2}
	var v map[string]any
	err := s.Unmarshal([]byte(`{"definition":"[[[{{{ \"quoted\" }}}]]]"}`), &v)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(v["definition"].(string), "[[["))
}
