package storage

import (
	"testing"

	"github.com/poiesic/semdex/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntityPath(t *testing.T) {
	tests := []struct {
		ref  core.EntityRef
		want string
	}{
		{core.EntityRef{Type: core.EntityTypeTable, Schema: "dbo", Name: "Customers"}, "tables/dbo.Customers.json"},
		{core.EntityRef{Type: core.EntityTypeView, Schema: "sales", Name: "Active"}, "views/sales.Active.json"},
		{core.EntityRef{Type: core.EntityTypeStoredProcedure, Schema: "dbo", Name: "Get.Orders"}, "storedprocedures/dbo.Get.Orders.json"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, EntityPath(tt.ref))

			back, err := ParseEntityPath(tt.want)
			require.NoError(t, err)
			assert.Equal(t, tt.ref, back)
		})
	}
}

func TestParseEntityPath_Invalid(t *testing.T) {
	for _, rel := range []string{"tables/Customers.json", "functions/dbo.F.json", "tables/dbo.Customers.txt"} {
		_, err := ParseEntityPath(rel)
		assert.Error(t, err, rel)
	}
}

func TestParseEntityPath_Backslashes(t *testing.T) {
	ref, err := ParseEntityPath(`views\dbo.Active.json`)
	require.NoError(t, err)
	assert.Equal(t, core.EntityTypeView, ref.Type)
}

func TestJoinPath(t *testing.T) {
	assert.Equal(t, "models/Northwind/manifest.json", JoinPath("models/Northwind/", ManifestFile))
	assert.Equal(t, "/data/Northwind/tables/dbo.A.json", JoinPath("/data/Northwind", "tables/dbo.A.json"))
}
