package vectorindex

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecord_Validate(t *testing.T) {
	assert.NoError(t, Record{ID: "Northwind_table_dbo_Customers", Vector: []float32{1}}.Validate())
	assert.ErrorIs(t, Record{ID: " ", Vector: []float32{1}}.Validate(), ErrInvalidRecord)
	assert.ErrorIs(t, Record{ID: "x"}.Validate(), ErrInvalidRecord)
}
