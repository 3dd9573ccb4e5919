package vectors

import (
	"testing"

	"github.com/poiesic/semdex/core"
	"github.com/stretchr/testify/assert"
)

func customers() *core.Table {
	return &core.Table{
		EntityBase: core.EntityBase{Schema: "dbo", Name: "Customers", Description: "Customer master data"},
		Columns: []core.Column{
			{Name: "CustomerID", Type: "nchar", MaxLength: 5, IsPrimaryKey: true},
			{Name: "CompanyName", Type: "nvarchar", MaxLength: 40, Description: "Legal name"},
			{Name: "Region", Type: "nvarchar", MaxLength: 15, IsNullable: true},
		},
		Indexes: []core.Index{{Name: "PK_Customers", Columns: []string{"CustomerID"}, IsPrimary: true, IsUnique: true}},
	}
}

func TestCanonicalText_Table(t *testing.T) {
	expected := "Table: dbo.Customers\n" +
		"Description: Customer master data\n" +
		"Columns:\n" +
		"- CustomerID nchar(5) primary key\n" +
		"- CompanyName nvarchar(40): Legal name\n" +
		"- Region nvarchar(15) null\n" +
		"Indexes:\n" +
		"- PK_Customers (CustomerID) primary unique"
	assert.Equal(t, expected, CanonicalText(customers()))
}

func TestCanonicalText_Deterministic(t *testing.T) {
	assert.Equal(t, CanonicalText(customers()), CanonicalText(customers()))
	assert.Equal(t, core.ContentHash(CanonicalText(customers())), core.ContentHash(CanonicalText(customers())))

	changed := customers()
	changed.Description = "Everyone who ever bought anything"
	assert.NotEqual(t, CanonicalText(customers()), CanonicalText(changed))
}

func TestCanonicalText_IgnoresSurroundingWhitespace(t *testing.T) {
	padded := customers()
	padded.Description = "  Customer master data\n"
	assert.Equal(t, CanonicalText(customers()), CanonicalText(padded))
}

func TestCanonicalText_ViewAndProcedure(t *testing.T) {
	view := &core.View{
		EntityBase: core.EntityBase{Schema: "dbo", Name: "ActiveCustomers"},
		Columns:    []core.Column{{Name: "CustomerID", Type: "nchar", ReferencedTable: "dbo.Customers", ReferencedColumn: "CustomerID"}},
		Definition: "SELECT CustomerID FROM dbo.Customers",
	}
	assert.Equal(t, "View: dbo.ActiveCustomers\n"+
		"Columns:\n"+
		"- CustomerID nchar references dbo.Customers(CustomerID)\n"+
		"Definition: SELECT CustomerID FROM dbo.Customers", CanonicalText(view))

	proc := &core.StoredProcedure{
		EntityBase: core.EntityBase{Schema: "dbo", Name: "GetOrders", SemanticDescription: "Lists a customer's orders"},
		Parameters: "@CustomerID nchar(5)",
		Definition: "SELECT * FROM dbo.Orders WHERE CustomerID = @CustomerID",
	}
	assert.Equal(t, "Stored procedure: dbo.GetOrders\n"+
		"Semantic description: Lists a customer's orders\n"+
		"Parameters: @CustomerID nchar(5)\n"+
		"Definition: SELECT * FROM dbo.Orders WHERE CustomerID = @CustomerID", CanonicalText(proc))
}

func TestCompositeKey(t *testing.T) {
	assert.Equal(t, "Northwind_table_dbo_Customers", CompositeKey("Northwind", customers().Ref()))
	assert.NotEqual(t,
		CompositeKey("Northwind", core.EntityRef{Type: core.EntityTypeTable, Schema: "dbo", Name: "X"}),
		CompositeKey("Northwind", core.EntityRef{Type: core.EntityTypeView, Schema: "dbo", Name: "X"}))
}
