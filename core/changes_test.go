package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChangeTracker_MarkAsDirty(t *testing.T) {
	tracker := NewChangeTracker()
	customers := &Table{EntityBase: EntityBase{Schema: "dbo", Name: "Customers"}}

	assert.False(t, tracker.HasChanges())

	tracker.MarkAsDirty(customers)
	tracker.MarkAsDirty(customers)

	assert.True(t, tracker.HasChanges())
	assert.False(t, tracker.HasStructuralChanges(), "an edit does not change the entity set")
	assert.True(t, tracker.IsDirty(customers.Ref()))
	assert.Len(t, tracker.DirtyEntities(), 1)
}

func TestChangeTracker_AddRemove(t *testing.T) {
	tracker := NewChangeTracker()
	orders := &Table{EntityBase: EntityBase{Schema: "dbo", Name: "Orders"}}

	tracker.MarkAsAdded(orders)
	assert.True(t, tracker.HasStructuralChanges())
	assert.True(t, tracker.IsDirty(orders.Ref()))

	tracker.MarkAsRemoved(orders.Ref())
	assert.False(t, tracker.IsDirty(orders.Ref()), "removed entities leave the dirty set")
	assert.Equal(t, []EntityRef{orders.Ref()}, tracker.RemovedEntities())

	tracker.MarkAsAdded(orders)
	assert.Empty(t, tracker.RemovedEntities(), "re-adding cancels the removal")
}

func TestChangeTracker_DirtyEntitiesOrdered(t *testing.T) {
	tracker := NewChangeTracker()
	proc := &StoredProcedure{EntityBase: EntityBase{Schema: "dbo", Name: "GetOrders"}}
	view := &View{EntityBase: EntityBase{Schema: "dbo", Name: "ActiveCustomers"}}
	orders := &Table{EntityBase: EntityBase{Schema: "dbo", Name: "Orders"}}
	customers := &Table{EntityBase: EntityBase{Schema: "dbo", Name: "Customers"}}

	for _, e := range []Entity{proc, view, orders, customers} {
		tracker.MarkAsDirty(e)
	}

	got := tracker.DirtyEntities()
	want := []Entity{customers, orders, view, proc}
	assert.Equal(t, want, got)
}

func TestChangeTracker_AcceptAllChanges(t *testing.T) {
	tracker := NewChangeTracker()
	tracker.MarkAsAdded(&Table{EntityBase: EntityBase{Schema: "dbo", Name: "Customers"}})
	tracker.MarkAsRemoved(EntityRef{Type: EntityTypeView, Schema: "dbo", Name: "Old"})

	tracker.AcceptAllChanges()

	assert.False(t, tracker.HasChanges())
	assert.False(t, tracker.HasStructuralChanges())
	assert.Empty(t, tracker.DirtyEntities())
	assert.Empty(t, tracker.RemovedEntities())
}

func TestChangeTracker_ClosedIgnoresMarks(t *testing.T) {
	tracker := NewChangeTracker()
	tracker.Close()

	tracker.MarkAsDirty(&Table{EntityBase: EntityBase{Schema: "dbo", Name: "Customers"}})
	tracker.MarkAsRemoved(EntityRef{Type: EntityTypeTable, Schema: "dbo", Name: "Orders"})

	assert.False(t, tracker.HasChanges())
}
