package core

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/poiesic/semdex/lazy"
)

// EntityLoader loads the persisted form of a single entity.
// LoadEntity returns nil, nil when nothing has been persisted for ref.
type EntityLoader interface {
	LoadEntity(ctx context.Context, ref EntityRef) (Entity, error)
}

// EntityLoaderFunc adapts a function to EntityLoader.
type EntityLoaderFunc func(ctx context.Context, ref EntityRef) (Entity, error)

// LoadEntity calls f.
func (f EntityLoaderFunc) LoadEntity(ctx context.Context, ref EntityRef) (Entity, error) {
	return f(ctx, ref)
}

// collection holds one entity variant either eagerly or behind a lazy proxy,
// never both.
type collection[T Entity] struct {
	eager []T
	proxy *lazy.Proxy[T]
}

func (c *collection[T]) enableLazy(loader EntityLoader) {
	captured := c.eager
	c.eager = nil
	c.proxy = lazy.New(func(ctx context.Context) ([]T, error) {
		out := make([]T, 0, len(captured))
		for _, known := range captured {
			loaded, err := loader.LoadEntity(ctx, known.Ref())
			if err != nil {
				return nil, fmt.Errorf("lazy load %s: %w", known.Ref(), err)
			}
			if loaded == nil {
				// Known structurally but never persisted.
				out = append(out, known)
				continue
			}
			typed, ok := loaded.(T)
			if !ok {
				return nil, fmt.Errorf("%w: %s loaded as %T", ErrInvalidEntityType, known.Ref(), loaded)
			}
			out = append(out, typed)
		}
		return out, nil
	})
}

func indexOf[T Entity](items []T, ref EntityRef) int {
	return slices.IndexFunc(items, func(e T) bool { return e.Ref() == ref })
}

func collisionOf[T Entity](items []T, ref EntityRef) (EntityRef, bool) {
	for _, e := range items {
		if r := e.Ref(); r.collides(ref) {
			return r, true
		}
	}
	return EntityRef{}, false
}

func duplicateErr(ref, existing EntityRef) error {
	if ref == existing {
		return fmt.Errorf("%w: %s", ErrDuplicateEntity, ref)
	}
	return fmt.Errorf("%w: %s collides with %s", ErrDuplicateEntity, ref, existing)
}

// SemanticModel is the aggregate root describing a database's tables, views and
// stored procedures. Collections are safe for concurrent access.
type SemanticModel struct {
	Name        string
	Source      string
	Description string

	mu         sync.RWMutex
	tables     collection[*Table]
	views      collection[*View]
	procedures collection[*StoredProcedure]
	lazy       bool
	tracker    *ChangeTracker
	closed     bool
}

// NewSemanticModel creates an empty eager model.
func NewSemanticModel(name, source, description string) *SemanticModel {
	return &SemanticModel{
		Name:        name,
		Source:      source,
		Description: description,
	}
}

// Tables returns the model's tables, materializing them if lazy loading is enabled.
func (m *SemanticModel) Tables(ctx context.Context) ([]*Table, error) {
	return getAll(ctx, m, &m.tables)
}

// Views returns the model's views, materializing them if lazy loading is enabled.
func (m *SemanticModel) Views(ctx context.Context) ([]*View, error) {
	return getAll(ctx, m, &m.views)
}

// StoredProcedures returns the model's stored procedures, materializing them if
// lazy loading is enabled.
func (m *SemanticModel) StoredProcedures(ctx context.Context) ([]*StoredProcedure, error) {
	return getAll(ctx, m, &m.procedures)
}

// Entities returns every entity of the given types (all types when none given).
func (m *SemanticModel) Entities(ctx context.Context, types ...EntityType) ([]Entity, error) {
	if len(types) == 0 {
		types = EntityTypes
	}
	var out []Entity
	for _, t := range types {
		switch t {
		case EntityTypeTable:
			items, err := m.Tables(ctx)
			if err != nil {
				return nil, err
			}
			out = appendEntities(out, items)
		case EntityTypeView:
			items, err := m.Views(ctx)
			if err != nil {
				return nil, err
			}
			out = appendEntities(out, items)
		case EntityTypeStoredProcedure:
			items, err := m.StoredProcedures(ctx)
			if err != nil {
				return nil, err
			}
			out = appendEntities(out, items)
		default:
			return nil, fmt.Errorf("%w: %q", ErrInvalidEntityType, t)
		}
	}
	return out, nil
}

func appendEntities[T Entity](out []Entity, items []T) []Entity {
	for _, e := range items {
		out = append(out, e)
	}
	return out
}

// FindEntity looks up an entity by identity.
func (m *SemanticModel) FindEntity(ctx context.Context, ref EntityRef) (Entity, bool, error) {
	entities, err := m.Entities(ctx, ref.Type)
	if err != nil {
		return nil, false, err
	}
	for _, e := range entities {
		if e.Ref() == ref {
			return e, true, nil
		}
	}
	return nil, false, nil
}

// AddTable adds a table. Returns ErrDuplicateEntity if it already exists or
// would share a persisted key with an existing table.
func (m *SemanticModel) AddTable(ctx context.Context, t *Table) error {
	return add(ctx, m, &m.tables, t)
}

// AddView adds a view. Returns ErrDuplicateEntity if it already exists.
func (m *SemanticModel) AddView(ctx context.Context, v *View) error {
	return add(ctx, m, &m.views, v)
}

// AddStoredProcedure adds a stored procedure. Returns ErrDuplicateEntity if it
// already exists.
func (m *SemanticModel) AddStoredProcedure(ctx context.Context, p *StoredProcedure) error {
	return add(ctx, m, &m.procedures, p)
}

// AddEntity adds an entity of any variant.
func (m *SemanticModel) AddEntity(ctx context.Context, e Entity) error {
	switch v := e.(type) {
	case *Table:
		return m.AddTable(ctx, v)
	case *View:
		return m.AddView(ctx, v)
	case *StoredProcedure:
		return m.AddStoredProcedure(ctx, v)
	}
	return fmt.Errorf("%w: %T", ErrInvalidEntityType, e)
}

// RemoveTable removes a table, reporting whether it existed.
func (m *SemanticModel) RemoveTable(ctx context.Context, schema, name string) (bool, error) {
	return remove(ctx, m, &m.tables, EntityRef{Type: EntityTypeTable, Schema: schema, Name: name})
}

// RemoveView removes a view, reporting whether it existed.
func (m *SemanticModel) RemoveView(ctx context.Context, schema, name string) (bool, error) {
	return remove(ctx, m, &m.views, EntityRef{Type: EntityTypeView, Schema: schema, Name: name})
}

// RemoveStoredProcedure removes a stored procedure, reporting whether it existed.
func (m *SemanticModel) RemoveStoredProcedure(ctx context.Context, schema, name string) (bool, error) {
	return remove(ctx, m, &m.procedures, EntityRef{Type: EntityTypeStoredProcedure, Schema: schema, Name: name})
}

// RemoveEntity removes the entity identified by ref.
func (m *SemanticModel) RemoveEntity(ctx context.Context, ref EntityRef) (bool, error) {
	switch ref.Type {
	case EntityTypeTable:
		return m.RemoveTable(ctx, ref.Schema, ref.Name)
	case EntityTypeView:
		return m.RemoveView(ctx, ref.Schema, ref.Name)
	case EntityTypeStoredProcedure:
		return m.RemoveStoredProcedure(ctx, ref.Schema, ref.Name)
	}
	return false, fmt.Errorf("%w: %q", ErrInvalidEntityType, ref.Type)
}

// MarkModified reports an in-place edit of e to the change tracker, if any.
// Whoever mutates an entity must call this for SaveChanges to persist it.
func (m *SemanticModel) MarkModified(e Entity) {
	if t := m.ChangeTracker(); t != nil {
		t.MarkAsDirty(e)
	}
}

// EnableLazyLoading captures the eager collections and replaces each with a
// lazy proxy backed by loader. Enabling twice is a no-op.
func (m *SemanticModel) EnableLazyLoading(loader EntityLoader) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrModelClosed
	}
	if m.lazy {
		return nil
	}
	m.tables.enableLazy(loader)
	m.views.enableLazy(loader)
	m.procedures.enableLazy(loader)
	m.lazy = true
	return nil
}

// IsLazyLoadingEnabled reports whether collections are proxied.
func (m *SemanticModel) IsLazyLoadingEnabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lazy
}

// EnableChangeTracking attaches tracker (a new one when nil). Enabling twice is
// a no-op and keeps the existing tracker.
func (m *SemanticModel) EnableChangeTracking(tracker *ChangeTracker) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrModelClosed
	}
	if m.tracker != nil {
		return nil
	}
	if tracker == nil {
		tracker = NewChangeTracker()
	}
	m.tracker = tracker
	return nil
}

// IsChangeTrackingEnabled reports whether a change tracker is attached.
func (m *SemanticModel) IsChangeTrackingEnabled() bool {
	return m.ChangeTracker() != nil
}

// ChangeTracker returns the attached tracker, or nil.
func (m *SemanticModel) ChangeTracker() *ChangeTracker {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tracker
}

// Close releases proxies and the change tracker. Closing twice is a no-op.
func (m *SemanticModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	if m.tables.proxy != nil {
		_ = m.tables.proxy.Close()
	}
	if m.views.proxy != nil {
		_ = m.views.proxy.Close()
	}
	if m.procedures.proxy != nil {
		_ = m.procedures.proxy.Close()
	}
	if m.tracker != nil {
		m.tracker.Close()
	}
	return nil
}

func getAll[T Entity](ctx context.Context, m *SemanticModel, c *collection[T]) ([]T, error) {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return nil, ErrModelClosed
	}
	proxy := c.proxy
	if proxy == nil {
		items := slices.Clone(c.eager)
		m.mu.RUnlock()
		return items, nil
	}
	m.mu.RUnlock()
	return proxy.Get(ctx)
}

func add[T Entity](ctx context.Context, m *SemanticModel, c *collection[T], e T) error {
	if err := ValidateEntity(e); err != nil {
		return err
	}
	ref := e.Ref()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrModelClosed
	}
	proxy, tracker := c.proxy, m.tracker
	if proxy == nil {
		defer m.mu.Unlock()
		if existing, ok := collisionOf(c.eager, ref); ok {
			return duplicateErr(ref, existing)
		}
		c.eager = append(c.eager, e)
		if tracker != nil {
			tracker.MarkAsAdded(e)
		}
		return nil
	}
	m.mu.Unlock()

	var (
		existing EntityRef
		dup      bool
	)
	err := proxy.Update(ctx, func(items []T) []T {
		if existing, dup = collisionOf(items, ref); dup {
			return items
		}
		return append(items, e)
	})
	if err != nil {
		return err
	}
	if dup {
		return duplicateErr(ref, existing)
	}
	if tracker != nil {
		tracker.MarkAsAdded(e)
	}
	return nil
}

func remove[T Entity](ctx context.Context, m *SemanticModel, c *collection[T], ref EntityRef) (bool, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false, ErrModelClosed
	}
	proxy, tracker := c.proxy, m.tracker
	var found bool
	if proxy == nil {
		if i := indexOf(c.eager, ref); i >= 0 {
			c.eager = slices.Delete(c.eager, i, i+1)
			found = true
		}
		m.mu.Unlock()
	} else {
		m.mu.Unlock()
		err := proxy.Update(ctx, func(items []T) []T {
			if i := indexOf(items, ref); i >= 0 {
				found = true
				return slices.Delete(items, i, i+1)
			}
			return items
		})
		if err != nil {
			return false, err
		}
	}
	if found && tracker != nil {
		tracker.MarkAsRemoved(ref)
	}
	return found, nil
}
