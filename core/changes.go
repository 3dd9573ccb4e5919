package core

import (
	"slices"
	"sync"
)

// ChangeTracker records which entities were modified since the last persist.
// It is safe for concurrent use.
type ChangeTracker struct {
	mu         sync.Mutex
	dirty      map[EntityRef]Entity
	removed    map[EntityRef]struct{}
	structural bool
	closed     bool
}

// NewChangeTracker creates an empty tracker.
func NewChangeTracker() *ChangeTracker {
	return &ChangeTracker{
		dirty:   make(map[EntityRef]Entity),
		removed: make(map[EntityRef]struct{}),
	}
}

// MarkAsDirty adds the entity to the change set. Marking twice is a no-op
// apart from keeping the most recent reference.
func (t *ChangeTracker) MarkAsDirty(e Entity) {
	if e == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.dirty[e.Ref()] = e
}

// MarkAsAdded records a new entity; the entity set changed.
func (t *ChangeTracker) MarkAsAdded(e Entity) {
	if e == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	ref := e.Ref()
	delete(t.removed, ref)
	t.dirty[ref] = e
	t.structural = true
}

// MarkAsRemoved records a removed entity; the entity set changed.
func (t *ChangeTracker) MarkAsRemoved(ref EntityRef) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	delete(t.dirty, ref)
	t.removed[ref] = struct{}{}
	t.structural = true
}

// HasChanges reports whether anything was marked since the last accept.
func (t *ChangeTracker) HasChanges() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.dirty) > 0 || len(t.removed) > 0 || t.structural
}

// HasStructuralChanges reports whether entities were added or removed.
func (t *ChangeTracker) HasStructuralChanges() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.structural
}

// IsDirty reports whether the entity identified by ref is in the change set.
func (t *ChangeTracker) IsDirty(ref EntityRef) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.dirty[ref]
	return ok
}

// DirtyEntities returns the change set ordered by ref.
func (t *ChangeTracker) DirtyEntities() []Entity {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Entity, 0, len(t.dirty))
	for _, e := range t.dirty {
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b Entity) int { return compareRefs(a.Ref(), b.Ref()) })
	return out
}

// RemovedEntities returns the refs removed since the last accept, ordered.
func (t *ChangeTracker) RemovedEntities() []EntityRef {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]EntityRef, 0, len(t.removed))
	for ref := range t.removed {
		out = append(out, ref)
	}
	slices.SortFunc(out, compareRefs)
	return out
}

// AcceptAllChanges clears the change set. Call it only after a successful persist.
func (t *ChangeTracker) AcceptAllChanges() {
	t.mu.Lock()
	defer t.mu.Unlock()
	clear(t.dirty)
	clear(t.removed)
	t.structural = false
}

// Close releases the change set. A closed tracker ignores further marks.
func (t *ChangeTracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.dirty = nil
	t.removed = nil
	t.structural = false
}

func compareRefs(a, b EntityRef) int {
	switch {
	case a.Less(b):
		return -1
	case b.Less(a):
		return 1
	}
	return 0
}
