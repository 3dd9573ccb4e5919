package storage

import (
	"context"
	"errors"

	"github.com/poiesic/semdex/core"
)

// EntityLoader adapts a strategy's LoadEntityContent to core.EntityLoader
// for lazy loading. Entities with nothing persisted load as nil.
type EntityLoader struct {
	strategy   Strategy
	modelPath  string
	serializer *Serializer
}

// NewEntityLoader creates a loader for the model persisted at modelPath.
func NewEntityLoader(s Strategy, modelPath string, serializer *Serializer) *EntityLoader {
	if serializer == nil {
		serializer = DefaultSerializer()
	}
	return &EntityLoader{strategy: s, modelPath: modelPath, serializer: serializer}
}

// LoadEntity implements core.EntityLoader.
func (l *EntityLoader) LoadEntity(ctx context.Context, ref core.EntityRef) (core.Entity, error) {
	data, err := l.strategy.LoadEntityContent(ctx, l.modelPath, EntityPath(ref))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	entity, _, err := DecodeEntity(l.serializer, ref.Type, data)
	if err != nil {
		return nil, err
	}
	return entity, nil
}
