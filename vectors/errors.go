package vectors

import "errors"

var (
	// ErrSynchronizationFailed is returned when entities needed new
	// embeddings and none of them could be produced.
	ErrSynchronizationFailed = errors.New("vector synchronization failed")

	// ErrEmbeddingGeneration marks an empty or failed embedding for one entity.
	ErrEmbeddingGeneration = errors.New("embedding generation failed")

	// ErrInvalidOptions is returned for an unusable selection filter.
	ErrInvalidOptions = errors.New("invalid synchronization options")

	// ErrMissingDependency is returned by New when a collaborator is nil.
	ErrMissingDependency = errors.New("synchronizer dependency is nil")
)
