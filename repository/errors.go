package repository

import "errors"

var (
	// ErrFactoryRequired is returned when no strategy factory is provided.
	ErrFactoryRequired = errors.New("strategy factory required")

	// ErrConcurrency is returned when the model lock cannot be acquired in time.
	ErrConcurrency = errors.New("timed out waiting for model lock")

	// ErrChangeTrackingDisabled is returned by SaveChanges for a model loaded
	// without change tracking. Use SaveModel instead.
	ErrChangeTrackingDisabled = errors.New("change tracking is not enabled for this model")

	// ErrClosed is returned when the repository is used after Close.
	ErrClosed = errors.New("repository is closed")
)
