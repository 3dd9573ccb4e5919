package cache

import "errors"

var (
	// ErrClosed is returned when the cache is used after Close.
	ErrClosed = errors.New("model cache is closed")

	// ErrInvalidTTL is returned when Set is given a non-positive TTL.
	ErrInvalidTTL = errors.New("cache ttl must be positive")
)
