package storage

import (
	"log/slog"
	"time"

	"github.com/poiesic/semdex/retry"
	"github.com/poiesic/semdex/workpool"
)

// Options holds settings shared by every backend.
type Options struct {
	Serializer *Serializer
	Retry      retry.Config
	Workers    int
	Logger     *slog.Logger
}

// Option configures a strategy.
type Option func(*Options)

// DefaultOptions returns the default serializer limits, three read attempts
// starting at 50ms, and DefaultSize workers.
func DefaultOptions() Options {
	return Options{
		Serializer: DefaultSerializer(),
		Retry: retry.Config{
			MaxAttempts: 3,
			BaseDelay:   50 * time.Millisecond,
			MaxDelay:    time.Second,
			Retryable:   IsTransient,
		},
		Workers: workpool.DefaultSize(),
		Logger:  slog.Default(),
	}
}

// ApplyOptions applies opts over DefaultOptions.
func ApplyOptions(opts ...Option) Options {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.Retry.Retryable == nil {
		o.Retry.Retryable = IsTransient
	}
	if o.Retry.Logger == nil {
		o.Retry.Logger = o.Logger
	}
	return o
}

// WithSerializer sets the serializer and its limits.
func WithSerializer(s *Serializer) Option {
	return func(o *Options) {
		if s != nil {
			o.Serializer = s
		}
	}
}

// WithRetry sets the retry policy for entity reads.
func WithRetry(cfg retry.Config) Option {
	return func(o *Options) {
		o.Retry = cfg
	}
}

// WithWorkers sets how many entities are read or written concurrently.
func WithWorkers(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.Workers = n
		}
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		if logger != nil {
			o.Logger = logger
		}
	}
}
