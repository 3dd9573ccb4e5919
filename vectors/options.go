package vectors

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/poiesic/semdex/core"
	"github.com/poiesic/semdex/workpool"
)

// Options select entities and control one synchronization run.
type Options struct {
	// Overwrite regenerates embeddings even when the content hash is unchanged.
	Overwrite bool
	// DryRun plans the work without embedding or writing anything.
	DryRun bool

	SkipTables           bool
	SkipViews            bool
	SkipStoredProcedures bool

	// ObjectType, SchemaName and ObjectName narrow the run by exact match.
	// Each is ignored when empty.
	ObjectType string
	SchemaName string
	ObjectName string
}

// selectEntities applies the skip flags and the exact-match filter.
func selectEntities(ctx context.Context, model *core.SemanticModel, opts Options) ([]core.Entity, error) {
	var types []core.EntityType
	if opts.ObjectType != "" {
		t, err := core.ParseEntityType(opts.ObjectType)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidOptions, err)
		}
		types = []core.EntityType{t}
	} else {
		types = core.EntityTypes
	}

	var selected []core.EntityType
	for _, t := range types {
		switch {
		case t == core.EntityTypeTable && opts.SkipTables,
			t == core.EntityTypeView && opts.SkipViews,
			t == core.EntityTypeStoredProcedure && opts.SkipStoredProcedures:
			continue
		}
		selected = append(selected, t)
	}
	if len(selected) == 0 {
		return nil, nil
	}

	entities, err := model.Entities(ctx, selected...)
	if err != nil {
		return nil, fmt.Errorf("reading entities of %s: %w", model.Name, err)
	}

	schema, name := strings.TrimSpace(opts.SchemaName), strings.TrimSpace(opts.ObjectName)
	if schema == "" && name == "" {
		return entities, nil
	}
	out := entities[:0]
	for _, e := range entities {
		ref := e.Ref()
		if schema != "" && ref.Schema != schema {
			continue
		}
		if name != "" && ref.Name != name {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// Config holds engine settings that outlive a single run.
type Config struct {
	// Workers is how many entities are processed at once.
	Workers int

	// MaxRetries is the number of attempts per embedding call.
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff between attempts.
	RetryDelay time.Duration

	// Normalize scales every vector to unit length before storing it.
	Normalize bool

	// ReportInterval is how often to report progress (number of entities).
	ReportInterval int

	// ModelID is recorded as the embedding model in envelope metadata.
	// Empty uses the provider's service id.
	ModelID string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Workers:        workpool.DefaultSize(),
		MaxRetries:     3,
		RetryDelay:     time.Second,
		ReportInterval: 10,
	}
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithConfig replaces the engine settings.
func WithConfig(cfg *Config) Option {
	return func(s *Synchronizer) {
		if cfg != nil {
			s.config = cfg
		}
	}
}

// WithProgress writes progress lines to w.
// Default is no progress output.
func WithProgress(w io.Writer) Option {
	return func(s *Synchronizer) {
		if w != nil {
			s.progress = w
		}
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Synchronizer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Locker serializes writes to one persisted model.
type Locker interface {
	WithModelLock(ctx context.Context, path string, fn func(context.Context) error) error
}

type noLock struct{}

func (noLock) WithModelLock(ctx context.Context, _ string, fn func(context.Context) error) error {
	return fn(ctx)
}

// WithModelLock makes each entity's vector upsert and envelope write run
// under l's lock for the model path.
// Default is no locking.
func WithModelLock(l Locker) Option {
	return func(s *Synchronizer) {
		if l != nil {
			s.locker = l
		}
	}
}

// WithClock overrides the time source for embedding timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Synchronizer) {
		if now != nil {
			s.now = now
		}
	}
}
