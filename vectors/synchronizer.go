package vectors

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/poiesic/semdex/ai"
	"github.com/poiesic/semdex/core"
	"github.com/poiesic/semdex/retry"
	"github.com/poiesic/semdex/storage"
	"github.com/poiesic/semdex/vectorindex"
	"github.com/poiesic/semdex/workpool"
)

// Reason says why an entity needs a new embedding.
type Reason string

const (
	// ReasonNew means no content hash was stored for the entity.
	ReasonNew Reason = "new"
	// ReasonChanged means the stored hash differs from the current one.
	ReasonChanged Reason = "changed"
	// ReasonOverwrite means the hash matched but Overwrite was requested.
	ReasonOverwrite Reason = "overwrite"
)

// PlannedAction is one embedding a run would generate.
type PlannedAction struct {
	Ref         core.EntityRef
	Key         string
	ContentHash string
	Reason      Reason
}

// Result summarizes a synchronization run.
type Result struct {
	RunID string
	// Processed counts entities whose embedding was regenerated and stored.
	Processed int
	// Skipped counts entities whose stored hash was current.
	Skipped int
	// Failed counts entities that needed an embedding and did not get one.
	Failed int
	// Planned lists, in entity order, what a dry run would have done.
	Planned []PlannedAction
}

// Synchronizer regenerates stale entity embeddings.
type Synchronizer struct {
	strategy storage.Strategy
	provider ai.Provider
	index    vectorindex.Writer
	config   *Config
	locker   Locker
	progress io.Writer
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a Synchronizer. strategy reads stored hashes and records new
// embeddings, provider generates vectors, index receives them.
func New(strategy storage.Strategy, provider ai.Provider, index vectorindex.Writer, opts ...Option) (*Synchronizer, error) {
	switch {
	case strategy == nil:
		return nil, fmt.Errorf("%w: strategy", ErrMissingDependency)
	case provider == nil:
		return nil, fmt.Errorf("%w: provider", ErrMissingDependency)
	case index == nil:
		return nil, fmt.Errorf("%w: vector index", ErrMissingDependency)
	}
	s := &Synchronizer{
		strategy: strategy,
		provider: provider,
		index:    index,
		config:   DefaultConfig(),
		locker:   noLock{},
		progress: io.Discard,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "vectors")
	return s, nil
}

// Synchronize runs Run and returns the number of entities processed.
func (s *Synchronizer) Synchronize(ctx context.Context, model *core.SemanticModel, modelPath string, opts Options) (int, error) {
	result, err := s.Run(ctx, model, modelPath, opts)
	if result == nil {
		return 0, err
	}
	return result.Processed, err
}

// Run synchronizes the embeddings of the selected entities of model, which
// is persisted at modelPath.
//
// Entities are processed independently on a bounded pool. Failures are
// counted and logged without stopping the run. The result is returned even
// with an error: ErrSynchronizationFailed when every attempted entity failed,
// or the context error when the run was canceled.
func (s *Synchronizer) Run(ctx context.Context, model *core.SemanticModel, modelPath string, opts Options) (*Result, error) {
	if err := core.ValidateModel(model); err != nil {
		return nil, err
	}
	entities, err := selectEntities(ctx, model, opts)
	if err != nil {
		return nil, err
	}

	r := &run{
		Synchronizer: s,
		model:        model,
		modelPath:    modelPath,
		opts:         opts,
		result:       &Result{RunID: uuid.NewString()},
		logger:       s.logger.With("model", model.Name, "path", modelPath),
	}
	r.logger.Info("synchronizing vectors", "run", r.result.RunID, "entities", len(entities),
		"overwrite", opts.Overwrite, "dryRun", opts.DryRun)

	tracker := NewProgressTracker(s.progress, len(entities), s.config.ReportInterval)
	tracker.Start()

	workers := max(1, min(s.config.Workers, len(entities)))
	pool, err := workpool.New(workers, workpool.WithLogger(s.logger))
	if err != nil {
		return nil, err
	}
	defer pool.Release()

	plan := make([]*PlannedAction, len(entities))
	runErr := pool.Run(ctx, len(entities), func(ctx context.Context, i int) error {
		defer tracker.Increment(1)
		action, err := r.process(ctx, entities[i])
		plan[i] = action
		return err
	})
	tracker.Finish()

	for _, a := range plan {
		if a != nil && opts.DryRun {
			r.result.Planned = append(r.result.Planned, *a)
		}
	}

	res := r.result
	r.logger.Info("vector synchronization finished", "run", res.RunID,
		"processed", res.Processed, "skipped", res.Skipped, "failed", res.Failed,
		"planned", len(res.Planned), "elapsed", tracker.Elapsed().Round(time.Millisecond))

	if runErr != nil {
		return res, runErr
	}
	if res.Failed > 0 && res.Processed == 0 {
		return res, fmt.Errorf("%w: all %d entities needing embeddings failed", ErrSynchronizationFailed, res.Failed)
	}
	if res.Failed > 0 {
		r.logger.Warn("some entities were not synchronized", "failed", res.Failed)
	}
	return res, nil
}

// run holds the state of one Run call.
type run struct {
	*Synchronizer
	model     *core.SemanticModel
	modelPath string
	opts      Options
	logger    *slog.Logger

	mu     sync.Mutex
	result *Result
}

// process handles one entity. It returns a planned action when the entity
// needs an embedding, and an error only for cancellation.
func (r *run) process(ctx context.Context, e core.Entity) (*PlannedAction, error) {
	ref := e.Ref()
	text := CanonicalText(e)
	hash := core.ContentHash(text)
	key := CompositeKey(r.model.Name, ref)

	stored, ok := r.strategy.CheckStoredContentHash(ctx, ref, r.modelPath)
	var reason Reason
	switch {
	case !ok:
		reason = ReasonNew
	case stored != hash:
		reason = ReasonChanged
	case r.opts.Overwrite:
		reason = ReasonOverwrite
	default:
		r.count(func(res *Result) { res.Skipped++ })
		r.logger.Debug("embedding is current", "entity", ref)
		return nil, nil
	}
	action := &PlannedAction{Ref: ref, Key: key, ContentHash: hash, Reason: reason}

	if r.opts.DryRun {
		r.logger.Debug("would regenerate embedding", "entity", ref, "reason", reason)
		return action, nil
	}

	if err := r.synchronize(ctx, e, text, hash, key); err != nil {
		if ctx.Err() != nil {
			return action, ctx.Err()
		}
		r.count(func(res *Result) { res.Failed++ })
		r.logger.Error("failed to synchronize entity", "entity", ref, "err", err)
		return action, nil
	}
	r.count(func(res *Result) { res.Processed++ })
	r.logger.Debug("synchronized entity", "entity", ref, "reason", reason)
	return action, nil
}

// synchronize embeds text, then upserts the vector and records it in the
// envelope under the model lock.
func (r *run) synchronize(ctx context.Context, e core.Entity, text, hash, key string) error {
	vector, err := r.embed(ctx, text)
	if err != nil {
		return err
	}
	if r.config.Normalize {
		vector = NormalizeVector(vector)
	}

	ref := e.Ref()
	record := vectorindex.Record{
		ID:      key,
		Content: text,
		Vector:  vector,
		Metadata: map[string]string{
			"model":       r.model.Name,
			"type":        string(ref.Type),
			"schema":      ref.Schema,
			"name":        ref.Name,
			"contentHash": hash,
		},
	}
	modelID := r.config.ModelID
	if modelID == "" {
		modelID = r.provider.ServiceID()
	}
	emb := &storage.Embedding{
		Vector: vector,
		Metadata: storage.EmbeddingMetadata{
			ModelID:     modelID,
			Dimensions:  len(vector),
			ContentHash: hash,
			GeneratedAt: r.now().UTC(),
			ServiceID:   r.provider.ServiceID(),
			Version:     storage.EnvelopeVersion,
		},
	}
	return r.locker.WithModelLock(ctx, r.modelPath, func(ctx context.Context) error {
		if err := r.index.Upsert(ctx, record); err != nil {
			return fmt.Errorf("upserting vector %s: %w", key, err)
		}
		if err := r.strategy.SaveEmbedding(ctx, r.modelPath, e, emb); err != nil {
			return fmt.Errorf("saving embedding for %s: %w", ref, err)
		}
		return nil
	})
}

func (r *run) embed(ctx context.Context, text string) ([]float32, error) {
	cfg := retry.Config{
		MaxAttempts: max(1, r.config.MaxRetries),
		BaseDelay:   r.config.RetryDelay,
		MaxDelay:    30 * time.Second,
		Retryable:   retry.IsRetryable,
		Logger:      r.logger,
	}
	vector, err := retry.DoWithResult(ctx, cfg, func(ctx context.Context) ([]float32, error) {
		return r.provider.Embedder().EmbedText(ctx, text)
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingGeneration, err)
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("%w: empty vector", ErrEmbeddingGeneration)
	}
	return slices.Clone(vector), nil
}

func (r *run) count(fn func(*Result)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r.result)
}
