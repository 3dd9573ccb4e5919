// Package workpool runs bounded fan-out work on an ants goroutine pool.
package workpool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/panjf2000/ants/v2"
)

// Pool bounds the number of concurrently running tasks.
type Pool struct {
	pool   *ants.Pool
	logger *slog.Logger
}

// Option configures a Pool.
type Option func(*Pool)

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pool) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// DefaultSize is runtime.NumCPU() / 2, with a minimum of 1.
func DefaultSize() int {
	size := runtime.NumCPU() / 2
	if size < 1 {
		size = 1
	}
	return size
}

// New creates a pool running at most size tasks at once. Sizes below 1 use
// DefaultSize.
func New(size int, opts ...Option) (*Pool, error) {
	if size < 1 {
		size = DefaultSize()
	}
	pool, err := ants.NewPool(size)
	if err != nil {
		return nil, fmt.Errorf("creating worker pool: %w", err)
	}
	p := &Pool{pool: pool, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "workpool")
	return p, nil
}

// Size returns the pool capacity.
func (p *Pool) Size() int {
	return p.pool.Cap()
}

// Run calls fn for every index in [0, n) on the pool and waits for all of
// them. Errors from fn are joined. Once ctx is done, tasks not yet started
// are skipped and ctx.Err() is returned.
//
// fn must not call Run on the same pool; a saturated pool would deadlock.
func (p *Pool) Run(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	if n <= 0 {
		return nil
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	record := func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}

	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		err := p.pool.Submit(func() {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			if err := fn(ctx, i); err != nil {
				record(err)
			}
		})
		if err != nil {
			wg.Done()
			p.logger.Error("error submitting task", "index", i, "err", err)
			record(fmt.Errorf("submitting task %d: %w", i, err))
		}
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}
	return errors.Join(errs...)
}

// Release stops the pool. It must not be used afterwards.
func (p *Pool) Release() {
	if p.pool != nil {
		p.pool.Release()
	}
}
