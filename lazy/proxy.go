// Package lazy provides a deferred, load-once collection proxy.
//
// A Proxy starts in StateNotLoaded. The first call to Get runs the loader and
// moves the proxy through StateLoading to StateLoaded; concurrent callers that
// arrive while a load is in flight wait for it instead of starting another.
// A waiter whose own context is live does not inherit the leading caller's
// cancellation; it starts a new load instead.
// A failed load returns the proxy to StateNotLoaded so a later Get can retry.
// Close disposes the proxy, releasing the loader and cached items.
package lazy

import (
	"context"
	"errors"
	"slices"
	"sync"
)

// State is the load state of a Proxy.
type State int

const (
	StateNotLoaded State = iota
	StateLoading
	StateLoaded
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateNotLoaded:
		return "not-loaded"
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	case StateDisposed:
		return "disposed"
	}
	return "unknown"
}

// LoadFunc produces the collection behind a Proxy.
type LoadFunc[T any] func(ctx context.Context) ([]T, error)

// call is a single in-flight load shared by every waiting caller.
type call[T any] struct {
	done  chan struct{}
	items []T
	err   error
}

// Proxy defers loading a collection until first access.
type Proxy[T any] struct {
	mu       sync.Mutex
	state    State
	loader   LoadFunc[T]
	items    []T
	inflight *call[T]
}

// New creates a proxy around loader. The loader is invoked at most once per
// successful load.
func New[T any](loader LoadFunc[T]) *Proxy[T] {
	return &Proxy[T]{loader: loader}
}

// State returns the current load state.
func (p *Proxy[T]) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// IsLoaded reports whether the collection has been materialized.
func (p *Proxy[T]) IsLoaded() bool {
	return p.State() == StateLoaded
}

// Get returns the collection, loading it on first use.
// The returned slice is a copy; its elements are shared with the proxy.
func (p *Proxy[T]) Get(ctx context.Context) ([]T, error) {
	p.mu.Lock()
	switch p.state {
	case StateDisposed:
		p.mu.Unlock()
		return nil, ErrDisposed
	case StateLoaded:
		items := slices.Clone(p.items)
		p.mu.Unlock()
		return items, nil
	case StateLoading:
		c := p.inflight
		p.mu.Unlock()
		items, err := p.wait(ctx, c)
		if err != nil && isContextErr(err) && ctx.Err() == nil {
			// The leading caller was canceled, not this one: load again.
			return p.Get(ctx)
		}
		return items, err
	}

	c := &call[T]{done: make(chan struct{})}
	p.inflight = c
	p.state = StateLoading
	loader := p.loader
	p.mu.Unlock()

	items, err := loader(ctx)

	p.mu.Lock()
	switch {
	case p.state == StateDisposed:
		c.err = ErrDisposed
	case err != nil:
		p.state = StateNotLoaded
		c.err = err
	default:
		p.state = StateLoaded
		p.items = items
		c.items = items
	}
	p.inflight = nil
	p.mu.Unlock()
	close(c.done)

	if c.err != nil {
		return nil, c.err
	}
	return slices.Clone(c.items), nil
}

func (p *Proxy[T]) wait(ctx context.Context, c *call[T]) ([]T, error) {
	select {
	case <-c.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if c.err != nil {
		return nil, c.err
	}
	return slices.Clone(c.items), nil
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Update loads the collection if needed and replaces it with fn's result.
// fn runs while the proxy is locked and must not call back into the proxy.
func (p *Proxy[T]) Update(ctx context.Context, fn func([]T) []T) error {
	if _, err := p.Get(ctx); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateDisposed {
		return ErrDisposed
	}
	p.items = fn(p.items)
	return nil
}

// Close disposes the proxy. Subsequent calls return ErrDisposed.
// Closing an already disposed proxy is a no-op.
func (p *Proxy[T]) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = StateDisposed
	p.loader = nil
	p.items = nil
	return nil
}
