package storage

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Factory resolves strategy names to registered strategies.
// Names are matched case-insensitively.
type Factory struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
	fallback   string
}

// NewFactory creates an empty factory. defaultName is resolved when Resolve
// is given an empty name.
func NewFactory(defaultName string) *Factory {
	return &Factory{
		strategies: make(map[string]Strategy),
		fallback:   strings.ToLower(defaultName),
	}
}

// Register adds s under s.Name(), replacing any strategy of the same name.
func (f *Factory) Register(s Strategy) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.strategies[strings.ToLower(s.Name())] = s
}

// Resolve returns the strategy registered under name.
// Returns ErrUnknownStrategy if none is.
func (f *Factory) Resolve(name string) (Strategy, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		key = f.fallback
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	s, ok := f.strategies[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q (registered: %s)", ErrUnknownStrategy, name, strings.Join(f.namesLocked(), ", "))
	}
	return s, nil
}

// Names returns the registered strategy names, sorted.
func (f *Factory) Names() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.namesLocked()
}

func (f *Factory) namesLocked() []string {
	names := make([]string, 0, len(f.strategies))
	for _, s := range f.strategies {
		names = append(names, s.Name())
	}
	sort.Strings(names)
	return names
}

// Close closes every registered strategy.
func (f *Factory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var errs []error
	for _, s := range f.strategies {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", s.Name(), err))
		}
	}
	clear(f.strategies)
	return errors.Join(errs...)
}
