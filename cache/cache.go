// Package cache holds loaded semantic models in memory with per-entry expiry.
package cache

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-crypt/x/blake2b"
	"github.com/poiesic/semdex/core"
)

// DefaultSweepInterval is how often expired entries are removed.
const DefaultSweepInterval = time.Minute

// Key identifies a cached model.
type Key string

// MakeKey derives the cache key for a model path and strategy name. The path
// is made absolute and cleaned; the strategy name is compared case-insensitively.
// Equal inputs always produce equal keys.
func MakeKey(path, strategy string) Key {
	return Key(digest(CanonicalPath(path) + "\x00" + strings.ToLower(strategy)))
}

// CanonicalPath returns the absolute, cleaned form of path. Relative paths
// that cannot be resolved are cleaned only.
func CanonicalPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

func digest(s string) string {
	h, _ := blake2b.New(32, nil)
	h.Write([]byte(s))
	return hex.EncodeToString(h.Sum(nil))
}

type entry struct {
	model   *core.SemanticModel
	expires time.Time
}

// Stats is a point-in-time view of the cache.
type Stats struct {
	Active  int     `json:"active"`
	Expired int     `json:"expired"`
	Total   int     `json:"total"`
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	HitRate float64 `json:"hitRate"`
}

// ModelCache is a concurrency-safe map of models with per-entry TTL.
// Concurrent Sets on the same key are last-writer-wins.
type ModelCache struct {
	mu       sync.RWMutex
	entries  map[Key]entry
	hits     uint64
	misses   uint64
	now      func() time.Time
	interval time.Duration
	stopped  bool
	stopChan chan struct{}
	done     chan struct{}
	logger   *slog.Logger
}

// Option configures a ModelCache.
type Option func(*ModelCache)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *ModelCache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithSweepInterval sets how often expired entries are removed.
// Zero or negative disables the background sweep.
func WithSweepInterval(d time.Duration) Option {
	return func(c *ModelCache) {
		c.interval = d
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *ModelCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a cache and starts its background sweep, which runs until Close.
func New(opts ...Option) *ModelCache {
	c := &ModelCache{
		entries:  make(map[Key]entry),
		now:      time.Now,
		interval: DefaultSweepInterval,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "model-cache")

	if c.interval > 0 {
		go c.sweepLoop()
	} else {
		close(c.done)
	}
	return c
}

// Get returns the cached model if present and not expired. An expired entry
// is a miss even before the sweep removes it.
func (c *ModelCache) Get(key Key) (*core.SemanticModel, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || !c.now().Before(e.expires) {
		c.misses++
		return nil, false
	}
	c.hits++
	return e.model, true
}

// Set stores model under key until now+ttl.
func (c *ModelCache) Set(key Key, model *core.SemanticModel, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidTTL, ttl)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return ErrClosed
	}
	c.entries[key] = entry{model: model, expires: c.now().Add(ttl)}
	return nil
}

// Refresh replaces the model under key and restarts its TTL, but only if
// key is already cached and unexpired. It does not count as a lookup.
func (c *ModelCache) Refresh(key Key, model *core.SemanticModel, ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || !c.now().Before(e.expires) {
		return false
	}
	c.entries[key] = entry{model: model, expires: c.now().Add(ttl)}
	return true
}

// Remove drops key, reporting whether it was present.
func (c *ModelCache) Remove(key Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	delete(c.entries, key)
	return ok
}

// Clear drops every entry. Hit and miss counters are kept.
func (c *ModelCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
}

// Stats returns entry counts and the hit rate.
func (c *ModelCache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := c.now()
	s := Stats{Total: len(c.entries), Hits: c.hits, Misses: c.misses}
	for _, e := range c.entries {
		if now.Before(e.expires) {
			s.Active++
		} else {
			s.Expired++
		}
	}
	if lookups := c.hits + c.misses; lookups > 0 {
		s.HitRate = float64(c.hits) / float64(lookups)
	}
	return s
}

// Sweep removes expired entries and returns how many were removed.
func (c *ModelCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, key)
			removed++
		}
	}
	if removed > 0 {
		c.logger.Debug("swept expired models", "count", removed, "remaining", len(c.entries))
	}
	return removed
}

func (c *ModelCache) sweepLoop() {
	defer close(c.done)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Sweep()
		case <-c.stopChan:
			return
		}
	}
}

// Close stops the sweep and drops every entry. Cached models are not closed;
// callers may still hold them. Close is idempotent.
func (c *ModelCache) Close() error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	close(c.stopChan)
	clear(c.entries)
	c.mu.Unlock()

	<-c.done
	return nil
}
