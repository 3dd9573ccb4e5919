package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/poiesic/semdex/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newTestCache(t *testing.T) (*ModelCache, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := New(WithClock(clock.Now), WithSweepInterval(0))
	t.Cleanup(func() { _ = c.Close() })
	return c, clock
}

func TestMakeKey(t *testing.T) {
	dir := t.TempDir()

	a := MakeKey(dir, "LocalDisk")
	assert.Equal(t, a, MakeKey(dir+"/.", "localdisk"), "path is cleaned and strategy is case-insensitive")
	assert.Equal(t, a, MakeKey(dir+"/sub/..", "LOCALDISK"))
	assert.NotEqual(t, a, MakeKey(dir, "ObjectStore"))
	assert.NotEqual(t, a, MakeKey(dir+"/other", "LocalDisk"))
	assert.Len(t, string(a), 64)
}

func TestModelCache_GetSet(t *testing.T) {
	c, _ := newTestCache(t)
	key := MakeKey("/models/northwind", "LocalDisk")
	model := core.NewSemanticModel("Northwind", "", "")

	_, ok := c.Get(key)
	assert.False(t, ok)

	require.NoError(t, c.Set(key, model, time.Minute))
	got, ok := c.Get(key)
	require.True(t, ok)
	assert.Same(t, model, got)
}

func TestModelCache_Expiry(t *testing.T) {
	c, clock := newTestCache(t)
	key := MakeKey("/models/northwind", "LocalDisk")
	require.NoError(t, c.Set(key, core.NewSemanticModel("Northwind", "", ""), time.Second))

	clock.Advance(999 * time.Millisecond)
	_, ok := c.Get(key)
	assert.True(t, ok)

	clock.Advance(time.Millisecond)
	_, ok = c.Get(key)
	assert.False(t, ok, "an entry is a miss once now reaches expiry")

	stats := c.Stats()
	assert.Equal(t, 1, stats.Total, "expired entries linger until swept")
	assert.Equal(t, 1, stats.Expired)
	assert.Equal(t, 0, stats.Active)

	assert.Equal(t, 1, c.Sweep())
	assert.Equal(t, 0, c.Stats().Total)
}

func TestModelCache_Stats(t *testing.T) {
	c, _ := newTestCache(t)
	key := MakeKey("/models/northwind", "LocalDisk")
	require.NoError(t, c.Set(key, core.NewSemanticModel("Northwind", "", ""), time.Minute))

	c.Get(key)
	c.Get(key)
	c.Get(key)
	c.Get(MakeKey("/models/other", "LocalDisk"))

	stats := c.Stats()
	assert.Equal(t, uint64(3), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.InDelta(t, 0.75, stats.HitRate, 0.0001)
	assert.Equal(t, 1, stats.Active)
}

func TestModelCache_RemoveClear(t *testing.T) {
	c, _ := newTestCache(t)
	k1 := MakeKey("/a", "LocalDisk")
	k2 := MakeKey("/b", "LocalDisk")
	require.NoError(t, c.Set(k1, core.NewSemanticModel("A", "", ""), time.Minute))
	require.NoError(t, c.Set(k2, core.NewSemanticModel("B", "", ""), time.Minute))

	assert.True(t, c.Remove(k1))
	assert.False(t, c.Remove(k1))

	c.Clear()
	_, ok := c.Get(k2)
	assert.False(t, ok)
}

func TestModelCache_InvalidTTL(t *testing.T) {
	c, _ := newTestCache(t)
	err := c.Set(MakeKey("/a", "LocalDisk"), core.NewSemanticModel("A", "", ""), 0)
	assert.ErrorIs(t, err, ErrInvalidTTL)
}

func TestModelCache_BackgroundSweep(t *testing.T) {
	c := New(WithSweepInterval(5 * time.Millisecond))
	defer c.Close()

	require.NoError(t, c.Set(MakeKey("/a", "LocalDisk"), core.NewSemanticModel("A", "", ""), time.Millisecond))
	require.Eventually(t, func() bool { return c.Stats().Total == 0 }, time.Second, 5*time.Millisecond)
}

func TestModelCache_Close(t *testing.T) {
	c := New()
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.ErrorIs(t, c.Set(MakeKey("/a", "LocalDisk"), core.NewSemanticModel("A", "", ""), time.Minute), ErrClosed)
}

func TestModelCache_Concurrent(t *testing.T) {
	c, _ := newTestCache(t)
	key := MakeKey("/models/northwind", "LocalDisk")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.Set(key, core.NewSemanticModel("Northwind", "", ""), time.Minute)
			c.Get(key)
			c.Stats()
		}()
	}
	wg.Wait()

	_, ok := c.Get(key)
	assert.True(t, ok)
}

func TestModelCache_Refresh(t *testing.T) {
	c, clock := newTestCache(t)
	key := MakeKey("/a", "LocalDisk")
	replacement := core.NewSemanticModel("A2", "", "")

	assert.False(t, c.Refresh(key, replacement, time.Minute), "absent keys are not inserted")

	require.NoError(t, c.Set(key, core.NewSemanticModel("A", "", ""), time.Second))
	clock.Advance(900 * time.Millisecond)
	assert.True(t, c.Refresh(key, replacement, time.Second))

	clock.Advance(900 * time.Millisecond)
	got, ok := c.Get(key)
	require.True(t, ok, "refresh restarts the TTL")
	assert.Same(t, replacement, got)
	assert.Equal(t, uint64(1), c.Stats().Hits)
}
