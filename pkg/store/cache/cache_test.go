package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutAndGet(t *testing.T) {
	c := New[string](time.Minute, 10)
	defer c.Close()

	c.Put("a", "alpha")
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "alpha", v)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestExpiry(t *testing.T) {
	c := New[string](10*time.Millisecond, 10)
	defer c.Close()

	c.Put("a", "alpha")
	time.Sleep(20 * time.Millisecond)

	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestEvictsOldestAtCapacity(t *testing.T) {
	c := New[int](time.Minute, 2)
	defer c.Close()

	c.Put("a", 1)
	c.Put("b", 2)
	c.Put("c", 3)

	_, ok := c.Get("a")
	assert.False(t, ok, "oldest entry should be evicted")
	_, ok = c.Get("b")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
	assert.Equal(t, 2, c.Len())
}

func TestPutRefreshesExistingKey(t *testing.T) {
	c := New[int](time.Minute, 2)
	defer c.Close()

	c.Put("a", 1)
	c.Put("b", 2)
	// Re-putting "a" moves it to the back, so "b" is now oldest.
	c.Put("a", 10)
	c.Put("c", 3)

	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 10, v)
	_, ok = c.Get("b")
	assert.False(t, ok)
}

func TestInvalidate(t *testing.T) {
	c := New[string](time.Minute, 10)
	defer c.Close()

	c.Put("a", "alpha")
	c.Invalidate("a")
	_, ok := c.Get("a")
	assert.False(t, ok)

	// Invalidating a missing key is fine.
	c.Invalidate("missing")
}

func TestStats(t *testing.T) {
	c := New[string](time.Minute, 10)
	defer c.Close()

	c.Put("a", "alpha")
	c.Get("a")
	c.Get("a")
	c.Get("missing")

	hits, misses := c.Stats()
	assert.Equal(t, int64(2), hits)
	assert.Equal(t, int64(1), misses)
}

func TestCloseIsIdempotent(t *testing.T) {
	c := New[string](time.Minute, 10)
	c.Close()
	c.Close()
}
