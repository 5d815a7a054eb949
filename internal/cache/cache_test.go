package cache

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetSet(t *testing.T) {
	c := New[string, int]()

	_, ok := c.Get("missing")
	assert.False(t, ok)

	c.Set("a", 1, time.Minute)
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestExpiry(t *testing.T) {
	now := time.Now()
	clock := now
	c := New(WithClock[string, int](func() time.Time { return clock }))

	c.Set("a", 1, 5*time.Second)

	clock = now.Add(4 * time.Second)
	_, ok := c.Get("a")
	assert.True(t, ok, "entry should still be fresh before TTL")

	clock = now.Add(5 * time.Second)
	_, ok = c.Get("a")
	assert.False(t, ok, "entry should expire at exactly TTL")

	// Expired entry is evicted, not just hidden.
	assert.Equal(t, 0, c.Len())
}

func TestSetIgnoresNonPositiveTTL(t *testing.T) {
	c := New[string, int]()
	c.Set("a", 1, 0)
	c.Set("b", 2, -time.Second)
	assert.Equal(t, 0, c.Len())
}

func TestInvalidate(t *testing.T) {
	c := New[string, string]()
	c.Set("a", "x", time.Minute)
	c.Set("b", "y", time.Minute)

	c.Invalidate("a")
	_, ok := c.Get("a")
	assert.False(t, ok)
	_, ok = c.Get("b")
	assert.True(t, ok)

	c.InvalidateAll()
	assert.Equal(t, 0, c.Len())
}

func TestGetOrCompute(t *testing.T) {
	c := New[string, int]()
	calls := 0
	fetch := func() (int, error) {
		calls++
		return 42, nil
	}

	v, err := c.GetOrCompute("k", time.Minute, fetch)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 1, calls)

	// Second call is served from cache.
	v, err = c.GetOrCompute("k", time.Minute, fetch)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 1, calls)
}

func TestGetOrComputeErrorNotCached(t *testing.T) {
	c := New[string, int]()
	calls := 0
	boom := errors.New("upstream down")
	fetch := func() (int, error) {
		calls++
		if calls == 1 {
			return 0, boom
		}
		return 7, nil
	}

	_, err := c.GetOrCompute("k", time.Minute, fetch)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, c.Len(), "errors must not be cached")

	v, err := c.GetOrCompute("k", time.Minute, fetch)
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.Equal(t, 2, calls)
}

func TestObserver(t *testing.T) {
	var keys []string
	var hits []bool
	c := New(
		WithObserver[string, int](func(key string, hit bool) {
			keys = append(keys, key)
			hits = append(hits, hit)
		}),
	)

	c.Get("a")
	c.Set("a", 1, time.Minute)
	c.Get("a")

	require.Equal(t, []string{"a", "a"}, keys)
	assert.Equal(t, []bool{false, true}, hits)
}
