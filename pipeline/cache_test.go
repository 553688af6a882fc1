package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCacheLRUEvictsOldestOnOverflow(t *testing.T) {
	c := NewResultCache(2, time.Hour)
	c.Put("a", CommandResult{CommandID: "a"})
	c.Put("b", CommandResult{CommandID: "b"})
	c.Put("c", CommandResult{CommandID: "c"})

	_, ok := c.Get("a")
	require.False(t, ok)
	_, ok = c.Get("b")
	require.True(t, ok)
	_, ok = c.Get("c")
	require.True(t, ok)
}

func TestCacheGetRefreshesRecency(t *testing.T) {
	c := NewResultCache(2, time.Hour)
	c.Put("a", CommandResult{CommandID: "a"})
	c.Put("b", CommandResult{CommandID: "b"})
	_, _ = c.Get("a")
	c.Put("c", CommandResult{CommandID: "c"})

	_, ok := c.Get("b")
	require.False(t, ok)
	_, ok = c.Get("a")
	require.True(t, ok)
}

func TestCacheSweepEvictsExpired(t *testing.T) {
	c := NewResultCache(10, 20*time.Millisecond)
	c.Put("a", CommandResult{CommandID: "a"})
	time.Sleep(30 * time.Millisecond)

	evicted := c.Sweep()
	require.Equal(t, 1, evicted)
	require.Equal(t, 0, c.Len())
}
