package cache

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Neural-Bridge/sql-analyst/internal/infrastructure/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_EvictsLeastRecentlyUsed(t *testing.T) {
	c := NewMemory(2, 0)
	c.Set("a", "1")
	c.Set("b", "2")
	_, _ = c.Get("a")
	c.Set("c", "3")

	_, ok := c.Get("b")
	assert.False(t, ok)
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "1", v)
	assert.Equal(t, 2, c.Len())
}

func TestMemory_ZeroCapacityNeverEvicts(t *testing.T) {
	c := NewMemory(0, 0)
	for i := 0; i < 1000; i++ {
		c.Set(fmt.Sprintf("prompt-%d", i), "completion")
	}

	assert.Equal(t, 1000, c.Len())
	v, ok := c.Get("prompt-0")
	assert.True(t, ok)
	assert.Equal(t, "completion", v)
}

func TestMemory_Expires(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMemory(10, time.Minute)
	c.now = func() time.Time { return now }

	c.Set("k", "v")
	now = now.Add(30 * time.Second)
	_, ok := c.Get("k")
	assert.True(t, ok)

	now = now.Add(time.Minute)
	_, ok = c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestMemory_ConcurrentAccess(t *testing.T) {
	c := NewMemory(100, 0)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				c.Set("key", "value")
				_, _ = c.Get("key")
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, c.Len())
}

func TestHashKey(t *testing.T) {
	assert.Equal(t, HashKey("gpt", "0", "prompt"), HashKey("gpt", "0", "prompt"))
	assert.NotEqual(t, HashKey("gpt", "0", "prompt"), HashKey("gpt", "0.5", "prompt"))
	assert.NotEqual(t, HashKey("ab", "c"), HashKey("a", "bc"))
}

func TestSQLite_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache", "llm.db")

	store, err := OpenSQLite(path, logger.NewNop())
	require.NoError(t, err)
	_, ok := store.Get("k")
	assert.False(t, ok)
	store.Set("k", "first")
	store.Set("k", "second")
	require.NoError(t, store.Close())

	store, err = OpenSQLite(path, logger.NewNop())
	require.NoError(t, err)
	defer store.Close()

	v, ok := store.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "second", v)
}

func TestTiered_PromotesFromBack(t *testing.T) {
	front := NewMemory(10, 0)
	back := NewMemory(10, 0)
	back.Set("k", "v")
	tiered := NewTiered(front, back)

	v, ok := tiered.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", v)
	_, ok = front.Get("k")
	assert.True(t, ok)

	tiered.Set("n", "w")
	_, ok = back.Get("n")
	assert.True(t, ok)
}
