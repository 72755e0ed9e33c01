package fetcher

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdpower/ccstatusbar-go/internal/calculator"
	"github.com/sdpower/ccstatusbar-go/internal/types"
)

func TestCacheCapacityEvictsOldestInserted(t *testing.T) {
	c := NewCache(time.Minute, 5)
	for i := range 6 {
		c.Put(fmt.Sprintf("k%d", i), types.UsageRecord{RequestCount: i}, 0)
	}

	assert.Equal(t, 5, c.Len())
	_, ok := c.Get("k0")
	assert.False(t, ok)
	for i := 1; i < 6; i++ {
		rec, ok := c.Get(fmt.Sprintf("k%d", i))
		require.True(t, ok)
		assert.Equal(t, i, rec.RequestCount)
	}
}

func TestCacheEvictionIgnoresAccess(t *testing.T) {
	c := NewCache(time.Minute, 2)
	c.Put("a", types.UsageRecord{}, 0)
	c.Put("b", types.UsageRecord{}, 0)
	_, _ = c.Get("a")
	c.Put("c", types.UsageRecord{}, 0)

	assert.Equal(t, []string{"b", "c"}, c.Keys())
}

func TestCacheReplaceMovesKeyToTail(t *testing.T) {
	c := NewCache(time.Minute, 2)
	c.Put("a", types.UsageRecord{RequestCount: 1}, 0)
	c.Put("b", types.UsageRecord{}, 0)
	c.Put("a", types.UsageRecord{RequestCount: 2}, 0)

	assert.Equal(t, []string{"b", "a"}, c.Keys())
	rec, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 2, rec.RequestCount)
}

func TestCacheExpiry(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewCache(time.Minute, 5)
	c.now = func() time.Time { return now }

	c.Put("a", types.UsageRecord{}, 0)
	c.Put("short", types.UsageRecord{}, time.Second)

	now = now.Add(time.Second)
	_, ok := c.Get("short")
	assert.False(t, ok, "expiresAt <= now is absent")
	assert.Equal(t, 1, c.Len(), "expired entries are dropped on lookup")

	now = now.Add(58 * time.Second)
	_, ok = c.Get("a")
	assert.True(t, ok)
	now = now.Add(time.Second)
	_, ok = c.Get("a")
	assert.False(t, ok)
}

func TestCacheCopiesOnWriteAndRead(t *testing.T) {
	c := NewCache(0, 0)
	assert.Equal(t, DefaultCacheTTL, c.TTL())

	rec := calculator.Normalize(types.UsageRecord{TodayCost: 1, CostLimit: 4})
	c.Put("a", rec, 0)
	*rec.CostPercentage = 80

	got, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 25.0, *got.CostPercentage)

	*got.CostPercentage = 10
	again, _ := c.Get("a")
	assert.Equal(t, 25.0, *again.CostPercentage)
}

func TestCacheDeleteAndClear(t *testing.T) {
	c := NewCache(time.Minute, 5)
	c.Put("a", types.UsageRecord{}, 0)
	c.Put("b", types.UsageRecord{}, 0)

	c.Delete("a")
	c.Delete("missing")
	assert.Equal(t, []string{"b"}, c.Keys())

	c.Clear()
	assert.Equal(t, 0, c.Len())
	c.Put("c", types.UsageRecord{}, 0)
	assert.Equal(t, []string{"c"}, c.Keys())
}
