package processor

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xapiens/rvpf/datetime"
	"github.com/xapiens/rvpf/metadata"
	"github.com/xapiens/rvpf/value"
)

func TestCacheManagerGetPutRoundTrip(t *testing.T) {
	cm := NewCacheManager()
	h := metadata.Handle(1)
	stamp := datetime.DateTime(100)
	vv := value.VersionedValue{PointValue: value.PointValue{Stamp: stamp, Value: value.NewInt64(7)}, Version: 1}

	_, ok := cm.Get(h, stamp)
	assert.False(t, ok)

	cm.Put(h, vv)
	got, ok := cm.Get(h, stamp)
	assert.True(t, ok)
	assert.Equal(t, vv, got)
}

func TestCacheManagerInvalidateDropsEntries(t *testing.T) {
	cm := NewCacheManager()
	h := metadata.Handle(2)
	stamp := datetime.DateTime(5)
	cm.Put(h, value.VersionedValue{PointValue: value.PointValue{Stamp: stamp}})

	cm.Invalidate(h)
	_, ok := cm.Get(h, stamp)
	assert.False(t, ok)
}

// TestCacheManagerEvictsOldestPastCapacity exercises the per-point tree's
// eviction, forcing a tiny capacity so the test doesn't depend on host
// memory sizing.
func TestCacheManagerEvictsOldestPastCapacity(t *testing.T) {
	cm := NewCacheManager()
	h := metadata.Handle(3)
	shard := cm.shardFor(h)
	shard.capacity = 2

	cm.Put(h, value.VersionedValue{PointValue: value.PointValue{Stamp: datetime.DateTime(1)}})
	cm.Put(h, value.VersionedValue{PointValue: value.PointValue{Stamp: datetime.DateTime(2)}})
	cm.Put(h, value.VersionedValue{PointValue: value.PointValue{Stamp: datetime.DateTime(3)}})

	_, ok := cm.Get(h, datetime.DateTime(1))
	assert.False(t, ok, "oldest entry should have been evicted")
	_, ok = cm.Get(h, datetime.DateTime(2))
	assert.True(t, ok)
	_, ok = cm.Get(h, datetime.DateTime(3))
	assert.True(t, ok)
}

func TestNewCacheManagerWithBudgetSizesShardsFromBytes(t *testing.T) {
	// A budget far below the 64-entry floor still yields the floor, not
	// zero: a zero-capacity shard would evict every Put immediately.
	cm := NewCacheManagerWithBudget(1)
	assert.Equal(t, 64, cm.shardFor(metadata.Handle(0)).capacity)

	// A generous budget scales capacity up proportionally.
	cm = NewCacheManagerWithBudget(uint64(cacheEntrySize) * cacheShardCount * 1000)
	assert.Equal(t, 1000, cm.shardFor(metadata.Handle(0)).capacity)
}

func TestCacheManagerShardsByHandle(t *testing.T) {
	cm := NewCacheManager()
	a, b := metadata.Handle(0), metadata.Handle(cacheShardCount)
	// Handles a multiple of cacheShardCount apart hash to the same shard.
	assert.Same(t, cm.shardFor(a), cm.shardFor(b))
}
