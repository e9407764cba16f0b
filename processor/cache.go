package processor

import (
	"sync"

	"github.com/google/btree"
	"github.com/pbnjay/memory"

	"github.com/xapiens/rvpf/datetime"
	"github.com/xapiens/rvpf/metadata"
	"github.com/xapiens/rvpf/value"
)

// cacheEntry is one memoized row, ordered by stamp within a point's tree.
type cacheEntry struct {
	stamp datetime.DateTime
	vv    value.VersionedValue
}

func lessEntry(a, b cacheEntry) bool { return a.stamp < b.stamp }

const cacheShardCount = 16

// cacheShard holds one google/btree-ordered tree per point that hashes
// into this shard, so invalidation and lookups take a lock no coarser
// than 1/cacheShardCount of the whole cache.
type cacheShard struct {
	mu       sync.RWMutex
	byPoint  map[metadata.Handle]*btree.BTreeG[cacheEntry]
	capacity int
}

// CacheManager memoizes store query results across batches, invalidated
// by point as update notices arrive. Each point's cached rows are capped
// at an entry count derived from a byte budget (by default a fraction of
// host memory). The cap applies per point, so the cache's total size grows
// with the number of points cached.
type CacheManager struct {
	shards [cacheShardCount]*cacheShard
}

// cacheEntrySize approximates one cacheEntry's resident footprint (stamp,
// version, and a typical scalar Value), for translating a byte budget into
// a per-point entry cap.
const cacheEntrySize = 64

// NewCacheManager builds a CacheManager sized from the host's total
// memory.
func NewCacheManager() *CacheManager {
	return NewCacheManagerWithBudget(memory.TotalMemory() / 256)
}

// NewCacheManagerWithBudget builds a CacheManager whose per-point entry cap
// is maxBytes / cacheEntrySize / cacheShardCount, from the
// operator-configurable cache_max_bytes setting (config.ProcessorConfig).
// A cap below 64 entries (including a zero budget) is raised to 64.
// maxBytes does not bound the total footprint: every cached point may hold
// up to the cap.
func NewCacheManagerWithBudget(maxBytes uint64) *CacheManager {
	perShard := int(maxBytes / cacheEntrySize / cacheShardCount)
	if perShard < 64 {
		perShard = 64
	}
	cm := &CacheManager{}
	for i := range cm.shards {
		cm.shards[i] = &cacheShard{byPoint: make(map[metadata.Handle]*btree.BTreeG[cacheEntry]), capacity: perShard}
	}
	return cm
}

func (cm *CacheManager) shardFor(h metadata.Handle) *cacheShard {
	return cm.shards[uint32(h)%cacheShardCount]
}

// Get returns the memoized row for (point, stamp), if cached.
func (cm *CacheManager) Get(point metadata.Handle, stamp datetime.DateTime) (value.VersionedValue, bool) {
	s := cm.shardFor(point)
	s.mu.RLock()
	defer s.mu.RUnlock()
	tree, ok := s.byPoint[point]
	if !ok {
		return value.VersionedValue{}, false
	}
	e, ok := tree.Get(cacheEntry{stamp: stamp})
	if !ok {
		return value.VersionedValue{}, false
	}
	return e.vv, true
}

// Put memoizes vv, evicting this point's lowest-stamp entries while its
// tree holds more than the per-point cap.
func (cm *CacheManager) Put(point metadata.Handle, vv value.VersionedValue) {
	s := cm.shardFor(point)
	s.mu.Lock()
	defer s.mu.Unlock()
	tree, ok := s.byPoint[point]
	if !ok {
		tree = btree.NewG(32, lessEntry)
		s.byPoint[point] = tree
	}
	tree.ReplaceOrInsert(cacheEntry{stamp: vv.Stamp, vv: vv})
	for tree.Len() > s.capacity {
		oldest, ok := tree.Min()
		if !ok {
			break
		}
		tree.Delete(oldest)
	}
}

// Invalidate drops every cached row for point, called from the
// notifier-consuming invalidation loop whenever an update to that point
// commits.
func (cm *CacheManager) Invalidate(point metadata.Handle) {
	s := cm.shardFor(point)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byPoint, point)
}
