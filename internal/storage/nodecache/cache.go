package nodecache

import (
	"fmt"
	"sync"

	"github.com/devrev/histtree/internal/errors"
	"github.com/devrev/histtree/internal/metrics"
	"github.com/devrev/histtree/internal/storage/node"
	lru "github.com/hashicorp/golang-lru/simplelru"
	"go.uber.org/zap"
)

// Loader reads a sealed node from the owning tree's file. It is only called on a miss.
type Loader func(seq uint32) (*node.Node, error)

// Cache keeps the most recently used sealed nodes of one tree.
// Nodes still open for writing are never handed to the cache.
type Cache struct {
	lru       *lru.LRU
	capacity  int
	load      Loader
	logger    *zap.Logger
	metrics   *metrics.Metrics
	mu        sync.Mutex
	hits      uint64
	misses    uint64
	evictions uint64
}

// New creates a cache holding at most capacity nodes
func New(capacity int, load Loader, logger *zap.Logger, m *metrics.Metrics) (*Cache, error) {
	if load == nil {
		return nil, errors.InvalidArgument("node cache requires a loader", nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	l, err := lru.NewLRU(capacity, nil)
	if err != nil {
		return nil, errors.InvalidArgument(fmt.Sprintf("invalid node cache capacity %d", capacity), err)
	}

	return &Cache{
		lru:      l,
		capacity: capacity,
		load:     load,
		logger:   logger,
		metrics:  m,
	}, nil
}

// Get returns the shared node for seq, loading it on a miss.
// Callers must not modify the returned node.
func (c *Cache) Get(seq uint32) (*node.Node, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v, ok := c.lru.Get(seq); ok {
		c.hits++
		c.metrics.RecordCacheHit()
		return v.(*node.Node), nil
	}

	c.misses++
	c.metrics.RecordCacheMiss()

	n, err := c.load(seq)
	if err != nil {
		if errors.IsStorageError(err) {
			return nil, err
		}
		return nil, errors.InternalError(fmt.Sprintf("failed to load node %d", seq), err)
	}
	if n == nil {
		return nil, errors.NodeNotFound(seq, 0)
	}

	var oldest interface{}
	if c.lru.Len() >= c.capacity {
		oldest, _, _ = c.lru.GetOldest()
	}
	if evicted := c.lru.Add(seq, n); evicted {
		c.evictions++
		c.metrics.RecordCacheEviction()
		c.logger.Debug("Evicted node from cache",
			zap.Any("seq", oldest),
			zap.Uint32("loaded_seq", seq))
	}
	c.metrics.UpdateCacheEntries(c.lru.Len())

	return n, nil
}

// Invalidate drops seq from the cache if present
func (c *Cache) Invalidate(seq uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lru.Remove(seq)
	c.metrics.UpdateCacheEntries(c.lru.Len())
}

// Purge drops every cached node
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lru.Purge()
	c.metrics.UpdateCacheEntries(0)
}

// Contains reports whether seq is cached without touching its recency
func (c *Cache) Contains(seq uint32) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Contains(seq)
}

// Len returns the number of cached nodes
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Stats returns cache statistics
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		Entries:   c.lru.Len(),
		Capacity:  c.capacity,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}

// Stats holds cache statistics
type Stats struct {
	Entries   int
	Capacity  int
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// HitRate returns the hit rate as a percentage
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100.0
}
