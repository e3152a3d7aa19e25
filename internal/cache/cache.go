package cache

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/adverant/nexus/ocr-engine/internal/logging"
	"github.com/adverant/nexus/ocr-engine/internal/metrics"
	"github.com/adverant/nexus/ocr-engine/internal/ocr"
)

// Store is one level of the result cache
type Store interface {
	Get(ctx context.Context, key string) (*ocr.Result, bool, error)
	Set(ctx context.Context, key string, result *ocr.Result, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	Close() error
}

// ttlReporter is implemented by stores that can report an entry's remaining lifetime
type ttlReporter interface {
	TTL(ctx context.Context, key string) (time.Duration, error)
}

// Stats of a Cache since creation
type Stats struct {
	Hits    uint64 `json:"hits"`
	L2Hits  uint64 `json:"l2Hits"`
	Misses  uint64 `json:"misses"`
	Entries int    `json:"entries"`
}

// Cache is the two-level result cache: an in-process L1 and an optional
// shared L2. L2 failures degrade to misses and never fail a request.
type Cache struct {
	l1     *MemoryStore
	l2     Store
	ttl    time.Duration
	logger *logging.Logger

	hits   atomic.Uint64
	l2Hits atomic.Uint64
	misses atomic.Uint64
}

// New creates a cache; l2 may be nil
func New(l1 *MemoryStore, l2 Store, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if l1 == nil {
		l1 = NewMemoryStore(ttl, 0)
	}
	return &Cache{
		l1:     l1,
		l2:     l2,
		ttl:    ttl,
		logger: logging.NewLogger("cache"),
	}
}

// GenerateKey is the fingerprint used by Get and Set
func (c *Cache) GenerateKey(image []byte, opts ocr.Options) string {
	return GenerateKey(image, opts)
}

// Get looks up L1 then L2; an L2 hit is promoted into L1
func (c *Cache) Get(ctx context.Context, key string) (*ocr.Result, bool) {
	if result, ok, _ := c.l1.Get(ctx, key); ok {
		c.hits.Add(1)
		metrics.RecordCacheHit("memory")
		return result, true
	}

	if c.l2 != nil {
		result, ok, err := c.l2.Get(ctx, key)
		if err != nil {
			c.logger.Warn("L2 cache read failed", "error", err)
		}
		if ok {
			c.hits.Add(1)
			c.l2Hits.Add(1)
			metrics.RecordCacheHit("redis")
			_ = c.l1.Set(ctx, key, result, c.promotionTTL(ctx, key))
			return result, true
		}
	}

	c.misses.Add(1)
	metrics.RecordCacheMiss()
	return nil, false
}

// promotionTTL keeps a promoted entry no longer than it has left in L2
func (c *Cache) promotionTTL(ctx context.Context, key string) time.Duration {
	r, ok := c.l2.(ttlReporter)
	if !ok {
		return c.ttl
	}
	remaining, err := r.TTL(ctx, key)
	if err != nil || remaining <= 0 {
		return c.ttl
	}
	return min(remaining, c.ttl)
}

// Set writes both levels
func (c *Cache) Set(ctx context.Context, key string, result *ocr.Result) {
	c.SetWithTTL(ctx, key, result, c.ttl)
}

// SetWithTTL writes both levels with an explicit ttl
func (c *Cache) SetWithTTL(ctx context.Context, key string, result *ocr.Result, ttl time.Duration) {
	if result == nil {
		return
	}
	_ = c.l1.Set(ctx, key, result, ttl)
	if c.l2 != nil {
		if err := c.l2.Set(ctx, key, result, ttl); err != nil {
			c.logger.Warn("L2 cache write failed", "error", err)
		}
	}
}

// Invalidate removes one entry from both levels
func (c *Cache) Invalidate(ctx context.Context, key string) error {
	_ = c.l1.Delete(ctx, key)
	if c.l2 != nil {
		return c.l2.Delete(ctx, key)
	}
	return nil
}

// Clear empties both levels
func (c *Cache) Clear(ctx context.Context) error {
	_ = c.l1.Clear(ctx)
	if c.l2 != nil {
		return c.l2.Clear(ctx)
	}
	return nil
}

// Stats returns hit/miss counters
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:    c.hits.Load(),
		L2Hits:  c.l2Hits.Load(),
		Misses:  c.misses.Load(),
		Entries: c.l1.Len(),
	}
}

// Close releases both levels
func (c *Cache) Close() error {
	_ = c.l1.Close()
	if c.l2 != nil {
		return c.l2.Close()
	}
	return nil
}
