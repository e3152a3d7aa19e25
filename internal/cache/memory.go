package cache

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/adverant/nexus/ocr-engine/internal/ocr"
)

// DefaultTTL is used when the caller sets none
const DefaultTTL = time.Hour

// DefaultCapacity bounds the in-process cache
const DefaultCapacity = 10000

// MemoryStore is the in-process L1 cache
type MemoryStore struct {
	cache *ttlcache.Cache[string, *ocr.Result]
}

// NewMemoryStore creates a TTL cache and starts its expiry loop
func NewMemoryStore(ttl time.Duration, capacity uint64) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if capacity == 0 {
		capacity = DefaultCapacity
	}

	c := ttlcache.New[string, *ocr.Result](
		ttlcache.WithTTL[string, *ocr.Result](ttl),
		ttlcache.WithCapacity[string, *ocr.Result](capacity),
	)
	go c.Start()

	return &MemoryStore{cache: c}
}

func (m *MemoryStore) Get(ctx context.Context, key string) (*ocr.Result, bool, error) {
	item := m.cache.Get(key)
	if item == nil {
		return nil, false, nil
	}
	return item.Value().Clone(), true, nil
}

func (m *MemoryStore) Set(ctx context.Context, key string, result *ocr.Result, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = ttlcache.DefaultTTL
	}
	m.cache.Set(key, result.Clone(), ttl)
	return nil
}

// TTL returns the remaining lifetime of key without extending it
func (m *MemoryStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	item := m.cache.Get(key, ttlcache.WithDisableTouchOnHit[string, *ocr.Result]())
	if item == nil {
		return 0, nil
	}
	return time.Until(item.ExpiresAt()), nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.cache.Delete(key)
	return nil
}

func (m *MemoryStore) Clear(ctx context.Context) error {
	m.cache.DeleteAll()
	return nil
}

// Len returns the number of live entries
func (m *MemoryStore) Len() int {
	return m.cache.Len()
}

// Close stops the expiry loop
func (m *MemoryStore) Close() error {
	m.cache.Stop()
	return nil
}
