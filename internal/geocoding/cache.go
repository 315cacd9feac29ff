package geocoding

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/i474232898/treemap/internal/district"
	"github.com/i474232898/treemap/internal/geo"
	"github.com/i474232898/treemap/internal/metrics"
)

// ResponseCache stores raw geocoding responses.
type ResponseCache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration)
}

// Cached wraps a Service and caches successful responses. Point queries are keyed on the
// snapped coordinate, so nearby points share an entry.
type Cached struct {
	next  Service
	cache ResponseCache
	ttl   time.Duration
	log   *logrus.Entry
}

// NewCached wraps next with cache.
func NewCached(next Service, cache ResponseCache, ttl time.Duration) *Cached {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Cached{next: next, cache: cache, ttl: ttl, log: logrus.WithField("component", "geocoding_cache")}
}

// DistrictByPoint implements Service.
func (c *Cached) DistrictByPoint(ctx context.Context, lat, lng float64, level district.Level) ([]byte, error) {
	key := "revgeo:point:" + string(level) + ":" + geo.Snap(geo.Coordinate{Latitude: lat, Longitude: lng}).Key()
	return c.load(ctx, key, func() ([]byte, error) {
		return c.next.DistrictByPoint(ctx, lat, lng, level)
	})
}

// DistrictByCode implements Service.
func (c *Cached) DistrictByCode(ctx context.Context, code string) ([]byte, error) {
	return c.load(ctx, "revgeo:code:"+code, func() ([]byte, error) {
		return c.next.DistrictByCode(ctx, code)
	})
}

func (c *Cached) load(ctx context.Context, key string, fn func() ([]byte, error)) ([]byte, error) {
	if b, ok := c.cache.Get(ctx, key); ok {
		metrics.ResponseCacheTotal.WithLabelValues("hit").Inc()
		return b, nil
	}
	metrics.ResponseCacheTotal.WithLabelValues("miss").Inc()

	b, err := fn()
	if err != nil {
		return nil, err
	}
	c.cache.Set(ctx, key, b, c.ttl)
	c.log.WithField("key", key).Debug("cached response")
	return b, nil
}

// MemoryCache is an in-process ResponseCache with per-entry expiry.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	val []byte
	exp time.Time
}

// NewMemoryCache creates an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry), now: time.Now}
}

// Get implements ResponseCache.
func (m *MemoryCache) Get(_ context.Context, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	if !m.now().Before(e.exp) {
		delete(m.entries, key)
		return nil, false
	}
	return e.val, true
}

// Set implements ResponseCache.
func (m *MemoryCache) Set(_ context.Context, key string, val []byte, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = memoryEntry{val: val, exp: m.now().Add(ttl)}
}
