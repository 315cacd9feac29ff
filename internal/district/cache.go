package district

import "sync"

// BoundaryCache holds boundaries fetched during a session: districts by code and
// provinces by name. Entries are never evicted; the first stored value for a key wins.
type BoundaryCache struct {
	mu        sync.RWMutex
	districts map[string]*Boundary
	provinces map[string]*Boundary
}

// NewBoundaryCache creates an empty cache.
func NewBoundaryCache() *BoundaryCache {
	return &BoundaryCache{
		districts: make(map[string]*Boundary),
		provinces: make(map[string]*Boundary),
	}
}

// District returns the cached boundary for a district code.
func (c *BoundaryCache) District(code string) (*Boundary, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	b, ok := c.districts[code]
	return b, ok
}

// PutDistrict stores b under its code unless the code is already cached, and returns
// the boundary that ends up in the cache.
func (c *BoundaryCache) PutDistrict(b *Boundary) *Boundary {
	return c.put(c.districts, b.Code, b)
}

// Province returns the cached boundary for a province name.
func (c *BoundaryCache) Province(name string) (*Boundary, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	b, ok := c.provinces[name]
	return b, ok
}

// PutProvince stores b under name unless already cached.
func (c *BoundaryCache) PutProvince(name string, b *Boundary) *Boundary {
	return c.put(c.provinces, name, b)
}

// Len returns the number of cached districts and provinces.
func (c *BoundaryCache) Len() (districts, provinces int) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.districts), len(c.provinces)
}

func (c *BoundaryCache) put(m map[string]*Boundary, key string, b *Boundary) *Boundary {
	if key == "" || b == nil {
		return b
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := m[key]; ok {
		return existing
	}
	m[key] = b
	return b
}
