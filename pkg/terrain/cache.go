package terrain

import (
	"fmt"
	"math"
	"sync"
)

// ElevationCache memoizes elevations keyed by coordinates rounded to four
// decimals (~11 m). Values below minValid are never trusted: a lookup that
// finds one purges it and reports a miss.
type ElevationCache struct {
	mu       sync.RWMutex
	entries  map[string]float64
	minValid float64
}

// NewElevationCache creates an empty cache.
func NewElevationCache(minValid float64) *ElevationCache {
	return &ElevationCache{
		entries:  make(map[string]float64),
		minValid: minValid,
	}
}

func cacheKey(lon, lat float64) string {
	return fmt.Sprintf("%.4f,%.4f", lon, lat)
}

// Get returns a trusted cached value.
func (c *ElevationCache) Get(lon, lat float64) (float64, bool) {
	key := cacheKey(lon, lat)

	c.mu.RLock()
	v, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return 0, false
	}
	if v >= c.minValid {
		return v, true
	}

	c.mu.Lock()
	if cur, still := c.entries[key]; still && cur < c.minValid {
		delete(c.entries, key)
	}
	c.mu.Unlock()
	return 0, false
}

// Put stores v. NaN and infinities are ignored.
func (c *ElevationCache) Put(lon, lat, v float64) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return
	}
	c.mu.Lock()
	c.entries[cacheKey(lon, lat)] = v
	c.mu.Unlock()
}

// Len returns the number of stored entries, trusted or not.
func (c *ElevationCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Clear drops every entry.
func (c *ElevationCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]float64)
	c.mu.Unlock()
}
