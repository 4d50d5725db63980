package visibility

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"sightline/pkg/model"
)

var cacheNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("sightline/result-cache"))

type cacheEntry[V any] struct {
	at     time.Time
	result V
}

// ResultCache memoizes full analysis results. It holds at most capacity
// entries; adding one more evicts the oldest, and entries older than ttl
// are never returned. Stored and returned values are deep copies.
type ResultCache[V any] struct {
	lru   *expirable.LRU[string, cacheEntry[V]]
	clone func(V) V
}

// NewResultCache creates a cache. clone must return a deep copy.
func NewResultCache[V any](capacity int, ttl time.Duration, clone func(V) V) *ResultCache[V] {
	if capacity < 1 {
		capacity = 10
	}
	return &ResultCache[V]{
		lru:   expirable.NewLRU[string, cacheEntry[V]](capacity, nil, ttl),
		clone: clone,
	}
}

// Get returns a copy of the cached result and when it was stored. Lookups
// do not refresh an entry's position.
func (c *ResultCache[V]) Get(key string) (V, time.Time, bool) {
	e, ok := c.lru.Peek(key)
	if !ok {
		var zero V
		return zero, time.Time{}, false
	}
	return c.clone(e.result), e.at, true
}

// Put stores a copy of v under key.
func (c *ResultCache[V]) Put(key string, v V) {
	c.lru.Add(key, cacheEntry[V]{at: time.Now(), result: c.clone(v)})
}

// Len returns the number of entries, including expired ones not yet purged.
func (c *ResultCache[V]) Len() int {
	return c.lru.Len()
}

// Purge drops every entry.
func (c *ResultCache[V]) Purge() {
	c.lru.Purge()
}

// FlightPathKey identifies a flight path analysis by path geometry, grid
// resolution and range.
func FlightPathKey(path model.FlightPath, gridSize, rangeM float64) string {
	var b strings.Builder
	for _, wp := range path.Waypoints {
		fmt.Fprintf(&b, "%.7f,%.7f,%.2f;", wp.Lon, wp.Lat, wp.Elevation)
	}
	fmt.Fprintf(&b, "grid=%g;range=%g", gridSize, rangeM)
	return uuid.NewSHA1(cacheNamespace, []byte(b.String())).String()
}
