// Package cache implements the TTL+LRU query cache that fronts the search
// and agent endpoints.
package cache

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"sync"
	"time"
)

// QueryCache is a bounded cache with per-entry TTL and least-recently-used
// eviction. All operations are safe for concurrent use.
type QueryCache struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List // front = most recently used
	maxSize int
	ttl     time.Duration
	now     func() time.Time

	hits   int64
	misses int64
	sets   int64
}

type entry struct {
	key        string
	value      interface{}
	insertedAt time.Time
}

// Stats is a point-in-time view of cache effectiveness.
type Stats struct {
	Size    int     `json:"size"`
	MaxSize int     `json:"max_size"`
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	Sets    int64   `json:"sets"`
	HitRate float64 `json:"hit_rate"`
}

// New creates a cache holding at most maxSize entries, each valid for ttl.
func New(maxSize int, ttl time.Duration) *QueryCache {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &QueryCache{
		entries: make(map[string]*list.Element),
		order:   list.New(),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Key derives a stable cache key from the operation name, the normalized
// query text and any extra parameters. Parameter maps marshal with sorted
// keys, so identical inputs always hash identically.
func Key(operation, query string, params map[string]interface{}) string {
	payload := struct {
		Op     string                 `json:"op"`
		Query  string                 `json:"query"`
		Params map[string]interface{} `json:"params,omitempty"`
	}{
		Op:     operation,
		Query:  strings.ToLower(strings.TrimSpace(query)),
		Params: params,
	}
	raw, _ := json.Marshal(payload)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// Get returns the cached value for key. An entry past its TTL is treated as
// absent and removed.
func (c *QueryCache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}

	ent := el.Value.(*entry)
	if c.ttl > 0 && c.now().Sub(ent.insertedAt) >= c.ttl {
		c.order.Remove(el)
		delete(c.entries, key)
		c.misses++
		return nil, false
	}

	c.order.MoveToFront(el)
	c.hits++
	return ent.value, true
}

// Set stores value under key, overwriting any existing entry. When the
// cache is full the least-recently-used entry is evicted first.
func (c *QueryCache) Set(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sets++
	if el, ok := c.entries[key]; ok {
		ent := el.Value.(*entry)
		ent.value = value
		ent.insertedAt = c.now()
		c.order.MoveToFront(el)
		return
	}

	for len(c.entries) >= c.maxSize {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*entry).key)
	}

	el := c.order.PushFront(&entry{key: key, value: value, insertedAt: c.now()})
	c.entries[key] = el
}

// Clear drops every entry but keeps the counters.
func (c *QueryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.order.Init()
}

// Stats returns the current counters.
func (c *QueryCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.hits + c.misses
	var rate float64
	if total > 0 {
		rate = float64(c.hits) / float64(total) * 100
	}
	return Stats{
		Size:    len(c.entries),
		MaxSize: c.maxSize,
		Hits:    c.hits,
		Misses:  c.misses,
		Sets:    c.sets,
		HitRate: rate,
	}
}

// SetClock overrides the cache's time source. Tests use it to step through
// TTL expiry deterministically.
func (c *QueryCache) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}
