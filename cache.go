package stockx

import (
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ============================================================================
// Cache store
// ============================================================================

// Entry is a cached value with its write timestamp.
type Entry struct {
	Value     json.RawMessage `json:"value"`
	WrittenAt time.Time       `json:"written_at"`
}

// Age returns how long ago the entry was written.
func (e Entry) Age() time.Duration { return time.Since(e.WrittenAt) }

// CacheStore is a durable string-keyed JSON blob store. Staleness tolerance
// is a read-side decision: Get with maxAge > 0 reports entries older than
// maxAge as missing; maxAge <= 0 accepts any age.
type CacheStore interface {
	Get(key string, maxAge time.Duration) (Entry, bool, error)
	Put(key string, value json.RawMessage) error
	Delete(key string) error
}

// ============================================================================
// Cache keys
// ============================================================================

const (
	rollingCacheKey = "products:all"
	profileCacheKey = "profile:me"
)

// pageCacheKey derives the deterministic cache key for a (page, query) pair.
// Identical normalized inputs always produce the same key, so repeated
// fetches are idempotent overwrites.
func pageCacheKey(page int, query string) string {
	return "products:page:" + strconv.Itoa(page) + ":q:" + normalizeQuery(query)
}

// normalizeQuery canonicalizes a search query for cache keying and request
// tagging: surrounding whitespace is ignored and matching is case-insensitive.
func normalizeQuery(q string) string {
	return strings.ToLower(strings.TrimSpace(q))
}

// ============================================================================
// MemoryCache
// ============================================================================

// MemoryCache is a goroutine-safe in-memory CacheStore. It is the default
// backing store; storage/sqlite provides the durable one.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]Entry
	now     func() time.Time
}

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]Entry),
		now:     time.Now,
	}
}

func (c *MemoryCache) Get(key string, maxAge time.Duration) (Entry, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok {
		return Entry{}, false, nil
	}
	if maxAge > 0 && c.now().Sub(e.WrittenAt) > maxAge {
		return Entry{}, false, nil
	}
	return e, true, nil
}

func (c *MemoryCache) Put(key string, value json.RawMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = Entry{Value: value, WrittenAt: c.now()}
	return nil
}

func (c *MemoryCache) Delete(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

// Len returns the number of stored entries.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// getJSON reads and decodes a cache entry. Malformed cache contents are
// treated as a miss, never an error.
func getJSON[T any](store CacheStore, key string, maxAge time.Duration) (T, time.Time, bool) {
	var v T
	e, ok, err := store.Get(key, maxAge)
	if err != nil || !ok {
		return v, time.Time{}, false
	}
	if err := json.Unmarshal(e.Value, &v); err != nil {
		return v, time.Time{}, false
	}
	return v, e.WrittenAt, true
}

// putJSON encodes and writes a cache entry. Cache writes are best-effort;
// a failed write never fails the fetch that produced the data.
func putJSON(store CacheStore, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = store.Put(key, data)
}
