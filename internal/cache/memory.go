package cache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"classgate/internal/classify"
	"classgate/internal/metrics"
)

// cacheEntry represents a cached result with expiration
type cacheEntry struct {
	result    classify.Result
	expiresAt time.Time
}

// MemoryCache is an in-memory LRU result cache with TTL support.
// Fail-open results must never be stored; callers are expected to cache
// only genuine classifier verdicts.
type MemoryCache struct {
	cache  *lru.Cache[string, *cacheEntry]
	ttl    time.Duration
	mu     sync.RWMutex
	stopCh chan struct{}
}

// NewMemoryCache creates a new in-memory cache
func NewMemoryCache(size int, ttl time.Duration) (*MemoryCache, error) {
	cache, err := lru.New[string, *cacheEntry](size)
	if err != nil {
		return nil, err
	}

	mc := &MemoryCache{
		cache:  cache,
		ttl:    ttl,
		stopCh: make(chan struct{}),
	}

	// Start background cleanup goroutine
	go mc.cleanupLoop()

	return mc, nil
}

// Get retrieves a cached result if present and not expired
func (mc *MemoryCache) Get(fingerprint string) (classify.Result, bool) {
	mc.mu.RLock()
	entry, ok := mc.cache.Get(fingerprint)
	mc.mu.RUnlock()

	if !ok {
		metrics.CacheMissesTotal.Inc()
		return classify.Result{}, false
	}

	if time.Now().After(entry.expiresAt) {
		mc.mu.Lock()
		mc.cache.Remove(fingerprint)
		mc.mu.Unlock()
		metrics.CacheMissesTotal.Inc()
		return classify.Result{}, false
	}

	metrics.CacheHitsTotal.Inc()
	return entry.result, true
}

// Set stores a result in the cache
func (mc *MemoryCache) Set(fingerprint string, result classify.Result) {
	entry := &cacheEntry{
		result:    result,
		expiresAt: time.Now().Add(mc.ttl),
	}

	mc.mu.Lock()
	mc.cache.Add(fingerprint, entry)
	mc.mu.Unlock()
}

// Close stops the cache cleanup goroutine
func (mc *MemoryCache) Close() {
	close(mc.stopCh)
}

// cleanupLoop periodically removes expired entries
func (mc *MemoryCache) cleanupLoop() {
	ticker := time.NewTicker(mc.ttl / 2)
	defer ticker.Stop()

	for {
		select {
		case <-mc.stopCh:
			return
		case <-ticker.C:
			mc.removeExpired()
		}
	}
}

// removeExpired removes all expired entries from the cache
func (mc *MemoryCache) removeExpired() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	now := time.Now()
	keys := mc.cache.Keys()

	for _, key := range keys {
		entry, ok := mc.cache.Peek(key)
		if ok && now.After(entry.expiresAt) {
			mc.cache.Remove(key)
		}
	}
}

// NoopCache is a cache that does nothing (used when caching is disabled)
type NoopCache struct{}

// NewNoopCache creates a new no-op cache
func NewNoopCache() *NoopCache {
	return &NoopCache{}
}

// Get always returns not found
func (nc *NoopCache) Get(fingerprint string) (classify.Result, bool) {
	return classify.Result{}, false
}

// Set does nothing
func (nc *NoopCache) Set(fingerprint string, result classify.Result) {}

// Close does nothing
func (nc *NoopCache) Close() {}
