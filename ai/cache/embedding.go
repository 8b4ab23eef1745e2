// Package cache provides in-memory memoization of generated embeddings.
package cache

import (
	"sync"
	"time"

	"github.com/refind-ai/refind/internal/metrics"
	"github.com/refind-ai/refind/store"
)

// EmbeddingCache memoizes embeddings per (item, modality) so repeated
// matching calls for the same item skip the generator.
//
// Eviction is blunt: when a write would exceed capacity the whole cache is
// cleared before inserting. Entries also expire individually on a TTL.
type EmbeddingCache struct {
	mu         sync.Mutex
	entries    map[embeddingKey]embeddingEntry
	capacity   int
	defaultTTL time.Duration
}

type embeddingKey struct {
	itemID   string
	modality store.Modality
}

type embeddingEntry struct {
	vector    []float32
	expiresAt time.Time
}

// NewEmbeddingCache creates an embedding cache. capacity <= 0 defaults to
// 1000 live entries, ttl <= 0 defaults to one hour.
func NewEmbeddingCache(capacity int, ttl time.Duration) *EmbeddingCache {
	if capacity <= 0 {
		capacity = 1000
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &EmbeddingCache{
		entries:    make(map[embeddingKey]embeddingEntry),
		capacity:   capacity,
		defaultTTL: ttl,
	}
}

// Get returns the cached vector for (itemID, modality). The returned slice
// is a copy; hits are bit-identical to what was stored.
func (c *EmbeddingCache) Get(itemID string, modality store.Modality) ([]float32, bool) {
	key := embeddingKey{itemID: itemID, modality: modality}

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		metrics.EmbeddingCacheHits.WithLabelValues("miss").Inc()
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		delete(c.entries, key)
		metrics.EmbeddingCacheHits.WithLabelValues("expired").Inc()
		return nil, false
	}

	metrics.EmbeddingCacheHits.WithLabelValues("hit").Inc()
	return cloneVector(e.vector), true
}

// Set stores a vector under (itemID, modality). The vector is copied so
// later caller mutation cannot corrupt the cached value.
func (c *EmbeddingCache) Set(itemID string, modality store.Modality, vector []float32) {
	if len(vector) == 0 {
		return
	}
	key := embeddingKey{itemID: itemID, modality: modality}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.capacity {
		// Full clear at capacity, then insert.
		c.entries = make(map[embeddingKey]embeddingEntry)
	}
	c.entries[key] = embeddingEntry{
		vector:    cloneVector(vector),
		expiresAt: time.Now().Add(c.defaultTTL),
	}
}

// Invalidate removes every modality cached for the item.
func (c *EmbeddingCache) Invalidate(itemID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, m := range store.Modalities {
		delete(c.entries, embeddingKey{itemID: itemID, modality: m})
	}
}

// Len returns the number of live entries, counting expired ones that have
// not been touched since expiry.
func (c *EmbeddingCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func cloneVector(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
