// Package cached wraps another Embedder with a ristretto read-through
// cache. The write pipeline embeds the same finalized utterance text it
// later queries for, and retrieval queries repeat, so caching the
// text-to-vector mapping removes redundant model or API calls.
package cached

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"

	"github.com/harkhq/hark/memory"
)

// Embedder is a caching memory.Embedder.
type Embedder struct {
	inner memory.Embedder
	cache *ristretto.Cache
}

// New wraps inner with a cache holding up to maxEntries embeddings.
func New(inner memory.Embedder, maxEntries int64) (*Embedder, error) {
	if maxEntries <= 0 {
		maxEntries = 1024
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	return &Embedder{inner: inner, cache: cache}, nil
}

// Embed returns the cached vector for text, computing and caching it on
// a miss. Cached vectors must never be mutated by callers.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := e.cache.Get(text); ok {
		if vec, ok := v.([]float32); ok {
			return vec, nil
		}
	}

	vec, err := e.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	// Set is buffered; Wait makes the entry visible to the next lookup.
	// Embedding dominates the cost here, so the flush is negligible.
	e.cache.Set(text, vec, 1)
	e.cache.Wait()
	return vec, nil
}

// Dimensions returns the inner embedder's dimension.
func (e *Embedder) Dimensions() int {
	return e.inner.Dimensions()
}

// Close releases the cache's resources.
func (e *Embedder) Close() {
	e.cache.Close()
}
