// Package cached memoizes an embedder with a ristretto cache. Index
// rebuilds and repeated context queries embed the same texts over and
// over; caching keeps those off the model.
package cached

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"

	"github.com/robotdiary/memory-go-sdk/memory"
)

// Embedder wraps another embedder and caches its vectors keyed by text.
type Embedder struct {
	inner memory.Embedder
	cache *ristretto.Cache
}

// New creates a caching decorator around inner. The cache is bounded to
// roughly 64 MiB of vectors.
func New(inner memory.Embedder) (*Embedder, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 100_000,
		MaxCost:     64 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	return &Embedder{inner: inner, cache: cache}, nil
}

// Embed returns the cached vector for text, computing and caching it on a
// miss. Cached vectors are shared; callers must not mutate them.
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

	e.cache.Set(text, vec, int64(len(vec)*4))
	return vec, nil
}

// Dimensions returns the wrapped embedder's vector size.
func (e *Embedder) Dimensions() int {
	return e.inner.Dimensions()
}

// Close releases the cache.
func (e *Embedder) Close() {
	e.cache.Close()
}
