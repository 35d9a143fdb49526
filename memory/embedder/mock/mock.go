// Package mock provides a deterministic embedder for tests and local
// development. Vectors are derived from a hash of the input text, so
// identical texts always embed identically; there is no real semantic
// similarity.
package mock

import (
	"context"
	"hash/fnv"
	"math"
)

// Embedder generates hash-based unit vectors.
type Embedder struct {
	dims int
}

// New creates a mock embedder. dims <= 0 falls back to 384, matching
// all-MiniLM-L6-v2.
func New(dims int) *Embedder {
	if dims <= 0 {
		dims = 384
	}
	return &Embedder{dims: dims}
}

// Embed derives a deterministic unit vector from the text's FNV hash.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	h := fnv.New64a()
	h.Write([]byte(text))
	state := h.Sum64()

	vec := make([]float32, e.dims)
	for i := range vec {
		// LCG stream seeded by the hash, mapped to [-1, 1].
		state = state*6364136223846793005 + 1442695040888963407
		vec[i] = float32(int64(state)) / float32(math.MaxInt64)
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec, nil
}

// Dimensions returns the embedding size.
func (e *Embedder) Dimensions() int {
	return e.dims
}
