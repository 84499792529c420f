// Package mock provides a deterministic embedder for tests. Vectors are
// derived from a hash of the input text, so equal texts always embed to
// equal vectors without loading a model.
package mock

import (
	"context"
	"hash/fnv"
	"math"
)

const defaultDimensions = 384 // matches all-MiniLM-L6-v2

// Embedder implements memory.Embedder with hash-seeded vectors.
type Embedder struct {
	dimensions int
}

// New creates a mock embedder with the default vector size.
func New() *Embedder {
	return NewWithDimensions(defaultDimensions)
}

// NewWithDimensions creates a mock embedder with a custom vector size.
func NewWithDimensions(dims int) *Embedder {
	return &Embedder{dimensions: dims}
}

// Embed derives a unit vector from the text hash. No semantic meaning,
// just determinism.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float32, e.dimensions)
	for i := range vec {
		// LCG walk from the hash seed.
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}
	return normalize(vec), nil
}

// Dimensions returns the embedding vector size.
func (e *Embedder) Dimensions() int {
	return e.dimensions
}

func normalize(vec []float32) []float32 {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	norm = float32(math.Sqrt(float64(norm)))
	for i, v := range vec {
		vec[i] = v / norm
	}
	return vec
}
