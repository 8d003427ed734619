// Package mock provides a deterministic embedder for tests and offline use.
package mock

import (
	"context"
	"hash/fnv"
	"math"
)

// DefaultDimensions matches common sentence-embedding models.
const DefaultDimensions = 384

// Embedder derives a unit vector from the FNV hash of the input text.
// Identical strings always produce identical vectors.
type Embedder struct {
	dimensions int
	err        error
}

func New() *Embedder {
	return &Embedder{dimensions: DefaultDimensions}
}

// NewWithDimensions returns an embedder producing vectors of size n.
func NewWithDimensions(n int) *Embedder {
	if n <= 0 {
		n = DefaultDimensions
	}
	return &Embedder{dimensions: n}
}

// Failing returns an embedder whose every call fails with err.
func Failing(err error) *Embedder {
	return &Embedder{dimensions: DefaultDimensions, err: err}
}

func (m *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if m.err != nil {
		return nil, m.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float32, m.dimensions)
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}
	return normalize(vec), nil
}

func (m *Embedder) Dimensions() int {
	return m.dimensions
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
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}
