// Package mock provides a deterministic embedder for tests and offline use.
package mock

import (
	"context"
	"hash/fnv"
	"math"
)

// MockEmbedder implements the embed.Embedder interface with deterministic
// pseudo-embeddings derived from the text, so equal texts always map to
// equal vectors.
type MockEmbedder struct {
	dimension int
}

// NewMockEmbedder creates a mock embedder producing vectors of the given
// dimension.
func NewMockEmbedder(dimension int) *MockEmbedder {
	if dimension <= 0 {
		dimension = 8
	}
	return &MockEmbedder{dimension: dimension}
}

// Embed implements the embed.Embedder interface.
func (m *MockEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		embeddings[i] = m.embedOne(text)
	}
	return embeddings, nil
}

// embedOne derives a unit vector from an FNV-1a hash chain over the text.
func (m *MockEmbedder) embedOne(text string) []float32 {
	vec := make([]float32, m.dimension)

	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	var norm float64
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		v := float64(int64(seed>>11)) / float64(1<<52)
		vec[i] = float32(v)
		norm += v * v
	}

	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec
}

// Dimension implements the embed.Embedder interface.
func (m *MockEmbedder) Dimension() int {
	return m.dimension
}
