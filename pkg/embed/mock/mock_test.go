package mock

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockEmbedder_Deterministic(t *testing.T) {
	embedder := NewMockEmbedder(8)
	ctx := context.Background()

	first, err := embedder.Embed(ctx, []string{"hello world"})
	require.NoError(t, err)
	second, err := embedder.Embed(ctx, []string{"hello world"})
	require.NoError(t, err)

	assert.Equal(t, first, second)

	other, err := embedder.Embed(ctx, []string{"something else"})
	require.NoError(t, err)
	assert.NotEqual(t, first[0], other[0])
}

func TestMockEmbedder_Dimension(t *testing.T) {
	embedder := NewMockEmbedder(16)
	assert.Equal(t, 16, embedder.Dimension())

	vecs, err := embedder.Embed(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	for _, vec := range vecs {
		assert.Len(t, vec, 16)
	}

	// Non-positive dimensions fall back to the default.
	assert.Equal(t, 8, NewMockEmbedder(0).Dimension())
	assert.Equal(t, 8, NewMockEmbedder(-3).Dimension())
}

func TestMockEmbedder_UnitVectors(t *testing.T) {
	embedder := NewMockEmbedder(8)

	vecs, err := embedder.Embed(context.Background(), []string{"normalize me"})
	require.NoError(t, err)

	var norm float64
	for _, v := range vecs[0] {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)
}

func TestMockEmbedder_EmptyInput(t *testing.T) {
	embedder := NewMockEmbedder(8)

	vecs, err := embedder.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vecs)
}
