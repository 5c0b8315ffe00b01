package vector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexlapax/agentdb/pkg/errors"
	memstore "github.com/lexlapax/agentdb/pkg/storage/memory"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	eng, err := NewEngine(3, Cosine, nil)
	require.NoError(t, err)
	return eng
}

func TestNewEngine_Validation(t *testing.T) {
	_, err := NewEngine(0, Cosine, nil)
	assert.ErrorIs(t, err, errors.ErrInvalidArgument)

	_, err = NewEngine(3, Algorithm("chebyshev"), nil)
	assert.ErrorIs(t, err, errors.ErrInvalidArgument)
}

func TestEngine_AddGetDelete(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, eng.AddVector(ctx, 1, []float32{1, 0, 0}, map[string]string{"k": "v"}))

	vec, meta, err := eng.GetVector(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0, 0}, vec)
	assert.Equal(t, "v", meta["k"])

	// Absent ids come back as nils, not errors.
	vec, meta, err = eng.GetVector(ctx, 99)
	require.NoError(t, err)
	assert.Nil(t, vec)
	assert.Nil(t, meta)

	require.NoError(t, eng.DeleteVector(ctx, 1))
	vec, _, err = eng.GetVector(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, vec)

	// Deleting again is fine.
	assert.NoError(t, eng.DeleteVector(ctx, 1))
}

func TestEngine_DimensionMismatchLeavesIndexUnchanged(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	err := eng.AddVector(ctx, 1, []float32{1, 0}, nil)
	assert.ErrorIs(t, err, errors.ErrInvalidArgument)

	count, err := eng.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	_, err = eng.Search(ctx, []float32{1, 0}, 5)
	assert.ErrorIs(t, err, errors.ErrInvalidArgument)
}

func TestEngine_GetVectorReturnsCopy(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, eng.AddVector(ctx, 1, []float32{1, 2, 3}, nil))

	vec, _, err := eng.GetVector(ctx, 1)
	require.NoError(t, err)
	vec[0] = 99

	again, _, err := eng.GetVector(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3}, again)
}

func TestEngine_SearchOrdering(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, eng.AddVector(ctx, 1, []float32{1, 0, 0}, nil))
	require.NoError(t, eng.AddVector(ctx, 2, []float32{0.9, 0.1, 0}, nil))
	require.NoError(t, eng.AddVector(ctx, 3, []float32{0, 1, 0}, nil))

	results, err := eng.Search(ctx, []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, uint64(1), results[0].ID)
	assert.Equal(t, uint64(2), results[1].ID)
	assert.Equal(t, uint64(3), results[2].ID)
	assert.InDelta(t, 1.0, float64(results[0].Similarity), 1e-6)
	assert.InDelta(t, 0.0, float64(results[0].Distance), 1e-6)

	// The limit truncates after ranking.
	results, err = eng.Search(ctx, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, uint64(1), results[0].ID)
}

func TestEngine_SearchTieBreaksByID(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	// Identical vectors tie on similarity; order must still be stable.
	require.NoError(t, eng.AddVector(ctx, 7, []float32{1, 0, 0}, nil))
	require.NoError(t, eng.AddVector(ctx, 3, []float32{1, 0, 0}, nil))
	require.NoError(t, eng.AddVector(ctx, 5, []float32{1, 0, 0}, nil))

	results, err := eng.Search(ctx, []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, uint64(3), results[0].ID)
	assert.Equal(t, uint64(5), results[1].ID)
	assert.Equal(t, uint64(7), results[2].ID)
}

func TestEngine_UpdateVector(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	// Updating an id that was never added is an error, and creates nothing.
	err := eng.UpdateVector(ctx, 1, []float32{1, 0, 0}, nil)
	assert.ErrorIs(t, err, errors.ErrNotFound)
	count, err := eng.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	require.NoError(t, eng.AddVector(ctx, 1, []float32{1, 0, 0}, nil))
	require.NoError(t, eng.UpdateVector(ctx, 1, []float32{0, 1, 0}, map[string]string{"v": "2"}))

	vec, meta, err := eng.GetVector(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1, 0}, vec)
	assert.Equal(t, "2", meta["v"])

	// The dimension is re-validated on update.
	err = eng.UpdateVector(ctx, 1, []float32{1, 0}, nil)
	assert.ErrorIs(t, err, errors.ErrInvalidArgument)
}

func TestEngine_BatchAdd(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	added, err := eng.BatchAdd(ctx,
		[]uint64{1, 2},
		[][]float32{{1, 0, 0}, {0, 1, 0}},
		nil)
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	// A bad vector mid-batch stops there; earlier additions stick.
	added, err = eng.BatchAdd(ctx,
		[]uint64{3, 4, 5},
		[][]float32{{0, 0, 1}, {1, 2}, {1, 1, 1}},
		nil)
	assert.ErrorIs(t, err, errors.ErrInvalidArgument)
	assert.Equal(t, 1, added)

	count, err := eng.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	// Mismatched lengths are rejected up front.
	_, err = eng.BatchAdd(ctx, []uint64{1}, nil, nil)
	assert.ErrorIs(t, err, errors.ErrInvalidArgument)
}

func TestEngine_PersistenceRoundtrip(t *testing.T) {
	store := memstore.NewMemoryStore()
	ctx := context.Background()

	eng, err := NewEngine(3, Cosine, store)
	require.NoError(t, err)
	require.NoError(t, eng.AddVector(ctx, 1, []float32{1, 0, 0}, map[string]string{"memory_id": "1-1"}))
	require.NoError(t, eng.AddVector(ctx, 2, []float32{0, 1, 0}, nil))
	require.NoError(t, eng.DeleteVector(ctx, 2))
	require.NoError(t, eng.Close())

	// A fresh engine over the same store rehydrates the surviving entries.
	reloaded, err := NewEngine(3, Cosine, store)
	require.NoError(t, err)
	require.NoError(t, reloaded.Load(ctx))

	count, err := reloaded.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	vec, meta, err := reloaded.GetVector(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0, 0}, vec)
	assert.Equal(t, "1-1", meta["memory_id"])
}
