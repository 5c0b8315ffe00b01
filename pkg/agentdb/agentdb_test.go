package agentdb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexlapax/agentdb/pkg/config"
	"github.com/lexlapax/agentdb/pkg/errors"
	"github.com/lexlapax/agentdb/pkg/memory"
	"github.com/lexlapax/agentdb/pkg/state"
)

// newTestClient wires a client over in-memory storage with the deterministic
// mock embedder, the shape used throughout these tests.
func newTestClient(t *testing.T) *Client {
	t.Helper()

	cfg := config.Default()
	cfg.Vector.Dimension = 8
	cfg.Embedding.Provider = "mock"

	client, err := NewFromConfig(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestNewFromConfig_NilUsesDefaults(t *testing.T) {
	client, err := NewFromConfig(context.Background(), nil)
	require.NoError(t, err)
	defer client.Close()

	assert.NotNil(t, client.States())
	assert.NotNil(t, client.Memories())
	assert.NotNil(t, client.Vectors())
}

func TestNewFromConfig_BadStorageType(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Type = "cassandra"

	_, err := NewFromConfig(context.Background(), cfg)
	assert.ErrorIs(t, err, errors.ErrInvalidArgument)
}

func TestClient_StateLifecycle(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	saved, err := client.SaveState(ctx, 1, 100, state.WorkingMemory, []byte("scratchpad"))
	require.NoError(t, err)
	assert.Equal(t, uint32(1), saved.Version)

	loaded, err := client.LoadState(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, []byte("scratchpad"), loaded.Data)

	updated, err := client.UpdateState(ctx, 1, []byte("revised"))
	require.NoError(t, err)
	assert.Equal(t, uint32(2), updated.Version)

	// Snapshot, mutate, restore.
	_, err = client.CreateSnapshot(ctx, 1, "before-experiment")
	require.NoError(t, err)

	_, err = client.UpdateState(ctx, 1, []byte("experimental"))
	require.NoError(t, err)

	snap, err := client.LoadSnapshot(ctx, 1, "before-experiment")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, []byte("revised"), snap.Data)
}

func TestClient_RememberAndRecall(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	id, err := client.Remember(ctx, 1, memory.Episodic, "met the new teammate today", RememberOptions{
		Importance: 0.9,
		Metadata:   map[string]string{"channel": "standup"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	_, err = client.Remember(ctx, 1, memory.Semantic, "the deploy pipeline runs at midnight", RememberOptions{
		Importance: 0.3,
	})
	require.NoError(t, err)

	memories, err := client.Recall(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, memories, 2)
	// Highest retrieval score first.
	assert.Equal(t, "met the new teammate today", memories[0].Content)
	assert.Equal(t, "standup", memories[0].Metadata["channel"])
}

func TestClient_SearchKeyword(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	_, err := client.Remember(ctx, 1, memory.Semantic, "Go modules cache dependencies", RememberOptions{Importance: 0.5})
	require.NoError(t, err)
	_, err = client.Remember(ctx, 1, memory.Semantic, "lunch was pasta", RememberOptions{Importance: 0.5})
	require.NoError(t, err)

	hits, err := client.SearchKeyword(ctx, 1, "modules", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Contains(t, hits[0].Content, "Go modules")
}

func TestClient_RecallSemantic(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	id, err := client.Remember(ctx, 1, memory.Semantic, "the database password rotates weekly", RememberOptions{Importance: 0.8})
	require.NoError(t, err)

	// A different agent's memory must never leak into the result.
	_, err = client.Remember(ctx, 2, memory.Semantic, "other agent's secret", RememberOptions{Importance: 0.8})
	require.NoError(t, err)

	// The mock embedder is deterministic, so the exact content is its own
	// nearest neighbor.
	hits, err := client.RecallSemantic(ctx, 1, "the database password rotates weekly", 5)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, id, hits[0].ID)
	for _, hit := range hits {
		assert.Equal(t, uint64(1), hit.AgentID)
	}
}

func TestClient_RecallSemanticWithoutEmbedder(t *testing.T) {
	cfg := config.Default()
	cfg.Vector.Dimension = 8

	client, err := NewFromConfig(context.Background(), cfg)
	require.NoError(t, err)
	defer client.Close()

	_, err = client.RecallSemantic(context.Background(), 1, "anything", 5)
	assert.ErrorIs(t, err, errors.ErrInvalidArgument)
}

func TestClient_RecallSemanticEvictsDanglingVectors(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	id, err := client.Remember(ctx, 1, memory.Semantic, "soon to be forgotten", RememberOptions{Importance: 0.8})
	require.NoError(t, err)

	// Remove the record but leave its vector behind.
	require.NoError(t, client.Memories().Delete(ctx, id))

	count, err := client.Vectors().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	hits, err := client.RecallSemantic(ctx, 1, "soon to be forgotten", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)

	// The dangling vector was evicted on the way through.
	count, err = client.Vectors().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestClient_Forget(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	id, err := client.Remember(ctx, 1, memory.Episodic, "temporary note", RememberOptions{Importance: 0.5})
	require.NoError(t, err)

	require.NoError(t, client.Forget(ctx, id))

	mem, err := client.Memories().Get(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, mem)

	count, err := client.Vectors().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestClient_PinnedSurvivesOrganize(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	_, err := client.Remember(ctx, 1, memory.Episodic, "pinned forever", RememberOptions{
		Importance: 0.01,
		Pinned:     true,
	})
	require.NoError(t, err)

	removed, err := client.Organize(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)

	memories, err := client.Recall(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, memories, 1)
	assert.True(t, memories[0].Pinned())
}

func TestClient_MemoryStats(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	_, err := client.Remember(ctx, 1, memory.Episodic, "one", RememberOptions{Importance: 0.2})
	require.NoError(t, err)
	_, err = client.Remember(ctx, 1, memory.Semantic, "two", RememberOptions{Importance: 0.6})
	require.NoError(t, err)

	stats, err := client.MemoryStats(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalCount)
	assert.Equal(t, 1, stats.TypeCounts[memory.Episodic])
	assert.Equal(t, 1, stats.TypeCounts[memory.Semantic])
	assert.InDelta(t, 0.4, stats.AvgImportance, 1e-6)
}

func TestVectorID_Stable(t *testing.T) {
	a := vectorID("1-1")
	b := vectorID("1-1")
	c := vectorID("1-2")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
