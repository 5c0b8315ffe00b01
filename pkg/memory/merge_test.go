package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestJaccardSimilarity(t *testing.T) {
	assert.Equal(t, float32(1), jaccardSimilarity("a b c", "c b a"))
	assert.Equal(t, float32(0), jaccardSimilarity("a b", "c d"))
	assert.Equal(t, float32(0), jaccardSimilarity("", ""))
	assert.InDelta(t, 1.0/3.0, jaccardSimilarity("a b", "b c"), 1e-6)
}

func TestMemorySimilarity(t *testing.T) {
	now := time.Now().UTC()

	a := &Memory{Type: Semantic, Content: "coffee is best served hot", CreatedAt: now}
	b := &Memory{Type: Semantic, Content: "coffee is best served hot", CreatedAt: now}
	c := &Memory{Type: Episodic, Content: "went hiking last sunday", CreatedAt: now.AddDate(0, 0, -60)}

	same := memorySimilarity(a, b)
	different := memorySimilarity(a, c)
	assert.Greater(t, same, float32(0.7))
	assert.Less(t, different, float32(0.2))
}

func TestMemorySimilarity_EmbeddingsContribute(t *testing.T) {
	now := time.Now().UTC()

	a := &Memory{Type: Semantic, Content: "x", CreatedAt: now, Embedding: []float32{1, 0}}
	aligned := &Memory{Type: Semantic, Content: "y", CreatedAt: now, Embedding: []float32{2, 0}}
	opposed := &Memory{Type: Semantic, Content: "y", CreatedAt: now, Embedding: []float32{-2, 0}}

	assert.Greater(t, memorySimilarity(a, aligned), memorySimilarity(a, opposed))
}

func TestMergeMemories(t *testing.T) {
	earlier := time.Now().UTC().Add(-48 * time.Hour)
	later := time.Now().UTC()

	primary := &Memory{
		AgentID:     1,
		Type:        Semantic,
		Content:     "primary fact",
		Importance:  0.8,
		CreatedAt:   later,
		AccessCount: 3,
		Embedding:   []float32{1, 2, 3},
		Metadata:    map[string]string{"source": "chat"},
	}
	secondary := &Memory{
		AgentID:     1,
		Type:        Semantic,
		Content:     "secondary detail",
		Importance:  0.4,
		CreatedAt:   earlier,
		AccessCount: 2,
	}

	merged := mergeMemories(secondary, primary)

	assert.Equal(t, Semantic, merged.Type)
	assert.Contains(t, merged.Content, "primary fact")
	assert.Contains(t, merged.Content, "secondary detail")
	// Averaged with a boost, clamped to 1.
	assert.InDelta(t, 0.66, float64(merged.Importance), 1e-2)
	assert.Equal(t, uint32(5), merged.AccessCount)
	assert.Equal(t, earlier, merged.CreatedAt)
	assert.Equal(t, []float32{1, 2, 3}, merged.Embedding)
	assert.Equal(t, "chat", merged.Metadata["source"])
	assert.Nil(t, merged.ExpiresAt)
}
