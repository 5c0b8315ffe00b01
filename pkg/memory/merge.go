package memory

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Similarity component weights used by MergeSimilar.
const (
	typeWeight    = 0.2
	contentWeight = 0.4
	timeWeight    = 0.2
	vectorWeight  = 0.2
)

// memorySimilarity scores two records in [0, 1] from a weighted blend of
// type equality, word overlap, creation-time proximity and embedding cosine.
func memorySimilarity(a, b *Memory) float32 {
	var typeSim float32
	if a.Type == b.Type {
		typeSim = 1
	}

	contentSim := jaccardSimilarity(a.Content, b.Content)

	// Records created within the same week score high on the time axis.
	diffDays := float32(a.CreatedAt.Sub(b.CreatedAt).Abs().Hours() / 24)
	timeSim := 1 / (1 + diffDays/7)

	var vectorSim float32
	if len(a.Embedding) > 0 && len(a.Embedding) == len(b.Embedding) {
		vectorSim = cosine(a.Embedding, b.Embedding)
	}

	return typeSim*typeWeight + contentSim*contentWeight + timeSim*timeWeight + vectorSim*vectorWeight
}

// jaccardSimilarity is word-level set overlap: |intersection| / |union|.
func jaccardSimilarity(text1, text2 string) float32 {
	words1 := wordSet(text1)
	words2 := wordSet(text2)

	union := len(words2)
	intersection := 0
	for w := range words1 {
		if words2[w] {
			intersection++
		} else {
			union++
		}
	}

	if union == 0 {
		return 0
	}
	return float32(intersection) / float32(union)
}

func wordSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(text) {
		set[w] = true
	}
	return set
}

// cosine is a local float32 cosine similarity, zero when either norm is
// zero. Duplicated here rather than importing the vector package so the two
// packages stay independent layers under the facade.
func cosine(a, b []float32) float32 {
	var dot, normA, normB float32
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / float32(math.Sqrt(float64(normA))*math.Sqrt(float64(normB)))
}

// mergeMemories folds two records into one. The more important record is
// primary: its type, embedding and metadata carry over, the secondary's
// content is appended, access counts are summed, the creation time is the
// earlier of the two, and the merged record never expires.
func mergeMemories(a, b *Memory) *Memory {
	primary, secondary := a, b
	if b.Importance > a.Importance {
		primary, secondary = b, a
	}

	importance := clampImportance((primary.Importance + secondary.Importance) / 2 * 1.1)

	createdAt := primary.CreatedAt
	if secondary.CreatedAt.Before(createdAt) {
		createdAt = secondary.CreatedAt
	}

	metadata := make(map[string]string, len(primary.Metadata))
	for k, v := range primary.Metadata {
		metadata[k] = v
	}

	return &Memory{
		AgentID:        primary.AgentID,
		Type:           primary.Type,
		Content:        fmt.Sprintf("%s\n[merged]: %s", primary.Content, secondary.Content),
		Importance:     importance,
		CreatedAt:      createdAt,
		LastAccessedAt: time.Now().UTC(),
		AccessCount:    primary.AccessCount + secondary.AccessCount,
		Embedding:      append([]float32(nil), primary.Embedding...),
		Metadata:       metadata,
	}
}
