// Package chromem adapts the embedded chromem-go vector database as an
// index backend. chromem-go is pure Go and always ranks by cosine
// similarity.
package chromem

import (
	"context"
	"strconv"
	"sync"

	chromemgo "github.com/philippgille/chromem-go"

	"github.com/lexlapax/agentdb/pkg/errors"
	"github.com/lexlapax/agentdb/pkg/log"
	"github.com/lexlapax/agentdb/pkg/vector"
)

const collectionName = "agentdb_vectors"

// ChromemIndex implements vector.Index on a chromem-go collection.
//
// chromem-go has no point lookup by id, so a shadow table of vectors is kept
// alongside the collection to serve GetVector.
type ChromemIndex struct {
	db        *chromemgo.DB
	col       *chromemgo.Collection
	dimension int

	mu     sync.RWMutex
	shadow map[uint64]shadowEntry
}

type shadowEntry struct {
	vector   []float32
	metadata map[string]string
}

// NewChromemIndex creates an in-memory chromem-backed index.
func NewChromemIndex(dimension int) (*ChromemIndex, error) {
	return newIndex(chromemgo.NewDB(), dimension)
}

// NewPersistentChromemIndex creates a chromem-backed index persisted under
// path, with optional gzip compression of the stored documents.
func NewPersistentChromemIndex(path string, dimension int, compress bool) (*ChromemIndex, error) {
	db, err := chromemgo.NewPersistentDB(path, compress)
	if err != nil {
		return nil, errors.Wrap(errors.ErrIO, "failed to open chromem database at %s: %v", path, err)
	}
	return newIndex(db, dimension)
}

func newIndex(db *chromemgo.DB, dimension int) (*ChromemIndex, error) {
	if dimension <= 0 {
		return nil, errors.Wrap(errors.ErrInvalidArgument, "vector dimension must be positive, got %d", dimension)
	}

	// No embedding func: callers always provide embeddings. Distance is
	// chromem's default cosine.
	col, err := db.GetOrCreateCollection(collectionName, nil, nil)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInternal, "failed to create chromem collection: %v", err)
	}

	idx := &ChromemIndex{
		db:        db,
		col:       col,
		dimension: dimension,
		shadow:    make(map[uint64]shadowEntry),
	}

	log.Debug("Initialized chromem vector index", "dimension", dimension, "count", col.Count())
	return idx, nil
}

// AddVector implements the vector.Index interface.
func (c *ChromemIndex) AddVector(ctx context.Context, id uint64, vec []float32, metadata map[string]string) error {
	if len(vec) != c.dimension {
		return errors.Wrap(errors.ErrInvalidArgument,
			"vector length %d does not match index dimension %d", len(vec), c.dimension)
	}

	doc := chromemgo.Document{
		ID:        strconv.FormatUint(id, 10),
		Embedding: append([]float32(nil), vec...),
		Metadata:  metadata,
		// chromem requires non-empty content even for embedding-only use.
		Content: " ",
	}
	if err := c.col.AddDocument(ctx, doc); err != nil {
		return errors.Wrap(errors.ErrInternal, "failed to add document %d: %v", id, err)
	}

	c.mu.Lock()
	c.shadow[id] = shadowEntry{
		vector:   append([]float32(nil), vec...),
		metadata: metadata,
	}
	c.mu.Unlock()
	return nil
}

// GetVector implements the vector.Index interface.
func (c *ChromemIndex) GetVector(_ context.Context, id uint64) ([]float32, map[string]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ent, ok := c.shadow[id]
	if !ok {
		return nil, nil, nil
	}
	return append([]float32(nil), ent.vector...), ent.metadata, nil
}

// DeleteVector implements the vector.Index interface.
func (c *ChromemIndex) DeleteVector(ctx context.Context, id uint64) error {
	if err := c.col.Delete(ctx, nil, nil, strconv.FormatUint(id, 10)); err != nil {
		return errors.Wrap(errors.ErrInternal, "failed to delete document %d: %v", id, err)
	}

	c.mu.Lock()
	delete(c.shadow, id)
	c.mu.Unlock()
	return nil
}

// Search implements the vector.Index interface. chromem rejects result
// counts above the collection size, so the limit is clamped.
func (c *ChromemIndex) Search(ctx context.Context, query []float32, limit int) ([]vector.SearchResult, error) {
	if len(query) != c.dimension {
		return nil, errors.Wrap(errors.ErrInvalidArgument,
			"query length %d does not match index dimension %d", len(query), c.dimension)
	}

	count := c.col.Count()
	if count == 0 {
		return nil, nil
	}
	if limit <= 0 || limit > count {
		limit = count
	}

	hits, err := c.col.QueryEmbedding(ctx, query, limit, nil, nil)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInternal, "chromem query failed: %v", err)
	}

	results := make([]vector.SearchResult, 0, len(hits))
	for _, hit := range hits {
		id, err := strconv.ParseUint(hit.ID, 10, 64)
		if err != nil {
			continue
		}
		results = append(results, vector.SearchResult{
			ID:         id,
			Vector:     append([]float32(nil), hit.Embedding...),
			Metadata:   hit.Metadata,
			Similarity: hit.Similarity,
			Distance:   1 - hit.Similarity,
		})
	}
	return results, nil
}

// Count implements the vector.Index interface.
func (c *ChromemIndex) Count(_ context.Context) (int, error) {
	return c.col.Count(), nil
}

// Close implements the vector.Index interface. chromem persists on every
// write, so there is nothing to flush.
func (c *ChromemIndex) Close() error {
	return nil
}
