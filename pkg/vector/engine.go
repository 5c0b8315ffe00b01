package vector

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/lexlapax/agentdb/pkg/errors"
	"github.com/lexlapax/agentdb/pkg/log"
	"github.com/lexlapax/agentdb/pkg/storage"
)

// vecKeyPrefix is the key namespace for persisted vectors.
const vecKeyPrefix = "vec/"

func vecKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", vecKeyPrefix, id))
}

// SearchResult is one ranked hit from a similarity search.
type SearchResult struct {
	ID         uint64            `json:"id"`
	Vector     []float32         `json:"vector"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Similarity float32           `json:"similarity"`
	Distance   float32           `json:"distance"`
}

// Index is the interface for vector index backends.
type Index interface {
	// AddVector indexes a vector under id, replacing any existing entry.
	AddVector(ctx context.Context, id uint64, vec []float32, metadata map[string]string) error

	// GetVector returns the vector and metadata stored under id, or
	// (nil, nil, nil) when absent.
	GetVector(ctx context.Context, id uint64) ([]float32, map[string]string, error)

	// DeleteVector removes id from the index. Removing an absent id is not
	// an error.
	DeleteVector(ctx context.Context, id uint64) error

	// Search returns up to limit entries ranked by similarity to query,
	// best first.
	Search(ctx context.Context, query []float32, limit int) ([]SearchResult, error)

	// Count returns the number of indexed vectors.
	Count(ctx context.Context) (int, error)

	// Close releases resources associated with the index.
	Close() error
}

type entry struct {
	ID       uint64            `json:"id"`
	Vector   []float32         `json:"vector"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Engine is the in-process Index: exact brute-force scoring over an
// in-memory table, with optional write-through persistence to a storage
// adapter. All four algorithms are supported.
type Engine struct {
	dimension int
	algorithm Algorithm
	store     storage.Store

	mu      sync.RWMutex
	entries map[uint64]entry
}

// NewEngine creates an in-process index for vectors of the given dimension.
// store may be nil for a purely in-memory index; when set, every mutation is
// written through and Load can rehydrate after a restart.
func NewEngine(dimension int, algorithm Algorithm, store storage.Store) (*Engine, error) {
	if dimension <= 0 {
		return nil, errors.Wrap(errors.ErrInvalidArgument, "vector dimension must be positive, got %d", dimension)
	}
	if _, ok := ParseAlgorithm(string(algorithm)); !ok {
		return nil, errors.Wrap(errors.ErrInvalidArgument, "unknown similarity algorithm %q", algorithm)
	}

	return &Engine{
		dimension: dimension,
		algorithm: algorithm,
		store:     store,
		entries:   make(map[uint64]entry),
	}, nil
}

// Load rehydrates the in-memory table from the persistence store. It is a
// no-op without a store that supports prefix scans.
func (e *Engine) Load(ctx context.Context) error {
	scanner, ok := e.store.(storage.Scanner)
	if !ok {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	count := 0
	err := scanner.ScanPrefix(ctx, []byte(vecKeyPrefix), func(_, value []byte) error {
		var ent entry
		if err := json.Unmarshal(value, &ent); err != nil {
			return errors.Wrap(errors.ErrInternal, "failed to unmarshal vector record: %v", err)
		}
		e.entries[ent.ID] = ent
		count++
		return nil
	})
	if err != nil {
		return err
	}

	log.DebugContext(ctx, "Loaded persisted vectors", "count", count)
	return nil
}

func (e *Engine) checkDimension(vec []float32) error {
	if len(vec) != e.dimension {
		return errors.Wrap(errors.ErrInvalidArgument,
			"vector length %d does not match index dimension %d", len(vec), e.dimension)
	}
	return nil
}

// AddVector implements the Index interface. A dimension mismatch leaves the
// index unchanged.
func (e *Engine) AddVector(ctx context.Context, id uint64, vec []float32, metadata map[string]string) error {
	if err := e.checkDimension(vec); err != nil {
		return err
	}

	ent := entry{
		ID:       id,
		Vector:   append([]float32(nil), vec...),
		Metadata: metadata,
	}

	if e.store != nil {
		raw, err := json.Marshal(ent)
		if err != nil {
			return errors.Wrap(errors.ErrInternal, "failed to marshal vector %d: %v", id, err)
		}
		if err := e.store.Put(ctx, vecKey(id), raw); err != nil {
			return err
		}
	}

	e.mu.Lock()
	e.entries[id] = ent
	e.mu.Unlock()
	return nil
}

// UpdateVector replaces the vector stored under an existing id. Unlike
// AddVector it refuses to create the entry: updating an absent id returns
// ErrNotFound. The dimension is re-validated.
func (e *Engine) UpdateVector(ctx context.Context, id uint64, vec []float32, metadata map[string]string) error {
	if err := e.checkDimension(vec); err != nil {
		return err
	}

	e.mu.RLock()
	_, ok := e.entries[id]
	e.mu.RUnlock()
	if !ok {
		return errors.Wrap(errors.ErrNotFound, "vector %d", id)
	}

	return e.AddVector(ctx, id, vec, metadata)
}

// BatchAdd indexes vectors one by one, stopping at the first failure. It
// returns how many were indexed; earlier additions are not rolled back.
func (e *Engine) BatchAdd(ctx context.Context, ids []uint64, vecs [][]float32, metadata []map[string]string) (int, error) {
	if len(ids) != len(vecs) {
		return 0, errors.Wrap(errors.ErrInvalidArgument,
			"got %d ids for %d vectors", len(ids), len(vecs))
	}

	for i := range ids {
		var meta map[string]string
		if i < len(metadata) {
			meta = metadata[i]
		}
		if err := e.AddVector(ctx, ids[i], vecs[i], meta); err != nil {
			return i, err
		}
	}
	return len(ids), nil
}

// GetVector implements the Index interface.
func (e *Engine) GetVector(_ context.Context, id uint64) ([]float32, map[string]string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	ent, ok := e.entries[id]
	if !ok {
		return nil, nil, nil
	}
	return append([]float32(nil), ent.Vector...), ent.Metadata, nil
}

// DeleteVector implements the Index interface.
func (e *Engine) DeleteVector(ctx context.Context, id uint64) error {
	if e.store != nil {
		if err := e.store.Delete(ctx, vecKey(id)); err != nil {
			return err
		}
	}

	e.mu.Lock()
	delete(e.entries, id)
	e.mu.Unlock()
	return nil
}

// Search implements the Index interface. Results are ordered by similarity
// descending, ties broken by ascending id so ordering is deterministic.
func (e *Engine) Search(_ context.Context, query []float32, limit int) ([]SearchResult, error) {
	if err := e.checkDimension(query); err != nil {
		return nil, err
	}

	e.mu.RLock()
	results := make([]SearchResult, 0, len(e.entries))
	for _, ent := range e.entries {
		sim, dist := e.algorithm.Score(query, ent.Vector)
		results = append(results, SearchResult{
			ID:         ent.ID,
			Vector:     append([]float32(nil), ent.Vector...),
			Metadata:   ent.Metadata,
			Similarity: sim,
			Distance:   dist,
		})
	}
	e.mu.RUnlock()

	sort.Slice(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return results[i].ID < results[j].ID
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Count implements the Index interface.
func (e *Engine) Count(_ context.Context) (int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.entries), nil
}

// Close implements the Index interface. The backing store is owned by the
// caller and is not closed here.
func (e *Engine) Close() error {
	return nil
}
