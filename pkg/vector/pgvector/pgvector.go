// Package pgvector adapts PostgreSQL with the pgvector extension as a
// vector index backend, for deployments where the index must survive the
// process and be shared between instances.
package pgvector

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lexlapax/agentdb/pkg/errors"
	"github.com/lexlapax/agentdb/pkg/log"
	"github.com/lexlapax/agentdb/pkg/vector"
)

// Config contains the configuration for a pgvector index.
type Config struct {
	// ConnectionString is the PostgreSQL connection string
	ConnectionString string

	// TableName is the name of the table to use
	TableName string

	// Dimension is the size of vector embeddings
	Dimension int

	// Algorithm selects the distance operator (cosine, euclidean, dot)
	Algorithm vector.Algorithm
}

// PgvectorIndex implements vector.Index on PostgreSQL with pgvector.
type PgvectorIndex struct {
	db        *pgxpool.Pool
	tableName string
	dimension int
	algorithm vector.Algorithm
}

// NewPgvectorIndex connects to PostgreSQL and prepares the vector table.
func NewPgvectorIndex(ctx context.Context, config Config) (*PgvectorIndex, error) {
	if config.ConnectionString == "" {
		return nil, errors.Wrap(errors.ErrInvalidArgument, "connection string cannot be empty")
	}
	if config.TableName == "" {
		config.TableName = "agentdb_vectors"
	}
	if config.Dimension <= 0 {
		return nil, errors.Wrap(errors.ErrInvalidArgument, "vector dimension must be positive, got %d", config.Dimension)
	}

	switch config.Algorithm {
	case "":
		config.Algorithm = vector.Cosine
	case vector.Cosine, vector.Euclidean, vector.Dot:
	default:
		return nil, errors.Wrap(errors.ErrInvalidArgument,
			"pgvector supports cosine, euclidean and dot, not %q", config.Algorithm)
	}

	db, err := pgxpool.New(ctx, config.ConnectionString)
	if err != nil {
		return nil, errors.Wrap(errors.ErrIO, "failed to connect to PostgreSQL: %v", err)
	}
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(errors.ErrIO, "failed to ping PostgreSQL: %v", err)
	}

	idx := &PgvectorIndex{
		db:        db,
		tableName: config.TableName,
		dimension: config.Dimension,
		algorithm: config.Algorithm,
	}
	if err := idx.initializeTable(ctx); err != nil {
		db.Close()
		return nil, err
	}

	log.Debug("Initialized pgvector index",
		"table", config.TableName,
		"dimension", config.Dimension,
		"algorithm", config.Algorithm,
	)
	return idx, nil
}

// initializeTable creates the extension, table and vector index if they
// don't exist.
func (p *PgvectorIndex) initializeTable(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return errors.Wrap(errors.ErrIO, "failed to create pgvector extension: %v", err)
	}

	_, err := p.db.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id BIGINT PRIMARY KEY,
			metadata JSONB NOT NULL DEFAULT '{}',
			embedding VECTOR(%d) NOT NULL
		)
	`, p.tableName, p.dimension))
	if err != nil {
		return errors.Wrap(errors.ErrIO, "failed to create table: %v", err)
	}

	var ops string
	switch p.algorithm {
	case vector.Euclidean:
		ops = "vector_l2_ops"
	case vector.Dot:
		ops = "vector_ip_ops"
	default:
		ops = "vector_cosine_ops"
	}
	_, err = p.db.Exec(ctx, fmt.Sprintf(
		"CREATE INDEX IF NOT EXISTS %s_embedding_idx ON %s USING ivfflat (embedding %s) WITH (lists = 100)",
		p.tableName, p.tableName, ops))
	if err != nil {
		return errors.Wrap(errors.ErrIO, "failed to create vector index: %v", err)
	}
	return nil
}

// AddVector implements the vector.Index interface.
func (p *PgvectorIndex) AddVector(ctx context.Context, id uint64, vec []float32, metadata map[string]string) error {
	if len(vec) != p.dimension {
		return errors.Wrap(errors.ErrInvalidArgument,
			"vector length %d does not match index dimension %d", len(vec), p.dimension)
	}

	_, err := p.db.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, metadata, embedding)
		VALUES ($1, $2, $3::vector)
		ON CONFLICT (id) DO UPDATE SET
			metadata = $2,
			embedding = $3::vector
	`, p.tableName), int64(id), metadata, embedToString(vec))
	if err != nil {
		return errors.Wrap(errors.ErrIO, "failed to store vector %d: %v", id, err)
	}
	return nil
}

// GetVector implements the vector.Index interface.
func (p *PgvectorIndex) GetVector(ctx context.Context, id uint64) ([]float32, map[string]string, error) {
	var embeddingStr string
	metadata := make(map[string]string)

	err := p.db.QueryRow(ctx, fmt.Sprintf(
		"SELECT embedding::text, metadata FROM %s WHERE id = $1", p.tableName),
		int64(id)).Scan(&embeddingStr, &metadata)
	if err != nil {
		if strings.Contains(err.Error(), "no rows") {
			return nil, nil, nil
		}
		return nil, nil, errors.Wrap(errors.ErrIO, "failed to fetch vector %d: %v", id, err)
	}
	return stringToEmbed(embeddingStr), metadata, nil
}

// DeleteVector implements the vector.Index interface.
func (p *PgvectorIndex) DeleteVector(ctx context.Context, id uint64) error {
	_, err := p.db.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = $1", p.tableName), int64(id))
	if err != nil {
		return errors.Wrap(errors.ErrIO, "failed to delete vector %d: %v", id, err)
	}
	return nil
}

// Search implements the vector.Index interface.
func (p *PgvectorIndex) Search(ctx context.Context, query []float32, limit int) ([]vector.SearchResult, error) {
	if len(query) != p.dimension {
		return nil, errors.Wrap(errors.ErrInvalidArgument,
			"query length %d does not match index dimension %d", len(query), p.dimension)
	}
	if limit <= 0 {
		limit = 10
	}

	var operator string
	switch p.algorithm {
	case vector.Euclidean:
		operator = "<->"
	case vector.Dot:
		operator = "<#>"
	default:
		operator = "<=>"
	}

	rows, err := p.db.Query(ctx, fmt.Sprintf(`
		SELECT id, metadata, embedding::text, embedding %s $1::vector AS score
		FROM %s
		ORDER BY score ASC
		LIMIT $2
	`, operator, p.tableName), embedToString(query), limit)
	if err != nil {
		return nil, errors.Wrap(errors.ErrIO, "pgvector search failed: %v", err)
	}
	defer rows.Close()

	var results []vector.SearchResult
	for rows.Next() {
		var id int64
		var embeddingStr string
		var score float64
		metadata := make(map[string]string)

		if err := rows.Scan(&id, &metadata, &embeddingStr, &score); err != nil {
			return nil, errors.Wrap(errors.ErrIO, "failed to scan search row: %v", err)
		}

		sim, dist := p.scoreFromOperator(float32(score))
		results = append(results, vector.SearchResult{
			ID:         uint64(id),
			Vector:     stringToEmbed(embeddingStr),
			Metadata:   metadata,
			Similarity: sim,
			Distance:   dist,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrIO, "error iterating search rows: %v", err)
	}
	return results, nil
}

// scoreFromOperator maps the raw operator output to the (similarity,
// distance) pair. <=> yields cosine distance, <-> L2 distance, and <#> the
// negated inner product.
func (p *PgvectorIndex) scoreFromOperator(score float32) (similarity, distance float32) {
	switch p.algorithm {
	case vector.Euclidean:
		return 1 / (1 + score), score
	case vector.Dot:
		return -score, score
	default:
		return 1 - score, score
	}
}

// Count implements the vector.Index interface.
func (p *PgvectorIndex) Count(ctx context.Context) (int, error) {
	var count int
	err := p.db.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", p.tableName)).Scan(&count)
	if err != nil {
		return 0, errors.Wrap(errors.ErrIO, "failed to count vectors: %v", err)
	}
	return count, nil
}

// Close implements the vector.Index interface.
func (p *PgvectorIndex) Close() error {
	p.db.Close()
	return nil
}

// Helper function to convert []float32 to string for pgvector
func embedToString(embedding []float32) string {
	elements := make([]string, len(embedding))
	for i, v := range embedding {
		elements[i] = strconv.FormatFloat(float64(v), 'f', -1, 32)
	}
	return "[" + strings.Join(elements, ",") + "]"
}

// Helper function to convert pgvector string to []float32
func stringToEmbed(embeddingStr string) []float32 {
	embeddingStr = strings.TrimPrefix(embeddingStr, "[")
	embeddingStr = strings.TrimSuffix(embeddingStr, "]")
	if embeddingStr == "" {
		return nil
	}

	elements := strings.Split(embeddingStr, ",")
	embedding := make([]float32, len(elements))
	for i, e := range elements {
		v, err := strconv.ParseFloat(strings.TrimSpace(e), 32)
		if err != nil {
			continue
		}
		embedding[i] = float32(v)
	}
	return embedding
}
