// Package embed defines the embedding boundary: turning text into vectors
// is delegated to a pluggable provider, never computed in-process.
package embed

import "context"

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed returns one embedding per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the length of the vectors this embedder produces.
	Dimension() int
}
