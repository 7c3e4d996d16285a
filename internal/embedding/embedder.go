// Package embedding provides text embedding via an OpenAI-compatible
// embedding service, with caching and a deterministic mock for tests.
package embedding

import "context"

// Embedder maps text to fixed-length vectors. All vectors produced by one
// embedder share a single dimension; the vector index checks this at
// insertion time.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Close() error
}
