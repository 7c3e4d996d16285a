package embedding

import (
	"context"
	"math"
	"strings"

	"github.com/finbot/finbot/pkg/utils"
)

// MockEmbedder is a deterministic embedder for tests. Each token is hashed
// into the vector, so texts sharing words produce similar (higher
// inner-product) embeddings and the same text always embeds identically.
type MockEmbedder struct {
	dimensions int
}

// NewMockEmbedder returns an embedder producing unit-norm vectors of the
// given dimension.
func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &MockEmbedder{dimensions: dimensions}
}

// Embed returns a deterministic bag-of-words embedding.
func (e *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	emb := make([]float32, e.dimensions)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		token = strings.Trim(token, ".,!?-:;\"'()")
		if token == "" {
			continue
		}
		h := hashString(token)
		emb[h%e.dimensions] += 1
		emb[(h/7)%e.dimensions] += float32(math.Sin(float64(h))) * 0.1
	}
	utils.NormalizeL2(emb)
	return emb, nil
}

// EmbedBatch calls Embed for each text.
func (e *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}

// Close is a no-op for MockEmbedder.
func (e *MockEmbedder) Close() error {
	return nil
}

func hashString(s string) int {
	h := 0
	for _, c := range s {
		h = 31*h + int(c)
	}
	if h < 0 {
		h = -h
	}
	return h
}
