package embedding

import (
	"context"
	"fmt"
	"os"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/finbot/finbot/internal/config"
	"github.com/finbot/finbot/pkg/utils"
)

// ServiceEmbedder embeds text through an OpenAI-compatible embedding
// endpoint. Results are cached by text so repeated queries do not
// re-embed.
type ServiceEmbedder struct {
	embedder  embeddings.Embedder
	cache     *Cache
	normalize bool
}

// NewServiceEmbedder creates an embedder for the configured endpoint.
// The API token is read from the env var named by cfg.APIKeyEnv; "none"
// is used for local services that require no authentication.
func NewServiceEmbedder(cfg *config.EmbeddingConfig) (*ServiceEmbedder, error) {
	token := os.Getenv(cfg.APIKeyEnv)
	if token == "" {
		token = "none"
	}
	client, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithToken(token),
		openai.WithEmbeddingModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("create embedding client: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	return &ServiceEmbedder{
		embedder:  embedder,
		cache:     NewCache(cfg.CacheSize),
		normalize: cfg.Normalize,
	}, nil
}

// Embed returns the embedding for a single text.
func (e *ServiceEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if cached, ok := e.cache.Get(text); ok {
		return cached, nil
	}
	vec, err := e.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed text: %w", err)
	}
	if e.normalize {
		utils.NormalizeL2(vec)
	}
	e.cache.Set(text, vec)
	return vec, nil
}

// EmbedBatch returns embeddings for texts in input order. A failure
// anywhere aborts the whole batch.
func (e *ServiceEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed batch: %w", err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("embed batch: got %d vectors for %d texts", len(vecs), len(texts))
	}
	for i := range vecs {
		if e.normalize {
			utils.NormalizeL2(vecs[i])
		}
		e.cache.Set(texts[i], vecs[i])
	}
	return vecs, nil
}

// Close is a no-op; the underlying client holds no resources.
func (e *ServiceEmbedder) Close() error {
	return nil
}
