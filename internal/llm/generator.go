// Package llm produces answers from retrieved context. Backends are
// selected by configuration; ollama for local models and any
// OpenAI-compatible endpoint otherwise.
package llm

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/finbot/finbot/internal/config"
)

// NoAnswerMessage is returned verbatim when retrieval produces nothing,
// and the prompt instructs the model to fall back to it too.
const NoAnswerMessage = "I don't have enough information to answer this question. " +
	"Please contact our customer service at +92 (51) 111 000 494 for assistance."

const promptTemplate = `You are an AI assistant for Finbot, a trusted financial institution. Your role is to provide helpful, accurate, and professional responses to customer inquiries about the bank's products, services, and procedures.

Use the following pieces of bank information to answer the question at the end.
If you don't know the answer, just say "` + NoAnswerMessage + `" Don't try to make up an answer.

%s

Question: %s

Helpful Answer:`

// Generator turns a context block and a question into an answer.
type Generator interface {
	Generate(ctx context.Context, contextBlock, question string) (string, error)
}

// ModelGenerator drives a langchaingo chat model with the Finbot prompt.
type ModelGenerator struct {
	model llms.Model
}

// NewGenerator builds a generator for the configured backend. Supported
// services are "ollama" and "openai".
func NewGenerator(cfg config.LLMConfig) (*ModelGenerator, error) {
	switch strings.ToLower(cfg.Service) {
	case "ollama":
		model, err := ollama.New(
			ollama.WithModel(cfg.Model),
			ollama.WithServerURL(cfg.BaseURL),
		)
		if err != nil {
			return nil, fmt.Errorf("init ollama backend: %w", err)
		}
		return &ModelGenerator{model: model}, nil
	case "openai":
		token := os.Getenv(cfg.APIKeyEnv)
		if token == "" {
			return nil, fmt.Errorf("environment variable %s is required for the openai backend", cfg.APIKeyEnv)
		}
		opts := []openai.Option{
			openai.WithToken(token),
			openai.WithModel(cfg.Model),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		model, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("init openai backend: %w", err)
		}
		return &ModelGenerator{model: model}, nil
	default:
		return nil, fmt.Errorf("unsupported llm service %q, supported services: ollama, openai", cfg.Service)
	}
}

// Generate renders the prompt and runs a single completion.
func (g *ModelGenerator) Generate(ctx context.Context, contextBlock, question string) (string, error) {
	prompt := fmt.Sprintf(promptTemplate, contextBlock, question)
	answer, err := llms.GenerateFromSinglePrompt(ctx, g.model, prompt,
		llms.WithTemperature(0.1),
		llms.WithMaxTokens(512),
	)
	if err != nil {
		return "", fmt.Errorf("generate answer: %w", err)
	}
	return strings.TrimSpace(answer), nil
}
