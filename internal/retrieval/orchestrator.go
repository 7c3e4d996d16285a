// Package retrieval answers user queries: guardrail classification, vector
// search with source attribution, and answer generation.
package retrieval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/finbot/finbot/internal/guardrail"
	"github.com/finbot/finbot/internal/llm"
	"github.com/finbot/finbot/internal/models"
	"github.com/finbot/finbot/internal/vector"
)

// Fixed responses for queries that never reach the model.
const (
	jailbreakMessage = "I cannot process this request as it appears to be attempting to bypass " +
		"my operational guidelines. Please submit a valid banking inquiry."

	outOfDomainMessage = "I'm a Finbot assistant, designed to help with banking-related inquiries. " +
		"It seems your question is not related to Finbot services. " +
		"I'd be happy to help with questions about accounts, transfers, loans, " +
		"credit cards, or other banking products and services."
)

// Orchestrator runs the query pipeline. Jailbreak and out-of-domain checks
// run first and short-circuit with fixed responses; only clean queries cost
// an embedding call and a generation call.
type Orchestrator struct {
	classifier *guardrail.Classifier
	store      *vector.Store
	generator  llm.Generator
	collector  *Collector
	topK       int
	maxTopK    int
	logger     *zap.Logger
}

// NewOrchestrator wires the query pipeline. topK and maxTopK bound the
// per-request k; non-positive values fall back to the built-in defaults.
// collector and logger may be nil.
func NewOrchestrator(classifier *guardrail.Classifier, store *vector.Store, generator llm.Generator, collector *Collector, topK, maxTopK int, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		classifier: classifier,
		store:      store,
		generator:  generator,
		collector:  collector,
		topK:       topK,
		maxTopK:    maxTopK,
		logger:     logger,
	}
}

// Answer processes one query and always returns a response; errors are
// reserved for infrastructure failures (embedding or generation).
func (o *Orchestrator) Answer(ctx context.Context, req models.QueryRequest) (*models.QueryResponse, error) {
	if err := req.Validate(o.topK, o.maxTopK); err != nil {
		return nil, err
	}
	start := time.Now()

	resp := &models.QueryResponse{
		Sources: []string{},
		Metrics: models.QueryMetrics{
			QueryLength:      len(req.Query),
			SimilarityScores: []float64{},
		},
	}

	classifyStart := time.Now()
	isJailbreak := o.classifier.IsJailbreakAttempt(req.Query)
	isOutOfDomain := !isJailbreak && o.classifier.IsOutOfDomain(req.Query)
	resp.Metrics.ClassifyTimeMs = msSince(classifyStart)

	if isJailbreak {
		resp.Response = jailbreakMessage
		resp.IsJailbreak = true
		resp.Metrics.TotalTimeMs = msSince(start)
		o.finish(req.Query, resp)
		return resp, nil
	}
	if isOutOfDomain {
		resp.Response = outOfDomainMessage
		resp.IsOutOfDomain = true
		resp.Metrics.TotalTimeMs = msSince(start)
		o.finish(req.Query, resp)
		return resp, nil
	}

	retrievalStart := time.Now()
	results, err := o.store.Search(ctx, req.Query, req.K)
	if err != nil {
		o.recordError(err)
		return nil, fmt.Errorf("search passages: %w", err)
	}
	resp.Metrics.RetrievalTimeMs = msSince(retrievalStart)
	resp.Metrics.RetrievedCount = len(results)

	// Attribute sources in rank order, first occurrence wins.
	seen := make(map[string]bool)
	var contextParts []string
	for _, r := range results {
		resp.Metrics.SimilarityScores = append(resp.Metrics.SimilarityScores, r.Score)
		contextParts = append(contextParts, r.Passage.Content)
		if r.Passage.Source != "" && !seen[r.Passage.Source] {
			seen[r.Passage.Source] = true
			resp.Sources = append(resp.Sources, r.Passage.Source)
		}
	}

	if len(results) == 0 {
		resp.Response = llm.NoAnswerMessage
		resp.Metrics.TotalTimeMs = msSince(start)
		o.finish(req.Query, resp)
		return resp, nil
	}

	generationStart := time.Now()
	answer, err := o.generator.Generate(ctx, strings.Join(contextParts, "\n\n"), req.Query)
	if err != nil {
		o.recordError(err)
		return nil, fmt.Errorf("generate answer: %w", err)
	}
	resp.Metrics.GenerationTimeMs = msSince(generationStart)

	resp.Response = guardrail.FilterResponse(answer)
	resp.Metrics.TotalTimeMs = msSince(start)
	o.finish(req.Query, resp)
	return resp, nil
}

func (o *Orchestrator) finish(query string, resp *models.QueryResponse) {
	if o.collector != nil {
		o.collector.RecordQuery(resp.Metrics.TotalTimeMs, resp.IsJailbreak, resp.IsOutOfDomain)
	}
	o.logger.Info("query answered",
		zap.Int("query_length", len(query)),
		zap.Bool("is_jailbreak", resp.IsJailbreak),
		zap.Bool("is_out_of_domain", resp.IsOutOfDomain),
		zap.Int("retrieved", resp.Metrics.RetrievedCount),
		zap.Float64("total_ms", resp.Metrics.TotalTimeMs))
}

func (o *Orchestrator) recordError(err error) {
	if o.collector != nil {
		o.collector.RecordError(err)
	}
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000
}
