package models

import (
	"fmt"
	"time"
)

// QueryRequest is a user question submitted to the answering pipeline.
type QueryRequest struct {
	Query string `json:"query"`
	K     int    `json:"k,omitempty"`
}

// Validate ensures the request has a query and normalizes k against the
// given default and ceiling. Non-positive arguments fall back to 3 and 20.
func (q *QueryRequest) Validate(defaultK, maxK int) error {
	if q.Query == "" {
		return fmt.Errorf("query cannot be empty")
	}
	if defaultK <= 0 {
		defaultK = 3
	}
	if maxK <= 0 {
		maxK = 20
	}
	if q.K <= 0 {
		q.K = defaultK
	}
	if q.K > maxK {
		q.K = maxK
	}
	return nil
}

// QueryMetrics holds per-query timing and retrieval statistics.
type QueryMetrics struct {
	QueryLength      int       `json:"query_length"`
	RetrievedCount   int       `json:"retrieved_docs"`
	SimilarityScores []float64 `json:"similarity_scores"`
	ClassifyTimeMs   float64   `json:"classification_time_ms"`
	RetrievalTimeMs  float64   `json:"retrieval_time_ms"`
	GenerationTimeMs float64   `json:"generation_time_ms"`
	TotalTimeMs      float64   `json:"total_time_ms"`
}

// QueryResponse is the answer returned for a query, with source
// attribution and the guardrail classification that was applied.
type QueryResponse struct {
	Response      string       `json:"response"`
	Sources       []string     `json:"sources"`
	IsJailbreak   bool         `json:"is_jailbreak"`
	IsOutOfDomain bool         `json:"is_out_of_domain"`
	Metrics       QueryMetrics `json:"metrics"`
}

// SessionStats is a snapshot of query activity since startup.
type SessionStats struct {
	SessionStart       time.Time `json:"session_start"`
	SessionDurationSec float64   `json:"session_duration_sec"`
	TotalQueries       int64     `json:"total_queries"`
	AverageResponseMs  float64   `json:"average_response_ms"`
	JailbreakAttempts  int64     `json:"jailbreak_attempts"`
	OutOfDomainQueries int64     `json:"out_of_domain_queries"`
	ErrorCount         int64     `json:"error_count"`
	LastError          string    `json:"last_error,omitempty"`
}

// IngestResult summarizes one ingest call.
type IngestResult struct {
	Source        string `json:"source"`
	TotalRecords  int    `json:"total_records"`
	TotalChunks   int    `json:"total_chunks"`
	IndexedChunks int    `json:"indexed_chunks"`
	Skipped       bool   `json:"skipped,omitempty"`
}
