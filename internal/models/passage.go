// Package models defines core data structures for passages, queries, and answers.
package models

import "time"

// Passage is one indexable unit of text with its source metadata.
// Passages are immutable once created: they are built at ingest time,
// embedded once, and appended to the vector index.
type Passage struct {
	Content   string `json:"content"`
	Category  string `json:"category,omitempty"`
	Question  string `json:"question,omitempty"`
	Answer    string `json:"answer,omitempty"`
	Source    string `json:"source"`
	SheetName string `json:"sheet_name,omitempty"`
}

// ScoredPassage pairs a passage with its query-time similarity score.
// The score annotates a copy; it is never written back to the index.
type ScoredPassage struct {
	Passage Passage `json:"passage"`
	Score   float64 `json:"score"`
}

// Record is a raw ingest input row as produced by the extractors:
// at minimum content and an origin file identifier, plus whatever
// optional metadata the source format carries.
type Record struct {
	Content   string
	Category  string
	Question  string
	Answer    string
	Source    string
	SheetName string
}

// Passage converts the record into a passage with the given (already
// sanitized and chunked) content.
func (r *Record) Passage(content string) Passage {
	return Passage{
		Content:   content,
		Category:  r.Category,
		Question:  r.Question,
		Answer:    r.Answer,
		Source:    r.Source,
		SheetName: r.SheetName,
	}
}

// StoredPassage is a passage row in the registry, keyed for rebuilds.
type StoredPassage struct {
	ID        string    `json:"id"`
	Passage   Passage   `json:"passage"`
	CreatedAt time.Time `json:"created_at"`
}

// SourceInfo summarizes one ingested source file.
type SourceInfo struct {
	Source       string    `json:"source"`
	PassageCount int64     `json:"passage_count"`
	IngestedAt   time.Time `json:"ingested_at"`
}
