// Package ingest turns raw records into sanitized, chunked, indexed passages.
package ingest

import (
	"strings"
	"unicode/utf8"
)

// Default chunking bounds, in characters.
const (
	DefaultMinChunkSize = 100
	DefaultMaxChunkSize = 1000
	DefaultOverlapSize  = 50
)

// Chunker splits text into bounded, overlapping chunks along semantic
// boundaries: paragraphs first, sentences when a paragraph is too long.
type Chunker struct {
	minSize int
	maxSize int
	overlap int
}

// NewChunker creates a chunker with the given size window and overlap.
// Non-positive values fall back to the defaults.
func NewChunker(minSize, maxSize, overlap int) *Chunker {
	if minSize <= 0 {
		minSize = DefaultMinChunkSize
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxChunkSize
	}
	if overlap < 0 {
		overlap = DefaultOverlapSize
	}
	return &Chunker{minSize: minSize, maxSize: maxSize, overlap: overlap}
}

// Split splits text into chunks. Every emitted chunk is at least minSize
// characters; chunks never exceed maxSize except when a single indivisible
// sentence is itself longer. Consecutive chunks share up to overlap
// characters of context. Trailing fragments under minSize are dropped.
// Pure function of its input.
func (c *Chunker) Split(text string) []string {
	var chunks []string
	var buffer []string
	size := 0

	flush := func() {
		chunk := strings.Join(buffer, " ")
		if len(chunk) >= c.minSize {
			chunks = append(chunks, chunk)
		}
		seed := overlapTail(chunk, c.overlap)
		buffer = []string{seed}
		size = len(seed)
	}

	appendUnit := func(unit string) {
		if size+len(unit) > c.maxSize && len(buffer) > 0 {
			flush()
		}
		buffer = append(buffer, unit)
		size += len(unit)
	}

	for _, paragraph := range strings.Split(text, "\n\n") {
		if len(paragraph) > c.maxSize {
			for _, sentence := range splitSentences(paragraph) {
				appendUnit(sentence)
			}
			continue
		}
		appendUnit(paragraph)
	}

	if len(buffer) > 0 {
		chunk := strings.Join(buffer, " ")
		if len(chunk) >= c.minSize {
			chunks = append(chunks, chunk)
		}
	}
	return chunks
}

// splitSentences splits a paragraph on punctuation-terminated sentence
// boundaries (., !, ? followed by whitespace). Implemented as a scan
// because RE2 has no lookbehind.
func splitSentences(text string) []string {
	var sentences []string
	start := 0
	for i := 0; i < len(text); i++ {
		ch := text[i]
		if ch != '.' && ch != '!' && ch != '?' {
			continue
		}
		if i+1 >= len(text) || !isASCIISpace(text[i+1]) {
			continue
		}
		if s := strings.TrimSpace(text[start : i+1]); s != "" {
			sentences = append(sentences, s)
		}
		j := i + 1
		for j < len(text) && isASCIISpace(text[j]) {
			j++
		}
		start = j
		i = j - 1
	}
	if start < len(text) {
		if s := strings.TrimSpace(text[start:]); s != "" {
			sentences = append(sentences, s)
		}
	}
	return sentences
}

func isASCIISpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

// overlapTail returns the last n bytes of s, adjusted forward to a rune
// boundary so the seed is always valid UTF-8.
func overlapTail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	off := len(s) - n
	for off < len(s) && !utf8.RuneStart(s[off]) {
		off++
	}
	return s[off:]
}
