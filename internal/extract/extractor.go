// Package extract turns source files into raw ingest records. Each record
// carries the text to index plus whatever metadata the format exposes;
// sanitization and chunking happen downstream.
package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/finbot/finbot/internal/models"
)

// Extractor extracts records from document files.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// SupportedExt reports whether files with the given extension (leading dot,
// lowercase) can be ingested.
func SupportedExt(ext string) bool {
	switch ext {
	case ".json", ".xlsx", ".xls", ".csv", ".pdf", ".txt", ".md":
		return true
	}
	return false
}

// Extract reads the file at path and returns its records. JSON and Excel
// files yield structured records (QA pairs, product rows); CSV, PDF, and
// plain text yield content-only records. The record source is the file's
// base name.
func (e *Extractor) Extract(path string) ([]models.Record, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(path))
	return e.ExtractBytes(content, ext, filepath.Base(path))
}

// ExtractBytes extracts records from content based on the given extension.
// ext should include the leading dot (e.g. ".json"). source is recorded on
// every returned record.
func (e *Extractor) ExtractBytes(content []byte, ext, source string) ([]models.Record, error) {
	switch ext {
	case ".json":
		return extractJSON(content, source)
	case ".xlsx", ".xls":
		return extractExcel(content, source)
	case ".csv":
		return extractCSV(content, source)
	case ".pdf":
		return extractPDF(content, source)
	case ".txt", ".md", "":
		return extractPlain(content, source)
	default:
		return nil, fmt.Errorf("unsupported file extension %q", ext)
	}
}
