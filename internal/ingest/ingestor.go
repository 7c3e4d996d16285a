package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/finbot/finbot/internal/extract"
	"github.com/finbot/finbot/internal/models"
	"github.com/finbot/finbot/internal/sanitize"
	"github.com/finbot/finbot/internal/storage"
	"github.com/finbot/finbot/internal/vector"
)

// Ingestor runs the ingest pipeline: extract records from a file, sanitize
// and chunk their content, then write passages to the registry and the
// vector index. The registry is written first so a crash between the two
// writes is recoverable with a rebuild.
type Ingestor struct {
	extractor *extract.Extractor
	chunker   *Chunker
	registry  *storage.Registry
	store     *vector.Store
	logger    *zap.Logger
}

// NewIngestor wires the pipeline. logger may be nil.
func NewIngestor(chunker *Chunker, registry *storage.Registry, store *vector.Store, logger *zap.Logger) *Ingestor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingestor{
		extractor: extract.NewExtractor(),
		chunker:   chunker,
		registry:  registry,
		store:     store,
		logger:    logger,
	}
}

// IngestFile processes one file. Files already recorded with the same mtime
// and size are skipped. Returns counts of what was extracted and indexed.
func (in *Ingestor) IngestFile(ctx context.Context, path string) (*models.IngestResult, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	result := &models.IngestResult{Source: filepath.Base(path)}

	skip, err := in.registry.ShouldSkipFile(ctx, path, info)
	if err != nil {
		return nil, fmt.Errorf("check ingest record: %w", err)
	}
	if skip {
		in.logger.Debug("file unchanged, skipping", zap.String("path", path))
		result.Skipped = true
		return result, nil
	}

	records, err := in.extractor.Extract(path)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", path, err)
	}
	result.TotalRecords = len(records)

	passages := in.passagesFromRecords(records)
	result.TotalChunks = len(passages)

	// A changed file replaces its previous generation: drop the old registry
	// rows first so re-ingestion never accumulates duplicates.
	removed, err := in.registry.DeletePassagesBySource(ctx, result.Source)
	if err != nil {
		return nil, fmt.Errorf("clear previous passages: %w", err)
	}

	if len(passages) > 0 {
		stored := make([]models.StoredPassage, len(passages))
		for i, p := range passages {
			stored[i] = models.StoredPassage{ID: uuid.New().String(), Passage: p}
		}
		if err := in.registry.BatchAddPassages(ctx, stored); err != nil {
			return nil, fmt.Errorf("register passages: %w", err)
		}
	}

	if removed > 0 {
		// The index is append-only, so replacing a source means rebuilding
		// it from the registry rather than appending alongside stale vectors.
		if _, err := in.Rebuild(ctx); err != nil {
			return nil, err
		}
		result.IndexedChunks = len(passages)
	} else if len(passages) > 0 {
		if err := in.store.Add(ctx, passages); err != nil {
			return nil, fmt.Errorf("index passages: %w", err)
		}
		result.IndexedChunks = len(passages)
	}

	if err := in.registry.RecordFile(ctx, path, info); err != nil {
		return nil, fmt.Errorf("record file: %w", err)
	}

	in.logger.Info("file ingested",
		zap.String("path", path),
		zap.Int("records", result.TotalRecords),
		zap.Int("indexed", result.IndexedChunks))
	return result, nil
}

// IngestDirectory processes every supported file directly under dir.
// Unsupported extensions are ignored; per-file failures are logged and do
// not abort the rest of the directory.
func (in *Ingestor) IngestDirectory(ctx context.Context, dir string) ([]*models.IngestResult, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read data directory: %w", err)
	}

	var results []*models.IngestResult
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !extract.SupportedExt(strings.ToLower(filepath.Ext(entry.Name()))) {
			continue
		}
		result, err := in.IngestFile(ctx, filepath.Join(dir, entry.Name()))
		if err != nil {
			in.logger.Error("ingest failed", zap.String("file", entry.Name()), zap.Error(err))
			continue
		}
		results = append(results, result)
	}
	return results, nil
}

// Rebuild re-embeds every registered passage into a fresh vector index.
// Returns the number of passages indexed.
func (in *Ingestor) Rebuild(ctx context.Context) (int, error) {
	passages, err := in.registry.ListPassages(ctx)
	if err != nil {
		return 0, fmt.Errorf("list passages: %w", err)
	}
	if len(passages) == 0 {
		in.logger.Warn("registry is empty, nothing to rebuild")
		return 0, nil
	}
	if err := in.store.Create(ctx, passages); err != nil {
		return 0, fmt.Errorf("rebuild index: %w", err)
	}
	return len(passages), nil
}

// passagesFromRecords splits each record's raw content into chunks and then
// sanitizes and validates every chunk. Splitting happens before cleaning
// because Clean collapses the blank lines the chunker relies on for
// paragraph boundaries. Content within the chunk size limit stays whole so
// short structured records (QA pairs, product rows) are never dropped by
// the minimum chunk size.
func (in *Ingestor) passagesFromRecords(records []models.Record) []models.Passage {
	var passages []models.Passage
	for i := range records {
		rec := &records[i]

		var chunks []string
		if len(rec.Content) <= in.chunker.maxSize {
			chunks = []string{rec.Content}
		} else {
			chunks = in.chunker.Split(rec.Content)
		}

		for _, chunk := range chunks {
			clean := sanitize.Clean(chunk)
			if !sanitize.IsValidChunk(clean) {
				continue
			}
			passages = append(passages, rec.Passage(clean))
		}
	}
	return passages
}
