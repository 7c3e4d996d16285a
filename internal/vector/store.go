// Package vector provides the embedded passage store: an inner-product
// similarity index over passage vectors with paired metadata, persisted
// as a pair of companion files.
package vector

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/finbot/finbot/internal/embedding"
	"github.com/finbot/finbot/internal/models"
	"github.com/finbot/finbot/pkg/utils"
)

// ErrEmptyBatch is returned when Create is called with no passages.
var ErrEmptyBatch = errors.New("no passages to index")

// entry pairs one vector with its passage. Keeping them in a single
// record makes the vector/metadata length invariant impossible to break.
type entry struct {
	vector  []float32
	passage models.Passage
}

// Store is the append-only vector index. A whole-operation mutex
// serializes ingest against search; there are no partial-state reads.
type Store struct {
	embedder embedding.Embedder
	dir      string
	logger   *zap.Logger

	mu      sync.RWMutex
	entries []entry
	dims    int
}

// NewStore creates a store persisting under dir, embedding with the given
// embedder. logger may be nil.
func NewStore(embedder embedding.Embedder, dir string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{embedder: embedder, dir: dir, logger: logger}
}

// Create embeds all passages in one batch, replaces any existing state
// with a fresh index, and persists it. An empty batch is reported as an
// error and leaves existing state untouched.
func (s *Store) Create(ctx context.Context, passages []models.Passage) error {
	if len(passages) == 0 {
		return ErrEmptyBatch
	}
	entries, dims, err := s.embedEntries(ctx, passages, 0)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = entries
	s.dims = dims
	s.logger.Info("vector store created", zap.Int("passages", len(entries)))
	return s.saveLocked()
}

// Add embeds and appends passages to the existing index, then re-persists
// the full state. When no index exists yet it behaves as Create.
// In-memory state is mutated only after embedding succeeds.
func (s *Store) Add(ctx context.Context, passages []models.Passage) error {
	s.mu.RLock()
	empty := len(s.entries) == 0
	dims := s.dims
	s.mu.RUnlock()
	if empty {
		return s.Create(ctx, passages)
	}
	if len(passages) == 0 {
		return nil
	}
	entries, _, err := s.embedEntries(ctx, passages, dims)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entries...)
	s.logger.Info("vector store extended",
		zap.Int("added", len(entries)), zap.Int("total", len(s.entries)))
	return s.saveLocked()
}

// embedEntries batch-embeds passage contents and pairs vectors with their
// passages. wantDims of 0 accepts whatever dimension the embedder returns;
// otherwise every vector must match it.
func (s *Store) embedEntries(ctx context.Context, passages []models.Passage, wantDims int) ([]entry, int, error) {
	texts := make([]string, len(passages))
	for i, p := range passages {
		texts[i] = p.Content
	}
	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, 0, fmt.Errorf("embed passages: %w", err)
	}
	if len(vectors) != len(passages) {
		return nil, 0, fmt.Errorf("embedder returned %d vectors for %d passages", len(vectors), len(passages))
	}
	dims := wantDims
	entries := make([]entry, len(passages))
	for i := range passages {
		if dims == 0 {
			dims = len(vectors[i])
		}
		if len(vectors[i]) != dims {
			return nil, 0, fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(vectors[i]), dims)
		}
		entries[i] = entry{vector: vectors[i], passage: passages[i]}
	}
	return entries, dims, nil
}

// Search embeds the query and returns up to k passages ordered by
// descending inner-product score; ties keep insertion order. An empty
// (unloaded) index returns no results and no error.
func (s *Store) Search(ctx context.Context, query string, k int) ([]models.ScoredPassage, error) {
	if k <= 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.entries) == 0 {
		s.logger.Debug("search on empty vector store", zap.String("query", utils.Truncate(query, 80)))
		return nil, nil
	}
	queryVec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	type scored struct {
		idx   int
		score float64
	}
	scores := make([]scored, 0, len(s.entries))
	for i, e := range s.entries {
		if len(e.vector) != len(queryVec) {
			continue
		}
		scores = append(scores, scored{idx: i, score: utils.InnerProduct(queryVec, e.vector)})
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })
	if k > len(scores) {
		k = len(scores)
	}
	results := make([]models.ScoredPassage, 0, k)
	for _, sc := range scores[:k] {
		if sc.idx < 0 || sc.idx >= len(s.entries) {
			continue
		}
		results = append(results, models.ScoredPassage{
			Passage: s.entries[sc.idx].passage,
			Score:   sc.score,
		})
	}
	return results, nil
}

// Size returns the number of indexed passages.
func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Dimensions returns the vector dimension, or 0 when nothing is indexed.
func (s *Store) Dimensions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dims
}
