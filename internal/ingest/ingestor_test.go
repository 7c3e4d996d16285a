package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/finbot/finbot/internal/embedding"
	"github.com/finbot/finbot/internal/storage"
	"github.com/finbot/finbot/internal/vector"
)

const faqJSON = `{
	"categories": [
		{
			"category": "Accounts",
			"questions": [
				{
					"question": "What is the minimum balance requirement?",
					"answer": "The minimum balance for a savings account is Rs. 500."
				},
				{
					"question": "How do I activate SMS alerts?",
					"answer": "SMS alerts can be activated from internet banking settings."
				}
			]
		}
	]
}`

func newTestIngestor(t *testing.T) (*Ingestor, *storage.Registry, *vector.Store) {
	t.Helper()
	registry, err := storage.NewRegistry(filepath.Join(t.TempDir(), "finbot.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { registry.Close() })
	store := vector.NewStore(embedding.NewMockEmbedder(64), t.TempDir(), nil)
	chunker := NewChunker(DefaultMinChunkSize, DefaultMaxChunkSize, DefaultOverlapSize)
	return NewIngestor(chunker, registry, store, nil), registry, store
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestIngestFile_json(t *testing.T) {
	ingestor, registry, store := newTestIngestor(t)
	ctx := context.Background()

	path := writeFile(t, t.TempDir(), "faq.json", faqJSON)
	result, err := ingestor.IngestFile(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	if result.Skipped {
		t.Error("fresh file must not be skipped")
	}
	if result.TotalRecords != 2 {
		t.Errorf("TotalRecords = %d, want 2", result.TotalRecords)
	}
	if result.IndexedChunks != 2 {
		t.Errorf("IndexedChunks = %d, want 2", result.IndexedChunks)
	}
	if store.Size() != 2 {
		t.Errorf("store size = %d", store.Size())
	}
	count, err := registry.CountPassages(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Errorf("registry count = %d", count)
	}
}

func TestIngestFile_skipsUnchanged(t *testing.T) {
	ingestor, _, store := newTestIngestor(t)
	ctx := context.Background()

	path := writeFile(t, t.TempDir(), "faq.json", faqJSON)
	if _, err := ingestor.IngestFile(ctx, path); err != nil {
		t.Fatal(err)
	}
	result, err := ingestor.IngestFile(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	if !result.Skipped {
		t.Error("unchanged file should be skipped")
	}
	if store.Size() != 2 {
		t.Errorf("skip must not duplicate passages, size = %d", store.Size())
	}
}

func TestIngestFile_longTextIsChunked(t *testing.T) {
	ingestor, _, store := newTestIngestor(t)
	ctx := context.Background()

	sentence := "The bank offers several savings products with competitive interest rates for customers. "
	text := strings.Repeat(sentence, 40)
	path := writeFile(t, t.TempDir(), "brochure.txt", text)

	result, err := ingestor.IngestFile(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	if result.TotalRecords != 1 {
		t.Errorf("TotalRecords = %d, want 1", result.TotalRecords)
	}
	if result.IndexedChunks < 2 {
		t.Errorf("long text should produce multiple chunks, got %d", result.IndexedChunks)
	}
	if store.Size() != result.IndexedChunks {
		t.Errorf("store size %d != indexed %d", store.Size(), result.IndexedChunks)
	}
}

func TestIngestFile_paragraphsWithoutSentencesStayBounded(t *testing.T) {
	ingestor, registry, _ := newTestIngestor(t)
	ctx := context.Background()

	// Paragraphs with no sentence punctuation rely entirely on blank-line
	// boundaries, which sanitization would collapse if it ran first.
	paragraph := strings.TrimSpace(strings.Repeat("branch banking services and account statements ", 6))
	text := strings.TrimSpace(strings.Repeat(paragraph+"\n\n", 30))
	path := writeFile(t, t.TempDir(), "brochure.txt", text)

	result, err := ingestor.IngestFile(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	if result.IndexedChunks < 2 {
		t.Fatalf("expected multiple chunks, got %d", result.IndexedChunks)
	}
	passages, err := registry.ListPassages(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for i, p := range passages {
		if len(p.Content) > DefaultMaxChunkSize+16 {
			t.Errorf("passage %d is %d chars, exceeds max chunk size", i, len(p.Content))
		}
	}
}

func TestIngestFile_reingestReplacesSource(t *testing.T) {
	ingestor, registry, store := newTestIngestor(t)
	ctx := context.Background()

	dir := t.TempDir()
	path := writeFile(t, dir, "faq.json", faqJSON)
	if _, err := ingestor.IngestFile(ctx, path); err != nil {
		t.Fatal(err)
	}
	if store.Size() != 2 {
		t.Fatalf("initial store size = %d", store.Size())
	}

	updated := `{"categories":[{"category":"Accounts","questions":[{
		"question": "What is the minimum balance requirement?",
		"answer": "The minimum balance was revised to Rs. 1000 for savings accounts."
	}]}]}`
	writeFile(t, dir, "faq.json", updated)

	result, err := ingestor.IngestFile(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	if result.Skipped {
		t.Fatal("modified file must not be skipped")
	}
	if result.IndexedChunks != 1 {
		t.Errorf("IndexedChunks = %d, want 1", result.IndexedChunks)
	}

	count, err := registry.CountPassages(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("registry count = %d, re-ingest must replace previous passages", count)
	}
	if store.Size() != 1 {
		t.Errorf("store size = %d, re-ingest must not accumulate stale vectors", store.Size())
	}

	passages, err := registry.ListPassages(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(passages) != 1 || !strings.Contains(passages[0].Content, "1000") {
		t.Errorf("registry holds stale content: %v", passages)
	}
}

func TestIngestFile_redactsPII(t *testing.T) {
	ingestor, registry, _ := newTestIngestor(t)
	ctx := context.Background()

	content := `{"categories":[{"category":"Support","questions":[{
		"question": "How do I report a stolen card?",
		"answer": "Call us and reference card 4111-1111-1111-1111 or email support@finbot.example"
	}]}]}`
	path := writeFile(t, t.TempDir(), "support.json", content)
	if _, err := ingestor.IngestFile(ctx, path); err != nil {
		t.Fatal(err)
	}

	passages, err := registry.ListPassages(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(passages) != 1 {
		t.Fatalf("got %d passages", len(passages))
	}
	if strings.Contains(passages[0].Content, "4111") {
		t.Errorf("card number survived ingest: %q", passages[0].Content)
	}
	if strings.Contains(passages[0].Content, "support@finbot.example") {
		t.Errorf("email survived ingest: %q", passages[0].Content)
	}
}

func TestIngestDirectory(t *testing.T) {
	ingestor, _, store := newTestIngestor(t)
	ctx := context.Background()

	dir := t.TempDir()
	writeFile(t, dir, "faq.json", faqJSON)
	writeFile(t, dir, "notes.csv", "id,text\n1,Cheque books are issued within five working days by the branch.\n")
	writeFile(t, dir, "ignore.exe", "binary")
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0755); err != nil {
		t.Fatal(err)
	}

	results, err := ingestor.IngestDirectory(ctx, dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if store.Size() != 3 {
		t.Errorf("store size = %d, want 3", store.Size())
	}
}

func TestRebuild(t *testing.T) {
	ingestor, _, store := newTestIngestor(t)
	ctx := context.Background()

	path := writeFile(t, t.TempDir(), "faq.json", faqJSON)
	if _, err := ingestor.IngestFile(ctx, path); err != nil {
		t.Fatal(err)
	}

	n, err := ingestor.Rebuild(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("rebuilt %d passages, want 2", n)
	}
	if store.Size() != 2 {
		t.Errorf("store size = %d", store.Size())
	}
}

func TestRebuild_emptyRegistry(t *testing.T) {
	ingestor, _, store := newTestIngestor(t)
	n, err := ingestor.Rebuild(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("rebuilt %d, want 0", n)
	}
	if store.Size() != 0 {
		t.Errorf("empty rebuild must not touch the store")
	}
}
