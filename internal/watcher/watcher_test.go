package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type callRecorder struct {
	mu    sync.Mutex
	paths []string
}

func (c *callRecorder) record(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paths = append(c.paths, path)
}

func (c *callRecorder) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.paths...)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return cond()
}

func TestWatcher_ingestsNewFile(t *testing.T) {
	dir := t.TempDir()
	rec := &callRecorder{}

	w := New(dir, rec.record, nil)
	w.debounce = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	path := filepath.Join(dir, "faq.json")
	if err := os.WriteFile(path, []byte(`{"categories":[]}`), 0644); err != nil {
		t.Fatal(err)
	}

	if !waitFor(t, 3*time.Second, func() bool { return len(rec.snapshot()) >= 1 }) {
		t.Fatal("ingest callback never fired")
	}
	if got := rec.snapshot()[0]; got != path {
		t.Errorf("ingested %q, want %q", got, path)
	}
}

func TestWatcher_ignoresUnsupportedFiles(t *testing.T) {
	dir := t.TempDir()
	rec := &callRecorder{}

	w := New(dir, rec.record, nil)
	w.debounce = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(dir, "notes.exe"), []byte("binary"), 0644); err != nil {
		t.Fatal(err)
	}

	time.Sleep(300 * time.Millisecond)
	if got := rec.snapshot(); len(got) != 0 {
		t.Errorf("unsupported file triggered ingest: %v", got)
	}
}

func TestWatcher_debouncesWriteBursts(t *testing.T) {
	dir := t.TempDir()
	rec := &callRecorder{}

	w := New(dir, rec.record, nil)
	w.debounce = 150 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	path := filepath.Join(dir, "rates.csv")
	for i := 0; i < 5; i++ {
		if err := os.WriteFile(path, []byte("tenor,rate\n1 year,18.5%\n"), 0644); err != nil {
			t.Fatal(err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	if !waitFor(t, 3*time.Second, func() bool { return len(rec.snapshot()) >= 1 }) {
		t.Fatal("ingest callback never fired")
	}
	time.Sleep(300 * time.Millisecond)
	if got := rec.snapshot(); len(got) != 1 {
		t.Errorf("burst produced %d ingest calls, want 1", len(got))
	}
}

func TestWatcher_createsMissingDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")

	w := New(dir, func(string) {}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if _, err := os.Stat(dir); err != nil {
		t.Errorf("data directory not created: %v", err)
	}
}

func TestWatcher_stopIsIdempotent(t *testing.T) {
	w := New(t.TempDir(), func(string) {}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	w.Stop()
	w.Stop()
}
