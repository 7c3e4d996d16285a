// Package storage provides the SQLite passage registry. The registry is the
// durable record of everything ingested; the vector index can be rebuilt
// from it at any time.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/finbot/finbot/internal/models"
)

// Registry persists passages and tracks which source files have been
// ingested, keyed by path with mtime and size for incremental sync.
type Registry struct {
	db *sql.DB
}

// NewRegistry opens or creates a SQLite database at dbPath and initializes
// the schema. Parent directories are created if they do not exist.
func NewRegistry(dbPath string) (*Registry, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Registry{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS passages (
		id TEXT PRIMARY KEY,
		content TEXT NOT NULL,
		category TEXT,
		question TEXT,
		answer TEXT,
		source TEXT NOT NULL,
		sheet_name TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_passages_source ON passages(source);

	CREATE TABLE IF NOT EXISTS ingested_files (
		path TEXT PRIMARY KEY,
		mtime_ns INTEGER NOT NULL,
		size INTEGER NOT NULL,
		ingested_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := db.Exec(schema)
	return err
}

// BatchAddPassages inserts passages in a single transaction.
func (r *Registry) BatchAddPassages(ctx context.Context, passages []models.StoredPassage) error {
	if len(passages) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO passages (id, content, category, question, answer, source, sheet_name, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now()
	for i := range passages {
		sp := &passages[i]
		sp.CreatedAt = now
		p := &sp.Passage
		if _, err := stmt.ExecContext(ctx,
			sp.ID, p.Content, p.Category, p.Question, p.Answer, p.Source, p.SheetName, sp.CreatedAt,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListPassages returns all passages in insertion order, for rebuilding the
// vector index.
func (r *Registry) ListPassages(ctx context.Context) ([]models.Passage, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT content, category, question, answer, source, sheet_name
		 FROM passages ORDER BY rowid`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var passages []models.Passage
	for rows.Next() {
		var p models.Passage
		if err := rows.Scan(&p.Content, &p.Category, &p.Question, &p.Answer, &p.Source, &p.SheetName); err != nil {
			return nil, err
		}
		passages = append(passages, p)
	}
	return passages, rows.Err()
}

// DeletePassagesBySource removes all passages ingested from the given source
// and returns how many were removed.
func (r *Registry) DeletePassagesBySource(ctx context.Context, source string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM passages WHERE source = ?`, source)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// sqliteTimeLayouts covers the formats go-sqlite3 uses when storing a
// time.Time bound parameter or a CURRENT_TIMESTAMP default.
var sqliteTimeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

func parseSQLiteTime(s string) time.Time {
	for _, layout := range sqliteTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// ListSources returns distinct sources with their passage counts, most
// recently ingested first. MAX(created_at) is an expression column, so the
// driver hands it back as a string rather than a time.Time.
func (r *Registry) ListSources(ctx context.Context) ([]models.SourceInfo, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT source, COUNT(*), MAX(created_at)
		 FROM passages GROUP BY source ORDER BY MAX(created_at) DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sources []models.SourceInfo
	for rows.Next() {
		var info models.SourceInfo
		var ingestedAt string
		if err := rows.Scan(&info.Source, &info.PassageCount, &ingestedAt); err != nil {
			return nil, err
		}
		info.IngestedAt = parseSQLiteTime(ingestedAt)
		sources = append(sources, info)
	}
	return sources, rows.Err()
}

// ShouldSkipFile returns true if the file at path is already recorded with
// the same mtime and size.
func (r *Registry) ShouldSkipFile(ctx context.Context, path string, info os.FileInfo) (bool, error) {
	var mtimeNS, size int64
	err := r.db.QueryRowContext(ctx,
		`SELECT mtime_ns, size FROM ingested_files WHERE path = ?`, path,
	).Scan(&mtimeNS, &size)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return mtimeNS == info.ModTime().UnixNano() && size == info.Size(), nil
}

// RecordFile upserts the ingest record for path.
func (r *Registry) RecordFile(ctx context.Context, path string, info os.FileInfo) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO ingested_files (path, mtime_ns, size, ingested_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET mtime_ns = excluded.mtime_ns,
		     size = excluded.size, ingested_at = excluded.ingested_at`,
		path, info.ModTime().UnixNano(), info.Size(), time.Now(),
	)
	return err
}

// CountPassages returns the total number of stored passages.
func (r *Registry) CountPassages(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM passages`).Scan(&count)
	return count, err
}

// CountFiles returns the number of recorded source files.
func (r *Registry) CountFiles(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ingested_files`).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (r *Registry) Close() error {
	return r.db.Close()
}
