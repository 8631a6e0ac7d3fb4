package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"transcode-service/internal/entity"
)

// timeLayout is fixed width so completed_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

//go:embed migrations/*.sql
var migrationFiles embed.FS

// CompletionStore keeps completion records in a local SQLite file.
type CompletionStore struct {
	db *sql.DB
}

func NewCompletionStore(path string) (*CompletionStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &CompletionStore{db: db}
	if err := store.init(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *CompletionStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *CompletionStore) init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		return fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version := migrationVersion(entry.Name())
		if version <= 0 {
			continue
		}
		var applied int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, version).Scan(&applied); err != nil {
			return fmt.Errorf("check migration %s: %w", entry.Name(), err)
		}
		if applied > 0 {
			continue
		}
		// embed.FS paths always use forward slashes
		content, err := migrationFiles.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, version); err != nil {
			return fmt.Errorf("record migration %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// migrationVersion extracts the leading integer of a file name ("001_x.sql" -> 1).
func migrationVersion(name string) int {
	end := strings.IndexFunc(name, func(r rune) bool { return r < '0' || r > '9' })
	if end == 0 {
		return 0
	}
	if end < 0 {
		end = len(name)
	}
	n, _ := strconv.Atoi(name[:end])
	return n
}

func (s *CompletionStore) RecordCompletion(ctx context.Context, rec entity.CompletionRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transcode_completions (job_id, filename, preset, input_bytes, output_bytes, duration_ms, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(job_id) DO NOTHING`,
		rec.JobID,
		rec.Filename,
		string(rec.Preset),
		rec.InputBytes,
		rec.OutputBytes,
		rec.Duration.Milliseconds(),
		rec.CompletedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert completion %s: %w", rec.JobID, err)
	}
	return nil
}

// Recent returns the newest records first.
func (s *CompletionStore) Recent(ctx context.Context, limit int) ([]entity.CompletionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT job_id, filename, preset, input_bytes, output_bytes, duration_ms, completed_at
		 FROM transcode_completions
		 ORDER BY completed_at DESC, id DESC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]entity.CompletionRecord, 0)
	for rows.Next() {
		var (
			rec         entity.CompletionRecord
			preset      string
			durationMs  int64
			completedAt string
		)
		if err := rows.Scan(&rec.JobID, &rec.Filename, &preset, &rec.InputBytes, &rec.OutputBytes, &durationMs, &completedAt); err != nil {
			return nil, err
		}
		rec.Preset = entity.Preset(preset)
		rec.Duration = time.Duration(durationMs) * time.Millisecond
		if t, err := time.Parse(timeLayout, completedAt); err == nil {
			rec.CompletedAt = t
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
