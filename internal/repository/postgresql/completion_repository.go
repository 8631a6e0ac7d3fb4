package postgresql

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"transcode-service/internal/entity"
)

const schema = `
CREATE TABLE IF NOT EXISTS transcode_completions (
    id           BIGSERIAL PRIMARY KEY,
    job_id       TEXT        NOT NULL UNIQUE,
    filename     TEXT        NOT NULL,
    preset       TEXT        NOT NULL,
    input_bytes  BIGINT      NOT NULL DEFAULT 0,
    output_bytes BIGINT      NOT NULL DEFAULT 0,
    duration_ms  BIGINT      NOT NULL DEFAULT 0,
    completed_at TIMESTAMPTZ NOT NULL
);
`

func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// CompletionRepository appends one row per finished transcode.
type CompletionRepository struct {
	pool *pgxpool.Pool
}

func NewCompletionRepository(pool *pgxpool.Pool) *CompletionRepository {
	return &CompletionRepository{pool: pool}
}

// Migrate creates the completions table when it is missing.
func (r *CompletionRepository) Migrate(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate transcode_completions: %w", err)
	}
	return nil
}

func (r *CompletionRepository) RecordCompletion(ctx context.Context, rec entity.CompletionRecord) error {
	const q = `
INSERT INTO transcode_completions (job_id, filename, preset, input_bytes, output_bytes, duration_ms, completed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (job_id) DO NOTHING;
`
	_, err := r.pool.Exec(ctx, q,
		rec.JobID,
		rec.Filename,
		string(rec.Preset),
		rec.InputBytes,
		rec.OutputBytes,
		rec.Duration.Milliseconds(),
		rec.CompletedAt,
	)
	return err
}

func (r *CompletionRepository) Close() error {
	r.pool.Close()
	return nil
}
