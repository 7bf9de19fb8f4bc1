package jobstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const queryTimeout = 5 * time.Second

// PostgresConfig contains the information required to reach the jobs table.
type PostgresConfig struct {
	DSN             string
	MaxConns        int32
	ConnectTimeout  time.Duration
	ApplicationName string
}

// PostgresStore persists job records in a single Postgres table, using
// INSERT ... ON CONFLICT DO NOTHING as the conditional-insert primitive.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgres connects a pool and verifies connectivity.
func NewPostgres(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.ApplicationName != "" {
		poolCfg.ConnConfig.RuntimeParams["application_name"] = cfg.ApplicationName
	}

	connectCtx := ctx
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		connectCtx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}

	pool, err := pgxpool.NewWithConfig(connectCtx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Migrate creates the jobs table when it does not exist yet.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS transcription_jobs (
    fingerprint            TEXT PRIMARY KEY,
    bucket_name            TEXT NOT NULL,
    input_object_key       TEXT NOT NULL,
    input_object_etag      TEXT NOT NULL,
    input_object_size      BIGINT NOT NULL,
    source_event_timestamp TEXT NOT NULL,
    transcribe_job_id      TEXT NOT NULL,
    created_at             TIMESTAMPTZ NOT NULL,
    last_updated_at        TIMESTAMPTZ NOT NULL,
    status                 TEXT NOT NULL
);`)
	if err != nil {
		return fmt.Errorf("create transcription_jobs table: %w", err)
	}
	return nil
}

// Exists reports whether a record for the fingerprint is persisted.
func (s *PostgresStore) Exists(ctx context.Context, fingerprint string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var one int
	err := s.pool.QueryRow(ctx,
		`SELECT 1 FROM transcription_jobs WHERE fingerprint = $1;`,
		fingerprint,
	).Scan(&one)
	if err != nil {
		if err == pgx.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("%w: query fingerprint: %v", ErrUnavailable, err)
	}
	return true, nil
}

// Put inserts a new record. The ON CONFLICT clause keeps the insert
// conditional: when another writer already holds the fingerprint the
// statement affects zero rows and ErrAlreadyExists is returned.
func (s *PostgresStore) Put(ctx context.Context, rec Record) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `
INSERT INTO transcription_jobs (
    fingerprint, bucket_name, input_object_key, input_object_etag,
    input_object_size, source_event_timestamp, transcribe_job_id,
    created_at, last_updated_at, status
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (fingerprint) DO NOTHING;`,
		rec.Fingerprint,
		rec.BucketName,
		rec.InputObjectKey,
		rec.InputObjectETag,
		rec.InputObjectSize,
		rec.SourceEventTimestamp,
		rec.TranscribeJobID,
		rec.CreatedAt,
		rec.LastUpdatedAt,
		string(rec.Status),
	)
	if err != nil {
		return fmt.Errorf("%w: insert job record: %v", ErrUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyExists
	}
	return nil
}

// Get fetches the record for a fingerprint.
func (s *PostgresStore) Get(ctx context.Context, fingerprint string) (Record, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var rec Record
	var status string
	err := s.pool.QueryRow(ctx, `
SELECT fingerprint, bucket_name, input_object_key, input_object_etag,
       input_object_size, source_event_timestamp, transcribe_job_id,
       created_at, last_updated_at, status
FROM transcription_jobs
WHERE fingerprint = $1;`,
		fingerprint,
	).Scan(
		&rec.Fingerprint,
		&rec.BucketName,
		&rec.InputObjectKey,
		&rec.InputObjectETag,
		&rec.InputObjectSize,
		&rec.SourceEventTimestamp,
		&rec.TranscribeJobID,
		&rec.CreatedAt,
		&rec.LastUpdatedAt,
		&status,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("%w: get job record: %v", ErrUnavailable, err)
	}
	rec.Status = Status(status)
	return rec, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}
