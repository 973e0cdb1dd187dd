package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	pool *pgxpool.Pool
	// maxDocBytes is the document size ceiling the store enforces on writes.
	maxDocBytes int
}

func New(ctx context.Context, databaseURL string, maxDocBytes int) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{pool: pool, maxDocBytes: maxDocBytes}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

// Pool exposes the underlying connection pool so the usage counters can
// share it.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// EnsureSchema creates the tables the service needs if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS observations (
			id           uuid PRIMARY KEY,
			content_key  text NOT NULL,
			language     text NOT NULL,
			doc          jsonb NOT NULL,
			created_at   timestamptz NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS observations_content_key_idx
			ON observations (content_key, language);

		CREATE TABLE IF NOT EXISTS rate_limit_events (
			caller text NOT NULL,
			ts     timestamptz NOT NULL
		);
		CREATE INDEX IF NOT EXISTS rate_limit_events_caller_ts_idx
			ON rate_limit_events (caller, ts);

		CREATE TABLE IF NOT EXISTS monthly_usage (
			caller       text PRIMARY KEY,
			tokens       bigint NOT NULL DEFAULT 0,
			cost_usd     double precision NOT NULL DEFAULT 0,
			observations integer NOT NULL DEFAULT 0,
			month        integer NOT NULL,
			year         integer NOT NULL
		);`
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
