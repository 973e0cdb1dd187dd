package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/verseworks/prosody/internal/usage"
)

// PgWindowStore records rate-limit events in Postgres and counts how many
// fall inside a sliding window. It satisfies usage.WindowStore.
type PgWindowStore struct {
	pool *pgxpool.Pool
}

func NewWindowStore(pool *pgxpool.Pool) *PgWindowStore {
	return &PgWindowStore{pool: pool}
}

// Slide records an event at now, prunes anything older than the window, and
// returns the number of events remaining in the window for the caller.
func (w *PgWindowStore) Slide(ctx context.Context, key string, now time.Time, window time.Duration) (int, error) {
	cutoff := now.Add(-window)

	_, err := w.pool.Exec(ctx, `
		DELETE FROM rate_limit_events WHERE caller = $1 AND ts < $2`,
		key, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("prune rate limit events: %w", err)
	}

	_, err = w.pool.Exec(ctx, `
		INSERT INTO rate_limit_events (caller, ts) VALUES ($1, $2)`,
		key, now,
	)
	if err != nil {
		return 0, fmt.Errorf("record rate limit event: %w", err)
	}

	var count int
	err = w.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM rate_limit_events WHERE caller = $1 AND ts >= $2`,
		key, cutoff,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count rate limit events: %w", err)
	}
	return count, nil
}

// PgMonthlyStore keeps per-caller monthly usage totals in Postgres. It
// satisfies usage.MonthlyStore.
type PgMonthlyStore struct {
	pool *pgxpool.Pool
}

func NewMonthlyStore(pool *pgxpool.Pool) *PgMonthlyStore {
	return &PgMonthlyStore{pool: pool}
}

func (m *PgMonthlyStore) Get(ctx context.Context, caller string) (usage.Monthly, error) {
	var u usage.Monthly
	var month int
	err := m.pool.QueryRow(ctx, `
		SELECT tokens, cost_usd, observations, month, year
		FROM monthly_usage WHERE caller = $1`,
		caller,
	).Scan(&u.Tokens, &u.CostUSD, &u.Observations, &month, &u.Year)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return usage.Monthly{}, nil
		}
		return usage.Monthly{}, fmt.Errorf("query monthly usage: %w", err)
	}
	u.Month = time.Month(month)
	return u, nil
}

func (m *PgMonthlyStore) Put(ctx context.Context, caller string, u usage.Monthly) error {
	_, err := m.pool.Exec(ctx, `
		INSERT INTO monthly_usage (caller, tokens, cost_usd, observations, month, year)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (caller) DO UPDATE SET
			tokens = EXCLUDED.tokens,
			cost_usd = EXCLUDED.cost_usd,
			observations = EXCLUDED.observations,
			month = EXCLUDED.month,
			year = EXCLUDED.year`,
		caller, u.Tokens, u.CostUSD, u.Observations, int(u.Month), u.Year,
	)
	if err != nil {
		return fmt.Errorf("upsert monthly usage: %w", err)
	}
	return nil
}
