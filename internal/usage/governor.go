// Package usage enforces per-caller sliding-window rate limits and keeps
// best-effort monthly token/cost accounting. Counter-store failures never
// block the analysis path: the limiter fails open and accounting errors are
// logged and swallowed by the caller.
package usage

import (
	"context"
	"log/slog"
	"time"

	"github.com/verseworks/prosody/internal/observe"
)

// WindowStore records request timestamps per caller and reports how many fall
// inside a window. Slide must record now, prune entries older than
// now-window, and return the resulting count (including the new entry).
type WindowStore interface {
	Slide(ctx context.Context, key string, now time.Time, window time.Duration) (int, error)
}

// Monthly is one caller's accumulated usage for a calendar month.
type Monthly struct {
	Tokens       int
	CostUSD      float64
	Observations int
	Month        time.Month
	Year         int
}

// MonthlyStore persists per-caller monthly counters.
type MonthlyStore interface {
	Get(ctx context.Context, key string) (Monthly, error)
	Put(ctx context.Context, key string, m Monthly) error
}

// Config holds the limiter settings.
type Config struct {
	Window      time.Duration
	MaxRequests int
}

// DefaultConfig mirrors the original deployment: 10 requests per minute.
func DefaultConfig() Config {
	return Config{Window: time.Minute, MaxRequests: 10}
}

// Governor combines the sliding-window limiter with monthly accounting.
type Governor struct {
	windows WindowStore
	monthly MonthlyStore
	cfg     Config
	logger  *slog.Logger
	now     func() time.Time
}

func NewGovernor(w WindowStore, m MonthlyStore, cfg Config, logger *slog.Logger) *Governor {
	return &Governor{
		windows: w,
		monthly: m,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// SetClock overrides the governor's clock for tests.
func (g *Governor) SetClock(now func() time.Time) { g.now = now }

// Allow records one request for the caller and rejects it if the window is
// full. If the window store is unavailable the call is allowed and a warning
// logged; counter availability must never block the pipeline.
func (g *Governor) Allow(ctx context.Context, caller string) error {
	count, err := g.windows.Slide(ctx, caller, g.now(), g.cfg.Window)
	if err != nil {
		g.logger.Warn("rate limit store unavailable, failing open",
			"caller", caller,
			"error", err,
		)
		return nil
	}
	if count > g.cfg.MaxRequests {
		return &observe.RateLimitError{Limit: g.cfg.MaxRequests, Window: g.cfg.Window}
	}
	return nil
}

// MonthlySpent reports the caller's cost so far this month. The stored
// counter resets lazily: a record from a previous month reads as zero.
func (g *Governor) MonthlySpent(ctx context.Context, caller string) (float64, error) {
	m, err := g.monthly.Get(ctx, caller)
	if err != nil {
		return 0, err
	}
	if stale(m, g.now()) {
		return 0, nil
	}
	return m.CostUSD, nil
}

// Record accumulates tokens and cost for the caller, performing the lazy
// monthly reset when the stored month differs from the current one.
func (g *Governor) Record(ctx context.Context, caller string, tokens int, costUSD float64) error {
	now := g.now()
	m, err := g.monthly.Get(ctx, caller)
	if err != nil {
		return err
	}
	if stale(m, now) {
		m = Monthly{}
	}
	m.Tokens += tokens
	m.CostUSD += costUSD
	m.Observations++
	m.Month = now.Month()
	m.Year = now.Year()
	return g.monthly.Put(ctx, caller, m)
}

func stale(m Monthly, now time.Time) bool {
	return m.Year != now.Year() || m.Month != now.Month()
}
