package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/verseworks/prosody/internal/anthropic"
	"github.com/verseworks/prosody/internal/api"
	"github.com/verseworks/prosody/internal/cache"
	"github.com/verseworks/prosody/internal/catalog"
	"github.com/verseworks/prosody/internal/config"
	"github.com/verseworks/prosody/internal/events"
	"github.com/verseworks/prosody/internal/guard"
	"github.com/verseworks/prosody/internal/pipeline"
	"github.com/verseworks/prosody/internal/rules"
	"github.com/verseworks/prosody/internal/selector"
	"github.com/verseworks/prosody/internal/store"
	"github.com/verseworks/prosody/internal/usage"
)

func main() {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	slog.Info("prosody starting", "port", cfg.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	if cfg.DatabaseURL == "" {
		slog.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	db, err := store.New(ctx, cfg.DatabaseURL, cfg.DocCeilingBytes)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.EnsureSchema(ctx); err != nil {
		slog.Error("failed to ensure schema", "error", err)
		os.Exit(1)
	}
	slog.Info("database connected")

	// Anthropic client
	if cfg.AnthropicAPIKey == "" {
		slog.Error("ANTHROPIC_API_KEY is required")
		os.Exit(1)
	}
	llm := anthropic.NewClient(cfg.AnthropicAPIKey)

	// Model catalog
	cat := catalog.Default()
	if cfg.CatalogPath != "" {
		cat, err = catalog.Load(cfg.CatalogPath)
		if err != nil {
			slog.Error("failed to load model catalog", "path", cfg.CatalogPath, "error", err)
			os.Exit(1)
		}
	}
	slog.Info("model catalog ready", "models", len(cat.Models), "default", cat.DefaultID)

	// Result cache
	lru := cache.NewLRU(cfg.CacheSize, time.Duration(cfg.CacheTTLSecs)*time.Second)

	// Usage governor, Postgres-backed
	gov := usage.NewGovernor(
		store.NewWindowStore(db.Pool()),
		store.NewMonthlyStore(db.Pool()),
		usage.Config{Window: time.Minute, MaxRequests: cfg.RateLimitPerMin},
		slog.Default(),
	)

	limits := guard.DefaultLimits()
	limits.CeilingBytes = cfg.DocCeilingBytes

	pipeCfg := pipeline.DefaultConfig()
	pipeCfg.MaxTextChars = cfg.MaxTextChars

	pipe := pipeline.New(
		llm,
		selector.New(cat, selector.DefaultThresholds(), slog.Default()),
		gov,
		guard.New(db, lru, limits, slog.Default()),
		lru,
		rules.NewDetector(),
		pipeCfg,
		slog.Default(),
	)

	// NATS (optional — without it observations simply emit no events)
	if cfg.NatsURL != "" {
		pub, err := events.NewPublisher(cfg.NatsURL, cfg.NatsToken, slog.Default())
		if err != nil {
			slog.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer pub.Close()
		pipe.SetPublisher(pub)
		slog.Info("NATS connected", "url", cfg.NatsURL)

		if err := pub.Publish("prosody.service.ready", map[string]any{
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"port":      cfg.Port,
		}); err != nil {
			slog.Warn("failed to publish readiness", "error", err)
		}
	} else {
		slog.Warn("NATS not configured, observation events disabled")
	}

	// HTTP API
	srv := api.NewServer(cfg.Port, pipe, slog.Default())
	go func() {
		if err := srv.Start(); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	slog.Info("prosody ready", "port", cfg.Port)

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	slog.Info("shutting down")
	cancel()
	slog.Info("prosody stopped")
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
