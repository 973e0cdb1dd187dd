package config

import (
	"os"
	"strconv"
)

type Config struct {
	Port            int
	DatabaseURL     string
	AnthropicAPIKey string
	NatsURL         string
	NatsToken       string
	LogLevel        string
	CatalogPath     string
	CacheSize       int
	CacheTTLSecs    int
	RateLimitPerMin int
	DocCeilingBytes int
	MaxTextChars    int
}

func Load() Config {
	return Config{
		Port:            envInt("PROSODY_PORT", 8760),
		DatabaseURL:     envStr("DATABASE_URL", ""),
		AnthropicAPIKey: envStr("ANTHROPIC_API_KEY", ""),
		NatsURL:         envStr("NATS_URL", ""),
		NatsToken:       envStr("NATS_TOKEN", ""),
		LogLevel:        envStr("LOG_LEVEL", "info"),
		CatalogPath:     envStr("PROSODY_CATALOG", ""),
		CacheSize:       envInt("PROSODY_CACHE_SIZE", 1024),
		CacheTTLSecs:    envInt("PROSODY_CACHE_TTL", 300),
		RateLimitPerMin: envInt("PROSODY_RATE_LIMIT", 10),
		DocCeilingBytes: envInt("PROSODY_DOC_CEILING", 1<<20),
		MaxTextChars:    envInt("PROSODY_MAX_TEXT", 50000),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
