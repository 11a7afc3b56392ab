// Package config loads engine configuration from the environment, with
// optional .env support for local development.
package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the engine's runtime settings.
type Config struct {
	Port        string
	DatabaseURL string
	RedisURL    string

	CacheTTL       time.Duration // auction read-through cache
	IdempotencyTTL time.Duration // client bid id reservations
	SweepInterval  time.Duration // expiry sweep period
	PruneInterval  time.Duration // hub hygiene sweep period
	SendTimeout    time.Duration // per-connection broadcast send bound
}

// Load reads configuration from the environment. Missing values get
// defaults; DATABASE_URL and REDIS_URL stay empty when unset, which the
// caller treats as "run without that backend".
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:           envOr("PORT", "8080"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisURL:       os.Getenv("REDIS_URL"),
		CacheTTL:       durationOr("CACHE_TTL", 30*time.Second),
		IdempotencyTTL: durationOr("IDEMPOTENCY_TTL", 24*time.Hour),
		SweepInterval:  durationOr("SWEEP_INTERVAL", 5*time.Second),
		PruneInterval:  durationOr("PRUNE_INTERVAL", time.Minute),
		SendTimeout:    durationOr("SEND_TIMEOUT", 5*time.Second),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationOr(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
