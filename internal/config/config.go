package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
)

// Config holds the application configuration.
type Config struct {
	Environment string
	DatabaseURL string
	ListenAddr  string
	RedisAddr   string

	MaxBodyBytes    int64
	RateLimitCap    int
	RateLimitRefill float64
}

// Load loads configuration from environment variables. Development
// environments may point DATABASE_URL at a sqlite file; production and
// staging must use Postgres and a shared Redis for rate limiting.
func Load() (*Config, error) {
	cfg := &Config{
		Environment:     os.Getenv("APP_ENV"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		ListenAddr:      getenv("LEDGER_ADDR", ":8080"),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		MaxBodyBytes:    int64(getenvInt("LEDGER_MAX_BODY_BYTES", 1<<20)),
		RateLimitCap:    getenvInt("LEDGER_RATE_LIMIT_CAPACITY", 20),
		RateLimitRefill: float64(getenvInt("LEDGER_RATE_LIMIT_REFILL_PER_SEC", 10)),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is complete for its environment.
func (c *Config) Validate() error {
	var missing []string

	if c.Environment == "" {
		missing = append(missing, "APP_ENV")
	}
	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	if len(missing) > 0 {
		return errors.New("missing required environment variables: " + strings.Join(missing, ", "))
	}

	if c.Environment == "production" || c.Environment == "staging" {
		if !c.UsePostgres() {
			return errors.New("DATABASE_URL must be a postgres:// URL in " + c.Environment)
		}
		if c.RedisAddr == "" {
			return errors.New("missing required environment variable for " + c.Environment + ": REDIS_ADDR")
		}
	}

	return nil
}

// UsePostgres reports whether DATABASE_URL selects the Postgres store;
// anything else is treated as a sqlite path.
func (c *Config) UsePostgres() bool {
	return strings.HasPrefix(c.DatabaseURL, "postgres://") ||
		strings.HasPrefix(c.DatabaseURL, "postgresql://")
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}
