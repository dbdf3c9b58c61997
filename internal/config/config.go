// Package config handles application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Reputation cache backends.
const (
	CacheSQLite = "sqlite"
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// Default upstream endpoints.
const (
	DefaultCASAPIURL    = "https://api.cas.chat/check"
	DefaultCASExportURL = "https://api.cas.chat/export.csv"
	DefaultLolsURL      = "https://lols.bot/scammers.txt"
)

// Config holds the application configuration.
type Config struct {
	TelegramBotToken string
	DatabasePath     string
	LogLevel         string
	BannedLogPath    string

	RecheckInterval      time.Duration
	UpdateExportInterval time.Duration
	UpdateLolsInterval   time.Duration

	MessageCacheLimit int
	SeenTTL           time.Duration
	HTTPTimeout       time.Duration

	CASCacheTTL  time.Duration
	CASCooldown  time.Duration
	CASAPIURL    string
	CASExportURL string
	LolsURL      string

	ReputationCache string
	RedisURL        string
	MetricsListen   string
}

// LoadDotEnv loads variables from a .env file in the working directory, if present.
// Variables already set in the environment take precedence.
func LoadDotEnv() error {
	err := godotenv.Load()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}

	cfg := &Config{
		TelegramBotToken: token,
		DatabasePath:     envOr("DATABASE_PATH", "./data/bot.db"),
		LogLevel:         envOr("LOG_LEVEL", "info"),
		BannedLogPath:    envOr("BANNED_LOG_PATH", "./data/banned.txt"),
		CASAPIURL:        envOr("CAS_API_URL", DefaultCASAPIURL),
		CASExportURL:     envOr("CAS_EXPORT_URL", DefaultCASExportURL),
		LolsURL:          envOr("LOLS_URL", DefaultLolsURL),
		ReputationCache:  strings.ToLower(envOr("REPUTATION_CACHE", CacheSQLite)),
		RedisURL:         os.Getenv("REDIS_URL"),
		MetricsListen:    os.Getenv("METRICS_LISTEN"),
	}

	durations := []struct {
		key  string
		def  string
		dest *time.Duration
	}{
		{"RECHECK_INTERVAL", "15m", &cfg.RecheckInterval},
		{"UPDATE_EXPORT_INTERVAL", "30m", &cfg.UpdateExportInterval},
		{"UPDATE_LOLS_INTERVAL", "30m", &cfg.UpdateLolsInterval},
		{"CAS_CACHE_TTL", "1h", &cfg.CASCacheTTL},
		{"CAS_COOLDOWN", "5m", &cfg.CASCooldown},
	}
	for _, d := range durations {
		v, err := ParseDuration(envOr(d.key, d.def))
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", d.key, err)
		}
		*d.dest = v
	}

	limit, err := positiveInt("MESSAGE_CACHE_LIMIT", 50)
	if err != nil {
		return nil, err
	}
	cfg.MessageCacheLimit = limit

	ttlDays, err := positiveInt("SEEN_TTL_DAYS", 7)
	if err != nil {
		return nil, err
	}
	cfg.SeenTTL = time.Duration(ttlDays) * 24 * time.Hour

	timeoutSec, err := positiveInt("HTTP_TIMEOUT_SECONDS", 7)
	if err != nil {
		return nil, err
	}
	cfg.HTTPTimeout = time.Duration(timeoutSec) * time.Second

	switch cfg.ReputationCache {
	case CacheSQLite, CacheMemory:
	case CacheRedis:
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("REDIS_URL is required when REPUTATION_CACHE=redis")
		}
	default:
		return nil, fmt.Errorf("invalid REPUTATION_CACHE %q, use: sqlite, memory, redis", cfg.ReputationCache)
	}

	return cfg, nil
}

// SourceRefreshInterval is the interval of the combined denylist refresh task.
func (c *Config) SourceRefreshInterval() time.Duration {
	return min(c.UpdateExportInterval, c.UpdateLolsInterval)
}

// ParseDuration parses durations of the form "45s", "30m", "1h" or "7d".
func ParseDuration(s string) (time.Duration, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}

	unit := s[len(s)-1]
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid duration format: %s", s)
	}

	switch unit {
	case 's':
		return time.Duration(n) * time.Second, nil
	case 'm':
		return time.Duration(n) * time.Minute, nil
	case 'h':
		return time.Duration(n) * time.Hour, nil
	case 'd':
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return 0, fmt.Errorf("invalid duration format: %s", s)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func positiveInt(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be a positive integer", key, raw)
	}
	return v, nil
}
