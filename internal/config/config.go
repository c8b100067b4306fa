package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	DatabaseURL string
	HTTPAddr    string
	LogLevel    string
	LogFormat   string

	ShutdownTimeout time.Duration

	// Vendor dispatch feed.
	FeedPassword    string
	FeedPrimaryURL  string
	FeedFallbackURL string
	FeedTimeout     time.Duration

	// Public weather-alert API.
	NWSBaseURL   string
	NWSUserAgent string

	// Optional sync-result event publishing (disabled when no brokers).
	KafkaBrokers      []string
	KafkaResultsTopic string

	// Optional distributed fetch lock (process-local when unset).
	RedisAddr string

	// Scheduler cadences.
	FastInterval   time.Duration
	MediumInterval time.Duration
	DailyInterval  time.Duration

	// Sync bounds.
	RecencyHorizon    time.Duration
	MaxRecordsPerTick int
	TenantBatchSize   int
	MinFetchInterval  time.Duration
	StaleAfter        time.Duration

	// Weather posting.
	PostThreshold int

	// Retention windows.
	IncidentRetention  time.Duration
	AlertRetention     time.Duration
	ArchiveClosedAfter time.Duration

	// Social publisher (posting disabled when token unset).
	FacebookPageID      string
	FacebookAccessToken string
}

// Load reads configuration from environment variables, applying defaults
// where unset.
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		HTTPAddr:    envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:    envOrDefault("LOG_LEVEL", "info"),
		LogFormat:   envOrDefault("LOG_FORMAT", "json"),

		FeedPassword:    os.Getenv("FEED_PASSWORD"),
		FeedPrimaryURL:  os.Getenv("FEED_PRIMARY_URL"),
		FeedFallbackURL: os.Getenv("FEED_FALLBACK_URL"),

		NWSBaseURL:   envOrDefault("NWS_BASE_URL", "https://api.weather.gov"),
		NWSUserAgent: envOrDefault("NWS_USER_AGENT", "vanguard-sync (ops@vanguard.example)"),

		KafkaBrokers:      parseBrokers(os.Getenv("KAFKA_BROKERS")),
		KafkaResultsTopic: envOrDefault("KAFKA_RESULTS_TOPIC", "sync-results"),

		RedisAddr: os.Getenv("REDIS_ADDR"),

		FacebookPageID:      os.Getenv("FACEBOOK_PAGE_ID"),
		FacebookAccessToken: os.Getenv("FACEBOOK_ACCESS_TOKEN"),
	}

	var err error
	if cfg.ShutdownTimeout, err = durationEnv("SHUTDOWN_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.FeedTimeout, err = durationEnv("FEED_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.FastInterval, err = durationEnv("FAST_INTERVAL", 2*time.Minute); err != nil {
		return nil, err
	}
	if cfg.MediumInterval, err = durationEnv("MEDIUM_INTERVAL", 15*time.Minute); err != nil {
		return nil, err
	}
	if cfg.DailyInterval, err = durationEnv("DAILY_INTERVAL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.RecencyHorizon, err = durationEnv("RECENCY_HORIZON", 6*time.Hour); err != nil {
		return nil, err
	}
	if cfg.MinFetchInterval, err = durationEnv("MIN_FETCH_INTERVAL", 15*time.Second); err != nil {
		return nil, err
	}
	if cfg.StaleAfter, err = durationEnv("STALE_AFTER", 2*time.Hour); err != nil {
		return nil, err
	}
	if cfg.IncidentRetention, err = durationEnv("INCIDENT_RETENTION", 30*24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.AlertRetention, err = durationEnv("ALERT_RETENTION", 7*24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.ArchiveClosedAfter, err = durationEnv("ARCHIVE_CLOSED_AFTER", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.MaxRecordsPerTick, err = intEnv("MAX_RECORDS_PER_TICK", 200, 1, 5000); err != nil {
		return nil, err
	}
	if cfg.TenantBatchSize, err = intEnv("TENANT_BATCH_SIZE", 5, 1, 100); err != nil {
		return nil, err
	}
	if cfg.PostThreshold, err = intEnv("POST_THRESHOLD", 55, 1, 100); err != nil {
		return nil, err
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.FeedPassword == "" {
		return nil, errors.New("FEED_PASSWORD is required")
	}
	if cfg.FeedPrimaryURL == "" {
		return nil, errors.New("FEED_PRIMARY_URL is required")
	}

	return cfg, nil
}

// EventsEnabled reports whether sync-result events should be published.
func (c *Config) EventsEnabled() bool { return len(c.KafkaBrokers) > 0 }

// PostingEnabled reports whether the social publisher is configured.
func (c *Config) PostingEnabled() bool { return c.FacebookAccessToken != "" }

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseBrokers(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, raw)
	}
	return d, nil
}

func intEnv(key string, fallback, min, max int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < min || n > max {
		return 0, fmt.Errorf("invalid %s: %q (want %d-%d)", key, raw, min, max)
	}
	return n, nil
}
