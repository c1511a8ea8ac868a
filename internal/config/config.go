package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the matchscope server.
type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	NATS         NATSConfig
	Engine       EngineConfig
	Fixtures     FixturesConfig
	Jobs         JobsConfig
	Verification VerificationConfig
}

type ServerConfig struct {
	Port               int
	Env                string
	RateLimitPerMinute int
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

// NATSConfig is optional; an empty URL disables event publishing.
type NATSConfig struct {
	URL string
}

type EngineConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

type FixturesConfig struct {
	BaseURL          string
	APIKey           string
	Timeout          time.Duration
	FetchConcurrency int
}

type JobsConfig struct {
	PollInterval     time.Duration
	SettleDelay      time.Duration
	BatchConcurrency int
	DuplicatePolicy  string
}

type VerificationConfig struct {
	Pacing               time.Duration
	ChunkSize            int
	PostAnalysisLookback time.Duration
	Cron                 string
	CronWindow           time.Duration
}

// Duplicate submission policies.
const (
	PolicyAllowDuplicate = "allow-duplicate"
	PolicyRejectIfActive = "reject-if-active"
)

var validPolicies = map[string]bool{
	PolicyAllowDuplicate: true,
	PolicyRejectIfActive: true,
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:               envInt("MATCHSCOPE_PORT", 8080),
			Env:                envString("MATCHSCOPE_ENV", "development"),
			RateLimitPerMinute: envInt("RATE_LIMIT_PER_MINUTE", 60),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		NATS: NATSConfig{
			URL: os.Getenv("NATS_URL"),
		},
		Engine: EngineConfig{
			BaseURL: strings.TrimRight(os.Getenv("ENGINE_BASE_URL"), "/"),
			APIKey:  os.Getenv("ENGINE_API_KEY"),
			Timeout: envDuration("ENGINE_TIMEOUT", 30*time.Second),
		},
		Fixtures: FixturesConfig{
			BaseURL:          strings.TrimRight(os.Getenv("FIXTURES_BASE_URL"), "/"),
			APIKey:           os.Getenv("FIXTURES_API_KEY"),
			Timeout:          envDuration("FIXTURES_TIMEOUT", 15*time.Second),
			FetchConcurrency: envInt("FIXTURES_FETCH_CONCURRENCY", 2),
		},
		Jobs: JobsConfig{
			PollInterval:     envDuration("POLL_INTERVAL", 2*time.Second),
			SettleDelay:      envDuration("SETTLE_DELAY", 1500*time.Millisecond),
			BatchConcurrency: envInt("BATCH_CONCURRENCY", 1),
			DuplicatePolicy:  envString("DUPLICATE_POLICY", PolicyAllowDuplicate),
		},
		Verification: VerificationConfig{
			Pacing:               envDuration("VERIFY_PACING", 800*time.Millisecond),
			ChunkSize:            envInt("VERIFY_CHUNK_SIZE", 1),
			PostAnalysisLookback: envDays("POST_ANALYSIS_LOOKBACK_DAYS", 7),
			Cron:                 os.Getenv("VERIFY_CRON"),
			CronWindow:           envDays("VERIFY_CRON_WINDOW_DAYS", 3),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Engine.BaseURL == "" {
		return fmt.Errorf("ENGINE_BASE_URL is required")
	}
	if !isHTTPURL(c.Engine.BaseURL) {
		return fmt.Errorf("ENGINE_BASE_URL must start with http:// or https://, got %q", c.Engine.BaseURL)
	}

	if c.Fixtures.BaseURL == "" {
		return fmt.Errorf("FIXTURES_BASE_URL is required")
	}
	if !isHTTPURL(c.Fixtures.BaseURL) {
		return fmt.Errorf("FIXTURES_BASE_URL must start with http:// or https://, got %q", c.Fixtures.BaseURL)
	}

	if c.NATS.URL != "" && !strings.HasPrefix(c.NATS.URL, "nats://") && !strings.HasPrefix(c.NATS.URL, "tls://") {
		return fmt.Errorf("NATS_URL must start with nats:// or tls://, got %q", c.NATS.URL)
	}

	if c.Jobs.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive")
	}
	if c.Jobs.BatchConcurrency < 1 {
		return fmt.Errorf("BATCH_CONCURRENCY must be at least 1, got %d", c.Jobs.BatchConcurrency)
	}
	if !validPolicies[c.Jobs.DuplicatePolicy] {
		return fmt.Errorf("DUPLICATE_POLICY must be one of allow-duplicate, reject-if-active; got %q", c.Jobs.DuplicatePolicy)
	}

	if c.Verification.ChunkSize < 1 {
		return fmt.Errorf("VERIFY_CHUNK_SIZE must be at least 1, got %d", c.Verification.ChunkSize)
	}
	if c.Verification.Pacing < 0 {
		return fmt.Errorf("VERIFY_PACING must not be negative")
	}
	if c.Fixtures.FetchConcurrency < 1 {
		return fmt.Errorf("FIXTURES_FETCH_CONCURRENCY must be at least 1, got %d", c.Fixtures.FetchConcurrency)
	}

	return nil
}

func isHTTPURL(u string) bool {
	return strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://")
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDays(key string, defaultDays int) time.Duration {
	return time.Duration(envInt(key, defaultDays)) * 24 * time.Hour
}
