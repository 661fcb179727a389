// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database (optional; assessment audit trail uses in-memory if not set)
	DatabaseURL string

	// Upstream data sources
	OnChainAPIURL  string // blockchain indexer base URL
	OffChainAPIURL string // project metadata API base URL
	RPCURL         string // chain RPC endpoint for contract verification (optional)
	ChainID        int64

	// Pipeline tuning
	CacheTTL     time.Duration
	CacheMaxSize int
	MaxRetries   int
	FetchTimeout time.Duration
	PrivacyMode  bool

	// Monitoring
	PollInterval     time.Duration
	BatchConcurrency int

	// Observability
	OTLPEndpoint string
	RateLimitRPM int
}

// Defaults mirroring the calibrated production settings.
const (
	DefaultPort             = "8080"
	DefaultEnv              = "development"
	DefaultLogLevel         = "info"
	DefaultChainID          = 1
	DefaultCacheTTL         = 5 * time.Minute
	DefaultCacheMaxSize     = 500
	DefaultMaxRetries       = 3
	DefaultFetchTimeout     = 8 * time.Second
	DefaultPollInterval     = time.Minute
	DefaultBatchConcurrency = 5
	DefaultRateLimitRPM     = 60
)

// Load reads configuration from environment variables.
// It loads .env file if present (for local development).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:             getEnv("PORT", DefaultPort),
		Env:              getEnv("ENV", DefaultEnv),
		LogLevel:         getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		OnChainAPIURL:    os.Getenv("ONCHAIN_API_URL"),
		OffChainAPIURL:   os.Getenv("OFFCHAIN_API_URL"),
		RPCURL:           os.Getenv("RPC_URL"), // Optional, disables contract verification if unset
		ChainID:          getEnvInt64("CHAIN_ID", DefaultChainID),
		CacheTTL:         getEnvDuration("CACHE_TTL", DefaultCacheTTL),
		CacheMaxSize:     int(getEnvInt64("CACHE_MAX_SIZE", DefaultCacheMaxSize)),
		MaxRetries:       int(getEnvInt64("MAX_RETRIES", DefaultMaxRetries)),
		FetchTimeout:     getEnvDuration("FETCH_TIMEOUT", DefaultFetchTimeout),
		PrivacyMode:      getEnvBool("PRIVACY_MODE", false),
		PollInterval:     getEnvDuration("POLL_INTERVAL", DefaultPollInterval),
		BatchConcurrency: int(getEnvInt64("BATCH_CONCURRENCY", DefaultBatchConcurrency)),
		OTLPEndpoint:     os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		RateLimitRPM:     int(getEnvInt64("RATE_LIMIT_RPM", DefaultRateLimitRPM)),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present and coherent.
func (c *Config) Validate() error {
	if c.OnChainAPIURL == "" {
		return fmt.Errorf("ONCHAIN_API_URL is required")
	}
	if c.OffChainAPIURL == "" {
		return fmt.Errorf("OFFCHAIN_API_URL is required")
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("MAX_RETRIES must be at least 1")
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("FETCH_TIMEOUT must be positive")
	}
	if c.PollInterval < time.Second {
		return fmt.Errorf("POLL_INTERVAL must be at least 1s")
	}
	if c.BatchConcurrency < 1 {
		return fmt.Errorf("BATCH_CONCURRENCY must be at least 1")
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
