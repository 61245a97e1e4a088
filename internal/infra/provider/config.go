package provider

import (
	"fmt"
	"time"

	"scout-alerts/pkg/config"
)

// FetchConfig controls the shared HTTP fetcher used for provider APIs.
type FetchConfig struct {
	// Timeout is the maximum duration of one request. Provider calls are not
	// retried; a timeout fails the poll and the next cycle tries again.
	// Default: 10s
	Timeout time.Duration

	// MaxBodySize is the largest response accepted, enforced while reading.
	// Default: 10485760 (10MB)
	MaxBodySize int64

	// MaxRedirects is the maximum number of redirects followed.
	// Default: 5
	MaxRedirects int

	// DenyPrivateIPs rejects URLs and redirect targets resolving to private addresses.
	// Default: true
	DenyPrivateIPs bool

	// UserAgent is sent with every request.
	UserAgent string
}

// DefaultFetchConfig returns the default fetcher configuration.
//
// Example:
//
//	cfg := provider.DefaultFetchConfig()
//	cfg.Timeout = 5 * time.Second
//	fetcher := provider.NewHTTPFetcher(cfg)
func DefaultFetchConfig() FetchConfig {
	return FetchConfig{
		Timeout:        10 * time.Second,
		MaxBodySize:    10 * 1024 * 1024, // 10MB
		MaxRedirects:   5,
		DenyPrivateIPs: true,
		UserAgent:      "ScoutAlerts/1.0",
	}
}

// Validate checks that the configuration values are usable.
//
// Validation rules:
//   - Timeout: 1s-60s
//   - MaxBodySize: 1KB-100MB
//   - MaxRedirects: 0-10
func (c *FetchConfig) Validate() error {
	if c.Timeout < time.Second || c.Timeout > time.Minute {
		return fmt.Errorf("timeout must be between 1s and 1m, got %v", c.Timeout)
	}

	minBodySize := int64(1024)              // 1KB
	maxBodySize := int64(100 * 1024 * 1024) // 100MB
	if c.MaxBodySize < minBodySize || c.MaxBodySize > maxBodySize {
		return fmt.Errorf("max body size must be between %d and %d bytes, got %d", minBodySize, maxBodySize, c.MaxBodySize)
	}

	if c.MaxRedirects < 0 || c.MaxRedirects > 10 {
		return fmt.Errorf("max redirects must be between 0 and 10, got %d", c.MaxRedirects)
	}

	return nil
}

// LoadFetchConfigFromEnv loads the fetcher configuration from the environment,
// keeping defaults for unset or unparsable values, and validates the result.
//
// Environment variables:
//   - PROVIDER_FETCH_TIMEOUT: duration, e.g. "10s"
//   - PROVIDER_FETCH_MAX_BODY_SIZE: bytes
//   - PROVIDER_FETCH_MAX_REDIRECTS: integer
//   - PROVIDER_FETCH_DENY_PRIVATE_IPS: "true" or "false"
//   - PROVIDER_FETCH_USER_AGENT: string
func LoadFetchConfigFromEnv() (FetchConfig, error) {
	cfg := DefaultFetchConfig()

	cfg.Timeout = config.GetEnvDuration("PROVIDER_FETCH_TIMEOUT", cfg.Timeout)
	cfg.MaxBodySize = int64(config.GetEnvInt("PROVIDER_FETCH_MAX_BODY_SIZE", int(cfg.MaxBodySize)))
	cfg.MaxRedirects = config.GetEnvInt("PROVIDER_FETCH_MAX_REDIRECTS", cfg.MaxRedirects)
	cfg.DenyPrivateIPs = config.GetEnvBool("PROVIDER_FETCH_DENY_PRIVATE_IPS", cfg.DenyPrivateIPs)
	cfg.UserAgent = config.GetEnvString("PROVIDER_FETCH_USER_AGENT", cfg.UserAgent)

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}
