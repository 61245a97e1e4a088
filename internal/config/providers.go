// Package config loads the provider registry settings from YAML.
package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default provider endpoints.
const (
	DefaultCongressEndpoint      = "https://congress.api.sunlightfoundation.com"
	DefaultCourtListenerEndpoint = "https://www.courtlistener.com/api/rest/v1"
)

// ProvidersConfig describes the external providers the registry is built from.
// Secrets are never stored in the file; the *_env fields name the
// environment variables that hold them.
type ProvidersConfig struct {
	Providers struct {
		Congress struct {
			Endpoint  string `yaml:"endpoint"`
			APIKeyEnv string `yaml:"api_key_env"`
		} `yaml:"congress"`
		CourtListener struct {
			Endpoint    string `yaml:"endpoint"`
			UsernameEnv string `yaml:"username_env"`
			PasswordEnv string `yaml:"password_env"`
		} `yaml:"courtlistener"`
		Feed struct {
			Timeout     time.Duration `yaml:"timeout"`
			MaxBodySize int64         `yaml:"max_body_size"`
		} `yaml:"feed"`
	} `yaml:"providers"`
	// Disabled lists subscription types left out of the registry.
	Disabled []string `yaml:"disabled"`
}

// DefaultProvidersConfig returns the configuration used when no file is given.
func DefaultProvidersConfig() *ProvidersConfig {
	cfg := &ProvidersConfig{}
	cfg.Providers.Congress.Endpoint = DefaultCongressEndpoint
	cfg.Providers.Congress.APIKeyEnv = "CONGRESS_API_KEY"
	cfg.Providers.CourtListener.Endpoint = DefaultCourtListenerEndpoint
	cfg.Providers.CourtListener.UsernameEnv = "COURTLISTENER_USERNAME"
	cfg.Providers.CourtListener.PasswordEnv = "COURTLISTENER_PASSWORD"
	cfg.Providers.Feed.Timeout = 5 * time.Second
	cfg.Providers.Feed.MaxBodySize = 1024 * 1024
	return cfg
}

// LoadProvidersConfig loads provider configuration from a YAML file.
// Missing fields keep their defaults. An empty path returns the defaults.
func LoadProvidersConfig(path string) (*ProvidersConfig, error) {
	cfg := DefaultProvidersConfig()
	if path == "" {
		return cfg, nil
	}

	// #nosec G304 -- path comes from PROVIDERS_CONFIG, set by the operator
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := validateProvidersConfig(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func validateProvidersConfig(cfg *ProvidersConfig) error {
	for name, endpoint := range map[string]string{
		"congress":      cfg.Providers.Congress.Endpoint,
		"courtlistener": cfg.Providers.CourtListener.Endpoint,
	} {
		u, err := url.Parse(endpoint)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%s endpoint must be an absolute http(s) URL, got %q", name, endpoint)
		}
	}

	if cfg.Providers.Feed.Timeout <= 0 {
		return fmt.Errorf("feed timeout must be positive")
	}
	if cfg.Providers.Feed.MaxBodySize < 1024 {
		return fmt.Errorf("feed max_body_size must be at least 1024 bytes")
	}

	return nil
}

// CongressAPIKey returns the Congress API key from the configured environment variable.
func (c *ProvidersConfig) CongressAPIKey() string {
	return os.Getenv(c.Providers.Congress.APIKeyEnv)
}

// CourtListenerCredentials returns the basic auth credentials for CourtListener.
func (c *ProvidersConfig) CourtListenerCredentials() (username, password string) {
	return os.Getenv(c.Providers.CourtListener.UsernameEnv), os.Getenv(c.Providers.CourtListener.PasswordEnv)
}

// IsDisabled reports whether subscriptionType was switched off.
func (c *ProvidersConfig) IsDisabled(subscriptionType string) bool {
	for _, d := range c.Disabled {
		if d == subscriptionType {
			return true
		}
	}
	return false
}
