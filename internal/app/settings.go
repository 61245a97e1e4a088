// Package app builds the object graph shared by the worker and the one-shot
// commands: storage, cache, locks, providers, transports, operator reports,
// the poller and the dispatcher.
package app

import (
	"fmt"
	"strings"
	"time"

	"scout-alerts/internal/usecase/poll"
	"scout-alerts/pkg/config"
)

// Storage backends.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Cache backends.
const (
	CachePostgres = "postgres"
	CacheBadger   = "badger"
	CacheNone     = "none"
)

// Settings are the process-wide switches read once at startup.
type Settings struct {
	// Storage selects the repositories: postgres (DATABASE_URL) or memory.
	Storage string
	// Cache selects the provider response cache backend.
	Cache string
	// BadgerDir is the badger data directory; empty keeps the cache in memory.
	BadgerDir string
	// RedisURL enables the shared Redis lock; empty uses an in-process lock.
	RedisURL string
	// LockTTL bounds how long a crashed worker can hold a Redis lock.
	LockTTL time.Duration
	// ProvidersConfig is the path of the providers YAML file.
	ProvidersConfig string
	// BaseURL prefixes links in rendered messages.
	BaseURL string
	// DryRun renders and logs deliveries without sending them.
	DryRun bool
	// ReportMinStatus is the least severe report posted to Slack/Discord.
	ReportMinStatus string
	// ReportMaxConcurrent bounds in-flight report posts.
	ReportMaxConcurrent int
	Poll                poll.Config
}

// LoadSettings reads Settings from the environment.
//
// Environment variables:
//   - STORAGE: postgres or memory (default: postgres)
//   - CACHE_BACKEND: postgres, badger or none (default: postgres, badger with memory storage)
//   - BADGER_DIR, REDIS_URL, LOCK_TTL (default: 10m), PROVIDERS_CONFIG
//   - BASE_URL (default: https://scout.sunlightfoundation.com), DRY_RUN
//   - REPORT_MIN_STATUS (default: WARNING), REPORT_MAX_CONCURRENT (default: 10)
//   - NO_CACHE, BACKFILL_WINDOW (default: 720h), POLL_PARALLELISM (default: 4)
func LoadSettings() (Settings, error) {
	s := Settings{
		Storage:             strings.ToLower(config.GetEnvString("STORAGE", StoragePostgres)),
		BadgerDir:           config.GetEnvString("BADGER_DIR", ""),
		RedisURL:            config.GetEnvString("REDIS_URL", ""),
		LockTTL:             config.GetEnvDuration("LOCK_TTL", 10*time.Minute),
		ProvidersConfig:     config.GetEnvString("PROVIDERS_CONFIG", ""),
		BaseURL:             strings.TrimRight(config.GetEnvString("BASE_URL", "https://scout.sunlightfoundation.com"), "/"),
		DryRun:              config.GetEnvBool("DRY_RUN", false),
		ReportMinStatus:     strings.ToUpper(config.GetEnvString("REPORT_MIN_STATUS", "WARNING")),
		ReportMaxConcurrent: config.GetEnvInt("REPORT_MAX_CONCURRENT", 10),
		Poll: poll.Config{
			NoCache:        config.GetEnvBool("NO_CACHE", false),
			BackfillWindow: config.GetEnvDuration("BACKFILL_WINDOW", poll.DefaultBackfillWindow),
			Parallelism:    config.GetEnvInt("POLL_PARALLELISM", poll.DefaultConfig().Parallelism),
		},
	}

	defaultCache := CachePostgres
	if s.Storage == StorageMemory {
		defaultCache = CacheBadger
	}
	s.Cache = strings.ToLower(config.GetEnvString("CACHE_BACKEND", defaultCache))

	if err := s.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

// Validate rejects unknown backends and unusable limits.
func (s Settings) Validate() error {
	switch s.Storage {
	case StoragePostgres, StorageMemory:
	default:
		return fmt.Errorf("unknown STORAGE %q", s.Storage)
	}
	switch s.Cache {
	case CachePostgres:
		if s.Storage != StoragePostgres {
			return fmt.Errorf("CACHE_BACKEND=postgres requires STORAGE=postgres")
		}
	case CacheBadger, CacheNone:
	default:
		return fmt.Errorf("unknown CACHE_BACKEND %q", s.Cache)
	}
	if err := config.ValidatePositiveDuration(s.Poll.BackfillWindow); err != nil {
		return fmt.Errorf("BACKFILL_WINDOW: %w", err)
	}
	if s.Poll.Parallelism < 1 || s.Poll.Parallelism > 64 {
		return fmt.Errorf("POLL_PARALLELISM must be between 1 and 64, got %d", s.Poll.Parallelism)
	}
	return nil
}
