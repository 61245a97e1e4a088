package worker

import (
	"fmt"
	"log/slog"
	"time"

	"scout-alerts/internal/pkg/config"
)

// Job names used for schedules, metrics labels and logs.
const (
	JobCheck            = "check"
	JobDeliverImmediate = "deliver_immediate"
	JobDeliverDaily     = "deliver_daily"
)

// WorkerConfig holds the configuration for the background worker: one cron
// schedule per job, the timezone they run in, per-job timeouts, and the
// operator report fan-out.
//
// Configuration sources:
//   - Environment variables (loaded via LoadConfigFromEnv)
//   - Default values (provided by DefaultConfig)
//
// Example usage:
//
//	cfg, _ := LoadConfigFromEnv(logger, metrics)
//	c := cron.New(cron.WithLocation(cfg.Location()))
//	c.AddFunc(cfg.CheckSchedule, runCheck)
type WorkerConfig struct {
	// CheckSchedule runs the check cycle over every subscription.
	// Default: "*/15 * * * *"
	CheckSchedule string

	// DeliverSchedule runs immediate email and SMS dispatch.
	// Default: "*/5 * * * *"
	DeliverSchedule string

	// DigestSchedule runs the daily email digest.
	// Default: "0 8 * * *"
	DigestSchedule string

	// Timezone is the IANA timezone name for all schedules.
	// Default: "America/New_York"
	Timezone string

	// ReportMaxConcurrent bounds in-flight operator report posts.
	// Range: 1-50
	// Default: 10
	ReportMaxConcurrent int

	// CheckTimeout bounds one check cycle.
	// Range: 1m-4h
	// Default: 30m
	CheckTimeout time.Duration

	// DeliverTimeout bounds one dispatch run.
	// Range: 1m-4h
	// Default: 15m
	DeliverTimeout time.Duration

	// HealthPort is the port of the health check server.
	// Range: 1024-65535
	// Default: 9091
	HealthPort int
}

// DefaultConfig returns a WorkerConfig with production defaults.
func DefaultConfig() WorkerConfig {
	return WorkerConfig{
		CheckSchedule:       "*/15 * * * *",
		DeliverSchedule:     "*/5 * * * *",
		DigestSchedule:      "0 8 * * *",
		Timezone:            "America/New_York",
		ReportMaxConcurrent: 10,
		CheckTimeout:        30 * time.Minute,
		DeliverTimeout:      15 * time.Minute,
		HealthPort:          9091,
	}
}

// Location returns the configured timezone, or UTC when it cannot be loaded.
func (c *WorkerConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Schedules maps job names to their cron expressions.
func (c *WorkerConfig) Schedules() map[string]string {
	return map[string]string{
		JobCheck:            c.CheckSchedule,
		JobDeliverImmediate: c.DeliverSchedule,
		JobDeliverDaily:     c.DigestSchedule,
	}
}

// Validate checks every field and returns all failures together.
//
// Example:
//
//	cfg := DefaultConfig()
//	cfg.CheckSchedule = "invalid"
//	cfg.HealthPort = 80
//	err := cfg.Validate()
//	// err mentions both the check schedule and the health port
func (c *WorkerConfig) Validate() error {
	var errs []error

	if err := config.ValidateCronSchedule(c.CheckSchedule); err != nil {
		errs = append(errs, fmt.Errorf("check schedule: %w", err))
	}
	if err := config.ValidateCronSchedule(c.DeliverSchedule); err != nil {
		errs = append(errs, fmt.Errorf("deliver schedule: %w", err))
	}
	if err := config.ValidateCronSchedule(c.DigestSchedule); err != nil {
		errs = append(errs, fmt.Errorf("digest schedule: %w", err))
	}
	if err := config.ValidateTimezone(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("timezone: %w", err))
	}
	if err := config.ValidateIntRange(c.ReportMaxConcurrent, 1, 50); err != nil {
		errs = append(errs, fmt.Errorf("report max concurrent: %w", err))
	}
	if err := config.ValidatePositiveDuration(c.CheckTimeout); err != nil {
		errs = append(errs, fmt.Errorf("check timeout: %w", err))
	}
	if err := config.ValidatePositiveDuration(c.DeliverTimeout); err != nil {
		errs = append(errs, fmt.Errorf("deliver timeout: %w", err))
	}
	if err := config.ValidateIntRange(c.HealthPort, 1024, 65535); err != nil {
		errs = append(errs, fmt.Errorf("health port: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed: %v", errs)
	}
	return nil
}

// loader applies environment values onto a config, falling back to the
// default for each invalid value and recording the fallback.
type loader struct {
	logger   *slog.Logger
	metrics  *WorkerMetrics
	fallback bool
}

func (l *loader) apply(field, metricField string, result config.ConfigLoadResult) {
	if !result.FallbackApplied {
		return
	}
	l.fallback = true
	l.metrics.RecordValidationError(metricField)
	l.metrics.RecordFallback(metricField, "default")
	for _, warning := range result.Warnings {
		l.logger.Warn("Configuration fallback applied",
			slog.String("field", field),
			slog.String("warning", warning))
	}
}

func (l *loader) cron(field, metricField, envKey string, dst *string) {
	result := config.LoadEnvWithFallback(envKey, *dst, config.ValidateCronSchedule)
	*dst = result.Value.(string)
	l.apply(field, metricField, result)
}

func (l *loader) duration(field, metricField, envKey string, dst *time.Duration, min, max time.Duration) {
	result := config.LoadEnvDuration(envKey, *dst, func(d time.Duration) error {
		return config.ValidateDuration(d, min, max)
	})
	*dst = result.Value.(time.Duration)
	l.apply(field, metricField, result)
}

func (l *loader) intRange(field, metricField, envKey string, dst *int, min, max int) {
	result := config.LoadEnvInt(envKey, *dst, func(v int) error {
		return config.ValidateIntRange(v, min, max)
	})
	*dst = result.Value.(int)
	l.apply(field, metricField, result)
}

// LoadConfigFromEnv loads the worker configuration with the fail-open
// strategy: each invalid value is replaced by its default, logged and
// counted. It never returns an error.
//
// Environment variables:
//   - CHECK_SCHEDULE: cron expression (default: "*/15 * * * *")
//   - DELIVER_SCHEDULE: cron expression (default: "*/5 * * * *")
//   - DIGEST_SCHEDULE: cron expression (default: "0 8 * * *")
//   - WORKER_TIMEZONE: IANA timezone name (default: "America/New_York")
//   - REPORT_MAX_CONCURRENT: integer 1-50 (default: 10)
//   - CHECK_TIMEOUT: duration 1m-4h (default: 30m)
//   - DELIVER_TIMEOUT: duration 1m-4h (default: 15m)
//   - WORKER_HEALTH_PORT: integer 1024-65535 (default: 9091)
func LoadConfigFromEnv(logger *slog.Logger, metrics *WorkerMetrics) (*WorkerConfig, error) {
	cfg := DefaultConfig()
	l := &loader{logger: logger, metrics: metrics}

	l.cron("CheckSchedule", "check_schedule", "CHECK_SCHEDULE", &cfg.CheckSchedule)
	l.cron("DeliverSchedule", "deliver_schedule", "DELIVER_SCHEDULE", &cfg.DeliverSchedule)
	l.cron("DigestSchedule", "digest_schedule", "DIGEST_SCHEDULE", &cfg.DigestSchedule)

	result := config.LoadEnvWithFallback("WORKER_TIMEZONE", cfg.Timezone, config.ValidateTimezone)
	cfg.Timezone = result.Value.(string)
	l.apply("Timezone", "timezone", result)

	l.intRange("ReportMaxConcurrent", "report_max_concurrent", "REPORT_MAX_CONCURRENT", &cfg.ReportMaxConcurrent, 1, 50)
	l.duration("CheckTimeout", "check_timeout", "CHECK_TIMEOUT", &cfg.CheckTimeout, time.Minute, 4*time.Hour)
	l.duration("DeliverTimeout", "deliver_timeout", "DELIVER_TIMEOUT", &cfg.DeliverTimeout, time.Minute, 4*time.Hour)
	l.intRange("HealthPort", "health_port", "WORKER_HEALTH_PORT", &cfg.HealthPort, 1024, 65535)

	metrics.SetFallbackActive("", l.fallback)
	metrics.RecordLoadTimestamp()

	return &cfg, nil
}
