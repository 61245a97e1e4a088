package report

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"scout-alerts/internal/domain/entity"
	"scout-alerts/internal/repository"
	"scout-alerts/internal/resilience/circuitbreaker"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const requestIDKey contextKey = "request_id"

const (
	workerPoolTimeout = 5 * time.Second  // Timeout for acquiring worker slot
	reportTimeout     = 30 * time.Second // Timeout for one channel post
	persistTimeout    = 5 * time.Second  // Timeout for writing the audit row
)

// statusRank orders report statuses by severity.
var statusRank = map[string]int{
	entity.ReportNote:    0,
	entity.ReportSuccess: 1,
	entity.ReportWarning: 2,
	entity.ReportFailure: 3,
}

// Reporter is the operator channel as seen by the pipeline.
// Report is fire-and-forget: it never blocks on the network and never fails.
type Reporter interface {
	Report(ctx context.Context, report *entity.Report)
}

// Service is the Reporter with lifecycle and health hooks for the worker.
type Service interface {
	Reporter

	// GetChannelHealth returns the health status of all report channels.
	GetChannelHealth() []ChannelHealthStatus

	// Shutdown waits for in-flight reports to complete or the context to expire.
	Shutdown(ctx context.Context) error
}

// ChannelHealthStatus represents the health status of a report channel.
type ChannelHealthStatus struct {
	Name               string
	Enabled            bool
	CircuitBreakerOpen bool
}

// Config tunes the report service.
type Config struct {
	// MaxConcurrent bounds in-flight channel posts.
	MaxConcurrent int
	// MinStatus is the least severe status posted to channels.
	// Less severe reports are only logged and persisted.
	MinStatus string
}

type service struct {
	channels       []Channel
	repo           repository.ReportRepository
	minRank        int
	workerPool     chan struct{}
	breakers       *circuitbreaker.Set
	wg             sync.WaitGroup
	shutdownCtx    context.Context
	shutdownCancel context.CancelFunc
}

// NewService creates a report service.
//
// Parameters:
//   - channels: report channels (Slack, Discord, ...)
//   - repo: audit store for reports (may be nil)
//   - cfg: concurrency and severity threshold
//
// Returns:
//   - Service: Configured report service
func NewService(channels []Channel, repo repository.ReportRepository, cfg Config) Service {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 10
	}
	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())

	svc := &service{
		channels:       channels,
		repo:           repo,
		minRank:        statusRank[cfg.MinStatus],
		workerPool:     make(chan struct{}, cfg.MaxConcurrent),
		breakers:       circuitbreaker.NewSet(circuitbreaker.WebhookConfig),
		shutdownCtx:    shutdownCtx,
		shutdownCancel: shutdownCancel,
	}

	enabled := 0
	for _, ch := range channels {
		if ch.IsEnabled() {
			enabled++
		}
	}
	SetChannelsEnabled(float64(enabled))

	return svc
}

// Report implements Reporter.Report.
func (s *service) Report(ctx context.Context, report *entity.Report) {
	if report == nil {
		slog.Warn("Invalid report input", slog.Bool("nil_report", true))
		return
	}
	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now()
	}

	requestID, ok := ctx.Value(requestIDKey).(string)
	if !ok || requestID == "" {
		requestID = uuid.New().String()
	}

	RecordReport(report.Status)
	logReport(requestID, report)

	s.wg.Add(1)
	go s.dispatch(requestID, report)
}

// logReport is the local fallback: every report reaches the process log.
func logReport(requestID string, report *entity.Report) {
	attrs := []any{
		slog.String("request_id", requestID),
		slog.String("status", report.Status),
		slog.String("source", report.Source),
		slog.String("message", report.Message),
	}
	if len(report.Attached) > 0 {
		attrs = append(attrs, slog.Any("attached", report.Attached))
	}
	switch report.Status {
	case entity.ReportFailure:
		slog.Error("operator report", attrs...)
	case entity.ReportWarning:
		slog.Warn("operator report", attrs...)
	default:
		slog.Info("operator report", attrs...)
	}
}

// dispatch persists the report and posts it to every enabled channel.
func (s *service) dispatch(requestID string, report *entity.Report) {
	defer s.wg.Done()

	IncrementActiveGoroutines()
	defer DecrementActiveGoroutines()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("Panic in report dispatch",
				slog.String("request_id", requestID),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
		}
	}()

	if s.repo != nil {
		ctx, cancel := context.WithTimeout(s.shutdownCtx, persistTimeout)
		if err := s.repo.CreateReport(ctx, report); err != nil {
			slog.Warn("Failed to persist report",
				slog.String("request_id", requestID),
				slog.Any("error", err))
		}
		cancel()
	}

	var wg sync.WaitGroup
	for _, ch := range s.channels {
		if !ch.IsEnabled() {
			continue
		}
		if statusRank[report.Status] < s.minRank {
			RecordDropped(ch.Name(), "below_threshold")
			continue
		}
		wg.Add(1)
		go func(channel Channel) {
			defer wg.Done()
			s.sendToChannel(requestID, channel, report)
		}(ch)
	}
	wg.Wait()
}

// sendToChannel posts to a single channel through its circuit breaker.
func (s *service) sendToChannel(requestID string, channel Channel, report *entity.Report) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Panic in report channel",
				slog.String("request_id", requestID),
				slog.String("channel", channel.Name()),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
		}
	}()

	// Acquire worker slot (with timeout to prevent blocking)
	select {
	case s.workerPool <- struct{}{}:
		defer func() { <-s.workerPool }()
	case <-time.After(workerPoolTimeout):
		slog.Warn("Report dropped: worker pool full",
			slog.String("request_id", requestID),
			slog.String("channel", channel.Name()))
		RecordDropped(channel.Name(), "pool_full")
		return
	}

	ctx, cancel := context.WithTimeout(s.shutdownCtx, reportTimeout)
	defer cancel()
	ctx = context.WithValue(ctx, requestIDKey, requestID)

	start := time.Now()
	_, err := s.breakers.Get(channel.Name()).Execute(func() (interface{}, error) {
		return nil, channel.Send(ctx, report)
	})
	duration := time.Since(start)

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		slog.Warn("Channel temporarily disabled due to circuit breaker",
			slog.String("request_id", requestID),
			slog.String("channel", channel.Name()))
		RecordDropped(channel.Name(), "circuit_open")
		return
	}
	if err != nil {
		RecordFailure(channel.Name(), duration)
		slog.Warn("Channel report failed",
			slog.String("request_id", requestID),
			slog.String("channel", channel.Name()),
			slog.Duration("send_duration", duration),
			slog.Any("error", err))
		return
	}
	RecordSuccess(channel.Name(), duration)
}

// GetChannelHealth implements Service.GetChannelHealth.
func (s *service) GetChannelHealth() []ChannelHealthStatus {
	statuses := make([]ChannelHealthStatus, 0, len(s.channels))
	for _, ch := range s.channels {
		statuses = append(statuses, ChannelHealthStatus{
			Name:               ch.Name(),
			Enabled:            ch.IsEnabled(),
			CircuitBreakerOpen: s.breakers.Get(ch.Name()).IsOpen(),
		})
	}
	return statuses
}

// Shutdown implements Service.Shutdown.
func (s *service) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down report service")

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.shutdownCancel()
		slog.Info("Report service shutdown complete")
		return nil
	case <-ctx.Done():
		s.shutdownCancel()
		slog.Warn("Report service shutdown timeout")
		return ctx.Err()
	}
}

// LogReporter is a Reporter that only logs. It is used by one-shot commands
// and tests that do not need channels or persistence.
type LogReporter struct{}

// Report logs the report.
func (LogReporter) Report(_ context.Context, report *entity.Report) {
	if report == nil {
		return
	}
	RecordReport(report.Status)
	logReport(uuid.New().String(), report)
}
