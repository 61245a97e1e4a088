package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"scout-alerts/internal/app"
	"scout-alerts/internal/domain/entity"
	workerPkg "scout-alerts/internal/infra/worker"
	"scout-alerts/internal/observability/logging"
	"scout-alerts/internal/usecase/delivery"
	"scout-alerts/internal/usecase/poll"
)

func main() {
	logger := logging.NewLogger()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load worker configuration (fail-open strategy)
	workerMetrics := workerPkg.NewWorkerMetrics()
	workerConfig, _ := workerPkg.LoadConfigFromEnv(logger, workerMetrics)
	logger.Info("worker configuration loaded",
		slog.String("check_schedule", workerConfig.CheckSchedule),
		slog.String("deliver_schedule", workerConfig.DeliverSchedule),
		slog.String("digest_schedule", workerConfig.DigestSchedule),
		slog.String("timezone", workerConfig.Timezone),
		slog.Duration("check_timeout", workerConfig.CheckTimeout),
		slog.Duration("deliver_timeout", workerConfig.DeliverTimeout),
		slog.Int("health_port", workerConfig.HealthPort))

	settings, err := app.LoadSettings()
	if err != nil {
		logger.Error("invalid settings", slog.Any("error", err))
		os.Exit(1)
	}
	settings.ReportMaxConcurrent = workerConfig.ReportMaxConcurrent

	pipeline, err := app.Build(ctx, logger, settings)
	if err != nil {
		logger.Error("failed to build pipeline", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := pipeline.Close(); err != nil {
			logger.Error("failed to close pipeline", slog.Any("error", err))
		}
	}()

	startMetricsServer(ctx, logger)

	healthAddr := fmt.Sprintf(":%d", workerConfig.HealthPort)
	healthServer := workerPkg.NewHealthServer(healthAddr, logger)
	for name, check := range pipeline.ReadyChecks {
		healthServer.AddCheck(name, check)
	}
	healthServer.SetChannels(pipeline.Reports)
	go func() {
		if err := healthServer.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("health server failed", slog.Any("error", err))
		}
	}()

	w := &worker{logger: logger, pipeline: pipeline, cfg: workerConfig, metrics: workerMetrics}
	c, err := w.schedule()
	if err != nil {
		logger.Error("failed to schedule jobs", slog.Any("error", err))
		os.Exit(1)
	}
	c.Start()
	healthServer.SetReady(true)
	logger.Info("worker started", slog.String("timezone", workerConfig.Timezone))

	<-ctx.Done()
	logger.Info("shutdown signal received, waiting for running jobs")
	healthServer.SetReady(false)
	<-c.Stop().Done()
	logger.Info("worker stopped")
}

// worker runs the scheduled jobs.
type worker struct {
	logger   *slog.Logger
	pipeline *app.App
	cfg      *workerPkg.WorkerConfig
	metrics  *workerPkg.WorkerMetrics
}

// schedule registers the check, immediate delivery and daily digest jobs.
// A job still running when its next tick fires is skipped.
func (w *worker) schedule() (*cron.Cron, error) {
	c := cron.New(
		cron.WithLocation(w.cfg.Location()),
		cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger)),
	)

	jobs := map[string]func(){
		workerPkg.JobCheck:            w.runCheck,
		workerPkg.JobDeliverImmediate: w.runImmediate,
		workerPkg.JobDeliverDaily:     w.runDigest,
	}
	for name, spec := range w.cfg.Schedules() {
		if _, err := c.AddFunc(spec, jobs[name]); err != nil {
			return nil, fmt.Errorf("add %s job: %w", name, err)
		}
		w.logger.Info("job scheduled", slog.String("job", name), slog.String("schedule", spec))
	}
	return c, nil
}

// run wraps one job execution with a timeout, a run ID, and metrics.
func (w *worker) run(job string, timeout time.Duration, fn func(ctx context.Context, logger *slog.Logger) error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	ctx = logging.WithRunID(ctx, logging.NewRunID())
	logger := logging.WithRunIDLogger(ctx, w.logger).With(slog.String("job", job))

	w.metrics.RecordJobRun(job, "started")
	logger.Info("job started")

	err := fn(ctx, logger)
	w.metrics.RecordJobDuration(job, time.Since(start).Seconds())
	switch {
	case errors.Is(err, delivery.ErrFloodDetected):
		// 洪水検知時は送信しない。オペレーターへの通知は Dispatcher 側で済んでいる
		w.metrics.RecordJobRun(job, "skipped")
		logger.Warn("job aborted by flood guard", slog.Any("error", err))
	case err != nil:
		w.metrics.RecordJobRun(job, "failure")
		logger.Error("job failed", slog.String("error", logging.RedactError(err)), slog.Duration("duration", time.Since(start)))
	default:
		w.metrics.RecordJobRun(job, "success")
		w.metrics.RecordLastSuccess(job)
		logger.Info("job completed", slog.Duration("duration", time.Since(start)))
	}
}

func (w *worker) runCheck() {
	w.run(workerPkg.JobCheck, w.cfg.CheckTimeout, func(ctx context.Context, logger *slog.Logger) error {
		stats, err := w.pipeline.Poller.CheckAll(ctx, poll.CheckOptions{})
		if err != nil {
			return err
		}
		w.metrics.RecordItems(workerPkg.JobCheck, "subscriptions", stats.Subscriptions)
		w.metrics.RecordItems(workerPkg.JobCheck, "new_items", int(stats.New))
		w.metrics.RecordItems(workerPkg.JobCheck, "scheduled", int(stats.Scheduled))
		logger.Info("check cycle finished",
			slog.Int("subscriptions", stats.Subscriptions),
			slog.Int64("succeeded", stats.Succeeded),
			slog.Int64("failed", stats.Failed),
			slog.Int64("skipped", stats.Skipped),
			slog.Int64("new", stats.New),
			slog.Int64("scheduled", stats.Scheduled),
			slog.Int64("backfilled", stats.Backfilled),
			slog.Int64("vetoed", stats.Vetoed))
		return nil
	})
}

func (w *worker) runImmediate() {
	w.run(workerPkg.JobDeliverImmediate, w.cfg.DeliverTimeout, func(ctx context.Context, logger *slog.Logger) error {
		selectors := []delivery.Selector{
			{Mechanism: entity.MechanismEmail, EmailFrequency: entity.FrequencyImmediate},
			{Mechanism: entity.MechanismSMS},
		}
		var errs []error
		for _, sel := range selectors {
			if err := w.deliver(ctx, logger, workerPkg.JobDeliverImmediate, sel); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", sel, err))
			}
		}
		return errors.Join(errs...)
	})
}

func (w *worker) runDigest() {
	w.run(workerPkg.JobDeliverDaily, w.cfg.DeliverTimeout, func(ctx context.Context, logger *slog.Logger) error {
		return w.deliver(ctx, logger, workerPkg.JobDeliverDaily, delivery.Selector{Mechanism: entity.MechanismEmail, EmailFrequency: entity.FrequencyDaily})
	})
}

func (w *worker) deliver(ctx context.Context, logger *slog.Logger, job string, sel delivery.Selector) error {
	stats, err := w.pipeline.Dispatcher.Deliver(ctx, sel, delivery.DeliverOptions{DryRun: w.pipeline.Settings.DryRun})
	if err != nil {
		return err
	}
	w.metrics.RecordItems(job, sel.Mechanism+"_messages", stats.Messages)
	logger.Info("dispatch finished",
		slog.String("selector", sel.String()),
		slog.String("dispatch_run_id", stats.RunID),
		slog.Int("users", stats.Users),
		slog.Int("messages", stats.Messages),
		slog.Int("receipts", stats.Receipts),
		slog.Int("failures", stats.Failures),
		slog.Int("dropped", stats.Dropped))
	return nil
}
