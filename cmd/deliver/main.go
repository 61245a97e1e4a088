// Package main runs one dispatch of the delivery queue and exits.
// Usage: scout-deliver -mechanism email -frequency daily [-force] [-dry-run]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"scout-alerts/internal/app"
	"scout-alerts/internal/domain/entity"
	"scout-alerts/internal/observability/logging"
	"scout-alerts/internal/usecase/delivery"
)

func main() {
	var (
		mechanism string
		frequency string
		force     bool
		dryRun    bool
		timeout   time.Duration
	)
	flag.StringVar(&mechanism, "mechanism", entity.MechanismEmail, "Delivery mechanism: email or sms")
	flag.StringVar(&frequency, "frequency", entity.FrequencyImmediate, "Email frequency: immediate or daily (ignored for sms)")
	flag.BoolVar(&force, "force", false, "Skip the flood guard")
	flag.BoolVar(&dryRun, "dry-run", false, "Render and log messages without sending (overrides DRY_RUN)")
	flag.DurationVar(&timeout, "timeout", 15*time.Minute, "Maximum duration of the run")
	flag.Parse()

	logger := logging.NewTextLogger()
	slog.SetDefault(logger)

	sel := delivery.Selector{Mechanism: mechanism}
	if mechanism == entity.MechanismEmail {
		sel.EmailFrequency = frequency
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	os.Exit(run(ctx, logger, sel, force, dryRun))
}

func run(ctx context.Context, logger *slog.Logger, sel delivery.Selector, force, dryRun bool) int {
	settings, err := app.LoadSettings()
	if err != nil {
		logger.Error("invalid settings", slog.Any("error", err))
		return 1
	}
	pipeline, err := app.Build(ctx, logger, settings)
	if err != nil {
		logger.Error("failed to build pipeline", slog.Any("error", err))
		return 1
	}
	defer func() {
		if err := pipeline.Close(); err != nil {
			logger.Error("failed to close pipeline", slog.Any("error", err))
		}
	}()

	opts := delivery.DeliverOptions{Force: force, DryRun: dryRun || settings.DryRun}
	stats, err := pipeline.Dispatcher.Deliver(ctx, sel, opts)
	switch {
	case errors.Is(err, delivery.ErrFloodDetected):
		fmt.Fprintf(os.Stderr, "Flood guard tripped for %s: %d queued across %d interests (limit %.0f). Re-run with -force to send anyway.\n",
			sel, stats.Flood.Deliveries, stats.Flood.Interests, stats.Flood.Limit)
		return 3
	case errors.Is(err, delivery.ErrInvalidSelector):
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		flag.Usage()
		return 2
	case err != nil:
		logger.Error("dispatch failed", slog.Any("error", err))
		return 1
	}

	fmt.Printf("%s run %s: %d users, %d messages, %d receipts, %d failures, %d dropped, %d dry-run (%s)\n",
		sel, stats.RunID, stats.Users, stats.Messages, stats.Receipts, stats.Failures, stats.Dropped, stats.DryRun,
		stats.Duration.Round(time.Millisecond))
	if stats.Failures > 0 {
		return 1
	}
	return 0
}
