package notifier

import (
	"context"
	"log/slog"

	"scout-alerts/internal/domain/entity"
)

// NoOpNotifier is used when a channel is disabled to avoid nil checks.
// Reports still reach the process log at debug level.
type NoOpNotifier struct{}

// NewNoOpNotifier creates a new NoOpNotifier instance.
func NewNoOpNotifier() *NoOpNotifier {
	return &NoOpNotifier{}
}

// NotifyReport logs the report and returns nil.
func (n *NoOpNotifier) NotifyReport(ctx context.Context, report *entity.Report) error {
	if report != nil {
		slog.Debug("report not posted, channel disabled", slog.String("report", report.String()))
	}
	return nil
}
