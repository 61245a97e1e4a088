// Package notifier delivers operator reports to chat webhooks.
// It defines the Notifier interface so Slack, Discord or a no-op sink can be
// injected into the report service interchangeably.
package notifier

import (
	"context"

	"scout-alerts/internal/domain/entity"
)

// Notifier sends one operator report to an external channel.
// Implementations handle rate limiting, retries, and error logging internally.
type Notifier interface {
	// NotifyReport posts the report.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout control
	//   - report: The report to post (must not be nil)
	//
	// Returns:
	//   - error: Non-nil if the post failed after all retry attempts
	NotifyReport(ctx context.Context, report *entity.Report) error
}
