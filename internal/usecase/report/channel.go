// Package report dispatches operator reports. Every report is logged locally,
// persisted for audit, and fanned out to the enabled chat channels in the
// background so callers never block on or fail because of the operator channel.
package report

import (
	"context"

	"scout-alerts/internal/domain/entity"
)

// Channel represents an operator report channel (Slack, Discord, ...).
// Each channel implementation handles its own rate limiting, retries, and
// error handling.
//
// Thread Safety:
//   - All methods must be safe for concurrent use by multiple goroutines
type Channel interface {
	// Name returns the channel identifier (lowercase, alphanumeric).
	// This is used for logging, metrics, and health check endpoints.
	Name() string

	// IsEnabled returns true if this channel is enabled via configuration.
	// Disabled channels will be skipped during dispatching.
	IsEnabled() bool

	// Send posts a report to this channel.
	//
	// Returns:
	//   - error: Non-nil if the post failed after all retries
	//     - ErrChannelDisabled: If Send() called on disabled channel
	//     - ErrInvalidReport: If report is nil
	Send(ctx context.Context, report *entity.Report) error
}
