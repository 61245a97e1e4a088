package report

import (
	"context"

	"scout-alerts/internal/domain/entity"
	"scout-alerts/internal/infra/notifier"
)

// WebhookChannel adapts an infrastructure notifier to the Channel interface.
//
// If the channel is disabled a NoOpNotifier is used instead, so the Channel
// contract is always satisfied.
type WebhookChannel struct {
	name     string
	notifier notifier.Notifier
	enabled  bool
}

// NewSlackChannel creates the Slack report channel.
func NewSlackChannel(config notifier.SlackConfig) *WebhookChannel {
	var n notifier.Notifier = notifier.NewNoOpNotifier()
	if config.Enabled {
		n = notifier.NewSlackNotifier(config)
	}
	return &WebhookChannel{name: "slack", notifier: n, enabled: config.Enabled}
}

// NewDiscordChannel creates the Discord report channel.
func NewDiscordChannel(config notifier.DiscordConfig) *WebhookChannel {
	var n notifier.Notifier = notifier.NewNoOpNotifier()
	if config.Enabled {
		n = notifier.NewDiscordNotifier(config)
	}
	return &WebhookChannel{name: "discord", notifier: n, enabled: config.Enabled}
}

// Name returns the channel identifier.
func (c *WebhookChannel) Name() string { return c.name }

// IsEnabled returns whether the channel is enabled via configuration.
func (c *WebhookChannel) IsEnabled() bool { return c.enabled }

// Send posts the report through the underlying notifier.
func (c *WebhookChannel) Send(ctx context.Context, report *entity.Report) error {
	if !c.enabled {
		return ErrChannelDisabled
	}
	if report == nil {
		return ErrInvalidReport
	}
	return c.notifier.NotifyReport(ctx, report)
}
