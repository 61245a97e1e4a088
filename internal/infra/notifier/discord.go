package notifier

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"scout-alerts/internal/domain/entity"
)

// DiscordConfig contains configuration for Discord webhook notifications.
type DiscordConfig struct {
	// Enabled indicates whether Discord notifications are enabled
	Enabled bool

	// WebhookURL is the Discord webhook URL (includes authentication token)
	WebhookURL string

	// Timeout is the HTTP request timeout for Discord API calls
	Timeout time.Duration
}

// DiscordNotifier posts operator reports to Discord via webhook.
type DiscordNotifier struct {
	config      DiscordConfig
	httpClient  *http.Client
	rateLimiter *RateLimiter
	retryDelay  time.Duration
}

// NewDiscordNotifier creates a new DiscordNotifier with the specified configuration.
//
// The rate limiter is set to 0.5 requests/second with burst of 3
// (Discord Webhook limit: 30 requests per minute).
func NewDiscordNotifier(config DiscordConfig) *DiscordNotifier {
	return &DiscordNotifier{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		rateLimiter: NewRateLimiter(0.5, 3), // 0.5 req/s (30 req/min), burst of 3
		retryDelay:  5 * time.Second,
	}
}

// DiscordWebhookPayload represents the JSON payload sent to Discord webhook.
type DiscordWebhookPayload struct {
	Embeds []DiscordEmbed `json:"embeds"`
}

// DiscordEmbed represents a Discord embed message.
type DiscordEmbed struct {
	Title       string             `json:"title"`
	Description string             `json:"description"`
	Color       int                `json:"color"`
	Footer      DiscordEmbedFooter `json:"footer"`
	Timestamp   string             `json:"timestamp"`
}

// DiscordEmbedFooter represents the footer of a Discord embed.
type DiscordEmbedFooter struct {
	Text string `json:"text"`
}

const (
	// Discord limits
	maxTitleLength       = 256
	maxDescriptionLength = 4096
	truncationSuffix     = "..."
)

var discordStatusColor = map[string]int{
	entity.ReportSuccess: 0x57F287, // green
	entity.ReportWarning: 0xFEE75C, // yellow
	entity.ReportFailure: 0xED4245, // red
	entity.ReportNote:    0x5865F2, // blurple
}

// buildEmbedPayload creates a Discord webhook payload from a report.
// The title carries status and source, the description the message and
// attached data, the color the status.
func (d *DiscordNotifier) buildEmbedPayload(report *entity.Report) DiscordWebhookPayload {
	title := truncateText(fmt.Sprintf("[%s] %s", report.Status, report.Source), maxTitleLength, truncationSuffix)

	description := report.Message
	if attached := formatAttached(report.Attached); attached != "" {
		description += "\n```\n" + attached + "\n```"
	}
	description = truncateText(description, maxDescriptionLength, truncationSuffix)

	return DiscordWebhookPayload{
		Embeds: []DiscordEmbed{{
			Title:       title,
			Description: description,
			Color:       discordStatusColor[report.Status],
			Footer:      DiscordEmbedFooter{Text: "scout-alerts"},
			Timestamp:   report.CreatedAt.Format(time.RFC3339),
		}},
	}
}

// NotifyReport posts a report to Discord.
// This method implements the Notifier interface.
func (d *DiscordNotifier) NotifyReport(ctx context.Context, report *entity.Report) error {
	requestID := uuid.New().String()
	ctx = context.WithValue(ctx, requestIDKey, requestID)

	if err := d.rateLimiter.Allow(ctx); err != nil {
		slog.Error("Rate limiter error",
			slog.String("request_id", requestID),
			slog.Any("error", err))
		return fmt.Errorf("rate limiter error: %w", err)
	}

	payload := d.buildEmbedPayload(report)
	policy := retryPolicy{channel: "Discord", maxAttempts: 2, baseDelay: d.retryDelay}
	return sendWithRetry(ctx, policy, report, func(ctx context.Context) error {
		return postJSON(ctx, d.httpClient, d.config.WebhookURL, "Discord", payload)
	})
}
