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

// SlackConfig contains configuration for Slack webhook notifications.
type SlackConfig struct {
	// Enabled indicates whether Slack notifications are enabled
	Enabled bool

	// WebhookURL is the Slack Incoming Webhook URL (includes authentication token)
	WebhookURL string

	// Timeout is the HTTP request timeout for Slack API calls
	Timeout time.Duration
}

// SlackNotifier posts operator reports to Slack via Incoming Webhook.
type SlackNotifier struct {
	config      SlackConfig
	httpClient  *http.Client
	rateLimiter *RateLimiter
	retryDelay  time.Duration
}

// NewSlackNotifier creates a new SlackNotifier with the specified configuration.
//
// The notifier is initialized with:
//   - HTTP client with configured timeout
//   - Rate limiter set to 1 request/second with burst of 1
//     (Slack Webhook limit: 1 message per second)
func NewSlackNotifier(config SlackConfig) *SlackNotifier {
	return &SlackNotifier{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		rateLimiter: NewRateLimiter(1.0, 1), // 1 req/s, burst of 1
		retryDelay:  5 * time.Second,
	}
}

// SlackWebhookPayload represents the JSON payload sent to Slack webhook using Block Kit.
type SlackWebhookPayload struct {
	Text   string       `json:"text"`   // Fallback text (required)
	Blocks []SlackBlock `json:"blocks"` // Rich formatting blocks
}

// SlackBlock represents a Slack Block Kit block.
type SlackBlock struct {
	Type     string            `json:"type"`               // "section", "context", "divider"
	Text     *SlackTextObject  `json:"text,omitempty"`     // Text content (for section)
	Elements []SlackTextObject `json:"elements,omitempty"` // Elements (for context)
}

// SlackTextObject represents a text object in Slack Block Kit.
type SlackTextObject struct {
	Type string `json:"type"` // "mrkdwn" or "plain_text"
	Text string `json:"text"` // Actual text content
}

const (
	// Slack Block Kit limits
	maxSectionTextLength = 3000
	maxFallbackLength    = 150

	slackTruncationSuffix = "..."
)

var slackStatusEmoji = map[string]string{
	entity.ReportSuccess: ":white_check_mark:",
	entity.ReportWarning: ":warning:",
	entity.ReportFailure: ":rotating_light:",
	entity.ReportNote:    ":memo:",
}

// buildBlockKitPayload creates a Slack webhook payload from a report.
//
// The payload includes:
//   - Text: Fallback text ("[STATUS] Source: message")
//   - Section Block: status emoji, source and message
//   - Section Block: attached data as a code block (only when present)
//   - Context Block: report timestamp
func (s *SlackNotifier) buildBlockKitPayload(report *entity.Report) SlackWebhookPayload {
	fallbackText := truncateText(report.String(), maxFallbackLength, slackTruncationSuffix)

	headline := fmt.Sprintf("%s *%s* %s", slackStatusEmoji[report.Status], report.Source, report.Message)
	blocks := []SlackBlock{{
		Type: "section",
		Text: &SlackTextObject{
			Type: "mrkdwn",
			Text: truncateText(headline, maxSectionTextLength, slackTruncationSuffix),
		},
	}}

	if attached := formatAttached(report.Attached); attached != "" {
		// コードブロックの閉じ記号分を確保
		body := truncateText(attached, maxSectionTextLength-8, slackTruncationSuffix)
		blocks = append(blocks, SlackBlock{
			Type: "section",
			Text: &SlackTextObject{Type: "mrkdwn", Text: "```" + body + "```"},
		})
	}

	blocks = append(blocks, SlackBlock{
		Type: "context",
		Elements: []SlackTextObject{{
			Type: "mrkdwn",
			Text: fmt.Sprintf("%s • %s", report.Status, report.CreatedAt.Format(time.RFC3339)),
		}},
	})

	return SlackWebhookPayload{Text: fallbackText, Blocks: blocks}
}

// NotifyReport posts a report to Slack.
// This method implements the Notifier interface.
//
// It performs the following steps:
//  1. Generate unique request_id for tracing
//  2. Apply rate limiting (1 req/s, burst of 1)
//  3. Send webhook request with retry logic (max 2 attempts)
func (s *SlackNotifier) NotifyReport(ctx context.Context, report *entity.Report) error {
	requestID := uuid.New().String()
	ctx = context.WithValue(ctx, requestIDKey, requestID)

	if err := s.rateLimiter.Allow(ctx); err != nil {
		slog.Error("Rate limiter error",
			slog.String("request_id", requestID),
			slog.Any("error", err))
		return fmt.Errorf("rate limiter error: %w", err)
	}

	payload := s.buildBlockKitPayload(report)
	policy := retryPolicy{channel: "Slack", maxAttempts: 2, baseDelay: s.retryDelay}
	return sendWithRetry(ctx, policy, report, func(ctx context.Context) error {
		return postJSON(ctx, s.httpClient, s.config.WebhookURL, "Slack", payload)
	})
}
