package app

import (
	"log/slog"
	"net/url"
	"strings"
	"time"

	"scout-alerts/internal/infra/notifier"
	"scout-alerts/internal/infra/transport"
	"scout-alerts/internal/usecase/delivery"
	"scout-alerts/internal/usecase/report"
	"scout-alerts/pkg/config"
)

const reportDrainTimeout = 10 * time.Second

// webhookURL validates an operator webhook. Invalid URLs disable the channel.
func webhookURL(logger *slog.Logger, channel, raw, host, pathPrefix string) (string, bool) {
	if raw == "" {
		logger.Warn("webhook URL is empty, disabling channel", slog.String("channel", channel))
		return "", false
	}
	u, err := url.Parse(raw)
	if err != nil {
		logger.Warn("invalid webhook URL format, disabling channel", slog.String("channel", channel), slog.Any("error", err))
		return "", false
	}
	if u.Scheme != "https" {
		logger.Warn("webhook URL must use HTTPS, disabling channel", slog.String("channel", channel))
		return "", false
	}
	if u.Host != host {
		logger.Warn("invalid webhook host, disabling channel", slog.String("channel", channel), slog.String("host", u.Host))
		return "", false
	}
	if !strings.HasPrefix(u.Path, pathPrefix) {
		logger.Warn("invalid webhook path, disabling channel", slog.String("channel", channel), slog.String("path", u.Path))
		return "", false
	}
	return raw, true
}

// loadSlackConfig reads SLACK_ENABLED and SLACK_WEBHOOK_URL.
func loadSlackConfig(logger *slog.Logger) notifier.SlackConfig {
	if !config.GetEnvBool("SLACK_ENABLED", false) {
		return notifier.SlackConfig{}
	}
	raw, ok := webhookURL(logger, "slack", config.GetEnvString("SLACK_WEBHOOK_URL", ""), "hooks.slack.com", "/services/")
	if !ok {
		return notifier.SlackConfig{}
	}
	return notifier.SlackConfig{Enabled: true, WebhookURL: raw, Timeout: 30 * time.Second}
}

// loadDiscordConfig reads DISCORD_ENABLED and DISCORD_WEBHOOK_URL.
func loadDiscordConfig(logger *slog.Logger) notifier.DiscordConfig {
	if !config.GetEnvBool("DISCORD_ENABLED", false) {
		return notifier.DiscordConfig{}
	}
	raw, ok := webhookURL(logger, "discord", config.GetEnvString("DISCORD_WEBHOOK_URL", ""), "discord.com", "/api/webhooks/")
	if !ok {
		return notifier.DiscordConfig{}
	}
	return notifier.DiscordConfig{Enabled: true, WebhookURL: raw, Timeout: 30 * time.Second}
}

// reportChannels returns the enabled operator channels.
func reportChannels(logger *slog.Logger) []report.Channel {
	var channels []report.Channel
	if cfg := loadSlackConfig(logger); cfg.Enabled {
		channels = append(channels, report.NewSlackChannel(cfg))
		logger.Info("Slack report channel enabled")
	}
	if cfg := loadDiscordConfig(logger); cfg.Enabled {
		channels = append(channels, report.NewDiscordChannel(cfg))
		logger.Info("Discord report channel enabled")
	}
	if len(channels) == 0 {
		logger.Info("no report channels enabled, reports are logged only")
	}
	return channels
}

// newTransport builds the delivery transport. Email goes over SMTP when
// SMTP_HOST is set and SMS through Twilio when TWILIO_ACCOUNT_SID is set;
// anything unconfigured is logged instead of sent.
func newTransport(logger *slog.Logger) delivery.Transport {
	var email transport.EmailSender
	if host := config.GetEnvString("SMTP_HOST", ""); host != "" {
		email = transport.NewSMTPMailer(transport.SMTPConfig{
			Host:     host,
			Port:     config.GetEnvInt("SMTP_PORT", 587),
			Username: config.GetEnvString("SMTP_USERNAME", ""),
			Password: config.GetEnvString("SMTP_PASSWORD", ""),
			From:     config.GetEnvString("SMTP_FROM", "Scout <alerts@sunlightfoundation.com>"),
			Timeout:  config.GetEnvDuration("SMTP_TIMEOUT", 30*time.Second),
			StartTLS: config.GetEnvBool("SMTP_STARTTLS", true),
		})
		logger.Info("email transport: smtp", slog.String("host", host))
	} else {
		logger.Info("email transport: log")
	}

	var sms transport.SMSSender
	if sid := config.GetEnvString("TWILIO_ACCOUNT_SID", ""); sid != "" {
		sms = transport.NewTwilioSMS(transport.TwilioConfig{
			AccountSID:    sid,
			AuthToken:     config.GetEnvString("TWILIO_AUTH_TOKEN", ""),
			From:          config.GetEnvString("TWILIO_FROM", ""),
			Endpoint:      config.GetEnvString("TWILIO_ENDPOINT", transport.DefaultTwilioEndpoint),
			Timeout:       config.GetEnvDuration("TWILIO_TIMEOUT", 30*time.Second),
			RatePerSecond: 1,
		})
		logger.Info("sms transport: twilio")
	} else {
		logger.Info("sms transport: log")
	}

	return transport.NewRouter(email, sms)
}
