package transport

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"scout-alerts/internal/resilience/circuitbreaker"
)

// DefaultTwilioEndpoint is the Twilio REST API base URL.
const DefaultTwilioEndpoint = "https://api.twilio.com"

// TwilioConfig configures the SMS transport.
type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	// From is the sending phone number in E.164 form.
	From     string
	Endpoint string
	// Timeout is the per-request timeout.
	// Default: 30s
	Timeout time.Duration
	// RatePerSecond caps outgoing messages. Twilio long codes accept about one per second.
	// Default: 1
	RatePerSecond float64
}

// TwilioSMS sends text messages through the Twilio Messages API.
type TwilioSMS struct {
	config         TwilioConfig
	httpClient     *http.Client
	limiter        *rate.Limiter
	circuitBreaker *circuitbreaker.CircuitBreaker
}

// NewTwilioSMS creates an SMS transport with rate limiting and a circuit breaker.
func NewTwilioSMS(cfg TwilioConfig) *TwilioSMS {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultTwilioEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 1
	}
	return &TwilioSMS{
		config:         cfg,
		httpClient:     &http.Client{Timeout: cfg.Timeout},
		limiter:        rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1),
		circuitBreaker: circuitbreaker.New(circuitbreaker.TransportConfig("sms")),
	}
}

// SendSMS sends body to the phone number to and reports whether Twilio queued it.
func (s *TwilioSMS) SendSMS(ctx context.Context, to, body string) bool {
	if err := s.limiter.Wait(ctx); err != nil {
		slog.Error("sms rate limiter error", slog.String("to", to), slog.Any("error", err))
		return false
	}

	_, err := s.circuitBreaker.Execute(func() (interface{}, error) {
		return nil, s.post(ctx, to, body)
	})
	if err != nil {
		slog.Error("sms send failed",
			slog.String("mechanism", "sms"),
			slog.String("to", to),
			slog.String("state", s.circuitBreaker.State().String()),
			slog.Any("error", err))
		return false
	}
	return true
}

func (s *TwilioSMS) post(ctx context.Context, to, body string) error {
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json",
		strings.TrimRight(s.config.Endpoint, "/"), url.PathEscape(s.config.AccountSID))

	form := url.Values{}
	form.Set("To", to)
	form.Set("From", s.config.From)
	form.Set("Body", body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(s.config.AccountSID, s.config.AuthToken)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("twilio request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("twilio returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return nil
}
