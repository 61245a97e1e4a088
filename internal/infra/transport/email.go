// Package transport sends rendered deliveries: email over SMTP, SMS through
// the Twilio REST API, and a log-only transport for development.
//
// Senders report success as a bool. Failures are logged here; the dispatcher
// only needs to know whether to keep the deliveries queued.
package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"scout-alerts/internal/resilience/circuitbreaker"
)

// SMTPConfig configures the email transport.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	// From is the envelope and header sender, e.g. "Scout <alerts@example.org>".
	From string
	// Timeout bounds the whole SMTP conversation.
	// Default: 30s
	Timeout time.Duration
	// StartTLS upgrades the connection when the server offers it.
	StartTLS bool
}

// SMTPMailer sends email through one SMTP server.
type SMTPMailer struct {
	config         SMTPConfig
	circuitBreaker *circuitbreaker.CircuitBreaker
	// send is swapped in tests.
	send func(ctx context.Context, to string, msg []byte) error
}

// NewSMTPMailer creates an email transport guarded by a circuit breaker.
func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	m := &SMTPMailer{
		config:         cfg,
		circuitBreaker: circuitbreaker.New(circuitbreaker.TransportConfig("email")),
	}
	m.send = m.deliver
	return m
}

// SendEmail sends a plain text message and reports whether the server accepted it.
func (m *SMTPMailer) SendEmail(ctx context.Context, to, subject, body string) bool {
	msg := buildMessage(m.config.From, to, subject, body, time.Now())

	_, err := m.circuitBreaker.Execute(func() (interface{}, error) {
		return nil, m.send(ctx, to, msg)
	})
	if err != nil {
		attrs := []any{
			slog.String("mechanism", "email"),
			slog.String("to", to),
			slog.String("subject", subject),
			slog.Any("error", err),
		}
		if errors.Is(err, gobreaker.ErrOpenState) {
			attrs = append(attrs, slog.String("state", m.circuitBreaker.State().String()))
		}
		slog.Error("email send failed", attrs...)
		return false
	}
	return true
}

func (m *SMTPMailer) deliver(ctx context.Context, to string, msg []byte) error {
	ctx, cancel := context.WithTimeout(ctx, m.config.Timeout)
	defer cancel()

	addr := net.JoinHostPort(m.config.Host, strconv.Itoa(m.config.Port))
	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, m.config.Host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer func() {
		_ = client.Close()
	}()

	if m.config.StartTLS {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(&tls.Config{ServerName: m.config.Host, MinVersion: tls.VersionTLS12}); err != nil {
				return fmt.Errorf("starttls: %w", err)
			}
		}
	}
	if m.config.Username != "" {
		auth := smtp.PlainAuth("", m.config.Username, m.config.Password, m.config.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := client.Mail(envelopeAddress(m.config.From)); err != nil {
		return fmt.Errorf("MAIL FROM: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("RCPT TO: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("end DATA: %w", err)
	}
	return client.Quit()
}

// buildMessage renders RFC 5322 headers and a CRLF-normalized plain text body.
func buildMessage(from, to, subject, body string, now time.Time) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + sanitizeHeader(subject) + "\r\n")
	b.WriteString("Date: " + now.Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	body = strings.ReplaceAll(body, "\r\n", "\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return []byte(b.String())
}

func sanitizeHeader(v string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(v)
}

// envelopeAddress extracts "a@b" from "Name <a@b>".
func envelopeAddress(from string) string {
	if i := strings.LastIndex(from, "<"); i >= 0 {
		if j := strings.LastIndex(from, ">"); j > i {
			return from[i+1 : j]
		}
	}
	return strings.TrimSpace(from)
}
