package transport

import (
	"context"
	"log/slog"
)

// EmailSender sends one email.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) bool
}

// SMSSender sends one text message.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) bool
}

// Router combines an email and an SMS sender into one transport.
// A nil sender falls back to Log.
type Router struct {
	email EmailSender
	sms   SMSSender
}

// NewRouter creates a Router.
func NewRouter(email EmailSender, sms SMSSender) *Router {
	if email == nil {
		email = Log{}
	}
	if sms == nil {
		sms = Log{}
	}
	return &Router{email: email, sms: sms}
}

func (r *Router) SendEmail(ctx context.Context, to, subject, body string) bool {
	return r.email.SendEmail(ctx, to, subject, body)
}

func (r *Router) SendSMS(ctx context.Context, to, body string) bool {
	return r.sms.SendSMS(ctx, to, body)
}

// Log writes messages to the process log instead of sending them.
// It always succeeds.
type Log struct{}

func (Log) SendEmail(_ context.Context, to, subject, body string) bool {
	slog.Info("email (log transport)",
		slog.String("to", to),
		slog.String("subject", subject),
		slog.Int("body_length", len(body)))
	slog.Debug("email body", slog.String("to", to), slog.String("body", body))
	return true
}

func (Log) SendSMS(_ context.Context, to, body string) bool {
	slog.Info("sms (log transport)",
		slog.String("to", to),
		slog.String("body", body))
	return true
}
