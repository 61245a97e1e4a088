package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"scout-alerts/internal/domain/entity"
)

func newTestSlack(url string) *SlackNotifier {
	n := NewSlackNotifier(SlackConfig{Enabled: true, WebhookURL: url, Timeout: 5 * time.Second})
	n.rateLimiter = NewRateLimiter(1000, 10)
	n.retryDelay = 10 * time.Millisecond
	return n
}

func TestSlackNotifier_buildBlockKitPayload(t *testing.T) {
	t.Run("TC-1: should build headline, attachment and context blocks", func(t *testing.T) {
		// Arrange
		notifier := newTestSlack("https://hooks.slack.com/services/test")
		report := entity.NewWarningReport("Check", "[federal_bills][water] 2 backfills not delivered, attached",
			map[string]any{"subscription_id": 7, "item_ids": []string{"hr1-118", "s2-118"}})
		report.CreatedAt = time.Date(2025, 11, 15, 12, 0, 0, 0, time.UTC)

		// Act
		payload := notifier.buildBlockKitPayload(report)

		// Assert
		if len(payload.Blocks) != 3 {
			t.Fatalf("expected 3 blocks, got %d", len(payload.Blocks))
		}
		if !strings.HasPrefix(payload.Text, "[WARNING] Check:") {
			t.Errorf("unexpected fallback text %q", payload.Text)
		}
		headline := payload.Blocks[0].Text.Text
		if !strings.Contains(headline, ":warning:") || !strings.Contains(headline, "*Check*") {
			t.Errorf("unexpected headline %q", headline)
		}
		attached := payload.Blocks[1].Text.Text
		if !strings.Contains(attached, `item_ids: ["hr1-118","s2-118"]`) {
			t.Errorf("expected attached item ids, got %q", attached)
		}
		if !strings.Contains(attached, "subscription_id: 7") {
			t.Errorf("expected subscription id, got %q", attached)
		}
		if got := payload.Blocks[2].Elements[0].Text; got != "WARNING • 2025-11-15T12:00:00Z" {
			t.Errorf("unexpected context text %q", got)
		}
	})

	t.Run("TC-2: should omit the attachment block when nothing is attached", func(t *testing.T) {
		notifier := newTestSlack("https://hooks.slack.com/services/test")
		payload := notifier.buildBlockKitPayload(entity.NewSuccessReport("Deliver", "Delivered 3 emails", nil))

		if len(payload.Blocks) != 2 {
			t.Fatalf("expected 2 blocks, got %d", len(payload.Blocks))
		}
	})

	t.Run("TC-3: should truncate long fallback text", func(t *testing.T) {
		notifier := newTestSlack("https://hooks.slack.com/services/test")
		payload := notifier.buildBlockKitPayload(entity.NewNoteReport("Deliver", strings.Repeat("x", 500), nil))

		if len(payload.Text) != maxFallbackLength {
			t.Errorf("expected fallback length %d, got %d", maxFallbackLength, len(payload.Text))
		}
		if !strings.HasSuffix(payload.Text, slackTruncationSuffix) {
			t.Errorf("expected truncation suffix, got %q", payload.Text)
		}
	})
}

func TestSlackNotifier_NotifyReport(t *testing.T) {
	t.Run("TC-1: should post JSON payload", func(t *testing.T) {
		// Arrange
		var got SlackWebhookPayload
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if ct := r.Header.Get("Content-Type"); ct != "application/json" {
				t.Errorf("expected application/json, got %q", ct)
			}
			body, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(body, &got)
			_, _ = w.Write([]byte("ok"))
		}))
		defer server.Close()

		// Act
		err := newTestSlack(server.URL).NotifyReport(context.Background(),
			entity.NewFailureReport("Initialization", "boom", nil))

		// Assert
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(got.Text, "[FAILURE] Initialization: boom") {
			t.Errorf("unexpected payload text %q", got.Text)
		}
	})

	t.Run("TC-2: should retry on 5xx and succeed", func(t *testing.T) {
		var calls int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&calls, 1) == 1 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			_, _ = w.Write([]byte("ok"))
		}))
		defer server.Close()

		err := newTestSlack(server.URL).NotifyReport(context.Background(), entity.NewNoteReport("Test", "retry", nil))

		if err != nil {
			t.Fatalf("expected success after retry, got %v", err)
		}
		if atomic.LoadInt32(&calls) != 2 {
			t.Errorf("expected 2 calls, got %d", calls)
		}
	})

	t.Run("TC-3: should not retry 4xx", func(t *testing.T) {
		var calls int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte("no_service"))
		}))
		defer server.Close()

		err := newTestSlack(server.URL).NotifyReport(context.Background(), entity.NewNoteReport("Test", "gone", nil))

		var clientErr *ClientError
		if !errors.As(err, &clientErr) {
			t.Fatalf("expected ClientError, got %v", err)
		}
		if clientErr.StatusCode != http.StatusNotFound {
			t.Errorf("expected 404, got %d", clientErr.StatusCode)
		}
		if atomic.LoadInt32(&calls) != 1 {
			t.Errorf("expected 1 call, got %d", calls)
		}
	})

	t.Run("TC-4: should honor Retry-After on 429", func(t *testing.T) {
		var calls int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&calls, 1) == 1 {
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			_, _ = w.Write([]byte("ok"))
		}))
		defer server.Close()

		start := time.Now()
		err := newTestSlack(server.URL).NotifyReport(context.Background(), entity.NewNoteReport("Test", "limited", nil))

		if err != nil {
			t.Fatalf("expected success after backoff, got %v", err)
		}
		if time.Since(start) < 900*time.Millisecond {
			t.Errorf("expected to wait for Retry-After")
		}
	})
}

func TestTruncateText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{name: "short text untouched", in: "abc", max: 10, want: "abc"},
		{name: "ascii truncated", in: "abcdefghij", max: 6, want: "abc..."},
		{name: "multibyte not split", in: "ああああ", max: 8, want: "あ..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := truncateText(tt.in, tt.max, "..."); got != tt.want {
				t.Errorf("truncateText(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
			}
		})
	}
}
