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

func newTestDiscord(url string) *DiscordNotifier {
	n := NewDiscordNotifier(DiscordConfig{Enabled: true, WebhookURL: url, Timeout: 5 * time.Second})
	n.rateLimiter = NewRateLimiter(1000, 10)
	n.retryDelay = 10 * time.Millisecond
	return n
}

func TestDiscordNotifier_buildEmbedPayload(t *testing.T) {
	t.Run("TC-1: should map status onto title and color", func(t *testing.T) {
		// Arrange
		notifier := newTestDiscord("https://discord.com/api/webhooks/test")
		report := entity.NewFailureReport("Deliver", "Failed to deliver 2 emails to a@example.com",
			map[string]any{"user_id": 3})

		// Act
		payload := notifier.buildEmbedPayload(report)

		// Assert
		if len(payload.Embeds) != 1 {
			t.Fatalf("expected 1 embed, got %d", len(payload.Embeds))
		}
		embed := payload.Embeds[0]
		if embed.Title != "[FAILURE] Deliver" {
			t.Errorf("unexpected title %q", embed.Title)
		}
		if embed.Color != 0xED4245 {
			t.Errorf("expected red, got %#x", embed.Color)
		}
		if !strings.Contains(embed.Description, "user_id: 3") {
			t.Errorf("expected attached data in description, got %q", embed.Description)
		}
	})

	t.Run("TC-2: should cap the description length", func(t *testing.T) {
		notifier := newTestDiscord("https://discord.com/api/webhooks/test")
		payload := notifier.buildEmbedPayload(entity.NewNoteReport("Test", strings.Repeat("y", 5000), nil))

		if got := len(payload.Embeds[0].Description); got != maxDescriptionLength {
			t.Errorf("expected %d, got %d", maxDescriptionLength, got)
		}
	})
}

func TestDiscordNotifier_NotifyReport(t *testing.T) {
	t.Run("TC-1: should post the embed", func(t *testing.T) {
		var got DiscordWebhookPayload
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(body, &got)
			w.WriteHeader(http.StatusNoContent)
		}))
		defer server.Close()

		err := newTestDiscord(server.URL).NotifyReport(context.Background(),
			entity.NewSuccessReport("Deliver", "Delivered 4 emails", nil))

		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(got.Embeds) != 1 || got.Embeds[0].Description != "Delivered 4 emails" {
			t.Errorf("unexpected payload %+v", got)
		}
	})

	t.Run("TC-2: should use retry_after from JSON body on 429", func(t *testing.T) {
		var calls int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&calls, 1) == 1 {
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"message":"rate limited","retry_after":0.05}`))
				return
			}
			w.WriteHeader(http.StatusNoContent)
		}))
		defer server.Close()

		err := newTestDiscord(server.URL).NotifyReport(context.Background(), entity.NewNoteReport("Test", "x", nil))

		if err != nil {
			t.Fatalf("expected success, got %v", err)
		}
		if atomic.LoadInt32(&calls) != 2 {
			t.Errorf("expected 2 calls, got %d", calls)
		}
	})

	t.Run("TC-3: should give up after max attempts on 5xx", func(t *testing.T) {
		var calls int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		err := newTestDiscord(server.URL).NotifyReport(context.Background(), entity.NewNoteReport("Test", "x", nil))

		var serverErr *ServerError
		if !errors.As(err, &serverErr) {
			t.Fatalf("expected ServerError, got %v", err)
		}
		if atomic.LoadInt32(&calls) != 2 {
			t.Errorf("expected 2 calls, got %d", calls)
		}
	})
}
