package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scout-alerts/internal/usecase/report"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func get(t *testing.T, h http.Handler, path string) (int, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	return rec.Code, body
}

type stubChannels []report.ChannelHealthStatus

func (s stubChannels) GetChannelHealth() []report.ChannelHealthStatus { return s }

/* ───────── Liveness / readiness ───────── */

func TestHealthServer_Liveness(t *testing.T) {
	server := NewHealthServer(":0", quietLogger())

	code, body := get(t, server.Handler(), "/health")

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
}

func TestHealthServer_Readiness(t *testing.T) {
	t.Run("not ready before SetReady", func(t *testing.T) {
		server := NewHealthServer(":0", quietLogger())

		code, body := get(t, server.Handler(), "/health/ready")

		assert.Equal(t, http.StatusServiceUnavailable, code)
		assert.Equal(t, "not ready", body["status"])
	})

	t.Run("ready without checks", func(t *testing.T) {
		server := NewHealthServer(":0", quietLogger())
		server.SetReady(true)

		code, body := get(t, server.Handler(), "/health/ready")

		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "ok", body["status"])
		assert.NotContains(t, body, "checks")
	})

	t.Run("failing check makes the worker unready", func(t *testing.T) {
		server := NewHealthServer(":0", quietLogger())
		server.AddCheck("database", func(context.Context) error { return nil })
		server.AddCheck("redis", func(context.Context) error { return errors.New("dial tcp: refused") })
		server.SetReady(true)

		code, body := get(t, server.Handler(), "/health/ready")

		assert.Equal(t, http.StatusServiceUnavailable, code)
		assert.Equal(t, "degraded", body["status"])
		assert.Equal(t, map[string]any{"database": "ok", "redis": "failing"}, body["checks"])
	})

	t.Run("transition back to not ready", func(t *testing.T) {
		server := NewHealthServer(":0", quietLogger())
		server.SetReady(true)
		server.SetReady(false)

		code, _ := get(t, server.Handler(), "/health/ready")
		assert.Equal(t, http.StatusServiceUnavailable, code)
	})
}

/* ───────── Report channels ───────── */

func TestHealthServer_Channels(t *testing.T) {
	tests := []struct {
		name     string
		channels stubChannels
		wantCode int
	}{
		{"no source", nil, http.StatusOK},
		{"all closed", stubChannels{{Name: "slack", Enabled: true}, {Name: "discord", Enabled: true}}, http.StatusOK},
		{"disabled channel with open breaker", stubChannels{{Name: "discord", CircuitBreakerOpen: true}}, http.StatusOK},
		{"enabled channel with open breaker", stubChannels{{Name: "slack", Enabled: true, CircuitBreakerOpen: true}}, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := NewHealthServer(":0", quietLogger())
			if tt.channels != nil {
				server.SetChannels(tt.channels)
			}

			code, body := get(t, server.Handler(), "/health/channels")

			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantCode == http.StatusOK, body["healthy"])
			assert.Len(t, body["channels"], len(tt.channels))
		})
	}
}

/* ───────── Lifecycle ───────── */

func TestHealthServer_GracefulShutdown(t *testing.T) {
	server := NewHealthServer("localhost:19191", quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Start(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, http.ErrServerClosed)
	case <-time.After(6 * time.Second):
		t.Fatal("health server did not shut down")
	}
}
