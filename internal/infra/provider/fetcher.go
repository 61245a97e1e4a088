// Package provider holds the provider adapters (Congress bills and regulations,
// CourtListener opinions, external RSS/Atom feeds), the registry that maps
// subscription types onto them, and the HTTP fetcher they share.
package provider

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"scout-alerts/internal/resilience/circuitbreaker"
	"scout-alerts/internal/resilience/retry"
	"scout-alerts/internal/usecase/poll"
)

// HTTPFetcher downloads provider API responses.
//
// Features:
//   - SSRF prevention on the request URL and every redirect target
//   - One circuit breaker per upstream host
//   - Size limiting while reading the body
//   - A fixed per-request timeout and no automatic retry
//
// Thread safety: HTTPFetcher is safe for concurrent use.
type HTTPFetcher struct {
	client   *http.Client
	config   FetchConfig
	breakers *circuitbreaker.Set
}

// NewHTTPFetcher creates a fetcher with TLS 1.2+, redirect validation and
// the given limits.
func NewHTTPFetcher(cfg FetchConfig) *HTTPFetcher {
	f := &HTTPFetcher{
		config:   cfg,
		breakers: circuitbreaker.NewSet(circuitbreaker.ProviderConfig),
	}

	f.client = &http.Client{
		Timeout: cfg.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= f.config.MaxRedirects {
				return fmt.Errorf("%w: %d redirects", ErrTooManyRedirects, len(via))
			}
			if err := validateURL(req.URL.String(), f.config.DenyPrivateIPs); err != nil {
				return fmt.Errorf("redirect target validation failed: %w", err)
			}
			return nil
		},
	}
	return f
}

var _ poll.Fetcher = (*HTTPFetcher)(nil)

// Fetch implements poll.Fetcher. customize, when non-nil, runs on the
// request before it is sent (auth headers).
//
// Non-200 responses come back as *retry.HTTPError so the poller can tell
// upstream outages (5xx) from bad requests (4xx).
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string, customize func(*http.Request)) ([]byte, error) {
	if err := validateURL(rawURL, f.config.DenyPrivateIPs); err != nil {
		return nil, err
	}

	cb := f.breakers.Get(hostOf(rawURL))
	body, err := circuitbreaker.Do(cb, func() ([]byte, error) {
		return f.doFetch(ctx, rawURL, customize)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) {
			slog.Warn("provider circuit breaker open, request rejected",
				slog.String("service", cb.Name()),
				slog.String("url", rawURL),
				slog.String("state", cb.State().String()))
		}
		return nil, err
	}
	return body, nil
}

func (f *HTTPFetcher) doFetch(ctx context.Context, rawURL string, customize func(*http.Request)) ([]byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, f.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %v", ErrInvalidURL, err)
	}
	req.Header.Set("User-Agent", f.config.UserAgent)
	req.Header.Set("Accept", "application/json")
	if customize != nil {
		customize(req)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		// ボディは診断用に先頭だけ読む
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &retry.HTTPError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("%s: %s", resp.Status, string(snippet)),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.config.MaxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(body)) > f.config.MaxBodySize {
		return nil, fmt.Errorf("%w: response size exceeds limit %d bytes", poll.ErrMalformedResponse, f.config.MaxBodySize)
	}
	return body, nil
}

// hostOf keys breakers by upstream host.
func hostOf(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		return u.Host
	}
	return "unknown"
}
