// Package circuitbreaker wraps github.com/sony/gobreaker with the presets used
// for provider APIs, user feeds, delivery transports and operator webhooks.
package circuitbreaker

import (
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// Config holds the configuration for a circuit breaker.
type Config struct {
	// Name identifies the breaker in logs.
	Name string

	// MaxRequests is the number of trial requests let through while half-open.
	MaxRequests uint32

	// Interval is the closed-state window after which counts are cleared.
	Interval time.Duration

	// Timeout is how long the breaker stays open before going half-open.
	Timeout time.Duration

	// FailureThreshold is the failure ratio that trips the breaker, e.g. 0.6.
	FailureThreshold float64

	// MinRequests is the sample size required before the ratio is considered.
	MinRequests uint32
}

// DefaultConfig returns the general-purpose preset.
func DefaultConfig(name string) Config {
	return Config{
		Name:             name,
		MaxRequests:      3,
		Interval:         30 * time.Second,
		Timeout:          60 * time.Second,
		FailureThreshold: 0.6,
		MinRequests:      5,
	}
}

// ProviderConfig is the preset for one provider API host. A check cycle
// polls the same host many times, so the sample is larger and the breaker
// tolerates more noise before it opens.
func ProviderConfig(host string) Config {
	cfg := DefaultConfig("provider-" + host)
	cfg.Interval = time.Minute
	cfg.Timeout = 2 * time.Minute
	cfg.FailureThreshold = 0.7
	cfg.MinRequests = 10
	return cfg
}

// FeedFetchConfig is the preset for user-supplied RSS/Atom hosts.
func FeedFetchConfig(host string) Config {
	cfg := DefaultConfig("feed-fetch-" + host)
	cfg.Interval = time.Minute
	cfg.Timeout = 30 * time.Minute
	cfg.FailureThreshold = 0.8
	return cfg
}

// TransportConfig is the preset for the email and SMS transports.
// An open transport breaker leaves deliveries queued for the next run.
func TransportConfig(mechanism string) Config {
	cfg := DefaultConfig("transport-" + mechanism)
	cfg.MaxRequests = 2
	cfg.Interval = time.Minute
	cfg.Timeout = 5 * time.Minute
	cfg.FailureThreshold = 0.5
	return cfg
}

// WebhookConfig is the preset for operator report webhooks (Slack, Discord).
func WebhookConfig(channel string) Config {
	cfg := DefaultConfig("webhook-" + channel)
	cfg.MaxRequests = 1
	cfg.Interval = time.Minute
	cfg.Timeout = 5 * time.Minute
	return cfg
}

// CircuitBreaker is a named gobreaker.CircuitBreaker.
type CircuitBreaker struct {
	breaker *gobreaker.CircuitBreaker
	name    string
}

// New creates a breaker that trips once at least MinRequests were seen and
// the failure ratio reaches FailureThreshold. State changes are logged.
func New(cfg Config) *CircuitBreaker {
	minRequests, threshold := cfg.MinRequests, cfg.FailureThreshold
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < minRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state changed",
				slog.String("circuit", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	}
	return &CircuitBreaker{breaker: gobreaker.NewCircuitBreaker(settings), name: cfg.Name}
}

// Execute runs fn through the breaker. While open it fails fast with
// gobreaker.ErrOpenState; while half-open beyond MaxRequests with
// gobreaker.ErrTooManyRequests.
func (cb *CircuitBreaker) Execute(fn func() (interface{}, error)) (interface{}, error) {
	return cb.breaker.Execute(fn)
}

// Do is Execute with a typed result.
func Do[T any](cb *CircuitBreaker, fn func() (T, error)) (T, error) {
	res, err := cb.breaker.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return res.(T), nil
}

func (cb *CircuitBreaker) State() gobreaker.State {
	return cb.breaker.State()
}

func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// IsOpen reports whether calls are currently rejected.
func (cb *CircuitBreaker) IsOpen() bool {
	return cb.breaker.State() == gobreaker.StateOpen
}

// Set lazily creates one breaker per key (an upstream host, a channel name).
// It is safe for concurrent use.
type Set struct {
	preset func(key string) Config

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

// NewSet creates a Set whose breakers are configured by preset.
func NewSet(preset func(key string) Config) *Set {
	return &Set{preset: preset, breakers: make(map[string]*CircuitBreaker)}
}

// Get returns the breaker of key, creating it on first use.
func (s *Set) Get(key string) *CircuitBreaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	cb, ok := s.breakers[key]
	if !ok {
		cb = New(s.preset(key))
		s.breakers[key] = cb
	}
	return cb
}

// Len returns the number of breakers created so far.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.breakers)
}
