package csrfclient

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultTokenPath is the token endpoint path used when Config.TokenPath is empty.
	DefaultTokenPath = "/api/v1/auth/csrf-token"

	// DefaultHeaderName carries the token on requests and rotated tokens on responses.
	DefaultHeaderName = "X-CSRF-Token"

	// DefaultMaxRetries is the number of CSRF retries allowed per token generation.
	DefaultMaxRetries = 1

	defaultFetchTimeout = 30 * time.Second
)

// Config holds the immutable settings of a Manager.
// Start from DefaultConfig; the zero value disables retries.
type Config struct {
	// Origin is the base URL of the API, e.g. "https://app.example.com". Required.
	Origin string

	// TokenPath is appended to Origin to form the token endpoint.
	TokenPath string

	// HeaderName is the header used to send the token and to receive rotated tokens.
	HeaderName string

	// MaxRetries bounds the CSRF retries per token generation.
	MaxRetries int

	// RetryOnError enables the single retry with a forced refresh on CSRF failures.
	RetryOnError bool

	// Debug enables debug-level log lines.
	Debug bool
}

// DefaultConfig returns the documented defaults with the given origin.
func DefaultConfig(origin string) Config {
	return Config{
		Origin:       origin,
		TokenPath:    DefaultTokenPath,
		HeaderName:   DefaultHeaderName,
		MaxRetries:   DefaultMaxRetries,
		RetryOnError: true,
	}
}

func (c Config) withDefaults() Config {
	if c.TokenPath == "" {
		c.TokenPath = DefaultTokenPath
	}
	if c.HeaderName == "" {
		c.HeaderName = DefaultHeaderName
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	return c
}

// Metrics receives counters from the Manager.
// The metrics package provides a Prometheus implementation.
type Metrics interface {
	RecordFetch(ok bool, duration time.Duration)
	RecordRotation()
	RecordRetry(outcome string)
	RecordMissingToken()
}

// Retry outcomes passed to Metrics.RecordRetry.
const (
	RetryOutcomeSucceeded     = "succeeded"
	RetryOutcomeFailed        = "failed"
	RetryOutcomeExhausted     = "exhausted"
	RetryOutcomeRefreshFailed = "refresh_failed"
)

type nopMetrics struct{}

func (nopMetrics) RecordFetch(bool, time.Duration) {}
func (nopMetrics) RecordRotation()                 {}
func (nopMetrics) RecordRetry(string)              {}
func (nopMetrics) RecordMissingToken()             {}

// Option is a functional option for configuring Manager.
type Option func(*Manager)

// WithHTTPClient sets the client used for token fetches.
// Cookies are only sent with the fetch if the client carries a Jar.
func WithHTTPClient(client *http.Client) Option {
	return func(m *Manager) {
		m.client = client
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithPrintfLogger logs through any printf-style logger such as log.Default().
// A nil Printer keeps the current logger.
func WithPrintfLogger(p Printer) Option {
	return func(m *Manager) {
		if p == nil {
			return
		}
		m.logger = printfLogger{p: p}
	}
}

// WithZapLogger logs through a zap logger. A nil logger keeps the current logger.
func WithZapLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		if logger == nil {
			return
		}
		m.logger = zapLogger{s: logger.Sugar()}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(metrics Metrics) Option {
	return func(m *Manager) {
		m.metrics = metrics
	}
}
