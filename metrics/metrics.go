// Package metrics exports csrfclient activity as Prometheus metrics.
package metrics

import (
	"time"

	"github.com/AmmannChristian/go-csrfx/csrfclient"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements csrfclient.Metrics.
type Recorder struct {
	fetches       *prometheus.CounterVec
	fetchDuration prometheus.Histogram
	rotations     prometheus.Counter
	retries       *prometheus.CounterVec
	missing       prometheus.Counter
}

var _ csrfclient.Metrics = (*Recorder)(nil)

// NewRecorder registers the CSRF metrics on reg under namespace.
// Pass prometheus.DefaultRegisterer to expose them on the default /metrics handler.
// Registering twice on the same registry panics, as with promauto.
func NewRecorder(reg prometheus.Registerer, namespace string) *Recorder {
	factory := promauto.With(reg)

	return &Recorder{
		fetches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "csrf",
				Name:      "token_fetches_total",
				Help:      "Total number of CSRF token fetches",
			},
			[]string{"result"},
		),
		fetchDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "csrf",
				Name:      "token_fetch_duration_seconds",
				Help:      "Time taken to fetch a CSRF token",
				Buckets:   prometheus.DefBuckets,
			},
		),
		rotations: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "csrf",
				Name:      "token_rotations_total",
				Help:      "Total number of tokens rotated by the server through a response header",
			},
		),
		retries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "csrf",
				Name:      "retries_total",
				Help:      "Total number of CSRF retry decisions by outcome",
			},
			[]string{"outcome"},
		),
		missing: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "csrf",
				Name:      "missing_token_total",
				Help:      "Total number of state-changing requests sent without a token",
			},
		),
	}
}

// RecordFetch counts a token fetch and observes its duration.
func (r *Recorder) RecordFetch(ok bool, duration time.Duration) {
	result := "success"
	if !ok {
		result = "failure"
	}
	r.fetches.WithLabelValues(result).Inc()
	r.fetchDuration.Observe(duration.Seconds())
}

// RecordRotation counts a server-driven token rotation.
func (r *Recorder) RecordRotation() {
	r.rotations.Inc()
}

// RecordRetry counts a retry decision; outcome is one of the csrfclient.RetryOutcome constants.
func (r *Recorder) RecordRetry(outcome string) {
	r.retries.WithLabelValues(outcome).Inc()
}

// RecordMissingToken counts a request forwarded without a token.
func (r *Recorder) RecordMissingToken() {
	r.missing.Inc()
}
