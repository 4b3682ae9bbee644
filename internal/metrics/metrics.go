// Package metrics exposes Prometheus collectors for the SDK. Connections
// record connects, per-operation requests, verification outcomes and
// submissions; hosts embed Registry into their own metrics endpoint.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Registry holds the SDK-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	connects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "flaresdk",
			Subsystem: "connector",
			Name:      "connects_total",
			Help:      "Total connection attempts per service.",
		},
		[]string{"service", "outcome"},
	)

	requests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "flaresdk",
			Subsystem: "connector",
			Name:      "requests_total",
			Help:      "Total data operations per service and operation.",
		},
		[]string{"service", "op"},
	)

	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "flaresdk",
			Subsystem: "connector",
			Name:      "request_duration_seconds",
			Help:      "Duration of data operations.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"service", "op"},
	)

	verifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "flaresdk",
			Subsystem: "attestation",
			Name:      "verifications_total",
			Help:      "Attestation verification outcomes.",
		},
		[]string{"service", "outcome"},
	)

	submissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "flaresdk",
			Subsystem: "connector",
			Name:      "submissions_total",
			Help:      "Submission outcomes per service.",
		},
		[]string{"service", "outcome"},
	)
)

func init() {
	Registry.MustRegister(connects, requests, requestDuration, verifications, submissions)
}

// ObserveConnect records one connection attempt.
func ObserveConnect(service string, err error) {
	connects.WithLabelValues(service, outcome(err == nil)).Inc()
}

// ObserveRequest records one data operation and its duration.
func ObserveRequest(service, op string, elapsed time.Duration) {
	requests.WithLabelValues(service, op).Inc()
	requestDuration.WithLabelValues(service, op).Observe(elapsed.Seconds())
}

// ObserveVerification records one attestation verification outcome.
func ObserveVerification(service string, verified bool) {
	verifications.WithLabelValues(service, outcome(verified)).Inc()
}

// ObserveSubmission records one submission outcome.
func ObserveSubmission(service string, success bool) {
	submissions.WithLabelValues(service, outcome(success)).Inc()
}

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
