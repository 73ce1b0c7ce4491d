// Package metrics defines the Prometheus collectors exported on /metrics.
// Collectors are registered once at package init with the default registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "adpilot"

var (
	// HTTPRequestsTotal counts served requests by route template and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests served",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDuration observes request latency by route template.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// PlatformCallsTotal counts ad platform calls by operation and outcome
	// ("success", "retryable", "permanent").
	PlatformCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "platform",
			Name:      "calls_total",
			Help:      "Total number of ad platform call attempts",
		},
		[]string{"operation", "outcome"},
	)

	// PlatformRetriesTotal counts backoff waits before a retried call.
	PlatformRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "platform",
			Name:      "retries_total",
			Help:      "Total number of ad platform retries",
		},
		[]string{"operation"},
	)

	// PlatformCallDuration observes single-attempt latency.
	PlatformCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "platform",
			Name:      "call_duration_seconds",
			Help:      "Ad platform call latency in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"operation"},
	)

	// GeneratorCallsTotal counts content provider calls by operation and outcome.
	GeneratorCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "generator",
			Name:      "calls_total",
			Help:      "Total number of content provider calls",
		},
		[]string{"operation", "outcome"},
	)

	// ABTestEvaluationsTotal counts evaluations by outcome ("completed",
	// "conflict", "error").
	ABTestEvaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "abtest",
			Name:      "evaluations_total",
			Help:      "Total number of A/B test evaluations",
		},
		[]string{"outcome"},
	)

	// OptimizerRulesTriggeredTotal counts triggered rules by action and mode.
	OptimizerRulesTriggeredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "optimizer",
			Name:      "rules_triggered_total",
			Help:      "Total number of optimizer rules that triggered",
		},
		[]string{"action", "dry_run"},
	)

	// EventsPublishedTotal counts analytics events handed to the broker.
	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Total number of analytics events published",
		},
		[]string{"topic", "outcome"},
	)
)
