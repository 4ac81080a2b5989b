// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "geniq"

var (
	// RequestsTotal counts generation requests by dataset type and outcome.
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "requests_total",
		Help:      "Generation requests by dataset type and outcome",
	}, []string{"dataset_type", "outcome"})

	// RequestDuration tracks end-to-end request latency.
	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "request_duration_seconds",
		Help:      "End-to-end generation request duration",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s to ~4m
	}, []string{"dataset_type"})

	// ItemsTotal counts items by final state (accepted, dropped).
	ItemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "items_total",
		Help:      "Generated items by final state",
	}, []string{"dataset_type", "state"})

	// RegenerationsTotal counts single-item regeneration attempts by result.
	RegenerationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "retry",
		Name:      "regenerations_total",
		Help:      "Single-item regeneration attempts by result",
	}, []string{"result"})

	// GeneratorCalls counts upstream model calls by provider and result.
	GeneratorCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "generator",
		Name:      "calls_total",
		Help:      "Upstream model calls by provider and result",
	}, []string{"provider", "result"})

	// GeneratorLatency tracks upstream model call latency.
	GeneratorLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "generator",
		Name:      "call_duration_seconds",
		Help:      "Upstream model call duration",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 11), // 100ms to ~100s
	}, []string{"provider"})

	// GuardrailFlags counts guardrail findings by check.
	GuardrailFlags = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "guardrails",
		Name:      "findings_total",
		Help:      "Flagged items and ethics violations by check",
	}, []string{"check", "domain"})
)

// ObserveGeneratorCall records one upstream call.
func ObserveGeneratorCall(provider string, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	GeneratorCalls.WithLabelValues(provider, result).Inc()
	GeneratorLatency.WithLabelValues(provider).Observe(d.Seconds())
}
