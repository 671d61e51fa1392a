package observability

import (
	"fmt"
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type moduleMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	escrowMetricsOnce sync.Once
	escrowRegistry    *EscrowMetrics
)

// ModuleMetrics returns the lazily-initialised registry used to record HTTP
// API activity.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "escrow",
				Subsystem: "api",
				Name:      "requests_total",
				Help:      "Total API requests segmented by module and method.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "escrow",
				Subsystem: "api",
				Name:      "errors_total",
				Help:      "Total API errors segmented by module, method, and status code.",
			}, []string{"module", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "escrow",
				Subsystem: "api",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for API handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "escrow",
				Subsystem: "api",
				Name:      "throttles_total",
				Help:      "Count of requests rejected due to throttling policies.",
			}, []string{"module", "reason"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
			moduleRegistry.throttles,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of an API request. The status code should be
// the HTTP status that was ultimately written to the response writer.
func (m *moduleMetrics) Observe(module, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(module, method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(module, method, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for the supplied module and
// reason. Reasons should be stable strings such as "rate_limit".
func (m *moduleMetrics) RecordThrottle(module, reason string) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(module, reason).Inc()
}

// EscrowMetrics wraps collectors tracking state transitions and payouts.
type EscrowMetrics struct {
	calls    *prometheus.CounterVec
	failures *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	payouts  *prometheus.CounterVec
	volume   *prometheus.CounterVec
	events   *prometheus.CounterVec
	paused   prometheus.Gauge
}

// Escrow exposes the metrics registry for the escrow processor.
func Escrow() *EscrowMetrics {
	escrowMetricsOnce.Do(func() {
		escrowRegistry = &EscrowMetrics{
			calls: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "escrow",
				Subsystem: "processor",
				Name:      "calls_total",
				Help:      "Count of state transitions segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			failures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "escrow",
				Subsystem: "processor",
				Name:      "failures_total",
				Help:      "Count of rejected state transitions segmented by operation and error code.",
			}, []string{"operation", "code"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "escrow",
				Subsystem: "processor",
				Name:      "call_duration_seconds",
				Help:      "Latency distribution for state transitions.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			payouts: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "escrow",
				Subsystem: "payout",
				Name:      "total",
				Help:      "Count of escrow payouts segmented by reason.",
			}, []string{"reason"}),
			volume: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "escrow",
				Subsystem: "payout",
				Name:      "amount_total",
				Help:      "Sum of paid out amounts segmented by currency.",
			}, []string{"currency"}),
			events: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "escrow",
				Subsystem: "events",
				Name:      "published_total",
				Help:      "Count of committed events segmented by type.",
			}, []string{"type"}),
			paused: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "escrow",
				Subsystem: "ledger",
				Name:      "deposits_paused",
				Help:      "Indicates whether new deposits are paused (1) or accepted (0).",
			}),
		}
		prometheus.MustRegister(
			escrowRegistry.calls,
			escrowRegistry.failures,
			escrowRegistry.latency,
			escrowRegistry.payouts,
			escrowRegistry.volume,
			escrowRegistry.events,
			escrowRegistry.paused,
		)
	})
	return escrowRegistry
}

// ObserveCall records a state transition. code is the stable error code of a
// rejected call and ignored on success.
func (m *EscrowMetrics) ObserveCall(operation string, err error, code string, d time.Duration) {
	if m == nil {
		return
	}
	operation = labelOr(operation, "unknown")
	outcome := "committed"
	if err != nil {
		outcome = "rejected"
		m.failures.WithLabelValues(operation, labelOr(code, "internal")).Inc()
	}
	m.calls.WithLabelValues(operation, outcome).Inc()
	m.latency.WithLabelValues(operation).Observe(d.Seconds())
}

// RecordPayout counts a payout and adds its total to the currency volume.
func (m *EscrowMetrics) RecordPayout(reason, currency string, total *big.Int) {
	if m == nil {
		return
	}
	m.payouts.WithLabelValues(labelOr(reason, "unknown")).Inc()
	m.volume.WithLabelValues(labelOr(currency, "native")).Add(bigToFloat(total))
}

// RecordEvent counts a committed event.
func (m *EscrowMetrics) RecordEvent(eventType string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(labelOr(eventType, "unknown")).Inc()
}

// SetPaused toggles the deposits_paused gauge.
func (m *EscrowMetrics) SetPaused(paused bool) {
	if m == nil {
		return
	}
	if paused {
		m.paused.Set(1)
		return
	}
	m.paused.Set(0)
}

func labelOr(value, fallback string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	return trimmed
}

func bigToFloat(value *big.Int) float64 {
	if value == nil {
		return 0
	}
	floatVal, acc := new(big.Float).SetInt(value).Float64()
	if acc != big.Exact {
		// Guard against NaN/Inf when conversion fails.
		if math.IsNaN(floatVal) || math.IsInf(floatVal, 0) {
			return 0
		}
	}
	return floatVal
}
