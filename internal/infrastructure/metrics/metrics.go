// Package metrics registers Prometheus instruments for the billing
// workflow. Handlers record observations through the package functions;
// nothing here touches the domain layer.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "liquimed_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec

	fetchTotal   *prometheus.CounterVec
	fetchLatency *prometheus.HistogramVec

	settleTotal   *prometheus.CounterVec
	settleLatency *prometheus.HistogramVec
	settleLines   prometheus.Histogram

	invoiceTotal *prometheus.CounterVec
	voidTotal    *prometheus.CounterVec

	exportTotal *prometheus.CounterVec
)

// Init registers all instruments. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		httpRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "http_requests_total",
				Help: "Total HTTP requests by method, route and status",
			},
			[]string{"method", "route", "status"},
		)
		httpLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		)

		fetchTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "clinical_fetch_total",
				Help: "Total clinical source fetches by result",
			},
			[]string{"result"},
		)
		fetchLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "clinical_fetch_duration_seconds",
				Help:    "Clinical source fetch latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		settleTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "settlements_total",
				Help: "Total settlement attempts by result",
			},
			[]string{"result"},
		)
		settleLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "settlement_duration_seconds",
				Help:    "Settlement latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		settleLines = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "settlement_line_items",
				Help:    "Line items per settlement batch",
				Buckets: []float64{1, 10, 50, 100, 500, 1000, 5000},
			},
		)

		invoiceTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "invoices_total",
				Help: "Total invoicing attempts by result",
			},
			[]string{"result"},
		)
		voidTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "voids_total",
				Help: "Total void operations by entity and result",
			},
			[]string{"entity", "result"},
		)

		exportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "exports_total",
				Help: "Total batch exports by format and result",
			},
			[]string{"format", "result"},
		)

		prometheus.MustRegister(
			httpRequests,
			httpLatency,
			fetchTotal,
			fetchLatency,
			settleTotal,
			settleLatency,
			settleLines,
			invoiceTotal,
			voidTotal,
			exportTotal,
		)
	})
}

// ObserveHTTP records one completed HTTP request.
func ObserveHTTP(method, route, status string, duration time.Duration) {
	if httpRequests != nil {
		httpRequests.WithLabelValues(method, route, status).Inc()
	}
	if httpLatency != nil {
		httpLatency.WithLabelValues(method, route).Observe(duration.Seconds())
	}
}

// ObserveFetch records a clinical source fetch.
func ObserveFetch(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if fetchTotal != nil {
		fetchTotal.WithLabelValues(result).Inc()
	}
	if fetchLatency != nil {
		fetchLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// ObserveSettle records a settlement attempt. lineCount is only
// observed on success.
func ObserveSettle(result string, lineCount int, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if settleTotal != nil {
		settleTotal.WithLabelValues(result).Inc()
	}
	if settleLatency != nil {
		settleLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
	if result == resultSuccess && settleLines != nil {
		settleLines.Observe(float64(lineCount))
	}
}

// IncInvoice increments the invoicing counter.
func IncInvoice(result string) {
	if result == "" {
		result = resultSuccess
	}
	if invoiceTotal != nil {
		invoiceTotal.WithLabelValues(result).Inc()
	}
}

// IncVoid increments the void counter for "batch" or "invoice".
func IncVoid(entity, result string) {
	if result == "" {
		result = resultSuccess
	}
	if voidTotal != nil {
		voidTotal.WithLabelValues(entity, result).Inc()
	}
}

// IncExport increments the export counter.
func IncExport(format, result string) {
	if result == "" {
		result = resultSuccess
	}
	if exportTotal != nil {
		exportTotal.WithLabelValues(format, result).Inc()
	}
}

// Exported result constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
)
