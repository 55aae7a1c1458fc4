package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	CarrierErrors   *prometheus.CounterVec
	TokenLookups    *prometheus.CounterVec
}

// NewMetrics creates the metrics and registers them with reg. A nil reg means
// the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dhl_requests_total",
				Help: "Total number of DHL API requests by operation and HTTP status",
			},
			[]string{"operation", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dhl_request_duration_seconds",
				Help:    "DHL API request duration in seconds by operation",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		CarrierErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dhl_carrier_errors_total",
				Help: "Total DHL errors by operation and error type",
			},
			[]string{"operation", "error_type"},
		),
		TokenLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dhl_token_lookups_total",
				Help: "Access token cache lookups by result",
			},
			[]string{"result"},
		),
	}
}

// RecordRequest records a request metric.
func (m *Metrics) RecordRequest(operation, status string, duration float64) {
	m.RequestsTotal.WithLabelValues(operation, status).Inc()
	m.RequestDuration.WithLabelValues(operation).Observe(duration)
}

// RecordError records a carrier error metric.
func (m *Metrics) RecordError(operation, errorType string) {
	m.CarrierErrors.WithLabelValues(operation, errorType).Inc()
}

// RecordTokenLookup counts a token cache hit, miss or forced refresh.
func (m *Metrics) RecordTokenLookup(result string) {
	m.TokenLookups.WithLabelValues(result).Inc()
}
