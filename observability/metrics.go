package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the prometheus instruments for grantrelay.
type Metrics struct {
	IntakeTotal         *prometheus.CounterVec
	DeliveriesTotal     *prometheus.CounterVec
	DeliveryLatency     prometheus.Histogram
	SweepsTotal         *prometheus.CounterVec
	SweepDuration       prometheus.Histogram
	PendingRecords      prometheus.Gauge
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates the grantrelay instruments and registers them on reg.
// A nil reg leaves the instruments unregistered, which is convenient in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		IntakeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grantrelay_intake_total",
			Help: "Inbound membership events by intake status",
		}, []string{"status"}),

		DeliveriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grantrelay_deliveries_total",
			Help: "Delivery attempts by operation and outcome",
		}, []string{"operation", "outcome"}),

		DeliveryLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "grantrelay_delivery_latency_seconds",
			Help:    "Policy backend delivery latency",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),

		SweepsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grantrelay_sweeps_total",
			Help: "Completed sweeps by trigger",
		}, []string{"trigger"}),

		SweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "grantrelay_sweep_duration_seconds",
			Help:    "Duration of a full pending-record sweep",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		}),

		PendingRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "grantrelay_pending_records",
			Help: "Pending records seen by the last sweep",
		}),

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grantrelay_http_requests_total",
			Help: "Total HTTP requests",
		}, []string{"route", "method", "code"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "grantrelay_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.IntakeTotal, m.DeliveriesTotal, m.DeliveryLatency,
			m.SweepsTotal, m.SweepDuration, m.PendingRecords,
			m.HTTPRequestsTotal, m.HTTPRequestDuration,
		)
	}
	return m
}

// RecordIntake counts one inbound event with the given status.
func (m *Metrics) RecordIntake(status string) {
	m.IntakeTotal.WithLabelValues(status).Inc()
}

// RecordDelivery records a delivery attempt with its outcome and latency.
func (m *Metrics) RecordDelivery(operation, outcome string, latencySeconds float64) {
	m.DeliveriesTotal.WithLabelValues(operation, outcome).Inc()
	m.DeliveryLatency.Observe(latencySeconds)
}

// RecordSweep records a finished sweep.
func (m *Metrics) RecordSweep(trigger string, listed int, durationSeconds float64) {
	m.SweepsTotal.WithLabelValues(trigger).Inc()
	m.SweepDuration.Observe(durationSeconds)
	m.PendingRecords.Set(float64(listed))
}
