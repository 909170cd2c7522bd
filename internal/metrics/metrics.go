// Package metrics holds the pipeline's prometheus collectors. Metrics are
// observability only; no correctness decision reads them.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the pipeline collectors so they can be registered once
// and passed to the components that observe them
type Metrics struct {
	RunsTotal        *prometheus.CounterVec
	VendorCallsTotal *prometheus.CounterVec
	VendorRetries    prometheus.Counter
	AnalysisDuration prometheus.Histogram
}

// New creates and registers the pipeline collectors
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "snapshot_runs_total",
			Help: "Pipeline runs by outcome (completed, duplicate, failed, rejected)",
		}, []string{"outcome"}),
		VendorCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vision_vendor_calls_total",
			Help: "Vendor analysis calls by HTTP status (0 = network error)",
		}, []string{"status"}),
		VendorRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vision_vendor_retries_total",
			Help: "Vendor analysis retries after transient failures",
		}),
		AnalysisDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "vision_vendor_call_duration_seconds",
			Help:    "Duration of individual vendor analysis calls",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.RunsTotal, m.VendorCallsTotal, m.VendorRetries, m.AnalysisDuration)
	return m
}

// ObserveRun records one pipeline run outcome
func (m *Metrics) ObserveRun(outcome string) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(outcome).Inc()
}

// ObserveVendorCall implements vision.CallObserver
func (m *Metrics) ObserveVendorCall(status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.VendorCallsTotal.WithLabelValues(strconv.Itoa(status)).Inc()
	m.AnalysisDuration.Observe(duration.Seconds())
}

// ObserveVendorRetry implements vision.CallObserver
func (m *Metrics) ObserveVendorRetry() {
	if m == nil {
		return
	}
	m.VendorRetries.Inc()
}
