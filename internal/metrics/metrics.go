// Package metrics exposes Prometheus metrics for verification API calls and
// staff workflow actions.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the server
type Metrics struct {
	// Verification API calls by endpoint and outcome (ok or error code)
	APIRequests *prometheus.CounterVec

	// Verification API call latency by endpoint
	APILatency *prometheus.HistogramVec

	// Workflow actions by action and outcome
	WorkflowActions *prometheus.CounterVec
}

// New creates the metrics and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		APIRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "verification_api_requests_total",
			Help: "Total verification API requests by endpoint and outcome",
		}, []string{"endpoint", "outcome"}),

		APILatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "verification_api_request_duration_seconds",
			Help:    "Duration of verification API requests by endpoint",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"endpoint"}),

		WorkflowActions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "verification_workflow_actions_total",
			Help: "Total staff workflow actions by action and outcome",
		}, []string{"action", "outcome"}),
	}
}

// ObserveAPIRequest records a single verification API call
func (m *Metrics) ObserveAPIRequest(endpoint, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.APIRequests.WithLabelValues(endpoint, outcome).Inc()
	m.APILatency.WithLabelValues(endpoint).Observe(d.Seconds())
}

// IncrementAction records the outcome of a workflow action
func (m *Metrics) IncrementAction(action, outcome string) {
	if m != nil {
		m.WorkflowActions.WithLabelValues(action, outcome).Inc()
	}
}
