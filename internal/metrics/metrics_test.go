package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveAPIRequest(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveAPIRequest("case/approve", "ok", 20*time.Millisecond)
	m.ObserveAPIRequest("case/approve", "ok", 30*time.Millisecond)
	m.ObserveAPIRequest("case/approve", "E402", time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.APIRequests.WithLabelValues("case/approve", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.APIRequests.WithLabelValues("case/approve", "E402")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.APILatency))
}

func TestIncrementAction(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.IncrementAction("approve", "refused")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.WorkflowActions.WithLabelValues("approve", "refused")))
}

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.ObserveAPIRequest("worklist", "ok", time.Millisecond)
		m.IncrementAction("approve", "ok")
	})
}
