package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestOrderMetrics(t *testing.T) {
	m := NewOrderMetrics(prometheus.NewRegistry())

	m.ObserveOperation("create", "ok", 10*time.Millisecond)
	m.ObserveOperation("create", "ok", 20*time.Millisecond)
	m.ReconciliationRequired("create", "payment")
	m.DeliveryFailed("ORDER_CREATED")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Operations().WithLabelValues("create", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Reconciliations().WithLabelValues("create", "payment")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DeliveryFailures().WithLabelValues("ORDER_CREATED")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *OrderMetrics
	assert.NotPanics(t, func() {
		m.ObserveOperation("get", "ok", time.Millisecond)
		m.PublishAttempt("ORDER_DELETED", "error")
		m.DeadLettered("written")
	})
}
