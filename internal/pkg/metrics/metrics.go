// internal/pkg/metrics/metrics.go
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "orderhub"

// OrderMetrics 汇总订单协调器的所有指标。nil 接收者上的调用是空操作。
type OrderMetrics struct {
	operations       *prometheus.CounterVec
	latency          *prometheus.HistogramVec
	reconciliations  *prometheus.CounterVec
	publishAttempts  *prometheus.CounterVec
	deliveryFailures *prometheus.CounterVec
	deadLetters      *prometheus.CounterVec
}

// NewOrderMetrics 在给定的 Registerer 上注册指标。生产环境传 prometheus.DefaultRegisterer。
func NewOrderMetrics(reg prometheus.Registerer) *OrderMetrics {
	f := promauto.With(reg)
	return &OrderMetrics{
		operations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_operations_total",
			Help:      "Order coordinator operations by outcome.",
		}, []string{"operation", "outcome"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "order_operation_duration_seconds",
			Help:      "Order coordinator operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		reconciliations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_reconciliation_required_total",
			Help:      "Faults after a durable commit that need reconciliation.",
		}, []string{"operation", "step"}),
		publishAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_publish_attempts_total",
			Help:      "Event bus publish attempts by result.",
		}, []string{"event_type", "result"}),
		deliveryFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_delivery_failures_total",
			Help:      "Events whose bounded retry budget was exhausted.",
		}, []string{"event_type"}),
		deadLetters: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_dead_letters_total",
			Help:      "Events handed to the dead letter sink.",
		}, []string{"result"}),
	}
}

func (m *OrderMetrics) ObserveOperation(operation, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
	m.latency.WithLabelValues(operation).Observe(elapsed.Seconds())
}

func (m *OrderMetrics) ReconciliationRequired(operation, step string) {
	if m == nil {
		return
	}
	m.reconciliations.WithLabelValues(operation, step).Inc()
}

func (m *OrderMetrics) PublishAttempt(eventType, result string) {
	if m == nil {
		return
	}
	m.publishAttempts.WithLabelValues(eventType, result).Inc()
}

func (m *OrderMetrics) DeliveryFailed(eventType string) {
	if m == nil {
		return
	}
	m.deliveryFailures.WithLabelValues(eventType).Inc()
}

func (m *OrderMetrics) DeadLettered(result string) {
	if m == nil {
		return
	}
	m.deadLetters.WithLabelValues(result).Inc()
}

// Operations/DeliveryFailures/Reconciliations 暴露给测试用 testutil 读取
func (m *OrderMetrics) Operations() *prometheus.CounterVec       { return m.operations }
func (m *OrderMetrics) DeliveryFailures() *prometheus.CounterVec { return m.deliveryFailures }
func (m *OrderMetrics) Reconciliations() *prometheus.CounterVec  { return m.reconciliations }
func (m *OrderMetrics) PublishAttempts() *prometheus.CounterVec  { return m.publishAttempts }
func (m *OrderMetrics) DeadLetters() *prometheus.CounterVec      { return m.deadLetters }
