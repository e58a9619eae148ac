package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OrderMetrics содержит метрики операций над заказами.
type OrderMetrics struct {
	created       prometheus.Counter
	createFailed  *prometheus.CounterVec
	statusChanged *prometheus.CounterVec
	deleted       prometheus.Counter
	compensations prometheus.Counter
	versionRetry  prometheus.Counter

	duration *prometheus.HistogramVec
	inFlight prometheus.Gauge
}

// NewOrderMetrics создаёт метрики заказов в DefaultRegisterer.
func NewOrderMetrics() *OrderMetrics {
	return NewOrderMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewOrderMetricsWithRegisterer создаёт метрики заказов в указанном registerer.
func NewOrderMetricsWithRegisterer(registerer prometheus.Registerer) *OrderMetrics {
	return &OrderMetrics{
		created: registerCounter(registerer, prometheus.CounterOpts{
			Name: "backoffice_orders_created_total",
			Help: "Total number of orders created",
		}),
		createFailed: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "backoffice_orders_create_failed_total",
			Help: "Total number of rejected order creations by reason",
		}, []string{"reason"}),
		statusChanged: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "backoffice_orders_status_changed_total",
			Help: "Total number of order status transitions by target status",
		}, []string{"status"}),
		deleted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "backoffice_orders_deleted_total",
			Help: "Total number of deleted orders",
		}),
		compensations: registerCounter(registerer, prometheus.CounterOpts{
			Name: "backoffice_orders_compensations_total",
			Help: "Total number of order creations rolled back by compensating releases",
		}),
		versionRetry: registerCounter(registerer, prometheus.CounterOpts{
			Name: "backoffice_orders_version_conflict_retries_total",
			Help: "Total number of retries caused by optimistic locking conflicts",
		}),
		duration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "backoffice_order_operation_duration_seconds",
			Help:    "Duration of order operations in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"operation"}),
		inFlight: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "backoffice_order_operations_in_flight",
			Help: "Number of order operations currently executing",
		}),
	}
}

// Begin отмечает старт операции и возвращает функцию завершения.
func (m *OrderMetrics) Begin(operation string) func() {
	started := time.Now()
	m.inFlight.Inc()
	return func() {
		m.inFlight.Dec()
		m.duration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
	}
}

// RecordCreated увеличивает счётчик созданных заказов.
func (m *OrderMetrics) RecordCreated() {
	m.created.Inc()
}

// RecordCreateFailed фиксирует отказ в создании заказа.
func (m *OrderMetrics) RecordCreateFailed(reason string) {
	m.createFailed.WithLabelValues(reason).Inc()
}

// RecordStatusChanged фиксирует переход заказа в status.
func (m *OrderMetrics) RecordStatusChanged(status string) {
	m.statusChanged.WithLabelValues(status).Inc()
}

// RecordDeleted увеличивает счётчик удалённых заказов.
func (m *OrderMetrics) RecordDeleted() {
	m.deleted.Inc()
}

// RecordCompensation фиксирует откат резервов при неудачном создании.
func (m *OrderMetrics) RecordCompensation() {
	m.compensations.Inc()
}

// RecordVersionRetry фиксирует повтор из-за конфликта версий.
func (m *OrderMetrics) RecordVersionRetry() {
	m.versionRetry.Inc()
}
