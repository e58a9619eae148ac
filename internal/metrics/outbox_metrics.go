package metrics

import "github.com/prometheus/client_golang/prometheus"

// OutboxMetrics метрики доставки событий из transactional outbox.
type OutboxMetrics struct {
	attempts        *prometheus.CounterVec
	pending         prometheus.Gauge
	oldestPendingAt prometheus.Gauge
}

func NewOutboxMetrics() *OutboxMetrics {
	return NewOutboxMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func NewOutboxMetricsWithRegisterer(registerer prometheus.Registerer) *OutboxMetrics {
	return &OutboxMetrics{
		attempts: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "backoffice_outbox_publish_attempts_total",
			Help: "Total number of outbox publish attempts grouped by result",
		}, []string{"result"}),
		pending: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "backoffice_outbox_pending_records",
			Help: "Current number of pending records in the outbox",
		}),
		oldestPendingAt: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "backoffice_outbox_oldest_pending_age_seconds",
			Help: "Age in seconds of the oldest pending outbox record",
		}),
	}
}

// RecordAttempt учитывает попытку публикации: sent, retry_error, failed, dlq_failed.
func (m *OutboxMetrics) RecordAttempt(result string) {
	m.attempts.WithLabelValues(result).Inc()
}

// SetBacklog выставляет размер очереди и возраст самой старой записи.
func (m *OutboxMetrics) SetBacklog(pending int, oldestAgeSeconds float64) {
	m.pending.Set(float64(pending))
	m.oldestPendingAt.Set(max(oldestAgeSeconds, 0))
}
