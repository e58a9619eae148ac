package metrics

import "github.com/prometheus/client_golang/prometheus"

// CleanupMetrics метрики очистки просроченных ключей идемпотентности.
type CleanupMetrics struct {
	runs        *prometheus.CounterVec
	deleted     prometheus.Counter
	lastDeleted prometheus.Gauge
}

func NewCleanupMetrics() *CleanupMetrics {
	return NewCleanupMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func NewCleanupMetricsWithRegisterer(registerer prometheus.Registerer) *CleanupMetrics {
	return &CleanupMetrics{
		runs: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "backoffice_idempotency_cleanup_runs_total",
			Help: "Total number of idempotency cleanup runs grouped by result",
		}, []string{"result"}),
		deleted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "backoffice_idempotency_cleanup_deleted_total",
			Help: "Total number of deleted expired idempotency records",
		}),
		lastDeleted: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "backoffice_idempotency_cleanup_last_deleted",
			Help: "Number of records deleted by the last cleanup run",
		}),
	}
}

// RecordRun фиксирует завершённый прогон и число удалённых в нём записей.
func (m *CleanupMetrics) RecordRun(deleted int) {
	m.runs.WithLabelValues("ok").Inc()
	m.lastDeleted.Set(float64(deleted))
}

// RecordFailure фиксирует прогон, прерванный ошибкой хранилища.
func (m *CleanupMetrics) RecordFailure() {
	m.runs.WithLabelValues("error").Inc()
}

// RecordDeleted учитывает удалённую порцию.
func (m *CleanupMetrics) RecordDeleted(n int) {
	m.deleted.Add(float64(n))
}
