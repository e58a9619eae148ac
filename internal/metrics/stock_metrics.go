package metrics

import "github.com/prometheus/client_golang/prometheus"

// StockMetrics содержит метрики изменения остатков.
type StockMetrics struct {
	reservedUnits  prometheus.Counter
	releasedUnits  prometheus.Counter
	rejected       *prometheus.CounterVec
	releaseMissing prometheus.Counter
	journalErrors  prometheus.Counter
}

// NewStockMetrics создаёт метрики остатков в DefaultRegisterer.
func NewStockMetrics() *StockMetrics {
	return NewStockMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewStockMetricsWithRegisterer создаёт метрики остатков в указанном registerer.
func NewStockMetricsWithRegisterer(registerer prometheus.Registerer) *StockMetrics {
	return &StockMetrics{
		reservedUnits: registerCounter(registerer, prometheus.CounterOpts{
			Name: "backoffice_stock_reserved_units_total",
			Help: "Total number of stock units deducted",
		}),
		releasedUnits: registerCounter(registerer, prometheus.CounterOpts{
			Name: "backoffice_stock_released_units_total",
			Help: "Total number of stock units restored",
		}),
		rejected: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "backoffice_stock_reserve_rejected_total",
			Help: "Total number of rejected reservations by reason",
		}, []string{"reason"}),
		releaseMissing: registerCounter(registerer, prometheus.CounterOpts{
			Name: "backoffice_stock_release_missing_product_total",
			Help: "Total number of releases skipped because the product no longer exists",
		}),
		journalErrors: registerCounter(registerer, prometheus.CounterOpts{
			Name: "backoffice_stock_journal_errors_total",
			Help: "Total number of stock movements that could not be journaled",
		}),
	}
}

// RecordReserved учитывает списанные единицы.
func (m *StockMetrics) RecordReserved(qty int) {
	m.reservedUnits.Add(float64(qty))
}

// RecordReleased учитывает возвращённые единицы.
func (m *StockMetrics) RecordReleased(qty int) {
	m.releasedUnits.Add(float64(qty))
}

// RecordRejected фиксирует отказ резервирования.
func (m *StockMetrics) RecordRejected(reason string) {
	m.rejected.WithLabelValues(reason).Inc()
}

// RecordReleaseMissing фиксирует release по удалённому товару.
func (m *StockMetrics) RecordReleaseMissing() {
	m.releaseMissing.Inc()
}

// RecordJournalError фиксирует ошибку записи в журнал движений.
func (m *StockMetrics) RecordJournalError() {
	m.journalErrors.Inc()
}
