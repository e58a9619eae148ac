// Package stock реализует атомарное списание и возврат складских остатков.
package stock

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/backoffice/internal/domain"
	"github.com/vladislavdragonenkov/backoffice/internal/metrics"
)

// Ledger изменяет остатки через domain.StockStore и ведёт журнал движений.
type Ledger struct {
	store     domain.StockStore
	movements domain.MovementRepository
	metrics   *metrics.StockMetrics
	logger    *log.Entry
	now       func() time.Time
}

// Option настраивает Ledger.
type Option func(*Ledger)

// WithMovements включает журнал движений остатков.
func WithMovements(repo domain.MovementRepository) Option {
	return func(l *Ledger) {
		l.movements = repo
	}
}

// WithMetrics задаёт метрики (по умолчанию используются метрики из DefaultRegisterer).
func WithMetrics(m *metrics.StockMetrics) Option {
	return func(l *Ledger) {
		if m != nil {
			l.metrics = m
		}
	}
}

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLedger создаёт Ledger поверх атомарного хранилища остатков.
func NewLedger(store domain.StockStore, opts ...Option) *Ledger {
	l := &Ledger{
		store:  store,
		logger: log.New().WithField("component", "stock-ledger"),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.metrics == nil {
		l.metrics = metrics.NewStockMetrics()
	}
	return l
}

// Reserve списывает qty единиц товара. Проверка остатка и списание выполняются
// одной атомарной операцией хранилища. Возвращает товар после списания.
func (l *Ledger) Reserve(ctx context.Context, productID string, qty int, cause domain.StockCause) (domain.Product, error) {
	if qty <= 0 {
		return domain.Product{}, domain.ErrInvalidQuantity
	}
	if cause.Reason == "" {
		cause.Reason = domain.MovementOrderReserved
	}

	product, err := l.store.DecrementStock(ctx, productID, qty)
	if err != nil {
		l.metrics.RecordRejected(rejectReason(err))
		return domain.Product{}, err
	}

	l.metrics.RecordReserved(qty)
	l.journal(ctx, product, -qty, cause)
	return product, nil
}

// Release возвращает qty единиц товара на склад. Если товар уже удалён,
// операция пропускается с предупреждением и ошибки не возвращает.
func (l *Ledger) Release(ctx context.Context, productID string, qty int, cause domain.StockCause) (domain.Product, error) {
	if qty <= 0 {
		return domain.Product{}, domain.ErrInvalidQuantity
	}

	product, err := l.store.IncrementStock(ctx, productID, qty)
	if errors.Is(err, domain.ErrProductNotFound) {
		l.metrics.RecordReleaseMissing()
		l.logger.WithFields(log.Fields{
			"product_id": productID,
			"order_id":   cause.OrderID,
			"qty":        qty,
			"reason":     cause.Reason,
		}).Warn("release skipped: product no longer exists")
		return domain.Product{}, nil
	}
	if err != nil {
		return domain.Product{}, err
	}

	l.metrics.RecordReleased(qty)
	l.journal(ctx, product, qty, cause)
	return product, nil
}

// Adjust применяет ручную корректировку остатка со знаком.
// Отрицательная корректировка не может сделать остаток отрицательным.
func (l *Ledger) Adjust(ctx context.Context, productID string, delta int) (domain.Product, error) {
	cause := domain.StockCause{Reason: domain.MovementManualAdjustment}

	switch {
	case delta < 0:
		return l.Reserve(ctx, productID, -delta, cause)
	case delta > 0:
		product, err := l.store.IncrementStock(ctx, productID, delta)
		if err != nil {
			return domain.Product{}, err
		}
		l.metrics.RecordReleased(delta)
		l.journal(ctx, product, delta, cause)
		return product, nil
	default:
		return domain.Product{}, fmt.Errorf("%w: delta must not be zero", domain.ErrInvalidQuantity)
	}
}

func (l *Ledger) journal(ctx context.Context, product domain.Product, delta int, cause domain.StockCause) {
	if l.movements == nil {
		return
	}

	movement := domain.StockMovement{
		ProductID:  product.ID,
		OrderID:    cause.OrderID,
		Delta:      delta,
		Reason:     cause.Reason,
		StockAfter: product.StockLevel,
		Occurred:   l.now(),
	}
	// Журнал не должен терять запись из-за отмены запроса: остаток уже изменён.
	if err := l.movements.Append(context.WithoutCancel(ctx), movement); err != nil {
		l.metrics.RecordJournalError()
		l.logger.WithError(err).WithFields(log.Fields{
			"product_id": product.ID,
			"order_id":   cause.OrderID,
			"reason":     cause.Reason,
		}).Warn("append stock movement failed")
	}
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "storage_error"
	}
}
