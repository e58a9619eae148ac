// Package orders управляет жизненным циклом заказа и согласует его со складскими остатками.
package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/backoffice/internal/domain"
	"github.com/vladislavdragonenkov/backoffice/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/backoffice/internal/metrics"
)

// StockLedger списывает и возвращает остатки товаров.
type StockLedger interface {
	Reserve(ctx context.Context, productID string, qty int, cause domain.StockCause) (domain.Product, error)
	Release(ctx context.Context, productID string, qty int, cause domain.StockCause) (domain.Product, error)
}

// ItemInput: позиция создаваемого заказа.
type ItemInput struct {
	ProductID string
	Quantity  int
}

// CreateOrderInput описывает новый заказ.
type CreateOrderInput struct {
	CustomerID string
	// OrderedAt по умолчанию равен моменту создания.
	OrderedAt time.Time
	Items     []ItemInput
}

func (in CreateOrderInput) validate() error {
	var errs []error
	if in.CustomerID == "" {
		errs = append(errs, domain.ErrCustomerRequired)
	}
	if len(in.Items) == 0 {
		errs = append(errs, domain.ErrItemsRequired)
	}
	for _, item := range in.Items {
		if item.ProductID == "" {
			errs = append(errs, domain.ErrItemProductRequired)
		}
		if item.Quantity <= 0 {
			errs = append(errs, domain.ErrItemQtyInvalid)
		}
	}
	return domain.NewValidationError(errs)
}

// OrderUpdate: частичное обновление заказа; nil-поля не меняются.
// Позиции заказа после создания не редактируются.
type OrderUpdate struct {
	Status     *domain.OrderStatus
	CustomerID *string
	OrderedAt  *time.Time
}

// RetryConfig задаёт повторы при конфликте версий.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultRetryConfig возвращает конфигурацию по умолчанию.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 3, BaseDelay: 10 * time.Millisecond}
}

const defaultCompensationTimeout = 5 * time.Second

// Reconciler реализует создание, смену статуса и удаление заказов
// с согласованием складских остатков.
type Reconciler struct {
	orders    domain.OrderRepository
	customers CustomerLookup
	ledger    StockLedger
	populator *Populator
	outbox    domain.OutboxRepository

	metrics             *metrics.OrderMetrics
	logger              *log.Entry
	retry               RetryConfig
	compensationTimeout time.Duration
	now                 func() time.Time
	newID               func() string
}

// Option настраивает Reconciler.
type Option func(*Reconciler)

// WithOutbox включает публикацию событий заказа через transactional outbox.
func WithOutbox(outbox domain.OutboxRepository) Option {
	return func(r *Reconciler) {
		r.outbox = outbox
	}
}

// WithMetrics задаёт метрики заказов.
func WithMetrics(m *metrics.OrderMetrics) Option {
	return func(r *Reconciler) {
		if m != nil {
			r.metrics = m
		}
	}
}

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) Option {
	return func(r *Reconciler) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithRetry задаёт политику повторов при конфликте версий.
func WithRetry(cfg RetryConfig) Option {
	return func(r *Reconciler) {
		if cfg.MaxAttempts > 0 {
			r.retry = cfg
		}
	}
}

// WithCompensationTimeout ограничивает время компенсирующих release.
func WithCompensationTimeout(timeout time.Duration) Option {
	return func(r *Reconciler) {
		if timeout > 0 {
			r.compensationTimeout = timeout
		}
	}
}

// WithClock подменяет источник времени (для тестов).
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) {
		if now != nil {
			r.now = now
		}
	}
}

// WithIDGenerator подменяет генератор идентификаторов заказов.
func WithIDGenerator(newID func() string) Option {
	return func(r *Reconciler) {
		if newID != nil {
			r.newID = newID
		}
	}
}

// NewReconciler создаёт Reconciler.
func NewReconciler(
	orders domain.OrderRepository,
	customers CustomerLookup,
	ledger StockLedger,
	populator *Populator,
	opts ...Option,
) *Reconciler {
	r := &Reconciler{
		orders:              orders,
		customers:           customers,
		ledger:              ledger,
		populator:           populator,
		logger:              log.New().WithField("component", "order-reconciler"),
		retry:               DefaultRetryConfig(),
		compensationTimeout: defaultCompensationTimeout,
		now:                 func() time.Time { return time.Now().UTC() },
		newID:               uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.metrics == nil {
		r.metrics = metrics.NewOrderMetrics()
	}
	return r
}

// Create резервирует позиции в заданном порядке и сохраняет заказ в статусе pending.
// При любой ошибке после первого резерва уже списанные позиции возвращаются
// в обратном порядке до того, как ошибка уйдёт вызывающему.
func (r *Reconciler) Create(ctx context.Context, in CreateOrderInput) (OrderView, error) {
	defer r.metrics.Begin("create")()

	if err := in.validate(); err != nil {
		r.metrics.RecordCreateFailed("validation")
		return OrderView{}, err
	}
	if _, err := r.customers.Get(ctx, in.CustomerID); err != nil {
		r.metrics.RecordCreateFailed(failureReason(err))
		return OrderView{}, readError("load customer", err)
	}

	orderID := r.newID()
	logger := r.logger.WithFields(log.Fields{
		"order_id":    orderID,
		"customer_id": in.CustomerID,
	})

	reservations := make([]domain.Reservation, 0, len(in.Items))
	items := make([]domain.OrderItem, 0, len(in.Items))
	for _, item := range in.Items {
		if err := ctx.Err(); err != nil {
			return OrderView{}, r.abortCreate(ctx, logger, reservations, err)
		}

		product, err := r.ledger.Reserve(ctx, item.ProductID, item.Quantity, domain.StockCause{
			OrderID: orderID,
			Reason:  domain.MovementOrderReserved,
		})
		if err != nil {
			logger.WithError(err).WithField("product_id", item.ProductID).Info("reservation rejected")
			return OrderView{}, r.abortCreate(ctx, logger, reservations, err)
		}

		reservations = append(reservations, domain.Reservation{
			OrderID:   orderID,
			ProductID: item.ProductID,
			Qty:       item.Quantity,
		})
		items = append(items, domain.OrderItem{
			ProductID:      item.ProductID,
			Quantity:       item.Quantity,
			UnitPriceMinor: product.PriceMinor,
		})
	}

	now := r.now()
	orderedAt := in.OrderedAt
	if orderedAt.IsZero() {
		orderedAt = now
	}
	order := domain.Order{
		ID:         orderID,
		CustomerID: in.CustomerID,
		Status:     domain.OrderStatusPending,
		Items:      items,
		TotalMinor: domain.ComputeTotal(items),
		OrderedAt:  orderedAt.UTC(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := domain.NewValidationError(order.ValidateInvariants()); err != nil {
		return OrderView{}, r.abortCreate(ctx, logger, reservations, err)
	}

	if err := r.orders.Create(ctx, order); err != nil {
		logger.WithError(err).Error("persist order failed")
		return OrderView{}, r.abortCreate(ctx, logger, reservations, persistenceError("create order", err))
	}

	r.metrics.RecordCreated()
	r.emit(ctx, order, kafka.EventTypeOrderCreated, "")
	logger.WithFields(log.Fields{
		"items":       len(order.Items),
		"total_minor": order.TotalMinor,
	}).Info("order created")

	return r.populateAfterWrite(ctx, order), nil
}

// abortCreate откатывает резервы и возвращает исходную ошибку.
func (r *Reconciler) abortCreate(ctx context.Context, logger *log.Entry, reservations []domain.Reservation, cause error) error {
	r.metrics.RecordCreateFailed(failureReason(cause))
	if len(reservations) == 0 {
		return cause
	}

	r.metrics.RecordCompensation()
	released := r.compensate(ctx, reservations)
	logger.WithError(cause).WithFields(log.Fields{
		"reserved": len(reservations),
		"released": released,
	}).Warn("order creation rolled back")
	return cause
}

// compensate возвращает резервы в обратном порядке. Контекст вызывающего
// может быть уже отменён, поэтому release выполняются в отвязанном контексте с таймаутом.
func (r *Reconciler) compensate(ctx context.Context, reservations []domain.Reservation) int {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.compensationTimeout)
	defer cancel()

	released := 0
	for i := len(reservations) - 1; i >= 0; i-- {
		res := reservations[i]
		if err := r.release(cctx, res, domain.MovementOrderCompensated); err != nil {
			r.logger.WithError(err).WithFields(log.Fields{
				"order_id":   res.OrderID,
				"product_id": res.ProductID,
				"qty":        res.Qty,
			}).Error("compensating release failed")
			continue
		}
		released++
	}
	return released
}

// release возвращает на склад одну запись компенсационного списка.
func (r *Reconciler) release(ctx context.Context, res domain.Reservation, reason domain.MovementReason) error {
	if err := domain.NewValidationError(res.Validate()); err != nil {
		return err
	}
	_, err := r.ledger.Release(ctx, res.ProductID, res.Qty, domain.StockCause{OrderID: res.OrderID, Reason: reason})
	return err
}

// UpdateStatus применяет частичное обновление заказа.
// Переход в cancelled возвращает сток ровно один раз: release выполняется только
// после успешной записи, а повторная отмена видит уже cancelled и ничего не делает.
func (r *Reconciler) UpdateStatus(ctx context.Context, orderID string, upd OrderUpdate) (OrderView, error) {
	defer r.metrics.Begin("update")()

	if upd.Status != nil && !upd.Status.Valid() {
		return OrderView{}, domain.NewValidationError([]error{domain.ErrInvalidStatus})
	}
	if upd.CustomerID != nil {
		if *upd.CustomerID == "" {
			return OrderView{}, domain.NewValidationError([]error{domain.ErrCustomerRequired})
		}
		if _, err := r.customers.Get(ctx, *upd.CustomerID); err != nil {
			return OrderView{}, readError("load customer", err)
		}
	}

	for attempt := 0; ; attempt++ {
		current, err := r.orders.Get(ctx, orderID)
		if err != nil {
			return OrderView{}, readError("load order", err)
		}

		next, changed, err := applyUpdate(current, upd)
		if err != nil {
			return OrderView{}, err
		}
		if !changed {
			return r.populateAfterWrite(ctx, current), nil
		}
		next.UpdatedAt = r.now()

		err = r.orders.Save(ctx, next)
		if domain.IsVersionConflict(err) && attempt < r.retry.MaxAttempts-1 {
			if waitErr := r.backoff(ctx, orderID, attempt); waitErr != nil {
				return OrderView{}, waitErr
			}
			continue
		}
		if domain.IsVersionConflict(err) {
			return OrderView{}, err
		}
		if err != nil {
			r.logger.WithError(err).WithField("order_id", orderID).Error("persist order update failed")
			return OrderView{}, persistenceError("save order", err)
		}
		next.Version = current.Version + 1

		if current.Status != next.Status {
			r.metrics.RecordStatusChanged(string(next.Status))
			if current.Status.HoldsStock() && !next.Status.HoldsStock() {
				r.releaseItems(ctx, next, domain.MovementOrderCancelled)
				r.emit(ctx, next, kafka.EventTypeOrderCancelled, current.Status)
			} else {
				r.emit(ctx, next, kafka.EventTypeOrderStatusChanged, current.Status)
			}
			r.logger.WithFields(log.Fields{
				"order_id": orderID,
				"from":     current.Status,
				"to":       next.Status,
			}).Info("order status changed")
		}

		return r.populateAfterWrite(ctx, next), nil
	}
}

func applyUpdate(current domain.Order, upd OrderUpdate) (domain.Order, bool, error) {
	next := current.Clone()
	changed := false

	if upd.Status != nil && *upd.Status != current.Status {
		if !current.Status.CanTransitionTo(*upd.Status) {
			return domain.Order{}, false, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, current.Status, *upd.Status)
		}
		next.Status = *upd.Status
		changed = true
	}
	if upd.CustomerID != nil && *upd.CustomerID != current.CustomerID {
		next.CustomerID = *upd.CustomerID
		changed = true
	}
	if upd.OrderedAt != nil && !upd.OrderedAt.Equal(current.OrderedAt) {
		next.OrderedAt = upd.OrderedAt.UTC()
		changed = true
	}
	return next, changed, nil
}

// Delete удаляет заказ. Если заказ ещё удерживал сток, позиции возвращаются на склад
// после удаления записи; удаление отменённого заказа сток не трогает.
func (r *Reconciler) Delete(ctx context.Context, orderID string) error {
	defer r.metrics.Begin("delete")()

	for attempt := 0; ; attempt++ {
		current, err := r.orders.Get(ctx, orderID)
		if err != nil {
			return readError("load order", err)
		}

		err = r.orders.Delete(ctx, orderID, current.Version)
		if domain.IsVersionConflict(err) && attempt < r.retry.MaxAttempts-1 {
			if waitErr := r.backoff(ctx, orderID, attempt); waitErr != nil {
				return waitErr
			}
			continue
		}
		if domain.IsVersionConflict(err) || errors.Is(err, domain.ErrNotFound) {
			return err
		}
		if err != nil {
			r.logger.WithError(err).WithField("order_id", orderID).Error("delete order failed")
			return persistenceError("delete order", err)
		}

		if current.Status.HoldsStock() {
			r.releaseItems(ctx, current, domain.MovementOrderDeleted)
		}
		r.metrics.RecordDeleted()
		r.emit(ctx, current, kafka.EventTypeOrderDeleted, "")
		r.logger.WithFields(log.Fields{
			"order_id": orderID,
			"status":   current.Status,
		}).Info("order deleted")
		return nil
	}
}

// releaseItems возвращает сток по всем позициям; ошибки только логируются.
func (r *Reconciler) releaseItems(ctx context.Context, order domain.Order, reason domain.MovementReason) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.compensationTimeout)
	defer cancel()

	for _, res := range domain.ReservationsFromItems(order.ID, order.Items) {
		if err := r.release(cctx, res, reason); err != nil {
			r.logger.WithError(err).WithFields(log.Fields{
				"order_id":   order.ID,
				"product_id": res.ProductID,
				"qty":        res.Qty,
				"reason":     reason,
			}).Warn("stock release failed")
		}
	}
}

func (r *Reconciler) backoff(ctx context.Context, orderID string, attempt int) error {
	r.metrics.RecordVersionRetry()
	delay := r.retry.BaseDelay * time.Duration(1<<uint(attempt))
	r.logger.WithFields(log.Fields{
		"order_id": orderID,
		"attempt":  attempt + 1,
		"delay":    delay,
	}).Warn("version conflict detected, retrying")

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Get возвращает заказ с разрешёнными ссылками.
func (r *Reconciler) Get(ctx context.Context, orderID string) (OrderView, error) {
	order, err := r.orders.Get(ctx, orderID)
	if err != nil {
		return OrderView{}, readError("load order", err)
	}
	return r.populator.PopulateOne(ctx, order)
}

// List возвращает последние заказы.
func (r *Reconciler) List(ctx context.Context, limit int) ([]OrderView, error) {
	orders, err := r.orders.List(ctx, limit)
	if err != nil {
		return nil, readError("list orders", err)
	}
	return r.populator.Populate(ctx, orders...)
}

// ListByCustomer возвращает заказы клиента, новые первыми.
func (r *Reconciler) ListByCustomer(ctx context.Context, customerID string, limit int) ([]OrderView, error) {
	if _, err := r.customers.Get(ctx, customerID); err != nil {
		return nil, readError("load customer", err)
	}
	orders, err := r.orders.ListByCustomer(ctx, customerID, limit)
	if err != nil {
		return nil, readError("list customer orders", err)
	}
	return r.populator.Populate(ctx, orders...)
}

// populateAfterWrite не превращает успешную запись в ошибку, если справочники недоступны.
func (r *Reconciler) populateAfterWrite(ctx context.Context, order domain.Order) OrderView {
	view, err := r.populator.PopulateOne(ctx, order)
	if err != nil {
		r.logger.WithError(err).WithField("order_id", order.ID).Warn("populate order failed")
		return Bare(order)
	}
	return view
}

func (r *Reconciler) emit(ctx context.Context, order domain.Order, eventType kafka.EventType, previous domain.OrderStatus) {
	if r.outbox == nil {
		return
	}

	event := kafka.NewOrderEvent(eventType, order.ID, order.CustomerID, string(order.Status))
	event.PreviousStatus = string(previous)
	event.TotalMinor = order.TotalMinor
	for _, item := range order.Items {
		event.Items = append(event.Items, kafka.OrderItemPayload{
			ProductID:      item.ProductID,
			Quantity:       item.Quantity,
			UnitPriceMinor: item.UnitPriceMinor,
		})
	}

	payload, err := json.Marshal(event)
	if err != nil {
		r.logger.WithError(err).WithFields(log.Fields{
			"order_id": order.ID,
			"event":    eventType,
		}).Error("marshal event failed")
		return
	}

	msg := domain.OutboxMessage{
		AggregateType: kafka.AggregateTypeOrder,
		AggregateID:   order.ID,
		EventType:     string(eventType),
		Payload:       payload,
	}
	if _, err := r.outbox.Enqueue(context.WithoutCancel(ctx), msg); err != nil {
		r.logger.WithError(err).WithFields(log.Fields{
			"order_id": order.ID,
			"event":    eventType,
		}).Error("enqueue event failed")
	}
}

func readError(op string, err error) error {
	if errors.Is(err, domain.ErrNotFound) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return persistenceError(op, err)
}

func persistenceError(op string, err error) error {
	if errors.Is(err, domain.ErrPersistence) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", domain.ErrPersistence, op, err)
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return "validation"
	case errors.Is(err, domain.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "persistence"
	}
}
