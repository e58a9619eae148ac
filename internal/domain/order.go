package domain

import "time"

// OrderStatus описывает жизненный цикл заказа.
type OrderStatus string

const (
	// OrderStatusPending: заказ создан, сток по позициям уже списан.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusCompleted: заказ исполнен.
	OrderStatusCompleted OrderStatus = "completed"
	// OrderStatusCancelled: заказ отменён, сток возвращён.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusCompleted, OrderStatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransitionTo сообщает, допустим ли переход в next.
// Переход в тот же статус считается no-op и разрешён.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if !next.Valid() {
		return false
	}
	if s == next {
		return true
	}
	switch s {
	case OrderStatusPending:
		return next == OrderStatusCompleted || next == OrderStatusCancelled
	case OrderStatusCompleted:
		return next == OrderStatusCancelled
	default:
		return false
	}
}

// HoldsStock сообщает, удерживает ли заказ в этом статусе списанный сток.
func (s OrderStatus) HoldsStock() bool {
	return s != OrderStatusCancelled
}

// OrderItem представляет одну позицию заказа.
type OrderItem struct {
	ProductID string
	Quantity  int
	// UnitPriceMinor фиксируется в момент создания заказа.
	UnitPriceMinor int64
}

// Order агрегирует состояние заказа и его позиции.
type Order struct {
	ID         string
	CustomerID string
	Status     OrderStatus
	Items      []OrderItem
	TotalMinor int64
	OrderedAt  time.Time
	Version    int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ComputeTotal возвращает сумму quantity * unit price по всем позициям.
func ComputeTotal(items []OrderItem) int64 {
	var total int64
	for _, item := range items {
		total += int64(item.Quantity) * item.UnitPriceMinor
	}
	return total
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.CustomerID == "" {
		errs = append(errs, ErrCustomerRequired)
	}
	if !o.Status.Valid() {
		errs = append(errs, ErrInvalidStatus)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}
	if o.TotalMinor < 0 {
		errs = append(errs, ErrAmountNegative)
	}

	for _, item := range o.Items {
		if item.ProductID == "" {
			errs = append(errs, ErrItemProductRequired)
		}
		if item.Quantity <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
		if item.UnitPriceMinor < 0 {
			errs = append(errs, ErrItemPriceInvalid)
		}
	}
	if ComputeTotal(o.Items) != o.TotalMinor {
		errs = append(errs, ErrAmountMismatch)
	}

	return errs
}

// Clone возвращает копию заказа с независимым срезом позиций.
func (o Order) Clone() Order {
	o.Items = append([]OrderItem(nil), o.Items...)
	return o
}
