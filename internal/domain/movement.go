package domain

import "time"

// MovementReason объясняет, почему изменился остаток товара.
type MovementReason string

const (
	MovementOrderReserved    MovementReason = "order_reserved"
	MovementOrderCompensated MovementReason = "order_compensated"
	MovementOrderCancelled   MovementReason = "order_cancelled"
	MovementOrderDeleted     MovementReason = "order_deleted"
	MovementManualAdjustment MovementReason = "manual_adjustment"
)

// StockMovement: запись журнала изменений остатка.
// Delta положительна для возврата на склад и отрицательна для списания.
type StockMovement struct {
	ID         string
	ProductID  string
	OrderID    string
	Delta      int
	Reason     MovementReason
	StockAfter int
	Occurred   time.Time
}

// StockCause связывает изменение остатка с заказом и причиной.
type StockCause struct {
	OrderID string
	Reason  MovementReason
}
