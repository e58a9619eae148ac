package domain

// Reservation: запись компенсационного списка, что именно списано под позицию
// заказа и что нужно вернуть при откате, отмене или удалении.
type Reservation struct {
	OrderID   string
	ProductID string
	Qty       int
}

// Validate проверяет, корректно ли заполнены ключевые поля резервирования.
func (r Reservation) Validate() []error {
	var errs []error

	if r.OrderID == "" {
		errs = append(errs, ErrOrderIDRequired)
	}
	if r.ProductID == "" {
		errs = append(errs, ErrItemProductRequired)
	}
	if r.Qty <= 0 {
		errs = append(errs, ErrInvalidQuantity)
	}

	return errs
}

// ReservationsFromItems строит компенсационный список по позициям уже
// сохранённого заказа.
func ReservationsFromItems(orderID string, items []OrderItem) []Reservation {
	result := make([]Reservation, 0, len(items))
	for _, item := range items {
		result = append(result, Reservation{
			OrderID:   orderID,
			ProductID: item.ProductID,
			Qty:       item.Quantity,
		})
	}
	return result
}
