package domain

import "testing"

func TestReservation_Validate(t *testing.T) {
	tests := []struct {
		name        string
		reservation *Reservation
		errCount    int
	}{
		{
			name: "valid reservation",
			reservation: &Reservation{OrderID: "order-123", ProductID: "product-1", Qty: 5},
			errCount: 0,
		},
		{
			name:        "missing order ID",
			reservation: &Reservation{ProductID: "product-1", Qty: 5},
			errCount:    1,
		},
		{
			name:        "missing product",
			reservation: &Reservation{OrderID: "order-123", Qty: 5},
			errCount:    1,
		},
		{
			name:        "zero quantity",
			reservation: &Reservation{OrderID: "order-123", ProductID: "product-1"},
			errCount:    1,
		},
		{
			name:        "everything missing",
			reservation: &Reservation{Qty: -1},
			errCount:    3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := tt.reservation.Validate()
			if len(errs) != tt.errCount {
				t.Errorf("Validate() returned %d errors, want %d: %v", len(errs), tt.errCount, errs)
			}
		})
	}
}

func TestReservationsFromItems(t *testing.T) {
	items := []OrderItem{
		{ProductID: "a", Quantity: 2, UnitPriceMinor: 10},
		{ProductID: "b", Quantity: 3, UnitPriceMinor: 20},
	}

	got := ReservationsFromItems("order-1", items)
	if len(got) != 2 {
		t.Fatalf("expected 2 reservations, got %d", len(got))
	}
	for i, r := range got {
		if r.OrderID != "order-1" || r.ProductID != items[i].ProductID || r.Qty != items[i].Quantity {
			t.Fatalf("unexpected reservation %d: %+v", i, r)
		}
	}
}
