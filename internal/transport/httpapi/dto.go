package httpapi

import (
	"time"

	"github.com/vladislavdragonenkov/backoffice/internal/domain"
	"github.com/vladislavdragonenkov/backoffice/internal/service/catalog"
	"github.com/vladislavdragonenkov/backoffice/internal/service/orders"
)

type productRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	PriceMinor  *int64  `json:"price_minor"`
	StockLevel  *int    `json:"stock_level"`
	Category    *string `json:"category"`
	SKU         *string `json:"sku"`
}

func (r productRequest) input() catalog.ProductInput {
	return catalog.ProductInput{
		Name:        r.Name,
		Description: r.Description,
		PriceMinor:  r.PriceMinor,
		StockLevel:  r.StockLevel,
		Category:    r.Category,
		SKU:         r.SKU,
	}
}

type stockRequest struct {
	Delta *int `json:"delta"`
}

type customerRequest struct {
	Name    *string `json:"name"`
	Email   *string `json:"email"`
	Phone   *string `json:"phone"`
	Address *string `json:"address"`
	Company *string `json:"company"`
	Website *string `json:"website"`
	Notes   *string `json:"notes"`
	Status  *string `json:"status"`
}

func (r customerRequest) input() catalog.CustomerInput {
	return catalog.CustomerInput{
		Name:    r.Name,
		Email:   r.Email,
		Phone:   r.Phone,
		Address: r.Address,
		Company: r.Company,
		Website: r.Website,
		Notes:   r.Notes,
		Status:  r.Status,
	}
}

type orderItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type createOrderRequest struct {
	CustomerID string             `json:"customer_id"`
	OrderedAt  *time.Time         `json:"ordered_at"`
	Items      []orderItemRequest `json:"items"`
}

func (r createOrderRequest) input() orders.CreateOrderInput {
	in := orders.CreateOrderInput{
		CustomerID: r.CustomerID,
		Items:      make([]orders.ItemInput, 0, len(r.Items)),
	}
	if r.OrderedAt != nil {
		in.OrderedAt = r.OrderedAt.UTC()
	}
	for _, item := range r.Items {
		in.Items = append(in.Items, orders.ItemInput{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return in
}

type updateOrderRequest struct {
	Status     *string    `json:"status"`
	CustomerID *string    `json:"customer_id"`
	OrderedAt  *time.Time `json:"ordered_at"`
}

func (r updateOrderRequest) update() (orders.OrderUpdate, error) {
	upd := orders.OrderUpdate{CustomerID: r.CustomerID, OrderedAt: r.OrderedAt}
	if r.Status != nil {
		status := domain.OrderStatus(*r.Status)
		if !status.Valid() {
			return orders.OrderUpdate{}, domain.NewValidationError([]error{domain.ErrInvalidStatus})
		}
		upd.Status = &status
	}
	return upd, nil
}

type productResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	PriceMinor  int64     `json:"price_minor"`
	StockLevel  int       `json:"stock_level"`
	Category    string    `json:"category"`
	SKU         string    `json:"sku,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toProductResponse(p domain.Product) productResponse {
	return productResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		PriceMinor:  p.PriceMinor,
		StockLevel:  p.StockLevel,
		Category:    p.Category,
		SKU:         p.SKU,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

type customerResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	Address   string    `json:"address,omitempty"`
	Company   string    `json:"company,omitempty"`
	Website   string    `json:"website,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	Status    string    `json:"status,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toCustomerResponse(c domain.Customer) customerResponse {
	return customerResponse{
		ID:        c.ID,
		Name:      c.Name,
		Email:     c.Email,
		Phone:     c.Phone,
		Address:   c.Address,
		Company:   c.Company,
		Website:   c.Website,
		Notes:     c.Notes,
		Status:    c.Status,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

type movementResponse struct {
	ID         string    `json:"id"`
	ProductID  string    `json:"product_id"`
	OrderID    string    `json:"order_id,omitempty"`
	Delta      int       `json:"delta"`
	Reason     string    `json:"reason"`
	StockAfter int       `json:"stock_after"`
	OccurredAt time.Time `json:"occurred_at"`
}

func toMovementResponses(movements []domain.StockMovement) []movementResponse {
	out := make([]movementResponse, 0, len(movements))
	for _, m := range movements {
		out = append(out, movementResponse{
			ID:         m.ID,
			ProductID:  m.ProductID,
			OrderID:    m.OrderID,
			Delta:      m.Delta,
			Reason:     string(m.Reason),
			StockAfter: m.StockAfter,
			OccurredAt: m.Occurred,
		})
	}
	return out
}

type orderLineResponse struct {
	ProductID      string           `json:"product_id"`
	Quantity       int              `json:"quantity"`
	UnitPriceMinor int64            `json:"unit_price_minor"`
	Product        *productResponse `json:"product,omitempty"`
}

type orderResponse struct {
	ID         string              `json:"id"`
	CustomerID string              `json:"customer_id"`
	Customer   *customerResponse   `json:"customer,omitempty"`
	Status     string              `json:"status"`
	Items      []orderLineResponse `json:"items"`
	TotalMinor int64               `json:"total_minor"`
	OrderedAt  time.Time           `json:"ordered_at"`
	Version    int64               `json:"version"`
	CreatedAt  time.Time           `json:"created_at"`
	UpdatedAt  time.Time           `json:"updated_at"`
}

// toOrderResponse отдаёт позиции из Lines, если заказ populated, иначе из Items.
func toOrderResponse(view orders.OrderView) orderResponse {
	resp := orderResponse{
		ID:         view.ID,
		CustomerID: view.CustomerID,
		Status:     string(view.Status),
		TotalMinor: view.TotalMinor,
		OrderedAt:  view.OrderedAt,
		Version:    view.Version,
		CreatedAt:  view.CreatedAt,
		UpdatedAt:  view.UpdatedAt,
	}
	if view.Customer != nil {
		customer := toCustomerResponse(*view.Customer)
		resp.Customer = &customer
	}

	if len(view.Lines) > 0 {
		resp.Items = make([]orderLineResponse, 0, len(view.Lines))
		for _, line := range view.Lines {
			item := orderLineResponse{
				ProductID:      line.ProductID,
				Quantity:       line.Quantity,
				UnitPriceMinor: line.UnitPriceMinor,
			}
			if line.Product != nil {
				product := toProductResponse(*line.Product)
				item.Product = &product
			}
			resp.Items = append(resp.Items, item)
		}
		return resp
	}

	resp.Items = make([]orderLineResponse, 0, len(view.Items))
	for _, item := range view.Items {
		resp.Items = append(resp.Items, orderLineResponse{
			ProductID:      item.ProductID,
			Quantity:       item.Quantity,
			UnitPriceMinor: item.UnitPriceMinor,
		})
	}
	return resp
}

func toOrderResponses(views []orders.OrderView) []orderResponse {
	out := make([]orderResponse, 0, len(views))
	for _, view := range views {
		out = append(out, toOrderResponse(view))
	}
	return out
}
