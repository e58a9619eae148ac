package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/backoffice/internal/domain"
)

// ProductLookup разрешает ссылки на товары пачкой.
type ProductLookup interface {
	GetMany(ctx context.Context, ids []string) (map[string]domain.Product, error)
}

// CustomerLookup разрешает ссылку на клиента.
type CustomerLookup interface {
	Get(ctx context.Context, id string) (domain.Customer, error)
}

// LineView: позиция заказа с разрешённым товаром. Product == nil, если товар удалён.
type LineView struct {
	domain.OrderItem
	Product *domain.Product
}

// OrderView: заказ с разрешёнными ссылками на клиента и товары.
type OrderView struct {
	domain.Order
	Customer *domain.Customer
	Lines    []LineView
}

// Populator собирает OrderView из заказов и справочников.
type Populator struct {
	products  ProductLookup
	customers CustomerLookup
}

// NewPopulator создаёт Populator.
func NewPopulator(products ProductLookup, customers CustomerLookup) *Populator {
	return &Populator{products: products, customers: customers}
}

// Populate разрешает ссылки для всех заказов за один запрос товаров.
// Отсутствующие товары и клиенты остаются пустыми.
func (p *Populator) Populate(ctx context.Context, orders ...domain.Order) ([]OrderView, error) {
	productIDs := make([]string, 0)
	seenProducts := make(map[string]struct{})
	customerIDs := make([]string, 0)
	seenCustomers := make(map[string]struct{})

	for _, order := range orders {
		for _, item := range order.Items {
			if _, ok := seenProducts[item.ProductID]; !ok {
				seenProducts[item.ProductID] = struct{}{}
				productIDs = append(productIDs, item.ProductID)
			}
		}
		if _, ok := seenCustomers[order.CustomerID]; !ok {
			seenCustomers[order.CustomerID] = struct{}{}
			customerIDs = append(customerIDs, order.CustomerID)
		}
	}

	products, err := p.products.GetMany(ctx, productIDs)
	if err != nil {
		return nil, fmt.Errorf("resolve products: %w", err)
	}

	customers := make(map[string]domain.Customer, len(customerIDs))
	for _, id := range customerIDs {
		customer, err := p.customers.Get(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("resolve customer %s: %w", id, err)
		}
		customers[id] = customer
	}

	views := make([]OrderView, 0, len(orders))
	for _, order := range orders {
		views = append(views, assemble(order, products, customers))
	}
	return views, nil
}

// PopulateOne разрешает ссылки одного заказа.
func (p *Populator) PopulateOne(ctx context.Context, order domain.Order) (OrderView, error) {
	views, err := p.Populate(ctx, order)
	if err != nil {
		return OrderView{}, err
	}
	return views[0], nil
}

// Bare возвращает OrderView без разрешённых ссылок.
func Bare(order domain.Order) OrderView {
	return assemble(order, nil, nil)
}

func assemble(order domain.Order, products map[string]domain.Product, customers map[string]domain.Customer) OrderView {
	view := OrderView{Order: order, Lines: make([]LineView, 0, len(order.Items))}
	if customer, ok := customers[order.CustomerID]; ok {
		view.Customer = &customer
	}
	for _, item := range order.Items {
		line := LineView{OrderItem: item}
		if product, ok := products[item.ProductID]; ok {
			line.Product = &product
		}
		view.Lines = append(view.Lines, line)
	}
	return view
}
