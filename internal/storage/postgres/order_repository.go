package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/backoffice/internal/domain"
)

const (
	orderColumns = `id, customer_id, status, total_minor, ordered_at, version, created_at, updated_at`
	orderOrderBy = ` ORDER BY created_at DESC, id DESC`
)

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
// Шапка хранится в orders, позиции в order_items с сохранением порядка.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{db: store.DB()}
}

// Create пишет шапку и позиции одной командой: CTE делает вставку атомарной без явной транзакции.
func (r *orderRepository) Create(ctx context.Context, order domain.Order) error {
	productIDs := make([]string, len(order.Items))
	quantities := make([]int32, len(order.Items))
	prices := make([]int64, len(order.Items))
	for i, item := range order.Items {
		productIDs[i] = item.ProductID
		quantities[i] = int32(item.Quantity)
		prices[i] = item.UnitPriceMinor
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		WITH header AS (
			INSERT INTO orders (`+orderColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING id
		)
		INSERT INTO order_items (order_id, position, product_id, quantity, unit_price_minor)
		SELECT header.id, item.ord - 1, item.product_id, item.quantity, item.unit_price_minor
		FROM header,
		     unnest($9::text[], $10::integer[], $11::bigint[])
		         WITH ORDINALITY AS item(product_id, quantity, unit_price_minor, ord)
	`,
		order.ID, order.CustomerID, string(order.Status), order.TotalMinor,
		order.OrderedAt, order.Version, order.CreatedAt, order.UpdatedAt,
		productIDs, quantities, prices,
	)
	switch {
	case err == nil:
		return nil
	case isUniqueViolation(err):
		return domain.ErrOrderAlreadyExists
	default:
		return fmt.Errorf("insert order %s: %w", order.ID, err)
	}
}

func (r *orderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	orders, err := r.query(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	if err != nil {
		return domain.Order{}, err
	}
	if len(orders) == 0 {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return orders[0], nil
}

func (r *orderRepository) List(ctx context.Context, limit int) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return r.query(ctx, `SELECT `+orderColumns+` FROM orders`+orderOrderBy+` LIMIT NULLIF($1, 0)`, max(limit, 0))
}

func (r *orderRepository) ListByCustomer(ctx context.Context, customerID string, limit int) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return r.query(ctx, `SELECT `+orderColumns+` FROM orders WHERE customer_id = $1`+orderOrderBy+` LIMIT NULLIF($2, 0)`,
		customerID, max(limit, 0))
}

// Save обновляет шапку заказа; позиции после создания не меняются.
func (r *orderRepository) Save(ctx context.Context, order domain.Order) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return r.versioned(ctx, "update order", `
		WITH changed AS (
			UPDATE orders
			SET customer_id = $3, status = $4, total_minor = $5, ordered_at = $6,
			    version = version + 1, updated_at = $7
			WHERE id = $1 AND version = $2
			RETURNING id
		)
		SELECT EXISTS (SELECT 1 FROM changed), EXISTS (SELECT 1 FROM orders WHERE id = $1)
	`,
		order.ID, order.Version,
		order.CustomerID, string(order.Status), order.TotalMinor, order.OrderedAt, time.Now().UTC(),
	)
}

func (r *orderRepository) Delete(ctx context.Context, id string, version int64) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return r.versioned(ctx, "delete order", `
		WITH removed AS (
			DELETE FROM orders WHERE id = $1 AND version = $2 RETURNING id
		)
		SELECT EXISTS (SELECT 1 FROM removed), EXISTS (SELECT 1 FROM orders WHERE id = $1)
	`, id, version)
}

// versioned выполняет изменение с проверкой версии. Запрос возвращает два флага:
// строка изменена и строка существует; второй отличает конфликт от отсутствия.
func (r *orderRepository) versioned(ctx context.Context, op, query string, args ...any) error {
	var changed, exists bool
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&changed, &exists); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	switch {
	case changed:
		return nil
	case exists:
		return domain.ErrOrderVersionConflict
	default:
		return domain.ErrOrderNotFound
	}
}

// query читает шапки и догружает позиции одним запросом на всю выборку.
func (r *orderRepository) query(ctx context.Context, query string, args ...any) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	var (
		orders []domain.Order
		ids    []string
	)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
		ids = append(ids, order.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}
	if len(orders) == 0 {
		return []domain.Order{}, nil
	}

	items, err := r.loadItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Items = items[orders[i].ID]
	}
	return orders, nil
}

func (r *orderRepository) loadItems(ctx context.Context, orderIDs []string) (map[string][]domain.OrderItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT order_id, product_id, quantity, unit_price_minor
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, position
	`, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	items := make(map[string][]domain.OrderItem, len(orderIDs))
	for rows.Next() {
		var (
			orderID string
			item    domain.OrderItem
		)
		if err := rows.Scan(&orderID, &item.ProductID, &item.Quantity, &item.UnitPriceMinor); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items[orderID] = append(items[orderID], item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}
	return items, nil
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order  domain.Order
		status string
	)
	if err := row.Scan(
		&order.ID, &order.CustomerID, &status, &order.TotalMinor,
		&order.OrderedAt, &order.Version, &order.CreatedAt, &order.UpdatedAt,
	); err != nil {
		return domain.Order{}, err
	}
	order.Status = domain.OrderStatus(status)
	if !order.Status.Valid() {
		return domain.Order{}, fmt.Errorf("invalid order status %q for order %s", status, order.ID)
	}
	order.OrderedAt = order.OrderedAt.UTC()
	order.CreatedAt = order.CreatedAt.UTC()
	order.UpdatedAt = order.UpdatedAt.UTC()
	return order, nil
}

var _ domain.OrderRepository = (*orderRepository)(nil)
