package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/backoffice/internal/domain"
)

// orderRepositoryInMemory хранит снимки заказов; каждый Save увеличивает Version.
type orderRepositoryInMemory struct {
	mu     sync.RWMutex
	orders map[string]domain.Order
	now    func() time.Time
}

// NewOrderRepository возвращает in-memory репозиторий для локальной разработки и тестов.
func NewOrderRepository() domain.OrderRepository {
	return &orderRepositoryInMemory{
		orders: make(map[string]domain.Order),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (r *orderRepositoryInMemory) Create(ctx context.Context, order domain.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.orders[order.ID]; taken {
		return domain.ErrOrderAlreadyExists
	}
	r.orders[order.ID] = order.Clone()
	return nil
}

func (r *orderRepositoryInMemory) Get(_ context.Context, id string) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return order.Clone(), nil
}

func (r *orderRepositoryInMemory) List(_ context.Context, limit int) ([]domain.Order, error) {
	return r.collect(limit, func(domain.Order) bool { return true }), nil
}

func (r *orderRepositoryInMemory) ListByCustomer(_ context.Context, customerID string, limit int) ([]domain.Order, error) {
	return r.collect(limit, func(o domain.Order) bool { return o.CustomerID == customerID }), nil
}

func (r *orderRepositoryInMemory) Save(ctx context.Context, order domain.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkVersion(order.ID, order.Version); err != nil {
		return err
	}
	order.Version++
	order.UpdatedAt = r.now()
	r.orders[order.ID] = order.Clone()
	return nil
}

func (r *orderRepositoryInMemory) Delete(ctx context.Context, id string, version int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkVersion(id, version); err != nil {
		return err
	}
	delete(r.orders, id)
	return nil
}

// checkVersion вызывается под r.mu.
func (r *orderRepositoryInMemory) checkVersion(id string, version int64) error {
	stored, ok := r.orders[id]
	switch {
	case !ok:
		return domain.ErrOrderNotFound
	case stored.Version != version:
		return domain.ErrOrderVersionConflict
	default:
		return nil
	}
}

// collect отбирает заказы по match, новые первыми; при равном CreatedAt порядок задаёт ID.
func (r *orderRepositoryInMemory) collect(limit int, match func(domain.Order) bool) []domain.Order {
	r.mu.RLock()
	matched := make([]domain.Order, 0, len(r.orders))
	for _, order := range r.orders {
		if match(order) {
			matched = append(matched, order.Clone())
		}
	}
	r.mu.RUnlock()

	slices.SortFunc(matched, func(a, b domain.Order) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		switch {
		case a.ID > b.ID:
			return -1
		case a.ID < b.ID:
			return 1
		}
		return 0
	})
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched
}

var _ domain.OrderRepository = (*orderRepositoryInMemory)(nil)
