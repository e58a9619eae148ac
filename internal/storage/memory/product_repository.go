package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/backoffice/internal/domain"
)

// productEntry держит товар под собственным мьютексом:
// проверка и изменение остатка выполняются под ним целиком.
type productEntry struct {
	mu      sync.Mutex
	product domain.Product
	deleted bool
}

// productRepositoryInMemory: in-memory каталог с атомарным изменением остатков.
// Порядок блокировок: сначала r.mu, потом entry.mu.
type productRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]*productEntry
	skus  map[string]string
}

// NewProductRepository возвращает in-memory репозиторий товаров.
func NewProductRepository() domain.ProductRepository {
	return &productRepositoryInMemory{
		items: make(map[string]*productEntry),
		skus:  make(map[string]string),
	}
}

func (r *productRepositoryInMemory) Create(ctx context.Context, product domain.Product) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[product.ID]; exists {
		return domain.ErrProductAlreadyExists
	}
	if product.SKU != "" {
		if _, taken := r.skus[product.SKU]; taken {
			return domain.ErrSKUTaken
		}
		r.skus[product.SKU] = product.ID
	}
	r.items[product.ID] = &productEntry{product: product}
	return nil
}

func (r *productRepositoryInMemory) Get(_ context.Context, id string) (domain.Product, error) {
	entry := r.entry(id)
	if entry == nil {
		return domain.Product{}, domain.ErrProductNotFound
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.deleted {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return entry.product, nil
}

func (r *productRepositoryInMemory) GetMany(_ context.Context, ids []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if _, seen := result[id]; seen {
			continue
		}
		entry := r.entry(id)
		if entry == nil {
			continue
		}
		entry.mu.Lock()
		if !entry.deleted {
			result[id] = entry.product
		}
		entry.mu.Unlock()
	}
	return result, nil
}

func (r *productRepositoryInMemory) List(_ context.Context) ([]domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Product, 0, len(r.items))
	for _, entry := range r.items {
		entry.mu.Lock()
		result = append(result, entry.product)
		entry.mu.Unlock()
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})
	return result, nil
}

func (r *productRepositoryInMemory) Update(_ context.Context, product domain.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.items[product.ID]
	if !ok {
		return domain.ErrProductNotFound
	}
	if product.SKU != "" {
		if owner, taken := r.skus[product.SKU]; taken && owner != product.ID {
			return domain.ErrSKUTaken
		}
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.product.SKU != "" && entry.product.SKU != product.SKU {
		delete(r.skus, entry.product.SKU)
	}
	if product.SKU != "" {
		r.skus[product.SKU] = product.ID
	}
	// Остаток меняется только через DecrementStock/IncrementStock.
	product.StockLevel = entry.product.StockLevel
	product.CreatedAt = entry.product.CreatedAt
	entry.product = product
	return nil
}

func (r *productRepositoryInMemory) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.items[id]
	if !ok {
		return domain.ErrProductNotFound
	}

	entry.mu.Lock()
	entry.deleted = true
	if entry.product.SKU != "" {
		delete(r.skus, entry.product.SKU)
	}
	entry.mu.Unlock()

	delete(r.items, id)
	return nil
}

// DecrementStock проверяет и списывает остаток под мьютексом товара.
func (r *productRepositoryInMemory) DecrementStock(ctx context.Context, productID string, qty int) (domain.Product, error) {
	if err := ctx.Err(); err != nil {
		return domain.Product{}, err
	}
	if qty <= 0 {
		return domain.Product{}, domain.ErrInvalidQuantity
	}

	entry := r.entry(productID)
	if entry == nil {
		return domain.Product{}, domain.ErrProductNotFound
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.deleted {
		return domain.Product{}, domain.ErrProductNotFound
	}
	if entry.product.StockLevel < qty {
		return domain.Product{}, &domain.InsufficientStockError{
			ProductID:   productID,
			ProductName: entry.product.Name,
			Requested:   qty,
			Available:   entry.product.StockLevel,
		}
	}
	entry.product.StockLevel -= qty
	return entry.product, nil
}

// IncrementStock возвращает qty на склад.
func (r *productRepositoryInMemory) IncrementStock(ctx context.Context, productID string, qty int) (domain.Product, error) {
	if err := ctx.Err(); err != nil {
		return domain.Product{}, err
	}
	if qty <= 0 {
		return domain.Product{}, domain.ErrInvalidQuantity
	}

	entry := r.entry(productID)
	if entry == nil {
		return domain.Product{}, domain.ErrProductNotFound
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.deleted {
		return domain.Product{}, domain.ErrProductNotFound
	}
	entry.product.StockLevel += qty
	return entry.product, nil
}

func (r *productRepositoryInMemory) entry(id string) *productEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.items[id]
}

var _ domain.ProductRepository = (*productRepositoryInMemory)(nil)
