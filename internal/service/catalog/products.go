// Package catalog реализует CRUD товаров и клиентов.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/backoffice/internal/domain"
)

const revertTimeout = 5 * time.Second

// StockAdjuster применяет ручную корректировку остатка.
type StockAdjuster interface {
	Adjust(ctx context.Context, productID string, delta int) (domain.Product, error)
}

// ProductInput: поля товара; nil означает «не менять» при обновлении.
type ProductInput struct {
	Name        *string
	Description *string
	PriceMinor  *int64
	StockLevel  *int
	Category    *string
	SKU         *string
}

func (in ProductInput) apply(p *domain.Product) {
	if in.Name != nil {
		p.Name = *in.Name
	}
	if in.Description != nil {
		p.Description = *in.Description
	}
	if in.PriceMinor != nil {
		p.PriceMinor = *in.PriceMinor
	}
	if in.Category != nil {
		p.Category = *in.Category
	}
	if in.SKU != nil {
		p.SKU = *in.SKU
	}
}

// ProductService управляет каталогом товаров.
type ProductService struct {
	products  domain.ProductRepository
	stock     StockAdjuster
	movements domain.MovementRepository
	logger    *log.Entry
	now       func() time.Time
}

// NewProductService создаёт сервис каталога. movements может быть nil.
func NewProductService(products domain.ProductRepository, stock StockAdjuster, movements domain.MovementRepository, logger *log.Entry) *ProductService {
	if logger == nil {
		logger = log.New().WithField("component", "product-service")
	}
	return &ProductService{
		products:  products,
		stock:     stock,
		movements: movements,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Create добавляет товар в каталог.
func (s *ProductService) Create(ctx context.Context, in ProductInput) (domain.Product, error) {
	now := s.now()
	product := domain.Product{
		ID:        uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	in.apply(&product)
	if in.StockLevel != nil {
		product.StockLevel = *in.StockLevel
	}
	product.Normalize()
	if err := domain.NewValidationError(product.Validate()); err != nil {
		return domain.Product{}, err
	}

	if err := s.products.Create(ctx, product); err != nil {
		return domain.Product{}, storeError("create product", err)
	}
	s.logger.WithFields(log.Fields{
		"product_id": product.ID,
		"sku":        product.SKU,
	}).Info("product created")
	return product, nil
}

// Get возвращает товар.
func (s *ProductService) Get(ctx context.Context, id string) (domain.Product, error) {
	product, err := s.products.Get(ctx, id)
	if err != nil {
		return domain.Product{}, storeError("get product", err)
	}
	return product, nil
}

// List возвращает каталог, новые товары первыми.
func (s *ProductService) List(ctx context.Context) ([]domain.Product, error) {
	products, err := s.products.List(ctx)
	if err != nil {
		return nil, storeError("list products", err)
	}
	return products, nil
}

// Update частично обновляет товар. Новый stock_level применяется как корректировка
// на разницу с текущим остатком, чтобы не затереть параллельные резервы.
func (s *ProductService) Update(ctx context.Context, id string, in ProductInput) (domain.Product, error) {
	current, err := s.products.Get(ctx, id)
	if err != nil {
		return domain.Product{}, storeError("get product", err)
	}

	next := current
	in.apply(&next)
	if in.StockLevel != nil {
		next.StockLevel = *in.StockLevel
	}
	next.Normalize()
	next.UpdatedAt = s.now()
	if err := domain.NewValidationError(next.Validate()); err != nil {
		return domain.Product{}, err
	}

	// Сначала атомарная корректировка остатка: при нехватке карточка не меняется.
	delta := next.StockLevel - current.StockLevel
	if delta != 0 {
		adjusted, err := s.stock.Adjust(ctx, id, delta)
		if err != nil {
			return domain.Product{}, err
		}
		next.StockLevel = adjusted.StockLevel
	}

	if err := s.products.Update(ctx, next); err != nil {
		if delta != 0 {
			s.revertAdjust(ctx, id, delta)
		}
		return domain.Product{}, storeError("update product", err)
	}
	return next, nil
}

// revertAdjust откатывает корректировку остатка, если карточку сохранить не удалось.
func (s *ProductService) revertAdjust(ctx context.Context, id string, delta int) {
	revertCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), revertTimeout)
	defer cancel()

	if _, err := s.stock.Adjust(revertCtx, id, -delta); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"product_id": id,
			"delta":      -delta,
		}).Error("failed to revert stock adjustment")
	}
}

// Delete удаляет товар. Заказы, ссылающиеся на него, остаются без изменений.
func (s *ProductService) Delete(ctx context.Context, id string) error {
	if err := s.products.Delete(ctx, id); err != nil {
		return storeError("delete product", err)
	}
	s.logger.WithField("product_id", id).Info("product deleted")
	return nil
}

// AdjustStock изменяет остаток на delta (со знаком). Остаток не может стать отрицательным.
func (s *ProductService) AdjustStock(ctx context.Context, id string, delta int) (domain.Product, error) {
	product, err := s.stock.Adjust(ctx, id, delta)
	if err != nil {
		return domain.Product{}, err
	}
	s.logger.WithFields(log.Fields{
		"product_id":  id,
		"delta":       delta,
		"stock_level": product.StockLevel,
	}).Info("stock adjusted")
	return product, nil
}

// Movements возвращает журнал изменений остатка товара.
func (s *ProductService) Movements(ctx context.Context, id string, limit int) ([]domain.StockMovement, error) {
	if _, err := s.products.Get(ctx, id); err != nil {
		return nil, storeError("get product", err)
	}
	if s.movements == nil {
		return []domain.StockMovement{}, nil
	}
	movements, err := s.movements.List(ctx, id, limit)
	if err != nil {
		return nil, storeError("list movements", err)
	}
	return movements, nil
}

// storeError пропускает доменные ошибки как есть и помечает остальные как ErrPersistence.
func storeError(op string, err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrSKUTaken),
		errors.Is(err, domain.ErrEmailTaken),
		errors.Is(err, domain.ErrPersistence),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %s: %w", domain.ErrPersistence, op, err)
	}
}
