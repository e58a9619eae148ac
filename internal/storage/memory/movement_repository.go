package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/backoffice/internal/domain"
)

// movementRepositoryInMemory хранит журнал остатков в памяти (для разработки/тестов).
type movementRepositoryInMemory struct {
	mu        sync.RWMutex
	movements map[string][]domain.StockMovement
}

// NewMovementRepository создаёт in-memory реализацию MovementRepository.
func NewMovementRepository() domain.MovementRepository {
	return &movementRepositoryInMemory{movements: make(map[string][]domain.StockMovement)}
}

// Append добавляет запись в конец журнала товара.
func (r *movementRepositoryInMemory) Append(_ context.Context, movement domain.StockMovement) error {
	if movement.ID == "" {
		movement.ID = uuid.NewString()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.movements[movement.ProductID] = append(r.movements[movement.ProductID], movement)
	return nil
}

// List возвращает журнал товара, свежие записи первыми.
func (r *movementRepositoryInMemory) List(_ context.Context, productID string, limit int) ([]domain.StockMovement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	journal := r.movements[productID]
	n := len(journal)
	if limit > 0 && n > limit {
		n = limit
	}

	result := make([]domain.StockMovement, 0, n)
	for i := len(journal) - 1; i >= 0 && len(result) < n; i-- {
		result = append(result, journal[i])
	}
	return result, nil
}

var _ domain.MovementRepository = (*movementRepositoryInMemory)(nil)
