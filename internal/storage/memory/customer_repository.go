package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/backoffice/internal/domain"
)

// customerRepositoryInMemory хранит клиентов и индекс уникальных email.
type customerRepositoryInMemory struct {
	mu     sync.RWMutex
	items  map[string]domain.Customer
	emails map[string]string
}

// NewCustomerRepository возвращает in-memory репозиторий клиентов.
func NewCustomerRepository() domain.CustomerRepository {
	return &customerRepositoryInMemory{
		items:  make(map[string]domain.Customer),
		emails: make(map[string]string),
	}
}

func (r *customerRepositoryInMemory) Create(_ context.Context, customer domain.Customer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[customer.ID]; exists {
		return domain.ErrCustomerAlreadyExists
	}
	if _, taken := r.emails[customer.Email]; taken {
		return domain.ErrEmailTaken
	}
	r.items[customer.ID] = customer
	r.emails[customer.Email] = customer.ID
	return nil
}

func (r *customerRepositoryInMemory) Get(_ context.Context, id string) (domain.Customer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	customer, ok := r.items[id]
	if !ok {
		return domain.Customer{}, domain.ErrCustomerNotFound
	}
	return customer, nil
}

func (r *customerRepositoryInMemory) List(_ context.Context) ([]domain.Customer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Customer, 0, len(r.items))
	for _, customer := range r.items {
		result = append(result, customer)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})
	return result, nil
}

func (r *customerRepositoryInMemory) Update(_ context.Context, customer domain.Customer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[customer.ID]
	if !ok {
		return domain.ErrCustomerNotFound
	}
	if owner, taken := r.emails[customer.Email]; taken && owner != customer.ID {
		return domain.ErrEmailTaken
	}

	delete(r.emails, current.Email)
	customer.CreatedAt = current.CreatedAt
	r.items[customer.ID] = customer
	r.emails[customer.Email] = customer.ID
	return nil
}

func (r *customerRepositoryInMemory) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[id]
	if !ok {
		return domain.ErrCustomerNotFound
	}
	delete(r.emails, current.Email)
	delete(r.items, id)
	return nil
}

var _ domain.CustomerRepository = (*customerRepositoryInMemory)(nil)
