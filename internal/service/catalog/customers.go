package catalog

import (
	"context"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/backoffice/internal/domain"
)

// CustomerInput: поля клиента; nil означает «не менять» при обновлении.
type CustomerInput struct {
	Name    *string
	Email   *string
	Phone   *string
	Address *string
	Company *string
	Website *string
	Notes   *string
	Status  *string
}

func (in CustomerInput) apply(c *domain.Customer) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&c.Name, in.Name)
	set(&c.Email, in.Email)
	set(&c.Phone, in.Phone)
	set(&c.Address, in.Address)
	set(&c.Company, in.Company)
	set(&c.Website, in.Website)
	set(&c.Notes, in.Notes)
	set(&c.Status, in.Status)
}

// CustomerService управляет карточками клиентов.
type CustomerService struct {
	customers domain.CustomerRepository
	logger    *log.Entry
	now       func() time.Time
}

// NewCustomerService создаёт сервис клиентов.
func NewCustomerService(customers domain.CustomerRepository, logger *log.Entry) *CustomerService {
	if logger == nil {
		logger = log.New().WithField("component", "customer-service")
	}
	return &CustomerService{
		customers: customers,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *CustomerService) Create(ctx context.Context, in CustomerInput) (domain.Customer, error) {
	now := s.now()
	customer := domain.Customer{ID: uuid.NewString(), CreatedAt: now, UpdatedAt: now}
	in.apply(&customer)
	customer.Normalize()
	if err := domain.NewValidationError(customer.Validate()); err != nil {
		return domain.Customer{}, err
	}

	if err := s.customers.Create(ctx, customer); err != nil {
		return domain.Customer{}, storeError("create customer", err)
	}
	s.logger.WithField("customer_id", customer.ID).Info("customer created")
	return customer, nil
}

func (s *CustomerService) Get(ctx context.Context, id string) (domain.Customer, error) {
	customer, err := s.customers.Get(ctx, id)
	if err != nil {
		return domain.Customer{}, storeError("get customer", err)
	}
	return customer, nil
}

func (s *CustomerService) List(ctx context.Context) ([]domain.Customer, error) {
	customers, err := s.customers.List(ctx)
	if err != nil {
		return nil, storeError("list customers", err)
	}
	return customers, nil
}

// Update частично обновляет клиента, сохраняя незаданные поля.
func (s *CustomerService) Update(ctx context.Context, id string, in CustomerInput) (domain.Customer, error) {
	customer, err := s.customers.Get(ctx, id)
	if err != nil {
		return domain.Customer{}, storeError("get customer", err)
	}

	in.apply(&customer)
	customer.Normalize()
	customer.UpdatedAt = s.now()
	if err := domain.NewValidationError(customer.Validate()); err != nil {
		return domain.Customer{}, err
	}

	if err := s.customers.Update(ctx, customer); err != nil {
		return domain.Customer{}, storeError("update customer", err)
	}
	return customer, nil
}

func (s *CustomerService) Delete(ctx context.Context, id string) error {
	if err := s.customers.Delete(ctx, id); err != nil {
		return storeError("delete customer", err)
	}
	s.logger.WithField("customer_id", id).Info("customer deleted")
	return nil
}
