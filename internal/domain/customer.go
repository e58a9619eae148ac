package domain

import (
	"net/mail"
	"strings"
	"time"
)

// CustomerStatusActive: статус клиента по умолчанию.
const CustomerStatusActive = "active"

// Customer: карточка клиента. Заказы ссылаются на неё только по ID.
type Customer struct {
	ID        string
	Name      string
	Email     string
	Phone     string
	Address   string
	Company   string
	Website   string
	Notes     string
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Normalize приводит email к нижнему регистру и подставляет статус по умолчанию.
func (c *Customer) Normalize() {
	c.Name = strings.TrimSpace(c.Name)
	c.Email = strings.ToLower(strings.TrimSpace(c.Email))
	c.Phone = strings.TrimSpace(c.Phone)
	c.Status = strings.TrimSpace(c.Status)
	if c.Status == "" {
		c.Status = CustomerStatusActive
	}
}

// Validate проверяет обязательные поля клиента.
func (c *Customer) Validate() []error {
	var errs []error

	if c.Name == "" {
		errs = append(errs, ErrCustomerNameRequired)
	}
	switch {
	case c.Email == "":
		errs = append(errs, ErrCustomerEmailRequired)
	case !validEmail(c.Email):
		errs = append(errs, ErrCustomerEmailInvalid)
	}

	return errs
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return false
	}
	return addr.Address == email
}
