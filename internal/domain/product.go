package domain

import (
	"strings"
	"time"
)

// Product описывает товар каталога и его складской остаток.
type Product struct {
	ID          string
	Name        string
	Description string
	// PriceMinor: цена за единицу в минимальных денежных единицах.
	PriceMinor int64
	StockLevel int
	Category   string
	// SKU опционален, но уникален, если задан.
	SKU       string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Normalize обрезает пробелы в текстовых полях.
func (p *Product) Normalize() {
	p.Name = strings.TrimSpace(p.Name)
	p.Description = strings.TrimSpace(p.Description)
	p.Category = strings.TrimSpace(p.Category)
	p.SKU = strings.TrimSpace(p.SKU)
}

// Validate проверяет обязательные поля и неотрицательность цены и остатка.
func (p *Product) Validate() []error {
	var errs []error

	if p.Name == "" {
		errs = append(errs, ErrProductNameRequired)
	}
	if p.Description == "" {
		errs = append(errs, ErrProductDescriptionRequired)
	}
	if p.Category == "" {
		errs = append(errs, ErrProductCategoryRequired)
	}
	if p.PriceMinor < 0 {
		errs = append(errs, ErrProductPriceNegative)
	}
	if p.StockLevel < 0 {
		errs = append(errs, ErrProductStockNegative)
	}

	return errs
}
