package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation: общий маркер ошибок валидации входных данных.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound: общий маркер отсутствующих сущностей.
	ErrNotFound = errors.New("not found")
	// ErrInsufficientStock: запрошенное количество превышает остаток на складе.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrPersistence: ошибка записи в хранилище; операция безопасна для повтора.
	ErrPersistence = errors.New("persistence failure")

	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = fmt.Errorf("order %w", ErrNotFound)
	// ErrProductNotFound возвращается, если товар не найден.
	ErrProductNotFound = fmt.Errorf("product %w", ErrNotFound)
	// ErrCustomerNotFound возвращается, если клиент не найден.
	ErrCustomerNotFound = fmt.Errorf("customer %w", ErrNotFound)

	// Ошибка отсутствующего идентификатора клиента.
	ErrCustomerRequired = errors.New("customer_id is required")
	// Ошибка отсутствия хотя бы одного товара в заказе.
	ErrItemsRequired = errors.New("order must contain at least one item")
	// Ошибка отсутствующего идентификатора товара в позиции.
	ErrItemProductRequired = errors.New("item product_id is required")
	// Ошибка при некорректном количестве товара (<= 0).
	ErrItemQtyInvalid = errors.New("item quantity must be greater than zero")
	// Ошибка, если цена позиции отрицательная.
	ErrItemPriceInvalid = errors.New("item unit price must be non-negative")
	// Ошибка отрицательной суммы заказа.
	ErrAmountNegative = errors.New("total must be non-negative")
	// Ошибка несоответствия суммы заказа и сумм позиций.
	ErrAmountMismatch = errors.New("order total does not match items sum")
	// ErrInvalidStatus: неизвестный статус заказа.
	ErrInvalidStatus = errors.New("unknown order status")
	// ErrInvalidTransition: переход статуса запрещён жизненным циклом.
	ErrInvalidTransition = errors.New("order status transition is not allowed")
	// Ошибка отсутствующего идентификатора заказа в резерве.
	ErrOrderIDRequired = errors.New("order_id is required")
	// ErrInvalidQuantity: количество для движения стока должно быть положительным.
	ErrInvalidQuantity = errors.New("stock quantity must be greater than zero")

	ErrProductNameRequired        = errors.New("product name is required")
	ErrProductDescriptionRequired = errors.New("product description is required")
	ErrProductCategoryRequired    = errors.New("product category is required")
	ErrProductPriceNegative       = errors.New("product price cannot be negative")
	ErrProductStockNegative       = errors.New("stock level cannot be negative")

	ErrCustomerNameRequired  = errors.New("customer name is required")
	ErrCustomerEmailRequired = errors.New("customer email is required")
	ErrCustomerEmailInvalid  = errors.New("customer email is invalid")

	// ErrSKUTaken: SKU уже занят другим товаром.
	ErrSKUTaken = errors.New("sku already exists")
	// ErrEmailTaken: email уже занят другим клиентом.
	ErrEmailTaken = errors.New("email already exists")
	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrOrderVersionConflict = errors.New("order version conflict")
	// ErrOrderAlreadyExists: заказ с таким ID уже сохранён.
	ErrOrderAlreadyExists = errors.New("order already exists")
	// ErrProductAlreadyExists и ErrCustomerAlreadyExists: запись с таким ID уже сохранена.
	ErrProductAlreadyExists  = errors.New("product already exists")
	ErrCustomerAlreadyExists = errors.New("customer already exists")
	// ErrOutboxPublish: сообщение из outbox не удалось опубликовать.
	ErrOutboxPublish = errors.New("outbox publish failed")
	// ErrOutboxMessageNotFound: статус меняют у сообщения, которого нет в outbox.
	ErrOutboxMessageNotFound = errors.New("outbox message not found")

	ErrIdempotencyKeyRequired         = errors.New("idempotency key is required")
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	ErrIdempotencyKeyAlreadyExists    = errors.New("idempotency key already exists")
	ErrIdempotencyHashMismatch        = errors.New("idempotency key reused with different payload")
	ErrIdempotencyKeyNotFound         = errors.New("idempotency key not found")
)

// InsufficientStockError описывает отказ резервирования с указанием доступного остатка.
type InsufficientStockError struct {
	ProductID   string
	ProductName string
	Requested   int
	Available   int
}

func (e *InsufficientStockError) Error() string {
	name := e.ProductName
	if name == "" {
		name = e.ProductID
	}
	return fmt.Sprintf("Insufficient stock for product %s. Available: %d", name, e.Available)
}

// Unwrap позволяет проверять ошибку через errors.Is(err, ErrInsufficientStock).
func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// ValidationError агрегирует замечания валидации.
type ValidationError struct {
	Errs []error
}

// NewValidationError возвращает nil, если замечаний нет.
func NewValidationError(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return &ValidationError{Errs: errs}
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Errs))
	for _, err := range e.Errs {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

func (e *ValidationError) Unwrap() []error {
	return append([]error{ErrValidation}, e.Errs...)
}

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict)
}

// IsIdempotencyConflict проверяет, что ключ идемпотентности уже использован.
func IsIdempotencyConflict(err error) bool {
	return errors.Is(err, ErrIdempotencyKeyAlreadyExists) || errors.Is(err, ErrIdempotencyHashMismatch)
}
