package domain

import (
	"context"
	"time"
)

// StockStore выполняет атомарное изменение остатка одного товара.
// Реализация обязана проверять и списывать остаток одной операцией:
// конкурентный резерв не должен увидеть устаревший stock_level.
type StockStore interface {
	// DecrementStock списывает qty, если остаток >= qty. Возвращает товар после списания,
	// ErrProductNotFound или *InsufficientStockError.
	DecrementStock(ctx context.Context, productID string, qty int) (Product, error)
	// IncrementStock возвращает qty на склад. Возвращает ErrProductNotFound, если товара нет.
	IncrementStock(ctx context.Context, productID string, qty int) (Product, error)
}

// ProductRepository описывает хранилище каталога товаров.
type ProductRepository interface {
	StockStore

	Create(ctx context.Context, product Product) error
	Get(ctx context.Context, id string) (Product, error)
	// GetMany возвращает найденные товары; отсутствующие ID просто пропускаются.
	GetMany(ctx context.Context, ids []string) (map[string]Product, error)
	List(ctx context.Context) ([]Product, error)
	// Update сохраняет поля каталога; StockLevel игнорируется.
	Update(ctx context.Context, product Product) error
	Delete(ctx context.Context, id string) error
}

// CustomerRepository описывает хранилище клиентов.
type CustomerRepository interface {
	Create(ctx context.Context, customer Customer) error
	Get(ctx context.Context, id string) (Customer, error)
	List(ctx context.Context) ([]Customer, error)
	Update(ctx context.Context, customer Customer) error
	Delete(ctx context.Context, id string) error
}

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ. Возвращает ErrOrderAlreadyExists, если запись с таким ID уже существует.
	Create(ctx context.Context, order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound, если его нет.
	Get(ctx context.Context, id string) (Order, error)
	// List возвращает заказы, новые первыми; limit <= 0 означает без ограничения.
	List(ctx context.Context, limit int) ([]Order, error)
	// ListByCustomer возвращает заказы клиента с опциональным ограничением на количество.
	ListByCustomer(ctx context.Context, customerID string, limit int) ([]Order, error)
	// Save применяет обновления к заказу с учётом optimistic locking:
	// order.Version должна совпадать с сохранённой, после записи версия увеличивается.
	Save(ctx context.Context, order Order) error
	// Delete удаляет заказ, если его версия совпадает с version.
	Delete(ctx context.Context, id string, version int64) error
}

// MovementRepository хранит журнал изменений остатков.
type MovementRepository interface {
	Append(ctx context.Context, movement StockMovement) error
	List(ctx context.Context, productID string, limit int) ([]StockMovement, error)
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// IdempotencyRepository хранит состояние обработки запросов по idempotency-key.
type IdempotencyRepository interface {
	CreateProcessing(ctx context.Context, key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(ctx context.Context, key string) (IdempotencyRecord, error)
	MarkDone(ctx context.Context, key string, responseBody []byte, httpStatus int) error
	MarkFailed(ctx context.Context, key string, responseBody []byte, httpStatus int) error
	// Delete освобождает ключ, чтобы запрос можно было повторить (после ошибки сервера).
	Delete(ctx context.Context, key string) error
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
}

// OutboxStatus описывает состояние сообщения в outbox.
type OutboxStatus string

const (
	OutboxStatusPending OutboxStatus = "pending"
	OutboxStatusSent    OutboxStatus = "sent"
	OutboxStatusFailed  OutboxStatus = "failed"
)

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	Status        OutboxStatus
	CreatedAt     time.Time
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
