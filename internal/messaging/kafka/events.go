package kafka

import "time"

// EventType тип события заказа.
type EventType string

const (
	EventTypeOrderCreated       EventType = "order.created"
	EventTypeOrderStatusChanged EventType = "order.status_changed"
	EventTypeOrderCancelled     EventType = "order.cancelled"
	EventTypeOrderDeleted       EventType = "order.deleted"
)

// TopicOrderEvents topic по умолчанию для событий заказов.
const TopicOrderEvents = "backoffice.order.events"

const dlqSuffix = ".dlq"

// DLQTopic возвращает topic для сообщений, исчерпавших попытки доставки.
func DLQTopic(topic string) string {
	if topic == "" {
		topic = TopicOrderEvents
	}
	return topic + dlqSuffix
}

// OrderItemPayload описывает позицию заказа в событии.
type OrderItemPayload struct {
	ProductID      string `json:"product_id"`
	Quantity       int    `json:"quantity"`
	UnitPriceMinor int64  `json:"unit_price_minor"`
}

// OrderEvent тело события заказа в outbox.
type OrderEvent struct {
	EventType      EventType          `json:"event_type"`
	OrderID        string             `json:"order_id"`
	CustomerID     string             `json:"customer_id"`
	Status         string             `json:"status"`
	PreviousStatus string             `json:"previous_status,omitempty"`
	TotalMinor     int64              `json:"total_minor"`
	Items          []OrderItemPayload `json:"items,omitempty"`
	Timestamp      time.Time          `json:"timestamp"`
}

// AggregateTypeOrder тип агрегата в outbox.
const AggregateTypeOrder = "order"

// NewOrderEvent заполняет событие с текущим временем в UTC.
func NewOrderEvent(eventType EventType, orderID, customerID, status string) *OrderEvent {
	return &OrderEvent{
		EventType:  eventType,
		OrderID:    orderID,
		CustomerID: customerID,
		Status:     status,
		Timestamp:  time.Now().UTC(),
	}
}
