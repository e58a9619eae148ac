package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/backoffice/internal/domain"
)

// HeaderEventType дублирует тип события в заголовке, чтобы потребитель мог
// фильтровать сообщения без разбора тела.
const HeaderEventType = "event_type"

// envelope тело сообщения в topic: метаданные outbox плюс исходный payload.
type envelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	CreatedAt     time.Time       `json:"created_at"`
	PublishedAt   time.Time       `json:"published_at"`
}

// TopicPublisher публикует outbox-сообщения в один topic.
type TopicPublisher struct {
	producer *Producer
	topic    string
	now      func() time.Time
}

// NewTopicPublisher создаёт publisher; пустой topic заменяется на TopicOrderEvents.
func NewTopicPublisher(producer *Producer, topic string) *TopicPublisher {
	if topic == "" {
		topic = TopicOrderEvents
	}
	return &TopicPublisher{producer: producer, topic: topic, now: time.Now}
}

// Topic возвращает имя topic назначения.
func (p *TopicPublisher) Topic() string { return p.topic }

// Publish отправляет сообщение с ключом по агрегату: события одного заказа
// попадают в одну партицию и читаются по порядку.
func (p *TopicPublisher) Publish(msg domain.OutboxMessage) error {
	value, err := p.encode(msg)
	if err != nil {
		return err
	}

	key := msg.AggregateID
	if key == "" {
		key = msg.ID
	}
	return p.producer.Send(Record{
		Topic:   p.topic,
		Key:     key,
		Value:   value,
		Headers: map[string]string{HeaderEventType: msg.EventType},
	})
}

func (p *TopicPublisher) encode(msg domain.OutboxMessage) ([]byte, error) {
	payload := json.RawMessage(msg.Payload)
	if !json.Valid(payload) {
		payload = json.RawMessage("null")
	}

	value, err := json.Marshal(envelope{
		ID:            msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       payload,
		CreatedAt:     msg.CreatedAt,
		PublishedAt:   p.now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("encode outbox message %s: %w", msg.ID, err)
	}
	return value, nil
}

var _ domain.OutboxPublisher = (*TopicPublisher)(nil)
