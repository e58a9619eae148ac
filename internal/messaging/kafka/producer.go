package kafka

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

const (
	defaultClientID   = "backoffice"
	defaultMaxRetries = 5
)

var errProducerNotInitialized = errors.New("kafka producer is not initialized")

// ProducerConfig задаёт параметры sync producer.
type ProducerConfig struct {
	Brokers  []string
	ClientID string
	// MaxRetries: повторы внутри sarama до возврата ошибки outbox-воркеру.
	MaxRetries int
	Timeout    time.Duration
}

// ParseBrokers разбирает список брокеров через запятую, пропуская пустые элементы.
func ParseBrokers(raw string) []string {
	var brokers []string
	for _, part := range strings.Split(raw, ",") {
		if broker := strings.TrimSpace(part); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}

func (c ProducerConfig) saramaConfig() *sarama.Config {
	sc := sarama.NewConfig()
	sc.ClientID = defaultClientID
	if c.ClientID != "" {
		sc.ClientID = c.ClientID
	}

	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Return.Successes = true
	sc.Producer.Compression = sarama.CompressionSnappy
	sc.Producer.Retry.Max = defaultMaxRetries
	if c.MaxRetries > 0 {
		sc.Producer.Retry.Max = c.MaxRetries
	}
	if c.Timeout > 0 {
		sc.Producer.Timeout = c.Timeout
	}

	// idempotent producer требует одного запроса в полёте
	sc.Producer.Idempotent = true
	sc.Net.MaxOpenRequests = 1
	return sc
}

// Record одно сообщение для отправки: ключ задаёт партицию.
type Record struct {
	Topic   string
	Key     string
	Value   []byte
	Headers map[string]string
}

func (r Record) producerMessage(now time.Time) *sarama.ProducerMessage {
	msg := &sarama.ProducerMessage{
		Topic:     r.Topic,
		Key:       sarama.StringEncoder(r.Key),
		Value:     sarama.ByteEncoder(r.Value),
		Timestamp: now,
	}
	for key, value := range r.Headers {
		msg.Headers = append(msg.Headers, sarama.RecordHeader{Key: []byte(key), Value: []byte(value)})
	}
	return msg
}

// Producer синхронно отправляет записи в Kafka.
type Producer struct {
	sync   sarama.SyncProducer
	logger *log.Entry
}

// NewProducer подключается к брокерам и создаёт sync producer.
func NewProducer(cfg ProducerConfig) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are not configured")
	}

	sync, err := sarama.NewSyncProducer(cfg.Brokers, cfg.saramaConfig())
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return NewProducerFromSync(sync), nil
}

// NewProducerFromSync оборачивает готовый sarama.SyncProducer, например mocks.SyncProducer.
func NewProducerFromSync(sync sarama.SyncProducer) *Producer {
	return &Producer{
		sync:   sync,
		logger: log.WithField("component", "kafka-producer"),
	}
}

// Send отправляет запись и ждёт подтверждения всех реплик.
func (p *Producer) Send(record Record) error {
	if p == nil || p.sync == nil {
		return errProducerNotInitialized
	}

	logger := p.logger.WithFields(log.Fields{"topic": record.Topic, "key": record.Key})
	partition, offset, err := p.sync.SendMessage(record.producerMessage(time.Now()))
	if err != nil {
		logger.WithError(err).Error("failed to send message to kafka")
		return fmt.Errorf("send to %s: %w", record.Topic, err)
	}

	logger.WithFields(log.Fields{"partition": partition, "offset": offset}).Debug("message sent to kafka")
	return nil
}

// Close закрывает producer; nil-producer закрывать безопасно.
func (p *Producer) Close() error {
	if p == nil || p.sync == nil {
		return nil
	}
	if err := p.sync.Close(); err != nil {
		return fmt.Errorf("close kafka producer: %w", err)
	}
	return nil
}
