package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/backoffice/internal/messaging/kafka"
)

// eventBus объединяет producer и два topic: основной и DLQ.
type eventBus struct {
	producer *kafka.Producer
	events   *kafka.TopicPublisher
	dlq      *kafka.TopicPublisher
}

// connectEventBus подключается к Kafka, если заданы брокеры.
// Пустой список брокеров даёт nil, nil: outbox в этом режиме не используется.
func connectEventBus(cfg Config, logger *log.Entry) (*eventBus, error) {
	brokers := kafka.ParseBrokers(cfg.KafkaBrokers)
	if len(brokers) == 0 {
		return nil, nil
	}

	producer, err := kafka.NewProducer(kafka.ProducerConfig{Brokers: brokers})
	if err != nil {
		return nil, err
	}

	bus := &eventBus{
		producer: producer,
		events:   kafka.NewTopicPublisher(producer, cfg.KafkaTopic),
		dlq:      kafka.NewTopicPublisher(producer, kafka.DLQTopic(cfg.KafkaTopic)),
	}
	logger.WithFields(log.Fields{
		"brokers":   brokers,
		"topic":     bus.events.Topic(),
		"dlq_topic": bus.dlq.Topic(),
	}).Info("kafka producer initialized")
	return bus, nil
}

func (b *eventBus) close(logger *log.Entry) {
	if b == nil {
		return
	}
	if err := b.producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
		return
	}
	logger.Info("kafka producer closed")
}
