package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/cartsync/internal/messaging/kafka"
)

// initKafkaProducer инициализирует Kafka producer, если брокеры заданы.
// Ошибка подключения не фатальна: сервис продолжает работу без ленты снимков.
func initKafkaProducer(brokers []string, logger *log.Entry) *kafka.Producer {
	if len(brokers) == 0 {
		return nil
	}

	producer, err := kafka.NewProducer(brokers)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without snapshot feed")
		return nil
	}

	logger.WithField("brokers", brokers).Info("kafka producer initialized")
	return producer
}

// closeKafka закрывает Kafka producer если он не nil.
func closeKafka(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}

	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
	} else {
		logger.Info("kafka producer closed")
	}
}
