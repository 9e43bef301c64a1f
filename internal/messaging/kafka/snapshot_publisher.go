package kafka

import (
	"context"
	"fmt"
	"strconv"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/cartsync/internal/domain"
)

// SnapshotPublisher отправляет записанные снимки корзины в Kafka topic.
// Ключ сообщения — идентификатор сессии, поэтому снимки одной сессии
// попадают в одну партицию и читаются по порядку.
type SnapshotPublisher struct {
	producer *Producer
	topic    string
}

// NewSnapshotPublisher создаёт паблишер; пустой topic заменяется TopicCartSnapshots.
func NewSnapshotPublisher(producer *Producer, topic string) *SnapshotPublisher {
	if topic == "" {
		topic = TopicCartSnapshots
	}
	return &SnapshotPublisher{
		producer: producer,
		topic:    topic,
	}
}

// PublishSnapshot реализует domain.SnapshotPublisher.
func (p *SnapshotPublisher) PublishSnapshot(ctx context.Context, event domain.SnapshotEvent) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka snapshot publisher is not initialized")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	message := NewSnapshotMessage(event)
	return p.producer.PublishEvent(p.topic, event.SessionID, message,
		sarama.RecordHeader{Key: []byte(HeaderEventType), Value: []byte(message.EventType)},
		sarama.RecordHeader{Key: []byte(HeaderSessionID), Value: []byte(event.SessionID)},
		sarama.RecordHeader{Key: []byte(HeaderRevision), Value: []byte(strconv.FormatUint(event.Revision, 10))},
	)
}

// Topic возвращает topic, в который пишет паблишер.
func (p *SnapshotPublisher) Topic() string {
	return p.topic
}

var _ domain.SnapshotPublisher = (*SnapshotPublisher)(nil)
