package kafka

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

// SnapshotHandler обрабатывает снимок, прочитанный из ленты.
type SnapshotHandler func(ctx context.Context, message *SnapshotMessage) error

const (
	defaultHandlerAttempts = 3
	defaultHandlerBackoff  = 100 * time.Millisecond
)

// Consumer читает ленту снимков через consumer group.
type Consumer struct {
	consumer sarama.ConsumerGroup
	topics   []string
	handler  SnapshotHandler
	logger   *log.Entry
	wg       sync.WaitGroup

	maxAttempts int
	backoff     time.Duration
}

// NewConsumer создает consumer group для topic снимков.
// fromOldest=true читает ленту с начала, иначе только новые сообщения.
func NewConsumer(brokers []string, groupID, topic string, fromOldest bool, handler SnapshotHandler) (*Consumer, error) {
	config := sarama.NewConfig()
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	config.Consumer.Offsets.Initial = sarama.OffsetNewest
	if fromOldest {
		config.Consumer.Offsets.Initial = sarama.OffsetOldest
	}
	config.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(brokers, groupID, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}

	if topic == "" {
		topic = TopicCartSnapshots
	}
	return newConsumer(group, []string{topic}, handler), nil
}

func newConsumer(group sarama.ConsumerGroup, topics []string, handler SnapshotHandler) *Consumer {
	return &Consumer{
		consumer:    group,
		topics:      topics,
		handler:     handler,
		logger:      log.WithField("component", "kafka-consumer"),
		maxAttempts: defaultHandlerAttempts,
		backoff:     defaultHandlerBackoff,
	}
}

// Start запускает consumer
func (c *Consumer) Start(ctx context.Context) error {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			// При rebalance Consume завершается, поэтому вызываем его в цикле.
			if err := c.consumer.Consume(ctx, c.topics, c); err != nil {
				c.logger.WithError(err).Error("error from consumer")
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for err := range c.consumer.Errors() {
			c.logger.WithError(err).Error("consumer error")
		}
	}()

	c.logger.WithField("topics", c.topics).Info("kafka consumer started")
	return nil
}

// Stop останавливает consumer
func (c *Consumer) Stop() error {
	if err := c.consumer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka consumer: %w", err)
	}
	c.wg.Wait()
	c.logger.Info("kafka consumer stopped")
	return nil
}

// Setup вызывается при старте consumer session
func (c *Consumer) Setup(sarama.ConsumerGroupSession) error {
	return nil
}

// Cleanup вызывается при завершении consumer session
func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim обрабатывает сообщения из partition
func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message := <-claim.Messages():
			if message == nil {
				return nil
			}

			fields := log.Fields{
				"topic":     message.Topic,
				"partition": message.Partition,
				"offset":    message.Offset,
			}
			c.logger.WithFields(fields).Debug("received message")

			if err := c.handleMessage(session.Context(), message); err != nil {
				// Битое или необработанное сообщение пропускаем, чтобы не блокировать partition.
				c.logger.WithError(err).WithFields(fields).Error("snapshot message skipped")
			}
			session.MarkMessage(message, "")

		case <-session.Context().Done():
			return nil
		}
	}
}

func (c *Consumer) handleMessage(ctx context.Context, message *sarama.ConsumerMessage) error {
	snapshot, err := ParseSnapshotMessage(message)
	if err != nil {
		return err
	}

	delay := c.backoff
	for attempt := 1; ; attempt++ {
		err = c.handler(ctx, snapshot)
		if err == nil {
			return nil
		}
		if attempt >= c.maxAttempts {
			return fmt.Errorf("handler failed after %d attempts: %w", attempt, err)
		}

		c.logger.WithError(err).WithFields(log.Fields{
			"attempt":      attempt,
			"max_attempts": c.maxAttempts,
		}).Warn("snapshot handler failed, will retry")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
}
