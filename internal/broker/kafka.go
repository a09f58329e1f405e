package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"pantry-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// messageWriter is the part of *kafka.Writer the producer needs
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Producer struct {
	writer messageWriter
	logger *zap.Logger
}

// NewProducer creates a new Kafka producer
func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		MaxAttempts:            3,
		WriteTimeout:           10 * time.Second,
		ReadTimeout:            10 * time.Second,
		AllowAutoTopicCreation: true,
	}

	return newProducer(writer)
}

func newProducer(writer messageWriter) *Producer {
	return &Producer{writer: writer, logger: util.GetLogger()}
}

// PublishEvent publishes an event to Kafka. Messages with the same key land on
// the same partition, so one order's events stay in order.
func (p *Producer) PublishEvent(ctx context.Context, key string, event interface{}) error {
	eventBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: eventBytes,
		Time:  time.Now(),
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}

	p.logger.Debug("Published event", zap.String("key", key), zap.String("type", fmt.Sprintf("%T", event)))
	return nil
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

// Consumer represents a Kafka consumer
type Consumer struct {
	reader *kafka.Reader
	logger *zap.Logger
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: time.Second,
		StartOffset:    kafka.FirstOffset,
	})

	return &Consumer{reader: reader, logger: util.GetLogger()}
}

// Close closes the consumer
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// MessageHandler is a function type for handling messages
type MessageHandler func(ctx context.Context, msg kafka.Message) error

// StartConsuming fetches messages until ctx ends. A message is committed only
// after handler succeeds; a failed message is left for redelivery.
func (c *Consumer) StartConsuming(ctx context.Context, handler MessageHandler) error {
	c.logger.Info("Starting Kafka consumer", zap.String("topic", c.reader.Config().Topic))

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				c.logger.Info("Consumer context cancelled, stopping")
				return ctx.Err()
			}
			c.logger.Warn("Error fetching message", zap.Error(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}

		if err := handler(ctx, msg); err != nil {
			c.logger.Error("Error handling message",
				zap.String("key", string(msg.Key)),
				zap.Int64("offset", msg.Offset),
				zap.Error(err))
			continue
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Warn("Error committing message", zap.Error(err))
		}
	}
}
