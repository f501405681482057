package tradepublisher

import (
	"context"
	"fmt"

	tradepublisherv1 "github.com/exlabs/exchange-engine/internal/domain/trade-publisher/v1"
	"github.com/exlabs/exchange-engine/pkg/config"
	"github.com/exlabs/exchange-engine/pkg/logger"
	"github.com/segmentio/kafka-go"
)

// Publisher represents a Kafka Publisher for publishing trade events.
type Publisher struct {
	kafkaWriter *kafka.Writer
	logger      logger.Interface
}

var _ tradepublisherv1.TradePublisher = (*Publisher)(nil)

// NewPublisher creates a new Kafka publisher for publishing trade events.
func NewPublisher(config config.TradePublisherConfig, log logger.Interface) *Publisher {
	kafkaWriter := kafka.NewWriter(kafka.WriterConfig{
		Brokers: config.Brokers,
		Topic:   config.Topic,
	})

	return &Publisher{
		kafkaWriter: kafkaWriter,
		logger:      log,
	}
}

// PublishTrade publishes a trade event to the Kafka topic.
func (p *Publisher) PublishTrade(ctx context.Context, event *tradepublisherv1.TradeEvent) error {
	value, err := event.ToBytes()
	if err != nil {
		return fmt.Errorf("marshal trade event %s: %w", event.TradeID, err)
	}

	msg := kafka.Message{
		Key:   []byte(event.Symbol),
		Value: value,
	}

	if err := p.kafkaWriter.WriteMessages(ctx, msg); err != nil {
		p.logger.Error(err,
			logger.Field{Key: "error", Value: err.Error()},
			logger.Field{Key: "tradeID", Value: event.TradeID},
		)
		return fmt.Errorf("publish trade event %s: %w", event.TradeID, err)
	}
	return nil
}

// Close closes the underlying writer.
func (p *Publisher) Close() error {
	return p.kafkaWriter.Close()
}
