package orderreader

import (
	"context"

	orderbookv1 "github.com/exlabs/exchange-engine/internal/domain/orderbook/v1"
	"github.com/exlabs/exchange-engine/pkg/config"
	"github.com/exlabs/exchange-engine/pkg/logger"
	"github.com/segmentio/kafka-go"
)

// Reader represents a Kafka Reader for consuming messages from the order topic.
type Reader struct {
	kafkaReader *kafka.Reader
	logger      logger.Interface
}

// NewReader creates a new Kafka reader for consuming messages from the order topic.
// It returns an implementation of the OrderReader interface.
func NewReader(config config.KafkaConfig, log logger.Interface) *Reader {
	kafkaReader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     config.Brokers,
		Topic:       config.Topic,
		Partition:   0,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.LastOffset,
	})

	return &Reader{
		kafkaReader: kafkaReader,
		logger:      log,
	}
}

// logError is a helper method to log errors consistently
func (r *Reader) logError(err error, operation string) {
	r.logger.Error(err,
		logger.Field{Key: "error", Value: err.Error()},
		logger.Field{Key: "operation", Value: operation},
	)
}

// SetOffset sets the offset for the Kafka reader.
func (r *Reader) SetOffset(offset int64) error {
	if err := r.kafkaReader.SetOffset(offset); err != nil {
		r.logError(err, "SetOffset")
		return err
	}
	return nil
}

// ReadMessage reads a message from the Kafka topic and parses it as an order intent.
func (r *Reader) ReadMessage(ctx context.Context) (kafka.Message, *orderbookv1.Intent, error) {
	msg, err := r.kafkaReader.ReadMessage(ctx)
	if err != nil {
		r.logError(err, "ReadMessage")
		return kafka.Message{Offset: 0}, nil, err
	}

	intent, err := orderbookv1.IntentFromBytes(msg.Value)
	if err != nil {
		r.logError(err, "UnmarshalIntent")
		return kafka.Message{Offset: 0}, nil, err
	}

	r.logger.Info("ReadMessage",
		logger.Field{
			Key:   "orderID",
			Value: intent.OrderID,
		},
		logger.Field{
			Key:   "userID",
			Value: intent.UserID,
		},
		logger.Field{
			Key:   "symbol",
			Value: intent.Symbol,
		},
		logger.Field{
			Key:   "type",
			Value: intent.Type,
		},
		logger.Field{
			Key:   "side",
			Value: intent.Side,
		},
	)

	intent.Offset = msg.Offset // Set the offset in the intent

	return msg, intent, nil
}

// Close properly closes the Kafka reader.
func (r *Reader) Close() error {
	if err := r.kafkaReader.Close(); err != nil {
		r.logError(err, "Close")
		return err
	}
	return nil
}
