package orderreaderv1

import (
	"context"

	orderbookv1 "github.com/exlabs/exchange-engine/internal/domain/orderbook/v1"
	"github.com/segmentio/kafka-go"
)

// OrderReader defines the interface for reading order intents from the
// intake stream.
type OrderReader interface {
	// ReadMessage reads a message and returns the parsed intent
	ReadMessage(ctx context.Context) (kafka.Message, *orderbookv1.Intent, error)
	// SetOffset sets the offset for the reader
	SetOffset(offset int64) error
	// Close closes the reader
	Close() error
}
