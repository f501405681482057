package orderbookv1

import (
	"encoding/json"
	"time"
)

// Side represents which side of the book an order rests on.
type Side string

const (
	// SideBuy represents a bid.
	SideBuy Side = "buy"
	// SideSell represents an ask.
	SideSell Side = "sell"
)

// Opposite returns the other side of the book.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Valid reports whether the side is one of the known values.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// OrderType represents the type of order.
type OrderType string

const (
	// OrderTypeMarket represents a market order.
	OrderTypeMarket OrderType = "market"
	// OrderTypeLimit represents a limit order.
	OrderTypeLimit OrderType = "limit"
	// OrderTypeCancel represents a cancel instruction on the intake stream.
	OrderTypeCancel OrderType = "cancel"
)

// Status represents the lifecycle state of an order.
type Status string

const (
	// StatusOpen means the order rests with no fills yet.
	StatusOpen Status = "open"
	// StatusPartiallyFilled means the order has fills but quantity remains.
	StatusPartiallyFilled Status = "partially_filled"
	// StatusFilled means the order is fully executed.
	StatusFilled Status = "filled"
	// StatusCancelled means the order was removed before completion.
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status permits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusFilled || s == StatusCancelled
}

// Order represents a single order in the order book. Price and Quantity are
// integers in the smallest unit of the symbol's quote and base currencies.
// Remaining is the unfilled portion and is not persisted.
type Order struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userID"`
	Symbol    string    `json:"symbol"`
	Side      Side      `json:"side"`
	Type      OrderType `json:"type"`
	Price     int64     `json:"price"`
	Quantity  int64     `json:"quantity"`
	Remaining int64     `json:"remaining"`
	Status    Status    `json:"status"`
	Sequence  int64     `json:"sequence"`
	CreatedAt time.Time `json:"createdAt"`
}

// IsBid checks if the order is a bid (buy) order.
func (o *Order) IsBid() bool {
	return o.Side == SideBuy
}

// IsAsk checks if the order is an ask (sell) order.
func (o *Order) IsAsk() bool {
	return o.Side == SideSell
}

// IsFilled checks if the order has no remaining quantity.
func (o *Order) IsFilled() bool {
	return o.Remaining == 0
}

// FilledQuantity returns the executed portion of the order.
func (o *Order) FilledQuantity() int64 {
	return o.Quantity - o.Remaining
}

// Intent is the wire payload consumed from the order intake stream. A Type of
// OrderTypeCancel targets an existing order; everything else places a new one.
type Intent struct {
	OrderID  string    `json:"orderID"`
	UserID   string    `json:"userID"`
	Symbol   string    `json:"symbol"`
	Side     Side      `json:"side"`
	Type     OrderType `json:"type"`
	Price    int64     `json:"price"`
	Quantity int64     `json:"quantity"`
	Offset   int64     `json:"offset"` // Offset of the intent in the stream
}

// ToBytes serializes the intent for the intake stream.
func (i *Intent) ToBytes() ([]byte, error) {
	return json.Marshal(i)
}

// IntentFromBytes deserializes an intent from the intake stream.
func IntentFromBytes(data []byte) (*Intent, error) {
	var intent Intent
	if err := json.Unmarshal(data, &intent); err != nil {
		return nil, err
	}
	return &intent, nil
}
