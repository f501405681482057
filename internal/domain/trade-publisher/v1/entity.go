package tradepublisherv1

import (
	"encoding/json"
	"time"

	orderbookv1 "github.com/exlabs/exchange-engine/internal/domain/orderbook/v1"
)

// TradeEvent is the payload published to the trade feed for every execution.
type TradeEvent struct {
	TradeID      string           `json:"tradeID"`
	MakerOrderID string           `json:"makerOrderID"`
	TakerOrderID string           `json:"takerOrderID"`
	MakerUserID  string           `json:"makerUserID"`
	TakerUserID  string           `json:"takerUserID"`
	Symbol       string           `json:"symbol"`
	Price        int64            `json:"price"`
	Quantity     int64            `json:"quantity"`
	TakerSide    orderbookv1.Side `json:"takerSide"`
	ExecutedAt   time.Time        `json:"executedAt"`
}

// FromTrade builds the feed payload for one trade.
func FromTrade(trade *orderbookv1.Trade) *TradeEvent {
	return &TradeEvent{
		TradeID:      trade.ID,
		MakerOrderID: trade.MakerOrderID,
		TakerOrderID: trade.TakerOrderID,
		MakerUserID:  trade.MakerUserID,
		TakerUserID:  trade.TakerUserID,
		Symbol:       trade.Symbol,
		Price:        trade.Price,
		Quantity:     trade.Quantity,
		TakerSide:    trade.TakerSide,
		ExecutedAt:   trade.CreatedAt,
	}
}

// ToBytes serializes the event for the feed.
func (e *TradeEvent) ToBytes() ([]byte, error) {
	return json.Marshal(e)
}

// FromBytes deserializes an event from the feed.
func FromBytes(data []byte) (*TradeEvent, error) {
	var event TradeEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, err
	}
	return &event, nil
}
