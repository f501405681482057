package api

import (
	"time"

	orderbookv1 "github.com/exlabs/exchange-engine/internal/domain/orderbook/v1"
)

// userIDHeader carries the caller identity resolved by the upstream auth
// service.
const userIDHeader = "X-User-ID"

// PlaceOrderRequest is the body of POST /orders.
type PlaceOrderRequest struct {
	Symbol   string `json:"symbol"`
	Side     string `json:"side"`
	Type     string `json:"type"`
	Price    int64  `json:"price"`
	Quantity int64  `json:"quantity"`
}

// OrderResponse describes one order to API clients.
type OrderResponse struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userID"`
	Symbol    string    `json:"symbol"`
	Side      string    `json:"side"`
	Type      string    `json:"type"`
	Price     int64     `json:"price"`
	Quantity  int64     `json:"quantity"`
	Remaining int64     `json:"remaining"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

func orderResponse(order *orderbookv1.Order) OrderResponse {
	return OrderResponse{
		ID:        order.ID,
		UserID:    order.UserID,
		Symbol:    order.Symbol,
		Side:      string(order.Side),
		Type:      string(order.Type),
		Price:     order.Price,
		Quantity:  order.Quantity,
		Remaining: order.Remaining,
		Status:    string(order.Status),
		CreatedAt: order.CreatedAt,
	}
}

// TradeInfo describes one execution to API clients.
type TradeInfo struct {
	ID           string    `json:"id"`
	MakerOrderID string    `json:"makerOrderID"`
	TakerOrderID string    `json:"takerOrderID"`
	Symbol       string    `json:"symbol"`
	Price        int64     `json:"price"`
	Quantity     int64     `json:"quantity"`
	CreatedAt    time.Time `json:"createdAt"`
}

func tradeInfo(trade *orderbookv1.Trade) TradeInfo {
	return TradeInfo{
		ID:           trade.ID,
		MakerOrderID: trade.MakerOrderID,
		TakerOrderID: trade.TakerOrderID,
		Symbol:       trade.Symbol,
		Price:        trade.Price,
		Quantity:     trade.Quantity,
		CreatedAt:    trade.CreatedAt,
	}
}

// PlaceOrderResponse is the body returned by POST /orders.
type PlaceOrderResponse struct {
	Order OrderResponse `json:"order"`
	Fills []TradeInfo   `json:"fills"`
}

// PositionInfo describes one position to API clients.
type PositionInfo struct {
	Symbol       string `json:"symbol"`
	Quantity     int64  `json:"quantity"`
	AveragePrice int64  `json:"averagePrice"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// WSRequest is an inbound WebSocket control message.
type WSRequest struct {
	Op       string   `json:"op"`
	Channels []string `json:"channels"`
}

// WSAck confirms a subscription change.
type WSAck struct {
	Type     string   `json:"type"`
	Op       string   `json:"op"`
	Channels []string `json:"channels"`
}

// DepthUpdate is the book broadcast sent to subscribed clients.
type DepthUpdate struct {
	Type      string            `json:"type"`
	Depth     orderbookv1.Depth `json:"depth"`
	Timestamp int64             `json:"timestamp"`
}
