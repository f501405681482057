package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/exlabs/exchange-engine/internal/app/engine"
	orderbookv1 "github.com/exlabs/exchange-engine/internal/domain/orderbook/v1"
	"github.com/exlabs/exchange-engine/internal/usecase/matching"
	"github.com/exlabs/exchange-engine/internal/usecase/position"
	"github.com/exlabs/exchange-engine/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	log, err := logger.NewLogger()
	require.NoError(t, err)

	matcher := matching.NewEngine([]string{"BTC-USD"}, log)
	svc := engine.NewEngine(matcher, position.NewLedger(), nil, nil, nil, nil, log, nil)

	return NewServer(svc, log)
}

func doRequest(t *testing.T, s *Server, method, target, userID string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, target, reader)
	if userID != "" {
		req.Header.Set(userIDHeader, userID)
	}

	recorder := httptest.NewRecorder()
	s.Router().ServeHTTP(recorder, req)
	return recorder
}

func placeOrder(t *testing.T, s *Server, userID string, req PlaceOrderRequest) PlaceOrderResponse {
	t.Helper()

	recorder := doRequest(t, s, http.MethodPost, "/orders", userID, req)
	require.Equal(t, http.StatusCreated, recorder.Code, recorder.Body.String())

	var response PlaceOrderResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
	return response
}

func TestServer_Health(t *testing.T) {
	s := newTestServer(t)

	recorder := doRequest(t, s, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "ok")
}

func TestServer_PlaceOrder(t *testing.T) {
	t.Run("resting limit order", func(t *testing.T) {
		s := newTestServer(t)

		response := placeOrder(t, s, "alice", PlaceOrderRequest{
			Symbol: "BTC-USD", Side: "sell", Type: "limit", Price: 100, Quantity: 5,
		})

		assert.NotEmpty(t, response.Order.ID)
		assert.Equal(t, "alice", response.Order.UserID)
		assert.Equal(t, "open", response.Order.Status)
		assert.Equal(t, int64(5), response.Order.Remaining)
		assert.Empty(t, response.Fills)
	})

	t.Run("crossing order reports fills", func(t *testing.T) {
		s := newTestServer(t)

		placeOrder(t, s, "alice", PlaceOrderRequest{
			Symbol: "BTC-USD", Side: "sell", Type: "limit", Price: 100, Quantity: 5,
		})
		response := placeOrder(t, s, "bob", PlaceOrderRequest{
			Symbol: "BTC-USD", Side: "buy", Type: "limit", Price: 101, Quantity: 5,
		})

		assert.Equal(t, "filled", response.Order.Status)
		require.Len(t, response.Fills, 1)
		assert.Equal(t, int64(100), response.Fills[0].Price)
		assert.Equal(t, int64(5), response.Fills[0].Quantity)
	})

	t.Run("missing identity", func(t *testing.T) {
		s := newTestServer(t)

		recorder := doRequest(t, s, http.MethodPost, "/orders", "", PlaceOrderRequest{
			Symbol: "BTC-USD", Side: "buy", Type: "limit", Price: 100, Quantity: 1,
		})
		assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	})

	t.Run("invalid side", func(t *testing.T) {
		s := newTestServer(t)

		recorder := doRequest(t, s, http.MethodPost, "/orders", "alice", PlaceOrderRequest{
			Symbol: "BTC-USD", Side: "sideways", Type: "limit", Price: 100, Quantity: 1,
		})
		assert.Equal(t, http.StatusBadRequest, recorder.Code)
	})

	t.Run("unknown symbol", func(t *testing.T) {
		s := newTestServer(t)

		recorder := doRequest(t, s, http.MethodPost, "/orders", "alice", PlaceOrderRequest{
			Symbol: "DOGE-USD", Side: "buy", Type: "limit", Price: 100, Quantity: 1,
		})
		assert.Equal(t, http.StatusNotFound, recorder.Code)
	})

	t.Run("market order with no liquidity", func(t *testing.T) {
		s := newTestServer(t)

		recorder := doRequest(t, s, http.MethodPost, "/orders", "alice", PlaceOrderRequest{
			Symbol: "BTC-USD", Side: "buy", Type: "market", Quantity: 5,
		})
		assert.Equal(t, http.StatusBadRequest, recorder.Code)
		assert.Contains(t, recorder.Body.String(), "no liquidity")
	})
}

func TestServer_CancelOrder(t *testing.T) {
	s := newTestServer(t)

	response := placeOrder(t, s, "alice", PlaceOrderRequest{
		Symbol: "BTC-USD", Side: "sell", Type: "limit", Price: 100, Quantity: 5,
	})
	orderID := response.Order.ID

	t.Run("wrong owner", func(t *testing.T) {
		recorder := doRequest(t, s, http.MethodDelete, "/orders/"+orderID+"?symbol=BTC-USD", "mallory", nil)
		assert.Equal(t, http.StatusForbidden, recorder.Code)
	})

	t.Run("owner cancels", func(t *testing.T) {
		recorder := doRequest(t, s, http.MethodDelete, "/orders/"+orderID+"?symbol=BTC-USD", "alice", nil)
		require.Equal(t, http.StatusOK, recorder.Code)

		var cancelled OrderResponse
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &cancelled))
		assert.Equal(t, "cancelled", cancelled.Status)
	})

	t.Run("second cancel conflicts", func(t *testing.T) {
		recorder := doRequest(t, s, http.MethodDelete, "/orders/"+orderID+"?symbol=BTC-USD", "alice", nil)
		assert.Equal(t, http.StatusConflict, recorder.Code)
	})

	t.Run("unknown order", func(t *testing.T) {
		recorder := doRequest(t, s, http.MethodDelete, "/orders/nope?symbol=BTC-USD", "alice", nil)
		assert.Equal(t, http.StatusNotFound, recorder.Code)
	})
}

func TestServer_GetOrder(t *testing.T) {
	s := newTestServer(t)

	response := placeOrder(t, s, "alice", PlaceOrderRequest{
		Symbol: "BTC-USD", Side: "sell", Type: "limit", Price: 100, Quantity: 5,
	})

	recorder := doRequest(t, s, http.MethodGet, "/orders/"+response.Order.ID+"?symbol=BTC-USD", "", nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	var order OrderResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &order))
	assert.Equal(t, response.Order.ID, order.ID)

	recorder = doRequest(t, s, http.MethodGet, "/orders/nope?symbol=BTC-USD", "", nil)
	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestServer_GetBook(t *testing.T) {
	s := newTestServer(t)

	placeOrder(t, s, "alice", PlaceOrderRequest{
		Symbol: "BTC-USD", Side: "sell", Type: "limit", Price: 101, Quantity: 3,
	})
	placeOrder(t, s, "bob", PlaceOrderRequest{
		Symbol: "BTC-USD", Side: "buy", Type: "limit", Price: 99, Quantity: 4,
	})

	recorder := doRequest(t, s, http.MethodGet, "/book?symbol=BTC-USD&depth=10", "", nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	var depth orderbookv1.Depth
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &depth))
	require.Len(t, depth.Asks, 1)
	require.Len(t, depth.Bids, 1)
	assert.Equal(t, int64(101), depth.Asks[0].Price)
	assert.Equal(t, int64(99), depth.Bids[0].Price)

	recorder = doRequest(t, s, http.MethodGet, "/book?symbol=DOGE-USD", "", nil)
	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestServer_Trades(t *testing.T) {
	s := newTestServer(t)

	placeOrder(t, s, "alice", PlaceOrderRequest{
		Symbol: "BTC-USD", Side: "sell", Type: "limit", Price: 100, Quantity: 5,
	})
	placeOrder(t, s, "bob", PlaceOrderRequest{
		Symbol: "BTC-USD", Side: "buy", Type: "limit", Price: 100, Quantity: 5,
	})

	recorder := doRequest(t, s, http.MethodGet, "/trades?symbol=BTC-USD", "", nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	var trades []TradeInfo
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &trades))
	require.Len(t, trades, 1)
	assert.Equal(t, int64(100), trades[0].Price)

	t.Run("user trades", func(t *testing.T) {
		recorder := doRequest(t, s, http.MethodGet, "/trades/me", "alice", nil)
		require.Equal(t, http.StatusOK, recorder.Code)

		var mine []TradeInfo
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &mine))
		assert.Len(t, mine, 1)

		recorder = doRequest(t, s, http.MethodGet, "/trades/me", "carol", nil)
		require.Equal(t, http.StatusOK, recorder.Code)
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &mine))
		assert.Empty(t, mine)
	})

	t.Run("missing identity", func(t *testing.T) {
		recorder := doRequest(t, s, http.MethodGet, "/trades/me", "", nil)
		assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	})
}

func TestServer_Positions(t *testing.T) {
	s := newTestServer(t)

	placeOrder(t, s, "alice", PlaceOrderRequest{
		Symbol: "BTC-USD", Side: "sell", Type: "limit", Price: 100, Quantity: 5,
	})
	placeOrder(t, s, "bob", PlaceOrderRequest{
		Symbol: "BTC-USD", Side: "buy", Type: "limit", Price: 100, Quantity: 5,
	})

	recorder := doRequest(t, s, http.MethodGet, "/positions", "bob", nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	var positions []PositionInfo
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &positions))
	require.Len(t, positions, 1)
	assert.Equal(t, int64(5), positions[0].Quantity)
	assert.Equal(t, int64(100), positions[0].AveragePrice)

	recorder = doRequest(t, s, http.MethodGet, "/positions", "", nil)
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}

func TestServer_Symbols(t *testing.T) {
	s := newTestServer(t)

	recorder := doRequest(t, s, http.MethodGet, "/symbols", "", nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	var symbols []string
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &symbols))
	assert.Equal(t, []string{"BTC-USD"}, symbols)
}
