package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	orderbookv1 "github.com/exlabs/exchange-engine/internal/domain/orderbook/v1"
	positionv1 "github.com/exlabs/exchange-engine/internal/domain/position/v1"
	"github.com/exlabs/exchange-engine/internal/usecase/matching"
	"github.com/exlabs/exchange-engine/pkg/logger"
	"github.com/exlabs/exchange-engine/pkg/util"
)

const defaultTradeLimit = 50

// EngineService is the slice of the engine the gateway needs.
type EngineService interface {
	PlaceOrder(ctx context.Context, intent *orderbookv1.Intent) (*matching.Result, error)
	CancelOrder(ctx context.Context, symbol, orderID, userID string) (*orderbookv1.Order, error)
	GetOrder(ctx context.Context, symbol, orderID string) (*orderbookv1.Order, error)
	Depth(symbol string, limit int) (orderbookv1.Depth, error)
	RecentTrades(symbol string, limit int) ([]*orderbookv1.Trade, error)
	UserTrades(ctx context.Context, userID string, limit int) ([]*orderbookv1.Trade, error)
	Positions(userID string) []*positionv1.Position
	Symbols() []string
}

// Server handles REST API and WebSocket connections.
type Server struct {
	engine EngineService
	router *mux.Router
	hub    *Hub
	logger logger.Interface
	http   *http.Server
}

// NewServer creates a new API server.
func NewServer(engine EngineService, log logger.Interface) *Server {
	s := &Server{
		engine: engine,
		router: mux.NewRouter(),
		hub:    NewHub(log),
		logger: log,
	}

	s.setupRoutes()
	return s
}

// Hub exposes the WebSocket hub so it can be wired as the engine broadcaster.
func (s *Server) Hub() *Hub {
	return s.hub
}

func (s *Server) setupRoutes() {
	s.router.Use(s.requestID)

	s.router.HandleFunc("/orders", s.handlePlaceOrder).Methods("POST")
	s.router.HandleFunc("/orders/{id}", s.handleGetOrder).Methods("GET")
	s.router.HandleFunc("/orders/{id}", s.handleCancelOrder).Methods("DELETE")

	s.router.HandleFunc("/book", s.handleGetBook).Methods("GET")
	s.router.HandleFunc("/trades", s.handleGetTrades).Methods("GET")
	s.router.HandleFunc("/trades/me", s.handleGetUserTrades).Methods("GET")
	s.router.HandleFunc("/positions", s.handleGetPositions).Methods("GET")
	s.router.HandleFunc("/symbols", s.handleGetSymbols).Methods("GET")

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// requestID stamps every request with an id the logger picks up.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := util.WithRequestID(r.Context(), matching.NewID())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Start runs the hub and serves HTTP until Shutdown.
func (s *Server) Start(addr string) error {
	go s.hub.Run()

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", userIDHeader},
		AllowCredentials: false,
	})

	s.http = &http.Server{
		Addr:    addr,
		Handler: c.Handler(s.router),
	}

	s.logger.Info("api server starting", logger.Field{Key: "addr", Value: addr})
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops the HTTP server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// Router exposes the handler for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(userIDHeader)
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "missing user identity", "")
		return
	}

	var req PlaceOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	intent := &orderbookv1.Intent{
		OrderID:  matching.NewID(),
		UserID:   userID,
		Symbol:   req.Symbol,
		Side:     orderbookv1.Side(req.Side),
		Type:     orderbookv1.OrderType(req.Type),
		Price:    req.Price,
		Quantity: req.Quantity,
	}

	result, err := s.engine.PlaceOrder(r.Context(), intent)
	if err != nil && result == nil {
		s.respondEngineError(w, err)
		return
	}
	if err != nil {
		// fills that stood before the abort are reported with the error
		s.logger.WarnContext(r.Context(), "order aborted mid-pass",
			logger.Field{Key: "orderID", Value: intent.OrderID},
			logger.Field{Key: "reason", Value: err.Error()},
		)
	}

	// a market order that found no liquidity is a rejection, not a fill
	if result.Order.Type == orderbookv1.OrderTypeMarket &&
		result.Order.Status == orderbookv1.StatusCancelled && len(result.Fills) == 0 {
		respondError(w, http.StatusBadRequest, "no liquidity", "")
		return
	}

	fills := make([]TradeInfo, 0, len(result.Fills))
	for _, fill := range result.Fills {
		fills = append(fills, tradeInfo(fill))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(PlaceOrderResponse{
		Order: orderResponse(result.Order),
		Fills: fills,
	})
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	orderID := mux.Vars(r)["id"]
	symbol := r.URL.Query().Get("symbol")

	order, err := s.engine.GetOrder(r.Context(), symbol, orderID)
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, orderResponse(order))
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(userIDHeader)
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "missing user identity", "")
		return
	}

	orderID := mux.Vars(r)["id"]
	symbol := r.URL.Query().Get("symbol")

	order, err := s.engine.CancelOrder(r.Context(), symbol, orderID, userID)
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, orderResponse(order))
}

func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	levels := queryInt(r, "depth", 0)

	depth, err := s.engine.Depth(symbol, levels)
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, depth)
}

func (s *Server) handleGetTrades(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	limit := queryInt(r, "limit", defaultTradeLimit)

	trades, err := s.engine.RecentTrades(symbol, limit)
	if err != nil {
		s.respondEngineError(w, err)
		return
	}

	response := make([]TradeInfo, 0, len(trades))
	for _, trade := range trades {
		response = append(response, tradeInfo(trade))
	}
	respondJSON(w, response)
}

func (s *Server) handleGetUserTrades(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(userIDHeader)
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "missing user identity", "")
		return
	}
	limit := queryInt(r, "limit", defaultTradeLimit)

	trades, err := s.engine.UserTrades(r.Context(), userID, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "trade history unavailable", err.Error())
		return
	}

	response := make([]TradeInfo, 0, len(trades))
	for _, trade := range trades {
		response = append(response, tradeInfo(trade))
	}
	respondJSON(w, response)
}

func (s *Server) handleGetPositions(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(userIDHeader)
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "missing user identity", "")
		return
	}

	positions := s.engine.Positions(userID)
	response := make([]PositionInfo, 0, len(positions))
	for _, position := range positions {
		response = append(response, PositionInfo{
			Symbol:       position.Symbol,
			Quantity:     position.Quantity,
			AveragePrice: position.AveragePrice,
		})
	}
	respondJSON(w, response)
}

func (s *Server) handleGetSymbols(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, s.engine.Symbols())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// respondEngineError maps engine errors onto HTTP statuses.
func (s *Server) respondEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, orderbookv1.ErrInvalidOrder):
		respondError(w, http.StatusBadRequest, "invalid order", err.Error())
	case errors.Is(err, orderbookv1.ErrOverflow):
		respondError(w, http.StatusBadRequest, "notional overflow", err.Error())
	case errors.Is(err, orderbookv1.ErrUnknownSymbol):
		respondError(w, http.StatusNotFound, "unknown symbol", err.Error())
	case errors.Is(err, orderbookv1.ErrNotFound):
		respondError(w, http.StatusNotFound, "order not found", err.Error())
	case errors.Is(err, orderbookv1.ErrNotOwner):
		respondError(w, http.StatusForbidden, "not your order", "")
	case errors.Is(err, orderbookv1.ErrAlreadyTerminal):
		respondError(w, http.StatusConflict, "order already terminal", err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal error", err.Error())
	}
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Message: message,
	})
}
