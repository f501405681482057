package matching

import (
	"fmt"
	"sync"
	"time"

	orderbookv1 "github.com/exlabs/exchange-engine/internal/domain/orderbook/v1"
	"github.com/exlabs/exchange-engine/internal/usecase/orderbook"
	"github.com/exlabs/exchange-engine/pkg/logger"
)

// maxRecentTrades caps the per-symbol in-memory trade history.
const maxRecentTrades = 1000

// maxTerminalOrders caps the per-symbol memory kept for orders that left the
// book. Oldest entries are evicted first; a cancel referencing an evicted id
// reports ErrNotFound instead of ErrAlreadyTerminal.
const maxTerminalOrders = 100_000

// Result is the outcome of one admission: the taker order in its final
// state, the trades it produced in execution order, and the affected maker
// orders. All orders are copies taken inside the symbol lock.
type Result struct {
	Order  *orderbookv1.Order
	Fills  []*orderbookv1.Trade
	Makers []*orderbookv1.Order
}

// symbolBook bundles one symbol's book with its serialization lock and the
// per-symbol state the engine maintains alongside it. The mutex is held for
// the whole matching pass, so fills from concurrent submissions never
// interleave within a symbol.
type symbolBook struct {
	mu          sync.Mutex
	symbol      string
	book        orderbookv1.Book
	sequence    int64
	terminal    map[string]orderbookv1.Status // orders no longer resting
	terminalIDs []string                      // insertion order, for eviction
	trades      []*orderbookv1.Trade
}

// markTerminal records an order that left the book, evicting the oldest
// entries beyond maxTerminalOrders. Caller holds sb.mu.
func (sb *symbolBook) markTerminal(orderID string, status orderbookv1.Status) {
	if _, ok := sb.terminal[orderID]; !ok {
		sb.terminalIDs = append(sb.terminalIDs, orderID)
	}
	sb.terminal[orderID] = status

	for len(sb.terminalIDs) > maxTerminalOrders {
		delete(sb.terminal, sb.terminalIDs[0])
		sb.terminalIDs = sb.terminalIDs[1:]
	}
}

// Engine matches incoming orders against per-symbol books in price-time
// priority. Trades execute at the resting maker's limit price.
type Engine struct {
	mu     sync.RWMutex
	books  map[string]*symbolBook
	logger logger.Interface
	now    func() time.Time
	newID  func() string
}

// NewEngine creates an engine with one empty book per symbol.
func NewEngine(symbols []string, log logger.Interface, opts ...Option) *Engine {
	e := &Engine{
		books:  make(map[string]*symbolBook, len(symbols)),
		logger: log,
		now:    time.Now,
		newID:  NewID,
	}
	for _, opt := range opts {
		opt(e)
	}
	for _, symbol := range symbols {
		e.books[symbol] = &symbolBook{
			symbol:   symbol,
			book:     orderbook.NewBook(symbol),
			terminal: make(map[string]orderbookv1.Status),
		}
	}
	return e
}

// Symbols returns the symbols this engine maintains books for.
func (e *Engine) Symbols() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	symbols := make([]string, 0, len(e.books))
	for symbol := range e.books {
		symbols = append(symbols, symbol)
	}
	return symbols
}

func (e *Engine) symbolBook(symbol string) (*symbolBook, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	sb, ok := e.books[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: %s", orderbookv1.ErrUnknownSymbol, symbol)
	}
	return sb, nil
}

// Submit validates and matches one order intent. Limit orders rest with any
// unfilled remainder; market orders never rest, an unmet remainder is
// discarded. A market order that finds no liquidity at all comes back
// cancelled with no fills.
func (e *Engine) Submit(intent *orderbookv1.Intent) (*Result, error) {
	if err := validateIntent(intent); err != nil {
		return nil, err
	}

	sb, err := e.symbolBook(intent.Symbol)
	if err != nil {
		return nil, err
	}

	sb.mu.Lock()
	defer sb.mu.Unlock()

	if _, resting := sb.book.Order(intent.OrderID); resting {
		return nil, fmt.Errorf("%w: order %s already exists", orderbookv1.ErrInvalidOrder, intent.OrderID)
	}
	if _, done := sb.terminal[intent.OrderID]; done {
		return nil, fmt.Errorf("%w: order %s already exists", orderbookv1.ErrInvalidOrder, intent.OrderID)
	}

	id := intent.OrderID
	if id == "" {
		id = e.newID()
	}

	sb.sequence++
	order := &orderbookv1.Order{
		ID:        id,
		UserID:    intent.UserID,
		Symbol:    intent.Symbol,
		Side:      intent.Side,
		Type:      intent.Type,
		Price:     intent.Price,
		Quantity:  intent.Quantity,
		Remaining: intent.Quantity,
		Status:    orderbookv1.StatusOpen,
		Sequence:  sb.sequence,
		CreatedAt: e.now(),
	}

	result, err := sb.match(order, e.newID, e.now)
	if err != nil {
		return result, err
	}

	if e.logger != nil {
		e.logger.Info("order processed",
			logger.Field{Key: "orderID", Value: order.ID},
			logger.Field{Key: "symbol", Value: order.Symbol},
			logger.Field{Key: "status", Value: string(order.Status)},
			logger.Field{Key: "fills", Value: len(result.Fills)},
		)
	}

	return result, nil
}

// match runs one matching pass for the taker. Caller holds sb.mu.
func (sb *symbolBook) match(taker *orderbookv1.Order, newID func() string, now func() time.Time) (*Result, error) {
	result := &Result{}

	for taker.Remaining > 0 {
		level := sb.oppositeBest(taker.Side)
		if level == nil {
			break
		}
		if taker.Type == orderbookv1.OrderTypeLimit && !crosses(taker.Side, taker.Price, level.Price) {
			break
		}

		maker := level.Front()
		quantity := taker.Remaining
		if maker.Remaining < quantity {
			quantity = maker.Remaining
		}

		// Reject the fill before any state changes when its notional
		// cannot be represented. Fills already applied stand.
		if _, err := orderbookv1.Notional(level.Price, quantity); err != nil {
			sb.finishOverflow(taker, result)
			return result, err
		}

		trade := &orderbookv1.Trade{
			ID:           newID(),
			MakerOrderID: maker.ID,
			TakerOrderID: taker.ID,
			MakerUserID:  maker.UserID,
			TakerUserID:  taker.UserID,
			Symbol:       taker.Symbol,
			Price:        level.Price,
			Quantity:     quantity,
			TakerSide:    taker.Side,
			CreatedAt:    now(),
		}

		if err := sb.book.Reduce(maker.ID, quantity); err != nil {
			return result, err
		}
		taker.Remaining -= quantity

		if maker.Remaining == 0 {
			maker.Status = orderbookv1.StatusFilled
			sb.markTerminal(maker.ID, maker.Status)
		} else {
			maker.Status = orderbookv1.StatusPartiallyFilled
		}

		sb.recordTrade(trade)
		result.Fills = append(result.Fills, trade)
		result.Makers = append(result.Makers, copyOrder(maker))
	}

	sb.settleTaker(taker)
	result.Order = copyOrder(taker)
	return result, nil
}

// settleTaker assigns the taker's final status and rests it if appropriate.
// Caller holds sb.mu.
func (sb *symbolBook) settleTaker(taker *orderbookv1.Order) {
	switch {
	case taker.Remaining == 0:
		taker.Status = orderbookv1.StatusFilled
		sb.markTerminal(taker.ID, taker.Status)
	case taker.Type == orderbookv1.OrderTypeLimit:
		if taker.Remaining < taker.Quantity {
			taker.Status = orderbookv1.StatusPartiallyFilled
		} else {
			taker.Status = orderbookv1.StatusOpen
		}
		// insertion cannot fail here: price and remaining were validated
		// at admission and the id is not resting
		_ = sb.book.Insert(taker)
	case taker.Remaining < taker.Quantity:
		// market order, partially filled, remainder discarded
		taker.Status = orderbookv1.StatusPartiallyFilled
		sb.markTerminal(taker.ID, taker.Status)
	default:
		// market order, no liquidity at all
		taker.Status = orderbookv1.StatusCancelled
		sb.markTerminal(taker.ID, taker.Status)
	}
}

// finishOverflow terminates a matching pass cut short by a notional overflow.
// Prior fills stand; the taker never rests. Caller holds sb.mu.
func (sb *symbolBook) finishOverflow(taker *orderbookv1.Order, result *Result) {
	if len(result.Fills) > 0 {
		taker.Status = orderbookv1.StatusPartiallyFilled
	} else {
		taker.Status = orderbookv1.StatusCancelled
	}
	sb.markTerminal(taker.ID, taker.Status)
	result.Order = copyOrder(taker)
}

// Cancel removes a resting order. When userID is non-empty the order must
// belong to that user. Terminal orders report ErrAlreadyTerminal, unknown
// ids ErrNotFound.
func (e *Engine) Cancel(symbol, orderID, userID string) (*orderbookv1.Order, error) {
	sb, err := e.symbolBook(symbol)
	if err != nil {
		return nil, err
	}

	sb.mu.Lock()
	defer sb.mu.Unlock()

	order, resting := sb.book.Order(orderID)
	if !resting {
		if _, done := sb.terminal[orderID]; done {
			return nil, fmt.Errorf("%w: order %s", orderbookv1.ErrAlreadyTerminal, orderID)
		}
		return nil, fmt.Errorf("%w: order %s", orderbookv1.ErrNotFound, orderID)
	}

	if userID != "" && order.UserID != userID {
		return nil, fmt.Errorf("%w: order %s", orderbookv1.ErrNotOwner, orderID)
	}

	if _, err := sb.book.Remove(orderID); err != nil {
		return nil, err
	}

	order.Status = orderbookv1.StatusCancelled
	sb.markTerminal(orderID, order.Status)

	if e.logger != nil {
		e.logger.Info("order cancelled",
			logger.Field{Key: "orderID", Value: orderID},
			logger.Field{Key: "symbol", Value: symbol},
		)
	}

	return copyOrder(order), nil
}

// Order returns a copy of a resting order.
func (e *Engine) Order(symbol, orderID string) (*orderbookv1.Order, error) {
	sb, err := e.symbolBook(symbol)
	if err != nil {
		return nil, err
	}

	sb.mu.Lock()
	defer sb.mu.Unlock()

	order, resting := sb.book.Order(orderID)
	if !resting {
		return nil, fmt.Errorf("%w: order %s", orderbookv1.ErrNotFound, orderID)
	}
	return copyOrder(order), nil
}

// Depth returns the aggregated book for one symbol, up to limit levels per
// side; limit <= 0 means all.
func (e *Engine) Depth(symbol string, limit int) (orderbookv1.Depth, error) {
	sb, err := e.symbolBook(symbol)
	if err != nil {
		return orderbookv1.Depth{}, err
	}

	sb.mu.Lock()
	defer sb.mu.Unlock()
	return sb.book.Depth(limit), nil
}

// RecentTrades returns up to limit most recent trades for a symbol, newest
// first; limit <= 0 means all retained trades.
func (e *Engine) RecentTrades(symbol string, limit int) ([]*orderbookv1.Trade, error) {
	sb, err := e.symbolBook(symbol)
	if err != nil {
		return nil, err
	}

	sb.mu.Lock()
	defer sb.mu.Unlock()

	n := len(sb.trades)
	if limit <= 0 || limit > n {
		limit = n
	}
	trades := make([]*orderbookv1.Trade, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		t := *sb.trades[i]
		trades = append(trades, &t)
	}
	return trades, nil
}

func (sb *symbolBook) recordTrade(trade *orderbookv1.Trade) {
	sb.trades = append(sb.trades, trade)
	if len(sb.trades) > maxRecentTrades {
		sb.trades = sb.trades[len(sb.trades)-maxRecentTrades:]
	}
}

func (sb *symbolBook) oppositeBest(side orderbookv1.Side) *orderbookv1.Level {
	if side == orderbookv1.SideBuy {
		return sb.book.BestAsk()
	}
	return sb.book.BestBid()
}

// crosses reports whether a limit taker at takerPrice can trade against a
// resting level at levelPrice.
func crosses(side orderbookv1.Side, takerPrice, levelPrice int64) bool {
	if side == orderbookv1.SideBuy {
		return takerPrice >= levelPrice
	}
	return takerPrice <= levelPrice
}

func validateIntent(intent *orderbookv1.Intent) error {
	if intent == nil {
		return fmt.Errorf("%w: nil intent", orderbookv1.ErrInvalidOrder)
	}
	if !intent.Side.Valid() {
		return fmt.Errorf("%w: side %q", orderbookv1.ErrInvalidOrder, intent.Side)
	}
	if intent.Quantity <= 0 {
		return fmt.Errorf("%w: quantity %d", orderbookv1.ErrInvalidOrder, intent.Quantity)
	}
	switch intent.Type {
	case orderbookv1.OrderTypeLimit:
		if intent.Price <= 0 {
			return fmt.Errorf("%w: limit price %d", orderbookv1.ErrInvalidOrder, intent.Price)
		}
	case orderbookv1.OrderTypeMarket:
	default:
		return fmt.Errorf("%w: type %q", orderbookv1.ErrInvalidOrder, intent.Type)
	}
	return nil
}

func copyOrder(order *orderbookv1.Order) *orderbookv1.Order {
	c := *order
	return &c
}
