package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	orderreaderv1 "github.com/exlabs/exchange-engine/internal/domain/order-reader/v1"
	orderbookv1 "github.com/exlabs/exchange-engine/internal/domain/orderbook/v1"
	positionv1 "github.com/exlabs/exchange-engine/internal/domain/position/v1"
	snapshotv1 "github.com/exlabs/exchange-engine/internal/domain/snapshot/v1"
	storagev1 "github.com/exlabs/exchange-engine/internal/domain/storage/v1"
	tradepublisherv1 "github.com/exlabs/exchange-engine/internal/domain/trade-publisher/v1"
	"github.com/exlabs/exchange-engine/internal/usecase/matching"
	"github.com/exlabs/exchange-engine/pkg/logger"
)

// Broadcaster pushes engine events to connected gateway clients. A nil
// broadcaster is allowed; events are then dropped.
type Broadcaster interface {
	BroadcastTrade(event *tradepublisherv1.TradeEvent)
	BroadcastDepth(depth orderbookv1.Depth)
}

// Engine wires the matcher, ledger, storage, intake stream and trade feed
// into one service. Matching happens inside the matcher's symbol lock;
// persistence and publishing happen afterwards, outside the critical
// section, and are at-least-once.
type Engine struct {
	matcher        *matching.Engine
	ledger         positionv1.Ledger
	orderReader    orderreaderv1.OrderReader
	snapshotStore  snapshotv1.Store
	tradePublisher tradepublisherv1.TradePublisher
	store          storagev1.Store
	broadcaster    Broadcaster
	logger         logger.Interface
	options        *Options

	mu                 sync.RWMutex
	orderOffset        int64
	lastSnapshotOffset int64
	totalMatches       int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewEngine creates the service. store and tradePublisher may be nil, in
// which case the engine runs purely in memory; snapshotStore may be nil to
// disable snapshots.
func NewEngine(
	matcher *matching.Engine,
	ledger positionv1.Ledger,
	orderReader orderreaderv1.OrderReader,
	snapshotStore snapshotv1.Store,
	tradePublisher tradepublisherv1.TradePublisher,
	store storagev1.Store,
	log logger.Interface,
	options *Options,
) *Engine {
	if options == nil {
		options = DefaultEngineOptions()
	}
	return &Engine{
		matcher:        matcher,
		ledger:         ledger,
		orderReader:    orderReader,
		snapshotStore:  snapshotStore,
		tradePublisher: tradePublisher,
		store:          store,
		logger:         log,
		options:        options,
	}
}

// SetBroadcaster attaches the gateway hub. Call before Start.
func (e *Engine) SetBroadcaster(b Broadcaster) {
	e.broadcaster = b
}

// Start hydrates the books and launches the intake and snapshot workers.
func (e *Engine) Start(ctx context.Context) error {
	e.ctx, e.cancel = context.WithCancel(ctx)

	if err := e.hydrate(e.ctx); err != nil {
		return fmt.Errorf("hydrate: %w", err)
	}

	if e.orderReader != nil {
		e.wg.Add(1)
		go e.runOrderProcessor()
	}
	if e.snapshotStore != nil {
		e.wg.Add(1)
		go e.runSnapshotManager()
	}

	e.logger.Info("engine started",
		logger.Field{Key: "symbols", Value: e.matcher.Symbols()},
		logger.Field{Key: "orderOffset", Value: e.GetOrderOffset()},
	)
	return nil
}

// Stop shuts the workers down, takes a final snapshot and closes the intake
// reader. It returns once everything stopped or ctx expired.
func (e *Engine) Stop(ctx context.Context) error {
	if e.cancel != nil {
		e.cancel()
	}
	if e.orderReader != nil {
		_ = e.orderReader.Close()
	}

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("engine stop: %w", ctx.Err())
	}

	if e.snapshotStore != nil {
		e.createAndStoreSnapshot(ctx)
	}
	if e.tradePublisher != nil {
		_ = e.tradePublisher.Close()
	}

	e.logger.Info("engine stopped",
		logger.Field{Key: "totalMatches", Value: e.GetTotalMatches()},
	)
	return nil
}

// hydrate restores resting state: a snapshot when one exists, otherwise the
// open orders and positions recorded in storage.
func (e *Engine) hydrate(ctx context.Context) error {
	if e.snapshotStore != nil {
		snapshot, err := e.snapshotStore.LoadStore(ctx)
		if err != nil {
			return err
		}
		if snapshot != nil {
			if err := e.matcher.Restore(snapshot); err != nil {
				return err
			}
			e.setOrderOffset(snapshot.OrderOffset)
			if e.orderReader != nil {
				if err := e.orderReader.SetOffset(snapshot.OrderOffset + 1); err != nil {
					return err
				}
			}
			e.logger.Info("books restored from snapshot",
				logger.Field{Key: "orderOffset", Value: snapshot.OrderOffset},
			)
			return nil
		}
	}

	if e.store == nil {
		return nil
	}

	snapshot := &snapshotv1.Snapshot{}
	for _, symbol := range e.matcher.Symbols() {
		orders, err := e.store.ListOpenOrders(ctx, symbol)
		if err != nil {
			return err
		}
		book := snapshotv1.BookSnapshot{Symbol: symbol}
		for i, order := range orders {
			book.Orders = append(book.Orders, snapshotv1.BookOrder{
				OrderID:   order.ID,
				UserID:    order.UserID,
				Side:      string(order.Side),
				Price:     order.Price,
				Quantity:  order.Quantity,
				Remaining: order.Remaining,
				Sequence:  int64(i + 1),
				CreatedAt: order.CreatedAt.UnixNano(),
			})
		}
		book.Sequence = int64(len(orders))
		snapshot.Books = append(snapshot.Books, book)
	}
	if err := e.matcher.Restore(snapshot); err != nil {
		return err
	}

	positions, err := e.store.ListPositions(ctx)
	if err != nil {
		return err
	}
	for _, position := range positions {
		e.ledger.Set(position)
	}

	e.logger.Info("books rebuilt from storage",
		logger.Field{Key: "positions", Value: len(positions)},
	)
	return nil
}

// runOrderProcessor consumes intents from the intake stream until the engine
// stops. Bad messages are logged and skipped; the stream keeps moving.
func (e *Engine) runOrderProcessor() {
	defer e.wg.Done()

	for {
		select {
		case <-e.ctx.Done():
			return
		default:
		}

		msg, intent, err := e.orderReader.ReadMessage(e.ctx)
		if err != nil {
			if e.ctx.Err() != nil {
				return
			}
			continue
		}

		e.processIntent(e.ctx, intent)
		e.setOrderOffset(msg.Offset)
	}
}

// processIntent routes one intake message.
func (e *Engine) processIntent(ctx context.Context, intent *orderbookv1.Intent) {
	if intent.Type == orderbookv1.OrderTypeCancel {
		if _, err := e.CancelOrder(ctx, intent.Symbol, intent.OrderID, intent.UserID); err != nil {
			e.logger.Warn("cancel rejected",
				logger.Field{Key: "orderID", Value: intent.OrderID},
				logger.Field{Key: "reason", Value: err.Error()},
			)
		}
		return
	}

	if _, err := e.PlaceOrder(ctx, intent); err != nil {
		e.logger.Warn("order rejected",
			logger.Field{Key: "orderID", Value: intent.OrderID},
			logger.Field{Key: "reason", Value: err.Error()},
		)
	}
}

// PlaceOrder admits one order through the matcher and persists the outcome.
// An overflow abort still persists the fills that stood; the error is
// returned alongside the result.
func (e *Engine) PlaceOrder(ctx context.Context, intent *orderbookv1.Intent) (*matching.Result, error) {
	result, err := e.matcher.Submit(intent)
	if result == nil {
		return nil, err
	}

	e.persistResult(ctx, result)
	return result, err
}

// persistResult records one admission outcome: taker order, maker status
// transitions, trades, position updates, feed events.
func (e *Engine) persistResult(ctx context.Context, result *matching.Result) {
	order := result.Order

	// a market order that never traded leaves no persistent trace
	persisted := !(order.Type == orderbookv1.OrderTypeMarket && len(result.Fills) == 0)

	if e.store != nil && persisted {
		if err := e.store.InsertOrder(ctx, order); err != nil {
			e.logger.ErrorContext(ctx, err, logger.Field{Key: "orderID", Value: order.ID})
		}
		for _, maker := range result.Makers {
			if err := e.store.UpdateOrderStatus(ctx, maker.ID, maker.Status); err != nil {
				e.logger.ErrorContext(ctx, err, logger.Field{Key: "orderID", Value: maker.ID})
			}
		}
	}

	for _, fill := range result.Fills {
		if e.store != nil {
			if err := e.store.InsertTrade(ctx, fill); err != nil {
				e.logger.ErrorContext(ctx, err, logger.Field{Key: "tradeID", Value: fill.ID})
			}
		}

		maker, taker, err := e.ledger.Apply(fill)
		if err != nil {
			e.logger.ErrorContext(ctx, err, logger.Field{Key: "tradeID", Value: fill.ID})
		} else if e.store != nil {
			if err := e.store.UpsertPosition(ctx, maker); err != nil {
				e.logger.ErrorContext(ctx, err, logger.Field{Key: "userID", Value: maker.UserID})
			}
			if err := e.store.UpsertPosition(ctx, taker); err != nil {
				e.logger.ErrorContext(ctx, err, logger.Field{Key: "userID", Value: taker.UserID})
			}
		}

		event := tradepublisherv1.FromTrade(fill)
		if e.tradePublisher != nil {
			if err := e.tradePublisher.PublishTrade(ctx, event); err != nil {
				e.logger.ErrorContext(ctx, err, logger.Field{Key: "tradeID", Value: fill.ID})
			}
		}
		if e.broadcaster != nil {
			e.broadcaster.BroadcastTrade(event)
		}

		e.incrementMatches()
	}

	if len(result.Fills) > 0 || !order.Status.Terminal() {
		e.broadcastDepth(order.Symbol)
	}
}

// CancelOrder removes a resting order and records the transition.
func (e *Engine) CancelOrder(ctx context.Context, symbol, orderID, userID string) (*orderbookv1.Order, error) {
	order, err := e.matcher.Cancel(symbol, orderID, userID)
	if err != nil {
		return nil, err
	}

	if e.store != nil {
		if err := e.store.UpdateOrderStatus(ctx, order.ID, order.Status); err != nil && !errors.Is(err, storagev1.ErrNotFound) {
			e.logger.ErrorContext(ctx, err, logger.Field{Key: "orderID", Value: order.ID})
		}
	}

	e.broadcastDepth(symbol)
	return order, nil
}

// Depth returns the aggregated book for one symbol.
func (e *Engine) Depth(symbol string, limit int) (orderbookv1.Depth, error) {
	return e.matcher.Depth(symbol, limit)
}

// GetOrder returns an order, preferring the live book over storage.
func (e *Engine) GetOrder(ctx context.Context, symbol, orderID string) (*orderbookv1.Order, error) {
	order, err := e.matcher.Order(symbol, orderID)
	if err == nil {
		return order, nil
	}
	if e.store != nil {
		stored, serr := e.store.GetOrder(ctx, orderID)
		if serr == nil {
			return stored, nil
		}
	}
	return nil, err
}

// RecentTrades returns the most recent trades for one symbol, newest first.
func (e *Engine) RecentTrades(symbol string, limit int) ([]*orderbookv1.Trade, error) {
	return e.matcher.RecentTrades(symbol, limit)
}

// UserTrades returns the most recent trades a user took part in. Without
// storage it falls back to the in-memory trade history.
func (e *Engine) UserTrades(ctx context.Context, userID string, limit int) ([]*orderbookv1.Trade, error) {
	if e.store != nil {
		return e.store.ListUserTrades(ctx, userID, limit)
	}

	var trades []*orderbookv1.Trade
	for _, symbol := range e.matcher.Symbols() {
		recent, err := e.matcher.RecentTrades(symbol, 0)
		if err != nil {
			continue
		}
		for _, trade := range recent {
			if trade.MakerUserID == userID || trade.TakerUserID == userID {
				trades = append(trades, trade)
			}
		}
	}
	if limit > 0 && len(trades) > limit {
		trades = trades[:limit]
	}
	return trades, nil
}

// Positions returns one user's positions.
func (e *Engine) Positions(userID string) []*positionv1.Position {
	return e.ledger.UserPositions(userID)
}

// Symbols returns the symbols this engine trades.
func (e *Engine) Symbols() []string {
	return e.matcher.Symbols()
}

func (e *Engine) broadcastDepth(symbol string) {
	if e.broadcaster == nil {
		return
	}
	depth, err := e.matcher.Depth(symbol, e.options.DepthLevels)
	if err != nil {
		return
	}
	e.broadcaster.BroadcastDepth(depth)
}

// runSnapshotManager periodically persists the engine state.
func (e *Engine) runSnapshotManager() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.options.SnapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			// skip when too little happened since the last snapshot
			if e.GetOrderOffset()-e.GetLastSnapshotOffset() < e.options.SnapshotOffsetDelta {
				continue
			}
			e.createAndStoreSnapshot(e.ctx)
		}
	}
}

func (e *Engine) createAndStoreSnapshot(ctx context.Context) {
	snapshot := e.matcher.Snapshot()
	snapshot.OrderOffset = e.GetOrderOffset()

	if err := e.snapshotStore.Store(ctx, snapshot); err != nil {
		e.logger.ErrorContext(ctx, err, logger.Field{Key: "action", Value: "store_snapshot"})
		return
	}
	e.setLastSnapshotOffset(snapshot.OrderOffset)
}

// GetOrderOffset returns the last applied intake offset.
func (e *Engine) GetOrderOffset() int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.orderOffset
}

func (e *Engine) setOrderOffset(offset int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.orderOffset = offset
}

// GetLastSnapshotOffset returns the intake offset of the last stored snapshot.
func (e *Engine) GetLastSnapshotOffset() int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastSnapshotOffset
}

func (e *Engine) setLastSnapshotOffset(offset int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastSnapshotOffset = offset
}

// GetTotalMatches returns the number of trades executed since start.
func (e *Engine) GetTotalMatches() int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.totalMatches
}

func (e *Engine) incrementMatches() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.totalMatches++
}
