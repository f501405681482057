package matching

import (
	"fmt"
	"math"
	"testing"
	"time"

	orderbookv1 "github.com/exlabs/exchange-engine/internal/domain/orderbook/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()

	var ids int
	return NewEngine([]string{"BTC-USD"}, nil,
		WithClock(func() time.Time { return time.Unix(1700000000, 0) }),
		WithIDGenerator(func() string {
			ids++
			return fmt.Sprintf("gen-%03d", ids)
		}),
	)
}

func limitIntent(id, userID string, side orderbookv1.Side, price, quantity int64) *orderbookv1.Intent {
	return &orderbookv1.Intent{
		OrderID:  id,
		UserID:   userID,
		Symbol:   "BTC-USD",
		Side:     side,
		Type:     orderbookv1.OrderTypeLimit,
		Price:    price,
		Quantity: quantity,
	}
}

func marketIntent(id, userID string, side orderbookv1.Side, quantity int64) *orderbookv1.Intent {
	return &orderbookv1.Intent{
		OrderID:  id,
		UserID:   userID,
		Symbol:   "BTC-USD",
		Side:     side,
		Type:     orderbookv1.OrderTypeMarket,
		Quantity: quantity,
	}
}

// Exact cross: equal price and quantity fills both sides completely.
func TestEngine_ExactCross(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Submit(limitIntent("sell1", "alice", orderbookv1.SideSell, 100, 5))
	require.NoError(t, err)

	result, err := e.Submit(limitIntent("buy1", "bob", orderbookv1.SideBuy, 100, 5))
	require.NoError(t, err)

	require.Len(t, result.Fills, 1)
	trade := result.Fills[0]
	assert.Equal(t, int64(100), trade.Price)
	assert.Equal(t, int64(5), trade.Quantity)
	assert.Equal(t, "sell1", trade.MakerOrderID)
	assert.Equal(t, "buy1", trade.TakerOrderID)
	assert.Equal(t, "alice", trade.MakerUserID)
	assert.Equal(t, "bob", trade.TakerUserID)
	assert.Equal(t, orderbookv1.SideBuy, trade.TakerSide)

	assert.Equal(t, orderbookv1.StatusFilled, result.Order.Status)
	require.Len(t, result.Makers, 1)
	assert.Equal(t, orderbookv1.StatusFilled, result.Makers[0].Status)

	depth, err := e.Depth("BTC-USD", 0)
	require.NoError(t, err)
	assert.Empty(t, depth.Bids)
	assert.Empty(t, depth.Asks)
}

// Trades execute at the maker's limit price, not the taker's.
func TestEngine_MakerPriceExecution(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Submit(limitIntent("buy1", "alice", orderbookv1.SideBuy, 101, 10))
	require.NoError(t, err)

	result, err := e.Submit(limitIntent("sell1", "bob", orderbookv1.SideSell, 100, 4))
	require.NoError(t, err)

	require.Len(t, result.Fills, 1)
	assert.Equal(t, int64(101), result.Fills[0].Price)
	assert.Equal(t, int64(4), result.Fills[0].Quantity)
	assert.Equal(t, orderbookv1.StatusFilled, result.Order.Status)

	// maker keeps resting with the remainder
	require.Len(t, result.Makers, 1)
	assert.Equal(t, orderbookv1.StatusPartiallyFilled, result.Makers[0].Status)
	assert.Equal(t, int64(6), result.Makers[0].Remaining)

	depth, err := e.Depth("BTC-USD", 0)
	require.NoError(t, err)
	require.Len(t, depth.Bids, 1)
	assert.Equal(t, orderbookv1.PriceLevel{Price: 101, Quantity: 6}, depth.Bids[0])
}

// A limit taker walks the opposite side level by level, best price first,
// then rests its remainder at its own price.
func TestEngine_MultiLevelSweep(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Submit(limitIntent("sell1", "alice", orderbookv1.SideSell, 100, 3))
	require.NoError(t, err)
	_, err = e.Submit(limitIntent("sell2", "alice", orderbookv1.SideSell, 101, 4))
	require.NoError(t, err)

	result, err := e.Submit(limitIntent("buy1", "bob", orderbookv1.SideBuy, 102, 10))
	require.NoError(t, err)

	require.Len(t, result.Fills, 2)
	assert.Equal(t, int64(100), result.Fills[0].Price)
	assert.Equal(t, int64(3), result.Fills[0].Quantity)
	assert.Equal(t, int64(101), result.Fills[1].Price)
	assert.Equal(t, int64(4), result.Fills[1].Quantity)

	assert.Equal(t, orderbookv1.StatusPartiallyFilled, result.Order.Status)
	assert.Equal(t, int64(3), result.Order.Remaining)

	depth, err := e.Depth("BTC-USD", 0)
	require.NoError(t, err)
	assert.Empty(t, depth.Asks)
	require.Len(t, depth.Bids, 1)
	assert.Equal(t, orderbookv1.PriceLevel{Price: 102, Quantity: 3}, depth.Bids[0])
}

// At the same price, the earlier resting order fills first.
func TestEngine_TimePriority(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Submit(limitIntent("sell1", "alice", orderbookv1.SideSell, 100, 5))
	require.NoError(t, err)
	_, err = e.Submit(limitIntent("sell2", "carol", orderbookv1.SideSell, 100, 5))
	require.NoError(t, err)

	result, err := e.Submit(limitIntent("buy1", "bob", orderbookv1.SideBuy, 100, 7))
	require.NoError(t, err)

	require.Len(t, result.Fills, 2)
	assert.Equal(t, "sell1", result.Fills[0].MakerOrderID)
	assert.Equal(t, int64(5), result.Fills[0].Quantity)
	assert.Equal(t, "sell2", result.Fills[1].MakerOrderID)
	assert.Equal(t, int64(2), result.Fills[1].Quantity)
}

// A limit order that does not cross rests untouched.
func TestEngine_NoCrossRests(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Submit(limitIntent("sell1", "alice", orderbookv1.SideSell, 105, 5))
	require.NoError(t, err)

	result, err := e.Submit(limitIntent("buy1", "bob", orderbookv1.SideBuy, 100, 5))
	require.NoError(t, err)

	assert.Empty(t, result.Fills)
	assert.Equal(t, orderbookv1.StatusOpen, result.Order.Status)
	assert.Equal(t, int64(5), result.Order.Remaining)

	depth, err := e.Depth("BTC-USD", 0)
	require.NoError(t, err)
	require.Len(t, depth.Bids, 1)
	require.Len(t, depth.Asks, 1)
}

// Market orders consume available liquidity and discard any remainder.
func TestEngine_MarketOrder(t *testing.T) {
	t.Run("fully filled", func(t *testing.T) {
		e := newTestEngine(t)
		_, err := e.Submit(limitIntent("sell1", "alice", orderbookv1.SideSell, 100, 10))
		require.NoError(t, err)

		result, err := e.Submit(marketIntent("buy1", "bob", orderbookv1.SideBuy, 4))
		require.NoError(t, err)
		require.Len(t, result.Fills, 1)
		assert.Equal(t, orderbookv1.StatusFilled, result.Order.Status)
	})

	t.Run("partial fill discards remainder", func(t *testing.T) {
		e := newTestEngine(t)
		_, err := e.Submit(limitIntent("sell1", "alice", orderbookv1.SideSell, 100, 4))
		require.NoError(t, err)

		result, err := e.Submit(marketIntent("buy1", "bob", orderbookv1.SideBuy, 10))
		require.NoError(t, err)
		require.Len(t, result.Fills, 1)
		assert.Equal(t, orderbookv1.StatusPartiallyFilled, result.Order.Status)
		assert.Equal(t, int64(6), result.Order.Remaining)

		// the remainder never rests
		depth, err := e.Depth("BTC-USD", 0)
		require.NoError(t, err)
		assert.Empty(t, depth.Bids)
		assert.Empty(t, depth.Asks)

		// and the order is terminal: cancelling it reports that
		_, err = e.Cancel("BTC-USD", "buy1", "bob")
		assert.ErrorIs(t, err, orderbookv1.ErrAlreadyTerminal)
	})

	t.Run("no liquidity cancels", func(t *testing.T) {
		e := newTestEngine(t)

		result, err := e.Submit(marketIntent("buy1", "bob", orderbookv1.SideBuy, 10))
		require.NoError(t, err)
		assert.Empty(t, result.Fills)
		assert.Equal(t, orderbookv1.StatusCancelled, result.Order.Status)
	})
}

// Cancel semantics: resting orders cancel once, everything else errors.
func TestEngine_Cancel(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Submit(limitIntent("sell1", "alice", orderbookv1.SideSell, 100, 5))
	require.NoError(t, err)

	t.Run("wrong owner", func(t *testing.T) {
		_, err := e.Cancel("BTC-USD", "sell1", "mallory")
		assert.ErrorIs(t, err, orderbookv1.ErrNotOwner)
	})

	t.Run("resting order", func(t *testing.T) {
		order, err := e.Cancel("BTC-USD", "sell1", "alice")
		require.NoError(t, err)
		assert.Equal(t, orderbookv1.StatusCancelled, order.Status)
		assert.Equal(t, int64(5), order.Remaining)
	})

	t.Run("already terminal", func(t *testing.T) {
		_, err := e.Cancel("BTC-USD", "sell1", "alice")
		assert.ErrorIs(t, err, orderbookv1.ErrAlreadyTerminal)
	})

	t.Run("unknown order", func(t *testing.T) {
		_, err := e.Cancel("BTC-USD", "nope", "alice")
		assert.ErrorIs(t, err, orderbookv1.ErrNotFound)
	})

	t.Run("unknown symbol", func(t *testing.T) {
		_, err := e.Cancel("ETH-USD", "sell1", "alice")
		assert.ErrorIs(t, err, orderbookv1.ErrUnknownSymbol)
	})
}

// Admission validation rejects malformed intents before touching the book.
func TestEngine_Validation(t *testing.T) {
	e := newTestEngine(t)

	cases := []struct {
		name   string
		intent *orderbookv1.Intent
		want   error
	}{
		{"nil intent", nil, orderbookv1.ErrInvalidOrder},
		{"zero quantity", limitIntent("o1", "u", orderbookv1.SideBuy, 100, 0), orderbookv1.ErrInvalidOrder},
		{"negative quantity", limitIntent("o2", "u", orderbookv1.SideBuy, 100, -1), orderbookv1.ErrInvalidOrder},
		{"zero limit price", limitIntent("o3", "u", orderbookv1.SideBuy, 0, 1), orderbookv1.ErrInvalidOrder},
		{"bad side", &orderbookv1.Intent{OrderID: "o4", Symbol: "BTC-USD", Side: "hold", Type: orderbookv1.OrderTypeLimit, Price: 1, Quantity: 1}, orderbookv1.ErrInvalidOrder},
		{"bad type", &orderbookv1.Intent{OrderID: "o5", Symbol: "BTC-USD", Side: orderbookv1.SideBuy, Type: "stop", Price: 1, Quantity: 1}, orderbookv1.ErrInvalidOrder},
		{"unknown symbol", &orderbookv1.Intent{OrderID: "o6", Symbol: "ETH-USD", Side: orderbookv1.SideBuy, Type: orderbookv1.OrderTypeLimit, Price: 1, Quantity: 1}, orderbookv1.ErrUnknownSymbol},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.Submit(tc.intent)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	t.Run("duplicate id", func(t *testing.T) {
		_, err := e.Submit(limitIntent("dup", "u", orderbookv1.SideBuy, 100, 1))
		require.NoError(t, err)
		_, err = e.Submit(limitIntent("dup", "u", orderbookv1.SideBuy, 100, 1))
		assert.ErrorIs(t, err, orderbookv1.ErrInvalidOrder)
	})
}

// A fill whose notional cannot be represented aborts the pass. With no prior
// fills nothing is mutated; with prior fills those stand.
func TestEngine_NotionalOverflow(t *testing.T) {
	hugePrice := int64(math.MaxInt64/2 + 1)

	t.Run("first fill overflows", func(t *testing.T) {
		e := newTestEngine(t)
		_, err := e.Submit(limitIntent("sell1", "alice", orderbookv1.SideSell, hugePrice, 3))
		require.NoError(t, err)

		result, err := e.Submit(limitIntent("buy1", "bob", orderbookv1.SideBuy, hugePrice, 3))
		assert.ErrorIs(t, err, orderbookv1.ErrOverflow)
		require.NotNil(t, result)
		assert.Empty(t, result.Fills)
		assert.Equal(t, orderbookv1.StatusCancelled, result.Order.Status)

		// the resting maker is untouched
		maker, err := e.Order("BTC-USD", "sell1")
		require.NoError(t, err)
		assert.Equal(t, int64(3), maker.Remaining)
	})

	t.Run("prior fills stand", func(t *testing.T) {
		e := newTestEngine(t)
		_, err := e.Submit(limitIntent("sell1", "alice", orderbookv1.SideSell, 100, 2))
		require.NoError(t, err)
		_, err = e.Submit(limitIntent("sell2", "alice", orderbookv1.SideSell, hugePrice, 3))
		require.NoError(t, err)

		result, err := e.Submit(limitIntent("buy1", "bob", orderbookv1.SideBuy, hugePrice, 5))
		assert.ErrorIs(t, err, orderbookv1.ErrOverflow)
		require.NotNil(t, result)
		require.Len(t, result.Fills, 1)
		assert.Equal(t, int64(100), result.Fills[0].Price)
		assert.Equal(t, orderbookv1.StatusPartiallyFilled, result.Order.Status)
	})
}

// Quantity is conserved: executed plus remaining equals submitted.
func TestEngine_QuantityConservation(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Submit(limitIntent("sell1", "alice", orderbookv1.SideSell, 100, 3))
	require.NoError(t, err)
	_, err = e.Submit(limitIntent("sell2", "alice", orderbookv1.SideSell, 101, 4))
	require.NoError(t, err)

	result, err := e.Submit(limitIntent("buy1", "bob", orderbookv1.SideBuy, 101, 9))
	require.NoError(t, err)

	var executed int64
	for _, fill := range result.Fills {
		executed += fill.Quantity
	}
	assert.Equal(t, result.Order.Quantity, executed+result.Order.Remaining)
}

// RecentTrades returns newest first and respects the limit.
func TestEngine_RecentTrades(t *testing.T) {
	e := newTestEngine(t)

	for i := 0; i < 3; i++ {
		_, err := e.Submit(limitIntent(fmt.Sprintf("sell%d", i), "alice", orderbookv1.SideSell, int64(100+i), 1))
		require.NoError(t, err)
		_, err = e.Submit(limitIntent(fmt.Sprintf("buy%d", i), "bob", orderbookv1.SideBuy, int64(100+i), 1))
		require.NoError(t, err)
	}

	trades, err := e.RecentTrades("BTC-USD", 0)
	require.NoError(t, err)
	require.Len(t, trades, 3)
	assert.Equal(t, int64(102), trades[0].Price)
	assert.Equal(t, int64(100), trades[2].Price)

	limited, err := e.RecentTrades("BTC-USD", 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, int64(102), limited[0].Price)
}

// The terminal record is bounded: beyond the cap the oldest entries are
// evicted and their ids report ErrNotFound again.
func TestSymbolBook_TerminalEviction(t *testing.T) {
	e := newTestEngine(t)
	sb, err := e.symbolBook("BTC-USD")
	require.NoError(t, err)

	for i := 0; i <= maxTerminalOrders; i++ {
		sb.markTerminal(fmt.Sprintf("done-%d", i), orderbookv1.StatusFilled)
	}

	assert.Len(t, sb.terminal, maxTerminalOrders)
	assert.Len(t, sb.terminalIDs, maxTerminalOrders)

	// the first entry aged out, the latest is still tracked
	_, evicted := sb.terminal["done-0"]
	assert.False(t, evicted)
	_, tracked := sb.terminal[fmt.Sprintf("done-%d", maxTerminalOrders)]
	assert.True(t, tracked)

	// re-marking an already tracked id does not grow the eviction queue
	sb.markTerminal(fmt.Sprintf("done-%d", maxTerminalOrders), orderbookv1.StatusCancelled)
	assert.Len(t, sb.terminalIDs, maxTerminalOrders)
}

// Snapshot and restore round-trip the resting state of the book.
func TestEngine_SnapshotRestore(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Submit(limitIntent("sell1", "alice", orderbookv1.SideSell, 105, 5))
	require.NoError(t, err)
	_, err = e.Submit(limitIntent("buy1", "bob", orderbookv1.SideBuy, 100, 7))
	require.NoError(t, err)
	// leave buy1 partially filled
	_, err = e.Submit(marketIntent("sell2", "carol", orderbookv1.SideSell, 2))
	require.NoError(t, err)

	snapshot := e.Snapshot()
	require.Len(t, snapshot.Books, 1)
	require.Len(t, snapshot.Books[0].Orders, 2)

	restored := newTestEngine(t)
	require.NoError(t, restored.Restore(snapshot))

	depth, err := restored.Depth("BTC-USD", 0)
	require.NoError(t, err)
	require.Len(t, depth.Bids, 1)
	assert.Equal(t, orderbookv1.PriceLevel{Price: 100, Quantity: 5}, depth.Bids[0])
	require.Len(t, depth.Asks, 1)
	assert.Equal(t, orderbookv1.PriceLevel{Price: 105, Quantity: 5}, depth.Asks[0])

	// sequence continues past the restored orders
	result, err := restored.Submit(limitIntent("buy2", "bob", orderbookv1.SideBuy, 99, 1))
	require.NoError(t, err)
	assert.Greater(t, result.Order.Sequence, snapshot.Books[0].Sequence-1)
}
