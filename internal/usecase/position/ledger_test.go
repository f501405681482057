package position

import (
	"math"
	"sync"
	"testing"
	"time"

	orderbookv1 "github.com/exlabs/exchange-engine/internal/domain/orderbook/v1"
	positionv1 "github.com/exlabs/exchange-engine/internal/domain/position/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTrade(makerUser, takerUser string, takerSide orderbookv1.Side, price, quantity int64) *orderbookv1.Trade {
	return &orderbookv1.Trade{
		ID:           "trade",
		MakerOrderID: "maker-order",
		TakerOrderID: "taker-order",
		MakerUserID:  makerUser,
		TakerUserID:  takerUser,
		Symbol:       "BTC-USD",
		Price:        price,
		Quantity:     quantity,
		TakerSide:    takerSide,
		CreatedAt:    time.Now(),
	}
}

// Both counterparties get opposite exposure from one trade.
func TestLedger_Apply_BothLegs(t *testing.T) {
	l := NewLedger()

	maker, taker, err := l.Apply(testTrade("alice", "bob", orderbookv1.SideBuy, 100, 10))
	require.NoError(t, err)

	// taker bought, maker sold
	assert.Equal(t, int64(10), taker.Quantity)
	assert.Equal(t, int64(100), taker.AveragePrice)
	assert.Equal(t, int64(-10), maker.Quantity)
	assert.Equal(t, int64(100), maker.AveragePrice)
}

// Adding on the same side reweights the average entry price.
func TestLedger_Apply_WeightedAverage(t *testing.T) {
	l := NewLedger()

	_, _, err := l.Apply(testTrade("alice", "bob", orderbookv1.SideBuy, 100, 10))
	require.NoError(t, err)
	_, taker, err := l.Apply(testTrade("alice", "bob", orderbookv1.SideBuy, 110, 10))
	require.NoError(t, err)

	assert.Equal(t, int64(20), taker.Quantity)
	assert.Equal(t, int64(105), taker.AveragePrice)
}

// The weighted average truncates toward zero.
func TestLedger_Apply_AverageTruncates(t *testing.T) {
	l := NewLedger()

	_, _, err := l.Apply(testTrade("alice", "bob", orderbookv1.SideBuy, 100, 1))
	require.NoError(t, err)
	_, taker, err := l.Apply(testTrade("alice", "bob", orderbookv1.SideBuy, 101, 2))
	require.NoError(t, err)

	// (100*1 + 101*2) / 3 = 302/3 = 100 truncated
	assert.Equal(t, int64(3), taker.Quantity)
	assert.Equal(t, int64(100), taker.AveragePrice)
}

// Reducing keeps the entry price; going flat resets it.
func TestLedger_Apply_ReduceAndFlat(t *testing.T) {
	l := NewLedger()

	_, _, err := l.Apply(testTrade("alice", "bob", orderbookv1.SideBuy, 100, 10))
	require.NoError(t, err)

	// bob sells 4 at a better price, entry price stays
	_, taker, err := l.Apply(testTrade("alice", "bob", orderbookv1.SideSell, 110, 4))
	require.NoError(t, err)
	assert.Equal(t, int64(6), taker.Quantity)
	assert.Equal(t, int64(100), taker.AveragePrice)

	// closing the rest leaves a flat position with zero average
	_, taker, err = l.Apply(testTrade("alice", "bob", orderbookv1.SideSell, 110, 6))
	require.NoError(t, err)
	assert.True(t, taker.IsFlat())
	assert.Equal(t, int64(0), taker.AveragePrice)

	// alice's side nets out too
	maker, ok := l.Position("alice", "BTC-USD")
	require.True(t, ok)
	assert.True(t, maker.IsFlat())
	assert.Equal(t, int64(0), maker.AveragePrice)
}

// Flipping through zero restarts the surviving side at the trade price.
func TestLedger_Apply_Flip(t *testing.T) {
	l := NewLedger()

	_, _, err := l.Apply(testTrade("alice", "bob", orderbookv1.SideBuy, 100, 10))
	require.NoError(t, err)
	_, taker, err := l.Apply(testTrade("alice", "bob", orderbookv1.SideSell, 120, 15))
	require.NoError(t, err)

	assert.Equal(t, int64(-5), taker.Quantity)
	assert.Equal(t, int64(120), taker.AveragePrice)
}

// Short entries average the same way as longs.
func TestLedger_Apply_ShortAverage(t *testing.T) {
	l := NewLedger()

	_, _, err := l.Apply(testTrade("alice", "bob", orderbookv1.SideSell, 100, 10))
	require.NoError(t, err)
	_, taker, err := l.Apply(testTrade("alice", "bob", orderbookv1.SideSell, 90, 10))
	require.NoError(t, err)

	assert.Equal(t, int64(-20), taker.Quantity)
	assert.Equal(t, int64(95), taker.AveragePrice)
}

// A self-trade nets to no change in exposure.
func TestLedger_Apply_SelfTrade(t *testing.T) {
	l := NewLedger()

	_, _, err := l.Apply(testTrade("other", "alice", orderbookv1.SideBuy, 100, 10))
	require.NoError(t, err)

	_, taker, err := l.Apply(testTrade("alice", "alice", orderbookv1.SideBuy, 100, 4))
	require.NoError(t, err)
	assert.Equal(t, int64(10), taker.Quantity)
	assert.Equal(t, int64(100), taker.AveragePrice)
}

// An overflowing leg leaves the ledger untouched.
func TestLedger_Apply_Overflow(t *testing.T) {
	l := NewLedger()

	huge := int64(math.MaxInt64/2 + 1)
	_, _, err := l.Apply(testTrade("alice", "bob", orderbookv1.SideBuy, huge, 1))
	require.NoError(t, err)

	_, _, err = l.Apply(testTrade("alice", "bob", orderbookv1.SideBuy, huge, 2))
	assert.ErrorIs(t, err, orderbookv1.ErrOverflow)

	taker, ok := l.Position("bob", "BTC-USD")
	require.True(t, ok)
	assert.Equal(t, int64(1), taker.Quantity)
	assert.Equal(t, huge, taker.AveragePrice)
}

func TestLedger_UserPositions(t *testing.T) {
	l := NewLedger()

	l.Set(&positionv1.Position{UserID: "alice", Symbol: "BTC-USD", Quantity: 5, AveragePrice: 100})
	l.Set(&positionv1.Position{UserID: "alice", Symbol: "ETH-USD", Quantity: -3, AveragePrice: 50})
	l.Set(&positionv1.Position{UserID: "bob", Symbol: "BTC-USD", Quantity: 1, AveragePrice: 99})

	positions := l.UserPositions("alice")
	assert.Len(t, positions, 2)

	_, ok := l.Position("carol", "BTC-USD")
	assert.False(t, ok)
}

// Concurrent applies across disjoint users keep per-position totals exact.
func TestLedger_ConcurrentApply(t *testing.T) {
	l := NewLedger()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_, _, err := l.Apply(testTrade("maker", "taker", orderbookv1.SideBuy, 100, 1))
				assert.NoError(t, err)
			}
		}(i)
	}
	wg.Wait()

	taker, ok := l.Position("taker", "BTC-USD")
	require.True(t, ok)
	assert.Equal(t, int64(800), taker.Quantity)

	maker, ok := l.Position("maker", "BTC-USD")
	require.True(t, ok)
	assert.Equal(t, int64(-800), maker.Quantity)
}

func TestPosition_UnrealizedPnL(t *testing.T) {
	p := &positionv1.Position{UserID: "u", Symbol: "BTC-USD", Quantity: 10, AveragePrice: 100}

	pnl, err := p.UnrealizedPnL(110)
	require.NoError(t, err)
	assert.Equal(t, int64(100), pnl)

	short := &positionv1.Position{UserID: "u", Symbol: "BTC-USD", Quantity: -10, AveragePrice: 100}
	pnl, err = short.UnrealizedPnL(110)
	require.NoError(t, err)
	assert.Equal(t, int64(-100), pnl)
}
