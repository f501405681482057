package position

import (
	"fmt"
	"hash/fnv"
	"sync"

	orderbookv1 "github.com/exlabs/exchange-engine/internal/domain/orderbook/v1"
	positionv1 "github.com/exlabs/exchange-engine/internal/domain/position/v1"
)

const shardCount = 32

type shard struct {
	mu        sync.Mutex
	positions map[string]*positionv1.Position // userID|symbol -> position
}

// Ledger tracks signed positions per (user, symbol). Access is serialized
// per key through striped locks, so trades touching different users proceed
// concurrently while updates to one position never interleave.
type Ledger struct {
	shards [shardCount]*shard
}

var _ positionv1.Ledger = (*Ledger)(nil)

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	l := &Ledger{}
	for i := range l.shards {
		l.shards[i] = &shard{positions: make(map[string]*positionv1.Position)}
	}
	return l
}

func key(userID, symbol string) string {
	return userID + "|" + symbol
}

func shardIndex(k string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(k))
	return int(h.Sum32() % shardCount)
}

// Apply updates both counterparties' positions for one trade. The maker leg
// takes the opposite side of the taker. Both new values are computed before
// either is committed, so an overflow leaves the ledger untouched.
func (l *Ledger) Apply(trade *orderbookv1.Trade) (*positionv1.Position, *positionv1.Position, error) {
	if trade == nil {
		return nil, nil, fmt.Errorf("trade cannot be nil")
	}

	makerKey := key(trade.MakerUserID, trade.Symbol)
	takerKey := key(trade.TakerUserID, trade.Symbol)

	unlock := l.lockPair(makerKey, takerKey)
	defer unlock()

	maker := l.get(makerKey, trade.MakerUserID, trade.Symbol)
	taker := l.get(takerKey, trade.TakerUserID, trade.Symbol)

	// self-trade: both legs land on the same position, apply them in order
	if makerKey == takerKey {
		newMaker, err := applyLeg(maker, trade.Price, signedQuantity(trade.MakerSide(), trade.Quantity))
		if err != nil {
			return nil, nil, fmt.Errorf("maker leg: %w", err)
		}
		newTaker, err := applyLeg(&newMaker, trade.Price, signedQuantity(trade.TakerSide, trade.Quantity))
		if err != nil {
			return nil, nil, fmt.Errorf("taker leg: %w", err)
		}
		*maker = newTaker
		makerCopy := newMaker
		takerCopy := newTaker
		return &makerCopy, &takerCopy, nil
	}

	newMaker, err := applyLeg(maker, trade.Price, signedQuantity(trade.MakerSide(), trade.Quantity))
	if err != nil {
		return nil, nil, fmt.Errorf("maker leg: %w", err)
	}
	newTaker, err := applyLeg(taker, trade.Price, signedQuantity(trade.TakerSide, trade.Quantity))
	if err != nil {
		return nil, nil, fmt.Errorf("taker leg: %w", err)
	}

	*maker = newMaker
	*taker = newTaker

	makerCopy := newMaker
	takerCopy := newTaker
	return &makerCopy, &takerCopy, nil
}

// Position returns a copy of one user's position in one symbol.
func (l *Ledger) Position(userID, symbol string) (*positionv1.Position, bool) {
	k := key(userID, symbol)
	s := l.shards[shardIndex(k)]

	s.mu.Lock()
	defer s.mu.Unlock()

	position, ok := s.positions[k]
	if !ok {
		return nil, false
	}
	c := *position
	return &c, true
}

// UserPositions returns copies of all of one user's positions.
func (l *Ledger) UserPositions(userID string) []*positionv1.Position {
	var result []*positionv1.Position
	for _, s := range l.shards {
		s.mu.Lock()
		for _, position := range s.positions {
			if position.UserID == userID {
				c := *position
				result = append(result, &c)
			}
		}
		s.mu.Unlock()
	}
	return result
}

// Set seeds a position, used when hydrating from storage.
func (l *Ledger) Set(position *positionv1.Position) {
	if position == nil {
		return
	}
	k := key(position.UserID, position.Symbol)
	s := l.shards[shardIndex(k)]

	s.mu.Lock()
	defer s.mu.Unlock()

	c := *position
	s.positions[k] = &c
}

// get returns the live position for a key, creating a flat one on first use.
// Caller holds the shard lock.
func (l *Ledger) get(k, userID, symbol string) *positionv1.Position {
	s := l.shards[shardIndex(k)]
	position, ok := s.positions[k]
	if !ok {
		position = &positionv1.Position{UserID: userID, Symbol: symbol}
		s.positions[k] = position
	}
	return position
}

// lockPair locks the shards of both keys in index order so concurrent
// applies cannot deadlock. Both keys may share a shard.
func (l *Ledger) lockPair(a, b string) func() {
	ia, ib := shardIndex(a), shardIndex(b)
	if ia == ib {
		l.shards[ia].mu.Lock()
		return l.shards[ia].mu.Unlock
	}
	if ia > ib {
		ia, ib = ib, ia
	}
	l.shards[ia].mu.Lock()
	l.shards[ib].mu.Lock()
	return func() {
		l.shards[ib].mu.Unlock()
		l.shards[ia].mu.Unlock()
	}
}

func signedQuantity(side orderbookv1.Side, quantity int64) int64 {
	if side == orderbookv1.SideBuy {
		return quantity
	}
	return -quantity
}

// applyLeg computes the position after one fill. Adding exposure on the same
// side reweights the average entry price with truncating integer division.
// Reducing leaves the average unchanged, going flat resets it to zero, and
// flipping through zero restarts the position at the trade price.
func applyLeg(position *positionv1.Position, price, signed int64) (positionv1.Position, error) {
	next := *position
	oldQuantity := position.Quantity
	newQuantity := oldQuantity + signed

	switch {
	case newQuantity == 0:
		next.Quantity = 0
		next.AveragePrice = 0

	case oldQuantity == 0 || sameSign(oldQuantity, signed):
		oldNotional, err := orderbookv1.Notional(position.AveragePrice, oldQuantity)
		if err != nil {
			return next, err
		}
		fillNotional, err := orderbookv1.Notional(price, signed)
		if err != nil {
			return next, err
		}
		total, err := checkedAdd(oldNotional, fillNotional)
		if err != nil {
			return next, err
		}
		next.Quantity = newQuantity
		next.AveragePrice = total / newQuantity

	case sameSign(oldQuantity, newQuantity):
		// reduced but still on the same side, entry price unchanged
		next.Quantity = newQuantity

	default:
		// flipped through zero, the surviving side entered at the trade price
		next.Quantity = newQuantity
		next.AveragePrice = price
	}

	return next, nil
}

func sameSign(a, b int64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}

func checkedAdd(a, b int64) (int64, error) {
	sum := a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		return 0, orderbookv1.ErrOverflow
	}
	return sum, nil
}
