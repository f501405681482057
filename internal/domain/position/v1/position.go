package positionv1

import orderbookv1 "github.com/exlabs/exchange-engine/internal/domain/orderbook/v1"

// Position is one user's signed exposure in one symbol. Quantity is positive
// for long, negative for short. AveragePrice is the volume-weighted entry
// price of the current exposure and zero when flat.
type Position struct {
	UserID       string `json:"userID"`
	Symbol       string `json:"symbol"`
	Quantity     int64  `json:"quantity"`
	AveragePrice int64  `json:"averagePrice"`
}

// IsFlat reports whether the position has no exposure.
func (p *Position) IsFlat() bool {
	return p.Quantity == 0
}

// UnrealizedPnL returns the mark-to-market profit of the position at the
// given price. Overflow is reported instead of wrapping.
func (p *Position) UnrealizedPnL(markPrice int64) (int64, error) {
	diff := markPrice - p.AveragePrice
	return orderbookv1.Notional(diff, p.Quantity)
}

// Ledger applies executed trades to both counterparties' positions.
type Ledger interface {
	// Apply updates the maker's and taker's positions for one trade and
	// returns copies of both updated positions, maker first.
	Apply(trade *orderbookv1.Trade) (maker, taker *Position, err error)
	// Position returns a copy of one user's position in one symbol.
	Position(userID, symbol string) (*Position, bool)
	// UserPositions returns copies of all of one user's positions.
	UserPositions(userID string) []*Position
	// Set seeds a position, used when hydrating from storage.
	Set(position *Position)
}
