package orderbookv1

import "time"

// Trade represents a single execution between a resting maker order and an
// incoming taker order. Price is always the maker's limit price. TakerSide is
// derived state for downstream consumers and is not persisted.
type Trade struct {
	ID           string    `json:"id"`
	MakerOrderID string    `json:"makerOrderID"`
	TakerOrderID string    `json:"takerOrderID"`
	MakerUserID  string    `json:"makerUserID"`
	TakerUserID  string    `json:"takerUserID"`
	Symbol       string    `json:"symbol"`
	Price        int64     `json:"price"`
	Quantity     int64     `json:"quantity"`
	TakerSide    Side      `json:"takerSide"`
	CreatedAt    time.Time `json:"createdAt"`
}

// MakerSide returns the side of the resting order.
func (t *Trade) MakerSide() Side {
	return t.TakerSide.Opposite()
}

// Notional returns price * quantity, reporting overflow instead of wrapping.
func Notional(price, quantity int64) (int64, error) {
	if price == 0 || quantity == 0 {
		return 0, nil
	}
	n := price * quantity
	if n/price != quantity {
		return 0, ErrOverflow
	}
	return n, nil
}
