package orderbookv1

import "fmt"

// Level represents a price level in the order book with resting orders in
// arrival order. Levels are not safe for concurrent use; the matching engine
// serializes all access to a symbol's book.
type Level struct {
	Price       int64    `json:"price"`
	Orders      []*Order `json:"orders"`
	TotalVolume int64    `json:"totalVolume"`
}

// NewLevel creates a new Level with the specified price.
func NewLevel(price int64) *Level {
	return &Level{
		Price:  price,
		Orders: make([]*Order, 0),
	}
}

// AddOrder appends an order to the level and updates the total volume.
func (l *Level) AddOrder(order *Order) error {
	if order == nil {
		return ErrNilOrder
	}
	if order.Remaining <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidQuantity, order.Remaining)
	}

	l.Orders = append(l.Orders, order)
	l.TotalVolume += order.Remaining

	return nil
}

// RemoveOrder removes an order from the level and updates the total volume.
func (l *Level) RemoveOrder(order *Order) error {
	if order == nil {
		return ErrNilOrder
	}

	for i, o := range l.Orders {
		if o == order {
			l.Orders = append(l.Orders[:i], l.Orders[i+1:]...)
			l.TotalVolume -= order.Remaining
			return nil
		}
	}

	return ErrNotFound
}

// Front returns the oldest resting order at this level, or nil when empty.
// Orders are appended in sequence order, so the head is the time-priority
// winner.
func (l *Level) Front() *Order {
	if len(l.Orders) == 0 {
		return nil
	}
	return l.Orders[0]
}

// Reduce decreases the remaining quantity of a resting order and the level's
// total volume. Fully consumed orders are removed from the level.
func (l *Level) Reduce(order *Order, quantity int64) error {
	if order == nil {
		return ErrNilOrder
	}
	if quantity <= 0 || quantity > order.Remaining {
		return fmt.Errorf("%w: reduce by %d with %d remaining", ErrInvalidQuantity, quantity, order.Remaining)
	}

	order.Remaining -= quantity
	l.TotalVolume -= quantity

	if order.Remaining == 0 {
		for i, o := range l.Orders {
			if o == order {
				l.Orders = append(l.Orders[:i], l.Orders[i+1:]...)
				break
			}
		}
	}

	return nil
}

// IsEmpty checks if the level has no orders.
func (l *Level) IsEmpty() bool {
	return len(l.Orders) == 0
}

// OrderCount returns the number of orders at this level.
func (l *Level) OrderCount() int {
	return len(l.Orders)
}

// Validate performs basic consistency checks of the level's state.
func (l *Level) Validate() error {
	if l.Price <= 0 {
		return fmt.Errorf("%w: level price %d", ErrInvalidPrice, l.Price)
	}

	var calculated int64
	for _, order := range l.Orders {
		if order == nil {
			return fmt.Errorf("nil order found in level")
		}
		if order.Remaining <= 0 {
			return fmt.Errorf("%w: resting order has remaining %d", ErrInvalidQuantity, order.Remaining)
		}
		calculated += order.Remaining
	}

	if calculated != l.TotalVolume {
		return fmt.Errorf("volume mismatch: calculated %d, stored %d", calculated, l.TotalVolume)
	}

	return nil
}
