package orderbook

import (
	"fmt"
	"sort"

	orderbookv1 "github.com/exlabs/exchange-engine/internal/domain/orderbook/v1"
)

// Book maintains resting orders for one symbol in price-time priority.
// It is not safe for concurrent use; the matching engine holds the symbol
// lock around every call.
type Book struct {
	symbol    string
	askLevels map[int64]*orderbookv1.Level // price -> level
	bidLevels map[int64]*orderbookv1.Level // price -> level
	orders    map[string]*orderbookv1.Order
}

var _ orderbookv1.Book = (*Book)(nil)

// NewBook creates an empty book for the given symbol.
func NewBook(symbol string) *Book {
	return &Book{
		symbol:    symbol,
		askLevels: make(map[int64]*orderbookv1.Level),
		bidLevels: make(map[int64]*orderbookv1.Level),
		orders:    make(map[string]*orderbookv1.Order),
	}
}

// Insert rests an order on its side of the book.
func (b *Book) Insert(order *orderbookv1.Order) error {
	if order == nil {
		return orderbookv1.ErrNilOrder
	}
	if order.Price <= 0 {
		return fmt.Errorf("%w: got %d", orderbookv1.ErrInvalidPrice, order.Price)
	}
	if order.Remaining <= 0 {
		return fmt.Errorf("%w: got %d", orderbookv1.ErrInvalidQuantity, order.Remaining)
	}
	if order.ID == "" {
		return fmt.Errorf("%w: empty order id", orderbookv1.ErrInvalidOrder)
	}
	if _, exists := b.orders[order.ID]; exists {
		return fmt.Errorf("%w: order %s already resting", orderbookv1.ErrInvalidOrder, order.ID)
	}

	levels := b.levelsFor(order.Side)
	level, exists := levels[order.Price]
	if !exists {
		level = orderbookv1.NewLevel(order.Price)
		levels[order.Price] = level
	}

	if err := level.AddOrder(order); err != nil {
		return err
	}
	b.orders[order.ID] = order

	return nil
}

// Reduce decreases the remaining quantity of a resting order, removing it
// from the book once fully consumed.
func (b *Book) Reduce(orderID string, quantity int64) error {
	order, exists := b.orders[orderID]
	if !exists {
		return orderbookv1.ErrNotFound
	}

	level := b.levelsFor(order.Side)[order.Price]
	if level == nil {
		return orderbookv1.ErrNotFound
	}

	if err := level.Reduce(order, quantity); err != nil {
		return err
	}

	if order.Remaining == 0 {
		delete(b.orders, orderID)
	}
	if level.IsEmpty() {
		delete(b.levelsFor(order.Side), order.Price)
	}

	return nil
}

// Remove takes an order off the book and returns it.
func (b *Book) Remove(orderID string) (*orderbookv1.Order, error) {
	order, exists := b.orders[orderID]
	if !exists {
		return nil, orderbookv1.ErrNotFound
	}

	level := b.levelsFor(order.Side)[order.Price]
	if level != nil {
		if err := level.RemoveOrder(order); err != nil {
			return nil, err
		}
		if level.IsEmpty() {
			delete(b.levelsFor(order.Side), order.Price)
		}
	}

	delete(b.orders, orderID)
	return order, nil
}

// Order returns a resting order by id.
func (b *Book) Order(orderID string) (*orderbookv1.Order, bool) {
	order, exists := b.orders[orderID]
	return order, exists
}

// BestBid returns the highest-priced bid level, or nil when no bids rest.
func (b *Book) BestBid() *orderbookv1.Level {
	var best *orderbookv1.Level
	for _, level := range b.bidLevels {
		if best == nil || level.Price > best.Price {
			best = level
		}
	}
	return best
}

// BestAsk returns the lowest-priced ask level, or nil when no asks rest.
func (b *Book) BestAsk() *orderbookv1.Level {
	var best *orderbookv1.Level
	for _, level := range b.askLevels {
		if best == nil || level.Price < best.Price {
			best = level
		}
	}
	return best
}

// Asks returns ask levels sorted by price (ascending).
func (b *Book) Asks() orderbookv1.Levels {
	var levels orderbookv1.Levels
	for _, level := range b.askLevels {
		levels = append(levels, level)
	}
	sort.Sort(orderbookv1.ByBestAsk{Levels: levels})
	return levels
}

// Bids returns bid levels sorted by price (descending).
func (b *Book) Bids() orderbookv1.Levels {
	var levels orderbookv1.Levels
	for _, level := range b.bidLevels {
		levels = append(levels, level)
	}
	sort.Sort(orderbookv1.ByBestBid{Levels: levels})
	return levels
}

// Depth aggregates up to limit levels per side; limit <= 0 means all levels.
func (b *Book) Depth(limit int) orderbookv1.Depth {
	depth := orderbookv1.Depth{
		Symbol: b.symbol,
		Bids:   aggregate(b.Bids(), limit),
		Asks:   aggregate(b.Asks(), limit),
	}
	return depth
}

func aggregate(levels orderbookv1.Levels, limit int) []orderbookv1.PriceLevel {
	rows := make([]orderbookv1.PriceLevel, 0, len(levels))
	for _, level := range levels {
		if limit > 0 && len(rows) == limit {
			break
		}
		rows = append(rows, orderbookv1.PriceLevel{
			Price:    level.Price,
			Quantity: level.TotalVolume,
		})
	}
	return rows
}

// AskVolume returns total resting ask quantity.
func (b *Book) AskVolume() int64 {
	var total int64
	for _, level := range b.askLevels {
		total += level.TotalVolume
	}
	return total
}

// BidVolume returns total resting bid quantity.
func (b *Book) BidVolume() int64 {
	var total int64
	for _, level := range b.bidLevels {
		total += level.TotalVolume
	}
	return total
}

// Len returns the number of resting orders.
func (b *Book) Len() int {
	return len(b.orders)
}

// RestingOrders returns all resting orders in sequence order.
func (b *Book) RestingOrders() orderbookv1.Orders {
	orders := make(orderbookv1.Orders, 0, len(b.orders))
	for _, order := range b.orders {
		orders = append(orders, order)
	}
	sort.Sort(orders)
	return orders
}

func (b *Book) levelsFor(side orderbookv1.Side) map[int64]*orderbookv1.Level {
	if side == orderbookv1.SideBuy {
		return b.bidLevels
	}
	return b.askLevels
}
