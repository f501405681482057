package orderbookv1

// PriceLevel is one aggregated row of a depth view.
type PriceLevel struct {
	Price    int64 `json:"price"`
	Quantity int64 `json:"quantity"`
}

// Depth is an aggregated view of both sides of a book, bids from highest
// price down and asks from lowest price up.
type Depth struct {
	Symbol string       `json:"symbol"`
	Bids   []PriceLevel `json:"bids"`
	Asks   []PriceLevel `json:"asks"`
}

// Book maintains resting orders for one symbol in price-time priority.
// Implementations are not safe for concurrent use; the matching engine holds
// the symbol lock around every call.
type Book interface {
	// Insert rests an order on its side of the book.
	Insert(order *Order) error
	// Reduce decreases the remaining quantity of a resting order, removing
	// it once fully consumed.
	Reduce(orderID string, quantity int64) error
	// Remove takes an order off the book and returns it.
	Remove(orderID string) (*Order, error)
	// Order returns a resting order by id.
	Order(orderID string) (*Order, bool)
	// BestBid returns the highest-priced bid level, or nil.
	BestBid() *Level
	// BestAsk returns the lowest-priced ask level, or nil.
	BestAsk() *Level
	// Bids returns bid levels sorted from best to worst.
	Bids() Levels
	// Asks returns ask levels sorted from best to worst.
	Asks() Levels
	// Depth aggregates up to limit levels per side; limit <= 0 means all.
	Depth(limit int) Depth
	// BidVolume returns the total resting bid quantity.
	BidVolume() int64
	// AskVolume returns the total resting ask quantity.
	AskVolume() int64
	// Len returns the number of resting orders.
	Len() int
	// RestingOrders returns all resting orders in sequence order.
	RestingOrders() Orders
}
