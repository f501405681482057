package orderbookv1

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidOrder is returned when an order fails admission validation.
	ErrInvalidOrder = errors.New("invalid order")
	// ErrNotFound is returned when the referenced order does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrAlreadyTerminal is returned when mutating an order that already
	// reached a terminal status.
	ErrAlreadyTerminal = errors.New("order already terminal")
	// ErrOverflow is returned when a notional computation would exceed int64.
	ErrOverflow = errors.New("notional overflow")
	// ErrUnknownSymbol is returned when the symbol has no book.
	ErrUnknownSymbol = errors.New("unknown symbol")
	// ErrNotOwner is returned when a cancel targets another user's order.
	ErrNotOwner = errors.New("order belongs to another user")

	// ErrNilOrder is returned when a nil order is passed to a book operation.
	// It matches ErrInvalidOrder under errors.Is.
	ErrNilOrder = fmt.Errorf("%w: order cannot be nil", ErrInvalidOrder)
	// ErrInvalidPrice is returned for non-positive limit prices. It matches
	// ErrInvalidOrder under errors.Is.
	ErrInvalidPrice = fmt.Errorf("%w: price must be positive", ErrInvalidOrder)
	// ErrInvalidQuantity is returned for non-positive quantities. It matches
	// ErrInvalidOrder under errors.Is.
	ErrInvalidQuantity = fmt.Errorf("%w: quantity must be positive", ErrInvalidOrder)
)
