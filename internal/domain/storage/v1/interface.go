package storagev1

import (
	"context"
	"errors"

	orderbookv1 "github.com/exlabs/exchange-engine/internal/domain/orderbook/v1"
	positionv1 "github.com/exlabs/exchange-engine/internal/domain/position/v1"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// User is an account row. Accounts are provisioned by the upstream auth
// collaborator; this service only reads them.
type User struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"-"`
}

// Store persists orders, trades and positions. Writes happen outside the
// matching critical section and are at-least-once; the matching state in
// memory stays authoritative.
type Store interface {
	// InsertOrder records a newly admitted order.
	InsertOrder(ctx context.Context, order *orderbookv1.Order) error
	// UpdateOrderStatus moves an order to a new lifecycle status.
	UpdateOrderStatus(ctx context.Context, orderID string, status orderbookv1.Status) error
	// GetOrder returns one order with its remaining quantity reconstructed
	// from recorded trades.
	GetOrder(ctx context.Context, orderID string) (*orderbookv1.Order, error)
	// ListOpenOrders returns non-terminal orders for a symbol with remaining
	// quantity reconstructed, oldest first. Fully consumed rows are skipped.
	ListOpenOrders(ctx context.Context, symbol string) ([]*orderbookv1.Order, error)

	// InsertTrade records one execution.
	InsertTrade(ctx context.Context, trade *orderbookv1.Trade) error
	// ListTrades returns the most recent trades for a symbol, newest first.
	ListTrades(ctx context.Context, symbol string, limit int) ([]*orderbookv1.Trade, error)
	// ListUserTrades returns the most recent trades a user took part in on
	// either side, newest first.
	ListUserTrades(ctx context.Context, userID string, limit int) ([]*orderbookv1.Trade, error)

	// UpsertPosition writes a position keyed by (user, symbol).
	UpsertPosition(ctx context.Context, position *positionv1.Position) error
	// ListPositions returns every stored position.
	ListPositions(ctx context.Context) ([]*positionv1.Position, error)
	// ListUserPositions returns one user's positions.
	ListUserPositions(ctx context.Context, userID string) ([]*positionv1.Position, error)

	// GetUser returns one account row.
	GetUser(ctx context.Context, userID string) (*User, error)
}
