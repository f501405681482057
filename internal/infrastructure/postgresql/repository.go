package postgresql

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	orderbookv1 "github.com/exlabs/exchange-engine/internal/domain/orderbook/v1"
	positionv1 "github.com/exlabs/exchange-engine/internal/domain/position/v1"
	storagev1 "github.com/exlabs/exchange-engine/internal/domain/storage/v1"
)

// remainingExpr reconstructs the unfilled quantity of an order from its
// recorded trades. Remaining quantity itself is never a column.
const remainingExpr = `o.quantity - COALESCE((
	SELECT SUM(t.quantity) FROM trades t
	WHERE t.maker_order_id = o.id OR t.taker_order_id = o.id
), 0)`

// Repository implements the storage contract on PostgreSQL.
type Repository struct {
	client *Client
}

var _ storagev1.Store = (*Repository)(nil)

// NewRepository creates a repository over an existing client.
func NewRepository(client *Client) *Repository {
	return &Repository{client: client}
}

// InsertOrder records a newly admitted order.
func (r *Repository) InsertOrder(ctx context.Context, order *orderbookv1.Order) error {
	_, err := r.client.Exec(ctx, `
		INSERT INTO orders (id, user_id, symbol, side, order_type, price, quantity, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status`,
		order.ID, order.UserID, order.Symbol, string(order.Side), string(order.Type),
		order.Price, order.Quantity, string(order.Status), order.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order %s: %w", order.ID, err)
	}
	return nil
}

// UpdateOrderStatus moves an order to a new lifecycle status.
func (r *Repository) UpdateOrderStatus(ctx context.Context, orderID string, status orderbookv1.Status) error {
	tag, err := r.client.Exec(ctx, `UPDATE orders SET status = $2 WHERE id = $1`, orderID, string(status))
	if err != nil {
		return fmt.Errorf("update order %s status: %w", orderID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update order %s status: %w", orderID, storagev1.ErrNotFound)
	}
	return nil
}

// GetOrder returns one order with its remaining quantity reconstructed.
func (r *Repository) GetOrder(ctx context.Context, orderID string) (*orderbookv1.Order, error) {
	row := r.client.QueryRow(ctx, `
		SELECT o.id, o.user_id, o.symbol, o.side, o.order_type, o.price, o.quantity, o.status, o.created_at,
		       `+remainingExpr+` AS remaining
		FROM orders o
		WHERE o.id = $1`, orderID)

	order, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("order %s: %w", orderID, storagev1.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get order %s: %w", orderID, err)
	}
	return order, nil
}

// ListOpenOrders returns non-terminal orders for a symbol with remaining
// quantity reconstructed, oldest first. Rows with nothing left are skipped.
func (r *Repository) ListOpenOrders(ctx context.Context, symbol string) ([]*orderbookv1.Order, error) {
	rows, err := r.client.Query(ctx, `
		SELECT o.id, o.user_id, o.symbol, o.side, o.order_type, o.price, o.quantity, o.status, o.created_at,
		       `+remainingExpr+` AS remaining
		FROM orders o
		WHERE o.symbol = $1 AND o.status IN ('open', 'partially_filled')
		ORDER BY o.created_at ASC`, symbol)
	if err != nil {
		return nil, fmt.Errorf("list open orders for %s: %w", symbol, err)
	}
	defer rows.Close()

	var orders []*orderbookv1.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("list open orders for %s: %w", symbol, err)
		}
		if order.Remaining <= 0 {
			continue
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

func scanOrder(row pgx.Row) (*orderbookv1.Order, error) {
	var order orderbookv1.Order
	var side, orderType, status string
	if err := row.Scan(
		&order.ID, &order.UserID, &order.Symbol, &side, &orderType,
		&order.Price, &order.Quantity, &status, &order.CreatedAt, &order.Remaining,
	); err != nil {
		return nil, err
	}
	order.Side = orderbookv1.Side(side)
	order.Type = orderbookv1.OrderType(orderType)
	order.Status = orderbookv1.Status(status)
	return &order, nil
}

// InsertTrade records one execution.
func (r *Repository) InsertTrade(ctx context.Context, trade *orderbookv1.Trade) error {
	_, err := r.client.Exec(ctx, `
		INSERT INTO trades (id, maker_order_id, taker_order_id, maker_user_id, taker_user_id, symbol, price, quantity, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`,
		trade.ID, trade.MakerOrderID, trade.TakerOrderID, trade.MakerUserID, trade.TakerUserID,
		trade.Symbol, trade.Price, trade.Quantity, trade.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert trade %s: %w", trade.ID, err)
	}
	return nil
}

// ListTrades returns the most recent trades for a symbol, newest first.
func (r *Repository) ListTrades(ctx context.Context, symbol string, limit int) ([]*orderbookv1.Trade, error) {
	rows, err := r.client.Query(ctx, `
		SELECT id, maker_order_id, taker_order_id, maker_user_id, taker_user_id, symbol, price, quantity, created_at
		FROM trades
		WHERE symbol = $1
		ORDER BY created_at DESC
		LIMIT $2`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("list trades for %s: %w", symbol, err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

// ListUserTrades returns the most recent trades a user took part in on
// either side, newest first.
func (r *Repository) ListUserTrades(ctx context.Context, userID string, limit int) ([]*orderbookv1.Trade, error) {
	rows, err := r.client.Query(ctx, `
		SELECT id, maker_order_id, taker_order_id, maker_user_id, taker_user_id, symbol, price, quantity, created_at
		FROM trades
		WHERE maker_user_id = $1 OR taker_user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list trades for user %s: %w", userID, err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

func scanTrades(rows pgx.Rows) ([]*orderbookv1.Trade, error) {
	var trades []*orderbookv1.Trade
	for rows.Next() {
		var trade orderbookv1.Trade
		if err := rows.Scan(
			&trade.ID, &trade.MakerOrderID, &trade.TakerOrderID, &trade.MakerUserID, &trade.TakerUserID,
			&trade.Symbol, &trade.Price, &trade.Quantity, &trade.CreatedAt,
		); err != nil {
			return nil, err
		}
		trades = append(trades, &trade)
	}
	return trades, rows.Err()
}

// UpsertPosition writes a position keyed by (user, symbol).
func (r *Repository) UpsertPosition(ctx context.Context, position *positionv1.Position) error {
	_, err := r.client.Exec(ctx, `
		INSERT INTO positions (user_id, symbol, quantity, average_price)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, symbol) DO UPDATE
		SET quantity = EXCLUDED.quantity, average_price = EXCLUDED.average_price`,
		position.UserID, position.Symbol, position.Quantity, position.AveragePrice,
	)
	if err != nil {
		return fmt.Errorf("upsert position %s/%s: %w", position.UserID, position.Symbol, err)
	}
	return nil
}

// ListPositions returns every stored position.
func (r *Repository) ListPositions(ctx context.Context) ([]*positionv1.Position, error) {
	rows, err := r.client.Query(ctx, `
		SELECT user_id, symbol, quantity, average_price FROM positions`)
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	defer rows.Close()

	return scanPositions(rows)
}

// ListUserPositions returns one user's positions.
func (r *Repository) ListUserPositions(ctx context.Context, userID string) ([]*positionv1.Position, error) {
	rows, err := r.client.Query(ctx, `
		SELECT user_id, symbol, quantity, average_price FROM positions WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("list positions for user %s: %w", userID, err)
	}
	defer rows.Close()

	return scanPositions(rows)
}

func scanPositions(rows pgx.Rows) ([]*positionv1.Position, error) {
	var positions []*positionv1.Position
	for rows.Next() {
		var position positionv1.Position
		if err := rows.Scan(&position.UserID, &position.Symbol, &position.Quantity, &position.AveragePrice); err != nil {
			return nil, err
		}
		positions = append(positions, &position)
	}
	return positions, rows.Err()
}

// GetUser returns one account row. Accounts are owned by the upstream auth
// service; this repository never writes them.
func (r *Repository) GetUser(ctx context.Context, userID string) (*storagev1.User, error) {
	var user storagev1.User
	err := r.client.QueryRow(ctx, `
		SELECT id, username, password_hash FROM users WHERE id = $1`, userID).
		Scan(&user.ID, &user.Username, &user.PasswordHash)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", userID, storagev1.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", userID, err)
	}
	return &user, nil
}
