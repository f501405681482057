package matching

import (
	"fmt"
	"time"

	orderbookv1 "github.com/exlabs/exchange-engine/internal/domain/orderbook/v1"
	snapshotv1 "github.com/exlabs/exchange-engine/internal/domain/snapshot/v1"
)

// Snapshot captures the resting state of every book. The intake offset is
// owned by the service loop and set by the caller.
func (e *Engine) Snapshot() *snapshotv1.Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()

	snapshot := &snapshotv1.Snapshot{}
	for _, sb := range e.books {
		sb.mu.Lock()
		bookSnapshot := snapshotv1.BookSnapshot{
			Symbol:   sb.symbol,
			Sequence: sb.sequence,
		}
		for _, order := range sb.book.RestingOrders() {
			bookSnapshot.Orders = append(bookSnapshot.Orders, snapshotv1.BookOrder{
				OrderID:   order.ID,
				UserID:    order.UserID,
				Side:      string(order.Side),
				Price:     order.Price,
				Quantity:  order.Quantity,
				Remaining: order.Remaining,
				Sequence:  order.Sequence,
				CreatedAt: order.CreatedAt.UnixNano(),
			})
		}
		sb.mu.Unlock()
		snapshot.Books = append(snapshot.Books, bookSnapshot)
	}
	return snapshot
}

// Restore replaces the resting state of every book named in the snapshot.
// Symbols the engine does not maintain are rejected.
func (e *Engine) Restore(snapshot *snapshotv1.Snapshot) error {
	if snapshot == nil {
		return fmt.Errorf("snapshot cannot be nil")
	}

	for _, bookSnapshot := range snapshot.Books {
		sb, err := e.symbolBook(bookSnapshot.Symbol)
		if err != nil {
			return err
		}

		sb.mu.Lock()
		for _, bookOrder := range bookSnapshot.Orders {
			status := orderbookv1.StatusOpen
			if bookOrder.Remaining < bookOrder.Quantity {
				status = orderbookv1.StatusPartiallyFilled
			}
			order := &orderbookv1.Order{
				ID:        bookOrder.OrderID,
				UserID:    bookOrder.UserID,
				Symbol:    bookSnapshot.Symbol,
				Side:      orderbookv1.Side(bookOrder.Side),
				Type:      orderbookv1.OrderTypeLimit,
				Price:     bookOrder.Price,
				Quantity:  bookOrder.Quantity,
				Remaining: bookOrder.Remaining,
				Status:    status,
				Sequence:  bookOrder.Sequence,
				CreatedAt: time.Unix(0, bookOrder.CreatedAt),
			}
			if err := sb.book.Insert(order); err != nil {
				sb.mu.Unlock()
				return fmt.Errorf("failed to restore order %s: %w", bookOrder.OrderID, err)
			}
			if order.Sequence > sb.sequence {
				sb.sequence = order.Sequence
			}
		}
		if bookSnapshot.Sequence > sb.sequence {
			sb.sequence = bookSnapshot.Sequence
		}
		sb.mu.Unlock()
	}

	return nil
}
