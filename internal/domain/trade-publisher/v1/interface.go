package tradepublisherv1

import "context"

// TradePublisher publishes executed trades to the trade feed.
type TradePublisher interface {
	PublishTrade(ctx context.Context, event *TradeEvent) error
	Close() error
}
