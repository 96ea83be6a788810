package notifications

import "context"

// Event types emitted by the core.
const (
	EventBidOutbid    = "bid_outbid"
	EventAuctionWon   = "auction_won"
	EventOrderCreated = "order_created"
	EventOrderExpired = "order_expired"
)

// Notifier is the fire-and-forget boundary to the notification and
// messaging systems. Implementations must never block the caller's
// primary state transition on delivery.
type Notifier interface {
	Notify(ctx context.Context, userID, eventType string, payload map[string]any)
	SendAutoMessage(ctx context.Context, userID, template string, vars map[string]string)
}

// Noop discards all notifications. Used in tests and when no broker is
// configured.
type Noop struct{}

func (Noop) Notify(context.Context, string, string, map[string]any)    {}
func (Noop) SendAutoMessage(context.Context, string, string, map[string]string) {}
