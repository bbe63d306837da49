package events

import "context"

// Event types published on the order stream. The NotificationDispatcher
// collaborator consumes these; it has no write access to the ledger or the
// state machine.
const (
	EventOrderStatusChanged = "order_status_changed"
	EventEscrowMovement     = "escrow_movement"
	EventMilestoneUpdated   = "milestone_updated"
	EventOperatorAlert      = "operator_alert"
)

// StreamOrders is the pub/sub channel carrying all order lifecycle events.
const StreamOrders = "events:orders"

type Event struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

type Publisher interface {
	Publish(ctx context.Context, stream string, event Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, stream string, handler func(Event)) error
}
