package models

import (
	"time"

	"github.com/google/uuid"
)

// Gateway webhook event types
const (
	GatewayEventPaymentSucceeded = "payment_intent.succeeded"
	GatewayEventPaymentFailed    = "payment_intent.payment_failed"
	GatewayEventChargeRefunded   = "charge.refunded"
)

// GatewayEvent is the signed webhook payload from the payment processor.
// Delivery is at-least-once; EventID is the dedup key.
type GatewayEvent struct {
	EventID          string    `json:"event_id"`
	Type             string    `json:"type"`
	OrderID          uuid.UUID `json:"order_id"`
	AmountCents      int64     `json:"amount_cents"`
	GatewayReference string    `json:"gateway_reference"`
	Reason           *string   `json:"reason,omitempty"`
}

// WebhookDeadLetter is a gateway event that exhausted its retries or failed
// terminally. Persisted for manual reconciliation, never silently dropped.
type WebhookDeadLetter struct {
	ID          uuid.UUID  `json:"id"`
	EventID     string     `json:"event_id"`
	EventType   string     `json:"event_type"`
	OrderID     *uuid.UUID `json:"order_id,omitempty"`
	Payload     []byte     `json:"payload"`
	FailureMsg  string     `json:"failure_msg"`
	Attempts    int        `json:"attempts"`
	RedriveDone bool       `json:"redrive_done"`
	CreatedAt   time.Time  `json:"created_at"`
}
