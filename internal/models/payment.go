package models

import (
	"time"

	"github.com/google/uuid"
)

// Payment intent statuses
const (
	IntentStatusPending   = "pending"
	IntentStatusSucceeded = "succeeded"
	IntentStatusFailed    = "failed"
	IntentStatusRefunded  = "refunded"
)

// PaymentIntentRecord mirrors the gateway-side intent for an order. The
// idempotency key is generated once per order and reused on every gateway
// retry so a retried capture or refund cannot double-charge.
type PaymentIntentRecord struct {
	ID               uuid.UUID `json:"id"`
	OrderID          uuid.UUID `json:"order_id"`
	GatewayReference string    `json:"gateway_reference"`
	ClientSecret     string    `json:"-"`
	AmountCents      int64     `json:"amount_cents"`
	Currency         string    `json:"currency"`
	Status           string    `json:"status"`
	IdempotencyKey   string    `json:"idempotency_key"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}
