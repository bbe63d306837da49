package models

import (
	"time"

	"github.com/google/uuid"
)

// DeliveryRecord is the seller's submitted work for an order. Immutable once
// created; a redelivery after a revision request is a new record.
type DeliveryRecord struct {
	ID          uuid.UUID `json:"id"`
	OrderID     uuid.UUID `json:"order_id"`
	DeliveredBy uuid.UUID `json:"delivered_by"`
	Title       string    `json:"title"`
	Description *string   `json:"description,omitempty"`
	FileRefs    []string  `json:"file_refs,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// RevisionRequest is one buyer-requested rework cycle. RevisionNumber is
// 1-based and strictly increasing per order; it never exceeds the purchased
// package's allowance.
type RevisionRequest struct {
	ID             uuid.UUID `json:"id"`
	OrderID        uuid.UUID `json:"order_id"`
	RequestedBy    uuid.UUID `json:"requested_by"`
	Note           string    `json:"note"`
	RevisionNumber int       `json:"revision_number"`
	CreatedAt      time.Time `json:"created_at"`
}
