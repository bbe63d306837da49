package models

import (
	"time"

	"github.com/google/uuid"
)

// Order statuses
const (
	OrderStatusCreated           = "created"
	OrderStatusFunded            = "funded"
	OrderStatusInProgress        = "in_progress"
	OrderStatusDelivered         = "delivered"
	OrderStatusRevisionRequested = "revision_requested"
	OrderStatusDisputed          = "disputed"
	OrderStatusRefundPending     = "refund_pending"
	OrderStatusCompleted         = "completed"
	OrderStatusRefunded          = "refunded"
	OrderStatusCancelled         = "cancelled"
	OrderStatusFrozen            = "frozen"
)

// Valid state transitions: from -> []to.
// frozen is reachable from every non-terminal state but only through a ledger
// invariant violation, never by actor request.
// disputed opens only once funds are held (funded through revision_requested).
// An unfunded created order has no balance to freeze or resolve; it cancels
// instead.
var ValidOrderTransitions = map[string][]string{
	OrderStatusCreated:           {OrderStatusFunded, OrderStatusCancelled, OrderStatusFrozen},
	OrderStatusFunded:            {OrderStatusInProgress, OrderStatusDisputed, OrderStatusRefundPending, OrderStatusFrozen},
	OrderStatusInProgress:        {OrderStatusDelivered, OrderStatusCompleted, OrderStatusDisputed, OrderStatusFrozen},
	OrderStatusDelivered:         {OrderStatusRevisionRequested, OrderStatusCompleted, OrderStatusDisputed, OrderStatusFrozen},
	OrderStatusRevisionRequested: {OrderStatusDelivered, OrderStatusDisputed, OrderStatusFrozen},
	OrderStatusDisputed:          {OrderStatusCompleted, OrderStatusRefundPending, OrderStatusFrozen},
	OrderStatusRefundPending:     {OrderStatusRefunded, OrderStatusCancelled, OrderStatusFrozen},
	OrderStatusCompleted:         {},
	OrderStatusRefunded:          {},
	OrderStatusCancelled:         {},
	OrderStatusFrozen:            {},
}

func IsValidTransition(from, to string) bool {
	allowed, ok := ValidOrderTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminalStatus reports whether no further transitions exist. Terminal
// orders are retained permanently for audit, never deleted.
func IsTerminalStatus(status string) bool {
	allowed, ok := ValidOrderTransitions[status]
	return ok && len(allowed) == 0
}

type Order struct {
	ID                uuid.UUID  `json:"id"`
	BuyerID           uuid.UUID  `json:"buyer_id"`
	SellerID          uuid.UUID  `json:"seller_id"`
	PackageID         *uuid.UUID `json:"package_id,omitempty"`
	ProjectID         *uuid.UUID `json:"project_id,omitempty"`
	Requirements      *string    `json:"requirements,omitempty"`
	Status            string     `json:"status"`
	TotalAmountCents  int64      `json:"total_amount_cents"`
	Currency          string     `json:"currency"`
	RevisionsAllowed  int        `json:"revisions_allowed"`
	RevisionNumber    int        `json:"revision_number"`
	PlatformFeeBPS    int        `json:"platform_fee_bps"`
	CancelRequestedAt *time.Time `json:"cancel_requested_at,omitempty"`
	DeliveredAt       *time.Time `json:"delivered_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// HasMilestones is set by the repository when the order was created from a
// project proposal with a milestone plan.
type OrderWithMilestones struct {
	Order
	Milestones []Milestone `json:"milestones,omitempty"`
}

// PlatformFeeCents computes the platform's cut of amount using the fee locked
// in at order creation. Integer bps math, truncating toward zero.
func (o *Order) PlatformFeeCents(amount int64) int64 {
	return amount * int64(o.PlatformFeeBPS) / 10000
}
