package models

import (
	"time"

	"github.com/google/uuid"
)

// Milestone statuses
const (
	MilestoneStatusPending   = "pending"
	MilestoneStatusDelivered = "delivered"
	MilestoneStatusApproved  = "approved"
	MilestoneStatusDisputed  = "disputed"
)

// Milestone is a partitioned portion of a project order's total, released
// independently upon approval. Positions are 1-based and approvals must
// happen strictly in position order.
type Milestone struct {
	ID          uuid.UUID  `json:"id"`
	OrderID     uuid.UUID  `json:"order_id"`
	Position    int        `json:"position"`
	Title       string     `json:"title"`
	AmountCents int64      `json:"amount_cents"`
	Status      string     `json:"status"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// CanApproveMilestone checks the in-order approval rule against the full
// milestone list (sorted by position): the target may be approved only when
// every earlier milestone is approved and the target itself is not already
// approved or disputed. An earlier pending or disputed milestone blocks all
// later approvals.
func CanApproveMilestone(milestones []Milestone, target uuid.UUID) (ok, found bool) {
	blocked := false
	for _, m := range milestones {
		if m.ID == target {
			if blocked || m.Status == MilestoneStatusApproved || m.Status == MilestoneStatusDisputed {
				return false, true
			}
			return true, true
		}
		if m.Status != MilestoneStatusApproved {
			blocked = true
		}
	}
	return false, false
}

// MilestoneSumCents totals the plan; must equal the order total when
// milestones are used.
func MilestoneSumCents(milestones []Milestone) int64 {
	var sum int64
	for _, m := range milestones {
		sum += m.AmountCents
	}
	return sum
}

// AllMilestonesApproved reports whether the whole plan has been released.
func AllMilestonesApproved(milestones []Milestone) bool {
	if len(milestones) == 0 {
		return false
	}
	for _, m := range milestones {
		if m.Status != MilestoneStatusApproved {
			return false
		}
	}
	return true
}
