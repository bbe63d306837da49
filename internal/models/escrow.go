package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Escrow account statuses
const (
	EscrowStatusOpen              = "open"
	EscrowStatusPartiallyReleased = "partially_released"
	EscrowStatusReleased          = "released"
	EscrowStatusRefunded          = "refunded"
	EscrowStatusFrozen            = "frozen"
)

// Escrow entry kinds
const (
	EntryHold    = "hold"
	EntryRelease = "release"
	EntryRefund  = "refund"
)

// ErrAmountExceedsHeld is the model-level guard; the service layer wraps it
// into apperrors.ErrInsufficientHeldFunds for callers.
var ErrAmountExceedsHeld = fmt.Errorf("amount exceeds held balance")

// EscrowAccount is the authoritative record of held vs. moved funds for one
// order. TotalCents is zero until the capture webhook confirms funding; from
// that point HeldCents + ReleasedCents + RefundedCents == TotalCents holds at
// all times, and ReleasedCents/RefundedCents only grow.
type EscrowAccount struct {
	OrderID       uuid.UUID `json:"order_id"`
	TotalCents    int64     `json:"total_cents"`
	HeldCents     int64     `json:"held_cents"`
	ReleasedCents int64     `json:"released_cents"`
	RefundedCents int64     `json:"refunded_cents"`
	Status        string    `json:"status"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// EscrowEntry is one append-only ledger line. CausingEventID makes a mutation
// idempotent per cause: replaying the same causing event inserts nothing and
// applies nothing.
type EscrowEntry struct {
	ID             uuid.UUID `json:"id"`
	OrderID        uuid.UUID `json:"order_id"`
	CausingEventID string    `json:"causing_event_id"`
	Kind           string    `json:"kind"`
	AmountCents    int64     `json:"amount_cents"`
	Recipient      *string   `json:"recipient,omitempty"`
	HeldBefore     int64     `json:"held_before"`
	HeldAfter      int64     `json:"held_after"`
	ReleasedAfter  int64     `json:"released_after"`
	RefundedAfter  int64     `json:"refunded_after"`
	CreatedAt      time.Time `json:"created_at"`
}

// CheckInvariant verifies conservation and non-negativity. A failure here is
// fatal for the mutation that produced it.
func (a *EscrowAccount) CheckInvariant() error {
	if a.HeldCents < 0 || a.ReleasedCents < 0 || a.RefundedCents < 0 {
		return fmt.Errorf("negative balance: held=%d released=%d refunded=%d", a.HeldCents, a.ReleasedCents, a.RefundedCents)
	}
	if a.HeldCents+a.ReleasedCents+a.RefundedCents != a.TotalCents {
		return fmt.Errorf("held=%d + released=%d + refunded=%d != total=%d", a.HeldCents, a.ReleasedCents, a.RefundedCents, a.TotalCents)
	}
	return nil
}

// Hold credits the account on confirmed payment capture. Called once per
// order; a second hold on a non-empty account is an invariant violation (the
// webhook dedup layer filters replays before this is reached).
func (a *EscrowAccount) Hold(amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("hold amount must be positive, got %d", amount)
	}
	if a.TotalCents != 0 || a.HeldCents != 0 {
		return fmt.Errorf("hold on already funded account (total=%d held=%d)", a.TotalCents, a.HeldCents)
	}
	a.TotalCents = amount
	a.HeldCents = amount
	a.Status = EscrowStatusOpen
	return a.CheckInvariant()
}

// Release moves amount from held to released. amount==0 means "everything
// remaining": full release on order completion always releases exactly the
// remaining held balance, never a hand-picked figure, to prevent rounding
// drift. Returns the amount actually released.
func (a *EscrowAccount) Release(amount int64) (int64, error) {
	if amount == 0 {
		amount = a.HeldCents
	}
	if amount <= 0 {
		return 0, fmt.Errorf("release amount must be positive, got %d", amount)
	}
	if amount > a.HeldCents {
		return 0, ErrAmountExceedsHeld
	}
	a.HeldCents -= amount
	a.ReleasedCents += amount
	if a.HeldCents == 0 {
		a.Status = EscrowStatusReleased
	} else {
		a.Status = EscrowStatusPartiallyReleased
	}
	if err := a.CheckInvariant(); err != nil {
		return 0, err
	}
	return amount, nil
}

// Refund moves amount from held back toward the buyer. amount==0 means the
// full remaining held balance.
func (a *EscrowAccount) Refund(amount int64) (int64, error) {
	if amount == 0 {
		amount = a.HeldCents
	}
	if amount <= 0 {
		return 0, fmt.Errorf("refund amount must be positive, got %d", amount)
	}
	if amount > a.HeldCents {
		return 0, ErrAmountExceedsHeld
	}
	a.HeldCents -= amount
	a.RefundedCents += amount
	if a.HeldCents == 0 {
		// The movement that zeroes the held balance decides the terminal
		// status; mixed accounts (milestone releases then a refunded
		// remainder) end as refunded.
		a.Status = EscrowStatusRefunded
	} else {
		a.Status = EscrowStatusPartiallyReleased
	}
	if err := a.CheckInvariant(); err != nil {
		return 0, err
	}
	return amount, nil
}
