// Package apperrors defines the error taxonomy shared by services and the
// HTTP layer. Keeping sentinels here lets handlers map them consistently to
// status codes without inspecting error strings.
package apperrors

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrForbidden = errors.New("forbidden")

	// ErrRevisionLimitExceeded: the buyer asked for more rework cycles than
	// the purchased package allows. The order stays in delivered.
	ErrRevisionLimitExceeded = errors.New("revision limit exceeded")

	// ErrOutOfSequenceApproval: milestone N approved while N-1 is not yet
	// approved, or an earlier milestone is under dispute.
	ErrOutOfSequenceApproval = errors.New("milestone approved out of sequence")

	// ErrInsufficientHeldFunds guards every ledger release/refund.
	ErrInsufficientHeldFunds = errors.New("insufficient held funds")

	// ErrInvalidSignature: webhook payload failed HMAC verification.
	ErrInvalidSignature = errors.New("invalid webhook signature")
)

// ValidationError is malformed caller input, surfaced as 400.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func Validation(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// StateConflictError is an attempted transition outside the allowed set, or a
// lost concurrent update. It carries the current state so the caller can
// refresh instead of guessing.
type StateConflictError struct {
	OrderID   uuid.UUID
	Current   string
	Attempted string
}

func (e *StateConflictError) Error() string {
	if e.Attempted == "" {
		return fmt.Sprintf("order %s is in state %q", e.OrderID, e.Current)
	}
	return fmt.Sprintf("invalid transition from %q to %q for order %s", e.Current, e.Attempted, e.OrderID)
}

// GatewayError wraps a payment-processor failure. Transient failures are
// retried by the caller; terminal ones surface as a payment failure.
type GatewayError struct {
	Op        string
	Transient bool
	Err       error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway %s failed: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// LedgerViolationError means the conservation or monotonicity invariant of an
// escrow account would be broken. The mutation is aborted and the order is
// force-frozen; the system never auto-corrects ledger state.
type LedgerViolationError struct {
	OrderID uuid.UUID
	Detail  string
}

func (e *LedgerViolationError) Error() string {
	return fmt.Sprintf("escrow invariant violated for order %s: %s", e.OrderID, e.Detail)
}

// IsTransient reports whether err is worth retrying (gateway timeouts, lock
// contention). Everything else is terminal for the current attempt.
func IsTransient(err error) bool {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge.Transient
	}
	return false
}
