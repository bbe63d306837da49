package services

import "github.com/freelance-marketplace/backend/internal/apperrors"

// RevisionsRemaining reports how many revision cycles the buyer can still
// open. used counts accepted revision requests, not deliveries.
func RevisionsRemaining(allowed, used int) int {
	if used >= allowed {
		return 0
	}
	return allowed - used
}

// CheckRevisionAllowed gates opening another revision cycle against the
// purchased package's allowance.
func CheckRevisionAllowed(allowed, used int) error {
	if used >= allowed {
		return apperrors.ErrRevisionLimitExceeded
	}
	return nil
}
