package services

import (
	"errors"
	"testing"

	"github.com/freelance-marketplace/backend/internal/apperrors"
	"github.com/freelance-marketplace/backend/internal/models"
	"github.com/google/uuid"
)

func TestCheckBuyerApproval(t *testing.T) {
	buyer := uuid.New()
	seller := uuid.New()

	tests := []struct {
		name          string
		status        string
		actor         uuid.UUID
		wantConflict  bool
		wantForbidden bool
	}{
		{"delivered buyer", models.OrderStatusDelivered, buyer, false, false},
		{"delivered seller", models.OrderStatusDelivered, seller, false, true},
		{"delivered stranger", models.OrderStatusDelivered, uuid.New(), false, true},
		{"disputed buyer", models.OrderStatusDisputed, buyer, true, false},
		{"in_progress buyer", models.OrderStatusInProgress, buyer, true, false},
		{"revision_requested buyer", models.OrderStatusRevisionRequested, buyer, true, false},
		{"funded buyer", models.OrderStatusFunded, buyer, true, false},
		{"created buyer", models.OrderStatusCreated, buyer, true, false},
		{"frozen buyer", models.OrderStatusFrozen, buyer, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := &models.Order{ID: uuid.New(), BuyerID: buyer, SellerID: seller, Status: tt.status}
			err := checkBuyerApproval(o, tt.actor)
			switch {
			case tt.wantForbidden:
				if !errors.Is(err, apperrors.ErrForbidden) {
					t.Errorf("error = %v, want ErrForbidden", err)
				}
			case tt.wantConflict:
				var sc *apperrors.StateConflictError
				if !errors.As(err, &sc) {
					t.Fatalf("error = %v, want StateConflictError", err)
				}
				if sc.Current != tt.status {
					t.Errorf("conflict Current = %q, want %q", sc.Current, tt.status)
				}
			default:
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
			}
		})
	}
}

func TestCheckFundingApplies(t *testing.T) {
	if err := checkFundingApplies(&models.Order{Status: models.OrderStatusCreated}); err != nil {
		t.Errorf("created order should accept funding outcomes, got %v", err)
	}

	// A stale capture outcome arriving after the order moved on must surface
	// as a state conflict so the delivery dead-letters instead of mutating.
	past := []string{
		models.OrderStatusFunded,
		models.OrderStatusInProgress,
		models.OrderStatusDelivered,
		models.OrderStatusRefundPending,
		models.OrderStatusCompleted,
		models.OrderStatusCancelled,
	}
	for _, status := range past {
		t.Run(status, func(t *testing.T) {
			err := checkFundingApplies(&models.Order{ID: uuid.New(), Status: status})
			var sc *apperrors.StateConflictError
			if !errors.As(err, &sc) {
				t.Fatalf("error = %v, want StateConflictError", err)
			}
			if sc.Current != status {
				t.Errorf("conflict Current = %q, want %q", sc.Current, status)
			}
		})
	}
}
