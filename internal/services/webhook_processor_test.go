package services

import (
	"errors"
	"testing"

	"github.com/freelance-marketplace/backend/internal/apperrors"
	"github.com/freelance-marketplace/backend/internal/models"
)

func TestParseGatewayEvent(t *testing.T) {
	body := []byte(`{
		"id": "evt_123",
		"type": "payment_intent.succeeded",
		"data": {
			"order_id": "7b4a0b80-9c4e-4f2e-a7de-3d6f0c1b2a31",
			"amount_cents": 10000,
			"reference": "pi_abc"
		}
	}`)

	evt, err := parseGatewayEvent(body)
	if err != nil {
		t.Fatalf("parseGatewayEvent failed: %v", err)
	}
	if evt.EventID != "evt_123" {
		t.Errorf("EventID = %q, want evt_123", evt.EventID)
	}
	if evt.Type != models.GatewayEventPaymentSucceeded {
		t.Errorf("Type = %q, want %q", evt.Type, models.GatewayEventPaymentSucceeded)
	}
	if evt.AmountCents != 10000 {
		t.Errorf("AmountCents = %d, want 10000", evt.AmountCents)
	}
	if evt.GatewayReference != "pi_abc" {
		t.Errorf("GatewayReference = %q, want pi_abc", evt.GatewayReference)
	}
}

func TestParseGatewayEventRejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `{{{`},
		{"missing id", `{"type":"payment_intent.succeeded","data":{"order_id":"7b4a0b80-9c4e-4f2e-a7de-3d6f0c1b2a31"}}`},
		{"missing type", `{"id":"evt_1","data":{"order_id":"7b4a0b80-9c4e-4f2e-a7de-3d6f0c1b2a31"}}`},
		{"unknown type", `{"id":"evt_1","type":"charge.created","data":{"order_id":"7b4a0b80-9c4e-4f2e-a7de-3d6f0c1b2a31"}}`},
		{"bad order id", `{"id":"evt_1","type":"charge.refunded","data":{"order_id":"not-a-uuid"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseGatewayEvent([]byte(tt.body))
			var ve *apperrors.ValidationError
			if !errors.As(err, &ve) {
				t.Errorf("parseGatewayEvent error = %v, want ValidationError", err)
			}
		})
	}
}

func TestIsTerminalApplyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"validation", apperrors.Validation("bad amount"), true},
		{"state conflict", &apperrors.StateConflictError{Current: models.OrderStatusCompleted}, true},
		{"not found", apperrors.ErrNotFound, true},
		{"ledger violation", &apperrors.LedgerViolationError{Detail: "x"}, true},
		{"infrastructure", errors.New("connection refused"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isTerminalApplyError(tt.err); got != tt.want {
				t.Errorf("isTerminalApplyError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
