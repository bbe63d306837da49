package models

import (
	"errors"
	"testing"
)

func fundedAccount(t *testing.T, total int64) *EscrowAccount {
	t.Helper()
	a := &EscrowAccount{Status: EscrowStatusOpen}
	if err := a.Hold(total); err != nil {
		t.Fatalf("Hold(%d) failed: %v", total, err)
	}
	return a
}

func TestHold(t *testing.T) {
	a := &EscrowAccount{Status: EscrowStatusOpen}
	if err := a.Hold(10000); err != nil {
		t.Fatalf("Hold failed: %v", err)
	}
	if a.TotalCents != 10000 || a.HeldCents != 10000 {
		t.Errorf("after hold: total=%d held=%d, want 10000/10000", a.TotalCents, a.HeldCents)
	}

	// Second hold must be rejected
	if err := a.Hold(10000); err == nil {
		t.Error("second Hold on funded account should fail")
	}

	// Non-positive amounts
	b := &EscrowAccount{}
	if err := b.Hold(0); err == nil {
		t.Error("Hold(0) should fail")
	}
	if err := b.Hold(-5); err == nil {
		t.Error("Hold(-5) should fail")
	}
}

func TestReleaseConservation(t *testing.T) {
	a := fundedAccount(t, 10000)

	moved, err := a.Release(4000)
	if err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if moved != 4000 {
		t.Errorf("moved = %d, want 4000", moved)
	}
	if a.HeldCents != 6000 || a.ReleasedCents != 4000 {
		t.Errorf("held=%d released=%d, want 6000/4000", a.HeldCents, a.ReleasedCents)
	}
	if a.Status != EscrowStatusPartiallyReleased {
		t.Errorf("status = %q, want %q", a.Status, EscrowStatusPartiallyReleased)
	}
	if err := a.CheckInvariant(); err != nil {
		t.Errorf("invariant broken after partial release: %v", err)
	}
}

func TestReleaseAllRemaining(t *testing.T) {
	a := fundedAccount(t, 10000)
	if _, err := a.Release(3000); err != nil {
		t.Fatal(err)
	}

	// Zero means everything remaining
	moved, err := a.Release(0)
	if err != nil {
		t.Fatalf("full release failed: %v", err)
	}
	if moved != 7000 {
		t.Errorf("moved = %d, want 7000", moved)
	}
	if a.HeldCents != 0 || a.ReleasedCents != 10000 {
		t.Errorf("held=%d released=%d, want 0/10000", a.HeldCents, a.ReleasedCents)
	}
	if a.Status != EscrowStatusReleased {
		t.Errorf("status = %q, want %q", a.Status, EscrowStatusReleased)
	}
}

func TestReleaseExceedsHeld(t *testing.T) {
	a := fundedAccount(t, 5000)
	if _, err := a.Release(5001); !errors.Is(err, ErrAmountExceedsHeld) {
		t.Errorf("Release(5001) error = %v, want ErrAmountExceedsHeld", err)
	}
	// Balances untouched after the rejected movement
	if a.HeldCents != 5000 || a.ReleasedCents != 0 {
		t.Errorf("held=%d released=%d, want 5000/0", a.HeldCents, a.ReleasedCents)
	}
}

func TestRefundFull(t *testing.T) {
	a := fundedAccount(t, 8000)

	moved, err := a.Refund(0)
	if err != nil {
		t.Fatalf("Refund failed: %v", err)
	}
	if moved != 8000 {
		t.Errorf("moved = %d, want 8000", moved)
	}
	if a.HeldCents != 0 || a.RefundedCents != 8000 {
		t.Errorf("held=%d refunded=%d, want 0/8000", a.HeldCents, a.RefundedCents)
	}
	if a.Status != EscrowStatusRefunded {
		t.Errorf("status = %q, want %q", a.Status, EscrowStatusRefunded)
	}
}

func TestMixedReleaseThenRefund(t *testing.T) {
	// Milestone order: two releases, then the disputed remainder refunded.
	a := fundedAccount(t, 10000)
	if _, err := a.Release(3000); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Release(3000); err != nil {
		t.Fatal(err)
	}
	moved, err := a.Refund(0)
	if err != nil {
		t.Fatalf("Refund failed: %v", err)
	}
	if moved != 4000 {
		t.Errorf("refunded %d, want 4000", moved)
	}
	if a.ReleasedCents != 6000 || a.RefundedCents != 4000 || a.HeldCents != 0 {
		t.Errorf("released=%d refunded=%d held=%d, want 6000/4000/0", a.ReleasedCents, a.RefundedCents, a.HeldCents)
	}
	// The movement that zeroed the held balance decides the terminal status
	if a.Status != EscrowStatusRefunded {
		t.Errorf("status = %q, want %q", a.Status, EscrowStatusRefunded)
	}
	if err := a.CheckInvariant(); err != nil {
		t.Errorf("invariant broken on mixed ledger: %v", err)
	}
}

func TestRefundAfterPartialRelease(t *testing.T) {
	// A cancelled milestone order sends the gateway only the balance still
	// held; prior milestone releases stay with the seller.
	a := fundedAccount(t, 10000)
	if _, err := a.Release(4000); err != nil {
		t.Fatal(err)
	}
	if a.HeldCents != 6000 {
		t.Fatalf("held = %d, want 6000", a.HeldCents)
	}

	moved, err := a.Refund(a.HeldCents)
	if err != nil {
		t.Fatalf("Refund failed: %v", err)
	}
	if moved != 6000 {
		t.Errorf("refunded %d, want 6000", moved)
	}
	if a.ReleasedCents != 4000 || a.RefundedCents != 6000 || a.HeldCents != 0 {
		t.Errorf("released=%d refunded=%d held=%d, want 4000/6000/0", a.ReleasedCents, a.RefundedCents, a.HeldCents)
	}
	if err := a.CheckInvariant(); err != nil {
		t.Errorf("invariant broken after partial refund: %v", err)
	}
}

func TestRefundExceedsHeld(t *testing.T) {
	a := fundedAccount(t, 5000)
	if _, err := a.Release(2000); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Refund(3001); !errors.Is(err, ErrAmountExceedsHeld) {
		t.Errorf("Refund(3001) error = %v, want ErrAmountExceedsHeld", err)
	}
}

func TestCheckInvariant(t *testing.T) {
	tests := []struct {
		name    string
		account EscrowAccount
		wantErr bool
	}{
		{"empty account", EscrowAccount{}, false},
		{"balanced", EscrowAccount{TotalCents: 100, HeldCents: 60, ReleasedCents: 30, RefundedCents: 10}, false},
		{"unbalanced", EscrowAccount{TotalCents: 100, HeldCents: 60, ReleasedCents: 30, RefundedCents: 20}, true},
		{"negative held", EscrowAccount{TotalCents: 0, HeldCents: -10, ReleasedCents: 10}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.account.CheckInvariant()
			if (err != nil) != tt.wantErr {
				t.Errorf("CheckInvariant() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
