package models

import "testing"

func TestReplayReconstructsLifecycle(t *testing.T) {
	// The full happy path of a fixed-price order, as the service appends it.
	events := []EventRecord{
		{Seq: 1, EventType: EventOrderCreated, Metadata: map[string]any{"new_status": OrderStatusCreated}},
		{Seq: 2, EventType: EventEscrowHeld, Metadata: map[string]any{
			"total_cents": int64(10000), "held_after": int64(10000), "released_after": int64(0), "refunded_after": int64(0),
		}},
		{Seq: 3, EventType: EventOrderFunded, Metadata: map[string]any{"old_status": OrderStatusCreated, "new_status": OrderStatusFunded}},
		{Seq: 4, EventType: EventOrderStarted, Metadata: map[string]any{"new_status": OrderStatusInProgress}},
		{Seq: 5, EventType: EventOrderDelivered, Metadata: map[string]any{"new_status": OrderStatusDelivered}},
		{Seq: 6, EventType: EventOrderCompleted, Metadata: map[string]any{"new_status": OrderStatusCompleted}},
		{Seq: 7, EventType: EventEscrowReleased, Metadata: map[string]any{
			"total_cents": int64(10000), "held_after": int64(0), "released_after": int64(10000), "refunded_after": int64(0),
		}},
	}

	st := Replay(events)
	if st.Status != OrderStatusCompleted {
		t.Errorf("status = %q, want %q", st.Status, OrderStatusCompleted)
	}
	if st.TotalCents != 10000 || st.HeldCents != 0 || st.ReleasedCents != 10000 || st.RefundedCents != 0 {
		t.Errorf("balances = total %d held %d released %d refunded %d, want 10000/0/10000/0",
			st.TotalCents, st.HeldCents, st.ReleasedCents, st.RefundedCents)
	}
	if st.HeldCents+st.ReleasedCents+st.RefundedCents != st.TotalCents {
		t.Error("replayed balances break conservation")
	}
}

func TestReplayPartialPrefix(t *testing.T) {
	events := []EventRecord{
		{Seq: 1, EventType: EventOrderCreated, Metadata: map[string]any{"new_status": OrderStatusCreated}},
		{Seq: 2, EventType: EventEscrowHeld, Metadata: map[string]any{
			"total_cents": int64(5000), "held_after": int64(5000), "released_after": int64(0), "refunded_after": int64(0),
		}},
		{Seq: 3, EventType: EventOrderFunded, Metadata: map[string]any{"new_status": OrderStatusFunded}},
	}

	st := Replay(events)
	if st.Status != OrderStatusFunded {
		t.Errorf("status = %q, want %q", st.Status, OrderStatusFunded)
	}
	if st.HeldCents != 5000 {
		t.Errorf("held = %d, want 5000", st.HeldCents)
	}
}

// Metadata loaded back from jsonb arrives with float64 numbers; Replay must
// read them the same as in-process int64.
func TestReplayToleratesJSONNumbers(t *testing.T) {
	events := []EventRecord{
		{Seq: 1, EventType: EventEscrowHeld, Metadata: map[string]any{
			"total_cents": float64(10000), "held_after": float64(10000), "released_after": float64(0), "refunded_after": float64(0),
		}},
	}
	st := Replay(events)
	if st.TotalCents != 10000 || st.HeldCents != 10000 {
		t.Errorf("total=%d held=%d, want 10000/10000", st.TotalCents, st.HeldCents)
	}
}

func TestReplayEmpty(t *testing.T) {
	st := Replay(nil)
	if st.Status != "" || st.TotalCents != 0 {
		t.Errorf("Replay(nil) = %+v, want zero state", st)
	}
}
