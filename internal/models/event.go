package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Lifecycle event types. Every successful transition and every ledger
// mutation appends exactly one of these to the order's timeline.
const (
	EventOrderCreated      = "order_created"
	EventOrderFunded       = "order_funded"
	EventFundingFailed     = "funding_failed"
	EventOrderStarted      = "order_started"
	EventOrderDelivered    = "order_delivered"
	EventRevisionRequested = "revision_requested"
	EventOrderCompleted    = "order_completed"
	EventOrderDisputed     = "order_disputed"
	EventDisputeResolved   = "dispute_resolved"
	EventRefundInitiated   = "refund_initiated"
	EventOrderRefunded     = "order_refunded"
	EventOrderCancelled    = "order_cancelled"
	EventOrderFrozen       = "order_frozen"

	EventEscrowHeld     = "escrow_held"
	EventEscrowReleased = "escrow_released"
	EventEscrowRefunded = "escrow_refunded"

	EventMilestoneApproved = "milestone_approved"
	EventMilestoneDisputed = "milestone_disputed"
)

// Actor types
const (
	ActorBuyer   = "buyer"
	ActorSeller  = "seller"
	ActorAdmin   = "admin"
	ActorSystem  = "system"
	ActorGateway = "gateway"
)

// EventRecord is one append-only timeline entry. Never updated or deleted;
// Seq gives the strict per-order ordering. ActorID is nil for system and
// gateway driven events.
type EventRecord struct {
	ID        uuid.UUID      `json:"id"`
	OrderID   uuid.UUID      `json:"order_id"`
	Seq       int64          `json:"seq"`
	EventType string         `json:"event_type"`
	ActorID   *uuid.UUID     `json:"actor_id,omitempty"`
	ActorType string         `json:"actor_type"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// ReplayState is the order/ledger state reconstructed from a timeline.
type ReplayState struct {
	Status        string
	TotalCents    int64
	HeldCents     int64
	ReleasedCents int64
	RefundedCents int64
}

// Replay folds an ordered event sequence into the state it encodes. The full
// sequence for any order must reconstruct exactly its current state; dispute
// tooling and the timeline tests rely on this.
func Replay(events []EventRecord) ReplayState {
	st := ReplayState{}
	for _, e := range events {
		if s, ok := metaString(e.Metadata, "new_status"); ok {
			st.Status = s
		}
		switch e.EventType {
		case EventEscrowHeld, EventEscrowReleased, EventEscrowRefunded:
			if v, ok := metaInt64(e.Metadata, "total_cents"); ok {
				st.TotalCents = v
			}
			if v, ok := metaInt64(e.Metadata, "held_after"); ok {
				st.HeldCents = v
			}
			if v, ok := metaInt64(e.Metadata, "released_after"); ok {
				st.ReleasedCents = v
			}
			if v, ok := metaInt64(e.Metadata, "refunded_after"); ok {
				st.RefundedCents = v
			}
		}
	}
	return st
}

func metaString(meta map[string]any, key string) (string, bool) {
	if meta == nil {
		return "", false
	}
	s, ok := meta[key].(string)
	return s, ok
}

// metaInt64 tolerates the types metadata can arrive as: int64 in-process,
// float64 or json.Number after a jsonb round trip.
func metaInt64(meta map[string]any, key string) (int64, bool) {
	if meta == nil {
		return 0, false
	}
	switch v := meta[key].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	}
	return 0, false
}
