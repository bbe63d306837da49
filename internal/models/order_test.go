package models

import "testing"

func TestIsValidTransition(t *testing.T) {
	tests := []struct {
		from     string
		to       string
		expected bool
	}{
		// Happy path
		{OrderStatusCreated, OrderStatusFunded, true},
		{OrderStatusFunded, OrderStatusInProgress, true},
		{OrderStatusInProgress, OrderStatusDelivered, true},
		{OrderStatusDelivered, OrderStatusCompleted, true},
		{OrderStatusDelivered, OrderStatusRevisionRequested, true},
		{OrderStatusRevisionRequested, OrderStatusDelivered, true},

		// Milestone orders complete from in_progress once the plan is
		// fully approved
		{OrderStatusInProgress, OrderStatusCompleted, true},

		// Disputes
		{OrderStatusFunded, OrderStatusDisputed, true},
		{OrderStatusInProgress, OrderStatusDisputed, true},
		{OrderStatusDelivered, OrderStatusDisputed, true},
		{OrderStatusRevisionRequested, OrderStatusDisputed, true},
		{OrderStatusDisputed, OrderStatusCompleted, true},
		{OrderStatusDisputed, OrderStatusRefundPending, true},

		// Cancellation and refunds
		{OrderStatusCreated, OrderStatusCancelled, true},
		{OrderStatusFunded, OrderStatusRefundPending, true},
		{OrderStatusRefundPending, OrderStatusRefunded, true},
		{OrderStatusRefundPending, OrderStatusCancelled, true},

		// Funding is webhook-driven only, and never skips states
		{OrderStatusCreated, OrderStatusInProgress, false},
		{OrderStatusCreated, OrderStatusDelivered, false},
		{OrderStatusCreated, OrderStatusCompleted, false},

		// Invalid transitions
		{OrderStatusFunded, OrderStatusCompleted, false},
		{OrderStatusInProgress, OrderStatusCancelled, false},
		{OrderStatusDelivered, OrderStatusCancelled, false},
		{OrderStatusCreated, OrderStatusDisputed, false},
		{OrderStatusDisputed, OrderStatusDelivered, false},
		{OrderStatusCompleted, OrderStatusDisputed, false},
		{OrderStatusCompleted, OrderStatusRefunded, false},
		{OrderStatusRefunded, OrderStatusCompleted, false},
		{OrderStatusCancelled, OrderStatusCreated, false},
		{OrderStatusFrozen, OrderStatusCompleted, false},
		{"nonexistent", OrderStatusFunded, false},
		{OrderStatusCreated, "nonexistent", false},
	}

	for _, tt := range tests {
		t.Run(tt.from+"->"+tt.to, func(t *testing.T) {
			result := IsValidTransition(tt.from, tt.to)
			if result != tt.expected {
				t.Errorf("IsValidTransition(%q, %q) = %v, want %v", tt.from, tt.to, result, tt.expected)
			}
		})
	}
}

func TestAllStatusesHaveTransitionEntry(t *testing.T) {
	allStatuses := []string{
		OrderStatusCreated, OrderStatusFunded, OrderStatusInProgress,
		OrderStatusDelivered, OrderStatusRevisionRequested,
		OrderStatusDisputed, OrderStatusRefundPending,
		OrderStatusCompleted, OrderStatusRefunded, OrderStatusCancelled,
		OrderStatusFrozen,
	}

	for _, status := range allStatuses {
		if _, ok := ValidOrderTransitions[status]; !ok {
			t.Errorf("status %q missing from ValidOrderTransitions map", status)
		}
	}
}

func TestTerminalStatusesHaveNoTransitions(t *testing.T) {
	terminal := []string{OrderStatusCompleted, OrderStatusRefunded, OrderStatusCancelled, OrderStatusFrozen}
	for _, status := range terminal {
		transitions := ValidOrderTransitions[status]
		if len(transitions) != 0 {
			t.Errorf("terminal status %q should have no transitions, got %v", status, transitions)
		}
		if !IsTerminalStatus(status) {
			t.Errorf("IsTerminalStatus(%q) = false, want true", status)
		}
	}
}

func TestFrozenReachableFromEveryNonTerminalStatus(t *testing.T) {
	for status, allowed := range ValidOrderTransitions {
		if IsTerminalStatus(status) {
			continue
		}
		found := false
		for _, to := range allowed {
			if to == OrderStatusFrozen {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("non-terminal status %q cannot reach frozen", status)
		}
	}
}

func TestPlatformFeeCents(t *testing.T) {
	tests := []struct {
		name   string
		bps    int
		amount int64
		want   int64
	}{
		{"ten percent", 1000, 10000, 1000},
		{"truncates toward zero", 1000, 9999, 999},
		{"zero fee", 0, 10000, 0},
		{"small amount below resolution", 1000, 9, 0},
		{"full amount", 10000, 5000, 5000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := Order{PlatformFeeBPS: tt.bps}
			if got := o.PlatformFeeCents(tt.amount); got != tt.want {
				t.Errorf("PlatformFeeCents(%d) with %d bps = %d, want %d", tt.amount, tt.bps, got, tt.want)
			}
		})
	}
}
