package models

import (
	"testing"

	"github.com/google/uuid"
)

func plan(statuses ...string) []Milestone {
	milestones := make([]Milestone, len(statuses))
	for i, s := range statuses {
		milestones[i] = Milestone{
			ID:          uuid.New(),
			Position:    i + 1,
			AmountCents: 1000,
			Status:      s,
		}
	}
	return milestones
}

func TestCanApproveMilestone(t *testing.T) {
	tests := []struct {
		name      string
		statuses  []string
		target    int // index into the plan
		wantOK    bool
		wantFound bool
	}{
		{"first pending", []string{MilestoneStatusPending, MilestoneStatusPending}, 0, true, true},
		{"second blocked by first", []string{MilestoneStatusPending, MilestoneStatusPending}, 1, false, true},
		{"second after first approved", []string{MilestoneStatusApproved, MilestoneStatusPending}, 1, true, true},
		{"third blocked by pending second", []string{MilestoneStatusApproved, MilestoneStatusPending, MilestoneStatusPending}, 2, false, true},
		{"already approved", []string{MilestoneStatusApproved}, 0, false, true},
		{"disputed target", []string{MilestoneStatusDisputed}, 0, false, true},
		{"blocked by earlier dispute", []string{MilestoneStatusDisputed, MilestoneStatusPending}, 1, false, true},
		{"delivered target approvable", []string{MilestoneStatusApproved, MilestoneStatusDelivered}, 1, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			milestones := plan(tt.statuses...)
			ok, found := CanApproveMilestone(milestones, milestones[tt.target].ID)
			if ok != tt.wantOK || found != tt.wantFound {
				t.Errorf("CanApproveMilestone() = (%v, %v), want (%v, %v)", ok, found, tt.wantOK, tt.wantFound)
			}
		})
	}

	t.Run("unknown target", func(t *testing.T) {
		milestones := plan(MilestoneStatusPending)
		ok, found := CanApproveMilestone(milestones, uuid.New())
		if ok || found {
			t.Errorf("CanApproveMilestone(unknown) = (%v, %v), want (false, false)", ok, found)
		}
	})
}

func TestMilestoneSumCents(t *testing.T) {
	milestones := []Milestone{
		{AmountCents: 2500},
		{AmountCents: 2500},
		{AmountCents: 5000},
	}
	if got := MilestoneSumCents(milestones); got != 10000 {
		t.Errorf("MilestoneSumCents = %d, want 10000", got)
	}
	if got := MilestoneSumCents(nil); got != 0 {
		t.Errorf("MilestoneSumCents(nil) = %d, want 0", got)
	}
}

func TestAllMilestonesApproved(t *testing.T) {
	tests := []struct {
		name     string
		statuses []string
		want     bool
	}{
		{"all approved", []string{MilestoneStatusApproved, MilestoneStatusApproved}, true},
		{"one pending", []string{MilestoneStatusApproved, MilestoneStatusPending}, false},
		{"one disputed", []string{MilestoneStatusApproved, MilestoneStatusDisputed}, false},
		{"empty plan", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AllMilestonesApproved(plan(tt.statuses...)); got != tt.want {
				t.Errorf("AllMilestonesApproved = %v, want %v", got, tt.want)
			}
		})
	}
}
