package repositories

import (
	"context"
	"testing"

	"github.com/freelance-marketplace/backend/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestInsertEntryReplay(t *testing.T) {
	ctx := context.Background()
	entry := &models.EscrowEntry{
		OrderID:        uuid.New(),
		CausingEventID: "evt_1",
		Kind:           models.EntryHold,
		AmountCents:    10000,
	}

	r := &EscrowRepo{q: &fakeQuerier{tag: pgconn.NewCommandTag("INSERT 0 1")}}
	inserted, err := r.InsertEntry(ctx, entry)
	if err != nil {
		t.Fatalf("InsertEntry failed: %v", err)
	}
	if !inserted {
		t.Error("first entry for a causing event should insert")
	}

	// A second entry for the same (order, causing event) hits the unique
	// constraint and yields a zero-row tag; the caller must treat the whole
	// movement as already applied and leave balances alone.
	r = &EscrowRepo{q: &fakeQuerier{tag: pgconn.NewCommandTag("INSERT 0 0")}}
	inserted, err = r.InsertEntry(ctx, entry)
	if err != nil {
		t.Fatalf("InsertEntry on replay failed: %v", err)
	}
	if inserted {
		t.Error("replayed causing event reported as newly inserted")
	}
}
