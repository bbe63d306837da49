package repositories

import (
	"context"
	"errors"
	"testing"

	"github.com/freelance-marketplace/backend/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// fakeQuerier satisfies Querier with canned results, enough to exercise the
// conflict-handling paths that depend on the command tag.
type fakeQuerier struct {
	tag pgconn.CommandTag
	err error
	row fakeRow
}

func (f *fakeQuerier) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return f.tag, f.err
}

func (f *fakeQuerier) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("unexpected Query")
}

func (f *fakeQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return f.row
}

type fakeRow struct {
	exists bool
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if b, ok := dest[0].(*bool); ok {
		*b = r.exists
	}
	return nil
}

func TestMarkProcessedReplay(t *testing.T) {
	ctx := context.Background()

	fresh := &WebhookRepo{q: &fakeQuerier{tag: pgconn.NewCommandTag("INSERT 0 1")}}
	inserted, err := fresh.MarkProcessed(ctx, "evt_1", models.GatewayEventPaymentSucceeded)
	if err != nil {
		t.Fatalf("MarkProcessed failed: %v", err)
	}
	if !inserted {
		t.Error("first delivery of an event id should insert")
	}

	// ON CONFLICT DO NOTHING yields a zero-row tag: the id was already
	// recorded and the delivery must be acknowledged without reapplying.
	replay := &WebhookRepo{q: &fakeQuerier{tag: pgconn.NewCommandTag("INSERT 0 0")}}
	inserted, err = replay.MarkProcessed(ctx, "evt_1", models.GatewayEventPaymentSucceeded)
	if err != nil {
		t.Fatalf("MarkProcessed on replay failed: %v", err)
	}
	if inserted {
		t.Error("replayed event id reported as newly inserted")
	}
}

func TestIsProcessed(t *testing.T) {
	ctx := context.Background()

	r := &WebhookRepo{q: &fakeQuerier{row: fakeRow{exists: true}}}
	done, err := r.IsProcessed(ctx, "evt_1")
	if err != nil {
		t.Fatalf("IsProcessed failed: %v", err)
	}
	if !done {
		t.Error("recorded event id reported as unprocessed")
	}

	r = &WebhookRepo{q: &fakeQuerier{row: fakeRow{exists: false}}}
	done, err = r.IsProcessed(ctx, "evt_2")
	if err != nil {
		t.Fatalf("IsProcessed failed: %v", err)
	}
	if done {
		t.Error("unknown event id reported as processed")
	}
}
