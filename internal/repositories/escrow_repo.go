package repositories

import (
	"context"

	"github.com/freelance-marketplace/backend/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type EscrowRepo struct {
	q Querier
}

func NewEscrowRepo(pool *pgxpool.Pool) *EscrowRepo {
	return &EscrowRepo{q: pool}
}

func (r *EscrowRepo) WithTx(tx pgx.Tx) *EscrowRepo {
	return &EscrowRepo{q: tx}
}

// Create opens the zero-held account alongside its order. Funds arrive only
// on confirmed capture.
func (r *EscrowRepo) Create(ctx context.Context, orderID uuid.UUID) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO escrow_accounts (order_id, total_cents, held_cents, released_cents, refunded_cents, status)
		VALUES ($1, 0, 0, 0, 0, $2)
	`, orderID, models.EscrowStatusOpen)
	return err
}

func (r *EscrowRepo) GetByOrderID(ctx context.Context, orderID uuid.UUID) (*models.EscrowAccount, error) {
	var a models.EscrowAccount
	err := r.q.QueryRow(ctx, `
		SELECT order_id, total_cents, held_cents, released_cents, refunded_cents, status, updated_at
		FROM escrow_accounts WHERE order_id = $1
	`, orderID).Scan(&a.OrderID, &a.TotalCents, &a.HeldCents, &a.ReleasedCents, &a.RefundedCents, &a.Status, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// InsertEntry appends one ledger line. Returns false when an entry for the
// same (order, causing event) already exists; the caller must then treat the
// whole mutation as already applied and change nothing.
func (r *EscrowRepo) InsertEntry(ctx context.Context, e *models.EscrowEntry) (bool, error) {
	tag, err := r.q.Exec(ctx, `
		INSERT INTO escrow_entries (order_id, causing_event_id, kind, amount_cents, recipient,
		                            held_before, held_after, released_after, refunded_after)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (order_id, causing_event_id) DO NOTHING
	`, e.OrderID, e.CausingEventID, e.Kind, e.AmountCents, e.Recipient,
		e.HeldBefore, e.HeldAfter, e.ReleasedAfter, e.RefundedAfter)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// UpdateAmounts persists the post-mutation balances computed by the model.
func (r *EscrowRepo) UpdateAmounts(ctx context.Context, a *models.EscrowAccount) error {
	_, err := r.q.Exec(ctx, `
		UPDATE escrow_accounts
		SET total_cents = $1, held_cents = $2, released_cents = $3, refunded_cents = $4, status = $5, updated_at = now()
		WHERE order_id = $6
	`, a.TotalCents, a.HeldCents, a.ReleasedCents, a.RefundedCents, a.Status, a.OrderID)
	return err
}

func (r *EscrowRepo) MarkFrozen(ctx context.Context, orderID uuid.UUID) error {
	_, err := r.q.Exec(ctx, `
		UPDATE escrow_accounts SET status = $1, updated_at = now() WHERE order_id = $2
	`, models.EscrowStatusFrozen, orderID)
	return err
}

func (r *EscrowRepo) ListEntries(ctx context.Context, orderID uuid.UUID) ([]models.EscrowEntry, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, order_id, causing_event_id, kind, amount_cents, recipient,
		       held_before, held_after, released_after, refunded_after, created_at
		FROM escrow_entries WHERE order_id = $1 ORDER BY created_at ASC
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.EscrowEntry
	for rows.Next() {
		var e models.EscrowEntry
		if err := rows.Scan(&e.ID, &e.OrderID, &e.CausingEventID, &e.Kind, &e.AmountCents, &e.Recipient,
			&e.HeldBefore, &e.HeldAfter, &e.ReleasedAfter, &e.RefundedAfter, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
