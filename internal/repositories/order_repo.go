package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/freelance-marketplace/backend/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const orderColumns = `id, buyer_id, seller_id, package_id, project_id, requirements, status,
	total_amount_cents, currency, revisions_allowed, revision_number, platform_fee_bps,
	cancel_requested_at, delivered_at, created_at, updated_at`

type OrderRepo struct {
	q Querier
}

func NewOrderRepo(pool *pgxpool.Pool) *OrderRepo {
	return &OrderRepo{q: pool}
}

func (r *OrderRepo) WithTx(tx pgx.Tx) *OrderRepo {
	return &OrderRepo{q: tx}
}

func (r *OrderRepo) Create(ctx context.Context, o *models.Order) error {
	return r.q.QueryRow(ctx, `
		INSERT INTO orders (buyer_id, seller_id, package_id, project_id, requirements, status,
		                    total_amount_cents, currency, revisions_allowed, revision_number, platform_fee_bps)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 0, $10)
		RETURNING id, created_at, updated_at
	`, o.BuyerID, o.SellerID, o.PackageID, o.ProjectID, o.Requirements, o.Status,
		o.TotalAmountCents, o.Currency, o.RevisionsAllowed, o.PlatformFeeBPS,
	).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
}

func scanOrder(row pgx.Row) (*models.Order, error) {
	var o models.Order
	err := row.Scan(&o.ID, &o.BuyerID, &o.SellerID, &o.PackageID, &o.ProjectID, &o.Requirements, &o.Status,
		&o.TotalAmountCents, &o.Currency, &o.RevisionsAllowed, &o.RevisionNumber, &o.PlatformFeeBPS,
		&o.CancelRequestedAt, &o.DeliveredAt, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *OrderRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return scanOrder(r.q.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
}

// GetByIDForUpdate takes the per-order exclusive lock. Only meaningful inside
// a transaction; every state transition unit starts here.
func (r *OrderRepo) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return scanOrder(r.q.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id))
}

func (r *OrderRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	_, err := r.q.Exec(ctx, `UPDATE orders SET status = $1, updated_at = now() WHERE id = $2`, status, id)
	return err
}

func (r *OrderRepo) SetRevisionNumber(ctx context.Context, id uuid.UUID, n int) error {
	_, err := r.q.Exec(ctx, `UPDATE orders SET revision_number = $1, updated_at = now() WHERE id = $2`, n, id)
	return err
}

func (r *OrderRepo) SetCancelRequested(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.q.Exec(ctx, `UPDATE orders SET cancel_requested_at = $1, updated_at = now() WHERE id = $2`, at, id)
	return err
}

func (r *OrderRepo) SetDeliveredAt(ctx context.Context, id uuid.UUID, at *time.Time) error {
	_, err := r.q.Exec(ctx, `UPDATE orders SET delivered_at = $1, updated_at = now() WHERE id = $2`, at, id)
	return err
}

type OrderFilter struct {
	BuyerID  *uuid.UUID
	SellerID *uuid.UUID
	Status   *string
	Limit    int
	Offset   int
}

func (r *OrderRepo) List(ctx context.Context, f OrderFilter) ([]models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders`
	args := []any{}
	argIdx := 1
	where := []string{}

	if f.BuyerID != nil {
		where = append(where, fmt.Sprintf("buyer_id = $%d", argIdx))
		args = append(args, *f.BuyerID)
		argIdx++
	}
	if f.SellerID != nil {
		where = append(where, fmt.Sprintf("seller_id = $%d", argIdx))
		args = append(args, *f.SellerID)
		argIdx++
	}
	if f.Status != nil {
		where = append(where, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, *f.Status)
		argIdx++
	}

	if len(where) > 0 {
		query += " WHERE "
		for i, w := range where {
			if i > 0 {
				query += " AND "
			}
			query += w
		}
	}

	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, limit, f.Offset)

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		var o models.Order
		if err := rows.Scan(&o.ID, &o.BuyerID, &o.SellerID, &o.PackageID, &o.ProjectID, &o.Requirements, &o.Status,
			&o.TotalAmountCents, &o.Currency, &o.RevisionsAllowed, &o.RevisionNumber, &o.PlatformFeeBPS,
			&o.CancelRequestedAt, &o.DeliveredAt, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// GetStaleDelivered returns delivered orders with no buyer action for longer
// than timeoutSeconds; the worker auto-approves these.
func (r *OrderRepo) GetStaleDelivered(ctx context.Context, timeoutSeconds int) ([]models.Order, error) {
	return r.listByAge(ctx, models.OrderStatusDelivered, "delivered_at", timeoutSeconds)
}

// GetStaleCreated returns created orders that never got funded within
// timeoutSeconds.
func (r *OrderRepo) GetStaleCreated(ctx context.Context, timeoutSeconds int) ([]models.Order, error) {
	return r.listByAge(ctx, models.OrderStatusCreated, "created_at", timeoutSeconds)
}

func (r *OrderRepo) listByAge(ctx context.Context, status, tsColumn string, timeoutSeconds int) ([]models.Order, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE status = $1 AND `+tsColumn+` < now() - ($2 || ' seconds')::interval
	`, status, fmt.Sprintf("%d", timeoutSeconds))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		var o models.Order
		if err := rows.Scan(&o.ID, &o.BuyerID, &o.SellerID, &o.PackageID, &o.ProjectID, &o.Requirements, &o.Status,
			&o.TotalAmountCents, &o.Currency, &o.RevisionsAllowed, &o.RevisionNumber, &o.PlatformFeeBPS,
			&o.CancelRequestedAt, &o.DeliveredAt, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}
