package repositories

import (
	"context"

	"github.com/freelance-marketplace/backend/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PaymentRepo struct {
	q Querier
}

func NewPaymentRepo(pool *pgxpool.Pool) *PaymentRepo {
	return &PaymentRepo{q: pool}
}

func (r *PaymentRepo) WithTx(tx pgx.Tx) *PaymentRepo {
	return &PaymentRepo{q: tx}
}

func (r *PaymentRepo) Create(ctx context.Context, p *models.PaymentIntentRecord) error {
	return r.q.QueryRow(ctx, `
		INSERT INTO payment_intents (order_id, gateway_reference, client_secret, amount_cents, currency, status, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`, p.OrderID, p.GatewayReference, p.ClientSecret, p.AmountCents, p.Currency, p.Status, p.IdempotencyKey,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
}

func (r *PaymentRepo) GetByOrderID(ctx context.Context, orderID uuid.UUID) (*models.PaymentIntentRecord, error) {
	var p models.PaymentIntentRecord
	err := r.q.QueryRow(ctx, `
		SELECT id, order_id, gateway_reference, client_secret, amount_cents, currency, status, idempotency_key, created_at, updated_at
		FROM payment_intents WHERE order_id = $1
		ORDER BY created_at DESC LIMIT 1
	`, orderID).Scan(&p.ID, &p.OrderID, &p.GatewayReference, &p.ClientSecret, &p.AmountCents, &p.Currency,
		&p.Status, &p.IdempotencyKey, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PaymentRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	_, err := r.q.Exec(ctx, `UPDATE payment_intents SET status = $1, updated_at = now() WHERE id = $2`, status, id)
	return err
}

func (r *PaymentRepo) UpdateStatusByReference(ctx context.Context, gatewayRef, status string) error {
	_, err := r.q.Exec(ctx, `UPDATE payment_intents SET status = $1, updated_at = now() WHERE gateway_reference = $2`, status, gatewayRef)
	return err
}
