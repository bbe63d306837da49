package repositories

import (
	"context"

	"github.com/freelance-marketplace/backend/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// WebhookRepo holds the durable processed-event set and the dead-letter log.
// The processed set is what makes at-least-once delivery safe: the row is
// inserted in the same transaction as the mutation it caused.
type WebhookRepo struct {
	q Querier
}

func NewWebhookRepo(pool *pgxpool.Pool) *WebhookRepo {
	return &WebhookRepo{q: pool}
}

func (r *WebhookRepo) WithTx(tx pgx.Tx) *WebhookRepo {
	return &WebhookRepo{q: tx}
}

// MarkProcessed returns false when the event id was already recorded, i.e.
// this delivery is a replay and must be acknowledged without reapplying.
func (r *WebhookRepo) MarkProcessed(ctx context.Context, eventID, eventType string) (bool, error) {
	tag, err := r.q.Exec(ctx, `
		INSERT INTO processed_gateway_events (event_id, event_type)
		VALUES ($1, $2)
		ON CONFLICT (event_id) DO NOTHING
	`, eventID, eventType)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *WebhookRepo) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := r.q.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM processed_gateway_events WHERE event_id = $1)
	`, eventID).Scan(&exists)
	return exists, err
}

func (r *WebhookRepo) InsertDeadLetter(ctx context.Context, d *models.WebhookDeadLetter) error {
	return r.q.QueryRow(ctx, `
		INSERT INTO webhook_dead_letters (event_id, event_type, order_id, payload, failure_msg, attempts)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`, d.EventID, d.EventType, d.OrderID, d.Payload, d.FailureMsg, d.Attempts).Scan(&d.ID, &d.CreatedAt)
}

func (r *WebhookRepo) ListPendingDeadLetters(ctx context.Context, limit int) ([]models.WebhookDeadLetter, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := r.q.Query(ctx, `
		SELECT id, event_id, event_type, order_id, payload, failure_msg, attempts, redrive_done, created_at
		FROM webhook_dead_letters WHERE redrive_done = false
		ORDER BY created_at ASC LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var letters []models.WebhookDeadLetter
	for rows.Next() {
		var d models.WebhookDeadLetter
		if err := rows.Scan(&d.ID, &d.EventID, &d.EventType, &d.OrderID, &d.Payload, &d.FailureMsg, &d.Attempts, &d.RedriveDone, &d.CreatedAt); err != nil {
			return nil, err
		}
		letters = append(letters, d)
	}
	return letters, rows.Err()
}

func (r *WebhookRepo) MarkRedriveDone(ctx context.Context, d *models.WebhookDeadLetter) error {
	_, err := r.q.Exec(ctx, `
		UPDATE webhook_dead_letters SET redrive_done = true WHERE id = $1
	`, d.ID)
	return err
}
