package repositories

import (
	"context"
	"encoding/json"

	"github.com/freelance-marketplace/backend/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EventRepo is the append-only order timeline. No update or delete exists on
// this store.
type EventRepo struct {
	q Querier
}

func NewEventRepo(pool *pgxpool.Pool) *EventRepo {
	return &EventRepo{q: pool}
}

func (r *EventRepo) WithTx(tx pgx.Tx) *EventRepo {
	return &EventRepo{q: tx}
}

func (r *EventRepo) Append(ctx context.Context, e *models.EventRecord) error {
	meta, err := json.Marshal(e.Metadata)
	if err != nil {
		return err
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return r.q.QueryRow(ctx, `
		INSERT INTO order_events (id, order_id, event_type, actor_id, actor_type, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING seq, created_at
	`, e.ID, e.OrderID, e.EventType, e.ActorID, e.ActorType, meta).Scan(&e.Seq, &e.CreatedAt)
}

// ListByOrder returns the full ordered sequence for an order, oldest first,
// so replaying it reconstructs the state path.
func (r *EventRepo) ListByOrder(ctx context.Context, orderID uuid.UUID, limit, offset int) ([]models.EventRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.q.Query(ctx, `
		SELECT id, order_id, seq, event_type, actor_id, actor_type, metadata, created_at
		FROM order_events WHERE order_id = $1
		ORDER BY seq ASC LIMIT $2 OFFSET $3
	`, orderID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.EventRecord
	for rows.Next() {
		var e models.EventRecord
		var meta []byte
		if err := rows.Scan(&e.ID, &e.OrderID, &e.Seq, &e.EventType, &e.ActorID, &e.ActorType, &meta, &e.CreatedAt); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			_ = json.Unmarshal(meta, &e.Metadata)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
