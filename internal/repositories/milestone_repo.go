package repositories

import (
	"context"

	"github.com/freelance-marketplace/backend/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type MilestoneRepo struct {
	q Querier
}

func NewMilestoneRepo(pool *pgxpool.Pool) *MilestoneRepo {
	return &MilestoneRepo{q: pool}
}

func (r *MilestoneRepo) WithTx(tx pgx.Tx) *MilestoneRepo {
	return &MilestoneRepo{q: tx}
}

func (r *MilestoneRepo) Create(ctx context.Context, m *models.Milestone) error {
	return r.q.QueryRow(ctx, `
		INSERT INTO milestones (order_id, position, title, amount_cents, status, due_date)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`, m.OrderID, m.Position, m.Title, m.AmountCents, m.Status, m.DueDate).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
}

func (r *MilestoneRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Milestone, error) {
	var m models.Milestone
	err := r.q.QueryRow(ctx, `
		SELECT id, order_id, position, title, amount_cents, status, due_date, created_at, updated_at
		FROM milestones WHERE id = $1
	`, id).Scan(&m.ID, &m.OrderID, &m.Position, &m.Title, &m.AmountCents, &m.Status, &m.DueDate, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ListByOrder returns the plan sorted by position, the order the in-sequence
// approval rule is checked against.
func (r *MilestoneRepo) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Milestone, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, order_id, position, title, amount_cents, status, due_date, created_at, updated_at
		FROM milestones WHERE order_id = $1 ORDER BY position ASC
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var milestones []models.Milestone
	for rows.Next() {
		var m models.Milestone
		if err := rows.Scan(&m.ID, &m.OrderID, &m.Position, &m.Title, &m.AmountCents, &m.Status, &m.DueDate, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		milestones = append(milestones, m)
	}
	return milestones, rows.Err()
}

func (r *MilestoneRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	_, err := r.q.Exec(ctx, `UPDATE milestones SET status = $1, updated_at = now() WHERE id = $2`, status, id)
	return err
}
