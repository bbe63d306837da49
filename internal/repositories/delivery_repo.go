package repositories

import (
	"context"
	"encoding/json"

	"github.com/freelance-marketplace/backend/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DeliveryRepo stores immutable delivery records and the revision request
// counter rows. Neither table has an update path.
type DeliveryRepo struct {
	q Querier
}

func NewDeliveryRepo(pool *pgxpool.Pool) *DeliveryRepo {
	return &DeliveryRepo{q: pool}
}

func (r *DeliveryRepo) WithTx(tx pgx.Tx) *DeliveryRepo {
	return &DeliveryRepo{q: tx}
}

func (r *DeliveryRepo) CreateDelivery(ctx context.Context, d *models.DeliveryRecord) error {
	fileRefs, _ := json.Marshal(d.FileRefs)
	return r.q.QueryRow(ctx, `
		INSERT INTO deliveries (order_id, delivered_by, title, description, file_refs)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, d.OrderID, d.DeliveredBy, d.Title, d.Description, fileRefs).Scan(&d.ID, &d.CreatedAt)
}

func (r *DeliveryRepo) ListDeliveries(ctx context.Context, orderID uuid.UUID) ([]models.DeliveryRecord, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, order_id, delivered_by, title, description, file_refs, created_at
		FROM deliveries WHERE order_id = $1 ORDER BY created_at ASC
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deliveries []models.DeliveryRecord
	for rows.Next() {
		var d models.DeliveryRecord
		var fileRefs []byte
		if err := rows.Scan(&d.ID, &d.OrderID, &d.DeliveredBy, &d.Title, &d.Description, &fileRefs, &d.CreatedAt); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(fileRefs, &d.FileRefs)
		deliveries = append(deliveries, d)
	}
	return deliveries, rows.Err()
}

func (r *DeliveryRepo) CreateRevisionRequest(ctx context.Context, rr *models.RevisionRequest) error {
	return r.q.QueryRow(ctx, `
		INSERT INTO revision_requests (order_id, requested_by, note, revision_number)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, rr.OrderID, rr.RequestedBy, rr.Note, rr.RevisionNumber).Scan(&rr.ID, &rr.CreatedAt)
}

func (r *DeliveryRepo) ListRevisionRequests(ctx context.Context, orderID uuid.UUID) ([]models.RevisionRequest, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, order_id, requested_by, note, revision_number, created_at
		FROM revision_requests WHERE order_id = $1 ORDER BY revision_number ASC
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reqs []models.RevisionRequest
	for rows.Next() {
		var rr models.RevisionRequest
		if err := rows.Scan(&rr.ID, &rr.OrderID, &rr.RequestedBy, &rr.Note, &rr.RevisionNumber, &rr.CreatedAt); err != nil {
			return nil, err
		}
		reqs = append(reqs, rr)
	}
	return reqs, rows.Err()
}
