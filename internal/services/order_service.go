package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/freelance-marketplace/backend/internal/apperrors"
	"github.com/freelance-marketplace/backend/internal/config"
	"github.com/freelance-marketplace/backend/internal/events"
	"github.com/freelance-marketplace/backend/internal/gateway"
	"github.com/freelance-marketplace/backend/internal/models"
	"github.com/freelance-marketplace/backend/internal/repositories"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// OrderService owns the per-order lifecycle: it validates actor-driven
// transitions, moves escrow funds, and appends the timeline. Every mutation
// unit (transition + ledger change + event append) runs inside one pgx
// transaction holding the order row lock, so concurrent buyer/seller actions
// and webhooks serialize per order while unrelated orders proceed in
// parallel.
type OrderService struct {
	pool       *pgxpool.Pool
	orders     *repositories.OrderRepo
	escrow     *repositories.EscrowRepo
	milestones *repositories.MilestoneRepo
	deliveries *repositories.DeliveryRepo
	payments   *repositories.PaymentRepo
	events     *repositories.EventRepo
	webhooks   *repositories.WebhookRepo
	gateway    *gateway.Client
	publisher  events.Publisher
	cfg        *config.Config
	log        *zap.Logger
}

func NewOrderService(
	pool *pgxpool.Pool,
	orders *repositories.OrderRepo,
	escrow *repositories.EscrowRepo,
	milestones *repositories.MilestoneRepo,
	deliveries *repositories.DeliveryRepo,
	payments *repositories.PaymentRepo,
	eventRepo *repositories.EventRepo,
	webhooks *repositories.WebhookRepo,
	gw *gateway.Client,
	publisher events.Publisher,
	cfg *config.Config,
	log *zap.Logger,
) *OrderService {
	return &OrderService{
		pool:       pool,
		orders:     orders,
		escrow:     escrow,
		milestones: milestones,
		deliveries: deliveries,
		payments:   payments,
		events:     eventRepo,
		webhooks:   webhooks,
		gateway:    gw,
		publisher:  publisher,
		cfg:        cfg,
		log:        log,
	}
}

// errAlreadyProcessed signals a webhook replay caught by the durable dedup
// set; the caller acknowledges without reapplying.
var errAlreadyProcessed = errors.New("gateway event already processed")

// ---- transaction scaffolding ----

// withOrder runs fn under the order's exclusive row lock and publishes the
// collected stream events only after the transaction commits, so subscribers
// never observe state that was rolled back.
func (s *OrderService) withOrder(ctx context.Context, orderID uuid.UUID, fn func(tx pgx.Tx, o *models.Order, pub *[]events.Event) error) error {
	var pub []events.Event

	err := func() error {
		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return err
		}
		defer tx.Rollback(ctx)

		o, err := s.orders.WithTx(tx).GetByIDForUpdate(ctx, orderID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return apperrors.ErrNotFound
			}
			return err
		}
		if err := fn(tx, o, &pub); err != nil {
			return err
		}
		return tx.Commit(ctx)
	}()

	if err != nil {
		var lv *apperrors.LedgerViolationError
		if errors.As(err, &lv) {
			s.forceFreeze(ctx, orderID, lv.Detail)
		}
		return err
	}

	for _, e := range pub {
		if perr := s.publisher.Publish(ctx, events.StreamOrders, e); perr != nil {
			s.log.Warn("failed to publish event", zap.String("type", e.Type), zap.Error(perr))
		}
	}
	return nil
}

func (s *OrderService) appendEvent(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, eventType string, actorID *uuid.UUID, actorType string, meta map[string]any) (*models.EventRecord, error) {
	rec := &models.EventRecord{
		ID:        uuid.New(),
		OrderID:   orderID,
		EventType: eventType,
		ActorID:   actorID,
		ActorType: actorType,
		Metadata:  meta,
	}
	if err := s.events.WithTx(tx).Append(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// transition validates and performs a status change with its timeline entry.
func (s *OrderService) transition(ctx context.Context, tx pgx.Tx, o *models.Order, newStatus string, actorID *uuid.UUID, actorType, eventType string, meta map[string]any, pub *[]events.Event) (*models.EventRecord, error) {
	if !models.IsValidTransition(o.Status, newStatus) {
		return nil, &apperrors.StateConflictError{OrderID: o.ID, Current: o.Status, Attempted: newStatus}
	}

	oldStatus := o.Status
	if err := s.orders.WithTx(tx).UpdateStatus(ctx, o.ID, newStatus); err != nil {
		return nil, err
	}
	o.Status = newStatus

	if meta == nil {
		meta = map[string]any{}
	}
	meta["old_status"] = oldStatus
	meta["new_status"] = newStatus

	rec, err := s.appendEvent(ctx, tx, o.ID, eventType, actorID, actorType, meta)
	if err != nil {
		return nil, err
	}

	*pub = append(*pub, events.Event{
		Type: events.EventOrderStatusChanged,
		Payload: map[string]any{
			"order_id":   o.ID.String(),
			"buyer_id":   o.BuyerID.String(),
			"seller_id":  o.SellerID.String(),
			"old_status": oldStatus,
			"new_status": newStatus,
			"event_type": eventType,
		},
	})
	return rec, nil
}

// applyEscrow performs one ledger mutation idempotently per causing event.
// kind is hold/release/refund; amount==0 on release/refund means the full
// remaining held balance. Returns the amount actually moved; 0 with nil error
// means the causing event was already applied.
func (s *OrderService) applyEscrow(ctx context.Context, tx pgx.Tx, o *models.Order, kind string, amount int64, causingEventID string, recipient *string, actorID *uuid.UUID, actorType string, pub *[]events.Event) (int64, error) {
	repo := s.escrow.WithTx(tx)
	acct, err := repo.GetByOrderID(ctx, o.ID)
	if err != nil {
		return 0, err
	}

	heldBefore := acct.HeldCents

	var moved int64
	switch kind {
	case models.EntryHold:
		if err := acct.Hold(amount); err != nil {
			return 0, &apperrors.LedgerViolationError{OrderID: o.ID, Detail: err.Error()}
		}
		moved = amount
	case models.EntryRelease:
		moved, err = acct.Release(amount)
	case models.EntryRefund:
		moved, err = acct.Refund(amount)
	default:
		return 0, fmt.Errorf("unknown escrow entry kind %q", kind)
	}
	if err != nil {
		if errors.Is(err, models.ErrAmountExceedsHeld) {
			return 0, apperrors.ErrInsufficientHeldFunds
		}
		return 0, &apperrors.LedgerViolationError{OrderID: o.ID, Detail: err.Error()}
	}

	entry := &models.EscrowEntry{
		OrderID:        o.ID,
		CausingEventID: causingEventID,
		Kind:           kind,
		AmountCents:    moved,
		Recipient:      recipient,
		HeldBefore:     heldBefore,
		HeldAfter:      acct.HeldCents,
		ReleasedAfter:  acct.ReleasedCents,
		RefundedAfter:  acct.RefundedCents,
	}
	inserted, err := repo.InsertEntry(ctx, entry)
	if err != nil {
		return 0, err
	}
	if !inserted {
		// Replay of the same causing event: leave balances untouched.
		return 0, nil
	}

	if err := repo.UpdateAmounts(ctx, acct); err != nil {
		return 0, err
	}

	meta := map[string]any{
		"amount_cents":   moved,
		"total_cents":    acct.TotalCents,
		"held_before":    heldBefore,
		"held_after":     acct.HeldCents,
		"released_after": acct.ReleasedCents,
		"refunded_after": acct.RefundedCents,
	}
	eventType := models.EventEscrowHeld
	switch kind {
	case models.EntryRelease:
		eventType = models.EventEscrowReleased
		fee := o.PlatformFeeCents(moved)
		meta["platform_fee_cents"] = fee
		meta["seller_net_cents"] = moved - fee
	case models.EntryRefund:
		eventType = models.EventEscrowRefunded
	}
	if _, err := s.appendEvent(ctx, tx, o.ID, eventType, actorID, actorType, meta); err != nil {
		return 0, err
	}

	*pub = append(*pub, events.Event{
		Type: events.EventEscrowMovement,
		Payload: map[string]any{
			"order_id":     o.ID.String(),
			"kind":         kind,
			"amount_cents": moved,
			"held_after":   acct.HeldCents,
		},
	})
	return moved, nil
}

// forceFreeze halts an order whose ledger mutation would have broken the
// conservation invariant. Runs in its own transaction because the violating
// one has already been rolled back. The system never auto-corrects ledger
// state; an operator has to reconcile by hand.
func (s *OrderService) forceFreeze(ctx context.Context, orderID uuid.UUID, detail string) {
	s.log.Error("escrow invariant violated, freezing order; operator attention required",
		zap.String("order_id", orderID.String()),
		zap.String("detail", detail),
	)

	err := s.withOrderNoFreeze(ctx, orderID, func(tx pgx.Tx, o *models.Order, pub *[]events.Event) error {
		if models.IsTerminalStatus(o.Status) {
			return nil
		}
		if _, err := s.transition(ctx, tx, o, models.OrderStatusFrozen, nil, models.ActorSystem, models.EventOrderFrozen, map[string]any{"detail": detail}, pub); err != nil {
			return err
		}
		return s.escrow.WithTx(tx).MarkFrozen(ctx, o.ID)
	})
	if err != nil {
		s.log.Error("failed to freeze order", zap.String("order_id", orderID.String()), zap.Error(err))
		return
	}

	_ = s.publisher.Publish(ctx, events.StreamOrders, events.Event{
		Type:    events.EventOperatorAlert,
		Payload: map[string]any{"order_id": orderID.String(), "detail": detail},
	})
}

// withOrderNoFreeze is withOrder minus the freeze-on-violation hook, to keep
// forceFreeze from recursing.
func (s *OrderService) withOrderNoFreeze(ctx context.Context, orderID uuid.UUID, fn func(tx pgx.Tx, o *models.Order, pub *[]events.Event) error) error {
	var pub []events.Event
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	o, err := s.orders.WithTx(tx).GetByIDForUpdate(ctx, orderID)
	if err != nil {
		return err
	}
	if err := fn(tx, o, &pub); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	for _, e := range pub {
		_ = s.publisher.Publish(ctx, events.StreamOrders, e)
	}
	return nil
}

// ---- order creation and payment ----

type MilestoneInput struct {
	Title       string
	AmountCents int64
	DueDate     *time.Time
}

type CreateOrderInput struct {
	SellerID         uuid.UUID
	PackageID        *uuid.UUID
	ProjectID        *uuid.UUID
	Requirements     *string
	TotalAmountCents int64
	Currency         string
	RevisionsAllowed int
	Milestones       []MilestoneInput
}

// CreateOrder opens an order in created state with its zero-held escrow
// account and, for project engagements, the milestone plan. Money arrives
// only through the capture webhook.
func (s *OrderService) CreateOrder(ctx context.Context, buyerID uuid.UUID, in CreateOrderInput) (*models.Order, error) {
	if in.SellerID == uuid.Nil {
		return nil, apperrors.Validation("seller_id is required")
	}
	if in.SellerID == buyerID {
		return nil, apperrors.Validation("buyer and seller must be different users")
	}
	if in.TotalAmountCents <= 0 {
		return nil, apperrors.Validation("total_amount_cents must be positive")
	}
	if in.PackageID == nil && in.ProjectID == nil {
		return nil, apperrors.Validation("either package_id or project_id is required")
	}
	if in.RevisionsAllowed < 0 {
		return nil, apperrors.Validation("revisions_allowed must not be negative")
	}
	if len(in.Milestones) > 0 {
		var sum int64
		for _, m := range in.Milestones {
			if m.AmountCents <= 0 {
				return nil, apperrors.Validation("milestone amounts must be positive")
			}
			sum += m.AmountCents
		}
		if sum != in.TotalAmountCents {
			return nil, apperrors.Validation("milestone amounts must sum to the order total (%d != %d)", sum, in.TotalAmountCents)
		}
	}

	currency := in.Currency
	if currency == "" {
		currency = s.cfg.DefaultCurrency
	}

	order := &models.Order{
		BuyerID:          buyerID,
		SellerID:         in.SellerID,
		PackageID:        in.PackageID,
		ProjectID:        in.ProjectID,
		Requirements:     in.Requirements,
		Status:           models.OrderStatusCreated,
		TotalAmountCents: in.TotalAmountCents,
		Currency:         currency,
		RevisionsAllowed: in.RevisionsAllowed,
		PlatformFeeBPS:   s.cfg.PlatformFeeBPS,
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if err := s.orders.WithTx(tx).Create(ctx, order); err != nil {
		return nil, err
	}
	if err := s.escrow.WithTx(tx).Create(ctx, order.ID); err != nil {
		return nil, err
	}
	for i, m := range in.Milestones {
		ms := &models.Milestone{
			OrderID:     order.ID,
			Position:    i + 1,
			Title:       m.Title,
			AmountCents: m.AmountCents,
			Status:      models.MilestoneStatusPending,
			DueDate:     m.DueDate,
		}
		if err := s.milestones.WithTx(tx).Create(ctx, ms); err != nil {
			return nil, err
		}
	}
	if _, err := s.appendEvent(ctx, tx, order.ID, models.EventOrderCreated, &buyerID, models.ActorBuyer, map[string]any{
		"new_status":         models.OrderStatusCreated,
		"total_amount_cents": order.TotalAmountCents,
		"currency":           order.Currency,
		"milestones":         len(in.Milestones),
	}); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	_ = s.publisher.Publish(ctx, events.StreamOrders, events.Event{
		Type: events.EventOrderStatusChanged,
		Payload: map[string]any{
			"order_id":   order.ID.String(),
			"buyer_id":   order.BuyerID.String(),
			"seller_id":  order.SellerID.String(),
			"new_status": models.OrderStatusCreated,
			"event_type": models.EventOrderCreated,
		},
	})
	return order, nil
}

// ConfirmPayment starts the capture flow and returns the gateway reference
// the buyer-side client completes against. Idempotent: a pending intent for
// the order is returned as-is rather than recreated.
func (s *OrderService) ConfirmPayment(ctx context.Context, orderID, actorID uuid.UUID) (*models.PaymentIntentRecord, error) {
	o, err := s.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.BuyerID != actorID {
		return nil, apperrors.ErrForbidden
	}
	if o.Status != models.OrderStatusCreated {
		return nil, &apperrors.StateConflictError{OrderID: o.ID, Current: o.Status}
	}

	if existing, err := s.payments.GetByOrderID(ctx, orderID); err == nil && existing.Status == models.IntentStatusPending {
		return existing, nil
	}

	idemKey := fmt.Sprintf("order-%s-capture", o.ID)
	result, err := s.gateway.CreateIntent(ctx, gateway.CreateIntentRequest{
		OrderID:        o.ID.String(),
		AmountCents:    o.TotalAmountCents,
		Currency:       o.Currency,
		IdempotencyKey: idemKey,
	})
	if err != nil {
		return nil, err
	}

	intent := &models.PaymentIntentRecord{
		OrderID:          o.ID,
		GatewayReference: result.Reference,
		ClientSecret:     result.ClientSecret,
		AmountCents:      o.TotalAmountCents,
		Currency:         o.Currency,
		Status:           models.IntentStatusPending,
		IdempotencyKey:   idemKey,
	}
	if err := s.payments.Create(ctx, intent); err != nil {
		return nil, err
	}
	return intent, nil
}

// ---- seller actions ----

// Acknowledge is the seller explicitly starting work on a funded order.
func (s *OrderService) Acknowledge(ctx context.Context, orderID, actorID uuid.UUID) error {
	return s.withOrder(ctx, orderID, func(tx pgx.Tx, o *models.Order, pub *[]events.Event) error {
		if o.SellerID != actorID {
			return apperrors.ErrForbidden
		}
		_, err := s.transition(ctx, tx, o, models.OrderStatusInProgress, &actorID, models.ActorSeller, models.EventOrderStarted, nil, pub)
		return err
	})
}

type DeliveryInput struct {
	Title       string
	Description *string
	FileRefs    []string
}

// Deliver records the seller's work and moves the order to delivered.
// Delivering straight from funded implicitly acknowledges the order first,
// with a system-actor started event so the timeline still shows the full
// path.
func (s *OrderService) Deliver(ctx context.Context, orderID, actorID uuid.UUID, in DeliveryInput) (*models.DeliveryRecord, error) {
	if in.Title == "" {
		return nil, apperrors.Validation("title is required")
	}

	var record *models.DeliveryRecord
	err := s.withOrder(ctx, orderID, func(tx pgx.Tx, o *models.Order, pub *[]events.Event) error {
		if o.SellerID != actorID {
			return apperrors.ErrForbidden
		}

		if o.Status == models.OrderStatusFunded {
			if _, err := s.transition(ctx, tx, o, models.OrderStatusInProgress, nil, models.ActorSystem, models.EventOrderStarted, nil, pub); err != nil {
				return err
			}
		}
		if o.Status != models.OrderStatusInProgress && o.Status != models.OrderStatusRevisionRequested {
			return &apperrors.StateConflictError{OrderID: o.ID, Current: o.Status, Attempted: models.OrderStatusDelivered}
		}

		record = &models.DeliveryRecord{
			OrderID:     o.ID,
			DeliveredBy: actorID,
			Title:       in.Title,
			Description: in.Description,
			FileRefs:    in.FileRefs,
		}
		if err := s.deliveries.WithTx(tx).CreateDelivery(ctx, record); err != nil {
			return err
		}

		now := time.Now()
		if err := s.orders.WithTx(tx).SetDeliveredAt(ctx, o.ID, &now); err != nil {
			return err
		}

		_, err := s.transition(ctx, tx, o, models.OrderStatusDelivered, &actorID, models.ActorSeller, models.EventOrderDelivered, map[string]any{
			"delivery_id": record.ID.String(),
			"title":       record.Title,
		}, pub)
		return err
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// ---- buyer actions ----

// RequestRevision opens another rework cycle, bounded by the purchased
// package's allowance. Beyond the limit the order stays delivered and the
// revision number does not move.
func (s *OrderService) RequestRevision(ctx context.Context, orderID, actorID uuid.UUID, note string) error {
	return s.withOrder(ctx, orderID, func(tx pgx.Tx, o *models.Order, pub *[]events.Event) error {
		if o.BuyerID != actorID {
			return apperrors.ErrForbidden
		}
		if o.Status != models.OrderStatusDelivered {
			return &apperrors.StateConflictError{OrderID: o.ID, Current: o.Status, Attempted: models.OrderStatusRevisionRequested}
		}
		if err := CheckRevisionAllowed(o.RevisionsAllowed, o.RevisionNumber); err != nil {
			return err
		}

		next := o.RevisionNumber + 1
		req := &models.RevisionRequest{
			OrderID:        o.ID,
			RequestedBy:    actorID,
			Note:           note,
			RevisionNumber: next,
		}
		if err := s.deliveries.WithTx(tx).CreateRevisionRequest(ctx, req); err != nil {
			return err
		}
		if err := s.orders.WithTx(tx).SetRevisionNumber(ctx, o.ID, next); err != nil {
			return err
		}
		o.RevisionNumber = next

		_, err := s.transition(ctx, tx, o, models.OrderStatusRevisionRequested, &actorID, models.ActorBuyer, models.EventRevisionRequested, map[string]any{
			"revision_number":    next,
			"revisions_allowed":  o.RevisionsAllowed,
			"revision_remaining": RevisionsRemaining(o.RevisionsAllowed, next),
		}, pub)
		return err
	})
}

// Approve is the buyer's explicit acceptance: the order completes and the
// full remaining held balance is released to the seller. Release is never
// gated on review submission; reviews are a separate, independent operation
// owned by another subsystem.
func (s *OrderService) Approve(ctx context.Context, orderID, actorID uuid.UUID) error {
	return s.withOrder(ctx, orderID, func(tx pgx.Tx, o *models.Order, pub *[]events.Event) error {
		if err := checkBuyerApproval(o, actorID); err != nil {
			return err
		}
		return s.completeAndRelease(ctx, tx, o, &actorID, models.ActorBuyer, pub)
	})
}

// checkBuyerApproval gates explicit acceptance: only the buyer, and only on a
// delivered order. The transition map alone cannot enforce this, since
// completed is also reachable through the admin release resolution and the
// final milestone approval; without the status check a buyer could drain a
// disputed order's held balance.
func checkBuyerApproval(o *models.Order, actorID uuid.UUID) error {
	if o.BuyerID != actorID {
		return apperrors.ErrForbidden
	}
	if o.Status != models.OrderStatusDelivered {
		return &apperrors.StateConflictError{OrderID: o.ID, Current: o.Status, Attempted: models.OrderStatusCompleted}
	}
	return nil
}

// AutoApprove completes a delivered order the buyer never acted on within the
// configured window. Worker-driven, system actor.
func (s *OrderService) AutoApprove(ctx context.Context, orderID uuid.UUID) error {
	return s.withOrder(ctx, orderID, func(tx pgx.Tx, o *models.Order, pub *[]events.Event) error {
		if o.Status != models.OrderStatusDelivered {
			return &apperrors.StateConflictError{OrderID: o.ID, Current: o.Status, Attempted: models.OrderStatusCompleted}
		}
		return s.completeAndRelease(ctx, tx, o, nil, models.ActorSystem, pub)
	})
}

// completeAndRelease transitions to completed and releases exactly the
// remaining held balance. The completion event is the causing event of the
// release, so a replayed completion cannot double-release.
func (s *OrderService) completeAndRelease(ctx context.Context, tx pgx.Tx, o *models.Order, actorID *uuid.UUID, actorType string, pub *[]events.Event) error {
	rec, err := s.transition(ctx, tx, o, models.OrderStatusCompleted, actorID, actorType, models.EventOrderCompleted, nil, pub)
	if err != nil {
		return err
	}

	acct, err := s.escrow.WithTx(tx).GetByOrderID(ctx, o.ID)
	if err != nil {
		return err
	}
	if acct.HeldCents == 0 {
		// Milestone orders may have released everything already.
		return nil
	}

	recipient := o.SellerID.String()
	_, err = s.applyEscrow(ctx, tx, o, models.EntryRelease, 0, rec.ID.String(), &recipient, actorID, actorType, pub)
	return err
}

// ---- disputes ----

// Dispute freezes all further releases until an administrator resolves it.
// Either party can raise it on any funded, non-terminal order.
func (s *OrderService) Dispute(ctx context.Context, orderID, actorID uuid.UUID, reason string) error {
	return s.withOrder(ctx, orderID, func(tx pgx.Tx, o *models.Order, pub *[]events.Event) error {
		actorType, err := partyOf(o, actorID)
		if err != nil {
			return err
		}
		_, err = s.transition(ctx, tx, o, models.OrderStatusDisputed, &actorID, actorType, models.EventOrderDisputed, map[string]any{
			"reason": reason,
		}, pub)
		return err
	})
}

// Dispute resolution outcomes
const (
	ResolutionRelease = "release"
	ResolutionRefund  = "refund"
)

// ResolveDispute is administrator-only. "release" completes the order and
// pays out the remaining held balance; "refund" starts a gateway refund and
// parks the order in refund_pending until the charge.refunded webhook
// confirms it.
func (s *OrderService) ResolveDispute(ctx context.Context, orderID, adminID uuid.UUID, outcome, note string) error {
	if outcome != ResolutionRelease && outcome != ResolutionRefund {
		return apperrors.Validation("outcome must be %q or %q", ResolutionRelease, ResolutionRefund)
	}

	err := s.withOrder(ctx, orderID, func(tx pgx.Tx, o *models.Order, pub *[]events.Event) error {
		if o.Status != models.OrderStatusDisputed {
			return &apperrors.StateConflictError{OrderID: o.ID, Current: o.Status}
		}

		if _, err := s.appendEvent(ctx, tx, o.ID, models.EventDisputeResolved, &adminID, models.ActorAdmin, map[string]any{
			"outcome": outcome,
			"note":    note,
		}); err != nil {
			return err
		}

		if outcome == ResolutionRelease {
			return s.completeAndRelease(ctx, tx, o, &adminID, models.ActorAdmin, pub)
		}
		_, err := s.transition(ctx, tx, o, models.OrderStatusRefundPending, &adminID, models.ActorAdmin, models.EventRefundInitiated, map[string]any{
			"outcome": outcome,
		}, pub)
		return err
	})
	if err != nil {
		return err
	}

	if outcome == ResolutionRefund {
		s.startGatewayRefund(ctx, orderID)
	}
	return nil
}

// ---- cancellation ----

// Cancel before funding is synchronous and final. After funding it initiates
// a gateway refund and the order sits in refund_pending until the webhook
// confirms; the cancel_requested_at marker tells the webhook handler to
// finalize as cancelled rather than refunded.
func (s *OrderService) Cancel(ctx context.Context, orderID, actorID uuid.UUID) error {
	var needRefund bool
	err := s.withOrder(ctx, orderID, func(tx pgx.Tx, o *models.Order, pub *[]events.Event) error {
		actorType, err := partyOf(o, actorID)
		if err != nil {
			return err
		}

		switch o.Status {
		case models.OrderStatusCreated:
			_, err := s.transition(ctx, tx, o, models.OrderStatusCancelled, &actorID, actorType, models.EventOrderCancelled, nil, pub)
			return err
		case models.OrderStatusFunded:
			now := time.Now()
			if err := s.orders.WithTx(tx).SetCancelRequested(ctx, o.ID, now); err != nil {
				return err
			}
			o.CancelRequestedAt = &now
			needRefund = true
			_, err := s.transition(ctx, tx, o, models.OrderStatusRefundPending, &actorID, actorType, models.EventRefundInitiated, map[string]any{
				"cancel_requested": true,
			}, pub)
			return err
		default:
			return &apperrors.StateConflictError{OrderID: o.ID, Current: o.Status, Attempted: models.OrderStatusCancelled}
		}
	})
	if err != nil {
		return err
	}

	if needRefund {
		s.startGatewayRefund(ctx, orderID)
	}
	return nil
}

// startGatewayRefund fires the refund request after the refund_pending
// transition has committed. A failure leaves the order in refund_pending; the
// worker retries initiation until the gateway accepts it.
func (s *OrderService) startGatewayRefund(ctx context.Context, orderID uuid.UUID) {
	intent, err := s.payments.GetByOrderID(ctx, orderID)
	if err != nil {
		s.log.Error("refund initiation: no payment intent", zap.String("order_id", orderID.String()), zap.Error(err))
		return
	}

	// Milestone orders may have released part of the total already; the
	// gateway is asked for exactly the balance still held, never the full
	// captured amount.
	acct, err := s.escrow.GetByOrderID(ctx, orderID)
	if err != nil {
		s.log.Error("refund initiation: no escrow account", zap.String("order_id", orderID.String()), zap.Error(err))
		return
	}
	if acct.HeldCents == 0 {
		s.log.Warn("refund initiation skipped, nothing held", zap.String("order_id", orderID.String()))
		return
	}

	_, err = s.gateway.Refund(ctx, gateway.RefundRequest{
		Reference:      intent.GatewayReference,
		AmountCents:    acct.HeldCents,
		IdempotencyKey: fmt.Sprintf("order-%s-refund", orderID),
	})
	if err != nil {
		s.log.Error("refund initiation failed, will retry from worker",
			zap.String("order_id", orderID.String()),
			zap.Error(err),
		)
	}
}

// RetryPendingRefunds re-initiates gateway refunds for orders stuck in
// refund_pending. Idempotency keys make the retry safe even if the first
// request actually went through.
func (s *OrderService) RetryPendingRefunds(ctx context.Context) {
	status := models.OrderStatusRefundPending
	orders, err := s.orders.List(ctx, repositories.OrderFilter{Status: &status, Limit: 100})
	if err != nil {
		s.log.Error("failed to list refund_pending orders", zap.Error(err))
		return
	}
	for _, o := range orders {
		s.startGatewayRefund(ctx, o.ID)
	}
}

// ---- milestones ----

// ApproveMilestone releases that milestone's amount to the seller. Approvals
// are strictly in position order; approving N while N-1 is not approved fails
// with OutOfSequenceApproval. Approving the last milestone completes the
// order.
func (s *OrderService) ApproveMilestone(ctx context.Context, orderID, milestoneID, actorID uuid.UUID) error {
	return s.withOrder(ctx, orderID, func(tx pgx.Tx, o *models.Order, pub *[]events.Event) error {
		if o.BuyerID != actorID {
			return apperrors.ErrForbidden
		}
		if o.Status != models.OrderStatusInProgress && o.Status != models.OrderStatusDelivered {
			return &apperrors.StateConflictError{OrderID: o.ID, Current: o.Status}
		}

		milestones, err := s.milestones.WithTx(tx).ListByOrder(ctx, o.ID)
		if err != nil {
			return err
		}
		ok, found := models.CanApproveMilestone(milestones, milestoneID)
		if !found {
			return apperrors.ErrNotFound
		}
		if !ok {
			return apperrors.ErrOutOfSequenceApproval
		}

		var target *models.Milestone
		for i := range milestones {
			if milestones[i].ID == milestoneID {
				target = &milestones[i]
				break
			}
		}

		if err := s.milestones.WithTx(tx).UpdateStatus(ctx, target.ID, models.MilestoneStatusApproved); err != nil {
			return err
		}
		target.Status = models.MilestoneStatusApproved

		rec, err := s.appendEvent(ctx, tx, o.ID, models.EventMilestoneApproved, &actorID, models.ActorBuyer, map[string]any{
			"milestone_id": target.ID.String(),
			"position":     target.Position,
			"amount_cents": target.AmountCents,
		})
		if err != nil {
			return err
		}

		recipient := o.SellerID.String()
		if _, err := s.applyEscrow(ctx, tx, o, models.EntryRelease, target.AmountCents, rec.ID.String(), &recipient, &actorID, models.ActorBuyer, pub); err != nil {
			return err
		}

		*pub = append(*pub, events.Event{
			Type: events.EventMilestoneUpdated,
			Payload: map[string]any{
				"order_id":     o.ID.String(),
				"milestone_id": target.ID.String(),
				"status":       models.MilestoneStatusApproved,
			},
		})

		if models.AllMilestonesApproved(milestones) {
			_, err := s.transition(ctx, tx, o, models.OrderStatusCompleted, nil, models.ActorSystem, models.EventOrderCompleted, map[string]any{
				"all_milestones_approved": true,
			}, pub)
			return err
		}
		return nil
	})
}

// DisputeMilestone marks the milestone disputed and escalates the whole
// order to disputed, which blocks approval of any later milestone until an
// administrator resolves it.
func (s *OrderService) DisputeMilestone(ctx context.Context, orderID, milestoneID, actorID uuid.UUID, reason string) error {
	return s.withOrder(ctx, orderID, func(tx pgx.Tx, o *models.Order, pub *[]events.Event) error {
		actorType, err := partyOf(o, actorID)
		if err != nil {
			return err
		}

		ms, err := s.milestones.WithTx(tx).GetByID(ctx, milestoneID)
		if err != nil {
			return apperrors.ErrNotFound
		}
		if ms.OrderID != o.ID {
			return apperrors.ErrNotFound
		}
		if ms.Status == models.MilestoneStatusApproved {
			return &apperrors.StateConflictError{OrderID: o.ID, Current: o.Status}
		}

		if err := s.milestones.WithTx(tx).UpdateStatus(ctx, ms.ID, models.MilestoneStatusDisputed); err != nil {
			return err
		}

		if _, err := s.appendEvent(ctx, tx, o.ID, models.EventMilestoneDisputed, &actorID, actorType, map[string]any{
			"milestone_id": ms.ID.String(),
			"position":     ms.Position,
			"reason":       reason,
		}); err != nil {
			return err
		}

		*pub = append(*pub, events.Event{
			Type: events.EventMilestoneUpdated,
			Payload: map[string]any{
				"order_id":     o.ID.String(),
				"milestone_id": ms.ID.String(),
				"status":       models.MilestoneStatusDisputed,
			},
		})

		_, err = s.transition(ctx, tx, o, models.OrderStatusDisputed, &actorID, actorType, models.EventOrderDisputed, map[string]any{
			"milestone_id": ms.ID.String(),
			"reason":       reason,
		}, pub)
		return err
	})
}

// ---- gateway-driven mutations (called by the webhook processor) ----

// HandleGatewayEvent applies one deduplicated gateway notification. The
// durable processed-set row is inserted in the same transaction as the
// mutation, so a replayed event id can never reapply.
func (s *OrderService) HandleGatewayEvent(ctx context.Context, evt models.GatewayEvent) error {
	switch evt.Type {
	case models.GatewayEventPaymentSucceeded:
		return s.handleFundingSucceeded(ctx, evt)
	case models.GatewayEventPaymentFailed:
		return s.handleFundingFailed(ctx, evt)
	case models.GatewayEventChargeRefunded:
		return s.handleChargeRefunded(ctx, evt)
	default:
		return fmt.Errorf("unknown gateway event type %q", evt.Type)
	}
}

func (s *OrderService) markProcessed(ctx context.Context, tx pgx.Tx, evt models.GatewayEvent) error {
	inserted, err := s.webhooks.WithTx(tx).MarkProcessed(ctx, evt.EventID, evt.Type)
	if err != nil {
		return err
	}
	if !inserted {
		return errAlreadyProcessed
	}
	return nil
}

// handleFundingSucceeded is the only path into funded: confirmed capture
// credits the escrow hold and advances the order. Never triggered by direct
// user action.
func (s *OrderService) handleFundingSucceeded(ctx context.Context, evt models.GatewayEvent) error {
	return s.withOrder(ctx, evt.OrderID, func(tx pgx.Tx, o *models.Order, pub *[]events.Event) error {
		if err := s.markProcessed(ctx, tx, evt); err != nil {
			return err
		}

		if err := checkFundingApplies(o); err != nil {
			return err
		}
		if evt.AmountCents != o.TotalAmountCents {
			return fmt.Errorf("captured amount %d does not match order total %d", evt.AmountCents, o.TotalAmountCents)
		}

		if _, err := s.applyEscrow(ctx, tx, o, models.EntryHold, evt.AmountCents, evt.EventID, nil, nil, models.ActorGateway, pub); err != nil {
			return err
		}

		if err := s.payments.WithTx(tx).UpdateStatusByReference(ctx, evt.GatewayReference, models.IntentStatusSucceeded); err != nil {
			return err
		}

		_, err := s.transition(ctx, tx, o, models.OrderStatusFunded, nil, models.ActorGateway, models.EventOrderFunded, map[string]any{
			"gateway_reference": evt.GatewayReference,
			"amount_cents":      evt.AmountCents,
		}, pub)
		return err
	})
}

// checkFundingApplies rejects capture outcomes for orders past the funding
// stage. The dedup set absorbs true replays of one event id; a distinct stale
// gateway event arriving after the order already funded must dead-letter
// instead of mutating the intent or the timeline.
func checkFundingApplies(o *models.Order) error {
	if o.Status != models.OrderStatusCreated {
		return &apperrors.StateConflictError{OrderID: o.ID, Current: o.Status}
	}
	return nil
}

// handleFundingFailed records the terminal capture failure; the order stays
// in created so the buyer can retry with a fresh intent.
func (s *OrderService) handleFundingFailed(ctx context.Context, evt models.GatewayEvent) error {
	return s.withOrder(ctx, evt.OrderID, func(tx pgx.Tx, o *models.Order, pub *[]events.Event) error {
		if err := s.markProcessed(ctx, tx, evt); err != nil {
			return err
		}
		if err := checkFundingApplies(o); err != nil {
			return err
		}

		if err := s.payments.WithTx(tx).UpdateStatusByReference(ctx, evt.GatewayReference, models.IntentStatusFailed); err != nil {
			return err
		}

		meta := map[string]any{"gateway_reference": evt.GatewayReference}
		if evt.Reason != nil {
			meta["reason"] = *evt.Reason
		}
		if _, err := s.appendEvent(ctx, tx, o.ID, models.EventFundingFailed, nil, models.ActorGateway, meta); err != nil {
			return err
		}

		*pub = append(*pub, events.Event{
			Type: events.EventOrderStatusChanged,
			Payload: map[string]any{
				"order_id":   o.ID.String(),
				"buyer_id":   o.BuyerID.String(),
				"seller_id":  o.SellerID.String(),
				"new_status": o.Status,
				"event_type": models.EventFundingFailed,
			},
		})
		return nil
	})
}

// handleChargeRefunded finalizes a pending refund: the held balance moves to
// refunded and the order settles as cancelled (buyer/seller cancellation) or
// refunded (dispute resolution).
func (s *OrderService) handleChargeRefunded(ctx context.Context, evt models.GatewayEvent) error {
	return s.withOrder(ctx, evt.OrderID, func(tx pgx.Tx, o *models.Order, pub *[]events.Event) error {
		if err := s.markProcessed(ctx, tx, evt); err != nil {
			return err
		}

		if o.Status != models.OrderStatusRefundPending {
			return fmt.Errorf("refund confirmation for order in state %q", o.Status)
		}

		if _, err := s.applyEscrow(ctx, tx, o, models.EntryRefund, 0, evt.EventID, nil, nil, models.ActorGateway, pub); err != nil {
			return err
		}

		if err := s.payments.WithTx(tx).UpdateStatusByReference(ctx, evt.GatewayReference, models.IntentStatusRefunded); err != nil {
			return err
		}

		finalStatus := models.OrderStatusRefunded
		eventType := models.EventOrderRefunded
		if o.CancelRequestedAt != nil {
			finalStatus = models.OrderStatusCancelled
			eventType = models.EventOrderCancelled
		}
		_, err := s.transition(ctx, tx, o, finalStatus, nil, models.ActorGateway, eventType, map[string]any{
			"gateway_reference": evt.GatewayReference,
		}, pub)
		return err
	})
}

// ---- reads ----

func (s *OrderService) getOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return o, nil
}

func (s *OrderService) GetOrder(ctx context.Context, id uuid.UUID) (*models.OrderWithMilestones, error) {
	o, err := s.getOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	milestones, err := s.milestones.ListByOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	return &models.OrderWithMilestones{Order: *o, Milestones: milestones}, nil
}

func (s *OrderService) ListOrders(ctx context.Context, f repositories.OrderFilter) ([]models.Order, error) {
	return s.orders.List(ctx, f)
}

func (s *OrderService) GetTimeline(ctx context.Context, orderID uuid.UUID, limit, offset int) ([]models.EventRecord, error) {
	return s.events.ListByOrder(ctx, orderID, limit, offset)
}

func (s *OrderService) GetEscrow(ctx context.Context, orderID uuid.UUID) (*models.EscrowAccount, []models.EscrowEntry, error) {
	acct, err := s.escrow.GetByOrderID(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, apperrors.ErrNotFound
		}
		return nil, nil, err
	}
	entries, err := s.escrow.ListEntries(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	return acct, entries, nil
}

func (s *OrderService) ListDeliveries(ctx context.Context, orderID uuid.UUID) ([]models.DeliveryRecord, error) {
	return s.deliveries.ListDeliveries(ctx, orderID)
}

func (s *OrderService) ListMilestones(ctx context.Context, orderID uuid.UUID) ([]models.Milestone, error) {
	return s.milestones.ListByOrder(ctx, orderID)
}

// partyOf identifies which side of the order the actor is, rejecting
// everyone else.
func partyOf(o *models.Order, actorID uuid.UUID) (string, error) {
	switch actorID {
	case o.BuyerID:
		return models.ActorBuyer, nil
	case o.SellerID:
		return models.ActorSeller, nil
	default:
		return "", apperrors.ErrForbidden
	}
}
