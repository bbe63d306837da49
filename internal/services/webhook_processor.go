package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/freelance-marketplace/backend/internal/apperrors"
	"github.com/freelance-marketplace/backend/internal/config"
	"github.com/freelance-marketplace/backend/internal/gateway"
	"github.com/freelance-marketplace/backend/internal/models"
	"github.com/freelance-marketplace/backend/internal/repositories"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// WebhookProcessor ingests gateway notifications. Contract with the gateway:
// we acknowledge with 2xx only after the event has been durably handled or
// durably dead-lettered; anything else makes the gateway redeliver. Bad
// signatures are dropped with 4xx and never retried.
type WebhookProcessor struct {
	orders   *OrderService
	webhooks *repositories.WebhookRepo
	rdb      *redis.Client
	cfg      *config.Config
	log      *zap.Logger
}

func NewWebhookProcessor(orders *OrderService, webhooks *repositories.WebhookRepo, rdb *redis.Client, cfg *config.Config, log *zap.Logger) *WebhookProcessor {
	return &WebhookProcessor{orders: orders, webhooks: webhooks, rdb: rdb, cfg: cfg, log: log}
}

// webhookEnvelope is the gateway's wire format.
type webhookEnvelope struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		OrderID     string  `json:"order_id"`
		AmountCents int64   `json:"amount_cents"`
		Reference   string  `json:"reference"`
		Reason      *string `json:"reason,omitempty"`
	} `json:"data"`
}

func parseGatewayEvent(body []byte) (models.GatewayEvent, error) {
	var env webhookEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return models.GatewayEvent{}, apperrors.Validation("malformed webhook payload: %v", err)
	}
	if env.ID == "" || env.Type == "" {
		return models.GatewayEvent{}, apperrors.Validation("webhook payload missing id or type")
	}
	switch env.Type {
	case models.GatewayEventPaymentSucceeded, models.GatewayEventPaymentFailed, models.GatewayEventChargeRefunded:
	default:
		return models.GatewayEvent{}, apperrors.Validation("unsupported webhook event type %q", env.Type)
	}
	orderID, err := uuid.Parse(env.Data.OrderID)
	if err != nil {
		return models.GatewayEvent{}, apperrors.Validation("webhook payload has invalid order_id")
	}
	return models.GatewayEvent{
		EventID:          env.ID,
		Type:             env.Type,
		OrderID:          orderID,
		AmountCents:      env.Data.AmountCents,
		GatewayReference: env.Data.Reference,
		Reason:           env.Data.Reason,
	}, nil
}

func processedKey(eventID string) string {
	return "webhook:processed:" + eventID
}

// Process verifies, deduplicates, and applies one webhook delivery.
// Signature failures return ErrInvalidSignature (handler maps to 400). A nil
// return means the delivery may be acknowledged: the event was applied,
// recognized as a replay, or dead-lettered for operator redrive. A non-nil
// return other than ErrInvalidSignature means we could not even record the
// failure, and the gateway should redeliver.
func (p *WebhookProcessor) Process(ctx context.Context, signatureHeader string, body []byte) error {
	if err := gateway.VerifySignature(signatureHeader, body, p.cfg.GatewayWebhookSecret, gateway.DefaultSignatureTTL); err != nil {
		p.log.Warn("webhook signature rejected", zap.Error(err))
		return err
	}

	evt, err := parseGatewayEvent(body)
	if err != nil {
		// Authenticated but unusable payload. Dead-letter it so the delivery
		// is not lost, then acknowledge.
		p.log.Error("webhook payload rejected", zap.Error(err))
		return p.deadLetter(ctx, body, "", "", nil, 0, err)
	}

	log := p.log.With(
		zap.String("event_id", evt.EventID),
		zap.String("event_type", evt.Type),
		zap.String("order_id", evt.OrderID.String()),
	)

	// Fast path: redis remembers recently acknowledged events so replays
	// skip the database entirely. The durable check inside the transaction
	// is still authoritative.
	if seen, err := p.rdb.Exists(ctx, processedKey(evt.EventID)).Result(); err == nil && seen > 0 {
		log.Debug("webhook replay short-circuited")
		return nil
	}

	// The redis key expires long before the gateway stops replaying; check the
	// durable set before opening the order transaction.
	if done, err := p.webhooks.IsProcessed(ctx, evt.EventID); err == nil && done {
		log.Debug("webhook replay short-circuited by durable set")
		if err := p.rdb.Set(ctx, processedKey(evt.EventID), 1, p.cfg.ProcessedEventTTL).Err(); err != nil {
			log.Warn("failed to cache processed event id", zap.Error(err))
		}
		return nil
	}

	applyErr := p.applyWithRetry(ctx, log, evt)
	if applyErr == nil || errors.Is(applyErr, errAlreadyProcessed) {
		if err := p.rdb.Set(ctx, processedKey(evt.EventID), 1, p.cfg.ProcessedEventTTL).Err(); err != nil {
			log.Warn("failed to cache processed event id", zap.Error(err))
		}
		return nil
	}

	return p.deadLetter(ctx, body, evt.EventID, evt.Type, &evt.OrderID, p.cfg.WebhookMaxAttempts, applyErr)
}

// applyWithRetry drives HandleGatewayEvent through bounded exponential
// backoff. Validation and state errors are terminal; only infrastructure
// errors are retried.
func (p *WebhookProcessor) applyWithRetry(ctx context.Context, log *zap.Logger, evt models.GatewayEvent) error {
	backoff := p.cfg.WebhookRetryBase
	var lastErr error
	for attempt := 1; attempt <= p.cfg.WebhookMaxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		lastErr = p.orders.HandleGatewayEvent(ctx, evt)
		if lastErr == nil || errors.Is(lastErr, errAlreadyProcessed) {
			return lastErr
		}
		if isTerminalApplyError(lastErr) {
			return lastErr
		}
		log.Warn("webhook apply failed, retrying",
			zap.Int("attempt", attempt),
			zap.Error(lastErr),
		)
	}
	return lastErr
}

func isTerminalApplyError(err error) bool {
	var ve *apperrors.ValidationError
	var sc *apperrors.StateConflictError
	var lv *apperrors.LedgerViolationError
	return errors.As(err, &ve) ||
		errors.As(err, &sc) ||
		errors.As(err, &lv) ||
		errors.Is(err, apperrors.ErrNotFound)
}

// deadLetter records the undeliverable event so the worker (or an operator)
// can redrive it, then lets the caller acknowledge. Returning an error here
// means even the dead-letter insert failed, which is the one case where we
// want the gateway to redeliver.
func (p *WebhookProcessor) deadLetter(ctx context.Context, body []byte, eventID, eventType string, orderID *uuid.UUID, attempts int, cause error) error {
	d := &models.WebhookDeadLetter{
		EventID:    eventID,
		EventType:  eventType,
		OrderID:    orderID,
		Payload:    body,
		FailureMsg: cause.Error(),
		Attempts:   attempts,
	}
	if err := p.webhooks.InsertDeadLetter(ctx, d); err != nil {
		p.log.Error("failed to dead-letter webhook event",
			zap.String("event_id", eventID),
			zap.NamedError("cause", cause),
			zap.Error(err),
		)
		return fmt.Errorf("dead-letter insert failed: %w", err)
	}
	p.log.Error("webhook event dead-lettered",
		zap.String("event_id", eventID),
		zap.String("event_type", eventType),
		zap.Error(cause),
	)
	return nil
}

// RedriveDeadLetters replays dead-lettered events through the normal apply
// path. Entries that still fail stay pending for the next pass; entries that
// were meanwhile applied resolve as replays and are marked done.
func (p *WebhookProcessor) RedriveDeadLetters(ctx context.Context, limit int) {
	letters, err := p.webhooks.ListPendingDeadLetters(ctx, limit)
	if err != nil {
		p.log.Error("failed to list dead letters", zap.Error(err))
		return
	}

	for _, d := range letters {
		evt, err := parseGatewayEvent(d.Payload)
		if err != nil {
			// Permanently malformed; nothing automation can do.
			p.log.Warn("skipping malformed dead letter",
				zap.String("event_id", d.EventID),
				zap.Error(err),
			)
			continue
		}

		applyErr := p.orders.HandleGatewayEvent(ctx, evt)
		if applyErr != nil && !errors.Is(applyErr, errAlreadyProcessed) {
			p.log.Warn("dead letter redrive failed",
				zap.String("event_id", d.EventID),
				zap.Error(applyErr),
			)
			continue
		}

		if err := p.webhooks.MarkRedriveDone(ctx, &d); err != nil {
			p.log.Error("failed to mark dead letter done",
				zap.String("event_id", d.EventID),
				zap.Error(err),
			)
			continue
		}
		p.log.Info("dead letter redriven",
			zap.String("event_id", d.EventID),
			zap.String("event_type", d.EventType),
		)
	}
}
