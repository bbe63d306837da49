package handlers

import (
	"errors"

	"github.com/freelance-marketplace/backend/internal/apperrors"
	"github.com/freelance-marketplace/backend/internal/http/dto"
	"github.com/freelance-marketplace/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const signatureHeader = "Gateway-Signature"

// WebhookHandler terminates the gateway's webhook deliveries. Unauthenticated
// route: the HMAC signature is the authentication.
type WebhookHandler struct {
	processor *services.WebhookProcessor
	log       *zap.Logger
}

func NewWebhookHandler(processor *services.WebhookProcessor, log *zap.Logger) *WebhookHandler {
	return &WebhookHandler{processor: processor, log: log}
}

// HandleGatewayWebhook acknowledges with 200 only once the delivery has been
// durably applied or durably dead-lettered; a 5xx makes the gateway retry.
func (h *WebhookHandler) HandleGatewayWebhook(c *fiber.Ctx) error {
	body := c.Body()
	sig := c.Get(signatureHeader)
	if sig == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "missing signature"})
	}

	if err := h.processor.Process(c.Context(), sig, body); err != nil {
		if errors.Is(err, apperrors.ErrInvalidSignature) {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid signature"})
		}
		h.log.Error("webhook processing failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "processing failed"})
	}

	return c.JSON(dto.SuccessResponse{OK: true})
}
