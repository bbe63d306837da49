package handlers

import (
	"errors"

	"github.com/freelance-marketplace/backend/internal/apperrors"
	"github.com/freelance-marketplace/backend/internal/http/dto"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// respondError maps domain errors onto HTTP statuses. State conflicts carry
// the order's current status so clients can resync without a second request.
func respondError(c *fiber.Ctx, log *zap.Logger, err error) error {
	var ve *apperrors.ValidationError
	var sc *apperrors.StateConflictError
	var ge *apperrors.GatewayError
	var lv *apperrors.LedgerViolationError

	switch {
	case errors.As(err, &ve):
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: ve.Msg})
	case errors.Is(err, apperrors.ErrInvalidSignature):
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid signature"})
	case errors.Is(err, apperrors.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{Error: "forbidden"})
	case errors.Is(err, apperrors.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "not found"})
	case errors.As(err, &sc):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Error: err.Error(), CurrentStatus: sc.Current})
	case errors.Is(err, apperrors.ErrRevisionLimitExceeded),
		errors.Is(err, apperrors.ErrOutOfSequenceApproval),
		errors.Is(err, apperrors.ErrInsufficientHeldFunds):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Error: err.Error()})
	case errors.As(err, &ge):
		log.Error("payment gateway error", zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(dto.ErrorResponse{Error: "payment gateway unavailable"})
	case errors.As(err, &lv):
		log.Error("ledger violation", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "order frozen pending operator review"})
	default:
		log.Error("internal error", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}
}
