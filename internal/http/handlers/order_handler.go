package handlers

import (
	"strconv"

	"github.com/freelance-marketplace/backend/internal/http/dto"
	"github.com/freelance-marketplace/backend/internal/middleware"
	"github.com/freelance-marketplace/backend/internal/repositories"
	"github.com/freelance-marketplace/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type OrderHandler struct {
	orderService *services.OrderService
	log          *zap.Logger
}

func NewOrderHandler(orderService *services.OrderService, log *zap.Logger) *OrderHandler {
	return &OrderHandler{orderService: orderService, log: log}
}

func (h *OrderHandler) CreateOrder(c *fiber.Ctx) error {
	var req dto.CreateOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request"})
	}

	sellerID, err := uuid.Parse(req.SellerID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid seller_id"})
	}

	input := services.CreateOrderInput{
		SellerID:         sellerID,
		Requirements:     req.Requirements,
		TotalAmountCents: req.TotalAmountCents,
		Currency:         req.Currency,
		RevisionsAllowed: req.RevisionsAllowed,
	}
	if req.PackageID != nil {
		id, err := uuid.Parse(*req.PackageID)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid package_id"})
		}
		input.PackageID = &id
	}
	if req.ProjectID != nil {
		id, err := uuid.Parse(*req.ProjectID)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid project_id"})
		}
		input.ProjectID = &id
	}
	for _, m := range req.Milestones {
		input.Milestones = append(input.Milestones, services.MilestoneInput{
			Title:       m.Title,
			AmountCents: m.AmountCents,
			DueDate:     m.DueDate,
		})
	}

	buyerID := middleware.GetUserID(c)
	order, err := h.orderService.CreateOrder(c.Context(), buyerID, input)
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: order})
}

func (h *OrderHandler) GetOrder(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid order id"})
	}

	order, err := h.orderService.GetOrder(c.Context(), id)
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: order})
}

func (h *OrderHandler) ListOrders(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	filter := repositories.OrderFilter{
		Limit:  20,
		Offset: 0,
	}

	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := c.Query("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}
	if v := c.Query("status"); v != "" {
		filter.Status = &v
	}

	switch c.Query("role") {
	case "seller":
		filter.SellerID = &userID
	default:
		filter.BuyerID = &userID
	}

	orders, err := h.orderService.ListOrders(c.Context(), filter)
	if err != nil {
		h.log.Error("list orders failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: orders})
}

// ConfirmPayment starts the capture flow. The order only becomes funded when
// the gateway's capture webhook lands.
func (h *OrderHandler) ConfirmPayment(c *fiber.Ctx) error {
	orderID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid order id"})
	}

	actorID := middleware.GetUserID(c)
	intent, err := h.orderService.ConfirmPayment(c.Context(), orderID, actorID)
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(dto.PaymentIntentResponse{
		OrderID:          intent.OrderID.String(),
		GatewayReference: intent.GatewayReference,
		ClientSecret:     intent.ClientSecret,
		AmountCents:      intent.AmountCents,
		Currency:         intent.Currency,
		Status:           intent.Status,
	})
}

func (h *OrderHandler) Acknowledge(c *fiber.Ctx) error {
	orderID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid order id"})
	}

	actorID := middleware.GetUserID(c)
	if err := h.orderService.Acknowledge(c.Context(), orderID, actorID); err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(dto.SuccessResponse{OK: true})
}

func (h *OrderHandler) Deliver(c *fiber.Ctx) error {
	orderID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid order id"})
	}

	var req dto.DeliverRequest
	if err := c.BodyParser(&req); err != nil || req.Title == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "title is required"})
	}

	actorID := middleware.GetUserID(c)
	record, err := h.orderService.Deliver(c.Context(), orderID, actorID, services.DeliveryInput{
		Title:       req.Title,
		Description: req.Description,
		FileRefs:    req.FileRefs,
	})
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: record})
}

func (h *OrderHandler) ListDeliveries(c *fiber.Ctx) error {
	orderID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid order id"})
	}

	deliveries, err := h.orderService.ListDeliveries(c.Context(), orderID)
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: deliveries})
}

func (h *OrderHandler) RequestRevision(c *fiber.Ctx) error {
	orderID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid order id"})
	}

	var req dto.RequestRevisionRequest
	_ = c.BodyParser(&req)

	actorID := middleware.GetUserID(c)
	if err := h.orderService.RequestRevision(c.Context(), orderID, actorID, req.Note); err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(dto.SuccessResponse{OK: true})
}

func (h *OrderHandler) Approve(c *fiber.Ctx) error {
	orderID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid order id"})
	}

	actorID := middleware.GetUserID(c)
	if err := h.orderService.Approve(c.Context(), orderID, actorID); err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(dto.SuccessResponse{OK: true})
}

func (h *OrderHandler) Dispute(c *fiber.Ctx) error {
	orderID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid order id"})
	}

	var req dto.DisputeRequest
	if err := c.BodyParser(&req); err != nil || req.Reason == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "reason is required"})
	}

	actorID := middleware.GetUserID(c)
	if err := h.orderService.Dispute(c.Context(), orderID, actorID, req.Reason); err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(dto.SuccessResponse{OK: true})
}

func (h *OrderHandler) ResolveDispute(c *fiber.Ctx) error {
	orderID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid order id"})
	}

	var req dto.ResolveDisputeRequest
	if err := c.BodyParser(&req); err != nil || req.Outcome == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "outcome is required (release, refund)"})
	}

	adminID := middleware.GetUserID(c)
	if err := h.orderService.ResolveDispute(c.Context(), orderID, adminID, req.Outcome, req.Note); err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(dto.SuccessResponse{OK: true})
}

func (h *OrderHandler) Cancel(c *fiber.Ctx) error {
	orderID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid order id"})
	}

	actorID := middleware.GetUserID(c)
	if err := h.orderService.Cancel(c.Context(), orderID, actorID); err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(dto.SuccessResponse{OK: true})
}

func (h *OrderHandler) ListMilestones(c *fiber.Ctx) error {
	orderID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid order id"})
	}

	milestones, err := h.orderService.ListMilestones(c.Context(), orderID)
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: milestones})
}

func (h *OrderHandler) ApproveMilestone(c *fiber.Ctx) error {
	orderID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid order id"})
	}
	milestoneID, err := uuid.Parse(c.Params("milestoneId"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid milestone id"})
	}

	actorID := middleware.GetUserID(c)
	if err := h.orderService.ApproveMilestone(c.Context(), orderID, milestoneID, actorID); err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(dto.SuccessResponse{OK: true})
}

func (h *OrderHandler) DisputeMilestone(c *fiber.Ctx) error {
	orderID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid order id"})
	}
	milestoneID, err := uuid.Parse(c.Params("milestoneId"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid milestone id"})
	}

	var req dto.DisputeMilestoneRequest
	if err := c.BodyParser(&req); err != nil || req.Reason == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "reason is required"})
	}

	actorID := middleware.GetUserID(c)
	if err := h.orderService.DisputeMilestone(c.Context(), orderID, milestoneID, actorID, req.Reason); err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(dto.SuccessResponse{OK: true})
}

// GetTimeline returns the order's append-only event history in seq order.
func (h *OrderHandler) GetTimeline(c *fiber.Ctx) error {
	orderID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid order id"})
	}

	limit, offset := 50, 0
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	if v := c.Query("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			offset = n
		}
	}

	timeline, err := h.orderService.GetTimeline(c.Context(), orderID, limit, offset)
	if err != nil {
		h.log.Error("get timeline failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: timeline})
}

func (h *OrderHandler) GetEscrow(c *fiber.Ctx) error {
	orderID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid order id"})
	}

	account, entries, err := h.orderService.GetEscrow(c.Context(), orderID)
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.EscrowResponse{Account: account, Entries: entries}})
}
