package http

import (
	"time"

	"github.com/freelance-marketplace/backend/internal/config"
	"github.com/freelance-marketplace/backend/internal/http/handlers"
	"github.com/freelance-marketplace/backend/internal/middleware"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func SetupRouter(
	app *fiber.App,
	cfg *config.Config,
	log *zap.Logger,
	rdb *redis.Client,
	orderHandler *handlers.OrderHandler,
	webhookHandler *handlers.WebhookHandler,
	wsHub *handlers.WSHub,
) {
	// Global middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
	}))
	app.Use(middleware.RequestIDMiddleware())
	app.Use(middleware.LoggerMiddleware(log))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// Gateway webhooks: authenticated by HMAC signature, never rate limited.
	app.Post("/payments/webhook", webhookHandler.HandleGatewayWebhook)

	api := app.Group("/api/v1")

	// Rate-limited endpoints
	api.Use(middleware.RateLimitMiddleware(rdb, 100, time.Minute))

	// Protected endpoints
	protected := api.Group("", middleware.AuthMiddleware(cfg, log))

	// Orders
	protected.Post("/orders", orderHandler.CreateOrder)
	protected.Get("/orders", orderHandler.ListOrders)
	protected.Get("/orders/:id", orderHandler.GetOrder)
	protected.Post("/orders/:id/confirm-payment", orderHandler.ConfirmPayment)
	protected.Post("/orders/:id/acknowledge", orderHandler.Acknowledge)
	protected.Post("/orders/:id/deliver", orderHandler.Deliver)
	protected.Get("/orders/:id/deliveries", orderHandler.ListDeliveries)
	protected.Post("/orders/:id/request-revision", orderHandler.RequestRevision)
	protected.Post("/orders/:id/approve", orderHandler.Approve)
	protected.Post("/orders/:id/dispute", orderHandler.Dispute)
	protected.Post("/orders/:id/cancel", orderHandler.Cancel)
	protected.Get("/orders/:id/events", orderHandler.GetTimeline)
	protected.Get("/orders/:id/escrow", orderHandler.GetEscrow)

	// Milestones
	protected.Get("/orders/:id/milestones", orderHandler.ListMilestones)
	protected.Post("/orders/:id/milestones/:milestoneId/approve", orderHandler.ApproveMilestone)
	protected.Post("/orders/:id/milestones/:milestoneId/dispute", orderHandler.DisputeMilestone)

	// Admin
	protected.Post("/orders/:id/resolve-dispute", middleware.AdminMiddleware(cfg), orderHandler.ResolveDispute)

	// WebSocket
	app.Use("/ws", handlers.WSUpgradeMiddleware())
	app.Get("/ws", websocket.New(wsHub.HandleWS))
}
