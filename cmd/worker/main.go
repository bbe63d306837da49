package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/freelance-marketplace/backend/internal/config"
	"github.com/freelance-marketplace/backend/internal/db"
	"github.com/freelance-marketplace/backend/internal/events"
	"github.com/freelance-marketplace/backend/internal/gateway"
	"github.com/freelance-marketplace/backend/internal/repositories"
	"github.com/freelance-marketplace/backend/internal/services"
	"go.uber.org/zap"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	// Repos
	orderRepo := repositories.NewOrderRepo(pool)
	escrowRepo := repositories.NewEscrowRepo(pool)
	milestoneRepo := repositories.NewMilestoneRepo(pool)
	deliveryRepo := repositories.NewDeliveryRepo(pool)
	paymentRepo := repositories.NewPaymentRepo(pool)
	eventRepo := repositories.NewEventRepo(pool)
	webhookRepo := repositories.NewWebhookRepo(pool)

	// Services
	publisher := events.NewRedisPublisher(rdb, log)
	gatewayClient := gateway.NewClient(cfg.GatewayBaseURL, cfg.GatewayAPIKey, cfg.GatewayTimeout, cfg.GatewayMaxRetries, log)
	orderService := services.NewOrderService(pool, orderRepo, escrowRepo, milestoneRepo, deliveryRepo, paymentRepo, eventRepo, webhookRepo, gatewayClient, publisher, cfg, log)
	webhookProcessor := services.NewWebhookProcessor(orderService, webhookRepo, rdb, cfg, log)

	log.Info("worker started")

	// Run jobs on tickers
	autoApproveTicker := time.NewTicker(2 * time.Minute)
	fundingTimeoutTicker := time.NewTicker(5 * time.Minute)
	refundRetryTicker := time.NewTicker(10 * time.Minute)
	redriveTicker := time.NewTicker(5 * time.Minute)
	defer autoApproveTicker.Stop()
	defer fundingTimeoutTicker.Stop()
	defer refundRetryTicker.Stop()
	defer redriveTicker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-autoApproveTicker.C:
			runAutoApprove(ctx, orderRepo, orderService, cfg, log)
		case <-fundingTimeoutTicker.C:
			runFundingTimeouts(ctx, orderRepo, orderService, cfg, log)
		case <-refundRetryTicker.C:
			orderService.RetryPendingRefunds(ctx)
		case <-redriveTicker.C:
			if cfg.DeadLetterRedrive {
				webhookProcessor.RedriveDeadLetters(ctx, 20)
			}
		case <-sigCh:
			log.Info("shutting down worker")
			cancel()
			return
		case <-ctx.Done():
			return
		}
	}
}

// runAutoApprove completes delivered orders the buyer has ignored past the
// acceptance window. Funds release to the seller exactly as if the buyer had
// approved.
func runAutoApprove(ctx context.Context, orderRepo *repositories.OrderRepo, orderService *services.OrderService, cfg *config.Config, log *zap.Logger) {
	orders, err := orderRepo.GetStaleDelivered(ctx, cfg.AutoApproveSeconds)
	if err != nil {
		log.Error("failed to get stale delivered orders", zap.Error(err))
		return
	}

	for _, o := range orders {
		log.Info("auto-approving stale delivered order",
			zap.String("order_id", o.ID.String()),
		)
		if err := orderService.AutoApprove(ctx, o.ID); err != nil {
			log.Error("failed to auto-approve order", zap.String("order_id", o.ID.String()), zap.Error(err))
		}
	}
}

// runFundingTimeouts cancels orders that never got funded. No money has
// moved, so cancellation is synchronous.
func runFundingTimeouts(ctx context.Context, orderRepo *repositories.OrderRepo, orderService *services.OrderService, cfg *config.Config, log *zap.Logger) {
	orders, err := orderRepo.GetStaleCreated(ctx, cfg.FundingTimeoutSeconds)
	if err != nil {
		log.Error("failed to get stale created orders", zap.Error(err))
		return
	}

	for _, o := range orders {
		log.Info("cancelling unfunded order",
			zap.String("order_id", o.ID.String()),
		)
		if err := orderService.Cancel(ctx, o.ID, o.BuyerID); err != nil {
			log.Error("failed to cancel unfunded order", zap.String("order_id", o.ID.String()), zap.Error(err))
		}
	}
}
