package main

import (
	"context"
	"log"
	"net/http"

	_ "momopay/docs" // swagger docs

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"momopay/internal/cache"
	"momopay/internal/config"
	"momopay/internal/db"
	"momopay/internal/gateway"
	"momopay/internal/handler"
	"momopay/internal/model"
	"momopay/internal/ratelimit"
	"momopay/internal/repository"
	"momopay/internal/router"
	"momopay/internal/service"
)

// @title Mobile Money Payment API
// @version 1.0
// @description Payment initiation, webhook ingestion, reconciliation and order linking for a mobile-money gateway.
// @host localhost:8080
// @BasePath /api
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
func main() {
	cfg := config.Load()

	e := echo.New()
	e.Use(middleware.RequestID())

	gormDB, err := db.NewMySQL(cfg.MySQLDSN)
	if err != nil {
		log.Fatalf("database init: %v", err)
	}

	// Run migrations for all models
	if err := gormDB.AutoMigrate(
		&model.Order{},
		&model.Payment{},
		&model.PaymentEvent{},
	); err != nil {
		log.Fatalf("auto-migrate: %v", err)
	}

	cacheClient := cache.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	gatewayClient := gateway.NewHTTPClient(cfg.GatewayBaseURL, cfg.GatewayAPIKey, cfg.GatewayTimeout)

	// Initialize repositories
	paymentRepo := repository.NewPaymentRepository(gormDB)
	orderRepo := repository.NewOrderRepository(gormDB)
	eventRepo := repository.NewPaymentEventRepository(gormDB)

	// Initialize services
	audit := service.NewAuditRecorder(eventRepo)
	initiationService := service.NewInitiationService(paymentRepo, orderRepo, gatewayClient, audit)
	reconciliationService := service.NewReconciliationService(paymentRepo, orderRepo, gatewayClient, cacheClient, audit)
	webhookService := service.NewWebhookService(paymentRepo, orderRepo, gatewayClient, audit)
	linkService := service.NewLinkService(paymentRepo, orderRepo, reconciliationService, audit)
	retryService := service.NewRetryService(paymentRepo, initiationService, audit)

	// Initialize handlers
	paymentHandler := handler.NewPaymentHandler(initiationService, reconciliationService, linkService, retryService)
	webhookHandler := handler.NewWebhookHandler(webhookService)

	webhookLimiter := ratelimit.New(cacheClient, cfg.WebhookRateLimit, cfg.WebhookRateWindow)

	// Register routes
	router.Register(e, cfg, paymentHandler, webhookHandler, webhookLimiter)

	// Sweep abandoned pending payments in the background
	sweeper := service.NewSweeper(paymentRepo, audit, cfg.PendingExpiry, cfg.SweepInterval)
	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	defer stopSweeper()
	go sweeper.Run(sweepCtx)

	addr := ":" + cfg.ServerPort
	if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server start: %v", err)
	}
}
