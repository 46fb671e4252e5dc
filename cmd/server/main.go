package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marketplace-api/internal/api"
	"marketplace-api/internal/config"
	"marketplace-api/internal/database"
	"marketplace-api/internal/services"
	"marketplace-api/pkg/logging"

	"github.com/gin-gonic/gin"
)

func main() {
	// Initialize configuration
	if err := config.InitConfig(); err != nil {
		log.Fatal("Failed to initialize config:", err)
	}
	cfg := config.AppConfig

	// Initialize logging
	logging.InitLogging(cfg.LogLevel, cfg.LogFormat)

	// Initialize database
	if err := database.InitDatabase(); err != nil {
		log.Fatal("Failed to initialize database:", err)
	}
	defer database.CloseDatabase()

	// Broker fan-out is optional; the notification table is always written
	var publisher services.EventPublisher
	if cfg.RabbitMQURL != "" {
		amqpPublisher, err := services.NewAMQPPublisher(cfg.RabbitMQURL, cfg.NotificationExchange)
		if err != nil {
			log.Fatal("Failed to initialize RabbitMQ:", err)
		}
		defer amqpPublisher.Close()
		publisher = amqpPublisher
	}

	var guard services.CallbackGuard
	if database.RedisClient != nil {
		guard = services.NewRedisCallbackGuard(database.RedisClient, 24*time.Hour)
	} else {
		memoryGuard := services.NewMemoryCallbackGuard(24 * time.Hour)
		defer memoryGuard.Stop()
		guard = memoryGuard
	}

	gateway := services.NewGatewayClient(cfg.GatewayBaseURL, cfg.GatewayMerchantID, cfg.GatewayMerchantKey,
		cfg.GatewayWebsite, cfg.GatewayTimeout)

	notifier := services.NewNotificationService(database.DB, publisher)
	payments := services.NewPaymentService(database.DB, gateway, notifier, guard, services.PaymentConfig{
		MerchantKey:    cfg.GatewayMerchantKey,
		PublicBaseURL:  cfg.PublicBaseURL,
		PaymentTTL:     cfg.PaymentTTL,
		GatewayTimeout: cfg.GatewayTimeout,
	})
	handler := &api.Handler{
		Offers:        services.NewOfferService(database.DB, notifier, payments, cfg.OfferTTL),
		Orders:        services.NewOrderService(database.DB, notifier, payments),
		Payments:      payments,
		Notifications: notifier,
		FrontendURL:   cfg.FrontendURL,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go services.NewSweeper(database.DB, cfg.SweepInterval).Start(ctx)

	// Set Gin mode
	gin.SetMode(cfg.Mode)

	// Create Gin engine
	r := gin.New()
	r.Use(gin.LoggerWithWriter(logging.Logger().Writer()), gin.Recovery())

	// Setup routes
	api.SetupRoutes(r, handler, cfg.JWTSecret)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		logging.Infof("Starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Errorf("Failed to start server: %v", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logging.Infof("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Errorf("Server shutdown failed: %v", err)
	}
}
