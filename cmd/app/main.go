package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gymcore/internal/catalog"
	"gymcore/internal/checkin"
	"gymcore/internal/config"
	"gymcore/internal/db"
	"gymcore/internal/email"
	"gymcore/internal/logger"
	"gymcore/internal/member"
	"gymcore/internal/payment"
	"gymcore/internal/pricing"
	"gymcore/internal/reconcile"
	"gymcore/internal/sale"
	"gymcore/internal/server"
	"gymcore/internal/subscription"
	"gymcore/internal/user"

	"github.com/redis/go-redis/v9"
)

// @title Gym Core API
// @version 1.0
// @description Membership sales, door check-in and VNPay reconciliation for a gym.
// @host localhost:8080
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	logger.Init()
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	logger.InitWithLevel(cfg.LogLevel)
	logger.Info("Starting gym core")

	loc, err := cfg.Location()
	if err != nil {
		logger.Fatalf("Failed to load venue timezone: %v", err)
	}

	logger.Info("Connecting to database...")
	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()
	logger.Info("Database connected")

	if err := db.RunMigrations(database, "migrations"); err != nil {
		logger.Fatalf("Failed to run migrations: %v", err)
	}
	logger.Info("Migrations completed")

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	tx := db.NewTxManager(database)

	catalogRepo := catalog.NewRepository(database)
	memberRepo := member.NewRepository(database)
	paymentRepo := payment.NewRepository(database)
	calculator := pricing.NewCalculator(catalogRepo)

	emailService := email.New(rdb, email.SMTPConfig{
		FromEmail: cfg.EmailFrom,
		FromName:  cfg.EmailFromName,
		Host:      cfg.SMTPHost,
		Port:      cfg.SMTPPort,
		User:      cfg.SMTPUser,
		Pass:      cfg.SMTPPass,
	})
	notifier := email.NewNotifier(emailService, memberRepo)

	userService := user.NewService(tx, user.NewRepository(database), memberRepo, cfg.JWTSecret)

	subscriptionService := subscription.NewService(
		tx,
		subscription.NewRepository(database),
		catalogRepo,
		memberRepo,
		paymentRepo,
		userService,
		calculator,
		subscription.WithRefundNotifier(notifier),
	)

	stockQueue := sale.NewStockQueue(rdb)
	reconciler := reconcile.New(reconcile.Deps{
		Tx:       tx,
		Payments: paymentRepo,
		Intents:  payment.NewIntentRepository(database),
		Ledger:   subscriptionService,
		Packages: catalogRepo,
		Pricer:   calculator,
		Sales:    sale.NewRepository(database),
		Stock:    stockQueue,
		Gateway: payment.NewGateway(payment.GatewayConfig{
			TmnCode:     cfg.VNPayTmnCode,
			HashSecret:  cfg.VNPayHashSecret,
			PayURL:      cfg.VNPayPayURL,
			ReturnURL:   cfg.VNPayReturnURL,
			ExpireAfter: cfg.PendingPaymentTTL,
			Location:    loc,
		}),
		Notifier:   notifier,
		PendingTTL: cfg.PendingPaymentTTL,
	})

	engine := checkin.NewEngine(
		tx,
		memberRepo,
		checkin.NewRepository(database),
		checkin.NewCredentials(cfg.QRSecret, loc),
		loc,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go emailService.Start(ctx)
	go reconcile.NewSweeper(reconciler, cfg.SweepInterval).Run(ctx)

	limits := server.Limits{
		CheckIn: server.NewRateLimiter("checkin", cfg.CheckInRateLimit, cfg.RateLimitIdleTTL),
		Auth:    server.NewRateLimiter("auth", cfg.AuthRateLimit, cfg.RateLimitIdleTTL),
	}
	go limits.CheckIn.Run(ctx)
	go limits.Auth.Run(ctx)

	health := server.NewHealthChecker(database, rdb, map[string]server.QueueDepth{
		"stock":  stockQueue,
		"emails": emailService,
	})

	srv := server.New(cfg.JWTSecret, limits, server.Handlers{
		Users:         user.NewHandler(userService),
		Pricing:       pricing.NewHandler(catalogRepo, calculator),
		Subscriptions: subscription.NewHandler(subscriptionService),
		CheckIn:       checkin.NewHandler(engine),
		Payments:      reconcile.NewHandler(reconciler, subscriptionService, cfg.PaymentResultURL),
		Health:        health,
	})

	serverErrChan := make(chan error, 1)
	go func() {
		logger.Infof("Server starting on port %s", cfg.Port)
		if err := srv.Start(cfg.Port); err != nil && err != http.ErrServerClosed {
			serverErrChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Infof("Received signal: %v", sig)
	case err := <-serverErrChan:
		logger.Errorf("Server error: %v", err)
	}

	logger.Info("Shutting down gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Error during server shutdown: %v", err)
	}

	logger.Info("Server stopped")
}
