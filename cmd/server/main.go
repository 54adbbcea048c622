package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ikkim/tabline-backend/config"
	"github.com/ikkim/tabline-backend/internal/app/controller"
	"github.com/ikkim/tabline-backend/internal/app/repository"
	"github.com/ikkim/tabline-backend/internal/app/service"
	"github.com/ikkim/tabline-backend/internal/db"
	"github.com/ikkim/tabline-backend/internal/middleware"
	"github.com/ikkim/tabline-backend/internal/router"
	"github.com/ikkim/tabline-backend/internal/scheduler"
	"github.com/ikkim/tabline-backend/internal/storage"
	"github.com/ikkim/tabline-backend/internal/websocket"
	"github.com/ikkim/tabline-backend/pkg/logger"
	"github.com/ikkim/tabline-backend/pkg/money"
	"github.com/ikkim/tabline-backend/pkg/payment/stripe"
	"github.com/ikkim/tabline-backend/pkg/pos/omnivore"
	"github.com/ikkim/tabline-backend/pkg/redis"
	"github.com/ikkim/tabline-backend/pkg/session"
	"github.com/ikkim/tabline-backend/pkg/sms"
	"github.com/ikkim/tabline-backend/pkg/verifytoken"
)

const shutdownTimeout = 10 * time.Second

// tokenStore is what both the verification flow and staff logout need from
// the Redis or in-memory token bookkeeping.
type tokenStore interface {
	service.VerificationLedger
	service.TokenBlacklist
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", err)
	}

	// Initialize logger
	logLevel := "info"
	logFormat := "json"
	if cfg.Server.Environment == "development" {
		logLevel = "debug"
		logFormat = "console"
	}
	logger.Initialize(logger.Config{
		Level:       logLevel,
		Format:      logFormat,
		EnableColor: true,
	})

	logger.Info("Starting Tabline Backend Server", map[string]interface{}{
		"environment": cfg.Server.Environment,
		"port":        cfg.Server.Port,
		"log_level":   logLevel,
	})

	// Initialize database
	if err := db.Initialize(&cfg.Database); err != nil {
		logger.Fatal("Failed to initialize database", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("Failed to close database connection", err)
		}
	}()

	if err := db.Migrate(); err != nil {
		logger.Fatal("Failed to run migrations", err)
	}

	// Sessions and token bookkeeping live in Redis when configured so that
	// several instances share them
	var tokens tokenStore
	var sessionStore session.Store
	if cfg.Redis.Host != "" {
		if err := redis.Init(&cfg.Redis); err != nil {
			logger.Fatal("Failed to initialize Redis", err)
		}
		defer redis.Close()
		tokens = redis.NewTokenStore(redis.GetClient())
		sessionStore = session.NewRedisStore(redis.GetClient())
	} else {
		logger.Warn("REDIS_HOST not set, keeping sessions in memory")
		tokens = redis.NewMemoryTokenStore()
		sessionStore = session.NewMemoryStore()
	}
	sessions := session.NewManager(sessionStore, cfg.Session.TTL)

	// Gateways
	pos, err := omnivore.NewClient(omnivore.Config{
		APIKey:      cfg.POS.APIKey,
		BaseURL:     cfg.POS.BaseURL,
		Timeout:     cfg.POS.Timeout,
		MaxAttempts: cfg.POS.MaxAttempts,
		PaymentType: cfg.POS.PaymentType,
	})
	if err != nil {
		logger.Fatal("Failed to initialize POS client", err)
	}
	payments, err := stripe.NewClient(stripe.Config{
		SecretKey:   cfg.Stripe.SecretKey,
		BaseURL:     cfg.Stripe.BaseURL,
		Currency:    cfg.Stripe.Currency,
		Timeout:     cfg.Stripe.Timeout,
		MaxAttempts: cfg.Stripe.MaxAttempts,
	})
	if err != nil {
		logger.Fatal("Failed to initialize payment client", err)
	}
	smsConfig := sms.Config{
		ServiceID:  cfg.SMS.ServiceID,
		AccessKey:  cfg.SMS.AccessKey,
		SecretKey:  cfg.SMS.SecretKey,
		FromNumber: cfg.SMS.FromNumber,
		BaseURL:    cfg.SMS.BaseURL,
	}
	if !smsConfig.Configured() {
		logger.Warn("SMS credentials not set, verification texts are only logged")
	}
	messenger := sms.NewClient(smsConfig)

	var exportStore service.ObjectStore
	if cfg.S3.Enabled() {
		exportStore = storage.NewS3Storage(cfg.S3.Region, cfg.S3.Bucket, cfg.S3.AccessKeyID, cfg.S3.SecretAccessKey, cfg.S3.BaseURL)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := websocket.NewHub()
	go hub.Run(ctx)

	priceMode := money.ParsePriceMode(cfg.POS.PriceMode)
	codec := verifytoken.NewCodec(cfg.Verification.TokenSecret)
	gormDB := db.GetDB()

	// Initialize repositories
	userRepo := repository.NewUserRepository(gormDB)
	memberRepo := repository.NewMemberRepository(gormDB)
	restaurantRepo := repository.NewRestaurantRepository(gormDB)
	linkRepo := repository.NewTicketLinkRepository(gormDB)
	reviewRepo := repository.NewReviewRepository(gormDB)

	// Initialize services
	authService := service.NewAuthService(
		userRepo,
		tokens,
		cfg.JWT.Secret,
		cfg.JWT.AccessTokenExpiry,
		cfg.JWT.RefreshTokenExpiry,
	)
	linkService := service.NewTicketLinkService(linkRepo, hub, gormDB)
	linkingService := service.NewLinkingService(
		memberRepo,
		restaurantRepo,
		linkService,
		pos,
		codec,
		messenger,
		service.LinkingConfig{
			PublicBaseURL: cfg.Verification.PublicBaseURL,
			PriceMode:     priceMode,
		},
	)
	verificationService := service.NewVerificationService(
		memberRepo,
		restaurantRepo,
		linkService,
		pos,
		codec,
		tokens,
		sessions,
		service.VerificationConfig{
			MaxAge:         cfg.Verification.TokenMaxAge,
			MaxPINAttempts: cfg.Verification.MaxPINAttempts,
			PriceMode:      priceMode,
		},
	)
	settlementService := service.NewSettlementService(
		memberRepo,
		linkRepo,
		pos,
		payments,
		hub,
		gormDB,
		service.SettlementConfig{
			PaymentType: pos.PaymentType(),
			PriceMode:   priceMode,
		},
	)
	receiptService := service.NewReceiptService(memberRepo, linkRepo, pos, priceMode)
	reviewService := service.NewReviewService(reviewRepo, memberRepo, linkRepo)
	memberService := service.NewMemberService(memberRepo, gormDB)
	exportService := service.NewExportService(linkRepo, exportStore)

	// Initialize controllers
	authController := controller.NewAuthController(authService)
	linkController := controller.NewLinkController(linkingService, linkService, authService)
	verifyController := controller.NewVerifyController(verificationService, controller.SessionCookieConfig{
		Name:   cfg.Session.CookieName,
		TTL:    cfg.Session.TTL,
		Secure: cfg.Session.Secure,
	})
	tabController := controller.NewTabController(receiptService, settlementService)
	reviewController := controller.NewReviewController(reviewService, authService)
	staffController := controller.NewStaffController(exportService, authService, hub, cfg.CORS.AllowedOrigins)
	memberController := controller.NewMemberController(memberService)

	// Initialize middleware
	authMiddleware := middleware.NewAuthMiddleware(cfg.JWT.Secret, tokens)
	memberSession := middleware.NewMemberSession(sessions, cfg.Session.CookieName)

	// Setup router
	r := router.NewRouter(
		authController,
		linkController,
		verifyController,
		tabController,
		reviewController,
		staffController,
		memberController,
		authMiddleware,
		memberSession,
		cfg,
	)
	engine := r.Setup()

	sweeper := scheduler.NewPendingSweepScheduler(linkService, cfg.Scheduler.SweepCron, cfg.Scheduler.PendingTTL)
	if err := sweeper.Start(); err != nil {
		logger.Fatal("Failed to start pending sweep scheduler", err)
	}
	defer sweeper.Stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Server started successfully", map[string]interface{}{
			"address": srv.Addr,
			"pid":     os.Getpid(),
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", err)
	}

	logger.Info("Server stopped successfully")
}
