package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/vielimo/service-booking/internal/adapter"
	"github.com/vielimo/service-booking/internal/application"
	"github.com/vielimo/service-booking/internal/cache"
	"github.com/vielimo/service-booking/internal/config"
	bookingEvents "github.com/vielimo/service-booking/internal/events"
	"github.com/vielimo/service-booking/internal/handler"
	"github.com/vielimo/service-booking/internal/lock"
	"github.com/vielimo/service-booking/internal/notification"
	"github.com/vielimo/service-booking/internal/ratelimit"
	"github.com/vielimo/service-booking/internal/repository"
	"github.com/vielimo/service-booking/internal/saga"
	"github.com/vielimo/service-booking/pkg/auth"
	"github.com/vielimo/service-booking/pkg/database"
	"github.com/vielimo/service-booking/pkg/health"
	"github.com/vielimo/service-booking/pkg/kafka"
	"github.com/vielimo/service-booking/pkg/logger"
	"github.com/vielimo/service-booking/pkg/middleware"
)

const serviceName = "service-booking"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	// Initialize logger
	zapLogger, err := logger.NewNamed(cfg.AppEnv, serviceName)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("starting "+serviceName,
		zap.String("port", cfg.Port),
		zap.String("env", cfg.AppEnv),
	)

	// Connect to database
	dbConfig := database.PostgresConfig{
		Host:     cfg.DBConfig.Host,
		Port:     cfg.DBConfig.Port,
		User:     cfg.DBConfig.User,
		Password: cfg.DBConfig.Password,
		DBName:   cfg.DBConfig.DBName,
		SSLMode:  cfg.DBConfig.SSLMode,
	}

	db, err := database.Connect(dbConfig, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed to connect to database", zap.Error(err))
	}

	// Run database migrations
	if cfg.AppEnv == "development" {
		if err := db.AutoMigrate(
			&repository.RoomModel{},
			&repository.RoomPriceModel{},
			&repository.BookingModel{},
			&repository.PaymentTransactionModel{},
		); err != nil {
			zapLogger.Fatal("failed to auto-migrate", zap.Error(err))
		}
		zapLogger.Info("database migration completed (dev auto-migrate)")
	} else {
		if err := database.RunMigrations(dbConfig.DatabaseURL(), cfg.MigrationsDir, zapLogger); err != nil {
			zapLogger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	// Connect to Redis
	rdb, err := database.ConnectRedis(context.Background(), cfg.RedisConfig.URL, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	// Initialize JWT and nonce managers
	jwtManager := auth.NewJWTManager(
		cfg.JWTConfig.Secret,
		15*time.Minute,
		7*24*time.Hour,
	)
	nonceManager := auth.NewNonceManager(cfg.NonceSecret, cfg.JWTConfig.NonceTTL)

	// Initialize Kafka producer
	kafkaProducer := kafka.NewProducer(cfg.KafkaConfig.Brokers, zapLogger)
	defer kafkaProducer.Close()

	// Initialize the coupon sheet adapter; bad credentials disable coupons, not the service
	sheetAdapter := newSheetAdapter(cfg, zapLogger)

	// Initialize coupon cache, lock and rate limiter
	cacheManager := cache.NewCacheManager(rdb, sheetAdapter, cfg.Coupons.CacheTTL, zapLogger)
	locker := lock.NewLocker(rdb, "coupon_lock:", cfg.Coupons.LockTTL)
	limiter := ratelimit.NewLimiter(rdb, "coupon_rate:", cfg.Coupons.RateLimit, cfg.Coupons.RateWindow)
	refresher := cache.NewRefresher(cacheManager, cfg.Coupons.RefreshInterval, zapLogger)

	// Initialize repositories
	roomRepo := repository.NewGormRoomRepository(db)
	bookingRepo := repository.NewBookingRepository(db)
	txnRepo := repository.NewTransactionRepository(db)

	// Initialize application services
	couponService := application.NewCouponService(sheetAdapter, cacheManager, locker, limiter, zapLogger)
	roomService := application.NewRoomService(roomRepo, bookingRepo, zapLogger)
	checkoutSaga := saga.NewCheckoutSagaService(bookingRepo, couponService, kafkaProducer, zapLogger)
	bookingService := application.NewBookingService(
		bookingRepo,
		txnRepo,
		roomRepo,
		roomService,
		checkoutSaga,
		kafkaProducer,
		application.BankAccount{
			BankName:      cfg.Bank.BankName,
			AccountNumber: cfg.Bank.AccountNumber,
			AccountName:   cfg.Bank.AccountName,
		},
		zapLogger,
	)
	webhookService := application.NewWebhookService(bookingRepo, txnRepo, kafkaProducer, cfg.SePayAPIKey, zapLogger)
	if cfg.SePayAPIKey == "" {
		zapLogger.Warn("SEPAY_API_KEY is not set, payment webhooks will be rejected")
	}

	// Initialize notifications
	notifier, err := notification.NewNotifier(newEmailSender(cfg, zapLogger), cfg.AdminEmail, notification.BankDetails{
		BankName:      cfg.Bank.BankName,
		AccountNumber: cfg.Bank.AccountNumber,
		AccountName:   cfg.Bank.AccountName,
	}, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed to initialize notifier", zap.Error(err))
	}

	// Initialize Kafka consumer for booking notifications
	consumerGroupID := cfg.KafkaConfig.GroupPrefix + "notification"
	bookingConsumer := bookingEvents.NewBookingEventConsumer(
		cfg.KafkaConfig.Brokers,
		consumerGroupID,
		notifier,
		zapLogger,
	)
	defer bookingConsumer.Close()

	// Start background workers
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	go func() {
		zapLogger.Info("starting booking event consumer")
		if err := bookingConsumer.Start(workerCtx); err != nil {
			if workerCtx.Err() == nil {
				zapLogger.Error("booking event consumer failed", zap.Error(err))
			}
		}
	}()
	refresher.Start(workerCtx)

	// Initialize HTTP handlers
	nonceHandler := handler.NewNonceHandler(nonceManager)
	couponHandler := handler.NewCouponHandler(couponService, nonceManager)
	roomHandler := handler.NewRoomHandler(roomService)
	bookingHandler := handler.NewBookingHandler(bookingService, nonceManager)
	webhookHandler := handler.NewWebhookHandler(webhookService, zapLogger)
	adminHandler := handler.NewAdminHandler(bookingService, couponService, nonceManager)

	// Setup Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	// Apply global middleware
	router.Use(middleware.RecoveryMiddleware(zapLogger))
	router.Use(middleware.LoggerMiddleware(zapLogger))
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.SecurityHeadersMiddleware())

	// Register health check and metrics routes
	healthHandler := health.NewHandler(db, serviceName)
	healthHandler.AddCheck("redis", func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})
	healthHandler.RegisterRoutes(router)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Register API routes; the per-IP limiter guards this instance against floods
	publicLimiter := middleware.NewIPRateLimiter(rate.Limit(cfg.PublicRPS), cfg.PublicBurst)
	apiV1 := router.Group("/api/v1")
	apiV1.Use(publicLimiter.Middleware())
	nonceHandler.RegisterRoutes(apiV1, jwtManager)
	couponHandler.RegisterRoutes(apiV1, jwtManager)
	roomHandler.RegisterRoutes(apiV1, jwtManager)
	bookingHandler.RegisterRoutes(apiV1, jwtManager)
	adminHandler.RegisterRoutes(apiV1, jwtManager)
	webhookHandler.RegisterRoutes(router.Group("/api/v1"))

	// Create HTTP server
	srv := &http.Server{
		Addr:         cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		zapLogger.Info("HTTP server starting", zap.String("addr", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("shutting down " + serviceName + "...")

	// Stop background workers
	workerCancel()
	refresher.Stop()

	// Shutdown HTTP server with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("server forced to shutdown", zap.Error(err))
	}

	zapLogger.Info(serviceName + " stopped")
}

// newSheetAdapter picks the coupon source. Invalid credentials or settings are logged and
// select the disabled adapter so the rest of the service keeps running.
func newSheetAdapter(cfg *config.ServiceConfig, logger *zap.Logger) adapter.SheetAdapter {
	if cfg.Sheets.UseMock {
		rows := adapter.DemoCouponRows()
		logger.Warn("using in-memory coupon sheet", zap.Int("coupons", len(rows)))
		return adapter.NewMockSheetAdapter(rows, 2, logger)
	}

	account, err := adapter.NewCredentialLoader().Load(cfg.Sheets.CredentialsPath)
	if err != nil {
		logger.Error("coupon sheet credentials are invalid, coupons disabled", zap.Error(err))
		return adapter.DisabledSheetAdapter{Reason: err}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Sheets.Timeout)
	defer cancel()
	sheets, err := adapter.NewGoogleSheetAdapter(ctx, account, cfg.Sheets.SpreadsheetID, cfg.Sheets.Range, cfg.Sheets.Timeout, logger)
	if err != nil {
		logger.Error("coupon sheet client could not be created, coupons disabled", zap.Error(err))
		return adapter.DisabledSheetAdapter{Reason: err}
	}
	return sheets
}

func newEmailSender(cfg *config.ServiceConfig, logger *zap.Logger) notification.EmailSender {
	smtpCfg := notification.SMTPConfig(cfg.SMTP)
	if !smtpCfg.Enabled() {
		logger.Warn("SMTP is not configured, emails will only be logged")
		return notification.NewLogSender(logger)
	}
	sender, err := notification.NewSMTPSender(smtpCfg)
	if err != nil {
		logger.Error("invalid SMTP settings, emails will only be logged", zap.Error(err))
		return notification.NewLogSender(logger)
	}
	return sender
}
