package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"stablepay.backend/internal/config"
	"stablepay.backend/internal/domain/entities"
	"stablepay.backend/internal/infrastructure/jobs"
	"stablepay.backend/internal/infrastructure/models"
	"stablepay.backend/internal/infrastructure/provider"
	"stablepay.backend/internal/infrastructure/repositories"
	"stablepay.backend/internal/interfaces/http/handlers"
	"stablepay.backend/internal/interfaces/http/middleware"
	"stablepay.backend/internal/usecases"
	"stablepay.backend/pkg/clock"
	"stablepay.backend/pkg/jwt"
	"stablepay.backend/pkg/logger"
	"stablepay.backend/pkg/redis"
)

const (
	eventRetention  = 24 * time.Hour
	shutdownTimeout = 10 * time.Second
)

var (
	loadDotenv = godotenv.Load
	loadCfg    = config.Load
	initLog    = logger.Init
	initRedis  = redis.Init
	openDB     = func(dsn string) (*gorm.DB, error) {
		return gorm.Open(postgres.New(postgres.Config{
			DSN:                  dsn,
			PreferSimpleProtocol: true,
		}), &gorm.Config{
			PrepareStmt: false,
		})
	}
	migrateDB = func(db *gorm.DB) error { return db.AutoMigrate(&models.PaymentRecord{}) }
	runServer = func(srv *http.Server) error { return srv.ListenAndServe() }
	getStdDB  = func(db *gorm.DB) (*sql.DB, error) { return db.DB() }
)

func main() {
	if err := runMainProcess(); err != nil {
		log.Fatal(err)
	}
}

func runMainProcess() error {
	// Load .env file
	if err := loadDotenv(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := loadCfg()

	initLog(cfg.Server.Env)
	logger.Info(context.Background(), "Logger initialized", zap.String("env", cfg.Server.Env))

	if err := initRedis(cfg.Redis.URL, cfg.Redis.PASSWORD); err != nil {
		logger.Error(context.Background(), "Failed to initialize Redis", zap.Error(err))
		return fmt.Errorf("failed to initialize redis: %w", err)
	}
	logger.Info(context.Background(), "Redis initialized")

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := openDB(cfg.Database.URL())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := getStdDB(db)
	if err != nil {
		return fmt.Errorf("failed to get generic database object: %w", err)
	}
	defer sqlDB.Close()

	if err := sqlDB.Ping(); err != nil {
		logger.Warn(context.Background(), "Database not available, endpoints will return errors", zap.Error(err))
	} else {
		if err := migrateDB(db); err != nil {
			return fmt.Errorf("failed to migrate payment records: %w", err)
		}
		logger.Info(context.Background(), "Connected to PostgreSQL via GORM")
	}

	jwtService := jwt.NewJWTService(cfg.JWT.Secret)

	paymentRepo := repositories.NewPaymentRecordRepository(db)
	providerClient := provider.NewClient(provider.Config{
		BaseURL:         cfg.PaymentProvider.BaseURL,
		Timeout:         cfg.PaymentProvider.Timeout,
		BreakerFailures: cfg.PaymentProvider.BreakerFailures,
		BreakerTimeout:  cfg.PaymentProvider.BreakerTimeout,
	})
	eventStore := redis.NewEventStore(eventRetention)

	paymentUsecase := usecases.NewPaymentUsecase(
		paymentRepo,
		providerClient,
		eventStore,
		clock.Real(),
		usecases.MonitorConfig{
			PollInterval: cfg.Monitor.PollInterval,
			MaxAttempts:  cfg.Monitor.MaxAttempts,
		},
		usecases.FundingConfig{
			InitialDelay:  cfg.Funding.InitialDelay,
			RetryInterval: cfg.Funding.RetryInterval,
			MaxChecks:     cfg.Funding.MaxChecks,
		},
	)

	// Start background jobs
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reconcileJob := jobs.NewPaymentReconcileJob(paymentUsecase, cfg.PaymentProvider.ClientID, cfg.Reconcile.Interval, usecases.ReconcileConfig{
		StaleAfter:   cfg.Reconcile.StaleAfter,
		AbandonAfter: cfg.Reconcile.AbandonAfter,
		BatchSize:    cfg.Reconcile.BatchSize,
	})
	go reconcileJob.Start(ctx)

	paymentHandler := handlers.NewPaymentHandler(handlers.NewPaymentService(paymentUsecase), cfg.PaymentProvider.ClientID)
	chainHandler := handlers.NewChainHandler(entities.SupportedChains)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.LoggerMiddleware())

	applyCORSMiddleware(r)
	registerHealthRoute(r)
	registerMetricsRoute(r)
	registerAPIV1Routes(r, routeDeps{
		paymentHandler: paymentHandler,
		chainHandler:   chainHandler,
		authMiddleware: middleware.AuthMiddleware(jwtService),
	})

	for _, route := range r.Routes() {
		logger.Debug(context.Background(), "Route registered", zap.String("method", route.Method), zap.String("path", route.Path))
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Info(context.Background(), "Shutting down server",
			zap.Int("active_sessions", paymentUsecase.Sessions().Len()))
		reconcileJob.Stop()
		paymentUsecase.Shutdown()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error(shutdownCtx, "Server shutdown failed", zap.Error(err))
		}
	}()

	logger.Info(context.Background(), "StablePay backend starting",
		zap.String("port", cfg.Server.Port),
		zap.String("provider", cfg.PaymentProvider.BaseURL),
	)

	if err := runServer(srv); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	paymentUsecase.Shutdown()
	return nil
}
