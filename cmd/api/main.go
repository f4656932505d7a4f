package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/merchantry/fulfillment-api/config"
	exportHandler "github.com/merchantry/fulfillment-api/internal/handler/export"
	healthHandler "github.com/merchantry/fulfillment-api/internal/handler/health"
	opsHandler "github.com/merchantry/fulfillment-api/internal/handler/ops"
	promHandler "github.com/merchantry/fulfillment-api/internal/handler/prometheus"
	webhookHandler "github.com/merchantry/fulfillment-api/internal/handler/webhook"
	"github.com/merchantry/fulfillment-api/internal/middleware"
	"github.com/merchantry/fulfillment-api/internal/repository/postgres"
	"github.com/merchantry/fulfillment-api/internal/router"
	credentialService "github.com/merchantry/fulfillment-api/internal/service/credential"
	queueService "github.com/merchantry/fulfillment-api/internal/service/queue"
	"github.com/merchantry/fulfillment-api/pkg/logger"
	"github.com/merchantry/fulfillment-api/pkg/metrics"
	"github.com/merchantry/fulfillment-api/pkg/security"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := newLogger(cfg)

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal(err, "failed to connect to database")
	}
	defer db.Close()

	key, err := hex.DecodeString(cfg.EncryptionKey)
	if err != nil {
		log.Fatal(err, "encryption key is not valid hex")
	}
	encryptor, err := security.NewAESEncryptor(key)
	if err != nil {
		log.Fatal(err, "failed to initialize encryptor")
	}
	hasher := security.NewBcryptHasher(0)

	m := metrics.NewMetrics("fulfillment", "api")

	base := postgres.NewBaseRepository(db)
	jobRepo := postgres.NewJobRepository(base)
	orderRepo := postgres.NewOrderRepository(base)
	integrationRepo := postgres.NewIntegrationRepository(base)

	queueSvc := queueService.NewService(jobRepo, queueService.Config{BatchSize: cfg.Queue.BatchSize}, log, m)
	credSvc := credentialService.NewService(integrationRepo, encryptor, hasher, log)

	carrierAuth := middleware.NewCarrierAuth(credSvc, log, m)
	opsAuth := middleware.NewOpsAuth(cfg.JWT.Secret)

	healthH := healthHandler.NewHandler(db)
	promH := promHandler.New()
	webhookH := webhookHandler.NewHandler(queueSvc, carrierAuth, log, m)
	exportH := exportHandler.NewHandler(orderRepo, carrierAuth, log)
	opsH := opsHandler.NewHandler(queueSvc, integrationRepo, credSvc, opsAuth, log, m)

	r := router.NewRouter(healthH, webhookH, exportH, opsH, promH, log, router.Config{
		RateLimit:        rate.Limit(cfg.RateLimit.RequestsPerSecond),
		RateBurst:        cfg.RateLimit.Burst,
		WebhookRateLimit: rate.Limit(cfg.RateLimit.WebhookRequestsPerSecond),
		WebhookRateBurst: cfg.RateLimit.WebhookBurst,
		RequestTimeout:   cfg.Server.RequestTimeout,
	})
	r.Setup()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info("api server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(err, "failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down api server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal(err, "server forced to shutdown")
	}

	log.Info("api server exited")
}

func newLogger(cfg *config.Config) *logger.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	return logger.NewLogger(&logger.Config{
		Level:      level,
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
		Console:    cfg.LogConsole,
	})
}
