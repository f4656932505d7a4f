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

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/merchantry/fulfillment-api/config"
	"github.com/merchantry/fulfillment-api/internal/email"
	"github.com/merchantry/fulfillment-api/internal/repository/postgres"
	credentialService "github.com/merchantry/fulfillment-api/internal/service/credential"
	inventoryService "github.com/merchantry/fulfillment-api/internal/service/inventory"
	orderstatusService "github.com/merchantry/fulfillment-api/internal/service/orderstatus"
	queueService "github.com/merchantry/fulfillment-api/internal/service/queue"
	"github.com/merchantry/fulfillment-api/internal/worker"
	"github.com/merchantry/fulfillment-api/pkg/logger"
	"github.com/merchantry/fulfillment-api/pkg/messaging/redis"
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

	m := metrics.NewMetrics("fulfillment", "worker")

	base := postgres.NewBaseRepository(db)
	jobRepo := postgres.NewJobRepository(base)
	orderRepo := postgres.NewOrderRepository(base)
	productRepo := postgres.NewProductRepository(base)
	inventoryLogRepo := postgres.NewInventoryLogRepository(base)
	integrationRepo := postgres.NewIntegrationRepository(base)
	notificationRepo := postgres.NewNotificationRepository(base)
	webhookEventRepo := postgres.NewWebhookEventRepository(base)

	broker, err := redis.NewRedisBroker(redis.Config{
		URL:          cfg.Redis.URL,
		MaxRetries:   cfg.Redis.MaxRetries,
		RetryBackoff: cfg.Redis.RetryBackoff,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	}, &log.ZL)
	if err != nil {
		log.Fatal(err, "failed to connect to redis")
	}

	queueSvc := queueService.NewService(jobRepo, queueService.Config{BatchSize: cfg.Queue.BatchSize}, log, m)
	credSvc := credentialService.NewService(integrationRepo, encryptor, hasher, log)
	inventorySvc := inventoryService.NewService(productRepo, inventoryLogRepo, &base, inventoryService.Config{
		LowStockThreshold:      cfg.Inventory.LowStockThreshold,
		CriticalStockThreshold: cfg.Inventory.CriticalStockThreshold,
	}, log)
	emailSvc := email.NewService(email.Config{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
		Enabled:  cfg.SMTP.Enabled,
	}, notificationRepo, log)
	statusSvc := orderstatusService.NewService(orderRepo, webhookEventRepo, queueSvc, broker, log)

	handlers := worker.NewHandlers(orderRepo, integrationRepo, emailSvc, inventorySvc, statusSvc, credSvc, log, m)
	handlers.RegisterAll(queueSvc)

	ctx, cancel := context.WithCancel(context.Background())

	cleanup := worker.NewJobCleanupWorker(queueSvc, cfg.Queue.RetentionDays, time.Hour, log)
	go cleanup.Start(ctx)

	go queueSvc.Start(ctx, cfg.Queue.PollInterval)

	obs := observabilityServer(cfg.Server.MetricsPort, db)
	go func() {
		if err := obs.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(err, "metrics listener failed")
		}
	}()

	log.Info("worker started",
		"batch_size", cfg.Queue.BatchSize,
		"poll_interval", cfg.Queue.PollInterval.String(),
		"metrics_port", cfg.Server.MetricsPort)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down worker")

	cancel()
	queueSvc.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := obs.Shutdown(shutdownCtx); err != nil {
		log.Error(err, "metrics listener shutdown failed")
	}

	log.Info("worker exited")
}

// observabilityServer serves /metrics and /health so the worker can be
// scraped and probed like the API binary.
func observabilityServer(port int, db *sqlx.DB) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	return &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
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
