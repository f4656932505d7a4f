package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/merchantry/fulfillment-api/internal/handler/prometheus"
	"github.com/merchantry/fulfillment-api/internal/middleware"
	"github.com/merchantry/fulfillment-api/pkg/logger"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

type Config struct {
	RateLimit rate.Limit
	RateBurst int
	// WebhookRateLimit is separate: carrier retry storms must not
	// starve the ops and export surfaces.
	WebhookRateLimit rate.Limit
	WebhookRateBurst int
	RequestTimeout   time.Duration
}

type Router struct {
	engine   *gin.Engine
	healthH  Handler
	webhookH Handler
	exportH  Handler
	opsH     Handler
	promH    *prometheus.Handler
	cfg      Config
}

func NewRouter(healthH, webhookH, exportH, opsH Handler, promH *prometheus.Handler, log *logger.Logger, cfg Config) *Router {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	r := &Router{
		engine:   engine,
		healthH:  healthH,
		webhookH: webhookH,
		exportH:  exportH,
		opsH:     opsH,
		promH:    promH,
		cfg:      cfg,
	}

	engine.Use(
		middleware.RequestID(),
		middleware.Recovery(log),
		middleware.Logger(log),
		middleware.ErrorHandler(log),
		promH.Middleware(),
		middleware.SizeLimit(middleware.DefaultSizeLimitConfig()),
		middleware.Timeout(middleware.TimeoutConfig{Duration: cfg.RequestTimeout}),
	)

	return r
}

func (r *Router) Setup() {
	api := r.engine.Group("/api/v1")

	r.healthH.RegisterRoutes(api)
	api.GET("/metrics", r.promH.Handler())

	// Carrier-facing surface gets its own limiter.
	carrier := api.Group("")
	webhookLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		Rate:  r.cfg.WebhookRateLimit,
		Burst: r.cfg.WebhookRateBurst,
	})
	carrier.Use(webhookLimiter.RateLimit())
	r.webhookH.RegisterRoutes(carrier)
	r.exportH.RegisterRoutes(carrier)

	opsLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		Rate:  r.cfg.RateLimit,
		Burst: r.cfg.RateBurst,
	})
	ops := api.Group("")
	ops.Use(opsLimiter.RateLimit())
	r.opsH.RegisterRoutes(ops)
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
