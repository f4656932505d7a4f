package ops

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/merchantry/fulfillment-api/internal/carrier"
	"github.com/merchantry/fulfillment-api/internal/carrier/legacy"
	v2 "github.com/merchantry/fulfillment-api/internal/carrier/v2"
	"github.com/merchantry/fulfillment-api/internal/handler"
	"github.com/merchantry/fulfillment-api/internal/middleware"
	"github.com/merchantry/fulfillment-api/internal/model"
	"github.com/merchantry/fulfillment-api/internal/repository"
	"github.com/merchantry/fulfillment-api/internal/service/credential"
	"github.com/merchantry/fulfillment-api/internal/service/queue"
	"github.com/merchantry/fulfillment-api/pkg/logger"
	"github.com/merchantry/fulfillment-api/pkg/metrics"
)

// Handler exposes the operations surface: failed-job triage and
// integration credential probes. Everything here sits behind the ops
// JWT middleware.
type Handler struct {
	queue        *queue.Service
	integrations repository.IntegrationRepository
	creds        *credential.Service
	auth         *middleware.OpsAuth
	logger       *logger.Logger
	metrics      *metrics.Metrics
}

func NewHandler(q *queue.Service, integrations repository.IntegrationRepository, creds *credential.Service, auth *middleware.OpsAuth, log *logger.Logger, m *metrics.Metrics) *Handler {
	return &Handler{
		queue:        q,
		integrations: integrations,
		creds:        creds,
		auth:         auth,
		logger:       log,
		metrics:      m,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	ops := r.Group("/ops")
	ops.Use(h.auth.Authenticate())
	{
		ops.GET("/jobs/failed", h.ListFailedJobs)
		ops.POST("/jobs/:id/retry", h.RetryJob)
		ops.GET("/jobs/stats", h.JobStats)
		ops.GET("/integrations", h.ListIntegrations)
		ops.POST("/integrations/:id/test", h.TestIntegration)
		ops.GET("/stores/:store/shipfroms", h.ListShipFroms)
	}
}

func (h *Handler) ListFailedJobs(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 || limit > 500 {
		limit = 50
	}

	jobs, err := h.queue.ListFailed(c.Request.Context(), limit)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(jobs))
}

// RetryJob resets a failed job to pending with a fresh attempt budget.
func (h *Handler) RetryJob(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid job id"))
		return
	}

	if err := h.queue.RetryJob(c.Request.Context(), id); err != nil {
		c.Error(err)
		return
	}

	h.logger.Info("job manually retried",
		"job_id", id.String(),
		"operator", c.GetString(middleware.ContextOperator))
	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{"job_id": id}))
}

func (h *Handler) JobStats(c *gin.Context) {
	hours, err := strconv.Atoi(c.DefaultQuery("hours", "24"))
	if err != nil || hours < 1 {
		hours = 24
	}

	stats, err := h.queue.Stats(c.Request.Context(), time.Duration(hours)*time.Hour)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(stats))
}

// ListIntegrations returns the active integrations of one type so an
// operator can see which stores a carrier incident touches. Encrypted
// credential columns never serialize.
func (h *Handler) ListIntegrations(c *gin.Context) {
	integrationType := model.IntegrationType(c.DefaultQuery("type", string(model.IntegrationShipStationV2)))
	if integrationType != model.IntegrationShipStationV2 && integrationType != model.IntegrationShipStationLegacy {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("unknown integration type"))
		return
	}

	integrations, err := h.integrations.ListActiveByType(c.Request.Context(), integrationType)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(integrations))
}

// ListShipFroms lists a store's warehouses, for debugging ship-from
// resolution on outbound shipments.
func (h *Handler) ListShipFroms(c *gin.Context) {
	storeID, err := uuid.Parse(c.Param("store"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid store id"))
		return
	}

	shipFroms, err := h.integrations.ListShipFroms(c.Request.Context(), storeID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(shipFroms))
}

// TestIntegration probes the carrier platform with the integration's
// stored credentials without creating anything.
func (h *Handler) TestIntegration(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid integration id"))
		return
	}

	integration, err := h.integrations.Get(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}
	if integration == nil {
		c.JSON(http.StatusNotFound, handler.NewErrorResponse("integration not found"))
		return
	}

	gateway, err := h.gatewayFor(integration)
	if err != nil {
		c.Error(err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()
	if err := gateway.TestCredentials(ctx); err != nil {
		h.logger.Warn("credential probe failed",
			"integration_id", id.String(),
			"store_id", integration.StoreID.String(),
			"error", err.Error())
		c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{
			"ok":     false,
			"reason": "carrier rejected the stored credentials",
		}))
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{"ok": true}))
}

func (h *Handler) gatewayFor(integration *model.StoreIntegration) (carrier.Gateway, error) {
	creds, err := h.creds.DecryptCredentials(integration)
	if err != nil {
		return nil, err
	}
	cfg := h.creds.ResolveGatewayConfig(integration)

	if integration.IntegrationType == model.IntegrationShipStationV2 {
		return v2.NewClient(v2.Config{
			BaseURL: cfg.BaseURL,
			APIKey:  creds.APIKey,
			Timeout: 15 * time.Second,
		}, integration, h.integrations, h.logger, h.metrics), nil
	}
	return legacy.NewClient(legacy.Config{
		BaseURL:  cfg.BaseURL,
		Username: creds.APIKey,
		Password: creds.APISecret,
		Timeout:  15 * time.Second,
	}, integration, h.integrations, h.logger, h.metrics), nil
}
