package webhook

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/merchantry/fulfillment-api/internal/carrier/codec"
	"github.com/merchantry/fulfillment-api/internal/handler"
	"github.com/merchantry/fulfillment-api/internal/middleware"
	"github.com/merchantry/fulfillment-api/internal/model"
	"github.com/merchantry/fulfillment-api/internal/service/queue"
	"github.com/merchantry/fulfillment-api/pkg/logger"
	"github.com/merchantry/fulfillment-api/pkg/metrics"
)

const maxPayloadBytes = 1 << 20

// Handler ingests carrier webhooks. The request path only parses and
// enqueues; all state changes happen on the job queue so the carrier
// gets its ack within its delivery timeout.
type Handler struct {
	queue   *queue.Service
	auth    *middleware.CarrierAuth
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewHandler(q *queue.Service, auth *middleware.CarrierAuth, log *logger.Logger, m *metrics.Metrics) *Handler {
	return &Handler{
		queue:   q,
		auth:    auth,
		logger:  log,
		metrics: m,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	webhooks := r.Group("/webhooks")
	webhooks.Use(h.auth.Authenticate())
	{
		webhooks.POST("/carrier/:store", h.Receive)
	}
}

// Receive accepts a shipment notification in either wire format. The
// response is a generic ack: carriers only care about the status code,
// and error detail belongs in integration logs, not on the wire.
func (h *Handler) Receive(c *gin.Context) {
	storeID := c.MustGet(middleware.ContextStoreID).(uuid.UUID)

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxPayloadBytes))
	if err != nil || len(body) == 0 {
		h.metrics.WebhooksRejected.WithLabelValues("empty_body").Inc()
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("empty payload"))
		return
	}

	notice, err := codec.ParseShipNotice(body)
	if err != nil {
		h.metrics.WebhooksRejected.WithLabelValues("unparseable").Inc()
		h.logger.Warn("unparseable webhook payload",
			"store_id", storeID.String(),
			"error", err.Error())
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("unrecognized payload"))
		return
	}

	payload := model.WebhookProcessingPayload{
		StoreID: storeID,
		Notice:  *notice,
	}
	jobID, err := h.queue.Enqueue(c.Request.Context(), model.JobTypeWebhookProcessing, payload, model.JobPriorityHigh, nil)
	if err != nil {
		h.logger.Error(err, "failed to enqueue webhook",
			"store_id", storeID.String(),
			"event_type", string(notice.EventType))
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse("temporarily unavailable"))
		return
	}

	h.metrics.WebhooksReceived.WithLabelValues(string(notice.EventType)).Inc()
	h.logger.Info("webhook accepted",
		"store_id", storeID.String(),
		"event_type", string(notice.EventType),
		"carrier_order_id", notice.CarrierOrderID,
		"job_id", jobID.String())

	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{"received": true}))
}
