package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/merchantry/fulfillment-api/internal/carrier"
	"github.com/merchantry/fulfillment-api/internal/carrier/legacy"
	v2 "github.com/merchantry/fulfillment-api/internal/carrier/v2"
	"github.com/merchantry/fulfillment-api/internal/email"
	"github.com/merchantry/fulfillment-api/internal/model"
	"github.com/merchantry/fulfillment-api/internal/repository"
	"github.com/merchantry/fulfillment-api/internal/service/credential"
	"github.com/merchantry/fulfillment-api/internal/service/inventory"
	"github.com/merchantry/fulfillment-api/internal/service/orderstatus"
	"github.com/merchantry/fulfillment-api/internal/service/queue"
	apperrors "github.com/merchantry/fulfillment-api/pkg/errors"
	"github.com/merchantry/fulfillment-api/pkg/logger"
	"github.com/merchantry/fulfillment-api/pkg/metrics"
)

// Handlers binds each job type to the service that executes it. All
// payload decode failures are terminal: a malformed payload never gets
// better on retry.
type Handlers struct {
	orders       repository.OrderRepository
	integrations repository.IntegrationRepository
	emailSvc     *email.Service
	inventorySvc *inventory.Service
	statusSvc    *orderstatus.Service
	credSvc      *credential.Service
	logger       *logger.Logger
	metrics      *metrics.Metrics
	callTimeout  time.Duration
}

func NewHandlers(
	orders repository.OrderRepository,
	integrations repository.IntegrationRepository,
	emailSvc *email.Service,
	inventorySvc *inventory.Service,
	statusSvc *orderstatus.Service,
	credSvc *credential.Service,
	log *logger.Logger,
	m *metrics.Metrics,
) *Handlers {
	return &Handlers{
		orders:       orders,
		integrations: integrations,
		emailSvc:     emailSvc,
		inventorySvc: inventorySvc,
		statusSvc:    statusSvc,
		credSvc:      credSvc,
		logger:       log,
		metrics:      m,
		callTimeout:  60 * time.Second,
	}
}

// RegisterAll wires every job type into the queue service.
func (h *Handlers) RegisterAll(q *queue.Service) {
	q.Register(model.JobTypeOrderNotification, h.HandleOrderNotification)
	q.Register(model.JobTypeInventoryUpdate, h.HandleInventoryUpdate)
	q.Register(model.JobTypeShipmentProcessing, h.HandleShipmentProcessing)
	q.Register(model.JobTypeWebhookProcessing, h.HandleWebhookProcessing)
}

func (h *Handlers) HandleOrderNotification(ctx context.Context, job *model.Job) error {
	var payload model.OrderNotificationPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return apperrors.NewBadRequest("malformed order notification payload", err)
	}

	order, err := h.orders.Get(ctx, payload.OrderID)
	if err != nil {
		return err
	}
	if order == nil {
		return apperrors.OrderNotFound(payload.OrderID.String())
	}

	return h.emailSvc.SendOrderNotification(ctx, payload.Notification, order)
}

func (h *Handlers) HandleInventoryUpdate(ctx context.Context, job *model.Job) error {
	var payload model.InventoryUpdatePayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return apperrors.NewBadRequest("malformed inventory update payload", err)
	}

	adj := &model.InventoryAdjustment{
		ProductID:      payload.ProductID,
		SKU:            payload.SKU,
		QuantityChange: payload.QuantityChange,
		Reason:         model.AdjustmentReason(payload.Reason),
		ReferenceType:  payload.ReferenceType,
		ReferenceID:    payload.ReferenceID,
	}
	return h.inventorySvc.ApplyAdjustment(ctx, adj)
}

// HandleShipmentProcessing pushes an order out to the carrier platform
// through whichever gateway the store's integration selects.
func (h *Handlers) HandleShipmentProcessing(ctx context.Context, job *model.Job) error {
	var payload model.ShipmentProcessingPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return apperrors.NewBadRequest("malformed shipment processing payload", err)
	}

	order, err := h.orders.Get(ctx, payload.OrderID)
	if err != nil {
		return err
	}
	if order == nil {
		return apperrors.OrderNotFound(payload.OrderID.String())
	}

	items, err := h.orders.ListItems(ctx, order.ID)
	if err != nil {
		return err
	}

	integration, err := h.credSvc.IntegrationFor(ctx, payload.StoreID)
	if err != nil {
		return err
	}

	gateway, err := h.gatewayFor(integration)
	if err != nil {
		return err
	}

	shipFrom, err := h.credSvc.ResolveShipFrom(ctx, integration)
	if err != nil {
		return err
	}

	serviceCode := payload.ServiceCode
	if serviceCode == "" && order.ServiceCode != nil {
		serviceCode = *order.ServiceCode
	}

	callCtx, cancel := context.WithTimeout(ctx, h.callTimeout)
	defer cancel()

	result, err := gateway.CreateShipment(callCtx, &carrier.ShipmentRequest{
		Order:       order,
		Items:       items,
		ShipFrom:    shipFrom,
		ServiceCode: serviceCode,
	})
	if err != nil {
		var carrierErr *carrier.Error
		if errors.As(err, &carrierErr) && !carrierErr.Retryable() {
			return apperrors.CarrierRejected(carrierErr.StatusCode, carrierErr)
		}
		return err
	}

	patch := &model.ShipmentPatch{}
	if result.CarrierOrderID != "" {
		patch.CarrierOrderID = &result.CarrierOrderID
		patch.ShipmentData = result.Raw
	}
	if result.TrackingNumber != "" {
		patch.TrackingNumber = &result.TrackingNumber
	}
	if result.LabelURL != "" {
		patch.LabelURL = &result.LabelURL
	}
	if result.CostCents > 0 {
		patch.ShippingCostCents = &result.CostCents
	}
	if patch.IsZero() {
		return nil
	}
	if err := h.orders.ApplyShipmentPatch(ctx, order.ID, patch); err != nil {
		return fmt.Errorf("shipment created but order update failed: %w", err)
	}
	return nil
}

func (h *Handlers) HandleWebhookProcessing(ctx context.Context, job *model.Job) error {
	var payload model.WebhookProcessingPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return apperrors.NewBadRequest("malformed webhook processing payload", err)
	}

	started := time.Now()
	err := h.statusSvc.Handle(ctx, payload.StoreID, &payload.Notice)
	h.logWebhookOutcome(ctx, &payload, started, err)
	return err
}

// logWebhookOutcome appends the integration_logs audit row for one
// processed webhook event. Audit failures never fail the job.
func (h *Handlers) logWebhookOutcome(ctx context.Context, payload *model.WebhookProcessingPayload, started time.Time, handleErr error) {
	notice, _ := json.Marshal(payload.Notice)
	entry := &model.IntegrationLog{
		StoreID:         payload.StoreID,
		Operation:       "webhook_" + string(payload.Notice.EventType),
		Status:          model.IntegrationLogSuccess,
		RequestData:     notice,
		ExecutionTimeMs: time.Since(started).Milliseconds(),
	}
	if handleErr != nil {
		entry.Status = model.IntegrationLogFailure
		msg := handleErr.Error()
		entry.ErrorMessage = &msg
	}
	if err := h.integrations.LogOperation(ctx, entry); err != nil {
		h.logger.Error(err, "failed to write webhook audit log",
			"store_id", payload.StoreID.String())
	}
}

func (h *Handlers) gatewayFor(integration *model.StoreIntegration) (carrier.Gateway, error) {
	creds, err := h.credSvc.DecryptCredentials(integration)
	if err != nil {
		return nil, err
	}
	cfg := h.credSvc.ResolveGatewayConfig(integration)

	switch integration.IntegrationType {
	case model.IntegrationShipStationV2:
		return v2.NewClient(v2.Config{
			BaseURL: cfg.BaseURL,
			APIKey:  creds.APIKey,
		}, integration, h.integrations, h.logger, h.metrics), nil
	case model.IntegrationShipStationLegacy:
		return legacy.NewClient(legacy.Config{
			BaseURL:  cfg.BaseURL,
			Username: creds.APIKey,
			Password: creds.APISecret,
		}, integration, h.integrations, h.logger, h.metrics), nil
	default:
		return nil, apperrors.NewBadRequest(
			fmt.Sprintf("unsupported integration type %q", integration.IntegrationType), nil)
	}
}
