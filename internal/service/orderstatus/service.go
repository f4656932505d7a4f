package orderstatus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/merchantry/fulfillment-api/internal/model"
	"github.com/merchantry/fulfillment-api/internal/repository"
	"github.com/merchantry/fulfillment-api/internal/service/queue"
	apperrors "github.com/merchantry/fulfillment-api/pkg/errors"
	"github.com/merchantry/fulfillment-api/pkg/logger"
	"github.com/merchantry/fulfillment-api/pkg/messaging"
)

// validTransitions is the order status machine. Cancelled and refunded
// are reachable only from pre-shipment states.
var validTransitions = map[model.OrderStatus][]model.OrderStatus{
	model.OrderStatusPending:    {model.OrderStatusConfirmed, model.OrderStatusProcessing, model.OrderStatusShipped, model.OrderStatusCancelled, model.OrderStatusRefunded},
	model.OrderStatusConfirmed:  {model.OrderStatusProcessing, model.OrderStatusShipped, model.OrderStatusCancelled, model.OrderStatusRefunded},
	model.OrderStatusProcessing: {model.OrderStatusShipped, model.OrderStatusCancelled, model.OrderStatusRefunded},
	model.OrderStatusShipped:    {model.OrderStatusShipped, model.OrderStatusDelivered},
	model.OrderStatusDelivered:  {model.OrderStatusDelivered},
}

// CanTransition reports whether the status machine permits from -> to.
func CanTransition(from, to model.OrderStatus) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Enqueuer is the slice of the job queue this service needs.
type Enqueuer interface {
	Enqueue(ctx context.Context, jobType model.JobType, payload interface{}, priority model.JobPriority, opts *queue.EnqueueOptions) (uuid.UUID, error)
}

type Service struct {
	orders repository.OrderRepository
	events repository.WebhookEventRepository
	queue  Enqueuer
	broker messaging.Broker
	logger *logger.Logger
}

func NewService(orders repository.OrderRepository, events repository.WebhookEventRepository, q Enqueuer, broker messaging.Broker, log *logger.Logger) *Service {
	return &Service{
		orders: orders,
		events: events,
		queue:  q,
		broker: broker,
		logger: log,
	}
}

// HandleShipNotify applies an inbound ship event: sparse-patch the
// shipment fields, decrement inventory once, and fan out notification
// work. Replays of the same delivery are dropped by the dedup table;
// a second distinct ship event still patches fields idempotently but
// the status guard keeps inventory from decrementing twice.
func (s *Service) HandleShipNotify(ctx context.Context, storeID uuid.UUID, notice *model.ShipNotice) error {
	order, err := s.resolveOrder(ctx, storeID, notice)
	if err != nil {
		return err
	}

	eventKey := notice.EventKey(storeID)
	seen, err := s.events.AlreadyProcessed(ctx, eventKey)
	if err != nil {
		return err
	}
	if seen {
		s.logger.Info("duplicate ship notify dropped",
			"order_id", order.ID.String(), "event_key", eventKey)
		return nil
	}

	wasShipped := order.Status == model.OrderStatusShipped || order.Status == model.OrderStatusDelivered
	if !wasShipped && !CanTransition(order.Status, model.OrderStatusShipped) {
		return apperrors.InvalidTransition(string(order.Status), string(model.OrderStatusShipped))
	}

	patch := buildShipPatch(notice)
	if err := s.orders.ApplyShipmentPatch(ctx, order.ID, patch); err != nil {
		return err
	}

	// Inventory decrements exactly once, on the first flip to shipped.
	if !wasShipped {
		if err := s.enqueueInventoryDecrements(ctx, storeID, order); err != nil {
			return err
		}
	}

	if _, err := s.queue.Enqueue(ctx, model.JobTypeOrderNotification, model.OrderNotificationPayload{
		OrderID:      order.ID,
		StoreID:      storeID,
		Notification: "shipped",
	}, model.JobPriorityHigh, nil); err != nil {
		return err
	}

	s.publish(ctx, messaging.ChannelOrderShipped, order, notice)

	if err := s.events.MarkProcessed(ctx, &model.ShipmentNotification{
		StoreID:   storeID,
		EventKey:  eventKey,
		EventType: model.WebhookShipNotify,
		OrderID:   &order.ID,
	}); err != nil {
		s.logger.Error(err, "failed to record webhook event", "event_key", eventKey)
	}

	s.logger.Info("order shipped",
		"order_id", order.ID.String(),
		"tracking_number", notice.TrackingNumber,
		"carrier", notice.CarrierCode)
	return nil
}

// HandleDeliveredNotify marks the order delivered. No inventory side
// effect; stock already moved at ship time.
func (s *Service) HandleDeliveredNotify(ctx context.Context, storeID uuid.UUID, notice *model.ShipNotice) error {
	order, err := s.resolveOrder(ctx, storeID, notice)
	if err != nil {
		return err
	}

	eventKey := notice.EventKey(storeID)
	seen, err := s.events.AlreadyProcessed(ctx, eventKey)
	if err != nil {
		return err
	}
	if seen {
		s.logger.Info("duplicate delivered notify dropped",
			"order_id", order.ID.String(), "event_key", eventKey)
		return nil
	}

	if !CanTransition(order.Status, model.OrderStatusDelivered) {
		return apperrors.InvalidTransition(string(order.Status), string(model.OrderStatusDelivered))
	}

	delivered := model.OrderStatusDelivered
	deliveredAt := time.Now()
	if notice.DeliveryDate != nil {
		deliveredAt = *notice.DeliveryDate
	}
	patch := &model.ShipmentPatch{
		Status:      &delivered,
		DeliveredAt: &deliveredAt,
	}
	if err := s.orders.ApplyShipmentPatch(ctx, order.ID, patch); err != nil {
		return err
	}

	if _, err := s.queue.Enqueue(ctx, model.JobTypeOrderNotification, model.OrderNotificationPayload{
		OrderID:      order.ID,
		StoreID:      storeID,
		Notification: "delivered",
	}, model.JobPriorityMedium, nil); err != nil {
		return err
	}

	s.publish(ctx, messaging.ChannelOrderDelivered, order, notice)

	if err := s.events.MarkProcessed(ctx, &model.ShipmentNotification{
		StoreID:   storeID,
		EventKey:  eventKey,
		EventType: model.WebhookDeliveredNotify,
		OrderID:   &order.ID,
	}); err != nil {
		s.logger.Error(err, "failed to record webhook event", "event_key", eventKey)
	}

	s.logger.Info("order delivered", "order_id", order.ID.String())
	return nil
}

// HandleOrderNotify is acknowledged but otherwise a no-op; the carrier
// sends these for order-sync events this pipeline does not act on.
func (s *Service) HandleOrderNotify(ctx context.Context, storeID uuid.UUID, notice *model.ShipNotice) error {
	s.logger.Debug("order notify received, no action taken",
		"store_id", storeID.String(),
		"carrier_order_id", notice.CarrierOrderID)
	return nil
}

// Handle dispatches one normalized carrier event by kind.
func (s *Service) Handle(ctx context.Context, storeID uuid.UUID, notice *model.ShipNotice) error {
	switch notice.EventType {
	case model.WebhookShipNotify:
		return s.HandleShipNotify(ctx, storeID, notice)
	case model.WebhookDeliveredNotify:
		return s.HandleDeliveredNotify(ctx, storeID, notice)
	case model.WebhookOrderNotify:
		return s.HandleOrderNotify(ctx, storeID, notice)
	default:
		return apperrors.NewBadRequest("unknown webhook event type", nil)
	}
}

func (s *Service) resolveOrder(ctx context.Context, storeID uuid.UUID, notice *model.ShipNotice) (*model.Order, error) {
	order, err := s.orders.FindByCarrierRef(ctx, storeID, notice.CarrierOrderID, notice.OrderNumber)
	if err != nil {
		return nil, err
	}
	if order == nil {
		ref := notice.CarrierOrderID
		if ref == "" {
			ref = notice.OrderNumber
		}
		return nil, apperrors.OrderNotFound(ref)
	}
	return order, nil
}

// buildShipPatch maps notice fields to a sparse patch; absent notice
// fields stay absent so replays cannot blank anything out.
func buildShipPatch(notice *model.ShipNotice) *model.ShipmentPatch {
	shipped := model.OrderStatusShipped
	fulfilled := model.FulfillmentStatusFulfilled
	patch := &model.ShipmentPatch{
		Status:            &shipped,
		FulfillmentStatus: &fulfilled,
	}

	if notice.TrackingNumber != "" {
		patch.TrackingNumber = &notice.TrackingNumber
		url := TrackingURL(notice.TrackingNumber, notice.CarrierCode)
		patch.TrackingURL = &url
	}
	if notice.CarrierOrderID != "" {
		patch.CarrierOrderID = &notice.CarrierOrderID
	}
	if notice.CarrierCode != "" {
		patch.CarrierCode = &notice.CarrierCode
	}
	if notice.ServiceCode != "" {
		patch.ServiceCode = &notice.ServiceCode
	}
	if notice.LabelURL != "" {
		patch.LabelURL = &notice.LabelURL
	}
	if notice.CustomsFormURL != "" {
		patch.CustomsFormURL = &notice.CustomsFormURL
	}
	if notice.ShipDate != nil {
		patch.ShippedAt = notice.ShipDate
	} else {
		now := time.Now()
		patch.ShippedAt = &now
	}
	if notice.DeliveryDate != nil {
		patch.DeliveredAt = notice.DeliveryDate
	}
	if notice.ShippingCostCents != nil {
		patch.ShippingCostCents = notice.ShippingCostCents
	}

	// Denormalized snapshot of the raw event for later diagnosis.
	if snapshot, err := json.Marshal(notice); err == nil {
		patch.ShipmentData = snapshot
	}
	return patch
}

// enqueueInventoryDecrements creates one inventory_update job per line
// item at urgent priority so stock reflects the shipment promptly.
func (s *Service) enqueueInventoryDecrements(ctx context.Context, storeID uuid.UUID, order *model.Order) error {
	items, err := s.orders.ListItems(ctx, order.ID)
	if err != nil {
		return err
	}
	for _, item := range items {
		payload := model.InventoryUpdatePayload{
			StoreID:        storeID,
			ProductID:      item.ProductID,
			SKU:            item.SKU,
			QuantityChange: -item.Quantity,
			Reason:         string(model.ReasonShipment),
			ReferenceType:  "order",
			ReferenceID:    order.ID.String(),
		}
		if _, err := s.queue.Enqueue(ctx, model.JobTypeInventoryUpdate, payload, model.JobPriorityUrgent, nil); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) publish(ctx context.Context, channel string, order *model.Order, notice *model.ShipNotice) {
	if s.broker == nil {
		return
	}
	event := messaging.OrderEvent{
		OrderID:        order.ID.String(),
		StoreID:        order.StoreID.String(),
		OrderNumber:    order.OrderNumber,
		Status:         string(model.OrderStatusShipped),
		TrackingNumber: notice.TrackingNumber,
		CarrierCode:    notice.CarrierCode,
	}
	if channel == messaging.ChannelOrderDelivered {
		event.Status = string(model.OrderStatusDelivered)
	}
	if err := s.broker.Publish(ctx, channel, event); err != nil {
		s.logger.Error(err, "failed to publish order event", "channel", channel)
	}
}
