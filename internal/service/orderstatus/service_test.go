package orderstatus

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/merchantry/fulfillment-api/internal/model"
	"github.com/merchantry/fulfillment-api/internal/service/queue"
	apperrors "github.com/merchantry/fulfillment-api/pkg/errors"
	"github.com/merchantry/fulfillment-api/pkg/logger"
)

type fakeOrderRepo struct {
	order   *model.Order
	items   []*model.OrderItem
	patches []*model.ShipmentPatch
}

func (f *fakeOrderRepo) Get(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	return f.order, nil
}

func (f *fakeOrderRepo) FindByCarrierRef(ctx context.Context, storeID uuid.UUID, carrierOrderID, orderNumber string) (*model.Order, error) {
	return f.order, nil
}

func (f *fakeOrderRepo) ApplyShipmentPatch(ctx context.Context, id uuid.UUID, patch *model.ShipmentPatch) error {
	f.patches = append(f.patches, patch)
	if patch.Status != nil {
		f.order.Status = *patch.Status
	}
	return nil
}

func (f *fakeOrderRepo) ListItems(ctx context.Context, orderID uuid.UUID) ([]*model.OrderItem, error) {
	return f.items, nil
}

func (f *fakeOrderRepo) ListForExport(ctx context.Context, storeID uuid.UUID, page, pageSize int) ([]*model.Order, int, error) {
	return nil, 0, nil
}

type fakeEventRepo struct {
	seen   map[string]bool
	marked []*model.ShipmentNotification
}

func (f *fakeEventRepo) AlreadyProcessed(ctx context.Context, eventKey string) (bool, error) {
	return f.seen[eventKey], nil
}

func (f *fakeEventRepo) MarkProcessed(ctx context.Context, event *model.ShipmentNotification) error {
	if f.seen == nil {
		f.seen = map[string]bool{}
	}
	f.seen[event.EventKey] = true
	f.marked = append(f.marked, event)
	return nil
}

type enqueuedJob struct {
	jobType  model.JobType
	payload  interface{}
	priority model.JobPriority
}

type fakeEnqueuer struct {
	jobs []enqueuedJob
	err  error
}

func (f *fakeEnqueuer) Enqueue(ctx context.Context, jobType model.JobType, payload interface{}, priority model.JobPriority, opts *queue.EnqueueOptions) (uuid.UUID, error) {
	if f.err != nil {
		return uuid.Nil, f.err
	}
	f.jobs = append(f.jobs, enqueuedJob{jobType: jobType, payload: payload, priority: priority})
	return uuid.New(), nil
}

func (f *fakeEnqueuer) byType(jobType model.JobType) []enqueuedJob {
	var out []enqueuedJob
	for _, j := range f.jobs {
		if j.jobType == jobType {
			out = append(out, j)
		}
	}
	return out
}

type fakeBroker struct {
	published []string
}

func (f *fakeBroker) Publish(ctx context.Context, channel string, message interface{}) error {
	f.published = append(f.published, channel)
	return nil
}

func (f *fakeBroker) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeBroker) Close() error { return nil }

func testLogger() *logger.Logger {
	return logger.NewLogger(&logger.Config{Level: logger.ErrorLevel, Output: io.Discard})
}

func testFixture(status model.OrderStatus) (*Service, *fakeOrderRepo, *fakeEventRepo, *fakeEnqueuer, *fakeBroker) {
	orders := &fakeOrderRepo{
		order: &model.Order{
			ID:          uuid.New(),
			StoreID:     uuid.New(),
			OrderNumber: "ORD-1001",
			Status:      status,
		},
		items: []*model.OrderItem{
			{ProductID: uuid.New(), SKU: "WIDGET-A", Quantity: 2},
			{ProductID: uuid.New(), SKU: "WIDGET-B", Quantity: 1},
		},
	}
	events := &fakeEventRepo{seen: map[string]bool{}}
	q := &fakeEnqueuer{}
	broker := &fakeBroker{}
	svc := NewService(orders, events, q, broker, testLogger())
	return svc, orders, events, q, broker
}

func shipNotice() *model.ShipNotice {
	shipDate := time.Date(2026, 8, 20, 14, 30, 0, 0, time.UTC)
	return &model.ShipNotice{
		EventType:      model.WebhookShipNotify,
		CarrierOrderID: "CARRIER-9",
		OrderNumber:    "ORD-1001",
		TrackingNumber: "1Z999AA10123456784",
		CarrierCode:    "ups",
		ServiceCode:    "ups_ground",
		ShipDate:       &shipDate,
	}
}

func TestHandleShipNotify(t *testing.T) {
	svc, orders, events, q, broker := testFixture(model.OrderStatusProcessing)
	storeID := orders.order.StoreID
	notice := shipNotice()

	require.NoError(t, svc.HandleShipNotify(context.Background(), storeID, notice))

	require.Len(t, orders.patches, 1)
	patch := orders.patches[0]
	require.NotNil(t, patch.Status)
	assert.Equal(t, model.OrderStatusShipped, *patch.Status)
	require.NotNil(t, patch.TrackingNumber)
	assert.Equal(t, "1Z999AA10123456784", *patch.TrackingNumber)
	require.NotNil(t, patch.TrackingURL)
	assert.Equal(t, "https://www.ups.com/track?tracknum=1Z999AA10123456784", *patch.TrackingURL)
	require.NotNil(t, patch.CarrierOrderID)
	assert.Equal(t, "CARRIER-9", *patch.CarrierOrderID)
	require.NotNil(t, patch.ShippedAt)
	assert.True(t, patch.ShippedAt.Equal(*notice.ShipDate))
	assert.NotEmpty(t, patch.ShipmentData)

	decrements := q.byType(model.JobTypeInventoryUpdate)
	require.Len(t, decrements, 2)
	first := decrements[0].payload.(model.InventoryUpdatePayload)
	assert.Equal(t, -2, first.QuantityChange)
	assert.Equal(t, "WIDGET-A", first.SKU)
	assert.Equal(t, orders.order.ID.String(), first.ReferenceID)
	assert.Equal(t, model.JobPriorityUrgent, decrements[0].priority)

	notifications := q.byType(model.JobTypeOrderNotification)
	require.Len(t, notifications, 1)
	assert.Equal(t, model.JobPriorityHigh, notifications[0].priority)
	assert.Equal(t, "shipped", notifications[0].payload.(model.OrderNotificationPayload).Notification)

	assert.Equal(t, []string{"order.shipped"}, broker.published)
	require.Len(t, events.marked, 1)
	assert.Equal(t, notice.EventKey(storeID), events.marked[0].EventKey)
}

func TestHandleShipNotifyDuplicateDeliveryDropped(t *testing.T) {
	svc, orders, events, q, _ := testFixture(model.OrderStatusProcessing)
	storeID := orders.order.StoreID
	notice := shipNotice()
	events.seen[notice.EventKey(storeID)] = true

	require.NoError(t, svc.HandleShipNotify(context.Background(), storeID, notice))

	assert.Empty(t, orders.patches)
	assert.Empty(t, q.jobs)
}

func TestHandleShipNotifySecondShipEventSkipsInventory(t *testing.T) {
	svc, orders, _, q, _ := testFixture(model.OrderStatusShipped)
	storeID := orders.order.StoreID

	// Distinct tracking number so the dedup key differs.
	notice := shipNotice()
	notice.TrackingNumber = "1Z999AA10199999999"

	require.NoError(t, svc.HandleShipNotify(context.Background(), storeID, notice))

	require.Len(t, orders.patches, 1)
	assert.Empty(t, q.byType(model.JobTypeInventoryUpdate))
	assert.Len(t, q.byType(model.JobTypeOrderNotification), 1)
}

func TestHandleShipNotifyInvalidTransition(t *testing.T) {
	svc, orders, _, q, _ := testFixture(model.OrderStatusCancelled)

	err := svc.HandleShipNotify(context.Background(), orders.order.StoreID, shipNotice())

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ErrInvalidTransition, appErr.Code)
	assert.Empty(t, orders.patches)
	assert.Empty(t, q.jobs)
}

func TestHandleShipNotifyOrderNotFound(t *testing.T) {
	svc := NewService(&fakeOrderRepo{}, &fakeEventRepo{}, &fakeEnqueuer{}, nil, testLogger())

	err := svc.HandleShipNotify(context.Background(), uuid.New(), shipNotice())

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ErrOrderNotFound, appErr.Code)
}

func TestHandleDeliveredNotify(t *testing.T) {
	svc, orders, events, q, broker := testFixture(model.OrderStatusShipped)
	storeID := orders.order.StoreID
	deliveredAt := time.Date(2026, 8, 22, 9, 0, 0, 0, time.UTC)
	notice := &model.ShipNotice{
		EventType:      model.WebhookDeliveredNotify,
		CarrierOrderID: "CARRIER-9",
		TrackingNumber: "1Z999AA10123456784",
		DeliveryDate:   &deliveredAt,
	}

	require.NoError(t, svc.HandleDeliveredNotify(context.Background(), storeID, notice))

	require.Len(t, orders.patches, 1)
	patch := orders.patches[0]
	require.NotNil(t, patch.Status)
	assert.Equal(t, model.OrderStatusDelivered, *patch.Status)
	require.NotNil(t, patch.DeliveredAt)
	assert.True(t, patch.DeliveredAt.Equal(deliveredAt))

	assert.Empty(t, q.byType(model.JobTypeInventoryUpdate))
	notifications := q.byType(model.JobTypeOrderNotification)
	require.Len(t, notifications, 1)
	assert.Equal(t, "delivered", notifications[0].payload.(model.OrderNotificationPayload).Notification)
	assert.Equal(t, []string{"order.delivered"}, broker.published)
	assert.Len(t, events.marked, 1)
}

func TestHandleDeliveredNotifyFromPendingRejected(t *testing.T) {
	svc, orders, _, _, _ := testFixture(model.OrderStatusPending)
	notice := &model.ShipNotice{
		EventType:      model.WebhookDeliveredNotify,
		CarrierOrderID: "CARRIER-9",
	}

	err := svc.HandleDeliveredNotify(context.Background(), orders.order.StoreID, notice)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ErrInvalidTransition, appErr.Code)
}

func TestHandleOrderNotifyIsNoOp(t *testing.T) {
	svc, orders, _, q, broker := testFixture(model.OrderStatusPending)
	notice := &model.ShipNotice{EventType: model.WebhookOrderNotify, CarrierOrderID: "CARRIER-9"}

	require.NoError(t, svc.Handle(context.Background(), orders.order.StoreID, notice))

	assert.Empty(t, orders.patches)
	assert.Empty(t, q.jobs)
	assert.Empty(t, broker.published)
}

func TestHandleUnknownEventType(t *testing.T) {
	svc, orders, _, _, _ := testFixture(model.OrderStatusPending)
	notice := &model.ShipNotice{EventType: "return_notify"}

	err := svc.Handle(context.Background(), orders.order.StoreID, notice)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ErrBadRequest, appErr.Code)
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(model.OrderStatusPending, model.OrderStatusShipped))
	assert.True(t, CanTransition(model.OrderStatusShipped, model.OrderStatusDelivered))
	assert.True(t, CanTransition(model.OrderStatusShipped, model.OrderStatusShipped))
	assert.False(t, CanTransition(model.OrderStatusShipped, model.OrderStatusCancelled))
	assert.False(t, CanTransition(model.OrderStatusDelivered, model.OrderStatusShipped))
	assert.False(t, CanTransition(model.OrderStatusCancelled, model.OrderStatusShipped))
}
