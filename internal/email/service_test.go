package email

import (
	"context"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gomail "gopkg.in/gomail.v2"

	"github.com/merchantry/fulfillment-api/internal/model"
	"github.com/merchantry/fulfillment-api/pkg/logger"
)

type recordingSender struct {
	sent []*gomail.Message
}

func (r *recordingSender) DialAndSend(m ...*gomail.Message) error {
	r.sent = append(r.sent, m...)
	return nil
}

type fakeTemplateRepo struct {
	template *model.NotificationTemplate
	calls    int
}

func (f *fakeTemplateRepo) GetTemplate(ctx context.Context, storeID uuid.UUID, kind string) (*model.NotificationTemplate, error) {
	f.calls++
	return f.template, nil
}

func testLogger() *logger.Logger {
	return logger.NewLogger(&logger.Config{Level: logger.ErrorLevel, Output: io.Discard})
}

func shippedOrder() *model.Order {
	tracking := "1Z999AA10123456784"
	trackingURL := "https://www.ups.com/track?tracknum=1Z999AA10123456784"
	carrier := "ups"
	return &model.Order{
		ID:             uuid.New(),
		StoreID:        uuid.New(),
		OrderNumber:    "ORD-1001",
		CustomerName:   "Pat Doe",
		CustomerEmail:  "pat@example.com",
		TrackingNumber: &tracking,
		TrackingURL:    &trackingURL,
		CarrierCode:    &carrier,
	}
}

func TestSendOrderNotificationUsesStoreTemplate(t *testing.T) {
	sender := &recordingSender{}
	repo := &fakeTemplateRepo{template: &model.NotificationTemplate{
		Subject: "{{order_number}} shipped via {{carrier}}",
		Body:    "Hi {{customer_name}}, track at {{tracking_url}}",
	}}
	svc := NewServiceWithSender(sender, repo, "noreply@example.com", testLogger())

	require.NoError(t, svc.SendOrderNotification(context.Background(), "shipped", shippedOrder()))

	require.Len(t, sender.sent, 1)
	m := sender.sent[0]
	assert.Equal(t, []string{"ORD-1001 shipped via ups"}, m.GetHeader("Subject"))
	assert.Equal(t, []string{"pat@example.com"}, m.GetHeader("To"))
	assert.Equal(t, []string{"noreply@example.com"}, m.GetHeader("From"))
}

func TestSendOrderNotificationFallsBackToDefaultTemplate(t *testing.T) {
	sender := &recordingSender{}
	svc := NewServiceWithSender(sender, &fakeTemplateRepo{}, "noreply@example.com", testLogger())

	require.NoError(t, svc.SendOrderNotification(context.Background(), "delivered", shippedOrder()))

	require.Len(t, sender.sent, 1)
	assert.Equal(t, []string{"Your order ORD-1001 was delivered"}, sender.sent[0].GetHeader("Subject"))
}

func TestSendOrderNotificationSkipsMissingEmail(t *testing.T) {
	sender := &recordingSender{}
	svc := NewServiceWithSender(sender, &fakeTemplateRepo{}, "noreply@example.com", testLogger())

	order := shippedOrder()
	order.CustomerEmail = ""

	require.NoError(t, svc.SendOrderNotification(context.Background(), "shipped", order))
	assert.Empty(t, sender.sent)
}

func TestTemplateLookupIsCached(t *testing.T) {
	sender := &recordingSender{}
	repo := &fakeTemplateRepo{template: &model.NotificationTemplate{Subject: "s", Body: "b"}}
	svc := NewServiceWithSender(sender, repo, "noreply@example.com", testLogger())

	order := shippedOrder()
	require.NoError(t, svc.SendOrderNotification(context.Background(), "shipped", order))
	require.NoError(t, svc.SendOrderNotification(context.Background(), "shipped", order))

	assert.Equal(t, 1, repo.calls)
	assert.Len(t, sender.sent, 2)
}

func TestRenderTemplate(t *testing.T) {
	fields := map[string]string{"order_number": "ORD-1", "carrier": "usps"}

	assert.Equal(t, "ORD-1 via usps", renderTemplate("{{order_number}} via {{carrier}}", fields))
	assert.Equal(t, "ORD-1 via usps", renderTemplate("{{ order_number }} via {{ carrier }}", fields))
	// Unknown placeholders render empty instead of leaking the marker.
	assert.Equal(t, "hello ", renderTemplate("hello {{mystery}}", fields))
	// An unterminated marker passes through untouched.
	assert.Equal(t, "broken {{order_number", renderTemplate("broken {{order_number", fields))
}
