package codec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/merchantry/fulfillment-api/internal/model"
)

const shipNotifyXML = `<?xml version="1.0" encoding="utf-8"?>
<ShipNotice>
  <OrderID>ss-123456</OrderID>
  <OrderNumber>SO-1001</OrderNumber>
  <TrackingNumber>1Z999AA10123456784</TrackingNumber>
  <Carrier>ups</Carrier>
  <Service>ups_ground</Service>
  <ShipDate>03/07/2025 14:30</ShipDate>
  <ShippingCost>9.99</ShippingCost>
  <Items>
    <Item>
      <SKU><![CDATA[WID-1]]></SKU>
      <Quantity>2</Quantity>
    </Item>
    <Item>
      <SKU>GAD-2</SKU>
      <Quantity>1</Quantity>
    </Item>
  </Items>
</ShipNotice>`

func TestParseShipNoticeXML(t *testing.T) {
	notice, err := ParseShipNoticeXML([]byte(shipNotifyXML))
	require.NoError(t, err)

	assert.Equal(t, model.WebhookShipNotify, notice.EventType)
	assert.Equal(t, "ss-123456", notice.CarrierOrderID)
	assert.Equal(t, "SO-1001", notice.OrderNumber)
	assert.Equal(t, "1Z999AA10123456784", notice.TrackingNumber)
	assert.Equal(t, "ups", notice.CarrierCode)
	assert.Equal(t, "ups_ground", notice.ServiceCode)

	require.NotNil(t, notice.ShipDate)
	assert.Equal(t, time.Date(2025, 3, 7, 14, 30, 0, 0, time.Local), *notice.ShipDate)
	require.NotNil(t, notice.ShippingCostCents)
	assert.Equal(t, int64(999), *notice.ShippingCostCents)

	require.Len(t, notice.Items, 2)
	assert.Equal(t, model.ShipNoticeItem{SKU: "WID-1", Quantity: 2}, notice.Items[0])
	assert.Equal(t, model.ShipNoticeItem{SKU: "GAD-2", Quantity: 1}, notice.Items[1])
}

// Some senders skip the <Items> wrapper and put <Item> on the root.
func TestParseShipNoticeXMLBareItems(t *testing.T) {
	payload := `<ShipNotice>
  <OrderNumber>SO-2</OrderNumber>
  <Item><SKU>X-1</SKU><Quantity>3</Quantity></Item>
</ShipNotice>`
	notice, err := ParseShipNoticeXML([]byte(payload))
	require.NoError(t, err)
	require.Len(t, notice.Items, 1)
	assert.Equal(t, "X-1", notice.Items[0].SKU)
	assert.Equal(t, 3, notice.Items[0].Quantity)
}

func TestParseShipNoticeXMLDeliveryNotice(t *testing.T) {
	payload := `<DeliveryNotice>
  <OrderID>ss-9</OrderID>
  <TrackingNumber>9400100000000000000000</TrackingNumber>
  <DeliveryDate>03/10/2025 16:45</DeliveryDate>
</DeliveryNotice>`
	notice, err := ParseShipNoticeXML([]byte(payload))
	require.NoError(t, err)
	assert.Equal(t, model.WebhookDeliveredNotify, notice.EventType)
	require.NotNil(t, notice.DeliveryDate)
	assert.Equal(t, time.Date(2025, 3, 10, 16, 45, 0, 0, time.Local), *notice.DeliveryDate)
}

func TestParseShipNoticeXMLMissingOrderRef(t *testing.T) {
	_, err := ParseShipNoticeXML([]byte(`<ShipNotice><TrackingNumber>1Z</TrackingNumber></ShipNotice>`))
	assert.Error(t, err)
}

func TestParseShipNoticeXMLMalformed(t *testing.T) {
	_, err := ParseShipNoticeXML([]byte(`<ShipNotice><OrderID>x</OrderID`))
	assert.Error(t, err)
}

func TestParseShipNoticeJSON(t *testing.T) {
	payload := `{
  "event_type": "delivered",
  "order_id": "ss-55",
  "order_number": "SO-55",
  "tracking_number": "TN-55",
  "carrier_code": "fedex",
  "service_code": "fedex_2day",
  "delivery_date": "04/01/2025 12:00",
  "shipping_cost": "15.25",
  "items": [{"sku": "A", "quantity": 4}]
}`
	notice, err := ParseShipNoticeJSON([]byte(payload))
	require.NoError(t, err)
	assert.Equal(t, model.WebhookDeliveredNotify, notice.EventType)
	assert.Equal(t, "ss-55", notice.CarrierOrderID)
	assert.Equal(t, "fedex", notice.CarrierCode)
	require.NotNil(t, notice.ShippingCostCents)
	assert.Equal(t, int64(1525), *notice.ShippingCostCents)
	require.Len(t, notice.Items, 1)
	assert.Equal(t, 4, notice.Items[0].Quantity)
}

func TestParseShipNoticeSniffsFormat(t *testing.T) {
	xmlNotice, err := ParseShipNotice([]byte("  \n" + shipNotifyXML))
	require.NoError(t, err)
	assert.Equal(t, "SO-1001", xmlNotice.OrderNumber)

	jsonNotice, err := ParseShipNotice([]byte(`{"order_number": "SO-2", "tracking_number": "TN"}`))
	require.NoError(t, err)
	assert.Equal(t, "SO-2", jsonNotice.OrderNumber)
	assert.Equal(t, model.WebhookShipNotify, jsonNotice.EventType)

	_, err = ParseShipNotice([]byte("   "))
	assert.Error(t, err)
}

// Attributed or mixed-content nodes still yield their text cleanly.
func TestSafeTextTolerance(t *testing.T) {
	payload := `<ShipNotice>
  <OrderNumber type="internal">  SO-9  </OrderNumber>
  <TrackingNumber><![CDATA[ TN-9 ]]></TrackingNumber>
</ShipNotice>`
	notice, err := ParseShipNoticeXML([]byte(payload))
	require.NoError(t, err)
	assert.Equal(t, "SO-9", notice.OrderNumber)
	assert.Equal(t, "TN-9", notice.TrackingNumber)
}
