package codec

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/merchantry/fulfillment-api/internal/model"
)

func TestEscapeXML(t *testing.T) {
	assert.Equal(t, "Tom &amp; Jerry &lt;3 &gt;:) &quot;quoted&quot; &apos;s", escapeXML(`Tom & Jerry <3 >:) "quoted" 's`))
	assert.Equal(t, "plain", escapeXML("plain"))
}

func TestCDATASplitsTerminator(t *testing.T) {
	assert.Equal(t, "<![CDATA[before ]]]]><![CDATA[> after]]>", cdata("before ]]> after"))
	assert.Equal(t, "<![CDATA[plain]]>", cdata("plain"))
}

func exportFixture() ExportOrder {
	billing, _ := json.Marshal(model.Address{
		Name:       `Renée O'Brien <QA> & "Friends"`,
		Street1:    "12 Rue de la Paix",
		City:       "Montréal",
		State:      "QC",
		PostalCode: "H3B 2Y3",
		Country:    "CA",
	})
	shipping, _ := json.Marshal(model.Address{
		Name:       "Renée O'Brien",
		Street1:    "500 Delivery Way",
		Street2:    "Suite ]]> 9",
		City:       "Toronto",
		State:      "ON",
		PostalCode: "M5V 2T6",
		Country:    "CA",
	})

	weight := 12.5
	return ExportOrder{
		Order: &model.Order{
			ID:              uuid.New(),
			OrderNumber:     "SO-1001 & co",
			Status:          model.OrderStatusConfirmed,
			CustomerName:    "Renée O'Brien",
			CustomerEmail:   "renee@example.com",
			BillingAddress:  billing,
			ShippingAddress: shipping,
			TotalCents:      12999,
			TaxCents:        1300,
			ShippingCents:   999,
			CreatedAt:       time.Date(2025, 2, 14, 10, 0, 0, 0, time.Local),
			UpdatedAt:       time.Date(2025, 2, 15, 8, 30, 0, 0, time.Local),
		},
		Items: []*model.OrderItem{
			{SKU: "WID-<1>", Name: `Widget "Deluxe"`, Quantity: 2, UnitPriceCents: 4999, WeightOunces: &weight},
			{SKU: "GAD-2", Name: "Gadget ]]> Pro", Quantity: 1, UnitPriceCents: 3001},
		},
	}
}

func TestBuildOrdersDocumentRoundTrip(t *testing.T) {
	fixture := exportFixture()
	doc := BuildOrdersDocument([]ExportOrder{fixture}, 2, 5)

	orders, page, pages, err := ParseOrdersDocument(doc)
	require.NoError(t, err)
	assert.Equal(t, 2, page)
	assert.Equal(t, 5, pages)
	require.Len(t, orders, 1)

	got := orders[0]
	assert.Equal(t, fixture.Order.ID.String(), got.OrderID)
	assert.Equal(t, "SO-1001 & co", got.OrderNumber)
	assert.Equal(t, model.OrderStatusConfirmed, got.Status)
	assert.Equal(t, Cents(12999), got.TotalCents)

	assert.Equal(t, `Renée O'Brien <QA> & "Friends"`, got.Customer.Name)
	assert.Equal(t, "Suite ]]> 9", got.ShipTo.Street2)
	assert.Equal(t, "Toronto", got.ShipTo.City)

	require.Len(t, got.Items, 2)
	assert.Equal(t, "WID-<1>", got.Items[0].SKU)
	assert.Equal(t, `Widget "Deluxe"`, got.Items[0].Name)
	assert.Equal(t, 2, got.Items[0].Quantity)
	assert.Equal(t, Cents(4999), got.Items[0].UnitPrice)
	assert.Equal(t, "Gadget ]]> Pro", got.Items[1].Name)
}

func TestBuildOrdersDocumentPaginationAttrs(t *testing.T) {
	doc := string(BuildOrdersDocument(nil, 1, 1))
	assert.Contains(t, doc, `<Orders pages="1" page="1">`)
	assert.True(t, strings.HasPrefix(doc, `<?xml version="1.0" encoding="utf-8"?>`))
}

func TestBuildCreateOrderXML(t *testing.T) {
	legacy := &LegacyOrder{
		OrderNumber: "SO-77",
		OrderDate:   time.Date(2025, 1, 2, 15, 4, 0, 0, time.Local),
		OrderStatus: model.OrderStatusConfirmed,
		Total:       10500,
		Tax:         500,
		Shipping:    1000,
		Email:       "buyer@example.com",
		BillTo:      model.Address{Name: "Buyer", Street1: "1 Main St", City: "Springfield", State: "IL", PostalCode: "62701", Country: "US"},
		ShipTo:      model.Address{Name: "Buyer", Street1: "1 Main St", City: "Springfield", State: "IL", PostalCode: "62701", Country: "US"},
		Items: []LegacyItem{
			{SKU: "A-1", Name: "Anvil", Quantity: 1, UnitPrice: 10500, WeightOunces: 16},
		},
	}

	doc := string(BuildCreateOrderXML(legacy))
	assert.Contains(t, doc, "<OrderNumber><![CDATA[SO-77]]></OrderNumber>")
	assert.Contains(t, doc, "<OrderDate>01/02/2025 15:04</OrderDate>")
	assert.Contains(t, doc, "<OrderStatus>awaiting_shipment</OrderStatus>")
	assert.Contains(t, doc, "<OrderTotal>105.00</OrderTotal>")
	assert.Contains(t, doc, "<Weight>16.00</Weight>")
	assert.Contains(t, doc, "<WeightUnits>ounces</WeightUnits>")
}
