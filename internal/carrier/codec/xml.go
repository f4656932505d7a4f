package codec

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/merchantry/fulfillment-api/internal/model"
)

// escapeXML escapes the five XML-unsafe characters for attribute and
// element content.
func escapeXML(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '&':
			b.WriteString("&amp;")
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		case '"':
			b.WriteString("&quot;")
		case '\'':
			b.WriteString("&apos;")
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// cdata wraps free text in a CDATA section. An embedded "]]>" would
// close the section early, so it is split across two sections.
func cdata(s string) string {
	return "<![CDATA[" + strings.ReplaceAll(s, "]]>", "]]]]><![CDATA[>") + "]]>"
}

// xmlBuilder accumulates an indented XML document.
type xmlBuilder struct {
	b      strings.Builder
	indent int
}

func newXMLBuilder() *xmlBuilder {
	x := &xmlBuilder{}
	x.b.WriteString(`<?xml version="1.0" encoding="utf-8"?>` + "\n")
	return x
}

func (x *xmlBuilder) pad() {
	for i := 0; i < x.indent; i++ {
		x.b.WriteString("  ")
	}
}

func (x *xmlBuilder) open(name string, attrs ...string) {
	x.pad()
	x.b.WriteString("<" + name)
	for i := 0; i+1 < len(attrs); i += 2 {
		x.b.WriteString(fmt.Sprintf(` %s="%s"`, attrs[i], escapeXML(attrs[i+1])))
	}
	x.b.WriteString(">\n")
	x.indent++
}

func (x *xmlBuilder) close(name string) {
	x.indent--
	x.pad()
	x.b.WriteString("</" + name + ">\n")
}

// elem writes a leaf element with escaped content.
func (x *xmlBuilder) elem(name, value string) {
	x.pad()
	x.b.WriteString("<" + name + ">" + escapeXML(value) + "</" + name + ">\n")
}

// text writes a leaf element whose free-text content is CDATA-wrapped.
func (x *xmlBuilder) text(name, value string) {
	x.pad()
	x.b.WriteString("<" + name + ">" + cdata(value) + "</" + name + ">\n")
}

func (x *xmlBuilder) bytes() []byte {
	return []byte(x.b.String())
}

// ExportOrder pairs an order with its line items for document building.
type ExportOrder struct {
	Order *model.Order
	Items []*model.OrderItem
}

// BuildOrdersDocument renders the paginated export document the carrier
// platform polls: <Orders pages="N" page="P"> with one <Order> per row.
func BuildOrdersDocument(orders []ExportOrder, page, pages int) []byte {
	x := newXMLBuilder()
	x.open("Orders", "pages", fmt.Sprintf("%d", pages), "page", fmt.Sprintf("%d", page))
	for _, eo := range orders {
		writeOrder(x, eo)
	}
	x.close("Orders")
	return x.bytes()
}

func writeOrder(x *xmlBuilder, eo ExportOrder) {
	o := eo.Order

	x.open("Order")
	x.text("OrderID", o.ID.String())
	x.text("OrderNumber", o.OrderNumber)
	x.elem("OrderDate", FormatCarrierDate(o.CreatedAt))
	x.elem("OrderStatus", CarrierStatus(o.Status))
	x.elem("LastModified", FormatCarrierDate(o.UpdatedAt))
	x.elem("OrderTotal", Cents(o.TotalCents).FormatDollars())
	x.elem("TaxAmount", Cents(o.TaxCents).FormatDollars())
	x.elem("ShippingAmount", Cents(o.ShippingCents).FormatDollars())

	x.open("Customer")
	x.text("CustomerCode", o.CustomerEmail)
	writeAddress(x, "BillTo", decodeAddress(o.BillingAddress, o.CustomerName), o.CustomerEmail)
	writeAddress(x, "ShipTo", decodeAddress(o.ShippingAddress, o.CustomerName), "")
	x.close("Customer")

	x.open("Items")
	for _, item := range eo.Items {
		x.open("Item")
		x.text("SKU", item.SKU)
		x.text("Name", item.Name)
		x.elem("Quantity", fmt.Sprintf("%d", item.Quantity))
		x.elem("UnitPrice", Cents(item.UnitPriceCents).FormatDollars())
		if item.WeightOunces != nil {
			x.elem("Weight", fmt.Sprintf("%.2f", *item.WeightOunces))
			x.elem("WeightUnits", "ounces")
		}
		x.close("Item")
	}
	x.close("Items")
	x.close("Order")
}

func writeAddress(x *xmlBuilder, name string, addr model.Address, email string) {
	x.open(name)
	x.text("Name", addr.Name)
	if addr.Company != "" {
		x.text("Company", addr.Company)
	}
	x.text("Address1", addr.Street1)
	if addr.Street2 != "" {
		x.text("Address2", addr.Street2)
	}
	x.text("City", addr.City)
	x.elem("State", addr.State)
	x.elem("PostalCode", addr.PostalCode)
	x.elem("Country", addr.Country)
	if addr.Phone != "" {
		x.elem("Phone", addr.Phone)
	}
	if email != "" {
		x.text("Email", email)
	}
	x.close(name)
}

// decodeAddress decodes a denormalized address column, falling back to
// the customer name when the column is empty.
func decodeAddress(raw []byte, fallbackName string) model.Address {
	var addr model.Address
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &addr)
	}
	if addr.Name == "" {
		addr.Name = fallbackName
	}
	return addr
}

// LegacyOrder is the carrier-specific nested shape POSTed to the legacy
// order-creation endpoint, after the generic order has been split into
// bill-to/ship-to and weights defaulted.
type LegacyOrder struct {
	OrderNumber string
	OrderDate   time.Time
	OrderStatus model.OrderStatus
	Total       Cents
	Tax         Cents
	Shipping    Cents
	Customer    string
	Email       string
	BillTo      model.Address
	ShipTo      model.Address
	Items       []LegacyItem
}

// LegacyItem carries defaulted weight and dimensions; the fallback
// weight per item when the true weight is unknown is 16 oz.
type LegacyItem struct {
	SKU          string
	Name         string
	Quantity     int
	UnitPrice    Cents
	WeightOunces float64
	LengthInches float64
	WidthInches  float64
	HeightInches float64
}

// BuildCreateOrderXML serializes a legacy order-creation request.
func BuildCreateOrderXML(o *LegacyOrder) []byte {
	x := newXMLBuilder()
	x.open("Order")
	x.text("OrderNumber", o.OrderNumber)
	x.elem("OrderDate", FormatCarrierDate(o.OrderDate))
	x.elem("OrderStatus", CarrierStatus(o.OrderStatus))
	x.elem("OrderTotal", o.Total.FormatDollars())
	x.elem("TaxAmount", o.Tax.FormatDollars())
	x.elem("ShippingAmount", o.Shipping.FormatDollars())

	x.open("Customer")
	x.text("CustomerCode", o.Email)
	writeAddress(x, "BillTo", o.BillTo, o.Email)
	writeAddress(x, "ShipTo", o.ShipTo, "")
	x.close("Customer")

	x.open("Items")
	for _, item := range o.Items {
		x.open("Item")
		x.text("SKU", item.SKU)
		x.text("Name", item.Name)
		x.elem("Quantity", fmt.Sprintf("%d", item.Quantity))
		x.elem("UnitPrice", item.UnitPrice.FormatDollars())
		x.elem("Weight", fmt.Sprintf("%.2f", item.WeightOunces))
		x.elem("WeightUnits", "ounces")
		x.close("Item")
	}
	x.close("Items")
	x.close("Order")
	return x.bytes()
}
