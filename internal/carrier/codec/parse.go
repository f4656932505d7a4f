package codec

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/merchantry/fulfillment-api/internal/model"
)

// node is a permissive XML element: attributes, accumulated text
// (chardata and CDATA both land here), and children grouped by name so
// one <Item> and many <Item>s read the same way.
type node struct {
	attrs    map[string]string
	text     string
	children map[string][]*node
}

// safeText is the "safe string" extractor: trimmed element text,
// working for plain text nodes and attributed/mixed nodes alike.
func (n *node) safeText() string {
	if n == nil {
		return ""
	}
	return strings.TrimSpace(n.text)
}

// child returns the first child of the given name, nil if absent.
func (n *node) child(name string) *node {
	if n == nil {
		return nil
	}
	kids := n.children[name]
	if len(kids) == 0 {
		return nil
	}
	return kids[0]
}

// childText is child(name).safeText() in one step.
func (n *node) childText(name string) string {
	return n.child(name).safeText()
}

// all returns every child of the given name, tolerating both a single
// element and an array-wrapped repetition.
func (n *node) all(name string) []*node {
	if n == nil {
		return nil
	}
	return n.children[name]
}

// parseElement consumes one element (start token already read) into a
// node tree.
func parseElement(d *xml.Decoder, start xml.StartElement) (*node, error) {
	n := &node{
		attrs:    make(map[string]string),
		children: make(map[string][]*node),
	}
	for _, attr := range start.Attr {
		n.attrs[attr.Name.Local] = attr.Value
	}

	for {
		tok, err := d.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			child, err := parseElement(d, t)
			if err != nil {
				return nil, err
			}
			n.children[t.Name.Local] = append(n.children[t.Name.Local], child)
		case xml.CharData:
			n.text += string(t)
		case xml.EndElement:
			return n, nil
		}
	}
}

// parseDocument reads the root element of an XML payload.
func parseDocument(payload []byte) (*node, string, error) {
	d := xml.NewDecoder(bytes.NewReader(payload))
	for {
		tok, err := d.Token()
		if err == io.EOF {
			return nil, "", fmt.Errorf("no root element in payload")
		}
		if err != nil {
			return nil, "", fmt.Errorf("malformed xml: %w", err)
		}
		if start, ok := tok.(xml.StartElement); ok {
			root, err := parseElement(d, start)
			if err != nil {
				return nil, "", fmt.Errorf("malformed xml: %w", err)
			}
			return root, start.Name.Local, nil
		}
	}
}

// ParseShipNoticeXML decodes a legacy carrier shipnotify payload. The
// parser is deliberately permissive: singular or array-wrapped items,
// attributed nodes, and missing optional fields all parse cleanly.
func ParseShipNoticeXML(payload []byte) (*model.ShipNotice, error) {
	root, rootName, err := parseDocument(payload)
	if err != nil {
		return nil, err
	}

	notice := &model.ShipNotice{
		EventType:      model.WebhookShipNotify,
		CarrierOrderID: root.childText("OrderID"),
		OrderNumber:    root.childText("OrderNumber"),
		TrackingNumber: root.childText("TrackingNumber"),
		CarrierCode:    root.childText("Carrier"),
		ServiceCode:    root.childText("Service"),
		LabelURL:       root.childText("LabelURL"),
		CustomsFormURL: root.childText("CustomsFormURL"),
		Raw:            payload,
	}
	if strings.EqualFold(rootName, "DeliveryNotice") {
		notice.EventType = model.WebhookDeliveredNotify
	}

	if s := root.childText("ShipDate"); s != "" {
		if t, err := ParseCarrierDate(s); err == nil {
			notice.ShipDate = &t
		}
	}
	if s := root.childText("DeliveryDate"); s != "" {
		if t, err := ParseCarrierDate(s); err == nil {
			notice.DeliveryDate = &t
		}
	}
	if s := root.childText("ShippingCost"); s != "" {
		if c, err := ParseDollars(s); err == nil {
			v := int64(c)
			notice.ShippingCostCents = &v
		}
	}

	// <Items><Item>...</Item></Items>, or a bare <Item> on the root.
	itemParents := root.all("Items")
	if len(itemParents) == 0 {
		itemParents = []*node{root}
	}
	for _, parent := range itemParents {
		for _, item := range parent.all("Item") {
			qty, _ := strconv.Atoi(item.childText("Quantity"))
			notice.Items = append(notice.Items, model.ShipNoticeItem{
				SKU:      item.childText("SKU"),
				Quantity: qty,
			})
		}
	}

	if notice.CarrierOrderID == "" && notice.OrderNumber == "" {
		return nil, fmt.Errorf("ship notice carries neither order id nor order number")
	}
	return notice, nil
}

// shipNoticeJSON is the v2 webhook body shape.
type shipNoticeJSON struct {
	EventType      string `json:"event_type"`
	OrderID        string `json:"order_id"`
	OrderNumber    string `json:"order_number"`
	TrackingNumber string `json:"tracking_number"`
	CarrierCode    string `json:"carrier_code"`
	ServiceCode    string `json:"service_code"`
	LabelURL       string `json:"label_url"`
	CustomsFormURL string `json:"customs_form_url"`
	ShipDate       string `json:"ship_date"`
	DeliveryDate   string `json:"delivery_date"`
	ShippingCost   string `json:"shipping_cost"`
	Items          []struct {
		SKU      string `json:"sku"`
		Quantity int    `json:"quantity"`
	} `json:"items"`
}

// ParseShipNoticeJSON decodes a v2 carrier webhook payload.
func ParseShipNoticeJSON(payload []byte) (*model.ShipNotice, error) {
	var body shipNoticeJSON
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("malformed json payload: %w", err)
	}

	notice := &model.ShipNotice{
		EventType:      model.WebhookShipNotify,
		CarrierOrderID: body.OrderID,
		OrderNumber:    body.OrderNumber,
		TrackingNumber: body.TrackingNumber,
		CarrierCode:    body.CarrierCode,
		ServiceCode:    body.ServiceCode,
		LabelURL:       body.LabelURL,
		CustomsFormURL: body.CustomsFormURL,
		Raw:            payload,
	}
	switch strings.ToLower(body.EventType) {
	case "delivered", "delivered_notify":
		notice.EventType = model.WebhookDeliveredNotify
	case "order_notify":
		notice.EventType = model.WebhookOrderNotify
	}

	if body.ShipDate != "" {
		if t, err := ParseCarrierDate(body.ShipDate); err == nil {
			notice.ShipDate = &t
		}
	}
	if body.DeliveryDate != "" {
		if t, err := ParseCarrierDate(body.DeliveryDate); err == nil {
			notice.DeliveryDate = &t
		}
	}
	if body.ShippingCost != "" {
		if c, err := ParseDollars(body.ShippingCost); err == nil {
			v := int64(c)
			notice.ShippingCostCents = &v
		}
	}
	for _, item := range body.Items {
		notice.Items = append(notice.Items, model.ShipNoticeItem{SKU: item.SKU, Quantity: item.Quantity})
	}

	if notice.CarrierOrderID == "" && notice.OrderNumber == "" {
		return nil, fmt.Errorf("ship notice carries neither order id nor order number")
	}
	return notice, nil
}

// ParseShipNotice sniffs the payload format and dispatches. Legacy
// deliveries are XML, v2 deliveries are JSON.
func ParseShipNotice(payload []byte) (*model.ShipNotice, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty payload")
	}
	if trimmed[0] == '<' {
		return ParseShipNoticeXML(trimmed)
	}
	return ParseShipNoticeJSON(trimmed)
}

// ParseExportedOrder reads one <Order> element back into its logical
// fields; used to validate round trips of the export document.
type ExportedOrder struct {
	OrderID     string
	OrderNumber string
	Status      model.OrderStatus
	TotalCents  Cents
	Customer    model.Address
	ShipTo      model.Address
	Items       []ExportedItem
}

type ExportedItem struct {
	SKU       string
	Name      string
	Quantity  int
	UnitPrice Cents
}

// ParseOrdersDocument decodes an export document back into its logical
// orders. Tolerant of a single <Order> without the <Orders> wrapper.
func ParseOrdersDocument(payload []byte) ([]ExportedOrder, int, int, error) {
	root, rootName, err := parseDocument(payload)
	if err != nil {
		return nil, 0, 0, err
	}

	orderNodes := root.all("Order")
	if strings.EqualFold(rootName, "Order") {
		orderNodes = []*node{root}
	}

	pages, _ := strconv.Atoi(root.attrs["pages"])
	page, _ := strconv.Atoi(root.attrs["page"])

	orders := make([]ExportedOrder, 0, len(orderNodes))
	for _, on := range orderNodes {
		status, _ := InternalStatus(on.childText("OrderStatus"))
		total, _ := ParseDollars(on.childText("OrderTotal"))

		eo := ExportedOrder{
			OrderID:     on.childText("OrderID"),
			OrderNumber: on.childText("OrderNumber"),
			Status:      status,
			TotalCents:  total,
		}

		if customer := on.child("Customer"); customer != nil {
			eo.Customer = parseAddress(customer.child("BillTo"))
			eo.ShipTo = parseAddress(customer.child("ShipTo"))
		}

		itemParents := on.all("Items")
		if len(itemParents) == 0 {
			itemParents = []*node{on}
		}
		for _, parent := range itemParents {
			for _, item := range parent.all("Item") {
				qty, _ := strconv.Atoi(item.childText("Quantity"))
				price, _ := ParseDollars(item.childText("UnitPrice"))
				eo.Items = append(eo.Items, ExportedItem{
					SKU:       item.childText("SKU"),
					Name:      item.childText("Name"),
					Quantity:  qty,
					UnitPrice: price,
				})
			}
		}
		orders = append(orders, eo)
	}
	return orders, page, pages, nil
}

func parseAddress(n *node) model.Address {
	return model.Address{
		Name:       n.childText("Name"),
		Company:    n.childText("Company"),
		Street1:    n.childText("Address1"),
		Street2:    n.childText("Address2"),
		City:       n.childText("City"),
		State:      n.childText("State"),
		PostalCode: n.childText("PostalCode"),
		Country:    n.childText("Country"),
		Phone:      n.childText("Phone"),
	}
}
