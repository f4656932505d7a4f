package v2

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/merchantry/fulfillment-api/internal/carrier"
	"github.com/merchantry/fulfillment-api/internal/carrier/codec"
	"github.com/merchantry/fulfillment-api/internal/model"
	"github.com/merchantry/fulfillment-api/internal/repository"
	"github.com/merchantry/fulfillment-api/pkg/circuitbreaker"
	"github.com/merchantry/fulfillment-api/pkg/logger"
	"github.com/merchantry/fulfillment-api/pkg/metrics"
)

const defaultBaseURL = "https://api.shipstation.com"

// placeholderShipFrom keeps shipment creation from hard-failing when a
// store has no warehouse configured. Shipping from this address is an
// operational misconfiguration, so its use is logged loudly.
var placeholderShipFrom = model.ShipFromAddress{
	Name:       "Fulfillment Center",
	Street1:    "1 Warehouse Way",
	City:       "Austin",
	State:      "TX",
	PostalCode: "78701",
	Country:    "US",
}

type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client speaks the v2 JSON API with api-key header auth.
type Client struct {
	cfg     Config
	http    *http.Client
	cb      *circuitbreaker.CircuitBreaker
	repo    repository.IntegrationRepository
	logger  *logger.Logger
	metrics *metrics.Metrics
	store   *model.StoreIntegration
}

func NewClient(cfg Config, store *model.StoreIntegration, repo repository.IntegrationRepository, log *logger.Logger, m *metrics.Metrics) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		cb:      circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{Name: "carrier-v2"}),
		repo:    repo,
		logger:  log,
		metrics: m,
		store:   store,
	}
}

type shipmentBody struct {
	OrderNumber string      `json:"order_number"`
	ServiceCode string      `json:"service_code,omitempty"`
	ShipFrom    addressBody `json:"ship_from"`
	ShipTo      addressBody `json:"ship_to"`
	Items       []itemBody  `json:"items"`
	OrderTotal  string      `json:"order_total"`
}

type addressBody struct {
	Name       string `json:"name"`
	Company    string `json:"company,omitempty"`
	Street1    string `json:"address_line1"`
	Street2    string `json:"address_line2,omitempty"`
	City       string `json:"city_locality"`
	State      string `json:"state_province"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country_code"`
	Phone      string `json:"phone,omitempty"`
}

type itemBody struct {
	SKU       string `json:"sku"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
}

type shipmentResponse struct {
	ShipmentID     string `json:"shipment_id"`
	TrackingNumber string `json:"tracking_number"`
	LabelURL       string `json:"label_download_url"`
	ShipmentCost   string `json:"shipment_cost"`
}

// CreateShipment posts the order to /v2/shipments. The ship-from falls
// back to a placeholder when nothing better is supplied; that fallback
// is reported as a warning, not hidden.
func (c *Client) CreateShipment(ctx context.Context, req *carrier.ShipmentRequest) (*carrier.ShipmentResult, error) {
	shipFrom := req.ShipFrom
	warnedPlaceholder := false
	if shipFrom == nil {
		shipFrom = &placeholderShipFrom
		warnedPlaceholder = true
		c.logger.Warn("no ship-from configured, using placeholder address",
			"store_id", c.store.StoreID.String(), "order_number", req.Order.OrderNumber)
	}

	body := buildShipmentBody(req, shipFrom)
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal shipment: %w", err)
	}

	start := time.Now()
	result, callErr := c.postShipment(ctx, payload)
	c.logOperation(ctx, "create_shipment", payload, result, callErr, time.Since(start), warnedPlaceholder)

	if callErr != nil {
		return nil, callErr
	}
	return result, nil
}

func (c *Client) postShipment(ctx context.Context, payload []byte) (*carrier.ShipmentResult, error) {
	var result *carrier.ShipmentResult

	err := c.cb.Execute(func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v2/shipments", bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("failed to build request: %w", err)
		}
		httpReq.Header.Set("api-key", c.cfg.APIKey)
		httpReq.Header.Set("Content-Type", "application/json")

		timer := time.Now()
		resp, err := c.http.Do(httpReq)
		c.metrics.CarrierLatency.WithLabelValues("v2", "create_shipment").Observe(time.Since(timer).Seconds())
		if err != nil {
			c.metrics.CarrierCalls.WithLabelValues("v2", "create_shipment", "error").Inc()
			return fmt.Errorf("carrier request failed: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return fmt.Errorf("failed to read carrier response: %w", err)
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			c.metrics.CarrierCalls.WithLabelValues("v2", "create_shipment", "failure").Inc()
			return &carrier.Error{
				StatusCode: resp.StatusCode,
				Message:    carrier.ParseErrorBody(body),
				Body:       string(body),
			}
		}

		c.metrics.CarrierCalls.WithLabelValues("v2", "create_shipment", "success").Inc()

		var sr shipmentResponse
		if err := json.Unmarshal(body, &sr); err != nil {
			return fmt.Errorf("failed to decode carrier response: %w", err)
		}
		costCents := int64(0)
		if sr.ShipmentCost != "" {
			if cents, err := codec.ParseDollars(sr.ShipmentCost); err == nil {
				costCents = int64(cents)
			}
		}
		result = &carrier.ShipmentResult{
			CarrierOrderID: sr.ShipmentID,
			TrackingNumber: sr.TrackingNumber,
			LabelURL:       sr.LabelURL,
			CostCents:      costCents,
			Raw:            json.RawMessage(body),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// TestCredentials probes GET /v2/carriers, the cheapest authenticated
// endpoint the platform offers.
func (c *Client) TestCredentials(ctx context.Context) error {
	return c.cb.Execute(func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/v2/carriers", nil)
		if err != nil {
			return err
		}
		httpReq.Header.Set("api-key", c.cfg.APIKey)

		resp, err := c.http.Do(httpReq)
		if err != nil {
			return fmt.Errorf("carrier request failed: %w", err)
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return &carrier.Error{StatusCode: resp.StatusCode, Message: "credentials rejected"}
		}
		if resp.StatusCode >= 500 {
			return &carrier.Error{StatusCode: resp.StatusCode, Message: "carrier unavailable"}
		}
		return nil
	})
}

func buildShipmentBody(req *carrier.ShipmentRequest, shipFrom *model.ShipFromAddress) shipmentBody {
	o := req.Order

	var shipTo model.Address
	if len(o.ShippingAddress) > 0 {
		_ = json.Unmarshal(o.ShippingAddress, &shipTo)
	}
	if shipTo.Name == "" {
		shipTo.Name = o.CustomerName
	}

	items := make([]itemBody, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, itemBody{
			SKU:       item.SKU,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: codec.Cents(item.UnitPriceCents).FormatDollars(),
		})
	}

	company := ""
	if shipFrom.Company != nil {
		company = *shipFrom.Company
	}
	street2 := ""
	if shipFrom.Street2 != nil {
		street2 = *shipFrom.Street2
	}
	phone := ""
	if shipFrom.Phone != nil {
		phone = *shipFrom.Phone
	}

	return shipmentBody{
		OrderNumber: o.OrderNumber,
		ServiceCode: req.ServiceCode,
		ShipFrom: addressBody{
			Name:       shipFrom.Name,
			Company:    company,
			Street1:    shipFrom.Street1,
			Street2:    street2,
			City:       shipFrom.City,
			State:      shipFrom.State,
			PostalCode: shipFrom.PostalCode,
			Country:    shipFrom.Country,
			Phone:      phone,
		},
		ShipTo: addressBody{
			Name:       shipTo.Name,
			Company:    shipTo.Company,
			Street1:    shipTo.Street1,
			Street2:    shipTo.Street2,
			City:       shipTo.City,
			State:      shipTo.State,
			PostalCode: shipTo.PostalCode,
			Country:    shipTo.Country,
			Phone:      shipTo.Phone,
		},
		Items:      items,
		OrderTotal: codec.Cents(o.TotalCents).FormatDollars(),
	}
}

func (c *Client) logOperation(ctx context.Context, operation string, request []byte, result *carrier.ShipmentResult, callErr error, elapsed time.Duration, usedPlaceholder bool) {
	status := model.IntegrationLogSuccess
	var errMsg *string
	if callErr != nil {
		status = model.IntegrationLogFailure
		s := callErr.Error()
		errMsg = &s
	} else if usedPlaceholder {
		status = model.IntegrationLogWarning
		s := "shipment created with placeholder ship-from address"
		errMsg = &s
	}

	requestData, _ := json.Marshal(map[string]string{
		"endpoint": c.cfg.BaseURL + "/v2/shipments",
		"api_key":  carrier.MaskSecret(c.cfg.APIKey),
		"body":     string(request),
	})
	var responseData json.RawMessage
	if result != nil {
		responseData, _ = json.Marshal(result)
	}

	log := &model.IntegrationLog{
		StoreID:         c.store.StoreID,
		IntegrationType: model.IntegrationShipStationV2,
		Operation:       operation,
		Status:          status,
		RequestData:     requestData,
		ResponseData:    responseData,
		ExecutionTimeMs: elapsed.Milliseconds(),
		ErrorMessage:    errMsg,
	}
	if err := c.repo.LogOperation(ctx, log); err != nil {
		c.logger.Error(err, "failed to write integration log", "operation", operation)
	}
}
