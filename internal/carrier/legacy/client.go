package legacy

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

const (
	defaultBaseURL = "https://ssapi.shipstation.com"
	// Fallback weight per item when the catalog has no real weight.
	fallbackItemWeightOunces = 16.0

	defaultLengthInches = 6.0
	defaultWidthInches  = 4.0
	defaultHeightInches = 2.0
)

type Config struct {
	BaseURL  string
	Username string
	Password string
	Timeout  time.Duration
}

// Client speaks the legacy XML order-creation API over Basic Auth.
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
		cb:      circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{Name: "carrier-legacy"}),
		repo:    repo,
		logger:  log,
		metrics: m,
		store:   store,
	}
}

// CreateShipment posts the order to /orders/createorder as XML. The
// generic order shape is first translated into the carrier's nested
// bill-to/ship-to form with weights defaulted.
func (c *Client) CreateShipment(ctx context.Context, req *carrier.ShipmentRequest) (*carrier.ShipmentResult, error) {
	legacyOrder := translateOrder(req)
	payload := codec.BuildCreateOrderXML(legacyOrder)

	start := time.Now()
	result, callErr := c.postOrder(ctx, payload)
	c.logOperation(ctx, "create_order", payload, result, callErr, time.Since(start))

	if callErr != nil {
		return nil, callErr
	}
	return result, nil
}

func (c *Client) postOrder(ctx context.Context, payload []byte) (*carrier.ShipmentResult, error) {
	var result *carrier.ShipmentResult

	err := c.cb.Execute(func() error {
		url := c.cfg.BaseURL + "/orders/createorder"
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("failed to build request: %w", err)
		}
		httpReq.SetBasicAuth(c.cfg.Username, c.cfg.Password)
		httpReq.Header.Set("Content-Type", "application/xml")

		timer := time.Now()
		resp, err := c.http.Do(httpReq)
		c.metrics.CarrierLatency.WithLabelValues("legacy", "create_order").Observe(time.Since(timer).Seconds())
		if err != nil {
			c.metrics.CarrierCalls.WithLabelValues("legacy", "create_order", "error").Inc()
			return fmt.Errorf("carrier request failed: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return fmt.Errorf("failed to read carrier response: %w", err)
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			c.metrics.CarrierCalls.WithLabelValues("legacy", "create_order", "failure").Inc()
			return &carrier.Error{
				StatusCode: resp.StatusCode,
				Message:    carrier.ParseErrorBody(body),
				Body:       string(body),
			}
		}

		c.metrics.CarrierCalls.WithLabelValues("legacy", "create_order", "success").Inc()
		result = parseCreateOrderResponse(body)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// TestCredentials issues an authenticated GET against the orders
// endpoint; a 401 means the Basic credentials are wrong.
func (c *Client) TestCredentials(ctx context.Context) error {
	return c.cb.Execute(func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/orders", nil)
		if err != nil {
			return err
		}
		httpReq.SetBasicAuth(c.cfg.Username, c.cfg.Password)

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

// translateOrder splits the generic order into the carrier's nested
// shape and defaults weights and dimensions.
func translateOrder(req *carrier.ShipmentRequest) *codec.LegacyOrder {
	o := req.Order

	billTo := decodeAddr(o.BillingAddress, o.CustomerName)
	shipTo := decodeAddr(o.ShippingAddress, o.CustomerName)

	items := make([]codec.LegacyItem, 0, len(req.Items))
	for _, item := range req.Items {
		weight := fallbackItemWeightOunces
		if item.WeightOunces != nil && *item.WeightOunces > 0 {
			weight = *item.WeightOunces
		}
		items = append(items, codec.LegacyItem{
			SKU:          item.SKU,
			Name:         item.Name,
			Quantity:     item.Quantity,
			UnitPrice:    codec.Cents(item.UnitPriceCents),
			WeightOunces: weight,
			LengthInches: defaultLengthInches,
			WidthInches:  defaultWidthInches,
			HeightInches: defaultHeightInches,
		})
	}

	return &codec.LegacyOrder{
		OrderNumber: o.OrderNumber,
		OrderDate:   o.CreatedAt,
		OrderStatus: o.Status,
		Total:       codec.Cents(o.TotalCents),
		Tax:         codec.Cents(o.TaxCents),
		Shipping:    codec.Cents(o.ShippingCents),
		Customer:    o.CustomerName,
		Email:       o.CustomerEmail,
		BillTo:      billTo,
		ShipTo:      shipTo,
		Items:       items,
	}
}

func decodeAddr(raw json.RawMessage, fallbackName string) model.Address {
	var addr model.Address
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &addr)
	}
	if addr.Name == "" {
		addr.Name = fallbackName
	}
	return addr
}

// parseCreateOrderResponse extracts the carrier-assigned identifiers
// from a legacy XML response, tolerating missing fields.
func parseCreateOrderResponse(body []byte) *carrier.ShipmentResult {
	notice, err := codec.ParseShipNoticeXML(body)
	if err != nil {
		return &carrier.ShipmentResult{Raw: json.RawMessage(nil)}
	}
	result := &carrier.ShipmentResult{
		CarrierOrderID: notice.CarrierOrderID,
		TrackingNumber: notice.TrackingNumber,
		LabelURL:       notice.LabelURL,
	}
	if notice.ShippingCostCents != nil {
		result.CostCents = *notice.ShippingCostCents
	}
	return result
}

func (c *Client) logOperation(ctx context.Context, operation string, request []byte, result *carrier.ShipmentResult, callErr error, elapsed time.Duration) {
	status := model.IntegrationLogSuccess
	var errMsg *string
	if callErr != nil {
		status = model.IntegrationLogFailure
		s := callErr.Error()
		errMsg = &s
	}

	requestData, _ := json.Marshal(map[string]string{
		"endpoint": c.cfg.BaseURL + "/orders/createorder",
		"username": carrier.MaskSecret(c.cfg.Username),
		"body":     string(request),
	})
	var responseData json.RawMessage
	if result != nil {
		responseData, _ = json.Marshal(result)
	}

	log := &model.IntegrationLog{
		StoreID:         c.store.StoreID,
		IntegrationType: model.IntegrationShipStationLegacy,
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
