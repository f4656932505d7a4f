package email

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	cache "github.com/patrickmn/go-cache"
	gomail "gopkg.in/gomail.v2"

	"github.com/merchantry/fulfillment-api/internal/model"
	"github.com/merchantry/fulfillment-api/internal/repository"
	"github.com/merchantry/fulfillment-api/pkg/logger"
)

const (
	templateCacheTTL = 5 * time.Minute

	defaultShippedSubject = "Your order {{order_number}} has shipped"
	defaultShippedBody    = "Good news! Order {{order_number}} is on its way via {{carrier}}.\n" +
		"Track it here: {{tracking_url}}\nTracking number: {{tracking_number}}"
	defaultDeliveredSubject = "Your order {{order_number}} was delivered"
	defaultDeliveredBody    = "Order {{order_number}} was delivered. Thanks for shopping with us!"
)

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Enabled  bool
}

// Sender is the transport seam, satisfied by gomail's Dialer in
// production and a recorder in tests.
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// Service sends order status emails rendered from store-scoped
// templates. Templates are cached briefly so notification bursts after
// a carrier batch don't hammer the table.
type Service struct {
	sender    Sender
	templates repository.NotificationRepository
	cache     *cache.Cache
	logger    *logger.Logger
	from      string
	enabled   bool
}

func NewService(cfg Config, templates repository.NotificationRepository, log *logger.Logger) *Service {
	return &Service{
		sender:    gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		templates: templates,
		cache:     cache.New(templateCacheTTL, 2*templateCacheTTL),
		logger:    log,
		from:      cfg.From,
		enabled:   cfg.Enabled,
	}
}

// NewServiceWithSender wires a custom transport.
func NewServiceWithSender(sender Sender, templates repository.NotificationRepository, from string, log *logger.Logger) *Service {
	return &Service{
		sender:    sender,
		templates: templates,
		cache:     cache.New(templateCacheTTL, 2*templateCacheTTL),
		logger:    log,
		from:      from,
		enabled:   true,
	}
}

// SendOrderNotification renders and sends the template of the given
// kind (shipped, delivered) for the order's store. A missing template
// falls back to a built-in default rather than dropping the email.
func (s *Service) SendOrderNotification(ctx context.Context, kind string, order *model.Order) error {
	if !s.enabled {
		s.logger.Debug("email sending disabled, skipping notification",
			"kind", kind, "order_id", order.ID.String())
		return nil
	}
	if order.CustomerEmail == "" {
		s.logger.Warn("order has no customer email, notification skipped",
			"order_id", order.ID.String())
		return nil
	}

	tmpl, err := s.templateFor(ctx, order.StoreID, kind)
	if err != nil {
		return err
	}

	fields := templateFields(order)
	subject := renderTemplate(tmpl.Subject, fields)
	body := renderTemplate(tmpl.Body, fields)

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", order.CustomerEmail)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	if err := s.sender.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send %s notification for order %s: %w", kind, order.ID, err)
	}

	s.logger.Info("order notification sent",
		"kind", kind,
		"order_id", order.ID.String(),
		"order_number", order.OrderNumber)
	return nil
}

func (s *Service) templateFor(ctx context.Context, storeID uuid.UUID, kind string) (*model.NotificationTemplate, error) {
	cacheKey := storeID.String() + ":" + kind
	if cached, ok := s.cache.Get(cacheKey); ok {
		return cached.(*model.NotificationTemplate), nil
	}

	tmpl, err := s.templates.GetTemplate(ctx, storeID, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to load notification template: %w", err)
	}
	if tmpl == nil {
		tmpl = defaultTemplate(storeID, kind)
	}

	s.cache.Set(cacheKey, tmpl, cache.DefaultExpiration)
	return tmpl, nil
}

func defaultTemplate(storeID uuid.UUID, kind string) *model.NotificationTemplate {
	t := &model.NotificationTemplate{StoreID: storeID, Kind: kind}
	switch kind {
	case "delivered":
		t.Subject = defaultDeliveredSubject
		t.Body = defaultDeliveredBody
	default:
		t.Subject = defaultShippedSubject
		t.Body = defaultShippedBody
	}
	return t
}

func templateFields(order *model.Order) map[string]string {
	fields := map[string]string{
		"order_number":  order.OrderNumber,
		"customer_name": order.CustomerName,
	}
	if order.CarrierCode != nil {
		fields["carrier"] = *order.CarrierCode
	}
	if order.TrackingNumber != nil {
		fields["tracking_number"] = *order.TrackingNumber
	}
	if order.TrackingURL != nil {
		fields["tracking_url"] = *order.TrackingURL
	}
	return fields
}

// renderTemplate substitutes {{field}} placeholders. Unknown
// placeholders render empty rather than leaking the raw marker.
func renderTemplate(text string, fields map[string]string) string {
	var b strings.Builder
	for {
		start := strings.Index(text, "{{")
		if start < 0 {
			b.WriteString(text)
			break
		}
		end := strings.Index(text[start:], "}}")
		if end < 0 {
			b.WriteString(text)
			break
		}
		b.WriteString(text[:start])
		name := strings.TrimSpace(text[start+2 : start+end])
		b.WriteString(fields[name])
		text = text[start+end+2:]
	}
	return b.String()
}
