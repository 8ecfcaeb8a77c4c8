// Package notifications delivers customer-facing messages through an
// external email provider.
package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	domain "github.com/Rakanrepo/slevenback/internal/domain"
	"github.com/Rakanrepo/slevenback/internal/repositories"
)

const (
	defaultSendTimeout = 10 * time.Second
	sendPath           = "/v1/messages"
)

// ErrDeliveryFailed wraps every failure to hand a message to the provider.
var ErrDeliveryFailed = errors.New("notifications: delivery failed")

type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// MailerConfig configures the invoice mailer.
type MailerConfig struct {
	BaseURL     string
	APIKey      string
	FromAddress string
	FromName    string
	Timeout     time.Duration
	HTTPClient  httpDoer
	Users       repositories.UserRepository
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

// Mailer sends invoice emails through an HTTP email provider. It satisfies
// the order service's invoice notifier contract.
type Mailer struct {
	baseURL *url.URL
	apiKey  string
	from    emailParty
	http    httpDoer
	users   repositories.UserRepository
	logger  func(context.Context, string, map[string]any)
}

// NewMailer validates the configuration and returns a ready mailer.
func NewMailer(cfg MailerConfig) (*Mailer, error) {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		return nil, errors.New("notifications: base url is required")
	}
	parsed, err := url.Parse(base)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("notifications: invalid base url %q", base)
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("notifications: api key is required")
	}
	if strings.TrimSpace(cfg.FromAddress) == "" {
		return nil, errors.New("notifications: from address is required")
	}
	if cfg.Users == nil {
		return nil, errors.New("notifications: user repository is required")
	}

	doer := cfg.HTTPClient
	if doer == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultSendTimeout
		}
		doer = &http.Client{Timeout: timeout}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &Mailer{
		baseURL: parsed,
		apiKey:  strings.TrimSpace(cfg.APIKey),
		from: emailParty{
			Email: strings.TrimSpace(cfg.FromAddress),
			Name:  strings.TrimSpace(cfg.FromName),
		},
		http:   doer,
		users:  cfg.Users,
		logger: logger,
	}, nil
}

type emailParty struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sendRequest struct {
	From     emailParty     `json:"from"`
	To       []emailParty   `json:"to"`
	Subject  string         `json:"subject"`
	Template string         `json:"template"`
	Data     map[string]any `json:"data"`
}

// SendInvoice emails the order invoice to the buying customer. Failures are
// wrapped in ErrDeliveryFailed and never retried here.
func (m *Mailer) SendInvoice(ctx context.Context, order domain.Order, paymentID string) error {
	user, err := m.users.FindByID(ctx, order.UserID)
	if err != nil {
		return fmt.Errorf("%w: resolve recipient: %v", ErrDeliveryFailed, err)
	}

	items := make([]map[string]any, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, map[string]any{
			"name":       item.Name,
			"quantity":   item.Quantity,
			"unit_price": formatAmount(item.UnitPrice, order.Currency),
			"subtotal":   formatAmount(item.Subtotal, order.Currency),
		})
	}

	payload := sendRequest{
		From:     m.from,
		To:       []emailParty{{Email: user.Email, Name: user.FullName}},
		Subject:  fmt.Sprintf("Your Sleven Caps invoice for order %s", order.ID),
		Template: "order-invoice",
		Data: map[string]any{
			"order_id":   order.ID,
			"payment_id": paymentID,
			"total":      formatAmount(order.TotalAmount, order.Currency),
			"items":      items,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: encode message: %v", ErrDeliveryFailed, err)
	}

	endpoint := m.baseURL.JoinPath(sendPath)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: build request: %v", ErrDeliveryFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.apiKey)

	resp, err := m.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d", ErrDeliveryFailed, resp.StatusCode)
	}

	m.logger(ctx, "notifications.invoice.sent", map[string]any{
		"order": order.ID,
		"user":  order.UserID,
	})
	return nil
}

func formatAmount(minor int64, currency string) string {
	return fmt.Sprintf("%.2f %s", float64(minor)/100, currency)
}
