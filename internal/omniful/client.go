// Package omniful talks to the Omniful fulfilment platform. Orders are
// pushed after payment settles so warehouse stock mirrors the store.
package omniful

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
)

const (
	defaultRequestTimeout = 15 * time.Second
	ordersPath            = "/api/v1/orders"
	maxErrorBodyBytes     = 2048
)

// ErrUnavailable marks transport level failures that a later sweep may retry.
var ErrUnavailable = errors.New("omniful: service unavailable")

// ErrRejected marks responses where Omniful refused the payload outright.
var ErrRejected = errors.New("omniful: request rejected")

type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig configures the Omniful API client.
type ClientConfig struct {
	BaseURL    string
	APIKey     string
	SellerID   string
	Timeout    time.Duration
	HTTPClient httpDoer
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

// Client is a thin JSON client for the Omniful order ingestion API.
type Client struct {
	baseURL  *url.URL
	apiKey   string
	sellerID string
	http     httpDoer
	logger   func(context.Context, string, map[string]any)
}

// NewClient validates the configuration and returns a ready client.
func NewClient(cfg ClientConfig) (*Client, error) {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		return nil, errors.New("omniful: base url is required")
	}
	parsed, err := url.Parse(base)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("omniful: invalid base url %q", base)
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("omniful: api key is required")
	}

	doer := cfg.HTTPClient
	if doer == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultRequestTimeout
		}
		doer = &http.Client{Timeout: timeout}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &Client{
		baseURL:  parsed,
		apiKey:   strings.TrimSpace(cfg.APIKey),
		sellerID: strings.TrimSpace(cfg.SellerID),
		http:     doer,
		logger:   logger,
	}, nil
}

type orderRequest struct {
	OrderID     string          `json:"order_id"`
	UserID      string          `json:"user_id"`
	PaymentID   string          `json:"payment_id,omitempty"`
	SellerID    string          `json:"seller_id,omitempty"`
	TotalAmount int64           `json:"total_amount"`
	Currency    string          `json:"currency"`
	Items       []orderLineItem `json:"items"`
}

type orderLineItem struct {
	SKU       string `json:"sku"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}

// PushOrder submits one settled order to Omniful. Server errors and
// transport failures come back wrapped in ErrUnavailable so callers can
// schedule a retry; 4xx responses wrap ErrRejected and are permanent.
func (c *Client) PushOrder(ctx context.Context, payload domain.SyncPayload) error {
	if strings.TrimSpace(payload.OrderID) == "" {
		return fmt.Errorf("%w: order id is required", ErrRejected)
	}

	items := make([]orderLineItem, 0, len(payload.Items))
	for _, item := range payload.Items {
		items = append(items, orderLineItem{
			SKU:       item.CapID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}

	body, err := json.Marshal(orderRequest{
		OrderID:     payload.OrderID,
		UserID:      payload.UserID,
		PaymentID:   payload.PaymentID,
		SellerID:    c.sellerID,
		TotalAmount: payload.TotalAmount,
		Currency:    payload.Currency,
		Items:       items,
	})
	if err != nil {
		return fmt.Errorf("omniful: encode order: %w", err)
	}

	endpoint := c.baseURL.JoinPath(ordersPath)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("omniful: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	// Replays of the same order must not create duplicate shipments.
	req.Header.Set("Idempotency-Key", payload.OrderID)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		c.logger(ctx, "omniful.order.pushed", map[string]any{
			"order":  payload.OrderID,
			"status": resp.StatusCode,
		})
		return nil
	}

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	c.logger(ctx, "omniful.order.push.failed", map[string]any{
		"order":  payload.OrderID,
		"status": resp.StatusCode,
		"body":   string(snippet),
	})

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	return fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, strings.TrimSpace(string(snippet)))
}
