package omniful

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	domain "github.com/Rakanrepo/slevenback/internal/domain"
)

func samplePayload() domain.SyncPayload {
	return domain.SyncPayload{
		OrderID:     "ord_1",
		UserID:      "usr_1",
		PaymentID:   "pay_1",
		TotalAmount: 25900,
		Currency:    "SAR",
		Items: []domain.SyncLineItem{
			{CapID: "cap_1", Name: "Navy Classic", Quantity: 2, UnitPrice: 12950},
		},
	}
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	client, err := NewClient(ClientConfig{
		BaseURL:  baseURL,
		APIKey:   "test-key",
		SellerID: "seller-7",
	})
	if err != nil {
		t.Fatalf("failed to build client: %v", err)
	}
	return client
}

func TestClientPushOrder(t *testing.T) {
	var captured orderRequest
	var headers http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/orders" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		headers = r.Header.Clone()
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	if err := client.PushOrder(context.Background(), samplePayload()); err != nil {
		t.Fatalf("push order: %v", err)
	}

	if got := headers.Get("Authorization"); got != "Bearer test-key" {
		t.Fatalf("unexpected authorization header: %q", got)
	}
	if got := headers.Get("Idempotency-Key"); got != "ord_1" {
		t.Fatalf("expected order id as idempotency key, got %q", got)
	}
	if captured.OrderID != "ord_1" || captured.SellerID != "seller-7" {
		t.Fatalf("unexpected body: %#v", captured)
	}
	if captured.TotalAmount != 25900 || captured.Currency != "SAR" {
		t.Fatalf("unexpected totals: %#v", captured)
	}
	if len(captured.Items) != 1 || captured.Items[0].SKU != "cap_1" || captured.Items[0].UnitPrice != 12950 {
		t.Fatalf("unexpected items: %#v", captured.Items)
	}
}

func TestClientPushOrderServerErrorIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	err := client.PushOrder(context.Background(), samplePayload())
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestClientPushOrderRateLimitIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	err := client.PushOrder(context.Background(), samplePayload())
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestClientPushOrderClientErrorIsPermanent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"unknown sku"}`, http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	err := client.PushOrder(context.Background(), samplePayload())
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
	if errors.Is(err, ErrUnavailable) {
		t.Fatal("rejected pushes must not look retryable")
	}
}

func TestClientPushOrderTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close()

	client := newTestClient(t, server.URL)
	err := client.PushOrder(context.Background(), samplePayload())
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestClientPushOrderRejectsEmptyOrderID(t *testing.T) {
	client := newTestClient(t, "https://omniful.example")
	payload := samplePayload()
	payload.OrderID = " "
	if err := client.PushOrder(context.Background(), payload); !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
}

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(ClientConfig{APIKey: "k"}); err == nil {
		t.Fatal("expected error for missing base url")
	}
	if _, err := NewClient(ClientConfig{BaseURL: "://bad", APIKey: "k"}); err == nil {
		t.Fatal("expected error for invalid base url")
	}
	if _, err := NewClient(ClientConfig{BaseURL: "https://omniful.example"}); err == nil {
		t.Fatal("expected error for missing api key")
	}
}
