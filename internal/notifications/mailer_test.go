package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	domain "github.com/Rakanrepo/slevenback/internal/domain"
)

type stubUserRepo struct {
	users map[string]domain.User
}

func (s *stubUserRepo) Insert(context.Context, domain.User) error {
	return errors.New("not implemented")
}

func (s *stubUserRepo) FindByID(_ context.Context, userID string) (domain.User, error) {
	user, ok := s.users[userID]
	if !ok {
		return domain.User{}, errors.New("user missing")
	}
	return user, nil
}

func (s *stubUserRepo) FindByEmail(context.Context, string) (domain.User, error) {
	return domain.User{}, errors.New("not implemented")
}

func sampleOrder() domain.Order {
	return domain.Order{
		ID:          "ord_1",
		UserID:      "usr_1",
		Currency:    "SAR",
		TotalAmount: 25900,
		Items: []domain.OrderItem{
			{CapID: "cap_1", Name: "Navy Classic", Quantity: 2, UnitPrice: 12950, Subtotal: 25900},
		},
	}
}

func newTestMailer(t *testing.T, baseURL string, users *stubUserRepo) *Mailer {
	t.Helper()
	mailer, err := NewMailer(MailerConfig{
		BaseURL:     baseURL,
		APIKey:      "mail-key",
		FromAddress: "orders@slevencaps.com",
		FromName:    "Sleven Caps",
		Users:       users,
	})
	if err != nil {
		t.Fatalf("failed to build mailer: %v", err)
	}
	return mailer
}

func TestMailerSendInvoice(t *testing.T) {
	var captured sendRequest
	var authHeader string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		authHeader = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	users := &stubUserRepo{users: map[string]domain.User{
		"usr_1": {ID: "usr_1", Email: "sara@example.com", FullName: "Sara Alqahtani"},
	}}
	mailer := newTestMailer(t, server.URL, users)

	if err := mailer.SendInvoice(context.Background(), sampleOrder(), "pay_1"); err != nil {
		t.Fatalf("send invoice: %v", err)
	}

	if authHeader != "Bearer mail-key" {
		t.Fatalf("unexpected authorization header: %q", authHeader)
	}
	if captured.From.Email != "orders@slevencaps.com" {
		t.Fatalf("unexpected sender: %#v", captured.From)
	}
	if len(captured.To) != 1 || captured.To[0].Email != "sara@example.com" {
		t.Fatalf("unexpected recipient: %#v", captured.To)
	}
	if captured.Template != "order-invoice" {
		t.Fatalf("unexpected template: %q", captured.Template)
	}
	if captured.Data["order_id"] != "ord_1" || captured.Data["payment_id"] != "pay_1" {
		t.Fatalf("unexpected data: %#v", captured.Data)
	}
	if captured.Data["total"] != "259.00 SAR" {
		t.Fatalf("unexpected total: %v", captured.Data["total"])
	}
}

func TestMailerSendInvoiceUnknownRecipient(t *testing.T) {
	mailer := newTestMailer(t, "https://mail.example", &stubUserRepo{users: map[string]domain.User{}})

	err := mailer.SendInvoice(context.Background(), sampleOrder(), "pay_1")
	if !errors.Is(err, ErrDeliveryFailed) {
		t.Fatalf("expected ErrDeliveryFailed, got %v", err)
	}
}

func TestMailerSendInvoiceProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	users := &stubUserRepo{users: map[string]domain.User{
		"usr_1": {ID: "usr_1", Email: "sara@example.com"},
	}}
	mailer := newTestMailer(t, server.URL, users)

	err := mailer.SendInvoice(context.Background(), sampleOrder(), "pay_1")
	if !errors.Is(err, ErrDeliveryFailed) {
		t.Fatalf("expected ErrDeliveryFailed, got %v", err)
	}
}

func TestNewMailerValidation(t *testing.T) {
	users := &stubUserRepo{}
	cases := map[string]MailerConfig{
		"missing base url": {APIKey: "k", FromAddress: "a@b.c", Users: users},
		"missing api key":  {BaseURL: "https://mail.example", FromAddress: "a@b.c", Users: users},
		"missing from":     {BaseURL: "https://mail.example", APIKey: "k", Users: users},
		"missing users":    {BaseURL: "https://mail.example", APIKey: "k", FromAddress: "a@b.c"},
	}
	for name, cfg := range cases {
		if _, err := NewMailer(cfg); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}
