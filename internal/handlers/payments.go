package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/Rakanrepo/slevenback/internal/domain"
	"github.com/Rakanrepo/slevenback/internal/platform/auth"
	"github.com/Rakanrepo/slevenback/internal/platform/httpx"
	"github.com/Rakanrepo/slevenback/internal/services"
)

const maxPaymentBodySize = 64 * 1024

type createPaymentRequest struct {
	OrderID string `json:"order_id"`
	Method  string `json:"method"`
}

// gatewayWebhookRequest carries the provider's event. The provider names its
// payment reference "id"; "external_id" is accepted as an alias for older
// deliveries.
type gatewayWebhookRequest struct {
	ID         string         `json:"id"`
	ExternalID string         `json:"external_id"`
	Status     string         `json:"status"`
	Amount     float64        `json:"amount"`
	Currency   string         `json:"currency"`
	Raw        map[string]any `json:"raw,omitempty"`
}

func (r gatewayWebhookRequest) externalID() string {
	if id := strings.TrimSpace(r.ID); id != "" {
		return id
	}
	return strings.TrimSpace(r.ExternalID)
}

type paymentPayload struct {
	ID         string  `json:"id"`
	OrderID    string  `json:"order_id"`
	Provider   string  `json:"provider"`
	ExternalID string  `json:"external_id,omitempty"`
	Method     string  `json:"method,omitempty"`
	Status     string  `json:"status"`
	Amount     float64 `json:"amount"`
	Currency   string  `json:"currency"`
	CreatedAt  string  `json:"created_at"`
}

// PaymentHandlers exposes gateway payment creation and the webhook intake.
type PaymentHandlers struct {
	authn    *auth.Authenticator
	payments services.PaymentService
}

// NewPaymentHandlers constructs a new PaymentHandlers instance.
func NewPaymentHandlers(authn *auth.Authenticator, payments services.PaymentService) *PaymentHandlers {
	return &PaymentHandlers{
		authn:    authn,
		payments: payments,
	}
}

// Routes registers the authenticated /payments endpoints.
func (h *PaymentHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth())
	}
	r.Post("/", h.createPayment)
	r.Get("/{paymentID}", h.getPayment)
}

// WebhookRoutes registers the gateway callback. The caller mounts these
// behind HMAC verification rather than session auth.
func (h *PaymentHandlers) WebhookRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/payments", h.handleGatewayWebhook)
}

func (h *PaymentHandlers) createPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payment_service_unavailable", "payment service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UserID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	body, err := readLimitedBody(r, maxPaymentBodySize)
	if err != nil {
		if errors.Is(err, errBodyTooLarge) {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body too large", http.StatusRequestEntityTooLarge))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unable to read request body", http.StatusBadRequest))
		return
	}
	var req createPaymentRequest
	if len(body) == 0 || json.Unmarshal(body, &req) != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	payment, err := h.payments.CreateForOrder(ctx, services.CreatePaymentCommand{
		OrderID:      strings.TrimSpace(req.OrderID),
		Method:       strings.TrimSpace(req.Method),
		ActingUserID: identity.UserID,
		ActingRole:   domain.UserRole(identity.Role),
	})
	if err != nil {
		writePaymentError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, buildPaymentPayload(payment))
}

func (h *PaymentHandlers) getPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payment_service_unavailable", "payment service unavailable", http.StatusServiceUnavailable))
		return
	}

	paymentID := strings.TrimSpace(chi.URLParam(r, "paymentID"))
	if paymentID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "payment id is required", http.StatusBadRequest))
		return
	}

	payment, err := h.payments.Get(ctx, paymentID)
	if err != nil {
		writePaymentError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildPaymentPayload(payment))
}

func (h *PaymentHandlers) handleGatewayWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payment_service_unavailable", "payment service unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxPaymentBodySize)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unable to read request body", http.StatusBadRequest))
		return
	}
	var req gatewayWebhookRequest
	if len(body) == 0 || json.Unmarshal(body, &req) != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	payment, err := h.payments.ApplyGatewayUpdate(ctx, services.GatewayUpdate{
		ExternalID: req.externalID(),
		Status:     domain.PaymentStatus(strings.TrimSpace(req.Status)),
		Amount:     majorToMinor(req.Amount),
		Currency:   strings.ToUpper(strings.TrimSpace(req.Currency)),
		Raw:        req.Raw,
	})
	if err != nil {
		writePaymentError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]string{
		"payment_id": payment.ID,
		"status":     string(payment.Status),
	})
}

func buildPaymentPayload(payment services.Payment) paymentPayload {
	return paymentPayload{
		ID:         payment.ID,
		OrderID:    payment.OrderID,
		Provider:   payment.Provider,
		ExternalID: payment.ExternalID,
		Method:     payment.Method,
		Status:     string(payment.Status),
		Amount:     minorToMajor(payment.Amount),
		Currency:   payment.Currency,
		CreatedAt:  payment.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func writePaymentError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrPaymentInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrPaymentNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("payment_not_found", "payment not found", http.StatusNotFound))
	case errors.Is(err, services.ErrPaymentConflict):
		httpx.WriteError(ctx, w, httpx.NewError("conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrPaymentGateway):
		httpx.WriteError(ctx, w, httpx.NewError("gateway_error", "payment gateway unavailable", http.StatusBadGateway))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
	}
}
