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

const (
	defaultOrderPageSize = 20
	maxOrderPageSize     = 100
	maxOrderBodySize     = 64 * 1024
)

var adminAssignableStatuses = map[domain.OrderStatus]struct{}{
	domain.OrderStatusCompleted: {},
	domain.OrderStatusFailed:    {},
}

type createOrderRequest struct {
	Items []struct {
		CapID       string `json:"cap_id"`
		Quantity    int    `json:"quantity"`
		PaymentType string `json:"payment_type,omitempty"`
	} `json:"items"`
	PaymentType   string `json:"payment_type"`
	ShippingName  string `json:"shipping_name"`
	ShippingPhone string `json:"shipping_phone"`
	ShippingCity  string `json:"shipping_city"`
	ShippingLine  string `json:"shipping_line"`
	Notes         string `json:"notes"`
}

type updateOrderStatusRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

type orderItemPayload struct {
	CapID     string  `json:"cap_id"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	Subtotal  float64 `json:"subtotal"`
}

type orderPayload struct {
	ID            string             `json:"id"`
	UserID        string             `json:"user_id"`
	Status        string             `json:"status"`
	PaymentType   string             `json:"payment_type"`
	Currency      string             `json:"currency"`
	TotalAmount   float64            `json:"total_amount"`
	Items         []orderItemPayload `json:"items"`
	ShippingName  string             `json:"shipping_name,omitempty"`
	ShippingPhone string             `json:"shipping_phone,omitempty"`
	ShippingCity  string             `json:"shipping_city,omitempty"`
	ShippingLine  string             `json:"shipping_line,omitempty"`
	Notes         string             `json:"notes,omitempty"`
	CancelReason  string             `json:"cancel_reason,omitempty"`
	CreatedAt     string             `json:"created_at"`
	PaidAt        string             `json:"paid_at,omitempty"`
	CompletedAt   string             `json:"completed_at,omitempty"`
	CancelledAt   string             `json:"cancelled_at,omitempty"`
}

type orderListResponse struct {
	Items         []orderPayload `json:"items"`
	NextPageToken string         `json:"next_page_token,omitempty"`
}

// OrderHandlers exposes the order lifecycle endpoints.
type OrderHandlers struct {
	authn  *auth.Authenticator
	orders services.OrderService
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{
		authn:  authn,
		orders: orders,
	}
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth())
	}
	r.Post("/", h.createOrder)
	r.Get("/", h.listOrders)
	r.Get("/{orderID}", h.getOrder)
	r.Post("/{orderID}/cancel", h.cancelOrder)
	r.Delete("/{orderID}", h.deleteOrder)

	if h.authn != nil {
		r.With(h.authn.RequireAuth(auth.RoleAdmin)).Patch("/{orderID}/status", h.updateStatus)
		return
	}
	r.Patch("/{orderID}/status", h.updateStatus)
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req createOrderRequest
	if !h.decodeBody(ctx, w, r, &req) {
		return
	}

	items := make([]services.CreateOrderLine, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, services.CreateOrderLine{
			CapID:       item.CapID,
			Quantity:    item.Quantity,
			PaymentType: domain.PaymentType(strings.TrimSpace(item.PaymentType)),
		})
	}

	order, err := h.orders.Create(ctx, services.CreateOrderCommand{
		UserID:        identity.UserID,
		Items:         items,
		PaymentType:   domain.PaymentType(strings.TrimSpace(req.PaymentType)),
		ShippingName:  req.ShippingName,
		ShippingPhone: req.ShippingPhone,
		ShippingCity:  req.ShippingCity,
		ShippingLine:  req.ShippingLine,
		Notes:         req.Notes,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, buildOrderPayload(order))
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireIdentity(ctx, w)
	if !ok {
		return
	}

	query := r.URL.Query()
	pageSize, err := parsePageSize(query.Get("page_size"), defaultOrderPageSize, maxOrderPageSize)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	listQuery := services.OrderListQuery{
		ActingUserID: identity.UserID,
		ActingRole:   domain.UserRole(identity.Role),
		UserID:       strings.TrimSpace(query.Get("user_id")),
		Pager: services.Pagination{
			PageSize:  pageSize,
			PageToken: strings.TrimSpace(query.Get("page_token")),
		},
	}
	if raw := strings.TrimSpace(query.Get("status")); raw != "" {
		status := domain.OrderStatus(raw)
		listQuery.Status = &status
	}

	page, err := h.orders.List(ctx, listQuery)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	items := make([]orderPayload, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, buildOrderPayload(order))
	}

	writeJSONResponse(w, http.StatusOK, orderListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireIdentity(ctx, w)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.Get(ctx, orderID, services.OrderReadOptions{
		ActingUserID: identity.UserID,
		ActingRole:   domain.UserRole(identity.Role),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

func (h *OrderHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := h.requireIdentity(ctx, w); !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	var req updateOrderStatusRequest
	if !h.decodeBody(ctx, w, r, &req) {
		return
	}

	target := domain.OrderStatus(strings.TrimSpace(req.Status))
	if _, ok := adminAssignableStatuses[target]; !ok {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status must be completed or failed", http.StatusBadRequest))
		return
	}

	order, err := h.orders.UpdateStatus(ctx, services.OrderStatusTransitionCommand{
		OrderID:      orderID,
		TargetStatus: target,
		Reason:       req.Reason,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireIdentity(ctx, w)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	var req cancelOrderRequest
	if r.ContentLength != 0 {
		if !h.decodeBody(ctx, w, r, &req) {
			return
		}
	}

	order, err := h.orders.Cancel(ctx, services.CancelOrderCommand{
		OrderID:      orderID,
		ActingUserID: identity.UserID,
		ActingRole:   domain.UserRole(identity.Role),
		Reason:       req.Reason,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

func (h *OrderHandlers) deleteOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireIdentity(ctx, w)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	if err := h.orders.Delete(ctx, services.DeleteOrderCommand{
		OrderID:      orderID,
		ActingUserID: identity.UserID,
		ActingRole:   domain.UserRole(identity.Role),
	}); err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]string{"id": orderID})
}

func (h *OrderHandlers) requireIdentity(ctx context.Context, w http.ResponseWriter) (*auth.Identity, bool) {
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return nil, false
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UserID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

func (h *OrderHandlers) decodeBody(ctx context.Context, w http.ResponseWriter, r *http.Request, target any) bool {
	body, err := readLimitedBody(r, maxOrderBodySize)
	if err != nil {
		if errors.Is(err, errBodyTooLarge) {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body too large", http.StatusRequestEntityTooLarge))
			return false
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unable to read request body", http.StatusBadRequest))
		return false
	}
	if len(body) == 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
		return false
	}
	if err := json.Unmarshal(body, target); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return false
	}
	return true
}

func buildOrderPayload(order services.Order) orderPayload {
	items := make([]orderItemPayload, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemPayload{
			CapID:     item.CapID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: minorToMajor(item.UnitPrice),
			Subtotal:  minorToMajor(item.Subtotal),
		})
	}

	payload := orderPayload{
		ID:            order.ID,
		UserID:        order.UserID,
		Status:        string(order.Status),
		PaymentType:   string(order.PaymentType),
		Currency:      order.Currency,
		TotalAmount:   minorToMajor(order.TotalAmount),
		Items:         items,
		ShippingName:  order.ShippingName,
		ShippingPhone: order.ShippingPhone,
		ShippingCity:  order.ShippingCity,
		ShippingLine:  order.ShippingLine,
		Notes:         order.Notes,
		CreatedAt:     order.CreatedAt.UTC().Format(time.RFC3339),
	}
	if order.CancelReason != nil {
		payload.CancelReason = *order.CancelReason
	}
	if order.PaidAt != nil {
		payload.PaidAt = order.PaidAt.UTC().Format(time.RFC3339)
	}
	if order.CompletedAt != nil {
		payload.CompletedAt = order.CompletedAt.UTC().Format(time.RFC3339)
	}
	if order.CancelledAt != nil {
		payload.CancelledAt = order.CancelledAt.UTC().Format(time.RFC3339)
	}
	return payload
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_state", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrInventoryInsufficientStock):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("conflict", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
	}
}
