package domain

import (
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	// SortAsc sorts results in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts results in descending order.
	SortDesc SortOrder = "desc"
)

// UserRole distinguishes customer accounts from staff accounts.
type UserRole string

const (
	// UserRoleCustomer is the default role assigned at registration.
	UserRoleCustomer UserRole = "customer"
	// UserRoleAdmin grants access to catalog management and queue operations.
	UserRoleAdmin UserRole = "admin"
)

// User represents a registered account.
type User struct {
	ID           string
	Email        string
	FullName     string
	PasswordHash string
	Role         UserRole
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Cap is a single catalog product. Name fields carry English and Arabic
// variants; display selection happens at the handler layer based on the
// request locale.
type Cap struct {
	ID            string
	Name          string
	NameAr        string
	Description   string
	DescriptionAr string
	Price         int64
	Currency      string
	ImageURL      string
	Category      string
	Brand         string
	Color         string
	Size          string
	StockQuantity int
	IsFeatured    bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// DisplayName returns the localized product name for the given language tag
// base ("ar" or anything else, which falls back to English).
func (c Cap) DisplayName(lang string) string {
	if lang == "ar" && c.NameAr != "" {
		return c.NameAr
	}
	return c.Name
}

// DisplayDescription mirrors DisplayName for the description pair.
func (c Cap) DisplayDescription(lang string) string {
	if lang == "ar" && c.DescriptionAr != "" {
		return c.DescriptionAr
	}
	return c.Description
}

// OrderStatus enumerates valid lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusPending indicates the order awaits payment.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusPaid indicates payment settled but fulfilment has not started.
	OrderStatusPaid OrderStatus = "paid"
	// OrderStatusProcessing indicates stock was deducted and fulfilment is underway.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusCompleted indicates the order was fulfilled. Terminal.
	OrderStatusCompleted OrderStatus = "completed"
	// OrderStatusFailed indicates payment or fulfilment failed. Terminal.
	OrderStatusFailed OrderStatus = "failed"
	// OrderStatusCancelled indicates the order was cancelled. Terminal.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// IsTerminal reports whether no further transitions are allowed from s.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusCompleted, OrderStatusFailed, OrderStatusCancelled:
		return true
	}
	return false
}

// PaymentType selects how an order is settled.
type PaymentType string

const (
	// PaymentTypeCard settles through the payment gateway.
	PaymentTypeCard PaymentType = "card"
	// PaymentTypePayOnArrival settles in cash at delivery; such orders skip
	// the gateway and move straight to processing at creation time.
	PaymentTypePayOnArrival PaymentType = "pay_on_arrival"
)

// Order captures an order header with its line items.
type Order struct {
	ID            string
	UserID        string
	Status        OrderStatus
	PaymentType   PaymentType
	Currency      string
	TotalAmount   int64
	Items         []OrderItem
	ShippingName  string
	ShippingPhone string
	ShippingCity  string
	ShippingLine  string
	Notes         string
	CancelReason  *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	PaidAt        *time.Time
	CompletedAt   *time.Time
	CancelledAt   *time.Time
}

// OrderItem mirrors a cap at the time the order was placed.
type OrderItem struct {
	CapID       string
	Name        string
	Quantity    int
	UnitPrice   int64
	Subtotal    int64
	PaymentType PaymentType
}

// DeductsStockEarly reports whether the order settles without the gateway
// and therefore deducts stock at creation. The order-level payment type is
// authoritative; a line-level marker from older clients is also honored.
func (o Order) DeductsStockEarly() bool {
	if o.PaymentType == PaymentTypePayOnArrival {
		return true
	}
	for _, it := range o.Items {
		if it.PaymentType == PaymentTypePayOnArrival {
			return true
		}
	}
	return false
}

// PaymentStatus enumerates normalized gateway payment states.
type PaymentStatus string

const (
	// PaymentStatusPending indicates the gateway has not settled the payment.
	PaymentStatusPending PaymentStatus = "pending"
	// PaymentStatusPaid indicates the gateway captured the funds.
	PaymentStatusPaid PaymentStatus = "paid"
	// PaymentStatusFailed indicates the gateway rejected the payment.
	PaymentStatusFailed PaymentStatus = "failed"
	// PaymentStatusCancelled indicates the payment was voided before capture.
	PaymentStatusCancelled PaymentStatus = "cancelled"
)

// Payment encapsulates payment status and gateway references for an order.
type Payment struct {
	ID         string
	OrderID    string
	Provider   string
	ExternalID string
	Method     string
	Status     PaymentStatus
	Amount     int64
	Currency   string
	Raw        map[string]any
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// SyncJobStatus enumerates lifecycle states for fulfilment sync jobs.
type SyncJobStatus string

const (
	// SyncJobStatusPending indicates the job waits for the next sweep.
	SyncJobStatusPending SyncJobStatus = "pending"
	// SyncJobStatusProcessing indicates a sweep is pushing the job right now.
	SyncJobStatusProcessing SyncJobStatus = "processing"
	// SyncJobStatusCompleted indicates the remote system accepted the order.
	SyncJobStatusCompleted SyncJobStatus = "completed"
	// SyncJobStatusFailed indicates the push failed; only an explicit retry
	// returns the job to the queue.
	SyncJobStatusFailed SyncJobStatus = "failed"
)

// SyncJob records one attempt stream to push an order to the fulfilment
// partner. Payload is a snapshot taken at enqueue time so later order edits
// never change what gets pushed.
type SyncJob struct {
	ID           string
	OrderID      string
	Status       SyncJobStatus
	Payload      SyncPayload
	Attempts     int
	MaxAttempts  int
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	CompletedAt  *time.Time
}

// SyncPayload is the wire snapshot pushed to the fulfilment partner.
type SyncPayload struct {
	OrderID     string         `json:"order_id"`
	UserID      string         `json:"user_id"`
	PaymentID   string         `json:"payment_id,omitempty"`
	TotalAmount int64          `json:"total_amount"`
	Currency    string         `json:"currency"`
	Items       []SyncLineItem `json:"items"`
}

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// SyncLineItem is one order line inside a sync payload.
type SyncLineItem struct {
	CapID     string `json:"cap_id"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}
