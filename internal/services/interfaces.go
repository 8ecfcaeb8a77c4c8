package services

import (
	"context"

	domain "github.com/Rakanrepo/slevenback/internal/domain"
	"github.com/Rakanrepo/slevenback/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination    = domain.Pagination
	Cap           = domain.Cap
	Order         = domain.Order
	OrderItem     = domain.OrderItem
	OrderStatus   = domain.OrderStatus
	PaymentType   = domain.PaymentType
	Payment       = domain.Payment
	PaymentStatus = domain.PaymentStatus
	SyncJob       = domain.SyncJob
	SyncJobStatus = domain.SyncJobStatus
	SyncPayload   = domain.SyncPayload
	SyncLineItem  = domain.SyncLineItem
	User          = domain.User
	UserRole      = domain.UserRole
)

// CatalogService exposes the cap catalog for storefront and admin use.
type CatalogService interface {
	CreateCap(ctx context.Context, cmd CreateCapCommand) (Cap, error)
	GetCap(ctx context.Context, capID string) (Cap, error)
	ListCaps(ctx context.Context, query CapListQuery) (domain.CursorPage[Cap], error)
	ListFeatured(ctx context.Context) ([]Cap, error)
}

// CreateCapCommand carries the fields accepted when an admin creates a cap.
type CreateCapCommand struct {
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
}

// CapListQuery narrows catalog listings.
type CapListQuery struct {
	Category string
	Brand    string
	Pager    Pagination
}

// InventoryService owns every stock movement. Movements are batched per
// order and apply all-or-nothing.
type InventoryService interface {
	Deduct(ctx context.Context, orderID string, lines []repositories.StockLine) error
	Credit(ctx context.Context, orderID string, lines []repositories.StockLine) error
}

// OrderService drives the order lifecycle: creation, payment settlement,
// fulfilment transitions, cancellation, and deletion.
type OrderService interface {
	Create(ctx context.Context, cmd CreateOrderCommand) (Order, error)
	Get(ctx context.Context, orderID string, opts OrderReadOptions) (Order, error)
	List(ctx context.Context, query OrderListQuery) (domain.CursorPage[Order], error)
	MarkPaid(ctx context.Context, cmd MarkPaidCommand) (Order, error)
	UpdateStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error)
	Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error)
	Delete(ctx context.Context, cmd DeleteOrderCommand) error
}

// CreateOrderLine is one requested line at order creation. Unit pricing is
// resolved server side from the catalog.
type CreateOrderLine struct {
	CapID       string
	Quantity    int
	PaymentType PaymentType
}

// CreateOrderCommand carries the fields accepted when a customer places an order.
type CreateOrderCommand struct {
	UserID        string
	Items         []CreateOrderLine
	PaymentType   PaymentType
	ShippingName  string
	ShippingPhone string
	ShippingCity  string
	ShippingLine  string
	Notes         string
}

// OrderReadOptions scopes order reads to the acting user unless elevated.
type OrderReadOptions struct {
	ActingUserID string
	ActingRole   UserRole
}

// OrderListQuery narrows order listings.
type OrderListQuery struct {
	ActingUserID string
	ActingRole   UserRole
	UserID       string
	Status       *OrderStatus
	Pager        Pagination
}

// MarkPaidCommand settles an order after the gateway confirmed payment.
type MarkPaidCommand struct {
	OrderID   string
	PaymentID string
}

// OrderStatusTransitionCommand applies a guarded transition to the target status.
type OrderStatusTransitionCommand struct {
	OrderID      string
	TargetStatus OrderStatus
	Reason       string
}

// CancelOrderCommand cancels an order, restocking when fulfilment already started.
type CancelOrderCommand struct {
	OrderID      string
	ActingUserID string
	ActingRole   UserRole
	Reason       string
}

// DeleteOrderCommand removes an order that never left the pending state.
type DeleteOrderCommand struct {
	OrderID      string
	ActingUserID string
	ActingRole   UserRole
}

// SyncService owns the fulfilment sync queue.
type SyncService interface {
	Enqueue(ctx context.Context, order Order, paymentID string) (SyncJob, error)
	ProcessPending(ctx context.Context, limit int) (SyncSweepResult, error)
	RetryFailed(ctx context.Context) (int, error)
	ListJobs(ctx context.Context, query SyncJobListQuery) (domain.CursorPage[SyncJob], error)
}

// SyncSweepResult summarises one queue sweep.
type SyncSweepResult struct {
	Picked    int
	Completed int
	Failed    int
}

// SyncJobListQuery narrows sync job listings.
type SyncJobListQuery struct {
	Status *SyncJobStatus
	Pager  Pagination
}

// PaymentService creates gateway payments and applies webhook updates.
type PaymentService interface {
	CreateForOrder(ctx context.Context, cmd CreatePaymentCommand) (Payment, error)
	Get(ctx context.Context, paymentID string) (Payment, error)
	ApplyGatewayUpdate(ctx context.Context, update GatewayUpdate) (Payment, error)
}

// CreatePaymentCommand starts a gateway payment for an order.
type CreatePaymentCommand struct {
	OrderID      string
	Method       string
	ActingUserID string
	ActingRole   UserRole
}

// GatewayUpdate is a normalized webhook delivery from the payment gateway.
type GatewayUpdate struct {
	ExternalID string
	Status     PaymentStatus
	Amount     int64
	Currency   string
	Raw        map[string]any
}

// UserService handles registration, login and profile reads.
type UserService interface {
	Register(ctx context.Context, cmd RegisterCommand) (User, error)
	Authenticate(ctx context.Context, email, password string) (User, error)
	GetProfile(ctx context.Context, userID string) (User, error)
}

// RegisterCommand carries the fields accepted at account creation.
type RegisterCommand struct {
	Email    string
	FullName string
	Password string
}
