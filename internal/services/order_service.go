package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/Rakanrepo/slevenback/internal/domain"
	"github.com/Rakanrepo/slevenback/internal/repositories"
)

const (
	orderEventCreated       = "order.created"
	orderEventStatusChanged = "order.status.changed"

	orderIDPrefix = "ord_"

	defaultCurrency = "SAR"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidState indicates an invalid status transition was attempted.
	ErrOrderInvalidState = errors.New("order: invalid status transition")
	// ErrOrderConflict indicates duplicates or concurrent updates that lost the race.
	ErrOrderConflict = errors.New("order: conflict")
)

var orderStateTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPending: {
		domain.OrderStatusPaid,
		domain.OrderStatusProcessing,
		domain.OrderStatusFailed,
		domain.OrderStatusCancelled,
	},
	domain.OrderStatusPaid: {
		domain.OrderStatusProcessing,
		domain.OrderStatusFailed,
		domain.OrderStatusCancelled,
	},
	domain.OrderStatusProcessing: {
		domain.OrderStatusCompleted,
		domain.OrderStatusFailed,
		domain.OrderStatusCancelled,
	},
}

var cancellableStatuses = []domain.OrderStatus{
	domain.OrderStatusPending,
	domain.OrderStatusPaid,
	domain.OrderStatusProcessing,
}

func canTransition(from, to domain.OrderStatus) bool {
	return slices.Contains(orderStateTransitions[from], to)
}

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type           string
	OrderID        string
	UserID         string
	PreviousStatus string
	CurrentStatus  string
	OccurredAt     time.Time
	Metadata       map[string]any
}

// InvoiceNotifier delivers the invoice email after an order reaches
// processing. Failures are logged and never fail the order.
type InvoiceNotifier interface {
	SendInvoice(ctx context.Context, order Order, paymentID string) error
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Caps        repositories.CapRepository
	Inventory   InventoryService
	Sync        SyncService
	Notifier    InvoiceNotifier
	Currency    string
	Clock       func() time.Time
	IDGenerator func() string
	Events      OrderEventPublisher
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders    repositories.OrderRepository
	caps      repositories.CapRepository
	inventory InventoryService
	sync      SyncService
	notifier  InvoiceNotifier
	currency  string
	clock     func() time.Time
	newID     func() string
	events    OrderEventPublisher
	logger    func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Caps == nil {
		return nil, errors.New("order service: cap repository is required")
	}
	if deps.Inventory == nil {
		return nil, errors.New("order service: inventory service is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = defaultCurrency
	}

	return &orderService{
		orders:    deps.Orders,
		caps:      deps.Caps,
		inventory: deps.Inventory,
		sync:      deps.Sync,
		notifier:  deps.Notifier,
		currency:  currency,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		events: deps.Events,
		logger: logger,
	}, nil
}

func (s *orderService) Create(ctx context.Context, cmd CreateOrderCommand) (Order, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return Order{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	if len(cmd.Items) == 0 {
		return Order{}, fmt.Errorf("%w: order must contain at least one item", ErrOrderInvalidInput)
	}

	paymentType := cmd.PaymentType
	if paymentType == "" {
		paymentType = domain.PaymentTypeCard
	}
	switch paymentType {
	case domain.PaymentTypeCard, domain.PaymentTypePayOnArrival:
	default:
		return Order{}, fmt.Errorf("%w: unknown payment type %q", ErrOrderInvalidInput, paymentType)
	}

	now := s.now()
	items, total, currency, err := s.buildOrderItems(ctx, cmd.Items)
	if err != nil {
		return Order{}, err
	}

	order := Order{
		ID:            orderIDPrefix + s.newID(),
		UserID:        userID,
		Status:        domain.OrderStatusPending,
		PaymentType:   paymentType,
		Currency:      currency,
		TotalAmount:   total,
		Items:         items,
		ShippingName:  strings.TrimSpace(cmd.ShippingName),
		ShippingPhone: strings.TrimSpace(cmd.ShippingPhone),
		ShippingCity:  strings.TrimSpace(cmd.ShippingCity),
		ShippingLine:  strings.TrimSpace(cmd.ShippingLine),
		Notes:         strings.TrimSpace(cmd.Notes),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.orders.Insert(ctx, order); err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventCreated,
		OrderID:       order.ID,
		UserID:        order.UserID,
		CurrentStatus: string(order.Status),
		OccurredAt:    now,
	})

	// Pay-on-arrival settles without the gateway: deduct stock and start
	// fulfilment before the response returns.
	if order.DeductsStockEarly() {
		advanced, err := s.advanceToProcessing(ctx, order, "")
		if err != nil {
			return Order{}, err
		}
		return advanced, nil
	}

	return order, nil
}

func (s *orderService) buildOrderItems(ctx context.Context, lines []CreateOrderLine) ([]OrderItem, int64, string, error) {
	items := make([]OrderItem, 0, len(lines))
	currency := ""
	var total int64

	for _, line := range lines {
		capID := strings.TrimSpace(line.CapID)
		if capID == "" {
			return nil, 0, "", fmt.Errorf("%w: line cap id is required", ErrOrderInvalidInput)
		}
		if line.Quantity <= 0 {
			return nil, 0, "", fmt.Errorf("%w: quantity for cap %s must be positive", ErrOrderInvalidInput, capID)
		}

		cap, err := s.caps.FindByID(ctx, capID)
		if err != nil {
			var repoErr repositories.RepositoryError
			if errors.As(err, &repoErr) && repoErr.IsNotFound() {
				return nil, 0, "", fmt.Errorf("%w: cap %s does not exist", ErrOrderInvalidInput, capID)
			}
			return nil, 0, "", s.mapRepositoryError(err)
		}

		if currency == "" {
			currency = cap.Currency
		} else if cap.Currency != "" && cap.Currency != currency {
			return nil, 0, "", fmt.Errorf("%w: mixed currencies in one order", ErrOrderInvalidInput)
		}

		subtotal := cap.Price * int64(line.Quantity)
		total += subtotal
		items = append(items, OrderItem{
			CapID:       capID,
			Name:        cap.Name,
			Quantity:    line.Quantity,
			UnitPrice:   cap.Price,
			Subtotal:    subtotal,
			PaymentType: line.PaymentType,
		})
	}

	if currency == "" {
		currency = s.currency
	}
	return items, total, currency, nil
}

func (s *orderService) Get(ctx context.Context, orderID string, opts OrderReadOptions) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	// Hide other users' orders rather than acknowledging they exist.
	if opts.ActingRole != domain.UserRoleAdmin && opts.ActingUserID != "" && order.UserID != opts.ActingUserID {
		return Order{}, fmt.Errorf("%w: order %s", ErrOrderNotFound, orderID)
	}
	return order, nil
}

func (s *orderService) List(ctx context.Context, query OrderListQuery) (domain.CursorPage[Order], error) {
	userID := strings.TrimSpace(query.UserID)
	if query.ActingRole != domain.UserRoleAdmin {
		acting := strings.TrimSpace(query.ActingUserID)
		if acting == "" {
			return domain.CursorPage[Order]{}, fmt.Errorf("%w: acting user id is required", ErrOrderInvalidInput)
		}
		userID = acting
	}

	page, err := s.orders.List(ctx, repositories.OrderListFilter{
		UserID: userID,
		Status: query.Status,
		Pager:  query.Pager,
	})
	if err != nil {
		return domain.CursorPage[Order]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *orderService) MarkPaid(ctx context.Context, cmd MarkPaidCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	now := s.now()
	var prev domain.OrderStatus
	order, err := s.orders.UpdateStatus(ctx, orderID, func(current domain.Order) (domain.Order, error) {
		prev = current.Status
		if current.Status != domain.OrderStatusPending {
			return current, nil
		}
		current.Status = domain.OrderStatusPaid
		current.UpdatedAt = now
		current.PaidAt = &now
		return current, nil
	})
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	switch prev {
	case domain.OrderStatusPending:
		s.publishEvent(ctx, OrderEvent{
			Type:           orderEventStatusChanged,
			OrderID:        order.ID,
			UserID:         order.UserID,
			PreviousStatus: string(prev),
			CurrentStatus:  string(order.Status),
			OccurredAt:     now,
		})
		return s.advanceToProcessing(ctx, order, strings.TrimSpace(cmd.PaymentID))
	case domain.OrderStatusPaid:
		// An earlier settlement wrote paid but never reached processing;
		// pick the order up where it stopped.
		return s.advanceToProcessing(ctx, order, strings.TrimSpace(cmd.PaymentID))
	default:
		// Redelivered confirmation. Stock already moved, nothing to do.
		return order, nil
	}
}

// advanceToProcessing moves the order to processing and deducts stock for
// every line in one repository transaction. When any line is short the order
// stays put and no stock moves.
func (s *orderService) advanceToProcessing(ctx context.Context, order Order, paymentID string) (Order, error) {
	lines := stockLines(order.Items)
	now := s.now()

	var prev domain.OrderStatus
	updated, err := s.orders.UpdateStatusWithStock(ctx, order.ID, func(current domain.Order) (domain.Order, error) {
		prev = current.Status
		if !canTransition(current.Status, domain.OrderStatusProcessing) {
			return domain.Order{}, fmt.Errorf("%w: %s to %s", ErrOrderInvalidState, current.Status, domain.OrderStatusProcessing)
		}
		current.Status = domain.OrderStatusProcessing
		current.UpdatedAt = now
		return current, nil
	}, lines)
	if err != nil {
		mapped := mapStockMovementError(err)
		if errors.Is(mapped, ErrInventoryInsufficientStock) || errors.Is(mapped, ErrInventoryCapNotFound) {
			return Order{}, fmt.Errorf("%w: %w", ErrOrderConflict, mapped)
		}
		return Order{}, s.mapRepositoryError(mapped)
	}

	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventStatusChanged,
		OrderID:        updated.ID,
		UserID:         updated.UserID,
		PreviousStatus: string(prev),
		CurrentStatus:  string(updated.Status),
		OccurredAt:     now,
	})

	if s.sync != nil {
		if _, err := s.sync.Enqueue(ctx, updated, paymentID); err != nil {
			s.logger(ctx, "order.sync.enqueue.failed", map[string]any{
				"order": updated.ID,
				"error": err.Error(),
			})
		}
	}
	s.notifyInvoice(ctx, updated, paymentID)

	return updated, nil
}

func (s *orderService) UpdateStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	target := cmd.TargetStatus
	if target == "" {
		return Order{}, fmt.Errorf("%w: target status is required", ErrOrderInvalidInput)
	}
	switch target {
	case domain.OrderStatusCompleted, domain.OrderStatusFailed:
	default:
		return Order{}, fmt.Errorf("%w: target status %q is not operator assignable", ErrOrderInvalidInput, target)
	}

	var prevStatus domain.OrderStatus
	order, err := s.transition(ctx, orderID, target, strings.TrimSpace(cmd.Reason), func(prev domain.OrderStatus) {
		prevStatus = prev
	})
	if err != nil {
		return Order{}, err
	}

	// A processing order already holds deducted stock; failing it restocks.
	if target == domain.OrderStatusFailed && prevStatus == domain.OrderStatusProcessing {
		if creditErr := s.inventory.Credit(ctx, order.ID, stockLines(order.Items)); creditErr != nil {
			s.logger(ctx, "order.stock.credit.failed", map[string]any{
				"order": order.ID,
				"error": creditErr.Error(),
			})
		}
	}
	return order, nil
}

func (s *orderService) Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	var prevStatus domain.OrderStatus
	now := s.now()
	reason := strings.TrimSpace(cmd.Reason)

	order, err := s.orders.UpdateStatus(ctx, orderID, func(current domain.Order) (domain.Order, error) {
		if cmd.ActingRole != domain.UserRoleAdmin && cmd.ActingUserID != "" && current.UserID != cmd.ActingUserID {
			return domain.Order{}, fmt.Errorf("%w: order %s", ErrOrderNotFound, orderID)
		}
		if current.Status == domain.OrderStatusCancelled {
			prevStatus = current.Status
			return current, nil
		}
		if !slices.Contains(cancellableStatuses, current.Status) {
			return domain.Order{}, fmt.Errorf("%w: order status %q cannot be cancelled", ErrOrderInvalidState, current.Status)
		}
		prevStatus = current.Status
		current.Status = domain.OrderStatusCancelled
		current.UpdatedAt = now
		current.CancelledAt = &now
		if reason != "" {
			current.CancelReason = &reason
		}
		return current, nil
	})
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	if prevStatus == domain.OrderStatusCancelled {
		return order, nil
	}

	if prevStatus == domain.OrderStatusProcessing {
		if creditErr := s.inventory.Credit(ctx, order.ID, stockLines(order.Items)); creditErr != nil {
			s.logger(ctx, "order.stock.credit.failed", map[string]any{
				"order": order.ID,
				"error": creditErr.Error(),
			})
		}
	}

	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventStatusChanged,
		OrderID:        order.ID,
		UserID:         order.UserID,
		PreviousStatus: string(prevStatus),
		CurrentStatus:  string(order.Status),
		OccurredAt:     now,
		Metadata:       map[string]any{"reason": reason},
	})

	return order, nil
}

func (s *orderService) Delete(ctx context.Context, cmd DeleteOrderCommand) error {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return s.mapRepositoryError(err)
	}
	if cmd.ActingRole != domain.UserRoleAdmin && cmd.ActingUserID != "" && order.UserID != cmd.ActingUserID {
		return fmt.Errorf("%w: order %s", ErrOrderNotFound, orderID)
	}
	if order.Status != domain.OrderStatusPending {
		return fmt.Errorf("%w: only pending orders can be deleted, status is %q", ErrOrderInvalidState, order.Status)
	}

	if err := s.orders.Delete(ctx, orderID); err != nil {
		return s.mapRepositoryError(err)
	}
	return nil
}

// transition applies a guarded status change inside the repository
// transaction. Reaching the target status again is a no-op success; observe
// receives the stored status before the change.
func (s *orderService) transition(ctx context.Context, orderID string, target domain.OrderStatus, reason string, observe func(prev domain.OrderStatus)) (Order, error) {
	now := s.now()
	var prevStatus domain.OrderStatus

	order, err := s.orders.UpdateStatus(ctx, orderID, func(current domain.Order) (domain.Order, error) {
		prevStatus = current.Status
		if current.Status == target {
			return current, nil
		}
		if !canTransition(current.Status, target) {
			return domain.Order{}, fmt.Errorf("%w: %s to %s", ErrOrderInvalidState, current.Status, target)
		}

		current.Status = target
		current.UpdatedAt = now
		switch target {
		case domain.OrderStatusPaid:
			current.PaidAt = &now
		case domain.OrderStatusCompleted:
			current.CompletedAt = &now
		case domain.OrderStatusCancelled:
			current.CancelledAt = &now
		}
		if reason != "" && (target == domain.OrderStatusFailed || target == domain.OrderStatusCancelled) {
			current.CancelReason = &reason
		}
		return current, nil
	})
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	if observe != nil {
		observe(prevStatus)
	}

	if prevStatus != order.Status {
		s.publishEvent(ctx, OrderEvent{
			Type:           orderEventStatusChanged,
			OrderID:        order.ID,
			UserID:         order.UserID,
			PreviousStatus: string(prevStatus),
			CurrentStatus:  string(order.Status),
			OccurredAt:     now,
		})
	}
	return order, nil
}

func (s *orderService) notifyInvoice(ctx context.Context, order Order, paymentID string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.SendInvoice(ctx, order, paymentID); err != nil {
		s.logger(ctx, "order.invoice.send.failed", map[string]any{
			"order": order.ID,
			"error": err.Error(),
		})
	}
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":   event.Type,
			"order":  event.OrderID,
			"error":  err.Error(),
			"status": event.CurrentStatus,
		})
	}
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrOrderNotFound) || errors.Is(err, ErrOrderInvalidState) || errors.Is(err, ErrOrderConflict) {
		return err
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}
	return err
}

func (s *orderService) now() time.Time {
	return s.clock()
}

func stockLines(items []OrderItem) []repositories.StockLine {
	lines := make([]repositories.StockLine, 0, len(items))
	for _, item := range items {
		lines = append(lines, repositories.StockLine{CapID: item.CapID, Quantity: item.Quantity})
	}
	return lines
}
