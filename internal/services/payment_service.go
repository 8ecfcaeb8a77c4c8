package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/Rakanrepo/slevenback/internal/domain"
	"github.com/Rakanrepo/slevenback/internal/payments"
	"github.com/Rakanrepo/slevenback/internal/repositories"
)

const paymentIDPrefix = "pay_"

var (
	// ErrPaymentInvalidInput signals the caller provided invalid data.
	ErrPaymentInvalidInput = errors.New("payment: invalid input")
	// ErrPaymentNotFound indicates the payment could not be located.
	ErrPaymentNotFound = errors.New("payment: not found")
	// ErrPaymentConflict indicates the order state forbids a new payment.
	ErrPaymentConflict = errors.New("payment: conflict")
	// ErrPaymentGateway indicates the upstream gateway rejected or failed the call.
	ErrPaymentGateway = errors.New("payment: gateway failure")
)

// PaymentServiceDeps bundles the collaborators required to construct the payment service.
type PaymentServiceDeps struct {
	Payments    repositories.PaymentRepository
	Orders      OrderService
	Users       repositories.UserRepository
	Provider    payments.Provider
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type paymentService struct {
	payments repositories.PaymentRepository
	orders   OrderService
	users    repositories.UserRepository
	provider payments.Provider
	clock    func() time.Time
	newID    func() string
	logger   func(context.Context, string, map[string]any)
}

// NewPaymentService wires dependencies into a concrete PaymentService implementation.
func NewPaymentService(deps PaymentServiceDeps) (PaymentService, error) {
	if deps.Payments == nil {
		return nil, errors.New("payment service: payment repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("payment service: order service is required")
	}
	if deps.Provider == nil {
		return nil, errors.New("payment service: gateway provider is required")
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

	return &paymentService{
		payments: deps.Payments,
		orders:   deps.Orders,
		users:    deps.Users,
		provider: deps.Provider,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *paymentService) CreateForOrder(ctx context.Context, cmd CreatePaymentCommand) (Payment, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Payment{}, fmt.Errorf("%w: order id is required", ErrPaymentInvalidInput)
	}

	order, err := s.orders.Get(ctx, orderID, OrderReadOptions{
		ActingUserID: cmd.ActingUserID,
		ActingRole:   cmd.ActingRole,
	})
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return Payment{}, fmt.Errorf("%w: order %s", ErrPaymentNotFound, orderID)
		}
		return Payment{}, err
	}

	if order.Status != domain.OrderStatusPending {
		return Payment{}, fmt.Errorf("%w: order status %q does not accept payments", ErrPaymentConflict, order.Status)
	}
	if order.PaymentType == domain.PaymentTypePayOnArrival {
		return Payment{}, fmt.Errorf("%w: pay on arrival orders settle without the gateway", ErrPaymentConflict)
	}

	existing, err := s.payments.ListByOrder(ctx, orderID)
	if err != nil {
		return Payment{}, s.mapRepositoryError(err)
	}
	for _, p := range existing {
		if p.Status == domain.PaymentStatusPending || p.Status == domain.PaymentStatusPaid {
			return Payment{}, fmt.Errorf("%w: order %s already has an active payment %s", ErrPaymentConflict, orderID, p.ID)
		}
	}

	email := ""
	if s.users != nil {
		if user, err := s.users.FindByID(ctx, order.UserID); err == nil {
			email = user.Email
		}
	}

	paymentID := paymentIDPrefix + s.newID()
	details, err := s.provider.CreatePayment(ctx, payments.CreatePaymentRequest{
		Amount:         order.TotalAmount,
		Currency:       order.Currency,
		Method:         strings.TrimSpace(cmd.Method),
		OrderID:        order.ID,
		CustomerEmail:  email,
		Description:    fmt.Sprintf("Sleven order %s", order.ID),
		IdempotencyKey: paymentID,
	})
	if err != nil {
		s.logger(ctx, "payment.create.gateway.failed", map[string]any{
			"order": order.ID,
			"error": err.Error(),
		})
		return Payment{}, fmt.Errorf("%w: %v", ErrPaymentGateway, err)
	}

	now := s.clock()
	payment := Payment{
		ID:         paymentID,
		OrderID:    order.ID,
		Provider:   details.Provider,
		ExternalID: details.ExternalID,
		Method:     strings.TrimSpace(cmd.Method),
		Status:     normalizeGatewayStatus(details.Status),
		Amount:     details.Amount,
		Currency:   details.Currency,
		Raw:        details.Raw,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.payments.Insert(ctx, payment); err != nil {
		return Payment{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, "payment.created", map[string]any{
		"payment":  payment.ID,
		"order":    payment.OrderID,
		"external": payment.ExternalID,
	})
	return payment, nil
}

// Get reads the stored payment. Pending payments are reconciled against the
// gateway first, so a missed webhook still settles the order on the next
// poll; gateway hiccups fall back to the stored record.
func (s *paymentService) Get(ctx context.Context, paymentID string) (Payment, error) {
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return Payment{}, fmt.Errorf("%w: payment id is required", ErrPaymentInvalidInput)
	}

	payment, err := s.payments.FindByID(ctx, paymentID)
	if err != nil {
		return Payment{}, s.mapRepositoryError(err)
	}

	if payment.Status != domain.PaymentStatusPending || strings.TrimSpace(payment.ExternalID) == "" {
		return payment, nil
	}

	details, err := s.provider.GetStatus(ctx, payment.ExternalID)
	if err != nil {
		s.logger(ctx, "payment.status.poll.failed", map[string]any{
			"payment": payment.ID,
			"error":   err.Error(),
		})
		return payment, nil
	}

	status := normalizeGatewayStatus(details.Status)
	if status == payment.Status {
		return payment, nil
	}

	return s.ApplyGatewayUpdate(ctx, GatewayUpdate{
		ExternalID: payment.ExternalID,
		Status:     status,
		Amount:     details.Amount,
		Currency:   details.Currency,
		Raw:        details.Raw,
	})
}

// ApplyGatewayUpdate records a webhook delivery and drives the order state
// machine. A delivery repeating the stored status is acknowledged without
// side effects.
func (s *paymentService) ApplyGatewayUpdate(ctx context.Context, update GatewayUpdate) (Payment, error) {
	externalID := strings.TrimSpace(update.ExternalID)
	if externalID == "" {
		return Payment{}, fmt.Errorf("%w: external id is required", ErrPaymentInvalidInput)
	}
	switch update.Status {
	case domain.PaymentStatusPending, domain.PaymentStatusPaid, domain.PaymentStatusFailed, domain.PaymentStatusCancelled:
	default:
		return Payment{}, fmt.Errorf("%w: unknown payment status %q", ErrPaymentInvalidInput, update.Status)
	}

	payment, err := s.payments.FindByExternalID(ctx, externalID)
	if err != nil {
		return Payment{}, s.mapRepositoryError(err)
	}

	if payment.Status == update.Status {
		s.logger(ctx, "payment.webhook.duplicate", map[string]any{
			"payment": payment.ID,
			"status":  string(payment.Status),
		})
		return payment, nil
	}

	payment.Status = update.Status
	payment.UpdatedAt = s.clock()
	if update.Amount > 0 {
		payment.Amount = update.Amount
	}
	if currency := strings.TrimSpace(update.Currency); currency != "" {
		payment.Currency = currency
	}
	if len(update.Raw) > 0 {
		payment.Raw = update.Raw
	}

	if err := s.payments.Update(ctx, payment); err != nil {
		return Payment{}, s.mapRepositoryError(err)
	}

	switch update.Status {
	case domain.PaymentStatusPaid:
		if _, err := s.orders.MarkPaid(ctx, MarkPaidCommand{OrderID: payment.OrderID, PaymentID: payment.ID}); err != nil {
			return Payment{}, err
		}
	case domain.PaymentStatusFailed:
		if _, err := s.orders.UpdateStatus(ctx, OrderStatusTransitionCommand{
			OrderID:      payment.OrderID,
			TargetStatus: domain.OrderStatusFailed,
			Reason:       "payment failed",
		}); err != nil && !errors.Is(err, ErrOrderInvalidState) {
			return Payment{}, err
		}
	case domain.PaymentStatusCancelled:
		if _, err := s.orders.Cancel(ctx, CancelOrderCommand{
			OrderID:    payment.OrderID,
			ActingRole: domain.UserRoleAdmin,
			Reason:     "payment cancelled",
		}); err != nil && !errors.Is(err, ErrOrderInvalidState) {
			return Payment{}, err
		}
	}

	s.logger(ctx, "payment.webhook.applied", map[string]any{
		"payment": payment.ID,
		"order":   payment.OrderID,
		"status":  string(payment.Status),
	})
	return payment, nil
}

func normalizeGatewayStatus(status payments.Status) PaymentStatus {
	switch status {
	case payments.StatusPaid:
		return domain.PaymentStatusPaid
	case payments.StatusFailed:
		return domain.PaymentStatusFailed
	case payments.StatusCancelled:
		return domain.PaymentStatusCancelled
	default:
		return domain.PaymentStatusPending
	}
}

func (s *paymentService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrPaymentNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrPaymentConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("payment: repository unavailable: %w", err)
		}
	}
	return err
}
