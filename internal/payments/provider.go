package payments

import (
	"context"
	"errors"
)

// Status enumerates the normalised payment states shared across providers.
type Status string

const (
	// StatusPending indicates the payment awaits customer action or gateway confirmation.
	StatusPending Status = "pending"
	// StatusPaid indicates the gateway reports the payment as captured.
	StatusPaid Status = "paid"
	// StatusFailed indicates the gateway reports a terminal failure.
	StatusFailed Status = "failed"
	// StatusCancelled indicates the payment was voided before capture.
	StatusCancelled Status = "cancelled"
)

// ErrGateway wraps upstream gateway failures. Callers must surface these,
// never swallow them.
var ErrGateway = errors.New("payments: gateway error")

// CreatePaymentRequest captures the payload required to start a gateway payment.
// Amount is in the smallest currency unit.
type CreatePaymentRequest struct {
	Amount         int64
	Currency       string
	Method         string
	OrderID        string
	CustomerEmail  string
	Description    string
	IdempotencyKey string
	Metadata       map[string]string
}

// PaymentDetails normalises gateway specific fields for storage.
type PaymentDetails struct {
	Provider   string
	ExternalID string
	Status     Status
	Amount     int64
	Currency   string
	Raw        map[string]any
}

// Provider defines the contract for payment gateway adapters.
type Provider interface {
	CreatePayment(ctx context.Context, req CreatePaymentRequest) (PaymentDetails, error)
	GetStatus(ctx context.Context, externalID string) (PaymentDetails, error)
}
