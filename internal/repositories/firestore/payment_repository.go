package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	domain "github.com/Rakanrepo/slevenback/internal/domain"
	pfirestore "github.com/Rakanrepo/slevenback/internal/platform/firestore"
	"github.com/Rakanrepo/slevenback/internal/repositories"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const paymentCollection = "payments"

// PaymentRepository persists gateway payment records.
type PaymentRepository struct {
	base *pfirestore.BaseRepository[paymentDocument]
}

var _ repositories.PaymentRepository = (*PaymentRepository)(nil)

// NewPaymentRepository constructs a Firestore-backed payment repository.
func NewPaymentRepository(provider *pfirestore.Provider) (*PaymentRepository, error) {
	if provider == nil {
		return nil, errors.New("payment repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[paymentDocument](provider, paymentCollection, nil, nil)
	return &PaymentRepository{base: base}, nil
}

// Insert creates the payment document.
func (r *PaymentRepository) Insert(ctx context.Context, payment domain.Payment) error {
	if r == nil || r.base == nil {
		return errors.New("payment repository not initialised")
	}
	if strings.TrimSpace(payment.ID) == "" {
		return errors.New("payment repository: payment id is required")
	}

	docRef, err := r.base.DocumentRef(ctx, payment.ID)
	if err != nil {
		return err
	}
	if _, err := docRef.Create(ctx, fromDomainPayment(payment)); err != nil {
		return pfirestore.WrapError("payments.insert", err)
	}
	return nil
}

// Update overwrites the payment document.
func (r *PaymentRepository) Update(ctx context.Context, payment domain.Payment) error {
	if r == nil || r.base == nil {
		return errors.New("payment repository not initialised")
	}
	if strings.TrimSpace(payment.ID) == "" {
		return errors.New("payment repository: payment id is required")
	}
	_, err := r.base.Set(ctx, payment.ID, fromDomainPayment(payment))
	return err
}

// FindByID loads a single payment.
func (r *PaymentRepository) FindByID(ctx context.Context, paymentID string) (domain.Payment, error) {
	if r == nil || r.base == nil {
		return domain.Payment{}, errors.New("payment repository not initialised")
	}
	if strings.TrimSpace(paymentID) == "" {
		return domain.Payment{}, errors.New("payment repository: payment id is required")
	}

	doc, err := r.base.Get(ctx, paymentID)
	if err != nil {
		return domain.Payment{}, err
	}
	return toDomainPayment(doc.ID, doc.Data), nil
}

// FindByExternalID resolves a payment by its gateway reference. Webhook
// deliveries only carry the external id.
func (r *PaymentRepository) FindByExternalID(ctx context.Context, externalID string) (domain.Payment, error) {
	if r == nil || r.base == nil {
		return domain.Payment{}, errors.New("payment repository not initialised")
	}
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return domain.Payment{}, errors.New("payment repository: external id is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("externalId", "==", externalID).Limit(1)
	})
	if err != nil {
		return domain.Payment{}, err
	}
	if len(docs) == 0 {
		return domain.Payment{}, pfirestore.WrapError("payments.find_by_external_id",
			status.Errorf(codes.NotFound, "payment with external id %s not found", externalID))
	}
	return toDomainPayment(docs[0].ID, docs[0].Data), nil
}

// ListByOrder returns every payment attempt recorded for an order.
func (r *PaymentRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.Payment, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("payment repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, errors.New("payment repository: order id is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("orderId", "==", orderID).OrderBy("createdAt", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}

	items := make([]domain.Payment, 0, len(docs))
	for _, doc := range docs {
		items = append(items, toDomainPayment(doc.ID, doc.Data))
	}
	return items, nil
}

type paymentDocument struct {
	OrderID    string         `firestore:"orderId"`
	Provider   string         `firestore:"provider"`
	ExternalID string         `firestore:"externalId"`
	Method     string         `firestore:"method"`
	Status     string         `firestore:"status"`
	Amount     int64          `firestore:"amount"`
	Currency   string         `firestore:"currency"`
	Raw        map[string]any `firestore:"raw,omitempty"`
	CreatedAt  time.Time      `firestore:"createdAt"`
	UpdatedAt  time.Time      `firestore:"updatedAt"`
}

func fromDomainPayment(payment domain.Payment) paymentDocument {
	return paymentDocument{
		OrderID:    payment.OrderID,
		Provider:   payment.Provider,
		ExternalID: payment.ExternalID,
		Method:     payment.Method,
		Status:     string(payment.Status),
		Amount:     payment.Amount,
		Currency:   payment.Currency,
		Raw:        payment.Raw,
		CreatedAt:  payment.CreatedAt,
		UpdatedAt:  payment.UpdatedAt,
	}
}

func toDomainPayment(id string, doc paymentDocument) domain.Payment {
	return domain.Payment{
		ID:         id,
		OrderID:    doc.OrderID,
		Provider:   doc.Provider,
		ExternalID: doc.ExternalID,
		Method:     doc.Method,
		Status:     domain.PaymentStatus(doc.Status),
		Amount:     doc.Amount,
		Currency:   doc.Currency,
		Raw:        doc.Raw,
		CreatedAt:  doc.CreatedAt,
		UpdatedAt:  doc.UpdatedAt,
	}
}
