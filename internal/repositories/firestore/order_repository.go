package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	domain "github.com/Rakanrepo/slevenback/internal/domain"
	pfirestore "github.com/Rakanrepo/slevenback/internal/platform/firestore"
	"github.com/Rakanrepo/slevenback/internal/repositories"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const orderCollection = "orders"

// OrderRepository persists order headers with embedded line items. Status
// transitions run inside transactions that re-read the document, so two
// concurrent transitions on the same order serialize.
type OrderRepository struct {
	base     *pfirestore.BaseRepository[orderDocument]
	caps     *pfirestore.BaseRepository[capDocument]
	provider *pfirestore.Provider
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[orderDocument](provider, orderCollection, nil, nil)
	caps := pfirestore.NewBaseRepository[capDocument](provider, capCollection, nil, nil)
	return &OrderRepository{base: base, caps: caps, provider: provider}, nil
}

// Insert creates the order document. An existing id yields a conflict error.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	if strings.TrimSpace(order.ID) == "" {
		return errors.New("order repository: order id is required")
	}

	docRef, err := r.base.DocumentRef(ctx, order.ID)
	if err != nil {
		return err
	}
	if _, err := docRef.Create(ctx, fromDomainOrder(order)); err != nil {
		return pfirestore.WrapError("orders.insert", err)
	}
	return nil
}

// FindByID loads a single order.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	if strings.TrimSpace(orderID) == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}

	doc, err := r.base.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return toDomainOrder(doc.ID, doc.Data), nil
}

// List returns orders newest first, optionally scoped to a user and status.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
	}

	limit := filter.Pager.PageSize
	if limit < 0 {
		limit = 0
	}
	fetchLimit := limit
	if limit > 0 {
		fetchLimit = limit + 1
	}

	var startAfter []any
	if token := strings.TrimSpace(filter.Pager.PageToken); token != "" {
		tokenTime, tokenID, err := decodeCreatedAtToken(token)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, fmt.Errorf("order repository: invalid page token: %w", err)
		}
		startAfter = []any{tokenTime, tokenID}
	}

	userID := strings.TrimSpace(filter.UserID)

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if userID != "" {
			q = q.Where("userId", "==", userID)
		}
		if filter.Status != nil {
			q = q.Where("status", "==", string(*filter.Status))
		}
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if len(startAfter) == 2 {
			q = q.StartAfter(startAfter...)
		}
		if fetchLimit > 0 {
			q = q.Limit(fetchLimit)
		}
		return q
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	nextToken := ""
	if limit > 0 && len(docs) == fetchLimit {
		last := docs[len(docs)-1]
		tokenTime := last.Data.CreatedAt
		if tokenTime.IsZero() {
			tokenTime = last.CreateTime
		}
		nextToken = encodeCreatedAtToken(tokenTime, last.ID)
		docs = docs[:len(docs)-1]
	}

	items := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		items = append(items, toDomainOrder(doc.ID, doc.Data))
	}
	return domain.CursorPage[domain.Order]{Items: items, NextPageToken: nextToken}, nil
}

// Delete removes the order document.
func (r *OrderRepository) Delete(ctx context.Context, orderID string) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	if strings.TrimSpace(orderID) == "" {
		return errors.New("order repository: order id is required")
	}

	docRef, err := r.base.DocumentRef(ctx, orderID)
	if err != nil {
		return err
	}
	if _, err := docRef.Delete(ctx, firestore.Exists); err != nil {
		return pfirestore.WrapError("orders.delete", err)
	}
	return nil
}

// UpdateStatus re-reads the order in a transaction, applies mutate to the
// stored state, and writes the result. Errors from mutate abort the
// transaction and surface unchanged.
func (r *OrderRepository) UpdateStatus(ctx context.Context, orderID string, mutate func(current domain.Order) (domain.Order, error)) (domain.Order, error) {
	return r.updateInTx(ctx, "orders.update_status", orderID, mutate, nil)
}

// UpdateStatusWithStock applies mutate and decrements stock for every deduct
// line in one transaction. All reads happen before any write; a short or
// missing line aborts the whole batch and the order write with it.
func (r *OrderRepository) UpdateStatusWithStock(ctx context.Context, orderID string, mutate func(current domain.Order) (domain.Order, error), deduct []repositories.StockLine) (domain.Order, error) {
	for _, line := range deduct {
		if strings.TrimSpace(line.CapID) == "" {
			return domain.Order{}, errors.New("orders.update_status_with_stock: line cap id is required")
		}
		if line.Quantity <= 0 {
			return domain.Order{}, errors.New("orders.update_status_with_stock: line quantity must be positive")
		}
	}
	return r.updateInTx(ctx, "orders.update_status_with_stock", orderID, mutate, deduct)
}

func (r *OrderRepository) updateInTx(ctx context.Context, op, orderID string, mutate func(current domain.Order) (domain.Order, error), deduct []repositories.StockLine) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	if strings.TrimSpace(orderID) == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}
	if mutate == nil {
		return domain.Order{}, errors.New("order repository: mutate function is required")
	}

	var (
		updated  domain.Order
		abortErr error
	)
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		abortErr = nil

		docRef, err := r.base.DocumentRef(ctx, orderID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(docRef)
		if err != nil {
			return err
		}

		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("order repository: decode order %s: %w", orderID, err)
		}

		next, err := mutate(toDomainOrder(orderID, doc))
		if err != nil {
			abortErr = err
			return err
		}

		type stockWrite struct {
			ref      *firestore.DocumentRef
			newStock int
		}
		stockWrites := make([]stockWrite, 0, len(deduct))
		for _, line := range deduct {
			capRef, err := r.caps.DocumentRef(ctx, line.CapID)
			if err != nil {
				return err
			}
			capSnap, err := tx.Get(capRef)
			if err != nil {
				if status.Code(err) == codes.NotFound {
					invErr := repositories.NewInventoryError(
						repositories.InventoryErrorStockNotFound,
						line.CapID,
						fmt.Sprintf("cap %s not found", line.CapID),
						err,
					)
					invErr.Op = op
					abortErr = invErr
					return invErr
				}
				return err
			}

			var capDoc capDocument
			if err := capSnap.DataTo(&capDoc); err != nil {
				return fmt.Errorf("%s: decode cap %s: %w", op, line.CapID, err)
			}
			newStock := capDoc.StockQuantity - line.Quantity
			if newStock < 0 {
				invErr := repositories.NewInventoryError(
					repositories.InventoryErrorInsufficientStock,
					line.CapID,
					fmt.Sprintf("cap %s has %d in stock, %d requested", line.CapID, capDoc.StockQuantity, line.Quantity),
					nil,
				)
				invErr.Op = op
				abortErr = invErr
				return invErr
			}
			stockWrites = append(stockWrites, stockWrite{ref: capRef, newStock: newStock})
		}

		now := time.Now().UTC()
		for _, write := range stockWrites {
			if err := tx.Update(write.ref, []firestore.Update{
				{Path: "stockQuantity", Value: write.newStock},
				{Path: "updatedAt", Value: now},
			}); err != nil {
				return err
			}
		}

		updated = next
		return tx.Set(docRef, fromDomainOrder(next))
	})
	if abortErr != nil {
		return domain.Order{}, abortErr
	}
	if err != nil {
		return domain.Order{}, err
	}
	return updated, nil
}

type orderDocument struct {
	UserID        string              `firestore:"userId"`
	Status        string              `firestore:"status"`
	PaymentType   string              `firestore:"paymentType"`
	Currency      string              `firestore:"currency"`
	TotalAmount   int64               `firestore:"totalAmount"`
	Items         []orderItemDocument `firestore:"items"`
	ShippingName  string              `firestore:"shippingName"`
	ShippingPhone string              `firestore:"shippingPhone"`
	ShippingCity  string              `firestore:"shippingCity"`
	ShippingLine  string              `firestore:"shippingLine"`
	Notes         string              `firestore:"notes"`
	CancelReason  *string             `firestore:"cancelReason,omitempty"`
	CreatedAt     time.Time           `firestore:"createdAt"`
	UpdatedAt     time.Time           `firestore:"updatedAt"`
	PaidAt        *time.Time          `firestore:"paidAt,omitempty"`
	CompletedAt   *time.Time          `firestore:"completedAt,omitempty"`
	CancelledAt   *time.Time          `firestore:"cancelledAt,omitempty"`
}

type orderItemDocument struct {
	CapID       string `firestore:"capId"`
	Name        string `firestore:"name"`
	Quantity    int    `firestore:"quantity"`
	UnitPrice   int64  `firestore:"unitPrice"`
	Subtotal    int64  `firestore:"subtotal"`
	PaymentType string `firestore:"paymentType,omitempty"`
}

func fromDomainOrder(order domain.Order) orderDocument {
	items := make([]orderItemDocument, 0, len(order.Items))
	for _, it := range order.Items {
		items = append(items, orderItemDocument{
			CapID:       it.CapID,
			Name:        it.Name,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			Subtotal:    it.Subtotal,
			PaymentType: string(it.PaymentType),
		})
	}
	return orderDocument{
		UserID:        order.UserID,
		Status:        string(order.Status),
		PaymentType:   string(order.PaymentType),
		Currency:      order.Currency,
		TotalAmount:   order.TotalAmount,
		Items:         items,
		ShippingName:  order.ShippingName,
		ShippingPhone: order.ShippingPhone,
		ShippingCity:  order.ShippingCity,
		ShippingLine:  order.ShippingLine,
		Notes:         order.Notes,
		CancelReason:  order.CancelReason,
		CreatedAt:     order.CreatedAt,
		UpdatedAt:     order.UpdatedAt,
		PaidAt:        order.PaidAt,
		CompletedAt:   order.CompletedAt,
		CancelledAt:   order.CancelledAt,
	}
}

func toDomainOrder(id string, doc orderDocument) domain.Order {
	items := make([]domain.OrderItem, 0, len(doc.Items))
	for _, it := range doc.Items {
		items = append(items, domain.OrderItem{
			CapID:       it.CapID,
			Name:        it.Name,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			Subtotal:    it.Subtotal,
			PaymentType: domain.PaymentType(it.PaymentType),
		})
	}
	return domain.Order{
		ID:            id,
		UserID:        doc.UserID,
		Status:        domain.OrderStatus(doc.Status),
		PaymentType:   domain.PaymentType(doc.PaymentType),
		Currency:      doc.Currency,
		TotalAmount:   doc.TotalAmount,
		Items:         items,
		ShippingName:  doc.ShippingName,
		ShippingPhone: doc.ShippingPhone,
		ShippingCity:  doc.ShippingCity,
		ShippingLine:  doc.ShippingLine,
		Notes:         doc.Notes,
		CancelReason:  doc.CancelReason,
		CreatedAt:     doc.CreatedAt,
		UpdatedAt:     doc.UpdatedAt,
		PaidAt:        doc.PaidAt,
		CompletedAt:   doc.CompletedAt,
		CancelledAt:   doc.CancelledAt,
	}
}
