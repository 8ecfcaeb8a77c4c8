package firestore

import (
	"context"
	"encoding/base64"
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

const (
	capCollection       = "caps"
	featuredCapsMaximum = 10
)

// CapRepository persists catalog products in Firestore. Stock mutations run
// through transactions so concurrent orders never oversell.
type CapRepository struct {
	base     *pfirestore.BaseRepository[capDocument]
	provider *pfirestore.Provider
}

var _ repositories.CapRepository = (*CapRepository)(nil)

// NewCapRepository constructs a Firestore-backed cap repository.
func NewCapRepository(provider *pfirestore.Provider) (*CapRepository, error) {
	if provider == nil {
		return nil, errors.New("cap repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[capDocument](provider, capCollection, nil, nil)
	return &CapRepository{base: base, provider: provider}, nil
}

// Insert creates the cap document. An existing id yields a conflict error.
func (r *CapRepository) Insert(ctx context.Context, cap domain.Cap) error {
	if r == nil || r.base == nil {
		return errors.New("cap repository not initialised")
	}
	if strings.TrimSpace(cap.ID) == "" {
		return errors.New("cap repository: cap id is required")
	}

	docRef, err := r.base.DocumentRef(ctx, cap.ID)
	if err != nil {
		return err
	}
	if _, err := docRef.Create(ctx, fromDomainCap(cap)); err != nil {
		return pfirestore.WrapError("caps.insert", err)
	}
	return nil
}

// Update overwrites the cap document.
func (r *CapRepository) Update(ctx context.Context, cap domain.Cap) error {
	if r == nil || r.base == nil {
		return errors.New("cap repository not initialised")
	}
	if strings.TrimSpace(cap.ID) == "" {
		return errors.New("cap repository: cap id is required")
	}
	_, err := r.base.Set(ctx, cap.ID, fromDomainCap(cap))
	return err
}

// FindByID loads a single cap.
func (r *CapRepository) FindByID(ctx context.Context, capID string) (domain.Cap, error) {
	if r == nil || r.base == nil {
		return domain.Cap{}, errors.New("cap repository not initialised")
	}
	if strings.TrimSpace(capID) == "" {
		return domain.Cap{}, errors.New("cap repository: cap id is required")
	}

	doc, err := r.base.Get(ctx, capID)
	if err != nil {
		return domain.Cap{}, err
	}
	return toDomainCap(doc.ID, doc.Data), nil
}

// List returns caps ordered by most recent creation with optional filters.
func (r *CapRepository) List(ctx context.Context, filter repositories.CapListFilter) (domain.CursorPage[domain.Cap], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Cap]{}, errors.New("cap repository not initialised")
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
			return domain.CursorPage[domain.Cap]{}, fmt.Errorf("cap repository: invalid page token: %w", err)
		}
		startAfter = []any{tokenTime, tokenID}
	}

	category := strings.TrimSpace(filter.Category)
	brand := strings.TrimSpace(filter.Brand)

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if category != "" {
			q = q.Where("category", "==", category)
		}
		if brand != "" {
			q = q.Where("brand", "==", brand)
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
		return domain.CursorPage[domain.Cap]{}, err
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

	items := make([]domain.Cap, 0, len(docs))
	for _, doc := range docs {
		items = append(items, toDomainCap(doc.ID, doc.Data))
	}
	return domain.CursorPage[domain.Cap]{Items: items, NextPageToken: nextToken}, nil
}

// ListFeatured returns featured caps, newest first, capped at ten entries.
func (r *CapRepository) ListFeatured(ctx context.Context, limit int) ([]domain.Cap, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("cap repository not initialised")
	}
	if limit <= 0 || limit > featuredCapsMaximum {
		limit = featuredCapsMaximum
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("isFeatured", "==", true).
			OrderBy("createdAt", firestore.Desc).
			Limit(limit)
	})
	if err != nil {
		return nil, err
	}

	items := make([]domain.Cap, 0, len(docs))
	for _, doc := range docs {
		items = append(items, toDomainCap(doc.ID, doc.Data))
	}
	return items, nil
}

// DeductStock decrements stock for every line inside one transaction. All
// reads happen before any write, and a single short line aborts the batch.
func (r *CapRepository) DeductStock(ctx context.Context, orderID string, lines []repositories.StockLine) error {
	return r.moveStock(ctx, "caps.deduct_stock", orderID, lines, -1)
}

// CreditStock restores stock for every line inside one transaction.
func (r *CapRepository) CreditStock(ctx context.Context, orderID string, lines []repositories.StockLine) error {
	return r.moveStock(ctx, "caps.credit_stock", orderID, lines, +1)
}

func (r *CapRepository) moveStock(ctx context.Context, op, orderID string, lines []repositories.StockLine, direction int) error {
	if r == nil || r.provider == nil {
		return errors.New("cap repository not initialised")
	}
	if strings.TrimSpace(orderID) == "" {
		return fmt.Errorf("%s: order id is required", op)
	}
	if len(lines) == 0 {
		return fmt.Errorf("%s: at least one line is required", op)
	}
	for _, line := range lines {
		if strings.TrimSpace(line.CapID) == "" {
			return fmt.Errorf("%s: line cap id is required", op)
		}
		if line.Quantity <= 0 {
			return fmt.Errorf("%s: line quantity must be positive", op)
		}
	}

	var invErr *repositories.InventoryError
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		invErr = nil

		type pendingWrite struct {
			ref      *firestore.DocumentRef
			newStock int
		}
		writes := make([]pendingWrite, 0, len(lines))

		for _, line := range lines {
			docRef, err := r.base.DocumentRef(ctx, line.CapID)
			if err != nil {
				return err
			}
			snap, err := tx.Get(docRef)
			if err != nil {
				if status.Code(err) == codes.NotFound {
					invErr = repositories.NewInventoryError(
						repositories.InventoryErrorStockNotFound,
						line.CapID,
						fmt.Sprintf("cap %s not found", line.CapID),
						err,
					)
					invErr.Op = op
					return invErr
				}
				return err
			}

			var doc capDocument
			if err := snap.DataTo(&doc); err != nil {
				return fmt.Errorf("%s: decode cap %s: %w", op, line.CapID, err)
			}

			newStock := doc.StockQuantity + direction*line.Quantity
			if newStock < 0 {
				invErr = repositories.NewInventoryError(
					repositories.InventoryErrorInsufficientStock,
					line.CapID,
					fmt.Sprintf("cap %s has %d in stock, %d requested", line.CapID, doc.StockQuantity, line.Quantity),
					nil,
				)
				invErr.Op = op
				return invErr
			}
			writes = append(writes, pendingWrite{ref: docRef, newStock: newStock})
		}

		now := time.Now().UTC()
		for _, write := range writes {
			if err := tx.Update(write.ref, []firestore.Update{
				{Path: "stockQuantity", Value: write.newStock},
				{Path: "updatedAt", Value: now},
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if invErr != nil {
		return invErr
	}
	return err
}

type capDocument struct {
	Name          string    `firestore:"name"`
	NameAr        string    `firestore:"nameAr"`
	Description   string    `firestore:"description"`
	DescriptionAr string    `firestore:"descriptionAr"`
	Price         int64     `firestore:"price"`
	Currency      string    `firestore:"currency"`
	ImageURL      string    `firestore:"imageUrl"`
	Category      string    `firestore:"category"`
	Brand         string    `firestore:"brand"`
	Color         string    `firestore:"color"`
	Size          string    `firestore:"size"`
	StockQuantity int       `firestore:"stockQuantity"`
	IsFeatured    bool      `firestore:"isFeatured"`
	CreatedAt     time.Time `firestore:"createdAt"`
	UpdatedAt     time.Time `firestore:"updatedAt"`
}

func fromDomainCap(cap domain.Cap) capDocument {
	return capDocument{
		Name:          cap.Name,
		NameAr:        cap.NameAr,
		Description:   cap.Description,
		DescriptionAr: cap.DescriptionAr,
		Price:         cap.Price,
		Currency:      cap.Currency,
		ImageURL:      cap.ImageURL,
		Category:      cap.Category,
		Brand:         cap.Brand,
		Color:         cap.Color,
		Size:          cap.Size,
		StockQuantity: cap.StockQuantity,
		IsFeatured:    cap.IsFeatured,
		CreatedAt:     cap.CreatedAt,
		UpdatedAt:     cap.UpdatedAt,
	}
}

func toDomainCap(id string, doc capDocument) domain.Cap {
	return domain.Cap{
		ID:            id,
		Name:          doc.Name,
		NameAr:        doc.NameAr,
		Description:   doc.Description,
		DescriptionAr: doc.DescriptionAr,
		Price:         doc.Price,
		Currency:      doc.Currency,
		ImageURL:      doc.ImageURL,
		Category:      doc.Category,
		Brand:         doc.Brand,
		Color:         doc.Color,
		Size:          doc.Size,
		StockQuantity: doc.StockQuantity,
		IsFeatured:    doc.IsFeatured,
		CreatedAt:     doc.CreatedAt,
		UpdatedAt:     doc.UpdatedAt,
	}
}

func encodeCreatedAtToken(createdAt time.Time, docID string) string {
	payload := fmt.Sprintf("%s|%s", createdAt.UTC().Format(time.RFC3339Nano), docID)
	return base64.RawURLEncoding.EncodeToString([]byte(payload))
}

func decodeCreatedAtToken(token string) (time.Time, string, error) {
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return time.Time{}, "", err
	}
	parts := strings.SplitN(string(data), "|", 2)
	if len(parts) != 2 {
		return time.Time{}, "", errors.New("invalid token structure")
	}
	ts, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return time.Time{}, "", err
	}
	return ts, parts[1], nil
}
