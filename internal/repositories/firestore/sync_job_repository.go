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
)

const syncJobCollection = "syncJobs"

// SyncJobRepository persists fulfilment sync jobs.
//
// ListPending filters attempts < maxAttempts in memory because Firestore
// cannot compare two document fields in one query. The sweep limit bounds
// the overfetch.
type SyncJobRepository struct {
	base *pfirestore.BaseRepository[syncJobDocument]
}

var _ repositories.SyncJobRepository = (*SyncJobRepository)(nil)

// NewSyncJobRepository constructs a Firestore-backed sync job repository.
func NewSyncJobRepository(provider *pfirestore.Provider) (*SyncJobRepository, error) {
	if provider == nil {
		return nil, errors.New("sync job repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[syncJobDocument](provider, syncJobCollection, nil, nil)
	return &SyncJobRepository{base: base}, nil
}

// Insert creates the job document.
func (r *SyncJobRepository) Insert(ctx context.Context, job domain.SyncJob) error {
	if r == nil || r.base == nil {
		return errors.New("sync job repository not initialised")
	}
	if strings.TrimSpace(job.ID) == "" {
		return errors.New("sync job repository: job id is required")
	}

	docRef, err := r.base.DocumentRef(ctx, job.ID)
	if err != nil {
		return err
	}
	if _, err := docRef.Create(ctx, fromDomainSyncJob(job)); err != nil {
		return pfirestore.WrapError("sync_jobs.insert", err)
	}
	return nil
}

// Update overwrites the job document.
func (r *SyncJobRepository) Update(ctx context.Context, job domain.SyncJob) error {
	if r == nil || r.base == nil {
		return errors.New("sync job repository not initialised")
	}
	if strings.TrimSpace(job.ID) == "" {
		return errors.New("sync job repository: job id is required")
	}
	_, err := r.base.Set(ctx, job.ID, fromDomainSyncJob(job))
	return err
}

// FindByID loads a single job.
func (r *SyncJobRepository) FindByID(ctx context.Context, jobID string) (domain.SyncJob, error) {
	if r == nil || r.base == nil {
		return domain.SyncJob{}, errors.New("sync job repository not initialised")
	}
	if strings.TrimSpace(jobID) == "" {
		return domain.SyncJob{}, errors.New("sync job repository: job id is required")
	}

	doc, err := r.base.Get(ctx, jobID)
	if err != nil {
		return domain.SyncJob{}, err
	}
	return toDomainSyncJob(doc.ID, doc.Data), nil
}

// ListPending returns up to limit pending jobs below their attempt cap,
// oldest first.
func (r *SyncJobRepository) ListPending(ctx context.Context, limit int) ([]domain.SyncJob, error) {
	return r.listByStatus(ctx, domain.SyncJobStatusPending, limit, true)
}

// ListFailed returns failed jobs eligible for an operator retry.
func (r *SyncJobRepository) ListFailed(ctx context.Context, limit int) ([]domain.SyncJob, error) {
	return r.listByStatus(ctx, domain.SyncJobStatusFailed, limit, false)
}

func (r *SyncJobRepository) listByStatus(ctx context.Context, statusFilter domain.SyncJobStatus, limit int, belowCap bool) ([]domain.SyncJob, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("sync job repository not initialised")
	}
	if limit <= 0 {
		return nil, errors.New("sync job repository: limit must be positive")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("status", "==", string(statusFilter)).
			OrderBy("createdAt", firestore.Asc).
			Limit(limit)
	})
	if err != nil {
		return nil, err
	}

	jobs := make([]domain.SyncJob, 0, len(docs))
	for _, doc := range docs {
		job := toDomainSyncJob(doc.ID, doc.Data)
		if belowCap && job.Attempts >= job.MaxAttempts {
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// List returns jobs newest first with an optional status filter.
func (r *SyncJobRepository) List(ctx context.Context, filter repositories.SyncJobListFilter) (domain.CursorPage[domain.SyncJob], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.SyncJob]{}, errors.New("sync job repository not initialised")
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
			return domain.CursorPage[domain.SyncJob]{}, fmt.Errorf("sync job repository: invalid page token: %w", err)
		}
		startAfter = []any{tokenTime, tokenID}
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
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
		return domain.CursorPage[domain.SyncJob]{}, err
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

	items := make([]domain.SyncJob, 0, len(docs))
	for _, doc := range docs {
		items = append(items, toDomainSyncJob(doc.ID, doc.Data))
	}
	return domain.CursorPage[domain.SyncJob]{Items: items, NextPageToken: nextToken}, nil
}

type syncJobDocument struct {
	OrderID      string              `firestore:"orderId"`
	Status       string              `firestore:"status"`
	Payload      syncPayloadDocument `firestore:"payload"`
	Attempts     int                 `firestore:"attempts"`
	MaxAttempts  int                 `firestore:"maxAttempts"`
	ErrorMessage string              `firestore:"errorMessage,omitempty"`
	CreatedAt    time.Time           `firestore:"createdAt"`
	UpdatedAt    time.Time           `firestore:"updatedAt"`
	CompletedAt  *time.Time          `firestore:"completedAt,omitempty"`
}

type syncPayloadDocument struct {
	OrderID     string                 `firestore:"orderId"`
	UserID      string                 `firestore:"userId"`
	PaymentID   string                 `firestore:"paymentId,omitempty"`
	TotalAmount int64                  `firestore:"totalAmount"`
	Currency    string                 `firestore:"currency"`
	Items       []syncLineItemDocument `firestore:"items"`
}

type syncLineItemDocument struct {
	CapID     string `firestore:"capId"`
	Name      string `firestore:"name"`
	Quantity  int    `firestore:"quantity"`
	UnitPrice int64  `firestore:"unitPrice"`
}

func fromDomainSyncJob(job domain.SyncJob) syncJobDocument {
	items := make([]syncLineItemDocument, 0, len(job.Payload.Items))
	for _, it := range job.Payload.Items {
		items = append(items, syncLineItemDocument{
			CapID:     it.CapID,
			Name:      it.Name,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		})
	}
	return syncJobDocument{
		OrderID: job.OrderID,
		Status:  string(job.Status),
		Payload: syncPayloadDocument{
			OrderID:     job.Payload.OrderID,
			UserID:      job.Payload.UserID,
			PaymentID:   job.Payload.PaymentID,
			TotalAmount: job.Payload.TotalAmount,
			Currency:    job.Payload.Currency,
			Items:       items,
		},
		Attempts:     job.Attempts,
		MaxAttempts:  job.MaxAttempts,
		ErrorMessage: job.ErrorMessage,
		CreatedAt:    job.CreatedAt,
		UpdatedAt:    job.UpdatedAt,
		CompletedAt:  job.CompletedAt,
	}
}

func toDomainSyncJob(id string, doc syncJobDocument) domain.SyncJob {
	items := make([]domain.SyncLineItem, 0, len(doc.Payload.Items))
	for _, it := range doc.Payload.Items {
		items = append(items, domain.SyncLineItem{
			CapID:     it.CapID,
			Name:      it.Name,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		})
	}
	return domain.SyncJob{
		ID:      id,
		OrderID: doc.OrderID,
		Status:  domain.SyncJobStatus(doc.Status),
		Payload: domain.SyncPayload{
			OrderID:     doc.Payload.OrderID,
			UserID:      doc.Payload.UserID,
			PaymentID:   doc.Payload.PaymentID,
			TotalAmount: doc.Payload.TotalAmount,
			Currency:    doc.Payload.Currency,
			Items:       items,
		},
		Attempts:     doc.Attempts,
		MaxAttempts:  doc.MaxAttempts,
		ErrorMessage: doc.ErrorMessage,
		CreatedAt:    doc.CreatedAt,
		UpdatedAt:    doc.UpdatedAt,
		CompletedAt:  doc.CompletedAt,
	}
}
