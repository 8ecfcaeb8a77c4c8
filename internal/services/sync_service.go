package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/Rakanrepo/slevenback/internal/domain"
	"github.com/Rakanrepo/slevenback/internal/repositories"
)

const (
	syncJobIDPrefix = "sj_"

	syncEventQueued    = "sync.job.queued"
	syncEventCompleted = "sync.job.completed"
	syncEventFailed    = "sync.job.failed"

	defaultSyncMaxAttempts = 3
	defaultSyncSweepLimit  = 20
)

var (
	// ErrSyncInvalidInput signals the caller provided invalid arguments.
	ErrSyncInvalidInput = errors.New("sync: invalid input")
	// ErrSyncJobNotFound indicates the job could not be located.
	ErrSyncJobNotFound = errors.New("sync: job not found")
)

// OmnifulClient pushes order snapshots to the fulfilment partner. The remote
// side deduplicates on the order id carried in the payload.
type OmnifulClient interface {
	PushOrder(ctx context.Context, payload SyncPayload) error
}

// SyncEventPublisher emits queue lifecycle notifications for observers.
type SyncEventPublisher interface {
	PublishSyncEvent(ctx context.Context, event SyncEvent) error
}

// SyncEvent captures metadata for emitted queue events.
type SyncEvent struct {
	Type       string
	JobID      string
	OrderID    string
	Attempts   int
	OccurredAt time.Time
}

// SyncServiceDeps bundles the collaborators required to construct the sync service.
type SyncServiceDeps struct {
	Jobs        repositories.SyncJobRepository
	Client      OmnifulClient
	Events      SyncEventPublisher
	MaxAttempts int
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
	Metrics     SyncMetrics
}

// SyncMetrics records sweep outcomes. Implementations must be safe for
// concurrent use.
type SyncMetrics interface {
	JobCompleted(ctx context.Context)
	JobFailed(ctx context.Context)
}

type syncService struct {
	jobs        repositories.SyncJobRepository
	client      OmnifulClient
	events      SyncEventPublisher
	maxAttempts int
	clock       func() time.Time
	newID       func() string
	logger      func(context.Context, string, map[string]any)
	metrics     SyncMetrics
}

// NewSyncService wires dependencies into a concrete SyncService implementation.
func NewSyncService(deps SyncServiceDeps) (SyncService, error) {
	if deps.Jobs == nil {
		return nil, errors.New("sync service: job repository is required")
	}
	if deps.Client == nil {
		return nil, errors.New("sync service: omniful client is required")
	}

	maxAttempts := deps.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultSyncMaxAttempts
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

	return &syncService{
		jobs:        deps.Jobs,
		client:      deps.Client,
		events:      deps.Events,
		maxAttempts: maxAttempts,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:   idGen,
		logger:  logger,
		metrics: deps.Metrics,
	}, nil
}

func (s *syncService) Enqueue(ctx context.Context, order Order, paymentID string) (SyncJob, error) {
	if strings.TrimSpace(order.ID) == "" {
		return SyncJob{}, fmt.Errorf("%w: order id is required", ErrSyncInvalidInput)
	}
	if len(order.Items) == 0 {
		return SyncJob{}, fmt.Errorf("%w: order has no items", ErrSyncInvalidInput)
	}

	now := s.clock()
	items := make([]SyncLineItem, 0, len(order.Items))
	for _, it := range order.Items {
		items = append(items, SyncLineItem{
			CapID:     it.CapID,
			Name:      it.Name,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		})
	}

	job := SyncJob{
		ID:      syncJobIDPrefix + s.newID(),
		OrderID: order.ID,
		Status:  domain.SyncJobStatusPending,
		Payload: SyncPayload{
			OrderID:     order.ID,
			UserID:      order.UserID,
			PaymentID:   strings.TrimSpace(paymentID),
			TotalAmount: order.TotalAmount,
			Currency:    order.Currency,
			Items:       items,
		},
		Attempts:    0,
		MaxAttempts: s.maxAttempts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.jobs.Insert(ctx, job); err != nil {
		return SyncJob{}, s.mapRepositoryError(err)
	}

	s.publishEvent(ctx, SyncEvent{
		Type:       syncEventQueued,
		JobID:      job.ID,
		OrderID:    job.OrderID,
		OccurredAt: now,
	})

	return job, nil
}

func (s *syncService) ProcessPending(ctx context.Context, limit int) (SyncSweepResult, error) {
	if limit <= 0 {
		limit = defaultSyncSweepLimit
	}

	jobs, err := s.jobs.ListPending(ctx, limit)
	if err != nil {
		return SyncSweepResult{}, s.mapRepositoryError(err)
	}

	result := SyncSweepResult{Picked: len(jobs)}
	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if s.processJob(ctx, job) {
			result.Completed++
		} else {
			result.Failed++
		}
	}

	if result.Picked > 0 {
		s.logger(ctx, "sync.sweep", map[string]any{
			"picked":    result.Picked,
			"completed": result.Completed,
			"failed":    result.Failed,
		})
	}
	return result, nil
}

// processJob runs one attempt. The attempt counter increments before the
// push so a crash mid-push still consumes the attempt.
func (s *syncService) processJob(ctx context.Context, job SyncJob) bool {
	now := s.clock()
	job.Status = domain.SyncJobStatusProcessing
	job.Attempts++
	job.UpdatedAt = now
	if err := s.jobs.Update(ctx, job); err != nil {
		s.logger(ctx, "sync.job.update.failed", map[string]any{
			"job":   job.ID,
			"error": err.Error(),
		})
		return false
	}

	pushErr := s.client.PushOrder(ctx, job.Payload)
	now = s.clock()
	job.UpdatedAt = now

	if pushErr != nil {
		job.Status = domain.SyncJobStatusFailed
		job.ErrorMessage = pushErr.Error()
		if err := s.jobs.Update(ctx, job); err != nil {
			s.logger(ctx, "sync.job.update.failed", map[string]any{
				"job":   job.ID,
				"error": err.Error(),
			})
		}
		if s.metrics != nil {
			s.metrics.JobFailed(ctx)
		}
		s.publishEvent(ctx, SyncEvent{
			Type:       syncEventFailed,
			JobID:      job.ID,
			OrderID:    job.OrderID,
			Attempts:   job.Attempts,
			OccurredAt: now,
		})
		return false
	}

	job.Status = domain.SyncJobStatusCompleted
	job.ErrorMessage = ""
	job.CompletedAt = &now
	if err := s.jobs.Update(ctx, job); err != nil {
		s.logger(ctx, "sync.job.update.failed", map[string]any{
			"job":   job.ID,
			"error": err.Error(),
		})
	}
	if s.metrics != nil {
		s.metrics.JobCompleted(ctx)
	}
	s.publishEvent(ctx, SyncEvent{
		Type:       syncEventCompleted,
		JobID:      job.ID,
		OrderID:    job.OrderID,
		Attempts:   job.Attempts,
		OccurredAt: now,
	})
	return true
}

func (s *syncService) RetryFailed(ctx context.Context) (int, error) {
	reset := 0
	for {
		jobs, err := s.jobs.ListFailed(ctx, defaultSyncSweepLimit)
		if err != nil {
			return reset, s.mapRepositoryError(err)
		}
		if len(jobs) == 0 {
			return reset, nil
		}

		now := s.clock()
		batchReset := 0
		for _, job := range jobs {
			// Jobs that burned through their attempt budget stay failed.
			if job.MaxAttempts > 0 && job.Attempts >= job.MaxAttempts {
				continue
			}
			job.Status = domain.SyncJobStatusPending
			job.Attempts = 0
			job.ErrorMessage = ""
			job.UpdatedAt = now
			if err := s.jobs.Update(ctx, job); err != nil {
				return reset, s.mapRepositoryError(err)
			}
			batchReset++
		}
		reset += batchReset
		if len(jobs) < defaultSyncSweepLimit || batchReset == 0 {
			return reset, nil
		}
	}
}

func (s *syncService) ListJobs(ctx context.Context, query SyncJobListQuery) (domain.CursorPage[SyncJob], error) {
	page, err := s.jobs.List(ctx, repositories.SyncJobListFilter{
		Status: query.Status,
		Pager:  query.Pager,
	})
	if err != nil {
		return domain.CursorPage[SyncJob]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *syncService) publishEvent(ctx context.Context, event SyncEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishSyncEvent(ctx, event); err != nil {
		s.logger(ctx, "sync.event.publish.failed", map[string]any{
			"type":  event.Type,
			"job":   event.JobID,
			"error": err.Error(),
		})
	}
}

func (s *syncService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrSyncJobNotFound, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("sync: repository unavailable: %w", err)
		}
	}
	return err
}
