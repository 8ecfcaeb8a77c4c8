package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/Rakanrepo/slevenback/internal/domain"
	"github.com/Rakanrepo/slevenback/internal/platform/auth"
	"github.com/Rakanrepo/slevenback/internal/platform/httpx"
	"github.com/Rakanrepo/slevenback/internal/services"
)

const (
	defaultSyncJobPageSize = 20
	maxSyncJobPageSize     = 100
	defaultSweepLimit      = 20
)

type syncJobPayload struct {
	ID          string `json:"id"`
	OrderID     string `json:"order_id"`
	Status      string `json:"status"`
	Attempts    int    `json:"attempts"`
	MaxAttempts int    `json:"max_attempts"`
	LastError   string `json:"last_error,omitempty"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

type syncJobListResponse struct {
	Items         []syncJobPayload `json:"items"`
	NextPageToken string           `json:"next_page_token,omitempty"`
}

type syncSweepResponse struct {
	Picked    int `json:"picked"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// SyncHandlers exposes the fulfilment sync queue to operators.
type SyncHandlers struct {
	authn *auth.Authenticator
	sync  services.SyncService
}

// NewSyncHandlers constructs a new SyncHandlers instance.
func NewSyncHandlers(authn *auth.Authenticator, sync services.SyncService) *SyncHandlers {
	return &SyncHandlers{
		authn: authn,
		sync:  sync,
	}
}

// Routes registers the admin-only /omniful endpoints.
func (h *SyncHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth(auth.RoleAdmin))
	}
	r.Get("/jobs", h.listJobs)
	r.Post("/jobs/retry", h.retryFailed)
	r.Post("/jobs/sweep", h.sweep)
}

func (h *SyncHandlers) listJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.sync == nil {
		httpx.WriteError(ctx, w, httpx.NewError("sync_service_unavailable", "sync service unavailable", http.StatusServiceUnavailable))
		return
	}

	query := r.URL.Query()
	pageSize, err := parsePageSize(query.Get("page_size"), defaultSyncJobPageSize, maxSyncJobPageSize)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	listQuery := services.SyncJobListQuery{
		Pager: services.Pagination{
			PageSize:  pageSize,
			PageToken: strings.TrimSpace(query.Get("page_token")),
		},
	}
	if raw := strings.TrimSpace(query.Get("status")); raw != "" {
		status := domain.SyncJobStatus(raw)
		listQuery.Status = &status
	}

	page, err := h.sync.ListJobs(ctx, listQuery)
	if err != nil {
		writeSyncError(ctx, w, err)
		return
	}

	items := make([]syncJobPayload, 0, len(page.Items))
	for _, job := range page.Items {
		items = append(items, buildSyncJobPayload(job))
	}

	writeJSONResponse(w, http.StatusOK, syncJobListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	})
}

func (h *SyncHandlers) retryFailed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.sync == nil {
		httpx.WriteError(ctx, w, httpx.NewError("sync_service_unavailable", "sync service unavailable", http.StatusServiceUnavailable))
		return
	}

	count, err := h.sync.RetryFailed(ctx)
	if err != nil {
		writeSyncError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]int{"requeued": count})
}

func (h *SyncHandlers) sweep(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.sync == nil {
		httpx.WriteError(ctx, w, httpx.NewError("sync_service_unavailable", "sync service unavailable", http.StatusServiceUnavailable))
		return
	}

	limit := defaultSweepLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := parsePageSize(raw, defaultSweepLimit, maxSyncJobPageSize)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
			return
		}
		limit = parsed
	}

	result, err := h.sync.ProcessPending(ctx, limit)
	if err != nil {
		writeSyncError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, syncSweepResponse{
		Picked:    result.Picked,
		Completed: result.Completed,
		Failed:    result.Failed,
	})
}

func buildSyncJobPayload(job services.SyncJob) syncJobPayload {
	return syncJobPayload{
		ID:          job.ID,
		OrderID:     job.OrderID,
		Status:      string(job.Status),
		Attempts:    job.Attempts,
		MaxAttempts: job.MaxAttempts,
		LastError:   job.ErrorMessage,
		CreatedAt:   job.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   job.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func writeSyncError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrSyncInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrSyncJobNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("sync_job_not_found", "sync job not found", http.StatusNotFound))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
	}
}
