package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/text/language"

	"github.com/Rakanrepo/slevenback/internal/platform/auth"
	"github.com/Rakanrepo/slevenback/internal/platform/httpx"
	"github.com/Rakanrepo/slevenback/internal/services"
)

const (
	defaultCapPageSize = 20
	maxCapPageSize     = 100
	maxCapBodySize     = 32 * 1024
)

var capLanguageMatcher = language.NewMatcher([]language.Tag{
	language.English,
	language.Arabic,
})

type createCapRequest struct {
	Name          string  `json:"name"`
	NameAr        string  `json:"name_ar"`
	Description   string  `json:"description"`
	DescriptionAr string  `json:"description_ar"`
	Price         float64 `json:"price"`
	Currency      string  `json:"currency"`
	ImageURL      string  `json:"image_url"`
	Category      string  `json:"category"`
	Brand         string  `json:"brand"`
	Color         string  `json:"color"`
	Size          string  `json:"size"`
	StockQuantity int     `json:"stock_quantity"`
	IsFeatured    bool    `json:"is_featured"`
}

type capPayload struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Description   string  `json:"description"`
	Price         float64 `json:"price"`
	Currency      string  `json:"currency"`
	ImageURL      string  `json:"image_url,omitempty"`
	Category      string  `json:"category,omitempty"`
	Brand         string  `json:"brand,omitempty"`
	Color         string  `json:"color,omitempty"`
	Size          string  `json:"size,omitempty"`
	StockQuantity int     `json:"stock_quantity"`
	InStock       bool    `json:"in_stock"`
	IsFeatured    bool    `json:"is_featured"`
	CreatedAt     string  `json:"created_at"`
}

type capListResponse struct {
	Items         []capPayload `json:"items"`
	NextPageToken string       `json:"next_page_token,omitempty"`
}

// CapHandlers exposes the product catalog endpoints.
type CapHandlers struct {
	catalog services.CatalogService
	authn   *auth.Authenticator
}

// NewCapHandlers constructs a new CapHandlers instance.
func NewCapHandlers(catalog services.CatalogService, authn *auth.Authenticator) *CapHandlers {
	return &CapHandlers{
		catalog: catalog,
		authn:   authn,
	}
}

// Routes registers the /caps endpoints. Reads are public; writes require
// the admin role.
func (h *CapHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listCaps)
	r.Get("/featured", h.listFeatured)
	r.Get("/{capID}", h.getCap)

	if h.authn != nil {
		r.With(h.authn.RequireAuth(auth.RoleAdmin)).Post("/", h.createCap)
		return
	}
	r.Post("/", h.createCap)
}

func (h *CapHandlers) listCaps(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	query := r.URL.Query()
	pageSize, err := parsePageSize(query.Get("page_size"), defaultCapPageSize, maxCapPageSize)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.catalog.ListCaps(ctx, services.CapListQuery{
		Category: query.Get("category"),
		Brand:    query.Get("brand"),
		Pager: services.Pagination{
			PageSize:  pageSize,
			PageToken: strings.TrimSpace(query.Get("page_token")),
		},
	})
	if err != nil {
		writeCapError(ctx, w, err)
		return
	}

	lang := requestLanguage(r)
	items := make([]capPayload, 0, len(page.Items))
	for _, cap := range page.Items {
		items = append(items, buildCapPayload(cap, lang))
	}

	writeJSONResponse(w, http.StatusOK, capListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	})
}

func (h *CapHandlers) listFeatured(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	caps, err := h.catalog.ListFeatured(ctx)
	if err != nil {
		writeCapError(ctx, w, err)
		return
	}

	lang := requestLanguage(r)
	items := make([]capPayload, 0, len(caps))
	for _, cap := range caps {
		items = append(items, buildCapPayload(cap, lang))
	}

	writeJSONResponse(w, http.StatusOK, capListResponse{Items: items})
}

func (h *CapHandlers) getCap(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	capID := strings.TrimSpace(chi.URLParam(r, "capID"))
	if capID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "cap id is required", http.StatusBadRequest))
		return
	}

	cap, err := h.catalog.GetCap(ctx, capID)
	if err != nil {
		writeCapError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildCapPayload(cap, requestLanguage(r)))
}

func (h *CapHandlers) createCap(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxCapBodySize)
	if err != nil {
		if errors.Is(err, errBodyTooLarge) {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body too large", http.StatusRequestEntityTooLarge))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unable to read request body", http.StatusBadRequest))
		return
	}

	var req createCapRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	cap, err := h.catalog.CreateCap(ctx, services.CreateCapCommand{
		Name:          req.Name,
		NameAr:        req.NameAr,
		Description:   req.Description,
		DescriptionAr: req.DescriptionAr,
		Price:         majorToMinor(req.Price),
		Currency:      req.Currency,
		ImageURL:      req.ImageURL,
		Category:      req.Category,
		Brand:         req.Brand,
		Color:         req.Color,
		Size:          req.Size,
		StockQuantity: req.StockQuantity,
		IsFeatured:    req.IsFeatured,
	})
	if err != nil {
		writeCapError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, buildCapPayload(cap, requestLanguage(r)))
}

// requestLanguage resolves the Accept-Language header to the base language
// used for localized catalog fields.
func requestLanguage(r *http.Request) string {
	tags, _, err := language.ParseAcceptLanguage(r.Header.Get("Accept-Language"))
	if err != nil || len(tags) == 0 {
		return "en"
	}
	tag, _, _ := capLanguageMatcher.Match(tags...)
	base, _ := tag.Base()
	return base.String()
}

func buildCapPayload(cap services.Cap, lang string) capPayload {
	return capPayload{
		ID:            cap.ID,
		Name:          cap.DisplayName(lang),
		Description:   cap.DisplayDescription(lang),
		Price:         minorToMajor(cap.Price),
		Currency:      cap.Currency,
		ImageURL:      cap.ImageURL,
		Category:      cap.Category,
		Brand:         cap.Brand,
		Color:         cap.Color,
		Size:          cap.Size,
		StockQuantity: cap.StockQuantity,
		InStock:       cap.StockQuantity > 0,
		IsFeatured:    cap.IsFeatured,
		CreatedAt:     cap.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func writeCapError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCatalogInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCatalogCapNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("cap_not_found", "cap not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCatalogConflict):
		httpx.WriteError(ctx, w, httpx.NewError("conflict", "catalog write conflicted, retry", http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
	}
}
